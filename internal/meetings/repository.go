package meetings

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository persists meetings in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

var meetingSort = db.Sortable{
	"title":      "m.title",
	"starts_at":  "m.starts_at",
	"created_at": "m.created_at",
}

func meetingSelect() squirrel.SelectBuilder {
	return db.Builder().Select(
		"m.id::text", "m.club_id::text", "c.name", "m.title", "m.description", "m.location",
		"m.starts_at", "m.ends_at", "m.created_by::text", "m.created_at", "m.updated_at",
	).
		From("meetings m").
		Join("clubs c ON c.id = m.club_id")
}

// List returns a page of meetings matching filter, soonest first by default.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Meeting, int, error) {
	sb := meetingSelect()
	if filter.ClubID != "" {
		sb = sb.Where(squirrel.Eq{"m.club_id": filter.ClubID})
	}
	if filter.MemberID != "" {
		sb = sb.Where("m.club_id IN (SELECT club_id FROM club_members WHERE user_id = ?)", filter.MemberID)
	}
	if filter.After != nil {
		sb = sb.Where(squirrel.GtOrEq{"m.starts_at": *filter.After})
	}
	if filter.Search != "" {
		sb = sb.Where(squirrel.Like{"lower(m.title)": "%" + strings.ToLower(filter.Search) + "%"})
	}
	total, err := db.Count(ctx, r.db, sb)
	if err != nil {
		return nil, 0, err
	}
	stmt, args, err := db.Page(sb, filter.ListParams, meetingSort, "starts_at").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("meetings: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Meeting, error) { return scanMeeting(row) })
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get fetches a meeting by id.
func (r *Repository) Get(ctx context.Context, id string) (Meeting, error) {
	stmt, args, err := meetingSelect().Where(squirrel.Eq{"m.id": id}).ToSql()
	if err != nil {
		return Meeting{}, err
	}
	m, err := scanMeeting(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Meeting{}, db.NotFound(err)
	}
	return m, nil
}

// Insert stores a meeting and returns its id.
func (r *Repository) Insert(ctx context.Context, in CreateInput, createdBy string) (string, error) {
	stmt, args, err := db.Builder().Insert("meetings").
		Columns("club_id", "title", "description", "location", "starts_at", "ends_at", "created_by").
		Values(in.ClubID, in.Title, in.Description, in.Location, in.StartsAt, in.EndsAt, createdBy).
		Suffix("RETURNING id::text").ToSql()
	if err != nil {
		return "", err
	}
	var id string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("meetings: insert: %w", err)
	}
	return id, nil
}

// Update applies the non-nil fields of in.
func (r *Repository) Update(ctx context.Context, id string, in UpdateInput) error {
	set := map[string]any{"updated_at": squirrel.Expr("now()")}
	if in.Title != nil {
		set["title"] = *in.Title
	}
	if in.Description != nil {
		set["description"] = *in.Description
	}
	if in.Location != nil {
		set["location"] = *in.Location
	}
	if in.StartsAt != nil {
		set["starts_at"] = *in.StartsAt
	}
	if in.EndsAt != nil {
		set["ends_at"] = *in.EndsAt
	}
	stmt, args, err := db.Builder().Update("meetings").SetMap(set).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("meetings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a meeting.
func (r *Repository) Delete(ctx context.Context, id string) error {
	stmt, args, err := db.Builder().Delete("meetings").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("meetings: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	err := row.Scan(&m.ID, &m.ClubID, &m.ClubName, &m.Title, &m.Description, &m.Location,
		&m.StartsAt, &m.EndsAt, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}
