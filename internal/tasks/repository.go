package tasks

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository persists tasks in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

var taskSort = db.Sortable{
	"title":      "t.title",
	"status":     "t.status",
	"priority":   "t.priority",
	"due_date":   "t.due_date",
	"created_at": "t.created_at",
}

func taskSelect() squirrel.SelectBuilder {
	return db.Builder().Select(
		"t.id::text", "t.club_id::text", "c.name", "t.title", "t.description", "t.status", "t.priority",
		"COALESCE(t.assignee_id::text, '')", "COALESCE(ap.full_name, '')",
		"t.due_date", "t.created_by::text", "t.created_at", "t.updated_at",
	).
		From("tasks t").
		Join("clubs c ON c.id = t.club_id").
		LeftJoin("profiles ap ON ap.id = t.assignee_id")
}

// List returns a page of tasks matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	sb := taskSelect()
	if filter.ClubID != "" {
		sb = sb.Where(squirrel.Eq{"t.club_id": filter.ClubID})
	}
	if filter.Status != "" {
		sb = sb.Where(squirrel.Eq{"t.status": filter.Status})
	}
	if filter.AssigneeID != "" {
		sb = sb.Where(squirrel.Eq{"t.assignee_id": filter.AssigneeID})
	}
	if filter.DueBefore != nil {
		sb = sb.Where(squirrel.Lt{"t.due_date": *filter.DueBefore})
	}
	if filter.Search != "" {
		sb = sb.Where(squirrel.Like{"lower(t.title)": "%" + strings.ToLower(filter.Search) + "%"})
	}
	total, err := db.Count(ctx, r.db, sb)
	if err != nil {
		return nil, 0, err
	}
	stmt, args, err := db.Page(sb, filter.ListParams, taskSort, "created_at").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("tasks: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) { return scanTask(row) })
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get fetches a task by id.
func (r *Repository) Get(ctx context.Context, id string) (Task, error) {
	stmt, args, err := taskSelect().Where(squirrel.Eq{"t.id": id}).ToSql()
	if err != nil {
		return Task{}, err
	}
	t, err := scanTask(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Task{}, db.NotFound(err)
	}
	return t, nil
}

// Insert stores a task and returns its id.
func (r *Repository) Insert(ctx context.Context, in CreateInput, createdBy string) (string, error) {
	stmt, args, err := db.Builder().Insert("tasks").
		Columns("club_id", "title", "description", "status", "priority", "assignee_id", "due_date", "created_by").
		Values(in.ClubID, in.Title, in.Description, in.Status, in.Priority, nullable(in.AssigneeID), in.DueDate, createdBy).
		Suffix("RETURNING id::text").ToSql()
	if err != nil {
		return "", err
	}
	var id string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("tasks: insert: %w", err)
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
	if in.Status != nil {
		set["status"] = *in.Status
	}
	if in.Priority != nil {
		set["priority"] = *in.Priority
	}
	if in.AssigneeID != nil {
		set["assignee_id"] = nullable(*in.AssigneeID)
	}
	if in.DueDate != nil {
		set["due_date"] = *in.DueDate
	}
	stmt, args, err := db.Builder().Update("tasks").SetMap(set).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("tasks: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task.
func (r *Repository) Delete(ctx context.Context, id string) error {
	stmt, args, err := db.Builder().Delete("tasks").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("tasks: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StatusCounts returns open task counts per status for the given assignee.
func (r *Repository) StatusCounts(ctx context.Context, assigneeID string) (map[string]int, error) {
	stmt, args, err := db.Builder().Select("status", "COUNT(*)").From("tasks").
		Where(squirrel.Eq{"assignee_id": assigneeID}).
		GroupBy("status").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: status counts: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ClubID, &t.ClubName, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &t.AssigneeName, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
