package files

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository persists file metadata in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

var fileSort = db.Sortable{
	"name":       "f.name",
	"size":       "f.size_bytes",
	"created_at": "f.created_at",
}

func fileSelect() squirrel.SelectBuilder {
	return db.Builder().Select(
		"f.id::text", "COALESCE(f.club_id::text, '')", "f.owner_id::text", "COALESCE(p.full_name, '')",
		"f.name", "f.content_type", "f.size_bytes", "f.object_key", "f.created_at",
	).
		From("files f").
		LeftJoin("profiles p ON p.id = f.owner_id")
}

// List returns a page of files matching filter, newest first by default.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]File, int, error) {
	sb := fileSelect()
	if filter.ClubID != "" {
		sb = sb.Where(squirrel.Eq{"f.club_id": filter.ClubID})
	}
	if filter.OwnerID != "" {
		sb = sb.Where(squirrel.Eq{"f.owner_id": filter.OwnerID})
	}
	if filter.Search != "" {
		sb = sb.Where(squirrel.Like{"lower(f.name)": "%" + strings.ToLower(filter.Search) + "%"})
	}
	total, err := db.Count(ctx, r.db, sb)
	if err != nil {
		return nil, 0, err
	}
	if filter.SortBy == "" {
		filter.SortBy, filter.SortDir = "created_at", "desc"
	}
	stmt, args, err := db.Page(sb, filter.ListParams, fileSort, "created_at").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("files: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (File, error) { return scanFile(row) })
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get fetches file metadata by id.
func (r *Repository) Get(ctx context.Context, id string) (File, error) {
	stmt, args, err := fileSelect().Where(squirrel.Eq{"f.id": id}).ToSql()
	if err != nil {
		return File{}, err
	}
	f, err := scanFile(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return File{}, db.NotFound(err)
	}
	return f, nil
}

// Insert stores metadata and returns the new id.
func (r *Repository) Insert(ctx context.Context, f File) (string, error) {
	var club any
	if f.ClubID != "" {
		club = f.ClubID
	}
	stmt, args, err := db.Builder().Insert("files").
		Columns("club_id", "owner_id", "name", "content_type", "size_bytes", "object_key").
		Values(club, f.OwnerID, f.Name, f.ContentType, f.Size, f.ObjectKey).
		Suffix("RETURNING id::text").ToSql()
	if err != nil {
		return "", err
	}
	var id string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("files: insert: %w", err)
	}
	return id, nil
}

// Delete removes metadata for id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	stmt, args, err := db.Builder().Delete("files").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("files: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFile(row pgx.Row) (File, error) {
	var f File
	err := row.Scan(&f.ID, &f.ClubID, &f.OwnerID, &f.OwnerName, &f.Name, &f.ContentType, &f.Size, &f.ObjectKey, &f.CreatedAt)
	return f, err
}
