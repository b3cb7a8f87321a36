package users

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/rbac"
)

// Repository provides PostgreSQL backed persistence over profiles.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

var userColumns = []string{"id::text", "email", "full_name", "role", "created_at", "updated_at"}

var userSort = db.Sortable{
	"email":      "email",
	"name":       "full_name",
	"role":       "role",
	"created_at": "created_at",
}

// ListUsers returns one page of profiles and the total match count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	sb := db.Builder().Select(userColumns...).From("profiles")
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		sb = sb.Where(squirrel.Or{
			squirrel.Like{"lower(email)": like},
			squirrel.Like{"lower(full_name)": like},
		})
	}
	if filter.Role != "" {
		sb = sb.Where(squirrel.Eq{"role": string(filter.Role)})
	}
	total, err := db.Count(ctx, r.db, sb)
	if err != nil {
		return nil, 0, err
	}
	stmt, args, err := db.Page(sb, filter.ListParams, userSort, "created_at").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// GetUser fetches one profile.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	stmt, args, err := db.Builder().Select(userColumns...).From("profiles").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return User{}, err
	}
	u, err := scanUser(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return User{}, db.NotFound(err)
	}
	return u, nil
}

// UpdateRole sets the role and returns the updated profile.
func (r *Repository) UpdateRole(ctx context.Context, id string, role rbac.Role) (User, error) {
	stmt, args, err := db.Builder().Update("profiles").
		Set("role", string(role)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).ToSql()
	if err != nil {
		return User{}, err
	}
	u, err := scanUser(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return User{}, db.NotFound(err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role = rbac.Role(role)
	return u, nil
}
