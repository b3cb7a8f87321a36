package auth

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/rbac"
)

// Repository defines profile persistence needed by the auth layer.
type Repository interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const profileReturning = "RETURNING id::text, email, full_name, role, created_at, updated_at"

// GetProfile fetches a profile by user id.
func (r *PGRepository) GetProfile(ctx context.Context, id string) (Profile, error) {
	stmt, args, err := db.Builder().
		Select("id::text", "email", "full_name", "role", "created_at", "updated_at").
		From("profiles").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	var role string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&p.ID, &p.Email, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, db.NotFound(err)
	}
	p.Role = rbac.Role(role)
	return p, nil
}

// CreateProfile inserts a profile. A concurrent insert of the same id
// surfaces as a unique violation.
func (r *PGRepository) CreateProfile(ctx context.Context, in Profile) (Profile, error) {
	stmt, args, err := db.Builder().Insert("profiles").
		Columns("id", "email", "full_name", "role").
		Values(in.ID, in.Email, in.FullName, string(in.Role)).
		Suffix(profileReturning).ToSql()
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	var role string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&p.ID, &p.Email, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, fmt.Errorf("auth: create profile: %w", err)
	}
	p.Role = rbac.Role(role)
	return p, nil
}

var _ Repository = (*PGRepository)(nil)
