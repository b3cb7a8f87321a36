package rbac

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository defines persistence for the permission catalog and grants.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	PermissionByName(ctx context.Context, name string) (Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	RolePermissionNames(ctx context.Context, role Role) ([]string, error)
	ListRolePermissions(ctx context.Context) ([]RolePermission, error)
	AttachRolePermission(ctx context.Context, role Role, permissionID string) error
	DetachRolePermission(ctx context.Context, role Role, permissionID string) error
	ActiveGrants(ctx context.Context, userID string, now time.Time) ([]UserPermission, error)
	InsertGrant(ctx context.Context, grant UserPermission) (UserPermission, error)
	DeactivateGrant(ctx context.Context, userID, permissionID, clubID, revokedBy string, at time.Time) (int64, error)
	ExpireGrants(ctx context.Context, now time.Time) ([]string, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

var permissionColumns = []string{"id::text", "name", "description", "category", "active", "created_at"}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Active, &p.CreatedAt)
	return p, err
}

// ListPermissions returns the catalog ordered by category then name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	stmt, args, err := db.Builder().Select(permissionColumns...).From("permissions").OrderBy("category", "name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PermissionByName fetches an active permission.
func (r *PGRepository) PermissionByName(ctx context.Context, name string) (Permission, error) {
	stmt, args, err := db.Builder().Select(permissionColumns...).From("permissions").
		Where(squirrel.Eq{"name": name, "active": true}).ToSql()
	if err != nil {
		return Permission{}, err
	}
	p, err := scanPermission(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Permission{}, db.NotFound(err)
	}
	return p, nil
}

// CreatePermission inserts a catalog entry.
func (r *PGRepository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	stmt, args, err := db.Builder().Insert("permissions").
		Columns("name", "description", "category", "active").
		Values(p.Name, p.Description, p.Category, p.Active).
		Suffix("RETURNING id::text, name, description, category, active, created_at").ToSql()
	if err != nil {
		return Permission{}, err
	}
	out, err := scanPermission(r.db.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: create permission: %w", err)
	}
	return out, nil
}

// RolePermissionNames returns the active permission names mapped to role.
func (r *PGRepository) RolePermissionNames(ctx context.Context, role Role) ([]string, error) {
	stmt, args, err := db.Builder().Select("p.name").From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"rp.role": string(role), "p.active": true}).
		OrderBy("p.name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListRolePermissions returns every role mapping.
func (r *PGRepository) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	stmt, args, err := db.Builder().Select("rp.role", "p.name").From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		OrderBy("rp.role", "p.name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role permissions: %w", err)
	}
	defer rows.Close()
	var out []RolePermission
	for rows.Next() {
		var rp RolePermission
		var role string
		if err := rows.Scan(&role, &rp.Permission); err != nil {
			return nil, err
		}
		rp.Role = Role(role)
		out = append(out, rp)
	}
	return out, rows.Err()
}

// AttachRolePermission adds a permission to the role floor.
func (r *PGRepository) AttachRolePermission(ctx context.Context, role Role, permissionID string) error {
	stmt, args, err := db.Builder().Insert("role_permissions").Columns("role", "permission_id").
		Values(string(role), permissionID).Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, stmt, args...)
	return err
}

// DetachRolePermission removes a permission from the role floor.
func (r *PGRepository) DetachRolePermission(ctx context.Context, role Role, permissionID string) error {
	stmt, args, err := db.Builder().Delete("role_permissions").
		Where(squirrel.Eq{"role": string(role), "permission_id": permissionID}).ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, stmt, args...)
	return err
}

// ActiveGrants returns active grants for the user that have not expired at now.
func (r *PGRepository) ActiveGrants(ctx context.Context, userID string, now time.Time) ([]UserPermission, error) {
	stmt, args, err := db.Builder().
		Select("up.id::text", "up.user_id::text", "up.permission_id::text", "p.name",
			"COALESCE(up.granted_by::text, '')", "up.granted_at", "up.expires_at",
			"COALESCE(up.club_id::text, '')", "up.active", "up.revoked_at").
		From("user_permissions up").
		Join("permissions p ON p.id = up.permission_id").
		Where(squirrel.Eq{"up.user_id": userID, "up.active": true, "p.active": true}).
		Where(squirrel.Or{squirrel.Eq{"up.expires_at": nil}, squirrel.Gt{"up.expires_at": now}}).
		OrderBy("p.name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: active grants: %w", err)
	}
	defer rows.Close()
	var out []UserPermission
	for rows.Next() {
		var g UserPermission
		if err := rows.Scan(&g.ID, &g.UserID, &g.PermissionID, &g.Permission, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt, &g.ClubID, &g.Active, &g.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertGrant stores a new active grant. A duplicate active grant surfaces as
// a unique violation from the partial index.
func (r *PGRepository) InsertGrant(ctx context.Context, g UserPermission) (UserPermission, error) {
	stmt, args, err := db.Builder().Insert("user_permissions").
		Columns("user_id", "permission_id", "granted_by", "granted_at", "expires_at", "club_id", "active").
		Values(g.UserID, g.PermissionID, nullable(g.GrantedBy), g.GrantedAt, g.ExpiresAt, nullable(g.ClubID), true).
		Suffix("RETURNING id::text").ToSql()
	if err != nil {
		return UserPermission{}, err
	}
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&g.ID); err != nil {
		return UserPermission{}, err
	}
	g.Active = true
	return g, nil
}

// DeactivateGrant soft-revokes the active grant matching user, permission and
// club context. It returns the number of rows changed.
func (r *PGRepository) DeactivateGrant(ctx context.Context, userID, permissionID, clubID, revokedBy string, at time.Time) (int64, error) {
	q := db.Builder().Update("user_permissions").
		Set("active", false).
		Set("revoked_at", at).
		Set("revoked_by", nullable(revokedBy)).
		Where(squirrel.Eq{"user_id": userID, "permission_id": permissionID, "active": true})
	if clubID == "" {
		q = q.Where(squirrel.Eq{"club_id": nil})
	} else {
		q = q.Where(squirrel.Eq{"club_id": clubID})
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("rbac: revoke grant: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireGrants deactivates grants whose expiry has passed and returns the
// affected user ids.
func (r *PGRepository) ExpireGrants(ctx context.Context, now time.Time) ([]string, error) {
	stmt, args, err := db.Builder().Update("user_permissions").
		Set("active", false).
		Set("revoked_at", now).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		Suffix("RETURNING user_id::text").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: expire grants: %w", err)
	}
	defer rows.Close()
	seen := make(map[string]struct{})
	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var _ Repository = (*PGRepository)(nil)
