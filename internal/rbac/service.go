package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clubspace/clubspace/internal/identity"
	"github.com/clubspace/clubspace/internal/observability"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

// Options tunes the Service.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Audit     *shared.AuditLogger
}

// Service evaluates, grants and revokes permissions.
type Service struct {
	repo    Repository
	cache   *expirable.LRU[string, PermissionSet]
	logger  *slog.Logger
	metrics *observability.Metrics
	audit   *shared.AuditLogger
	now     func() time.Time
}

// NewService constructs a Service backed by repo.
func NewService(repo Repository, opts Options) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		cache:   expirable.NewLRU[string, PermissionSet](opts.CacheSize, nil, opts.CacheTTL),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		audit:   opts.Audit,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EffectivePermissions returns the cached or freshly merged permission set.
func (s *Service) EffectivePermissions(ctx context.Context, p Principal) (PermissionSet, error) {
	if p == nil || p.GetID() == "" {
		return PermissionSet{}, httpx.ErrUnauthorized
	}
	if set, ok := s.cache.Get(p.GetID()); ok && set.Role == p.GetRole() {
		s.metrics.CacheLookup("permissions", true)
		return set, nil
	}
	s.metrics.CacheLookup("permissions", false)
	floor, err := s.repo.RolePermissionNames(ctx, p.GetRole())
	if err != nil {
		return PermissionSet{}, err
	}
	grants, err := s.repo.ActiveGrants(ctx, p.GetID(), s.now())
	if err != nil {
		return PermissionSet{}, err
	}
	set := NewPermissionSet(p.GetRole(), floor, grants)
	s.cache.Add(p.GetID(), set)
	return set, nil
}

// Check returns nil when p holds name in scope, httpx.ErrForbidden when it
// does not, or the read error.
func (s *Service) Check(ctx context.Context, p Principal, name string, scope Scope) error {
	if p == nil || p.GetID() == "" {
		return httpx.ErrUnauthorized
	}
	if p.GetRole() == RoleAdmin {
		s.metrics.PermissionCheck("allowed")
		return nil
	}
	set, err := s.EffectivePermissions(ctx, p)
	if err != nil {
		s.metrics.PermissionCheck("error")
		return fmt.Errorf("rbac: load permissions: %w", err)
	}
	if !set.Allows(name, scope, s.now()) {
		s.metrics.PermissionCheck("denied")
		return httpx.ErrForbidden
	}
	s.metrics.PermissionCheck("allowed")
	return nil
}

// HasPermission reports whether p holds name in scope. Read failures deny.
func (s *Service) HasPermission(ctx context.Context, p Principal, name string, scope Scope) bool {
	err := s.Check(ctx, p, name, scope)
	if err != nil && !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrUnauthorized) {
		s.logger.Error("permission check failed", slog.String("permission", name), slog.String("scope", scope.String()), slog.Any("error", err))
	}
	return err == nil
}

// GrantInput describes a new grant.
type GrantInput struct {
	UserID     string     `json:"user_id" validate:"required,uuid"`
	Permission string     `json:"permission" validate:"required,max=64"`
	ClubID     string     `json:"club_id,omitempty" validate:"omitempty,uuid"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	GrantedBy  string     `json:"-"`
}

// Grant gives the user an individual permission.
func (s *Service) Grant(ctx context.Context, in GrantInput) (UserPermission, error) {
	name := normalize(in.Permission)
	perm, err := s.repo.PermissionByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return UserPermission{}, ErrUnknownPermission
		}
		return UserPermission{}, fmt.Errorf("rbac: lookup permission: %w", err)
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return UserPermission{}, httpx.Invalid("expires_at must be in the future")
	}
	grant, err := s.repo.InsertGrant(ctx, UserPermission{
		UserID:       in.UserID,
		PermissionID: perm.ID,
		Permission:   perm.Name,
		GrantedBy:    in.GrantedBy,
		GrantedAt:    now,
		ExpiresAt:    in.ExpiresAt,
		ClubID:       in.ClubID,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return UserPermission{}, ErrAlreadyGranted
		}
		if db.IsForeignKeyViolation(err) {
			return UserPermission{}, fmt.Errorf("unknown user or club: %w", httpx.ErrNotFound)
		}
		return UserPermission{}, fmt.Errorf("rbac: insert grant: %w", err)
	}
	s.Invalidate(in.UserID)
	s.record(ctx, in.GrantedBy, "permission.grant", in.UserID, map[string]any{"permission": perm.Name, "club_id": in.ClubID})
	return grant, nil
}

// RevokeInput identifies the grant to revoke.
type RevokeInput struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	Permission string `json:"permission" validate:"required,max=64"`
	ClubID     string `json:"club_id,omitempty" validate:"omitempty,uuid"`
	RevokedBy  string `json:"-"`
}

// Revoke soft-deactivates the matching active grant.
func (s *Service) Revoke(ctx context.Context, in RevokeInput) error {
	name := normalize(in.Permission)
	perm, err := s.repo.PermissionByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrUnknownPermission
		}
		return fmt.Errorf("rbac: lookup permission: %w", err)
	}
	n, err := s.repo.DeactivateGrant(ctx, in.UserID, perm.ID, in.ClubID, in.RevokedBy, s.now())
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	s.Invalidate(in.UserID)
	s.record(ctx, in.RevokedBy, "permission.revoke", in.UserID, map[string]any{"permission": perm.Name, "club_id": in.ClubID})
	return nil
}

// ListGrants returns the user's active, unexpired grants.
func (s *Service) ListGrants(ctx context.Context, userID string) ([]UserPermission, error) {
	return s.repo.ActiveGrants(ctx, userID, s.now())
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// PermissionInput describes a new catalog entry.
type PermissionInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	Category    string `json:"category" validate:"required,max=64"`
}

// CreatePermission adds an active permission to the catalog.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	p, err := s.repo.CreatePermission(ctx, Permission{
		Name:        normalize(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Active:      true,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, fmt.Errorf("%w: permission name taken", httpx.ErrDuplicate)
		}
		return Permission{}, err
	}
	return p, nil
}

// ListRolePermissions returns the role floor mappings.
func (s *Service) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	return s.repo.ListRolePermissions(ctx)
}

// SetRolePermissions replaces the permission floor of a role.
func (s *Service) SetRolePermissions(ctx context.Context, role Role, names []string) error {
	if role == RoleAdmin {
		return httpx.Invalid("admin permissions are implicit")
	}
	current, err := s.repo.RolePermissionNames(ctx, role)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	for _, n := range current {
		existing[normalize(n)] = struct{}{}
	}
	keep := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := normalize(raw)
		keep[name] = struct{}{}
		if _, ok := existing[name]; ok {
			continue
		}
		perm, err := s.repo.PermissionByName(ctx, name)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrUnknownPermission
			}
			return err
		}
		if err := s.repo.AttachRolePermission(ctx, role, perm.ID); err != nil {
			return err
		}
	}
	for name := range existing {
		if _, ok := keep[name]; ok {
			continue
		}
		perm, err := s.repo.PermissionByName(ctx, name)
		if err != nil {
			return err
		}
		if err := s.repo.DetachRolePermission(ctx, role, perm.ID); err != nil {
			return err
		}
	}
	s.InvalidateAll()
	return nil
}

// ExpireGrants deactivates grants past their expiry and drops the affected
// cached sets. It returns the number of users affected.
func (s *Service) ExpireGrants(ctx context.Context) (int, error) {
	users, err := s.repo.ExpireGrants(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, id := range users {
		s.Invalidate(id)
	}
	return len(users), nil
}

// Invalidate drops the cached permission set for a user.
func (s *Service) Invalidate(userID string) {
	s.cache.Remove(userID)
}

// InvalidateAll drops every cached permission set.
func (s *Service) InvalidateAll() {
	s.cache.Purge()
}

// Subscribe drops cached sets whenever identity events touch a user.
func (s *Service) Subscribe(bus *identity.EventBus) {
	bus.Subscribe(func(ctx context.Context, e identity.Event) error {
		s.Invalidate(e.UserID)
		return nil
	}, identity.EventSignedIn, identity.EventSignedOut, identity.EventRoleChanged)
}

func (s *Service) record(ctx context.Context, actor, action, userID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: "user_permissions", EntityID: userID, Meta: meta}); err != nil {
		s.logger.Warn("audit permission change", slog.String("action", action), slog.Any("error", err))
	}
}
