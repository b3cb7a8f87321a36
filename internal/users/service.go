package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clubspace/clubspace/internal/identity"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateRole(ctx context.Context, id string, role rbac.Role) (User, error)
}

// Service handles user administration.
type Service struct {
	repo   RepositoryPort
	events *identity.EventBus
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, events *identity.EventBus, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, events: events, audit: audit, logger: logger}
}

// ListUsers returns a page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, filter.Pagination(total), nil
}

// GetUser returns a single user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ChangeRole updates a user's role and publishes role_changed so cached
// principals and permission sets are re-derived.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID string, role rbac.Role) (User, error) {
	role, ok := rbac.ParseRole(string(role))
	if !ok {
		return User{}, httpx.Invalid("role must be one of admin, club_leader, member")
	}
	if actorID == userID && role != rbac.RoleAdmin {
		return User{}, fmt.Errorf("%w: administrators cannot demote themselves", httpx.ErrValidation)
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if current.Role == role {
		return current, nil
	}
	updated, err := s.repo.UpdateRole(ctx, userID, role)
	if err != nil {
		return User{}, err
	}
	s.events.Publish(ctx, identity.Event{Kind: identity.EventRoleChanged, UserID: userID})
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "user.role_changed",
		Entity:   "profiles",
		EntityID: userID,
		Meta:     map[string]any{"from": string(current.Role), "to": string(role)},
	}); err != nil {
		s.logger.Warn("audit role change", slog.String("user_id", userID), slog.Any("error", err))
	}
	s.logger.Info("role changed", slog.String("user_id", userID), slog.String("role", string(role)), slog.String("actor_id", actorID))
	return updated, nil
}
