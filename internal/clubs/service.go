package clubs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// RepositoryPort defines data access methods for clubs.
type RepositoryPort interface {
	ListClubs(ctx context.Context, filter ListFilter) ([]Club, int, error)
	GetClub(ctx context.Context, id string) (Club, error)
	CreateClub(ctx context.Context, in ClubInput, creatorID string) (Club, error)
	UpdateClub(ctx context.Context, id string, in ClubInput) (Club, error)
	DeleteClub(ctx context.Context, id string) error
	ListMembers(ctx context.Context, clubID string) ([]Member, error)
	MemberIDs(ctx context.Context, clubID string) ([]string, error)
	GetMembership(ctx context.Context, clubID, userID string) (Member, error)
	AddMember(ctx context.Context, clubID, userID string) error
	RemoveMember(ctx context.Context, clubID, userID string) (bool, error)
	SetLeader(ctx context.Context, clubID, userID string) (string, error)
}

// Permissions grants and revokes the club-scoped permissions a leader holds.
type Permissions interface {
	Grant(ctx context.Context, in rbac.GrantInput) (rbac.UserPermission, error)
	Revoke(ctx context.Context, in rbac.RevokeInput) error
}

// leaderPermissions are granted in club scope to whoever leads the club.
var leaderPermissions = []string{
	shared.PermManageClub,
	shared.PermManageTasks,
	shared.PermManageMeetings,
	shared.PermCreateTask,
	shared.PermCreateMeeting,
}

// Service handles club business logic.
type Service struct {
	repo   RepositoryPort
	perms  Permissions
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms Permissions, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, audit: audit, logger: logger}
}

// ListClubs returns a page of clubs.
func (s *Service) ListClubs(ctx context.Context, filter ListFilter) ([]Club, shared.Pagination, error) {
	clubs, total, err := s.repo.ListClubs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return clubs, filter.Pagination(total), nil
}

// GetClub returns one club.
func (s *Service) GetClub(ctx context.Context, id string) (Club, error) {
	club, err := s.repo.GetClub(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Club{}, ErrNotFound
	}
	return club, err
}

// CreateClub creates a club led by its creator.
func (s *Service) CreateClub(ctx context.Context, actorID string, in ClubInput) (Club, error) {
	club, err := s.repo.CreateClub(ctx, in, actorID)
	if db.IsUniqueViolation(err) {
		return Club{}, ErrNameTaken
	}
	if err != nil {
		return Club{}, err
	}
	s.grantLeader(ctx, club.ID, actorID, actorID)
	s.record(ctx, actorID, "club.create", club.ID, map[string]any{"name": club.Name})
	return club, nil
}

// UpdateClub edits a club.
func (s *Service) UpdateClub(ctx context.Context, actorID, id string, in ClubInput) (Club, error) {
	club, err := s.repo.UpdateClub(ctx, id, in)
	if db.IsUniqueViolation(err) {
		return Club{}, ErrNameTaken
	}
	if err != nil {
		return Club{}, err
	}
	s.record(ctx, actorID, "club.update", id, nil)
	return club, nil
}

// DeleteClub removes a club.
func (s *Service) DeleteClub(ctx context.Context, actorID, id string) error {
	if err := s.repo.DeleteClub(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "club.delete", id, nil)
	return nil
}

// Members lists the club roster.
func (s *Service) Members(ctx context.Context, clubID string) ([]Member, error) {
	if _, err := s.GetClub(ctx, clubID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, clubID)
}

// MemberIDs lists the user ids enrolled in a club.
func (s *Service) MemberIDs(ctx context.Context, clubID string) ([]string, error) {
	return s.repo.MemberIDs(ctx, clubID)
}

// IsMember reports whether userID belongs to the club.
func (s *Service) IsMember(ctx context.Context, clubID, userID string) (bool, error) {
	_, err := s.repo.GetMembership(ctx, clubID, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Join enrols userID as a regular member.
func (s *Service) Join(ctx context.Context, clubID, userID string) error {
	if _, err := s.GetClub(ctx, clubID); err != nil {
		return err
	}
	err := s.repo.AddMember(ctx, clubID, userID)
	switch {
	case db.IsUniqueViolation(err):
		return ErrAlreadyMember
	case db.IsForeignKeyViolation(err):
		return ErrNotFound
	}
	return err
}

// Leave removes the caller from a club. Leaders hand over first.
func (s *Service) Leave(ctx context.Context, clubID, userID string) error {
	return s.removeMember(ctx, userID, clubID, userID)
}

// RemoveMember removes another user from a club.
func (s *Service) RemoveMember(ctx context.Context, actorID, clubID, userID string) error {
	return s.removeMember(ctx, actorID, clubID, userID)
}

func (s *Service) removeMember(ctx context.Context, actorID, clubID, userID string) error {
	m, err := s.repo.GetMembership(ctx, clubID, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}
	if m.MemberRole == MemberRoleLeader {
		return ErrLeaderCannotLeave
	}
	removed, err := s.repo.RemoveMember(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotMember
	}
	if actorID != userID {
		s.record(ctx, actorID, "club.member_removed", clubID, map[string]any{"user_id": userID})
	}
	return nil
}

// AssignLeader hands club leadership to userID and moves the club-scoped
// leader permissions with it.
func (s *Service) AssignLeader(ctx context.Context, actorID, clubID, userID string) (Club, error) {
	previous, err := s.repo.SetLeader(ctx, clubID, userID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Club{}, ErrNotFound
		}
		return Club{}, err
	}
	if previous != userID {
		s.grantLeader(ctx, clubID, userID, actorID)
		if previous != "" {
			s.revokeLeader(ctx, clubID, previous, actorID)
		}
	}
	s.record(ctx, actorID, "club.leader_assigned", clubID, map[string]any{"from": previous, "to": userID})
	return s.GetClub(ctx, clubID)
}

func (s *Service) grantLeader(ctx context.Context, clubID, userID, actorID string) {
	if s.perms == nil {
		return
	}
	for _, name := range leaderPermissions {
		_, err := s.perms.Grant(ctx, rbac.GrantInput{UserID: userID, Permission: name, ClubID: clubID, GrantedBy: actorID})
		if err != nil && !errors.Is(err, rbac.ErrAlreadyGranted) {
			s.logger.Warn("grant leader permission", slog.String("club_id", clubID), slog.String("permission", name), slog.Any("error", err))
		}
	}
}

func (s *Service) revokeLeader(ctx context.Context, clubID, userID, actorID string) {
	if s.perms == nil {
		return
	}
	for _, name := range leaderPermissions {
		err := s.perms.Revoke(ctx, rbac.RevokeInput{UserID: userID, Permission: name, ClubID: clubID, RevokedBy: actorID})
		if err != nil && !errors.Is(err, rbac.ErrGrantNotFound) {
			s.logger.Warn("revoke leader permission", slog.String("club_id", clubID), slog.String("permission", name), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, actorID, action, clubID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "clubs", EntityID: clubID, Meta: meta}); err != nil {
		s.logger.Warn("audit club change", slog.String("action", action), slog.Any("error", err))
	}
}
