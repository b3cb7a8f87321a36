package meetings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clubspace/clubspace/internal/notifications"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/jobs"
)

// RepositoryPort defines data access methods for meetings.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Meeting, int, error)
	Get(ctx context.Context, id string) (Meeting, error)
	Insert(ctx context.Context, in CreateInput, createdBy string) (string, error)
	Update(ctx context.Context, id string, in UpdateInput) error
	Delete(ctx context.Context, id string) error
}

// Authorizer checks scoped permissions.
type Authorizer interface {
	Check(ctx context.Context, p rbac.Principal, name string, scope rbac.Scope) error
}

// Enqueuer schedules background notification fan-out.
type Enqueuer interface {
	EnqueueNotificationFanout(ctx context.Context, payload jobs.NotificationFanoutPayload) (*asynq.TaskInfo, error)
}

// Service handles meeting business logic.
type Service struct {
	repo   RepositoryPort
	authz  Authorizer
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. queue may be nil, in which case no
// notifications are sent.
func NewService(repo RepositoryPort, authz Authorizer, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, queue: queue, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.now() }

// List returns a page of meetings.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Meeting, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, filter.Pagination(total), nil
}

// Upcoming returns meetings starting from now in the clubs userID belongs to.
func (s *Service) Upcoming(ctx context.Context, userID string, limit int) ([]Meeting, error) {
	now := s.now()
	items, _, err := s.repo.List(ctx, ListFilter{
		ListParams: shared.ListParams{Page: 1, PerPage: limit, SortBy: "starts_at", SortDir: shared.SortAsc},
		MemberID:   userID,
		After:      &now,
	})
	return items, err
}

// Get returns one meeting.
func (s *Service) Get(ctx context.Context, id string) (Meeting, error) {
	m, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Meeting{}, ErrNotFound
	}
	return m, err
}

// Create schedules a meeting. The actor needs CREATE_MEETING in the club.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Meeting, error) {
	if err := s.authz.Check(ctx, actor, shared.PermCreateMeeting, rbac.ClubScope(in.ClubID)); err != nil {
		return Meeting{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	if err := checkWindow(in.StartsAt, in.EndsAt); err != nil {
		return Meeting{}, err
	}
	id, err := s.repo.Insert(ctx, in, actor.GetID())
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Meeting{}, fmt.Errorf("club %w", httpx.ErrNotFound)
		}
		return Meeting{}, err
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	s.announce(ctx, actor.GetID(), m, "New meeting: ")
	return m, nil
}

// Update patches a meeting. Members are notified when the start moves.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id string, in UpdateInput) (Meeting, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if err := s.authorizeManage(ctx, actor, current); err != nil {
		return Meeting{}, err
	}
	start, end := current.StartsAt, current.EndsAt
	if in.StartsAt != nil {
		start = *in.StartsAt
	}
	if in.EndsAt != nil {
		end = in.EndsAt
	}
	if err := checkWindow(start, end); err != nil {
		return Meeting{}, err
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return Meeting{}, err
	}
	updated, err := s.Get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if !updated.StartsAt.Equal(current.StartsAt) {
		s.announce(ctx, actor.GetID(), updated, "Meeting rescheduled: ")
	}
	return updated, nil
}

// Delete cancels a meeting.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeManage(ctx, actor, m); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// authorizeManage allows the creator or holders of MANAGE_MEETINGS in the club.
func (s *Service) authorizeManage(ctx context.Context, actor rbac.Principal, m Meeting) error {
	if m.CreatedBy == actor.GetID() {
		return nil
	}
	return s.authz.Check(ctx, actor, shared.PermManageMeetings, rbac.ClubScope(m.ClubID))
}

func (s *Service) announce(ctx context.Context, actorID string, m Meeting, prefix string) {
	if s.queue == nil {
		return
	}
	body := m.StartsAt.UTC().Format("Mon 2 Jan 2006 15:04 MST")
	if m.Location != "" {
		body += " at " + m.Location
	}
	payload := jobs.NotificationFanoutPayload{
		ClubID:     m.ClubID,
		SkipUserID: actorID,
		Kind:       notifications.KindMeeting,
		Title:      prefix + m.Title,
		Body:       body,
		Link:       "/#meeting-" + m.ID,
		SenderID:   actorID,
	}
	if _, err := s.queue.EnqueueNotificationFanout(ctx, payload); err != nil {
		s.logger.Warn("enqueue meeting notification", slog.String("meeting_id", m.ID), slog.Any("error", err))
	}
}
