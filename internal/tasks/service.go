package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/clubspace/clubspace/internal/notifications"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// RepositoryPort defines data access methods for tasks.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Task, int, error)
	Get(ctx context.Context, id string) (Task, error)
	Insert(ctx context.Context, in CreateInput, createdBy string) (string, error)
	Update(ctx context.Context, id string, in UpdateInput) error
	Delete(ctx context.Context, id string) error
	StatusCounts(ctx context.Context, assigneeID string) (map[string]int, error)
}

// Authorizer checks scoped permissions.
type Authorizer interface {
	Check(ctx context.Context, p rbac.Principal, name string, scope rbac.Scope) error
}

// Membership answers club membership questions.
type Membership interface {
	IsMember(ctx context.Context, clubID, userID string) (bool, error)
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, msgs ...notifications.Message) error
}

// Service handles task business logic.
type Service struct {
	repo    RepositoryPort
	authz   Authorizer
	members Membership
	notify  Notifier
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz Authorizer, members Membership, notify Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, members: members, notify: notify, logger: logger}
}

// List returns a page of tasks.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, filter.Pagination(total), nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// StatusCounts summarises the tasks assigned to userID.
func (s *Service) StatusCounts(ctx context.Context, userID string) (map[string]int, error) {
	return s.repo.StatusCounts(ctx, userID)
}

// Create adds a task to a club. The actor needs CREATE_TASK in the club.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Task, error) {
	if err := s.authz.Check(ctx, actor, shared.PermCreateTask, rbac.ClubScope(in.ClubID)); err != nil {
		return Task{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if err := s.checkAssignee(ctx, in.ClubID, in.AssigneeID); err != nil {
		return Task{}, err
	}
	id, err := s.repo.Insert(ctx, in, actor.GetID())
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Task{}, fmt.Errorf("club %w", httpx.ErrNotFound)
		}
		return Task{}, err
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	s.notifyAssignee(ctx, actor.GetID(), task)
	return task, nil
}

// Update patches a task. Managers and the creator may change anything;
// the assignee may only move the status.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id string, in UpdateInput) (Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !s.canManage(ctx, actor, task) && !(in.statusOnly() && task.AssigneeID == actor.GetID()) {
		return Task{}, httpx.ErrForbidden
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}
	reassigned := false
	if in.AssigneeID != nil && *in.AssigneeID != task.AssigneeID {
		if err := s.checkAssignee(ctx, task.ClubID, *in.AssigneeID); err != nil {
			return Task{}, err
		}
		reassigned = *in.AssigneeID != ""
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return Task{}, err
	}
	updated, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if reassigned {
		s.notifyAssignee(ctx, actor.GetID(), updated)
	}
	return updated, nil
}

// Delete removes a task. Only managers and the creator may delete.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id string) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.canManage(ctx, actor, task) {
		return httpx.ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) canManage(ctx context.Context, actor rbac.Principal, task Task) bool {
	if task.CreatedBy == actor.GetID() {
		return true
	}
	err := s.authz.Check(ctx, actor, shared.PermManageTasks, rbac.ClubScope(task.ClubID))
	if err != nil && !errors.Is(err, httpx.ErrForbidden) {
		s.logger.Error("task permission check", slog.String("task_id", task.ID), slog.Any("error", err))
	}
	return err == nil
}

func (s *Service) checkAssignee(ctx context.Context, clubID, assigneeID string) error {
	if assigneeID == "" {
		return nil
	}
	if _, err := uuid.Parse(assigneeID); err != nil {
		return httpx.Invalid("assignee_id must be a valid uuid")
	}
	ok, err := s.members.IsMember(ctx, clubID, assigneeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssigneeNotMember
	}
	return nil
}

func (s *Service) notifyAssignee(ctx context.Context, actorID string, task Task) {
	if s.notify == nil || task.AssigneeID == "" || task.AssigneeID == actorID {
		return
	}
	msg := notifications.Message{
		UserID:   task.AssigneeID,
		Kind:     notifications.KindTaskAssigned,
		Title:    "New task: " + task.Title,
		Body:     "You were assigned a task in " + task.ClubName,
		Link:     "/#task-" + task.ID,
		SenderID: actorID,
	}
	if err := s.notify.Notify(ctx, msg); err != nil {
		s.logger.Warn("notify assignee", slog.String("task_id", task.ID), slog.Any("error", err))
	}
}
