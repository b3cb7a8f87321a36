package notifications

import (
	"context"
	"log/slog"
	"strings"

	"github.com/clubspace/clubspace/internal/shared"
)

// RepositoryPort defines data access methods for notifications.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	InsertMany(ctx context.Context, msgs []Message) (int64, error)
	InsertForClub(ctx context.Context, clubID string, msg Message, skipUserID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Service handles notification delivery and inbox state.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns a page of the user's inbox.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Notification, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, filter.Pagination(total), nil
}

// UnreadCount counts unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead marks one notification read. Other users' notifications are
// reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	ok, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks the whole inbox read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Send delivers an announcement from senderID to explicit users or a club.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (int64, error) {
	msg := Message{Kind: KindAnnouncement, Title: strings.TrimSpace(in.Title), Body: in.Body, Link: in.Link, SenderID: senderID}
	if in.ClubID != "" {
		return s.NotifyClub(ctx, in.ClubID, msg, "")
	}
	seen := make(map[string]struct{}, len(in.UserIDs))
	msgs := make([]Message, 0, len(in.UserIDs))
	for _, id := range in.UserIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m := msg
		m.UserID = id
		msgs = append(msgs, m)
	}
	return s.repo.InsertMany(ctx, msgs)
}

// Notify delivers messages to individual users.
func (s *Service) Notify(ctx context.Context, msgs ...Message) error {
	n, err := s.repo.InsertMany(ctx, msgs)
	if err != nil {
		return err
	}
	s.logger.Debug("notifications delivered", slog.Int64("count", n))
	return nil
}

// NotifyClub delivers msg to every club member except skipUserID.
func (s *Service) NotifyClub(ctx context.Context, clubID string, msg Message, skipUserID string) (int64, error) {
	n, err := s.repo.InsertForClub(ctx, clubID, msg, skipUserID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("club notification fan-out", slog.String("club_id", clubID), slog.String("kind", msg.Kind), slog.Int64("count", n))
	return n, nil
}
