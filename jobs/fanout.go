package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/clubspace/clubspace/internal/jobs"
	"github.com/clubspace/clubspace/internal/notifications"
)

// Notifier stores notifications for users and clubs.
type Notifier interface {
	Notify(ctx context.Context, msgs ...notifications.Message) error
	NotifyClub(ctx context.Context, clubID string, msg notifications.Message, skipUserID string) (int64, error)
}

// NotificationFanoutJob writes one notification row per recipient.
type NotificationFanoutJob struct {
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewNotificationFanoutJob initialises the fan-out handler.
func NewNotificationFanoutJob(notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationFanoutJob {
	return &NotificationFanoutJob{Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle executes the fan-out.
func (j *NotificationFanoutJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Notifier == nil {
		return errors.New("notification fanout: handler not configured")
	}
	var payload NotificationFanoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ClubID == "" && len(payload.UserIDs) == 0 {
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.String("club_id", payload.ClubID), slog.String("kind", payload.Kind))
	msg := notifications.Message{
		Kind:     payload.Kind,
		Title:    payload.Title,
		Body:     payload.Body,
		Link:     payload.Link,
		SenderID: payload.SenderID,
	}

	return j.Metrics.Run(TaskNotificationFanout, func() (int, error) {
		delivered := 0
		if payload.ClubID != "" {
			n, err := j.Notifier.NotifyClub(ctx, payload.ClubID, msg, payload.SkipUserID)
			if err != nil {
				logger.Error("club fan-out failed", slog.Any("error", err))
				return delivered, err
			}
			delivered += int(n)
		}
		if len(payload.UserIDs) > 0 {
			msgs := make([]notifications.Message, 0, len(payload.UserIDs))
			for _, id := range payload.UserIDs {
				if id == "" || id == payload.SkipUserID {
					continue
				}
				m := msg
				m.UserID = id
				msgs = append(msgs, m)
			}
			if err := j.Notifier.Notify(ctx, msgs...); err != nil {
				logger.Error("user fan-out failed", slog.Any("error", err))
				return delivered, err
			}
			delivered += len(msgs)
		}
		logger.Info("notification fan-out completed", slog.Int("delivered", delivered))
		return delivered, nil
	})
}

func (j *NotificationFanoutJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
