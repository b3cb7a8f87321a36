package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueNotifications carries user-facing notification delivery.
	QueueNotifications = "notifications"
	// QueueMaintenance carries periodic housekeeping.
	QueueMaintenance = "maintenance"
	// TaskNotificationFanout delivers a notification to a club or user list.
	TaskNotificationFanout = "notification:fanout"
	// TaskPermissionsExpire deactivates grants past their expiry.
	TaskPermissionsExpire = "permissions:expire"
)

// NotificationFanoutPayload describes one notification sent to many users.
// ClubID targets every member of the club; UserIDs targets users directly.
type NotificationFanoutPayload struct {
	ClubID     string   `json:"club_id,omitempty"`
	UserIDs    []string `json:"user_ids,omitempty"`
	SkipUserID string   `json:"skip_user_id,omitempty"`
	Kind       string   `json:"kind"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Link       string   `json:"link"`
	SenderID   string   `json:"sender_id,omitempty"`
}

// NewNotificationFanoutTask constructs an Asynq task.
func NewNotificationFanoutTask(payload NotificationFanoutPayload) (*asynq.Task, error) {
	if payload.ClubID == "" && len(payload.UserIDs) == 0 {
		return nil, errors.New("notification fanout: club or users required")
	}
	if payload.Title == "" {
		return nil, errors.New("notification fanout: title required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationFanout, data), nil
}

// NewPermissionsExpireTask constructs the periodic grant expiry task.
func NewPermissionsExpireTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskPermissionsExpire, nil), nil
}
