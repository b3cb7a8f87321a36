package notifications

import (
	"fmt"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

// Notification kinds.
const (
	KindAnnouncement = "announcement"
	KindTaskAssigned = "task_assigned"
	KindMeeting      = "meeting"
	KindSystem       = "system"
)

// ErrNotFound is returned for notifications that do not exist or belong to
// someone else.
var ErrNotFound = fmt.Errorf("notification %w", httpx.ErrNotFound)

// Notification is a message delivered to one user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	SenderID  string     `json:"sender_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Read reports whether the notification has been read.
func (n Notification) Read() bool { return n.ReadAt != nil }

// Message is a notification to be delivered.
type Message struct {
	UserID   string
	Kind     string
	Title    string
	Body     string
	Link     string
	SenderID string
}

// ListFilter narrows a user's inbox.
type ListFilter struct {
	shared.ListParams
	UserID     string
	UnreadOnly bool
}

// SendInput is the payload for an explicit send. Either UserIDs or ClubID
// selects the recipients.
type SendInput struct {
	UserIDs []string `json:"user_ids" validate:"required_without=ClubID,omitempty,max=500,dive,uuid"`
	ClubID  string   `json:"club_id" validate:"required_without=UserIDs,omitempty,uuid"`
	Title   string   `json:"title" validate:"required,max=200"`
	Body    string   `json:"body" validate:"max=4000"`
	Link    string   `json:"link" validate:"omitempty,max=500"`
}
