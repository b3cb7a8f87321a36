package meetings

import (
	"fmt"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

var (
	// ErrNotFound is returned for unknown meeting ids.
	ErrNotFound = fmt.Errorf("meeting %w", httpx.ErrNotFound)
	// ErrInvalidWindow rejects meetings that end before they start.
	ErrInvalidWindow = fmt.Errorf("%w: ends_at must be after starts_at", httpx.ErrValidation)
)

// Meeting is a scheduled club gathering.
type Meeting struct {
	ID          string     `json:"id"`
	ClubID      string     `json:"club_id"`
	ClubName    string     `json:"club_name"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilter narrows meeting listings. When After is set only meetings
// starting at or after it are returned.
type ListFilter struct {
	shared.ListParams
	ClubID   string
	MemberID string
	After    *time.Time
}

// CreateInput is the payload for a new meeting.
type CreateInput struct {
	ClubID      string     `json:"club_id" validate:"required,uuid"`
	Title       string     `json:"title" validate:"required,min=3,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Location    string     `json:"location" validate:"max=200"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at"`
}

// UpdateInput patches a meeting. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=4000"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

func checkWindow(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return ErrInvalidWindow
	}
	return nil
}
