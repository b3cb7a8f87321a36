package clubs

import (
	"fmt"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

// Membership roles within a single club.
const (
	MemberRoleLeader = "leader"
	MemberRoleMember = "member"
)

var (
	// ErrNotFound is returned for unknown club ids.
	ErrNotFound = fmt.Errorf("club %w", httpx.ErrNotFound)
	// ErrAlreadyMember is returned when joining a club twice.
	ErrAlreadyMember = fmt.Errorf("%w: already a member of this club", httpx.ErrDuplicate)
	// ErrNameTaken is returned when another club already uses the name.
	ErrNameTaken = fmt.Errorf("%w: a club with this name already exists", httpx.ErrDuplicate)
	// ErrNotMember is returned when leaving a club the user never joined.
	ErrNotMember = fmt.Errorf("membership %w", httpx.ErrNotFound)
	// ErrLeaderCannotLeave guards against orphaning a club.
	ErrLeaderCannotLeave = fmt.Errorf("%w: the club leader must hand over before leaving", httpx.ErrValidation)
)

// Club is a community group.
type Club struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	LeaderID    string    `json:"leader_id,omitempty"`
	LeaderName  string    `json:"leader_name,omitempty"`
	CreatedBy   string    `json:"created_by"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a user's membership in a club.
type Member struct {
	ClubID     string    `json:"club_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	MemberRole string    `json:"member_role"`
	JoinedAt   time.Time `json:"joined_at"`
}

// ListFilter narrows club listings.
type ListFilter struct {
	shared.ListParams
	Category string
	MemberID string
}

// ClubInput is the create/update payload.
type ClubInput struct {
	Name        string `json:"name" validate:"required,min=3,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"omitempty,max=60"`
}

// LeaderInput assigns a club leader.
type LeaderInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}
