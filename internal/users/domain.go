package users

import (
	"time"

	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// User is a profile as seen by administrators.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	shared.ListParams
	Role rbac.Role
}

// ChangeRoleInput is the payload for a role change.
type ChangeRoleInput struct {
	Role string `json:"role" validate:"required,oneof=admin club_leader member"`
}
