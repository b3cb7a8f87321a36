package auth

import (
	"time"

	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/view"
)

// Profile is the application record for an identity provider user.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated actor with its merged permissions.
type Principal struct {
	UserID      string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	Role        rbac.Role `json:"role"`
	Permissions []string  `json:"permissions"`
	LoadedAt    time.Time `json:"-"`
}

func (p *Principal) GetID() string      { return p.UserID }
func (p *Principal) GetRole() rbac.Role { return p.Role }

// ViewUser projects the principal for templates.
func (p *Principal) ViewUser() *view.CurrentUser {
	if p == nil {
		return nil
	}
	name := p.FullName
	if name == "" {
		name = p.Email
	}
	return &view.CurrentUser{
		ID:          p.UserID,
		Name:        name,
		Email:       p.Email,
		Role:        string(p.Role),
		Permissions: p.Permissions,
	}
}
