package view

import (
	"context"

	"github.com/clubspace/clubspace/internal/rbac"
)

// Viewer is implemented by principals that project themselves for templates.
type Viewer interface {
	ViewUser() *CurrentUser
}

// UserFromContext returns the template user for the request principal.
func UserFromContext(ctx context.Context) *CurrentUser {
	p, ok := rbac.PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	if v, ok := p.(Viewer); ok {
		return v.ViewUser()
	}
	return &CurrentUser{ID: p.GetID(), Role: string(p.GetRole())}
}
