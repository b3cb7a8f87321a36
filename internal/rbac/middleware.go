package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubspace/clubspace/internal/platform/httpx"
)

type principalKey struct{}

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p != nil && p.GetID() != ""
}

// ScopeFunc resolves the permission scope for a request.
type ScopeFunc func(r *http.Request) Scope

// Global always resolves to GlobalScope.
func Global(*http.Request) Scope { return GlobalScope() }

// ClubFromURLParam scopes the check to the club id in the named route param.
func ClubFromURLParam(param string) ScopeFunc {
	return func(r *http.Request) Scope {
		if id := chi.URLParam(r, param); id != "" {
			return ClubScope(id)
		}
		return GlobalScope()
	}
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePermission lets the request through when the principal holds name
// in the resolved scope. Lookup failures deny.
func (m Middleware) RequirePermission(name string, scope ScopeFunc) func(http.Handler) http.Handler {
	if scope == nil {
		scope = Global
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
				return
			}
			err := m.Service.Check(r.Context(), p, name, scope(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, httpx.ErrForbidden):
				httpx.Fail(w, http.StatusForbidden, httpx.MsgForbidden)
			default:
				m.logger().Error("rbac require permission", slog.String("permission", name), slog.Any("error", err))
				httpx.Fail(w, http.StatusForbidden, httpx.MsgForbidden)
			}
		})
	}
}

// RequireRole lets the request through when the principal has one of roles.
// Admin always passes.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
				return
			}
			if _, ok := allowed[p.GetRole()]; ok || p.GetRole() == RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Fail(w, http.StatusForbidden, httpx.MsgForbidden)
		})
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
