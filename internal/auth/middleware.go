package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// Middleware resolves the request principal from a bearer token or the
// cookie session.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate attaches the principal to the request context when the
// credentials are valid. Anonymous requests pass through untouched.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)

		tokens, fromSession := credentials(r, sess)
		if tokens.AccessToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, refreshed, err := m.Service.Authenticate(ctx, tokens)
		if err != nil {
			if !errors.Is(err, httpx.ErrUnauthorized) {
				m.logger().Warn("authenticate request", slog.Any("error", err))
			}
			if fromSession && errors.Is(err, httpx.ErrUnauthorized) {
				sess.Clear()
			}
			next.ServeHTTP(w, r)
			return
		}
		if fromSession && refreshed.AccessToken != tokens.AccessToken {
			sess.SetTokens(refreshed)
		}
		next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(ctx, p)))
	})
}

// RequireAuth rejects anonymous API requests with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := rbac.PrincipalFromContext(r.Context()); !ok {
			httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLogin redirects anonymous page requests to the login form.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := rbac.PrincipalFromContext(r.Context()); !ok {
			target := "/auth/login?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func credentials(r *http.Request, sess *shared.Session) (shared.SessionTokens, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return shared.SessionTokens{AccessToken: strings.TrimSpace(token)}, false
		}
	}
	if sess == nil {
		return shared.SessionTokens{}, false
	}
	return sess.Tokens(), true
}

// FromContext returns the auth principal for the request, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := rbac.PrincipalFromContext(ctx)
	if !ok {
		return nil, false
	}
	ap, ok := p.(*Principal)
	return ap, ok
}
