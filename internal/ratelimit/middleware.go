package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
)

// MsgTooManyRequests is the body of a 429 response.
const MsgTooManyRequests = "too many requests"

// Handler limits requests against class, keyed by user id when
// authenticated and by client IP otherwise.
func (l *Limiter) Handler(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.serve(w, r, next, class)
		})
	}
}

// Auto limits mutations against ClassMutation and everything else against
// ClassAPI.
func (l *Limiter) Auto() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := ClassAPI
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				class = ClassMutation
			}
			l.serve(w, r, next, class)
		})
	}
}

func (l *Limiter) serve(w http.ResponseWriter, r *http.Request, next http.Handler, class Class) {
	decision, err := l.Allow(r.Context(), class, Identity(r))
	if err != nil {
		l.logger.Warn("rate limit store error", slog.String("class", string(class)), slog.Any("error", err))
		l.metrics.FailOpen("ratelimit")
		next.ServeHTTP(w, r)
		return
	}
	if decision.Limit > 0 {
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
		httpx.Fail(w, http.StatusTooManyRequests, MsgTooManyRequests)
		return
	}
	next.ServeHTTP(w, r)
}

// Identity returns the user id of the authenticated principal, or
// "ip:<addr>" for anonymous requests.
func Identity(r *http.Request) string {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return "user:" + p.GetID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
