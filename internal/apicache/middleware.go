package apicache

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/clubspace/clubspace/internal/rbac"
)

// Policy configures caching for one resource group.
type Policy struct {
	// Tag is registered on every cached GET response of the group.
	Tag string
	// TTL overrides the cache default when non-zero.
	TTL time.Duration
	// Invalidates lists the tags dropped after a successful mutation. The
	// group's own Tag is always included.
	Invalidates []string
}

// Handler read-throughs GET requests and invalidates tags after 2xx
// mutations. Store failures are logged and the request proceeds uncached.
func (c *Cache) Handler(policy Policy) func(http.Handler) http.Handler {
	invalidates := dedupe(append([]string{policy.Tag}, policy.Invalidates...))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				c.serveCached(w, r, next, policy)
				return
			}
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= 200 && rec.status < 300 {
				c.invalidate(r.Context(), invalidates)
			}
		})
	}
}

func (c *Cache) serveCached(w http.ResponseWriter, r *http.Request, next http.Handler, policy Policy) {
	id, role := "", ""
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		id, role = p.GetID(), string(p.GetRole())
	}
	key := Key(r.URL.Path, id, role, r.URL.Query())
	ctx := r.Context()

	if r.Header.Get("Cache-Control") != "no-cache" {
		entry, ok, err := c.Get(ctx, key)
		if err != nil {
			c.failOpen("read", err)
		}
		if ok {
			if entry.ContentType != "" {
				w.Header().Set("Content-Type", entry.ContentType)
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.Status)
			_, _ = w.Write(entry.Body)
			return
		}
	}

	w.Header().Set("X-Cache", "MISS")
	rec := &recorder{ResponseWriter: w, status: http.StatusOK, capture: true}
	next.ServeHTTP(rec, r)
	if rec.status != http.StatusOK {
		return
	}
	entry := Entry{Body: rec.body.Bytes(), Status: rec.status, ContentType: rec.Header().Get("Content-Type")}
	if err := c.Set(ctx, key, entry, policy.TTL, policy.Tag); err != nil {
		c.failOpen("write", err)
	}
}

func (c *Cache) invalidate(ctx context.Context, tags []string) {
	for _, tag := range tags {
		if _, err := c.InvalidateTag(ctx, tag); err != nil {
			c.failOpen("invalidate", err)
		}
	}
}

func (c *Cache) failOpen(op string, err error) {
	c.logger.Warn("api cache store error", slog.String("op", op), slog.Any("error", err))
	c.metrics.FailOpen("apicache")
}

type recorder struct {
	http.ResponseWriter
	status      int
	capture     bool
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.capture {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}
