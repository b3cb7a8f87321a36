// Package apicache is a tag-aware response cache for read endpoints.
package apicache

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/clubspace/clubspace/internal/observability"
)

// ErrMiss is returned by Store.Get when the key is absent.
var ErrMiss = errors.New("apicache: miss")

// Entry is a cached response payload.
type Entry struct {
	Body        []byte        `json:"body"`
	Status      int           `json:"status"`
	ContentType string        `json:"content_type"`
	StoredAt    time.Time     `json:"stored_at"`
	TTL         time.Duration `json:"ttl"`
	Tags        []string      `json:"tags"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Store persists entries and their tag registrations.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, keys ...string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
}

// Options tunes a Cache.
type Options struct {
	DefaultTTL time.Duration
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Cache wraps a Store with TTL checks and metrics.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// New constructs a Cache over store.
func New(store Store, opts Options) *Cache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{store: store, defaultTTL: opts.DefaultTTL, logger: opts.Logger, metrics: opts.Metrics, now: time.Now}
}

// WithClock overrides the cache clock. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the entry when it is fresh. Stale entries are evicted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		c.metrics.CacheLookup("api", false)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if !entry.Fresh(c.now()) {
		c.metrics.CacheLookup("api", false)
		return Entry{}, false, c.store.Delete(ctx, key)
	}
	c.metrics.CacheLookup("api", true)
	return entry, true, nil
}

// Set stores entry under key. A zero ttl uses the default.
func (c *Cache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration, tags ...string) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry.StoredAt = c.now()
	entry.TTL = ttl
	entry.Tags = dedupe(tags)
	return c.store.Set(ctx, key, entry)
}

// InvalidateTag removes every entry registered under tag.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	return c.store.InvalidateTag(ctx, tag)
}

// InvalidatePattern removes every key matching the glob pattern.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	return c.store.InvalidatePattern(ctx, pattern)
}

// Key builds endpoint:identity:role:querystring. The query is canonicalised
// by sorted key order.
func Key(endpoint, identity, role string, query url.Values) string {
	if identity == "" {
		identity = "anon"
	}
	if role == "" {
		role = "none"
	}
	return strings.Join([]string{endpoint, identity, role, query.Encode()}, ":")
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
