// Package ratelimit implements per-class fixed-window request limiting.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clubspace/clubspace/internal/observability"
)

// Class groups endpoints sharing one limit.
type Class string

const (
	ClassAuth     Class = "auth"
	ClassAPI      Class = "api"
	ClassMutation Class = "mutation"
	ClassUpload   Class = "upload"
)

// Rule is the window and request budget of a class.
type Rule struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store counts hits per key within fixed windows.
type Store interface {
	// Hit increments the counter for key, opening a new window of the given
	// length when none is active at now. It returns the count after the
	// increment and when the active window resets.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
}

// Options tunes a Limiter.
type Options struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Limiter applies class rules over a Store.
type Limiter struct {
	store   Store
	rules   map[Class]Rule
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLimiter constructs a Limiter.
func NewLimiter(store Store, rules map[Class]Rule, opts Options) *Limiter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Limiter{store: store, rules: rules, logger: opts.Logger, metrics: opts.Metrics, now: time.Now}
}

// WithClock overrides the limiter clock. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Rule returns the configured rule for class.
func (l *Limiter) Rule(class Class) (Rule, bool) {
	rule, ok := l.rules[class]
	return rule, ok && rule.Max > 0 && rule.Window > 0
}

// Allow records one request by identity against class. Classes without a
// rule are unlimited.
func (l *Limiter) Allow(ctx context.Context, class Class, identity string) (Decision, error) {
	rule, ok := l.Rule(class)
	if !ok {
		return Decision{Allowed: true}, nil
	}
	now := l.now()
	count, resetAt, err := l.store.Hit(ctx, Key(class, identity), rule.Window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max}, fmt.Errorf("ratelimit: %w", err)
	}
	d := Decision{Limit: rule.Max, ResetAt: resetAt}
	if count <= rule.Max {
		d.Allowed = true
		d.Remaining = rule.Max - count
		return d, nil
	}
	d.RetryAfter = retryAfter(resetAt, now)
	l.metrics.RateLimited(string(class))
	return d, nil
}

// Key builds the counter key class:identity.
func Key(class Class, identity string) string {
	return string(class) + ":" + identity
}

// retryAfter is the time left in the window rounded up to whole seconds and
// never below one second.
func retryAfter(resetAt, now time.Time) time.Duration {
	left := resetAt.Sub(now)
	secs := left / time.Second
	if left%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
