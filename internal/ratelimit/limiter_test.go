package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Store{"memory": NewMemoryStore(), "redis": NewRedisStore(client, "")}
}

func TestAllowsExactlyMaxPerWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := &stepClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
			limiter := NewLimiter(store, map[Class]Rule{ClassAPI: {Max: 5, Window: 60 * time.Second}}, Options{}).WithClock(clock.Now)
			ctx := context.Background()

			for i := 1; i <= 5; i++ {
				d, err := limiter.Allow(ctx, ClassAPI, "ip:1.2.3.4")
				require.NoError(t, err)
				assert.True(t, d.Allowed, "request %d", i)
				assert.Equal(t, 5-i, d.Remaining)
				clock.Advance(time.Second)
			}

			d, err := limiter.Allow(ctx, ClassAPI, "ip:1.2.3.4")
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Zero(t, d.Remaining)
			assert.Greater(t, d.RetryAfter, time.Duration(0))
			if name == "memory" {
				assert.Equal(t, 55*time.Second, d.RetryAfter)
			}

			other, err := limiter.Allow(ctx, ClassAPI, "ip:5.6.7.8")
			require.NoError(t, err)
			assert.True(t, other.Allowed, "identities are counted separately")
		})
	}
}

func TestWindowResetsInMemory(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	limiter := NewLimiter(store, map[Class]Rule{ClassAuth: {Max: 2, Window: time.Minute}}, Options{}).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := limiter.Allow(ctx, ClassAuth, "ip:1.2.3.4")
		require.True(t, d.Allowed)
	}
	d, _ := limiter.Allow(ctx, ClassAuth, "ip:1.2.3.4")
	require.False(t, d.Allowed)

	clock.Advance(time.Minute)
	d, _ = limiter.Allow(ctx, ClassAuth, "ip:1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	assert.Zero(t, store.Cleanup(clock.Now()))
	assert.Equal(t, 1, store.Cleanup(clock.Now().Add(time.Minute)))
	assert.Zero(t, store.Len())
}

func TestWindowResetsInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewLimiter(NewRedisStore(client, "rl:"), map[Class]Rule{ClassUpload: {Max: 1, Window: 10 * time.Minute}}, Options{})
	ctx := context.Background()

	d, err := limiter.Allow(ctx, ClassUpload, "user:u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.True(t, mr.Exists("rl:upload:user:u1"))

	d, err = limiter.Allow(ctx, ClassUpload, "user:u1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.LessOrEqual(t, d.RetryAfter, 10*time.Minute)

	mr.FastForward(10 * time.Minute)
	d, err = limiter.Allow(ctx, ClassUpload, "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRetryAfterRounding(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, retryAfter(now.Add(2100*time.Millisecond), now))
	assert.Equal(t, 2*time.Second, retryAfter(now.Add(2*time.Second), now))
	assert.Equal(t, time.Second, retryAfter(now.Add(10*time.Millisecond), now))
	assert.Equal(t, time.Second, retryAfter(now.Add(-time.Second), now))
}

func TestUnconfiguredClassIsUnlimited(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), map[Class]Rule{}, Options{})
	for i := 0; i < 100; i++ {
		d, err := limiter.Allow(context.Background(), ClassMutation, "ip:1.1.1.1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestHandlerRejectsWithEnvelope(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), map[Class]Rule{ClassAuth: {Max: 1, Window: time.Minute}}, Options{})
	handler := limiter.Handler(ClassAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "1.2.3.4:5555"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	var body httpx.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, MsgTooManyRequests, body.Error)
}

func TestAutoClassifiesMutations(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), map[Class]Rule{
		ClassAPI:      {Max: 10, Window: time.Minute},
		ClassMutation: {Max: 1, Window: time.Minute},
	}, Options{})
	handler := limiter.Auto()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(method string) int {
		req := httptest.NewRequest(method, "/api/tasks", nil)
		req = req.WithContext(rbac.WithPrincipal(req.Context(), rbac.Subject{ID: "u1", Role: rbac.RoleMember}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPatch))
	assert.Equal(t, http.StatusOK, do(http.MethodGet))
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("redis down")
}

func TestHandlerFailsOpen(t *testing.T) {
	limiter := NewLimiter(brokenStore{}, map[Class]Rule{ClassAPI: {Max: 1, Window: time.Minute}}, Options{})
	handler := limiter.Handler(ClassAPI)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/clubs", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:443"
	assert.Equal(t, "ip:10.0.0.7", Identity(req))

	req = req.WithContext(rbac.WithPrincipal(req.Context(), rbac.Subject{ID: "u9", Role: rbac.RoleMember}))
	assert.Equal(t, "user:u9", Identity(req))
}
