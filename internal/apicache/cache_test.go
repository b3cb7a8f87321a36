package apicache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/rbac"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *stepClock {
	return &stepClock{now: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, "test:"),
	}
}

func TestGetHonoursTTL(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newClock()
			cache := New(store, Options{}).WithClock(clock.Now)
			ctx := context.Background()

			require.NoError(t, cache.Set(ctx, "k", Entry{Body: []byte("v"), Status: 200}, 10*time.Second))

			clock.Advance(9 * time.Second)
			entry, ok, err := cache.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v"), entry.Body)

			clock.Advance(time.Second)
			_, ok, err = cache.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "entry at exactly ttl is stale")

			_, err = store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrMiss, "stale entry is evicted on read")
		})
	}
}

func TestInvalidateTag(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			cache := New(store, Options{})
			ctx := context.Background()

			require.NoError(t, cache.Set(ctx, "/api/clubs:u1:member:", Entry{Status: 200}, 0, "clubs"))
			require.NoError(t, cache.Set(ctx, "/api/clubs/c1:u1:member:", Entry{Status: 200}, 0, "clubs"))
			require.NoError(t, cache.Set(ctx, "/api/tasks:u1:member:", Entry{Status: 200}, 0, "tasks"))

			n, err := cache.InvalidateTag(ctx, "clubs")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, _ := cache.Get(ctx, "/api/clubs:u1:member:")
			assert.False(t, ok)
			_, ok, _ = cache.Get(ctx, "/api/tasks:u1:member:")
			assert.True(t, ok)

			n, err = cache.InvalidateTag(ctx, "clubs")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestInvalidatePattern(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			cache := New(store, Options{})
			ctx := context.Background()

			require.NoError(t, cache.Set(ctx, "/api/clubs:u1:member:", Entry{Status: 200}, 0))
			require.NoError(t, cache.Set(ctx, "/api/clubs/c1/members:u2:admin:page=2", Entry{Status: 200}, 0))
			require.NoError(t, cache.Set(ctx, "/api/tasks:u1:member:", Entry{Status: 200}, 0))

			n, err := cache.InvalidatePattern(ctx, "/api/clubs*")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, _ := cache.Get(ctx, "/api/tasks:u1:member:")
			assert.True(t, ok)
		})
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	clock := newClock()

	require.NoError(t, store.Set(ctx, "old", Entry{StoredAt: clock.Now(), TTL: time.Second, Tags: []string{"clubs"}}))
	require.NoError(t, store.Set(ctx, "new", Entry{StoredAt: clock.Now(), TTL: time.Hour, Tags: []string{"clubs"}}))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, store.Cleanup(clock.Now()))
	assert.Equal(t, 1, store.Len())

	n, err := store.InvalidateTag(ctx, "clubs")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "cleanup unregisters tags of dropped entries")
}

func TestKeyCanonicalisesQuery(t *testing.T) {
	a := Key("/api/tasks", "u1", "member", url.Values{"status": {"open"}, "club": {"c1"}})
	b := Key("/api/tasks", "u1", "member", url.Values{"club": {"c1"}, "status": {"open"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "/api/tasks:u1:member:club=c1&status=open", a)
	assert.Equal(t, "/api/tasks:anon:none:", Key("/api/tasks", "", "", nil))
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything/at:all", true},
		{"/api/clubs*", "/api/clubs/c1:u:r:", true},
		{"/api/clubs*", "/api/tasks:u:r:", false},
		{"*:u1:*", "/api/tasks:u1:member:", true},
		{"/api/t?sks*", "/api/tasks", true},
		{"/api/tasks", "/api/tasks:x", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchGlob(tc.pattern, tc.s), "%s ~ %s", tc.pattern, tc.s)
	}
}

func withPrincipal(r *http.Request, id string, role rbac.Role) *http.Request {
	return r.WithContext(rbac.WithPrincipal(r.Context(), rbac.Subject{ID: id, Role: role}))
}

func TestHandlerReadThroughAndInvalidation(t *testing.T) {
	cache := New(NewMemoryStore(), Options{})
	calls := 0
	handler := cache.Handler(Policy{Tag: "clubs"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	get := func(id string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/clubs?page=1", nil), id, rbac.RoleMember))
		return rr
	}

	first := get("u1")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get("u1")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, `{"success":true}`, second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	other := get("u2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"), "entries are per identity")
	assert.Equal(t, 2, calls)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/clubs", nil), "u1", rbac.RoleMember))
	require.Equal(t, http.StatusCreated, rr.Code)

	assert.Equal(t, "MISS", get("u1").Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestHandlerSkipsErrorsAndFailedMutations(t *testing.T) {
	store := NewMemoryStore()
	cache := New(store, Options{})
	status := http.StatusInternalServerError
	handler := cache.Handler(Policy{Tag: "tasks"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	assert.Zero(t, store.Len(), "non-200 responses are not cached")

	require.NoError(t, cache.Set(context.Background(), Key("/api/tasks", "", "", nil), Entry{Status: 200}, 0, "tasks"))
	status = http.StatusBadRequest
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", nil))
	assert.Equal(t, 1, store.Len(), "failed mutations keep the cache")
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (Entry, error)            { return Entry{}, errors.New("down") }
func (brokenStore) Set(context.Context, string, Entry) error              { return errors.New("down") }
func (brokenStore) Delete(context.Context, ...string) error               { return errors.New("down") }
func (brokenStore) InvalidateTag(context.Context, string) (int, error)    { return 0, errors.New("down") }
func (brokenStore) InvalidatePattern(context.Context, string) (int, error) { return 0, errors.New("down") }

func TestHandlerFailsOpen(t *testing.T) {
	cache := New(brokenStore{}, Options{})
	handler := cache.Handler(Policy{Tag: "files"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/files/f1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
