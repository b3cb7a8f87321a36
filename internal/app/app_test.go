package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/shared"
)

func validConfig() Config {
	return Config{
		SessionSecret:     "s",
		CSRFSecret:        "c",
		IdentityJWTSecret: "j",
		CacheBackend:      BackendMemory,
		RateLimitBackend:  BackendRedis,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.CacheBackend = "memcached"
	assert.ErrorContains(t, cfg.Validate(), "CACHE_BACKEND")

	cfg = validConfig()
	cfg.IdentityJWTSecret = ""
	assert.Error(t, cfg.Validate())

	assert.False(t, (*Config)(nil).IsProduction())
}

func TestMutationsOnly(t *testing.T) {
	var wrapped int
	mw := mutationsOnly(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped++
			next.ServeHTTP(w, r)
		})
	})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodDelete} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}
	assert.Equal(t, 3, wrapped)
}

func newStack(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := validConfig()
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         newLogger(&Config{LogFormat: "json"}, io.Discard),
		Config:         &cfg,
		SessionManager: shared.NewSessionManager(client, "clubspace_session", 0, false),
		CSRFManager:    shared.NewCSRFManager("secret"),
	})
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}

func TestCSRFRejectsFormPostWithoutToken(t *testing.T) {
	h := newStack(t)
	req := httptest.NewRequest(http.MethodPost, "/clubs", strings.NewReader("name=Chess"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCSRFSkipsBearerAPI(t *testing.T) {
	h := newStack(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	// A bearer header outside /api still needs the token.
	req = httptest.NewRequest(http.MethodPost, "/clubs", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
