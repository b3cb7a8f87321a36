package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/apicache"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

const (
	leaderID = "6f1f1d4e-0000-4000-8000-000000000001"
	adminID  = "6f1f1d4e-0000-4000-8000-0000000000ad"
	chessID  = "6f1f1d4e-0000-4000-8000-0000000000a1"
)

type grantTable struct {
	rbac.Repository
	mu     sync.Mutex
	grants map[string][]rbac.UserPermission
}

func (g *grantTable) RolePermissionNames(context.Context, rbac.Role) ([]string, error) {
	return nil, nil
}

func (g *grantTable) ActiveGrants(_ context.Context, userID string, _ time.Time) ([]rbac.UserPermission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]rbac.UserPermission(nil), g.grants[userID]...), nil
}

func (g *grantTable) drop(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, userID)
}

func TestLeaderChangeRefreshesPermissionReads(t *testing.T) {
	grants := &grantTable{grants: map[string][]rbac.UserPermission{
		leaderID: {{UserID: leaderID, Permission: shared.PermManageClub, ClubID: chessID, Active: true}},
	}}
	perms := rbac.NewService(grants, rbac.Options{CacheTTL: time.Hour})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := apicache.New(apicache.NewMemoryStore(), apicache.Options{DefaultTTL: time.Hour, Logger: logger})

	var current rbac.Principal
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), current)))
		})
	})
	r.Route("/api/clubs", func(r chi.Router) {
		r.Use(cache.Handler(clubsAPIPolicy))
		// Stands in for a leader reassignment that revokes the old leader's grants.
		r.Put("/{clubID}/leader", func(w http.ResponseWriter, _ *http.Request) {
			grants.drop(leaderID)
			perms.Invalidate(leaderID)
			w.WriteHeader(http.StatusOK)
		})
	})
	r.Route("/api/permissions", func(r chi.Router) {
		mountPermissionsAPI(r, cache, rbac.NewPermissionsHandler(logger, perms, rbac.Middleware{Service: perms, Logger: logger}))
	})

	serve := func(p rbac.Principal, method, path string) *httptest.ResponseRecorder {
		current = p
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
		return rr
	}
	allowed := func(rr *httptest.ResponseRecorder) bool {
		t.Helper()
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Data struct {
				Allowed bool `json:"allowed"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return body.Data.Allowed
	}

	leader := rbac.Subject{ID: leaderID, Role: rbac.RoleMember}
	admin := rbac.Subject{ID: adminID, Role: rbac.RoleAdmin}
	checkPath := "/api/permissions/check?permission=MANAGE_CLUB&club_id=" + chessID
	grantsPath := "/api/permissions/users/" + leaderID

	first := serve(admin, http.MethodGet, grantsPath)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Contains(t, first.Body.String(), shared.PermManageClub)
	assert.Equal(t, "HIT", serve(admin, http.MethodGet, grantsPath).Header().Get("X-Cache"))

	check := serve(leader, http.MethodGet, checkPath)
	assert.True(t, allowed(check))
	assert.Empty(t, check.Header().Get("X-Cache"), "decisions are never cached")

	require.Equal(t, http.StatusOK, serve(admin, http.MethodPut, "/api/clubs/"+chessID+"/leader").Code)

	assert.False(t, allowed(serve(leader, http.MethodGet, checkPath)))
	after := serve(admin, http.MethodGet, grantsPath)
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	assert.NotContains(t, after.Body.String(), shared.PermManageClub)
}
