package clubs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// scopedGrants hands out grants from a fixed table.
type scopedGrants struct {
	rbac.Repository
	grants map[string][]rbac.UserPermission
}

func (scopedGrants) RolePermissionNames(context.Context, rbac.Role) ([]string, error) {
	return nil, nil
}

func (s scopedGrants) ActiveGrants(_ context.Context, userID string, _ time.Time) ([]rbac.UserPermission, error) {
	return s.grants[userID], nil
}

func newAPIRouter(t *testing.T, principal rbac.Principal, repo RepositoryPort, grants map[string][]rbac.UserPermission) http.Handler {
	t.Helper()
	perms := rbac.NewService(scopedGrants{grants: grants}, rbac.Options{})
	h := NewHandler(nil, NewService(repo, nil, nil, nil), nil, nil, rbac.Middleware{Service: perms})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), principal)))
		})
	})
	r.Route("/api/clubs", h.MountAPI)
	return r
}

func TestClubScopedManagePermission(t *testing.T) {
	repo := newStubRepo(
		Club{ID: "c1", Name: "Chess", LeaderID: "leader-1"},
		Club{ID: "c2", Name: "Drama"},
	)
	grants := map[string][]rbac.UserPermission{
		"leader-1": {{UserID: "leader-1", Permission: shared.PermManageClub, ClubID: "c1", Active: true}},
	}
	router := newAPIRouter(t, rbac.Subject{ID: "leader-1", Role: rbac.RoleClubLeader}, repo, grants)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/api/clubs/c1", strings.NewReader(`{"name":"Chess Club"}`)))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Chess Club", repo.clubs["c1"].Name)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/api/clubs/c2", strings.NewReader(`{"name":"Improv"}`)))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Drama", repo.clubs["c2"].Name)
}

func TestMemberCannotCreateClub(t *testing.T) {
	router := newAPIRouter(t, rbac.Subject{ID: "u1", Role: rbac.RoleMember}, newStubRepo(), nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"Chess"}`)))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestAdminCreateClubValidates(t *testing.T) {
	repo := newStubRepo()
	router := newAPIRouter(t, rbac.Subject{ID: "admin-1", Role: rbac.RoleAdmin}, repo, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "name must be at least 3 characters")

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"Chess"}`)))
	assert.Equal(t, http.StatusCreated, res.Code)
	assert.Len(t, repo.clubs, 1)
}

func TestJoinThroughAPI(t *testing.T) {
	repo := newStubRepo(Club{ID: "c1", Name: "Chess"})
	router := newAPIRouter(t, rbac.Subject{ID: "u1", Role: rbac.RoleMember}, repo, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/clubs/c1/members", nil))
	assert.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/clubs/c1/members", nil))
	assert.Equal(t, http.StatusConflict, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/api/clubs/c1/members/me", nil))
	assert.Equal(t, http.StatusNoContent, res.Code)
}
