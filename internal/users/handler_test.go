package users

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
)

type emptyGrants struct {
	rbac.Repository
}

func (emptyGrants) RolePermissionNames(context.Context, rbac.Role) ([]string, error) {
	return nil, nil
}

func (emptyGrants) ActiveGrants(context.Context, string, time.Time) ([]rbac.UserPermission, error) {
	return nil, nil
}

func newAPIRouter(t *testing.T, principal rbac.Principal, repo RepositoryPort) http.Handler {
	t.Helper()
	svc, _ := newTestService(repo)
	perms := rbac.NewService(emptyGrants{}, rbac.Options{})
	h := NewHandler(nil, svc, nil, nil, rbac.Middleware{Service: perms})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), principal)))
		})
	})
	r.Route("/api/admin/users", h.MountAPI)
	return r
}

func TestAdminListUsers(t *testing.T) {
	repo := newStubRepo(User{ID: "u1", Email: "a@club.test", Role: rbac.RoleMember})
	router := newAPIRouter(t, rbac.Subject{ID: "admin-1", Role: rbac.RoleAdmin}, repo)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/admin/users?per_page=5", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"email":"a@club.test"`)
	assert.Contains(t, body, `"per_page":5`)
}

func TestMemberCannotListUsers(t *testing.T) {
	router := newAPIRouter(t, rbac.Subject{ID: "u1", Role: rbac.RoleMember}, newStubRepo())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.JSONEq(t, `{"success":false,"error":"forbidden"}`, res.Body.String())
}

func TestAdminChangeRole(t *testing.T) {
	repo := newStubRepo(User{ID: "u1", Role: rbac.RoleMember})
	router := newAPIRouter(t, rbac.Subject{ID: "admin-1", Role: rbac.RoleAdmin}, repo)

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/u1/role", strings.NewReader(`{"role":"club_leader"}`))
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, rbac.RoleClubLeader, repo.users["u1"].Role)

	res = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/admin/users/u1/role", strings.NewReader(`{"role":"owner"}`))
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/admin/users/missing/role", strings.NewReader(`{"role":"member"}`))
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
