package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/shared"
)

func asPrincipal(p Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func TestGlobalRequirementIgnoresClubGrants(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	_, err := svc.Grant(context.Background(), GrantInput{UserID: userU, Permission: shared.PermManagePermissions, ClubID: clubA})
	require.NoError(t, err)

	mw := Middleware{Service: svc}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r := chi.NewRouter()
	r.Use(asPrincipal(Subject{ID: userU, Role: RoleMember}))
	r.With(mw.RequirePermission(shared.PermManagePermissions, Global)).Get("/admin", ok)
	r.With(mw.RequirePermission(shared.PermManagePermissions, ClubFromURLParam("clubID"))).Get("/clubs/{clubID}", ok)

	cases := map[string]int{
		"/admin":          http.StatusForbidden,
		"/clubs/" + clubA: http.StatusNoContent,
		"/clubs/" + clubB: http.StatusForbidden,
	}
	for path, want := range cases {
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, res.Code, path)
	}
}

func TestRequireRole(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	serve := func(p Principal) int {
		r := chi.NewRouter()
		if p != nil {
			r.Use(asPrincipal(p))
		}
		r.With(mw.RequireRole(RoleClubLeader)).Get("/", ok)
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		return res.Code
	}

	assert.Equal(t, http.StatusNoContent, serve(Subject{ID: "l1", Role: RoleClubLeader}))
	assert.Equal(t, http.StatusNoContent, serve(Subject{ID: "a1", Role: RoleAdmin}))
	assert.Equal(t, http.StatusForbidden, serve(Subject{ID: "m1", Role: RoleMember}))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

func TestRoleFloorEditsAreAdminOnly(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	_, err := svc.Grant(context.Background(), GrantInput{UserID: userU, Permission: shared.PermManagePermissions})
	require.NoError(t, err)

	serve := func(p Principal, method, path, body string) int {
		r := chi.NewRouter()
		r.Use(asPrincipal(p))
		r.Route("/api/permissions", NewPermissionsHandler(nil, svc, Middleware{Service: svc}).MountRoutes)
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(method, path, strings.NewReader(body)))
		return res.Code
	}
	manager := Subject{ID: userU, Role: RoleMember}
	admin := Subject{ID: admin1, Role: RoleAdmin}
	floor := `{"permissions":["UPLOAD_FILE","CREATE_CLUB"]}`

	assert.Equal(t, http.StatusOK, serve(manager, http.MethodGet, "/api/permissions/roles", ""))
	assert.Equal(t, http.StatusForbidden, serve(manager, http.MethodPut, "/api/permissions/roles/member", floor))
	assert.Equal(t, http.StatusOK, serve(admin, http.MethodPut, "/api/permissions/roles/member", floor))
}
