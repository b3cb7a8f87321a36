package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

// PermissionsHandler serves the /api/permissions endpoints.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountSelf registers the caller's own permission reads: /me and /check.
func (h *PermissionsHandler) MountSelf(r chi.Router) {
	r.Get("/me", h.mine)
	r.Get("/check", h.check)
}

// MountRoutes registers the catalog and grant management routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermManagePermissions, Global))
		r.Get("/", h.listPermissions)
		r.Get("/roles", h.listRolePermissions)
		// Catalog and role floors are admin only.
		r.With(h.rbac.RequireRole(RoleAdmin)).Post("/", h.createPermission)
		r.With(h.rbac.RequireRole(RoleAdmin)).Put("/roles/{role}", h.setRolePermissions)
		r.Get("/users/{userID}", h.listGrants)
		r.Post("/grants", h.grant)
		r.Post("/revoke", h.revoke)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, perms)
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in PermissionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, perm)
}

func (h *PermissionsHandler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.service.ListRolePermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, mappings)
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, ok := ParseRole(chi.URLParam(r, "role"))
	if !ok {
		httpx.RespondError(w, h.logger, httpx.Invalid("role must be one of [admin club_leader member]"))
		return
	}
	var in rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), role, in.Permissions); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"role": role, "permissions": in.Permissions})
}

func (h *PermissionsHandler) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListGrants(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, grants)
}

func (h *PermissionsHandler) grant(w http.ResponseWriter, r *http.Request) {
	var in GrantInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		in.GrantedBy = p.GetID()
	}
	grant, err := h.service.Grant(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, grant)
}

func (h *PermissionsHandler) revoke(w http.ResponseWriter, r *http.Request) {
	var in RevokeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		in.RevokedBy = p.GetID()
	}
	if err := h.service.Revoke(r.Context(), in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	set, err := h.service.EffectivePermissions(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"role": p.GetRole(), "permissions": set.Names(h.service.now())})
}

func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	name := r.URL.Query().Get("permission")
	if name == "" {
		httpx.RespondError(w, h.logger, httpx.Invalid("permission is required"))
		return
	}
	scope := GlobalScope()
	if club := r.URL.Query().Get("club_id"); club != "" {
		scope = ClubScope(club)
	}
	allowed := h.service.HasPermission(r.Context(), p, name, scope)
	httpx.OK(w, http.StatusOK, map[string]any{"permission": normalize(name), "scope": scope.String(), "allowed": allowed})
}
