package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/view"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers the admin user pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermViewAdmin, rbac.Global))
		r.Get("/", h.listPage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermManageUsers, rbac.Global))
		r.Post("/{userID}/role", h.changeRoleForm)
	})
}

// MountAPI registers the admin user JSON endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermViewAdmin, rbac.Global))
		r.Get("/", h.list)
		r.Get("/{userID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermManageUsers, rbac.Global))
		r.Patch("/{userID}/role", h.changeRole)
	})
}

func parseFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{ListParams: shared.ParseListParams(q)}
	if role, ok := rbac.ParseRole(q.Get("role")); ok {
		filter.Role = role
	}
	return filter
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, page, err := h.service.ListUsers(r.Context(), parseFilter(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.Page(w, users, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, user)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var in ChangeRoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	user, err := h.service.ChangeRole(r.Context(), actor.GetID(), chi.URLParam(r, "userID"), rbac.Role(in.Role))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, user)
}

type listPageData struct {
	Users  []User
	Page   shared.Pagination
	Filter ListFilter
	Roles  []rbac.Role
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	users, page, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/admin_users.html", listPageData{Users: users, Page: page, Filter: filter, Roles: rbac.Roles()}, http.StatusOK)
}

func (h *Handler) changeRoleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	_, err := h.service.ChangeRole(r.Context(), actor.GetID(), chi.URLParam(r, "userID"), rbac.Role(r.PostFormValue("role")))
	if err != nil {
		h.logger.Warn("change role", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/admin/users", "error", "Role could not be changed: "+err.Error())
		return
	}
	h.redirectWithFlash(w, r, "/admin/users", "success", "Role updated")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: view.UserFromContext(r.Context()), Data: data}
	if err := h.templates.RenderStatus(w, template, viewData, status); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
