package clubs

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/view"
)

// Handler exposes club pages and JSON endpoints.
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

var clubScope = rbac.ClubFromURLParam("clubID")

// MountAPI registers /api/clubs routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.list)
	r.With(h.rbac.RequirePermission(shared.PermCreateClub, rbac.Global)).Post("/", h.create)
	r.Route("/{clubID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/members", h.members)
		r.Post("/members", h.join)
		r.Delete("/members/me", h.leave)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequirePermission(shared.PermManageClub, clubScope))
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Delete("/members/{userID}", h.removeMember)
			r.Put("/leader", h.assignLeader)
		})
	})
}

// MountRoutes registers the /clubs pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPage)
	r.With(h.rbac.RequirePermission(shared.PermCreateClub, rbac.Global)).Post("/", h.createForm)
	r.Post("/{clubID}/join", h.joinForm)
	r.Post("/{clubID}/leave", h.leaveForm)
}

func parseFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{ListParams: shared.ParseListParams(q), Category: strings.TrimSpace(q.Get("category"))}
	if q.Get("mine") == "1" || q.Get("mine") == "true" {
		filter.MemberID = actorID(r)
	}
	return filter
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clubs, page, err := h.service.ListClubs(r.Context(), parseFilter(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if clubs == nil {
		clubs = []Club{}
	}
	httpx.Page(w, clubs, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	club, err := h.service.GetClub(r.Context(), chi.URLParam(r, "clubID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, club)
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (ClubInput, bool) {
	var in ClubInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return in, false
	}
	return in, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	club, err := h.service.CreateClub(r.Context(), actorID(r), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, club)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	club, err := h.service.UpdateClub(r.Context(), actorID(r), chi.URLParam(r, "clubID"), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, club)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClub(r.Context(), actorID(r), chi.URLParam(r, "clubID")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Members(r.Context(), chi.URLParam(r, "clubID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.OK(w, http.StatusOK, members)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Join(r.Context(), chi.URLParam(r, "clubID"), actorID(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, map[string]bool{"joined": true})
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Leave(r.Context(), chi.URLParam(r, "clubID"), actorID(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveMember(r.Context(), actorID(r), chi.URLParam(r, "clubID"), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignLeader(w http.ResponseWriter, r *http.Request) {
	var in LeaderInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	club, err := h.service.AssignLeader(r.Context(), actorID(r), chi.URLParam(r, "clubID"), in.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, club)
}

type listPageData struct {
	Clubs  []Club
	Page   shared.Pagination
	Filter ListFilter
	Form   ClubInput
	Errors map[string]string
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, ClubInput{}, nil, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, form ClubInput, errs map[string]string, status int) {
	filter := parseFilter(r)
	clubs, page, err := h.service.ListClubs(r.Context(), filter)
	if err != nil {
		h.logger.Error("list clubs failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/clubs.html", listPageData{Clubs: clubs, Page: page, Filter: filter, Form: form, Errors: errs}, status)
}

func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := ClubInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
	}
	if err := h.validator.Struct(in); err != nil {
		errs := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs[fe.Field()] = fe.Error()
			}
		}
		h.renderList(w, r, in, errs, http.StatusBadRequest)
		return
	}
	club, err := h.service.CreateClub(r.Context(), actorID(r), in)
	if err != nil {
		h.logger.Error("create club", slog.Any("error", err))
		h.renderList(w, r, in, map[string]string{"general": "Club could not be created"}, http.StatusInternalServerError)
		return
	}
	h.redirectWithFlash(w, r, "/clubs", "success", "Created "+club.Name)
}

func (h *Handler) joinForm(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Join(r.Context(), chi.URLParam(r, "clubID"), actorID(r)); err != nil {
		h.redirectWithFlash(w, r, "/clubs", "error", flashMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/clubs", "success", "You joined the club")
}

func (h *Handler) leaveForm(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Leave(r.Context(), chi.URLParam(r, "clubID"), actorID(r)); err != nil {
		h.redirectWithFlash(w, r, "/clubs", "error", flashMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/clubs", "success", "You left the club")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Clubs", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: view.UserFromContext(r.Context()), Data: data}
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

func actorID(r *http.Request) string {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return p.GetID()
	}
	return ""
}

func flashMessage(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyMember):
		return "You are already a member of this club"
	case errors.Is(err, ErrLeaderCannotLeave):
		return "Hand leadership over before leaving"
	case errors.Is(err, ErrNotMember):
		return "You are not a member of this club"
	case errors.Is(err, shared.ErrNotFound):
		return "Club not found"
	default:
		return "Something went wrong, please try again"
	}
}
