package meetings

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// Handler exposes the meeting API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountAPI registers /api/meetings routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{meetingID}", h.get)
	r.Patch("/{meetingID}", h.update)
	r.Delete("/{meetingID}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{ListParams: shared.ParseListParams(q), ClubID: q.Get("club_id")}
	if raw := q.Get("upcoming"); raw != "" {
		upcoming, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, httpx.Invalid("upcoming must be a boolean"))
			return
		}
		if upcoming {
			now := h.service.Now()
			filter.After = &now
		}
	}
	if q.Get("mine") == "true" {
		if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
			filter.MemberID = p.GetID()
		}
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Meeting{}
	}
	httpx.Page(w, items, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "meetingID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, m)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	m, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, m)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	m, err := h.service.Update(r.Context(), p, chi.URLParam(r, "meetingID"), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, m)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "meetingID")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
