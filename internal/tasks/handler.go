package tasks

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// Handler exposes the task API.
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

// MountAPI registers /api/tasks routes. Permission checks are club scoped
// and happen in the service once the club is known.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{taskID}", h.get)
	r.Patch("/{taskID}", h.update)
	r.Delete("/{taskID}", h.delete)
}

func (h *Handler) parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		ListParams: shared.ParseListParams(q),
		ClubID:     q.Get("club_id"),
		Status:     q.Get("status"),
		AssigneeID: q.Get("assignee_id"),
	}
	if filter.AssigneeID == "me" {
		if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
			filter.AssigneeID = p.GetID()
		}
	}
	switch filter.Status {
	case "", StatusTodo, StatusInProgress, StatusDone:
	default:
		return filter, httpx.Invalid("status must be one of [todo in_progress done]")
	}
	if raw := q.Get("due_before"); raw != "" {
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, httpx.Invalid("due_before must be an RFC 3339 timestamp")
		}
		filter.DueBefore = &due
	}
	return filter, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Task{}
	}
	httpx.Page(w, items, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, task)
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
	task, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, task)
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
	task, err := h.service.Update(r.Context(), p, chi.URLParam(r, "taskID"), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, task)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "taskID")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
