package notifications

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

// Handler exposes the notification inbox API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountAPI registers /api/notifications routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read-all", h.markAllRead)
	r.Post("/{notificationID}/read", h.markRead)
	r.Post("/", h.send)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{
		ListParams: shared.ParseListParams(q),
		UserID:     p.GetID(),
		UnreadOnly: q.Get("unread") == "1" || q.Get("unread") == "true",
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.Page(w, items, page)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	n, err := h.service.UnreadCount(r.Context(), p.GetID())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.MarkRead(r.Context(), p.GetID(), chi.URLParam(r, "notificationID")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	n, err := h.service.MarkAllRead(r.Context(), p.GetID())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"updated": n})
}

// send requires SEND_NOTIFICATION, in the club's scope when targeting a club.
func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var in SendInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	scope := rbac.GlobalScope()
	if in.ClubID != "" {
		scope = rbac.ClubScope(in.ClubID)
	}
	if err := h.rbac.Service.Check(r.Context(), p, shared.PermSendNotification, scope); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.Send(r.Context(), p.GetID(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, map[string]int64{"delivered": n})
}
