package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/clubspace/clubspace/internal/platform/httpx"
)

// QueueInspector reads queue statistics. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth is the backlog of one queue.
type QueueHealth struct {
	Queue    string `json:"queue"`
	Pending  int    `json:"pending"`
	Active   int    `json:"active"`
	Retry    int    `json:"retry"`
	Archived int    `json:"archived"`
	Paused   bool   `json:"paused"`
}

// Handler exposes queue health over HTTP.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs a Handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	queues := []string{QueueNotifications, QueueMaintenance}
	out := make([]QueueHealth, 0, len(queues))
	for _, name := range queues {
		qh := QueueHealth{Queue: name}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(name)
			if err != nil {
				h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
				httpx.Fail(w, http.StatusServiceUnavailable, "queue backend unavailable")
				return
			}
			if info != nil {
				qh.Pending = info.Pending
				qh.Active = info.Active
				qh.Retry = info.Retry
				qh.Archived = info.Archived
				qh.Paused = info.Paused
			}
		}
		out = append(out, qh)
	}
	httpx.OK(w, http.StatusOK, out)
}
