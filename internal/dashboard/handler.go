// Package dashboard renders the signed-in home page.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/clubspace/clubspace/internal/clubs"
	"github.com/clubspace/clubspace/internal/meetings"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/view"
)

const upcomingLimit = 5

// TaskCounter summarises a user's tasks by status.
type TaskCounter interface {
	StatusCounts(ctx context.Context, userID string) (map[string]int, error)
}

// UnreadCounter counts unread notifications.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// MeetingLister lists upcoming meetings for a member.
type MeetingLister interface {
	Upcoming(ctx context.Context, userID string, limit int) ([]meetings.Meeting, error)
}

// ClubLister lists clubs.
type ClubLister interface {
	ListClubs(ctx context.Context, filter clubs.ListFilter) ([]clubs.Club, shared.Pagination, error)
}

// Sources groups the services the dashboard reads from.
type Sources struct {
	Tasks         TaskCounter
	Notifications UnreadCounter
	Meetings      MeetingLister
	Clubs         ClubLister
}

// Handler renders the dashboard.
type Handler struct {
	logger    *slog.Logger
	sources   Sources
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, sources Sources, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, sources: sources, templates: templates, csrf: csrf}
}

// MountRoutes registers the dashboard at "/".
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// Summary is what the dashboard shows.
type Summary struct {
	TaskCounts map[string]int
	Unread     int
	Meetings   []meetings.Meeting
	Clubs      []clubs.Club
}

// Load reads every dashboard section concurrently.
func (h *Handler) Load(ctx context.Context, userID string) (Summary, error) {
	var out Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := h.sources.Tasks.StatusCounts(ctx, userID)
		out.TaskCounts = counts
		return err
	})
	g.Go(func() error {
		n, err := h.sources.Notifications.UnreadCount(ctx, userID)
		out.Unread = n
		return err
	})
	g.Go(func() error {
		items, err := h.sources.Meetings.Upcoming(ctx, userID, upcomingLimit)
		out.Meetings = items
		return err
	})
	g.Go(func() error {
		items, _, err := h.sources.Clubs.ListClubs(ctx, clubs.ListFilter{
			ListParams: shared.ListParams{Page: 1, PerPage: shared.DefaultPerPage, SortBy: "name", SortDir: shared.SortAsc},
			MemberID:   userID,
		})
		out.Clubs = items
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	user := view.UserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}
	summary, err := h.Load(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load dashboard", slog.String("user_id", user.ID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        user,
		Data: map[string]any{
			"TaskCounts": summary.TaskCounts,
			"Unread":     summary.Unread,
			"Meetings":   summary.Meetings,
			"Clubs":      summary.Clubs,
		},
	}
	if err := h.templates.Render(w, "pages/dashboard.html", data); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
