package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clubspace/clubspace/internal/apicache"
	"github.com/clubspace/clubspace/internal/auth"
	"github.com/clubspace/clubspace/internal/clubs"
	"github.com/clubspace/clubspace/internal/dashboard"
	"github.com/clubspace/clubspace/internal/files"
	"github.com/clubspace/clubspace/internal/meetings"
	"github.com/clubspace/clubspace/internal/notifications"
	"github.com/clubspace/clubspace/internal/observability"
	"github.com/clubspace/clubspace/internal/ratelimit"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/tasks"
	"github.com/clubspace/clubspace/internal/users"
	"github.com/clubspace/clubspace/internal/view"
	"github.com/clubspace/clubspace/jobs"
	"github.com/clubspace/clubspace/web"
)

// Cache tags, one per cached resource group.
const (
	TagClubs       = "clubs"
	TagTasks       = "tasks"
	TagMeetings    = "meetings"
	TagFiles       = "files"
	TagUsers       = "users"
	TagPermissions = "permissions"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Auth           auth.Middleware
	Cache          *apicache.Cache
	Limiter        *ratelimit.Limiter
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	DashboardHandler     *dashboard.Handler
	ClubsHandler         *clubs.Handler
	TasksHandler         *tasks.Handler
	MeetingsHandler      *meetings.Handler
	NotificationsHandler *notifications.Handler
	FilesHandler         *files.Handler
	UsersHandler         *users.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with Clubspace defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)

		r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
			user := view.UserFromContext(r.Context())
			if user != nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
			var flash *shared.FlashMessage
			if sess != nil {
				flash = sess.PopFlash()
			}
			data := view.TemplateData{
				Title:       "Welcome",
				CSRFToken:   csrfToken,
				Flash:       flash,
				CurrentPath: r.URL.Path,
			}
			if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
				params.Logger.Error("render landing", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(mutationsOnly(params.Limiter.Handler(ratelimit.ClassAuth)))
			params.AuthHandler.MountRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.Auth.RequireLogin)
			r.Group(params.DashboardHandler.MountRoutes)
			r.Route("/clubs", func(r chi.Router) {
				r.Use(mutationsOnly(params.Cache.Handler(apicache.Policy{Tag: TagClubs})))
				params.ClubsHandler.MountRoutes(r)
			})
			r.Route("/admin/users", func(r chi.Router) {
				r.Use(mutationsOnly(params.Cache.Handler(apicache.Policy{Tag: TagUsers})))
				params.UsersHandler.MountRoutes(r)
			})
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(params.Limiter.Auto())

			r.Route("/auth", func(r chi.Router) {
				r.Use(mutationsOnly(params.Limiter.Handler(ratelimit.ClassAuth)))
				params.AuthHandler.MountAPI(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(params.Auth.RequireAuth)
				r.Route("/clubs", func(r chi.Router) {
					r.Use(params.Cache.Handler(clubsAPIPolicy))
					params.ClubsHandler.MountAPI(r)
				})
				r.Route("/tasks", func(r chi.Router) {
					r.Use(params.Cache.Handler(apicache.Policy{Tag: TagTasks}))
					params.TasksHandler.MountAPI(r)
				})
				r.Route("/meetings", func(r chi.Router) {
					r.Use(params.Cache.Handler(apicache.Policy{Tag: TagMeetings}))
					params.MeetingsHandler.MountAPI(r)
				})
				// Notifications are written by the worker, so they bypass the cache.
				r.Route("/notifications", params.NotificationsHandler.MountAPI)
				r.Route("/files", func(r chi.Router) {
					r.Use(mutationsOnly(params.Limiter.Handler(ratelimit.ClassUpload)))
					r.Use(params.Cache.Handler(apicache.Policy{Tag: TagFiles}))
					params.FilesHandler.MountAPI(r)
				})
				r.Route("/permissions", func(r chi.Router) {
					mountPermissionsAPI(r, params.Cache, params.PermissionsHandler)
				})
				r.Route("/admin/users", func(r chi.Router) {
					r.Use(params.Cache.Handler(usersAPIPolicy))
					params.UsersHandler.MountAPI(r)
				})
			})
		})
	})

	return r
}

// Leader changes and role changes grant or revoke permissions, so both
// policies drop cached permission listings.
var (
	clubsAPIPolicy       = apicache.Policy{Tag: TagClubs, Invalidates: []string{TagTasks, TagMeetings, TagFiles, TagPermissions}}
	usersAPIPolicy       = apicache.Policy{Tag: TagUsers, Invalidates: []string{TagClubs, TagPermissions}}
	permissionsAPIPolicy = apicache.Policy{Tag: TagPermissions, Invalidates: []string{TagUsers}}
)

// mountPermissionsAPI serves the caller's own decisions uncached and the
// catalog and grant listings through the response cache.
func mountPermissionsAPI(r chi.Router, cache *apicache.Cache, h *rbac.PermissionsHandler) {
	h.MountSelf(r)
	r.Group(func(r chi.Router) {
		r.Use(cache.Handler(permissionsAPIPolicy))
		h.MountRoutes(r)
	})
}

// mutationsOnly applies mw to POST, PUT, PATCH and DELETE requests.
func mutationsOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				wrapped.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
