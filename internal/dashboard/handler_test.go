package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/clubs"
	"github.com/clubspace/clubspace/internal/meetings"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/view"
)

type stubSources struct {
	userIDs  chan string
	countErr error
}

func (s stubSources) StatusCounts(_ context.Context, userID string) (map[string]int, error) {
	s.userIDs <- userID
	return map[string]int{"todo": 3, "done": 7}, s.countErr
}

func (s stubSources) UnreadCount(context.Context, string) (int, error) { return 2, nil }

func (s stubSources) Upcoming(_ context.Context, _ string, limit int) ([]meetings.Meeting, error) {
	if limit != upcomingLimit {
		return nil, errors.New("unexpected limit")
	}
	return []meetings.Meeting{{ID: "m1", Title: "Weekly sync", ClubName: "Chess", StartsAt: time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)}}, nil
}

func (s stubSources) ListClubs(_ context.Context, f clubs.ListFilter) ([]clubs.Club, shared.Pagination, error) {
	return []clubs.Club{{ID: "c1", Name: "Chess", MemberCount: 12}}, shared.Pagination{}, nil
}

func newRouter(t *testing.T, src stubSources, p rbac.Principal) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, Sources{Tasks: src, Notifications: src, Meetings: src, Clubs: src}, engine, shared.NewCSRFManager("secret"))
	r := chi.NewRouter()
	if p != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), p)))
			})
		})
	}
	h.MountRoutes(r)
	return r
}

func TestDashboardRendersSummary(t *testing.T) {
	src := stubSources{userIDs: make(chan string, 1)}
	router := newRouter(t, src, rbac.Subject{ID: "u1", Role: rbac.RoleMember})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<strong>3</strong> to do")
	assert.Contains(t, body, "<strong>0</strong> in progress")
	assert.Contains(t, body, "<strong>2</strong> unread")
	assert.Contains(t, body, "Weekly sync")
	assert.Contains(t, body, `href="/clubs#club-c1"`)
	assert.NotContains(t, body, `href="/admin/users"`)
	assert.Equal(t, "u1", <-src.userIDs)
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	router := newRouter(t, stubSources{userIDs: make(chan string, 1)}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/welcome", rr.Header().Get("Location"))
}

func TestDashboardLoadError(t *testing.T) {
	src := stubSources{userIDs: make(chan string, 1), countErr: errors.New("db down")}
	router := newRouter(t, src, rbac.Subject{ID: "u1", Role: rbac.RoleMember})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
