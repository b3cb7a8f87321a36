package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/identity"
	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
)

type stubRepo struct {
	users   map[string]User
	updates int
}

func newStubRepo(users ...User) *stubRepo {
	repo := &stubRepo{users: map[string]User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (s *stubRepo) ListUsers(_ context.Context, filter ListFilter) ([]User, int, error) {
	var out []User
	for _, u := range s.users {
		if filter.Role == "" || u.Role == filter.Role {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (s *stubRepo) GetUser(_ context.Context, id string) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) UpdateRole(_ context.Context, id string, role rbac.Role) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	s.updates++
	u.Role = role
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return u, nil
}

func newTestService(repo RepositoryPort) (*Service, *[]identity.Event) {
	bus := identity.NewEventBus(nil)
	var events []identity.Event
	bus.Subscribe(func(_ context.Context, e identity.Event) error {
		events = append(events, e)
		return nil
	}, identity.EventRoleChanged)
	return NewService(repo, bus, nil, nil), &events
}

func TestChangeRolePublishesEvent(t *testing.T) {
	repo := newStubRepo(User{ID: "u1", Email: "a@club.test", Role: rbac.RoleMember})
	svc, events := newTestService(repo)

	updated, err := svc.ChangeRole(context.Background(), "admin-1", "u1", "CLUB_LEADER")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleClubLeader, updated.Role)
	require.Len(t, *events, 1)
	assert.Equal(t, "u1", (*events)[0].UserID)
}

func TestChangeRoleNoopWhenUnchanged(t *testing.T) {
	repo := newStubRepo(User{ID: "u1", Role: rbac.RoleMember})
	svc, events := newTestService(repo)

	_, err := svc.ChangeRole(context.Background(), "admin-1", "u1", rbac.RoleMember)
	require.NoError(t, err)
	assert.Zero(t, repo.updates)
	assert.Empty(t, *events)
}

func TestChangeRoleRejections(t *testing.T) {
	repo := newStubRepo(User{ID: "admin-1", Role: rbac.RoleAdmin})
	svc, events := newTestService(repo)

	_, err := svc.ChangeRole(context.Background(), "admin-1", "admin-1", rbac.RoleMember)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.ChangeRole(context.Background(), "admin-1", "u2", "owner")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.ChangeRole(context.Background(), "admin-1", "missing", rbac.RoleMember)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, *events)
}

func TestListUsersPagination(t *testing.T) {
	repo := newStubRepo(
		User{ID: "u1", Role: rbac.RoleMember},
		User{ID: "u2", Role: rbac.RoleMember},
		User{ID: "u3", Role: rbac.RoleAdmin},
	)
	svc, _ := newTestService(repo)

	users, page, err := svc.ListUsers(context.Background(), ListFilter{ListParams: shared.ListParams{Page: 1, PerPage: 1}, Role: rbac.RoleMember})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}
