package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/shared"
)

func newMockRepo(t *testing.T) (*PGRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestPermissionByNameNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM permissions WHERE`).
		WithArgs(true, "CREATE_CLUB").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.PermissionByName(context.Background(), "CREATE_CLUB")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveGrantsScansRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	rows := pgxmock.NewRows([]string{"id", "user_id", "permission_id", "name", "granted_by", "granted_at", "expires_at", "club_id", "active", "revoked_at"}).
		AddRow("g1", userU, "p1", "CREATE_CLUB", admin1, now, (*time.Time)(nil), "", true, (*time.Time)(nil)).
		AddRow("g2", userU, "p2", "MANAGE_CLUB", admin1, now, &expires, clubA, true, (*time.Time)(nil))
	mock.ExpectQuery(`SELECT (.+) FROM user_permissions up JOIN permissions p ON p.id = up.permission_id WHERE (.+)expires_at IS NULL OR up.expires_at > (.+) ORDER BY p.name`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	grants, err := repo.ActiveGrants(context.Background(), userU, now)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Nil(t, grants[0].ExpiresAt)
	assert.Equal(t, clubA, grants[1].ClubID)
	require.NotNil(t, grants[1].ExpiresAt)
	assert.True(t, grants[1].ExpiresAt.Equal(expires))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateGrantGlobalContext(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE user_permissions SET active = \$1, revoked_at = \$2, revoked_by = \$3 WHERE (.+) AND club_id IS NULL`).
		WithArgs(false, at, admin1, true, "p1", userU).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := repo.DeactivateGrant(context.Background(), userU, "p1", "", admin1, at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireGrantsDeduplicatesUsers(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE user_permissions SET (.+) WHERE active = \$3 AND expires_at <= \$4 RETURNING user_id::text`).
		WithArgs(false, now, true, now).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userU).AddRow(userU).AddRow(admin1))

	users, err := repo.ExpireGrants(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{userU, admin1}, users)
	require.NoError(t, mock.ExpectationsWereMet())
}
