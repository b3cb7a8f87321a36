package clubs

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clubRowColumns = []string{"id", "name", "description", "category", "leader_id", "leader_name", "created_by", "member_count", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestCreateClubEnrolsLeaderInTx(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`INSERT INTO clubs \(name,description,category,leader_id,created_by\) VALUES \(\$1,\$2,\$3,\$4,\$5\) RETURNING id::text`).
		WithArgs("Chess", "Weekly games", "games", "u1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectExec(`INSERT INTO club_members (.+) ON CONFLICT \(club_id, user_id\) DO UPDATE`).
		WithArgs("c1", "u1", MemberRoleLeader).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT (.+) FROM clubs c LEFT JOIN profiles lp ON lp.id = c.leader_id LEFT JOIN club_members m ON m.club_id = c.id WHERE c.id = \$1 GROUP BY c.id, lp.full_name`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(clubRowColumns).AddRow("c1", "Chess", "Weekly games", "games", "u1", "Ada", "u1", 1, now, now))
	mock.ExpectCommit()

	club, err := repo.CreateClub(context.Background(), ClubInput{Name: "Chess", Description: "Weekly games", Category: "games"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", club.ID)
	assert.Equal(t, 1, club.MemberCount)
	assert.Equal(t, "Ada", club.LeaderName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClubRollsBackOnMemberFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`INSERT INTO clubs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectExec(`INSERT INTO club_members`).
		WithArgs("c1", "u1", MemberRoleLeader).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.CreateClub(context.Background(), ClubInput{Name: "Chess"}, "u1")
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberReportsMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM club_members WHERE club_id = \$1 AND user_id = \$2`).
		WithArgs("c1", "u9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	removed, err := repo.RemoveMember(context.Background(), "c1", "u9")
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteClubNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM clubs WHERE id = \$1`).
		WithArgs("nope").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.DeleteClub(context.Background(), "nope"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
