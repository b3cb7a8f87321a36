package clubs

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository provides PostgreSQL persistence for clubs and memberships.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

var clubSort = db.Sortable{
	"name":         "c.name",
	"category":     "c.category",
	"created_at":   "c.created_at",
	"member_count": "member_count",
}

func clubSelect() squirrel.SelectBuilder {
	return db.Builder().Select(
		"c.id::text", "c.name", "c.description", "c.category",
		"COALESCE(c.leader_id::text, '')", "COALESCE(lp.full_name, '')",
		"c.created_by::text", "COUNT(m.user_id) AS member_count", "c.created_at", "c.updated_at",
	).
		From("clubs c").
		LeftJoin("profiles lp ON lp.id = c.leader_id").
		LeftJoin("club_members m ON m.club_id = c.id").
		GroupBy("c.id", "lp.full_name")
}

// ListClubs returns a page of clubs with member counts.
func (r *Repository) ListClubs(ctx context.Context, filter ListFilter) ([]Club, int, error) {
	sb := clubSelect()
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		sb = sb.Where(squirrel.Or{
			squirrel.Like{"lower(c.name)": like},
			squirrel.Like{"lower(c.description)": like},
		})
	}
	if filter.Category != "" {
		sb = sb.Where(squirrel.Eq{"c.category": filter.Category})
	}
	if filter.MemberID != "" {
		sb = sb.Where(squirrel.Expr("c.id IN (SELECT club_id FROM club_members WHERE user_id = ?)", filter.MemberID))
	}
	total, err := db.Count(ctx, r.pool, sb)
	if err != nil {
		return nil, 0, err
	}
	stmt, args, err := db.Page(sb, filter.ListParams, clubSort, "name").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("clubs: list: %w", err)
	}
	defer rows.Close()

	var out []Club
	for rows.Next() {
		c, err := scanClub(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// GetClub fetches a club by id.
func (r *Repository) GetClub(ctx context.Context, id string) (Club, error) {
	return getClub(ctx, r.pool, id)
}

func getClub(ctx context.Context, q db.DBTX, id string) (Club, error) {
	stmt, args, err := clubSelect().Where(squirrel.Eq{"c.id": id}).ToSql()
	if err != nil {
		return Club{}, err
	}
	c, err := scanClub(q.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Club{}, db.NotFound(err)
	}
	return c, nil
}

// CreateClub inserts the club and enrols the creator as its leader.
func (r *Repository) CreateClub(ctx context.Context, in ClubInput, creatorID string) (Club, error) {
	var club Club
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		stmt, args, err := db.Builder().Insert("clubs").
			Columns("name", "description", "category", "leader_id", "created_by").
			Values(in.Name, in.Description, in.Category, creatorID, creatorID).
			Suffix("RETURNING id::text").ToSql()
		if err != nil {
			return err
		}
		var id string
		if err := tx.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
			return fmt.Errorf("clubs: insert: %w", err)
		}
		if err := upsertMember(ctx, tx, id, creatorID, MemberRoleLeader); err != nil {
			return err
		}
		club, err = getClub(ctx, tx, id)
		return err
	})
	return club, err
}

// UpdateClub changes the editable club fields.
func (r *Repository) UpdateClub(ctx context.Context, id string, in ClubInput) (Club, error) {
	stmt, args, err := db.Builder().Update("clubs").
		Set("name", in.Name).
		Set("description", in.Description).
		Set("category", in.Category).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Club{}, err
	}
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return Club{}, fmt.Errorf("clubs: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Club{}, ErrNotFound
	}
	return r.GetClub(ctx, id)
}

// DeleteClub removes a club. Memberships, tasks and meetings cascade.
func (r *Repository) DeleteClub(ctx context.Context, id string) error {
	stmt, args, err := db.Builder().Delete("clubs").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clubs: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMembers returns the club roster, leaders first.
func (r *Repository) ListMembers(ctx context.Context, clubID string) ([]Member, error) {
	stmt, args, err := db.Builder().
		Select("m.club_id::text", "m.user_id::text", "p.email", "p.full_name", "m.member_role", "m.joined_at").
		From("club_members m").
		Join("profiles p ON p.id = m.user_id").
		Where(squirrel.Eq{"m.club_id": clubID}).
		OrderBy("m.member_role = 'leader' DESC", "p.full_name ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("clubs: list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ClubID, &m.UserID, &m.Email, &m.FullName, &m.MemberRole, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MemberIDs returns the user ids enrolled in a club.
func (r *Repository) MemberIDs(ctx context.Context, clubID string) ([]string, error) {
	stmt, args, err := db.Builder().Select("user_id::text").From("club_members").
		Where(squirrel.Eq{"club_id": clubID}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("clubs: member ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetMembership returns one membership row.
func (r *Repository) GetMembership(ctx context.Context, clubID, userID string) (Member, error) {
	stmt, args, err := db.Builder().
		Select("club_id::text", "user_id::text", "member_role", "joined_at").
		From("club_members").
		Where(squirrel.Eq{"club_id": clubID, "user_id": userID}).ToSql()
	if err != nil {
		return Member{}, err
	}
	var m Member
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(&m.ClubID, &m.UserID, &m.MemberRole, &m.JoinedAt); err != nil {
		return Member{}, db.NotFound(err)
	}
	return m, nil
}

// AddMember enrols a user. A second join surfaces as a unique violation.
func (r *Repository) AddMember(ctx context.Context, clubID, userID string) error {
	stmt, args, err := db.Builder().Insert("club_members").
		Columns("club_id", "user_id", "member_role").
		Values(clubID, userID, MemberRoleMember).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clubs: add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership and reports whether one existed.
func (r *Repository) RemoveMember(ctx context.Context, clubID, userID string) (bool, error) {
	stmt, args, err := db.Builder().Delete("club_members").
		Where(squirrel.Eq{"club_id": clubID, "user_id": userID}).ToSql()
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("clubs: remove member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetLeader makes userID the club leader, demoting the previous one to member.
func (r *Repository) SetLeader(ctx context.Context, clubID, userID string) (previous string, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		stmt, args, err := db.Builder().Select("COALESCE(leader_id::text, '')").From("clubs").
			Where(squirrel.Eq{"id": clubID}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, stmt, args...).Scan(&previous); err != nil {
			return db.NotFound(err)
		}
		stmt, args, err = db.Builder().Update("clubs").
			Set("leader_id", userID).
			Set("updated_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"id": clubID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("clubs: set leader: %w", err)
		}
		if previous != "" && previous != userID {
			stmt, args, err = db.Builder().Update("club_members").
				Set("member_role", MemberRoleMember).
				Where(squirrel.Eq{"club_id": clubID, "user_id": previous}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, stmt, args...); err != nil {
				return fmt.Errorf("clubs: demote leader: %w", err)
			}
		}
		return upsertMember(ctx, tx, clubID, userID, MemberRoleLeader)
	})
	return previous, err
}

func upsertMember(ctx context.Context, q db.DBTX, clubID, userID, role string) error {
	stmt, args, err := db.Builder().Insert("club_members").
		Columns("club_id", "user_id", "member_role").
		Values(clubID, userID, role).
		Suffix("ON CONFLICT (club_id, user_id) DO UPDATE SET member_role = EXCLUDED.member_role").ToSql()
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clubs: upsert member: %w", err)
	}
	return nil
}

func scanClub(row pgx.Row) (Club, error) {
	var c Club
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Category, &c.LeaderID, &c.LeaderName, &c.CreatedBy, &c.MemberCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
