package notifications

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/clubspace/clubspace/internal/platform/db"
)

// Repository persists notifications in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

var notificationColumns = []string{
	"id::text", "user_id::text", "kind", "title", "body", "link",
	"COALESCE(sender_id::text, '')", "read_at", "created_at",
}

var notificationSort = db.Sortable{
	"created_at": "created_at",
	"kind":       "kind",
}

// List returns a page of the user's notifications, newest first by default.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Notification, int, error) {
	sb := db.Builder().Select(notificationColumns...).From("notifications").
		Where(squirrel.Eq{"user_id": filter.UserID})
	if filter.UnreadOnly {
		sb = sb.Where(squirrel.Eq{"read_at": nil})
	}
	total, err := db.Count(ctx, r.db, sb)
	if err != nil {
		return nil, 0, err
	}
	params := filter.ListParams
	if params.SortBy == "" {
		params.SortBy, params.SortDir = "created_at", "desc"
	}
	stmt, args, err := db.Page(sb, params, notificationSort, "created_at").ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("notifications: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.Link, &n.SenderID, &n.ReadAt, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UnreadCount counts the user's unread notifications.
func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	stmt, args, err := db.Builder().Select("COUNT(*)").From("notifications").
		Where(squirrel.Eq{"user_id": userID, "read_at": nil}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("notifications: unread count: %w", err)
	}
	return n, nil
}

// InsertMany stores one row per message.
func (r *Repository) InsertMany(ctx context.Context, msgs []Message) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	ib := db.Builder().Insert("notifications").Columns("user_id", "kind", "title", "body", "link", "sender_id")
	for _, m := range msgs {
		ib = ib.Values(m.UserID, m.Kind, m.Title, m.Body, m.Link, nullable(m.SenderID))
	}
	stmt, args, err := ib.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("notifications: insert: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertForClub delivers msg to every member of the club except skipUserID.
func (r *Repository) InsertForClub(ctx context.Context, clubID string, msg Message, skipUserID string) (int64, error) {
	recipients := db.Builder().
		Select("user_id").
		Column("?", msg.Kind).
		Column("?", msg.Title).
		Column("?", msg.Body).
		Column("?", msg.Link).
		Column("?::uuid", nullable(msg.SenderID)).
		From("club_members").
		Where(squirrel.Eq{"club_id": clubID})
	if skipUserID != "" {
		recipients = recipients.Where(squirrel.NotEq{"user_id": skipUserID})
	}
	stmt, args, err := db.Builder().Insert("notifications").
		Columns("user_id", "kind", "title", "body", "link", "sender_id").
		Select(recipients).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("notifications: club fan-out: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkRead marks one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	stmt, args, err := db.Builder().Update("notifications").
		Set("read_at", squirrel.Expr("COALESCE(read_at, now())")).
		Where(squirrel.Eq{"id": id, "user_id": userID}).ToSql()
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("notifications: mark read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	stmt, args, err := db.Builder().Update("notifications").
		Set("read_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"user_id": userID, "read_at": nil}).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("notifications: mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
