package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIncompleteAudit rejects entries without an action or target.
var ErrIncompleteAudit = errors.New("audit: action, entity and entity id are required")

// AuditLog is one row of audit_logs. ActorID is empty for system actions such
// as the grant expiry sweep.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

type auditExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends permission and membership changes to audit_logs.
type AuditLogger struct {
	db  auditExecer
	now func() time.Time
}

// NewAuditLogger returns a logger writing through db.
func NewAuditLogger(db auditExecer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

// Record appends entry. A nil logger records nothing.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return ErrIncompleteAudit
	}
	if entry.At.IsZero() {
		entry.At = l.now().UTC()
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var actor any
	if entry.ActorID != "" {
		actor = entry.ActorID
	}

	stmt, args, err := squirrel.Insert("audit_logs").
		Columns("actor_id", "action", "entity", "entity_id", "meta", "occurred_at").
		Values(actor, entry.Action, entry.Entity, entry.EntityID, meta, entry.At).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: build insert: %w", err)
	}
	if _, err := l.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
