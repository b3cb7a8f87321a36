package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clubspace/clubspace/internal/shared"
)

// DBTX is the subset of pgx used by repositories. *pgxpool.Pool, pgx.Tx and
// pgxmock pools all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Builder returns a squirrel builder using postgres placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Sortable maps public sort keys to SQL column expressions.
type Sortable map[string]string

// Page applies ORDER BY, LIMIT and OFFSET from list params. Unknown sort keys
// fall back to defaultSort so user input never reaches the SQL text.
func Page(sb squirrel.SelectBuilder, params shared.ListParams, columns Sortable, defaultSort string) squirrel.SelectBuilder {
	column, ok := columns[params.SortBy]
	if !ok {
		column = columns[defaultSort]
	}
	if column != "" {
		dir := "ASC"
		if strings.EqualFold(params.SortDir, shared.SortDesc) {
			dir = "DESC"
		}
		sb = sb.OrderBy(column + " " + dir)
	}
	return sb.Limit(uint64(params.PerPage)).Offset(uint64(params.Offset()))
}

// Count runs SELECT COUNT(*) using the WHERE clauses of the given builder.
func Count(ctx context.Context, q DBTX, sb squirrel.SelectBuilder) (int, error) {
	stmt, args, err := Builder().Select("COUNT(*)").FromSelect(sb.RemoveLimit().RemoveOffset(), "counted").ToSql()
	if err != nil {
		return 0, fmt.Errorf("platform/db: build count: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("platform/db: count: %w", err)
	}
	return total, nil
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a postgres foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// NotFound translates pgx.ErrNoRows into shared.ErrNotFound.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}
