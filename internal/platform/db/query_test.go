package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubspace/clubspace/internal/shared"
)

func TestPageFallsBackToDefaultSort(t *testing.T) {
	columns := Sortable{"name": "c.name", "created": "c.created_at"}
	base := Builder().Select("c.id").From("clubs c")

	sql, _, err := Page(base, shared.ListParams{Page: 3, PerPage: 10, SortBy: "name; DROP TABLE clubs", SortDir: "desc"}, columns, "created").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT c.id FROM clubs c ORDER BY c.created_at DESC LIMIT 10 OFFSET 20", sql)

	sql, _, err = Page(base, shared.ListParams{Page: 1, PerPage: 5, SortBy: "name", SortDir: "asc"}, columns, "created").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT c.id FROM clubs c ORDER BY c.name ASC LIMIT 5 OFFSET 0", sql)
}

func TestPostgresErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))

	assert.ErrorIs(t, NotFound(pgx.ErrNoRows), shared.ErrNotFound)
	assert.Equal(t, unique, NotFound(unique))
}
