package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/database"
)

// newTestDB opens an in-memory SQLite database with the escalation schema
// applied. A single connection keeps the in-memory database alive for the
// whole test.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database.SetDriver("sqlite3")

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func intPtr(v int) *int { return &v }
