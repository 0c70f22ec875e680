package repository

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// setupTestDB opens an in-memory SQLite database with the service schema.
// The pool is pinned to one connection because every new connection to
// ":memory:" would see an empty database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := InitSchema(t.Context(), db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func countNotifications(t *testing.T, db *sql.DB, reportID uuid.UUID) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(t.Context(), `SELECT COUNT(*) FROM notifications WHERE report_id = $1`, reportID).Scan(&count); err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return count
}
