// Package testutil provides a throwaway sqlite database carrying the
// application schema, for repository and service tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"talkdrove/internal/database"
)

func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "talkdrove.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db, database.SQLiteSchema); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
