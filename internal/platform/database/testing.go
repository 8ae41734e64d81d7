package database

import (
	"context"
	"path/filepath"
	"testing"

	"infosync/internal/platform/config"
)

// OpenTestSQLite returns a migrated SQLite database in a per-test directory.
func OpenTestSQLite(t testing.TB) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, config.Database{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
