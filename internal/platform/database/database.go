// Package database opens the sqlx handle behind the SQL stores and applies
// schema migrations. Postgres goes through lib/pq, SQLite through modernc.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"infosync/internal/platform/config"
	"infosync/pkg/platform/sqldb"
)

// DB is a sqlx handle that knows its dialect.
type DB struct {
	*sqlx.DB
	Dialect sqldb.Dialect
}

// Open connects and pings. SQLite gets WAL, foreign keys and a single
// connection so writers are serialized.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sqlx.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pinging postgres: %w", err)
		}
		return &DB{DB: db, Dialect: sqldb.Postgres}, nil

	case config.DriverSQLite:
		db, err := sqlx.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite db: %w", err)
		}
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("applying %q: %w", pragma, err)
			}
		}
		return &DB{DB: db, Dialect: sqldb.SQLite}, nil
	}
	return nil, fmt.Errorf("database driver %q has no SQL handle", cfg.Driver)
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Migrate applies every migration newer than the recorded schema version.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrationsFor(db.Dialect) {
		if m.version <= current {
			continue
		}
		err := sqldb.RunInTx(ctx, db.DB, time.Minute, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}
