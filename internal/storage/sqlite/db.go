// Package sqlite is the single-node SQL backend. Rating updates run in a
// transaction with version-guarded writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/lingo/internal/storage"
	"github.com/felixgeelhaar/lingo/internal/storage/migrations"
	"github.com/mattn/go-sqlite3"
)

// DB wraps a sql.DB connection to a SQLite database with migration support.
type DB struct {
	*sql.DB
	// Timeout bounds every store call.
	Timeout time.Duration
}

// Open creates a new SQLite connection with WAL mode and foreign keys enabled.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Verify connectivity
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Set connection pool for single-writer SQLite
	db.SetMaxOpenConns(1)

	return &DB{DB: db, Timeout: storage.DefaultTimeout}, nil
}

// Migrate applies all pending SQL migrations from the embedded filesystem.
func (db *DB) Migrate() error {
	// Ensure schema_migrations table exists (bootstrap)
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	currentVersion, err := db.Version()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	files, err := migrations.Load(migrations.SQLite, "sqlite")
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range files {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec("INSERT OR REPLACE INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}

		applied++
		slog.Info("applied migration", "name", m.Name, "version", m.Version)
	}

	if applied > 0 {
		slog.Info("migrations complete", "applied", applied)
	}

	return nil
}

// Version returns the current schema version.
func (db *DB) Version() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Ping checks the connection within the store timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := storage.Bound(ctx, db.Timeout)
	defer cancel()
	return storage.Translate("ping sqlite", db.PingContext(ctx))
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction bounded by the store timeout and commits
// if it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isConstraint reports whether err is a primary key or unique violation.
func isConstraint(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
