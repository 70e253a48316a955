// Package database provides the SQLite-backed post queue: connection setup,
// schema migrations, queue models and the data access layer (Store).
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/postqueue/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// pragmas are applied to every connection through the DSN.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Open opens the queue database at path and migrates it to the latest schema.
// path is a file path or a "file:" URI; ":memory:" is accepted for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "database")

	db, err := sqlx.ConnectContext(ctx, "sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database %s: %w", path, err)
	}

	// One connection: every queue mutation is serialized and dequeue stays atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	version, err := migrateUp(db.DB, log)
	if err != nil {
		Close(db, log)
		return nil, err
	}

	log.Info("Queue database ready", "path", path, "schema_version", version)
	return db, nil
}

// Close closes the connection pool.
func Close(db *sqlx.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.Close(); err != nil {
		logger.Error("Error closing queue database", "error", err)
		return
	}
	logger.Info("Queue database closed")
}

// migrateUp applies the embedded migrations and returns the resulting schema version.
func migrateUp(db *sql.DB, log *slog.Logger) (uint, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	target, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite3", target)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrator: %w", err)
	}

	switch err := migrator.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("Queue schema is up to date")
	case err != nil:
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	default:
		log.Info("Applied queue schema migrations")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("queue schema version %d is dirty", version)
	}
	return version, nil
}

// sqliteDSN adds the connection pragmas to path, keeping any query the caller set.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		name := p[:strings.Index(p, "(")]
		if strings.Contains(path, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}
