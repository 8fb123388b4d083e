// Package filedb is the persistent, schema-driven metadata store described
// in spec §4.1: the files table, reset bookkeeping, commit cursors, and one
// related table (pages, backing full-text search). It is guarded by
// single-writer, multi-reader semantics — writes are confined to the
// operation queue (internal/opqueue) and always run inside a transaction;
// reads are lock-free.
//
// Grounded on the teacher's internal/sync/baseline.go (DSN/pragma string,
// sole-writer SetMaxOpenConns(1)) and internal/sync/migrations.go (goose
// Provider over an embedded migrations/*.sql filesystem).
package filedb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO), built with the FTS5 extension.
	_ "modernc.org/sqlite"

	"github.com/locomote-sh/locomote/internal/cachelayout"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the file database for one repository. It is safe for concurrent
// reads; all writes must be serialized by the caller (the opqueue does
// this by construction — see internal/syncproto).
type DB struct {
	sql    *sql.DB
	repoID string
	logger *slog.Logger

	layout    *cachelayout.Layout
	policyFor CachePolicyFunc
}

// Open opens (creating if absent) the SQLite database at path, applies
// pending goose migrations, and returns a DB scoped to repoID. Every row
// filedb writes or reads is implicitly scoped to repoID, so one physical
// file may in principle be shared by several repositories without their
// rows colliding — though in practice each repository gets its own file
// (spec §4.1: "Owns one File DB").
func Open(ctx context.Context, path string, repoID string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("filedb: opening database %s: %w", path, err)
	}

	// Sole-writer pattern: one connection, so writes are never interleaved
	// by the driver's own pool even if callers forget to serialize.
	sqlDB.SetMaxOpenConns(1)

	if err := runMigrations(ctx, sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{sql: sqlDB, repoID: repoID, logger: logger}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("filedb: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("filedb: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("filedb: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("filedb: applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error {
	return db.sql.Close()
}
