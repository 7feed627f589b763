package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// connPragmas are applied by the driver to every pooled connection.
var connPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// DSN returns the driver data source name for path with connPragmas set.
func DSN(path string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	return path + "?" + strings.Join(params, "&")
}

// BootstrapSQLite creates the run-history tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_log (
  id              TEXT PRIMARY KEY,
  context_name    TEXT NOT NULL,
  context_id      INTEGER NOT NULL,
  config_path     TEXT,
  config_hash     TEXT,
  dispatch_order  TEXT NOT NULL,
  final_state     TEXT NOT NULL,
  emitted         INTEGER NOT NULL DEFAULT 0,
  processed       INTEGER NOT NULL DEFAULT 0,
  rejected        INTEGER NOT NULL DEFAULT 0,
  handler_errors  INTEGER NOT NULL DEFAULT 0,
  started_at      TEXT NOT NULL,
  completed_at    TEXT NOT NULL,
  duration_ms     REAL NOT NULL,
  last_error      TEXT
);`,
		`CREATE TABLE IF NOT EXISTS handler_stats (
  run_id          TEXT NOT NULL REFERENCES run_log(id) ON DELETE CASCADE,
  position        INTEGER NOT NULL,
  handler_id      INTEGER NOT NULL,
  name            TEXT NOT NULL,
  enabled         INTEGER NOT NULL,
  calls           INTEGER NOT NULL,
  errors          INTEGER NOT NULL,
  avg_exec_ms     REAL NOT NULL,
  PRIMARY KEY (run_id, position)
);`,
		`CREATE INDEX IF NOT EXISTS run_log_started_at_idx ON run_log(started_at);`,
		`CREATE INDEX IF NOT EXISTS run_log_context_name_idx ON run_log(context_name, started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
