package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manzoorua/formsedge-sub001/internal/log"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := checkFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// checkFilesystem refuses network filesystems where SQLite locking is unreliable.
// Platforms without detection support log a warning and continue.
func checkFilesystem(path string) error {
	err := validateLocalFilesystem(path)
	if err == nil {
		return nil
	}
	if isDetectionUnsupported(err) {
		log.WithComponent("storage").Warn("filesystem detection unsupported; skipping network-FS check", "path", path)
		return nil
	}
	return err
}

// Bootstrap creates tables/indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forms (
  id         TEXT PRIMARY KEY,
  title      TEXT NOT NULL,
  created_at TEXT
);`,
		`CREATE TABLE IF NOT EXISTS form_fields (
  id       TEXT PRIMARY KEY,
  form_id  TEXT NOT NULL,
  label    TEXT NOT NULL,
  type     TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS form_responses (
  id               TEXT PRIMARY KEY,
  form_id          TEXT NOT NULL,
  is_partial       INTEGER NOT NULL DEFAULT 0,
  respondent_id    TEXT,
  respondent_email TEXT,
  created_at       TEXT,
  submitted_at     TEXT,
  url_params       JSON,
  user_agent       TEXT,
  ip_address       TEXT,
  referer          TEXT
);`,
		`CREATE TABLE IF NOT EXISTS response_answers (
  id          TEXT PRIMARY KEY,
  response_id TEXT NOT NULL,
  field_id    TEXT NOT NULL,
  type        TEXT,
  value       TEXT,
  file_urls   JSON
);`,
		`CREATE TABLE IF NOT EXISTS integrations (
  id                TEXT PRIMARY KEY,
  form_id           TEXT NOT NULL,
  integration_type  TEXT NOT NULL,
  configuration     JSON NOT NULL DEFAULT '{}',
  is_active         INTEGER NOT NULL DEFAULT 0,
  status            TEXT NOT NULL DEFAULT 'connected',
  last_triggered_at TEXT,
  last_error        TEXT
);`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
  id            TEXT PRIMARY KEY,
  form_id       TEXT NOT NULL,
  integration_id TEXT NOT NULL,
  response_id   TEXT NOT NULL,
  event_id      TEXT NOT NULL,
  event_type    TEXT NOT NULL,
  status        TEXT NOT NULL,
  attempt       INTEGER NOT NULL DEFAULT 1,
  url           TEXT NOT NULL,
  request_body  TEXT NOT NULL,
  payload_hash  TEXT,
  response_body TEXT,
  http_status   INTEGER,
  error_message TEXT,
  created_at    TEXT NOT NULL,
  completed_at  TEXT
);`,
		`CREATE INDEX IF NOT EXISTS form_responses_form_submitted_idx ON form_responses(form_id, submitted_at, id);`,
		`CREATE INDEX IF NOT EXISTS response_answers_response_idx ON response_answers(response_id);`,
		`CREATE INDEX IF NOT EXISTS form_fields_form_idx ON form_fields(form_id, position);`,
		`CREATE INDEX IF NOT EXISTS integrations_form_active_idx ON integrations(form_id, is_active);`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_form_created_idx ON webhook_deliveries(form_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_integration_idx ON webhook_deliveries(integration_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
