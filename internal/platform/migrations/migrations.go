// Package migrations applies the database schema. Statements are idempotent
// and run in order on every start.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		name          TEXT NOT NULL,
		files         JSONB NOT NULL DEFAULT '[]',
		dependencies  JSONB NOT NULL DEFAULT '{}',
		lint_report   TEXT NOT NULL DEFAULT '',
		config        JSONB NOT NULL DEFAULT '{}',
		published     BOOLEAN NOT NULL DEFAULT FALSE,
		publish_stale BOOLEAN NOT NULL DEFAULT FALSE,
		deleted       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_user_updated
		ON projects (user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
		user_id    TEXT PRIMARY KEY,
		balance    DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		type          TEXT NOT NULL,
		amount        DOUBLE PRECISION NOT NULL,
		balance_after DOUBLE PRECISION NOT NULL,
		job_id        TEXT NOT NULL DEFAULT '',
		reason        TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		project_id       TEXT NOT NULL DEFAULT '',
		kind             TEXT NOT NULL,
		status           TEXT NOT NULL,
		prompt           TEXT NOT NULL,
		quote            JSONB NOT NULL DEFAULT '{}',
		progress_log     JSONB NOT NULL DEFAULT '[]',
		cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
		refund_issued    BOOLEAN NOT NULL DEFAULT FALSE,
		error            TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		started_at       TIMESTAMPTZ,
		finished_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_user_created
		ON jobs (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		prompt       TEXT NOT NULL,
		files        JSONB NOT NULL DEFAULT '[]',
		dependencies JSONB NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
