package data

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rounds (
		id           TEXT PRIMARY KEY,
		data_type    TEXT NOT NULL,
		subject      TEXT NOT NULL,
		value        JSONB,
		confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
		method       TEXT NOT NULL DEFAULT '',
		sources      TEXT[],
		outliers     TEXT[],
		failures     JSONB,
		quality      JSONB,
		succeeded    BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rounds_data_type_subject
		ON rounds (data_type, subject, completed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS provider_snapshots (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL,
		status               TEXT NOT NULL,
		weights              JSONB NOT NULL,
		total_requests       BIGINT NOT NULL DEFAULT 0,
		successful_requests  BIGINT NOT NULL DEFAULT 0,
		avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		captured_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_snapshots_name
		ON provider_snapshots (name, captured_at DESC)`,
}

// migrate creates the schema if it does not exist yet
func (r *PostgresRepository) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
