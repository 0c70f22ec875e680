package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements are written in the subset of SQL understood by both Postgres and SQLite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		location_lat DOUBLE PRECISION,
		location_lng DOUBLE PRECISION,
		photo_urls TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'new',
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports (owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		report_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		user_id TEXT NOT NULL,
		token TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id TEXT PRIMARY KEY,
		routing_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		claim_expires_at BIGINT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		published_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS processed_messages (
		message_id TEXT PRIMARY KEY,
		processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// InitSchema creates all tables the service needs if they do not exist yet.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
