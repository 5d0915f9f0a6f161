package db

import (
	"context"
	"fmt"

	"reviewbot/internal/infra/dbx"
)

// schema is applied in order on every start. Statements must stay idempotent:
// there is no migration version table.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id          BIGINT PRIMARY KEY,
		username         TEXT,
		first_name       TEXT,
		last_name        TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_active        BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id         SERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		username   TEXT,
		text       TEXT NOT NULL DEFAULT '',
		photo_id   TEXT,
		rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		status     TEXT NOT NULL DEFAULT 'pending'
		           CHECK (status IN ('pending', 'approved', 'rejected')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE reviews ADD COLUMN IF NOT EXISTS blurred_photo_id TEXT`,
	`ALTER TABLE reviews ADD COLUMN IF NOT EXISTS product_code TEXT`,
	`ALTER TABLE reviews ADD COLUMN IF NOT EXISTS photo_url TEXT`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_status_id ON reviews (status, id DESC)`,
	`CREATE TABLE IF NOT EXISTS message_templates (
		id   SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_activity (
		id         SERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		action     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_activity_created_at ON user_activity (created_at)`,
	`CREATE TABLE IF NOT EXISTS broadcast_runs (
		id          SERIAL PRIMARY KEY,
		operator_id BIGINT NOT NULL,
		text        TEXT NOT NULL,
		total       INTEGER NOT NULL,
		sent        INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates or extends the schema.
func Migrate(ctx context.Context, q dbx.Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
