package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS chapters (
		id UUID PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		excerpt TEXT,
		content TEXT NOT NULL,
		"order" INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published')),
		read_time INTEGER NOT NULL DEFAULT 1,
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS chapters_status_order_idx ON chapters (status, "order")`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'reader' CHECK (role IN ('reader', 'admin')),
		display_name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reading_progress (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id UUID NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		scroll_position DOUBLE PRECISION NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, chapter_id)
	)`,
	`CREATE INDEX IF NOT EXISTS reading_progress_user_updated_idx ON reading_progress (user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS bookmarks (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id UUID NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		text_snippet TEXT NOT NULL,
		paragraph_index INTEGER NOT NULL,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookmarks_user_chapter_idx ON bookmarks (user_id, chapter_id)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id UUID NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, chapter_id)
	)`,
	`CREATE INDEX IF NOT EXISTS likes_chapter_idx ON likes (chapter_id)`,
	`CREATE TABLE IF NOT EXISTS site_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS business_metrics (
		id BIGSERIAL PRIMARY KEY,
		event TEXT NOT NULL,
		user_id TEXT,
		chapter_id TEXT,
		metadata JSONB,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		excerpt TEXT,
		content TEXT NOT NULL,
		"order" INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published')),
		read_time INTEGER NOT NULL DEFAULT 1,
		published_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'reader' CHECK (role IN ('reader', 'admin')),
		display_name TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reading_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		scroll_position REAL NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, chapter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		text_snippet TEXT NOT NULL,
		paragraph_index INTEGER NOT NULL,
		note TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, chapter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS site_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS business_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		user_id TEXT,
		chapter_id TEXT,
		metadata TEXT,
		occurred_at TIMESTAMP NOT NULL
	)`,
}

// MigratePostgres creates the schema if it does not exist yet.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate stmt %d: %w", i, err)
		}
	}
	return nil
}

// MigrateSQLite creates the schema if it does not exist yet.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for i, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate stmt %d: %w", i, err)
		}
	}
	return nil
}
