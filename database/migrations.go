package database

import (
	"context"
	"database/sql"
	"fmt"
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	usersSQL := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_settings (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		notify_scene BOOLEAN NOT NULL DEFAULT TRUE,
		notify_p2p BOOLEAN NOT NULL DEFAULT TRUE,
		steam_id VARCHAR(32),
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.ExecContext(ctx, usersSQL); err != nil {
		return fmt.Errorf("failed to run users migration: %w", err)
	}

	gamesSQL := `
	CREATE TABLE IF NOT EXISTS games (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(500) NOT NULL,
		catalog_id BIGINT,
		cover_url TEXT,
		platform VARCHAR(50),
		status VARCHAR(50) NOT NULL DEFAULT 'wanted',
		release_date TIMESTAMPTZ,
		release_status VARCHAR(20),
		hidden BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, catalog_id)
	);

	-- Migration for existing games table
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='games' AND column_name='hidden') THEN
			ALTER TABLE games ADD COLUMN hidden BOOLEAN NOT NULL DEFAULT FALSE;
		END IF;
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='games' AND column_name='release_status') THEN
			ALTER TABLE games ADD COLUMN release_status VARCHAR(20);
		END IF;
	END $$;

	CREATE INDEX IF NOT EXISTS idx_games_catalog_id ON games(catalog_id) WHERE catalog_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);
	`
	if _, err := db.ExecContext(ctx, gamesSQL); err != nil {
		return fmt.Errorf("failed to run games migration: %w", err)
	}

	feedsSQL := `
	CREATE TABLE IF NOT EXISTS feed_sources (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		url TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		title_field VARCHAR(100),
		link_field VARCHAR(100),
		last_checked_at TIMESTAMPTZ,
		status VARCHAR(20),
		last_error TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS feed_items (
		id BIGSERIAL PRIMARY KEY,
		source_id BIGINT NOT NULL REFERENCES feed_sources(id) ON DELETE CASCADE,
		guid TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		published_at TIMESTAMPTZ,
		catalog_id BIGINT,
		catalog_name VARCHAR(500),
		cover_url TEXT,
		match_checked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (source_id, guid)
	);

	-- Migration for existing feed_items table
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='feed_items' AND column_name='match_checked_at') THEN
			ALTER TABLE feed_items ADD COLUMN match_checked_at TIMESTAMPTZ;
		END IF;
	END $$;

	CREATE INDEX IF NOT EXISTS idx_feed_items_source_created ON feed_items(source_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_feed_items_unchecked ON feed_items(created_at) WHERE catalog_id IS NULL AND match_checked_at IS NULL;
	`
	if _, err := db.ExecContext(ctx, feedsSQL); err != nil {
		return fmt.Errorf("failed to run feeds migration: %w", err)
	}

	notificationsSQL := `
	CREATE TABLE IF NOT EXISTS notified_releases (
		id BIGSERIAL PRIMARY KEY,
		game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		release_id VARCHAR(100) NOT NULL,
		source VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (game_id, release_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type VARCHAR(50) NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		game_id BIGINT REFERENCES games(id) ON DELETE SET NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- Migration for notification titles built from long game titles
	DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name='notifications' AND column_name='title' AND data_type <> 'text') THEN
			ALTER TABLE notifications ALTER COLUMN title TYPE TEXT;
		END IF;
	END $$;

	CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);
	`
	if _, err := db.ExecContext(ctx, notificationsSQL); err != nil {
		return fmt.Errorf("failed to run notifications migration: %w", err)
	}

	return nil
}
