package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		platform_id TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		joined_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGSERIAL PRIMARY KEY,
		platform_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		platform_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('scheduled', 'active', 'completed', 'canceled')),
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ,
		user_count INTEGER NOT NULL DEFAULT 0,
		channel_id BIGINT NOT NULL REFERENCES channels(id),
		creator_id BIGINT NOT NULL REFERENCES users(id),
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions (channel_id, created_at DESC) WHERE status IN ('scheduled', 'active')`,
	`CREATE TABLE IF NOT EXISTS participations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('joined', 'left')),
		occurred_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participations_session ON participations (session_id, occurred_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
