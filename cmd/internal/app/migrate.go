package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations is the full schema for the identity and refresh-session tables.
// Every statement is idempotent so the migrator runs on each startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// UNIQUE user_id keeps at most one refresh session per user; a fresh
	// login replaces the row via ON CONFLICT in the session store.
	`CREATE TABLE IF NOT EXISTS refresh_sessions (
		id                 UUID PRIMARY KEY,
		user_id            UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		refresh_token_hash TEXT NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL,
		revoked_at         TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS refresh_sessions_token_hash_idx
		ON refresh_sessions (refresh_token_hash)`,
}

// Migrate applies the schema to the connected database. Table names are
// unqualified, so they land in whatever schema the pool's search_path
// resolves to.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
