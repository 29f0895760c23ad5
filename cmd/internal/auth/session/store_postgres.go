package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the refresh_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert installs a fresh session row for the user. ON CONFLICT keys on
// user_id, so a second login replaces the previous session outright.
func (s *PostgresStore) Upsert(ctx context.Context, now time.Time, userID uuid.UUID, refreshHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (
			id, user_id, refresh_token_hash, expires_at, revoked_at, created_at
		) VALUES ($1, $2, $3, $4, NULL, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			expires_at = EXCLUDED.expires_at,
			revoked_at = NULL,
			created_at = EXCLUDED.created_at
	`, uuid.New(), userID, refreshHash, expiresAt, now)
	return err
}

// GetByRefreshHash loads a session by refresh token digest.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			rs.id, rs.user_id, u.username, rs.refresh_token_hash,
			rs.created_at, rs.expires_at, rs.revoked_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.refresh_token_hash = $1
	`, refreshHash).Scan(
		&row.ID,
		&row.UserID,
		&row.Username,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}

	return row, nil
}

// Replace swaps the stored refresh hash and expiry for the user's session.
// Concurrent refreshes resolve last-writer-wins, same as a repeated login.
func (s *PostgresStore) Replace(ctx context.Context, now time.Time, userID uuid.UUID, newHash string, newExpiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET id = $2,
		    refresh_token_hash = $3,
		    expires_at = $4,
		    revoked_at = NULL,
		    created_at = $5
		WHERE user_id = $1
	`, userID, uuid.New(), newHash, newExpiresAt, now)
	return err
}

// RevokeByHash revokes the session owning a digest (idempotent).
func (s *PostgresStore) RevokeByHash(ctx context.Context, now time.Time, refreshHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE refresh_token_hash = $1
	`, refreshHash, now)
	return err
}
