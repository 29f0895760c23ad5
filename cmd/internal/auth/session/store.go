package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Row mirrors a refresh_sessions row joined with its owning user.
type Row struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Username         string
	RefreshTokenHash string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
}

// Store abstracts persistence for refresh sessions.
//
// The table holds at most one row per user (unique user_id); Upsert and
// Replace both key on the user, never on the session id.
type Store interface {
	// Upsert installs a fresh session for the user, replacing any previous
	// one: new row id, new hash, fresh expiry, revoked_at cleared.
	Upsert(ctx context.Context, now time.Time, userID uuid.UUID, refreshHash string, expiresAt time.Time) error

	// GetByRefreshHash loads the session owning a refresh token digest,
	// joined with the username. Unknown digests yield ErrSessionNotFound.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// Replace swaps the stored hash and expiry for the user's session
	// (refresh rotation).
	Replace(ctx context.Context, now time.Time, userID uuid.UUID, newHash string, newExpiresAt time.Time) error

	// RevokeByHash marks the session revoked. Idempotent; unknown digests
	// are not an error.
	RevokeByHash(ctx context.Context, now time.Time, refreshHash string) error
}
