package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.
//
// Each test connects with search_path pinned to a throwaway schema, so the
// store's unqualified table names resolve there and the schema can be dropped
// wholesale afterwards.

func TestPostgresSessionStore_UpsertReplacesPreviousSession(t *testing.T) {
	t.Parallel()

	pool := mustOpenSessionTestPool(t)
	s := NewPostgresStore(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	userID := mustInsertUser(t, pool, "alice")

	if err := s.Upsert(ctx, now, userID, "hash-one", now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if err := s.Upsert(ctx, now.Add(time.Second), userID, "hash-two", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	if _, err := s.GetByRefreshHash(ctx, "hash-one"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old hash: expected ErrSessionNotFound, got %v", err)
	}

	row, err := s.GetByRefreshHash(ctx, "hash-two")
	if err != nil {
		t.Fatalf("get hash-two: %v", err)
	}
	if row.UserID != userID {
		t.Fatalf("user id: got %v, want %v", row.UserID, userID)
	}
	if row.Username != "alice" {
		t.Fatalf("username from join: got %q", row.Username)
	}
	if row.RevokedAt != nil {
		t.Fatalf("fresh session must not be revoked: %v", row.RevokedAt)
	}
}

func TestPostgresSessionStore_UpsertClearsRevocation(t *testing.T) {
	t.Parallel()

	pool := mustOpenSessionTestPool(t)
	s := NewPostgresStore(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	userID := mustInsertUser(t, pool, "bob")

	if err := s.Upsert(ctx, now, userID, "hash-one", now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.RevokeByHash(ctx, now, "hash-one"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Logging in again reuses the row and clears revoked_at.
	if err := s.Upsert(ctx, now.Add(time.Second), userID, "hash-two", now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert after revoke: %v", err)
	}
	row, err := s.GetByRefreshHash(ctx, "hash-two")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.RevokedAt != nil {
		t.Fatalf("upsert must clear revoked_at, got %v", row.RevokedAt)
	}
}

func TestPostgresSessionStore_ReplaceSwapsSecret(t *testing.T) {
	t.Parallel()

	pool := mustOpenSessionTestPool(t)
	s := NewPostgresStore(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	userID := mustInsertUser(t, pool, "carol")

	if err := s.Upsert(ctx, now, userID, "hash-old", now.Add(time.Minute)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	newExp := now.Add(time.Hour)
	if err := s.Replace(ctx, now.Add(time.Second), userID, "hash-new", newExp); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := s.GetByRefreshHash(ctx, "hash-old"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old hash: expected ErrSessionNotFound, got %v", err)
	}
	row, err := s.GetByRefreshHash(ctx, "hash-new")
	if err != nil {
		t.Fatalf("get hash-new: %v", err)
	}
	// TIMESTAMPTZ stores microseconds, so allow sub-millisecond drift.
	if d := row.ExpiresAt.Sub(newExp); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("expiry: got %v, want %v", row.ExpiresAt, newExp)
	}
	if row.Username != "carol" {
		t.Fatalf("username from join: got %q", row.Username)
	}
}

func TestPostgresSessionStore_RevokeIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := mustOpenSessionTestPool(t)
	s := NewPostgresStore(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	userID := mustInsertUser(t, pool, "dave")

	if err := s.Upsert(ctx, now, userID, "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.RevokeByHash(ctx, now, "hash"); err != nil {
		t.Fatalf("revoke 1: %v", err)
	}
	row, err := s.GetByRefreshHash(ctx, "hash")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.RevokedAt == nil {
		t.Fatal("expected revoked_at to be set")
	}
	first := *row.RevokedAt

	// A later revoke keeps the original timestamp.
	if err := s.RevokeByHash(ctx, now.Add(time.Hour), "hash"); err != nil {
		t.Fatalf("revoke 2: %v", err)
	}
	row, err = s.GetByRefreshHash(ctx, "hash")
	if err != nil {
		t.Fatalf("get after revoke 2: %v", err)
	}
	if row.RevokedAt == nil || !row.RevokedAt.Equal(first) {
		t.Fatalf("revoked_at moved: got %v, want %v", row.RevokedAt, first)
	}

	// Unknown digests are a no-op.
	if err := s.RevokeByHash(ctx, now, "no-such-hash"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}
}

// ---- helpers ----

// mustOpenSessionTestPool opens a pool whose search_path points at a new
// throwaway schema with the users and refresh_sessions tables applied.
func mustOpenSessionTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: DATABASE_URL is not set")
	}

	schema := "goban_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	ddlCtx, ddlCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer ddlCancel()

	if _, err := pool.Exec(ddlCtx, `CREATE SCHEMA `+quoteIdent(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = pool.Exec(dropCtx, `DROP SCHEMA IF EXISTS `+quoteIdent(schema)+` CASCADE`)
	})

	// Unqualified names resolve into the schema via search_path.
	if _, err := pool.Exec(ddlCtx, `
CREATE TABLE users (
  id UUID PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE refresh_sessions (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
  refresh_token_hash TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  revoked_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX idx_refresh_sessions_token_hash ON refresh_sessions (refresh_token_hash);
`); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return pool
}

func mustInsertUser(t *testing.T, pool *pgxpool.Pool, username string) uuid.UUID {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, now())
	`, id, username, "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"); err != nil {
		t.Fatalf("insert user %q: %v", username, err)
	}
	return id
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func quoteIdent(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
