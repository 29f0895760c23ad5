package app

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

	"goban/cmd/identity"
	"goban/cmd/internal/auth/session"
)

// The migrator test is opt-in and requires DATABASE_URL. It connects with
// search_path pinned to a throwaway schema, so Migrate's unqualified DDL
// lands there and the schema can be dropped wholesale afterwards.

func TestMigrateIdempotentAndStoreCompatible(t *testing.T) {
	t.Parallel()

	pool := mustOpenMigrateTestPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("second migrate must be a no-op: %v", err)
	}

	// The schema is only correct if the stores can work on it.
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}

	now := time.Now().UTC()
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Username:     "migrator",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		Now:          now,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sessions := session.NewPostgresStore(pool)
	if err := sessions.Upsert(ctx, now, u.ID, "migrate-hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("upsert session: %v", err)
	}

	row, err := sessions.GetByRefreshHash(ctx, "migrate-hash")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if row.UserID != u.ID || row.Username != "migrator" {
		t.Fatalf("session row mismatch: %+v", row)
	}
}

// ---- helpers ----

func mustOpenMigrateTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: DATABASE_URL is not set")
	}

	schema := "goban_mig_" + strings.ReplaceAll(uuid.NewString(), "-", "")

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
		if migrateTestShouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable (DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	ddlCtx, ddlCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ddlCancel()

	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := pool.Exec(ddlCtx, `CREATE SCHEMA `+ident); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = pool.Exec(dropCtx, `DROP SCHEMA IF EXISTS `+ident+` CASCADE`)
	})

	return pool
}

func migrateTestShouldSkip(err error) bool {
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
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
