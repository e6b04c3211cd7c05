// Package pgtest opens a migrated Postgres pool for integration tests.
//
// Tests are opt-in: without AUTHGATE_DATABASE_URL they skip. Outside CI an
// unreachable server also skips, to keep local runs fast.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"authgate/cmd/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL names the variable holding the integration database DSN.
const EnvDatabaseURL = "AUTHGATE_DATABASE_URL"

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Open returns a pool against a database migrated to the latest schema.
// The pool is closed through t.Cleanup.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dsn == "" {
		t.Skipf("integration test skipped: %s is not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvDatabaseURL, err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("pool.Ping: %v", err)
	}

	migrateOnce.Do(func() { migrateErr = db.Migrate(dsn, db.Up) })
	if migrateErr != nil {
		pool.Close()
		t.Fatalf("migrate up: %v", migrateErr)
	}

	t.Cleanup(pool.Close)
	return pool
}

func shouldSkip(err error) bool {
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
