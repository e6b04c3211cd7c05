package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"authgate/cmd/internal/pgtest"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when AUTHGATE_DATABASE_URL is set.

func TestPostgresStore_SessionLifecycle(t *testing.T) {
	pool := pgtest.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := mustCreateUser(ctx, t, pool)
	st := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := st.Create(ctx, now, userID, Client{IP: net.ParseIP("198.51.100.4"), UserAgent: "authgate-test/1.0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := st.Create(ctx, now.Add(time.Second), userID, Client{})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	got, err := st.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != userID || !got.Valid || got.UserAgent != "authgate-test/1.0" || !got.IP.Equal(net.ParseIP("198.51.100.4")) {
		t.Fatalf("Get returned %+v", got)
	}

	list, err := st.ListActiveByUser(ctx, userID)
	if err != nil || len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("ListActiveByUser=%+v err=%v", list, err)
	}

	if err := st.Touch(ctx, now.Add(time.Minute), first.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	if err := st.Invalidate(ctx, now, first.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := st.Invalidate(ctx, now, first.ID); err != nil {
		t.Fatalf("Invalidate twice: %v", err)
	}
	if _, err := st.Get(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := st.Touch(ctx, now, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Touch on invalid: %v", err)
	}

	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if !containsEntry(active, Entry{SessionID: second.ID, UserID: userID}) || containsEntry(active, Entry{SessionID: first.ID, UserID: userID}) {
		t.Fatalf("ListActive does not reflect validity")
	}

	ids, err := st.InvalidateAllForUser(ctx, now, userID)
	if err != nil || len(ids) != 1 || ids[0] != second.ID {
		t.Fatalf("InvalidateAllForUser=%v err=%v", ids, err)
	}

	if err := st.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
}

func TestPostgresStore_CreateUnknownUser(t *testing.T) {
	pool := pgtest.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewPostgresStore(pool).Create(ctx, time.Now().UTC(), ulid.Make().String(), Client{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresStore_ServiceRebuild(t *testing.T) {
	pool := pgtest.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	userID := mustCreateUser(ctx, t, pool)
	users := newFakeUsers()
	users.set(userID, Profile{Name: "It User", Email: "it@example.test"})

	cache := NewCache()
	svc, err := NewService(testConfig(t), NewPostgresStore(pool), cache, users)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	issued, err := svc.CreateSession(ctx, userID, Client{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	fresh := NewCache()
	svc2, _ := NewService(testConfig(t), NewPostgresStore(pool), fresh, users)
	if _, err := svc2.RebuildCache(ctx); err != nil {
		t.Fatalf("RebuildCache: %v", err)
	}
	if !fresh.IsActive(issued.SessionID) {
		t.Fatalf("rebuilt cache misses a valid session")
	}

	if _, err := svc.RevokeAllSessions(ctx, userID); err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	if _, err := svc.Rotate(ctx, issued.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func mustCreateUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	userID := ulid.Make().String()
	_, err := pool.Exec(ctx, `
		INSERT INTO authgate.users (id, first_name, email)
		VALUES ($1, 'It', $2)
	`, userID, "it_"+userID+"@example.test")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DELETE FROM authgate.users WHERE id = $1`, userID)
	})
	return userID
}

func containsEntry(entries []Entry, want Entry) bool {
	for _, e := range entries {
		if e == want {
			return true
		}
	}
	return false
}
