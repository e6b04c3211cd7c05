package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	testAccessSecret  = strings.Repeat("a", 40)
	testRefreshSecret = strings.Repeat("r", 40)
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg, err := DefaultConfig().WithSecrets(testAccessSecret, testRefreshSecret)
	if err != nil {
		t.Fatalf("WithSecrets: %v", err)
	}
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]Profile
	err   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]Profile{
		"user-a": {Name: "Ada Lovelace", Email: "a@x.com"},
		"user-b": {Name: "Bob", Email: "b@x.com"},
	}}
}

func (f *fakeUsers) Profile(_ context.Context, userID string) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return Profile{}, f.err
	}
	p, ok := f.users[userID]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (f *fakeUsers) set(userID string, p Profile) {
	f.mu.Lock()
	f.users[userID] = p
	f.mu.Unlock()
}

func (f *fakeUsers) remove(userID string) {
	f.mu.Lock()
	delete(f.users, userID)
	f.mu.Unlock()
}

// flakyStore fails selected operations while delegating the rest.
type flakyStore struct {
	Store
	failGet        bool
	failInvalidate bool
	failDelete     bool
	failList       bool
}

var errConnLost = errors.New("conn lost")

func (f *flakyStore) Get(ctx context.Context, id string) (Session, error) {
	if f.failGet {
		return Session{}, errConnLost
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Invalidate(ctx context.Context, now time.Time, id string) error {
	if f.failInvalidate {
		return errConnLost
	}
	return f.Store.Invalidate(ctx, now, id)
}

func (f *flakyStore) InvalidateAllForUser(ctx context.Context, now time.Time, userID string) ([]string, error) {
	if f.failInvalidate {
		return nil, errConnLost
	}
	return f.Store.InvalidateAllForUser(ctx, now, userID)
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return errConnLost
	}
	return f.Store.Delete(ctx, id)
}

func (f *flakyStore) ListActive(ctx context.Context) ([]Entry, error) {
	if f.failList {
		return nil, errConnLost
	}
	return f.Store.ListActive(ctx)
}

type testEnv struct {
	svc   *Service
	store *MemoryStore
	cache *Cache
	users *fakeUsers
	clock *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore wraps the memory store with wrap when non-nil.
func newTestEnvWithStore(t *testing.T, wrap func(Store) Store) *testEnv {
	t.Helper()

	env := &testEnv{
		store: NewMemoryStore(),
		cache: NewCache(),
		users: newFakeUsers(),
		clock: newFakeClock(),
	}
	var st Store = env.store
	if wrap != nil {
		st = wrap(st)
	}
	svc, err := NewService(testConfig(t), st, env.cache, env.users, WithClock(env.clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.svc = svc
	return env
}

// assertConsistent checks that cache membership equals store validity for ids.
func (e *testEnv) assertConsistent(t *testing.T, ids ...string) {
	t.Helper()

	for _, id := range ids {
		_, err := e.store.Get(context.Background(), id)
		inStore := err == nil
		if got := e.cache.IsActive(id); got != inStore {
			t.Fatalf("session %s: cache active=%v, store valid=%v", id, got, inStore)
		}
	}
}
