package session

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Session)}
}

func (s *MemoryStore) Create(_ context.Context, now time.Time, userID string, client Client) (Session, error) {
	if userID == "" {
		return Session{}, ErrUserNotFound
	}
	row := Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:    userID,
		Valid:     true,
		IP:        cloneIP(client.IP),
		UserAgent: client.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.rows[row.ID] = row
	s.mu.Unlock()
	return row, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[sessionID]
	if !ok || !row.Valid {
		return Session{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) ListActiveByUser(_ context.Context, userID string) ([]Session, error) {
	s.mu.RLock()
	out := make([]Session, 0, 4)
	for _, row := range s.rows {
		if row.Valid && row.UserID == userID {
			out = append(out, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.rows))
	for _, row := range s.rows {
		if row.Valid {
			out = append(out, Entry{SessionID: row.ID, UserID: row.UserID})
		}
	}
	return out, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.rows[sessionID]; ok && row.Valid {
		s.rows[sessionID] = revoked(row, now)
	}
	return nil
}

func (s *MemoryStore) InvalidateAllForUser(_ context.Context, now time.Time, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, row := range s.rows {
		if row.Valid && row.UserID == userID {
			s.rows[id] = revoked(row, now)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.rows, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok || !row.Valid {
		return ErrSessionNotFound
	}
	row.UpdatedAt = now
	s.rows[sessionID] = row
	return nil
}

func revoked(row Session, now time.Time) Session {
	row.Valid = false
	row.UpdatedAt = now
	if row.RevokedAt == nil {
		at := now
		row.RevokedAt = &at
	}
	return row
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}
