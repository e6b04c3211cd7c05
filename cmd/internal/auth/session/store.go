package session

import (
	"context"
	"net"
	"time"
)

// Client is the request metadata recorded on a session.
type Client struct {
	IP        net.IP
	UserAgent string
}

// Session mirrors one authgate.sessions row.
type Session struct {
	ID        string
	UserID    string
	Valid     bool
	IP        net.IP
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// Store is the durable record of sessions.
//
// Implementations return ErrSessionNotFound for misses and raw errors for
// infrastructure failures; Service classifies the latter as ErrStoreUnavailable.
type Store interface {
	// Create inserts a new valid session and returns it.
	Create(ctx context.Context, now time.Time, userID string, client Client) (Session, error)

	// Get returns a session only while it is valid.
	Get(ctx context.Context, sessionID string) (Session, error)

	// ListActiveByUser returns a user's valid sessions, oldest first.
	ListActiveByUser(ctx context.Context, userID string) ([]Session, error)

	// ListActive returns every valid session. It feeds the startup cache rebuild.
	ListActive(ctx context.Context) ([]Entry, error)

	// Invalidate marks one session invalid. Unknown or already invalid ids are a no-op.
	Invalidate(ctx context.Context, now time.Time, sessionID string) error

	// InvalidateAllForUser marks every valid session of userID invalid and returns their ids.
	InvalidateAllForUser(ctx context.Context, now time.Time, userID string) ([]string, error)

	// Delete removes the row outright. Unknown ids are a no-op.
	Delete(ctx context.Context, sessionID string) error

	// Touch bumps updated_at on a valid session.
	Touch(ctx context.Context, now time.Time, sessionID string) error
}
