package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (authgate.sessions).
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore creates a Postgres-backed session store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{"authgate", "sessions"}.Sanitize(),
	}
}

const sessionColumns = `id, user_id, valid, COALESCE(host(ip), ''), COALESCE(user_agent, ''), created_at, updated_at, revoked_at`

func scanSession(row pgx.Row) (Session, error) {
	var (
		s  Session
		ip string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Valid, &ip, &s.UserAgent, &s.CreatedAt, &s.UpdatedAt, &s.RevokedAt); err != nil {
		return Session{}, err
	}
	s.IP = net.ParseIP(ip)
	return s, nil
}

// Create inserts a new valid session row with a ULID id.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, userID string, client Client) (Session, error) {
	id := ulid.Make().String()

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, user_id, valid, user_agent, ip, created_at, updated_at)
		VALUES ($1, $2, true, $3, $4::inet, $5, $5)
		RETURNING %s
	`, s.table, sessionColumns), id, userID, nullIfEmpty(client.UserAgent), nullIfEmpty(ipString(client.IP)), now)

	sess, err := scanSession(row)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Session{}, ErrUserNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// Get loads a valid session by id.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Session, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND valid
	`, sessionColumns, s.table), sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListActiveByUser returns valid sessions for a user, oldest first.
func (s *PostgresStore) ListActiveByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1 AND valid
		ORDER BY created_at ASC, id ASC
	`, sessionColumns, s.table), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0, 4)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListActive returns every valid (session, user) pair.
func (s *PostgresStore) ListActive(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id
		FROM %s
		WHERE valid
	`, s.table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Entry])
}

// Invalidate marks one session invalid (idempotent).
func (s *PostgresStore) Invalidate(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET valid = false,
		    revoked_at = COALESCE(revoked_at, $2),
		    updated_at = $2
		WHERE id = $1 AND valid
	`, s.table), sessionID, now)
	return err
}

// InvalidateAllForUser marks all valid sessions of a user invalid and returns their ids.
func (s *PostgresStore) InvalidateAllForUser(ctx context.Context, now time.Time, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		UPDATE %s
		SET valid = false,
		    revoked_at = COALESCE(revoked_at, $2),
		    updated_at = $2
		WHERE user_id = $1 AND valid
		RETURNING id
	`, s.table), userID, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Delete removes a session row (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), sessionID)
	return err
}

// Touch updates updated_at for a valid session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET updated_at = $2
		WHERE id = $1 AND valid
	`, s.table), sessionID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}
