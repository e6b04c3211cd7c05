package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Profile is the live user data an access token is minted from.
type Profile struct {
	Name  string
	Email string
}

// Users resolves the owner of a session at mint time.
// Implementations return ErrUserNotFound for missing users.
type Users interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// Issued is a freshly minted token pair.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Rotation is the result of a successful Rotate.
type Rotation struct {
	Issued
	Principal Principal
}

// Service ties together tokens, the durable store and the cache.
type Service struct {
	tokens *Tokens
	store  Store
	cache  *Cache
	users  Users

	log *slog.Logger
	obs Observer
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, store Store, cache *Cache, users Users, opts ...Option) (*Service, error) {
	if store == nil || cache == nil || users == nil {
		return nil, fmt.Errorf("%w: store, cache and users are required", ErrConfig)
	}
	tokens, err := NewTokens(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		tokens: tokens,
		store:  store,
		cache:  cache,
		users:  users,
		log:    slog.Default(),
		obs:    nopObserver{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Tokens exposes the signer, e.g. for handlers that only need to parse.
func (s *Service) Tokens() *Tokens { return s.tokens }

// RebuildCache replaces the cache with the store's valid sessions.
// It must complete before the request gate accepts traffic.
func (s *Service) RebuildCache(ctx context.Context) (int, error) {
	entries, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, storeFailure("rebuild", err)
	}
	s.cache.Rebuild(entries)
	s.obs.CacheRebuilt(len(entries))
	return len(entries), nil
}

// CreateSession records a new session for userID, indexes it, and mints its first token pair.
func (s *Service) CreateSession(ctx context.Context, userID string, client Client) (Issued, error) {
	now := s.now()

	profile, err := s.profile(ctx, userID)
	if err != nil {
		return Issued{}, err
	}

	sess, err := s.store.Create(ctx, now, userID, client)
	if err != nil {
		return Issued{}, storeFailure("create", err)
	}
	// A crash between these two writes is repaired by RebuildCache.
	s.cache.Add(sess.ID, userID)

	issued, err := s.mint(Principal{UserID: userID, Name: profile.Name, Email: profile.Email, SessionID: sess.ID}, now)
	if err != nil {
		s.purge(ctx, sess.ID, "create")
		return Issued{}, err
	}

	s.obs.SessionCreated()
	return issued, nil
}

// RevokeSession invalidates one session. Revoking an unknown or already revoked id is a no-op.
// The cache is evicted even when the store write fails.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	storeErr := s.store.Invalidate(ctx, s.now(), sessionID)
	evicted := s.cache.Remove(sessionID)

	if storeErr != nil {
		s.obs.Discrepancy("revoke")
		s.log.Warn("session.revoke.store.fail", "session_id", sessionID, "cache_evicted", evicted, "err", storeErr)
		return storeFailure("revoke", storeErr)
	}
	if evicted {
		s.obs.SessionsRevoked("logout", 1)
	}
	return nil
}

// RevokeAllSessions invalidates every session of userID and returns how many were revoked.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	ids, storeErr := s.store.InvalidateAllForUser(ctx, s.now(), userID)
	s.cache.RemoveMany(ids)
	// Catches ids the store did not report, including when it failed outright.
	stragglers := s.cache.RemoveUser(userID)

	if storeErr != nil {
		s.obs.Discrepancy("revoke_all")
		s.log.Warn("session.revoke_all.store.fail", "user_id", userID, "cache_evicted", len(stragglers), "err", storeErr)
		return 0, storeFailure("revoke_all", storeErr)
	}
	if len(stragglers) > 0 {
		s.log.Warn("session.revoke_all.cache.drift", "user_id", userID, "count", len(stragglers))
	}

	s.obs.SessionsRevoked("logout_all", len(ids))
	return len(ids), nil
}

// ListSessions returns the user's active devices, oldest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	out, err := s.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, storeFailure("list", err)
	}
	return out, nil
}

// VerifyAccess checks an access token's signature and time window.
// It does not consult the cache; see IsActive.
func (s *Service) VerifyAccess(tok string) (AccessClaims, error) {
	return s.tokens.VerifyAccess(tok, s.now())
}

// IsActive reports whether sessionID is currently valid according to the cache.
func (s *Service) IsActive(sessionID string) bool {
	return s.cache.IsActive(sessionID)
}

// SessionIDFromRefresh returns the session named by an authentic refresh token.
// Expired tokens are accepted so that logout still works after expiry.
func (s *Service) SessionIDFromRefresh(tok string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(tok, s.now())
	if err == nil {
		return claims.SessionID, nil
	}
	if sid, ok := s.tokens.authenticRefreshSession(tok); ok {
		return sid, nil
	}
	return "", ErrTokenInvalid
}

// Rotate exchanges a refresh token for a new pair bound to the same session.
//
// Any failure revokes the session named by the token, provided the token is
// authentic: the row is hard deleted and the id evicted from the cache.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (Rotation, error) {
	now := s.now()

	claims, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		if sid, ok := s.tokens.authenticRefreshSession(refreshToken); ok {
			s.purge(ctx, sid, "rotate.verify")
		}
		if errors.Is(err, ErrTokenExpired) {
			s.obs.RotationResult(RotationExpired)
		} else {
			s.obs.RotationResult(RotationInvalid)
		}
		return Rotation{}, err
	}
	sid := claims.SessionID

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		s.purge(ctx, sid, "rotate.get")
		if errors.Is(err, ErrSessionNotFound) {
			s.obs.RotationResult(RotationRevoked)
			return Rotation{}, ErrSessionRevoked
		}
		s.obs.RotationResult(RotationUnavailable)
		return Rotation{}, storeFailure("rotate.get", err)
	}
	// The cache is authoritative for revocation. A row still valid here lost
	// its invalidate or delete to a store outage; finish the job.
	if !s.cache.IsActive(sid) {
		s.log.Warn("session.rotate.evicted", "session_id", sid)
		s.purge(ctx, sid, "rotate.evicted")
		s.obs.RotationResult(RotationRevoked)
		return Rotation{}, ErrSessionRevoked
	}

	profile, err := s.profile(ctx, sess.UserID)
	if err != nil {
		s.purge(ctx, sid, "rotate.user")
		if errors.Is(err, ErrUserNotFound) {
			s.obs.RotationResult(RotationUserMissing)
		} else {
			s.obs.RotationResult(RotationUnavailable)
		}
		return Rotation{}, err
	}

	p := Principal{UserID: sess.UserID, Name: profile.Name, Email: profile.Email, SessionID: sid}
	issued, err := s.mint(p, now)
	if err != nil {
		s.purge(ctx, sid, "rotate.mint")
		s.obs.RotationResult(RotationInvalid)
		return Rotation{}, err
	}

	if err := s.store.Touch(ctx, now, sid); err != nil {
		s.log.Warn("session.rotate.touch.fail", "session_id", sid, "err", err)
	}

	s.obs.RotationResult(RotationOK)
	return Rotation{Issued: issued, Principal: p}, nil
}

func (s *Service) profile(ctx context.Context, userID string) (Profile, error) {
	p, err := s.users.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, storeFailure("users.profile", err)
	}
	return p, nil
}

func (s *Service) mint(p Principal, now time.Time) (Issued, error) {
	access, accessExp, err := s.tokens.IssueAccess(p, now)
	if err != nil {
		return Issued{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(p.SessionID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    p.SessionID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

// purge is the fail-closed revocation: hard delete plus eviction, both attempted.
func (s *Service) purge(ctx context.Context, sessionID, op string) {
	storeErr := s.store.Delete(ctx, sessionID)
	evicted := s.cache.Remove(sessionID)

	if storeErr != nil {
		s.obs.Discrepancy(op)
		s.log.Warn("session.purge.store.fail", "op", op, "session_id", sessionID, "cache_evicted", evicted, "err", storeErr)
		return
	}
	s.obs.SessionsRevoked("purge", 1)
}
