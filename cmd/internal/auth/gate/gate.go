// Package gate decides, once per request, who the caller is.
//
// Authenticate is a pure decision over two optional credentials; the HTTP
// Middleware is the cookie/header transport around it.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/token"

	"golang.org/x/sync/singleflight"
)

// Sessions is the slice of session.Service the gate depends on.
type Sessions interface {
	VerifyAccess(tok string) (session.AccessClaims, error)
	IsActive(sessionID string) bool
	Rotate(ctx context.Context, refreshToken string) (session.Rotation, error)
}

// Credentials are the raw tokens presented with a request. Either may be empty.
type Credentials struct {
	Access  string
	Refresh string
}

type Outcome int

const (
	// Proceed lets the request through, with or without an identity.
	Proceed Outcome = iota
	// RedirectLogin rejects an anonymous caller on a protected route.
	RedirectLogin
	// Unavailable means the session store could not be consulted. It is retryable.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case RedirectLogin:
		return "redirect_login"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Reason explains an anonymous or rejected decision.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonAnonymous      Reason = "anonymous"
	ReasonSessionExpired Reason = "session_expired"
	ReasonStoreDown      Reason = "store_unavailable"
)

// Decision is the result of Authenticate.
type Decision struct {
	Outcome Outcome

	// Identity is nil for anonymous callers.
	Identity *session.Principal

	// Rotated carries a new token pair the transport must persist.
	Rotated *session.Issued

	// ClearCredentials asks the transport to drop both tokens.
	ClearCredentials bool

	Reason Reason
	Err    error
}

// Authenticated reports whether the decision carries an identity.
func (d Decision) Authenticated() bool { return d.Identity != nil }

// Observer receives one call per decision.
type Observer interface {
	ObserveDecision(outcome string, reason string, rotated bool)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(string, string, bool) {}

// Gate runs the per-request authentication procedure.
type Gate struct {
	sessions Sessions
	public   *RouteMatcher

	// rotations collapses concurrent rotations of one refresh token into a single call.
	rotations singleflight.Group

	log *slog.Logger
	obs Observer
	// fpKey keys the token fingerprints written to logs.
	fpKey []byte
}

type Option func(*Gate)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gate) {
		if o != nil {
			g.obs = o
		}
	}
}

// WithFingerprintKey keys logged token fingerprints, typically with the refresh signing secret.
func WithFingerprintKey(key []byte) Option {
	return func(g *Gate) { g.fpKey = key }
}

func New(sessions Sessions, public *RouteMatcher, opts ...Option) *Gate {
	if public == nil {
		public = NewRouteMatcher(DefaultPublicRoutes()...)
	}
	g := &Gate{
		sessions: sessions,
		public:   public,
		log:      slog.Default(),
		obs:      nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Public reports whether path is on the anonymous allow-list.
func (g *Gate) Public(path string) bool { return g.public.Allowed(path) }

// Authenticate decides the identity for one request to path.
func (g *Gate) Authenticate(ctx context.Context, path string, cred Credentials) Decision {
	d := g.authenticate(ctx, path, cred)
	g.obs.ObserveDecision(d.Outcome.String(), string(d.Reason), d.Rotated != nil)
	return d
}

func (g *Gate) authenticate(ctx context.Context, path string, cred Credentials) Decision {
	if cred.Access == "" && cred.Refresh == "" {
		return g.anonymous(path, ReasonAnonymous, false)
	}

	if cred.Access != "" {
		claims, err := g.sessions.VerifyAccess(cred.Access)
		if err == nil && g.sessions.IsActive(claims.SessionID) {
			p := claims.Principal
			return Decision{Outcome: Proceed, Identity: &p}
		}
		// Invalid, expired, or revoked: all fall through to the refresh token.
	}

	if cred.Refresh == "" {
		return g.anonymous(path, ReasonSessionExpired, true)
	}

	rot, err := g.rotate(ctx, cred.Refresh)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			g.log.Error("auth.gate.rotate.unavailable", "path", path, "err", err)
			return Decision{Outcome: Unavailable, Reason: ReasonStoreDown, Err: err}
		}
		g.log.Info("auth.gate.rotate.reject", "path", path, "token_fp", token.Fingerprint(cred.Refresh, g.fpKey), "err", err)
		d := g.anonymous(path, ReasonSessionExpired, true)
		d.Err = err
		return d
	}

	p := rot.Principal
	issued := rot.Issued
	return Decision{Outcome: Proceed, Identity: &p, Rotated: &issued}
}

func (g *Gate) rotate(ctx context.Context, refresh string) (session.Rotation, error) {
	key := token.HashSHA256Hex(refresh)
	v, err, _ := g.rotations.Do(key, func() (any, error) {
		// Shared by every waiter; detached from the first caller's cancellation.
		return g.sessions.Rotate(context.WithoutCancel(ctx), refresh)
	})
	if err != nil {
		return session.Rotation{}, err
	}
	return v.(session.Rotation), nil
}

func (g *Gate) anonymous(path string, reason Reason, clear bool) Decision {
	d := Decision{ClearCredentials: clear, Reason: reason}
	if g.public.Allowed(path) {
		d.Outcome = Proceed
	} else {
		d.Outcome = RedirectLogin
	}
	return d
}
