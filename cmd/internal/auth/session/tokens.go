package session

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// maxTokenLen bounds parser input.
const maxTokenLen = 4096

// Principal is the identity carried by an access token.
type Principal struct {
	UserID    string
	Name      string
	Email     string
	SessionID string
}

// AccessClaims is a verified access token.
type AccessClaims struct {
	Principal
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is a verified refresh token. It deliberately names only the session.
type RefreshClaims struct {
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies access and refresh JWTs (HS256).
type Tokens struct {
	cfg Config
}

// NewTokens validates cfg and returns a signer/verifier.
func NewTokens(cfg Config) (*Tokens, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tokens{cfg: cfg}, nil
}

func (t *Tokens) registered(subject, audience string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    t.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueAccess signs an access token for p.
func (t *Tokens) IssueAccess(p Principal, now time.Time) (string, time.Time, error) {
	if p.UserID == "" || p.SessionID == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	claims := accessJWT{
		Name:             p.Name,
		Email:            p.Email,
		SessionID:        p.SessionID,
		RegisteredClaims: t.registered(p.UserID, t.cfg.AccessAudience, now, t.cfg.AccessTokenTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token bound to sessionID.
func (t *Tokens) IssueRefresh(sessionID string, now time.Time) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	claims := refreshJWT{
		SessionID:        sessionID,
		RegisteredClaims: t.registered("", t.cfg.RefreshAudience, now, t.cfg.RefreshTokenTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccess returns the claims of a valid access token, ErrTokenExpired, or ErrTokenInvalid.
func (t *Tokens) VerifyAccess(tok string, now time.Time) (AccessClaims, error) {
	var c accessJWT
	if err := t.parse(tok, &c, t.cfg.AccessSecret, t.cfg.AccessAudience, now); err != nil {
		return AccessClaims{}, err
	}
	if c.Subject == "" || c.SessionID == "" {
		return AccessClaims{}, ErrTokenInvalid
	}
	return AccessClaims{
		Principal: Principal{
			UserID:    c.Subject,
			Name:      c.Name,
			Email:     c.Email,
			SessionID: c.SessionID,
		},
		TokenID:   c.ID,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}, nil
}

// VerifyRefresh returns the claims of a valid refresh token, ErrTokenExpired, or ErrTokenInvalid.
func (t *Tokens) VerifyRefresh(tok string, now time.Time) (RefreshClaims, error) {
	var c refreshJWT
	if err := t.parse(tok, &c, t.cfg.RefreshSecret, t.cfg.RefreshAudience, now); err != nil {
		return RefreshClaims{}, err
	}
	if c.SessionID == "" {
		return RefreshClaims{}, ErrTokenInvalid
	}
	return RefreshClaims{
		SessionID: c.SessionID,
		TokenID:   c.ID,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}, nil
}

// authenticRefreshSession returns the session id of a refresh token whose
// signature, issuer and audience check out, ignoring its time window.
// Forged or foreign tokens yield ok=false.
func (t *Tokens) authenticRefreshSession(tok string) (string, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return "", false
	}
	var c refreshJWT
	_, err := jwt.ParseWithClaims(tok, &c, t.keyFunc(t.cfg.RefreshSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", false
	}
	if c.Issuer != t.cfg.Issuer || !slices.Contains(c.Audience, t.cfg.RefreshAudience) || c.SessionID == "" {
		return "", false
	}
	return c.SessionID, true
}

func (t *Tokens) parse(tok string, claims jwt.Claims, secret []byte, audience string, now time.Time) error {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return ErrTokenInvalid
	}
	_, err := jwt.ParseWithClaims(tok, claims, t.keyFunc(secret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

func (t *Tokens) keyFunc(secret []byte) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) { return secret, nil }
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
