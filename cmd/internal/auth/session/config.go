package session

import (
	"crypto/hmac"
	"fmt"
	"time"

	"authgate/cmd/security/token"
)

// Config holds token lifetimes and signing material.
//
// Access and refresh tokens use separate secrets and audiences so that one
// kind can never be accepted as the other.
type Config struct {
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway applied to exp/nbf during verification.
	ClockSkew time.Duration

	AccessAudience  string
	RefreshAudience string

	AccessSecret  []byte
	RefreshSecret []byte
}

// DefaultConfig returns lifetimes suitable for browser sessions. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:          "authgate",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       5 * time.Second,
		AccessAudience:  "authgate:access",
		RefreshAudience: "authgate:refresh",
	}
}

// WithSecrets returns a copy of c carrying the given signing secrets.
// Both must be at least token.MinSecretBytes long.
func (c Config) WithSecrets(accessSecret, refreshSecret string) (Config, error) {
	a, err := token.Secret(accessSecret, token.MinSecretBytes)
	if err != nil {
		return Config{}, fmt.Errorf("%w: access secret: %w", ErrConfig, err)
	}
	r, err := token.Secret(refreshSecret, token.MinSecretBytes)
	if err != nil {
		return Config{}, fmt.Errorf("%w: refresh secret: %w", ErrConfig, err)
	}
	c.AccessSecret = a
	c.RefreshSecret = r
	return c, nil
}

// Validate checks invariants between fields.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer is empty", ErrConfig)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL <= c.AccessTokenTTL:
		return fmt.Errorf("%w: refresh token ttl (%s) must exceed access token ttl (%s)", ErrConfig, c.RefreshTokenTTL, c.AccessTokenTTL)
	case c.ClockSkew < 0 || c.ClockSkew >= c.AccessTokenTTL:
		return fmt.Errorf("%w: clock skew out of range", ErrConfig)
	case c.AccessAudience == "" || c.RefreshAudience == "" || c.AccessAudience == c.RefreshAudience:
		return fmt.Errorf("%w: access and refresh audiences must be distinct", ErrConfig)
	case len(c.AccessSecret) < token.MinSecretBytes || len(c.RefreshSecret) < token.MinSecretBytes:
		return fmt.Errorf("%w: signing secrets must be at least %d bytes", ErrConfig, token.MinSecretBytes)
	case hmac.Equal(c.AccessSecret, c.RefreshSecret):
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	return nil
}
