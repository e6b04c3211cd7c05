package api

import "time"

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy honors X-Forwarded-For / X-Real-IP when deriving the client IP.
	TrustProxy   bool
	MaxBodyBytes int64

	// LoginRate and LoginBurst bound credential attempts per client IP.
	LoginRate  float64 // attempts per second
	LoginBurst int

	// LimiterIdleTTL is how long an idle per-IP limiter is kept.
	LimiterIdleTTL time.Duration

	// AfterLoginPath is where browser OAuth callbacks land.
	AfterLoginPath string

	OAuthStateCookie string
	OAuthStateTTL    time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:     1 << 20, // 1 MiB
		LoginRate:        10.0 / 60.0,
		LoginBurst:       5,
		LimiterIdleTTL:   15 * time.Minute,
		AfterLoginPath:   "/",
		OAuthStateCookie: "oauth_state",
		OAuthStateTTL:    10 * time.Minute,
	}
}

// normalized fills zero fields from DefaultConfig.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.LoginRate <= 0 {
		c.LoginRate = def.LoginRate
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = def.LoginBurst
	}
	if c.LimiterIdleTTL <= 0 {
		c.LimiterIdleTTL = def.LimiterIdleTTL
	}
	if c.AfterLoginPath == "" {
		c.AfterLoginPath = def.AfterLoginPath
	}
	if c.OAuthStateCookie == "" {
		c.OAuthStateCookie = def.OAuthStateCookie
	}
	if c.OAuthStateTTL <= 0 {
		c.OAuthStateTTL = def.OAuthStateTTL
	}
	return c
}
