package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ValidateSecurityConfig enforces the security policy at startup.
// Token secrets are mandatory; there is no fallback to generated keys.
func ValidateSecurityConfig(cfg Config, log *slog.Logger) error {
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return errors.New("security policy: AUTHGATE_ACCESS_TOKEN_SECRET and AUTHGATE_REFRESH_TOKEN_SECRET must be set")
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return fmt.Errorf("security policy: %w", err)
	}
	if cfg.PasswordMinLength < 8 {
		return errors.New("security policy: AUTHGATE_PASSWORD_MIN_LENGTH must be at least 8")
	}

	ck := cfg.Cookies()
	if ck.SameSite == http.SameSiteNoneMode && !ck.Secure {
		return errors.New("security policy: AUTHGATE_COOKIE_SAMESITE=none requires AUTHGATE_COOKIE_SECURE=true")
	}
	if !ck.Secure && log != nil {
		log.Warn("security.cookie.insecure", "hint", "session cookies will be sent over plain HTTP")
	}
	return nil
}
