package app

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHGATE_ACCESS_TOKEN_SECRET", strings.Repeat("a", 40))
	t.Setenv("AUTHGATE_REFRESH_TOKEN_SECRET", strings.Repeat("r", 40))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("ttl defaults: access=%v refresh=%v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if !cfg.CookieSecure || cfg.LoginPath != "/login" || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("database should be off by default")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHGATE_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("AUTHGATE_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("AUTHGATE_REFRESH_TOKEN_TTL", "24h")
	t.Setenv("AUTHGATE_COOKIE_SECURE", "false")
	t.Setenv("AUTHGATE_DB_MAX_CONNS", "3")
	t.Setenv("AUTHGATE_PUBLIC_ROUTES", "/docs/*, /pricing")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" || cfg.AccessTokenTTL != 5*time.Minute || cfg.RefreshTokenTTL != 24*time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CookieSecure || cfg.DBMaxConns != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	routes := strings.Join(cfg.PublicRouteList(), " ")
	for _, want := range []string{"/docs/*", "/pricing", "/login"} {
		if !strings.Contains(routes, want) {
			t.Fatalf("public routes %q missing %q", routes, want)
		}
	}
}

func TestLoadConfig_DotEnvBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "AUTHGATE_LOG_LEVEL=debug\nAUTHGATE_HTTP_ADDR=127.0.0.1:7000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("AUTHGATE_HTTP_ADDR", "127.0.0.1:7001")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel=%q, want value from .env", cfg.LogLevel)
	}
	if cfg.HTTPAddr != "127.0.0.1:7001" {
		t.Fatalf("HTTPAddr=%q, environment must win over .env", cfg.HTTPAddr)
	}
}

func TestLoadConfig_MissingDotEnvIsFine(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{"AUTHGATE_COOKIE_SAMESITE", "sometimes"},
		{"AUTHGATE_LOGIN_PATH", "login"},
		{"AUTHGATE_LOGIN_BURST", "0"},
		{"AUTHGATE_DB_MIN_CONNS", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := loadConfig(""); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	setSecrets(t)
	t.Setenv("AUTHGATE_COOKIE_SAMESITE", "strict")
	t.Setenv("AUTHGATE_COOKIE_DOMAIN", "example.test")
	t.Setenv("AUTHGATE_LOGIN_RATE_PER_MINUTE", "30")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if sc.Issuer != "authgate" || len(sc.AccessSecret) != 40 {
		t.Fatalf("session config: issuer=%q secret len=%d", sc.Issuer, len(sc.AccessSecret))
	}

	ck := cfg.Cookies()
	if ck.SameSite != http.SameSiteStrictMode || ck.Domain != "example.test" {
		t.Fatalf("cookies: %+v", ck)
	}
	if got := cfg.APIConfig().LoginRate; got != 0.5 {
		t.Fatalf("LoginRate=%v, want 0.5/s", got)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	base := func() Config {
		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		cfg.AccessTokenSecret = strings.Repeat("a", 40)
		cfg.RefreshTokenSecret = strings.Repeat("r", 40)
		return cfg
	}

	if err := ValidateSecurityConfig(base(), nil); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing access secret", func(c *Config) { c.AccessTokenSecret = "" }},
		{"short secret", func(c *Config) { c.RefreshTokenSecret = "short" }},
		{"same secrets", func(c *Config) { c.RefreshTokenSecret = c.AccessTokenSecret }},
		{"refresh ttl not above access", func(c *Config) { c.RefreshTokenTTL = c.AccessTokenTTL }},
		{"weak password policy", func(c *Config) { c.PasswordMinLength = 4 }},
		{"samesite none without secure", func(c *Config) { c.CookieSameSite = "none"; c.CookieSecure = false }},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := ValidateSecurityConfig(cfg, nil); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
