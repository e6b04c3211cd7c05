package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"authgate/cmd/internal/auth/api"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/session"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every configuration key.
const EnvPrefix = "AUTHGATE"

// Config contains all runtime configuration. Values come from the environment,
// optionally seeded by a .env file in the working directory.
type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogSource bool   `mapstructure:"LOG_SOURCE"`

	ReadHeaderTimeout time.Duration `mapstructure:"HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `mapstructure:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `mapstructure:"HTTP_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes    int           `mapstructure:"HTTP_MAX_HEADER_BYTES"`

	// DatabaseURL selects Postgres persistence. Empty means in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `mapstructure:"READINESS_REQUIRE_DB"`

	TokenIssuer        string        `mapstructure:"TOKEN_ISSUER"`
	AccessTokenSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	ClockSkew          time.Duration `mapstructure:"CLOCK_SKEW"`

	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`

	LoginPath      string `mapstructure:"LOGIN_PATH"`
	AfterLoginPath string `mapstructure:"AFTER_LOGIN_PATH"`
	// PublicRoutes extends the built-in allow-list. Comma separated, "/prefix/*" allowed.
	PublicRoutes string `mapstructure:"PUBLIC_ROUTES"`

	TrustProxy         bool    `mapstructure:"TRUST_PROXY"`
	LoginRatePerMinute float64 `mapstructure:"LOGIN_RATE_PER_MINUTE"`
	LoginBurst         int     `mapstructure:"LOGIN_BURST"`

	PasswordMinLength int `mapstructure:"PASSWORD_MIN_LENGTH"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() (Config, error) {
	return loadConfig(".env")
}

func loadConfig(envFile string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	if envFile != "" {
		mergeEnvFile(v, envFile)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeEnvFile layers AUTHGATE_* entries from a dotenv file between the
// defaults and the real environment.
func mergeEnvFile(v *viper.Viper, path string) {
	fv := viper.New()
	fv.SetConfigFile(path)
	fv.SetConfigType("env")
	_ = fv.ReadInConfig() // a missing .env is fine

	prefix := strings.ToLower(EnvPrefix) + "_"
	for _, k := range fv.AllKeys() {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			v.SetDefault(name, fv.Get(k))
		}
	}
}

// setDefaults registers every key. Unmarshal only sees keys viper knows about.
func setDefaults(v *viper.Viper) {
	sess := session.DefaultConfig()
	apiDef := api.DefaultConfig()

	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_SOURCE", true)

	v.SetDefault("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_MAX_HEADER_BYTES", 1<<20)

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("READINESS_REQUIRE_DB", false)

	v.SetDefault("TOKEN_ISSUER", sess.Issuer)
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", sess.AccessTokenTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", sess.RefreshTokenTTL)
	v.SetDefault("CLOCK_SKEW", sess.ClockSkew)

	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", "lax")

	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("AFTER_LOGIN_PATH", apiDef.AfterLoginPath)
	v.SetDefault("PUBLIC_ROUTES", "")

	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", apiDef.LoginRate*60)
	v.SetDefault("LOGIN_BURST", apiDef.LoginBurst)

	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("METRICS_ENABLED", true)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: AUTHGATE_HTTP_ADDR must be set")
	}
	if c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return errors.New("config: AUTHGATE_DB_MIN_CONNS must be between 0 and AUTHGATE_DB_MAX_CONNS")
	}
	if c.LoginRatePerMinute <= 0 || c.LoginBurst <= 0 {
		return errors.New("config: login rate and burst must be positive")
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.AfterLoginPath, "/") {
		return errors.New("config: login paths must be absolute")
	}
	if _, err := parseSameSite(c.CookieSameSite); err != nil {
		return err
	}
	return nil
}

// SessionConfig builds the token configuration. It fails when secrets are missing or weak.
func (c Config) SessionConfig() (session.Config, error) {
	sc := session.DefaultConfig()
	if s := strings.TrimSpace(c.TokenIssuer); s != "" {
		sc.Issuer = s
	}
	if c.AccessTokenTTL > 0 {
		sc.AccessTokenTTL = c.AccessTokenTTL
	}
	if c.RefreshTokenTTL > 0 {
		sc.RefreshTokenTTL = c.RefreshTokenTTL
	}
	sc.ClockSkew = c.ClockSkew

	sc, err := sc.WithSecrets(c.AccessTokenSecret, c.RefreshTokenSecret)
	if err != nil {
		return session.Config{}, err
	}
	if err := sc.Validate(); err != nil {
		return session.Config{}, err
	}
	return sc, nil
}

func (c Config) APIConfig() api.Config {
	ac := api.DefaultConfig()
	ac.TrustProxy = c.TrustProxy
	ac.LoginRate = c.LoginRatePerMinute / 60
	ac.LoginBurst = c.LoginBurst
	ac.AfterLoginPath = c.AfterLoginPath
	return ac
}

func (c Config) Cookies() gate.Cookies {
	ck := gate.DefaultCookies()
	ck.Secure = c.CookieSecure
	ck.Domain = strings.TrimSpace(c.CookieDomain)
	if ss, err := parseSameSite(c.CookieSameSite); err == nil {
		ck.SameSite = ss
	}
	return ck
}

// PublicRouteList is the built-in allow-list plus PublicRoutes and the login path.
func (c Config) PublicRouteList() []string {
	routes := append(gate.DefaultPublicRoutes(), c.LoginPath)
	for _, p := range strings.Split(c.PublicRoutes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			routes = append(routes, p)
		}
	}
	return routes
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("config: AUTHGATE_COOKIE_SAMESITE must be lax, strict or none, got %q", s)
	}
}
