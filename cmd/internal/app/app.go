// Package app wires the authgate server runtime: config, logging, stores, the
// request gate and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/api"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/internal/db"
	"authgate/cmd/internal/metrics"
	"authgate/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns the HTTP server wiring and every long-lived dependency.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	sessions *session.Service
	gate     *gate.Gate
	auth     *api.Handler
	metrics  *metrics.Registry
}

// New constructs a fully wired App. It does not serve and does not rebuild the cache; Run does.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogSource)
	}
	if err := ValidateSecurityConfig(cfg, log); err != nil {
		return nil, err
	}
	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	users, sessStore, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	cache := session.NewCache()
	opts := []session.Option{session.WithLogger(log)}
	gateOpts := []gate.Option{gate.WithLogger(log), gate.WithFingerprintKey(sessCfg.RefreshSecret)}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New(cache)
		opts = append(opts, session.WithObserver(a.metrics))
		gateOpts = append(gateOpts, gate.WithObserver(a.metrics))
	}

	a.sessions, err = session.NewService(sessCfg, sessStore, cache, api.Profiles(users), opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.gate = gate.New(a.sessions, gate.NewRouteMatcher(cfg.PublicRouteList()...), gateOpts...)

	pw, err := password.New(password.Options{MinLength: cfg.PasswordMinLength})
	if err != nil {
		a.close()
		return nil, err
	}
	a.auth, err = api.NewHandler(users, a.sessions, cfg.APIConfig(),
		api.WithLogger(log),
		api.WithCookies(cfg.Cookies()),
		api.WithPasswordConfig(pw),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// openStores decides between Postgres-backed persistence and in-memory dev stores.
func (a *App) openStores(ctx context.Context) (identity.Store, session.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("db.disabled.inmemory_store", "hint", "sessions and users are lost on restart")
		return identity.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	if a.cfg.MigrateOnStart {
		if err := db.Migrate(a.cfg.DatabaseURL, db.Up); err != nil {
			return nil, nil, err
		}
		a.log.Info("db.migrate.done", "direction", string(db.Up))
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	a.dbPool = pool

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	a.log.Info("db.enabled.postgres_store")
	return users, session.NewPostgresStore(pool), nil
}

// Handler returns the full middleware chain. The gate runs before any route.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.metrics, a.auth)

	var h http.Handler = mux
	h = a.gate.Middleware(a.cfg.Cookies(), a.cfg.LoginPath)(h)
	h = WithSecurityHeaders(h)

	var obs RequestObserver
	if a.metrics != nil {
		obs = a.metrics
	}
	return WithRequestLogging(h, a.log, obs)
}

// Rebuild fills the session cache from the store. It must succeed before traffic is accepted.
func (a *App) Rebuild(ctx context.Context) error {
	start := time.Now()
	n, err := a.sessions.RebuildCache(ctx)
	if err != nil {
		a.log.Error("session.cache.rebuild.fail", "err", err)
		return fmt.Errorf("session cache rebuild: %w", err)
	}
	a.log.Info("session.cache.rebuilt", "sessions", n, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Run rebuilds the cache, starts the HTTP server and blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.Rebuild(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil, "metrics", a.metrics != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
