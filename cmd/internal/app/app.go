// Package app wires the session service runtime: config, logging, the session
// store, HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	authapi "github.com/christensenjo/lucia-auth/cmd/internal/auth/api"
	"github.com/christensenjo/lucia-auth/cmd/internal/auth/session"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow connection-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type redisStore struct {
	rdb *redis.Client
}

func (s redisStore) Close(_ context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// backend is the session store chosen at startup plus the resources it owns.
type backend struct {
	kind     string
	sessions session.Store
	closer   Store
	ready    readiness
}

// App is the session service runtime: it owns the HTTP server and the store
// connections.
type App struct {
	cfg Config
	log Logger

	backend  backend
	sessions *session.Manager
	auth     *authapi.Handler
	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	authCfg := authapi.LoadConfigFromEnv()
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	kind, err := resolveStoreKind(cfg)
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, authCfg, kind); err != nil {
		return nil, err
	}

	be, err := newBackend(ctx, cfg, log, kind)
	if err != nil {
		return nil, err
	}

	a, err := assemble(cfg, log, be, sessCfg, authCfg)
	if err != nil {
		_ = be.closer.Close(ctx)
		return nil, err
	}
	return a, nil
}

// assemble builds the manager, HTTP handler and metrics around an open backend.
func assemble(cfg Config, log Logger, be backend, sessCfg session.Config, authCfg authapi.Config) (*App, error) {
	var (
		registry *prometheus.Registry
		reg      prometheus.Registerer
	)
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = registry
	}

	sessMetrics, err := session.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	httpMet, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	mgr, err := session.NewManager(sessCfg, be.sessions,
		session.WithLogger(log.With("component", "session", "store", be.kind)),
		session.WithMetrics(sessMetrics),
	)
	if err != nil {
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log.With("component", "auth"), authCfg, mgr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, be.ready, registry, authHandler)

	var h http.Handler = authapi.RequireJSONBody(authCfg, mux)
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, httpMet)

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  be,
		sessions: mgr,
		auth:     authHandler,
		registry: registry,
		handler:  h,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session lifecycle manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"store", a.backend.kind,
		"metrics", a.registry != nil,
	)

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
		_ = a.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the store connections owned by the App.
func (a *App) Close(ctx context.Context) error {
	if a.backend.closer == nil {
		return nil
	}
	return a.backend.closer.Close(ctx)
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

// newBackend opens the session store of the given kind.
func newBackend(ctx context.Context, cfg Config, log Logger, kind string) (backend, error) {
	switch kind {
	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		if cfg.DBMigrate {
			if err := migrateDB(ctx, log, pool); err != nil {
				pool.Close()
				return backend{}, err
			}
		}
		st, err := session.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		if len(cfg.DevUserIDs) > 0 {
			log.Warn("store.dev_users.ignored", "store", kind, "reason", "postgres users live in app_user")
		}
		log.Info("store.enabled", "store", kind)
		return backend{
			kind:     kind,
			sessions: st,
			closer:   dbStore{pool: pool},
			ready:    readiness{storeKind: kind, dbPool: pool},
		}, nil

	case StoreRedis:
		rdb, err := NewRedisClient(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		be, err := redisBackend(ctx, cfg, log, rdb)
		if err != nil {
			_ = rdb.Close()
			return backend{}, err
		}
		be.closer = redisStore{rdb: rdb}
		return be, nil

	case StoreMemory:
		st := session.NewMemoryStore()
		for _, id := range cfg.DevUserIDs {
			st.PutUser(id)
		}
		log.Info("store.enabled", "store", kind, "dev_users", len(cfg.DevUserIDs))
		return backend{
			kind:     kind,
			sessions: st,
			closer:   nopStore{},
			ready:    readiness{storeKind: kind},
		}, nil

	default:
		return backend{}, fmt.Errorf("unknown session store %q", kind)
	}
}

func redisBackend(ctx context.Context, cfg Config, log Logger, rdb redis.UniversalClient) (backend, error) {
	st, err := session.NewRedisStore(rdb, cfg.RedisPrefix)
	if err != nil {
		return backend{}, err
	}
	for _, id := range cfg.DevUserIDs {
		if err := st.PutUser(ctx, id); err != nil {
			return backend{}, fmt.Errorf("seed dev user %d: %w", id, err)
		}
	}
	log.Info("store.enabled", "store", StoreRedis, "prefix", cfg.RedisPrefix, "dev_users", len(cfg.DevUserIDs))
	return backend{
		kind:     StoreRedis,
		sessions: st,
		closer:   nopStore{},
		ready:    readiness{storeKind: StoreRedis, redis: rdb},
	}, nil
}
