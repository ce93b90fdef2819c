package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	authapi "github.com/christensenjo/lucia-auth/cmd/internal/auth/api"
)

// readiness lists the backing services /readyz pings.
type readiness struct {
	storeKind string
	dbPool    *pgxpool.Pool
	redis     redis.UniversalClient
}

func (rd readiness) check(ctx context.Context) (string, error) {
	if rd.dbPool != nil {
		if err := PingDB(ctx, rd.dbPool, 2*time.Second); err != nil {
			return "db", err
		}
	}
	if rd.redis != nil {
		if err := PingRedis(ctx, rd.redis, 2*time.Second); err != nil {
			return "redis", err
		}
	}
	return "", nil
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	ready readiness,
	registry *prometheus.Registry,
	auth *authapi.Handler,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && ready.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dep, err := ready.check(r.Context()); err != nil {
			http.Error(w, dep+" not ready", http.StatusServiceUnavailable)
			log.Info("readyz.not_ready", "dependency", dep, "store", ready.storeKind, "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry:          registry,
			EnableOpenMetrics: true,
		}))
	}

	if auth != nil {
		auth.Register(mux)
	}
}
