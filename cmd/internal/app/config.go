package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Store kinds accepted by LUCIA_SESSION_STORE.
const (
	StoreAuto     = "auto"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// SessionStore picks the session backend. "auto" prefers Postgres, then
	// Redis, then the in-process store.
	SessionStore string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	RedisURL    string
	RedisPrefix string

	// DevUserIDs seeds users into the memory and Redis stores, which have no
	// user table of their own.
	DevUserIDs []int64

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Production tightens the security policy checked by ValidateSecurityConfig.
	Production bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	devUsers, err := parseInt64List(EnvString("LUCIA_DEV_USER_IDS", ""))
	if err != nil {
		return Config{}, fmt.Errorf("LUCIA_DEV_USER_IDS: %w", err)
	}

	cfg := Config{
		HTTPAddr:  EnvString("LUCIA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LUCIA_LOG_LEVEL", "info"),
		LogFormat: EnvString("LUCIA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LUCIA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LUCIA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LUCIA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LUCIA_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LUCIA_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("LUCIA_HTTP_MAX_HEADER_BYTES", 1<<20),

		SessionStore: strings.ToLower(EnvString("LUCIA_SESSION_STORE", StoreAuto)),

		DatabaseURL: EnvString("LUCIA_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("LUCIA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LUCIA_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("LUCIA_DB_MIGRATE", false),

		RedisURL:    EnvString("LUCIA_REDIS_URL", ""),
		RedisPrefix: EnvString("LUCIA_REDIS_PREFIX", "lucia"),

		DevUserIDs: devUsers,

		ReadinessRequireDB: EnvBool("LUCIA_READINESS_REQUIRE_DB", false),

		MetricsEnabled: EnvBool("LUCIA_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvList("LUCIA_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("LUCIA_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("LUCIA_CORS_MAX_AGE_SECONDS", 600),

		Production: strings.EqualFold(EnvString("LUCIA_ENV", "development"), "production"),
	}

	switch cfg.SessionStore {
	case StoreAuto, StorePostgres, StoreRedis, StoreMemory:
	default:
		return Config{}, fmt.Errorf("LUCIA_SESSION_STORE: unknown store %q", cfg.SessionStore)
	}
	return cfg, nil
}

// resolveStoreKind maps "auto" onto a concrete backend and checks that the
// chosen backend has the connection settings it needs.
func resolveStoreKind(cfg Config) (string, error) {
	switch cfg.SessionStore {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return "", fmt.Errorf("session store %q requires LUCIA_DATABASE_URL", StorePostgres)
		}
		return StorePostgres, nil
	case StoreRedis:
		if cfg.RedisURL == "" {
			return "", fmt.Errorf("session store %q requires LUCIA_REDIS_URL", StoreRedis)
		}
		return StoreRedis, nil
	case StoreMemory:
		return StoreMemory, nil
	case StoreAuto, "":
		switch {
		case cfg.DatabaseURL != "":
			return StorePostgres, nil
		case cfg.RedisURL != "":
			return StoreRedis, nil
		default:
			return StoreMemory, nil
		}
	default:
		return "", fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func parseInt64List(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
