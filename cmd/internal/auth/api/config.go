package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls the HTTP side of session authentication.
type Config struct {
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// LoginPath is where unauthenticated browser requests are redirected.
	LoginPath string

	// PublicPaths bypass RequireSession.
	PublicPaths []string

	// AllowedOrigins, when non-empty, restricts the Origin of unsafe requests.
	AllowedOrigins []string

	MaxBodyBytes int64

	// SessionAPIEnabled exposes the low-level /api/session endpoints
	// (token generation, create, validate, invalidate). Keep it off in production.
	SessionAPIEnabled bool
}

// DefaultConfig returns the cookie and redirect defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:     "session",
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
		LoginPath:      "/login",
		PublicPaths:    []string{"/", "/login"},
		MaxBodyBytes:   1 << 20, // 1 MiB
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()

	cfg := Config{
		CookieName:        envString("LUCIA_AUTH_COOKIE_NAME", def.CookieName),
		CookiePath:        envString("LUCIA_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:      strings.TrimSpace(os.Getenv("LUCIA_AUTH_COOKIE_DOMAIN")),
		CookieSecure:      envBool("LUCIA_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:    parseSameSite(os.Getenv("LUCIA_AUTH_COOKIE_SAMESITE")),
		LoginPath:         envString("LUCIA_AUTH_LOGIN_PATH", def.LoginPath),
		PublicPaths:       envList("LUCIA_AUTH_PUBLIC_PATHS", def.PublicPaths),
		AllowedOrigins:    envList("LUCIA_AUTH_ALLOWED_ORIGINS", nil),
		MaxBodyBytes:      envInt64("LUCIA_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		SessionAPIEnabled: envBool("LUCIA_AUTH_SESSION_API", false),
	}

	// SameSite=None is rejected by browsers unless the cookie is Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		cfg.LoginPath = def.LoginPath
	}

	return cfg
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
