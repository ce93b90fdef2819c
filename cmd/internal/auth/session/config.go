package session

import (
	"os"
	"time"
)

const (
	// DefaultTTL is the lifetime of a freshly issued or renewed session.
	DefaultTTL = 30 * 24 * time.Hour

	// DefaultRenewWindow is how close to expiry a session must be before it is renewed.
	DefaultRenewWindow = 15 * 24 * time.Hour
)

// Config defines the runtime policy of the session lifecycle.
type Config struct {
	// TTL is added to "now" when a session is created or renewed.
	TTL time.Duration

	// RenewWindow is measured back from expires_at; a validation at or after
	// expires_at - RenewWindow renews the session.
	RenewWindow time.Duration
}

// DefaultConfig returns the 30 day lifetime with a 15 day renewal window.
func DefaultConfig() Config {
	return Config{
		TTL:         DefaultTTL,
		RenewWindow: DefaultRenewWindow,
	}
}

// Validate checks 0 < RenewWindow < TTL.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.RenewWindow <= 0 {
		return ErrConfig
	}
	if c.RenewWindow >= c.TTL {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - LUCIA_SESSION_TTL
//   - LUCIA_SESSION_RENEW_WINDOW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LUCIA_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("LUCIA_SESSION_RENEW_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewWindow = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
