package app

import (
	"errors"
	"fmt"

	authapi "github.com/christensenjo/lucia-auth/cmd/internal/auth/api"
)

// ValidateSecurityConfig enforces the startup security policy.
// Production refuses settings that would leak session tokens, let callers mint
// sessions for arbitrary users, or lose sessions on restart.
func ValidateSecurityConfig(cfg Config, auth authapi.Config, storeKind string) error {
	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" && cfg.CORSAllowCredentials {
			return errors.New("security policy: LUCIA_CORS_ALLOWED_ORIGINS=* cannot be combined with credentials")
		}
	}

	if !cfg.Production {
		return nil
	}

	if !auth.CookieSecure {
		return errors.New("security policy: LUCIA_ENV=production requires LUCIA_AUTH_COOKIE_SECURE=true")
	}
	if auth.SessionAPIEnabled {
		return errors.New("security policy: LUCIA_AUTH_SESSION_API=true mints sessions without authentication and is not allowed when LUCIA_ENV=production")
	}
	if storeKind == StoreMemory {
		return fmt.Errorf("security policy: LUCIA_ENV=production cannot use the %q session store", StoreMemory)
	}
	if len(cfg.DevUserIDs) > 0 {
		return errors.New("security policy: LUCIA_DEV_USER_IDS is not allowed when LUCIA_ENV=production")
	}
	return nil
}
