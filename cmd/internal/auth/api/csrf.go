package authapi

import (
	"mime"
	"net/http"
	"strings"
)

// RequireJSONBody blocks cross-site form posts: every request that is not
// GET, HEAD or OPTIONS must declare Content-Type application/json, and when
// AllowedOrigins is configured its Origin header must be listed.
func RequireJSONBody(cfg Config, next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !isJSONContentType(r.Header.Get("Content-Type")) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
				"non-GET requests must send a JSON body")
			return
		}

		if len(allowed) > 0 {
			origin := strings.TrimRight(strings.ToLower(strings.TrimSpace(r.Header.Get("Origin"))), "/")
			if _, ok := allowed[origin]; !ok {
				writeError(w, http.StatusForbidden, "origin_not_allowed", "origin not allowed")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func isJSONContentType(v string) bool {
	if v == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mt == "application/json"
}
