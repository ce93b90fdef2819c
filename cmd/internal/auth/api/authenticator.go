package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/christensenjo/lucia-auth/cmd/internal/auth/session"
)

// Validator resolves a token to a session. *session.Manager satisfies it.
type Validator interface {
	Validate(ctx context.Context, now time.Time, tok string) (session.Result, error)
}

type ctxKey int

const authCtxKey ctxKey = iota

// FromContext returns the authenticated session stored by RequireSession.
func FromContext(ctx context.Context) (session.Authenticated, bool) {
	a, ok := ctx.Value(authCtxKey).(session.Authenticated)
	return a, ok
}

// WithAuthenticated returns a copy of ctx carrying a.
func WithAuthenticated(ctx context.Context, a session.Authenticated) context.Context {
	return context.WithValue(ctx, authCtxKey, a)
}

// Authenticator is the per-request entry point: cookie in, session.Result out.
type Authenticator struct {
	log      *slog.Logger
	cfg      Config
	cookies  cookies
	sessions Validator
	now      func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(log *slog.Logger, cfg Config, sessions Validator) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{
		log:      log,
		cfg:      cfg,
		cookies:  cookies{cfg: cfg},
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates the session cookie of r.
//
// A missing or malformed cookie is Unauthenticated without touching the store.
// Store failures are returned as errors and must be treated as a denial.
func (a *Authenticator) Authenticate(r *http.Request) (session.Result, error) {
	tok, ok := a.cookies.token(r)
	if !ok || !wellFormed(tok) {
		return session.Unauthenticated{}, nil
	}
	return a.sessions.Validate(r.Context(), a.now(), tok)
}

// RequireSession rejects requests without a valid session.
//
// Browser requests are redirected to LoginPath, JSON clients get 401. A stale
// cookie is cleared either way. Store failures yield 503 and leave the cookie
// alone so a transient outage does not log everybody out. Authenticated
// requests get the session in their context and a refreshed cookie expiry.
func (a *Authenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		_, hadCookie := a.cookies.token(r)

		res, err := a.Authenticate(r)
		if err != nil {
			a.log.Error("auth.session.validate.fail", "err", err, "path", r.URL.Path)
			writeStoreUnavailable(w)
			return
		}

		auth, ok := session.AsAuthenticated(res)
		if !ok {
			if hadCookie {
				a.cookies.clear(w)
			}
			a.deny(w, r)
			return
		}

		if tok, _ := a.cookies.token(r); tok != "" {
			a.cookies.set(w, tok, auth.Session.ExpiresAt)
		}
		next.ServeHTTP(w, r.WithContext(WithAuthenticated(r.Context(), auth)))
	})
}

func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "valid session required")
		return
	}
	http.Redirect(w, r, a.cfg.LoginPath, http.StatusSeeOther)
}

func (a *Authenticator) isPublic(path string) bool {
	if path == a.cfg.LoginPath {
		return true
	}
	for _, p := range a.cfg.PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}
