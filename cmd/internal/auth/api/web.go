package authapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/christensenjo/lucia-auth/cmd/security/token"
)

// cookies writes and reads the session cookie according to Config.
type cookies struct {
	cfg Config
}

func (c cookies) set(w http.ResponseWriter, value string, exp time.Time) {
	if w == nil {
		return
	}
	c.drop(w)
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    value,
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  exp.UTC(),
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

func (c cookies) clear(w http.ResponseWriter) {
	if w == nil || strings.TrimSpace(c.cfg.CookieName) == "" {
		return
	}
	c.drop(w)
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

// drop removes Set-Cookie headers for the session cookie written earlier in
// the same response, so a response never carries two values for it.
func (c cookies) drop(w http.ResponseWriter) {
	h := w.Header()
	prev := h.Values("Set-Cookie")
	if len(prev) == 0 {
		return
	}
	prefix := c.cfg.CookieName + "="
	kept := make([]string, 0, len(prev))
	for _, v := range prev {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(prev) {
		return
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
}

// token returns the raw cookie value and whether a cookie was sent at all.
func (c cookies) token(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	ck, err := r.Cookie(c.cfg.CookieName)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(ck.Value), true
}

// wellFormed reports whether v can possibly name a session.
// Malformed values are rejected without a store round-trip.
func wellFormed(v string) bool {
	return token.LooksLikeToken(v)
}

// wantsJSON reports whether the client prefers a JSON error over a redirect.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}
