// Package main provides a CI-friendly smoke test for the session HTTP API.
//
// The target server must run with LUCIA_AUTH_SESSION_API=true and know the
// given user (LUCIA_DEV_USER_IDS for the memory and Redis stores).
//
// It validates:
//   - token generation shape
//   - session creation + Set-Cookie
//   - cookie-authenticated /me
//   - /api/session/validate for a live token
//   - logout, after which the cookie and the token are both rejected
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	base    *url.URL
	origin  string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

type sessionBody struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "", "Origin header to send on unsafe requests")
		userID  = flag.Int64("user", 42, "Existing user id to create the session for")
		cookie  = flag.String("cookie", "session", "Session cookie name")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    base,
		origin:  strings.TrimSpace(*origin),
		http:    &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	var tok struct {
		Token string `json:"token"`
	}
	c.mustJSON(root, http.MethodPost, "/api/session/token", struct{}{}, nil, http.StatusOK, &tok)
	if len(tok.Token) != 32 || strings.ToLower(tok.Token) != tok.Token {
		fatalf("token: unexpected shape %q", tok.Token)
	}

	var created sessionBody
	resp := c.mustJSON(root, http.MethodPost, "/api/session",
		map[string]any{"token": tok.Token, "user_id": *userID}, nil, http.StatusCreated, &created)
	if created.UserID != *userID || len(created.ID) != 64 {
		fatalf("create: unexpected session %+v", created)
	}
	sess := findCookie(resp, *cookie)
	if sess == nil || sess.Value != tok.Token {
		fatalf("create: missing %q cookie", *cookie)
	}
	if c.verbose {
		fmt.Printf("created: session=%s… expires_at=%s\n", created.ID[:12], created.ExpiresAt.Format(time.RFC3339))
	}

	var me struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		Session sessionBody `json:"session"`
	}
	c.mustJSON(root, http.MethodGet, "/me", nil, sess, http.StatusOK, &me)
	if me.User.ID != *userID || me.Session.ID != created.ID {
		fatalf("me: unexpected body %+v", me)
	}

	var valid struct {
		Session *sessionBody `json:"session"`
		User    *struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	c.mustJSON(root, http.MethodPost, "/api/session/validate", map[string]string{"token": tok.Token}, nil, http.StatusOK, &valid)
	if valid.Session == nil || valid.User == nil || valid.User.ID != *userID {
		fatalf("validate: expected authenticated result")
	}

	c.mustJSON(root, http.MethodPost, "/auth/logout", struct{}{}, sess, http.StatusNoContent, nil)

	resp = c.mustJSON(root, http.MethodGet, "/me", nil, sess, http.StatusUnauthorized, nil)
	if cleared := findCookie(resp, *cookie); cleared == nil || cleared.MaxAge >= 0 {
		fatalf("me after logout: expected cookie to be cleared")
	}

	valid.Session, valid.User = nil, nil
	c.mustJSON(root, http.MethodPost, "/api/session/validate", map[string]string{"token": tok.Token}, nil, http.StatusOK, &valid)
	if valid.Session != nil || valid.User != nil {
		fatalf("validate after logout: expected {null, null}")
	}

	fmt.Printf("OK: user=%d session=%s…\n", *userID, created.ID[:12])
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// mustJSON performs one request and asserts the status. out may be nil.
func (c *smokeClient) mustJSON(parent context.Context, method, path string, in any, cookie *http.Cookie, wantStatus int, out any) *http.Response {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			fatalf("%s %s: marshal: %v", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" && method != http.MethodGet {
		req.Header.Set("Origin", c.origin)
	}
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, resp.StatusCode, wantStatus, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
