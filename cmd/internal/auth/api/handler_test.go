package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/christensenjo/lucia-auth/cmd/internal/auth/session"
	"github.com/christensenjo/lucia-auth/cmd/security/token"
)

type testEnv struct {
	store   *session.MemoryStore
	manager *session.Manager
	handler *Handler
	server  http.Handler
	now     time.Time
}

func newTestEnv(t *testing.T, apiEnabled bool) *testEnv {
	t.Helper()

	store := session.NewMemoryStore()
	store.PutUser(42)
	store.PutUser(7)

	m, err := session.NewManager(session.DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SessionAPIEnabled = apiEnabled

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, cfg, m)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	env := &testEnv{
		store:   store,
		manager: m,
		handler: h,
		now:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	h.now = clock
	h.auth.now = clock

	mux := http.NewServeMux()
	h.Register(mux)
	env.server = RequireJSONBody(cfg, mux)
	return env
}

func (e *testEnv) issue(t *testing.T, userID int64) session.Issued {
	t.Helper()
	issued, err := e.manager.Issue(context.Background(), e.now, userID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return issued
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestMe_Authenticated(t *testing.T) {
	env := newTestEnv(t, false)
	issued := env.issue(t, 42)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: issued.Token})
	rr := env.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ID != 42 || resp.Session.ID != issued.Session.ID {
		t.Fatalf("unexpected body: %+v", resp)
	}

	ck := findCookie(rr, "session")
	if ck == nil || ck.Value != issued.Token {
		t.Fatalf("expected the session cookie to be refreshed, got %+v", ck)
	}
}

func TestMe_NoCookieRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/me", nil))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
	if findCookie(rr, "session") != nil {
		t.Fatalf("no cookie should be touched when none was sent")
	}
}

func TestMe_InvalidCookieIsClearedAndRedirected(t *testing.T) {
	cases := map[string]string{
		"unknown token": token.Generate(),
		"malformed":     "not-a-token",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, false)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.AddCookie(&http.Cookie{Name: "session", Value: value})
			rr := env.do(req)

			if rr.Code != http.StatusSeeOther {
				t.Fatalf("expected 303, got %d", rr.Code)
			}
			ck := findCookie(rr, "session")
			if ck == nil || ck.MaxAge >= 0 {
				t.Fatalf("expected session cookie to be cleared, got %+v", ck)
			}
		})
	}
}

func TestMe_ExpiredSessionIsCleared(t *testing.T) {
	env := newTestEnv(t, false)
	issued := env.issue(t, 42)
	env.now = issued.Session.ExpiresAt

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "session", Value: issued.Token})
	rr := env.do(req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for JSON client, got %d", rr.Code)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected expired session to be reaped")
	}
	assertSingleClearedCookie(t, rr)
}

func assertSingleClearedCookie(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()

	var got []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			got = append(got, c)
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one session cookie, got %d: %v", len(got), rr.Header().Values("Set-Cookie"))
	}
	if got[0].MaxAge >= 0 || got[0].Value != "" {
		t.Fatalf("expected cookie to be cleared, got %+v", got[0])
	}
}

func TestMe_RenewalExtendsCookie(t *testing.T) {
	env := newTestEnv(t, false)
	issued := env.issue(t, 42)
	env.now = env.now.Add(20 * 24 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: issued.Token})
	rr := env.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	want := env.now.Add(30 * 24 * time.Hour)
	ck := findCookie(rr, "session")
	if ck == nil || !ck.Expires.Equal(want) {
		t.Fatalf("expected cookie expiry %v, got %+v", want, ck)
	}
}

type brokenValidator struct{}

func (brokenValidator) Validate(context.Context, time.Time, string) (session.Result, error) {
	return session.Unauthenticated{}, session.StoreError{Op: "test", Err: errors.New("db down")}
}

func TestRequireSession_StoreFailureFailsClosed(t *testing.T) {
	a := NewAuthenticator(slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultConfig(), brokenValidator{})

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token.Generate()})
	rr := httptest.NewRecorder()
	a.RequireSession(next).ServeHTTP(rr, req)

	if called {
		t.Fatalf("next handler must not run on store failure")
	}
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if findCookie(rr, "session") != nil {
		t.Fatalf("cookie must be kept on store failure")
	}
}

func TestRequireSession_PublicPathsBypass(t *testing.T) {
	a := NewAuthenticator(nil, DefaultConfig(), brokenValidator{})

	for _, path := range []string{"/", "/login"} {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		a.RequireSession(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if !called || rr.Code != http.StatusOK {
			t.Fatalf("%s: expected public path to pass through, got %d", path, rr.Code)
		}
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	env := newTestEnv(t, false)
	issued := env.issue(t, 42)

	req := jsonRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: issued.Token})
	rr := env.do(req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := env.store.Peek(issued.Session.ID); ok {
		t.Fatalf("expected session to be deleted")
	}
	assertSingleClearedCookie(t, rr)
}

func TestLogoutAll_KeepsOtherUsers(t *testing.T) {
	env := newTestEnv(t, false)
	a := env.issue(t, 42)
	env.issue(t, 42)
	other := env.issue(t, 7)

	req := jsonRequest(http.MethodPost, "/auth/logout_all", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: a.Token})
	rr := env.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp logoutAllResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Invalidated != 2 {
		t.Fatalf("expected 2 invalidated, got %d", resp.Invalidated)
	}
	if _, ok := env.store.Peek(other.Session.ID); !ok {
		t.Fatalf("other user's session must survive")
	}
	assertSingleClearedCookie(t, rr)
}

func TestRequireJSONBody(t *testing.T) {
	env := newTestEnv(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/session/token", bytes.NewBufferString("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rr := env.do(req); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for form post, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	if rr := env.do(req); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for DELETE without content type, got %d", rr.Code)
	}

	req = jsonRequest(http.MethodPost, "/api/session/token", nil)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if rr := env.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with JSON content type, got %d", rr.Code)
	}
}

func TestRequireJSONBody_AllowedOrigins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example/"}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireJSONBody(cfg, ok)

	req := jsonRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", rr.Code)
	}

	req = jsonRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://APP.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed origin, got %d", rr.Code)
	}
}

func TestSessionAPI_DisabledByDefault(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(jsonRequest(http.MethodPost, "/api/session/token", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when session API is disabled, got %d", rr.Code)
	}
}

func TestSessionAPI_FullFlow(t *testing.T) {
	env := newTestEnv(t, true)

	// generate
	rr := env.do(jsonRequest(http.MethodPost, "/api/session/token", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d", rr.Code)
	}
	var tr tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if !token.LooksLikeToken(tr.Token) {
		t.Fatalf("generated token has wrong shape: %q", tr.Token)
	}

	// create
	rr = env.do(jsonRequest(http.MethodPost, "/api/session", createSessionRequest{Token: tr.Token, UserID: 42}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var sr sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sr.ID != token.DeriveVerifier(tr.Token) || sr.UserID != 42 {
		t.Fatalf("unexpected session: %+v", sr)
	}
	if ck := findCookie(rr, "session"); ck == nil || ck.Value != tr.Token {
		t.Fatalf("expected session cookie to be set, got %+v", ck)
	}

	// validate
	rr = env.do(jsonRequest(http.MethodPost, "/api/session/validate", validateSessionRequest{Token: tr.Token}))
	if rr.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d", rr.Code)
	}
	var vr validationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &vr); err != nil {
		t.Fatalf("decode validation: %v", err)
	}
	if vr.Session == nil || vr.User == nil || vr.User.ID != 42 {
		t.Fatalf("expected authenticated result, got %+v", vr)
	}

	// invalidate twice
	for i := 0; i < 2; i++ {
		rr = env.do(jsonRequest(http.MethodDelete, "/api/session", invalidateSessionRequest{SessionID: sr.ID}))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("invalidate #%d: expected 204, got %d", i+1, rr.Code)
		}
	}

	// validate again: both fields null
	rr = env.do(jsonRequest(http.MethodPost, "/api/session/validate", validateSessionRequest{Token: tr.Token}))
	if rr.Code != http.StatusOK {
		t.Fatalf("validate after invalidate: expected 200, got %d", rr.Code)
	}
	if got := bytes.TrimSpace(rr.Body.Bytes()); string(got) != `{"session":null,"user":null}` {
		t.Fatalf("expected null pair, got %s", got)
	}
}

func TestSessionAPI_CreateErrors(t *testing.T) {
	env := newTestEnv(t, true)
	tok := token.Generate()

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing token", createSessionRequest{UserID: 42}, http.StatusBadRequest},
		{"missing user", createSessionRequest{Token: tok}, http.StatusBadRequest},
		{"malformed token", createSessionRequest{Token: "abc", UserID: 42}, http.StatusBadRequest},
		{"unknown user", createSessionRequest{Token: tok, UserID: 999}, http.StatusNotFound},
		{"unknown field", map[string]any{"token": tok, "user_id": 42, "admin": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(jsonRequest(http.MethodPost, "/api/session", tc.body))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}

	rr := env.do(jsonRequest(http.MethodPost, "/api/session", createSessionRequest{Token: tok, UserID: 42}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	rr = env.do(jsonRequest(http.MethodPost, "/api/session", createSessionRequest{Token: tok, UserID: 42}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate token, got %d", rr.Code)
	}
}

func TestSessionAPI_ValidateRequiresToken(t *testing.T) {
	env := newTestEnv(t, true)
	rr := env.do(jsonRequest(http.MethodPost, "/api/session/validate", validateSessionRequest{}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestNewHandler_NilManager(t *testing.T) {
	if _, err := NewHandler(nil, DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for nil session manager")
	}
}
