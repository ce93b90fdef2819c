package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/christensenjo/lucia-auth/cmd/internal/auth/session"
	"github.com/christensenjo/lucia-auth/cmd/security/token"
)

// SessionManager is the lifecycle surface the HTTP layer needs.
// *session.Manager satisfies it.
type SessionManager interface {
	Validator
	Create(ctx context.Context, now time.Time, tok string, userID int64) (session.Session, error)
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAll(ctx context.Context, userID int64) (int64, error)
}

// Handler wires HTTP endpoints to the session lifecycle.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	cookies  cookies
	sessions SessionManager
	auth     *Authenticator
	now      func() time.Time
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions SessionManager) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session manager")
	}
	if log == nil {
		log = slog.Default()
	}

	auth := NewAuthenticator(log, cfg, sessions)
	return &Handler{
		log:      log,
		cfg:      cfg,
		cookies:  cookies{cfg: cfg},
		sessions: sessions,
		auth:     auth,
		now:      auth.now,
	}, nil
}

// Authenticator returns the request authenticator backing protected routes.
func (h *Handler) Authenticator() *Authenticator {
	if h == nil {
		return nil
	}
	return h.auth
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("/me", h.auth.RequireSession(http.HandlerFunc(h.handleMe)))
	mux.Handle("/auth/logout", h.auth.RequireSession(http.HandlerFunc(h.handleLogout)))
	mux.Handle("/auth/logout_all", h.auth.RequireSession(http.HandlerFunc(h.handleLogoutAll)))

	if !h.cfg.SessionAPIEnabled {
		return
	}
	mux.HandleFunc("/api/session/token", h.handleGenerateToken)
	mux.HandleFunc("/api/session", h.handleSession)
	mux.HandleFunc("/api/session/validate", h.handleValidate)
}

// ---- protected handlers ----

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a, ok := FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "valid session required")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:    userResponse{ID: a.User.ID},
		Session: toSessionResponse(a.Session),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a, ok := FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "valid session required")
		return
	}

	ctx := r.Context()
	if err := h.sessions.Invalidate(ctx, a.Session.ID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		h.writeSessionError(w, err)
		return
	}

	h.auditLogout(ctx, r, a.User.ID, a.Session.ID)
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	a, ok := FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "valid session required")
		return
	}

	ctx := r.Context()
	n, err := h.sessions.InvalidateAll(ctx, a.User.ID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		h.writeSessionError(w, err)
		return
	}

	h.auditLogoutAll(ctx, r, a.User.ID, n)
	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, logoutAllResponse{Invalidated: n})
}

// ---- internal session API ----

func (h *Handler) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Generate()})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateSession(w, r)
	case http.MethodDelete:
		h.handleInvalidateSession(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	tok := strings.TrimSpace(req.Token)
	if tok == "" || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and user_id are required")
		return
	}
	if _, err := token.Parse(tok); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token", "token is malformed")
		return
	}

	ctx := r.Context()
	s, err := h.sessions.Create(ctx, h.now(), tok, req.UserID)
	if err != nil {
		h.log.Warn("auth.session.create.fail", "err", err, "user_id", req.UserID)
		h.writeSessionError(w, err)
		return
	}

	h.auditSessionCreated(ctx, r, s.UserID, s.ID)
	h.cookies.set(w, tok, s.ExpiresAt)
	writeJSON(w, http.StatusCreated, toSessionResponse(s))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req validateSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	res, err := h.sessions.Validate(r.Context(), h.now(), tok)
	if err != nil {
		h.log.Error("auth.session.validate.fail", "err", err)
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toValidationResponse(res))
}

func (h *Handler) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	var req invalidateSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	ctx := r.Context()
	if err := h.sessions.Invalidate(ctx, id); err != nil {
		h.log.Error("auth.session.invalidate.fail", "err", err)
		h.writeSessionError(w, err)
		return
	}

	h.auditSessionInvalidated(ctx, r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case session.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, session.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, "session_exists", "session already exists")
	case session.IsStoreUnavailable(err):
		writeStoreUnavailable(w)
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
