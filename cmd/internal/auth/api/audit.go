package authapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Audit events are emitted on the handler logger under the "auth.audit" message
// with a stable action attribute. Session IDs are truncated; tokens never appear.

func (h *Handler) auditSessionCreated(ctx context.Context, r *http.Request, userID int64, sessionID string) {
	h.audit(ctx, r, "auth.session.created", slog.Int64("user_id", userID), slog.String("session", shortID(sessionID)))
}

func (h *Handler) auditLogout(ctx context.Context, r *http.Request, userID int64, sessionID string) {
	h.audit(ctx, r, "auth.logout", slog.Int64("user_id", userID), slog.String("session", shortID(sessionID)))
}

func (h *Handler) auditLogoutAll(ctx context.Context, r *http.Request, userID int64, n int64) {
	h.audit(ctx, r, "auth.logout_all", slog.Int64("user_id", userID), slog.Int64("count", n))
}

func (h *Handler) auditSessionInvalidated(ctx context.Context, r *http.Request, sessionID string) {
	h.audit(ctx, r, "auth.session.invalidated", slog.String("session", shortID(sessionID)))
}

func (h *Handler) audit(ctx context.Context, r *http.Request, action string, attrs ...slog.Attr) {
	if h == nil || h.log == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	base := []slog.Attr{slog.String("action", action)}
	if ip := clientIP(r); ip != nil {
		base = append(base, slog.String("ip", ip.String()))
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		base = append(base, slog.String("user_agent", ua))
	}
	h.log.LogAttrs(ctx, slog.LevelInfo, "auth.audit", append(base, attrs...)...)
}

func clientIP(r *http.Request) net.IP {
	if r == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
