package authapi

import (
	"time"

	"github.com/christensenjo/lucia-auth/cmd/internal/auth/session"
)

type createSessionRequest struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

type validateSessionRequest struct {
	Token string `json:"token"`
}

type invalidateSessionRequest struct {
	SessionID string `json:"session_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID int64 `json:"id"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// validationResponse is either {session, user} or {null, null}.
type validationResponse struct {
	Session *sessionResponse `json:"session"`
	User    *userResponse    `json:"user"`
}

type meResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type logoutAllResponse struct {
	Invalidated int64 `json:"invalidated"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.UTC(),
	}
}

func toValidationResponse(res session.Result) validationResponse {
	a, ok := session.AsAuthenticated(res)
	if !ok {
		return validationResponse{}
	}
	s := toSessionResponse(a.Session)
	return validationResponse{
		Session: &s,
		User:    &userResponse{ID: a.User.ID},
	}
}
