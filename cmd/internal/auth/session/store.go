package session

import (
	"context"
	"time"
)

// Store abstracts persistence for session state.
//
// Implementations map "no such row" to ErrSessionNotFound and wrap every other
// failure in StoreError. They must not retry, cache, or interpret expiry; the
// Manager owns the lifecycle rules.
type Store interface {
	// Insert stores a new session row.
	Insert(ctx context.Context, s Session) error

	// GetWithUser loads a session joined with its user.
	// A session whose user is gone is reported as ErrSessionNotFound.
	GetWithUser(ctx context.Context, sessionID string) (Session, User, error)

	// UpdateExpiry sets expires_at for a session.
	UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteByUser removes every session owned by userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}
