package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for development and tests.
//
// It keeps the same contract as the database adapters: inserts require a
// known user, lookups behave like an inner join, and removing a user cascades
// to its sessions.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int64]struct{}
	sessions map[string]Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]struct{}),
		sessions: make(map[string]Session),
	}
}

// PutUser registers a user ID.
func (s *MemoryStore) PutUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

// RemoveUser forgets a user and its sessions (ON DELETE CASCADE).
func (s *MemoryStore) RemoveUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for sid, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, sid)
		}
	}
}

// ForgetUser drops a user but keeps its sessions, leaving them orphaned.
// It simulates stores without referential integrity.
func (s *MemoryStore) ForgetUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// Len returns the number of stored sessions, orphans included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Peek returns a stored session without the user join.
func (s *MemoryStore) Peek(sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Insert stores a new session row.
func (s *MemoryStore) Insert(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return storeErr("session.MemoryStore.Insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return OpError{Op: "session.MemoryStore.Insert", Kind: ErrUserNotFound}
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return OpError{Op: "session.MemoryStore.Insert", Kind: ErrSessionExists}
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetWithUser loads a session joined with its user.
func (s *MemoryStore) GetWithUser(ctx context.Context, sessionID string) (Session, User, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, User{}, storeErr("session.MemoryStore.GetWithUser", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, User{}, ErrSessionNotFound
	}
	if _, ok := s.users[sess.UserID]; !ok {
		return Session{}, User{}, ErrSessionNotFound
	}
	return sess, User{ID: sess.UserID}, nil
}

// UpdateExpiry sets expires_at for a session. Missing sessions are ignored, like an UPDATE matching no rows.
func (s *MemoryStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return storeErr("session.MemoryStore.UpdateExpiry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.ExpiresAt = expiresAt
	s.sessions[sessionID] = sess
	return nil
}

// Delete removes a session (idempotent).
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("session.MemoryStore.Delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteByUser removes all sessions of a user.
func (s *MemoryStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("session.MemoryStore.DeleteByUser", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for sid, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, sid)
			n++
		}
	}
	return n, nil
}
