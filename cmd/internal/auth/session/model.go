package session

import "time"

// Session is the persisted session record. ID is the verifier of the client's token.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// User is the minimal view of the account owning a session.
// Users are owned by a separate collaborator; this package only reads them.
type User struct {
	ID int64
}

// Result is the outcome of validating a token.
// It is either Authenticated or Unauthenticated; a session is never reported without its user.
type Result interface {
	isResult()
}

// Authenticated carries the live session and its owner.
type Authenticated struct {
	Session Session
	User    User
}

// Unauthenticated is returned for unknown, orphaned, or expired tokens.
type Unauthenticated struct{}

func (Authenticated) isResult()   {}
func (Unauthenticated) isResult() {}

// AsAuthenticated unwraps r when it is Authenticated.
func AsAuthenticated(r Result) (Authenticated, bool) {
	a, ok := r.(Authenticated)
	return a, ok
}

// Issued is returned when a new session is issued.
// Token is the client-facing secret; it must be handed to the client and then forgotten.
type Issued struct {
	Token   string
	Session Session
}
