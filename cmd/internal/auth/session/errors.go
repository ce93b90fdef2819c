package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned by stores when no session matches the ID,
	// or when the session's user no longer exists.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound is returned when a session is inserted for a user the store does not know.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionExists is returned when a session with the same ID is already stored.
	ErrSessionExists = errors.New("session already exists")

	// ErrInvalidInput is returned for precondition failures (empty token, non-positive user ID).
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable marks failures of the underlying store. Callers must fail closed.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; it never includes tokens.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// StoreError wraps a driver failure. It matches both ErrStoreUnavailable and the
// driver error, so context.Canceled and friends stay visible to errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return StoreError{Op: op, Err: err}
}

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsStoreUnavailable reports whether err represents a store failure.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
