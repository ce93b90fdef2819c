package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrMalformedToken is returned by Parse when the input does not have the token shape.
	ErrMalformedToken = errors.New("malformed session token")
)
