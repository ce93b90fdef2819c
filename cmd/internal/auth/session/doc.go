// Package session implements the opaque session-token lifecycle.
//
// A client receives a random token (see cmd/security/token). The server only
// ever stores the token's verifier, SHA-256(token) as hex, which doubles as the
// session ID. Validation re-derives the verifier, loads the session joined with
// its user, deletes it if it has expired (lazy expiry), and pushes the expiry
// forward once the session enters the renewal window (sliding renewal).
//
// Store adapters are provided for PostgreSQL (pgx), Redis (go-redis) and memory.
//
// Cookie handling and redirects live in cmd/internal/auth/api.
package session
