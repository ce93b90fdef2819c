// Package token provides the session token primitives.
//
// It is the single source of truth for how session tokens are minted and how
// the storage verifier is derived from them.
//
// Design goals:
// - Tokens carry 160 bits of entropy and are encoded as lowercase unpadded base32.
// - The verifier is SHA-256(token) as lowercase hex; the token itself is never stored.
// - Stable 64-char hex output for storage keys and constant-time comparison.
package token
