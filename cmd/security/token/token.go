package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"
)

const (
	// EntropyBytes is the number of random bytes behind every token.
	EntropyBytes = 20

	// EncodedLen is the length of an encoded token (20 bytes in base32, no padding).
	EncodedLen = 32

	// VerifierLen is the length of a hex-encoded SHA-256 verifier.
	VerifierLen = 64
)

// lowerBase32 is RFC 4648 base32 without padding. Output is lowercased after encoding.
var lowerBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate returns a fresh session token.
//
// crypto/rand.Read never returns an error on supported platforms; an entropy
// source failure aborts the process instead of yielding a weak token.
func Generate() string {
	var b [EntropyBytes]byte
	_, _ = rand.Read(b[:])
	return strings.ToLower(lowerBase32.EncodeToString(b[:]))
}

// DeriveVerifier returns the storage identifier for a token: lowercase hex(SHA-256(token)).
func DeriveVerifier(token string) string {
	return HashSHA256Hex(token)
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// LooksLikeToken reports whether s has the shape of a token produced by Generate.
// It is a cheap pre-filter; a well-formed token can still be unknown to the store.
func LooksLikeToken(s string) bool {
	if len(s) != EncodedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

// Parse trims surrounding whitespace and checks the token shape.
func Parse(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !LooksLikeToken(s) {
		return "", ErrMalformedToken
	}
	return s, nil
}
