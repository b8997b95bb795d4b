package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The stored hash string is self-describing
// ("pbkdf2:<salt>:<digest>", hex-encoded), so verification always re-derives
// with the parameters below rather than caching them per user.
const (
	pbkdf2Iterations = 310_000
	pbkdf2KeyLen     = 32
	saltLen          = 16
	tokenLen         = 32
)

// HashPassword derives a PBKDF2-SHA256 hash with a fresh random salt and
// returns it as a self-describing string. Two calls with the same password
// produce different strings; both verify.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return "pbkdf2:" + hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword checks a password against a stored hash string. Malformed
// stored hashes verify as false; this function never panics on bad input.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 || parts[0] != "pbkdf2" {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	digest, err := hex.DecodeString(parts[2])
	if err != nil || len(digest) == 0 {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, len(digest), sha256.New)
	return subtle.ConstantTimeCompare(derived, digest) == 1
}

// HashToken returns the deterministic SHA-256 hex digest of a bearer token.
// Sessions are indexed by this digest; the raw token is never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a new opaque bearer token with 256 bits of entropy,
// hex-encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
