// Package internal holds token generation helpers shared by the engine and
// its subpackages. Nothing here is part of the public API.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	refreshTokenBytes = 32
	stateTokenBytes   = 32
)

// NewRefreshToken returns a fresh opaque refresh token: 32 bytes of
// crypto/rand output, base64url without padding. The raw value goes to the
// client; only HashToken(token) is ever persisted.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewStateToken returns an unguessable OAuth state value.
func NewStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken maps an opaque token to its storage key. SHA-256 keeps Redis
// free of secret material while preserving uniqueness.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
