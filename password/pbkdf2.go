// Package password hashes and verifies portal passwords with
// PBKDF2-HMAC-SHA256. Digests are self-describing only in salt: the digest
// format is hex(salt) + ":" + hex(key), and the iteration count is fixed by
// configuration so every verification pays the same cost.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrMalformedDigest is returned when a stored digest cannot be parsed.
	// Verification against such a digest always fails closed.
	ErrMalformedDigest = errors.New("malformed password digest")

	// ErrPasswordTooShort is returned by Hash for passwords under the
	// minimum length.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrPasswordTooLong caps input so PBKDF2 cost stays bounded.
	ErrPasswordTooLong = errors.New("password too long")
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256

	// minIterations is the floor below which configuration is rejected.
	minIterations = 100_000
)

// Config fixes the PBKDF2 parameters for a Hasher.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// Hasher derives and verifies password digests. It is stateless and safe
// for concurrent use.
type Hasher struct {
	cfg Config
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if cfg.Iterations < minIterations {
		return nil, fmt.Errorf("password: iterations %d below minimum %d", cfg.Iterations, minIterations)
	}
	if cfg.SaltLength < 16 {
		return nil, errors.New("password: salt length must be at least 16 bytes")
	}
	if cfg.KeyLength < 32 {
		return nil, errors.New("password: key length must be at least 32 bytes")
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash derives a digest for plaintext with a fresh random salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(plaintext) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(plaintext), salt, h.cfg.Iterations, h.cfg.KeyLength, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify reports whether plaintext matches digest. The comparison is
// constant-time over the derived key. A digest that cannot be parsed yields
// (false, ErrMalformedDigest); it never verifies.
func (h *Hasher) Verify(plaintext, digest string) (bool, error) {
	salt, want, err := parseDigest(digest)
	if err != nil {
		return false, err
	}
	if len(plaintext) > maxPasswordLength {
		return false, nil
	}

	got := pbkdf2.Key([]byte(plaintext), salt, h.cfg.Iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parseDigest(digest string) (salt, key []byte, err error) {
	saltHex, keyHex, ok := strings.Cut(digest, ":")
	if !ok || saltHex == "" || keyHex == "" {
		return nil, nil, ErrMalformedDigest
	}
	salt, err = hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, ErrMalformedDigest
	}
	key, err = hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, ErrMalformedDigest
	}
	if len(salt) < 8 || len(key) < 16 {
		return nil, nil, ErrMalformedDigest
	}
	return salt, key, nil
}
