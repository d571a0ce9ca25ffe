// Package jwt issues and parses the portal's signed tokens. Access tokens
// and password reset tokens share one codec and are kept apart by an
// explicit purpose claim, so a reset token can never pass an access check.
package jwt

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned for well-formed, correctly signed tokens whose
	// lifetime has passed.
	ErrExpired = errors.New("jwt: token expired")

	// ErrInvalid is returned for every other parse failure.
	ErrInvalid = errors.New("jwt: token invalid")
)

// Token purposes. Parse rejects a token presented for the wrong purpose.
const (
	PurposeAccess = "access"
	PurposeReset  = "password_reset"
)

// Leeway is the fixed clock skew tolerance applied to exp and iat. It is
// deliberately not configurable.
const Leeway = 30 * time.Second

// Claims is the closed claim set carried by every portal token. No
// free-form claims are accepted or emitted.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Config fixes the signing identity of a Manager.
type Config struct {
	// SigningMethod is "HS256" or "EdDSA".
	SigningMethod string

	// Secret is the HMAC key for HS256.
	Secret []byte

	// PrivateKeyPEM and PublicKeyPEM hold PKCS#8 / PKIX encoded Ed25519
	// keys for EdDSA.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte

	Issuer    string
	AccessTTL time.Duration
}

// Manager signs and verifies tokens. It is immutable after construction and
// safe for concurrent use.
type Manager struct {
	cfg       Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("jwt: issuer must not be empty")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be positive")
	}

	m := &Manager{cfg: cfg}
	switch cfg.SigningMethod {
	case "HS256":
		if len(cfg.Secret) < 32 {
			return nil, errors.New("jwt: HS256 secret must be at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.Secret
		m.verifyKey = cfg.Secret
	case "EdDSA":
		priv, err := parseEdPrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, err
		}
		pub, err := parseEdPublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = pub
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}
	return m, nil
}

// IssueAccess mints an access token for userID with the given role.
func (m *Manager) IssueAccess(userID, role string) (string, error) {
	return m.issue(userID, role, PurposeAccess, m.cfg.AccessTTL)
}

// IssueReset mints a password reset token. Reset tokens carry no role.
func (m *Manager) IssueReset(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("jwt: reset TTL must be positive")
	}
	return m.issue(userID, "", PurposeReset, ttl)
}

func (m *Manager) issue(userID, role, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

// ParseAccess verifies token as an access token and returns its claims.
// Expiry maps to ErrExpired; every other failure, including a reset token
// presented here, maps to ErrInvalid.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, PurposeAccess)
}

// ParseReset verifies token as a password reset token.
func (m *Manager) ParseReset(token string) (*Claims, error) {
	return m.parse(token, PurposeReset)
}

func (m *Manager) parse(token, purpose string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(Leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(*jwt.Token) (any, error) {
	return m.verifyKey, nil
}

func parseEdPrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("jwt: private key is not PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt: parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: private key is not Ed25519")
	}
	return priv, nil
}

func parseEdPublicKey(pemBytes []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("jwt: public key is not PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: public key is not Ed25519")
	}
	return pub, nil
}
