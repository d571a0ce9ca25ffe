package authcore

import (
	"errors"
	"fmt"
	"time"
)

// JWTConfig controls access token signing and lifetime.
type JWTConfig struct {
	// SigningMethod is "HS256" or "EdDSA".
	SigningMethod string

	// Secret is the HMAC key for HS256. Minimum 32 bytes.
	Secret []byte

	// PrivateKey and PublicKey hold PEM-encoded Ed25519 keys for EdDSA.
	PrivateKey []byte
	PublicKey  []byte

	Issuer    string
	AccessTTL time.Duration
}

// SessionConfig controls the Redis-backed refresh session store.
type SessionConfig struct {
	// RedisPrefix namespaces all session keys. Two engines with different
	// prefixes never see each other's sessions.
	RedisPrefix string

	RefreshTTL time.Duration

	// RotateRefreshTokens replaces the refresh token on every refresh and
	// invalidates the old one. When false the same token is extended.
	RotateRefreshTokens bool
}

// PasswordConfig controls the PBKDF2 password hasher.
type PasswordConfig struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// ResetConfig controls password reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
}

// AccountConfig controls provisioning defaults.
type AccountConfig struct {
	// DefaultOAuthRole is assigned to accounts auto-created from an OAuth
	// login. Self-registration never grants RoleAdmin regardless of input.
	DefaultOAuthRole Role
}

// SecurityConfig controls the fixed-window throttles.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshCooldown       time.Duration
}

// AuditConfig controls asynchronous audit event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull prefers losing events over blocking hot paths.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the complete engine configuration. Zero values are filled from
// defaults by Builder; Validate runs during Build and rejects unusable
// combinations before any I/O happens.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Reset    ResetConfig
	Account  AccountConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "HS256",
			Issuer:        "authcore",
			AccessTTL:     15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:         "authcore",
			RefreshTTL:          7 * 24 * time.Hour,
			RotateRefreshTokens: true,
		},
		Password: PasswordConfig{
			Iterations: 120_000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Reset: ResetConfig{
			TokenTTL: 30 * time.Minute,
		},
		Account: AccountConfig{
			DefaultOAuthRole: RoleStudent,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			MaxLoginAttempts:      10,
			LoginCooldown:         5 * time.Minute,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    30,
			RefreshCooldown:       time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	switch c.JWT.SigningMethod {
	case "HS256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("config: JWT.Secret must be at least 32 bytes for HS256")
		}
	case "EdDSA":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("config: EdDSA requires both PrivateKey and PublicKey")
		}
	default:
		return fmt.Errorf("config: unsupported signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("config: JWT.AccessTTL must be positive")
	}
	if c.JWT.Issuer == "" {
		return errors.New("config: JWT.Issuer must not be empty")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("config: Session.RedisPrefix must not be empty")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("config: Session.RefreshTTL must be positive")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("config: Session.RefreshTTL must exceed JWT.AccessTTL")
	}
	if c.Password.Iterations < 100_000 {
		return errors.New("config: Password.Iterations must be at least 100000")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 32 {
		return errors.New("config: Password salt must be >= 16 bytes and key >= 32 bytes")
	}
	if c.Reset.TokenTTL <= 0 {
		return errors.New("config: Reset.TokenTTL must be positive")
	}
	if !c.Account.DefaultOAuthRole.Valid() {
		return errors.New("config: Account.DefaultOAuthRole must be a portal role")
	}
	if c.Security.EnableLoginThrottle && (c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldown <= 0) {
		return errors.New("config: login throttle requires positive attempts and cooldown")
	}
	if c.Security.EnableRefreshThrottle && (c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldown <= 0) {
		return errors.New("config: refresh throttle requires positive attempts and cooldown")
	}
	return nil
}

// cloneConfig deep-copies key material so later caller mutation cannot reach
// the engine.
func cloneConfig(c Config) Config {
	out := c
	out.JWT.Secret = append([]byte(nil), c.JWT.Secret...)
	out.JWT.PrivateKey = append([]byte(nil), c.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), c.JWT.PublicKey...)
	return out
}
