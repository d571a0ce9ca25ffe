package authcore

import (
	"context"
	"time"
)

// Role is the portal's closed role set. Authorization compares roles by
// exact identity, never by hierarchy.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r names one of the portal roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User is the directory's view of an account. PasswordDigest is empty for
// OAuth-only accounts; such accounts cannot log in with a password.
type User struct {
	ID             string
	Email          string
	Name           string
	Role           Role
	PasswordDigest string
	Suspended      bool
	CreatedAt      time.Time
}

// HasPassword reports whether the account carries a password credential.
func (u User) HasPassword() bool {
	return u.PasswordDigest != ""
}

// LinkedIdentity ties an external OAuth subject to a local account. The
// (Provider, SubjectID) pair is unique across the directory.
type LinkedIdentity struct {
	UserID       string
	Provider     string
	SubjectID    string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
}

// CreateUserInput carries the fields the engine supplies when provisioning
// an account. The directory assigns the ID.
type CreateUserInput struct {
	Email          string
	Name           string
	Role           Role
	PasswordDigest string
}

// UserDirectory is the persistence port for accounts and linked identities.
// Implementations must return ErrUserNotFound, ErrIdentityNotFound, and
// ErrAlreadyExists from this package so Engine error mapping stays exact,
// and must treat emails case-insensitively.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, in CreateUserInput) (User, error)
	UpdatePasswordDigest(ctx context.Context, userID, digest string) error

	FindIdentity(ctx context.Context, provider, subjectID string) (LinkedIdentity, error)
	CreateIdentity(ctx context.Context, ident LinkedIdentity) error
	UpdateIdentityTokens(ctx context.Context, provider, subjectID, accessToken, refreshToken string, expiry time.Time) error
	IdentitiesForUser(ctx context.Context, userID string) ([]LinkedIdentity, error)
	DeleteIdentity(ctx context.Context, userID, provider string) error
}

// TokenPair is the result of any successful authentication: a short-lived
// JWT access token and an opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is the verified identity extracted from an access token.
type AuthResult struct {
	UserID string
	Role   Role
}

// MetricsSnapshot is a point-in-time copy of the engine counters keyed by
// metric name.
type MetricsSnapshot map[string]uint64
