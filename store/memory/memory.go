// Package memory implements authcore.UserDirectory with in-process maps.
// It backs tests and local development; production uses store/postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduportal/authcore"
)

// Directory is a map-backed UserDirectory. Safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	users      map[string]authcore.User
	emailIndex map[string]string
	identities map[identityKey]authcore.LinkedIdentity
}

type identityKey struct {
	provider  string
	subjectID string
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{
		users:      make(map[string]authcore.User),
		emailIndex: make(map[string]string),
		identities: make(map[identityKey]authcore.LinkedIdentity),
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Directory) FindByEmail(_ context.Context, email string) (authcore.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.emailIndex[normalize(email)]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return d.users[id], nil
}

func (d *Directory) FindByID(_ context.Context, id string) (authcore.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return user, nil
}

func (d *Directory) Create(_ context.Context, in authcore.CreateUserInput) (authcore.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := normalize(in.Email)
	if _, exists := d.emailIndex[email]; exists {
		return authcore.User{}, authcore.ErrAlreadyExists
	}

	user := authcore.User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           in.Name,
		Role:           in.Role,
		PasswordDigest: in.PasswordDigest,
		CreatedAt:      time.Now().UTC(),
	}
	d.users[user.ID] = user
	d.emailIndex[email] = user.ID
	return user, nil
}

func (d *Directory) UpdatePasswordDigest(_ context.Context, userID, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	user.PasswordDigest = digest
	d.users[userID] = user
	return nil
}

// SetSuspended toggles the suspension flag. Suspension is an administrative
// action outside the engine's API.
func (d *Directory) SetSuspended(_ context.Context, userID string, suspended bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	user.Suspended = suspended
	d.users[userID] = user
	return nil
}

func (d *Directory) FindIdentity(_ context.Context, provider, subjectID string) (authcore.LinkedIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ident, ok := d.identities[identityKey{provider, subjectID}]
	if !ok {
		return authcore.LinkedIdentity{}, authcore.ErrIdentityNotFound
	}
	return ident, nil
}

func (d *Directory) CreateIdentity(_ context.Context, ident authcore.LinkedIdentity) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := identityKey{ident.Provider, ident.SubjectID}
	if _, exists := d.identities[key]; exists {
		return authcore.ErrAlreadyExists
	}
	if _, ok := d.users[ident.UserID]; !ok {
		return authcore.ErrUserNotFound
	}
	ident.CreatedAt = time.Now().UTC()
	d.identities[key] = ident
	return nil
}

func (d *Directory) UpdateIdentityTokens(_ context.Context, provider, subjectID, accessToken, refreshToken string, expiry time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := identityKey{provider, subjectID}
	ident, ok := d.identities[key]
	if !ok {
		return authcore.ErrIdentityNotFound
	}
	ident.AccessToken = accessToken
	ident.RefreshToken = refreshToken
	ident.Expiry = expiry
	d.identities[key] = ident
	return nil
}

func (d *Directory) IdentitiesForUser(_ context.Context, userID string) ([]authcore.LinkedIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []authcore.LinkedIdentity
	for _, ident := range d.identities {
		if ident.UserID == userID {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (d *Directory) DeleteIdentity(_ context.Context, userID, provider string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, ident := range d.identities {
		if ident.UserID == userID && ident.Provider == provider {
			delete(d.identities, key)
			return nil
		}
	}
	return authcore.ErrIdentityNotFound
}
