package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// stubDirectory is a minimal in-memory UserDirectory for engine tests. The
// production equivalents live under store/.
type stubDirectory struct {
	mu         sync.RWMutex
	users      map[string]User
	emails     map[string]string
	identities map[string]LinkedIdentity
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		users:      map[string]User{},
		emails:     map[string]string{},
		identities: map[string]LinkedIdentity{},
	}
}

func identKey(provider, subjectID string) string {
	return provider + "\x00" + subjectID
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return d.users[id], nil
}

func (d *stubDirectory) FindByID(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (d *stubDirectory) Create(_ context.Context, in CreateUserInput) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, exists := d.emails[email]; exists {
		return User{}, ErrAlreadyExists
	}
	user := User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           in.Name,
		Role:           in.Role,
		PasswordDigest: in.PasswordDigest,
		CreatedAt:      time.Now().UTC(),
	}
	d.users[user.ID] = user
	d.emails[email] = user.ID
	return user, nil
}

func (d *stubDirectory) UpdatePasswordDigest(_ context.Context, userID, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordDigest = digest
	d.users[userID] = user
	return nil
}

func (d *stubDirectory) setSuspended(userID string, suspended bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user := d.users[userID]
	user.Suspended = suspended
	d.users[userID] = user
}

func (d *stubDirectory) FindIdentity(_ context.Context, provider, subjectID string) (LinkedIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.identities[identKey(provider, subjectID)]
	if !ok {
		return LinkedIdentity{}, ErrIdentityNotFound
	}
	return ident, nil
}

func (d *stubDirectory) CreateIdentity(_ context.Context, ident LinkedIdentity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := identKey(ident.Provider, ident.SubjectID)
	if _, exists := d.identities[key]; exists {
		return ErrAlreadyExists
	}
	d.identities[key] = ident
	return nil
}

func (d *stubDirectory) UpdateIdentityTokens(_ context.Context, provider, subjectID, accessToken, refreshToken string, expiry time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := identKey(provider, subjectID)
	ident, ok := d.identities[key]
	if !ok {
		return ErrIdentityNotFound
	}
	ident.AccessToken = accessToken
	ident.RefreshToken = refreshToken
	ident.Expiry = expiry
	d.identities[key] = ident
	return nil
}

func (d *stubDirectory) IdentitiesForUser(_ context.Context, userID string) ([]LinkedIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []LinkedIdentity
	for _, ident := range d.identities {
		if ident.UserID == userID {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (d *stubDirectory) DeleteIdentity(_ context.Context, userID, provider string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, ident := range d.identities {
		if ident.UserID == userID && ident.Provider == provider {
			delete(d.identities, key)
			return nil
		}
	}
	return ErrIdentityNotFound
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.Issuer = "portal-test"
	return cfg
}

type testEnv struct {
	engine    *Engine
	directory *stubDirectory
	redis     *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*Config), extra func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	directory := newStubDirectory()
	b := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(directory)
	if extra != nil {
		extra(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, directory: directory, redis: mr}
}

// registerUser provisions a password account through the engine itself.
func registerUser(t *testing.T, env *testEnv, email, plaintext string, role Role) User {
	t.Helper()
	user, err := env.engine.Register(context.Background(), email, plaintext, "Test User", role)
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
	return user
}
