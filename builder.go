package authcore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/eduportal/authcore/internal/audit"
	"github.com/eduportal/authcore/internal/rate"
	"github.com/eduportal/authcore/jwt"
	"github.com/eduportal/authcore/oauth"
	"github.com/eduportal/authcore/password"
	"github.com/eduportal/authcore/session"
)

// Builder assembles an Engine. Construction does no I/O; Build validates
// everything up front and fails fast on unusable configuration.
type Builder struct {
	cfg       Config
	cfgSet    bool
	rdb       redis.UniversalClient
	directory UserDirectory
	sink      AuditSink
	providers map[string]oauth.Provider
	err       error
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{providers: map[string]oauth.Provider{}}
}

// WithConfig supplies the engine configuration. Unset sections fall back to
// defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithRedis supplies the Redis client backing sessions and throttles.
func (b *Builder) WithRedis(rdb redis.UniversalClient) *Builder {
	b.rdb = rdb
	return b
}

// WithDirectory supplies the account persistence port.
func (b *Builder) WithDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

// WithAuditSink supplies the audit destination. Ignored unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithProvider registers an OAuth provider under its own name.
func (b *Builder) WithProvider(p oauth.Provider) *Builder {
	if p == nil {
		b.err = errors.New("builder: nil oauth provider")
		return b
	}
	if _, dup := b.providers[p.Name()]; dup {
		b.err = fmt.Errorf("builder: duplicate oauth provider %q", p.Name())
		return b
	}
	b.providers[p.Name()] = p
	return b
}

// Build validates the configuration, wires all components, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.rdb == nil {
		return nil, errors.New("builder: redis client is required")
	}
	if b.directory == nil {
		return nil, errors.New("builder: user directory is required")
	}

	cfg := defaultConfig()
	if b.cfgSet {
		cfg = mergeDefaults(b.cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cloneConfig(cfg)

	hasher, err := password.New(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SigningMethod: cfg.JWT.SigningMethod,
		Secret:        cfg.JWT.Secret,
		PrivateKeyPEM: cfg.JWT.PrivateKey,
		PublicKeyPEM:  cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(b.rdb, cfg.Session.RedisPrefix, rate.Config{
		LoginEnabled:   cfg.Security.EnableLoginThrottle,
		MaxLogin:       cfg.Security.MaxLoginAttempts,
		LoginWindow:    cfg.Security.LoginCooldown,
		RefreshEnabled: cfg.Security.EnableRefreshThrottle,
		MaxRefresh:     cfg.Security.MaxRefreshAttempts,
		RefreshWindow:  cfg.Security.RefreshCooldown,
	})

	e := &Engine{
		config:    cfg,
		directory: b.directory,
		sessions:  session.NewStore(b.rdb, cfg.Session.RedisPrefix),
		limiter:   limiter,
		metrics:   newMetrics(cfg.Metrics),
		hasher:    hasher,
		tokens:    tokens,
		providers: b.providers,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink),
	}

	// The decoy digest only needs to cost the same as a real one.
	e.decoyDigest, err = hasher.Hash("decoy-" + cfg.JWT.Issuer + "-credential")
	if err != nil {
		return nil, err
	}
	return e, nil
}

// mergeDefaults fills zero-valued sections of cfg from the defaults so
// callers only specify what they change.
func mergeDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.JWT.SigningMethod == "" {
		cfg.JWT.SigningMethod = def.JWT.SigningMethod
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = def.JWT.Issuer
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = def.Session.RedisPrefix
	}
	if cfg.Session.RefreshTTL == 0 {
		cfg.Session.RefreshTTL = def.Session.RefreshTTL
	}
	if cfg.Password.Iterations == 0 {
		cfg.Password.Iterations = def.Password.Iterations
	}
	if cfg.Password.SaltLength == 0 {
		cfg.Password.SaltLength = def.Password.SaltLength
	}
	if cfg.Password.KeyLength == 0 {
		cfg.Password.KeyLength = def.Password.KeyLength
	}
	if cfg.Reset.TokenTTL == 0 {
		cfg.Reset.TokenTTL = def.Reset.TokenTTL
	}
	if cfg.Account.DefaultOAuthRole == "" {
		cfg.Account.DefaultOAuthRole = def.Account.DefaultOAuthRole
	}
	if cfg.Security.EnableLoginThrottle && cfg.Security.MaxLoginAttempts == 0 {
		cfg.Security.MaxLoginAttempts = def.Security.MaxLoginAttempts
		cfg.Security.LoginCooldown = def.Security.LoginCooldown
	}
	if cfg.Security.EnableRefreshThrottle && cfg.Security.MaxRefreshAttempts == 0 {
		cfg.Security.MaxRefreshAttempts = def.Security.MaxRefreshAttempts
		cfg.Security.RefreshCooldown = def.Security.RefreshCooldown
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
		cfg.Audit.DropIfFull = def.Audit.DropIfFull
	}
	return cfg
}
