// Package rate implements the fixed-window throttles guarding login and
// refresh. Counters live in Redis so limits hold across portal instances.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited means the window's attempt budget is spent.
	ErrLimited = errors.New("rate: limited")

	// ErrUnavailable wraps Redis transport failures. Callers fail closed.
	ErrUnavailable = errors.New("rate: redis unavailable")
)

// Config fixes the two throttle windows.
type Config struct {
	LoginEnabled   bool
	MaxLogin       int
	LoginWindow    time.Duration
	RefreshEnabled bool
	MaxRefresh     int
	RefreshWindow  time.Duration
}

// Limiter counts attempts per key in fixed windows.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
	cfg    Config
}

func NewLimiter(rdb redis.UniversalClient, prefix string, cfg Config) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, cfg: cfg}
}

func (l *Limiter) loginKey(id string) string {
	return l.prefix + ":rl:login:" + id
}

func (l *Limiter) refreshKey(id string) string {
	return l.prefix + ":rl:refresh:" + id
}

// CheckLogin returns ErrLimited when id has exhausted its login window.
func (l *Limiter) CheckLogin(ctx context.Context, id string) error {
	if !l.cfg.LoginEnabled {
		return nil
	}
	return l.check(ctx, l.loginKey(id), l.cfg.MaxLogin)
}

// IncrementLogin records a failed login attempt for id.
func (l *Limiter) IncrementLogin(ctx context.Context, id string) error {
	if !l.cfg.LoginEnabled {
		return nil
	}
	return l.increment(ctx, l.loginKey(id), l.cfg.LoginWindow)
}

// ResetLogin clears id's failure counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, id string) error {
	if !l.cfg.LoginEnabled {
		return nil
	}
	if err := l.rdb.Del(ctx, l.loginKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CheckRefresh returns ErrLimited when id has exhausted its refresh window,
// and otherwise counts the attempt.
func (l *Limiter) CheckRefresh(ctx context.Context, id string) error {
	if !l.cfg.RefreshEnabled {
		return nil
	}
	if err := l.check(ctx, l.refreshKey(id), l.cfg.MaxRefresh); err != nil {
		return err
	}
	return l.increment(ctx, l.refreshKey(id), l.cfg.RefreshWindow)
}

func (l *Limiter) check(ctx context.Context, key string, max int) error {
	n, err := l.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n >= max {
		return ErrLimited
	}
	return nil
}

// increment bumps the window counter, setting the TTL only when the key is
// new so the window stays fixed.
func (l *Limiter) increment(ctx context.Context, key string, window time.Duration) error {
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
