// Package session persists refresh sessions in Redis. Keys are SHA-256
// hashes of the opaque refresh tokens; a per-user set indexes live hashes so
// revoke-all needs no scan. Expiry rides on Redis TTLs with the record's own
// deadline as backstop.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduportal/authcore/internal"
)

var (
	// ErrNotFound means the token has no live session.
	ErrNotFound = errors.New("session: not found")

	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("session: redis unavailable")
)

// deleteScript removes a session atomically and reports whether it still
// existed. Rotation relies on the return value: when two refreshes race,
// DEL observes the key exactly once.
var deleteScript = redis.NewScript(`
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
	redis.call("DEL", KEYS[1])
end
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`)

// Store reads and writes refresh sessions. All methods are safe for
// concurrent use.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewStore returns a Store namespaced by prefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(tokenHash string) string {
	return s.prefix + ":s:" + tokenHash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create stores a session for token under ttl. The raw token never reaches
// Redis.
func (s *Store) Create(ctx context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" {
		return fmt.Errorf("%w: empty token or user id", ErrCorrupt)
	}
	if ttl <= 0 {
		return fmt.Errorf("session: non-positive ttl %v", ttl)
	}

	now := time.Now().UTC()
	rec := Record{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	data, err := rec.encode()
	if err != nil {
		return err
	}

	hash := internal.HashToken(token)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(hash), data, ttl)
		pipe.SAdd(ctx, s.userKey(userID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the user ID owning token's session. Records past their own
// deadline are deleted and reported as missing.
func (s *Store) Get(ctx context.Context, token string) (string, error) {
	rec, err := s.getRecord(ctx, token)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func (s *Store) getRecord(ctx context.Context, token string) (Record, error) {
	hash := internal.HashToken(token)
	data, err := s.rdb.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		// Unreadable record: drop it rather than serve it.
		_, _ = s.Delete(ctx, token)
		return Record{}, ErrNotFound
	}
	if rec.Expired(time.Now().UTC()) {
		_, _ = s.Delete(ctx, token)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes token's session and reports whether it existed. Deleting
// an absent session is not an error.
//
// If the stored record cannot be decoded the owner is unknown, so the
// per-user index keeps a stale hash until DeleteAllForUser drops the set.
// CountForUser already tolerates that overcount.
func (s *Store) Delete(ctx context.Context, token string) (bool, error) {
	hash := internal.HashToken(token)
	data, err := s.rdb.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	userID := ""
	if rec, decErr := decodeRecord(data); decErr == nil {
		userID = rec.UserID
	}

	existed, err := deleteScript.Run(ctx, s.rdb,
		[]string{s.key(hash), s.userKey(userID)}, hash).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return existed == 1, nil
}

// Extend pushes token's session deadline to now+ttl, preserving CreatedAt.
// Used when refresh rotation is disabled.
func (s *Store) Extend(ctx context.Context, token string, ttl time.Duration) error {
	rec, err := s.getRecord(ctx, token)
	if err != nil {
		return err
	}
	rec.ExpiresAt = time.Now().UTC().Add(ttl)
	data, err := rec.encode()
	if err != nil {
		return err
	}

	hash := internal.HashToken(token)
	if err := s.rdb.Set(ctx, s.key(hash), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every live session owned by userID.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	hashes, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(hashes) == 0 {
		return s.dropUserKey(ctx, userID)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.key(h))
	}
	keys = append(keys, s.userKey(userID))
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) dropUserKey(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CountForUser returns the number of hashes indexed for userID. The count
// may include sessions Redis has already expired and hashes orphaned by
// undecodable records.
func (s *Store) CountForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
