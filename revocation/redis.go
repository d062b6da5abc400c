package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the revocation backend is unreachable.
var ErrRedisUnavailable = errors.New("revocation backend unavailable")

const defaultRedisPrefix = "rv:"

// RedisStore is a [Store] backed by Redis, for deployments that run more
// than one process and need revocation to be visible across all of them.
//
// Entries are written with the configured TTL. Setting the TTL to the
// refresh-token lifetime (plus slack) is safe: a token older than that has
// already expired on its own and can no longer be presented, so letting the
// revocation entry lapse does not weaken the "once revoked, always revoked"
// guarantee. A TTL of zero keeps entries forever.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed revocation store. An empty prefix
// defaults to "rv:".
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Revoke marks the identifier as revoked.
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(id), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the identifier has been revoked.
func (s *RedisStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Clear removes every revocation entry under this store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+"*", 256).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
