package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "rl:"

// hitScript runs the whole fixed-window/lockout transition server-side so
// the per-key update is a single atomic unit even across processes. Entry
// state lives in a hash: c = count, ws = window start, lu = lockout until,
// lc = lockout count; all times are Unix milliseconds.
//
// ARGV: now, window, maxAttempts, lockout, progressive(0/1), retention.
// Returns {allowed, remaining, resetAtMs, retryAfterMs}.
const hitScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])
local progressive = tonumber(ARGV[5])
local retention = tonumber(ARGV[6])

local e = redis.call("HMGET", KEYS[1], "c", "ws", "lu", "lc")
local count = tonumber(e[1]) or 0
local ws = tonumber(e[2]) or now
local lu = tonumber(e[3]) or 0
local lc = tonumber(e[4]) or 0

if now < lu then
  return {0, 0, lu, lu - now}
end

if now - ws > window then
  count = 0
  ws = now
end

count = count + 1

if count > max then
  local mult = 1
  if progressive == 1 then
    local shift = lc
    if shift > 16 then
      shift = 16
    end
    mult = 2 ^ shift
  end
  lu = now + lockout * mult
  lc = lc + 1
  redis.call("HMSET", KEYS[1], "c", count, "ws", ws, "lu", lu, "lc", lc)
  redis.call("PEXPIRE", KEYS[1], (lu - now) + retention)
  return {0, 0, lu, lu - now}
end

redis.call("HMSET", KEYS[1], "c", count, "ws", ws, "lu", lu, "lc", lc)
local ttl = (ws + window - now) + retention
if lu > ws + window then
  ttl = (lu - now) + retention
end
redis.call("PEXPIRE", KEYS[1], ttl)
return {1, max - count, ws + window, 0}
`

var hitLua = redis.NewScript(hitScript)

// RedisStore is a [Store] backed by Redis for multi-process deployments.
// Expiry is native: keys carry a TTL covering the later of the window end
// and the lockout end plus a retention slack, so Sweep is a no-op. The
// retention slack keeps lockout counts alive between violations so
// progressive backoff still compounds across windows.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed rate-limit store. An empty prefix
// defaults to "rl:"; a zero retention defaults to one hour.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) key(op Operation, key string) string {
	return s.prefix + string(op) + ":" + key
}

// Hit applies one attempt atomically via the Lua script.
func (s *RedisStore) Hit(ctx context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error) {
	args := []any{
		now.UnixMilli(),
		p.Window.Milliseconds(),
		p.MaxAttempts,
		p.Lockout.Milliseconds(),
		boolArg(p.ProgressiveBackoff),
		s.retention.Milliseconds(),
	}

	raw, err := hitLua.Run(ctx, s.redis, []string{s.key(op, key)}, args...).Slice()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(raw) != 4 {
		return Outcome{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	allowed := asInt64(raw[0]) == 1
	remaining := int(asInt64(raw[1]))
	if remaining < 0 {
		remaining = 0
	}

	return Outcome{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    time.UnixMilli(asInt64(raw[2])),
		RetryAfter: time.Duration(asInt64(raw[3])) * time.Millisecond,
	}, nil
}

// Peek reads entry state without recording an attempt.
func (s *RedisStore) Peek(ctx context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error) {
	vals, err := s.redis.HMGet(ctx, s.key(op, key), "c", "ws", "lu").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Outcome{Allowed: true, Remaining: p.MaxAttempts, ResetAt: now}, nil
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count := fieldInt64(vals, 0)
	windowStart := fieldInt64(vals, 1)
	lockoutUntil := fieldInt64(vals, 2)

	nowMs := now.UnixMilli()
	if nowMs < lockoutUntil {
		return Outcome{
			Remaining:  0,
			ResetAt:    time.UnixMilli(lockoutUntil),
			RetryAfter: time.Duration(lockoutUntil-nowMs) * time.Millisecond,
		}, nil
	}

	if windowStart == 0 || nowMs-windowStart > p.Window.Milliseconds() {
		return Outcome{Allowed: true, Remaining: p.MaxAttempts, ResetAt: now}, nil
	}

	remaining := p.MaxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Outcome{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(windowStart + p.Window.Milliseconds()),
	}, nil
}

// Reset deletes the entry for that exact (operation, key) pair.
func (s *RedisStore) Reset(ctx context.Context, op Operation, key string) error {
	if err := s.redis.Del(ctx, s.key(op, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep is a no-op: Redis key TTLs handle expiry.
func (s *RedisStore) Sweep(context.Context, time.Time) error { return nil }

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		// Lua numbers with a fractional part come back as strings.
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return int64(f)
		}
	}
	return 0
}

func fieldInt64(vals []any, i int) int64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	if s, ok := vals[i].(string); ok {
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			return n
		}
		var f float64
		if _, err := fmt.Sscanf(s, "%f", &f); err == nil {
			return int64(f)
		}
	}
	return 0
}
