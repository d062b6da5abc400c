// Package ratelimit enforces per-(operation, key) attempt budgets with
// fixed windows and sticky, progressively backed-off lockouts.
//
// # Window semantics
//
// Each (operation, key) pair owns one entry {count, windowStart,
// lockoutUntil, lockoutCount}. The count and window reset together once the
// window elapses; the lockout count survives window resets and doubles the
// next lockout when progressive backoff is enabled (second lockout 2x,
// third 4x, ...). MaxAttempts of zero rejects every attempt.
//
// # Architecture boundaries
//
// The [Limiter] owns policy (budgets, messages, duration formatting); the
// [Store] owns state and atomicity. [MemoryStore] serializes every update
// behind one mutex; [RedisStore] runs the transition in a Lua script so the
// same guarantee holds across processes. The limiter never sleeps — its
// only time-based behavior is comparing against a clock.
//
// # What this package must NOT do
//
//   - Inspect HTTP requests (key extraction lives in the middleware package).
//   - Retry internally; retries belong to the caller via Retry-After.
package ratelimit
