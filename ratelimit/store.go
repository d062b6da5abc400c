package ratelimit

import (
	"context"
	"time"
)

// Entry is the per-(operation, key) counter state. The count and window
// reset together when the window elapses; the lockout count deliberately
// survives window resets — it is the basis for progressive backoff — until
// the entry is explicitly reset or swept.
type Entry struct {
	Count        int
	WindowStart  time.Time
	LockoutUntil time.Time
	LockoutCount int
}

// Outcome is the result of applying one attempt to an entry.
type Outcome struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // > 0 only when rejected
}

// Store holds the rate-limit table. Implementations must apply each Hit as
// a single atomic unit per key: concurrent increments on the same key must
// not be lost to a read-modify-write race, and Sweep must never observe an
// entry mid-update.
//
// MemoryStore is the single-process default; RedisStore is the shared-store
// substitution for horizontally scaled deployments. Any object implementing
// this capability set may replace them.
type Store interface {
	// Hit records one attempt and runs the full fixed-window/lockout
	// transition for the key under the given policy.
	Hit(ctx context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error)

	// Peek reports the current state without recording an attempt.
	Peek(ctx context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error)

	// Reset clears count, window, and lockout for that exact
	// (operation, key) pair only.
	Reset(ctx context.Context, op Operation, key string) error

	// Sweep drops entries whose window and lockout have both fully
	// expired. Implementations with native expiry may make this a no-op.
	Sweep(ctx context.Context, now time.Time) error
}

// backoffMultiplier returns 2^lockoutCount, capped so repeat offenders
// cannot overflow the lockout arithmetic.
func backoffMultiplier(lockoutCount int) int64 {
	const maxShift = 16
	if lockoutCount > maxShift {
		lockoutCount = maxShift
	}
	return int64(1) << lockoutCount
}
