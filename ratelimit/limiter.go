package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation identifies which brute-force surface an attempt belongs to.
// Limits for different operations are tracked independently even for the
// same identity key.
type Operation string

const (
	// OpLogin covers credential submission.
	OpLogin Operation = "login"
	// OpRegister covers account creation.
	OpRegister Operation = "register"
	// OpPasswordReset covers reset-challenge requests.
	OpPasswordReset Operation = "password_reset"
	// OpRefresh covers token-pair exchange.
	OpRefresh Operation = "refresh"
)

// CodeRateLimitExceeded is the machine-readable code carried by rejections.
const CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// ErrStoreUnavailable indicates the rate-limit backing store is unreachable.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Policy configures one operation's fixed window and lockout behavior.
// MaxAttempts of zero rejects every attempt.
type Policy struct {
	MaxAttempts        int
	Window             time.Duration
	Lockout            time.Duration
	ProgressiveBackoff bool
	// Message is the leading phrase of the rejection message; the
	// remaining lockout duration is appended to it.
	Message string
}

// Error is the rate-limiting member of the auth error family. It carries an
// HTTP status, a machine-readable code, and the Retry-After hint.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string { return e.Message }

// Result describes the state of the window after an attempt, for the
// X-RateLimit-* response headers.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces per-(operation, key) attempt budgets with progressive
// lockout. It never sleeps; all time-based behavior is clock comparison.
type Limiter struct {
	store    Store
	policies map[Operation]Policy
	fallback Policy

	now func() time.Time

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a [Limiter] over the given store. Operations without an entry
// in policies fall back to a conservative default (5 attempts / 15 minutes).
func New(store Store, policies map[Operation]Policy) *Limiter {
	cloned := make(map[Operation]Policy, len(policies))
	for op, p := range policies {
		cloned[op] = normalizePolicy(p)
	}

	return &Limiter{
		store:    store,
		policies: cloned,
		fallback: Policy{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			Lockout:     15 * time.Minute,
		},
		now: time.Now,
	}
}

func normalizePolicy(p Policy) Policy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.Window <= 0 {
		p.Window = 15 * time.Minute
	}
	if p.Lockout <= 0 {
		p.Lockout = p.Window
	}
	return p
}

func (l *Limiter) policy(op Operation) Policy {
	if p, ok := l.policies[op]; ok {
		return p
	}
	return l.fallback
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

// Allow records one attempt for the key and either admits it, returning the
// remaining budget, or rejects it with an [*Error] carrying the formatted
// lockout duration and Retry-After hint. Store failures are surfaced as
// wrapped [ErrStoreUnavailable], never as rate-limit rejections.
func (l *Limiter) Allow(ctx context.Context, op Operation, key string) (Result, error) {
	p := l.policy(op)

	out, err := l.store.Hit(ctx, op, normalizeKey(key), p, l.now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	res := Result{Limit: p.MaxAttempts, Remaining: out.Remaining, ResetAt: out.ResetAt}
	if out.Allowed {
		return res, nil
	}

	return res, l.rejection(p, out.RetryAfter)
}

func (l *Limiter) rejection(p Policy, retryAfter time.Duration) *Error {
	prefix := p.Message
	if prefix == "" {
		prefix = "Too many requests"
	}

	return &Error{
		StatusCode: 429,
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("%s, please try again in %s", prefix, FormatDuration(retryAfter)),
		RetryAfter: retryAfter,
	}
}

// RecordFailure counts one failure for the key outside the request path,
// e.g. from a login handler that only wants failed password checks to burn
// budget. Lockout transitions apply exactly as they do for Allow; only
// store failures are returned.
func (l *Limiter) RecordFailure(ctx context.Context, op Operation, key string) error {
	p := l.policy(op)
	if _, err := l.store.Hit(ctx, op, normalizeKey(key), p, l.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Reset clears count, window, and lockout for that exact (operation, key)
// pair only. Other operations tracked for the same key are untouched.
func (l *Limiter) Reset(ctx context.Context, op Operation, key string) error {
	if err := l.store.Reset(ctx, op, normalizeKey(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsLockedOut reports whether the key currently sits in an active lockout.
func (l *Limiter) IsLockedOut(ctx context.Context, op Operation, key string) (bool, error) {
	out, err := l.store.Peek(ctx, op, normalizeKey(key), l.policy(op), l.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out.RetryAfter > 0, nil
}

// RemainingAttempts returns the key's remaining budget: the full budget for
// an unseen key or an elapsed window, zero when exhausted, never negative.
func (l *Limiter) RemainingAttempts(ctx context.Context, op Operation, key string) (int, error) {
	out, err := l.store.Peek(ctx, op, normalizeKey(key), l.policy(op), l.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out.Remaining, nil
}

// StartSweeper launches the background sweep that drops fully expired
// windows and lockouts. Starting an already running sweeper is a no-op.
func (l *Limiter) StartSweeper(interval time.Duration) {
	l.sweepMu.Lock()
	defer l.sweepMu.Unlock()

	if l.sweepStop != nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	l.sweepStop = stop
	l.sweepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = l.store.Sweep(context.Background(), l.now())
			case <-stop:
				return
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to exit. Calling
// it with no sweeper scheduled has no effect; start and stop may be
// repeated in any order.
func (l *Limiter) StopSweeper() {
	l.sweepMu.Lock()
	stop, done := l.sweepStop, l.sweepDone
	l.sweepStop, l.sweepDone = nil, nil
	l.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// FormatDuration renders a duration in its largest sensible unit with
// correct singular/plural wording, rounding up so the caller never retries
// early. Sub-second remainders read as "1 second".
func FormatDuration(d time.Duration) string {
	if d <= time.Second {
		return "1 second"
	}

	switch {
	case d < time.Minute:
		return plural(ceilDiv(d, time.Second), "second")
	case d < time.Hour:
		return plural(ceilDiv(d, time.Minute), "minute")
	default:
		return plural(ceilDiv(d, time.Hour), "hour")
	}
}

func ceilDiv(d, unit time.Duration) int64 {
	return int64((d + unit - 1) / unit)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
