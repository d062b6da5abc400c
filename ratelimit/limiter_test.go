package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLimiter(policies map[Operation]Policy) (*Limiter, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	l := New(store, policies)

	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, store, &now
}

func TestWindowArithmetic(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 2, Window: time.Minute, Lockout: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, OpLogin, "1.2.3.4")
		if err != nil {
			t.Fatalf("attempt %d unexpectedly rejected: %v", i+1, err)
		}
		if res.Remaining != 1-i {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i+1, 1-i, res.Remaining)
		}
	}

	_, err := l.Allow(ctx, OpLogin, "1.2.3.4")
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rlErr.StatusCode != 429 || rlErr.Code != CodeRateLimitExceeded {
		t.Fatalf("unexpected rejection: %+v", rlErr)
	}
	if rlErr.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %v", rlErr.RetryAfter)
	}

	// A different key in the same window is unaffected.
	if _, err := l.Allow(ctx, OpLogin, "5.6.7.8"); err != nil {
		t.Fatalf("independent key rejected: %v", err)
	}
}

func TestOperationsIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin:    {MaxAttempts: 1, Window: time.Minute, Lockout: time.Minute},
		OpRegister: {MaxAttempts: 1, Window: time.Minute, Lockout: time.Minute},
	})
	ctx := context.Background()

	if _, err := l.Allow(ctx, OpLogin, "k"); err != nil {
		t.Fatalf("login attempt rejected: %v", err)
	}
	if _, err := l.Allow(ctx, OpLogin, "k"); err == nil {
		t.Fatal("expected login lockout")
	}
	if _, err := l.Allow(ctx, OpRegister, "k"); err != nil {
		t.Fatalf("register should be independent of login: %v", err)
	}
}

func TestZeroAttemptsRejectsFirst(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 0, Window: time.Minute, Lockout: time.Minute},
	})

	if _, err := l.Allow(context.Background(), OpLogin, "k"); err == nil {
		t.Fatal("maxAttempts=0 must reject even the first attempt")
	}
}

func TestProgressiveBackoffDoubles(t *testing.T) {
	l, _, now := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 1, Window: time.Minute, Lockout: 100 * time.Millisecond, ProgressiveBackoff: true},
	})
	ctx := context.Background()

	l.Allow(ctx, OpLogin, "k")
	_, err := l.Allow(ctx, OpLogin, "k") // first lockout
	var first *Error
	if !errors.As(err, &first) {
		t.Fatalf("expected first lockout, got %v", err)
	}
	if first.RetryAfter != 100*time.Millisecond {
		t.Fatalf("first lockout: expected 100ms, got %v", first.RetryAfter)
	}

	// Let the first lockout and window expire, then violate again.
	*now = now.Add(2 * time.Minute)
	l.Allow(ctx, OpLogin, "k")
	_, err = l.Allow(ctx, OpLogin, "k")
	var second *Error
	if !errors.As(err, &second) {
		t.Fatalf("expected second lockout, got %v", err)
	}
	if second.RetryAfter != 200*time.Millisecond {
		t.Fatalf("second lockout: expected 200ms (2x), got %v", second.RetryAfter)
	}

	// Third violation quadruples.
	*now = now.Add(2 * time.Minute)
	l.Allow(ctx, OpLogin, "k")
	_, err = l.Allow(ctx, OpLogin, "k")
	var third *Error
	if !errors.As(err, &third) {
		t.Fatalf("expected third lockout, got %v", err)
	}
	if third.RetryAfter != 400*time.Millisecond {
		t.Fatalf("third lockout: expected 400ms (4x), got %v", third.RetryAfter)
	}
}

func TestWindowResetKeepsLockoutCount(t *testing.T) {
	l, _, now := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 2, Window: time.Minute, Lockout: time.Second, ProgressiveBackoff: true},
	})
	ctx := context.Background()

	// Exhaust the window and trigger the first lockout.
	l.Allow(ctx, OpLogin, "k")
	l.Allow(ctx, OpLogin, "k")
	if _, err := l.Allow(ctx, OpLogin, "k"); err == nil {
		t.Fatal("expected first lockout")
	}

	// After the window elapses the budget is back in full...
	*now = now.Add(2 * time.Minute)
	remaining, err := l.RemainingAttempts(ctx, OpLogin, "k")
	if err != nil {
		t.Fatalf("RemainingAttempts failed: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected full budget after window reset, got %d", remaining)
	}

	// ...but the lockout count was not reset: the next lockout doubles.
	l.Allow(ctx, OpLogin, "k")
	l.Allow(ctx, OpLogin, "k")
	_, lockErr := l.Allow(ctx, OpLogin, "k")
	var rlErr *Error
	if !errors.As(lockErr, &rlErr) {
		t.Fatalf("expected second lockout, got %v", lockErr)
	}
	if rlErr.RetryAfter != 2*time.Second {
		t.Fatalf("expected doubled lockout after window reset, got %v", rlErr.RetryAfter)
	}
}

func TestResetClearsExactPairOnly(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 1, Window: time.Minute, Lockout: time.Hour},
	})
	ctx := context.Background()

	l.Allow(ctx, OpLogin, "a")
	l.Allow(ctx, OpLogin, "a") // locks out "a"
	l.Allow(ctx, OpLogin, "b")

	locked, _ := l.IsLockedOut(ctx, OpLogin, "a")
	if !locked {
		t.Fatal("expected key a locked out")
	}

	if err := l.Reset(ctx, OpLogin, "a"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if locked, _ := l.IsLockedOut(ctx, OpLogin, "a"); locked {
		t.Fatal("reset did not clear lockout")
	}
	if remaining, _ := l.RemainingAttempts(ctx, OpLogin, "a"); remaining != 1 {
		t.Fatalf("expected full budget after reset, got %d", remaining)
	}
	// Key b's spent attempt is untouched.
	if remaining, _ := l.RemainingAttempts(ctx, OpLogin, "b"); remaining != 0 {
		t.Fatalf("expected key b unchanged, got %d", remaining)
	}
}

func TestRecordFailureBurnsBudget(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 2, Window: time.Minute, Lockout: time.Minute},
	})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, OpLogin, "k"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := l.RecordFailure(ctx, OpLogin, "k"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	// Budget spent by explicit failures; the next request-path attempt locks out.
	if _, err := l.Allow(ctx, OpLogin, "k"); err == nil {
		t.Fatal("expected lockout after recorded failures")
	}
}

func TestRemainingAttemptsNeverNegative(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 1, Window: time.Minute, Lockout: time.Millisecond},
	})
	ctx := context.Background()

	if remaining, _ := l.RemainingAttempts(ctx, OpLogin, "unseen"); remaining != 1 {
		t.Fatalf("unseen key: expected 1, got %d", remaining)
	}

	for i := 0; i < 5; i++ {
		l.Allow(ctx, OpLogin, "k")
	}
	remaining, _ := l.RemainingAttempts(ctx, OpLogin, "k")
	if remaining != 0 {
		t.Fatalf("expected 0, got %d", remaining)
	}
}

func TestEmptyKeyDefaultsToUnknown(t *testing.T) {
	l, store, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 1, Window: time.Minute, Lockout: time.Minute},
	})
	ctx := context.Background()

	l.Allow(ctx, OpLogin, "")
	if remaining, _ := l.RemainingAttempts(ctx, OpLogin, "unknown"); remaining != 0 {
		t.Fatal("empty key did not collapse onto the unknown bucket")
	}
	if store.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", store.Len())
	}
}

func TestRejectionMessageFormatting(t *testing.T) {
	l, _, _ := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 0, Window: time.Minute, Lockout: 5 * time.Minute, Message: "Too many login attempts"},
	})

	_, err := l.Allow(context.Background(), OpLogin, "k")
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	want := "Too many login attempts, please try again in 5 minutes"
	if rlErr.Message != want {
		t.Fatalf("expected %q, got %q", want, rlErr.Message)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "1 second"},
		{time.Second, "1 second"},
		{30 * time.Second, "30 seconds"},
		{59*time.Second + time.Millisecond, "1 minute"},
		{time.Minute, "1 minute"},
		{5 * time.Minute, "5 minutes"},
		{time.Hour, "1 hour"},
		{3 * time.Hour, "3 hours"},
		{90 * time.Minute, "2 hours"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	l, store, now := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 5, Window: time.Minute, Lockout: time.Minute},
	})
	ctx := context.Background()

	l.Allow(ctx, OpLogin, "a")
	l.Allow(ctx, OpLogin, "b")
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}

	// Nothing expired yet.
	store.Sweep(ctx, *now)
	if store.Len() != 2 {
		t.Fatalf("sweep removed live entries, got %d", store.Len())
	}

	store.Sweep(ctx, now.Add(2*time.Minute))
	if store.Len() != 0 {
		t.Fatalf("expected all entries swept, got %d", store.Len())
	}
}

func TestSweepKeepsActiveLockout(t *testing.T) {
	l, store, now := newTestLimiter(map[Operation]Policy{
		OpLogin: {MaxAttempts: 0, Window: time.Second, Lockout: time.Hour},
	})
	ctx := context.Background()

	l.Allow(ctx, OpLogin, "k") // instant lockout for an hour

	store.Sweep(ctx, now.Add(time.Minute))
	if store.Len() != 1 {
		t.Fatal("sweep dropped an entry with an active lockout")
	}

	store.Sweep(ctx, now.Add(2*time.Hour))
	if store.Len() != 0 {
		t.Fatal("sweep kept a fully expired lockout")
	}
}

func TestSweeperStartStopIdempotent(t *testing.T) {
	l, _, _ := newTestLimiter(nil)

	// Stop with nothing scheduled is a no-op.
	l.StopSweeper()

	l.StartSweeper(10 * time.Millisecond)
	l.StartSweeper(10 * time.Millisecond) // second start is a no-op
	l.StopSweeper()
	l.StopSweeper()

	// Restart after stop works.
	l.StartSweeper(10 * time.Millisecond)
	l.StopSweeper()
}

func TestConcurrentHitsNotLost(t *testing.T) {
	store := NewMemoryStore()
	p := Policy{MaxAttempts: 10_000, Window: time.Hour, Lockout: time.Hour}
	ctx := context.Background()
	now := time.Now()

	const goroutines = 16
	const perG = 250

	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < perG; j++ {
				if _, err := store.Hit(ctx, OpLogin, "k", p, now); err != nil {
					t.Errorf("Hit failed: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	out, err := store.Peek(ctx, OpLogin, "k", p, now)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	want := p.MaxAttempts - goroutines*perG
	if out.Remaining != want {
		t.Fatalf("lost increments: expected remaining %d, got %d", want, out.Remaining)
	}
}
