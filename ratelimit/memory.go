package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	Entry
	// retainUntil is the point after which the sweep may drop the entry:
	// the later of the window end and the lockout end at last update.
	retainUntil time.Time
}

// MemoryStore is the default in-memory [Store]. All reads and writes for
// all keys funnel through one mutex, so each key's counter update is a
// single atomic unit and the sweep can never race a concurrent Hit.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates an empty in-memory rate-limit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func entryKey(op Operation, key string) string {
	return string(op) + ":" + key
}

// Hit applies the fixed-window-with-sticky-lockout transition for one attempt.
func (s *MemoryStore) Hit(_ context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entryKey(op, key)
	e := s.entries[k]
	if e == nil {
		e = &memoryEntry{Entry: Entry{WindowStart: now}}
		s.entries[k] = e
	}

	if now.Before(e.LockoutUntil) {
		return Outcome{
			Remaining:  0,
			ResetAt:    e.LockoutUntil,
			RetryAfter: e.LockoutUntil.Sub(now),
		}, nil
	}

	// Window reset clears the count but not the lockout count.
	if now.Sub(e.WindowStart) > p.Window {
		e.Count = 0
		e.WindowStart = now
	}

	e.Count++
	windowEnd := e.WindowStart.Add(p.Window)

	if e.Count > p.MaxAttempts {
		lockout := p.Lockout
		if p.ProgressiveBackoff {
			lockout = p.Lockout * time.Duration(backoffMultiplier(e.LockoutCount))
		}
		e.LockoutUntil = now.Add(lockout)
		e.LockoutCount++
		e.retainUntil = laterOf(windowEnd, e.LockoutUntil)

		return Outcome{
			Remaining:  0,
			ResetAt:    e.LockoutUntil,
			RetryAfter: lockout,
		}, nil
	}

	e.retainUntil = laterOf(windowEnd, e.LockoutUntil)

	return Outcome{
		Allowed:   true,
		Remaining: p.MaxAttempts - e.Count,
		ResetAt:   windowEnd,
	}, nil
}

// Peek reports entry state without consuming an attempt. Unseen keys and
// elapsed windows report the full attempt budget.
func (s *MemoryStore) Peek(_ context.Context, op Operation, key string, p Policy, now time.Time) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[entryKey(op, key)]
	if e == nil {
		return Outcome{Allowed: true, Remaining: p.MaxAttempts, ResetAt: now}, nil
	}

	if now.Before(e.LockoutUntil) {
		return Outcome{
			Remaining:  0,
			ResetAt:    e.LockoutUntil,
			RetryAfter: e.LockoutUntil.Sub(now),
		}, nil
	}

	if now.Sub(e.WindowStart) > p.Window {
		return Outcome{Allowed: true, Remaining: p.MaxAttempts, ResetAt: now}, nil
	}

	remaining := p.MaxAttempts - e.Count
	if remaining < 0 {
		remaining = 0
	}
	return Outcome{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   e.WindowStart.Add(p.Window),
	}, nil
}

// Reset removes the entry for that exact (operation, key) pair.
func (s *MemoryStore) Reset(_ context.Context, op Operation, key string) error {
	s.mu.Lock()
	delete(s.entries, entryKey(op, key))
	s.mu.Unlock()
	return nil
}

// Sweep drops entries whose window and lockout have both fully expired.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	for k, e := range s.entries {
		if now.After(e.retainUntil) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries. Used by tests and introspection.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
