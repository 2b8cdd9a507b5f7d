// Package ratelimit implements a sliding-window limiter for outbound email
// dispatch. The window is reserved, not just observed: a successful check
// consumes a slot immediately, so concurrent senders can never overshoot
// the cap, and a send that later fails does not return its slot.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxPerHour is the dispatch cap when no limit is configured.
const DefaultMaxPerHour = 20

// Window is the sliding-window span.
const Window = time.Hour

// Reservation is the outcome of a CheckAndReserve call.
type Reservation struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Status is a read-only snapshot of the limiter window.
type Status struct {
	MaxPerHour int
	Used       int
	Remaining  int
}

// SendLimiter tracks dispatch timestamps within the sliding window.
type SendLimiter struct {
	mu         sync.Mutex
	maxPerHour int
	sent       []time.Time
	now        func() time.Time
}

// NewSendLimiter creates a limiter allowing maxPerHour sends per sliding
// hour. A non-positive limit falls back to the default.
func NewSendLimiter(maxPerHour int) *SendLimiter {
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	return &SendLimiter{
		maxPerHour: maxPerHour,
		now:        time.Now,
	}
}

// NewSendLimiterAt is like NewSendLimiter but with an injectable clock,
// used by tests and simulations.
func NewSendLimiterAt(maxPerHour int, now func() time.Time) *SendLimiter {
	l := NewSendLimiter(maxPerHour)
	if now != nil {
		l.now = now
	}
	return l
}

// CheckAndReserve atomically checks the window and, if capacity remains,
// records the send. Remaining reflects the state after the reservation.
// When refused, RetryAfter is the wait until the oldest recorded send
// leaves the window.
func (l *SendLimiter) CheckAndReserve() Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.sent) >= l.maxPerHour {
		oldest := l.sent[0]
		resetAt := oldest.Add(Window)
		retry := resetAt.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Reservation{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retry,
			ResetAt:    resetAt,
		}
	}

	l.sent = append(l.sent, now)
	return Reservation{
		Allowed:   true,
		Remaining: l.maxPerHour - len(l.sent),
		ResetAt:   l.sent[0].Add(Window),
	}
}

// Status reports current window usage without reserving a slot. It is
// read-only: expired entries are skipped, not pruned, so the recorded
// window is untouched.
func (l *SendLimiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-Window)
	used := 0
	for _, t := range l.sent {
		if t.After(cutoff) {
			used++
		}
	}
	return Status{
		MaxPerHour: l.maxPerHour,
		Used:       used,
		Remaining:  l.maxPerHour - used,
	}
}

// prune drops timestamps that have aged out of the window. Caller holds mu.
func (l *SendLimiter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}
