package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for window tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCheckAndReserve_FillsWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(5, clock.Now)

	for i := 0; i < 5; i++ {
		r := l.CheckAndReserve()
		if !r.Allowed {
			t.Fatalf("send %d refused", i+1)
		}
		if r.Remaining != 5-(i+1) {
			t.Errorf("send %d: remaining = %d, want %d", i+1, r.Remaining, 5-(i+1))
		}
	}

	r := l.CheckAndReserve()
	if r.Allowed {
		t.Fatal("send over the cap allowed")
	}
	if r.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", r.Remaining)
	}
	if r.RetryAfter <= 0 || r.RetryAfter > Window {
		t.Errorf("retryAfter = %v, want within (0, %v]", r.RetryAfter, Window)
	}
}

func TestCheckAndReserve_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(2, clock.Now)

	l.CheckAndReserve()
	clock.Advance(30 * time.Minute)
	l.CheckAndReserve()

	if r := l.CheckAndReserve(); r.Allowed {
		t.Fatal("third send within the hour allowed")
	}

	// The first send ages out 30 minutes later; exactly one slot opens.
	clock.Advance(30*time.Minute + time.Second)

	r := l.CheckAndReserve()
	if !r.Allowed {
		t.Fatal("send refused after oldest entry expired")
	}
	if r := l.CheckAndReserve(); r.Allowed {
		t.Fatal("window replenished more than one slot")
	}
}

func TestCheckAndReserve_RetryAfterMatchesOldest(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(1, clock.Now)

	l.CheckAndReserve()
	clock.Advance(20 * time.Minute)

	r := l.CheckAndReserve()
	if r.Allowed {
		t.Fatal("over-cap send allowed")
	}
	if want := 40 * time.Minute; r.RetryAfter != want {
		t.Errorf("retryAfter = %v, want %v", r.RetryAfter, want)
	}
	if want := clock.Now().Add(40 * time.Minute); !r.ResetAt.Equal(want) {
		t.Errorf("resetAt = %v, want %v", r.ResetAt, want)
	}
}

// A failed send does not return its slot: the reservation is consumed at
// check time regardless of the send outcome.
func TestCheckAndReserve_NoRefund(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(3, clock.Now)

	for i := 0; i < 3; i++ {
		l.CheckAndReserve() // caller's sends fail downstream; nothing to undo
	}

	if s := l.Status(); s.Used != 3 || s.Remaining != 0 {
		t.Errorf("status = %+v, want used 3 remaining 0", s)
	}
}

// Status reads the window without rewriting it: expired entries stay in
// the slice until the next reservation prunes them, but are not counted.
func TestStatus_DoesNotMutateWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(3, clock.Now)

	for i := 0; i < 3; i++ {
		l.CheckAndReserve()
	}
	clock.Advance(Window + time.Second)

	s := l.Status()
	if s.Used != 0 || s.Remaining != 3 {
		t.Errorf("status after expiry = %+v, want empty window", s)
	}
	if len(l.sent) != 3 {
		t.Errorf("Status pruned the window: %d entries left, want 3", len(l.sent))
	}

	if r := l.CheckAndReserve(); !r.Allowed {
		t.Error("reservation refused after window expired")
	}
}

func TestStatus_DoesNotReserve(t *testing.T) {
	clock := newFakeClock()
	l := NewSendLimiterAt(2, clock.Now)

	for i := 0; i < 10; i++ {
		l.Status()
	}

	s := l.Status()
	if s.Used != 0 || s.Remaining != 2 || s.MaxPerHour != 2 {
		t.Errorf("status = %+v, want untouched window", s)
	}
}

// With 2N concurrent callers against a cap of N, exactly N reservations
// succeed.
func TestCheckAndReserve_Concurrent(t *testing.T) {
	const limit = 20
	l := NewSendLimiter(limit)

	var wg sync.WaitGroup
	results := make(chan bool, 2*limit)
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.CheckAndReserve().Allowed
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != limit {
		t.Errorf("allowed %d concurrent sends, want exactly %d", allowed, limit)
	}
}
