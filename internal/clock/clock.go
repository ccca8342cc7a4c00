// Package clock abstracts the timer operations used by detection runs so
// tests can drive them deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the tracker depends on.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f after d. The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call.
type Timer interface {
	// Stop reports whether the call was prevented.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FakeClock only moves when Advance is called. AfterFunc callbacks run
// synchronously inside Advance, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock passes now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.waiters = append(c.waiters, t)
	c.changed.Broadcast()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the window. Each callback sees Now at its own deadline, so
// timers armed by a firing callback also fire if their deadline is reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.next(target)
		if t == nil {
			break
		}
		t.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Tick advances the clock n times by step. Useful for walking a poll loop.
func (c *FakeClock) Tick(step time.Duration, n int) {
	for i := 0; i < n; i++ {
		c.Advance(step)
	}
}

// next removes and returns the earliest live timer due by target, moving
// the clock to its deadline. Ties fire in arming order.
func (c *FakeClock) next(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.waiters[:0]
	for _, t := range c.waiters {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.waiters = live

	idx := -1
	for i, t := range c.waiters {
		if t.deadline.After(target) {
			continue
		}
		if idx < 0 || t.deadline.Before(c.waiters[idx].deadline) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	t := c.waiters[idx]
	c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
	t.fired = true
	if t.deadline.After(c.now) {
		c.now = t.deadline
	}
	return t
}

// PendingCount returns the number of armed timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// WaitForTimers blocks until at least n timers are armed.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, t := range c.waiters {
		if !t.stopped {
			n++
		}
	}
	return n
}
