package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	assert.Equal(t, 3, c.PendingCount())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, c.PendingCount())
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())
}

func TestFakeClock_Stop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Zero(t, c.PendingCount())

	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFakeClock_RearmingTimerFiresWithinWindow(t *testing.T) {
	c := Fake(epoch)
	ticks := 0
	var arm func()
	arm = func() {
		c.AfterFunc(time.Second, func() {
			ticks++
			if ticks < 5 {
				arm()
			}
		})
	}
	arm()

	c.Tick(time.Second, 3)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(10 * time.Second)
	assert.Equal(t, 5, ticks)
	assert.Zero(t, c.PendingCount())
}

func TestFakeClock_StoppedAfterFiringReportsFalse(t *testing.T) {
	c := Fake(epoch)
	timer := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)
	assert.False(t, timer.Stop())
}

func TestFakeClock_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.WaitForTimers(2)
		close(done)
	}()

	c.AfterFunc(time.Second, func() {})
	c.AfterFunc(time.Second, func() {})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTimers did not return")
	}
}

func TestRealClock(t *testing.T) {
	c := Real()
	fired := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer did not fire")
	}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}

func TestFakeClock_CallbackSeesItsDeadline(t *testing.T) {
	c := Fake(epoch)
	var seen []time.Time
	c.AfterFunc(2*time.Second, func() { seen = append(seen, c.Now()) })
	c.AfterFunc(5*time.Second, func() { seen = append(seen, c.Now()) })

	c.Advance(10 * time.Second)
	assert.Equal(t, []time.Time{epoch.Add(2 * time.Second), epoch.Add(5 * time.Second)}, seen)
	assert.Equal(t, epoch.Add(10*time.Second), c.Now())
}
