package watcher

import (
	"sync"
	"time"
)

// debouncer runs the last function triggered for a key once the key has
// been quiet for delay.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration) *debouncer {
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	return &debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

// Trigger schedules fn for key, replacing anything already scheduled.
func (d *debouncer) Trigger(key string, fn func()) {
	if d == nil {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timers[key] != t || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

// Pending returns the number of scheduled keys.
func (d *debouncer) Pending() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels everything scheduled.
func (d *debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
