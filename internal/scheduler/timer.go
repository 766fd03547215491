package scheduler

import (
	"sync"
	"time"
)

// Timer is a cancellable, re-armable one-shot timer bound to a Loop.
//
// Every Schedule or Cancel invalidates the previously armed firing: the firing carries the
// generation it was armed with and is dropped on the loop if the generation has moved on, even
// when it was already queued. A callback that is already running is never interrupted.
type Timer struct {
	loop *Loop
	fn   func()

	mu      sync.Mutex
	gen     uint64
	pending *time.Timer
}

// Schedule cancels any pending firing and arms the timer to fire after d.
func (t *Timer) Schedule(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = time.AfterFunc(d, func() {
		if !t.loop.Post(func() { t.fire(gen) }) {
			t.drop(gen)
		}
	})
}

// Cancel drops any pending firing.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
}

// Pending reports whether a firing is armed and has not yet run.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	t.fn()
}

// drop forgets a firing the loop refused because it was not running.
func (t *Timer) drop(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen == t.gen {
		t.pending = nil
	}
}
