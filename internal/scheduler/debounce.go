package scheduler

import "time"

// Debouncer coalesces bursts of signals into a single action that runs once the signals have
// been quiet for the configured period.
type Debouncer struct {
	quiet time.Duration
	timer *Timer
}

// NewDebouncer creates a debouncer whose action runs on the given loop.
func NewDebouncer(loop *Loop, quiet time.Duration, action func()) *Debouncer {
	return &Debouncer{
		quiet: quiet,
		timer: loop.NewTimer(action),
	}
}

// Signal restarts the quiet period. Safe for concurrent use.
func (d *Debouncer) Signal() {
	d.timer.Schedule(d.quiet)
}

// Cancel drops a pending action.
func (d *Debouncer) Cancel() {
	d.timer.Cancel()
}

// Pending reports whether an action is waiting for the quiet period to end.
func (d *Debouncer) Pending() bool {
	return d.timer.Pending()
}
