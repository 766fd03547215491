package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

const defaultQueueSize = 64

// Loop runs posted callbacks one at a time on a single goroutine. Timers created from the loop
// dispatch their callbacks through it, so everything scheduled on one loop is serialized.
type Loop struct {
	name   string
	tasks  chan func()
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewLoop creates a stopped loop.
func NewLoop(name string, logger zerolog.Logger) *Loop {
	return &Loop{
		name:   name,
		tasks:  make(chan func(), defaultQueueSize),
		logger: logger.With().Str("loop", name).Logger(),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx != nil {
		return errors.New("loop is already running")
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.wg.Add(1)
	go l.run(l.ctx)

	l.logger.Debug().Msg("Loop started")
	return nil
}

// Stop terminates the loop after the callback currently running returns. Callbacks still
// queued are discarded.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.ctx == nil {
		l.mu.Unlock()
		return errors.New("loop is not running")
	}
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()

	l.mu.Lock()
	l.ctx = nil
	l.cancel = nil
	l.mu.Unlock()

	l.logger.Debug().Msg("Loop stopped")
	return nil
}

// Post queues fn for execution on the loop goroutine. It returns false when the loop is not
// running.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()
	if ctx == nil {
		return false
	}

	select {
	case l.tasks <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// NewTimer returns a cancellable timer whose callback runs on this loop.
func (l *Loop) NewTimer(fn func()) *Timer {
	return &Timer{loop: l, fn: fn}
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			l.execute(fn)
		case <-ctx.Done():
			return
		}
	}
}

// execute runs a callback, recovering panics so one bad callback cannot stop the loop.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered panic in loop callback")
		}
	}()
	fn()
}
