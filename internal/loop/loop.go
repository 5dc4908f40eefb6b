// Package loop provides the single logical thread that owns a board
// session. Graph mutation, geometry recomputation and gesture handling run
// inside the loop; background work hands results back with Post.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/flowboard/internal/log"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("loop closed")

// Loop is a serial executor.
type Loop struct {
	queue  chan func()
	done   chan struct{}
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a loop with the given queue capacity.
func New(capacity int, logger *log.Logger) *Loop {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Loop{
		queue:  make(chan func(), capacity),
		done:   make(chan struct{}),
		logger: logger.Component("loop"),
	}
}

// Post enqueues fn. It is safe to call from any goroutine and never runs
// fn inline. It reports false when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes queued work until ctx is cancelled or Close is called.
// A panicking task is logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	fn()
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// Close stops the loop. Pending work is dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Done is closed once the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a delayed task bound to a loop.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// Stop cancels the timer. A callback already queued on the loop is
// skipped as well.
func (t *Timer) Stop() bool {
	t.stopped.Store(true)
	return t.t.Stop()
}

// AfterFunc posts fn to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if timer.stopped.Load() {
				return
			}
			fn()
		})
	})
	return timer
}
