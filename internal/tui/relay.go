package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/flowboard/internal/geometry"
)

// DispatchMsg carries work that must run on the program's update
// goroutine, which owns the board's graph store.
type DispatchMsg struct {
	Fn func()
}

// Relay turns a running bubbletea program into the board's event loop:
// it is the collab.Dispatcher for session callbacks and the
// geometry.Scheduler for debounced connector recomputes.
//
// Post never blocks. Work is queued and handed to the program in order by
// a pump goroutine, so Post is safe from inside Update as well as from
// notifier and timer goroutines.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

// Bind attaches the program and starts delivering. Work posted before
// Bind is dropped.
func (r *Relay) Bind(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil || r.closed {
		return
	}
	r.program = p
	r.wake = make(chan struct{}, 1)
	r.done = make(chan struct{})
	go r.pump(p, r.wake, r.done)
}

// Post implements collab.Dispatcher.
func (r *Relay) Post(fn func()) bool {
	r.mu.Lock()
	if r.program == nil || r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, fn)
	wake := r.wake
	r.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc implements geometry.Scheduler.
func (r *Relay) AfterFunc(d time.Duration, fn func()) geometry.Timer {
	return time.AfterFunc(d, func() { r.Post(fn) })
}

// Close stops delivery. Queued work that has not reached the program is
// dropped.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.queue = nil
	if r.done != nil {
		close(r.done)
	}
}

func (r *Relay) pump(p *tea.Program, wake <-chan struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-wake:
		}
		for {
			r.mu.Lock()
			batch := r.queue
			r.queue = nil
			r.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				// Send returns once the program has exited, so a pump
				// never outlives it by more than one batch.
				p.Send(DispatchMsg{Fn: fn})
			}
		}
	}
}
