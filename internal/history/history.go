// Package history records committed graph mutations as snapshot pairs and
// replays them for undo and redo.
package history

import (
	"time"

	"github.com/felixgeelhaar/flowboard/internal/flow"
)

// Entry is one committed user action.
type Entry struct {
	Seq       uint64
	Label     string
	Before    flow.Snapshot
	After     flow.Snapshot
	Committed time.Time
}

// Restorer is where snapshots are applied. *flow.Store satisfies it.
type Restorer interface {
	Restore(flow.Snapshot)
}

// History holds a linear undo stack and a linear redo stack.
// Like the graph store it is owned by a single event loop.
type History struct {
	undo  []Entry
	redo  []Entry
	limit int
	seq   uint64
	now   func() time.Time

	listeners []func(canUndo, canRedo bool)
}

// Option configures a History.
type Option func(*History)

// WithLimit caps the undo stack; the oldest entries are dropped first.
// Zero or less means unbounded.
func WithLimit(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.limit = n
		}
	}
}

// WithClock overrides time.Now for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *History) {
		h.now = now
	}
}

// New creates an empty History.
func New(opts ...Option) *History {
	h := &History{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnChange registers fn to be told whenever undo or redo availability may
// have changed.
func (h *History) OnChange(fn func(canUndo, canRedo bool)) {
	h.listeners = append(h.listeners, fn)
}

func (h *History) notify() {
	for _, fn := range h.listeners {
		fn(h.CanUndo(), h.CanRedo())
	}
}

// Record pushes a committed mutation and clears the redo stack.
func (h *History) Record(label string, before, after flow.Snapshot) Entry {
	h.seq++
	e := Entry{
		Seq:       h.seq,
		Label:     label,
		Before:    before,
		After:     after,
		Committed: h.now(),
	}
	h.undo = append(h.undo, e)
	if h.limit > 0 && len(h.undo) > h.limit {
		drop := len(h.undo) - h.limit
		h.undo = append([]Entry(nil), h.undo[drop:]...)
	}
	h.redo = nil
	h.notify()
	return e
}

// Undo restores the Before snapshot of the latest entry and moves the
// entry onto the redo stack. It reports false when there is nothing to undo.
func (h *History) Undo(target Restorer) bool {
	if len(h.undo) == 0 {
		return false
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	target.Restore(e.Before)
	h.redo = append(h.redo, e)
	h.notify()
	return true
}

// Redo restores the After snapshot of the most recently undone entry and
// moves it back onto the undo stack.
func (h *History) Redo(target Restorer) bool {
	if len(h.redo) == 0 {
		return false
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	target.Restore(e.After)
	h.undo = append(h.undo, e)
	h.notify()
	return true
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool {
	return len(h.undo) > 0
}

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool {
	return len(h.redo) > 0
}

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// Entries returns the undo stack, oldest first.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.undo...)
}

// Clear drops both stacks. Used after a full reload.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
	h.notify()
}
