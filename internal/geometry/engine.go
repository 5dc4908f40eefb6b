package geometry

import (
	"time"

	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/log"
)

// DefaultDebounce is the settle delay after a graph mutation before the
// connectors are recomputed.
const DefaultDebounce = 50 * time.Millisecond

// Trigger names what caused a recompute.
type Trigger string

const (
	TriggerNodes    Trigger = "nodes"
	TriggerMutation Trigger = "mutation"
	TriggerResize   Trigger = "resize"
	TriggerSurface  Trigger = "surface"
	TriggerManual   Trigger = "manual"
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d on the caller's event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// NodeSource supplies the current node list.
type NodeSource interface {
	Nodes() []flow.TaskNode
}

// Engine keeps the current connector frame.
type Engine struct {
	nodes   NodeSource
	surface Surface
	sched   Scheduler
	delay   time.Duration
	logger  *log.Logger

	pending    Timer
	connectors []Connector
	hooks      []func(Trigger, []Connector)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l.Component("geometry")
	}
}

// NewEngine creates an engine. Nothing is computed until the first trigger.
func NewEngine(nodes NodeSource, surface Surface, sched Scheduler, opts ...Option) *Engine {
	e := &Engine{
		nodes:   nodes,
		surface: surface,
		sched:   sched,
		delay:   DefaultDebounce,
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnRecompute registers fn to run after every recompute.
func (e *Engine) OnRecompute(fn func(Trigger, []Connector)) {
	e.hooks = append(e.hooks, fn)
}

// Attach subscribes the engine to store mutations: node set changes
// recompute at once and again after the debounce, everything else only
// after the debounce.
func (e *Engine) Attach(store *flow.Store) {
	store.Observe(func(c flow.Change) {
		if c.Kind.StructureChanged() {
			e.NodesChanged()
		}
		e.Mutated()
	})
}

// SetSurface swaps the measurable surface and recomputes.
func (e *Engine) SetSurface(s Surface) {
	e.surface = s
	e.SurfaceChanged()
}

// Recompute rebuilds the connector frame now.
func (e *Engine) Recompute(trigger Trigger) []Connector {
	e.connectors = Compute(e.nodes.Nodes(), e.surface)
	e.logger.Debug("connectors recomputed", "trigger", string(trigger), "connectors", len(e.connectors))
	for _, fn := range e.hooks {
		fn(trigger, e.Connectors())
	}
	return e.Connectors()
}

// NodesChanged recomputes immediately after the node list changed.
func (e *Engine) NodesChanged() {
	e.Recompute(TriggerNodes)
}

// Resized recomputes immediately after the viewport changed size.
func (e *Engine) Resized() {
	e.Recompute(TriggerResize)
}

// SurfaceChanged recomputes immediately after anything in the rendering
// container changed. The signal is coarse on purpose.
func (e *Engine) SurfaceChanged() {
	e.Recompute(TriggerSurface)
}

// Mutated schedules a recompute after the debounce delay. A call while one
// is pending restarts the delay instead of queueing another.
func (e *Engine) Mutated() {
	if e.pending != nil {
		e.pending.Stop()
	}
	var t Timer
	t = e.sched.AfterFunc(e.delay, func() {
		if e.pending != t {
			return
		}
		e.pending = nil
		e.Recompute(TriggerMutation)
	})
	e.pending = t
}

// Pending reports whether a debounced recompute is scheduled.
func (e *Engine) Pending() bool {
	return e.pending != nil
}

// Flush runs a pending debounced recompute now.
func (e *Engine) Flush() {
	if e.pending == nil {
		return
	}
	e.pending.Stop()
	e.pending = nil
	e.Recompute(TriggerMutation)
}

// Stop cancels any pending recompute.
func (e *Engine) Stop() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

// Connectors returns a copy of the current frame.
func (e *Engine) Connectors() []Connector {
	return append([]Connector(nil), e.connectors...)
}

// Delay returns the debounce delay.
func (e *Engine) Delay() time.Duration {
	return e.delay
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, fn func()) Timer

// AfterFunc implements Scheduler.
func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Timer {
	return f(d, fn)
}
