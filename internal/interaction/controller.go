// Package interaction turns pointer gestures and editor commands into graph
// store mutations.
//
// A Controller binds one project's graph store, command history and
// geometry engine to the acting user's capability set. Gesture state lives
// in a Session, one per pointer, so the controller itself only holds what
// every session shares.
//
// Every mutating entry point is gated by Capabilities.CanEdit. A denied call
// is a silent no-op that reports false, never an error; callers use
// Affordances to render disabled controls up front.
package interaction

import (
	"context"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/geometry"
	"github.com/felixgeelhaar/flowboard/internal/history"
	"github.com/felixgeelhaar/flowboard/internal/layout"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
)

// Default node box used when no surface is supplied.
const (
	DefaultNodeWidth  = 200
	DefaultNodeHeight = 80
)

// Canvas is the scrollable area nodes are placed on. Pointer positions
// handed to a Session are viewport coordinates; adding Scroll gives
// canvas-content coordinates.
type Canvas struct {
	Scroll domain.Point `json:"scroll" yaml:"scroll"`
	Width  float64      `json:"width" yaml:"width"`
	Height float64      `json:"height" yaml:"height"`
}

// DefaultCanvas matches the board defaults in config.
func DefaultCanvas() Canvas {
	return Canvas{Width: 2400, Height: 1600}
}

// ToContent converts a viewport pointer position to canvas-content
// coordinates.
func (c Canvas) ToContent(p domain.Point) domain.Point {
	return p.Add(c.Scroll)
}

// Callbacks are the notifications a controller emits to its caller. Any of
// them may be nil.
type Callbacks struct {
	OnSelect            func(id domain.TaskID)
	OnPositionChange    func(id domain.TaskID, pos domain.Point)
	OnStatusChange      func(id domain.TaskID, status domain.Status)
	OnConnectionsChange func(source domain.TaskID, targets []domain.TaskID)
	// OnGraphReset fires when the whole graph was swapped, by undo, redo
	// or a reload.
	OnGraphReset    func()
	OnHistoryChange func(canUndo, canRedo bool)
	// OnSaveProject persists the node list. It only runs on an explicit
	// Save, never as a side effect of editing.
	OnSaveProject func(ctx context.Context, nodes []flow.TaskNode) error
}

// Affordances reports which controls should be enabled.
type Affordances struct {
	Move       bool `json:"move"`
	Connect    bool `json:"connect"`
	DeleteEdge bool `json:"deleteEdge"`
	AddNode    bool `json:"addNode"`
	RemoveNode bool `json:"removeNode"`
	Undo       bool `json:"undo"`
	Redo       bool `json:"redo"`
	Save       bool `json:"save"`
	Manage     bool `json:"manage"`
}

// Controller owns the shared editing state of one open project.
type Controller struct {
	store   *flow.Store
	history *history.History
	engine  *geometry.Engine
	surface geometry.Surface
	caps    authz.Capabilities
	canvas  Canvas
	cb      Callbacks
	layout  layout.Config
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory sets the command history. By default an unbounded one is
// created.
func WithHistory(h *history.History) Option {
	return func(c *Controller) { c.history = h }
}

// WithEngine attaches a geometry engine; it is subscribed to the store.
func WithEngine(e *geometry.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// WithSurface sets the surface used to size nodes when clamping drops and
// hit testing. Defaults to a LayoutSurface of DefaultNodeWidth by
// DefaultNodeHeight boxes.
func WithSurface(s geometry.Surface) Option {
	return func(c *Controller) { c.surface = s }
}

// WithCapabilities sets the acting user's capability set. Without it the
// controller is read-only.
func WithCapabilities(caps authz.Capabilities) Option {
	return func(c *Controller) { c.caps = caps }
}

// WithCanvas sets the canvas geometry.
func WithCanvas(cv Canvas) Option {
	return func(c *Controller) { c.canvas = cv }
}

// WithCallbacks sets the caller notifications.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.cb = cb }
}

// WithLayout sets the auto-layout spacing.
func WithLayout(cfg layout.Config) Option {
	return func(c *Controller) { c.layout = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l.Component("interaction") }
}

// WithMetrics records graph and history activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller over store.
func New(store *flow.Store, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		canvas: DefaultCanvas(),
		layout: layout.DefaultConfig(),
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.history == nil {
		c.history = history.New()
	}
	if c.surface == nil {
		c.surface = geometry.NewLayoutSurface(store, geometry.FixedSize(DefaultNodeWidth, DefaultNodeHeight))
	}

	store.Observe(c.observe)
	if c.engine != nil {
		c.engine.Attach(store)
		c.engine.OnRecompute(func(t geometry.Trigger, _ []geometry.Connector) {
			c.metrics.GeometryRecompute(string(t))
		})
	}
	c.history.OnChange(func(bool, bool) {
		if c.cb.OnHistoryChange != nil {
			c.cb.OnHistoryChange(c.CanUndo(), c.CanRedo())
		}
	})
	return c
}

// observe forwards store changes to metrics and callbacks.
func (c *Controller) observe(ch flow.Change) {
	c.metrics.GraphMutation(string(ch.Kind))

	switch ch.Kind {
	case flow.ChangeNodeMoved:
		if c.cb.OnPositionChange != nil {
			if n, ok := c.store.Node(ch.NodeID); ok {
				c.cb.OnPositionChange(n.ID, n.Position)
			}
		}
	case flow.ChangeNodeStatus:
		if c.cb.OnStatusChange != nil {
			if n, ok := c.store.Node(ch.NodeID); ok {
				c.cb.OnStatusChange(n.ID, n.Status)
			}
		}
	case flow.ChangeEdgeAdded, flow.ChangeEdgeRemoved, flow.ChangeConnectionsSet:
		if c.cb.OnConnectionsChange != nil {
			if n, ok := c.store.Node(ch.NodeID); ok {
				c.cb.OnConnectionsChange(n.ID, n.NextTaskIDs)
			}
		}
	case flow.ChangeRestored, flow.ChangeReplaced:
		if c.cb.OnGraphReset != nil {
			c.cb.OnGraphReset()
		}
	}
}

// commit runs mutate and, when it changed the graph, records one history
// entry spanning the whole call.
func (c *Controller) commit(label string, mutate func() bool) bool {
	if !c.caps.CanEdit {
		c.logger.Debug("edit suppressed", "action", label, "role", string(c.caps.Role))
		return false
	}
	before := c.store.Snapshot()
	if !mutate() {
		return false
	}
	c.history.Record(label, before, c.store.Snapshot())
	c.metrics.HistoryOperation("record")
	return true
}

// Store returns the bound graph store.
func (c *Controller) Store() *flow.Store { return c.store }

// History returns the bound command history.
func (c *Controller) History() *history.History { return c.history }

// Engine returns the geometry engine, or nil.
func (c *Controller) Engine() *geometry.Engine { return c.engine }

// Surface returns the measurable surface.
func (c *Controller) Surface() geometry.Surface { return c.surface }

// Capabilities returns the acting user's capability set.
func (c *Controller) Capabilities() authz.Capabilities { return c.caps }

// SetCapabilities replaces the capability set, for example after the
// user's role changed.
func (c *Controller) SetCapabilities(caps authz.Capabilities) {
	c.caps = caps
	if c.cb.OnHistoryChange != nil {
		c.cb.OnHistoryChange(c.CanUndo(), c.CanRedo())
	}
}

// Canvas returns the canvas geometry.
func (c *Controller) Canvas() Canvas { return c.canvas }

// SetCanvas updates scroll offset and extent. A size change recomputes
// connectors immediately.
func (c *Controller) SetCanvas(cv Canvas) {
	resized := cv.Width != c.canvas.Width || cv.Height != c.canvas.Height
	c.canvas = cv
	if resized && c.engine != nil {
		c.engine.Resized()
	}
}

// Affordances reports which controls are enabled for the acting user.
func (c *Controller) Affordances() Affordances {
	edit := c.caps.CanEdit
	return Affordances{
		Move:       edit,
		Connect:    edit,
		DeleteEdge: edit,
		AddNode:    edit,
		RemoveNode: edit,
		Undo:       c.CanUndo(),
		Redo:       c.CanRedo(),
		Save:       edit && c.cb.OnSaveProject != nil,
		Manage:     c.caps.CanManage,
	}
}

// DeleteEdge removes source->target.
func (c *Controller) DeleteEdge(source, target domain.TaskID) bool {
	return c.commit("disconnect", func() bool {
		return c.store.Disconnect(source, target)
	})
}

// Connect adds source->target without a pointer gesture.
func (c *Controller) Connect(source, target domain.TaskID) bool {
	return c.commit("connect", func() bool {
		return c.store.Connect(source, target)
	})
}

// AddNode inserts node. ok is false when editing is not allowed; err is set
// when the node itself is invalid.
func (c *Controller) AddNode(node flow.TaskNode) (added flow.TaskNode, ok bool, err error) {
	ok = c.commit("add", func() bool {
		added, err = c.store.AddNode(node)
		return err == nil
	})
	return added, ok, err
}

// RemoveNode deletes id together with every edge pointing at it.
func (c *Controller) RemoveNode(id domain.TaskID) bool {
	return c.commit("remove", func() bool {
		return c.store.RemoveNode(id)
	})
}

// MoveNode places id at pos, clamped into the canvas.
func (c *Controller) MoveNode(id domain.TaskID, pos domain.Point) bool {
	return c.commit("move", func() bool {
		return c.store.UpdateNodePosition(id, c.clamp(id, pos))
	})
}

// SetStatus changes the status of id.
func (c *Controller) SetStatus(id domain.TaskID, status domain.Status) bool {
	return c.commit("status", func() bool {
		return c.store.UpdateNodeStatus(id, status)
	})
}

// UpdateDetails replaces the descriptive fields of id.
func (c *Controller) UpdateDetails(id domain.TaskID, title, description string, details map[string]any) bool {
	return c.commit("details", func() bool {
		return c.store.UpdateNodeDetails(id, title, description, details)
	})
}

// AutoLayout arranges every node into dependency columns as a single
// undoable step.
func (c *Controller) AutoLayout() bool {
	return c.commit("auto-layout", func() bool {
		moved := false
		for id, p := range layout.Positions(c.store.Nodes(), c.layout) {
			if c.store.UpdateNodePosition(id, c.clamp(id, p)) {
				moved = true
			}
		}
		return moved
	})
}

// Undo reverts the latest committed action.
func (c *Controller) Undo() bool {
	if !c.caps.CanEdit || !c.history.Undo(c.store) {
		return false
	}
	c.metrics.HistoryOperation("undo")
	return true
}

// Redo reapplies the most recently undone action.
func (c *Controller) Redo() bool {
	if !c.caps.CanEdit || !c.history.Redo(c.store) {
		return false
	}
	c.metrics.HistoryOperation("redo")
	return true
}

// CanUndo reports whether Undo would do anything.
func (c *Controller) CanUndo() bool {
	return c.caps.CanEdit && c.history.CanUndo()
}

// CanRedo reports whether Redo would do anything.
func (c *Controller) CanRedo() bool {
	return c.caps.CanEdit && c.history.CanRedo()
}

// Select announces that id was picked. Selection is read-only and open to
// every role.
func (c *Controller) Select(id domain.TaskID) bool {
	if _, ok := c.store.Node(id); !ok {
		return false
	}
	if c.cb.OnSelect != nil {
		c.cb.OnSelect(id)
	}
	return true
}

// Save hands the current node list to OnSaveProject. Failures come back as
// a SYNC-004 error and leave the graph untouched.
func (c *Controller) Save(ctx context.Context) error {
	if !c.caps.CanEdit || c.cb.OnSaveProject == nil {
		return nil
	}
	if err := c.cb.OnSaveProject(ctx, c.store.Nodes()); err != nil {
		c.logger.LogError(ctx, "save failed", err)
		c.metrics.Error(string(errors.ErrCodeSyncSave))
		return errors.Wrap(errors.ErrCodeSyncSave, "failed to save project", err).
			WithSuggestion("Your changes are still on the board; try saving again")
	}
	return nil
}

// NodeAt returns the topmost node under a viewport position.
func (c *Controller) NodeAt(pointer domain.Point) (domain.TaskID, bool) {
	return geometry.HitTest(c.store.Nodes(), c.surface, c.canvas.ToContent(pointer))
}

// clamp keeps a node of id's measured size inside the canvas. When the
// canvas is smaller than the node, the lower bound wins.
func (c *Controller) clamp(id domain.TaskID, pos domain.Point) domain.Point {
	var w, h float64
	if r, ok := c.surface.Measure(id); ok {
		w, h = r.Width, r.Height
	}
	return pos.Clamp(c.canvas.Width-w, c.canvas.Height-h)
}

// NewSession starts gesture tracking for one pointer.
func (c *Controller) NewSession() *Session {
	return &Session{c: c}
}
