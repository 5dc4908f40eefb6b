package replay

import (
	"context"
	"time"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/geometry"
	"github.com/felixgeelhaar/flowboard/internal/history"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/loop"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
)

// Config wires a Runner.
type Config struct {
	Backend  collab.Collaborator
	Notifier collab.Notifier // optional

	// Loop owns the graph store. The caller runs it.
	Loop *loop.Loop

	Canvas       interaction.Canvas
	Debounce     time.Duration
	HistoryLimit int

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Result is the outcome of one step.
type Result struct {
	Step    int    `json:"step" yaml:"step"`
	Gesture string `json:"gesture" yaml:"gesture"`
	Applied bool   `json:"applied" yaml:"applied"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarises a run.
type Report struct {
	ProjectID  string   `json:"projectId" yaml:"projectId"`
	Role       string   `json:"role" yaml:"role"`
	Steps      []Result `json:"steps" yaml:"steps"`
	Applied    int      `json:"applied" yaml:"applied"`
	Tasks      int      `json:"tasks" yaml:"tasks"`
	Edges      int      `json:"edges" yaml:"edges"`
	Connectors int      `json:"connectors" yaml:"connectors"`
	Saved      bool     `json:"saved" yaml:"saved"`

	Nodes []flow.TaskNode `json:"nodes" yaml:"nodes"`
}

// Runner is a headless board: the same graph store, history, geometry
// engine, interaction controller and collaboration session a terminal
// board builds, driven by script steps.
type Runner struct {
	cfg     Config
	logger  *log.Logger
	store   *flow.Store
	engine  *geometry.Engine
	ctrl    *interaction.Controller
	pointer *interaction.Session
	session *collab.Session
}

// NewRunner builds a runner. Nothing is fetched until Run.
func NewRunner(cfg Config) *Runner {
	if cfg.Canvas.Width == 0 || cfg.Canvas.Height == 0 {
		cfg.Canvas = interaction.DefaultCanvas()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger.Component("replay"),
		store:  flow.NewStore(),
	}

	hist := history.New(history.WithLimit(cfg.HistoryLimit))
	surface := geometry.NewLayoutSurface(r.store, geometry.FixedSize(interaction.DefaultNodeWidth, interaction.DefaultNodeHeight))
	sched := geometry.SchedulerFunc(func(d time.Duration, fn func()) geometry.Timer {
		return cfg.Loop.AfterFunc(d, fn)
	})
	r.engine = geometry.NewEngine(r.store, surface, sched,
		geometry.WithDebounce(cfg.Debounce),
		geometry.WithLogger(logger),
	)

	r.session = collab.NewSession(collab.SessionConfig{
		Projects:   cfg.Backend,
		Roles:      cfg.Backend,
		Membership: cfg.Backend,
		Notifier:   cfg.Notifier,
		Store:      r.store,
		History:    hist,
		Dispatcher: cfg.Loop,
		Logger:     logger,
		Metrics:    cfg.Metrics,
		Hooks: collab.Hooks{
			OnLoad: func(_ *collab.Project, caps authz.Capabilities) {
				r.ctrl.SetCapabilities(caps)
			},
			OnCapabilities: func(caps authz.Capabilities) {
				r.ctrl.SetCapabilities(caps)
			},
			OnError: func(err error) {
				r.logger.Warn("collaboration error", "error", err)
			},
		},
	})

	r.ctrl = interaction.New(r.store,
		interaction.WithHistory(hist),
		interaction.WithEngine(r.engine),
		interaction.WithSurface(surface),
		interaction.WithCanvas(cfg.Canvas),
		interaction.WithLogger(logger),
		interaction.WithMetrics(cfg.Metrics),
		interaction.WithCallbacks(interaction.Callbacks{
			OnSaveProject: r.session.Save,
		}),
	)
	r.pointer = r.ctrl.NewSession()
	return r
}

// Close ends the collaboration session.
func (r *Runner) Close() {
	if r.cfg.Loop != nil {
		// Teardown touches the store, so it belongs on the loop when the
		// loop is still alive.
		if !r.cfg.Loop.Post(r.teardown) {
			r.teardown()
		}
	}
	r.session.Close()
}

func (r *Runner) teardown() {
	r.pointer.Reset()
	r.engine.Stop()
}

// Run opens projectID, plays every step and, when save is set, saves the
// result. Steps that are refused, such as edits by a viewer, are reported
// as not applied and the run continues.
func (r *Runner) Run(ctx context.Context, projectID string, script *Script, save bool) (*Report, error) {
	if script.Canvas != nil {
		canvas := *script.Canvas
		if err := r.cfg.Loop.Do(ctx, func() { r.ctrl.SetCanvas(canvas) }); err != nil {
			return nil, err
		}
	}

	p, caps, err := r.session.Enter(ctx, projectID)
	if err != nil {
		return nil, err
	}
	report := &Report{ProjectID: p.ID, Role: string(caps.Role)}

	for i, step := range script.Steps {
		res := Result{Step: i + 1, Gesture: step.String()}
		var stepErr error
		if err := r.cfg.Loop.Do(ctx, func() { res.Applied, stepErr = r.apply(step) }); err != nil {
			return nil, err
		}
		if stepErr != nil {
			res.Error = stepErr.Error()
		}
		if res.Applied {
			report.Applied++
		}
		telemetry.RecordGesture(ctx, string(step.Op), res.Applied)
		r.logger.Debug("step", "step", res.Step, "gesture", res.Gesture, "applied", res.Applied)
		report.Steps = append(report.Steps, res)
	}

	err = r.cfg.Loop.Do(ctx, func() {
		r.engine.Flush()
		report.Nodes = r.store.Nodes()
		report.Tasks = r.store.Len()
		report.Edges = len(r.store.Edges())
		report.Connectors = len(r.engine.Connectors())
	})
	if err != nil {
		return nil, err
	}

	if save {
		if !r.ctrl.Capabilities().CanEdit {
			return report, errors.NewProjectForbiddenError(projectID, "edit")
		}
		var saveErr error
		if err := r.cfg.Loop.Do(ctx, func() { saveErr = r.ctrl.Save(ctx) }); err != nil {
			return nil, err
		}
		if saveErr != nil {
			return report, saveErr
		}
		report.Saved = true
	}
	return report, nil
}

// apply runs one step on the loop.
func (r *Runner) apply(step Step) (bool, error) {
	switch step.Op {
	case OpSelect:
		return r.ctrl.Select(step.Node), nil
	case OpMove:
		return r.ctrl.MoveNode(step.Node, *step.To), nil
	case OpDrag:
		from := r.grabPoint(step)
		if !r.pointer.DragStart(step.Node, from) {
			return false, nil
		}
		return r.pointer.Drop(*step.To), nil
	case OpConnect:
		return r.ctrl.Connect(step.Node, step.Target), nil
	case OpLink:
		if !r.pointer.StartConnection(step.Node, r.grabPoint(step)) {
			return false, nil
		}
		return r.pointer.PointerUp(*step.To), nil
	case OpDisconnect:
		return r.ctrl.DeleteEdge(step.Node, step.Target), nil
	case OpStatus:
		n, ok := r.store.Node(step.Node)
		if !ok {
			return false, nil
		}
		status := n.Status.Next()
		if step.Status != "next" {
			parsed, err := domain.ParseStatus(step.Status)
			if err != nil {
				return false, err
			}
			status = parsed
		}
		return r.ctrl.SetStatus(step.Node, status), nil
	case OpEdit:
		n, ok := r.store.Node(step.Node)
		if !ok {
			return false, nil
		}
		title := step.Title
		if title == "" {
			title = n.Title
		}
		return r.ctrl.UpdateDetails(step.Node, title, step.Description, n.ExtendedDetails), nil
	case OpAdd:
		node := flow.TaskNode{ID: step.Node, Title: step.Title, Description: step.Description}
		if step.To != nil {
			node.Position = r.ctrl.Canvas().ToContent(*step.To)
		}
		if step.Status != "" {
			status, err := domain.ParseStatus(step.Status)
			if err != nil {
				return false, err
			}
			node.Status = status
		}
		_, ok, err := r.ctrl.AddNode(node)
		return ok && err == nil, err
	case OpRemove:
		return r.ctrl.RemoveNode(step.Node), nil
	case OpUndo:
		return r.ctrl.Undo(), nil
	case OpRedo:
		return r.ctrl.Redo(), nil
	case OpLayout:
		return r.ctrl.AutoLayout(), nil
	case OpScroll:
		canvas := r.ctrl.Canvas()
		canvas.Scroll = *step.To
		r.ctrl.SetCanvas(canvas)
		return true, nil
	}
	return false, errors.New(errors.ErrCodeConfigInvalid, "unknown op "+string(step.Op))
}

// grabPoint is where the pointer goes down for a drag or link: From when
// the script gives it, otherwise the node's own origin on screen.
func (r *Runner) grabPoint(step Step) domain.Point {
	if step.From != nil {
		return *step.From
	}
	if n, ok := r.store.Node(step.Node); ok {
		return n.Position.Sub(r.ctrl.Canvas().Scroll)
	}
	return domain.Point{}
}
