// Package tui is the terminal face of flowboard: a bubbletea board that
// edits one project's task flow, plus the huh prompts used by the CLI.
//
// The board keeps every graph mutation on bubbletea's update goroutine.
// Work arriving from other goroutines (session reloads, debounced
// connector recomputes) is delivered as DispatchMsg through a Relay.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/geometry"
	"github.com/felixgeelhaar/flowboard/internal/history"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
)

// MoveStep is how far one keyboard move carries a node, in canvas units.
const MoveStep = 20

// DefaultSaveTimeout bounds a save triggered from the board.
const DefaultSaveTimeout = 15 * time.Second

// mode is what the keyboard currently drives.
type mode int

const (
	modeNormal mode = iota
	modeConnect
	modeDisconnect
	modeAdd
)

func (m mode) String() string {
	switch m {
	case modeConnect:
		return "connect"
	case modeDisconnect:
		return "disconnect"
	case modeAdd:
		return "add"
	}
	return "normal"
}

// enteredMsg reports the outcome of opening the project.
type enteredMsg struct {
	project *collab.Project
	caps    authz.Capabilities
	err     error
}

// BoardConfig wires a Board.
type BoardConfig struct {
	ProjectID string
	Backend   collab.Collaborator
	Notifier  collab.Notifier // optional

	// Dispatcher delivers session callbacks to the board. Use a bound
	// Relay when running under tea.Program; collab.Inline for tests.
	Dispatcher collab.Dispatcher
	// Scheduler runs debounced connector recomputes. Defaults to
	// time.AfterFunc routed through Dispatcher.
	Scheduler geometry.Scheduler

	Canvas       interaction.Canvas
	Debounce     time.Duration
	HistoryLimit int
	SaveTimeout  time.Duration

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Board is the bubbletea model for one open project.
type Board struct {
	ctx     context.Context
	cfg     BoardConfig
	logger  *log.Logger
	store   *flow.Store
	engine  *geometry.Engine
	ctrl    *interaction.Controller
	pointer *interaction.Session
	session *collab.Session

	project  *collab.Project
	loaded   bool
	loadErr  error
	selected domain.TaskID
	mode     mode

	// candidates are the targets offered in connect and disconnect mode.
	candidates []domain.TaskID
	cursor     int
	input      textinput.Model

	dirty       bool
	confirmQuit bool
	flash       string
	flashErr    bool
	members     int

	keys     KeyMap
	help     help.Model
	styles   Styles
	width    int
	height   int
	quitting bool
}

var _ tea.Model = (*Board)(nil)

// NewBoard builds the graph store, history, geometry engine, interaction
// controller and collaboration session for cfg.ProjectID. Nothing is
// fetched until Init runs.
func NewBoard(ctx context.Context, cfg BoardConfig) *Board {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = collab.Inline
	}
	if cfg.Canvas.Width == 0 || cfg.Canvas.Height == 0 {
		cfg.Canvas = interaction.DefaultCanvas()
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Scheduler == nil {
		dispatcher := cfg.Dispatcher
		cfg.Scheduler = geometry.SchedulerFunc(func(d time.Duration, fn func()) geometry.Timer {
			return time.AfterFunc(d, func() { dispatcher.Post(fn) })
		})
	}

	input := textinput.New()
	input.Placeholder = "Task title"
	input.CharLimit = 120

	b := &Board{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger.Component("tui"),
		store:  flow.NewStore(),
		input:  input,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		styles: DefaultStyles(),
	}

	hist := history.New(history.WithLimit(cfg.HistoryLimit))
	surface := geometry.NewLayoutSurface(b.store, geometry.FixedSize(interaction.DefaultNodeWidth, interaction.DefaultNodeHeight))
	b.engine = geometry.NewEngine(b.store, surface, cfg.Scheduler,
		geometry.WithDebounce(cfg.Debounce),
		geometry.WithLogger(logger),
	)

	b.session = collab.NewSession(collab.SessionConfig{
		Projects:   cfg.Backend,
		Roles:      cfg.Backend,
		Membership: cfg.Backend,
		Notifier:   cfg.Notifier,
		Store:      b.store,
		History:    hist,
		Dispatcher: cfg.Dispatcher,
		Logger:     logger,
		Metrics:    cfg.Metrics,
		Hooks: collab.Hooks{
			OnLoad:         b.onLoad,
			OnReload:       b.onReload,
			OnMembership:   b.onMembership,
			OnCapabilities: b.onCapabilities,
			OnError:        b.onError,
		},
	})

	b.ctrl = interaction.New(b.store,
		interaction.WithHistory(hist),
		interaction.WithEngine(b.engine),
		interaction.WithSurface(surface),
		interaction.WithCanvas(cfg.Canvas),
		interaction.WithLogger(logger),
		interaction.WithMetrics(cfg.Metrics),
		interaction.WithCallbacks(interaction.Callbacks{
			OnSelect:      func(id domain.TaskID) { b.selected = id },
			OnGraphReset:  b.keepSelection,
			OnSaveProject: b.session.Save,
		}),
	)
	b.pointer = b.ctrl.NewSession()
	return b
}

// Controller exposes the interaction controller, for callers that script
// the board.
func (b *Board) Controller() *interaction.Controller { return b.ctrl }

// Close ends the collaboration session and stops pending recomputes.
func (b *Board) Close() {
	b.pointer.Reset()
	b.engine.Stop()
	b.session.Close()
}

// Init opens the project.
func (b *Board) Init() tea.Cmd {
	return b.enter
}

func (b *Board) enter() tea.Msg {
	p, caps, err := b.session.Enter(b.ctx, b.cfg.ProjectID)
	return enteredMsg{project: p, caps: caps, err: err}
}

// Update handles messages and updates the board state.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DispatchMsg:
		if msg.Fn != nil {
			msg.Fn()
		}
		return b, nil

	case enteredMsg:
		if msg.err != nil {
			b.loadErr = msg.err
			b.setError(msg.err)
			return b, nil
		}
		b.logger.Debug("board ready", "project_id", msg.project.ID, "role", string(msg.caps.Role))
		return b, nil

	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.help.Width = msg.Width
		b.engine.Resized()
		return b, nil

	case tea.KeyMsg:
		return b.handleKey(msg)
	}
	return b, nil
}

// handleKey routes a key press by mode.
func (b *Board) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return b.quit()
	}
	if b.mode == modeAdd {
		return b.handleAddKey(msg)
	}

	wasConfirming := b.confirmQuit
	b.confirmQuit = false
	b.flash, b.flashErr = "", false

	if b.mode == modeConnect || b.mode == modeDisconnect {
		return b.handlePickKey(msg)
	}

	switch {
	case key.Matches(msg, b.keys.Quit):
		if b.dirty && !wasConfirming {
			b.confirmQuit = true
			b.setWarning("Unsaved changes. Press q again to quit, ctrl+s to save.")
			return b, nil
		}
		return b.quit()
	case key.Matches(msg, b.keys.Help):
		b.help.ShowAll = !b.help.ShowAll
	case !b.loaded:
		// Nothing to edit until the project arrived.
	case key.Matches(msg, b.keys.Up):
		b.step(-1)
	case key.Matches(msg, b.keys.Down):
		b.step(1)
	case key.Matches(msg, b.keys.MoveLeft):
		b.move(domain.Point{X: -MoveStep})
	case key.Matches(msg, b.keys.MoveRight):
		b.move(domain.Point{X: MoveStep})
	case key.Matches(msg, b.keys.MoveUp):
		b.move(domain.Point{Y: -MoveStep})
	case key.Matches(msg, b.keys.MoveDown):
		b.move(domain.Point{Y: MoveStep})
	case key.Matches(msg, b.keys.Status):
		b.cycleStatus()
	case key.Matches(msg, b.keys.Connect):
		b.startConnect()
	case key.Matches(msg, b.keys.Disconnect):
		b.startDisconnect()
	case key.Matches(msg, b.keys.Add):
		return b, b.startAdd()
	case key.Matches(msg, b.keys.Remove):
		b.remove()
	case key.Matches(msg, b.keys.Undo):
		b.edited(b.ctrl.Undo(), "Undone", "Nothing to undo")
	case key.Matches(msg, b.keys.Redo):
		b.edited(b.ctrl.Redo(), "Redone", "Nothing to redo")
	case key.Matches(msg, b.keys.Layout):
		b.edited(b.ctrl.AutoLayout(), "Arranged into dependency columns", "Layout unchanged")
	case key.Matches(msg, b.keys.Save):
		b.save()
	case key.Matches(msg, b.keys.Reload):
		return b, b.reload
	}
	return b, nil
}

func (b *Board) quit() (tea.Model, tea.Cmd) {
	b.quitting = true
	b.Close()
	return b, tea.Quit
}

// reload refetches the project; the session applies it through the
// dispatcher like a remote change.
func (b *Board) reload() tea.Msg {
	b.session.Reload(b.ctx)
	return nil
}

// edited records the outcome of a controller call. A refusal on a
// read-only board is reported as such rather than as a no-op.
func (b *Board) edited(changed bool, done, noop string) {
	switch {
	case changed:
		b.dirty = true
		b.flash = done
	case !b.ctrl.Capabilities().CanEdit:
		b.setWarning(readOnlyMessage(b.ctrl.Capabilities()))
	default:
		b.flash = noop
	}
}

func readOnlyMessage(caps authz.Capabilities) string {
	role := string(caps.Role)
	if role == "" {
		role = "guest"
	}
	return fmt.Sprintf("Read-only: %s access cannot edit this board", role)
}

// step moves the selection through the task list.
func (b *Board) step(delta int) {
	nodes := b.store.Nodes()
	if len(nodes) == 0 {
		return
	}
	i := b.indexOf(nodes, b.selected)
	i = (i + delta + len(nodes)) % len(nodes)
	b.ctrl.Select(nodes[i].ID)
}

func (b *Board) indexOf(nodes []flow.TaskNode, id domain.TaskID) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return 0
}

// keepSelection re-points the selection after the graph was swapped.
func (b *Board) keepSelection() {
	if _, ok := b.store.Node(b.selected); ok {
		return
	}
	b.selected = ""
	if nodes := b.store.Nodes(); len(nodes) > 0 {
		b.selected = nodes[0].ID
	}
}

// viewportOf is where a node's origin sits on screen, the position a
// keyboard gesture "grabs" it at.
func (b *Board) viewportOf(n flow.TaskNode) domain.Point {
	return n.Position.Sub(b.ctrl.Canvas().Scroll)
}

// move drags the selected node by delta as one drag-and-drop gesture.
func (b *Board) move(delta domain.Point) {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return
	}
	grab := b.viewportOf(n)
	if !b.pointer.DragStart(n.ID, grab) {
		b.edited(false, "", "")
		return
	}
	b.edited(b.pointer.Drop(grab.Add(delta)), "", "Already at the canvas edge")
}

func (b *Board) cycleStatus() {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return
	}
	next := n.Status.Next()
	b.edited(b.ctrl.SetStatus(n.ID, next), fmt.Sprintf("%s is now %s", n.Title, next.Label()), "")
}

func (b *Board) startConnect() {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return
	}
	var targets []domain.TaskID
	for _, other := range b.store.Nodes() {
		if other.ID != n.ID && !n.HasNext(other.ID) {
			targets = append(targets, other.ID)
		}
	}
	if len(targets) == 0 {
		b.flash = "No task left to connect to"
		return
	}
	if !b.pointer.StartConnection(n.ID, b.viewportOf(n)) {
		b.edited(false, "", "")
		return
	}
	b.mode = modeConnect
	b.candidates = targets
	b.cursor = 0
	b.previewTarget()
}

// previewTarget moves the in-flight connection line onto the candidate
// under the cursor.
func (b *Board) previewTarget() {
	if target, ok := b.store.Node(b.candidates[b.cursor]); ok {
		b.pointer.MovePointer(b.viewportOf(target))
	}
}

func (b *Board) startDisconnect() {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return
	}
	if len(n.NextTaskIDs) == 0 {
		b.flash = "No outgoing connections"
		return
	}
	if !b.ctrl.Affordances().DeleteEdge {
		b.edited(false, "", "")
		return
	}
	b.mode = modeDisconnect
	b.candidates = append([]domain.TaskID(nil), n.NextTaskIDs...)
	b.cursor = 0
}

// handlePickKey drives connect and disconnect target picking.
func (b *Board) handlePickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, b.keys.Up):
		b.cursor = (b.cursor - 1 + len(b.candidates)) % len(b.candidates)
	case key.Matches(msg, b.keys.Down):
		b.cursor = (b.cursor + 1) % len(b.candidates)
	case key.Matches(msg, b.keys.Confirm):
		target := b.candidates[b.cursor]
		if b.mode == modeConnect {
			b.edited(b.pointer.EndConnection(target), "Connected", "Connection refused")
		} else {
			b.edited(b.ctrl.DeleteEdge(b.selected, target), "Disconnected", "Connection already gone")
		}
		b.endPick()
		return b, nil
	case key.Matches(msg, b.keys.Cancel), key.Matches(msg, b.keys.Quit):
		b.pointer.CancelConnection()
		b.endPick()
		return b, nil
	}
	if b.mode == modeConnect {
		b.previewTarget()
	}
	return b, nil
}

func (b *Board) endPick() {
	b.mode = modeNormal
	b.candidates = nil
	b.cursor = 0
}

func (b *Board) startAdd() tea.Cmd {
	if !b.ctrl.Affordances().AddNode {
		b.edited(false, "", "")
		return nil
	}
	b.mode = modeAdd
	b.input.Reset()
	return b.input.Focus()
}

func (b *Board) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, b.keys.Cancel):
		b.input.Blur()
		b.mode = modeNormal
		return b, nil
	case key.Matches(msg, b.keys.Confirm):
		title := strings.TrimSpace(b.input.Value())
		if title == "" {
			b.setWarning("A task needs a title")
			return b, nil
		}
		b.input.Blur()
		b.mode = modeNormal
		b.add(title)
		return b, nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

// add places a new task below the selected one, or at the canvas origin.
func (b *Board) add(title string) {
	pos := domain.Point{X: MoveStep, Y: MoveStep}
	if n, ok := b.store.Node(b.selected); ok {
		pos = n.Position.Add(domain.Point{Y: interaction.DefaultNodeHeight + MoveStep})
	}
	added, ok, err := b.ctrl.AddNode(flow.TaskNode{
		Title:       title,
		Status:      domain.StatusNotStarted,
		Position:    pos,
		NextTaskIDs: []domain.TaskID{},
	})
	if err != nil {
		b.setError(err)
		return
	}
	b.edited(ok, "Added "+title, "")
	if ok {
		b.ctrl.Select(added.ID)
	}
}

func (b *Board) remove() {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return
	}
	i := b.indexOf(b.store.Nodes(), n.ID)
	if !b.ctrl.RemoveNode(n.ID) {
		b.edited(false, "", "")
		return
	}
	b.edited(true, "Removed "+n.Title, "")
	if nodes := b.store.Nodes(); len(nodes) > 0 {
		if i >= len(nodes) {
			i = len(nodes) - 1
		}
		b.ctrl.Select(nodes[i].ID)
	} else {
		b.selected = ""
	}
}

// save persists the board. It runs on the update goroutine so the node
// list it sends is the one on screen.
func (b *Board) save() {
	if !b.ctrl.Affordances().Save {
		b.edited(false, "", "")
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.SaveTimeout)
	defer cancel()
	if err := b.ctrl.Save(ctx); err != nil {
		b.setError(err)
		return
	}
	b.dirty = false
	b.flash = "Saved"
	b.flashErr = false
}

// Session hooks. They run on the dispatcher, which is the update goroutine.

func (b *Board) onLoad(p *collab.Project, caps authz.Capabilities) {
	b.project = p
	b.loaded = true
	b.loadErr = nil
	b.dirty = false
	b.pointer.Reset()
	b.endPick()
	b.ctrl.SetCapabilities(caps)
	b.keepSelection()
}

func (b *Board) onReload(p *collab.Project) {
	b.setWarning(fmt.Sprintf("%q changed elsewhere and was reloaded", p.Title))
}

func (b *Board) onMembership(members []collab.Member, _ []collab.Invitation) {
	b.members = len(members)
}

func (b *Board) onCapabilities(caps authz.Capabilities) {
	b.ctrl.SetCapabilities(caps)
	if !caps.CanView {
		b.setError(errors.NewProjectForbiddenError(b.cfg.ProjectID, "view"))
		return
	}
	b.setWarning(fmt.Sprintf("Your role is now %s", caps.Role))
}

func (b *Board) onError(err error) {
	b.setError(err)
}

func (b *Board) setError(err error) {
	b.flash = err.Error()
	b.flashErr = true
}

func (b *Board) setWarning(msg string) {
	b.flash = msg
	b.flashErr = false
}
