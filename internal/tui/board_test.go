package tui

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/geometry"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

type manualTimer struct{ stopped bool }

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler never fires; tests flush the engine instead.
type manualScheduler struct{ timers []*manualTimer }

func (s *manualScheduler) AfterFunc(_ time.Duration, _ func()) geometry.Timer {
	t := &manualTimer{}
	s.timers = append(s.timers, t)
	return t
}

type fixture struct {
	st      *store.Store
	alice   *store.Actor
	project *collab.Project
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "flowboard.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	alice := st.As("alice")
	p, err := alice.CreateProject(context.Background(), collab.NewProject{
		Title: "Launch",
		Tasks: []flow.TaskNode{
			{ID: "A", Title: "Plan", Status: domain.StatusNotStarted, Position: domain.Point{X: 0, Y: 0}, NextTaskIDs: []domain.TaskID{"B"}},
			{ID: "B", Title: "Build", Status: domain.StatusNotStarted, Position: domain.Point{X: 300, Y: 0}, NextTaskIDs: []domain.TaskID{}},
			{ID: "C", Title: "Test", Status: domain.StatusNotStarted, Position: domain.Point{X: 300, Y: 200}, NextTaskIDs: []domain.TaskID{}},
		},
	})
	require.NoError(t, err)
	return &fixture{st: st, alice: alice, project: p}
}

func (f *fixture) open(t *testing.T, backend collab.Collaborator, projectID string) *Board {
	t.Helper()
	b := NewBoard(context.Background(), BoardConfig{
		ProjectID:  projectID,
		Backend:    backend,
		Dispatcher: collab.Inline,
		Scheduler:  &manualScheduler{},
	})
	t.Cleanup(b.Close)
	b.Update(b.Init()())
	return b
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(b *Board, keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = b.Update(keyMsg(k))
	}
	return cmd
}

func position(t *testing.T, b *Board, id domain.TaskID) domain.Point {
	t.Helper()
	n, ok := b.store.Node(id)
	require.True(t, ok, "node %s", id)
	return n.Position
}

func TestBoardOpensProject(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	assert.True(t, b.loaded)
	assert.Equal(t, 3, b.store.Len())
	assert.Equal(t, domain.TaskID("A"), b.selected)
	assert.True(t, b.ctrl.Capabilities().CanEdit)

	view := b.View()
	assert.Contains(t, view, "Launch")
	assert.Contains(t, view, "Plan")
	assert.Contains(t, view, "3 tasks")
	assert.Contains(t, view, "owner")
}

func TestBoardOpenFailure(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, "missing")

	assert.False(t, b.loaded)
	require.Error(t, b.loadErr)
	assert.Contains(t, b.View(), "Could not open project")
}

func TestBoardSelection(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "j")
	assert.Equal(t, domain.TaskID("B"), b.selected)
	press(b, "k", "k")
	assert.Equal(t, domain.TaskID("C"), b.selected, "selection wraps around")
}

func TestBoardMoveUndoRedo(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "L")
	assert.Equal(t, domain.Point{X: MoveStep, Y: 0}, position(t, b, "A"))
	assert.True(t, b.dirty)
	assert.Equal(t, interaction.GestureNone, b.pointer.Gesture())

	press(b, "u")
	assert.Equal(t, domain.Point{}, position(t, b, "A"))

	press(b, "ctrl+r")
	assert.Equal(t, domain.Point{X: MoveStep, Y: 0}, position(t, b, "A"))
}

func TestBoardMoveStopsAtCanvasEdge(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "H")
	assert.Equal(t, domain.Point{}, position(t, b, "A"))
	assert.False(t, b.dirty)
	assert.False(t, b.ctrl.CanUndo())
}

func TestBoardCycleStatus(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "s")
	n, _ := b.store.Node("A")
	assert.Equal(t, domain.StatusInProgress, n.Status)
	assert.Contains(t, b.flash, "In Progress")
}

func TestBoardConnect(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "j", "j", "c")
	require.Equal(t, modeConnect, b.mode)
	assert.Equal(t, []domain.TaskID{"A", "B"}, b.candidates)
	state, ok := b.pointer.Connecting()
	require.True(t, ok)
	assert.Equal(t, domain.TaskID("C"), state.FromID)

	press(b, "j")
	state, _ = b.pointer.Connecting()
	assert.Equal(t, position(t, b, "B"), state.Preview)
	assert.Contains(t, b.View(), "Connect Test → Build")

	press(b, "enter")
	assert.Equal(t, modeNormal, b.mode)
	assert.True(t, b.store.HasEdge("C", "B"))
	assert.Equal(t, interaction.GestureNone, b.pointer.Gesture())
}

func TestBoardConnectCancel(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "c", "esc")
	assert.Equal(t, modeNormal, b.mode)
	assert.Equal(t, interaction.GestureNone, b.pointer.Gesture())
	assert.Len(t, b.store.Edges(), 1)
	assert.False(t, b.dirty)
}

func TestBoardDisconnect(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "x")
	require.Equal(t, modeDisconnect, b.mode)
	press(b, "enter")
	assert.False(t, b.store.HasEdge("A", "B"))

	press(b, "j", "x")
	assert.Equal(t, modeNormal, b.mode)
	assert.Equal(t, "No outgoing connections", b.flash)
}

func TestBoardAddAndRemove(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "a")
	require.Equal(t, modeAdd, b.mode)
	press(b, "enter")
	assert.Equal(t, modeAdd, b.mode, "an empty title keeps the prompt open")

	b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Ship")})
	press(b, "enter")
	assert.Equal(t, modeNormal, b.mode)
	require.Equal(t, 4, b.store.Len())

	added, ok := b.store.Node(b.selected)
	require.True(t, ok)
	assert.Equal(t, "Ship", added.Title)
	assert.Equal(t, domain.Point{Y: interaction.DefaultNodeHeight + MoveStep}, added.Position)

	press(b, "D")
	assert.Equal(t, 3, b.store.Len())
	_, ok = b.store.Node(added.ID)
	assert.False(t, ok)
	assert.NotEmpty(t, b.selected)
}

func TestBoardRemoveDropsIncomingEdges(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "j", "D")
	assert.Empty(t, b.store.Edges())
	n, _ := b.store.Node("A")
	assert.Empty(t, n.NextTaskIDs)
}

func TestBoardSave(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "L", "ctrl+s")
	assert.False(t, b.dirty)
	assert.Equal(t, "Saved", b.flash)

	saved, err := f.alice.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(MoveStep), saved.Tasks[0].Position.X)
}

// runProgram runs b in a real bubbletea program driven by a bound Relay.
// The returned function runs fn on the update goroutine and reports
// whether it got there in time.
func runProgram(t *testing.T, b *Board, relay *Relay) (*tea.Program, func(fn func()) bool) {
	t.Helper()
	p := tea.NewProgram(b,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	relay.Bind(p)

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_, _ = p.Run()
	}()
	t.Cleanup(func() {
		p.Kill()
		select {
		case <-exited:
		case <-time.After(3 * time.Second):
			t.Error("program did not exit")
		}
		relay.Close()
		b.Close()
	})

	onUpdate := func(fn func()) bool {
		ran := make(chan struct{})
		go p.Send(DispatchMsg{Fn: func() {
			fn()
			close(ran)
		}})
		select {
		case <-ran:
			return true
		case <-time.After(3 * time.Second):
			return false
		}
	}
	return p, onUpdate
}

func TestBoardSaveWithLiveUpdates(t *testing.T) {
	hub := collab.NewHub()
	f := newFixture(t, store.WithPublisher(hub))
	relay := &Relay{}
	b := NewBoard(context.Background(), BoardConfig{
		ProjectID:  f.project.ID,
		Backend:    f.alice,
		Notifier:   hub,
		Dispatcher: relay,
		Scheduler:  relay,
	})
	p, onUpdate := runProgram(t, b, relay)

	require.Eventually(t, func() bool {
		var loaded bool
		return onUpdate(func() { loaded = b.loaded }) && loaded
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, hub.Subscribers(f.project.ID))

	p.Send(keyMsg("L"))
	p.Send(keyMsg("ctrl+s"))

	var dirty bool
	require.True(t, onUpdate(func() { dirty = b.dirty }), "board stopped handling messages after saving")
	assert.False(t, dirty)

	saved, err := f.alice.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(MoveStep), saved.Tasks[0].Position.X)

	// The save comes back as a change notification and the board reloads
	// what it just wrote.
	require.Eventually(t, func() bool {
		var flash string
		return onUpdate(func() { flash = b.flash }) && strings.Contains(flash, "changed elsewhere")
	}, 5*time.Second, 10*time.Millisecond)

	p.Send(keyMsg("L"))
	var x float64
	require.True(t, onUpdate(func() {
		n, _ := b.store.Node("A")
		x = n.Position.X
	}))
	assert.Equal(t, float64(2*MoveStep), x)
}

func TestBoardReadOnlyForViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.alice.Invite(ctx, f.project.ID, "bob@example.com", authz.RoleViewer)
	require.NoError(t, err)
	bob := f.st.As("bob")
	_, err = bob.AcceptInvitation(ctx, inv.Token)
	require.NoError(t, err)

	b := f.open(t, bob, f.project.ID)
	require.True(t, b.loaded)
	assert.False(t, b.ctrl.Capabilities().CanEdit)

	press(b, "L")
	assert.Equal(t, domain.Point{}, position(t, b, "A"))
	assert.Contains(t, b.flash, "Read-only")

	press(b, "c")
	assert.Equal(t, modeNormal, b.mode)
	press(b, "a")
	assert.Equal(t, modeNormal, b.mode)

	press(b, "j")
	assert.Equal(t, domain.TaskID("B"), b.selected, "viewers can still select")
	assert.Contains(t, b.View(), "read-only")
}

func TestBoardQuitGuardsUnsavedChanges(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "L")
	cmd := press(b, "q")
	assert.Nil(t, cmd)
	assert.False(t, b.quitting)
	assert.Contains(t, b.flash, "Unsaved changes")

	cmd = press(b, "q")
	require.NotNil(t, cmd)
	assert.True(t, b.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBoardReloadDiscardsLocalEdits(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	press(b, "L")
	require.True(t, b.dirty)

	remote := []flow.TaskNode{
		{ID: "A", Title: "Plan", Status: domain.StatusCompleted, Position: domain.Point{X: 40, Y: 40}, NextTaskIDs: []domain.TaskID{}},
	}
	_, err := f.alice.UpdateProject(context.Background(), f.project.ID, collab.TasksPatch(remote))
	require.NoError(t, err)

	cmd := press(b, "R")
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	assert.False(t, b.dirty)
	assert.Equal(t, 1, b.store.Len())
	assert.Equal(t, domain.Point{X: 40, Y: 40}, position(t, b, "A"))
	assert.False(t, b.ctrl.CanUndo(), "history is cleared on reload")
	assert.Contains(t, b.flash, "changed elsewhere")
}

func TestBoardDispatchMsgRunsOnUpdate(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)

	ran := false
	b.Update(DispatchMsg{Fn: func() { ran = true }})
	assert.True(t, ran)
}

func TestBoardConnectorsFollowEdits(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, f.alice, f.project.ID)
	b.engine.Flush()
	require.Len(t, b.engine.Connectors(), 1)

	press(b, "j", "j", "c", "enter")
	assert.True(t, b.engine.Pending(), "edge edits are debounced")
	assert.Contains(t, b.View(), "updating")
	b.engine.Flush()
	assert.False(t, b.engine.Pending())
	assert.Len(t, b.engine.Connectors(), 2)

	press(b, "D")
	assert.Len(t, b.engine.Connectors(), 1, "removing a node recomputes immediately")
}

func TestRenderMap(t *testing.T) {
	canvas := interaction.Canvas{Width: 1000, Height: 1000}
	nodes := []flow.TaskNode{
		{ID: "A", Position: domain.Point{X: 0, Y: 0}},
		{ID: "B", Position: domain.Point{X: 1000, Y: 1000}},
	}
	connectors := []geometry.Connector{
		{ID: "A->B", SourceID: "A", TargetID: "B", From: domain.Point{X: 0, Y: 0}, To: domain.Point{X: 900, Y: 0}},
	}

	lines := renderMap(nodes, connectors, canvas, 11, 11)
	require.Len(t, lines, 11)
	assert.Equal(t, '1', []rune(lines[0])[0])
	assert.Equal(t, '▸', []rune(lines[0])[9])
	assert.Equal(t, '·', []rune(lines[0])[5])
	assert.Equal(t, '2', []rune(lines[10])[10])
	assert.Equal(t, strings.Repeat(" ", 11), lines[5])
}

func TestRenderMapEmptyCanvas(t *testing.T) {
	lines := renderMap(nil, nil, interaction.Canvas{}, 4, 2)
	assert.Equal(t, []string{"    ", "    "}, lines)
}

func TestRelayWithoutProgram(t *testing.T) {
	var r Relay
	assert.False(t, r.Post(func() {}))

	timer := r.AfterFunc(time.Hour, func() {})
	assert.True(t, timer.Stop())
}

func TestRelayPostDoesNotWaitForProgram(t *testing.T) {
	r := &Relay{}
	// Bound but never run: nothing reads the program's messages.
	p := tea.NewProgram(nil)
	defer p.Kill()
	r.Bind(p)

	for i := 0; i < 3; i++ {
		assert.True(t, r.Post(func() {}))
	}

	r.Close()
	assert.False(t, r.Post(func() {}))
	r.Close()
}

func TestKeyMapHelp(t *testing.T) {
	k := DefaultKeyMap()
	assert.NotEmpty(t, k.ShortHelp())
	for _, group := range k.FullHelp() {
		for _, b := range group {
			assert.NotEmpty(t, b.Help().Desc)
		}
	}
}
