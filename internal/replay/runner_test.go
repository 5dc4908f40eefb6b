package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/loop"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

type fixture struct {
	st      *store.Store
	alice   *store.Actor
	project *collab.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "flowboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	alice := st.As("alice")
	p, err := alice.CreateProject(context.Background(), collab.NewProject{
		Title: "Launch",
		Tasks: []flow.TaskNode{
			{ID: "A", Title: "Plan", Position: domain.Point{X: 0, Y: 0}, NextTaskIDs: []domain.TaskID{"B"}},
			{ID: "B", Title: "Build", Position: domain.Point{X: 300, Y: 0}},
			{ID: "C", Title: "Test", Position: domain.Point{X: 300, Y: 200}},
		},
	})
	require.NoError(t, err)
	return &fixture{st: st, alice: alice, project: p}
}

func run(t *testing.T, backend collab.Collaborator, projectID, script string, save bool) (*Report, error) {
	t.Helper()
	s, err := Parse([]byte(script))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	lp := loop.New(0, nil)
	go func() { _ = lp.Run(ctx) }()

	r := NewRunner(Config{Backend: backend, Loop: lp})
	t.Cleanup(r.Close)
	return r.Run(ctx, projectID, s, save)
}

func nodeByID(nodes []flow.TaskNode, id domain.TaskID) flow.TaskNode {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return flow.TaskNode{}
}

func TestRun_Gestures(t *testing.T) {
	f := newFixture(t)
	report, err := run(t, f.alice, f.project.ID, `
steps:
  - op: drag
    node: A
    from: {x: 10, y: 10}
    to: {x: 110, y: 60}
  - op: link
    node: C
    to: {x: 310, y: 10}
  - op: status
    node: B
    status: in_progress
  - op: status
    node: B
    status: next
  - op: add
    node: D
    title: Ship
    to: {x: 600, y: 0}
  - op: connect
    node: B
    target: D
`, false)
	require.NoError(t, err)

	assert.Equal(t, "owner", report.Role)
	assert.Equal(t, 6, report.Applied)
	assert.Equal(t, 4, report.Tasks)
	assert.Equal(t, 3, report.Edges)
	assert.Equal(t, 3, report.Connectors)
	assert.False(t, report.Saved)

	assert.Equal(t, domain.Point{X: 100, Y: 50}, nodeByID(report.Nodes, "A").Position)
	assert.Equal(t, []domain.TaskID{"B"}, nodeByID(report.Nodes, "C").NextTaskIDs)
	assert.Equal(t, domain.StatusCompleted, nodeByID(report.Nodes, "B").Status)

	// Nothing was saved.
	p, err := f.alice.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Len(t, p.Tasks, 3)
}

func TestRun_UndoRedo(t *testing.T) {
	f := newFixture(t)
	report, err := run(t, f.alice, f.project.ID, `
steps:
  - {op: remove, node: B}
  - {op: undo}
  - {op: undo}
  - {op: redo}
`, false)
	require.NoError(t, err)

	applied := []bool{}
	for _, s := range report.Steps {
		applied = append(applied, s.Applied)
	}
	assert.Equal(t, []bool{true, true, false, true}, applied)
	assert.Equal(t, 2, report.Tasks)
	assert.Empty(t, nodeByID(report.Nodes, "A").NextTaskIDs)
}

func TestRun_LinkOverEmptyCanvasCancels(t *testing.T) {
	f := newFixture(t)
	report, err := run(t, f.alice, f.project.ID, `
steps:
  - op: link
    node: C
    to: {x: 1500, y: 1200}
`, false)
	require.NoError(t, err)
	assert.False(t, report.Steps[0].Applied)
	assert.Equal(t, 1, report.Edges)
}

func TestRun_ScrollShiftsPointer(t *testing.T) {
	f := newFixture(t)
	report, err := run(t, f.alice, f.project.ID, `
steps:
  - op: scroll
    to: {x: 100, y: 100}
  - op: drag
    node: C
    to: {x: 300, y: 300}
`, false)
	require.NoError(t, err)
	// Grabbed at its own origin on screen, dropped 100 further right and down.
	assert.Equal(t, domain.Point{X: 400, Y: 400}, nodeByID(report.Nodes, "C").Position)
}

func TestRun_Save(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f.alice, f.project.ID, `
steps:
  - {op: edit, node: A, title: Research, description: Talk to users}
  - {op: layout}
`, true)
	require.NoError(t, err)

	p, err := f.alice.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	a := nodeByID(p.Tasks, "A")
	assert.Equal(t, "Research", a.Title)
	assert.Equal(t, "Talk to users", a.Description)
}

func TestRun_ViewerIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.alice.Invite(ctx, f.project.ID, "bob@example.com", authz.RoleViewer)
	require.NoError(t, err)
	bob := f.st.As("bob")
	_, err = bob.AcceptInvitation(ctx, inv.Token)
	require.NoError(t, err)

	script := `
steps:
  - {op: select, node: A}
  - {op: remove, node: A}
  - {op: move, node: B, to: {x: 0, y: 400}}
`
	report, err := run(t, bob, f.project.ID, script, false)
	require.NoError(t, err)
	assert.Equal(t, "viewer", report.Role)
	assert.True(t, report.Steps[0].Applied)
	assert.False(t, report.Steps[1].Applied)
	assert.False(t, report.Steps[2].Applied)
	assert.Equal(t, 3, report.Tasks)

	_, err = run(t, bob, f.project.ID, script, true)
	assert.Error(t, err)
}

func TestRun_UnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f.alice, "missing", `steps: [{op: undo}]`, false)
	assert.Error(t, err)
}
