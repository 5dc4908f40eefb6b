package flow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/domain"
)

func twoNodeStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(
		TaskNode{ID: "A", Title: "Design", Position: domain.Point{X: 0, Y: 0}},
		TaskNode{ID: "B", Title: "Build", Position: domain.Point{X: 500, Y: 0}},
	)
}

func TestStore_ConnectScenario(t *testing.T) {
	s := twoNodeStore(t)

	require.True(t, s.Connect("A", "B"))
	assert.Equal(t, []Edge{{Source: "A", Target: "B"}}, s.Edges())
}

func TestStore_DisconnectScenario(t *testing.T) {
	s := twoNodeStore(t)
	require.True(t, s.Connect("A", "B"))

	require.True(t, s.Disconnect("A", "B"))
	assert.Empty(t, s.Edges())
	assert.False(t, s.Disconnect("A", "B"), "second disconnect is a no-op")
}

func TestStore_RemoveNodeStripsIncomingEdges(t *testing.T) {
	s := twoNodeStore(t)
	require.True(t, s.Connect("A", "B"))

	require.True(t, s.RemoveNode("B"))

	a, ok := s.Node("A")
	require.True(t, ok)
	assert.Empty(t, a.NextTaskIDs)
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.RemoveNode("B"))
}

func TestStore_ConnectRejections(t *testing.T) {
	tests := []struct {
		name           string
		source, target domain.TaskID
	}{
		{"self loop", "A", "A"},
		{"unknown source", "Z", "B"},
		{"unknown target", "A", "Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twoNodeStore(t)
			var changes []Change
			s.Observe(func(c Change) { changes = append(changes, c) })

			assert.False(t, s.Connect(tt.source, tt.target))
			assert.Empty(t, s.Edges())
			assert.Empty(t, changes, "rejected connect must not notify")
		})
	}
}

func TestStore_ConnectIsIdempotent(t *testing.T) {
	s := twoNodeStore(t)
	assert.True(t, s.Connect("A", "B"))
	assert.False(t, s.Connect("A", "B"))

	a, _ := s.Node("A")
	assert.Equal(t, []domain.TaskID{"B"}, a.NextTaskIDs)
}

func TestStore_AddNode(t *testing.T) {
	s := twoNodeStore(t)

	n, err := s.AddNode(TaskNode{Title: "Ship", NextTaskIDs: []domain.TaskID{"A", "A", "missing"}})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, domain.StatusNotStarted, n.Status)
	assert.Equal(t, []domain.TaskID{"A"}, n.NextTaskIDs)
	assert.Equal(t, domain.Point{}, n.Position)

	_, err = s.AddNode(TaskNode{ID: "A"})
	assert.ErrorIs(t, err, ErrNodeExists)

	_, err = s.AddNode(TaskNode{ID: "bad id"})
	assert.Error(t, err)

	_, err = s.AddNode(TaskNode{ID: "C", Status: "archived"})
	assert.Error(t, err)
}

func TestStore_UpdateNodePositionAndStatus(t *testing.T) {
	s := twoNodeStore(t)

	assert.True(t, s.UpdateNodePosition("A", domain.Point{X: 10, Y: 20}))
	assert.False(t, s.UpdateNodePosition("A", domain.Point{X: 10, Y: 20}), "same position is a no-op")
	assert.False(t, s.UpdateNodePosition("Z", domain.Point{}))

	assert.True(t, s.UpdateNodeStatus("A", domain.StatusBlocked))
	assert.False(t, s.UpdateNodeStatus("A", domain.Status("bogus")))

	a, _ := s.Node("A")
	assert.Equal(t, domain.Point{X: 10, Y: 20}, a.Position)
	assert.Equal(t, domain.StatusBlocked, a.Status)
}

func TestStore_UpdateNodeDetailsKeepsGraph(t *testing.T) {
	s := twoNodeStore(t)
	require.True(t, s.Connect("A", "B"))

	details := map[string]any{"subSteps": []string{"sketch"}}
	require.True(t, s.UpdateNodeDetails("A", "Design v2", "wireframes", details))
	details["subSteps"] = nil

	a, _ := s.Node("A")
	assert.Equal(t, "Design v2", a.Title)
	assert.Equal(t, []string{"sketch"}, a.ExtendedDetails["subSteps"])
	assert.True(t, s.HasEdge("A", "B"))
}

func TestStore_SetNodeConnections(t *testing.T) {
	s := NewStore(TaskNode{ID: "A"}, TaskNode{ID: "B"}, TaskNode{ID: "C"})
	require.True(t, s.Connect("A", "B"))

	require.True(t, s.SetNodeConnections("A", []domain.TaskID{"C", "A", "C", "ghost"}))
	a, _ := s.Node("A")
	assert.Equal(t, []domain.TaskID{"C"}, a.NextTaskIDs)

	assert.False(t, s.SetNodeConnections("A", []domain.TaskID{"C"}), "identical set is a no-op")
	assert.False(t, s.SetNodeConnections("ghost", nil))
}

func TestStore_ReplaceSanitizesPayload(t *testing.T) {
	s := NewStore()
	var kinds []ChangeKind
	s.Observe(func(c Change) { kinds = append(kinds, c.Kind) })

	s.Replace([]TaskNode{
		{ID: "A", NextTaskIDs: []domain.TaskID{"A", "B", "B", "gone"}},
		{ID: "B", Status: "weird"},
		{ID: "A", Title: "duplicate"},
		{Title: "no id"},
	})

	require.Equal(t, 3, s.Len())
	a, _ := s.Node("A")
	assert.Equal(t, []domain.TaskID{"B"}, a.NextTaskIDs)
	assert.Empty(t, a.Title, "first occurrence wins")
	b, _ := s.Node("B")
	assert.Equal(t, domain.StatusNotStarted, b.Status)
	assert.Equal(t, []ChangeKind{ChangeReplaced}, kinds)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := twoNodeStore(t)
	before := s.Snapshot()

	require.True(t, s.Connect("A", "B"))
	require.True(t, s.UpdateNodePosition("A", domain.Point{X: 42}))
	_, err := s.AddNode(TaskNode{ID: "C"})
	require.NoError(t, err)

	assert.Equal(t, 2, before.Len())
	assert.False(t, before.HasEdge("A", "B"))
	a, _ := before.Node("A")
	assert.Equal(t, domain.Point{}, a.Position)

	after := s.Snapshot()
	assert.True(t, after.SharesNode(before, "B"), "untouched node is shared")
	assert.False(t, after.SharesNode(before, "A"), "changed node is not shared")
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	s := twoNodeStore(t)
	before := s.Snapshot()
	want := before.Nodes()

	require.True(t, s.Connect("A", "B"))
	require.True(t, s.RemoveNode("A"))

	s.Restore(before)
	if diff := cmp.Diff(want, s.Nodes()); diff != "" {
		t.Errorf("restored graph mismatch (-want +got):\n%s", diff)
	}

	// Mutating after restore must not leak into the snapshot.
	require.True(t, s.UpdateNodePosition("B", domain.Point{X: 1, Y: 1}))
	b, _ := before.Node("B")
	assert.Equal(t, domain.Point{X: 500}, b.Position)
}

func TestStore_NodeCopiesAreDetached(t *testing.T) {
	s := twoNodeStore(t)
	require.True(t, s.Connect("A", "B"))

	a, _ := s.Node("A")
	a.NextTaskIDs[0] = "hijack"

	assert.True(t, s.HasEdge("A", "B"))
}

func TestStore_ObserverKinds(t *testing.T) {
	s := twoNodeStore(t)
	var got []ChangeKind
	s.Observe(func(c Change) { got = append(got, c.Kind) })

	s.Connect("A", "B")
	s.UpdateNodePosition("B", domain.Point{X: 1})
	s.UpdateNodeStatus("B", domain.StatusCompleted)
	s.Disconnect("A", "B")
	s.RemoveNode("B")

	assert.Equal(t, []ChangeKind{
		ChangeEdgeAdded, ChangeNodeMoved, ChangeNodeStatus, ChangeEdgeRemoved, ChangeNodeRemoved,
	}, got)
	assert.True(t, ChangeNodeRemoved.StructureChanged())
	assert.False(t, ChangeNodeMoved.StructureChanged())
}

func TestEdge_String(t *testing.T) {
	assert.Equal(t, "A->B", Edge{Source: "A", Target: "B"}.String())
}
