package flow

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/felixgeelhaar/flowboard/internal/domain"
)

var propertyIDs = []domain.TaskID{"a", "b", "c", "d", "e", "f"}

func genID() *rapid.Generator[domain.TaskID] {
	return rapid.SampledFrom(propertyIDs)
}

// genStore builds a store with a random subset of nodes and edges
func genStore(t *rapid.T) *Store {
	s := NewStore()
	n := rapid.IntRange(1, len(propertyIDs)).Draw(t, "nodes")
	for _, id := range propertyIDs[:n] {
		if _, err := s.AddNode(TaskNode{ID: id}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	edges := rapid.IntRange(0, 12).Draw(t, "edges")
	for i := 0; i < edges; i++ {
		s.Connect(genID().Draw(t, fmt.Sprintf("src_%d", i)), genID().Draw(t, fmt.Sprintf("dst_%d", i)))
	}
	return s
}

func checkInvariants(t *rapid.T, s *Store) {
	for _, n := range s.Nodes() {
		seen := map[domain.TaskID]bool{}
		for _, target := range n.NextTaskIDs {
			if target == n.ID {
				t.Fatalf("self loop on %s", n.ID)
			}
			if seen[target] {
				t.Fatalf("duplicate edge %s->%s", n.ID, target)
			}
			seen[target] = true
			if _, ok := s.Node(target); !ok {
				t.Fatalf("dangling edge %s->%s", n.ID, target)
			}
		}
	}
}

// TestStore_SelfConnectNeverChangesEdges checks connect(a,a) is inert
func TestStore_SelfConnectNeverChangesEdges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := genStore(t)
		before := s.Edges()
		id := genID().Draw(t, "id")

		if s.Connect(id, id) {
			t.Fatalf("connect(%s,%s) reported a change", id, id)
		}
		if diff := cmp.Diff(before, s.Edges()); diff != "" {
			t.Fatalf("edges changed (-before +after):\n%s", diff)
		}
	})
}

// TestStore_ConnectTwiceEqualsOnce checks connect idempotence
func TestStore_ConnectTwiceEqualsOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := genStore(t)
		a := genID().Draw(t, "a")
		b := genID().Draw(t, "b")

		s.Connect(a, b)
		once := s.Edges()
		s.Connect(a, b)

		if diff := cmp.Diff(once, s.Edges()); diff != "" {
			t.Fatalf("second connect changed edges:\n%s", diff)
		}
	})
}

// TestStore_RemoveNodeLeavesNoReferences checks the no-dangling-edge rule
func TestStore_RemoveNodeLeavesNoReferences(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := genStore(t)
		id := genID().Draw(t, "removed")

		s.RemoveNode(id)

		for _, n := range s.Nodes() {
			if n.HasNext(id) {
				t.Fatalf("node %s still points to removed %s", n.ID, id)
			}
		}
		checkInvariants(t, s)
	})
}

// TestStore_RandomOperationsKeepInvariants drives arbitrary operation sequences
func TestStore_RandomOperationsKeepInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := genStore(t)
		snaps := []Snapshot{s.Snapshot()}
		frozen := [][]TaskNode{s.Nodes()}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			a := genID().Draw(t, fmt.Sprintf("a_%d", i))
			b := genID().Draw(t, fmt.Sprintf("b_%d", i))
			switch rapid.IntRange(0, 6).Draw(t, fmt.Sprintf("op_%d", i)) {
			case 0:
				s.Connect(a, b)
			case 1:
				s.Disconnect(a, b)
			case 2:
				s.RemoveNode(a)
			case 3:
				_, _ = s.AddNode(TaskNode{ID: a, NextTaskIDs: []domain.TaskID{b, a}})
			case 4:
				s.UpdateNodePosition(a, domain.Point{X: float64(i), Y: float64(i)})
			case 5:
				s.SetNodeConnections(a, []domain.TaskID{b, b, a})
			case 6:
				snaps = append(snaps, s.Snapshot())
				frozen = append(frozen, s.Nodes())
			}
			checkInvariants(t, s)
		}

		for i, snap := range snaps {
			if diff := cmp.Diff(frozen[i], snap.Nodes()); diff != "" {
				t.Fatalf("snapshot %d was mutated:\n%s", i, diff)
			}
		}
	})
}
