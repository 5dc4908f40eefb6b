package flow

import "github.com/felixgeelhaar/flowboard/internal/domain"

// Snapshot is an immutable view of the graph at one point in time.
// The zero value is an empty graph.
type Snapshot struct {
	order []domain.TaskID
	nodes map[domain.TaskID]*TaskNode
}

// Len returns the number of nodes.
func (s Snapshot) Len() int {
	return len(s.order)
}

// Node returns a copy of the node with id.
func (s Snapshot) Node(id domain.TaskID) (TaskNode, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return TaskNode{}, false
	}
	return n.Clone(), true
}

// Has reports whether id is in the graph.
func (s Snapshot) Has(id domain.TaskID) bool {
	_, ok := s.nodes[id]
	return ok
}

// IDs returns node ids in insertion order.
func (s Snapshot) IDs() []domain.TaskID {
	return append([]domain.TaskID(nil), s.order...)
}

// Nodes returns copies of every node in insertion order.
func (s Snapshot) Nodes() []TaskNode {
	out := make([]TaskNode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Edges returns every edge, grouped by source in node order.
func (s Snapshot) Edges() []Edge {
	var out []Edge
	for _, id := range s.order {
		for _, target := range s.nodes[id].NextTaskIDs {
			out = append(out, Edge{Source: id, Target: target})
		}
	}
	return out
}

// HasEdge reports whether source points to target.
func (s Snapshot) HasEdge(source, target domain.TaskID) bool {
	n, ok := s.nodes[source]
	return ok && n.HasNext(target)
}

// Positions returns every node position keyed by id.
func (s Snapshot) Positions() map[domain.TaskID]domain.Point {
	out := make(map[domain.TaskID]domain.Point, len(s.order))
	for _, id := range s.order {
		out[id] = s.nodes[id].Position
	}
	return out
}

// SharesNode reports whether s and other hold the very same node value for
// id, which is the case when neither touched it since they diverged.
func (s Snapshot) SharesNode(other Snapshot, id domain.TaskID) bool {
	a, ok := s.nodes[id]
	if !ok {
		return false
	}
	b, ok := other.nodes[id]
	return ok && a == b
}
