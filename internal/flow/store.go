package flow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/flowboard/internal/domain"
)

// ErrNodeExists is returned by AddNode when the id is already taken.
var ErrNodeExists = errors.New("node already exists")

// Store owns the task nodes of the active project.
//
// Store is not safe for concurrent use. It is meant to be driven from a
// single event loop; background work posts its results back to that loop
// instead of touching the store directly.
type Store struct {
	order []domain.TaskID
	nodes map[domain.TaskID]*TaskNode

	// shared is set once a snapshot aliases order and nodes; the next
	// mutation copies both before writing.
	shared bool

	observers []Observer
}

// NewStore creates a store holding nodes. Invalid edges in the input are
// dropped as described for Replace.
func NewStore(nodes ...TaskNode) *Store {
	s := &Store{nodes: make(map[domain.TaskID]*TaskNode)}
	if len(nodes) > 0 {
		s.load(nodes)
	}
	return s
}

// Observe registers fn for every effective mutation.
func (s *Store) Observe(fn Observer) {
	s.observers = append(s.observers, fn)
}

func (s *Store) emit(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}

// Snapshot returns an immutable view of the current graph. It costs O(1);
// the copy happens lazily on the next mutation.
func (s *Store) Snapshot() Snapshot {
	s.shared = true
	return Snapshot{order: s.order, nodes: s.nodes}
}

// Restore makes snap the current graph.
func (s *Store) Restore(snap Snapshot) {
	s.order = snap.order
	s.nodes = snap.nodes
	if s.nodes == nil {
		s.nodes = make(map[domain.TaskID]*TaskNode)
	}
	s.shared = true
	s.emit(Change{Kind: ChangeRestored})
}

// Replace discards the current graph and loads nodes. Nodes without an id
// get a fresh one, repeated ids keep their first occurrence, and self-loops,
// duplicate edges and edges to unknown nodes are dropped.
func (s *Store) Replace(nodes []TaskNode) {
	s.order = nil
	s.nodes = make(map[domain.TaskID]*TaskNode, len(nodes))
	s.shared = false
	s.load(nodes)
	s.emit(Change{Kind: ChangeReplaced})
}

func (s *Store) load(nodes []TaskNode) {
	for _, n := range nodes {
		n = n.Clone()
		if n.ID.Validate() != nil {
			n.ID = newID()
		}
		if _, dup := s.nodes[n.ID]; dup {
			continue
		}
		if n.Status.Validate() != nil {
			n.Status = domain.StatusNotStarted
		}
		s.order = append(s.order, n.ID)
		s.nodes[n.ID] = &n
	}
	for _, id := range s.order {
		n := s.nodes[id]
		n.NextTaskIDs = s.sanitizeTargets(id, n.NextTaskIDs)
	}
}

// sanitizeTargets filters targets down to known, distinct, non-self ids.
func (s *Store) sanitizeTargets(source domain.TaskID, targets []domain.TaskID) []domain.TaskID {
	out := make([]domain.TaskID, 0, len(targets))
	seen := make(map[domain.TaskID]bool, len(targets))
	for _, t := range targets {
		if t == source || seen[t] {
			continue
		}
		if _, ok := s.nodes[t]; !ok {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// unshare gives the store private copies of order and nodes. Node values
// stay shared; they are replaced, never written through.
func (s *Store) unshare() {
	if !s.shared {
		return
	}
	s.order = append([]domain.TaskID(nil), s.order...)
	nodes := make(map[domain.TaskID]*TaskNode, len(s.nodes))
	for id, n := range s.nodes {
		nodes[id] = n
	}
	s.nodes = nodes
	s.shared = false
}

// put replaces the node value for n.ID.
func (s *Store) put(n TaskNode) {
	s.unshare()
	s.nodes[n.ID] = &n
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.order)
}

// Node returns a copy of the node with id.
func (s *Store) Node(id domain.TaskID) (TaskNode, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return TaskNode{}, false
	}
	return n.Clone(), true
}

// Nodes returns copies of every node in insertion order.
func (s *Store) Nodes() []TaskNode {
	return Snapshot{order: s.order, nodes: s.nodes}.Nodes()
}

// Edges returns every edge.
func (s *Store) Edges() []Edge {
	return Snapshot{order: s.order, nodes: s.nodes}.Edges()
}

// HasEdge reports whether source points to target.
func (s *Store) HasEdge(source, target domain.TaskID) bool {
	n, ok := s.nodes[source]
	return ok && n.HasNext(target)
}

// AddNode inserts node. An empty id is replaced by a generated one; the
// stored node is returned. Its NextTaskIDs are filtered like Replace does.
func (s *Store) AddNode(node TaskNode) (TaskNode, error) {
	node = node.Clone()
	if node.ID == "" {
		node.ID = newID()
	}
	if err := node.ID.Validate(); err != nil {
		return TaskNode{}, err
	}
	if _, ok := s.nodes[node.ID]; ok {
		return TaskNode{}, fmt.Errorf("%w: %s", ErrNodeExists, node.ID)
	}
	if node.Status == "" {
		node.Status = domain.StatusNotStarted
	}
	if err := node.Status.Validate(); err != nil {
		return TaskNode{}, err
	}
	node.NextTaskIDs = s.sanitizeTargets(node.ID, node.NextTaskIDs)

	s.unshare()
	s.order = append(s.order, node.ID)
	s.nodes[node.ID] = &node
	s.emit(Change{Kind: ChangeNodeAdded, NodeID: node.ID})
	return node.Clone(), nil
}

// RemoveNode deletes id and strips it from every other node's NextTaskIDs.
func (s *Store) RemoveNode(id domain.TaskID) bool {
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	s.unshare()
	delete(s.nodes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for _, oid := range s.order {
		n := s.nodes[oid]
		if !n.HasNext(id) {
			continue
		}
		updated := n.Clone()
		updated.NextTaskIDs = without(updated.NextTaskIDs, id)
		s.nodes[oid] = &updated
	}
	s.emit(Change{Kind: ChangeNodeRemoved, NodeID: id})
	return true
}

// UpdateNodePosition moves id to pos.
func (s *Store) UpdateNodePosition(id domain.TaskID, pos domain.Point) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	if n.Position == pos {
		return false
	}
	updated := n.Clone()
	updated.Position = pos
	s.put(updated)
	s.emit(Change{Kind: ChangeNodeMoved, NodeID: id})
	return true
}

// UpdateNodeStatus sets the status of id. Invalid statuses are rejected.
func (s *Store) UpdateNodeStatus(id domain.TaskID, status domain.Status) bool {
	n, ok := s.nodes[id]
	if !ok || status.Validate() != nil || n.Status == status {
		return false
	}
	updated := n.Clone()
	updated.Status = status
	s.put(updated)
	s.emit(Change{Kind: ChangeNodeStatus, NodeID: id})
	return true
}

// UpdateNodeDetails replaces the descriptive fields of id. Geometry and
// edges are untouched.
func (s *Store) UpdateNodeDetails(id domain.TaskID, title, description string, details map[string]any) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	updated := n.Clone()
	updated.Title = title
	updated.Description = description
	updated.ExtendedDetails = TaskNode{ExtendedDetails: details}.Clone().ExtendedDetails
	s.put(updated)
	s.emit(Change{Kind: ChangeNodeDetails, NodeID: id})
	return true
}

// Connect adds the edge source->target. Self-loops, duplicates and unknown
// endpoints are rejected before anything is touched.
func (s *Store) Connect(source, target domain.TaskID) bool {
	if source == target {
		return false
	}
	n, ok := s.nodes[source]
	if !ok {
		return false
	}
	if _, ok := s.nodes[target]; !ok {
		return false
	}
	if n.HasNext(target) {
		return false
	}
	updated := n.Clone()
	updated.NextTaskIDs = append(updated.NextTaskIDs, target)
	s.put(updated)
	s.emit(Change{Kind: ChangeEdgeAdded, NodeID: source, Edge: Edge{Source: source, Target: target}})
	return true
}

// Disconnect removes the edge source->target.
func (s *Store) Disconnect(source, target domain.TaskID) bool {
	n, ok := s.nodes[source]
	if !ok || !n.HasNext(target) {
		return false
	}
	updated := n.Clone()
	updated.NextTaskIDs = without(updated.NextTaskIDs, target)
	s.put(updated)
	s.emit(Change{Kind: ChangeEdgeRemoved, NodeID: source, Edge: Edge{Source: source, Target: target}})
	return true
}

// SetNodeConnections replaces every outgoing edge of source. Used when
// reconciling from a remote payload.
func (s *Store) SetNodeConnections(source domain.TaskID, targets []domain.TaskID) bool {
	n, ok := s.nodes[source]
	if !ok {
		return false
	}
	next := s.sanitizeTargets(source, targets)
	if equalIDs(n.NextTaskIDs, next) {
		return false
	}
	updated := n.Clone()
	updated.NextTaskIDs = next
	s.put(updated)
	s.emit(Change{Kind: ChangeConnectionsSet, NodeID: source})
	return true
}

func without(ids []domain.TaskID, drop domain.TaskID) []domain.TaskID {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func equalIDs(a, b []domain.TaskID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newID() domain.TaskID {
	return domain.TaskID(uuid.NewString())
}
