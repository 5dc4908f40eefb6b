package flow

import "github.com/felixgeelhaar/flowboard/internal/domain"

// ChangeKind classifies an effective graph mutation.
type ChangeKind string

const (
	ChangeNodeAdded      ChangeKind = "node_added"
	ChangeNodeRemoved    ChangeKind = "node_removed"
	ChangeNodeMoved      ChangeKind = "node_moved"
	ChangeNodeStatus     ChangeKind = "node_status"
	ChangeNodeDetails    ChangeKind = "node_details"
	ChangeEdgeAdded      ChangeKind = "edge_added"
	ChangeEdgeRemoved    ChangeKind = "edge_removed"
	ChangeConnectionsSet ChangeKind = "connections_set"
	ChangeRestored       ChangeKind = "restored"
	ChangeReplaced       ChangeKind = "replaced"
)

// StructureChanged reports whether the node set itself changed, as opposed
// to attributes of existing nodes.
func (k ChangeKind) StructureChanged() bool {
	switch k {
	case ChangeNodeAdded, ChangeNodeRemoved, ChangeRestored, ChangeReplaced:
		return true
	}
	return false
}

// Change describes one effective mutation. Rejected operations produce no
// Change.
type Change struct {
	Kind   ChangeKind
	NodeID domain.TaskID
	Edge   Edge
}

// Observer receives every effective mutation, synchronously, after the
// store has been updated.
type Observer func(Change)
