// Package flow holds the in-memory task-flow graph: task nodes, the directed
// edges implied by their NextTaskIDs, and immutable snapshots of both.
//
// Nodes are never mutated in place. Every change replaces the node value, so
// snapshots taken before a change keep seeing the old node while sharing every
// untouched node with the live graph.
package flow

import (
	"github.com/felixgeelhaar/flowboard/internal/domain"
)

// TaskNode is a task with identity, status and canvas position.
type TaskNode struct {
	ID          domain.TaskID   `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Status      domain.Status   `json:"status" yaml:"status"`
	Position    domain.Point    `json:"position" yaml:"position"`
	NextTaskIDs []domain.TaskID `json:"nextTaskIds" yaml:"next_task_ids"`

	// ExtendedDetails carries sub-steps, attachments and decisions. The
	// graph never looks inside it.
	ExtendedDetails map[string]any `json:"extendedDetails,omitempty" yaml:"extended_details,omitempty"`
}

// Clone returns a copy that shares nothing mutable with n apart from the
// values inside ExtendedDetails.
func (n TaskNode) Clone() TaskNode {
	out := n
	if n.NextTaskIDs != nil {
		out.NextTaskIDs = append([]domain.TaskID(nil), n.NextTaskIDs...)
	}
	if n.ExtendedDetails != nil {
		out.ExtendedDetails = make(map[string]any, len(n.ExtendedDetails))
		for k, v := range n.ExtendedDetails {
			out.ExtendedDetails[k] = v
		}
	}
	return out
}

// HasNext reports whether n has an outgoing edge to target.
func (n TaskNode) HasNext(target domain.TaskID) bool {
	for _, id := range n.NextTaskIDs {
		if id == target {
			return true
		}
	}
	return false
}

// Edge is a directed sequencing relationship. It is derived from
// membership of Target in the source node's NextTaskIDs.
type Edge struct {
	Source domain.TaskID `json:"source"`
	Target domain.TaskID `json:"target"`
}

// String renders the edge as "source->target".
func (e Edge) String() string {
	return string(e.Source) + "->" + string(e.Target)
}
