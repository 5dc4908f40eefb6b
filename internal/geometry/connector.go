// Package geometry turns node boxes into connector endpoints and keeps the
// connector list current as the graph and its rendering change.
package geometry

import (
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
)

// Connector is the drawable form of one edge.
type Connector struct {
	ID       string        `json:"id"`
	SourceID domain.TaskID `json:"sourceId"`
	TargetID domain.TaskID `json:"targetId"`
	From     domain.Point  `json:"from"`
	To       domain.Point  `json:"to"`
}

// Compute derives the connectors for nodes. An edge is emitted only when
// both endpoints exist and are measurable; anything else is skipped
// without affecting other edges.
func Compute(nodes []flow.TaskNode, surface Surface) []Connector {
	known := make(map[domain.TaskID]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	var out []Connector
	for _, n := range nodes {
		if len(n.NextTaskIDs) == 0 {
			continue
		}
		src, ok := surface.Measure(n.ID)
		if !ok {
			continue
		}
		from := src.RightCenter()
		for _, target := range n.NextTaskIDs {
			if !known[target] {
				continue
			}
			dst, ok := surface.Measure(target)
			if !ok {
				continue
			}
			out = append(out, Connector{
				ID:       flow.Edge{Source: n.ID, Target: target}.String(),
				SourceID: n.ID,
				TargetID: target,
				From:     from,
				To:       dst.LeftCenter(),
			})
		}
	}
	return out
}
