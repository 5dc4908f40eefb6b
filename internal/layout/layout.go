// Package layout arranges a task graph into columns of dependency waves.
package layout

import (
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
)

// Config controls spacing of the generated grid.
type Config struct {
	Origin    domain.Point
	ColumnGap float64 // horizontal distance between wave columns
	RowGap    float64 // vertical distance between nodes in one column
}

// DefaultConfig fits the default 200x80 node card with room for connectors.
func DefaultConfig() Config {
	return Config{
		Origin:    domain.Point{X: 40, Y: 40},
		ColumnGap: 280,
		RowGap:    120,
	}
}

// Waves groups node ids by topological depth using Kahn's algorithm. Wave 0
// holds nodes nothing points at. Nodes left over because they sit on a cycle
// form one final wave in insertion order. Within a wave, insertion order is
// kept.
func Waves(nodes []flow.TaskNode) [][]domain.TaskID {
	index := make(map[domain.TaskID]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	inDegree := make(map[domain.TaskID]int, len(nodes))
	for _, n := range nodes {
		for _, t := range n.NextTaskIDs {
			if _, ok := index[t]; ok && t != n.ID {
				inDegree[t]++
			}
		}
	}

	var ready []domain.TaskID
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	placed := make(map[domain.TaskID]bool, len(nodes))
	var waves [][]domain.TaskID
	for len(ready) > 0 {
		waves = append(waves, ready)
		var next []domain.TaskID
		for _, id := range ready {
			placed[id] = true
			for _, succ := range nodes[index[id]].NextTaskIDs {
				if _, ok := index[succ]; !ok || succ == id {
					continue
				}
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		ready = sortByIndex(next, index)
	}

	var rest []domain.TaskID
	for _, n := range nodes {
		if !placed[n.ID] {
			rest = append(rest, n.ID)
		}
	}
	if len(rest) > 0 {
		waves = append(waves, rest)
	}
	return waves
}

// Positions computes a position for every node: one column per wave.
func Positions(nodes []flow.TaskNode, cfg Config) map[domain.TaskID]domain.Point {
	out := make(map[domain.TaskID]domain.Point, len(nodes))
	for col, wave := range Waves(nodes) {
		for row, id := range wave {
			out[id] = domain.Point{
				X: cfg.Origin.X + float64(col)*cfg.ColumnGap,
				Y: cfg.Origin.Y + float64(row)*cfg.RowGap,
			}
		}
	}
	return out
}

// sortByIndex orders ids by their insertion index (insertion sort; waves
// are small).
func sortByIndex(ids []domain.TaskID, index map[domain.TaskID]int) []domain.TaskID {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && index[ids[j]] < index[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}
