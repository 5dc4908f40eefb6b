package geometry

import (
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
)

// Rect is a rendered node box in canvas-content coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RightCenter is the midpoint of the right edge.
func (r Rect) RightCenter() domain.Point {
	return domain.Point{X: r.X + r.Width, Y: r.Y + r.Height/2}
}

// LeftCenter is the midpoint of the left edge.
func (r Rect) LeftCenter() domain.Point {
	return domain.Point{X: r.X, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p domain.Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Surface answers where a node is currently drawn and how big it is.
// Measure reports false for nodes that are not mounted yet.
type Surface interface {
	Measure(id domain.TaskID) (Rect, bool)
}

// StaticSurface is a map-backed Surface with synthetic measurements.
type StaticSurface map[domain.TaskID]Rect

// Measure implements Surface.
func (s StaticSurface) Measure(id domain.TaskID) (Rect, bool) {
	r, ok := s[id]
	return r, ok
}

// Sizer returns the rendered size of a node, or false when it is not
// mounted.
type Sizer func(node flow.TaskNode) (width, height float64, ok bool)

// FixedSize returns a Sizer that gives every node the same box.
func FixedSize(width, height float64) Sizer {
	return func(flow.TaskNode) (float64, float64, bool) {
		return width, height, true
	}
}

// NodeLookup is the read side of the graph store a LayoutSurface needs.
type NodeLookup interface {
	Node(id domain.TaskID) (flow.TaskNode, bool)
}

// LayoutSurface places each node at its stored position with a size from
// a Sizer. Renderers that draw nodes exactly at their logical position
// (the terminal board, headless replays) use it as their measurable surface.
type LayoutSurface struct {
	nodes  NodeLookup
	size   Sizer
	hidden map[domain.TaskID]bool
}

// NewLayoutSurface creates a LayoutSurface over nodes.
func NewLayoutSurface(nodes NodeLookup, size Sizer) *LayoutSurface {
	return &LayoutSurface{nodes: nodes, size: size, hidden: make(map[domain.TaskID]bool)}
}

// Measure implements Surface.
func (s *LayoutSurface) Measure(id domain.TaskID) (Rect, bool) {
	if s.hidden[id] {
		return Rect{}, false
	}
	n, ok := s.nodes.Node(id)
	if !ok {
		return Rect{}, false
	}
	w, h, ok := s.size(n)
	if !ok {
		return Rect{}, false
	}
	return Rect{X: n.Position.X, Y: n.Position.Y, Width: w, Height: h}, true
}

// Unmount marks id as not measurable, as if it were scrolled out of a
// virtualised list or not rendered yet.
func (s *LayoutSurface) Unmount(id domain.TaskID) {
	s.hidden[id] = true
}

// Mount reverses Unmount.
func (s *LayoutSurface) Mount(id domain.TaskID) {
	delete(s.hidden, id)
}

// HitTest returns the topmost node whose box contains p. Later nodes are
// drawn over earlier ones.
func HitTest(nodes []flow.TaskNode, surface Surface, p domain.Point) (domain.TaskID, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		r, ok := surface.Measure(nodes[i].ID)
		if ok && r.Contains(p) {
			return nodes[i].ID, true
		}
	}
	return "", false
}
