package interaction

import (
	"github.com/felixgeelhaar/flowboard/internal/domain"
)

// Gesture is the kind of pointer gesture a session is in.
type Gesture int

const (
	GestureNone Gesture = iota
	GestureMove
	GestureConnect
)

func (g Gesture) String() string {
	switch g {
	case GestureMove:
		return "move"
	case GestureConnect:
		return "connect"
	}
	return "none"
}

// ConnectingState is the in-flight drag-to-connect line. FromPos and
// Preview are canvas-content coordinates.
type ConnectingState struct {
	FromID  domain.TaskID
	FromPos domain.Point
	Preview domain.Point
}

// Session holds the transient state of one pointer. Only one gesture can be
// active at a time; starting another while one is open is refused.
type Session struct {
	c       *Controller
	gesture Gesture

	dragID domain.TaskID
	offset domain.Point

	connecting ConnectingState
}

// Gesture returns the active gesture.
func (s *Session) Gesture() Gesture {
	return s.gesture
}

// DragStart begins moving id. The offset between the pointer and the node
// origin is kept so the node does not jump under the pointer.
func (s *Session) DragStart(id domain.TaskID, pointer domain.Point) bool {
	if !s.c.caps.CanEdit || s.gesture != GestureNone {
		return false
	}
	n, ok := s.c.store.Node(id)
	if !ok {
		return false
	}
	s.gesture = GestureMove
	s.dragID = id
	s.offset = s.c.canvas.ToContent(pointer).Sub(n.Position)
	return true
}

// DragOver reports whether the default drop handling must be suppressed,
// which is the case exactly while a move is in progress.
func (s *Session) DragOver() bool {
	return s.c.caps.CanEdit && s.gesture == GestureMove
}

// Dragging returns the node being moved.
func (s *Session) Dragging() (domain.TaskID, bool) {
	if s.gesture != GestureMove {
		return "", false
	}
	return s.dragID, true
}

// Drop ends a move at pointer. The node lands at pointer minus the grab
// offset, clamped into the canvas. A drop without a drag does nothing.
// It reports whether the graph changed.
func (s *Session) Drop(pointer domain.Point) bool {
	if s.gesture != GestureMove {
		return false
	}
	id, offset := s.dragID, s.offset
	s.reset()

	pos := s.c.canvas.ToContent(pointer).Sub(offset)
	return s.c.MoveNode(id, pos)
}

// StartConnection opens a connect gesture from id, anchored at the pointer
// in canvas-content coordinates.
func (s *Session) StartConnection(id domain.TaskID, pointer domain.Point) bool {
	if !s.c.caps.CanEdit || s.gesture != GestureNone {
		return false
	}
	if _, ok := s.c.store.Node(id); !ok {
		return false
	}
	at := s.c.canvas.ToContent(pointer)
	s.gesture = GestureConnect
	s.connecting = ConnectingState{FromID: id, FromPos: at, Preview: at}
	return true
}

// MovePointer updates the preview endpoint of an open connect gesture.
func (s *Session) MovePointer(pointer domain.Point) {
	if s.gesture != GestureConnect {
		return
	}
	s.connecting.Preview = s.c.canvas.ToContent(pointer)
}

// Connecting returns the open connect gesture.
func (s *Session) Connecting() (ConnectingState, bool) {
	if s.gesture != GestureConnect {
		return ConnectingState{}, false
	}
	return s.connecting, true
}

// EndConnection closes the connect gesture on target. No open gesture, an
// empty target or target equal to the source cancel without mutation.
func (s *Session) EndConnection(target domain.TaskID) bool {
	if s.gesture != GestureConnect {
		return false
	}
	from := s.connecting.FromID
	s.reset()
	if target == "" || target == from {
		return false
	}
	return s.c.Connect(from, target)
}

// CancelConnection drops an open connect gesture, as on pointer-up over
// empty canvas.
func (s *Session) CancelConnection() bool {
	if s.gesture != GestureConnect {
		return false
	}
	s.reset()
	return true
}

// PointerUp finishes whatever gesture is open at a viewport position: a
// move drops there, a connect ends on the node under the pointer or
// cancels over empty canvas.
func (s *Session) PointerUp(pointer domain.Point) bool {
	switch s.gesture {
	case GestureMove:
		return s.Drop(pointer)
	case GestureConnect:
		s.MovePointer(pointer)
		target, ok := s.c.NodeAt(pointer)
		if !ok {
			s.CancelConnection()
			return false
		}
		return s.EndConnection(target)
	}
	return false
}

// Reset abandons any open gesture without committing it. Used on teardown.
func (s *Session) Reset() {
	s.reset()
}

func (s *Session) reset() {
	s.gesture = GestureNone
	s.dragID = ""
	s.offset = domain.Point{}
	s.connecting = ConnectingState{}
}
