// Package replay drives a board from a YAML gesture script instead of a
// keyboard. A script is a list of steps; each step is one gesture such as a
// drag, a pointer connect or an undo. Steps run one at a time on a
// loop.Loop, the same way key presses run on the board's update goroutine.
package replay

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
)

// Op names a gesture.
type Op string

const (
	OpSelect     Op = "select"
	OpMove       Op = "move"       // place node at to
	OpDrag       Op = "drag"       // pointer drag of node from -> to
	OpConnect    Op = "connect"    // node -> target without a pointer
	OpLink       Op = "link"       // pointer connect from node, released at to
	OpDisconnect Op = "disconnect" // remove node -> target
	OpStatus     Op = "status"     // status, or "next" to cycle
	OpEdit       Op = "edit"       // replace title and description
	OpAdd        Op = "add"
	OpRemove     Op = "remove"
	OpUndo       Op = "undo"
	OpRedo       Op = "redo"
	OpLayout     Op = "layout"
	OpScroll     Op = "scroll" // scroll the viewport to to
)

var ops = map[Op]struct {
	node, target, to bool
}{
	OpSelect:     {node: true},
	OpMove:       {node: true, to: true},
	OpDrag:       {node: true, to: true},
	OpConnect:    {node: true, target: true},
	OpLink:       {node: true, to: true},
	OpDisconnect: {node: true, target: true},
	OpStatus:     {node: true},
	OpEdit:       {node: true},
	OpAdd:        {node: true},
	OpRemove:     {node: true},
	OpUndo:       {},
	OpRedo:       {},
	OpLayout:     {},
	OpScroll:     {to: true},
}

// Step is one scripted gesture. Which fields matter depends on Op.
type Step struct {
	Op          Op            `yaml:"op"`
	Node        domain.TaskID `yaml:"node,omitempty"`
	Target      domain.TaskID `yaml:"target,omitempty"`
	From        *domain.Point `yaml:"from,omitempty"`
	To          *domain.Point `yaml:"to,omitempty"`
	Status      string        `yaml:"status,omitempty"`
	Title       string        `yaml:"title,omitempty"`
	Description string        `yaml:"description,omitempty"`
}

func (s Step) String() string {
	switch {
	case s.Target != "":
		return fmt.Sprintf("%s %s -> %s", s.Op, s.Node, s.Target)
	case s.Node != "":
		return fmt.Sprintf("%s %s", s.Op, s.Node)
	}
	return string(s.Op)
}

// Script is a gesture script.
type Script struct {
	// Canvas overrides the board canvas; pointer positions are viewport
	// coordinates relative to its scroll offset.
	Canvas *interaction.Canvas `yaml:"canvas,omitempty"`
	Steps  []Step              `yaml:"steps"`
}

// Validate checks that every step names a known op and carries the fields
// that op needs.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "script has no steps")
	}
	for i, step := range s.Steps {
		need, ok := ops[step.Op]
		invalid := func(msg string) *errors.FlowError {
			return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("step %d (%s): %s", i+1, step.Op, msg))
		}
		switch {
		case !ok:
			return invalid("unknown op").WithSuggestion("Known ops: select, move, drag, connect, link, disconnect, status, edit, add, remove, undo, redo, layout, scroll")
		case need.node && step.Node == "":
			return invalid("node is required")
		case need.target && step.Target == "":
			return invalid("target is required")
		case need.to && step.To == nil:
			return invalid("to is required")
		}
		if step.Op == OpStatus && step.Status != "next" {
			if _, err := domain.ParseStatus(step.Status); err != nil {
				return invalid(err.Error())
			}
		}
	}
	if s.Canvas != nil && (s.Canvas.Width <= 0 || s.Canvas.Height <= 0) {
		return errors.New(errors.ErrCodeConfigInvalid, "canvas must have a positive size")
	}
	return nil
}

// Parse decodes and validates a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, errors.NewFileUnmarshalError("script", "YAML", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}
	return Parse(data)
}
