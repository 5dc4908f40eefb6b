package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// TaskID identifies a task node in a flow graph.
// IDs are opaque to the graph core; the only rules are that they are
// non-empty, bounded in length and free of whitespace and control runes.
type TaskID string

// maxTaskIDLength is the maximum allowed length for a task ID
const maxTaskIDLength = 128

// NewTaskID creates a new TaskID value object with validation
func NewTaskID(value string) (TaskID, error) {
	id := TaskID(value)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks if the task ID is valid
func (t TaskID) Validate() error {
	s := string(t)

	if s == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if len(s) > maxTaskIDLength {
		return fmt.Errorf("task ID %q exceeds maximum length of %d characters", s, maxTaskIDLength)
	}

	if strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("task ID %q cannot contain whitespace or control characters", s)
	}

	return nil
}

// String returns the string representation
func (t TaskID) String() string {
	return string(t)
}

// Equals checks if this task ID equals another
func (t TaskID) Equals(other TaskID) bool {
	return t == other
}
