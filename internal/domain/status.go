package domain

import "fmt"

// Status is the progress state of a task node.
type Status string

// Valid task statuses
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// NewStatus creates a new Status value object with validation
func NewStatus(value string) (Status, error) {
	s := Status(value)
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// ParseStatus accepts the wire names plus the display labels
// ("Not Started", "In Progress", ...) used by older project payloads.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "", "Not Started", "not-started":
		return StatusNotStarted, nil
	case "In Progress", "in-progress":
		return StatusInProgress, nil
	case "Completed", "done":
		return StatusCompleted, nil
	case "Blocked":
		return StatusBlocked, nil
	}
	return NewStatus(value)
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked:
		return nil
	default:
		return fmt.Errorf("invalid status %q: must be not_started, in_progress, completed, or blocked", string(s))
	}
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// Label returns the human readable label for the status.
func (s Status) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// Next cycles through the statuses in board order.
func (s Status) Next() Status {
	switch s {
	case StatusNotStarted:
		return StatusInProgress
	case StatusInProgress:
		return StatusCompleted
	case StatusCompleted:
		return StatusBlocked
	default:
		return StatusNotStarted
	}
}

// AllStatuses returns every valid status in board order.
func AllStatuses() []Status {
	return []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked}
}
