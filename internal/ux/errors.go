package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a recovery suggestion to errors that do not carry
// one. Coded errors that already suggest something pass through.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := errors.AsFlowError(err); ok && len(fe.Suggestions) > 0 {
		return err
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeProjectNotFound:
		return NewErrorWithSuggestion(err, "List your projects with 'flowboard project list'")
	case errors.ErrCodeProjectForbidden:
		return NewErrorWithSuggestion(err, "Ask the project owner for an invitation, or check --user")
	case errors.ErrCodeProjectConflict:
		return NewErrorWithSuggestion(err, "Reload the project and apply your change again")
	case errors.ErrCodeMemberOwnerRequired:
		return NewErrorWithSuggestion(err, "The owner's membership cannot be changed or removed")
	case errors.ErrCodeStoreOpen, errors.ErrCodeStoreMigrate:
		return NewErrorWithSuggestion(err, "Check store.path with 'flowboard config view'")
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NewErrorWithSuggestion(err,
			"Start the server with 'flowboard serve', or check --server and server.url")
	}

	if strings.Contains(errMsg, "database is locked") || strings.Contains(errMsg, "SQLITE_BUSY") {
		return NewErrorWithSuggestion(err,
			"Another flowboard process is writing to the database; retry, or point store.path elsewhere")
	}

	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check permissions on the flowboard home directory (~/.flowboard or $FLOWBOARD_HOME)")
	}

	if strings.Contains(errMsg, "no such file or directory") && strings.Contains(errMsg, ".yaml") {
		return NewErrorWithSuggestion(err,
			"Check the file path; 'flowboard config path' shows where configuration lives")
	}

	return err
}
