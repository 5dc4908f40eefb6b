package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Project errors (PROJECT-001 to PROJECT-099)
	ErrCodeProjectNotFound  ErrorCode = "PROJECT-001"
	ErrCodeProjectInvalid   ErrorCode = "PROJECT-002"
	ErrCodeProjectForbidden ErrorCode = "PROJECT-003"
	ErrCodeProjectConflict  ErrorCode = "PROJECT-004"

	// Membership errors (MEMBER-001 to MEMBER-099)
	ErrCodeMemberNotFound      ErrorCode = "MEMBER-001"
	ErrCodeMemberExists        ErrorCode = "MEMBER-002"
	ErrCodeInvitationNotFound  ErrorCode = "MEMBER-003"
	ErrCodeInvitationInvalid   ErrorCode = "MEMBER-004"
	ErrCodeMemberRoleInvalid   ErrorCode = "MEMBER-005"
	ErrCodeMemberOwnerRequired ErrorCode = "MEMBER-006"

	// Store errors (STORE-001 to STORE-099)
	ErrCodeStoreOpen    ErrorCode = "STORE-001"
	ErrCodeStoreMigrate ErrorCode = "STORE-002"
	ErrCodeStoreQuery   ErrorCode = "STORE-003"
	ErrCodeStoreEncode  ErrorCode = "STORE-004"

	// Sync errors (SYNC-001 to SYNC-099)
	ErrCodeSyncSubscribe ErrorCode = "SYNC-001"
	ErrCodeSyncReload    ErrorCode = "SYNC-002"
	ErrCodeSyncRole      ErrorCode = "SYNC-003"
	ErrCodeSyncSave      ErrorCode = "SYNC-004"

	// Remote API errors (API-001 to API-099)
	ErrCodeAPIRequest  ErrorCode = "API-001"
	ErrCodeAPIResponse ErrorCode = "API-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigKey     ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
	ErrCodeTerminal        ErrorCode = "IO-007"
)

// FlowError represents an enhanced error with code, suggestions, and documentation
type FlowError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// New creates a new FlowError
func New(code ErrorCode, message string) *FlowError {
	return &FlowError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new FlowError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *FlowError {
	return &FlowError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *FlowError) WithSuggestion(suggestion string) *FlowError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *FlowError) WithSuggestions(suggestions ...string) *FlowError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *FlowError) WithDocs(url string) *FlowError {
	e.DocsURL = url
	return e
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// AsFlowError returns the first FlowError in err's chain.
func AsFlowError(err error) (*FlowError, bool) {
	var flowErr *FlowError
	ok := stderrors.As(err, &flowErr)
	return flowErr, ok
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var flowErr *FlowError
	if stderrors.As(err, &flowErr) {
		return flowErr.Code
	}
	return ""
}

// HasCode reports whether any FlowError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var flowErr *FlowError
		if !stderrors.As(err, &flowErr) {
			return false
		}
		if flowErr.Code == code {
			return true
		}
		err = flowErr.Cause
	}
	return false
}

// Common error constructors for frequently used errors

// NewProjectNotFoundError creates a project not found error
func NewProjectNotFoundError(id string) *FlowError {
	return New(ErrCodeProjectNotFound, fmt.Sprintf("project not found: %s", id)).
		WithSuggestion("Run 'flowboard project create' to create a new project").
		WithSuggestion("Check that the project id is correct")
}

// NewProjectForbiddenError creates a permission error for a project action
func NewProjectForbiddenError(id, action string) *FlowError {
	return New(ErrCodeProjectForbidden, fmt.Sprintf("not allowed to %s project %s", action, id)).
		WithSuggestion("Ask a project owner or admin to change your role").
		WithSuggestion("Run 'flowboard member list <project>' to see current roles")
}

// NewProjectInvalidError creates a validation error for project input
func NewProjectInvalidError(details string) *FlowError {
	return New(ErrCodeProjectInvalid, fmt.Sprintf("invalid project: %s", details)).
		WithSuggestion("Check the project title and task list")
}

// NewInvitationInvalidError creates an error for unknown, cancelled or used invitations
func NewInvitationInvalidError() *FlowError {
	return New(ErrCodeInvitationInvalid, "invitation is invalid or no longer pending").
		WithSuggestion("Ask the project owner to send a new invitation")
}

// NewMemberRoleInvalidError creates an error for a role that cannot be assigned
func NewMemberRoleInvalidError(role string) *FlowError {
	return New(ErrCodeMemberRoleInvalid, fmt.Sprintf("invalid member role: %s", role)).
		WithSuggestion("Use one of: admin, editor, viewer")
}

// NewStoreQueryError wraps a database failure
func NewStoreQueryError(op string, cause error) *FlowError {
	return Wrap(ErrCodeStoreQuery, fmt.Sprintf("store operation failed: %s", op), cause)
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *FlowError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *FlowError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
