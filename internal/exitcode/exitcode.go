package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage, input or configuration
	UsageError = 2

	// NotFound indicates a missing project, member, invitation or file
	NotFound = 3

	// Conflict indicates the project changed underneath the caller, or a
	// membership change that would leave a project without its owner
	Conflict = 4

	// AuthError indicates the acting user may not do what was asked
	AuthError = 5

	// NetworkError indicates the server or live updates could not be reached
	NetworkError = 6

	// Interrupted indicates the user cancelled (Ctrl+C)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	code := DetermineExitCode(err)
	Exit(code)
}

// DetermineExitCode maps an error to an exit code. Coded errors map by
// code; anything else falls back to matching the message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch code := errors.CodeOf(err); code {
	case errors.ErrCodeProjectForbidden:
		return AuthError
	case errors.ErrCodeProjectNotFound, errors.ErrCodeMemberNotFound,
		errors.ErrCodeInvitationNotFound, errors.ErrCodeFileNotFound:
		return NotFound
	case errors.ErrCodeProjectConflict, errors.ErrCodeMemberExists, errors.ErrCodeMemberOwnerRequired:
		return Conflict
	case errors.ErrCodeProjectInvalid, errors.ErrCodeMemberRoleInvalid, errors.ErrCodeInvitationInvalid,
		errors.ErrCodeConfigInvalid, errors.ErrCodeConfigKey, errors.ErrCodeFileUnmarshal:
		return UsageError
	case errors.ErrCodeAPIRequest, errors.ErrCodeSyncSubscribe:
		return NetworkError
	case "":
	default:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	// Authentication errors
	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "forbidden") {
		return AuthError
	}

	// Network errors
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	// Usage errors
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	// Default to general error
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case NotFound:
		return "Not found"
	case Conflict:
		return "Conflict"
	case AuthError:
		return "Not allowed"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
