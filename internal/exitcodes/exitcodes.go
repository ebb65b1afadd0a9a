// Package exitcodes defines the process exit codes of the CLI so schedulers
// and deploy hooks can tell a failed migration from a broken environment.
package exitcodes

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/router"
)

const (
	// Success - the report has no failures
	Success = 0

	// MigrationFailed - the run completed and the report lists at least one failure
	MigrationFailed = 1

	// ConfigError - configuration parsing/validation or invalid declarations (don't retry)
	ConfigError = 2

	// ConnectionError - no backend reachable (recoverable)
	ConnectionError = 3

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 4

	// IOError - file I/O errors (recoverable)
	IOError = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error. Typed errors
// are checked first; the message is inspected only for untyped ones.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	// Check if it's already an ExitError
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	if errors.Is(err, router.ErrNoBackendAvailable) || backend.IsUnavailable(err) {
		return ConnectionError
	}

	var unroutable *router.UnroutableTableError
	var placeholder *dialect.PlaceholderTranslationError
	if errors.As(err, &unroutable) || errors.As(err, &placeholder) {
		return ConfigError
	}

	// Check for os.PathError (file not found, permission denied, etc.)
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	if containsAny(errStr, []string{
		"yaml:",
		"json:",
		"unmarshal",
		"invalid config",
		"parsing config",
		"parsing environment",
		"declared more than once",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"ping",
		"authentication",
	}) {
		return ConnectionError
	}

	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
	}) {
		return Cancelled
	}

	return MigrationFailed
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case ConnectionError, Cancelled, IOError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case MigrationFailed:
		return "migration failed"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case Cancelled:
		return "cancelled (recoverable)"
	case IOError:
		return "I/O error (recoverable)"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
