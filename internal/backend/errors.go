package backend

import (
	"errors"
	"fmt"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

var (
	// ErrNotConfigured marks a backend with no connection parameters.
	ErrNotConfigured = errors.New("not configured")

	// ErrClosed marks a backend whose pool has been shut down.
	ErrClosed = errors.New("closed")
)

// BackendUnavailableError is returned for any operation routed to a backend
// that could not be reached at startup or has been closed.
type BackendUnavailableError struct {
	Backend string
	Kind    dialect.Kind
	Cause   error
}

func (e *BackendUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("backend %s (%s) unavailable", e.Backend, e.Kind)
	}
	return fmt.Sprintf("backend %s (%s) unavailable: %v", e.Backend, e.Kind, e.Cause)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Cause
}

// IsUnavailable reports whether err is or wraps a BackendUnavailableError.
func IsUnavailable(err error) bool {
	var unavailable *BackendUnavailableError
	return errors.As(err, &unavailable)
}
