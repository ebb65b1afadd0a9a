package notify

import (
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/migrate"
)

// Provider defines the notification contract for migration events.
type Provider interface {
	// MigrationCompleted sends notification when every step and backfill succeeded.
	MigrationCompleted(report *migrate.Report) error

	// MigrationCompletedWithErrors sends notification when the run finished
	// but the report lists failures.
	MigrationCompletedWithErrors(report *migrate.Report) error

	// MigrationFailed sends notification when the run could not complete.
	MigrationFailed(runID string, err error, duration time.Duration) error
}

// Ensure Notifier implements Provider
var _ Provider = (*Notifier)(nil)
