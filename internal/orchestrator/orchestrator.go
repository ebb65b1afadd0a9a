// Package orchestrator wires configuration, routing, migration, progress
// reporting and notifications into the operations the CLI exposes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/config"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/migrate"
	"github.com/johndauphine/dualstore-migrate/internal/notify"
	"github.com/johndauphine/dualstore-migrate/internal/progress"
	"github.com/johndauphine/dualstore-migrate/internal/router"
)

// healthTimeout bounds each backend ping during a health check.
const healthTimeout = 30 * time.Second

// Orchestrator coordinates a migration run over both backends.
type Orchestrator struct {
	config   *config.Config
	router   *router.Router
	notifier notify.Provider
	reporter progress.Reporter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter sets the progress reporter. The default reports nothing.
func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithNotifier replaces the Slack notifier built from the config.
func WithNotifier(p notify.Provider) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.notifier = p
		}
	}
}

// New connects both backends and returns an orchestrator. It fails only
// when no backend is reachable.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	r, err := router.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting backends: %w", err)
	}
	return NewWithRouter(cfg, r, opts...), nil
}

// NewWithRouter builds an orchestrator over an existing router.
func NewWithRouter(cfg *config.Config, r *router.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:   cfg,
		router:   r,
		notifier: notify.New(&cfg.Slack),
		reporter: progress.NullReporter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Router returns the router the orchestrator runs against.
func (o *Orchestrator) Router() *router.Router {
	return o.router
}

// Close closes every backend.
func (o *Orchestrator) Close() error {
	return o.router.Close()
}

// Migrate applies the configured schemas and backfill rules. The report is
// returned even when the run was cancelled part-way.
func (o *Orchestrator) Migrate(ctx context.Context) (*migrate.Report, error) {
	start := time.Now()
	desired := o.config.DesiredSchemas()
	rules := o.config.BackfillRules()
	logging.Debug("Loaded %d desired tables and %d backfill rules", len(desired), len(rules))

	m := migrate.New(o.router, migrate.WithObserver(o.reporter.Observe))
	report, err := m.Migrate(ctx, desired, rules)
	o.reporter.Finish()

	if report == nil {
		o.notifyFailure("", err, time.Since(start))
		return nil, err
	}

	switch {
	case err != nil:
		o.notifyFailure(report.RunID, err, time.Since(start))
	case report.OK():
		if nerr := o.notifier.MigrationCompleted(report); nerr != nil {
			logging.Warn("Slack notification failed: %v", nerr)
		}
	default:
		if nerr := o.notifier.MigrationCompletedWithErrors(report); nerr != nil {
			logging.Warn("Slack notification failed: %v", nerr)
		}
	}
	return report, err
}

// Plan reports what Migrate would do without changing either backend.
func (o *Orchestrator) Plan(ctx context.Context) (*migrate.Report, error) {
	desired := o.config.DesiredSchemas()
	logging.Info("Planning schema migration: %d tables", len(desired))
	return migrate.New(o.router).Plan(ctx, desired)
}

// HealthCheck pings both backends in parallel.
func (o *Orchestrator) HealthCheck(ctx context.Context) *router.HealthResult {
	return o.router.Health(ctx, healthTimeout)
}

// Execute runs a canonical query against the backend owning table.
func (o *Orchestrator) Execute(ctx context.Context, table, query string, params []any) ([]backend.Row, error) {
	return o.router.Execute(ctx, query, params, table)
}

// Exec runs a canonical statement against the backend owning table.
func (o *Orchestrator) Exec(ctx context.Context, table, query string, params []any) (int64, error) {
	return o.router.Exec(ctx, query, params, table)
}

func (o *Orchestrator) notifyFailure(runID string, err error, duration time.Duration) {
	if nerr := o.notifier.MigrationFailed(runID, err, duration); nerr != nil {
		logging.Warn("Slack notification failed: %v", nerr)
	}
}
