package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// Router resolves the backend that owns a table.
type Router interface {
	Route(table string) (*backend.Handle, error)
}

// Migrator brings every desired table up to date on its owning backend.
type Migrator struct {
	router   Router
	observer Observer
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithObserver installs a callback for step transitions.
func WithObserver(o Observer) Option {
	return func(m *Migrator) { m.observer = o }
}

// New returns a Migrator that routes tables through r.
func New(r Router, opts ...Option) *Migrator {
	m := &Migrator{router: r}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// backendWork is the ordered list of tables owned by one backend.
type backendWork struct {
	handle *backend.Handle
	tables []*schema.TableSchema
}

// Migrate plans and applies desired, then runs rules. Invalid input
// (duplicate or malformed tables, unroutable tables) is returned as an error
// before any backend is touched. Failures during the run never abort it:
// they are recorded in the report, and the caller decides the outcome from
// Report.Failed. The only error returned after the run starts is the
// context's, alongside the partial report.
//
// Each backend is migrated on its own goroutine. Tables of one backend are
// processed sequentially in declared order. Backfill runs after all schema
// changes have finished, in declared order.
func (m *Migrator) Migrate(ctx context.Context, desired []schema.TableSchema, rules []BackfillRule) (*Report, error) {
	work, err := m.prepare(desired, rules)
	if err != nil {
		return nil, err
	}

	report := newReportFor(work)
	logging.Info("Migration %s: %d tables across %d backends, %d backfill rules",
		report.RunID, len(desired), len(work), len(rules))

	m.each(work, func(w *backendWork) {
		exec := NewExecutor(w.handle, m.observer)
		for _, t := range w.tables {
			if ctx.Err() != nil {
				report.RecordTableError(t.Name, w.handle.Name(), ctx.Err())
				continue
			}
			plan, err := PlanTable(ctx, w.handle, t)
			if err != nil {
				logging.Backend(w.handle.Name()).Table(t.Name).Error("%v", err)
				report.RecordTableError(t.Name, w.handle.Name(), err)
				continue
			}
			if len(plan.Steps) == 0 {
				logging.Backend(w.handle.Name()).Table(t.Name).Info("Up to date")
			}
			for _, wn := range plan.Warnings {
				logging.Backend(w.handle.Name()).Table(t.Name).Warn("Schema drift: %s", wn)
			}
			report.RecordResult(exec.Apply(ctx, plan))
		}
	})

	for _, rule := range rules {
		h, _ := m.router.Route(rule.Table)
		res := BackfillResult{Table: rule.Table, Column: rule.Column, Backend: h.Name()}
		n, err := Backfill(ctx, h, rule)
		if err != nil {
			logging.Error("%v", err)
			res.Error = err.Error()
		}
		res.RowsChanged = n
		report.RecordBackfill(res)
	}

	report.Finish()
	if failed := report.Failed(); failed > 0 {
		logging.Warn("Migration %s finished with %d failure(s) in %s", report.RunID, failed, report.Duration().Round(time.Millisecond))
	} else {
		logging.Info("Migration %s complete: %d columns applied, %d rows backfilled in %s",
			report.RunID, report.Applied(), report.RowsBackfilled(), report.Duration().Round(time.Millisecond))
	}
	return report, ctx.Err()
}

// Plan computes the step list for every desired table without changing
// anything. The returned report has DryRun set and lists planned steps.
func (m *Migrator) Plan(ctx context.Context, desired []schema.TableSchema) (*Report, error) {
	work, err := m.prepare(desired, nil)
	if err != nil {
		return nil, err
	}

	report := newReportFor(work)
	report.DryRun = true
	m.each(work, func(w *backendWork) {
		for _, t := range w.tables {
			plan, err := PlanTable(ctx, w.handle, t)
			if err != nil {
				report.RecordTableError(t.Name, w.handle.Name(), err)
				continue
			}
			report.RecordPlan(plan)
		}
	})
	report.Finish()
	return report, ctx.Err()
}

func (m *Migrator) prepare(desired []schema.TableSchema, rules []BackfillRule) ([]*backendWork, error) {
	var (
		errs   []error
		work   []*backendWork
		byName = make(map[string]*backendWork)
		seen   = make(map[string]bool)
	)
	for i := range desired {
		t := &desired[i]
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("table %s declared more than once", t.Name))
			continue
		}
		seen[t.Name] = true

		h, err := m.router.Route(t.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		w, ok := byName[h.Name()]
		if !ok {
			w = &backendWork{handle: h}
			byName[h.Name()] = w
			work = append(work, w)
		}
		w.tables = append(w.tables, t)
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := m.router.Route(rule.Table); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return work, nil
}

// newReportFor registers every table up front so report order does not
// depend on goroutine scheduling.
func newReportFor(work []*backendWork) *Report {
	report := NewReport()
	for _, w := range work {
		for _, t := range w.tables {
			report.Table(t.Name, w.handle.Name())
		}
	}
	return report
}

// each runs fn once per backend concurrently and waits for all of them.
func (m *Migrator) each(work []*backendWork, fn func(*backendWork)) {
	var wg sync.WaitGroup
	for _, w := range work {
		wg.Add(1)
		go func(w *backendWork) {
			defer wg.Done()
			fn(w)
		}(w)
	}
	wg.Wait()
}
