package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// StepState is the lifecycle position of a step.
type StepState int

const (
	StatePending StepState = iota
	StateApplying
	StateApplied
	StateFailed
	// StateSkipped marks a step whose column was found present by the
	// pre-check, so no DDL was issued.
	StateSkipped
)

func (s StepState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateApplying:
		return "APPLYING"
	case StateApplied:
		return "APPLIED"
	case StateFailed:
		return "FAILED"
	case StateSkipped:
		return "SKIPPED"
	}
	return fmt.Sprintf("StepState(%d)", int(s))
}

// Terminal reports whether no further transition follows s.
func (s StepState) Terminal() bool {
	return s == StateApplied || s == StateFailed || s == StateSkipped
}

// DDLError reports a schema change the backend rejected.
type DDLError struct {
	Table   string
	Column  string
	Backend string
	SQL     string
	Err     error
}

func (e *DDLError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("creating table %s on %s: %v", e.Table, e.Backend, e.Err)
	}
	return fmt.Sprintf("adding column %s.%s on %s: %v", e.Table, e.Column, e.Backend, e.Err)
}

func (e *DDLError) Unwrap() error {
	return e.Err
}

// StepEvent is delivered to an Observer on every state transition.
type StepEvent struct {
	Backend string
	Step    Step
	State   StepState
	Err     error
	Elapsed time.Duration
}

// Observer receives step transitions. It is called from the goroutine
// migrating the step's backend and must be safe for concurrent use.
type Observer func(StepEvent)

// TableResult is the outcome of executing one table's plan.
type TableResult struct {
	Table          string
	Backend        string
	Applied        []string
	AlreadyPresent []string
	Failed         []ColumnFailure
	Warnings       []DriftWarning
}

// Executor applies plans against a single backend.
type Executor struct {
	h        *backend.Handle
	observer Observer
}

// NewExecutor returns an Executor for h. observer may be nil.
func NewExecutor(h *backend.Handle, observer Observer) *Executor {
	return &Executor{h: h, observer: observer}
}

// Apply runs every step of plan in order. A failed step is recorded and the
// remaining steps still run. Each step re-reads the live schema immediately
// before issuing DDL, so a column that appeared since planning is counted as
// already present instead of being added twice.
func (e *Executor) Apply(ctx context.Context, plan *TablePlan) *TableResult {
	res := &TableResult{
		Table:          plan.Table,
		Backend:        e.h.Name(),
		Applied:        []string{},
		AlreadyPresent: append([]string{}, plan.AlreadyPresent...),
		Failed:         []ColumnFailure{},
		Warnings:       plan.Warnings,
	}

	for _, step := range plan.Steps {
		e.notify(StepEvent{Backend: e.h.Name(), Step: step, State: StatePending})

		if step.Op == OpCreateTable {
			e.createTable(ctx, step, res)
			continue
		}

		state, err := e.addColumn(ctx, step)
		switch state {
		case StateApplied:
			res.Applied = append(res.Applied, step.Column)
		case StateSkipped:
			res.AlreadyPresent = append(res.AlreadyPresent, step.Column)
		case StateFailed:
			res.Failed = append(res.Failed, ColumnFailure{Column: step.Column, Error: err.Error()})
		}
	}
	return res
}

func (e *Executor) addColumn(ctx context.Context, step Step) (StepState, error) {
	start := time.Now()

	actual, err := schema.Introspect(ctx, e.h, step.Table)
	if err != nil {
		return e.finish(step, StateFailed, err, start)
	}
	if actual.Has(step.Column) {
		e.log(step.Table).Debug("Column %s already present", step.Column)
		return e.finish(step, StateSkipped, nil, start)
	}

	stmt, err := AddColumnSQL(e.h, step.Table, step.Desired)
	if err != nil {
		return e.finish(step, StateFailed, &DDLError{Table: step.Table, Column: step.Column, Backend: e.h.Name(), Err: err}, start)
	}

	e.notify(StepEvent{Backend: e.h.Name(), Step: step, State: StateApplying})
	e.log(step.Table).Debug("Applying: %s", stmt)
	if _, err := e.h.Exec(ctx, stmt); err != nil {
		return e.finish(step, StateFailed, &DDLError{Table: step.Table, Column: step.Column, Backend: e.h.Name(), SQL: stmt, Err: err}, start)
	}
	e.log(step.Table).Info("Added column %s", step.Column)
	return e.finish(step, StateApplied, nil, start)
}

// createTable creates a missing table. If the table appeared since planning,
// the table is re-planned without creation and the resulting AddColumn steps
// are applied instead.
func (e *Executor) createTable(ctx context.Context, step Step, res *TableResult) {
	start := time.Now()
	desired := step.Schema

	exists, err := schema.Exists(ctx, e.h, step.Table)
	if err != nil {
		e.finish(step, StateFailed, err, start)
		res.Failed = append(res.Failed, failuresFor(desired, err)...)
		return
	}
	if exists {
		e.finish(step, StateSkipped, nil, start)
		replan := *desired
		replan.CreateIfMissing = false
		plan, err := PlanTable(ctx, e.h, &replan)
		if err != nil {
			res.Failed = append(res.Failed, failuresFor(desired, err)...)
			return
		}
		sub := e.Apply(ctx, plan)
		res.Applied = append(res.Applied, sub.Applied...)
		res.AlreadyPresent = append(res.AlreadyPresent, sub.AlreadyPresent...)
		res.Failed = append(res.Failed, sub.Failed...)
		res.Warnings = append(res.Warnings, sub.Warnings...)
		return
	}

	stmt, err := CreateTableSQL(e.h, desired)
	if err == nil {
		e.notify(StepEvent{Backend: e.h.Name(), Step: step, State: StateApplying})
		e.log(step.Table).Debug("Applying: %s", stmt)
		_, err = e.h.Exec(ctx, stmt)
	}
	if err != nil {
		ddlErr := &DDLError{Table: step.Table, Backend: e.h.Name(), SQL: stmt, Err: err}
		e.finish(step, StateFailed, ddlErr, start)
		res.Failed = append(res.Failed, failuresFor(desired, ddlErr)...)
		return
	}

	e.log(step.Table).Info("Created table")
	e.finish(step, StateApplied, nil, start)
	res.Applied = append(res.Applied, desired.ColumnNames()...)
}

func (e *Executor) log(table string) logging.Scope {
	return logging.Backend(e.h.Name()).Table(table)
}

func (e *Executor) finish(step Step, state StepState, err error, start time.Time) (StepState, error) {
	if state == StateFailed {
		e.log(step.Table).Error("Step %s failed: %v", step, err)
	}
	e.notify(StepEvent{Backend: e.h.Name(), Step: step, State: state, Err: err, Elapsed: time.Since(start)})
	return state, err
}

func (e *Executor) notify(ev StepEvent) {
	if e.observer != nil {
		e.observer(ev)
	}
}

func failuresFor(t *schema.TableSchema, err error) []ColumnFailure {
	failures := make([]ColumnFailure, len(t.Columns))
	for i, c := range t.Columns {
		failures[i] = ColumnFailure{Column: c.Name, Error: err.Error()}
	}
	return failures
}
