// Package migrate plans and applies additive schema changes and backfills
// default values into existing rows.
package migrate

import (
	"context"
	"fmt"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// Operation is the kind of change a Step makes.
type Operation string

const (
	OpAddColumn   Operation = "add_column"
	OpCreateTable Operation = "create_table"
)

// Step is one additive change against the backend owning Table. Steps are
// produced fresh by every plan and discarded after execution.
type Step struct {
	Table   string
	Column  string
	Op      Operation
	Desired schema.ColumnDescriptor

	// Schema is the full desired table for OpCreateTable.
	Schema *schema.TableSchema
}

func (s Step) String() string {
	if s.Op == OpCreateTable {
		return fmt.Sprintf("create table %s", s.Table)
	}
	return fmt.Sprintf("add column %s.%s", s.Table, s.Column)
}

// DriftWarning reports a column that exists but differs from its desired
// declaration. Drift is never corrected automatically.
type DriftWarning struct {
	Table   string `json:"table" yaml:"table"`
	Column  string `json:"column" yaml:"column"`
	Desired string `json:"desired" yaml:"desired"`
	Actual  string `json:"actual" yaml:"actual"`
	Reason  string `json:"reason" yaml:"reason"`
}

func (w DriftWarning) String() string {
	return fmt.Sprintf("%s.%s: %s (desired %s, actual %s)", w.Table, w.Column, w.Reason, w.Desired, w.Actual)
}

// TablePlan is the step list for one desired table.
type TablePlan struct {
	Table          string
	Backend        string
	Steps          []Step
	AlreadyPresent []string
	Warnings       []DriftWarning
}

// PlanTable compares desired against the live schema on h. Desired columns
// absent from the table (matched by exact name) become AddColumn steps in
// declared order. Columns present only on the backend are left alone.
//
// A missing table produces a single CreateTable step when desired has
// CreateIfMissing set; otherwise the *schema.SchemaIntrospectionError is
// returned.
func PlanTable(ctx context.Context, h *backend.Handle, desired *schema.TableSchema) (*TablePlan, error) {
	plan := &TablePlan{Table: desired.Name, Backend: h.Name()}

	actual, err := schema.Introspect(ctx, h, desired.Name)
	if err != nil {
		if schema.IsMissingTable(err) && desired.CreateIfMissing {
			plan.Steps = []Step{{Table: desired.Name, Op: OpCreateTable, Schema: desired}}
			return plan, nil
		}
		return nil, err
	}

	for _, want := range desired.Columns {
		have, ok := actual.Column(want.Name)
		if !ok {
			plan.Steps = append(plan.Steps, Step{
				Table:   desired.Name,
				Column:  want.Name,
				Op:      OpAddColumn,
				Desired: want,
			})
			continue
		}
		plan.AlreadyPresent = append(plan.AlreadyPresent, want.Name)
		plan.Warnings = append(plan.Warnings, drift(h.Kind(), desired.Name, want, have)...)
	}
	return plan, nil
}

func drift(k dialect.Kind, table string, want, have schema.ColumnDescriptor) []DriftWarning {
	var warnings []DriftWarning
	if !dialect.Compatible(k, want.Type, have.Type) {
		warnings = append(warnings, DriftWarning{
			Table:   table,
			Column:  want.Name,
			Desired: string(want.Type),
			Actual:  have.NativeType,
			Reason:  "type mismatch",
		})
	}
	// Primary keys are implicitly NOT NULL; only flag declared nullability.
	if want.Nullable != have.Nullable && !have.PrimaryKey {
		warnings = append(warnings, DriftWarning{
			Table:   table,
			Column:  want.Name,
			Desired: nullability(want.Nullable),
			Actual:  nullability(have.Nullable),
			Reason:  "nullability mismatch",
		})
	}
	return warnings
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}
