package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
)

// BackfillRule fills Default into rows of Table where Column is NULL.
type BackfillRule struct {
	Table   string `json:"table" yaml:"table"`
	Column  string `json:"column" yaml:"column"`
	Default any    `json:"default" yaml:"default"`
}

// Validate checks that the rule names a column and carries a value.
func (r BackfillRule) Validate() error {
	if r.Table == "" || r.Column == "" {
		return errors.New("backfill rule needs table and column")
	}
	if r.Default == nil {
		return fmt.Errorf("backfill %s.%s: default value is required", r.Table, r.Column)
	}
	return nil
}

// BackfillError reports a backfill update that failed.
type BackfillError struct {
	Table   string
	Column  string
	Backend string
	Err     error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("backfilling %s.%s on %s: %v", e.Table, e.Column, e.Backend, e.Err)
}

func (e *BackfillError) Unwrap() error {
	return e.Err
}

// BackfillSQL returns the canonical update for a rule. Only rows with no
// value are touched, so a row explicitly set to the default keeps its value
// and a second run changes nothing.
func BackfillSQL(h *backend.Handle, table, column string) string {
	col := h.Quote(column)
	return fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IS NULL", h.Table(table), col, col)
}

// Backfill applies rule on h and returns the number of rows changed.
func Backfill(ctx context.Context, h *backend.Handle, rule BackfillRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	n, err := h.Exec(ctx, BackfillSQL(h, rule.Table, rule.Column), rule.Default)
	if err != nil {
		return 0, &BackfillError{Table: rule.Table, Column: rule.Column, Backend: h.Name(), Err: err}
	}
	if n > 0 {
		logging.Backend(h.Name()).Table(rule.Table).Info("Backfilled %d rows of %s", n, rule.Column)
	} else {
		logging.Backend(h.Name()).Table(rule.Table).Debug("Backfill of %s: nothing to do", rule.Column)
	}
	return n, nil
}
