package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ColumnFailure names a column whose step failed and why.
type ColumnFailure struct {
	Column string `json:"column" yaml:"column"`
	Error  string `json:"error" yaml:"error"`
}

// TableReport is the outcome for one table.
type TableReport struct {
	Backend        string          `json:"backend" yaml:"backend"`
	Applied        []string        `json:"applied" yaml:"applied"`
	AlreadyPresent []string        `json:"already_present" yaml:"already_present"`
	Failed         []ColumnFailure `json:"failed" yaml:"failed"`
	Planned        []string        `json:"planned,omitempty" yaml:"planned,omitempty"`
	Warnings       []DriftWarning  `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Error is set when the table could not be planned at all (missing
	// table, unreachable backend).
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failures counts the failed columns plus a table-level error.
func (t *TableReport) Failures() int {
	n := len(t.Failed)
	if t.Error != "" {
		n++
	}
	return n
}

// BackfillResult is the outcome of one backfill rule.
type BackfillResult struct {
	Table       string `json:"table" yaml:"table"`
	Column      string `json:"column" yaml:"column"`
	Backend     string `json:"backend" yaml:"backend"`
	RowsChanged int64  `json:"rows_changed" yaml:"rows_changed"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the result of a migration run. It is safe for concurrent
// recording; encoding should happen after the run completes.
type Report struct {
	RunID      string                  `json:"run_id" yaml:"run_id"`
	DryRun     bool                    `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	StartedAt  time.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time               `json:"finished_at" yaml:"finished_at"`
	PerTable   map[string]*TableReport `json:"per_table" yaml:"per_table"`
	Backfilled []BackfillResult        `json:"backfilled" yaml:"backfilled"`

	mu    sync.Mutex
	order []string
}

// NewReport returns an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID:      uuid.New().String(),
		StartedAt:  time.Now().UTC(),
		PerTable:   make(map[string]*TableReport),
		Backfilled: []BackfillResult{},
	}
}

// Table returns the report entry for name, creating it if needed. Tables
// are listed in creation order by the text renderer.
func (r *Report) Table(name, backendName string) *TableReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tableLocked(name, backendName)
}

func (r *Report) tableLocked(name, backendName string) *TableReport {
	if t, ok := r.PerTable[name]; ok {
		return t
	}
	t := &TableReport{
		Backend:        backendName,
		Applied:        []string{},
		AlreadyPresent: []string{},
		Failed:         []ColumnFailure{},
	}
	r.PerTable[name] = t
	r.order = append(r.order, name)
	return t
}

// RecordResult stores an executed table plan.
func (r *Report) RecordResult(res *TableResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tableLocked(res.Table, res.Backend)
	t.Applied = append(t.Applied, res.Applied...)
	t.AlreadyPresent = append(t.AlreadyPresent, res.AlreadyPresent...)
	t.Failed = append(t.Failed, res.Failed...)
	t.Warnings = append(t.Warnings, res.Warnings...)
}

// RecordPlan stores a plan without execution.
func (r *Report) RecordPlan(plan *TablePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tableLocked(plan.Table, plan.Backend)
	t.AlreadyPresent = append(t.AlreadyPresent, plan.AlreadyPresent...)
	t.Warnings = append(t.Warnings, plan.Warnings...)
	for _, s := range plan.Steps {
		t.Planned = append(t.Planned, s.String())
	}
}

// RecordTableError marks a table that could not be planned.
func (r *Report) RecordTableError(table, backendName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tableLocked(table, backendName).Error = err.Error()
}

// RecordBackfill appends a backfill outcome.
func (r *Report) RecordBackfill(res BackfillResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Backfilled = append(r.Backfilled, res)
}

// Finish stamps the completion time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
}

// Failed counts failed columns, table-level errors and failed backfills.
func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.PerTable {
		n += t.Failures()
	}
	for _, b := range r.Backfilled {
		if b.Error != "" {
			n++
		}
	}
	return n
}

// OK reports whether the run had no failures.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// Applied returns the total number of columns applied.
func (r *Report) Applied() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.PerTable {
		n += len(t.Applied)
	}
	return n
}

// RowsBackfilled returns the total rows changed by backfill.
func (r *Report) RowsBackfilled() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.Backfilled {
		n += b.RowsChanged
	}
	return n
}

// Duration is the time between start and finish.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Tables returns table names in the order they were first recorded.
func (r *Report) Tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Write encodes the report in the given format: json, yaml or text.
func (r *Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		return r.WriteJSON(w)
	case "yaml", "yml":
		return r.WriteYAML(w)
	case "text":
		return r.WriteText(w)
	}
	return fmt.Errorf("unknown report format %q (want json, yaml or text)", format)
}

// WriteJSON writes indented JSON. Map keys are sorted by encoding/json, so
// output is stable for a given outcome.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText writes a human-oriented summary.
func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder

	title := "Migration report"
	if r.DryRun {
		title = "Migration plan"
	}
	sb.WriteString(styleTitle.Render(fmt.Sprintf("%s %s", title, r.RunID)) + "\n\n")

	tables := r.Tables()
	if len(tables) == 0 {
		// Reports decoded from JSON have no order.
		for name := range r.PerTable {
			tables = append(tables, name)
		}
		sort.Strings(tables)
	}

	for _, name := range tables {
		t := r.PerTable[name]
		sb.WriteString(styleTable.Render(name) + fmt.Sprintf(" (%s)\n", t.Backend))
		if t.Error != "" {
			sb.WriteString("  " + styleLabel.Render("error") + styleError.Render(t.Error) + "\n")
		}
		if r.DryRun {
			sb.WriteString("  " + styleLabel.Render("planned") + list(t.Planned) + "\n")
		} else {
			sb.WriteString("  " + styleLabel.Render("applied") + list(t.Applied) + "\n")
		}
		sb.WriteString("  " + styleLabel.Render("already present") + list(t.AlreadyPresent) + "\n")
		for _, f := range t.Failed {
			sb.WriteString("  " + styleLabel.Render("failed") + styleError.Render(f.Column+": "+f.Error) + "\n")
		}
		for _, wn := range t.Warnings {
			sb.WriteString("  " + styleLabel.Render("warning") + styleWarning.Render(wn.String()) + "\n")
		}
	}

	if len(r.Backfilled) > 0 {
		sb.WriteString("\n" + styleTable.Render("Backfill") + "\n")
		for _, b := range r.Backfilled {
			line := fmt.Sprintf("%s.%s: %d rows", b.Table, b.Column, b.RowsChanged)
			if b.Error != "" {
				line = styleError.Render(fmt.Sprintf("%s.%s: %s", b.Table, b.Column, b.Error))
			}
			sb.WriteString("  " + line + "\n")
		}
	}

	sb.WriteString("\n")
	if failed := r.Failed(); failed > 0 {
		sb.WriteString(styleError.Render(fmt.Sprintf("FAILED: %d failure(s)", failed)))
	} else {
		sb.WriteString(styleSuccess.Render("OK"))
	}
	sb.WriteString(fmt.Sprintf(" in %s\n", r.Duration().Round(time.Millisecond)))

	_, err := io.WriteString(w, sb.String())
	return err
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
