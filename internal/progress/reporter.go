// Package progress reports migration step progress, either as a terminal
// progress bar or as JSON lines for automation.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/migrate"
)

// StepUpdate is one JSON progress line.
type StepUpdate struct {
	Timestamp string `json:"timestamp"`
	Backend   string `json:"backend"`
	Table     string `json:"table"`
	Column    string `json:"column,omitempty"`
	Operation string `json:"operation"`
	State     string `json:"state"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Reporter receives step events.
type Reporter interface {
	// Observe handles one step transition.
	Observe(ev migrate.StepEvent)
	// Finish flushes and releases resources.
	Finish()
}

// JSONReporter writes one line per terminal step transition.
type JSONReporter struct {
	writer io.Writer
	mu     sync.Mutex
	closed bool
}

// NewJSONReporter creates a JSON reporter writing to writer (stderr if nil).
func NewJSONReporter(writer io.Writer) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{writer: writer}
}

// Observe emits terminal transitions and the start of DDL.
func (r *JSONReporter) Observe(ev migrate.StepEvent) {
	if ev.State == migrate.StatePending {
		return
	}

	update := StepUpdate{
		Timestamp: time.Now().Format(time.RFC3339),
		Backend:   ev.Backend,
		Table:     ev.Step.Table,
		Column:    ev.Step.Column,
		Operation: string(ev.Step.Op),
		State:     ev.State.String(),
		ElapsedMs: ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		update.Error = ev.Err.Error()
	}

	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// Finish marks the reporter as closed.
func (r *JSONReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// NullReporter is a no-op reporter for when progress reporting is disabled.
type NullReporter struct{}

// Observe does nothing.
func (NullReporter) Observe(migrate.StepEvent) {}

// Finish does nothing.
func (NullReporter) Finish() {}

var (
	_ Reporter = (*JSONReporter)(nil)
	_ Reporter = (*Tracker)(nil)
	_ Reporter = NullReporter{}
)

// ForMode returns the reporter for a --progress mode. "auto" draws a bar
// only when stderr is a terminal; "bar", "json" and "none" force a choice.
func ForMode(mode string) (Reporter, error) {
	switch mode {
	case "", "auto":
		if IsTerminal(os.Stderr) {
			return New(os.Stderr), nil
		}
		return NullReporter{}, nil
	case "bar":
		return New(os.Stderr), nil
	case "json":
		return NewJSONReporter(os.Stderr), nil
	case "none":
		return NullReporter{}, nil
	}
	return nil, fmt.Errorf("unknown progress mode %q (want auto, bar, json or none)", mode)
}
