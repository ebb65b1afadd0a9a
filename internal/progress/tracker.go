package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/migrate"
)

// Tracker draws a progress bar of migration steps. The step total grows as
// backends plan their tables, so the bar starts indeterminate.
type Tracker struct {
	bar       *progressbar.ProgressBar
	startTime time.Time

	mu      sync.Mutex
	total   int64
	done    int64
	failed  int64
	current map[string]string // backend -> table being migrated
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// New creates a tracker drawing to w.
func New(w io.Writer) *Tracker {
	return &Tracker{
		startTime: time.Now(),
		current:   make(map[string]string),
		bar: progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Migrating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Observe is a migrate.Observer that advances the bar.
func (t *Tracker) Observe(ev migrate.StepEvent) {
	t.mu.Lock()
	switch {
	case ev.State == migrate.StatePending:
		t.total++
		t.current[ev.Backend] = ev.Step.Table
		t.bar.ChangeMax64(t.total)
	case ev.State.Terminal():
		t.done++
		if ev.State == migrate.StateFailed {
			t.failed++
		}
	}
	desc := t.describe()
	done := t.done
	t.mu.Unlock()

	t.bar.Describe(desc)
	t.bar.Set64(done)
}

// describe must be called with mu held.
func (t *Tracker) describe() string {
	switch len(t.current) {
	case 0:
		return "Migrating"
	case 1:
		for _, table := range t.current {
			return fmt.Sprintf("Migrating %s", table)
		}
	}
	return fmt.Sprintf("Migrating (%d backends)", len(t.current))
}

// Done reports completed and failed step counts.
func (t *Tracker) Done() (done, failed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done, t.failed
}

// Finish completes the bar and logs a summary line.
func (t *Tracker) Finish() {
	t.bar.Finish()

	done, failed := t.Done()
	logging.Info("Schema steps complete: %d steps (%d failed) in %s",
		done, failed, time.Since(t.startTime).Round(time.Millisecond))
}
