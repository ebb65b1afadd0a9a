// Package sqlite provides the embedded-file driver on modernc.org/sqlite.
// It registers itself with the backend registry on import.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	_ "modernc.org/sqlite"
)

func init() {
	backend.Register(&Driver{})
}

// Driver implements backend.Driver for single-file SQLite databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlite3", "embedded"}
}

// Kind returns the embedded-file kind.
func (d *Driver) Kind() dialect.Kind {
	return dialect.KindEmbedded
}

// Open opens the database file, creating its directory if needed, and
// verifies it with a ping.
func (d *Driver) Open(ctx context.Context, opts backend.Options) (backend.Conn, error) {
	path := opts.DSN
	inMemory := isMemory(path)
	if !inMemory {
		if dir := filepath.Dir(filePart(path)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", BuildDSN(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	if inMemory {
		// Each connection to :memory: is a separate database.
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return backend.NewSQLConn(db), nil
}

// BuildDSN appends the pragmas every connection runs on open: WAL
// journaling and a busy timeout so concurrent writers wait instead of failing.
func BuildDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout.Milliseconds())
	if !isMemory(path) {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	return path + sep + pragmas
}

func filePart(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func isMemory(path string) bool {
	p := filePart(path)
	return p == ":memory:" || strings.Contains(path, "mode=memory")
}
