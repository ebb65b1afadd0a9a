// Package backend owns the connections to the two stores that hold the
// dataset. Each store is represented by a Handle wrapping a pooled Conn
// opened through a registered Driver.
//
// To add a driver:
// 1. Create a package under internal/backend/<name>/
// 2. Implement the Driver interface
// 3. Register via init(): backend.Register(&MyDriver{})
package backend

import (
	"context"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Conn is a pooled connection to one backend. Every call acquires a single
// connection for its own duration and releases it before returning, on
// success and on error alike. Implementations never hand out connections.
type Conn interface {
	// Query runs a statement in the backend's native placeholder syntax and
	// returns all result rows in order.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// Exec runs a statement and returns the number of rows affected.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the pool.
	Close() error
}

// Options are the connection parameters handed to a Driver.
type Options struct {
	// DSN is the connection string (URL for relational drivers, file path
	// for the embedded driver).
	DSN string

	// MaxConns caps the pool size. Zero selects the driver default.
	MaxConns int

	// ConnectTimeout bounds connection establishment including the initial ping.
	ConnectTimeout time.Duration

	// BusyTimeout is how long the embedded driver waits on a locked database.
	BusyTimeout time.Duration
}

// Driver opens connections for one database engine.
type Driver interface {
	// Name returns the primary driver name (e.g., "pgx", "sqlite").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Kind returns the backend family the driver connects to.
	Kind() dialect.Kind

	// Open establishes a pool and verifies it with a ping.
	Open(ctx context.Context, opts Options) (Conn, error)
}
