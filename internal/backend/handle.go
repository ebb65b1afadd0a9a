package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
)

// Handle identifies one backend instance and owns its pool for the
// lifetime of the process. A Handle is never nil once constructed; a
// backend that could not be reached is represented by an unavailable
// Handle that rejects every operation with BackendUnavailableError.
type Handle struct {
	name   string
	driver string
	kind   dialect.Kind
	caps   dialect.Capabilities
	schema string

	mu     sync.RWMutex
	conn   Conn
	cause  error
	closed bool
}

// NewHandle wraps an open connection.
func NewHandle(name string, kind dialect.Kind, driverName, schema string, conn Conn) *Handle {
	return &Handle{
		name:   name,
		driver: driverName,
		kind:   kind,
		caps:   dialect.CapabilitiesFor(kind),
		schema: schema,
		conn:   conn,
	}
}

// Unavailable returns a Handle for a backend that could not be opened.
func Unavailable(name string, kind dialect.Kind, driverName, schema string, cause error) *Handle {
	h := NewHandle(name, kind, driverName, schema, nil)
	h.cause = cause
	return h
}

// Open resolves driverName in the registry and opens the backend. Failure is
// not returned as an error: the resulting Handle is marked unavailable with
// the failure recorded as its cause.
func Open(ctx context.Context, name, driverName, schema string, opts Options) *Handle {
	d, err := driverFor(name, driverName)
	if err != nil {
		kind, kerr := dialect.ParseKind(name)
		if kerr != nil {
			kind, _ = dialect.ParseKind(driverName)
		}
		return Unavailable(name, kind, driverName, schema, err)
	}
	if opts.DSN == "" {
		return Unavailable(name, d.Kind(), d.Name(), schema, ErrNotConfigured)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := d.Open(openCtx, opts)
	if err != nil {
		logging.Warn("Backend %s (%s) unavailable after %s: %v", name, d.Name(), time.Since(start).Round(time.Millisecond), err)
		return Unavailable(name, d.Kind(), d.Name(), schema, err)
	}
	logging.Debug("Backend %s (%s) connected in %s", name, d.Name(), time.Since(start).Round(time.Millisecond))
	return NewHandle(name, d.Kind(), d.Name(), schema, conn)
}

// Name returns the logical backend name (e.g., "relational").
func (h *Handle) Name() string { return h.name }

// Driver returns the primary name of the driver that opened the backend.
func (h *Handle) Driver() string { return h.driver }

// Kind returns the backend family.
func (h *Handle) Kind() dialect.Kind { return h.kind }

// Capabilities returns the backend's capability flags.
func (h *Handle) Capabilities() dialect.Capabilities { return h.caps }

// Schema returns the namespace tables live in; empty for the embedded kind.
func (h *Handle) Schema() string { return h.schema }

// Table returns the quoted, schema-qualified reference to a table.
func (h *Handle) Table(name string) string {
	return dialect.QualifyTable(h.kind, h.schema, name)
}

// Quote quotes an identifier for this backend.
func (h *Handle) Quote(name string) string {
	return dialect.QuoteIdentifier(h.kind, name)
}

// Available reports whether the backend can serve queries.
func (h *Handle) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil && !h.closed
}

// Err returns why the backend is unavailable, or nil.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unavailable()
}

func (h *Handle) unavailable() error {
	switch {
	case h.closed:
		return &BackendUnavailableError{Backend: h.name, Kind: h.kind, Cause: ErrClosed}
	case h.conn == nil:
		return &BackendUnavailableError{Backend: h.name, Kind: h.kind, Cause: h.cause}
	}
	return nil
}

func (h *Handle) acquire() (Conn, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.unavailable(); err != nil {
		return nil, err
	}
	return h.conn, nil
}

// Query translates a canonical query to this backend's placeholder style
// and returns the result rows.
func (h *Handle) Query(ctx context.Context, canonical string, params ...any) ([]Row, error) {
	conn, err := h.acquire()
	if err != nil {
		return nil, err
	}
	query, err := dialect.Rebind(h.caps.PlaceholderStyle, canonical, len(params))
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, query, params...)
}

// Exec translates a canonical statement and returns the rows affected.
func (h *Handle) Exec(ctx context.Context, canonical string, params ...any) (int64, error) {
	conn, err := h.acquire()
	if err != nil {
		return 0, err
	}
	query, err := dialect.Rebind(h.caps.PlaceholderStyle, canonical, len(params))
	if err != nil {
		return 0, err
	}
	return conn.Exec(ctx, query, params...)
}

// Ping checks reachability of an available backend.
func (h *Handle) Ping(ctx context.Context) error {
	conn, err := h.acquire()
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// Close shuts the pool down. Closing an unavailable or already closed
// Handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.conn == nil {
		h.closed = true
		return nil
	}
	h.closed = true
	if err := h.conn.Close(); err != nil {
		return fmt.Errorf("closing backend %s: %w", h.name, err)
	}
	return nil
}
