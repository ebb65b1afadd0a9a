// Package router owns the backend handles and decides which backend serves
// each logical table.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// UnroutableTableError is returned for a table with no routing entry.
type UnroutableTableError struct {
	Table string
}

func (e *UnroutableTableError) Error() string {
	return fmt.Sprintf("no backend owns table %q", e.Table)
}

// Router maps tables to backend handles. The mapping is fixed once Connect
// (or New plus Discover) returns; lookups never touch a backend.
type Router struct {
	handles []*backend.Handle
	byName  map[string]*backend.Handle

	mu      sync.RWMutex
	routing map[string]*backend.Handle
}

// New builds a Router over already opened handles. routing maps table names
// to handle names. The order of handles is the probe order used by Discover.
func New(routing map[string]string, handles ...*backend.Handle) (*Router, error) {
	r := &Router{
		handles: handles,
		byName:  make(map[string]*backend.Handle, len(handles)),
		routing: make(map[string]*backend.Handle, len(routing)),
	}
	for _, h := range handles {
		if _, dup := r.byName[h.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend %q", h.Name())
		}
		r.byName[h.Name()] = h
	}
	for table, name := range routing {
		h, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("table %s routed to unknown backend %q", table, name)
		}
		r.routing[table] = h
	}
	return r, nil
}

// Route returns the backend that owns table. It is a pure lookup: the
// returned handle may be unavailable, in which case every operation on it
// fails with *backend.BackendUnavailableError.
func (r *Router) Route(table string) (*backend.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.routing[table]
	if !ok {
		return nil, &UnroutableTableError{Table: table}
	}
	return h, nil
}

// Handles returns every backend in probe order.
func (r *Router) Handles() []*backend.Handle {
	return append([]*backend.Handle(nil), r.handles...)
}

// Handle returns the backend with the given name.
func (r *Router) Handle(name string) (*backend.Handle, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// Tables returns every routed table, sorted.
func (r *Router) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.routing))
	for t := range r.routing {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Discover pins an owner for each table that has no routing entry yet. The
// available backends are probed in order and the first one holding the
// table becomes its owner. A table found nowhere is assigned to the first
// available backend so it can still be created there. Tables already routed
// are left untouched.
func (r *Router) Discover(ctx context.Context, tables ...string) error {
	var errs []error
	for _, table := range tables {
		if _, err := r.Route(table); err == nil {
			continue
		}
		owner, err := r.probe(ctx, table)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.mu.Lock()
		// Another caller may have pinned it meanwhile; first pin wins.
		if _, ok := r.routing[table]; !ok {
			r.routing[table] = owner
		}
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (r *Router) probe(ctx context.Context, table string) (*backend.Handle, error) {
	var fallback *backend.Handle
	var probeErrs []error
	for _, h := range r.handles {
		if !h.Available() {
			continue
		}
		if fallback == nil {
			fallback = h
		}
		ok, err := schema.Exists(ctx, h, table)
		if err != nil {
			probeErrs = append(probeErrs, err)
			continue
		}
		if ok {
			logging.Backend(h.Name()).Table(table).Debug("Discovered table")
			return h, nil
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("discovering table %s: no backend available: %w", table, &UnroutableTableError{Table: table})
	}
	if len(probeErrs) > 0 {
		return nil, fmt.Errorf("discovering table %s: %w", table, errors.Join(probeErrs...))
	}
	logging.Warn("Table %s not found on any backend, assigning it to %s", table, fallback.Name())
	return fallback, nil
}

// Execute runs a canonical query against the owner of table and returns
// the result rows.
func (r *Router) Execute(ctx context.Context, canonical string, params []any, table string) ([]backend.Row, error) {
	h, err := r.Route(table)
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, canonical, params...)
}

// Exec runs a canonical statement against the owner of table and returns
// the number of rows affected.
func (r *Router) Exec(ctx context.Context, canonical string, params []any, table string) (int64, error) {
	h, err := r.Route(table)
	if err != nil {
		return 0, err
	}
	return h.Exec(ctx, canonical, params...)
}

// Close closes every backend. All closes are attempted; failures are joined.
func (r *Router) Close() error {
	var errs []error
	for _, h := range r.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
