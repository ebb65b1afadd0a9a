package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	_ "github.com/johndauphine/dualstore-migrate/internal/backend/postgres"
	_ "github.com/johndauphine/dualstore-migrate/internal/backend/sqlite"
	"github.com/johndauphine/dualstore-migrate/internal/config"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
)

// ErrNoBackendAvailable is wrapped by Connect when neither backend could be
// reached.
var ErrNoBackendAvailable = errors.New("no backend reachable")

// Connect opens both backends concurrently, each bounded by its own connect
// timeout. A backend that cannot be reached is kept as an unavailable handle
// so its tables fail fast while the other backend keeps serving. Connect
// fails only when no backend is reachable.
func Connect(ctx context.Context, cfg *config.Config) (*Router, error) {
	type spec struct {
		name, driver, schema string
		opts                 backend.Options
	}
	specs := []spec{
		{
			name:   config.BackendRelational,
			driver: cfg.Relational.Driver,
			schema: cfg.Relational.Schema,
			opts: backend.Options{
				DSN:            cfg.RelationalDSN(),
				MaxConns:       cfg.Relational.MaxConns,
				ConnectTimeout: cfg.Relational.ConnectTimeout,
			},
		},
		{
			name:   config.BackendEmbedded,
			driver: "sqlite",
			opts: backend.Options{
				DSN:            cfg.Embedded.Path,
				MaxConns:       cfg.Embedded.MaxConns,
				ConnectTimeout: cfg.Embedded.ConnectTimeout,
				BusyTimeout:    cfg.Embedded.BusyTimeout,
			},
		},
	}

	handles := make([]*backend.Handle, len(specs))
	var wg sync.WaitGroup
	for i, s := range specs {
		wg.Add(1)
		go func(i int, s spec) {
			defer wg.Done()
			handles[i] = backend.Open(ctx, s.name, s.driver, s.schema, s.opts)
		}(i, s)
	}
	wg.Wait()

	var errs []error
	for _, h := range handles {
		if h.Available() {
			logging.Info("Backend %s ready (%s)", h.Name(), h.Driver())
			continue
		}
		if errors.Is(h.Err(), backend.ErrNotConfigured) {
			logging.Debug("Backend %s not configured", h.Name())
		}
		errs = append(errs, h.Err())
	}
	if len(errs) == len(handles) {
		return nil, fmt.Errorf("%w: %w", ErrNoBackendAvailable, errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		for _, h := range handles {
			h.Close()
		}
		return nil, err
	}

	r, err := New(cfg.Routing, handles...)
	if err != nil {
		for _, h := range handles {
			h.Close()
		}
		return nil, err
	}
	for _, table := range r.Tables() {
		if h, _ := r.Route(table); !h.Available() {
			logging.Warn("Table %s is owned by unavailable backend %s", table, h.Name())
		}
	}

	if len(cfg.Discover) > 0 {
		if err := r.Discover(ctx, cfg.Discover...); err != nil {
			logging.Warn("Table discovery incomplete: %v", err)
		}
	}
	return r, nil
}
