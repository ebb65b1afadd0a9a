package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// PQDriver implements backend.Driver on database/sql with lib/pq.
type PQDriver struct{}

// Name returns the primary driver name.
func (d *PQDriver) Name() string {
	return "pq"
}

// Aliases returns alternative names for this driver.
func (d *PQDriver) Aliases() []string {
	return []string{"lib/pq"}
}

// Kind returns the relational-server kind.
func (d *PQDriver) Kind() dialect.Kind {
	return dialect.KindRelational
}

// Open opens the pool and pings it within ctx.
func (d *PQDriver) Open(ctx context.Context, opts backend.Options) (backend.Conn, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(maxConns/4, 1))
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return backend.NewSQLConn(db), nil
}
