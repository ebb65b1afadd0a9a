// Package postgres provides the relational-server drivers. It registers
// "pgx" (pgxpool) and "pq" (database/sql over lib/pq) on import.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

func init() {
	backend.Register(&Driver{})
	backend.Register(&PQDriver{})
}

// Driver implements backend.Driver on a pgx connection pool.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "pgx"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"postgres", "postgresql", "pg"}
}

// Kind returns the relational-server kind.
func (d *Driver) Kind() dialect.Kind {
	return dialect.KindRelational
}

// Open creates the pool and pings it within ctx.
func (d *Driver) Open(ctx context.Context, opts backend.Options) (backend.Conn, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
		poolCfg.MinConns = int32(opts.MaxConns / 4)
	}
	if opts.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PoolConn{pool: pool}, nil
}

// PoolConn implements backend.Conn on a pgxpool.
type PoolConn struct {
	pool *pgxpool.Pool
}

// Pool returns the underlying pgxpool.
func (p *PoolConn) Pool() *pgxpool.Pool {
	return p.pool
}

// Query acquires one pooled connection, runs query, and releases it.
func (p *PoolConn) Query(ctx context.Context, query string, args ...any) ([]backend.Row, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []backend.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(backend.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Exec acquires one pooled connection, runs query, and releases it.
func (p *PoolConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping tests the connection to the database.
func (p *PoolConn) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes all connections in the pool.
func (p *PoolConn) Close() error {
	p.pool.Close()
	return nil
}
