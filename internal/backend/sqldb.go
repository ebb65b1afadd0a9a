package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLConn adapts a database/sql pool to Conn.
type SQLConn struct {
	db *sql.DB
}

// NewSQLConn wraps db. The SQLConn takes ownership and closes db on Close.
func NewSQLConn(db *sql.DB) *SQLConn {
	return &SQLConn{db: db}
}

// DB returns the underlying pool.
func (c *SQLConn) DB() *sql.DB {
	return c.db
}

// Query runs query on a connection held only for the duration of the call.
func (c *SQLConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return ScanRows(rows)
}

// Exec runs query on a connection held only for the duration of the call.
func (c *SQLConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}

// Ping verifies a connection can be established.
func (c *SQLConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the pool.
func (c *SQLConn) Close() error {
	return c.db.Close()
}

// ScanRows drains rows into Row maps. Byte slices read from non-binary
// columns are returned as strings.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	types, _ := rows.ColumnTypes()

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			dbType := ""
			if i < len(types) && types[i] != nil {
				dbType = types[i].DatabaseTypeName()
			}
			row[col] = normalizeValue(vals[i], dbType)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func normalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "BLOB", "BYTEA":
		return b
	}
	return string(b)
}
