package schema

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

// SchemaIntrospectionError reports that a table's structure could not be
// read. Missing is set when the table does not exist on the backend.
type SchemaIntrospectionError struct {
	Table   string
	Backend string
	Missing bool
	Err     error
}

func (e *SchemaIntrospectionError) Error() string {
	if e.Missing {
		return fmt.Sprintf("table %s does not exist on backend %s", e.Table, e.Backend)
	}
	return fmt.Sprintf("introspecting table %s on backend %s: %v", e.Table, e.Backend, e.Err)
}

func (e *SchemaIntrospectionError) Unwrap() error {
	return e.Err
}

// IsMissingTable reports whether err says the table does not exist.
func IsMissingTable(err error) bool {
	var sErr *SchemaIntrospectionError
	return errors.As(err, &sErr) && sErr.Missing
}

const relationalColumnsQuery = `
	SELECT
		column_name::text AS column_name,
		data_type::text AS data_type,
		udt_name::text AS udt_name,
		CASE WHEN is_nullable = 'YES' THEN 1 ELSE 0 END AS nullable,
		column_default::text AS column_default
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position`

const relationalPrimaryKeyQuery = `
	SELECT a.attname::text AS column_name
	FROM pg_index i
	JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	JOIN pg_class c ON c.oid = i.indrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE i.indisprimary AND n.nspname = ? AND c.relname = ?`

const embeddedColumnsQuery = `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

// Introspect returns the structure of table as it currently exists on h.
// A table that does not exist yields a *SchemaIntrospectionError with
// Missing set.
func Introspect(ctx context.Context, h *backend.Handle, table string) (*TableSchema, error) {
	var (
		ts  *TableSchema
		err error
	)
	switch h.Kind() {
	case dialect.KindRelational:
		ts, err = introspectRelational(ctx, h, table)
	case dialect.KindEmbedded:
		ts, err = introspectEmbedded(ctx, h, table)
	default:
		err = fmt.Errorf("unsupported backend kind %q", h.Kind())
	}
	if err != nil {
		return nil, &SchemaIntrospectionError{Table: table, Backend: h.Name(), Err: err}
	}
	if len(ts.Columns) == 0 {
		return nil, &SchemaIntrospectionError{Table: table, Backend: h.Name(), Missing: true}
	}
	return ts, nil
}

// Exists reports whether table is present on h.
func Exists(ctx context.Context, h *backend.Handle, table string) (bool, error) {
	_, err := Introspect(ctx, h, table)
	switch {
	case err == nil:
		return true, nil
	case IsMissingTable(err):
		return false, nil
	}
	return false, err
}

func introspectRelational(ctx context.Context, h *backend.Handle, table string) (*TableSchema, error) {
	schemaName := h.Schema()
	if schemaName == "" {
		schemaName = "public"
	}
	rows, err := h.Query(ctx, relationalColumnsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	ts := &TableSchema{Name: table}
	if len(rows) == 0 {
		return ts, nil
	}

	pkRows, err := h.Query(ctx, relationalPrimaryKeyQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("querying primary key: %w", err)
	}
	pk := make(map[string]bool, len(pkRows))
	for _, r := range pkRows {
		pk[asString(r["column_name"])] = true
	}

	for _, r := range rows {
		native := asString(r["data_type"])
		// Arrays and enums report a generic data_type; udt_name carries the real one.
		if native == "USER-DEFINED" || native == "ARRAY" || native == "" {
			native = asString(r["udt_name"])
		}
		name := asString(r["column_name"])
		c := ColumnDescriptor{
			Name:       name,
			Type:       dialect.InferType(dialect.KindRelational, native),
			NativeType: native,
			Nullable:   asInt64(r["nullable"]) == 1,
			PrimaryKey: pk[name],
		}
		if def, ok := r["column_default"]; ok && def != nil {
			c.Default = &Default{Expr: asString(def)}
		}
		ts.Columns = append(ts.Columns, c)
	}
	return ts, nil
}

func introspectEmbedded(ctx context.Context, h *backend.Handle, table string) (*TableSchema, error) {
	rows, err := h.Query(ctx, embeddedColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("reading table info: %w", err)
	}
	ts := &TableSchema{Name: table}
	for _, r := range rows {
		native := asString(r["type"])
		isPK := asInt64(r["pk"]) > 0
		c := ColumnDescriptor{
			Name:       asString(r["name"]),
			Type:       dialect.InferType(dialect.KindEmbedded, native),
			NativeType: native,
			// SQLite reports notnull=0 for INTEGER PRIMARY KEY even though it can never hold NULL.
			Nullable:   asInt64(r["notnull"]) == 0 && !isPK,
			PrimaryKey: isPK,
		}
		if def, ok := r["dflt_value"]; ok && def != nil {
			c.Default = &Default{Expr: asString(def)}
		}
		ts.Columns = append(ts.Columns, c)
	}
	return ts, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n
	}
	return 0
}
