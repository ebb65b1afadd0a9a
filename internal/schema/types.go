// Package schema describes table structure in a backend-independent way and
// reads the structure currently present on a backend.
package schema

import (
	"errors"
	"fmt"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

// Default is a column default. Exactly one of Value or Expr is meaningful:
// Value is rendered as a literal, Expr is emitted verbatim (e.g.,
// CURRENT_TIMESTAMP). Introspected defaults always use Expr.
type Default struct {
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
	Expr  string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// SQL renders the default for inline use in DDL on the given kind.
func (d *Default) SQL(k dialect.Kind) (string, error) {
	if d.Expr != "" {
		return d.Expr, nil
	}
	return dialect.Literal(k, d.Value)
}

func (d *Default) String() string {
	if d == nil {
		return ""
	}
	if d.Expr != "" {
		return d.Expr
	}
	return fmt.Sprint(d.Value)
}

// ColumnDescriptor describes one column.
type ColumnDescriptor struct {
	Name string `json:"name" yaml:"name"`

	// Type is the semantic type. For introspected columns it is inferred from
	// NativeType and may be TypeUnknown.
	Type dialect.Type `json:"type" yaml:"type"`

	// NativeType is the backend's own type name, kept opaque. Empty for
	// desired columns.
	NativeType string `json:"native_type,omitempty" yaml:"native_type,omitempty"`

	Nullable   bool     `json:"nullable" yaml:"nullable"`
	Default    *Default `json:"default,omitempty" yaml:"default,omitempty"`
	PrimaryKey bool     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
}

// TableSchema is a table name plus its columns in declared (or ordinal) order.
type TableSchema struct {
	Name    string             `json:"name" yaml:"name"`
	Columns []ColumnDescriptor `json:"columns" yaml:"columns"`

	// CreateIfMissing lets the planner create the table when introspection
	// finds it absent. Without it a missing table is an error.
	CreateIfMissing bool `json:"create_if_missing,omitempty" yaml:"create_if_missing,omitempty"`
}

// Column returns the column with the given name (case-sensitive).
func (t *TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// Has reports whether the table has a column named name.
func (t *TableSchema) Has(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns column names in order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks a desired schema: a non-empty table name, at least one
// column, unique non-empty column names and known types.
func (t *TableSchema) Validate() error {
	if t.Name == "" {
		return errors.New("table name is required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns declared", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column %d has no name", t.Name, i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Type == "" || c.Type == dialect.TypeUnknown {
			return fmt.Errorf("table %s: column %s has no usable type", t.Name, c.Name)
		}
		if c.Default != nil && c.Default.Expr == "" && c.Default.Value == nil {
			return fmt.Errorf("table %s: column %s has an empty default", t.Name, c.Name)
		}
	}
	return nil
}
