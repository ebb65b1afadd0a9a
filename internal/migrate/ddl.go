package migrate

import (
	"fmt"
	"strings"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// AddColumnSQL builds the ALTER TABLE statement for one column with its
// declared type, nullability and default inline. There is no IF NOT EXISTS
// guard: a column added concurrently by another process makes the statement
// fail and the step is reported as failed.
func AddColumnSQL(h *backend.Handle, table string, col schema.ColumnDescriptor) (string, error) {
	def, err := columnDefinition(h, col, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", h.Table(table), def), nil
}

// CreateTableSQL builds the CREATE TABLE statement for a desired table.
func CreateTableSQL(h *backend.Handle, t *schema.TableSchema) (string, error) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", h.Table(t.Name)))

	var pk []string
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pk = append(pk, h.Quote(col.Name))
		}
	}

	for i, col := range t.Columns {
		if i > 0 {
			sb.WriteString(",\n")
		}
		def, err := columnDefinition(h, col, len(pk) == 1 && col.PrimaryKey)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		sb.WriteString("    " + def)
	}

	if len(pk) > 1 {
		sb.WriteString(fmt.Sprintf(",\n    PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}

	sb.WriteString("\n)")
	return sb.String(), nil
}

func columnDefinition(h *backend.Handle, col schema.ColumnDescriptor, inlinePK bool) (string, error) {
	native, err := dialect.NativeType(h.Kind(), col.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", col.Name, err)
	}

	def := h.Quote(col.Name) + " " + native
	if inlinePK {
		def += " PRIMARY KEY"
	}
	if !col.Nullable && !inlinePK {
		def += " NOT NULL"
	}
	if col.Default != nil {
		lit, err := col.Default.SQL(h.Kind())
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		def += " DEFAULT " + lit
	}
	return def, nil
}
