package schema

import (
	"testing"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

func TestValidate(t *testing.T) {
	col := func(name string) ColumnDescriptor {
		return ColumnDescriptor{Name: name, Type: dialect.TypeInteger, Nullable: true}
	}
	tests := []struct {
		name    string
		table   TableSchema
		wantErr bool
	}{
		{"valid", TableSchema{Name: "violations", Columns: []ColumnDescriptor{col("id"), col("organization_id")}}, false},
		{"no name", TableSchema{Columns: []ColumnDescriptor{col("id")}}, true},
		{"no columns", TableSchema{Name: "violations"}, true},
		{"duplicate", TableSchema{Name: "violations", Columns: []ColumnDescriptor{col("id"), col("id")}}, true},
		{"case distinct", TableSchema{Name: "violations", Columns: []ColumnDescriptor{col("id"), col("ID")}}, false},
		{"unknown type", TableSchema{Name: "t", Columns: []ColumnDescriptor{{Name: "x", Type: dialect.TypeUnknown}}}, true},
		{"empty default", TableSchema{Name: "t", Columns: []ColumnDescriptor{{Name: "x", Type: dialect.TypeText, Default: &Default{}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultSQL(t *testing.T) {
	tests := []struct {
		name string
		def  Default
		kind dialect.Kind
		want string
	}{
		{"int", Default{Value: 1}, dialect.KindRelational, "1"},
		{"string", Default{Value: "open"}, dialect.KindEmbedded, "'open'"},
		{"expr wins", Default{Value: 1, Expr: "CURRENT_TIMESTAMP"}, dialect.KindEmbedded, "CURRENT_TIMESTAMP"},
		{"bool embedded", Default{Value: true}, dialect.KindEmbedded, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.SQL(tt.kind)
			if err != nil {
				t.Fatalf("SQL() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}
