package dialect

import (
	"fmt"
	"strings"
)

// Type is a backend-independent column type used to compare desired and
// introspected schemas.
type Type string

const (
	TypeInteger   Type = "integer"
	TypeBigInt    Type = "bigint"
	TypeReal      Type = "real"
	TypeNumeric   Type = "numeric"
	TypeText      Type = "text"
	TypeBoolean   Type = "boolean"
	TypeTimestamp Type = "timestamp"
	TypeDate      Type = "date"
	TypeJSON      Type = "json"
	TypeBlob      Type = "blob"
	TypeUnknown   Type = "unknown"
)

// ParseType converts a declared type name (or common alias) to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int4", "smallint":
		return TypeInteger, nil
	case "bigint", "int8", "long":
		return TypeBigInt, nil
	case "real", "float", "double", "float8":
		return TypeReal, nil
	case "numeric", "decimal":
		return TypeNumeric, nil
	case "text", "string", "varchar":
		return TypeText, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "timestamp", "timestamptz", "datetime":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "json", "jsonb":
		return TypeJSON, nil
	case "blob", "bytes", "bytea":
		return TypeBlob, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown column type: %q", s)
	}
}

var relationalNative = map[Type]string{
	TypeInteger:   "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeReal:      "DOUBLE PRECISION",
	TypeNumeric:   "NUMERIC",
	TypeText:      "TEXT",
	TypeBoolean:   "BOOLEAN",
	TypeTimestamp: "TIMESTAMPTZ",
	TypeDate:      "DATE",
	TypeJSON:      "JSONB",
	TypeBlob:      "BYTEA",
}

var embeddedNative = map[Type]string{
	TypeInteger:   "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeReal:      "REAL",
	TypeNumeric:   "NUMERIC",
	TypeText:      "TEXT",
	TypeBoolean:   "BOOLEAN",
	TypeTimestamp: "DATETIME",
	TypeDate:      "DATE",
	TypeJSON:      "TEXT",
	TypeBlob:      "BLOB",
}

// NativeType returns the DDL type name used for t on the given kind.
func NativeType(k Kind, t Type) (string, error) {
	m := embeddedNative
	if k == KindRelational {
		m = relationalNative
	}
	native, ok := m[t]
	if !ok {
		return "", fmt.Errorf("no %s type for %q", k, t)
	}
	return native, nil
}

// InferType makes a best-effort guess at the semantic type of a
// backend-native type name. Unrecognized names yield TypeUnknown.
func InferType(k Kind, native string) Type {
	if k == KindRelational {
		return inferRelational(strings.ToLower(strings.TrimSpace(native)))
	}
	return inferEmbedded(strings.ToUpper(strings.TrimSpace(native)))
}

func inferRelational(n string) Type {
	// Strip length/precision modifiers: character varying(255), numeric(10,2)
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "integer", "int", "int4", "int2", "smallint", "serial", "smallserial":
		return TypeInteger
	case "bigint", "int8", "bigserial":
		return TypeBigInt
	case "real", "double precision", "float4", "float8":
		return TypeReal
	case "numeric", "decimal":
		return TypeNumeric
	case "text", "character varying", "varchar", "character", "char", "bpchar", "uuid", "citext", "name":
		return TypeText
	case "boolean", "bool":
		return TypeBoolean
	case "date":
		return TypeDate
	case "json", "jsonb":
		return TypeJSON
	case "bytea":
		return TypeBlob
	}
	if strings.HasPrefix(n, "timestamp") {
		return TypeTimestamp
	}
	return TypeUnknown
}

// inferEmbedded follows SQLite's column affinity rules, refined for the
// type names this package emits.
func inferEmbedded(n string) Type {
	switch {
	case n == "":
		return TypeBlob
	case strings.Contains(n, "BOOL"):
		return TypeBoolean
	case strings.Contains(n, "BIGINT"), strings.Contains(n, "INT8"):
		return TypeBigInt
	case strings.Contains(n, "INT"):
		return TypeInteger
	case strings.Contains(n, "DATETIME"), strings.Contains(n, "TIMESTAMP"):
		return TypeTimestamp
	case strings.HasPrefix(n, "DATE"):
		return TypeDate
	case strings.Contains(n, "JSON"):
		return TypeJSON
	case strings.Contains(n, "CHAR"), strings.Contains(n, "CLOB"), strings.Contains(n, "TEXT"):
		return TypeText
	case strings.Contains(n, "BLOB"):
		return TypeBlob
	case strings.Contains(n, "REAL"), strings.Contains(n, "FLOA"), strings.Contains(n, "DOUB"):
		return TypeReal
	case strings.Contains(n, "NUMERIC"), strings.Contains(n, "DECIMAL"):
		return TypeNumeric
	}
	return TypeUnknown
}

// Compatible reports whether an introspected type satisfies a desired one.
// An unknown type on either side is never reported as drift.
func Compatible(k Kind, desired, actual Type) bool {
	if desired == actual || desired == TypeUnknown || actual == TypeUnknown {
		return true
	}
	if k == KindEmbedded {
		return embeddedFamily(desired) == embeddedFamily(actual)
	}
	return false
}

// embeddedFamily groups types that share one storage affinity in SQLite.
func embeddedFamily(t Type) Type {
	switch t {
	case TypeInteger, TypeBigInt, TypeBoolean:
		return TypeInteger
	case TypeText, TypeJSON:
		return TypeText
	}
	return t
}
