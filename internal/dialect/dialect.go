// Package dialect holds the SQL differences between the two backend kinds:
// identifier quoting, inline literals, placeholder conventions, and the
// mapping between semantic column types and backend-native type names.
//
// Backend-specific behavior is selected by switching on Kind rather than
// through per-backend implementations.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Kind identifies the family of a backend.
type Kind string

const (
	// KindRelational is a networked, multi-client SQL server (PostgreSQL).
	KindRelational Kind = "relational-server"
	// KindEmbedded is a single-file, in-process SQL store (SQLite).
	KindEmbedded Kind = "embedded-file"
)

// ParseKind converts a kind name or alias to a Kind (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindRelational), "relational", "postgres", "postgresql", "pg":
		return KindRelational, nil
	case string(KindEmbedded), "embedded", "sqlite", "sqlite3", "file":
		return KindEmbedded, nil
	default:
		return "", fmt.Errorf("unknown backend kind: %q (valid: %s, %s)", s, KindRelational, KindEmbedded)
	}
}

func (k Kind) String() string { return string(k) }

// PlaceholderStyle is the parameter marker convention accepted by a backend.
type PlaceholderStyle int

const (
	// Positional markers: ?, ?, ?
	Positional PlaceholderStyle = iota
	// Numbered markers: $1, $2, $3
	Numbered
)

func (s PlaceholderStyle) String() string {
	if s == Numbered {
		return "numbered"
	}
	return "positional"
}

// MarshalText renders the style by name in reports and health output.
func (s PlaceholderStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capabilities describes what a backend kind supports.
type Capabilities struct {
	PlaceholderStyle      PlaceholderStyle `json:"placeholder_style" yaml:"placeholder_style"`
	SupportsConcurrentDDL bool             `json:"supports_concurrent_ddl" yaml:"supports_concurrent_ddl"`
}

// CapabilitiesFor returns the capability flags for a backend kind.
func CapabilitiesFor(k Kind) Capabilities {
	if k == KindRelational {
		return Capabilities{PlaceholderStyle: Numbered, SupportsConcurrentDDL: true}
	}
	// A single file has a single writer; DDL serializes on the database lock.
	return Capabilities{PlaceholderStyle: Positional, SupportsConcurrentDDL: false}
}

// QuoteIdentifier quotes a table or column name for the given kind.
// Both backends accept standard double-quoted identifiers.
func QuoteIdentifier(k Kind, name string) string {
	if k == KindRelational {
		return pq.QuoteIdentifier(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable returns a schema-qualified table reference. The embedded
// backend has no schema namespace, and an empty schema yields the bare name.
func QualifyTable(k Kind, schema, table string) string {
	if k == KindEmbedded || schema == "" {
		return QuoteIdentifier(k, table)
	}
	return QuoteIdentifier(k, schema) + "." + QuoteIdentifier(k, table)
}

// Literal renders v as an inline SQL literal suitable for a DEFAULT clause.
func Literal(k Kind, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if k == KindRelational {
			if val {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		if val {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case string:
		if k == KindRelational {
			return pq.QuoteLiteral(val), nil
		}
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported default literal type %T", v)
	}
}
