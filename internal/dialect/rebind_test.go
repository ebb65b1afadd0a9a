package dialect

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRebindNumbered(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		nParams int
		want    string
	}{
		{
			name:    "no markers",
			query:   "SELECT 1",
			nParams: 0,
			want:    "SELECT 1",
		},
		{
			name:    "sequential markers",
			query:   "SELECT * FROM users WHERE id = ? AND org = ?",
			nParams: 2,
			want:    "SELECT * FROM users WHERE id = $1 AND org = $2",
		},
		{
			name:    "marker inside string literal is ignored",
			query:   "SELECT * FROM t WHERE note = 'why?' AND id = ?",
			nParams: 1,
			want:    "SELECT * FROM t WHERE note = 'why?' AND id = $1",
		},
		{
			name:    "escaped quote inside literal",
			query:   "UPDATE t SET a = 'it''s ?' WHERE b = ? AND c = ?",
			nParams: 2,
			want:    "UPDATE t SET a = 'it''s ?' WHERE b = $1 AND c = $2",
		},
		{
			name:    "marker inside quoted identifier is ignored",
			query:   `SELECT "odd?name" FROM t WHERE x = ?`,
			nParams: 1,
			want:    `SELECT "odd?name" FROM t WHERE x = $1`,
		},
		{
			name:    "comments are skipped",
			query:   "SELECT ? -- trailing ?\n, /* block ? */ ?",
			nParams: 2,
			want:    "SELECT $1 -- trailing ?\n, /* block ? */ $2",
		},
		{
			name:    "insert values",
			query:   "INSERT INTO users (name, email, org) VALUES (?, ?, ?)",
			nParams: 3,
			want:    "INSERT INTO users (name, email, org) VALUES ($1, $2, $3)",
		},
		{
			name:    "adjacent markers",
			query:   "SELECT ??",
			nParams: 2,
			want:    "SELECT $1$2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rebind(Numbered, tt.query, tt.nParams)
			if err != nil {
				t.Fatalf("Rebind() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRebindPositionalPassThrough(t *testing.T) {
	query := "SELECT * FROM violations WHERE organization_id = ? AND note <> 'x?'"
	got, err := Rebind(Positional, query, 1)
	if err != nil {
		t.Fatalf("Rebind() error: %v", err)
	}
	if got != query {
		t.Errorf("positional query changed: %q", got)
	}
}

func TestRebindMismatch(t *testing.T) {
	for _, style := range []PlaceholderStyle{Positional, Numbered} {
		t.Run(style.String(), func(t *testing.T) {
			_, err := Rebind(style, "SELECT * FROM t WHERE a = ? AND b = ?", 3)
			var pErr *PlaceholderTranslationError
			if !errors.As(err, &pErr) {
				t.Fatalf("expected PlaceholderTranslationError, got %v", err)
			}
			if pErr.Markers != 2 || pErr.Params != 3 {
				t.Errorf("markers/params = %d/%d, want 2/3", pErr.Markers, pErr.Params)
			}
		})
	}
}

// For every N, numbered output carries $1..$N in left-to-right order.
func TestRebindOrderPreserving(t *testing.T) {
	for n := 1; n <= 25; n++ {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("c%d = ?", i)
		}
		query := "SELECT 1 WHERE " + strings.Join(parts, " AND ")

		got, err := Rebind(Numbered, query, n)
		if err != nil {
			t.Fatalf("n=%d: Rebind() error: %v", n, err)
		}

		pos := 0
		for i := 1; i <= n; i++ {
			marker := fmt.Sprintf("c%d = $%d", i-1, i)
			idx := strings.Index(got[pos:], marker)
			if idx < 0 {
				t.Fatalf("n=%d: marker %q missing or out of order in %q", n, marker, got)
			}
			pos += idx + len(marker)
		}
		if strings.Contains(got, "?") {
			t.Errorf("n=%d: unreplaced marker in %q", n, got)
		}
	}
}

func TestCountMarkers(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"?", 1},
		{"'?'", 0},
		{"'unterminated ?", 0},
		{"a ? b ? c ?", 3},
		{"/* ? */ ?", 1},
		{"-- ?", 0},
	}
	for _, tt := range tests {
		if got := CountMarkers(tt.query); got != tt.want {
			t.Errorf("CountMarkers(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
