package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/exitcodes"
)

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"1.5", 1.5},
		{"true", true},
		{"FALSE", false},
		{"null", nil},
		{"org-1", "org-1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseParam(tt.in); got != tt.want {
			t.Errorf("parseParam(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestWriteRows(t *testing.T) {
	var buf bytes.Buffer
	rows := []backend.Row{
		{"id": int64(1), "name": "a"},
		{"id": int64(2), "name": nil},
	}
	if err := writeRows(&buf, rows); err != nil {
		t.Fatal(err)
	}
	want := "id\tname\n1\ta\n2\t<nil>\n(2 rows)\n"
	if buf.String() != want {
		t.Errorf("writeRows() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := writeRows(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "(0 rows)\n" {
		t.Errorf("empty writeRows() = %q", buf.String())
	}
}

func TestDeclarationError(t *testing.T) {
	if code := exitcodes.FromError(declarationError(errors.New("duplicate table"))); code != exitcodes.ConfigError {
		t.Errorf("declaration error code = %d, want %d", code, exitcodes.ConfigError)
	}
	if code := exitcodes.FromError(declarationError(context.Canceled)); code != exitcodes.Cancelled {
		t.Errorf("cancelled code = %d, want %d", code, exitcodes.Cancelled)
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := encode(&buf, "yaml", map[string]int64{"rows_affected": 3}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "rows_affected: 3\n" {
		t.Errorf("yaml = %q", buf.String())
	}
	buf.Reset()
	if err := encode(&buf, "json", map[string]int64{"rows_affected": 3}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"rows_affected\": 3\n}\n" {
		t.Errorf("json = %q", buf.String())
	}
}
