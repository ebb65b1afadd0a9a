package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

// unreachableURL points at a port nothing listens on.
const unreachableURL = "postgres://app:pw@127.0.0.1:1/app?sslmode=disable"

func TestDriversRegistered(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"pgx", "pgx"},
		{"postgres", "pgx"},
		{"PostgreSQL", "pgx"},
		{"pg", "pgx"},
		{"pq", "pq"},
		{"lib/pq", "pq"},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			d, err := backend.Get(tt.alias)
			if err != nil {
				t.Fatalf("Get(%q) error: %v", tt.alias, err)
			}
			if d.Name() != tt.want {
				t.Errorf("Get(%q).Name() = %q, want %q", tt.alias, d.Name(), tt.want)
			}
			if d.Kind() != dialect.KindRelational {
				t.Errorf("Get(%q).Kind() = %v, want relational", tt.alias, d.Kind())
			}
		})
	}
}

func TestOpenUnreachable(t *testing.T) {
	for _, d := range []backend.Driver{&Driver{}, &PQDriver{}} {
		t.Run(d.Name(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			start := time.Now()
			conn, err := d.Open(ctx, backend.Options{DSN: unreachableURL, ConnectTimeout: time.Second})
			if err == nil {
				conn.Close()
				t.Fatal("expected error for unreachable server")
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("Open took %s, want it bounded by the timeout", elapsed)
			}
		})
	}
}

func TestOpenBadDSN(t *testing.T) {
	_, err := (&Driver{}).Open(context.Background(), backend.Options{DSN: "postgres://%zz"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}
