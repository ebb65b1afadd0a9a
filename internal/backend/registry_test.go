package backend_test

import (
	"context"
	"strings"
	"testing"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/backend/backendtest"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

type fakeDriver struct {
	name    string
	aliases []string
	kind    dialect.Kind
}

func (d *fakeDriver) Name() string       { return d.name }
func (d *fakeDriver) Aliases() []string  { return d.aliases }
func (d *fakeDriver) Kind() dialect.Kind { return d.kind }
func (d *fakeDriver) Open(context.Context, backend.Options) (backend.Conn, error) {
	return &backendtest.FakeConn{}, nil
}

func init() {
	backend.Register(&fakeDriver{name: "fake-embedded", aliases: []string{"FakeFile"}, kind: dialect.KindEmbedded})
}

func TestRegistryLookup(t *testing.T) {
	for _, name := range []string{"fake-embedded", "FAKE-EMBEDDED", "fakefile"} {
		d, err := backend.Get(name)
		if err != nil {
			t.Fatalf("Get(%q) error: %v", name, err)
		}
		if d.Name() != "fake-embedded" {
			t.Errorf("Get(%q).Name() = %q", name, d.Name())
		}
	}
	if got := backend.Canonicalize("FakeFile"); got != "fake-embedded" {
		t.Errorf("Canonicalize() = %q", got)
	}
	if got := backend.Canonicalize("nope"); got != "nope" {
		t.Errorf("Canonicalize(unknown) = %q", got)
	}
	if _, err := backend.Get("nope"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	backend.Register(&fakeDriver{name: "fake-embedded", kind: dialect.KindEmbedded})
}

func TestOpenRegisteredDriver(t *testing.T) {
	h := backend.Open(context.Background(), "embedded", "fakefile", "", backend.Options{DSN: "mem"})
	if !h.Available() {
		t.Fatalf("handle unavailable: %v", h.Err())
	}
	if h.Driver() != "fake-embedded" || h.Kind() != dialect.KindEmbedded {
		t.Errorf("driver/kind = %s/%s", h.Driver(), h.Kind())
	}
}

func TestForKind(t *testing.T) {
	found := false
	for _, name := range backend.ForKind(dialect.KindEmbedded) {
		if name == "fake-embedded" {
			found = true
		}
	}
	if !found {
		t.Errorf("ForKind(embedded) = %v, want fake-embedded listed", backend.ForKind(dialect.KindEmbedded))
	}
	for _, name := range backend.ForKind(dialect.KindRelational) {
		if name == "fake-embedded" {
			t.Error("embedded driver listed for relational kind")
		}
	}
}

func TestOpenRejectsDriverOfOtherKind(t *testing.T) {
	h := backend.Open(context.Background(), "relational", "fakefile", "public", backend.Options{DSN: "mem"})
	if h.Available() {
		t.Fatal("embedded driver should not serve the relational backend")
	}
	if h.Kind() != dialect.KindRelational {
		t.Errorf("Kind() = %s, want relational", h.Kind())
	}
	if !strings.Contains(h.Err().Error(), "serves embedded-file backends") {
		t.Errorf("Err() = %v", h.Err())
	}
}
