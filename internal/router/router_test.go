package router_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/backend/backendtest"
	"github.com/johndauphine/dualstore-migrate/internal/config"
	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/router"
)

// unreachableURL points at a port nothing listens on.
const unreachableURL = "postgres://app:pw@127.0.0.1:1/app?sslmode=disable"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "EMBEDDED_DB_PATH", "SQLITE_PATH", "APP_ENV", "DB_SSL_MODE", "DB_POOL_SIZE", "SLACK_WEBHOOK_URL"} {
		t.Setenv(k, "")
	}
}

func loadConfig(t *testing.T, relationalURL, embeddedPath string) *config.Config {
	t.Helper()
	clearEnv(t)
	yaml := fmt.Sprintf(`
relational:
  url: %q
  connect_timeout: 2s
embedded:
  path: %q
routing:
  users: relational
  violations: embedded
`, relationalURL, embeddedPath)
	cfg, err := config.LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	return cfg
}

func TestConnectDegradedMode(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, unreachableURL, filepath.Join(t.TempDir(), "ops.db"))

	start := time.Now()
	r, err := router.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer r.Close()
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Connect() took %s", elapsed)
	}

	if _, err := r.Exec(ctx, `CREATE TABLE violations (id INTEGER PRIMARY KEY, title TEXT)`, nil, "violations"); err != nil {
		t.Fatalf("create on embedded: %v", err)
	}
	if _, err := r.Exec(ctx, `INSERT INTO violations (title) VALUES (?)`, []any{"speeding"}, "violations"); err != nil {
		t.Fatalf("insert on embedded: %v", err)
	}
	rows, err := r.Execute(ctx, `SELECT title FROM violations WHERE title = ?`, []any{"speeding"}, "violations")
	if err != nil {
		t.Fatalf("Execute() on reachable backend: %v", err)
	}
	if len(rows) != 1 || rows[0]["title"] != "speeding" {
		t.Errorf("rows = %v", rows)
	}

	start = time.Now()
	_, err = r.Execute(ctx, `SELECT * FROM users WHERE id = ?`, []any{1}, "users")
	var uErr *backend.BackendUnavailableError
	if !errors.As(err, &uErr) {
		t.Fatalf("Execute() on unreachable backend = %v, want BackendUnavailableError", err)
	}
	if uErr.Backend != config.BackendRelational {
		t.Errorf("Backend = %q", uErr.Backend)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unavailable backend did not fail fast: %s", elapsed)
	}
}

func TestConnectNoBackend(t *testing.T) {
	cfg := loadConfig(t, unreachableURL, "")

	_, err := router.Connect(context.Background(), cfg)
	if !errors.Is(err, router.ErrNoBackendAvailable) {
		t.Fatalf("Connect() = %v, want ErrNoBackendAvailable", err)
	}
	if !errors.Is(err, backend.ErrNotConfigured) {
		t.Errorf("aggregate error should include the unconfigured backend: %v", err)
	}
}

func TestRouteDeterministic(t *testing.T) {
	rel := backend.NewHandle("relational", dialect.KindRelational, "pgx", "public", &backendtest.FakeConn{})
	emb := backend.NewHandle("embedded", dialect.KindEmbedded, "sqlite", "", &backendtest.FakeConn{})
	r, err := router.New(map[string]string{"users": "relational", "violations": "embedded"}, rel, emb)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for i := 0; i < 100; i++ {
		u, err := r.Route("users")
		if err != nil || u != rel {
			t.Fatalf("Route(users) #%d = %v, %v", i, u, err)
		}
		v, err := r.Route("violations")
		if err != nil || v != emb {
			t.Fatalf("Route(violations) #%d = %v, %v", i, v, err)
		}
	}

	_, err = r.Route("Users")
	var nErr *router.UnroutableTableError
	if !errors.As(err, &nErr) || nErr.Table != "Users" {
		t.Errorf("Route(Users) = %v, want UnroutableTableError", err)
	}
	if _, err := r.Execute(context.Background(), "SELECT 1", nil, "nope"); !errors.As(err, &nErr) {
		t.Errorf("Execute() on unrouted table = %v", err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	emb := backend.NewHandle("embedded", dialect.KindEmbedded, "sqlite", "", &backendtest.FakeConn{})
	if _, err := router.New(map[string]string{"users": "relational"}, emb); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := router.New(nil, emb, emb); err == nil {
		t.Error("expected error for duplicate backend")
	}
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	emb := backend.Open(ctx, "embedded", "sqlite", "", backend.Options{DSN: filepath.Join(t.TempDir(), "ops.db")})
	if !emb.Available() {
		t.Fatalf("embedded unavailable: %v", emb.Err())
	}
	defer emb.Close()
	if _, err := emb.Exec(ctx, `CREATE TABLE audit_log (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}

	// The relational fake reports every table as missing.
	relFake := &backendtest.FakeConn{}
	rel := backend.NewHandle("relational", dialect.KindRelational, "pgx", "public", relFake)

	r, err := router.New(map[string]string{"users": "embedded"}, rel, emb)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := r.Discover(ctx, "audit_log", "fresh", "users"); err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	cases := map[string]*backend.Handle{"audit_log": emb, "fresh": rel, "users": emb}
	for table, want := range cases {
		got, err := r.Route(table)
		if err != nil || got != want {
			t.Errorf("Route(%s) = %v, %v; want %s", table, got, err, want.Name())
		}
	}
}

func TestDiscoverSkipsUnavailable(t *testing.T) {
	emb := backend.NewHandle("embedded", dialect.KindEmbedded, "sqlite", "", &backendtest.FakeConn{})
	rel := backend.Unavailable("relational", dialect.KindRelational, "pgx", "public", errors.New("refused"))
	r, err := router.New(nil, rel, emb)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Discover(context.Background(), "fresh"); err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if h, _ := r.Route("fresh"); h != emb {
		t.Errorf("fresh routed to %v, want embedded", h)
	}

	none, _ := router.New(nil, rel)
	var nErr *router.UnroutableTableError
	if err := none.Discover(context.Background(), "fresh"); !errors.As(err, &nErr) {
		t.Errorf("Discover() with no backend = %v", err)
	}
}

func TestCloseAttemptsAll(t *testing.T) {
	closeErr := errors.New("pool close failed")
	relFake := &backendtest.FakeConn{CloseErr: closeErr}
	embFake := &backendtest.FakeConn{}
	rel := backend.NewHandle("relational", dialect.KindRelational, "pgx", "public", relFake)
	emb := backend.NewHandle("embedded", dialect.KindEmbedded, "sqlite", "", embFake)
	never := backend.Unavailable("spare", dialect.KindEmbedded, "sqlite", "", backend.ErrNotConfigured)

	r, err := router.New(nil, rel, emb, never)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); !errors.Is(err, closeErr) {
		t.Errorf("Close() = %v, want the relational failure", err)
	}
	if embFake.Closed() != 1 {
		t.Error("embedded backend not closed after relational close failed")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestHealth(t *testing.T) {
	emb := backend.NewHandle("embedded", dialect.KindEmbedded, "sqlite", "", &backendtest.FakeConn{})
	rel := backend.Unavailable("relational", dialect.KindRelational, "pgx", "public", errors.New("refused"))
	r, err := router.New(nil, rel, emb)
	if err != nil {
		t.Fatal(err)
	}

	res := r.Health(context.Background(), time.Second)
	if res.Healthy {
		t.Error("expected unhealthy with relational down")
	}
	if res.Backends[0].Connected || res.Backends[0].Error == "" || !res.Backends[0].Configured {
		t.Errorf("relational health = %+v", res.Backends[0])
	}
	if !res.Backends[1].Connected {
		t.Errorf("embedded health = %+v", res.Backends[1])
	}

	unconfigured := backend.Unavailable("relational", dialect.KindRelational, "pgx", "public", backend.ErrNotConfigured)
	r, _ = router.New(nil, unconfigured, emb)
	if res := r.Health(context.Background(), time.Second); !res.Healthy {
		t.Errorf("unconfigured backend should not make the result unhealthy: %+v", res)
	}
}
