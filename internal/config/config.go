package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
	"github.com/johndauphine/dualstore-migrate/internal/migrate"
	"github.com/johndauphine/dualstore-migrate/internal/schema"
)

// Backend names used in routing entries and reports.
const (
	BackendRelational = "relational"
	BackendEmbedded   = "embedded"
)

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Config holds all configuration for the migration core. It is built once
// at startup and passed by pointer to the router and orchestrator.
type Config struct {
	// Environment selects TLS defaults; "production" requires TLS.
	Environment string           `yaml:"environment"`
	Relational  RelationalConfig `yaml:"relational"`
	Embedded    EmbeddedConfig   `yaml:"embedded"`

	// Routing maps a logical table to the backend that owns it.
	Routing map[string]string `yaml:"routing"`

	// Discover lists tables whose owner is found by probing the backends.
	Discover []string `yaml:"discover"`

	Tables   []TableConfig    `yaml:"tables"`
	Backfill []BackfillConfig `yaml:"backfill"`
	Slack    SlackConfig      `yaml:"slack"`

	desired []schema.TableSchema
}

// RelationalConfig holds the relational server connection settings.
type RelationalConfig struct {
	URL            string        `yaml:"url"`
	Driver         string        `yaml:"driver"`   // pgx (default) or pq
	SSLMode        string        `yaml:"ssl_mode"` // disable, prefer, require, verify-ca, verify-full
	Schema         string        `yaml:"schema"`
	MaxConns       int           `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// EmbeddedConfig holds the embedded file store settings.
type EmbeddedConfig struct {
	Path           string        `yaml:"path"`
	MaxConns       int           `yaml:"max_conns"`
	BusyTimeout    time.Duration `yaml:"busy_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TableConfig declares the desired schema of one table.
type TableConfig struct {
	Name            string         `yaml:"name"`
	CreateIfMissing bool           `yaml:"create_if_missing"`
	Columns         []ColumnConfig `yaml:"columns"`
}

// ColumnConfig declares one desired column. Columns are nullable unless
// nullable: false is given.
type ColumnConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Nullable    *bool  `yaml:"nullable"`
	Default     any    `yaml:"default"`
	DefaultExpr string `yaml:"default_expr"`
	PrimaryKey  bool   `yaml:"primary_key"`
}

// BackfillConfig declares a backfill rule.
type BackfillConfig struct {
	Table   string `yaml:"table"`
	Column  string `yaml:"column"`
	Default any    `yaml:"default"`
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	Enabled    bool   `yaml:"enabled"`
}

// envOverrides are process environment variables that take precedence
// over the file.
type envOverrides struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	EmbeddedPath string `env:"EMBEDDED_DB_PATH"`
	SQLitePath   string `env:"SQLITE_PATH"`
	AppEnv       string `env:"APP_ENV"`
	SSLMode      string `env:"DB_SSL_MODE"`
	PoolSize     int    `env:"DB_POOL_SIZE"`
	SlackWebhook string `env:"SLACK_WEBHOOK_URL"`
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML file. An empty path builds the
// configuration from the environment alone.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a YAML file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	var data []byte
	if path != "" {
		if !opts.SuppressWarnings {
			fmt.Fprint(os.Stderr, permissionWarning(path, "Config file",
				"It may contain the DATABASE_URL password or a Slack webhook."))
		}

		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, err
	}
	if cfg.Embedded.Path != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, permissionWarning(cfg.Embedded.Path, "Embedded database",
			"Operational records in it are readable by other users."))
	}
	return cfg, nil
}

// LoadBytes reads configuration from YAML bytes, applies environment
// overrides and defaults, and validates the result.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.applyEnv(overrides)

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv(o envOverrides) {
	if o.DatabaseURL != "" {
		c.Relational.URL = o.DatabaseURL
	}
	switch {
	case o.EmbeddedPath != "":
		c.Embedded.Path = o.EmbeddedPath
	case o.SQLitePath != "":
		c.Embedded.Path = o.SQLitePath
	}
	if o.AppEnv != "" {
		c.Environment = o.AppEnv
	}
	if o.SSLMode != "" {
		c.Relational.SSLMode = o.SSLMode
	}
	if o.PoolSize > 0 {
		c.Relational.MaxConns = o.PoolSize
	}
	if o.SlackWebhook != "" {
		c.Slack.WebhookURL = o.SlackWebhook
	}
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}

	if c.Relational.Driver == "" {
		c.Relational.Driver = "pgx"
	}
	if c.Relational.Schema == "" {
		c.Relational.Schema = "public"
	}
	if c.Relational.SSLMode == "" {
		c.Relational.SSLMode = c.defaultSSLMode()
	}
	if c.Relational.MaxConns == 0 {
		c.Relational.MaxConns = 4
	}
	if c.Relational.ConnectTimeout == 0 {
		c.Relational.ConnectTimeout = 5 * time.Second
	}

	c.Embedded.Path = expandTilde(c.Embedded.Path)
	if c.Embedded.MaxConns == 0 {
		c.Embedded.MaxConns = 4
	}
	if c.Embedded.BusyTimeout == 0 {
		c.Embedded.BusyTimeout = 5 * time.Second
	}
	if c.Embedded.ConnectTimeout == 0 {
		c.Embedded.ConnectTimeout = 5 * time.Second
	}

	if c.Slack.Username == "" {
		c.Slack.Username = "dualstore"
	}
}

// defaultSSLMode keeps an sslmode already present in the URL, otherwise
// production requires TLS and every other environment prefers it.
func (c *Config) defaultSSLMode() string {
	if u, err := url.Parse(c.Relational.URL); err == nil {
		if mode := u.Query().Get("sslmode"); mode != "" {
			return mode
		}
	}
	if c.IsProduction() {
		return "require"
	}
	return "prefer"
}

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true, "require": true, "verify-ca": true, "verify-full": true,
}

func (c *Config) validate() error {
	if c.Relational.URL == "" && c.Embedded.Path == "" {
		return errors.New("no backend configured: set relational.url (DATABASE_URL) or embedded.path (EMBEDDED_DB_PATH)")
	}
	if !validSSLModes[c.Relational.SSLMode] {
		return fmt.Errorf("relational.ssl_mode must be one of disable, allow, prefer, require, verify-ca, verify-full, got '%s'", c.Relational.SSLMode)
	}
	if c.Relational.MaxConns < 0 || c.Embedded.MaxConns < 0 {
		return errors.New("max_conns must not be negative")
	}

	routing := make(map[string]string, len(c.Routing))
	for table, name := range c.Routing {
		backendName, err := NormalizeBackend(name)
		if err != nil {
			return fmt.Errorf("routing.%s: %w", table, err)
		}
		routing[table] = backendName
	}
	c.Routing = routing

	routable := func(table string) bool {
		if _, ok := c.Routing[table]; ok {
			return true
		}
		for _, d := range c.Discover {
			if d == table {
				return true
			}
		}
		return false
	}

	c.desired = c.desired[:0]
	for _, t := range c.Tables {
		ts, err := t.toSchema()
		if err != nil {
			return err
		}
		if err := ts.Validate(); err != nil {
			return err
		}
		if !routable(t.Name) {
			return fmt.Errorf("table %s has no routing entry and is not listed in discover", t.Name)
		}
		c.desired = append(c.desired, ts)
	}

	for i, b := range c.Backfill {
		rule := migrate.BackfillRule{Table: b.Table, Column: b.Column, Default: b.Default}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("backfill[%d]: %w", i, err)
		}
		if !routable(b.Table) {
			return fmt.Errorf("backfill[%d]: table %s has no routing entry", i, b.Table)
		}
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return errors.New("slack.webhook_url is required when slack is enabled")
	}
	return nil
}

// NormalizeBackend maps a routing value (a backend name or any kind alias)
// to BackendRelational or BackendEmbedded.
func NormalizeBackend(name string) (string, error) {
	kind, err := dialect.ParseKind(name)
	if err != nil {
		return "", err
	}
	if kind == dialect.KindRelational {
		return BackendRelational, nil
	}
	return BackendEmbedded, nil
}

func (t TableConfig) toSchema() (schema.TableSchema, error) {
	ts := schema.TableSchema{Name: t.Name, CreateIfMissing: t.CreateIfMissing}
	for _, col := range t.Columns {
		typ, err := dialect.ParseType(col.Type)
		if err != nil {
			return ts, fmt.Errorf("table %s column %s: %w", t.Name, col.Name, err)
		}
		cd := schema.ColumnDescriptor{
			Name:       col.Name,
			Type:       typ,
			Nullable:   col.Nullable == nil || *col.Nullable,
			PrimaryKey: col.PrimaryKey,
		}
		if col.PrimaryKey && col.Nullable == nil {
			cd.Nullable = false
		}
		switch {
		case col.DefaultExpr != "":
			cd.Default = &schema.Default{Expr: col.DefaultExpr}
		case col.Default != nil:
			cd.Default = &schema.Default{Value: col.Default}
		}
		ts.Columns = append(ts.Columns, cd)
	}
	return ts, nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Environment) {
	case "production", "prod":
		return true
	}
	return false
}

// DesiredSchemas returns the declared tables in file order.
func (c *Config) DesiredSchemas() []schema.TableSchema {
	return append([]schema.TableSchema(nil), c.desired...)
}

// BackfillRules returns the declared backfill rules in file order.
func (c *Config) BackfillRules() []migrate.BackfillRule {
	rules := make([]migrate.BackfillRule, len(c.Backfill))
	for i, b := range c.Backfill {
		rules[i] = migrate.BackfillRule{Table: b.Table, Column: b.Column, Default: b.Default}
	}
	return rules
}

// RoutedTables returns every table with a static routing entry, sorted.
func (c *Config) RoutedTables() []string {
	tables := make([]string, 0, len(c.Routing))
	for t := range c.Routing {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// RelationalDSN returns the relational connection string with the
// effective sslmode applied.
func (c *Config) RelationalDSN() string {
	raw := c.Relational.URL
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		// Keyword/value form: host=... dbname=...
		if strings.Contains(raw, "sslmode=") {
			return raw
		}
		return raw + " sslmode=" + c.Relational.SSLMode
	}
	q := u.Query()
	q.Set("sslmode", c.Relational.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy

	if u, err := url.Parse(sanitized.Relational.URL); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			sanitized.Relational.URL = u.String()
		}
	}

	// Redact Slack webhook
	if sanitized.Slack.WebhookURL != "" {
		sanitized.Slack.WebhookURL = "[REDACTED]"
	}

	return &sanitized
}
