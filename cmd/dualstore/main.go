package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
	"github.com/johndauphine/dualstore-migrate/internal/config"
	"github.com/johndauphine/dualstore-migrate/internal/exitcodes"
	"github.com/johndauphine/dualstore-migrate/internal/logging"
	"github.com/johndauphine/dualstore-migrate/internal/orchestrator"
	"github.com/johndauphine/dualstore-migrate/internal/progress"
)

var version = "dev"

var errMigrationFailed = errors.New("migration finished with failures")

func main() {
	app := &cli.App{
		Name:    "dualstore",
		Usage:   "Additive schema migration and query routing across a relational and an embedded database",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file (environment only when the default is absent)",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "text",
				Usage: "Result format: text, json or yaml",
			},
			&cli.StringFlag{
				Name:  "output-file",
				Usage: "Write the result to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return exitcodes.NewExitError(err, exitcodes.ConfigError)
			}
			logging.SetLevel(level)

			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}

			// Results go to stdout; keep it clean.
			logging.SetOutput(os.Stderr)

			switch c.String("format") {
			case "text", "json", "yaml":
			default:
				return exitcodes.NewExitError(fmt.Errorf("unknown format %q (want text, json or yaml)", c.String("format")), exitcodes.ConfigError)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Add missing columns and run backfill rules",
				Action: runMigrate,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "progress",
						Value: "auto",
						Usage: "Progress display: auto, bar, json or none",
					},
				},
			},
			{
				Name:   "plan",
				Usage:  "Show the steps migrate would apply without changing anything",
				Action: runPlan,
			},
			{
				Name:   "health",
				Usage:  "Check connectivity to both backends",
				Action: runHealth,
			},
			{
				Name:      "exec",
				Usage:     "Run a query with ? placeholders against the backend owning a table",
				ArgsUsage: "QUERY [PARAM...]",
				Action:    runExec,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Table whose backend runs the query",
					},
					&cli.BoolFlag{
						Name:  "write",
						Usage: "Run as a statement and print the affected row count",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		code := exitcodes.FromError(err)
		if !errors.Is(err, errMigrationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logging.Debug("Exit code %d: %s", code, exitcodes.Description(code))
		os.Exit(code)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing the current step...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if _, err := os.Stat(path); os.IsNotExist(err) && !c.IsSet("config") {
		logging.Debug("No %s found, configuring from environment", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, exitcodes.NewExitError(fmt.Errorf("failed to load config: %w", err), exitcodes.IOError)
		}
		return nil, exitcodes.NewExitError(fmt.Errorf("failed to load config: %w", err), exitcodes.ConfigError)
	}
	logging.Debug("Configured backends: relational=%t embedded=%t environment=%s",
		cfg.Relational.URL != "", cfg.Embedded.Path != "", cfg.Environment)
	return cfg, nil
}

func open(ctx context.Context, c *cli.Context, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(ctx, cfg, opts...)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}
	return orch, nil
}

func runMigrate(c *cli.Context) error {
	reporter, err := progress.ForMode(c.String("progress"))
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch, err := open(ctx, c, orchestrator.WithReporter(reporter))
	if err != nil {
		return err
	}
	defer orch.Close()

	report, runErr := orch.Migrate(ctx)
	if report == nil {
		return declarationError(runErr)
	}
	if err := writeResult(c, func(w io.Writer) error { return report.Write(w, c.String("format")) }); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return exitcodes.NewExitError(errMigrationFailed, exitcodes.MigrationFailed)
	}
	return nil
}

func runPlan(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	report, err := orch.Plan(ctx)
	if report == nil {
		return declarationError(err)
	}
	if werr := writeResult(c, func(w io.Writer) error { return report.Write(w, c.String("format")) }); werr != nil {
		return werr
	}
	return err
}

func runHealth(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	result := orch.HealthCheck(ctx)
	err = writeResult(c, func(w io.Writer) error {
		switch c.String("format") {
		case "json", "yaml":
			return encode(w, c.String("format"), result)
		}
		for _, b := range result.Backends {
			status := "OK"
			switch {
			case !b.Configured:
				status = "NOT CONFIGURED"
			case !b.Connected:
				status = "UNREACHABLE"
			}
			fmt.Fprintf(w, "%-11s %-7s %-15s %5dms", b.Name, b.Driver, status, b.LatencyMs)
			if b.Error != "" && b.Configured {
				fmt.Fprintf(w, "  %s", b.Error)
			}
			fmt.Fprintln(w)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !result.Healthy {
		return exitcodes.NewExitError(errors.New("one or more configured backends are unreachable"), exitcodes.ConnectionError)
	}
	return nil
}

func runExec(c *cli.Context) error {
	if c.NArg() == 0 {
		return exitcodes.NewExitError(errors.New("exec requires a query"), exitcodes.ConfigError)
	}
	query := c.Args().First()
	params := make([]any, 0, c.NArg()-1)
	for _, p := range c.Args().Tail() {
		params = append(params, parseParam(p))
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	table := c.String("table")
	if c.Bool("write") {
		n, err := orch.Exec(ctx, table, query, params)
		if err != nil {
			return err
		}
		return writeResult(c, func(w io.Writer) error {
			if c.String("format") == "text" {
				_, err := fmt.Fprintf(w, "%d rows affected\n", n)
				return err
			}
			return encode(w, c.String("format"), map[string]int64{"rows_affected": n})
		})
	}

	rows, err := orch.Execute(ctx, table, query, params)
	if err != nil {
		return err
	}
	return writeResult(c, func(w io.Writer) error {
		if c.String("format") == "text" {
			return writeRows(w, rows)
		}
		if rows == nil {
			rows = []backend.Row{}
		}
		return encode(w, c.String("format"), rows)
	})
}

// declarationError classifies an error returned before any backend was
// touched. Only cancellation is distinguished from a bad declaration.
func declarationError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return exitcodes.NewExitError(err, exitcodes.ConfigError)
}

// parseParam turns a command-line argument into a typed query parameter.
func parseParam(s string) any {
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func writeRows(w io.Writer, rows []backend.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, r := range rows {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = fmt.Sprint(r[col])
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return err
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult sends output to --output-file when set, stdout otherwise.
func writeResult(c *cli.Context, write func(io.Writer) error) error {
	outputFile := c.String("output-file")
	if outputFile == "" {
		if err := write(os.Stdout); err != nil {
			return exitcodes.NewExitError(fmt.Errorf("writing result: %w", err), exitcodes.IOError)
		}
		return nil
	}

	f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return exitcodes.NewExitError(fmt.Errorf("creating output file: %w", err), exitcodes.IOError)
	}
	if err := write(f); err != nil {
		f.Close()
		return exitcodes.NewExitError(fmt.Errorf("writing result: %w", err), exitcodes.IOError)
	}
	if err := f.Close(); err != nil {
		return exitcodes.NewExitError(fmt.Errorf("closing output file: %w", err), exitcodes.IOError)
	}
	logging.Info("Result written to %s", outputFile)
	return nil
}
