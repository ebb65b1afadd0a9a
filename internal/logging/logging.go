// Package logging provides the process-wide leveled logger used by every
// component of the migration core. Messages are printf-style and are written
// either as timestamped text lines or as JSON lines. A Scope tags lines with
// the backend and table being migrated.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents logging verbosity level
type Level int

const (
	// LevelError only logs errors
	LevelError Level = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs info, warnings, and errors (default)
	LevelInfo
	// LevelDebug logs everything including debug messages
	LevelDebug
)

const (
	formatText = "text"
	formatJSON = "json"
)

// Logger provides leveled logging
type Logger struct {
	mu     sync.Mutex
	level  Level
	format string
	output io.Writer
}

var defaultLogger = &Logger{
	level:  LevelInfo,
	format: formatText,
	output: os.Stderr,
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown verbosity level: %s (valid: debug, info, warn, error)", s)
	}
}

// String returns the string representation of a level
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the global log level
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
}

// SetFormat selects "text" (default) or "json" output. Unknown values fall
// back to text.
func SetFormat(format string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if strings.EqualFold(format, formatJSON) {
		defaultLogger.format = formatJSON
		return
	}
	defaultLogger.format = formatText
}

// SetOutput sets the output destination for logging. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	defaultLogger.output = w
}

// GetLevel returns the current log level
func GetLevel() Level {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.level
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	defaultLogger.log(Scope{}, LevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	defaultLogger.log(Scope{}, LevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	defaultLogger.log(Scope{}, LevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	defaultLogger.log(Scope{}, LevelError, format, args...)
}

// IsDebug returns true if debug level is enabled
func IsDebug() bool {
	return GetLevel() >= LevelDebug
}

// Scope tags log lines with the backend and table they concern. Text lines
// are prefixed "backend/table:", JSON lines carry "backend" and "table".
type Scope struct {
	backend string
	table   string
}

// Backend returns a scope for lines about one backend.
func Backend(name string) Scope {
	return Scope{backend: name}
}

// Table narrows the scope to one table.
func (s Scope) Table(name string) Scope {
	s.table = name
	return s
}

// Debug logs a debug message in the scope.
func (s Scope) Debug(format string, args ...interface{}) {
	defaultLogger.log(s, LevelDebug, format, args...)
}

// Info logs an info message in the scope.
func (s Scope) Info(format string, args ...interface{}) {
	defaultLogger.log(s, LevelInfo, format, args...)
}

// Warn logs a warning message in the scope.
func (s Scope) Warn(format string, args ...interface{}) {
	defaultLogger.log(s, LevelWarn, format, args...)
}

// Error logs an error message in the scope.
func (s Scope) Error(format string, args ...interface{}) {
	defaultLogger.log(s, LevelError, format, args...)
}

func (s Scope) prefix() string {
	switch {
	case s.backend != "" && s.table != "":
		return s.backend + "/" + s.table + ": "
	case s.backend != "":
		return s.backend + ": "
	case s.table != "":
		return s.table + ": "
	}
	return ""
}

type jsonEntry struct {
	TS      string `json:"ts"`
	Level   string `json:"level"`
	Backend string `json:"backend,omitempty"`
	Table   string `json:"table,omitempty"`
	Msg     string `json:"msg"`
}

func (l *Logger) log(scope Scope, level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	msg := strings.Trim(fmt.Sprintf(format, args...), "\n")
	now := time.Now()

	if l.format == formatJSON {
		line, err := json.Marshal(jsonEntry{
			TS:      now.UTC().Format(time.RFC3339Nano),
			Level:   strings.ToLower(level.String()),
			Backend: scope.backend,
			Table:   scope.table,
			Msg:     msg,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(l.output, string(line))
		return
	}

	fmt.Fprintf(l.output, "%s [%s] %s%s\n", now.Format("2006-01-02 15:04:05"), level.String(), scope.prefix(), msg)
}
