// Package logging builds the structured loggers used across mend.
// Every run writes to two sinks: a human-facing console stream and an
// append-only JSON run log (<log_dir>/runner.log) that records cycle
// boundaries, touches and the terminal outcome of each run.
//
// There is no package-level logger. Callers build one with New and pass it
// down explicitly (the runner carries it inside its RunContext).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem. Each category becomes a named child logger so
// every line carries a "logger" field that can be filtered on.
type Category string

const (
	CategoryBoot      Category = "boot"      // CLI startup, config resolution
	CategoryRunner    Category = "runner"    // Cycle/touch state machine
	CategoryTrace     Category = "trace"     // Traceback -> candidate files
	CategoryPatch     Category = "patch"     // Patch application
	CategoryDiff      Category = "diff"      // Diff artifacts
	CategoryTactile   Category = "tactile"   // Program execution
	CategoryTransform Category = "transform" // LLM transformation calls
	CategoryStore     Category = "store"     // Run history ledger
	CategoryMetrics   Category = "metrics"   // Prometheus counters
)

// RunLogName is the file name of the append-only run log inside the log dir.
const RunLogName = "runner.log"

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format selects the console encoder: "console" (default) or "json".
	// The run log file is always JSON.
	Format string

	// Console receives human-facing output. Nil means os.Stdout.
	Console io.Writer

	// RunLogPath is the append-only JSON run log. Empty disables the file sink.
	RunLogPath string
}

// Logger bundles the zap logger with the file it appends to, so the CLI can
// flush and close both at shutdown.
type Logger struct {
	*zap.Logger
	file *os.File
}

// New builds a Logger that tees the console and the run log.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	var consoleEnc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console", "text":
		consoleEnc = zapcore.NewConsoleEncoder(consoleCfg)
	case "json":
		consoleEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: console, json)", opts.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level),
	}

	var file *os.File
	if opts.RunLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.RunLogPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(opts.RunLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open run log %s: %w", opts.RunLogPath, err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...)),
		file:   file,
	}, nil
}

// Close flushes buffered entries and closes the run log file.
func (l *Logger) Close() error {
	// Sync on a terminal stdout returns EINVAL on some platforms; ignore it.
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel maps a config level string to a zap level.
func ParseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", raw)
	}
}

// For returns the child logger for a category. A nil parent yields a no-op
// logger so components can be built without wiring logging in tests.
func For(parent *zap.Logger, category Category) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(string(category))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(logger *zap.Logger, operation string) *Timer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timer{
		logger: logger,
		op:     operation,
		start:  time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn(t.op+" was slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
