// Package tactile is the execution layer: it launches the target program,
// captures its output, and reports how it ended.
//
// Design Principles:
//   - Minimal logic: deciding what a failure means belongs to the runner
//   - Launch errors are errors, non-zero exits are results
//   - Bounded capture: output beyond MaxOutputBytes is counted, not kept
package tactile

import (
	"strings"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "python3", "/bin/sh").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to add (in KEY=VALUE format) on top of the
	// inherited process environment.
	Environment []string `json:"environment,omitempty"`

	// Timeout overrides the executor default. Zero means the default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult is the outcome of a command that was started.
type ExecutionResult struct {
	// ExitCode is the process exit status, -1 when killed.
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Combined is stdout followed by stderr.
	Combined string `json:"combined"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Killed is set when the timeout or the caller's context ended the process.
	Killed     bool   `json:"killed,omitempty"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated is set when either stream exceeded the capture limit.
	Truncated      bool  `json:"truncated,omitempty"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`
}

// Succeeded reports a clean exit.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && !r.Killed && r.ExitCode == 0
}

// ExecutorConfig holds executor defaults.
type ExecutorConfig struct {
	// DefaultTimeout bounds each command. Zero waits indefinitely.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// DefaultWorkingDir is used when a command leaves it empty.
	DefaultWorkingDir string `json:"default_working_dir,omitempty"`

	// KillGrace is how long Wait lingers for pipes after the process is
	// killed before closing them forcibly.
	KillGrace time.Duration `json:"kill_grace"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout: 0,
		MaxOutputBytes: 10 * 1024 * 1024, // 10MB
		KillGrace:      2 * time.Second,
	}
}

// Merge fills unset command fields from the config.
func (c ExecutorConfig) Merge(cmd Command) Command {
	if cmd.WorkingDirectory == "" {
		cmd.WorkingDirectory = c.DefaultWorkingDir
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.DefaultTimeout
	}
	return cmd
}
