package config

import "time"

// RunnerConfig configures the run loop and how the target program is launched.
type RunnerConfig struct {
	// Entry program path. Usually supplied with --entry.
	Entry string `yaml:"entry"`

	// Budgets: cycles overall, applied file modifications per cycle.
	MaxCycles      int `yaml:"max_cycles"`
	MaxFileTouches int `yaml:"max_file_touches"`

	// Interpreter is prepended to the entry (python3 <entry>). Empty runs
	// the entry directly.
	Interpreter string `yaml:"interpreter"`

	// Working directory for the program. Empty = current directory.
	WorkingDirectory string `yaml:"working_directory"`

	// ExecTimeout bounds one program execution. Zero = wait forever.
	ExecTimeout string `yaml:"exec_timeout"`

	// MaxOutputBytes caps captured stdout and stderr each.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}

// GetExecTimeout returns the execution timeout as a duration (0 = none).
func (r RunnerConfig) GetExecTimeout() time.Duration {
	d, err := parseDuration(r.ExecTimeout)
	if err != nil {
		return 0
	}
	return d
}
