// Command mend runs a program and repairs the files named in its failure
// trace until it succeeds or the cycle budget is spent.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mender/internal/config"
	"mender/internal/logging"
)

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// rootOptions holds persistent flags and the state PersistentPreRunE builds.
type rootOptions struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "mend",
		Short: "Self-healing runner: execute, patch the failing files, re-execute",
		Long: `mend runs a program and, when it fails, asks a language model to repair the
source files named in the failure trace, one file per attempt. Every applied
change is recorded as a unified diff under the log directory.

Two budgets bound the loop: --max-file-touches applied changes per cycle and
--max-cycles cycles overall.

Exit status: 0 success, 1 error, 2 no patchable files, 3 budget exhausted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

// buildLogger creates the logger for cmd; withRunLog adds the JSON run log.
func (o *rootOptions) buildLogger(cmd *cobra.Command, withRunLog bool) (*zap.Logger, error) {
	level := o.cfg.Logging.Level
	if o.verbose {
		level = "debug"
	}
	lopts := logging.Options{
		Level:   level,
		Format:  o.cfg.Logging.Format,
		Console: cmd.ErrOrStderr(),
	}
	if withRunLog {
		lopts.RunLogPath = o.cfg.Logging.RunLogPath()
	}
	l, err := logging.New(lopts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.logger = l
	return l.Logger, nil
}

// closeLogger flushes and closes the logger built by buildLogger, if any.
func (o *rootOptions) closeLogger() {
	if o.logger != nil {
		_ = o.logger.Close()
		o.logger = nil
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			// Loop outcomes already ended the run log with their condition
			if exitErr.Code == 1 && exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
