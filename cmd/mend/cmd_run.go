package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mender/internal/config"
	"mender/internal/diff"
	"mender/internal/logging"
	"mender/internal/metrics"
	"mender/internal/patch"
	"mender/internal/runner"
	"mender/internal/store"
	"mender/internal/tactile"
	"mender/internal/trace"
	"mender/internal/transform"
)

// newTransformer builds the transformation collaborator. Tests replace it.
var newTransformer = func(ctx context.Context, cfg config.LLMConfig, ext string, logger *zap.Logger) (transform.Transformer, error) {
	return transform.NewTransformerFromConfig(ctx, cfg, ext, logger)
}

type runOptions struct {
	entry          string
	maxCycles      int
	maxFileTouches int
	interpreter    string
	logDir         string
	provider       string
	model          string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the entry program and repair it until it succeeds",
		Example: `  mend run --entry app.py
  mend run --entry app.py --max-cycles 5 --max-file-touches 2
  mend run --entry ./server.rb --interpreter ruby --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.apply(cmd, root.cfg); err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			if err := root.cfg.Validate(); err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			if root.cfg.Runner.Entry == "" {
				return &ExitError{Code: 1, Err: fmt.Errorf("--entry is required")}
			}
			if err := resolvePaths(root.cfg); err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			logger, err := root.buildLogger(cmd, true)
			if err != nil {
				return err
			}
			defer root.closeLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runRepair(ctx, root.cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			if code := res.Outcome.ExitCode(); code != 0 {
				return &ExitError{Code: code, Err: res.Err}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.entry, "entry", "e", "", "Entry program to run (required)")
	f.IntVar(&opts.maxCycles, "max-cycles", 3, "Maximum repair cycles")
	f.IntVar(&opts.maxFileTouches, "max-file-touches", 4, "Maximum applied file changes per cycle")
	f.StringVar(&opts.interpreter, "interpreter", "python3", "Interpreter for the entry (empty runs it directly)")
	f.StringVar(&opts.logDir, "log-dir", "logs", "Directory for the run log and diff artifacts")
	f.StringVar(&opts.provider, "provider", config.ProviderOpenAI, "LLM provider: openai, anthropic, gemini")
	f.StringVar(&opts.model, "model", "", "LLM model (default depends on provider)")
	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("provider") {
		if err := cfg.LLM.SwitchProvider(o.provider); err != nil {
			return err
		}
	}
	if f.Changed("entry") {
		cfg.Runner.Entry = o.entry
	}
	if f.Changed("max-cycles") {
		cfg.Runner.MaxCycles = o.maxCycles
	}
	if f.Changed("max-file-touches") {
		cfg.Runner.MaxFileTouches = o.maxFileTouches
	}
	if f.Changed("interpreter") {
		cfg.Runner.Interpreter = o.interpreter
	}
	if f.Changed("log-dir") {
		cfg.Logging.Dir = o.logDir
	}
	if f.Changed("model") {
		cfg.LLM.Model = o.model
	}
	return nil
}

// resolvePaths anchors the entry to the invocation directory and points
// trace resolution at the directory the child runs in.
func resolvePaths(cfg *config.Config) error {
	entry, err := filepath.Abs(cfg.Runner.Entry)
	if err != nil {
		return fmt.Errorf("failed to resolve entry: %w", err)
	}
	cfg.Runner.Entry = entry

	if cfg.Trace.BaseDir == "" && cfg.Runner.WorkingDirectory != "" {
		base, err := filepath.Abs(cfg.Runner.WorkingDirectory)
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.Trace.BaseDir = base
	}
	return nil
}

// runRepair wires the collaborators from cfg and runs the loop once.
func runRepair(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (runner.Result, error) {
	boot := logging.For(logger, logging.CategoryBoot)
	boot.Debug("effective configuration", zap.Any("config", cfg.Redacted()))

	tr, err := newTransformer(ctx, cfg.LLM, cfg.Trace.Extension, logging.For(logger, logging.CategoryTransform))
	if err != nil {
		return runner.Result{}, fmt.Errorf("failed to create transformer: %w", err)
	}

	rc, err := runner.NewRunContext(cfg.Runner.Entry, cfg.Runner.MaxCycles, cfg.Runner.MaxFileTouches,
		logging.For(logger, logging.CategoryRunner))
	if err != nil {
		return runner.Result{}, err
	}

	recorder := diff.NewRecorder(filepath.Join(cfg.Logging.Dir, rc.RunID), logging.For(logger, logging.CategoryDiff))
	applier := patch.NewApplier(tr, recorder, logging.For(logger, logging.CategoryPatch))

	execCfg := tactile.DefaultExecutorConfig()
	execCfg.DefaultTimeout = cfg.Runner.GetExecTimeout()
	if cfg.Runner.MaxOutputBytes > 0 {
		execCfg.MaxOutputBytes = cfg.Runner.MaxOutputBytes
	}
	tactileLog := logging.For(logger, logging.CategoryTactile)
	executor := tactile.NewDirectExecutorWithConfig(execCfg, tactileLog)
	program := tactile.NewProgram(executor, cfg.Runner.Interpreter, cfg.Runner.WorkingDirectory, tactileLog)

	extractor := trace.NewPatternExtractor(cfg.Trace.BaseDir, cfg.Trace.Extension, logging.For(logger, logging.CategoryTrace))

	r := runner.New(program, extractor, applier)

	if cfg.History.Enabled {
		ledger, err := store.OpenLedger(cfg.HistoryPath(), logging.For(logger, logging.CategoryStore))
		if err != nil {
			boot.Warn("history ledger unavailable", zap.Error(err))
		} else {
			defer ledger.Close()
			r.Subscribe(ledger)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.TextfilePath != "" {
		m = metrics.NewMetrics(metrics.DefaultNamespace, logging.For(logger, logging.CategoryMetrics))
		r.Subscribe(m)
	}

	res := r.Run(ctx, rc)

	if m != nil {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			boot.Warn("metrics export failed", zap.Error(err))
		}
	}

	fmt.Fprintf(out, "run %s: %s after %d execution(s), %d touch(es); diffs in %s\n",
		rc.RunID, res.Outcome, res.Executions, res.TotalTouches, recorder.Root())
	return res, nil
}
