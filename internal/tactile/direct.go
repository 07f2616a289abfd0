package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mender/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	config ExecutorConfig
	logger *zap.Logger
}

// Verify DirectExecutor implements Executor
var _ Executor = (*DirectExecutor)(nil)

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor(logger *zap.Logger) *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig(), logger)
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig, logger *zap.Logger) *DirectExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = DefaultExecutorConfig().MaxOutputBytes
	}
	logger.Debug("creating direct executor",
		zap.Duration("timeout", config.DefaultTimeout),
		zap.Int64("max_output_bytes", config.MaxOutputBytes))
	return &DirectExecutor{
		config: config,
		logger: logger,
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", cmd.Timeout)
	}
	return nil
}

// Execute runs a command directly on the host. Stdin is empty. Stdout and
// stderr are drained concurrently and both readers have returned before
// Execute does.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(e.logger, "direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		e.logger.Warn("command validation failed", zap.String("binary", cmd.Binary), zap.Error(err))
		return nil, err
	}

	// Merge config defaults
	cmd = e.config.Merge(cmd)

	e.logger.Debug("executing",
		zap.String("command", cmd.CommandString()),
		zap.String("dir", cmd.WorkingDirectory),
		zap.Duration("timeout", cmd.Timeout))

	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if cmd.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = append(os.Environ(), cmd.Environment...)
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = e.config.KillGrace

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr: %w", err)
	}

	result := &ExecutionResult{ExitCode: -1}
	result.StartedAt = time.Now()
	if err := execCmd.Start(); err != nil {
		e.logger.Error("command failed to start", zap.String("binary", cmd.Binary), zap.Error(err))
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Binary, err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdoutLimited, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderrLimited, stderrPipe)
		return err
	})
	readErr := g.Wait()
	waitErr := execCmd.Wait()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	// Capture output
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Combined = combine(result.Stdout, result.Stderr)

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		e.logger.Warn("command output truncated", zap.Int64("discarded_bytes", result.TruncatedBytes))
	}

	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case execCtx.Err() != nil:
		result.Killed = true
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
		} else {
			result.KillReason = "context canceled"
		}
		e.logger.Warn("command killed", zap.String("binary", cmd.Binary), zap.String("reason", result.KillReason))
		return result, nil
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed to wait for %s: %w", cmd.Binary, waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if readErr != nil {
		return nil, fmt.Errorf("failed to read output of %s: %w", cmd.Binary, readErr)
	}

	e.logger.Debug("command completed",
		zap.String("binary", cmd.Binary),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_bytes", len(result.Stdout)),
		zap.Int("stderr_bytes", len(result.Stderr)))

	return result, nil
}

// combine joins stdout and stderr, keeping a line break between them.
func combine(stdout, stderr string) string {
	if stdout != "" && stderr != "" && stdout[len(stdout)-1] != '\n' {
		return stdout + "\n" + stderr
	}
	return stdout + stderr
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		// Partial write
		lw.truncated = true
		toWrite := p[:remaining]
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(toWrite)
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
