package tactile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProgramResult is what the run loop needs to know about one execution.
type ProgramResult struct {
	// Succeeded is true only for exit status 0.
	Succeeded bool

	// Output is stdout followed by stderr; the failure trace when !Succeeded.
	Output string

	ExitCode  int
	Duration  time.Duration
	Killed    bool
	Truncated bool
}

// ProgramRunner executes the target program once.
type ProgramRunner interface {
	Run(ctx context.Context, entry string) (ProgramResult, error)
}

// Program launches an entry point through an optional interpreter.
type Program struct {
	executor    Executor
	interpreter string
	workDir     string
	logger      *zap.Logger
}

// Verify Program implements ProgramRunner
var _ ProgramRunner = (*Program)(nil)

// NewProgram builds a runner that executes `<interpreter> <entry>`, or the
// entry itself when interpreter is empty.
func NewProgram(executor Executor, interpreter, workDir string, logger *zap.Logger) *Program {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Program{
		executor:    executor,
		interpreter: interpreter,
		workDir:     workDir,
		logger:      logger,
	}
}

// Command returns the command used to launch entry.
func (p *Program) Command(entry string) Command {
	cmd := Command{
		Binary:           entry,
		WorkingDirectory: p.workDir,
	}
	if p.interpreter != "" {
		cmd.Binary = p.interpreter
		cmd.Arguments = []string{entry}
	}
	return cmd
}

// Run executes the program and waits for it. The error is non-nil only when
// the program could not be launched.
func (p *Program) Run(ctx context.Context, entry string) (ProgramResult, error) {
	res, err := p.executor.Execute(ctx, p.Command(entry))
	if err != nil {
		return ProgramResult{}, err
	}

	out := ProgramResult{
		Succeeded: res.Succeeded(),
		Output:    res.Combined,
		ExitCode:  res.ExitCode,
		Duration:  res.Duration,
		Killed:    res.Killed,
		Truncated: res.Truncated,
	}
	p.logger.Info("program finished",
		zap.String("entry", entry),
		zap.Int("exit_code", out.ExitCode),
		zap.Bool("succeeded", out.Succeeded),
		zap.Duration("duration", out.Duration))
	return out, nil
}
