package tactile

import "context"

// Executor runs commands.
type Executor interface {
	// Execute runs the command and waits for it. A non-nil error means the
	// command could not be started (or its output could not be read); a
	// command that ran and exited non-zero is reported through the result.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Validate checks if a command can be executed without running it.
	Validate(cmd Command) error
}
