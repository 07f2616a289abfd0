package runner

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunContext carries the state of one run: its budgets, counters and
// logger. Counters are mutated only by Runner.Run.
type RunContext struct {
	RunID          string
	Entry          string
	MaxCycles      int
	MaxFileTouches int

	Cycle        int
	TotalTouches int
	Executions   int

	Logger *zap.Logger
}

// NewRunContext validates the budgets and assigns a fresh run ID.
func NewRunContext(entry string, maxCycles, maxFileTouches int, logger *zap.Logger) (*RunContext, error) {
	if entry == "" {
		return nil, fmt.Errorf("entry program is required")
	}
	if maxCycles < 1 {
		return nil, fmt.Errorf("max cycles must be at least 1, got %d", maxCycles)
	}
	if maxFileTouches < 1 {
		return nil, fmt.Errorf("max file touches must be at least 1, got %d", maxFileTouches)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunContext{
		RunID:          uuid.NewString(),
		Entry:          entry,
		MaxCycles:      maxCycles,
		MaxFileTouches: maxFileTouches,
		Logger:         logger,
	}, nil
}

func (rc *RunContext) logger() *zap.Logger {
	if rc.Logger == nil {
		return zap.NewNop()
	}
	return rc.Logger
}
