package runner

import (
	"errors"
	"time"
)

var (
	// ErrNoPatchableFiles ends a run whose failure trace names no existing file.
	ErrNoPatchableFiles = errors.New("no patchable files found in failure trace")

	// ErrBudgetExhausted ends a run that used every cycle without success.
	ErrBudgetExhausted = errors.New("max cycles exhausted without success")
)

// Outcome is the terminal state of a run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeNoPatchableFiles
	OutcomeBudgetExhausted
)

// String returns the outcome name used in logs and the history ledger.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeNoPatchableFiles:
		return "no_patchable_files"
	case OutcomeBudgetExhausted:
		return "budget_exhausted"
	default:
		return "unknown"
	}
}

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeNoPatchableFiles:
		return 2
	case OutcomeBudgetExhausted:
		return 3
	default:
		return 1
	}
}

// Result summarizes a finished run.
type Result struct {
	Outcome      Outcome
	Cycles       int // cycles started
	TotalTouches int
	Executions   int
	Err          error // nil on success
}

// EventType categorizes run events.
type EventType string

const (
	EventRunStarted EventType = "run_started"
	EventTouch      EventType = "touch"
	EventStuck      EventType = "stuck"
	EventCycleEnded EventType = "cycle_ended"
	EventRunEnded   EventType = "run_ended"
)

// Event is emitted by the run loop at each state transition. Touch and
// Artifact are set for EventTouch; Outcome and Error for EventRunEnded.
type Event struct {
	Type         EventType
	RunID        string
	Entry        string
	MaxCycles    int
	MaxTouches   int // per cycle
	Cycle        int
	Touch        int // touches in the current cycle
	TotalTouches int
	Executions   int
	File         string
	Artifact     string
	Outcome      Outcome
	Error        string
	Time         time.Time
}

// Subscriber receives run events synchronously, in order.
type Subscriber interface {
	HandleEvent(Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event)

// HandleEvent calls f(e).
func (f SubscriberFunc) HandleEvent(e Event) { f(e) }
