// Package runner drives the bounded repair loop: execute the program, and on
// failure patch one implicated file at a time until it succeeds or the cycle
// and touch budgets run out.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mender/internal/patch"
	"mender/internal/tactile"
	"mender/internal/trace"
)

// Patcher applies one transformation to one file. patch.Applier is the
// production implementation.
type Patcher interface {
	Apply(ctx context.Context, path, trace string, cycle, touch int) (bool, error)
	ArtifactPath(cycle, touch int, path string) string
}

// Runner wires the collaborators of the loop. A Runner holds no per-run
// state, so one Runner may serve several RunContexts.
type Runner struct {
	program     tactile.ProgramRunner
	extractor   trace.Extractor
	patcher     Patcher
	subscribers []Subscriber
}

// New creates a Runner.
func New(program tactile.ProgramRunner, extractor trace.Extractor, patcher Patcher) *Runner {
	return &Runner{
		program:   program,
		extractor: extractor,
		patcher:   patcher,
	}
}

// Subscribe registers s for events of every subsequent run.
func (r *Runner) Subscribe(s Subscriber) {
	r.subscribers = append(r.subscribers, s)
}

// Run executes the loop for rc until a terminal outcome.
func (r *Runner) Run(ctx context.Context, rc *RunContext) Result {
	log := rc.logger().With(zap.String("run_id", rc.RunID))
	log.Info("run started",
		zap.String("entry", rc.Entry),
		zap.Int("max_cycles", rc.MaxCycles),
		zap.Int("max_file_touches", rc.MaxFileTouches))
	r.emit(rc, Event{Type: EventRunStarted})

	for cycle := 1; cycle <= rc.MaxCycles; cycle++ {
		rc.Cycle = cycle
		touches := 0

		for touches < rc.MaxFileTouches {
			if err := ctx.Err(); err != nil {
				return r.finish(rc, log, OutcomeError, err)
			}

			res, err := r.program.Run(ctx, rc.Entry)
			rc.Executions++
			if err != nil {
				return r.finish(rc, log, OutcomeError, fmt.Errorf("execute %s: %w", rc.Entry, err))
			}
			if res.Succeeded {
				return r.finish(rc, log, OutcomeSuccess, nil)
			}
			if err := ctx.Err(); err != nil {
				// The executor killed the child; its output is not a failure trace.
				return r.finish(rc, log, OutcomeError, fmt.Errorf("execute %s: %w", rc.Entry, err))
			}
			log.Info("program failed",
				zap.Int("cycle", cycle),
				zap.Int("exit_code", res.ExitCode),
				zap.Duration("duration", res.Duration))

			candidates := r.extractor.Files(res.Output)
			if len(candidates) == 0 {
				return r.finish(rc, log, OutcomeNoPatchableFiles, ErrNoPatchableFiles)
			}

			file, err := r.patchFirst(ctx, log, candidates, res.Output, cycle, touches+1)
			if err != nil {
				return r.finish(rc, log, OutcomeError, err)
			}
			if file == "" {
				log.Warn("stuck: no candidate file changed",
					zap.Int("cycle", cycle),
					zap.Int("candidates", len(candidates)))
				r.emit(rc, Event{Type: EventStuck, Touch: touches})
				break
			}

			touches++
			rc.TotalTouches++
			log.Info("touch recorded",
				zap.Int("cycle", cycle),
				zap.Int("touch", touches),
				zap.Int("total_touches", rc.TotalTouches),
				zap.String("file", file))
			r.emit(rc, Event{
				Type:     EventTouch,
				Touch:    touches,
				File:     file,
				Artifact: r.patcher.ArtifactPath(cycle, touches, file),
			})
		}

		log.Info("cycle complete", zap.Int("cycle", cycle), zap.Int("touches", touches))
		r.emit(rc, Event{Type: EventCycleEnded, Touch: touches})
	}

	return r.finish(rc, log, OutcomeBudgetExhausted, ErrBudgetExhausted)
}

// patchFirst tries candidates in order and returns the first one whose
// content changed, or "" when none did. Only local I/O failures are
// returned as errors; collaborator failures count as no change.
func (r *Runner) patchFirst(ctx context.Context, log *zap.Logger, candidates []string, failure string, cycle, touch int) (string, error) {
	for _, path := range candidates {
		changed, err := r.patcher.Apply(ctx, path, failure, cycle, touch)
		if err != nil {
			if errors.Is(err, patch.ErrIO) {
				return "", err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("transform %s: %w", path, ctxErr)
			}
			log.Warn("transformation failed", zap.String("file", path), zap.Error(err))
			continue
		}
		if changed {
			return path, nil
		}
		log.Debug("no change for candidate", zap.String("file", path))
	}
	return "", nil
}

func (r *Runner) finish(rc *RunContext, log *zap.Logger, outcome Outcome, err error) Result {
	fields := []zap.Field{
		zap.String("outcome", outcome.String()),
		zap.Int("cycles", rc.Cycle),
		zap.Int("total_touches", rc.TotalTouches),
		zap.Int("executions", rc.Executions),
	}
	switch outcome {
	case OutcomeSuccess:
		log.Info("program succeeded", fields...)
	case OutcomeNoPatchableFiles:
		log.Error("no patchable files found; aborting", fields...)
	case OutcomeBudgetExhausted:
		log.Error("max cycles exhausted without success", fields...)
	default:
		log.Error("run aborted", append(fields, zap.Error(err))...)
	}

	ev := Event{Type: EventRunEnded, Outcome: outcome}
	if err != nil {
		ev.Error = err.Error()
	}
	r.emit(rc, ev)

	return Result{
		Outcome:      outcome,
		Cycles:       rc.Cycle,
		TotalTouches: rc.TotalTouches,
		Executions:   rc.Executions,
		Err:          err,
	}
}

func (r *Runner) emit(rc *RunContext, e Event) {
	e.RunID = rc.RunID
	e.Entry = rc.Entry
	e.MaxCycles = rc.MaxCycles
	e.MaxTouches = rc.MaxFileTouches
	if e.Cycle == 0 {
		e.Cycle = rc.Cycle
	}
	e.TotalTouches = rc.TotalTouches
	e.Executions = rc.Executions
	e.Time = time.Now()
	for _, s := range r.subscribers {
		s.HandleEvent(e)
	}
}
