package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mender/internal/runner"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "nested", "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RunLifecycleFromEvents(t *testing.T) {
	l := openTestLedger(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	base := runner.Event{RunID: "run-1", Entry: "main.py", MaxCycles: 2, MaxTouches: 1}
	emit := func(mut func(*runner.Event)) {
		e := base
		mut(&e)
		l.HandleEvent(e)
	}

	emit(func(e *runner.Event) { e.Type = runner.EventRunStarted; e.Time = start })
	emit(func(e *runner.Event) {
		e.Type = runner.EventTouch
		e.Cycle, e.Touch, e.TotalTouches = 1, 1, 1
		e.File, e.Artifact = "/src/app.py", "/logs/run-1/cycle_1/1_app.py.diff"
		e.Time = start.Add(time.Second)
	})
	emit(func(e *runner.Event) { e.Type = runner.EventCycleEnded; e.Cycle = 1 })
	emit(func(e *runner.Event) {
		e.Type = runner.EventTouch
		e.Cycle, e.Touch, e.TotalTouches = 2, 1, 2
		e.File, e.Artifact = "/src/app.py", "/logs/run-1/cycle_2/1_app.py.diff"
		e.Time = start.Add(2 * time.Second)
	})
	emit(func(e *runner.Event) {
		e.Type = runner.EventRunEnded
		e.Cycle, e.TotalTouches, e.Executions = 2, 2, 2
		e.Outcome = runner.OutcomeBudgetExhausted
		e.Error = runner.ErrBudgetExhausted.Error()
		e.Time = start.Add(3 * time.Second)
	})

	runs, err := l.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	want := RunRecord{
		RunID:          "run-1",
		Entry:          "main.py",
		MaxCycles:      2,
		MaxFileTouches: 1,
		StartedAt:      start,
		FinishedAt:     start.Add(3 * time.Second),
		Outcome:        "budget_exhausted",
		Cycles:         2,
		TotalTouches:   2,
		Executions:     2,
		Error:          runner.ErrBudgetExhausted.Error(),
	}
	assert.Empty(t, cmp.Diff(want, runs[0]))

	touches, err := l.Touches("run-1")
	require.NoError(t, err)
	require.Len(t, touches, 2)
	assert.Equal(t, 1, touches[0].Cycle)
	assert.Equal(t, 2, touches[1].Cycle)
	assert.Equal(t, "/logs/run-1/cycle_2/1_app.py.diff", touches[1].Artifact)
}

func TestLedger_RecentRunsNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.StartRun(RunRecord{
			RunID: id, Entry: "x.py", MaxCycles: 1, MaxFileTouches: 1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := l.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Empty(t, runs[0].Outcome, "unfinished run")
	assert.True(t, runs[0].FinishedAt.IsZero())
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	l := openTestLedger(t)
	err := l.FinishRun(RunRecord{RunID: "ghost", FinishedAt: time.Now(), Outcome: "success"})
	assert.Error(t, err)
}

func TestLedger_DuplicateTouchIsLoggedNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l, err := OpenLedger(filepath.Join(t.TempDir(), "history.db"), zap.New(core))
	require.NoError(t, err)
	defer l.Close()

	touch := runner.Event{Type: runner.EventTouch, RunID: "r", Cycle: 1, Touch: 1, File: "f", Artifact: "a", Time: time.Now()}
	l.HandleEvent(touch)
	l.HandleEvent(touch)

	require.Equal(t, 1, logs.FilterMessage("history ledger write failed").Len())
}

func TestLedger_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := OpenLedger(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(RunRecord{RunID: "persisted", Entry: "m.py", MaxCycles: 1, MaxFileTouches: 1, StartedAt: time.Now()}))
	require.NoError(t, l.Close())

	l, err = OpenLedger(path, nil)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.RecentRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].RunID)
	assert.Equal(t, path, l.Path())
}
