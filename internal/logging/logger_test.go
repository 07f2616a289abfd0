package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_TeesConsoleAndRunLog(t *testing.T) {
	dir := t.TempDir()
	runLog := filepath.Join(dir, "nested", RunLogName)

	var console bytes.Buffer
	l, err := New(Options{Level: "info", Console: &console, RunLogPath: runLog})
	require.NoError(t, err)

	For(l.Logger, CategoryRunner).Info("cycle complete", zap.Int("cycle", 1), zap.Int("touches", 2))
	require.NoError(t, l.Close())

	assert.Contains(t, console.String(), "cycle complete")
	assert.Contains(t, console.String(), "runner")

	f, err := os.Open(runLog)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "run log should have one line")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.Equal(t, "runner", entry["logger"])
	assert.EqualValues(t, 1, entry["cycle"])
	assert.EqualValues(t, 2, entry["touches"])
}

func TestNew_RunLogIsAppendOnly(t *testing.T) {
	runLog := filepath.Join(t.TempDir(), RunLogName)

	for i := 0; i < 2; i++ {
		l, err := New(Options{Console: &bytes.Buffer{}, RunLogPath: runLog})
		require.NoError(t, err)
		l.Info("run finished", zap.Int("run", i))
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(runLog)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestNew_LevelFiltersBothSinks(t *testing.T) {
	runLog := filepath.Join(t.TempDir(), RunLogName)
	var console bytes.Buffer

	l, err := New(Options{Level: "warn", Console: &console, RunLogPath: runLog})
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	require.NoError(t, l.Close())

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")

	data, err := os.ReadFile(runLog)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestFor_NilParentIsNoop(t *testing.T) {
	l := For(nil, CategoryPatch)
	require.NotNil(t, l)
	l.Info("goes nowhere")
}

func TestTimer_StopWithThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	timer := StartTimer(logger, "program execution")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, "program execution was slow", logs.All()[0].Message)

	StartTimer(logger, "quick").StopWithThreshold(time.Hour)
	assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
}
