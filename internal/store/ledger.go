// Package store persists a ledger of repair runs and their touches in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mender/internal/runner"
)

// Fixed-width UTC timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID          string
	Entry          string
	MaxCycles      int
	MaxFileTouches int
	StartedAt      time.Time
	FinishedAt     time.Time // zero while the run is in progress
	Outcome        string    // empty while the run is in progress
	Cycles         int
	TotalTouches   int
	Executions     int
	Error          string
}

// TouchRecord is one applied patch.
type TouchRecord struct {
	RunID     string
	Cycle     int
	Touch     int
	File      string
	Artifact  string
	CreatedAt time.Time
}

// Ledger is a SQLite-backed history of runs. It implements
// runner.Subscriber so it can be attached to a Runner directly.
type Ledger struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	logger *zap.Logger
}

var _ runner.Subscriber = (*Ledger)(nil)

// OpenLedger opens (creating if needed) the database at path.
func OpenLedger(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the run loop is sequential.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, dbPath: path, logger: logger}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		entry TEXT NOT NULL,
		max_cycles INTEGER NOT NULL,
		max_file_touches INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		outcome TEXT,
		cycles INTEGER DEFAULT 0,
		total_touches INTEGER DEFAULT 0,
		executions INTEGER DEFAULT 0,
		error TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	touchesTable := `
	CREATE TABLE IF NOT EXISTS touches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		cycle INTEGER NOT NULL,
		touch INTEGER NOT NULL,
		file TEXT NOT NULL,
		artifact TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(run_id, cycle, touch)
	);
	CREATE INDEX IF NOT EXISTS idx_touches_run ON touches(run_id);
	`

	for _, table := range []string{runsTable, touchesTable} {
		if _, err := l.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a run in progress.
func (l *Ledger) StartRun(rec RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		INSERT INTO runs (run_id, entry, max_cycles, max_file_touches, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.Entry, rec.MaxCycles, rec.MaxFileTouches, rec.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordTouch appends one applied patch to a run.
func (l *Ledger) RecordTouch(rec TouchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		INSERT INTO touches (run_id, cycle, touch, file, artifact, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Cycle, rec.Touch, rec.File, rec.Artifact, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert touch: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run.
func (l *Ledger) FinishRun(rec RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(`
		UPDATE runs
		SET finished_at = ?, outcome = ?, cycles = ?, total_touches = ?, executions = ?, error = ?
		WHERE run_id = ?`,
		rec.FinishedAt.UTC().Format(timeLayout), rec.Outcome, rec.Cycles, rec.TotalTouches,
		rec.Executions, rec.Error, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", rec.RunID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT run_id, entry, max_cycles, max_file_touches, started_at,
		       finished_at, outcome, cycles, total_touches, executions, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started           string
			finished, outcome sql.NullString
			errText           sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Entry, &rec.MaxCycles, &rec.MaxFileTouches, &started,
			&finished, &outcome, &rec.Cycles, &rec.TotalTouches, &rec.Executions, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.StartedAt, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			rec.FinishedAt, _ = time.Parse(timeLayout, finished.String)
		}
		rec.Outcome = outcome.String
		rec.Error = errText.String
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Touches returns the touches of a run in the order they were applied.
func (l *Ledger) Touches(runID string) ([]TouchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT run_id, cycle, touch, file, artifact, created_at
		FROM touches
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query touches: %w", err)
	}
	defer rows.Close()

	var touches []TouchRecord
	for rows.Next() {
		var rec TouchRecord
		var created string
		if err := rows.Scan(&rec.RunID, &rec.Cycle, &rec.Touch, &rec.File, &rec.Artifact, &created); err != nil {
			return nil, fmt.Errorf("failed to scan touch: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, created)
		touches = append(touches, rec)
	}
	return touches, rows.Err()
}

// HandleEvent records run start, touches and run end. Failures are logged;
// the ledger never interrupts a run.
func (l *Ledger) HandleEvent(e runner.Event) {
	var err error
	switch e.Type {
	case runner.EventRunStarted:
		err = l.StartRun(RunRecord{
			RunID:          e.RunID,
			Entry:          e.Entry,
			MaxCycles:      e.MaxCycles,
			MaxFileTouches: e.MaxTouches,
			StartedAt:      e.Time,
		})
	case runner.EventTouch:
		err = l.RecordTouch(TouchRecord{
			RunID:     e.RunID,
			Cycle:     e.Cycle,
			Touch:     e.Touch,
			File:      e.File,
			Artifact:  e.Artifact,
			CreatedAt: e.Time,
		})
	case runner.EventRunEnded:
		err = l.FinishRun(RunRecord{
			RunID:        e.RunID,
			FinishedAt:   e.Time,
			Outcome:      e.Outcome.String(),
			Cycles:       e.Cycle,
			TotalTouches: e.TotalTouches,
			Executions:   e.Executions,
			Error:        e.Error,
		})
	default:
		return
	}
	if err != nil {
		l.logger.Warn("history ledger write failed",
			zap.String("event", string(e.Type)),
			zap.String("run_id", e.RunID),
			zap.Error(err))
	}
}
