// Package runstore persists run history and resume checkpoints in a
// local SQLite database.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sbrops/groundcheck-cli/internal/orch"
)

// Run statuses stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusStopped   = "stopped"
)

// Run is one recorded processing session.
type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"` // run or update
	InputFile  string     `json:"input_file"`
	LogFile    string     `json:"log_file"`
	Status     string     `json:"status"`
	Stats      orch.Stats `json:"stats"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Resume is a checkpoint pointing at the next unprocessed record of an
// input file.
type Resume struct {
	InputFile string    `json:"input_file"`
	NextRow   int       `json:"next_row"` // 1-based record index
	Mode      string    `json:"mode"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store wraps the SQLite database holding runs and resume state.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn and configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runstore: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runstore: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	input_file  TEXT NOT NULL,
	log_file    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS resume_state (
	input_file TEXT PRIMARY KEY,
	next_row   INTEGER NOT NULL,
	mode       TEXT NOT NULL,
	saved_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate applies the schema. Safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runstore: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a processing session.
func (s *Store) CreateRun(ctx context.Context, mode, inputFile, logFile string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		InputFile: inputFile,
		LogFile:   logFile,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, input_file, log_file, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.InputFile, run.LogFile, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runstore: insert run")
	}
	return run, nil
}

// FinishRun closes out a run with its final status and counters.
func (s *Store) FinishRun(ctx context.Context, runID, status string, stats orch.Stats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "runstore: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		status, string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runstore: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runstore: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runstore: run %s not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, input_file, log_file, status, stats, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runstore: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var stats sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Mode, &r.InputFile, &r.LogFile, &r.Status, &stats, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "runstore: scan run")
		}
		if stats.Valid && stats.String != "" {
			if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
				return nil, eris.Wrapf(err, "runstore: decode stats for %s", r.ID)
			}
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "runstore: iterate runs")
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var stats sql.NullString
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mode, input_file, log_file, status, stats, started_at, finished_at
		 FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Mode, &r.InputFile, &r.LogFile, &r.Status, &stats, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("runstore: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runstore: get run %s", runID)
	}
	if stats.Valid && stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
			return nil, eris.Wrapf(err, "runstore: decode stats for %s", r.ID)
		}
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// SaveResume checkpoints the next record to process for an input file,
// replacing any earlier checkpoint.
func (s *Store) SaveResume(ctx context.Context, res Resume) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resume_state (input_file, next_row, mode, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(input_file) DO UPDATE SET next_row = excluded.next_row,
		   mode = excluded.mode, saved_at = excluded.saved_at`,
		res.InputFile, res.NextRow, res.Mode, time.Now().UTC(),
	)
	return eris.Wrap(err, "runstore: save resume state")
}

// LoadResume returns the checkpoint for an input file, or nil when none
// exists.
func (s *Store) LoadResume(ctx context.Context, inputFile string) (*Resume, error) {
	var r Resume
	err := s.db.QueryRowContext(ctx,
		`SELECT input_file, next_row, mode, saved_at FROM resume_state WHERE input_file = ?`,
		inputFile).Scan(&r.InputFile, &r.NextRow, &r.Mode, &r.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runstore: load resume state for %s", inputFile)
	}
	return &r, nil
}

// ClearResume removes the checkpoint for an input file.
func (s *Store) ClearResume(ctx context.Context, inputFile string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM resume_state WHERE input_file = ?`, inputFile)
	return eris.Wrapf(err, "runstore: clear resume state for %s", inputFile)
}
