package tracking

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
	run_id      TEXT PRIMARY KEY,
	checkpoint  TEXT NOT NULL,
	suffix      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS eval_metrics (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	name    TEXT NOT NULL,
	value   REAL NOT NULL,
	FOREIGN KEY (run_id) REFERENCES eval_runs(run_id)
);
`

// Run is one recorded evaluation run.
type Run struct {
	ID         string
	Checkpoint string
	Suffix     string
	CreatedAt  time.Time
}

// RunStore keeps a registry of evaluation runs and their final metrics
// in SQLite.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens a SQLite database and runs migrations.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun records a new evaluation run and returns it.
func (s *RunStore) CreateRun(checkpoint, suffix string) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Checkpoint: checkpoint,
		Suffix:     suffix,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO eval_runs (run_id, checkpoint, suffix, created_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Checkpoint, run.Suffix, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// RecordMetrics stores the final metrics mapping of a run.
func (s *RunStore) RecordMetrics(runID string, metrics map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO eval_metrics (run_id, name, value) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for name, value := range metrics {
		if _, err := stmt.Exec(runID, name, value); err != nil {
			return fmt.Errorf("insert metric %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// Metrics loads the recorded metrics of a run.
func (s *RunStore) Metrics(runID string) (map[string]float64, error) {
	rows, err := s.db.Query("SELECT name, value FROM eval_metrics WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// ListRuns returns all recorded runs, newest first.
func (s *RunStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query("SELECT run_id, checkpoint, suffix, created_at FROM eval_runs ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var created string
		if err := rows.Scan(&run.ID, &run.Checkpoint, &run.Suffix, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
