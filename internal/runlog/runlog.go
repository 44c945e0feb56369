// Package runlog keeps a journal of migration runs in a local SQLite
// database. The status command reads it; export and import write it.
package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Run is one recorded invocation of export or import.
type Run struct {
	ID             int
	Command        string
	SourceCourseID int
	TargetCourseID int
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time // zero while running
}

// Step is the per-step counter row for a run.
type Step struct {
	RunID    int
	Name     string
	Status   string
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Failure records one item that a step could not migrate.
type Failure struct {
	RunID    int
	Step     string
	Item     string
	Detail   string
	LoggedAt time.Time
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	command          TEXT NOT NULL,
	source_course_id INTEGER NOT NULL,
	target_course_id INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       TEXT NOT NULL,
	finished_at      TEXT
);

CREATE TABLE IF NOT EXISTS steps (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	position    INTEGER NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS failures (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	step      TEXT NOT NULL,
	item      TEXT NOT NULL,
	detail    TEXT,
	logged_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);
`

// Open opens or creates the run journal at the given path and ensures the
// schema exists. It sets pragmas for WAL mode, foreign key enforcement, and
// busy timeout.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening run journal: %w", err)
	}

	// SQLite is single-writer; limit the pool to one connection to avoid
	// lock contention and make the single-connection intent explicit.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initialize(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaDDL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err = tx.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(currentSchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	return tx.Commit()
}

// BeginRun inserts a new running row and returns its ID.
func BeginRun(db *sql.DB, command string, sourceCourseID, targetCourseID int) (int, error) {
	res, err := db.Exec(
		`INSERT INTO runs (command, source_course_id, target_course_id, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		command, sourceCourseID, targetCourseID, StatusRunning, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return int(id), nil
}

// FinishRun sets the final status and finish time for a run.
func FinishRun(db *sql.DB, runID int, status string) error {
	res, err := db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, now(), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordStep upserts the counter row for one step of a run. Position orders
// steps in reports the way they ran.
func RecordStep(db *sql.DB, step Step, position int) error {
	_, err := db.Exec(
		`INSERT INTO steps (run_id, name, status, created, updated, skipped, failed, duration_ms, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET
		   status = excluded.status,
		   created = excluded.created,
		   updated = excluded.updated,
		   skipped = excluded.skipped,
		   failed = excluded.failed,
		   duration_ms = excluded.duration_ms`,
		step.RunID, step.Name, step.Status,
		step.Created, step.Updated, step.Skipped, step.Failed,
		step.Duration.Milliseconds(), position,
	)
	if err != nil {
		return fmt.Errorf("recording step %q: %w", step.Name, err)
	}
	return nil
}

// RecordFailure appends one failed item to the journal.
func RecordFailure(db *sql.DB, runID int, step, item, detail string) error {
	_, err := db.Exec(
		`INSERT INTO failures (run_id, step, item, detail, logged_at) VALUES (?, ?, ?, ?, ?)`,
		runID, step, item, detail, now(),
	)
	if err != nil {
		return fmt.Errorf("recording failure for %q: %w", item, err)
	}
	return nil
}

// LatestRun returns the most recently started run, or ErrNotFound when the
// journal is empty.
func LatestRun(db *sql.DB) (*Run, error) {
	row := db.QueryRow(
		`SELECT id, command, source_course_id, target_course_id, status, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT 1`,
	)
	return scanRun(row)
}

// RunByID returns one run by its journal ID.
func RunByID(db *sql.DB, id int) (*Run, error) {
	row := db.QueryRow(
		`SELECT id, command, source_course_id, target_course_id, status, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, command, source_course_id, target_course_id, status, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StepsForRun returns the step rows of a run in execution order.
func StepsForRun(db *sql.DB, runID int) ([]Step, error) {
	rows, err := db.Query(
		`SELECT run_id, name, status, created, updated, skipped, failed, duration_ms
		 FROM steps WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing steps for run %d: %w", runID, err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var durationMS int64
		if err := rows.Scan(&s.RunID, &s.Name, &s.Status, &s.Created, &s.Updated, &s.Skipped, &s.Failed, &durationMS); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// FailuresForRun returns the failed items of a run in logged order.
func FailuresForRun(db *sql.DB, runID int) ([]Failure, error) {
	rows, err := db.Query(
		`SELECT run_id, step, item, detail, logged_at
		 FROM failures WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing failures for run %d: %w", runID, err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		var detail sql.NullString
		var logged string
		if err := rows.Scan(&f.RunID, &f.Step, &f.Item, &detail, &logged); err != nil {
			return nil, err
		}
		f.Detail = detail.String
		f.LoggedAt = parseTime(logged)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started string
	var finished sql.NullString
	err := s.Scan(&r.ID, &r.Command, &r.SourceCourseID, &r.TargetCourseID, &r.Status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return &r, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
