package runlog

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func mustOpen(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := mustOpen(t)

	for _, table := range []string{"meta", "runs", "steps", "failures"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestBeginAndFinishRun(t *testing.T) {
	db := mustOpen(t)

	id, err := BeginRun(db, "import", 123, 456)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	run, err := RunByID(db, id)
	if err != nil {
		t.Fatalf("RunByID: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("status = %q, want %q", run.Status, StatusRunning)
	}
	if run.SourceCourseID != 123 || run.TargetCourseID != 456 {
		t.Errorf("course pair = %d -> %d, want 123 -> 456", run.SourceCourseID, run.TargetCourseID)
	}
	if !run.FinishedAt.IsZero() {
		t.Error("expected zero FinishedAt while running")
	}

	if err := FinishRun(db, id, StatusCompleted); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err = RunByID(db, id)
	if err != nil {
		t.Fatalf("RunByID after finish: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, StatusCompleted)
	}
	if run.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	db := mustOpen(t)

	err := FinishRun(db, 999, StatusFailed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLatestRun(t *testing.T) {
	db := mustOpen(t)

	if _, err := LatestRun(db); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty journal err = %v, want ErrNotFound", err)
	}

	if _, err := BeginRun(db, "export", 1, 0); err != nil {
		t.Fatal(err)
	}
	second, err := BeginRun(db, "import", 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := LatestRun(db)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != second {
		t.Errorf("latest.ID = %d, want %d", latest.ID, second)
	}
	if latest.Command != "import" {
		t.Errorf("latest.Command = %q, want %q", latest.Command, "import")
	}
}

func TestRecordStepUpsert(t *testing.T) {
	db := mustOpen(t)

	runID, err := BeginRun(db, "import", 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	step := Step{RunID: runID, Name: "pages", Status: "ok", Created: 3, Duration: 2 * time.Second}
	if err := RecordStep(db, step, 0); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}

	// Re-recording the same step replaces the counters.
	step.Created = 5
	step.Status = "partial"
	step.Failed = 1
	if err := RecordStep(db, step, 0); err != nil {
		t.Fatalf("RecordStep upsert: %v", err)
	}

	steps, err := StepsForRun(db, runID)
	if err != nil {
		t.Fatalf("StepsForRun: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(steps))
	}
	got := steps[0]
	if got.Created != 5 || got.Failed != 1 || got.Status != "partial" {
		t.Errorf("step = %+v, want upserted counters", got)
	}
	if got.Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", got.Duration)
	}
}

func TestStepsForRunOrderedByPosition(t *testing.T) {
	db := mustOpen(t)

	runID, err := BeginRun(db, "import", 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	// Record out of order; position determines the report order.
	if err := RecordStep(db, Step{RunID: runID, Name: "modules", Status: "ok"}, 2); err != nil {
		t.Fatal(err)
	}
	if err := RecordStep(db, Step{RunID: runID, Name: "pages", Status: "ok"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := RecordStep(db, Step{RunID: runID, Name: "files", Status: "ok"}, 1); err != nil {
		t.Fatal(err)
	}

	steps, err := StepsForRun(db, runID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pages", "files", "modules"}
	for i, name := range want {
		if steps[i].Name != name {
			t.Errorf("steps[%d].Name = %q, want %q", i, steps[i].Name, name)
		}
	}
}

func TestRecordAndListFailures(t *testing.T) {
	db := mustOpen(t)

	runID, err := BeginRun(db, "import", 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := RecordFailure(db, runID, "files", "lecture01.pdf", "403 Forbidden"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := RecordFailure(db, runID, "quizzes", "Quiz 3", "timeout"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	failures, err := FailuresForRun(db, runID)
	if err != nil {
		t.Fatalf("FailuresForRun: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("len(failures) = %d, want 2", len(failures))
	}
	if failures[0].Item != "lecture01.pdf" || failures[0].Detail != "403 Forbidden" {
		t.Errorf("failures[0] = %+v", failures[0])
	}
	if failures[1].Step != "quizzes" {
		t.Errorf("failures[1].Step = %q, want quizzes", failures[1].Step)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := mustOpen(t)

	for i := 0; i < 3; i++ {
		if _, err := BeginRun(db, "export", 1, 0); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := ListRuns(db, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID <= runs[1].ID {
		t.Errorf("runs not newest first: %d then %d", runs[0].ID, runs[1].ID)
	}
}
