package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/campuskit/coursemover/internal/output"
	"github.com/campuskit/coursemover/internal/render"
	"github.com/campuskit/coursemover/internal/runlog"
)

type statusReport struct {
	Run      runJSON          `json:"run"`
	Steps    []importStepJSON `json:"steps"`
	Failures []failureJSON    `json:"failures,omitempty"`
}

type runJSON struct {
	ID             int    `json:"id"`
	Command        string `json:"command"`
	SourceCourseID int    `json:"source_course_id"`
	TargetCourseID int    `json:"target_course_id"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a recorded migration run (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		if _, err := os.Stat(cfg.RunLogPath()); os.IsNotExist(err) {
			return cmdErr(fmt.Errorf("no runs recorded yet"), output.ErrNotFound)
		}
		journal, err := runlog.Open(cfg.RunLogPath())
		if err != nil {
			return cmdErr(fmt.Errorf("opening run journal: %w", err), output.ErrGeneral)
		}
		defer journal.Close()

		if list, _ := cmd.Flags().GetBool("list"); list {
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := runlog.ListRuns(journal, limit)
			if err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			if w.JSONMode {
				out := make([]runJSON, 0, len(runs))
				for _, r := range runs {
					out = append(out, toRunJSON(r))
				}
				w.Success(out, "")
				return nil
			}
			rows := make([]render.RunRow, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, toRunRow(r))
			}
			fmt.Fprintln(w.Stdout, render.RenderRunTable(rows))
			return nil
		}

		var run *runlog.Run
		if len(args) == 1 {
			id, convErr := strconv.Atoi(args[0])
			if convErr != nil || id <= 0 {
				return cmdErr(fmt.Errorf("invalid run id %q", args[0]), output.ErrValidation)
			}
			run, err = runlog.RunByID(journal, id)
		} else {
			run, err = runlog.LatestRun(journal)
		}
		if err != nil {
			if errors.Is(err, runlog.ErrNotFound) {
				return cmdErr(fmt.Errorf("no matching run recorded"), output.ErrNotFound)
			}
			return cmdErr(err, output.ErrGeneral)
		}

		steps, err := runlog.StepsForRun(journal, run.ID)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		failures, err := runlog.FailuresForRun(journal, run.ID)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		if w.JSONMode {
			report := statusReport{Run: toRunJSON(run)}
			for _, s := range steps {
				report.Steps = append(report.Steps, importStepJSON{
					Name: s.Name, Status: s.Status,
					Created: s.Created, Updated: s.Updated,
					Skipped: s.Skipped, Failed: s.Failed,
					DurationMS: s.Duration.Milliseconds(),
				})
			}
			for _, f := range failures {
				report.Failures = append(report.Failures, failureJSON{Step: f.Step, Item: f.Item, Detail: f.Detail})
			}
			w.Success(report, "")
			return nil
		}

		stepRows := make([]render.StepRow, 0, len(steps))
		for _, s := range steps {
			stepRows = append(stepRows, render.StepRow{
				Name: s.Name, Status: s.Status,
				Created: s.Created, Updated: s.Updated,
				Skipped: s.Skipped, Failed: s.Failed,
				Duration: s.Duration,
			})
		}
		failureLines := make([]string, 0, len(failures))
		for _, f := range failures {
			failureLines = append(failureLines, fmt.Sprintf("**%s** %s: %s", f.Step, f.Item, f.Detail))
		}

		fmt.Fprintln(w.Stdout, render.RenderRunReport(toRunRow(run), stepRows, failureLines))
		return nil
	},
}

func toRunJSON(r *runlog.Run) runJSON {
	out := runJSON{
		ID:             r.ID,
		Command:        r.Command,
		SourceCourseID: r.SourceCourseID,
		TargetCourseID: r.TargetCourseID,
		Status:         r.Status,
		StartedAt:      r.StartedAt.Format(time.RFC3339),
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return out
}

func toRunRow(r *runlog.Run) render.RunRow {
	return render.RunRow{
		ID:             r.ID,
		Command:        r.Command,
		SourceCourseID: r.SourceCourseID,
		TargetCourseID: r.TargetCourseID,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

func init() {
	statusCmd.Flags().Bool("list", false, "List recent runs instead of one report")
	statusCmd.Flags().Int("limit", 20, "Number of runs to list")
	rootCmd.AddCommand(statusCmd)
}
