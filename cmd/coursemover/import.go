package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/fsutil"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/importer"
	"github.com/campuskit/coursemover/internal/output"
	"github.com/campuskit/coursemover/internal/render"
	"github.com/campuskit/coursemover/internal/runlog"
	"github.com/campuskit/coursemover/internal/transfer"
)

type importReport struct {
	RunID          int              `json:"run_id"`
	SourceCourseID int              `json:"source_course_id"`
	TargetCourseID int              `json:"target_course_id"`
	Status         string           `json:"status"`
	Steps          []importStepJSON `json:"steps"`
	Failures       []failureJSON    `json:"failures,omitempty"`
}

type importStepJSON struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type failureJSON struct {
	Step   string `json:"step"`
	Item   string `json:"item"`
	Detail string `json:"detail"`
}

var importCmd = &cobra.Command{
	Use:   "import <source-course-id> <target-course-id>",
	Short: "Import an exported course into the target instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		sourceID, err := strconv.Atoi(args[0])
		if err != nil || sourceID <= 0 {
			return cmdErr(fmt.Errorf("invalid source course id %q", args[0]), output.ErrValidation)
		}
		targetID, err := strconv.Atoi(args[1])
		if err != nil || targetID <= 0 {
			return cmdErr(fmt.Errorf("invalid target course id %q", args[1]), output.ErrValidation)
		}
		if err := cfg.RequireTarget(); err != nil {
			return cmdErr(err, output.ErrConfig)
		}

		root, _ := cmd.Flags().GetString("export-dir")
		if root == "" {
			root = cfg.ExportDir(sourceID)
		}
		if _, err := os.Stat(root); os.IsNotExist(err) {
			return cmdErr(
				fmt.Errorf("no export found at %s, run 'coursemover export %d' first", root, sourceID),
				output.ErrNotFound,
			)
		}

		log, err := getLogger(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := canvas.New(cfg.Target.BaseURL, cfg.Target.Token, canvas.WithLogger(log))
		if err != nil {
			return cmdErr(err, output.ErrConfig)
		}

		idMapPath := cfg.IDMapPath(sourceID, targetID)
		store, err := idmap.Load(idMapPath)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		manifest, err := transfer.LoadManifest(cfg.ManifestPath())
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		p := importer.New(client, targetID, root, store, idMapPath, log)
		p.SourceCourseID = sourceID
		p.Uploader = transfer.NewUploader(client, targetID, manifest, transfer.WithLogger(log))
		p.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		p.IncludeQuizQuestions, _ = cmd.Flags().GetBool("include-quiz-questions")
		p.OnStep = w.Step

		onDuplicate, _ := cmd.Flags().GetString("on-duplicate")
		switch transfer.DuplicatePolicy(onDuplicate) {
		case transfer.Overwrite, transfer.Rename:
			p.OnDuplicate = transfer.DuplicatePolicy(onDuplicate)
		default:
			return cmdErr(fmt.Errorf("invalid --on-duplicate %q (overwrite or rename)", onDuplicate), output.ErrValidation)
		}

		steps, _ := cmd.Flags().GetStringSlice("step")

		if err := fsutil.EnsureDir(cfg.DataDir); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		journal, err := runlog.Open(cfg.RunLogPath())
		if err != nil {
			return cmdErr(fmt.Errorf("opening run journal: %w", err), output.ErrGeneral)
		}
		defer journal.Close()

		runID, err := runlog.BeginRun(journal, "import", sourceID, targetID)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		results, runErr := p.Run(cmd.Context(), steps)

		for i, r := range results {
			step := runlog.Step{
				RunID:    runID,
				Name:     r.Name,
				Status:   r.Status(),
				Created:  r.Counts.Created,
				Updated:  r.Counts.Updated,
				Skipped:  r.Counts.Skipped,
				Failed:   r.Counts.Failed,
				Duration: r.Duration,
			}
			if err := runlog.RecordStep(journal, step, i); err != nil {
				w.Warn("recording step %s: %v", r.Name, err)
			}
		}
		for _, f := range p.Failures() {
			if err := runlog.RecordFailure(journal, runID, f.Step, f.Item, f.Detail); err != nil {
				w.Warn("recording failure for %s: %v", f.Item, err)
			}
		}

		status := runStatus(results, runErr)
		if err := runlog.FinishRun(journal, runID, status); err != nil {
			w.Warn("recording run outcome: %v", err)
		}

		if runErr != nil {
			return cmdErr(fmt.Errorf("import run %d: %w", runID, runErr), output.ErrAPI)
		}

		report := importReport{
			RunID:          runID,
			SourceCourseID: sourceID,
			TargetCourseID: targetID,
			Status:         status,
		}
		var stepRows []render.StepRow
		for _, r := range results {
			js := importStepJSON{
				Name:       r.Name,
				Status:     r.Status(),
				Created:    r.Counts.Created,
				Updated:    r.Counts.Updated,
				Skipped:    r.Counts.Skipped,
				Failed:     r.Counts.Failed,
				DurationMS: r.Duration.Milliseconds(),
			}
			if r.Err != nil {
				js.Error = r.Err.Error()
			}
			report.Steps = append(report.Steps, js)
			stepRows = append(stepRows, render.StepRow{
				Name: r.Name, Status: r.Status(),
				Created: r.Counts.Created, Updated: r.Counts.Updated,
				Skipped: r.Counts.Skipped, Failed: r.Counts.Failed,
				Duration: r.Duration,
			})
		}
		for _, f := range p.Failures() {
			report.Failures = append(report.Failures, failureJSON{Step: f.Step, Item: f.Item, Detail: f.Detail})
		}

		if w.JSONMode {
			if status == runlog.StatusPartial {
				// Per-item detail stays queryable via 'status <run-id> --json'.
				return cmdErr(
					fmt.Errorf("import run %d finished with %d failed item(s)", runID, len(p.Failures())),
					output.ErrPartial,
				)
			}
			w.Success(report, "")
			return nil
		}

		fmt.Fprintln(w.Stdout, render.RenderStepTable(stepRows))
		if status == runlog.StatusPartial {
			return cmdErr(
				fmt.Errorf("import run %d finished with %d failed item(s), see 'coursemover status %d'",
					runID, len(p.Failures()), runID),
				output.ErrPartial,
			)
		}
		w.Success(nil, fmt.Sprintf("Imported course %d into %d (run %d)", sourceID, targetID, runID))
		return nil
	},
}

// runStatus folds per-step outcomes into one run status.
func runStatus(results []importer.StepResult, runErr error) string {
	if runErr != nil {
		return runlog.StatusFailed
	}
	for _, r := range results {
		if r.Status() != "ok" {
			return runlog.StatusPartial
		}
	}
	return runlog.StatusCompleted
}

func init() {
	importCmd.Flags().StringSlice("step", nil,
		fmt.Sprintf("Run only the named steps (%s)", strings.Join(importer.StepNames, ", ")))
	importCmd.Flags().Bool("continue-on-error", false, "Keep running later steps after a step fails")
	importCmd.Flags().Bool("include-quiz-questions", false, "Also import exported quiz question banks")
	importCmd.Flags().String("on-duplicate", string(transfer.Overwrite), "File name collision policy: overwrite or rename")
	importCmd.Flags().String("export-dir", "", "Export tree to import (default: data dir)")
	rootCmd.AddCommand(importCmd)
}
