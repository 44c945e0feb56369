package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/export"
	"github.com/campuskit/coursemover/internal/fsutil"
	"github.com/campuskit/coursemover/internal/output"
	"github.com/campuskit/coursemover/internal/runlog"
)

var exportCmd = &cobra.Command{
	Use:   "export <course-id>",
	Short: "Export a course from the source instance into a local tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		courseID, err := strconv.Atoi(args[0])
		if err != nil || courseID <= 0 {
			return cmdErr(fmt.Errorf("invalid course id %q", args[0]), output.ErrValidation)
		}
		if err := cfg.RequireSource(); err != nil {
			return cmdErr(err, output.ErrConfig)
		}

		log, err := getLogger(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := canvas.New(cfg.Source.BaseURL, cfg.Source.Token, canvas.WithLogger(log))
		if err != nil {
			return cmdErr(err, output.ErrConfig)
		}

		root, _ := cmd.Flags().GetString("out")
		if root == "" {
			root = cfg.ExportDir(courseID)
		}

		if err := fsutil.EnsureDir(cfg.DataDir); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		journal, err := runlog.Open(cfg.RunLogPath())
		if err != nil {
			return cmdErr(fmt.Errorf("opening run journal: %w", err), output.ErrGeneral)
		}
		defer journal.Close()

		runID, err := runlog.BeginRun(journal, "export", courseID, 0)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		e := export.New(client, courseID, root, log)
		e.IncludeQuizQuestions, _ = cmd.Flags().GetBool("include-quiz-questions")

		w.Step(fmt.Sprintf("exporting course %d", courseID))
		summary, err := e.Run(cmd.Context())
		if err != nil {
			if ferr := runlog.FinishRun(journal, runID, runlog.StatusFailed); ferr != nil {
				w.Warn("recording run outcome: %v", ferr)
			}
			return cmdErr(fmt.Errorf("exporting course %d: %w", courseID, err), output.ErrAPI)
		}
		if err := runlog.FinishRun(journal, runID, runlog.StatusCompleted); err != nil {
			w.Warn("recording run outcome: %v", err)
		}

		w.Success(struct {
			Root    string          `json:"root"`
			Summary *export.Summary `json:"summary"`
		}{Root: root, Summary: summary},
			fmt.Sprintf("Exported %q to %s", summary.Course.Name, root))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "Export tree directory (default: data dir)")
	exportCmd.Flags().Bool("include-quiz-questions", false, "Also export quiz question banks")
	rootCmd.AddCommand(exportCmd)
}
