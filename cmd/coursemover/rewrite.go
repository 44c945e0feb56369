package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/output"
	"github.com/campuskit/coursemover/internal/rewrite"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <source-course-id> <target-course-id>",
	Short: "Rewrite course links in an export tree using the recorded id map",
	Long: `Rewrite walks the export tree and repoints every mapped resource link
from the source course to the target course. It is offline: no instance is
contacted, so it can be run and re-run safely. The import pipeline performs
the same pass automatically; this command exists for inspection and repair.`,
	Args: cobra.ExactArgs(2),
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

		root, _ := cmd.Flags().GetString("export-dir")
		if root == "" {
			root = cfg.ExportDir(sourceID)
		}
		if _, err := os.Stat(root); os.IsNotExist(err) {
			return cmdErr(fmt.Errorf("no export found at %s", root), output.ErrNotFound)
		}

		idMapPath, _ := cmd.Flags().GetString("id-map")
		if idMapPath == "" {
			idMapPath = cfg.IDMapPath(sourceID, targetID)
			if _, err := os.Stat(idMapPath); os.IsNotExist(err) {
				idMapPath = cfg.DefaultIDMapPath()
			}
		}
		store, err := idmap.Load(idMapPath)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rep, err := rewrite.ProcessTree(root, sourceID, targetID, store, dryRun)
		if err != nil {
			return cmdErr(fmt.Errorf("rewriting %s: %w", root, err), output.ErrGeneral)
		}

		message := fmt.Sprintf("Rewrote %d of %d file(s), %d link(s) unresolved",
			rep.Changed, rep.Scanned, rep.Unresolved)
		if dryRun {
			message = fmt.Sprintf("Would rewrite %d of %d file(s), %d link(s) unresolved",
				rep.Changed, rep.Scanned, rep.Unresolved)
		}

		w.Success(struct {
			DryRun       bool     `json:"dry_run"`
			Scanned      int      `json:"scanned"`
			Changed      int      `json:"changed"`
			Unresolved   int      `json:"unresolved"`
			ChangedFiles []string `json:"changed_files,omitempty"`
		}{
			DryRun:       dryRun,
			Scanned:      rep.Scanned,
			Changed:      rep.Changed,
			Unresolved:   rep.Unresolved,
			ChangedFiles: rep.ChangedFiles,
		}, message)

		if !w.JSONMode && dryRun {
			for _, f := range rep.ChangedFiles {
				w.Info("would change %s", f)
			}
		}
		return nil
	},
}

func init() {
	rewriteCmd.Flags().Bool("dry-run", false, "Report files that would change without writing")
	rewriteCmd.Flags().String("export-dir", "", "Export tree to rewrite (default: data dir)")
	rewriteCmd.Flags().String("id-map", "", "Id map file (default: the course pair's map)")
	rootCmd.AddCommand(rewriteCmd)
}
