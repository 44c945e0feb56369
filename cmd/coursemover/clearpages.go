package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/output"
)

var clearPagesCmd = &cobra.Command{
	Use:   "clear-pages <target-course-id>",
	Short: "Delete every page on the target course (destructive)",
	Long: `Clear-pages removes all wiki pages from the target course so a fresh
import does not pile pages onto a half-migrated one. It touches pages only;
other resource kinds are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		courseID, err := strconv.Atoi(args[0])
		if err != nil || courseID <= 0 {
			return cmdErr(fmt.Errorf("invalid course id %q", args[0]), output.ErrValidation)
		}
		if err := cfg.RequireTarget(); err != nil {
			return cmdErr(err, output.ErrConfig)
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			if w.JSONMode {
				return cmdErr(fmt.Errorf("clear-pages requires --force in JSON mode"), output.ErrValidation)
			}
			var confirmed bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete ALL pages on course %d?", courseID)).
						Affirmative("Yes, delete them").
						Negative("Cancel").
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
			}
			if !confirmed {
				w.Info("Cancelled.")
				return nil
			}
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

		ctx := cmd.Context()
		pages, err := client.GetList(ctx, fmt.Sprintf("courses/%d/pages", courseID), nil)
		if err != nil {
			return cmdErr(fmt.Errorf("listing pages: %w", err), output.ErrAPI)
		}

		deleted, failed := 0, 0
		for _, page := range pages {
			slug := canvas.String(page, "url")
			if slug == "" {
				continue
			}
			if _, err := client.Delete(ctx, fmt.Sprintf("courses/%d/pages/%s", courseID, slug)); err != nil {
				failed++
				w.Warn("deleting page %q: %v", slug, err)
				continue
			}
			deleted++
		}

		if failed > 0 {
			return cmdErr(
				fmt.Errorf("deleted %d page(s), %d could not be deleted", deleted, failed),
				output.ErrPartial,
			)
		}
		w.Success(struct {
			Deleted int `json:"deleted"`
		}{Deleted: deleted}, fmt.Sprintf("Deleted %d page(s)", deleted))
		return nil
	},
}

func init() {
	clearPagesCmd.Flags().Bool("force", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(clearPagesCmd)
}
