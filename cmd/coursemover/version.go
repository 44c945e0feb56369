package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		if w.JSONMode {
			w.Success(struct {
				Version   string `json:"version"`
				Commit    string `json:"commit"`
				BuildDate string `json:"build_date"`
			}{Version: version, Commit: commit, BuildDate: buildDate}, "")
			return nil
		}
		fmt.Fprintf(w.Stdout, "coursemover %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
