package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/config"
	"github.com/campuskit/coursemover/internal/logging"
	"github.com/campuskit/coursemover/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const cfgKey contextKey = "cfg"

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

var rootCmd = &cobra.Command{
	Use:     "coursemover",
	Short:   "Move a course between platform instances, links intact",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve()
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	return output.New(jsonMode, quietMode)
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return logging.New(verbose)
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
		quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Error(err, output.ErrGeneral)
	}
	return 0
}
