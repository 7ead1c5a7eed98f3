// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	logger  *zap.Logger
)

// NewRootCmd constructs the qarun root Cobra command.
func NewRootCmd() *cobra.Command {
	version := os.Getenv("QARUN_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "qarun",
		Short:         "qarun - QA test execution orchestrator",
		Long: `qarun decides which test workspace and command to run, validates
prerequisites (with self-healing where safe), executes the tests with a
one-shot retry, and reports where the generated artifacts live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			config.Encoding = "console"
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of qarun",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "qarun version %s\n", version)
		},
	})

	cmd.AddCommand(GetRunCmd())
	cmd.AddCommand(newScopesCmd())
	cmd.AddCommand(newWorkspacesCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}
