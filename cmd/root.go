// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the Datatwin CLI application.
// It implements subcommands for connecting a database, storing language model
// credentials, discovering tables, running autonomous explorations and browsing
// past runs, using the Cobra CLI framework with a pterm terminal UI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datatwin/cli/internal/config"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/xdg"
)

var (
	showVersion bool
	verbose     bool

	// cfg and logger are set by the root command's PersistentPreRunE.
	cfg    = config.Default()
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
// It serves as the entry point for the Datatwin CLI application.
var rootCmd = &cobra.Command{
	Use:   "datatwin",
	Short: "Datatwin CLI for autonomous, LLM-driven database exploration",
	Long: `Datatwin explores a relational database on its own: a language model writes
read-only SQL, reads the results, compresses what it learned as it goes and ends
with a structured report about the data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		stateDir, err := xdg.StateDir()
		if err == nil {
			err = os.MkdirAll(stateDir, 0o700)
		}
		if err != nil {
			stateDir = ""
		}
		l, err := logging.NewLogger(cfg.LogLevel, verbose, stateDir)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l.With(zap.String("command", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("datatwin %s\n", Version)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging (mirrored to stderr)")
}
