// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"datatwin/cli/internal/store"
)

var (
	runsLimit     int
	runsExportOut string
)

// runsCmd browses the local history of explorations.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse past explorations",
	Long: `The runs command lists the explorations saved to the local history and can
show or re-export any of them by run ID.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved explorations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(logger)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			pterm.Info.Println("No saved explorations yet. Run: datatwin explore")
			return nil
		}

		data := pterm.TableData{{"Run ID", "Started", "Outcome", "Queries", "Summaries", "Tables"}}
		for _, r := range runs {
			data = append(data, []string{
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				outcomeLabel(r.Phase, r.TerminationReason),
				fmt.Sprintf("%d/%d", r.QueriesUsed, r.MaxQueries),
				fmt.Sprint(r.Summaries),
				truncate(r.Tables, 40),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the outcome and report of a saved exploration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(logger)
		if err != nil {
			return err
		}
		defer s.Close()

		agg, err := s.Get(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			pterm.Error.Printfln("No saved exploration with ID %s. See: datatwin runs list", args[0])
			return err
		}
		if err != nil {
			return err
		}
		printOutcome(agg, nil)
		return nil
	},
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the artifacts of a saved exploration to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(logger)
		if err != nil {
			return err
		}
		defer s.Close()

		agg, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		written, err := agg.Export(runsExportOut)
		if err != nil {
			return err
		}
		sectionTitle("Artifacts")
		bulletList(written)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd)
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	runsExportCmd.Flags().StringVar(&runsExportOut, "out", ".", "Directory for the exported artifacts")
}

func outcomeLabel(phase, reason string) string {
	if reason == "" {
		return phase
	}
	return phase + " (" + reason + ")"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
