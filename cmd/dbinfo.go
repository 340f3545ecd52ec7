// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"datatwin/cli/internal/dsn"
	"datatwin/cli/internal/logging"
)

// dbinfoCmd represents the dbinfo command for displaying database connection information.
// It shows the current database connection string with secrets masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show current database connection string",
	Long: `The dbinfo command displays the currently configured database connection string (DSN)
with the password masked, and where it was found: the DATATWIN_DSN or DATABASE_URL
environment variable, or the OS keychain.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		raw, source, err := currentDSN()
		if err != nil {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: datatwin connect")
			return nil
		}
		pterm.Println("Using DSN from " + source)
		pterm.Println()

		body := logging.Mask(raw)
		if info, err := dsn.ParseInfo(raw); err == nil {
			body += "\n\n" + pterm.Sprintf("Type: %s\nHost: %s\nDatabase: %s", info.Type, orDash(info.Host), orDash(info.Database))
			if info.Schema != "" {
				body += "\nSchema: " + info.Schema
			}
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(body)
		pterm.Println()
		pterm.Println("To update this connection, run: datatwin connect")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
