// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"datatwin/cli/internal/keychain"
)

// logoutCmd represents the logout command for clearing stored secrets.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved database connection and API keys",
	Long: `The logout command removes every secret datatwin stored in the OS keychain:

- The database connection string
- The API keys of all language model providers

Environment variables and the run history are left untouched.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("Secure storage is not available on this system; nothing to remove.")
			return nil
		}
		if err := km.ClearAll(); err != nil {
			return err
		}
		fmt.Println("✅ Database connection and API keys have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
