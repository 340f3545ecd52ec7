// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/schema"
	"datatwin/cli/internal/sqlexec"
	"datatwin/cli/internal/workflow"
)

// tablesCmd lists the tables an exploration can choose from.
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Discover the tables and relationships of the connected database",
	Long: `The tables command introspects the connected database and lists every table
and view with its column count, followed by the relationships between them, either
declared as foreign keys or inferred from <name>_id columns.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		db, sess, err := discover(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		printSchema(sess.Schema())
		pterm.Println()
		pterm.Println("To explore some of these tables, run: datatwin explore --tables a,b")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

// discover connects to the configured database and runs the discover phase.
func discover(ctx context.Context) (*sqlexec.DB, *workflow.Session, error) {
	raw, _, err := currentDSN()
	if err != nil {
		return nil, nil, err
	}

	stop := startInlineSpinner(os.Stdout, "discovering schema", []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}, 120*time.Millisecond)
	ctxOpen, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := sqlexec.Open(ctxOpen, raw, logger)
	if err != nil {
		stop()
		fmt.Println("❌ Failed to connect to database")
		return nil, nil, err
	}
	sc, err := db.Introspect(ctxOpen)
	stop()
	if err != nil {
		db.Close()
		fmt.Println("❌ Failed to read the database schema")
		fmt.Println("   " + logging.PresentError("", err))
		return nil, nil, err
	}

	sess := workflow.NewSession()
	if err := sess.Discovered(sc); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, sess, nil
}

func printSchema(sc *schema.Schema) {
	sectionTitle(fmt.Sprintf("Tables (%d)", sc.Len()))
	data := pterm.TableData{{"Name", "Kind", "Columns"}}
	for _, name := range sc.TableNames() {
		t, _ := sc.Table(name)
		data = append(data, []string{t.Name, string(t.Kind), fmt.Sprint(len(t.Columns))})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	rels := sc.Relationships()
	if len(rels) == 0 {
		return
	}
	pterm.Println()
	sectionTitle("Relationships")
	items := make([]string, len(rels))
	for i, r := range rels {
		items[i] = r.String()
		if r.Inferred {
			items[i] += pterm.Gray(" (inferred)")
		}
	}
	bulletList(items)
}
