// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"
	"time"

	"atomicgo.dev/keyboard/keys"
	"github.com/pterm/pterm"

	"datatwin/cli/internal/artifact"
	"datatwin/cli/internal/config"
	"datatwin/cli/internal/engine"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/schema"
	"datatwin/cli/internal/terminal"
)

// exploreFlags are the per-run overrides of the explore command.
type exploreFlags struct {
	maxQueries   int
	batchSize    int
	windowSize   int
	queryTimeout time.Duration
	tables       []string
	notes        []string
	provider     string
	model        string
	out          string
	noSave       bool
}

// engineConfig merges config defaults with the flags the user set.
func engineConfig(c config.ExploreConfig, f exploreFlags, changed func(string) bool) engine.Config {
	ec := engine.Config{
		MaxQueries:   c.MaxQueries,
		BatchSize:    c.BatchSize,
		WindowSize:   c.WindowSize,
		ReportTail:   c.ReportTail,
		QueryTimeout: c.QueryTimeout(),
	}
	if changed("max-queries") {
		ec.MaxQueries = f.maxQueries
	}
	if changed("batch-size") {
		ec.BatchSize = f.batchSize
	}
	if changed("window-size") {
		ec.WindowSize = f.windowSize
	}
	if changed("query-timeout") {
		ec.QueryTimeout = f.queryTimeout
	}
	return ec
}

// parseNotes turns repeated "table=text" flags into a map. A later note for
// the same table is appended to the earlier one.
func parseNotes(raw []string) (map[string]string, error) {
	notes := map[string]string{}
	for _, n := range raw {
		table, text, ok := strings.Cut(n, "=")
		table = strings.TrimSpace(table)
		text = strings.TrimSpace(text)
		if !ok || table == "" {
			return nil, dterrors.New(dterrors.Configuration, fmt.Sprintf("invalid --note %q, expected table=text", n))
		}
		if text == "" {
			continue
		}
		if prev, exists := notes[table]; exists {
			text = prev + " " + text
		}
		notes[table] = text
	}
	return notes, nil
}

// normalizeTables splits comma-separated entries and drops blanks.
func normalizeTables(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, t := range strings.Split(r, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// chooseTables returns the tables given on the command line, or asks the user
// to pick them when running in a terminal.
func chooseTables(sc *schema.Schema, given []string) ([]string, error) {
	if len(given) > 0 {
		return given, nil
	}
	if !terminal.IsInteractive() {
		return nil, dterrors.New(dterrors.Configuration, "no tables selected; pass --tables a,b when not running in a terminal")
	}
	selected, err := tableSelector(sc.TableNames()).
		Show("Select the tables to explore (space to toggle, enter to confirm)")
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "table selection", err)
	}
	return selected, nil
}

// tableSelector is a multiselect where space toggles and enter confirms. pterm
// defaults to enter for toggling and tab for confirming, and refuses space as a
// key while the fuzzy filter is on.
func tableSelector(names []string) *pterm.InteractiveMultiselectPrinter {
	return pterm.DefaultInteractiveMultiselect.
		WithOptions(names).
		WithMaxHeight(15).
		WithFilter(false).
		WithKeySelect(keys.Space).
		WithKeyConfirm(keys.Enter)
}

// askNotes offers an optional free-text note per selected table.
func askNotes(tables []string) map[string]string {
	notes := map[string]string{}
	if !terminal.IsInteractive() {
		return notes
	}
	pterm.Info.Println("Optionally describe each table (what a row means, known quirks). Press Enter to skip.")
	for _, t := range tables {
		text, err := pterm.DefaultInteractiveTextInput.Show("Notes for " + t)
		if err != nil {
			break
		}
		if text = strings.TrimSpace(text); text != "" {
			notes[t] = text
		}
	}
	return notes
}

// printOutcome shows how the run ended and where its artifacts went.
func printOutcome(a *artifact.Aggregate, written []string) {
	pterm.Println()
	meta := a.SessionMetadata
	line := fmt.Sprintf("%d of %d queries used, %d succeeded, %d summaries",
		meta.QueriesUsed, meta.MaxQueries, meta.SucceededQueries, len(a.Summaries))

	switch {
	case a.Succeeded():
		pterm.Success.Printfln("Exploration finished (%s): %s", a.TerminationReason, line)
	case a.Phase == string(engine.PhaseFailed):
		pterm.Error.Printfln("Exploration failed (%s): %s", a.TerminationReason, line)
	default:
		pterm.Warning.Printfln("Exploration ended in phase %s: %s", a.Phase, line)
	}
	if n := len(a.Errors); n > 0 {
		pterm.Println(pterm.Gray(fmt.Sprintf("  %d errors were recorded; see the report for details", n)))
	}

	if a.FinalReport != nil {
		pterm.Println()
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Report")).
			WithPadding(1).
			Println(strings.TrimSpace(a.FinalReport.Content))
	}

	if len(written) > 0 {
		pterm.Println()
		sectionTitle("Artifacts")
		bulletList(written)
	}
	pterm.Println(pterm.Gray("Run ID: " + a.RunID))
}
