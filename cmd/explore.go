// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datatwin/cli/internal/artifact"
	"datatwin/cli/internal/engine"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/prompt"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/store"
)

var exploreOpts exploreFlags

// exploreCmd runs one autonomous exploration: select tables, let the model
// query them within the budget, then write and store the report.
var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Let a language model explore the selected tables and write a report",
	Long: `The explore command discovers the connected database, asks which tables to
explore (or takes them from --tables), and lets the configured language model issue
up to --max-queries read-only SQL queries. Every --batch-size queries the findings
are compressed into a summary; at the end a report is written.

Artifacts (report, query history, summaries and the full run document) are written
to --out and the run is saved to the local history unless --no-save is given.

Press Ctrl+C once to stop after the current query and still get a report.`,
	Example: `  datatwin explore --tables orders,customers --note orders="one row per checkout"
  datatwin explore --max-queries 20 --batch-size 5 --provider gemini --out ./reports`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		notes, err := parseNotes(exploreOpts.notes)
		if err != nil {
			return err
		}
		ecfg := engineConfig(cfg.Explore, exploreOpts, cmd.Flags().Changed)

		db, sess, err := discover(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		tables, err := chooseTables(sess.Schema(), normalizeTables(exploreOpts.tables))
		if err != nil {
			return err
		}
		if len(notes) == 0 && len(exploreOpts.tables) == 0 {
			notes = askNotes(tables)
		}
		if _, err := sess.Select(tables, notes); err != nil {
			return err
		}
		view, err := sess.BeginExplore()
		if err != nil {
			return err
		}

		provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
		model := cfg.LLM.Model
		if exploreOpts.provider != "" {
			provider = strings.ToLower(strings.TrimSpace(exploreOpts.provider))
			model = ""
		}
		if exploreOpts.model != "" {
			model = exploreOpts.model
		}
		if model == "" {
			model = llm.DefaultModel(provider)
		}
		client, err := llm.New(ctx, llm.Options{
			Provider:      provider,
			Model:         model,
			BaseURL:       cfg.LLM.BaseURL,
			APIKey:        resolveAPIKey(provider, os.Getenv, openSecrets()),
			MaxTokens:     cfg.LLM.MaxTokens,
			Timeout:       cfg.LLM.Timeout(),
			RetryAttempts: cfg.LLM.RetryAttempts,
		}, logger)
		if err != nil {
			return err
		}

		templates, err := prompt.LoadTemplateSet(cfg.PromptsFile)
		if err != nil {
			return err
		}

		ui := newProgressUI()
		eng, err := engine.New(ecfg, engine.Deps{
			LLM:      client,
			Executor: db,
			Assessor: scale.NewAssessor(db, cfg.Explore.ProbeTimeout(), logger),
			Builder:  prompt.NewBuilder(templates, ecfg.WindowSize),
			Logger:   logger,
			Observer: ui.observer(),
		})
		if err != nil {
			return err
		}

		st := eng.NewState(view)
		logger.Info("explore starting",
			zap.String("run_id", st.RunID),
			zap.String("provider", provider),
			zap.String("model", model),
			zap.String("database", string(db.Type())))

		stopWatching := watchInterrupts(eng)
		ui.start()
		runErr := eng.Run(ctx, st)
		ui.stop()
		stopWatching()

		if err := sess.Explored(); err != nil {
			logger.Warn("workflow out of order", zap.Error(err))
		}

		agg := artifact.FromState(st, artifact.Options{
			DatabaseType: string(db.Type()),
			BatchSize:    ecfg.BatchSize,
			WindowSize:   ecfg.WindowSize,
			Provider:     provider,
			Model:        model,
			CLIVersion:   Version,
		})

		var written []string
		if exploreOpts.out != "" {
			written, err = agg.Export(exploreOpts.out)
			if err != nil {
				pterm.Error.Println(logging.PresentError("export artifacts", err))
			}
		}
		if !exploreOpts.noSave {
			saveRun(ctx, agg)
		}

		printOutcome(agg, written)

		if runErr != nil {
			if dterrors.Is(runErr, dterrors.Report) {
				var e *dterrors.E
				if errors.As(runErr, &e) && e.Err != nil {
					logging.PresentLLMError(e.Err.Error())
				}
			}
			return runErr
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	d := cfg.Explore
	f := exploreCmd.Flags()
	f.IntVar(&exploreOpts.maxQueries, "max-queries", d.MaxQueries, "Query budget; failed queries count too")
	f.IntVar(&exploreOpts.batchSize, "batch-size", d.BatchSize, "Summarize findings every N queries")
	f.IntVar(&exploreOpts.windowSize, "window-size", d.WindowSize, "Recent findings shown to the model in each explore prompt")
	f.DurationVar(&exploreOpts.queryTimeout, "query-timeout", d.QueryTimeout(), "Timeout of each SQL query")
	f.StringSliceVar(&exploreOpts.tables, "tables", nil, "Tables to explore (comma-separated); prompts when omitted")
	f.StringArrayVar(&exploreOpts.notes, "note", nil, "Table note as table=text; repeatable")
	f.StringVar(&exploreOpts.provider, "provider", "", "LLM provider: openai, anthropic, gemini or openai-compatible")
	f.StringVar(&exploreOpts.model, "model", "", "LLM model name")
	f.StringVar(&exploreOpts.out, "out", ".", "Directory for the exported artifacts; empty disables export")
	f.BoolVar(&exploreOpts.noSave, "no-save", false, "Do not save the run to the local history")
}

func saveRun(ctx context.Context, agg *artifact.Aggregate) {
	s, err := store.Open(logger)
	if err != nil {
		logger.Warn("run history unavailable", zap.Error(err))
		return
	}
	defer s.Close()
	if err := s.Save(context.WithoutCancel(ctx), agg); err != nil {
		logger.Warn("run not saved", zap.Error(err))
		pterm.Warning.Println("The run could not be saved to the history: " + logging.Mask(err.Error()))
	}
}
