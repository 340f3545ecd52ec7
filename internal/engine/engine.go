// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine runs the exploration state machine:
//
//	INIT -> SCALE_ASSESSMENT -> EXPLORING <-> SUMMARIZING -> REPORTING -> DONE
//
// with FAILED reachable on configuration errors and report failures. Each query
// attempt consumes budget whether it succeeds or not. Every BatchSize attempts the
// raw findings window is compressed into a summary batch, which keeps explore
// prompts bounded however long the run is.
//
// The engine is driven explicitly with Step or Run over a State value, so any
// presentation layer (CLI, tests) can drive it. Exactly one collaborator call is
// in flight at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/prompt"
	"datatwin/cli/internal/report"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
	"datatwin/cli/internal/summarize"
)

// Executor runs one read-only statement under a timeout.
type Executor interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (*model.ResultSet, error)
}

// Assessor produces the scale assessment for the selected tables.
type Assessor interface {
	Assess(ctx context.Context, tables []string) (*scale.Assessment, error)
}

// Summarizer compresses a contiguous batch of records.
type Summarizer interface {
	Summarize(ctx context.Context, batch []model.QueryRecord) (model.SummaryBatch, error)
}

// Reporter produces the final report.
type Reporter interface {
	Generate(ctx context.Context, in report.Input) (*model.Report, error)
}

// Config holds the run parameters.
type Config struct {
	MaxQueries   int
	BatchSize    int
	WindowSize   int
	ReportTail   int
	QueryTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueries:   7,
		BatchSize:    3,
		WindowSize:   prompt.DefaultWindowSize,
		ReportTail:   report.DefaultTail,
		QueryTimeout: 60 * time.Second,
	}
}

// Deps are the engine's collaborators. Builder, Summarizer and Reporter are
// derived from LLM and the default templates when left nil. Calls that go
// through LLM, including those of the derived Summarizer and Reporter, are
// logged in State.Prompts. A nil Assessor
// skips scale assessment.
type Deps struct {
	LLM        llm.Client
	Executor   Executor
	Assessor   Assessor
	Builder    *prompt.Builder
	Summarizer Summarizer
	Reporter   Reporter
	Logger     *zap.Logger
	Observer   Observer
}

// Engine drives explorations.
type Engine struct {
	cfg        Config
	llm        llm.Client
	recorder   *recordingClient
	executor   Executor
	assessor   Assessor
	builder    *prompt.Builder
	summarizer Summarizer
	reporter   Reporter
	logger     *zap.Logger
	observer   Observer
	now        func() time.Time

	stop atomic.Bool
}

// New wires an engine. Configuration values are validated when a run leaves
// INIT, not here.
func New(cfg Config, deps Deps) (*Engine, error) {
	logger := logging.OrNop(deps.Logger)

	client := deps.LLM
	var recorder *recordingClient
	if client != nil {
		recorder = &recordingClient{inner: client}
		client = recorder
	}

	builder := deps.Builder
	if builder == nil {
		ts, err := prompt.DefaultTemplates()
		if err != nil {
			return nil, err
		}
		builder = prompt.NewBuilder(ts, cfg.WindowSize)
	}
	summarizer := deps.Summarizer
	if summarizer == nil {
		summarizer = summarize.New(builder, client, logger)
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = report.New(builder, client, cfg.ReportTail, logger)
	}
	observer := deps.Observer
	if observer == nil {
		observer = func(Event) {}
	}

	e := &Engine{
		cfg:        cfg,
		llm:        client,
		recorder:   recorder,
		executor:   deps.Executor,
		assessor:   deps.Assessor,
		builder:    builder,
		summarizer: summarizer,
		reporter:   reporter,
		logger:     logger,
		observer:   observer,
		now:        time.Now,
	}
	if recorder != nil {
		recorder.now = func() time.Time { return e.now() }
	}
	return e, nil
}

// NewState creates the state for one exploration of view and clears a stop
// requested during an earlier run.
func (e *Engine) NewState(view *schema.View) *State {
	e.stop.Store(false)
	return &State{
		RunID:  uuid.NewString(),
		Phase:  PhaseInit,
		View:   view,
		Budget: model.Budget{Max: e.cfg.MaxQueries},
	}
}

// RequestStop asks the engine to stop exploring. It is honored between
// iterations; the run then proceeds to the report with what it has.
func (e *Engine) RequestStop() { e.stop.Store(true) }

// StopRequested reports whether RequestStop was called.
func (e *Engine) StopRequested() bool { return e.stop.Load() }

// Run steps st until it reaches a terminal phase. The returned error is the
// cause of a FAILED run; st keeps everything accumulated either way.
func (e *Engine) Run(ctx context.Context, st *State) error {
	for !st.Phase.Terminal() {
		if err := e.Step(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Step performs one transition. It returns an error only when the transition
// moved st to FAILED. Cancelling ctx is treated like RequestStop: in-flight
// collaborator calls finish under their own timeouts.
func (e *Engine) Step(ctx context.Context, st *State) error {
	if e.recorder != nil {
		e.recorder.active = st
		defer func() { e.recorder.active = nil }()
	}

	switch st.Phase {
	case PhaseInit:
		return e.stepInit(st)
	case PhaseScaleAssessment:
		e.stepAssess(ctx, st)
	case PhaseExploring:
		e.stepExplore(ctx, st)
	case PhaseSummarizing:
		e.stepSummarize(ctx, st)
	case PhaseReporting:
		return e.stepReport(ctx, st)
	case PhaseDone, PhaseFailed:
	default:
		return dterrors.New(dterrors.Configuration, "unknown phase "+string(st.Phase))
	}
	return nil
}

func (e *Engine) stepInit(st *State) error {
	st.StartedAt = e.now().UTC()
	if err := e.validate(st); err != nil {
		st.recordError(e.now().UTC(), PhaseInit, 0, err)
		st.TerminationReason = ReasonConfiguration
		e.logger.Error("exploration configuration invalid", zap.Error(err))
		e.transition(st, PhaseFailed)
		return err
	}
	e.logger.Info("exploration started",
		zap.String("run_id", st.RunID),
		zap.Strings("tables", st.View.TableNames()),
		zap.Int("max_queries", st.Budget.Max),
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Int("window_size", e.builder.WindowSize()))
	e.transition(st, PhaseScaleAssessment)
	return nil
}

func (e *Engine) validate(st *State) error {
	switch {
	case st.Budget.Max < 1:
		return dterrors.New(dterrors.Configuration, fmt.Sprintf("max queries must be at least 1, got %d", st.Budget.Max))
	case e.cfg.BatchSize < 1:
		return dterrors.New(dterrors.Configuration, fmt.Sprintf("batch size must be at least 1, got %d", e.cfg.BatchSize))
	case st.View == nil || len(st.View.Tables) == 0:
		return dterrors.New(dterrors.Configuration, "no tables selected")
	case e.llm == nil:
		return dterrors.New(dterrors.Configuration, "no language model client configured")
	case e.executor == nil:
		return dterrors.New(dterrors.Configuration, "no SQL executor configured")
	}
	return nil
}

func (e *Engine) stepAssess(ctx context.Context, st *State) {
	defer e.transition(st, PhaseExploring)
	if e.assessor == nil {
		return
	}

	a, err := e.assessor.Assess(context.WithoutCancel(ctx), st.View.TableNames())
	if err != nil {
		st.recordError(e.now().UTC(), PhaseScaleAssessment, 0, err)
		e.logger.Warn("scale assessment failed, exploring without scale context", zap.Error(err))
		e.observer(Event{Type: EventScaleAssessed, Message: err.Error()})
		return
	}
	for _, table := range st.View.TableNames() {
		if w, ok := a.Warnings[table]; ok {
			st.recordError(e.now().UTC(), PhaseScaleAssessment, 0,
				dterrors.New(dterrors.Probe, fmt.Sprintf("count %s: %s", table, w)))
		}
	}
	st.Scale = a
	e.observer(Event{Type: EventScaleAssessed, Category: string(a.Category), TotalRows: a.TotalRows})
}

func (e *Engine) stepExplore(ctx context.Context, st *State) {
	switch {
	case st.Budget.Exhausted():
		st.TerminationReason = ReasonBudgetExhausted
		e.transition(st, PhaseReporting)
		return
	case e.StopRequested() || ctx.Err() != nil:
		st.TerminationReason = ReasonStopped
		e.logger.Info("exploration stopped", zap.Int("queries_used", st.Budget.Used))
		e.transition(st, PhaseReporting)
		return
	}

	rec := e.attempt(context.WithoutCancel(ctx), st)
	st.History = append(st.History, rec)
	st.Window = append(st.Window, rec)
	st.Budget.Used++

	e.observer(Event{
		Type:      EventQueryFinished,
		Seq:       rec.Seq,
		Max:       st.Budget.Max,
		SQL:       rec.SQL,
		Rationale: rec.Rationale,
		Succeeded: rec.Succeeded(),
		Summary:   rec.Outcome.Summary,
		Findings:  len(rec.Findings),
	})

	if st.Budget.Used%e.cfg.BatchSize == 0 {
		st.TriggerPoints = append(st.TriggerPoints, st.Budget.Used)
		e.transition(st, PhaseSummarizing)
	}
}

// attempt performs one explore/execute/analyze cycle. Failures are recorded on
// the returned record and in the error log; they never abort the run.
func (e *Engine) attempt(ctx context.Context, st *State) model.QueryRecord {
	seq := st.Budget.Used + 1
	rec := model.QueryRecord{Seq: seq, Timestamp: e.now().UTC(), Findings: []string{}}
	e.observer(Event{Type: EventQueryStarted, Seq: seq, Max: st.Budget.Max})

	fail := func(err error) model.QueryRecord {
		rec.Outcome = model.Failed(err)
		st.recordError(e.now().UTC(), PhaseExploring, seq, err)
		e.logger.Warn("query attempt failed",
			zap.Int("seq", seq),
			zap.String("kind", string(dterrors.KindOf(err))),
			zap.String("error", logging.Mask(err.Error())))
		return rec
	}

	p, err := e.builder.Explore(prompt.ExploreInput{
		View:      st.View,
		Scale:     st.Scale,
		Summaries: st.Summaries,
		Window:    st.Window,
		Budget:    st.Budget,
	})
	if err != nil {
		return fail(err)
	}

	text, err := e.llm.Generate(ctx, p, llm.KindExplore)
	if err != nil {
		return fail(dterrors.Wrap(dterrors.LLM, "generate next query", err))
	}

	sql, rationale, err := prompt.ParseExploreResponse(text)
	if err != nil {
		return fail(err)
	}
	rec.SQL, rec.Rationale = sql, rationale
	e.logger.Debug("query proposed", zap.Int("seq", seq), zap.String("sql", sql))

	rs, err := e.executor.Execute(ctx, sql, e.cfg.QueryTimeout)
	if err != nil {
		return fail(executionFailure(err))
	}
	rec.Outcome = model.Succeeded(rs)

	ap, err := e.builder.Analyze(sql, rationale, rs)
	if err == nil {
		var analysis string
		analysis, err = e.llm.Generate(ctx, ap, llm.KindAnalyze)
		if err != nil {
			err = dterrors.Wrap(dterrors.LLM, "analyze result", err)
		} else {
			rec.Analysis = analysis
			rec.Findings = model.ExtractFindings(analysis)
		}
	}
	if err != nil {
		rec.AnalysisError = err.Error()
		st.recordError(e.now().UTC(), PhaseExploring, seq, err)
		e.logger.Warn("result analysis failed", zap.Int("seq", seq), zap.Error(err))
	}
	return rec
}

func executionFailure(err error) error {
	if dterrors.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dterrors.Wrap(dterrors.ExecutionTimeout, "query timed out", err)
	}
	return dterrors.Wrap(dterrors.Execution, "query failed", err)
}

func (e *Engine) stepSummarize(ctx context.Context, st *State) {
	defer e.transition(st, PhaseExploring)

	batch := append([]model.QueryRecord(nil), st.Window...)
	sum, err := e.summarizer.Summarize(context.WithoutCancel(ctx), batch)
	if err != nil {
		if dterrors.KindOf(err) != dterrors.Summarization {
			err = dterrors.Wrap(dterrors.Summarization, "summarize findings", err)
		}
		st.recordError(e.now().UTC(), PhaseSummarizing, 0, err)
		e.logger.Warn("summarization failed, keeping raw findings",
			zap.Int("window", len(st.Window)),
			zap.Error(err))
		e.observer(Event{Type: EventSummaryFailed, Message: err.Error(), Seq: st.Budget.Used})
		return
	}

	st.Summaries = append(st.Summaries, sum)
	st.Window = nil
	e.logger.Info("findings summarized",
		zap.Int("first_seq", sum.FirstSeq),
		zap.Int("last_seq", sum.LastSeq))
	e.observer(Event{Type: EventSummaryCreated, FirstSeq: sum.FirstSeq, LastSeq: sum.LastSeq})
}

func (e *Engine) stepReport(ctx context.Context, st *State) error {
	rep, err := e.reporter.Generate(context.WithoutCancel(ctx), report.Input{
		View:         st.View,
		Scale:        st.Scale,
		TotalQueries: st.Budget.Used,
		Summaries:    st.Summaries,
		Findings:     st.Window,
	})
	st.FinishedAt = e.now().UTC()
	if err != nil {
		if dterrors.KindOf(err) != dterrors.Report {
			err = dterrors.Wrap(dterrors.Report, "generate report", err)
		}
		st.recordError(st.FinishedAt, PhaseReporting, 0, err)
		st.TerminationReason = ReasonReportFailed
		e.logger.Error("report generation failed", zap.Error(err))
		e.transition(st, PhaseFailed)
		return err
	}

	st.Report = rep
	e.observer(Event{Type: EventReportReady})
	e.logger.Info("exploration finished",
		zap.String("run_id", st.RunID),
		zap.Int("queries", st.Budget.Used),
		zap.Int("succeeded", st.SucceededCount()),
		zap.Int("summaries", len(st.Summaries)),
		zap.String("reason", st.TerminationReason))
	e.transition(st, PhaseDone)
	return nil
}

func (e *Engine) transition(st *State, to Phase) {
	from := st.Phase
	st.Phase = to
	if to.Terminal() && st.FinishedAt.IsZero() {
		st.FinishedAt = e.now().UTC()
	}
	e.logger.Debug("phase transition", zap.String("from", string(from)), zap.String("to", string(to)))
	e.observer(Event{Type: EventPhaseChanged, Phase: to})
}
