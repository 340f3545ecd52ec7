// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"time"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
)

// Phase is a state of the exploration state machine.
type Phase string

const (
	PhaseInit            Phase = "init"
	PhaseScaleAssessment Phase = "scale_assessment"
	PhaseExploring       Phase = "exploring"
	PhaseSummarizing     Phase = "summarizing"
	PhaseReporting       Phase = "reporting"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// Termination reasons.
const (
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonStopped         = "stopped"
	ReasonConfiguration   = "configuration_error"
	ReasonReportFailed    = "report_failed"
)

// State is everything one exploration accumulates. It is owned by a single
// Engine for the duration of a run; nothing else mutates it.
type State struct {
	RunID  string
	Phase  Phase
	View   *schema.View
	Budget model.Budget
	// History is every attempted query in sequence order.
	History []model.QueryRecord
	// Window holds the records not yet covered by a summary.
	Window    []model.QueryRecord
	Summaries []model.SummaryBatch
	// TriggerPoints are the budget-used values at which summarization ran.
	TriggerPoints []int
	// Scale is nil when assessment failed or was skipped.
	Scale             *scale.Assessment
	Report            *model.Report
	Errors            []model.ErrorEntry
	// Prompts is every language model call in the order it was made.
	Prompts           []model.PromptRecord
	TerminationReason string
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Failed reports whether the run ended in PhaseFailed.
func (s *State) Failed() bool { return s.Phase == PhaseFailed }

// LastRecord returns the most recent query record, if any.
func (s *State) LastRecord() (model.QueryRecord, bool) {
	if len(s.History) == 0 {
		return model.QueryRecord{}, false
	}
	return s.History[len(s.History)-1], true
}

// SucceededCount returns how many queries executed successfully.
func (s *State) SucceededCount() int {
	n := 0
	for _, r := range s.History {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

func (s *State) recordError(at time.Time, phase Phase, seq int, err error) {
	kind := dterrors.KindOf(err)
	if kind == "" {
		kind = dterrors.Execution
	}
	s.Errors = append(s.Errors, model.ErrorEntry{
		Timestamp: at,
		Phase:     string(phase),
		Kind:      string(kind),
		Seq:       seq,
		Message:   err.Error(),
	})
}
