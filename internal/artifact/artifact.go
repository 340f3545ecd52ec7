// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package artifact packages a finished exploration into one JSON document and
// the files exported next to it.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datatwin/cli/internal/engine"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
)

// Export file names.
const (
	ReportFile    = "datatwin_report.md"
	QueriesFile   = "datatwin_queries.json"
	SummariesFile = "datatwin_summaries.json"
	ArtifactsFile = "datatwin_artifacts.json"
)

// SessionMetadata describes how a run was configured.
type SessionMetadata struct {
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	DurationSeconds  float64           `json:"duration_seconds"`
	DatabaseType     string            `json:"database_type,omitempty"`
	Tables           []string          `json:"tables"`
	Notes            map[string]string `json:"notes,omitempty"`
	MaxQueries       int               `json:"max_queries"`
	QueriesUsed      int               `json:"queries_used"`
	SucceededQueries int               `json:"succeeded_queries"`
	BatchSize        int               `json:"batch_size"`
	WindowSize       int               `json:"window_size"`
	Provider         string            `json:"llm_provider,omitempty"`
	Model            string            `json:"llm_model,omitempty"`
	CLIVersion       string            `json:"cli_version,omitempty"`
}

// Aggregate is the complete record of one exploration. Its JSON keys are stable.
type Aggregate struct {
	RunID                string               `json:"run_id"`
	SessionMetadata      SessionMetadata      `json:"session_metadata"`
	Schema               *schema.View         `json:"schema"`
	ScaleAssessment      *scale.Assessment    `json:"scale_assessment"`
	QueryHistory         []model.QueryRecord  `json:"query_history"`
	Summaries            []model.SummaryBatch `json:"summaries"`
	SummaryTriggerPoints []int                `json:"summary_trigger_points"`
	FinalReport          *model.Report        `json:"final_report"`
	Errors               []model.ErrorEntry   `json:"errors"`
	Prompts              []model.PromptRecord `json:"prompts"`
	Phase                string               `json:"phase"`
	TerminationReason    string               `json:"termination_reason"`
}

// Options carries the run settings the engine state does not hold.
type Options struct {
	DatabaseType string
	BatchSize    int
	WindowSize   int
	Provider     string
	Model        string
	CLIVersion   string
}

// FromState builds the aggregate of an exploration state. Slices are copied and
// never nil so the document always carries every key as an array.
func FromState(st *engine.State, opts Options) *Aggregate {
	a := &Aggregate{
		RunID:                st.RunID,
		Schema:               st.View,
		ScaleAssessment:      st.Scale,
		QueryHistory:         append([]model.QueryRecord{}, st.History...),
		Summaries:            append([]model.SummaryBatch{}, st.Summaries...),
		SummaryTriggerPoints: append([]int{}, st.TriggerPoints...),
		FinalReport:          st.Report,
		Errors:               append([]model.ErrorEntry{}, st.Errors...),
		Prompts:              append([]model.PromptRecord{}, st.Prompts...),
		Phase:                string(st.Phase),
		TerminationReason:    st.TerminationReason,
	}

	meta := SessionMetadata{
		StartedAt:        st.StartedAt,
		FinishedAt:       st.FinishedAt,
		DatabaseType:     opts.DatabaseType,
		Tables:           []string{},
		MaxQueries:       st.Budget.Max,
		QueriesUsed:      st.Budget.Used,
		SucceededQueries: st.SucceededCount(),
		BatchSize:        opts.BatchSize,
		WindowSize:       opts.WindowSize,
		Provider:         opts.Provider,
		Model:            opts.Model,
		CLIVersion:       opts.CLIVersion,
	}
	if !st.StartedAt.IsZero() && !st.FinishedAt.IsZero() {
		meta.DurationSeconds = st.FinishedAt.Sub(st.StartedAt).Seconds()
	}
	if st.View != nil {
		meta.Tables = st.View.TableNames()
		for _, t := range st.View.Tables {
			if t.Notes == "" {
				continue
			}
			if meta.Notes == nil {
				meta.Notes = map[string]string{}
			}
			meta.Notes[t.Name] = t.Notes
		}
	}
	a.SessionMetadata = meta
	return a
}

// Succeeded reports whether the run produced a report.
func (a *Aggregate) Succeeded() bool {
	return a.Phase == string(engine.PhaseDone) && a.FinalReport != nil
}

// JSON renders the aggregate as indented JSON.
func (a *Aggregate) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "encode artifact", err)
	}
	return b, nil
}

// Decode parses an aggregate previously rendered with JSON.
func Decode(data []byte) (*Aggregate, error) {
	var a Aggregate
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "decode artifact", err)
	}
	return &a, nil
}

// Export writes the report, query history, summaries (when there are any) and
// the full aggregate into dir, creating it if needed. It returns the paths written.
func (a *Aggregate) Export(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "create export directory", err)
	}

	var written []string
	write := func(name string, data []byte) error {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return dterrors.Wrap(dterrors.Storage, "write "+name, err)
		}
		written = append(written, p)
		return nil
	}
	writeJSON := func(name string, v any) error {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return dterrors.Wrap(dterrors.Storage, "encode "+name, err)
		}
		return write(name, b)
	}

	if err := write(ReportFile, []byte(a.Markdown())); err != nil {
		return written, err
	}
	if err := writeJSON(QueriesFile, a.QueryHistory); err != nil {
		return written, err
	}
	if len(a.Summaries) > 0 {
		if err := writeJSON(SummariesFile, a.Summaries); err != nil {
			return written, err
		}
	}
	if err := writeJSON(ArtifactsFile, a); err != nil {
		return written, err
	}
	return written, nil
}

// Markdown renders the human-readable report document.
func (a *Aggregate) Markdown() string {
	var b strings.Builder
	b.WriteString("# Datatwin Exploration Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", a.RunID)
	if !a.SessionMetadata.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", a.SessionMetadata.StartedAt.UTC().Format(time.RFC3339))
	}
	if len(a.SessionMetadata.Tables) > 0 {
		fmt.Fprintf(&b, "- Tables: %s\n", strings.Join(a.SessionMetadata.Tables, ", "))
	}
	fmt.Fprintf(&b, "- Queries: %d of %d (%d succeeded)\n",
		a.SessionMetadata.QueriesUsed, a.SessionMetadata.MaxQueries, a.SessionMetadata.SucceededQueries)
	if a.ScaleAssessment != nil {
		fmt.Fprintf(&b, "- Scale: %s (%d rows)\n", a.ScaleAssessment.Category, a.ScaleAssessment.TotalRows)
	}
	b.WriteString("\n")

	if a.FinalReport != nil {
		b.WriteString(strings.TrimSpace(a.FinalReport.Content))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "_No report was generated (phase %s, reason %s)._\n", a.Phase, a.TerminationReason)
	}

	if len(a.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range a.Errors {
			line := fmt.Sprintf("- [%s] %s: %s", e.Phase, e.Kind, e.Message)
			if e.Seq > 0 {
				line = fmt.Sprintf("- [%s] query #%d %s: %s", e.Phase, e.Seq, e.Kind, e.Message)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}
