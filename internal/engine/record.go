// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"time"

	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/model"
)

// recordingClient appends every call it forwards to the prompts log of the
// state being stepped. The default summarizer and reporter share it with the
// engine, so one run's log covers all four prompt kinds.
type recordingClient struct {
	inner llm.Client
	now   func() time.Time
	// active is set by Step for the duration of one transition.
	active *State
}

func (r *recordingClient) Generate(ctx context.Context, prompt string, kind llm.Kind) (string, error) {
	text, err := r.inner.Generate(ctx, prompt, kind)
	st := r.active
	if st == nil {
		return text, err
	}

	seq := st.Budget.Used
	if st.Phase == PhaseExploring {
		seq++
	}
	rec := model.PromptRecord{
		Seq:       seq,
		Kind:      string(kind),
		Prompt:    prompt,
		Response:  text,
		Timestamp: r.now().UTC(),
	}
	if err != nil {
		rec.Error = logging.Mask(err.Error())
	}
	st.Prompts = append(st.Prompts, rec)
	return text, err
}
