// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm adapts language model providers to the single blocking call the
// exploration engine needs: prompt in, text out.
//
// OpenAI, Anthropic and any OpenAI-compatible endpoint go through the eino
// OpenAI chat model; Gemini goes through google.golang.org/genai. Every client
// can be wrapped with WithRetry for transient provider failures.
package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	dterrors "datatwin/cli/internal/errors"
)

// Kind tells the provider which exploration step a prompt belongs to.
type Kind string

const (
	KindExplore   Kind = "explore"
	KindAnalyze   Kind = "analyze"
	KindSummarize Kind = "summarize"
	KindReport    Kind = "report"
)

// Client generates text for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string, kind Kind) (string, error)
}

// Provider names accepted by New.
const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderGemini           = "gemini"
	ProviderOpenAICompatible = "openai-compatible"
)

// DefaultSystemPrompt frames every call.
const DefaultSystemPrompt = "You are an expert data analyst autonomously exploring a relational database through read-only SQL. Be precise, quantitative and concise."

const anthropicCompatBaseURL = "https://api.anthropic.com/v1/"

// Options configures a provider client.
type Options struct {
	Provider      string
	Model         string
	BaseURL       string
	APIKey        string
	MaxTokens     int
	Timeout       time.Duration
	RetryAttempts int
	System        string
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return "gpt-4o"
	}
}

// New builds a retrying client for the configured provider.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Client, error) {
	opts.Provider = strings.ToLower(strings.TrimSpace(opts.Provider))
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, dterrors.New(dterrors.Configuration, "no API key for provider "+opts.Provider+"; run 'datatwin login' or set DATATWIN_LLM_API_KEY")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel(opts.Provider)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.System == "" {
		opts.System = DefaultSystemPrompt
	}

	var (
		client Client
		err    error
	)
	switch opts.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		if opts.Provider == ProviderOpenAICompatible && opts.BaseURL == "" {
			return nil, dterrors.New(dterrors.Configuration, "openai-compatible provider needs a base URL")
		}
		client, err = NewEinoClient(ctx, opts)
	case ProviderAnthropic:
		if opts.BaseURL == "" {
			opts.BaseURL = anthropicCompatBaseURL
		}
		client, err = NewEinoClient(ctx, opts)
	case ProviderGemini:
		client, err = NewGeminiClient(ctx, opts)
	default:
		return nil, dterrors.New(dterrors.Configuration, "unknown LLM provider "+opts.Provider+" (use openai, anthropic, gemini or openai-compatible)")
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(client, RetryPolicy{Attempts: opts.RetryAttempts}, logger), nil
}

// callContext bounds a single provider call.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// emptyResponse is returned when a provider answers without text.
func emptyResponse(kind Kind) error {
	return dterrors.New(dterrors.LLM, "empty response for "+string(kind)+" prompt")
}
