// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	dterrors "datatwin/cli/internal/errors"
)

// contentGenerator is the subset of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient talks to the Gemini API.
type GeminiClient struct {
	models    contentGenerator
	model     string
	system    string
	maxTokens int
	timeout   time.Duration
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "create Gemini client", err)
	}
	return newGeminiClient(client.Models, opts), nil
}

func newGeminiClient(models contentGenerator, opts Options) *GeminiClient {
	m := opts.Model
	if m == "" {
		m = DefaultModel(ProviderGemini)
	}
	system := opts.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &GeminiClient{models: models, model: m, system: system, maxTokens: opts.MaxTokens, timeout: opts.Timeout}
}

// Generate sends the prompt as a single user turn.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, kind Kind) (string, error) {
	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.system, genai.RoleUser),
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", dterrors.Wrap(dterrors.LLM, string(kind)+" call failed", err)
	}
	if resp == nil {
		return "", emptyResponse(kind)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", emptyResponse(kind)
	}
	return text, nil
}
