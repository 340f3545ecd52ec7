// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	dterrors "datatwin/cli/internal/errors"
)

// EinoClient talks to OpenAI-format chat completion endpoints through eino.
type EinoClient struct {
	chat      model.BaseChatModel
	system    string
	maxTokens int
	timeout   time.Duration
}

// NewEinoClient creates the OpenAI chat model for the given options.
func NewEinoClient(ctx context.Context, opts Options) (*EinoClient, error) {
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  opts.APIKey,
		BaseURL: opts.BaseURL,
		Model:   opts.Model,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "create chat model", err)
	}
	return NewEinoClientWithModel(chat, opts), nil
}

// NewEinoClientWithModel wraps an existing eino chat model.
func NewEinoClientWithModel(chat model.BaseChatModel, opts Options) *EinoClient {
	system := opts.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &EinoClient{chat: chat, system: system, maxTokens: opts.MaxTokens, timeout: opts.Timeout}
}

// Generate sends the prompt as a single user turn.
func (c *EinoClient) Generate(ctx context.Context, prompt string, kind Kind) (string, error) {
	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(c.system),
		schema.UserMessage(prompt),
	}
	var callOpts []model.Option
	if c.maxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.chat.Generate(ctx, messages, callOpts...)
	if err != nil {
		return "", dterrors.Wrap(dterrors.LLM, string(kind)+" call failed", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", emptyResponse(kind)
	}
	return resp.Content, nil
}
