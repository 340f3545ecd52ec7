// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"datatwin/cli/internal/logging"
)

// RetryPolicy captures retry behavior for transient provider errors.
type RetryPolicy struct {
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	ShouldRetry func(error) bool
}

type retryClient struct {
	next   Client
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps c so transient failures (network, rate limit, timeout,
// unavailable) are retried with capped exponential backoff. Auth and parse
// failures are returned immediately.
func WithRetry(c Client, policy RetryPolicy, logger *zap.Logger) Client {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = defaultShouldRetry
	}
	return &retryClient{next: c, policy: policy, logger: logging.OrNop(logger), sleep: sleepCtx}
}

func (r *retryClient) Generate(ctx context.Context, prompt string, kind Kind) (string, error) {
	delay := r.policy.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		start := time.Now()
		text, err := r.next.Generate(ctx, prompt, kind)
		if err == nil {
			r.logger.Debug("llm call succeeded",
				zap.String("kind", string(kind)),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)))
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", err
		}
		if attempt == r.policy.Attempts || !r.policy.ShouldRetry(err) {
			r.logger.Warn("llm call failed",
				zap.String("kind", string(kind)),
				zap.Int("attempt", attempt),
				zap.String("error", logging.Mask(err.Error())))
			return "", err
		}

		r.logger.Info("llm call retrying",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.String("error", logging.Mask(err.Error())))
		if err := r.sleep(ctx, delay); err != nil {
			return "", lastErr
		}
		delay = nextDelay(delay, r.policy.MaxDelay)
	}
	return "", lastErr
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func defaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return logging.ParseLLMError(err.Error()).Transient()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
