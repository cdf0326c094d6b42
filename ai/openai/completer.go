// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client     llms.Model
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for chat completions
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken("none"),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:     client,
		maxRetries: config.MaxRetries,
		baseDelay:  config.RetryBaseDelay,
		logger:     slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends the prompt to the model and returns the generated text.
// Rate-limited requests are retried with exponentially growing delays up to
// the configured retry budget.
func (c *Completer) Complete(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error) {
	options := ai.ApplyCompleteOptions(opts...)

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	callOpts := []llms.CallOption{llms.WithTemperature(options.Temperature)}
	if options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(options.MaxTokens))
	}
	if options.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	delay := c.baseDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, callOpts...)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %w", ai.ErrCompletionTimeout, err)
			}
			if !isQuotaError(err) {
				c.logger.Error("failed to generate completion", "attempt", attempt, "err", err)
				return "", err
			}

			lastErr = fmt.Errorf("%w: %w", ai.ErrQuotaExceeded, err)
			c.logger.Warn("completion rate limited",
				"attempt", attempt,
				"max_attempts", c.maxRetries,
				"delay", delay,
				"err", err)
			if attempt == c.maxRetries {
				break
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return "", fmt.Errorf("%w: %w", ai.ErrCompletionTimeout, ctx.Err())
				}
				return "", ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			continue
		}

		if len(response.Choices) < 1 {
			c.logger.Debug("no choices returned from model")
			return "", ai.ErrEmptyCompletion
		}

		text := strings.TrimSpace(response.Choices[0].Content)
		if options.JSONMode {
			text = stripFences(text)
		}
		if text == "" {
			return "", ai.ErrEmptyCompletion
		}
		return text, nil
	}

	return "", lastErr
}

// isQuotaError reports whether the error looks like a rate limit or quota
// rejection from an OpenAI-compatible API. The langchaingo client surfaces
// these as plain errors, so the HTTP status has to be sniffed from the text.
func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota")
}

// stripFences removes markdown code fences that some models wrap around
// JSON-mode responses.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
