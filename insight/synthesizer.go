package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/ai"
	"github.com/poiesic/ktsearch/core"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultAttempts   = 2
	DefaultTokenModel = "gpt-4"
)

// Confidence anchors for the non-LLM paths.
const (
	confidenceListingScoped = 0.90
	confidenceListingGlobal = 0.85
	confidenceListingEmpty  = 0.60
	confidenceFallbackFew   = 0.5
	confidenceFallbackOne   = 0.3
)

// Synthesizer produces the consolidated answer for a query from the
// selected chunks.
type Synthesizer struct {
	completer  ai.Completer
	logger     *slog.Logger
	attempts   int
	tokenModel string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger used for synthesis diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAttempts bounds how many completion attempts are made before the
// templated fallback takes over.
func WithAttempts(attempts int) Option {
	return func(s *Synthesizer) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTokenModel sets the model name used for prompt token counting.
func WithTokenModel(model string) Option {
	return func(s *Synthesizer) {
		if model != "" {
			s.tokenModel = model
		}
	}
}

// NewSynthesizer creates a Synthesizer over a completion client.
func NewSynthesizer(completer ai.Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		completer:  completer,
		logger:     slog.Default().With("component", "synthesizer"),
		attempts:   DefaultAttempts,
		tokenModel: DefaultTokenModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize consolidates the selected chunks into one answer. It never
// returns nil and never returns an error: listing intents are answered
// from metadata without the model, and model failures degrade to a
// templated summary flagged with FallbackUsed.
func (s *Synthesizer) Synthesize(ctx context.Context, contexts []*core.ChunkMatch, query string, classification *core.ClassificationResult) *core.InsightResult {
	start := time.Now()

	if len(contexts) == 0 {
		return noResultsResult(start)
	}

	intent := detectIntent(query, classification)
	if intent == intentListing {
		return s.listingResult(contexts, start)
	}

	analysis := analyzeContexts(contexts)
	contextBlock, used := formatContexts(contexts, intent, s.tokenModel)
	if len(used) == 0 {
		return fallbackResult(contexts, query, start)
	}

	prompt := buildPrompt(intent, query, contextBlock)
	perf := performanceFor(intent)

	var text string
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		text, err = s.completer.Complete(ctx, prompt,
			ai.WithTemperature(0.0),
			ai.WithMaxTokens(perf.maxTokens),
		)
		if err == nil {
			break
		}
		s.logger.Warn("completion attempt failed",
			"attempt", attempt,
			"max_attempts", s.attempts,
			"intent", intent,
			"error", err)
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		s.logger.Warn("synthesis degraded to templated fallback", "error", err)
		return fallbackResult(contexts, query, start)
	}

	result := &core.InsightResult{
		Insight:        formatInsightText(text),
		Confidence:     s.confidence(text, query, analysis),
		SourcesUsed:    used,
		ProcessingTime: time.Since(start),
	}
	s.logger.Debug("insight synthesized",
		"intent", intent,
		"sources", len(used),
		"confidence", fmt.Sprintf("%.2f", result.Confidence))
	return result
}

// listingResult answers a listing query from chunk metadata alone.
func (s *Synthesizer) listingResult(contexts []*core.ChunkMatch, start time.Time) *core.InsightResult {
	answer, used := formatListing(contexts)
	analysis := analyzeContexts(contexts)

	confidence := confidenceListingGlobal
	switch {
	case len(used) == 0:
		answer = "Nenhum KT foi encontrado na base de conhecimento para esta consulta."
		confidence = confidenceListingEmpty
	case len(analysis.clients) == 1:
		confidence = confidenceListingScoped
	}

	return &core.InsightResult{
		Insight:        answer,
		Confidence:     confidence,
		SourcesUsed:    used,
		ProcessingTime: time.Since(start),
	}
}

// confidence rates an LLM answer: ground level 0.6, raised by grounding
// concentration, meeting coverage, healthy length and query specificity.
func (s *Synthesizer) confidence(text, query string, analysis contextAnalysis) float64 {
	confidence := 0.6

	if analysis.confidence >= 0.5 {
		confidence += 0.1
	}
	if len(analysis.videos) > 1 {
		confidence += 0.1
	} else if len(analysis.videos) == 1 {
		confidence += 0.05
	}
	if runes := len([]rune(text)); runes >= 50 && runes <= 800 {
		confidence += 0.1
	}

	lower := strings.ToLower(text)
	for _, keyword := range extractKeywords(query) {
		if strings.Contains(lower, keyword) {
			confidence += 0.1
			break
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// formatInsightText normalizes model output: trims whitespace and
// collapses runs of blank lines the models like to emit between sections.
func formatInsightText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
