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


// Package classify decides which retrieval path answers a query. It combines
// pattern, entity and context evidence through a fixed rule cascade; no model
// call is involved, so classification is deterministic and never fails.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// Classifier scores a query against the five retrieval types and picks the
// winner. The rule cascade runs in a fixed order: pattern vocabulary (with
// the specific-KT and quais-semantic overrides), entity evidence, context
// evidence, weighted combination with priority multipliers and intent
// boosters, then deterministic tie-breaking via core.QueryTypes.
type Classifier struct {
	logger *slog.Logger
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithLogger sets the logger used by the Classifier.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		logger: slog.Default().With("component", "classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the query type, retrieval strategy, confidence and
// fallback types for a cleaned query. A nil enrichment is treated as empty.
// Classify never returns an error; with no evidence at all the result is
// semantic with floor confidence.
func (c *Classifier) Classify(ctx context.Context, query string, enrichment *core.EnrichmentResult) *core.ClassificationResult {
	start := time.Now()
	lower := strings.ToLower(query)

	pattern := scoreByPatterns(lower)
	entity := scoreByEntities(enrichment, lower)
	qctx := scoreByContext(enrichment, lower)

	final := combineScores(pattern, entity, qctx)
	primary, confidence := primaryClassification(final)

	result := &core.ClassificationResult{
		QueryType:      primary,
		Confidence:     confidence,
		Strategy:       buildStrategy(primary, enrichment),
		Reasoning:      buildReasoning(primary, enrichment, final),
		FallbackTypes:  fallbackTypes(final, primary),
		ProcessingTime: time.Since(start),
	}

	c.logger.Debug("query classified",
		"type", primary.String(),
		"confidence", fmt.Sprintf("%.2f", confidence),
		"fallbacks", len(result.FallbackTypes),
		"elapsed", result.ProcessingTime)
	return result
}

// buildReasoning produces the human-readable explanation stored with the
// classification. Useful in logs and the diagnostics command.
func buildReasoning(primary core.QueryType, enrichment *core.EnrichmentResult, scores typeScores) string {
	parts := []string{fmt.Sprintf("classified as %s", primary)}

	if enrichment != nil && len(enrichment.Entities) > 0 {
		categories := make([]string, 0, len(enrichment.Entities))
		for category := range enrichment.Entities {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		parts = append(parts, fmt.Sprintf("entities: %s", strings.Join(categories, ", ")))
	}

	if enrichment != nil {
		var signals []string
		if enrichment.Context.HasSpecificClient {
			signals = append(signals, "specific client")
		}
		if enrichment.Context.IsBroadRequest {
			signals = append(signals, "broad request")
		}
		if len(enrichment.Context.TechnicalTerms) > 0 {
			signals = append(signals, "technical terms")
		}
		if len(signals) > 0 {
			parts = append(parts, fmt.Sprintf("context: %s", strings.Join(signals, ", ")))
		}
	}

	top, topScore := scores.top()
	runnerUp := core.QueryType(0)
	runnerScore := -1.0
	for _, t := range core.QueryTypes() {
		if t != top && scores[t] > runnerScore {
			runnerUp = t
			runnerScore = scores[t]
		}
	}
	scoreInfo := fmt.Sprintf("scores: %s=%.2f", top, topScore)
	if runnerUp.Valid() {
		scoreInfo += fmt.Sprintf(", %s=%.2f", runnerUp, runnerScore)
	}
	parts = append(parts, scoreInfo)

	return strings.Join(parts, "; ")
}
