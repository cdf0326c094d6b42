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


// Package pipeline chains the search stages into a runnable whole.
//
// Two execution modes share the same stage semantics. The Orchestrator
// runs every stage in-process within one call. The Stages/Coordinator
// pair runs the same steps as independent jobs over a shared session
// store, so stage work can be distributed across worker processes.
//
// The pipeline is the single error boundary of a search: stage failures
// and panics become a Success=false response here, and the unknown-entity
// early exit becomes a successful catalog answer. Callers never see a
// stack-trace-shaped failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/enrich"
	"github.com/poiesic/ktsearch/insight"
	"github.com/poiesic/ktsearch/respond"
	"github.com/poiesic/ktsearch/retrieve"
	"github.com/poiesic/ktsearch/selection"
)

// MinEnrichmentConfidence is the floor below which an enrichment result
// is treated like a validation failure: the query cleaned down to nothing
// the pipeline can work with.
const MinEnrichmentConfidence = 0.1

// Orchestrator runs the full search pipeline synchronously.
type Orchestrator struct {
	enricher    *enrich.Enricher
	classifier  *classify.Classifier
	executor    *retrieve.Executor
	discovery   *discover.Discovery
	selector    *selection.Selector
	synthesizer *insight.Synthesizer

	logger         *slog.Logger
	monitor        Monitor
	minQueryLength int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger used for pipeline diagnostics.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMonitor sets the stage observation hooks.
func WithMonitor(monitor Monitor) OrchestratorOption {
	return func(o *Orchestrator) {
		if monitor != nil {
			o.monitor = monitor
		}
	}
}

// WithMinQueryLength raises the minimum accepted query length.
func WithMinQueryLength(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > o.minQueryLength {
			o.minQueryLength = n
		}
	}
}

// NewOrchestrator wires the six stage components into a synchronous
// pipeline.
func NewOrchestrator(
	enricher *enrich.Enricher,
	classifier *classify.Classifier,
	executor *retrieve.Executor,
	discovery *discover.Discovery,
	selector *selection.Selector,
	synthesizer *insight.Synthesizer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		enricher:       enricher,
		classifier:     classifier,
		executor:       executor,
		discovery:      discovery,
		selector:       selector,
		synthesizer:    synthesizer,
		logger:         slog.Default().With("component", "pipeline"),
		monitor:        &noopMonitor{},
		minQueryLength: core.MinQueryLength,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs the pipeline for one query and always returns a terminal
// response. Validation failures reject before any stage runs; stage
// errors and panics convert to a Success=false response at this boundary.
func (o *Orchestrator) Search(ctx context.Context, query string) *core.SearchResponse {
	start := time.Now()

	if err := core.ValidateQuery(query, o.minQueryLength); err != nil {
		o.logger.Warn("query rejected", "error", err)
		return respond.ErrorResponse(query, start, err)
	}

	response, err := o.run(ctx, query, start)
	if err != nil {
		o.logger.Error("search failed", "error", err)
		return respond.ErrorResponse(query, start, err)
	}

	o.monitor.Finished(response)
	return response
}

// run executes the stage chain. Panics anywhere in a stage surface as an
// error here, never further up.
func (o *Orchestrator) run(ctx context.Context, query string, start time.Time) (response *core.SearchResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			response = nil
			err = fmt.Errorf("%w: panic: %v", ErrServiceUnavailable, r)
		}
	}()

	enrichment := step(o, "enrich", func() *core.EnrichmentResult {
		return o.enricher.Enrich(ctx, query)
	})
	if enrichment.Confidence < MinEnrichmentConfidence {
		return nil, fmt.Errorf("%w: confidence %.2f", ErrLowEnrichmentConfidence, enrichment.Confidence)
	}

	classification := step(o, "classify", func() *core.ClassificationResult {
		return o.classifier.Classify(ctx, query, enrichment)
	})

	o.monitor.StageStarted("retrieve")
	retrieveStart := time.Now()
	result, err := o.executor.Retrieve(ctx, enrichment, classification, query)
	if err != nil {
		o.monitor.StageFailed("retrieve", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	o.monitor.StageCompleted("retrieve", time.Since(retrieveStart))

	if result.EarlyExit {
		o.monitor.EarlyExit(result.UnknownEntity)
		discovered, derr := o.discovery.Discover(ctx)
		if derr != nil {
			o.logger.Warn("catalog unavailable for unknown-entity answer", "error", derr)
		}
		return respond.UnknownEntityResponse(query, discovered, start), nil
	}

	chunks := o.refineByEntity(ctx, result.Chunks, enrichment, classification, query)

	sel := step(o, "select", func() *core.SelectionResult {
		desired := selection.AdaptiveCount(classification.QueryType, enrichment, len(chunks))
		return o.selector.Select(ctx, chunks, classification.QueryType, desired, enrichment)
	})

	ins := step(o, "insights", func() *core.InsightResult {
		return o.synthesizer.Synthesize(ctx, sel.SelectedChunks, query, classification)
	})

	response = respond.Assemble(ins, sel, classification, query, start)
	o.logger.Debug("search complete",
		"query_type", classification.QueryType.String(),
		"chunks", len(sel.SelectedChunks),
		"fallback", ins.FallbackUsed,
		"elapsed", response.ProcessingTime,
		"analysis", respond.AnalyzeComplexity(enrichment, classification))
	return response, nil
}

// refineByEntity runs discovery-backed boosting and filtering for the
// query types that name entities. Discovery failures degrade to the
// unrefined candidate list.
func (o *Orchestrator) refineByEntity(ctx context.Context, chunks []*core.ChunkMatch, enrichment *core.EnrichmentResult, classification *core.ClassificationResult, query string) []*core.ChunkMatch {
	queryType := classification.QueryType
	if queryType != core.QueryTypeEntity && queryType != core.QueryTypeMetadata {
		return chunks
	}

	o.monitor.StageStarted("discover")
	start := time.Now()
	discovered, err := o.discovery.Discover(ctx)
	if err != nil {
		o.monitor.StageFailed("discover", err)
		o.logger.Warn("entity discovery unavailable, candidates unrefined", "error", err)
		return chunks
	}

	chunks = o.discovery.EnrichMatches(ctx, chunks, enrichment.Entities[core.EntityClients])
	chunks = discover.FilterByEntity(chunks, discovered, query)
	o.monitor.StageCompleted("discover", time.Since(start))
	return chunks
}

// step wraps a non-failing stage with monitor bookkeeping.
func step[T any](o *Orchestrator, stage string, fn func() T) T {
	o.monitor.StageStarted(stage)
	start := time.Now()
	out := fn()
	o.monitor.StageCompleted(stage, time.Since(start))
	return out
}
