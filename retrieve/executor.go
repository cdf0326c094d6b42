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


// Package retrieve executes the retrieval strategies chosen by query
// classification. The primary strategy and every fallback strategy run
// concurrently against the chunk store, each under its own timeout, and
// their results merge into a single deduplicated candidate list.
//
// Before any strategy runs, the executor checks the client entities the
// query names against the discovered entity set. A query about a client
// that does not exist in the store exits early without touching the
// store again, so the caller can answer with the known-client catalog
// instead of an empty search result.
package retrieve

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/ktsearch/ai"
	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/respond"
	"github.com/poiesic/ktsearch/storage"
)

// Strategy names recorded on matches and in result bookkeeping.
const (
	StrategySemantic = "semantic"
	StrategyMetadata = "metadata"
	StrategyEntity   = "entity"
	StrategyTemporal = "temporal"
	StrategyContent  = "content"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultTopK            = 10
	DefaultMinSimilarity   = 0.2
	DefaultStrategyTimeout = 15 * time.Second
)

// ErrMissingInput indicates Retrieve was called without the enrichment or
// classification result it needs.
var ErrMissingInput = errors.New("enrichment and classification results are required")

// Result is the output of the retrieval stage.
type Result struct {
	// Chunks holds the merged matches. Matches produced by the primary
	// strategy come first, in that strategy's order; fallback strategies
	// only append chunks the primary did not find.
	Chunks []*core.ChunkMatch `json:"chunks"`

	// EarlyExit is set when every client the query names is absent from
	// the store. No retrieval strategies ran in that case.
	EarlyExit bool `json:"early_exit"`

	// UnknownEntity is the first absent client name when EarlyExit is set.
	UnknownEntity string `json:"unknown_entity,omitempty"`

	// StrategiesRun and StrategiesFailed record which strategies produced
	// results and which returned errors.
	StrategiesRun    []string `json:"strategies_run,omitempty"`
	StrategiesFailed []string `json:"strategies_failed,omitempty"`
}

// Executor runs retrieval strategies against the chunk store.
type Executor struct {
	chunks    storage.ChunkRepository
	embedder  ai.Embedder
	discovery *discover.Discovery
	logger    *slog.Logger

	topK    int
	minSim  float32
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for retrieval diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTopK sets the base result count strategies scale from.
func WithTopK(topK int) Option {
	return func(e *Executor) {
		if topK > 0 {
			e.topK = topK
		}
	}
}

// WithMinSimilarity sets the vector similarity floor for semantic search.
func WithMinSimilarity(minSim float32) Option {
	return func(e *Executor) {
		if minSim > 0 {
			e.minSim = minSim
		}
	}
}

// WithStrategyTimeout bounds how long a single strategy may run.
func WithStrategyTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewExecutor builds an Executor over the given store, embedder and
// entity discovery.
func NewExecutor(chunks storage.ChunkRepository, embedder ai.Embedder, discovery *discover.Discovery, opts ...Option) *Executor {
	e := &Executor{
		chunks:    chunks,
		embedder:  embedder,
		discovery: discovery,
		logger:    slog.Default().With("component", "retrieve"),
		topK:      DefaultTopK,
		minSim:    DefaultMinSimilarity,
		timeout:   DefaultStrategyTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve runs the unknown-entity gate and then the primary strategy
// plus one strategy per fallback type, all concurrently. Strategy
// failures are logged and recorded but do not fail the stage; the merged
// results of the surviving strategies are returned.
func (e *Executor) Retrieve(ctx context.Context, enrichment *core.EnrichmentResult, classification *core.ClassificationResult, query string) (*Result, error) {
	if enrichment == nil || classification == nil {
		return nil, ErrMissingInput
	}

	if unknown, exit := e.unknownEntityGate(ctx, enrichment); exit {
		e.logger.Info("early exit, query names no known entity", "entity", unknown)
		return &Result{EarlyExit: true, UnknownEntity: unknown}, nil
	}

	plans := e.plansFor(enrichment, classification)
	in := input{query: query, enrichment: enrichment}
	outcomes := e.runPlans(ctx, plans, in)

	var run, failed []string
	ordered := make([][]*core.ChunkMatch, 0, len(plans))
	for _, p := range plans {
		outcome := outcomes[p.name]
		if outcome.err != nil {
			e.logger.Warn("retrieval strategy failed",
				"strategy", p.name,
				"error", outcome.err)
			failed = append(failed, p.name)
			continue
		}
		run = append(run, p.name)
		ordered = append(ordered, outcome.matches)
	}

	merged := mergeMatches(ordered)
	e.logger.Debug("retrieval complete",
		"strategies_run", len(run),
		"strategies_failed", len(failed),
		"chunks", len(merged))
	return &Result{Chunks: merged, StrategiesRun: run, StrategiesFailed: failed}, nil
}

// input carries the per-query context every strategy receives.
type input struct {
	query      string
	enrichment *core.EnrichmentResult
}

// plan pairs a query type with the retrieval strategy to run for it.
type plan struct {
	name      string
	queryType core.QueryType
	strategy  core.RetrievalStrategy
}

// plansFor expands the classification into one plan per strategy: the
// primary type first, then each fallback type. The classification only
// carries the primary strategy, so fallback strategies are derived from
// the same enrichment evidence.
func (e *Executor) plansFor(enrichment *core.EnrichmentResult, classification *core.ClassificationResult) []plan {
	types := make([]core.QueryType, 0, 1+len(classification.FallbackTypes))
	types = append(types, classification.QueryType)
	types = append(types, classification.FallbackTypes...)

	seen := make(map[core.QueryType]struct{}, len(types))
	plans := make([]plan, 0, len(types))
	for i, queryType := range types {
		if _, ok := seen[queryType]; ok {
			continue
		}
		seen[queryType] = struct{}{}

		strategy := classification.Strategy
		if i > 0 {
			strategy = classify.StrategyFor(queryType, enrichment)
		}
		plans = append(plans, plan{
			name:      strategyName(queryType),
			queryType: queryType,
			strategy:  strategy,
		})
	}
	return plans
}

// outcome is what a single strategy goroutine reports back.
type outcome struct {
	name    string
	matches []*core.ChunkMatch
	err     error
}

// runPlans fans the plans out to goroutines, one per strategy, each with
// its own timeout, and collects every outcome.
func (e *Executor) runPlans(ctx context.Context, plans []plan, in input) map[string]outcome {
	results := make(chan outcome, len(plans))
	var wg sync.WaitGroup
	for _, p := range plans {
		wg.Add(1)
		go func(p plan) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			matches, err := e.runStrategy(sctx, p, in)
			results <- outcome{name: p.name, matches: matches, err: err}
		}(p)
	}
	wg.Wait()
	close(results)

	outcomes := make(map[string]outcome, len(plans))
	for result := range results {
		outcomes[result.name] = result
	}
	return outcomes
}

func (e *Executor) runStrategy(ctx context.Context, p plan, in input) ([]*core.ChunkMatch, error) {
	switch p.queryType {
	case core.QueryTypeMetadata:
		return e.metadataSearch(ctx, p.strategy, in)
	case core.QueryTypeEntity:
		return e.entitySearch(ctx, p.strategy, in)
	case core.QueryTypeTemporal:
		return e.temporalSearch(ctx, p.strategy, in)
	case core.QueryTypeContent:
		return e.contentSearch(ctx, p.strategy, in)
	default:
		return e.semanticSearch(ctx, p.strategy, in)
	}
}

// unknownEntityGate reports whether the query names clients and none of
// them resolve against the discovered entity set. The predicate itself
// lives in respond so the assembler exposes the same signal.
func (e *Executor) unknownEntityGate(ctx context.Context, enrichment *core.EnrichmentResult) (string, bool) {
	entity, unknown := respond.UnknownEntity(ctx, e.discovery, enrichment)
	if unknown {
		e.logger.Info("unknown entity gate tripped", "entity", entity)
	}
	return entity, unknown
}

func strategyName(queryType core.QueryType) string {
	switch queryType {
	case core.QueryTypeMetadata:
		return StrategyMetadata
	case core.QueryTypeEntity:
		return StrategyEntity
	case core.QueryTypeTemporal:
		return StrategyTemporal
	case core.QueryTypeContent:
		return StrategyContent
	default:
		return StrategySemantic
	}
}

// mergeMatches concatenates per-strategy results, deduplicating by chunk
// id. The first strategy to produce a chunk fixes its position and
// strategy label; a later, higher score replaces the lower one.
func mergeMatches(ordered [][]*core.ChunkMatch) []*core.ChunkMatch {
	var merged []*core.ChunkMatch
	byID := make(map[string]*core.ChunkMatch)
	for _, matches := range ordered {
		for _, match := range matches {
			if match == nil || match.Chunk == nil {
				continue
			}
			if existing, ok := byID[match.Chunk.ID]; ok {
				if match.Score > existing.Score {
					existing.Score = match.Score
				}
				continue
			}
			byID[match.Chunk.ID] = match
			merged = append(merged, match)
		}
	}
	return merged
}
