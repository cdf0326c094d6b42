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


package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/dispatch"
	"github.com/poiesic/ktsearch/enrich"
	"github.com/poiesic/ktsearch/insight"
	"github.com/poiesic/ktsearch/respond"
	"github.com/poiesic/ktsearch/retrieve"
	"github.com/poiesic/ktsearch/selection"
	"github.com/poiesic/ktsearch/storage"
)

// Stage names, in execution order.
const (
	StageEnrich   = "enrich"
	StageClassify = "classify"
	StageRetrieve = "retrieve"
	StageDiscover = "discover"
	StageSelect   = "select"
	StageInsights = "insights"
)

// StageOrder returns the stages in the order the coordinator runs them.
func StageOrder() []string {
	return []string{StageEnrich, StageClassify, StageRetrieve, StageDiscover, StageSelect, StageInsights}
}

// StagePayload is the job result a stage hands back through the queue.
// The stage's real output lives in the session store; the payload only
// carries the control signals the coordinator acts on.
type StagePayload struct {
	EarlyExit bool `json:"early_exit,omitempty"`
	Skipped   bool `json:"skipped,omitempty"`
}

// discoverOutput is what the discover stage writes to its session key.
type discoverOutput struct {
	Skipped  bool                        `json:"skipped,omitempty"`
	Entities map[string]*core.EntityInfo `json:"entities,omitempty"`
}

// Stages holds the six staged-mode handlers. Each handler reads
// prior-stage output from the session store, writes exactly its own
// stage key and is idempotent: re-running it overwrites its own key with
// the same content.
type Stages struct {
	sessions    storage.SessionRepository
	enricher    *enrich.Enricher
	classifier  *classify.Classifier
	executor    *retrieve.Executor
	discovery   *discover.Discovery
	selector    *selection.Selector
	synthesizer *insight.Synthesizer
	logger      *slog.Logger
}

// StagesOption configures a Stages set.
type StagesOption func(*Stages)

// WithStagesLogger sets the logger used for stage diagnostics.
func WithStagesLogger(logger *slog.Logger) StagesOption {
	return func(s *Stages) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStages wires the stage components to a session store.
func NewStages(
	sessions storage.SessionRepository,
	enricher *enrich.Enricher,
	classifier *classify.Classifier,
	executor *retrieve.Executor,
	discovery *discover.Discovery,
	selector *selection.Selector,
	synthesizer *insight.Synthesizer,
	opts ...StagesOption,
) *Stages {
	s := &Stages{
		sessions:    sessions,
		enricher:    enricher,
		classifier:  classifier,
		executor:    executor,
		discovery:   discovery,
		selector:    selector,
		synthesizer: synthesizer,
		logger:      slog.Default().With("component", "pipeline-stages"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handlers returns the stage handlers keyed by stage name.
func (s *Stages) Handlers() map[string]dispatch.Handler {
	return map[string]dispatch.Handler{
		StageEnrich:   s.runEnrich,
		StageClassify: s.runClassify,
		StageRetrieve: s.runRetrieve,
		StageDiscover: s.runDiscover,
		StageSelect:   s.runSelect,
		StageInsights: s.runInsights,
	}
}

// Register binds every stage handler to the worker.
func (s *Stages) Register(worker *dispatch.Worker) {
	for stage, handler := range s.Handlers() {
		worker.Register(stage, handler)
	}
}

func (s *Stages) runEnrich(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := s.meta(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	enrichment := s.enricher.Enrich(ctx, meta.Query)
	if enrichment.Confidence < MinEnrichmentConfidence {
		return nil, fmt.Errorf("%w: confidence %.2f", ErrLowEnrichmentConfidence, enrichment.Confidence)
	}
	return nil, s.writeStage(ctx, sessionID, StageEnrich, enrichment)
}

func (s *Stages) runClassify(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := s.meta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var enrichment core.EnrichmentResult
	if err := s.readStage(ctx, sessionID, StageEnrich, &enrichment); err != nil {
		return nil, err
	}

	classification := s.classifier.Classify(ctx, meta.Query, &enrichment)
	return nil, s.writeStage(ctx, sessionID, StageClassify, classification)
}

// runRetrieve executes the retrieval strategies. On an unknown-entity
// early exit it also writes the final response, so the coordinator can
// finish the session without running the remaining stages.
func (s *Stages) runRetrieve(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := s.meta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var enrichment core.EnrichmentResult
	if err := s.readStage(ctx, sessionID, StageEnrich, &enrichment); err != nil {
		return nil, err
	}
	var classification core.ClassificationResult
	if err := s.readStage(ctx, sessionID, StageClassify, &classification); err != nil {
		return nil, err
	}

	result, err := s.executor.Retrieve(ctx, &enrichment, &classification, meta.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if err := s.writeStage(ctx, sessionID, StageRetrieve, result); err != nil {
		return nil, err
	}

	if !result.EarlyExit {
		return nil, nil
	}

	discovered, derr := s.discovery.Discover(ctx)
	if derr != nil {
		s.logger.Warn("catalog unavailable for unknown-entity answer", "error", derr)
	}
	final := respond.UnknownEntityResponse(meta.Query, discovered, meta.CreatedAt)
	if err := s.putFinal(ctx, sessionID, final); err != nil {
		return nil, err
	}
	return json.Marshal(StagePayload{EarlyExit: true})
}

// runDiscover snapshots the known-entity catalog for entity-scoped query
// types and self-skips for the rest.
func (s *Stages) runDiscover(ctx context.Context, sessionID string) ([]byte, error) {
	var classification core.ClassificationResult
	if err := s.readStage(ctx, sessionID, StageClassify, &classification); err != nil {
		return nil, err
	}

	queryType := classification.QueryType
	if queryType != core.QueryTypeEntity && queryType != core.QueryTypeMetadata {
		if err := s.writeStage(ctx, sessionID, StageDiscover, discoverOutput{Skipped: true}); err != nil {
			return nil, err
		}
		return json.Marshal(StagePayload{Skipped: true})
	}

	discovered, err := s.discovery.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return nil, s.writeStage(ctx, sessionID, StageDiscover, discoverOutput{Entities: discovered})
}

func (s *Stages) runSelect(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := s.meta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var enrichment core.EnrichmentResult
	if err := s.readStage(ctx, sessionID, StageEnrich, &enrichment); err != nil {
		return nil, err
	}
	var classification core.ClassificationResult
	if err := s.readStage(ctx, sessionID, StageClassify, &classification); err != nil {
		return nil, err
	}
	var result retrieve.Result
	if err := s.readStage(ctx, sessionID, StageRetrieve, &result); err != nil {
		return nil, err
	}
	if result.EarlyExit {
		// Redelivered after the session already exited; nothing to select.
		return json.Marshal(StagePayload{Skipped: true})
	}

	chunks := result.Chunks
	var disc discoverOutput
	if err := s.readStage(ctx, sessionID, StageDiscover, &disc); err == nil && !disc.Skipped {
		chunks = s.discovery.EnrichMatches(ctx, chunks, enrichment.Entities[core.EntityClients])
		chunks = discover.FilterByEntity(chunks, disc.Entities, meta.Query)
	}

	desired := selection.AdaptiveCount(classification.QueryType, &enrichment, len(chunks))
	sel := s.selector.Select(ctx, chunks, classification.QueryType, desired, &enrichment)
	return nil, s.writeStage(ctx, sessionID, StageSelect, sel)
}

// runInsights synthesizes the answer and assembles the final response.
func (s *Stages) runInsights(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := s.meta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var classification core.ClassificationResult
	if err := s.readStage(ctx, sessionID, StageClassify, &classification); err != nil {
		return nil, err
	}
	var sel core.SelectionResult
	if err := s.readStage(ctx, sessionID, StageSelect, &sel); err != nil {
		return nil, err
	}

	ins := s.synthesizer.Synthesize(ctx, sel.SelectedChunks, meta.Query, &classification)
	if err := s.writeStage(ctx, sessionID, StageInsights, ins); err != nil {
		return nil, err
	}

	final := respond.Assemble(ins, &sel, &classification, meta.Query, meta.CreatedAt)
	return nil, s.putFinal(ctx, sessionID, final)
}

// meta loads the coordinator-owned session record.
func (s *Stages) meta(ctx context.Context, sessionID string) (*SessionMeta, error) {
	data, err := s.sessions.GetMeta(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: session %s meta", ErrStageDataMissing, sessionID)
	}
	if err != nil {
		return nil, err
	}

	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt session meta %s: %w", sessionID, err)
	}
	return &meta, nil
}

// readStage loads one upstream stage output into v. An absent key is the
// ordering violation ErrStageDataMissing.
func (s *Stages) readStage(ctx context.Context, sessionID, stage string, v any) error {
	data, err := s.sessions.GetStage(ctx, sessionID, stage)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: stage %s", ErrStageDataMissing, stage)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt %s output for session %s: %w", stage, sessionID, err)
	}
	return nil
}

func (s *Stages) writeStage(ctx context.Context, sessionID, stage string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.sessions.PutStage(ctx, sessionID, stage, data)
}

func (s *Stages) putFinal(ctx context.Context, sessionID string, response *core.SearchResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.sessions.PutFinal(ctx, sessionID, data)
}
