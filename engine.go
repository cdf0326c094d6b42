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


package ktsearch

import (
	"io"
	"log/slog"

	"github.com/poiesic/ktsearch/ai"
	"github.com/poiesic/ktsearch/ai/openai"
	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/config"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/dispatch"
	"github.com/poiesic/ktsearch/enrich"
	"github.com/poiesic/ktsearch/ingest"
	"github.com/poiesic/ktsearch/insight"
	"github.com/poiesic/ktsearch/pipeline"
	"github.com/poiesic/ktsearch/reindex"
	"github.com/poiesic/ktsearch/retrieve"
	"github.com/poiesic/ktsearch/selection"
	"github.com/poiesic/ktsearch/storage"
	badgerstore "github.com/poiesic/ktsearch/storage/badger"
	redisstore "github.com/poiesic/ktsearch/storage/redis"
)

// Engine opens the stores and AI provider for one configuration and
// hands out wired pipeline components. It is the composition root the
// CLI commands build everything from.
type Engine struct {
	cfg            *config.Config
	backend        *badgerstore.Backend
	chunkRepo      storage.ChunkRepository
	checkpointRepo storage.CheckpointRepository
	provider       ai.Provider
	logger         *slog.Logger
}

// NewEngine opens the chunk store under cfg.DataDir and connects the AI
// provider. The Redis-backed pieces connect lazily when requested.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := badgerstore.OpenBackend(cfg.DataDir, cfg.DataDir == "")
	if err != nil {
		return nil, err
	}

	chunkRepo := badgerstore.NewChunkRepository(backend)
	checkpointRepo := badgerstore.NewCheckpointRepository(backend)

	provider, err := openai.NewProvider(ai.NewConfig(
		ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
		ai.WithCompletionHost(cfg.AI.CompletionHost),
		ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		ai.WithCompletionModel(cfg.AI.CompletionModel),
		ai.WithMaxRetries(cfg.AI.MaxRetries),
	))
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Engine{
		cfg:            cfg,
		backend:        backend,
		chunkRepo:      chunkRepo,
		checkpointRepo: checkpointRepo,
		provider:       provider,
		logger:         slog.Default().With("component", "engine"),
	}, nil
}

// Close releases the AI provider and the chunk store.
func (e *Engine) Close() error {
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	if err := e.chunkRepo.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// ChunkRepository returns the chunk store.
func (e *Engine) ChunkRepository() storage.ChunkRepository {
	return e.chunkRepo
}

// CheckpointRepository returns the checkpoint store.
func (e *Engine) CheckpointRepository() storage.CheckpointRepository {
	return e.checkpointRepo
}

// Provider returns the AI provider.
func (e *Engine) Provider() ai.Provider {
	return e.provider
}

// NewDiscovery builds an entity discovery service over the chunk store.
func (e *Engine) NewDiscovery() *discover.Discovery {
	return discover.NewDiscovery(e.chunkRepo)
}

// components builds the six stage components wired to the engine's
// stores and provider.
func (e *Engine) components() (*enrich.Enricher, *classify.Classifier, *retrieve.Executor, *discover.Discovery, *selection.Selector, *insight.Synthesizer) {
	discovery := e.NewDiscovery()

	enricher := enrich.NewEnricher(
		enrich.WithMinQueryLength(e.cfg.Search.MinQueryLength),
	)
	classifier := classify.NewClassifier()
	executor := retrieve.NewExecutor(e.chunkRepo, e.provider.Embedder(), discovery,
		retrieve.WithTopK(e.cfg.Search.TopK),
		retrieve.WithMinSimilarity(e.cfg.Search.MinSimilarity),
	)
	selector := selection.NewSelector()
	synthesizer := insight.NewSynthesizer(e.provider.Completer(),
		insight.WithTokenModel(e.cfg.AI.CompletionModel),
	)

	return enricher, classifier, executor, discovery, selector, synthesizer
}

// NewOrchestrator builds the synchronous search pipeline.
func (e *Engine) NewOrchestrator(opts ...pipeline.OrchestratorOption) *pipeline.Orchestrator {
	enricher, classifier, executor, discovery, selector, synthesizer := e.components()
	opts = append([]pipeline.OrchestratorOption{
		pipeline.WithMinQueryLength(e.cfg.Search.MinQueryLength),
	}, opts...)
	return pipeline.NewOrchestrator(enricher, classifier, executor, discovery, selector, synthesizer, opts...)
}

// NewSessionRepository connects the Redis session store.
func (e *Engine) NewSessionRepository() (*redisstore.SessionRepository, error) {
	return redisstore.NewSessionRepository(redisstore.NewConfig(
		redisstore.WithAddr(e.cfg.Redis.Addr),
		redisstore.WithPassword(e.cfg.Redis.Password),
		redisstore.WithDB(e.cfg.Redis.DB),
		redisstore.WithKeyPrefix(e.cfg.Redis.KeyPrefix),
		redisstore.WithSessionTTL(e.cfg.Redis.SessionTTL),
	))
}

// NewQueue connects the Redis job queue.
func (e *Engine) NewQueue() (*dispatch.RedisQueue, error) {
	return dispatch.NewRedisQueue(dispatch.NewConfig(
		dispatch.WithAddr(e.cfg.Redis.Addr),
		dispatch.WithPassword(e.cfg.Redis.Password),
		dispatch.WithDB(e.cfg.Redis.DB),
		dispatch.WithKeyPrefix(e.cfg.Redis.KeyPrefix),
	))
}

// NewStages builds the staged pipeline handlers over a session store.
func (e *Engine) NewStages(sessions storage.SessionRepository, opts ...pipeline.StagesOption) *pipeline.Stages {
	enricher, classifier, executor, discovery, selector, synthesizer := e.components()
	return pipeline.NewStages(sessions, enricher, classifier, executor, discovery, selector, synthesizer, opts...)
}

// NewCoordinator builds the staged pipeline driver over a queue and a
// session store.
func (e *Engine) NewCoordinator(queue dispatch.Queue, sessions storage.SessionRepository, opts ...pipeline.CoordinatorOption) *pipeline.Coordinator {
	opts = append([]pipeline.CoordinatorOption{
		pipeline.WithStageTimeout(e.cfg.Search.StageTimeout),
		pipeline.WithCoordinatorMinQueryLength(e.cfg.Search.MinQueryLength),
	}, opts...)
	return pipeline.NewCoordinator(queue, sessions, opts...)
}

// NewWorker builds a stage worker over the queue with every stage
// handler registered.
func (e *Engine) NewWorker(queue *dispatch.RedisQueue, sessions storage.SessionRepository, opts ...dispatch.WorkerOption) (*dispatch.Worker, error) {
	opts = append([]dispatch.WorkerOption{
		dispatch.WithJobTimeout(e.cfg.Worker.JobTimeout),
	}, opts...)
	worker, err := dispatch.NewWorker(queue, e.cfg.Worker.MaxJobs, opts...)
	if err != nil {
		return nil, err
	}
	e.NewStages(sessions).Register(worker)
	return worker, nil
}

// NewIngestionPipeline builds a chunk ingestion pipeline over the store.
func (e *Engine) NewIngestionPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(e.chunkRepo, e.provider.Embedder(), opts...)
}

// NewReindexer builds a re-embedding run over the full chunk store.
func (e *Engine) NewReindexer(cfg *reindex.Config, progress io.Writer) *reindex.Reindexer {
	return reindex.NewReindexer(e.chunkRepo, e.provider.Embedder(), e.checkpointRepo, cfg, progress)
}
