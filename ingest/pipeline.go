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


// Package ingest stores transcript chunks and embeds them.
//
// Records are written synchronously so callers can rely on the chunk
// existing once Ingest returns; embedding runs asynchronously on a
// bounded pool, since a chunk is searchable by metadata before its
// vector arrives.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/ktsearch/ai"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
)

// Pipeline ingests transcript records into the chunk store and manages
// concurrent embedding generation.
type Pipeline struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	pool     *ants.Pool
	logger   *slog.Logger
	inflight sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunks:   chunks,
		embedder: embedder,
		pool:     pool,
		logger:   slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Ingest stores the records as chunks and schedules their embedding.
// Metadata is sanitized and stamped with the video name and segment
// ordinal; embedding errors are logged but do not fail the ingestion.
func (p *Pipeline) Ingest(ctx context.Context, records ...Record) ([]*core.Chunk, error) {
	chunks := make([]*core.Chunk, 0, len(records))
	for _, record := range records {
		chunk, err := p.toChunk(record)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	added, err := p.chunks.AddChunks(ctx, chunks...)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return added, nil
	}

	ids := make([]string, len(added))
	for i, chunk := range added {
		ids[i] = chunk.ID
	}

	p.inflight.Add(1)
	submitErr := p.pool.Submit(func() {
		defer p.inflight.Done()
		if err := p.embed(context.Background(), ids...); err != nil {
			p.logger.Error("error embedding chunks", "err", err)
		}
	})
	if submitErr != nil {
		p.inflight.Done()
		p.logger.Error("error scheduling embedding", "err", submitErr)
	}

	p.logger.Info("records ingested", "chunks", len(added))
	return added, nil
}

// toChunk builds the storable chunk for a record.
func (p *Pipeline) toChunk(record Record) (*core.Chunk, error) {
	metadata := make(map[string]string, len(record.Metadata)+2)
	for key, value := range record.Metadata {
		metadata[key] = value
	}
	if record.VideoName != "" {
		metadata[core.MetaVideoName] = record.VideoName
	}
	metadata[core.MetaSegment] = strconv.Itoa(record.Segment)

	chunk := &core.Chunk{
		ID:       record.ChunkID(),
		Text:     record.Text,
		Metadata: core.SanitizeMetadata(metadata),
	}
	if err := core.ValidateChunk(chunk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmptyRecord, err)
	}
	return chunk, nil
}

// embed fetches the chunks, generates their vectors in one batch and
// writes them back.
func (p *Pipeline) embed(ctx context.Context, ids ...string) error {
	chunks, err := p.chunks.GetChunks(ctx, ids...)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(chunks), len(vectors))
	}

	for i := range vectors {
		chunks[i].Vector = vectors[i]
	}
	_, err = p.chunks.UpdateChunks(ctx, chunks...)
	if err != nil {
		return err
	}

	p.logger.Debug("chunks embedded", "chunks", len(chunks))
	return nil
}

// Wait blocks until every scheduled embedding job finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Release releases the worker pool. The pipeline should not be used
// after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
