package ingest

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyRecord is returned when a record carries no text.
	ErrEmptyRecord = errors.New("record text cannot be empty")

	// ErrEmbeddingMismatch is returned when the embedder produced a
	// different number of vectors than texts.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")
)
