package storage

import (
	"context"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// Repository provides common storage operations shared across repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Filter narrows a metadata query over the chunk store.
// All populated conditions must hold for a chunk to match (AND semantics).
type Filter struct {
	// Equals requires exact matches on metadata fields, keyed by metadata name.
	Equals map[string]string

	// Terms requires every term to appear in the chunk text, case-insensitively.
	Terms []string

	// DateFrom bounds the meeting date from below (inclusive) when non-zero.
	DateFrom time.Time

	// DateTo bounds the meeting date from above (exclusive) when non-zero.
	DateTo time.Time
}

// Empty reports whether the filter carries no conditions at all.
func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && len(f.Terms) == 0 && f.DateFrom.IsZero() && f.DateTo.IsZero()
}

// ChunkRepository provides operations for managing transcript chunks.
type ChunkRepository interface {
	Repository
	// AddChunks adds one or more chunks to storage.
	// Chunk metadata is sanitized before writing; empty values are dropped.
	// Sets InsertedAt timestamp if not already set.
	// Returns the chunks with timestamps populated.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// UpdateChunks updates existing chunks.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// DeleteChunks removes chunks by their IDs.
	// Also removes associated indices.
	// Returns ErrNotFound if any chunk doesn't exist.
	DeleteChunks(ctx context.Context, ids ...string) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id string) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)

	// QueryByVector finds chunks similar to the given embedding vector.
	// Returns matches with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	QueryByVector(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)

	// Query retrieves chunks matching the filter, up to limit results.
	// Results are ordered by meeting date descending so recent meetings
	// surface first. A zero limit means no cap.
	Query(ctx context.Context, filter Filter, limit int) ([]*core.Chunk, error)

	// ListDistinct returns the distinct non-empty values of a metadata field
	// across all stored chunks, sorted ascending.
	ListDistinct(ctx context.Context, metaKey string) ([]string, error)

	// CountBy returns the number of chunks carrying each distinct value of a
	// metadata field. Chunks without the field are not counted.
	CountBy(ctx context.Context, metaKey string) (map[string]int, error)

	// CountChunks returns the total number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// IterateChunks calls fn for every stored chunk.
	// Iteration stops at the first error returned by fn.
	IterateChunks(ctx context.Context, fn func(chunk *core.Chunk) error) error
}

// CheckpointRepository persists resumable progress markers for long-running
// maintenance jobs such as reindexing.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)
}

// SessionRepository stores intermediate and final results for staged search
// sessions. Entries expire after the configured session TTL.
type SessionRepository interface {
	// PutMeta stores the session bookkeeping record.
	PutMeta(ctx context.Context, sessionID string, data []byte) error

	// GetMeta retrieves the session bookkeeping record.
	// Returns ErrNotFound if the session doesn't exist or has expired.
	GetMeta(ctx context.Context, sessionID string) ([]byte, error)

	// PutStage stores one stage's output for the session.
	PutStage(ctx context.Context, sessionID, stage string, data []byte) error

	// GetStage retrieves one stage's output for the session.
	// Returns ErrNotFound if the stage has not produced output.
	GetStage(ctx context.Context, sessionID, stage string) ([]byte, error)

	// PutFinal stores the assembled search response for the session.
	PutFinal(ctx context.Context, sessionID string, data []byte) error

	// GetFinal retrieves the assembled search response for the session.
	// Returns ErrNotFound if the session has not finalized.
	GetFinal(ctx context.Context, sessionID string) ([]byte, error)

	// DeleteSession removes all keys belonging to the session.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close closes the session store connection.
	Close() error
}
