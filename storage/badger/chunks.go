package badger

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository on top of an open backend.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database handle.
func (r *ChunkRepository) Close() error {
	return nil
}

// QueryByVector delegates to the backend.
func (r *ChunkRepository) QueryByVector(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	return r.backend.QueryByVector(ctx, vector, minSimilarity, limit)
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks adds one or more chunks to storage.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if err := core.ValidateChunk(chunk); err != nil {
				return err
			}
			chunk.Metadata = core.SanitizeMetadata(chunk.Metadata)

			if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = time.Now().UTC()
			}
			chunk.UpdatedAt = chunk.InsertedAt

			// Store primary record
			key := makeChunkKey(chunk.ID)
			value := storage.MarshalChunk(chunk)
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Update indexes
			if err := updateChunkIndexes(tx, chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// UpdateChunks updates existing chunks.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.ID)

			// Read old chunk to detect index changes
			old, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			chunk.Metadata = core.SanitizeMetadata(chunk.Metadata)
			chunk.InsertedAt = old.InsertedAt
			chunk.UpdatedAt = time.Now().UTC()

			// Store updated chunk
			value := storage.MarshalChunk(chunk)
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Refresh indexes if the indexed fields changed
			if old.Meta(core.MetaMeetingDate) != chunk.Meta(core.MetaMeetingDate) ||
				old.Meta(core.MetaClientName) != chunk.Meta(core.MetaClientName) {
				if err := deleteChunkIndexes(tx, old); err != nil {
					return err
				}
				if err := updateChunkIndexes(tx, chunk); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// DeleteChunks removes chunks by their IDs.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids ...string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeChunkKey(id)

			// Read chunk to get metadata for index cleanup
			chunk, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if chunk == nil {
				return storage.ErrNotFound
			}

			if err := deleteChunkIndexes(tx, chunk); err != nil {
				return err
			}

			// Delete primary record
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id string) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeChunkKey(id)
		var err error
		result, err = readChunk(tx, key)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunks retrieves multiple chunks by their IDs.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeChunkKey(id)
			chunk, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// Query retrieves chunks matching the filter, ordered by meeting date descending.
func (r *ChunkRepository) Query(ctx context.Context, filter storage.Filter, limit int) ([]*core.Chunk, error) {
	var results []*core.Chunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use the client index when the filter pins a client; otherwise scan.
		if client := filter.Equals[core.MetaClientName]; client != "" {
			return r.queryByClient(tx, client, filter, &results)
		}
		return r.queryScan(tx, filter, &results)
	}, false)
	if err != nil {
		return nil, err
	}

	// Most recent meetings first; undated chunks sort last.
	slices.SortFunc(results, func(a, b *core.Chunk) int {
		da, aok := meetingDate(a)
		db, bok := meetingDate(b)
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		case aok && bok && !da.Equal(db):
			if da.After(db) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// queryByClient walks the client index and applies the remaining filter.
func (r *ChunkRepository) queryByClient(tx *badger.Txn, client string, filter storage.Filter, results *[]*core.Chunk) error {
	startKey := makePartialChunkClientKey(client)
	iter := tx.NewIterator(badger.DefaultIteratorOptions)
	defer iter.Close()

	for iter.Seek(startKey); iter.Valid(); iter.Next() {
		key := iter.Item().Key()
		if !bytes.HasPrefix(key, startKey) {
			break
		}

		// Read the chunk ID from the index value
		var id string
		if err := iter.Item().Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		chunk, err := readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if chunk != nil && matchesFilter(chunk, filter) {
			*results = append(*results, chunk)
		}
	}
	return nil
}

// queryScan walks every chunk and applies the filter.
func (r *ChunkRepository) queryScan(tx *badger.Txn, filter storage.Filter, results *[]*core.Chunk) error {
	return forEachChunk(tx, func(chunk *core.Chunk) error {
		if matchesFilter(chunk, filter) {
			*results = append(*results, chunk)
		}
		return nil
	})
}

// ListDistinct returns the distinct non-empty values of a metadata field, sorted.
func (r *ChunkRepository) ListDistinct(ctx context.Context, metaKey string) ([]string, error) {
	seen := make(map[string]bool)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachChunk(tx, func(chunk *core.Chunk) error {
			if v := chunk.Meta(metaKey); v != "" {
				seen[v] = true
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	slices.Sort(values)
	return values, nil
}

// CountBy returns the number of chunks per distinct value of a metadata field.
func (r *ChunkRepository) CountBy(ctx context.Context, metaKey string) (map[string]int, error) {
	counts := make(map[string]int)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachChunk(tx, func(chunk *core.Chunk) error {
			if v := chunk.Meta(metaKey); v != "" {
				counts[v]++
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// CountChunks returns the total number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if bytes.HasPrefix(key, []byte(chunkRecordDatePrefix)) ||
				bytes.HasPrefix(key, []byte(chunkRecordClientPrefix)) {
				continue
			}
			count++
		}
		return nil
	}, false)
	return count, err
}

// IterateChunks calls fn for every stored chunk.
func (r *ChunkRepository) IterateChunks(ctx context.Context, fn func(chunk *core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachChunk(tx, func(chunk *core.Chunk) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(chunk)
		})
	}, false)
}

// Helper functions

// readChunk reads a chunk from the transaction.
// Returns nil, nil when the key does not exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// forEachChunk iterates primary chunk records, skipping index keys.
func forEachChunk(tx *badger.Txn, fn func(chunk *core.Chunk) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(chunkRecordPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()

		// Skip index keys (date index and client index)
		if bytes.HasPrefix(key, []byte(chunkRecordDatePrefix)) ||
			bytes.HasPrefix(key, []byte(chunkRecordClientPrefix)) {
			continue
		}

		var chunk *core.Chunk
		err := item.Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// updateChunkIndexes adds date and client index entries for a chunk.
func updateChunkIndexes(tx *badger.Txn, chunk *core.Chunk) error {
	if date, ok := meetingDate(chunk); ok {
		dateKey := makeChunkDateKey(date, chunk.ID)
		if err := tx.Set(dateKey, []byte(chunk.ID)); err != nil {
			return err
		}
	}
	if client := chunk.Meta(core.MetaClientName); client != "" {
		clientKey := makeChunkClientKey(client, chunk.ID)
		if err := tx.Set(clientKey, []byte(chunk.ID)); err != nil {
			return err
		}
	}
	return nil
}

// deleteChunkIndexes removes date and client index entries for a chunk.
func deleteChunkIndexes(tx *badger.Txn, chunk *core.Chunk) error {
	if date, ok := meetingDate(chunk); ok {
		if err := tx.Delete(makeChunkDateKey(date, chunk.ID)); err != nil {
			return err
		}
	}
	if client := chunk.Meta(core.MetaClientName); client != "" {
		if err := tx.Delete(makeChunkClientKey(client, chunk.ID)); err != nil {
			return err
		}
	}
	return nil
}

// meetingDate parses the chunk's meeting_date metadata.
func meetingDate(chunk *core.Chunk) (time.Time, bool) {
	raw := chunk.Meta(core.MetaMeetingDate)
	if raw == "" {
		return time.Time{}, false
	}
	date, err := time.Parse(core.MeetingDateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// matchesFilter reports whether a chunk satisfies every filter condition.
func matchesFilter(chunk *core.Chunk, filter storage.Filter) bool {
	for k, v := range filter.Equals {
		if chunk.Meta(k) != v {
			return false
		}
	}
	if len(filter.Terms) > 0 {
		text := strings.ToLower(chunk.Text)
		for _, term := range filter.Terms {
			if !strings.Contains(text, strings.ToLower(term)) {
				return false
			}
		}
	}
	if !filter.DateFrom.IsZero() || !filter.DateTo.IsZero() {
		date, ok := meetingDate(chunk)
		if !ok {
			return false
		}
		if !filter.DateFrom.IsZero() && date.Before(filter.DateFrom) {
			return false
		}
		if !filter.DateTo.IsZero() && !date.Before(filter.DateTo) {
			return false
		}
	}
	return true
}
