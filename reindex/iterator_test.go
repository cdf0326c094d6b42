package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
	badgerstore "github.com/poiesic/ktsearch/storage/badger"
)

func setupIteratorRepo(t *testing.T, count int) storage.ChunkRepository {
	t.Helper()

	repo, backend, err := badgerstore.NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	chunks := make([]*core.Chunk, count)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			ID:   fmt.Sprintf("kt-ewm-dexco_segments_%02d", i),
			Text: fmt.Sprintf("segmento %d da reunião de transferência", i),
		}
	}
	_, err = repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)

	return repo
}

func TestChunkIterator_Batches(t *testing.T) {
	repo := setupIteratorRepo(t, 10)
	it := NewChunkIterator(repo, 4)

	var sizes []int
	seen := 0
	err := it.ForEach(context.Background(), "", func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		seen += len(batch)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, seen)
	assert.Equal(t, []int{4, 4, 2}, sizes)
}

func TestChunkIterator_Empty(t *testing.T) {
	repo := setupIteratorRepo(t, 0)
	it := NewChunkIterator(repo, 4)

	called := false
	err := it.ForEach(context.Background(), "", func(batch []*core.Chunk) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "fn should not be called for an empty store")
}

func TestChunkIterator_ResumeAfterID(t *testing.T) {
	repo := setupIteratorRepo(t, 10)
	it := NewChunkIterator(repo, 4)

	var ids []string
	err := it.ForEach(context.Background(), "kt-ewm-dexco_segments_05", func(batch []*core.Chunk) error {
		for _, chunk := range batch {
			ids = append(ids, chunk.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"kt-ewm-dexco_segments_06",
		"kt-ewm-dexco_segments_07",
		"kt-ewm-dexco_segments_08",
		"kt-ewm-dexco_segments_09",
	}, ids)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	repo := setupIteratorRepo(t, 10)
	it := NewChunkIterator(repo, 3)

	boom := errors.New("boom")
	calls := 0
	err := it.ForEach(context.Background(), "", func(batch []*core.Chunk) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_ContextCanceled(t *testing.T) {
	repo := setupIteratorRepo(t, 10)
	it := NewChunkIterator(repo, 2)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := it.ForEach(ctx, "", func(batch []*core.Chunk) error {
		calls++
		cancel()
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
