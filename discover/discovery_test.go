package discover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
	badgerstore "github.com/poiesic/ktsearch/storage/badger"
)

func newTestRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := badgerstore.NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return repo
}

func seedChunk(t *testing.T, repo storage.ChunkRepository, id, client string, meta map[string]string) {
	t.Helper()
	metadata := map[string]string{}
	if client != "" {
		metadata[core.MetaClientName] = client
	}
	for k, v := range meta {
		metadata[k] = v
	}
	_, err := repo.AddChunks(context.Background(), &core.Chunk{
		ID:       id,
		Text:     "conteúdo de reunião para " + id,
		Metadata: metadata,
	})
	require.NoError(t, err)
}

func seedDefaultChunks(t *testing.T, repo storage.ChunkRepository) {
	t.Helper()
	seedChunk(t, repo, "dexco_segments_0", "Dexco", map[string]string{
		core.MetaMeetingDate:    "2024-09-10",
		core.MetaMeetingPhase:   "execução",
		core.MetaSearchableTags: "ewm, faturamento",
	})
	seedChunk(t, repo, "dexco_segments_1", "Dexco", map[string]string{
		core.MetaMeetingDate:    "2024-10-01",
		core.MetaSearchableTags: "fi",
	})
	seedChunk(t, repo, "vissimo_segments_0", "Víssimo", map[string]string{
		core.MetaMeetingDate: "2024-08-15",
	})
	seedChunk(t, repo, "unknown_segments_0", "UNKNOWN", nil)
	seedChunk(t, repo, "teste_segments_0", "TESTE_INTERNO", nil)
	seedChunk(t, repo, "orphan_segments_0", "", nil)
}

func TestDiscover_BuildsEntitySet(t *testing.T) {
	repo := newTestRepo(t)
	seedDefaultChunks(t, repo)
	d := NewDiscovery(repo, WithMinChunks(1))

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 2)

	dexco := discovered["DEXCO"]
	require.NotNil(t, dexco)
	assert.Equal(t, "Dexco", dexco.Name)
	assert.Equal(t, 2, dexco.ChunkCount)
	assert.Equal(t, "2024-10-01", dexco.LatestMeetingDate)
	assert.Equal(t, []string{"EWM", "FI"}, dexco.Modules)
	assert.Equal(t, []string{"execução"}, dexco.Phases)
	assert.Contains(t, dexco.Variations, "dexco")
	assert.False(t, dexco.FirstDiscovered.IsZero())

	vissimo := discovered["VISSIMO"]
	require.NotNil(t, vissimo)
	assert.Equal(t, "Víssimo", vissimo.Name)
	assert.Equal(t, 1, vissimo.ChunkCount)
	assert.Contains(t, vissimo.Variations, "VÍSSIMO")
	assert.Contains(t, vissimo.Variations, "vissimo")
}

func TestDiscover_MinChunkThreshold(t *testing.T) {
	repo := newTestRepo(t)
	seedDefaultChunks(t, repo)
	d := NewDiscovery(repo, WithMinChunks(2))

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Contains(t, discovered, "DEXCO")
}

func TestDiscover_EmptyStore(t *testing.T) {
	d := NewDiscovery(newTestRepo(t))

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discovered)
}

func TestDiscover_CachesUntilInvalidated(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)

	seedChunk(t, repo, "arco_segments_0", "Arco", nil)

	discovered, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, discovered, 1, "fresh cache serves the previous set")

	d.Invalidate()

	discovered, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, discovered, 2)
}

func TestDiscover_ForceRefresh(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	_, err := d.Discover(context.Background())
	require.NoError(t, err)

	seedChunk(t, repo, "arco_segments_0", "Arco", nil)

	discovered, err := d.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, discovered, 2)
}

func TestDiscover_TTLExpiry(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	_, err := d.Discover(context.Background())
	require.NoError(t, err)

	seedChunk(t, repo, "arco_segments_0", "Arco", nil)

	d.mu.Lock()
	d.cachedAt = time.Now().Add(-2 * time.Hour)
	d.mu.Unlock()

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, discovered, 2, "expired cache refreshes from the store")
}

func TestDiscover_PreservesFirstDiscovered(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	first, err := d.Discover(context.Background())
	require.NoError(t, err)
	originalTime := first["DEXCO"].FirstDiscovered

	refreshed, err := d.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, originalTime, refreshed["DEXCO"].FirstDiscovered)
	assert.True(t, refreshed["DEXCO"].LastUpdated.After(originalTime) ||
		refreshed["DEXCO"].LastUpdated.Equal(originalTime))
}

type flakyRepo struct {
	storage.ChunkRepository
	fail bool
}

func (f *flakyRepo) CountBy(ctx context.Context, metaKey string) (map[string]int, error) {
	if f.fail {
		return nil, errors.New("store down")
	}
	return f.ChunkRepository.CountBy(ctx, metaKey)
}

func TestDiscover_StaleCacheOnStoreError(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	flaky := &flakyRepo{ChunkRepository: repo}
	d := NewDiscovery(flaky, WithMinChunks(1))

	discovered, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)

	flaky.fail = true
	d.Invalidate()

	discovered, err = d.Discover(context.Background())
	require.NoError(t, err, "stale cache absorbs the store failure")
	assert.Len(t, discovered, 1)
}

func TestDiscover_ErrorWithoutCache(t *testing.T) {
	flaky := &flakyRepo{ChunkRepository: newTestRepo(t), fail: true}
	d := NewDiscovery(flaky, WithMinChunks(1))

	_, err := d.Discover(context.Background())
	assert.Error(t, err)
}

func TestKnownEntities(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "vissimo_segments_0", "Víssimo", nil)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	names, err := d.KnownEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DEXCO", "VISSIMO"}, names)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	stats := d.Stats()
	assert.Zero(t, stats.Size)
	assert.False(t, stats.Valid)

	_, err := d.Discover(context.Background())
	require.NoError(t, err)

	stats = d.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.True(t, stats.Valid)
	assert.Equal(t, []string{"DEXCO"}, stats.Entities)

	d.Invalidate()
	stats = d.Stats()
	assert.False(t, stats.Valid)
	assert.Equal(t, 1, stats.Size, "stale data stays available")
}
