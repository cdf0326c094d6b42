package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

// seedMeetingChunks adds a small corpus spanning two clients and three dates.
func seedMeetingChunks(t *testing.T, repo storage.ChunkRepository) {
	t.Helper()
	chunks := []*core.Chunk{
		{
			ID:   "kt_ewm_dexco_segments_0001",
			Text: "Discussão sobre a configuração do módulo EWM para o armazém central",
			Metadata: map[string]string{
				core.MetaClientName:  "DEXCO",
				core.MetaMeetingDate: "2024-01-10",
				core.MetaSpeaker:     "Rafael",
			},
		},
		{
			ID:   "kt_ewm_dexco_segments_0002",
			Text: "Decisão sobre integração entre SAP EWM e o sistema de transporte",
			Metadata: map[string]string{
				core.MetaClientName:  "DEXCO",
				core.MetaMeetingDate: "2024-03-20",
				core.MetaSpeaker:     "Mariana",
			},
		},
		{
			ID:   "kt_sd_arco_segments_0001",
			Text: "Revisão dos pedidos de venda pendentes no módulo SD",
			Metadata: map[string]string{
				core.MetaClientName:  "ARCO",
				core.MetaMeetingDate: "2024-02-15",
				core.MetaSpeaker:     "Rafael",
			},
		},
		{
			ID:   "kt_geral_segments_0001",
			Text: "Apresentação geral do time e dos objetivos do projeto",
			Metadata: map[string]string{
				core.MetaSpeaker: "Mariana",
			},
		},
	}
	_, err := repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
}

func TestAddChunks_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	chunk := &core.Chunk{
		ID:     "kt_ewm_dexco_segments_0001",
		Text:   "Configuração do monitor de estoque no EWM",
		Vector: []float32{0.1, 0.2, 0.3},
		Metadata: map[string]string{
			core.MetaClientName:  "DEXCO",
			core.MetaMeetingDate: "2024-01-10",
		},
	}

	added, err := repo.AddChunks(ctx, chunk)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.False(t, added[0].InsertedAt.IsZero())
	assert.Equal(t, added[0].InsertedAt, added[0].UpdatedAt)

	fetched, err := repo.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)

	assert.Equal(t, chunk.ID, fetched.ID)
	assert.Equal(t, chunk.Text, fetched.Text)
	assert.Equal(t, chunk.Vector, fetched.Vector)
	assert.Equal(t, "DEXCO", fetched.Meta(core.MetaClientName))
	assert.WithinDuration(t, added[0].InsertedAt, fetched.InsertedAt, time.Second)
}

func TestAddChunks_InvalidChunk(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("nil chunk", func(t *testing.T) {
		_, err := repo.AddChunks(ctx, nil)
		assert.ErrorIs(t, err, core.ErrInvalidChunk)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := repo.AddChunks(ctx, &core.Chunk{Text: "sem identificador"})
		assert.ErrorIs(t, err, core.ErrInvalidChunk)
	})

	t.Run("missing text", func(t *testing.T) {
		_, err := repo.AddChunks(ctx, &core.Chunk{ID: "kt_segments_0001"})
		assert.ErrorIs(t, err, core.ErrInvalidChunk)
	})
}

func TestAddChunks_SanitizesMetadata(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	chunk := &core.Chunk{
		ID:   "kt_segments_0001",
		Text: "Conteúdo com metadados sujos",
		Metadata: map[string]string{
			core.MetaClientName: "DEXCO",
			"empty_value":       "",
			"blank_value":       "   ",
		},
	}

	_, err := repo.AddChunks(ctx, chunk)
	require.NoError(t, err)

	fetched, err := repo.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)

	assert.Equal(t, "DEXCO", fetched.Meta(core.MetaClientName))
	assert.NotContains(t, fetched.Metadata, "empty_value")
	assert.NotContains(t, fetched.Metadata, "blank_value")
}

func TestGetChunk_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	chunk, err := repo.GetChunk(context.Background(), "does_not_exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Nil(t, chunk)
}

func TestGetChunks_SkipsMissing(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	chunks, err := repo.GetChunks(ctx,
		"kt_ewm_dexco_segments_0001",
		"does_not_exist",
		"kt_sd_arco_segments_0001",
	)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "kt_ewm_dexco_segments_0001", chunks[0].ID)
	assert.Equal(t, "kt_sd_arco_segments_0001", chunks[1].ID)
}

func TestUpdateChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	original, err := repo.GetChunk(ctx, "kt_ewm_dexco_segments_0001")
	require.NoError(t, err)

	updated := &core.Chunk{
		ID:   original.ID,
		Text: "Texto revisado após nova transcrição",
		Metadata: map[string]string{
			core.MetaClientName:  "DEXCO",
			core.MetaMeetingDate: "2024-01-10",
		},
	}

	_, err = repo.UpdateChunks(ctx, updated)
	require.NoError(t, err)

	fetched, err := repo.GetChunk(ctx, original.ID)
	require.NoError(t, err)

	assert.Equal(t, "Texto revisado após nova transcrição", fetched.Text)
	// InsertedAt survives updates; UpdatedAt moves forward.
	assert.True(t, fetched.InsertedAt.Equal(original.InsertedAt))
	assert.False(t, fetched.UpdatedAt.Before(fetched.InsertedAt))
}

func TestUpdateChunks_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.UpdateChunks(context.Background(), &core.Chunk{
		ID:   "does_not_exist",
		Text: "não existe",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateChunks_RefreshesClientIndex(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	// Move one Dexco chunk to a different client.
	updated := &core.Chunk{
		ID:   "kt_ewm_dexco_segments_0001",
		Text: "Discussão sobre a configuração do módulo EWM para o armazém central",
		Metadata: map[string]string{
			core.MetaClientName:  "ARCO",
			core.MetaMeetingDate: "2024-01-10",
		},
	}
	_, err := repo.UpdateChunks(ctx, updated)
	require.NoError(t, err)

	dexco, err := repo.Query(ctx, storage.Filter{
		Equals: map[string]string{core.MetaClientName: "DEXCO"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, dexco, 1)
	assert.Equal(t, "kt_ewm_dexco_segments_0002", dexco[0].ID)

	arco, err := repo.Query(ctx, storage.Filter{
		Equals: map[string]string{core.MetaClientName: "ARCO"},
	}, 0)
	require.NoError(t, err)
	assert.Len(t, arco, 2)
}

func TestDeleteChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	err := repo.DeleteChunks(ctx, "kt_ewm_dexco_segments_0001")
	require.NoError(t, err)

	_, err = repo.GetChunk(ctx, "kt_ewm_dexco_segments_0001")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Client index entry must be gone as well.
	dexco, err := repo.Query(ctx, storage.Filter{
		Equals: map[string]string{core.MetaClientName: "DEXCO"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, dexco, 1)
	assert.Equal(t, "kt_ewm_dexco_segments_0002", dexco[0].ID)
}

func TestDeleteChunks_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.DeleteChunks(context.Background(), "does_not_exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuery_ByClient(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	results, err := repo.Query(ctx, storage.Filter{
		Equals: map[string]string{core.MetaClientName: "DEXCO"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, chunk := range results {
		assert.Equal(t, "DEXCO", chunk.Meta(core.MetaClientName))
	}
	// Most recent meeting first.
	assert.Equal(t, "kt_ewm_dexco_segments_0002", results[0].ID)
	assert.Equal(t, "kt_ewm_dexco_segments_0001", results[1].ID)
}

func TestQuery_ByClientWithTerms(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	results, err := repo.Query(ctx, storage.Filter{
		Equals: map[string]string{core.MetaClientName: "DEXCO"},
		Terms:  []string{"integração", "transporte"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kt_ewm_dexco_segments_0002", results[0].ID)
}

func TestQuery_Terms(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	t.Run("case insensitive match", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			Terms: []string{"MÓDULO"},
		}, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("all terms must match", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			Terms: []string{"módulo", "inexistente"},
		}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestQuery_DateRange(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	t.Run("from is inclusive", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			DateFrom: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "kt_ewm_dexco_segments_0002", results[0].ID)
		assert.Equal(t, "kt_sd_arco_segments_0001", results[1].ID)
	})

	t.Run("to is exclusive", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			DateTo: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "kt_sd_arco_segments_0001", results[0].ID)
		assert.Equal(t, "kt_ewm_dexco_segments_0001", results[1].ID)
	})

	t.Run("bounded range", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			DateFrom: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)
	})

	t.Run("undated chunks never match date filters", func(t *testing.T) {
		results, err := repo.Query(ctx, storage.Filter{
			DateFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		}, 0)
		require.NoError(t, err)
		for _, chunk := range results {
			assert.NotEqual(t, "kt_geral_segments_0001", chunk.ID)
		}
	})
}

func TestQuery_Ordering(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	results, err := repo.Query(ctx, storage.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// Newest meeting first, undated chunks last.
	assert.Equal(t, "kt_ewm_dexco_segments_0002", results[0].ID)
	assert.Equal(t, "kt_sd_arco_segments_0001", results[1].ID)
	assert.Equal(t, "kt_ewm_dexco_segments_0001", results[2].ID)
	assert.Equal(t, "kt_geral_segments_0001", results[3].ID)
}

func TestQuery_Limit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	results, err := repo.Query(ctx, storage.Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kt_ewm_dexco_segments_0002", results[0].ID)
	assert.Equal(t, "kt_sd_arco_segments_0001", results[1].ID)
}

func TestListDistinct(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	clients, err := repo.ListDistinct(ctx, core.MetaClientName)
	require.NoError(t, err)
	assert.Equal(t, []string{"ARCO", "DEXCO"}, clients)

	speakers, err := repo.ListDistinct(ctx, core.MetaSpeaker)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mariana", "Rafael"}, speakers)
}

func TestCountBy(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	counts, err := repo.CountBy(ctx, core.MetaClientName)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DEXCO": 2, "ARCO": 1}, counts)
}

func TestCountChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Seeded chunks carry client and date metadata, so index keys exist
	// alongside the primary records and must not inflate the count.
	seedMeetingChunks(t, repo)

	count, err = repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestIterateChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedMeetingChunks(t, repo)

	t.Run("visits every chunk", func(t *testing.T) {
		seen := make(map[string]bool)
		err := repo.IterateChunks(ctx, func(chunk *core.Chunk) error {
			seen[chunk.ID] = true
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, 4)
		assert.True(t, seen["kt_geral_segments_0001"])
	})

	t.Run("stops on callback error", func(t *testing.T) {
		stopErr := errors.New("stop iteration")
		visited := 0
		err := repo.IterateChunks(ctx, func(chunk *core.Chunk) error {
			visited++
			return stopErr
		})
		assert.ErrorIs(t, err, stopErr)
		assert.Equal(t, 1, visited)
	})
}
