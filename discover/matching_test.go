package discover

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
)

func TestVariations(t *testing.T) {
	t.Run("accented name", func(t *testing.T) {
		variations := Variations("Víssimo")
		assert.Contains(t, variations, "VÍSSIMO")
		assert.Contains(t, variations, "VISSIMO")
		assert.Contains(t, variations, "vissimo")
		assert.Contains(t, variations, "Víssimo")
	})

	t.Run("multi word name", func(t *testing.T) {
		variations := Variations("Gran Cru")
		assert.Contains(t, variations, "GRAN CRU")
		assert.Contains(t, variations, "gran cru")
		assert.Contains(t, variations, "GranCru")
	})

	t.Run("sorted and deduplicated", func(t *testing.T) {
		variations := Variations("Dexco")
		require.NotEmpty(t, variations)
		for i := 1; i < len(variations); i++ {
			assert.Less(t, variations[i-1], variations[i])
		}
	})

	t.Run("empty and placeholder", func(t *testing.T) {
		assert.Nil(t, Variations(""))
		assert.Nil(t, Variations("UNKNOWN"))
		assert.Nil(t, Variations("unknown"))
	})
}

func TestFindMatches(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	seedChunk(t, repo, "vissimo_segments_0", "Víssimo", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	t.Run("exact name", func(t *testing.T) {
		matches, err := d.FindMatches(context.Background(), "dexco")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "DEXCO", matches[0].Name)
		assert.InDelta(t, 1.0, matches[0].Score, 0.001)
	})

	t.Run("normalized match", func(t *testing.T) {
		matches, err := d.FindMatches(context.Background(), "vissimo")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "VISSIMO", matches[0].Name)
		assert.InDelta(t, 0.95, matches[0].Score, 0.001)
	})

	t.Run("fuzzy prefix", func(t *testing.T) {
		matches, err := d.FindMatches(context.Background(), "dex")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "DEXCO", matches[0].Name)
		assert.InDelta(t, 0.48, matches[0].Score, 0.001, "3 of 5 runes at direct-substring weight")
	})

	t.Run("no match", func(t *testing.T) {
		matches, err := d.FindMatches(context.Background(), "petrobras")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func matchFor(id, client string, score float32) *core.ChunkMatch {
	return &core.ChunkMatch{
		Chunk: &core.Chunk{
			ID:       id,
			Text:     "trecho de reunião",
			Metadata: map[string]string{core.MetaClientName: client},
		},
		Score: score,
	}
}

func TestEnrichMatches(t *testing.T) {
	repo := newTestRepo(t)
	seedChunk(t, repo, "dexco_segments_0", "Dexco", nil)
	seedChunk(t, repo, "vissimo_segments_0", "Víssimo", nil)
	d := NewDiscovery(repo, WithMinChunks(1))

	matches := []*core.ChunkMatch{
		matchFor("dexco_segments_0", "Dexco", 0.5),
		matchFor("vissimo_segments_0", "Víssimo", 0.5),
		matchFor("dexco_segments_1", "Dexco", 0.95),
	}

	enriched := d.EnrichMatches(context.Background(), matches, []string{"DEXCO"})

	require.Len(t, enriched, 3)
	assert.InDelta(t, 0.6, enriched[0].Score, 0.001, "query client gets the boost")
	assert.InDelta(t, 0.5, enriched[1].Score, 0.001, "other clients untouched")
	assert.InDelta(t, 1.0, enriched[2].Score, 0.001, "boost caps at 1")
}

func TestEnrichMatches_NoQueryClients(t *testing.T) {
	d := NewDiscovery(newTestRepo(t))
	matches := []*core.ChunkMatch{matchFor("dexco_segments_0", "Dexco", 0.5)}

	enriched := d.EnrichMatches(context.Background(), matches, nil)
	assert.InDelta(t, 0.5, enriched[0].Score, 0.001)
}

func TestFilterByEntity(t *testing.T) {
	discovered := map[string]*core.EntityInfo{
		"DEXCO": {
			Name: "Dexco", Normalized: "DEXCO", Variations: Variations("Dexco"),
		},
		"VISSIMO": {
			Name: "Víssimo", Normalized: "VISSIMO", Variations: Variations("Víssimo"),
		},
	}

	mixed := []*core.ChunkMatch{
		matchFor("dexco_segments_0", "Dexco", 0.8),
		matchFor("vissimo_segments_0", "Víssimo", 0.7),
		matchFor("dexco_segments_1", "DEXCO", 0.6),
	}

	t.Run("narrows to the named entity", func(t *testing.T) {
		filtered := FilterByEntity(mixed, discovered, "quais problemas da dexco?")
		require.Len(t, filtered, 2)
		assert.Equal(t, "dexco_segments_0", filtered[0].Chunk.ID)
		assert.Equal(t, "dexco_segments_1", filtered[1].Chunk.ID)
	})

	t.Run("accented mention matches", func(t *testing.T) {
		filtered := FilterByEntity(mixed, discovered, "reuniões da víssimo")
		require.Len(t, filtered, 1)
		assert.Equal(t, "vissimo_segments_0", filtered[0].Chunk.ID)
	})

	t.Run("query names no entity", func(t *testing.T) {
		filtered := FilterByEntity(mixed, discovered, "problemas gerais de faturamento")
		assert.Len(t, filtered, 3)
	})

	t.Run("single entity passes through", func(t *testing.T) {
		single := []*core.ChunkMatch{
			matchFor("dexco_segments_0", "Dexco", 0.8),
			matchFor("dexco_segments_1", "Dexco", 0.6),
		}
		filtered := FilterByEntity(single, discovered, "quais problemas da víssimo?")
		assert.Len(t, filtered, 2)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, FilterByEntity(nil, discovered, "dexco"))
		assert.Len(t, FilterByEntity(mixed, nil, "dexco"), 3)
	})
}
