package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
)

func richChunk(id, client, speaker, phase, date string) *core.ChunkMatch {
	return &core.ChunkMatch{
		Chunk: &core.Chunk{
			ID:   id,
			Text: "Durante a explicação do processo de faturamento, o consultor detalhou os problemas encontrados na integração do armazém e as correções aplicadas no ambiente produtivo.",
			Metadata: map[string]string{
				core.MetaClientName:     client,
				core.MetaVideoName:      "KT EWM " + client,
				core.MetaSpeaker:        speaker,
				core.MetaMeetingPhase:   phase,
				core.MetaMeetingDate:    date,
				core.MetaSearchableTags: "ewm, faturamento, integração",
				core.MetaImpactLevel:    "HIGH",
			},
		},
		Score: 0.8,
	}
}

func fillerChunk(id string) *core.ChunkMatch {
	return &core.ChunkMatch{
		Chunk: &core.Chunk{ID: id, Text: "Beleza?"},
		Score: 0.3,
	}
}

func TestSelect_EmptyCandidates(t *testing.T) {
	s := NewSelector()
	result := s.Select(context.Background(), nil, core.QueryTypeSemantic, 5, nil)

	assert.Empty(t, result.SelectedChunks)
	assert.Zero(t, result.TotalCandidates)
	assert.Equal(t, StrategyNoCandidates, result.SelectionStrategy)
	assert.False(t, result.QualityThresholdMet)
}

func TestSelect_NeverExceedsDesiredOrCandidates(t *testing.T) {
	s := NewSelector()
	candidates := []*core.ChunkMatch{
		richChunk("dexco_segments_0", "Dexco", "Sebas", "explicação_processo", "2024-09-10"),
		richChunk("dexco_segments_1", "Dexco", "Thiago", "discussão_técnica", "2024-09-10"),
		richChunk("vissimo_segments_0", "Víssimo", "Bernard", "q&a", "2024-08-01"),
	}

	t.Run("desired below candidates", func(t *testing.T) {
		result := s.Select(context.Background(), candidates, core.QueryTypeSemantic, 2, nil)
		assert.Len(t, result.SelectedChunks, 2)
		assert.Equal(t, 3, result.TotalCandidates)
	})

	t.Run("desired above candidates", func(t *testing.T) {
		result := s.Select(context.Background(), candidates, core.QueryTypeSemantic, 10, nil)
		assert.Len(t, result.SelectedChunks, 3)
	})
}

func TestSelect_QualityOrdersSelection(t *testing.T) {
	s := NewSelector()
	candidates := []*core.ChunkMatch{
		fillerChunk("dexco_segments_5"),
		richChunk("dexco_segments_0", "Dexco", "Sebas", "explicação_processo", "2024-09-10"),
	}

	result := s.Select(context.Background(), candidates, core.QueryTypeEntity, 1, nil)
	require.Len(t, result.SelectedChunks, 1)
	assert.Equal(t, "dexco_segments_0", result.SelectedChunks[0].Chunk.ID)
	assert.Equal(t, StrategyEntity, result.SelectionStrategy)
	assert.True(t, result.QualityThresholdMet)
}

func TestSelect_AllBelowThresholdKeepsBest(t *testing.T) {
	s := NewSelector()
	candidates := []*core.ChunkMatch{
		fillerChunk("dexco_segments_5"),
		fillerChunk("dexco_segments_6"),
		fillerChunk("dexco_segments_7"),
	}

	result := s.Select(context.Background(), candidates, core.QueryTypeContent, 3, nil)
	assert.Len(t, result.SelectedChunks, 1)
	assert.Equal(t, 3, result.TotalCandidates)
	assert.False(t, result.QualityThresholdMet)
}

func TestSelect_DiversitySpreadsAcrossSpeakers(t *testing.T) {
	s := NewSelector()
	// Two chunks from the same segment and speaker, one from another voice.
	same1 := richChunk("dexco_segments_1", "Dexco", "Sebas", "discussão_técnica", "2024-09-10")
	same2 := richChunk("dexco_segments_1", "Dexco", "Sebas", "discussão_técnica", "2024-09-10")
	same2.Chunk.ID = "dexco2_segments_1"
	other := richChunk("dexco_segments_2", "Dexco", "Thiago", "q&a", "2024-09-10")
	other.Chunk.Text = "O time revisou as pendências do go-live, priorizando os ajustes de estoque e as validações fiscais pendentes para a próxima semana."

	result := s.Select(context.Background(), []*core.ChunkMatch{same1, same2, other}, core.QueryTypeContent, 2, nil)
	require.Len(t, result.SelectedChunks, 2)

	speakers := map[string]bool{}
	for _, match := range result.SelectedChunks {
		speakers[match.Chunk.Meta(core.MetaSpeaker)] = true
	}
	assert.Len(t, speakers, 2, "second pick should come from a different speaker")
}

func TestQualityScore_ClientMatchBonus(t *testing.T) {
	match := &core.ChunkMatch{
		Chunk: &core.Chunk{
			ID:   "dexco_segments_0",
			Text: "O consultor revisou os problemas de integração levantados pelo time e listou as correções pendentes para o próximo ciclo de testes.",
			Metadata: map[string]string{
				core.MetaClientName: "Dexco",
			},
		},
	}

	withClient := buildQueryInput(&core.EnrichmentResult{
		CleanedQuery: "problemas no kt da dexco",
		Entities:     map[string][]string{core.EntityClients: {"DEXCO"}},
	})
	withoutClient := buildQueryInput(&core.EnrichmentResult{
		CleanedQuery: "problemas no kt",
	})

	assert.InDelta(t, bonusClientMatch, qualityScore(match, withClient)-qualityScore(match, withoutClient), 0.0001)
}

func TestSelect_TemporalOrdersByDateDescending(t *testing.T) {
	s := NewSelector()
	older := richChunk("dexco_segments_0", "Dexco", "Sebas", "explicação_processo", "2024-07-01")
	newer := richChunk("dexco_segments_1", "Dexco", "Thiago", "discussão_técnica", "2024-09-10")
	newer.Chunk.Text = "Na reunião mais recente o time validou o plano de cutover e confirmou as datas da migração de dados para o novo ambiente."

	result := s.Select(context.Background(), []*core.ChunkMatch{older, newer}, core.QueryTypeTemporal, 2, nil)
	require.Len(t, result.SelectedChunks, 2)
	assert.Equal(t, "2024-09-10", result.SelectedChunks[0].Chunk.Meta(core.MetaMeetingDate))
	assert.Equal(t, "2024-07-01", result.SelectedChunks[1].Chunk.Meta(core.MetaMeetingDate))
	assert.Equal(t, result.SelectedChunks[0].Chunk.ID, result.ChunkScores[0].ChunkID, "scores move with their chunks")
}

func TestAdaptiveCount(t *testing.T) {
	available := 1000

	t.Run("zero available", func(t *testing.T) {
		assert.Zero(t, AdaptiveCount(core.QueryTypeSemantic, nil, 0))
	})

	t.Run("semantic base", func(t *testing.T) {
		assert.Equal(t, 8, AdaptiveCount(core.QueryTypeSemantic, &core.EnrichmentResult{
			Context: core.QueryContext{Complexity: 0.4},
		}, available))
	})

	t.Run("semantic with client widens", func(t *testing.T) {
		assert.Equal(t, 12, AdaptiveCount(core.QueryTypeSemantic, &core.EnrichmentResult{
			Context: core.QueryContext{HasSpecificClient: true, Complexity: 0.4},
		}, available))
	})

	t.Run("technical narrows", func(t *testing.T) {
		assert.Equal(t, 6, AdaptiveCount(core.QueryTypeSemantic, &core.EnrichmentResult{
			Context: core.QueryContext{TechnicalTerms: []string{"EWM"}, Complexity: 0.4},
		}, available))
	})

	t.Run("metadata global listing", func(t *testing.T) {
		assert.Equal(t, 500, AdaptiveCount(core.QueryTypeMetadata, &core.EnrichmentResult{
			Context: core.QueryContext{IsBroadRequest: true},
		}, available))
	})

	t.Run("metadata client listing", func(t *testing.T) {
		assert.Equal(t, 100, AdaptiveCount(core.QueryTypeMetadata, &core.EnrichmentResult{
			Context: core.QueryContext{HasSpecificClient: true},
		}, available))
	})

	t.Run("complexity scales up", func(t *testing.T) {
		count := AdaptiveCount(core.QueryTypeEntity, &core.EnrichmentResult{
			Context: core.QueryContext{Complexity: 0.7},
		}, available)
		assert.Equal(t, 12, count) // 10 × 1.2
	})

	t.Run("clamped to available", func(t *testing.T) {
		assert.Equal(t, 3, AdaptiveCount(core.QueryTypeMetadata, &core.EnrichmentResult{
			Context: core.QueryContext{IsBroadRequest: true},
		}, 3))
	})
}
