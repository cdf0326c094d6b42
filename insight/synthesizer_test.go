package insight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/ai"
	"github.com/poiesic/ktsearch/ai/mock"
	"github.com/poiesic/ktsearch/core"
)

func ktMatch(id, video, client, speaker, text string) *core.ChunkMatch {
	return &core.ChunkMatch{
		Chunk: &core.Chunk{
			ID:   id,
			Text: text,
			Metadata: map[string]string{
				core.MetaVideoName:      video,
				core.MetaClientName:     client,
				core.MetaSpeaker:        speaker,
				core.MetaMeetingDate:    "2024-09-10",
				core.MetaOriginalURL:    "https://meet.example/" + id,
				core.MetaTimestampStart: "12:30",
				core.MetaTimestampEnd:   "14:05",
			},
		},
		Score: 0.8,
	}
}

func dexcoContexts() []*core.ChunkMatch {
	return []*core.ChunkMatch{
		ktMatch("dexco_segments_0", "KT EWM Dexco", "Dexco", "Sebas",
			"Os problemas de faturamento do armazém foram causados pela configuração incompleta da ZEWM0001 e corrigidos no ciclo seguinte."),
		ktMatch("dexco_segments_1", "KT EWM Dexco", "Dexco", "Thiago",
			"A equipe decidiu replicar a correção no ambiente de qualidade antes do go-live, com validação do time funcional."),
	}
}

func classification(queryType core.QueryType) *core.ClassificationResult {
	return &core.ClassificationResult{QueryType: queryType, Confidence: 0.8}
}

func TestSynthesize_EmptyContexts(t *testing.T) {
	completer := mock.NewMockCompleter()
	s := NewSynthesizer(completer)

	result := s.Synthesize(context.Background(), nil, "quais problemas foram encontrados?", classification(core.QueryTypeSemantic))

	require.NotNil(t, result)
	assert.True(t, result.FallbackUsed)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, noResultsAnswer, result.Insight)
	assert.Empty(t, result.SourcesUsed)
	assert.Zero(t, completer.CallCount(), "no-results path must not call the model")
}

func TestSynthesize_ListingFastTrackSkipsModel(t *testing.T) {
	completer := mock.NewMockCompleter()
	s := NewSynthesizer(completer)

	contexts := append(dexcoContexts(),
		ktMatch("vissimo_segments_0", "KT SD Víssimo", "Víssimo", "Bernard", "Visão geral do processo de vendas."))
	result := s.Synthesize(context.Background(), contexts, "listar reuniões", classification(core.QueryTypeMetadata))

	assert.Zero(t, completer.CallCount(), "listing queries are answered from metadata")
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, confidenceListingGlobal, result.Confidence)
	assert.Contains(t, result.Insight, "KT EWM Dexco")
	assert.Contains(t, result.Insight, "KT SD Víssimo")
	assert.Contains(t, result.Insight, "**Resumo:** 2 KTs de 2 cliente(s)")
	assert.Contains(t, result.Insight, "https://meet.example/dexco_segments_0")
}

func TestSynthesize_ListingSingleClientScopedConfidence(t *testing.T) {
	s := NewSynthesizer(mock.NewMockCompleter())

	result := s.Synthesize(context.Background(), dexcoContexts(), "quais kts temos da dexco?", classification(core.QueryTypeMetadata))
	assert.Equal(t, confidenceListingScoped, result.Confidence)
}

func TestSynthesize_ModelAnswer(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error) {
		options := ai.ApplyCompleteOptions(opts...)
		assert.Zero(t, options.Temperature, "synthesis runs at temperature zero")
		assert.Positive(t, options.MaxTokens)
		assert.Contains(t, prompt, "quais problemas foram encontrados no kt de ewm da dexco?")
		assert.Contains(t, prompt, "ZEWM0001", "selected chunk text reaches the prompt")
		return "Os problemas encontrados no KT de EWM da Dexco foram causados pela configuração incompleta da transação ZEWM0001, corrigida no ciclo seguinte.", nil
	}
	s := NewSynthesizer(completer)

	result := s.Synthesize(context.Background(), dexcoContexts(), "quais problemas foram encontrados no kt de ewm da dexco?", classification(core.QueryTypeEntity))

	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, completer.CallCount())
	assert.Equal(t, []string{"dexco_segments_0", "dexco_segments_1"}, result.SourcesUsed)
	assert.Greater(t, result.Confidence, 0.6)
	assert.Contains(t, result.Insight, "ZEWM0001")
}

func TestSynthesize_ModelFailureFallsBack(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error) {
		return "", errors.New("model endpoint unreachable")
	}
	s := NewSynthesizer(completer, WithAttempts(2))

	result := s.Synthesize(context.Background(), dexcoContexts(), "quais problemas foram encontrados?", classification(core.QueryTypeSemantic))

	assert.Equal(t, 2, completer.CallCount(), "bounded retries before degrading")
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, confidenceFallbackFew, result.Confidence)
	assert.Contains(t, result.Insight, "**Insights baseados em 2 resultado(s)")
	assert.Contains(t, result.Insight, "Sebas (12:30-14:05)")
	assert.Contains(t, result.Insight, "Conclusão:")
	assert.Equal(t, []string{"dexco_segments_0", "dexco_segments_1"}, result.SourcesUsed)
}

func TestSynthesize_SingleContextFallbackConfidence(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, prompt string, opts ...ai.CompleteOption) (string, error) {
		return "", errors.New("down")
	}
	s := NewSynthesizer(completer)

	result := s.Synthesize(context.Background(), dexcoContexts()[:1], "o que foi abordado?", classification(core.QueryTypeSemantic))
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, confidenceFallbackOne, result.Confidence)
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		query  string
		qtype  core.QueryType
		intent string
	}{
		{"listar reuniões", core.QueryTypeMetadata, intentListing},
		{"quais kts disponíveis?", core.QueryTypeMetadata, intentListing},
		{"quem participou do kt de ewm?", core.QueryTypeEntity, intentParticipants},
		{"quais decisões foram tomadas?", core.QueryTypeSemantic, intentDecision},
		{"quais problemas foram encontrados?", core.QueryTypeSemantic, intentProblem},
		{"principais pontos do kt", core.QueryTypeSemantic, intentHighlights},
		{"explique o processo de faturamento", core.QueryTypeSemantic, intentBase},
		{"onde mencionaram a zewm0001?", core.QueryTypeContent, intentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.intent, detectIntent(tt.query, classification(tt.qtype)))
		})
	}
}

func TestFormatInsightText(t *testing.T) {
	raw := "  Primeira linha.  \n\n\n\nSegunda linha.\n"
	assert.Equal(t, "Primeira linha.\n\nSegunda linha.", formatInsightText(raw))
}
