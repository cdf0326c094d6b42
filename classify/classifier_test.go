package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/enrich"
)

// classifyQuery runs the real enricher and classifier in sequence, the same
// wiring the pipeline uses.
func classifyQuery(t *testing.T, query string) *core.ClassificationResult {
	t.Helper()
	enrichment := enrich.NewEnricher().Enrich(context.Background(), query)
	result := NewClassifier().Classify(context.Background(), enrichment.CleanedQuery, enrichment)
	require.NotNil(t, result)
	return result
}

func TestClassify_MetadataListing(t *testing.T) {
	result := classifyQuery(t, "Quais KTs temos da Dexco?")

	assert.Equal(t, core.QueryTypeMetadata, result.QueryType)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Contains(t, result.FallbackTypes, core.QueryTypeSemantic)

	assert.False(t, result.Strategy.UseEmbedding)
	assert.Equal(t, AggregationDistinct, result.Strategy.Aggregation)
	assert.Equal(t, core.MetaClientName+" ASC", result.Strategy.SortBy)
	assert.InDelta(t, 2.0, result.Strategy.TopKModifier, 0.001)
}

func TestClassify_ContentLiteral(t *testing.T) {
	result := classifyQuery(t, "Onde mencionaram a transação F110?")

	assert.Equal(t, core.QueryTypeContent, result.QueryType)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Equal(t, []core.QueryType{core.QueryTypeSemantic}, result.FallbackTypes)

	assert.False(t, result.Strategy.UseEmbedding)
	assert.Equal(t, SearchMethodText, result.Strategy.SearchMethod)
	assert.InDelta(t, 1.5, result.Strategy.TopKModifier, 0.001)
}

func TestClassify_SemanticWithClient(t *testing.T) {
	result := classifyQuery(t, "O que temos de informação sobre a Víssimo?")

	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.GreaterOrEqual(t, result.Confidence, 0.8)
	assert.Equal(t, []core.QueryType{core.QueryTypeMetadata}, result.FallbackTypes)

	assert.True(t, result.Strategy.UseEmbedding)
	assert.InDelta(t, 1.5, result.Strategy.TopKModifier, 0.001, "client scope widens the candidate set")
}

func TestClassify_SemanticTechnicalNarrows(t *testing.T) {
	result := classifyQuery(t, "Como funciona o processo de faturamento com a F110 na Dexco?")

	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.True(t, result.Strategy.UseEmbedding)
	assert.InDelta(t, 0.8, result.Strategy.TopKModifier, 0.001, "technical focus overrides client widening")
}

func TestClassify_EntityParticipants(t *testing.T) {
	result := classifyQuery(t, "Quem participou do KT da Dexco?")

	assert.Equal(t, core.QueryTypeEntity, result.QueryType)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Empty(t, result.FallbackTypes)

	assert.False(t, result.Strategy.UseEmbedding)
	assert.Equal(t, AggregationUniqueMerge, result.Strategy.Aggregation)
	assert.Equal(t, []string{core.MetaSpeaker}, result.Strategy.PrimaryFields)
}

func TestClassify_TemporalRange(t *testing.T) {
	result := classifyQuery(t, "Reuniões dos últimos 30 dias")

	assert.Equal(t, core.QueryTypeTemporal, result.QueryType)
	assert.Equal(t, []core.QueryType{core.QueryTypeMetadata}, result.FallbackTypes)

	assert.False(t, result.Strategy.UseEmbedding)
	assert.Equal(t, core.MetaMeetingDate+" DESC", result.Strategy.SortBy)
	assert.InDelta(t, 0.8, result.Strategy.TopKModifier, 0.001, "recency scope narrows the candidate set")
}

func TestClassify_QuaisSemanticOverride(t *testing.T) {
	// "Quais" alone is a listing, but asking about decisions or problems is
	// an analytical question.
	result := classifyQuery(t, "Quais problemas foram identificados na Dexco?")
	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.Equal(t, []core.QueryType{core.QueryTypeMetadata}, result.FallbackTypes)

	result = classifyQuery(t, "Quais KTs temos da Dexco?")
	assert.Equal(t, core.QueryTypeMetadata, result.QueryType)
}

func TestClassify_SpecificKTAnalysis(t *testing.T) {
	result := classifyQuery(t, "Resuma os principais pontos discutidos no KT sustentação")

	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Empty(t, result.FallbackTypes)
	assert.True(t, result.Strategy.UseEmbedding)
}

func TestClassify_NoSignalsDefaultsSemantic(t *testing.T) {
	result := classifyQuery(t, "bom dia pessoal")

	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.InDelta(t, 0.3, result.Confidence, 0.001)
	assert.Empty(t, result.FallbackTypes)
}

func TestClassify_NilEnrichment(t *testing.T) {
	result := NewClassifier().Classify(context.Background(), "o que temos sobre ewm", nil)

	require.NotNil(t, result)
	assert.Equal(t, core.QueryTypeSemantic, result.QueryType)
	assert.GreaterOrEqual(t, result.Confidence, 0.8)
}

func TestClassify_Reasoning(t *testing.T) {
	result := classifyQuery(t, "Quais KTs temos da Dexco?")

	assert.Contains(t, result.Reasoning, "METADATA")
	assert.Contains(t, result.Reasoning, "clients")
	assert.Contains(t, result.Reasoning, "specific client")
}

func TestTypeScores_TopTieBreak(t *testing.T) {
	scores := typeScores{
		core.QueryTypeSemantic: 0.5,
		core.QueryTypeMetadata: 0.5,
		core.QueryTypeEntity:   0.5,
		core.QueryTypeTemporal: 0.5,
		core.QueryTypeContent:  0.5,
	}
	top, score := scores.top()
	assert.Equal(t, core.QueryTypeEntity, top, "ties resolve to the highest-priority type")
	assert.InDelta(t, 0.5, score, 0.001)
}

func TestFallbackTypes(t *testing.T) {
	scores := typeScores{
		core.QueryTypeEntity:   0.9,
		core.QueryTypeSemantic: 0.5,
		core.QueryTypeMetadata: 0.4,
		core.QueryTypeTemporal: 0.35,
		core.QueryTypeContent:  0.1,
	}
	fallbacks := fallbackTypes(scores, core.QueryTypeEntity)
	assert.Equal(t, []core.QueryType{core.QueryTypeSemantic, core.QueryTypeMetadata}, fallbacks,
		"top two above threshold, primary excluded")
}

func TestDetectSpecificKT(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		specificKT bool
		temporal   bool
		fires      bool
	}{
		{
			name:       "analysis of named KT",
			query:      "resuma os principais pontos discutidos no kt sustentação",
			specificKT: true,
			fires:      true,
		},
		{
			name:       "weak KT reference stays below threshold",
			query:      "quem participou do kt da dexco?",
			specificKT: true,
			fires:      false,
		},
		{
			name:     "temporal range is not a specific KT",
			query:    "kts dos últimos 30 dias",
			temporal: true,
			fires:    false,
		},
		{
			name:  "plain listing",
			query: "quais clientes temos na base?",
			fires: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := detectSpecificKT(tt.query)
			assert.Equal(t, tt.specificKT, d.isSpecificKT)
			assert.Equal(t, tt.temporal, d.isTemporalPeriod)
			assert.Equal(t, tt.fires, d.confidence >= ktDetectionThreshold)
		})
	}
}

func TestBuildStrategy_TemporalScopes(t *testing.T) {
	enrichmentWith := func(temporal ...string) *core.EnrichmentResult {
		return &core.EnrichmentResult{
			Entities: map[string][]string{core.EntityTemporal: temporal},
		}
	}

	strategy := buildStrategy(core.QueryTypeTemporal, enrichmentWith("specific_setembro_2024"))
	assert.InDelta(t, 1.5, strategy.TopKModifier, 0.001, "specific month widens the window")

	strategy = buildStrategy(core.QueryTypeTemporal, enrichmentWith("recent_7_dias"))
	assert.InDelta(t, 0.8, strategy.TopKModifier, 0.001)

	strategy = buildStrategy(core.QueryTypeTemporal, enrichmentWith("ontem"))
	assert.InDelta(t, 1.3, strategy.TopKModifier, 0.001)

	strategy = buildStrategy(core.QueryTypeTemporal, nil)
	assert.InDelta(t, 1.3, strategy.TopKModifier, 0.001)
}
