package classify

import (
	"strings"

	"github.com/poiesic/ktsearch/core"
)

// Aggregation modes a retrieval strategy can request.
const (
	AggregationDistinct    = "distinct"
	AggregationUniqueMerge = "unique_merge"
)

// SearchMethodText marks strategies answered by literal term matching
// instead of embedding similarity.
const SearchMethodText = "text_search"

// StrategyFor returns the retrieval strategy for a query type given the
// enrichment evidence. The retriever uses it to derive strategies for
// fallback types, which the classification result does not carry.
func StrategyFor(queryType core.QueryType, enrichment *core.EnrichmentResult) core.RetrievalStrategy {
	return buildStrategy(queryType, enrichment)
}

// buildStrategy derives the retrieval strategy for a classified type,
// adjusted by what enrichment found. The TopKModifier scales the adaptive
// candidate count; filters themselves are built by the retriever from the
// enrichment entities.
func buildStrategy(queryType core.QueryType, enrichment *core.EnrichmentResult) core.RetrievalStrategy {
	var entities map[string][]string
	var qctx core.QueryContext
	if enrichment != nil {
		entities = enrichment.Entities
		qctx = enrichment.Context
	}

	switch queryType {
	case core.QueryTypeMetadata:
		return core.RetrievalStrategy{
			UseEmbedding:  false,
			Aggregation:   AggregationDistinct,
			PrimaryFields: []string{core.MetaVideoName, core.MetaClientName},
			SortBy:        core.MetaClientName + " ASC",
			TopKModifier:  2.0,
		}

	case core.QueryTypeEntity:
		strategy := core.RetrievalStrategy{
			UseEmbedding:  false,
			Aggregation:   AggregationUniqueMerge,
			PrimaryFields: []string{core.MetaSpeaker, core.MetaClientName},
			TopKModifier:  1.2,
		}
		if len(entities[core.EntityParticipants]) > 0 || asksAboutParticipants(strings.ToLower(enrichmentQuery(enrichment))) {
			strategy.PrimaryFields = []string{core.MetaSpeaker}
		}
		return strategy

	case core.QueryTypeTemporal:
		strategy := core.RetrievalStrategy{
			UseEmbedding:  false,
			PrimaryFields: []string{core.MetaMeetingDate},
			SortBy:        core.MetaMeetingDate + " DESC",
			TopKModifier:  1.3,
		}
		switch temporalScope(entities[core.EntityTemporal]) {
		case "specific":
			strategy.TopKModifier = 1.5
		case "recent":
			strategy.TopKModifier = 0.8
		}
		return strategy

	case core.QueryTypeContent:
		return core.RetrievalStrategy{
			UseEmbedding:  false,
			SearchMethod:  SearchMethodText,
			PrimaryFields: []string{"content"},
			TopKModifier:  1.5,
		}

	default: // SEMANTIC and anything unknown
		strategy := core.RetrievalStrategy{
			UseEmbedding:  true,
			PrimaryFields: []string{"content"},
			TopKModifier:  1.0,
		}
		if len(entities[core.EntityClients]) > 0 {
			strategy.TopKModifier = 1.5
		}
		// Technical queries want fewer, sharper results. This overrides the
		// client widening when both apply.
		if len(entities[core.EntityTransactions]) > 0 || len(qctx.TechnicalTerms) > 0 {
			strategy.TopKModifier = 0.8
		}
		return strategy
	}
}

// temporalScope classifies the detected temporal expressions: an exact month
// reference beats a relative recency window.
func temporalScope(temporal []string) string {
	for _, value := range temporal {
		if strings.HasPrefix(value, "specific_") {
			return "specific"
		}
	}
	for _, value := range temporal {
		if strings.HasPrefix(value, "recent_") {
			return "recent"
		}
	}
	return "general"
}

func enrichmentQuery(enrichment *core.EnrichmentResult) string {
	if enrichment == nil {
		return ""
	}
	return enrichment.CleanedQuery
}
