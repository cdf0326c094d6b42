package selection

import (
	"strings"

	"github.com/poiesic/ktsearch/classify"
	"github.com/poiesic/ktsearch/core"
)

// Per-type candidate count tables. The base applies when no enrichment
// signal adjusts it; the max caps the adjusted value.
var countTable = map[core.QueryType]struct{ base, max int }{
	core.QueryTypeSemantic: {base: 8, max: 20},
	core.QueryTypeMetadata: {base: 20, max: 500},
	core.QueryTypeEntity:   {base: 10, max: 25},
	core.QueryTypeTemporal: {base: 12, max: 30},
	core.QueryTypeContent:  {base: 15, max: 30},
}

// Complexity scaling applied to the adjusted base (never for METADATA,
// where the count tracks catalog coverage, not query difficulty).
const (
	complexScale = 1.2
	simpleScale  = 0.8
)

// AdaptiveCount derives how many chunks a query of this type wants, from
// the enrichment evidence and how many candidates exist. The result is in
// [1, min(typeMax, available)]; a zero available returns 0.
func AdaptiveCount(queryType core.QueryType, enrichment *core.EnrichmentResult, available int) int {
	if available <= 0 {
		return 0
	}

	bounds, ok := countTable[queryType]
	if !ok {
		bounds = countTable[core.QueryTypeSemantic]
	}
	count := bounds.base

	var qctx core.QueryContext
	var entities map[string][]string
	if enrichment != nil {
		qctx = enrichment.Context
		entities = enrichment.Entities
	}

	switch queryType {
	case core.QueryTypeSemantic:
		switch {
		case len(qctx.TechnicalTerms) > 0:
			count = 6
		case qctx.IsBroadRequest:
			count = 15
		case qctx.HasSpecificClient:
			count = 12
		}

	case core.QueryTypeMetadata:
		// Listing queries want catalog coverage: every meeting for a named
		// client, or the whole base for a global listing.
		if qctx.IsBroadRequest || !qctx.IsSpecificAnalysis {
			if qctx.HasSpecificClient {
				count = 100
			} else {
				count = 500
			}
		}

	case core.QueryTypeEntity:
		switch {
		case len(entities[core.EntityParticipants]) > 0:
			count = 15
		case qctx.HasSpecificClient:
			count = 8
		}

	case core.QueryTypeTemporal:
		switch temporalScope(entities[core.EntityTemporal]) {
		case "specific":
			count = 20
		case "recent":
			count = 8
		}

	case core.QueryTypeContent:
		switch {
		case hasQuotedPhrase(enrichment):
			count = 20
		case len(entities[core.EntityTransactions]) == 0:
			count = 10
		}
	}

	if queryType != core.QueryTypeMetadata {
		switch {
		case qctx.Complexity >= classify.ComplexityHigh:
			count = int(float64(count) * complexScale)
		case qctx.Complexity < classify.ComplexityLow:
			count = int(float64(count) * simpleScale)
		}
	}

	if count > bounds.max {
		count = bounds.max
	}
	if count > available {
		count = available
	}
	if count < 1 {
		count = 1
	}
	return count
}

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

func hasQuotedPhrase(enrichment *core.EnrichmentResult) bool {
	if enrichment == nil {
		return false
	}
	return strings.ContainsAny(enrichment.OriginalQuery, `"'`)
}
