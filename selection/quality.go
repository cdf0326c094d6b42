package selection

import (
	"regexp"
	"strings"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
)

// Quality scoring weights. A chunk starts at the base and collects bonuses
// and penalties, clamped to [0, 1].
const (
	qualityBase = 0.5

	bonusRichContent   = 0.2
	bonusClientMatch   = 0.3
	bonusTechnicalMeta = 0.15
	bonusHighlights    = 0.1
	bonusRelevantPhase = 0.1
	bonusHighImpact    = 0.15
	bonusNamedSpeaker  = 0.05
	bonusQueryMatch    = 0.1

	penaltyShortContent   = 0.3
	penaltyFragment       = 0.2
	penaltyNoise          = 0.6
	penaltyIntroOnly      = 0.2
	penaltyUnknownSpeaker = 0.1
	penaltyLowImpact      = 0.1
	penaltyMissingTags    = 0.15
	penaltyConversational = 0.5
)

// Meeting phases that usually carry substantive content.
var relevantPhases = map[string]bool{
	"explicação_processo": true,
	"discussão_técnica":   true,
	"q&a":                 true,
}

// conversationalPattern matches filler fragments that slipped through
// retrieval scoring.
var conversationalPattern = regexp.MustCompile(`(?i)^\s*(beleza|ok|okay|tá|ta|certo|perfeito|legal|show|isso|sim|não|nao|uhum|aham)\s*[.?!]*\s*$`)

// queryInput holds the query-derived evidence quality scoring compares
// chunks against. Built once per Select call.
type queryInput struct {
	words          []string
	clientSpelling map[string]struct{}
	technical      []string
}

func buildQueryInput(enrichment *core.EnrichmentResult) queryInput {
	in := queryInput{clientSpelling: make(map[string]struct{})}
	if enrichment == nil {
		return in
	}

	for _, word := range strings.Fields(enrichment.CleanedQuery) {
		word = strings.Trim(word, ".,?!\"()")
		if len([]rune(word)) > 3 {
			in.words = append(in.words, word)
		}
	}
	for _, client := range enrichment.Entities[core.EntityClients] {
		for _, variation := range discover.Variations(client) {
			in.clientSpelling[strings.ToUpper(variation)] = struct{}{}
		}
	}
	for _, term := range enrichment.Context.TechnicalTerms {
		in.technical = append(in.technical, strings.ToLower(term))
	}
	return in
}

// qualityScore rates one chunk on content richness, metadata completeness
// and relevance to the query. The score is independent of what else has
// been selected; diversity handles redundancy.
func qualityScore(match *core.ChunkMatch, in queryInput) float64 {
	chunk := match.Chunk
	score := qualityBase
	runes := len([]rune(chunk.Text))
	lowerText := strings.ToLower(chunk.Text)
	tags := strings.ToLower(chunk.Meta(core.MetaSearchableTags))

	if runes > 100 {
		score += bonusRichContent
	}

	client := strings.ToUpper(strings.TrimSpace(chunk.Meta(core.MetaClientName)))
	if client != "" && client != "UNKNOWN" {
		if _, ok := in.clientSpelling[client]; ok {
			score += bonusClientMatch
		}
	}

	if technicalTags(tags, in.technical) {
		score += bonusTechnicalMeta
	}
	if chunk.Meta(core.MetaHighlights) != "" || chunk.Meta(core.MetaDecisions) != "" {
		score += bonusHighlights
	}
	if relevantPhases[strings.ToLower(chunk.Meta(core.MetaMeetingPhase))] {
		score += bonusRelevantPhase
	}

	switch strings.ToUpper(chunk.Meta(core.MetaImpactLevel)) {
	case "HIGH", "CRITICAL", "ALTO", "CRÍTICO", "CRITICO":
		score += bonusHighImpact
	case "LOW", "BAIXO":
		score -= penaltyLowImpact
	}

	speaker := strings.TrimSpace(chunk.Meta(core.MetaSpeaker))
	switch {
	case speaker == "" || strings.EqualFold(speaker, "desconhecido") || strings.EqualFold(speaker, "unknown"):
		score -= penaltyUnknownSpeaker
	case !strings.EqualFold(speaker, "participante"):
		score += bonusNamedSpeaker
	}

	if queryMatches(lowerText, tags, in.words) {
		score += bonusQueryMatch
	}

	// Size penalties stack: a 15-rune fragment is short, a fragment and noise.
	if runes < 100 {
		score -= penaltyShortContent
	}
	if runes < 50 {
		score -= penaltyFragment
	}
	if runes < 20 {
		score -= penaltyNoise
	}
	if strings.EqualFold(chunk.Meta(core.MetaContentType), "introdução") && runes < 100 {
		score -= penaltyIntroOnly
	}
	if tags == "" {
		score -= penaltyMissingTags
	}
	if conversationalPattern.MatchString(chunk.Text) {
		score -= penaltyConversational
	}

	return clamp01(score)
}

// technicalTags reports whether the chunk tags carry technical substance:
// a term the query itself named, or a module/transaction-looking tag.
func technicalTags(tags string, queryTechnical []string) bool {
	if tags == "" {
		return false
	}
	for _, term := range queryTechnical {
		if strings.Contains(tags, term) {
			return true
		}
	}
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		if moduleTags[tag] {
			return true
		}
	}
	return false
}

var moduleTags = map[string]bool{
	"sd": true, "mm": true, "fi": true, "co": true, "pp": true,
	"hr": true, "ewm": true, "btp": true,
}

// queryMatches reports query relevance: at least two significant query
// words in the content, or one in the searchable tags.
func queryMatches(lowerText, tags string, words []string) bool {
	inText := 0
	for _, word := range words {
		if strings.Contains(lowerText, word) {
			inText++
			if inText >= 2 {
				return true
			}
		}
		if tags != "" && strings.Contains(tags, word) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
