// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package classify

import (
	"strings"

	"github.com/poiesic/ktsearch/core"
)

// Combination weights: patterns are primary evidence, entities add context,
// the query context adds nuance.
const (
	patternWeight = 0.5
	entityWeight  = 0.3
	contextWeight = 0.2
)

// priorityMultipliers enforce specificity ordering when a type has real
// evidence (score above 0.1): literal search beats listing beats temporal
// beats entity, with semantic as the fallback baseline.
var priorityMultipliers = map[core.QueryType]float64{
	core.QueryTypeContent:  2.0,
	core.QueryTypeMetadata: 1.8,
	core.QueryTypeTemporal: 1.6,
	core.QueryTypeEntity:   1.3,
	core.QueryTypeSemantic: 1.0,
}

type typeScores map[core.QueryType]float64

func newTypeScores() typeScores {
	s := make(typeScores, len(core.QueryTypes()))
	for _, t := range core.QueryTypes() {
		s[t] = 0
	}
	return s
}

// top returns the highest scoring type. Ties resolve in the fixed priority
// order of core.QueryTypes, so classification is deterministic.
func (s typeScores) top() (core.QueryType, float64) {
	best := core.QueryTypeSemantic
	bestScore := -1.0
	for _, t := range core.QueryTypes() {
		if s[t] > bestScore {
			best = t
			bestScore = s[t]
		}
	}
	return best, bestScore
}

func (s typeScores) allZero() bool {
	for _, score := range s {
		if score > 0 {
			return false
		}
	}
	return true
}

// normalize scales all scores so the strongest type sits at 1.0.
func (s typeScores) normalize() {
	max := 0.0
	for _, score := range s {
		if score > max {
			max = score
		}
	}
	if max == 0 {
		return
	}
	for t, score := range s {
		s[t] = score / max
	}
}

// ktDetection is the outcome of the specific-KT versus time-period check.
type ktDetection struct {
	isSpecificKT     bool
	isTemporalPeriod bool
	confidence       float64
}

const ktDetectionThreshold = 0.7

// detectSpecificKT decides whether the query targets one particular KT
// recording or a time period. Specific-KT evidence suppresses the temporal
// check entirely: "KT Estorno em massa-20251022" is not a date query even
// though it contains digits.
func detectSpecificKT(lower string) ktDetection {
	var d ktDetection

	ktMatches := 0
	for _, pattern := range specificKTPatterns {
		if pattern.MatchString(lower) {
			ktMatches++
		}
	}
	analysisMatches := 0
	for _, indicator := range ktAnalysisIndicators {
		if strings.Contains(lower, indicator) {
			analysisMatches++
		}
	}

	if ktMatches > 0 || analysisMatches > 0 {
		d.isSpecificKT = true
		patternConfidence := minFloat(0.9, float64(ktMatches)*0.3)
		analysisConfidence := minFloat(0.6, float64(analysisMatches)*0.15)
		d.confidence = maxFloat(patternConfidence, analysisConfidence)
		return d
	}

	temporalMatches := 0
	for _, pattern := range realTemporalPatterns {
		if pattern.MatchString(lower) {
			temporalMatches++
		}
	}
	if temporalMatches > 0 {
		d.isTemporalPeriod = true
		d.confidence = minFloat(0.9, float64(temporalMatches)*0.4)
	}
	return d
}

// scoreByPatterns accumulates vocabulary evidence per type, applies the
// "quais + semantic term" override, then lets the specific-KT detection
// short-circuit with a fixed score profile. The standard path normalizes so
// pattern evidence is comparable across queries of any length.
func scoreByPatterns(lower string) typeScores {
	scores := newTypeScores()
	for qtype, patterns := range typePatterns {
		for _, pattern := range patterns {
			if strings.Contains(lower, pattern) {
				scores[qtype] += weightOf(pattern)
			}
		}
	}

	// "Quais decisões ..." asks about outcomes, not catalog listings.
	if strings.HasPrefix(lower, "quais") && containsAny(lower, quaisSemanticTerms) {
		scores[core.QueryTypeMetadata] = 0.1
		scores[core.QueryTypeSemantic] = 0.9
	}

	detection := detectSpecificKT(lower)
	switch {
	case detection.isSpecificKT && detection.confidence >= ktDetectionThreshold:
		if containsAny(lower, analysisRequestTerms) {
			// Analyze the KT: semantic with a literal-search backup.
			scores[core.QueryTypeSemantic] = 0.95
			scores[core.QueryTypeContent] = 0.3
		} else {
			// Find something inside the KT: literal search first.
			scores[core.QueryTypeContent] = 0.95
			scores[core.QueryTypeSemantic] = 0.3
		}
		scores[core.QueryTypeTemporal] = 0
		scores[core.QueryTypeMetadata] = 0
		scores[core.QueryTypeEntity] = 0
		return scores

	case detection.isTemporalPeriod && detection.confidence >= ktDetectionThreshold:
		scores[core.QueryTypeTemporal] = maxFloat(scores[core.QueryTypeTemporal], 0.8)
		return scores
	}

	scores.normalize()
	return scores
}

func weightOf(pattern string) float64 {
	if w, ok := patternWeights[pattern]; ok {
		return w
	}
	return defaultPatternWeight
}

// scoreByEntities converts detected entities into type evidence. Mentioning
// an entity is usually a semantic question ABOUT it; only explicit
// participation questions score strongly as entity lookups.
func scoreByEntities(enrichment *core.EnrichmentResult, lower string) typeScores {
	scores := newTypeScores()
	if enrichment == nil || len(enrichment.Entities) == 0 {
		return scores
	}

	for category, values := range enrichment.Entities {
		if len(values) == 0 {
			continue
		}
		switch category {
		case core.EntityClients:
			scores[core.QueryTypeEntity] += 0.2
			scores[core.QueryTypeSemantic] += 0.6
			scores[core.QueryTypeMetadata] += 0.15

		case core.EntityTransactions:
			scores[core.QueryTypeSemantic] += 0.7
			scores[core.QueryTypeContent] += 0.4
			scores[core.QueryTypeEntity] += 0.1

		case core.EntityTemporal:
			scores[core.QueryTypeTemporal] += 0.8
			scores[core.QueryTypeMetadata] += 0.1

		case core.EntityParticipants:
			if asksAboutParticipants(lower) {
				scores[core.QueryTypeEntity] += 0.7
				scores[core.QueryTypeSemantic] += 0.2
			} else {
				scores[core.QueryTypeEntity] += 0.1
				scores[core.QueryTypeSemantic] += 0.5
			}

		case core.EntityModules:
			scores[core.QueryTypeSemantic] += 0.6
			scores[core.QueryTypeMetadata] += 0.1
		}
	}
	return scores
}

func asksAboutParticipants(lower string) bool {
	return containsAny(lower, participantQuestionTerms)
}

// Complexity bands used when converting the enrichment context into type
// evidence and when sizing candidate sets downstream.
const (
	ComplexityHigh = 0.6
	ComplexityLow  = 0.25
)

// scoreByContext converts query-context hints into type evidence.
func scoreByContext(enrichment *core.EnrichmentResult, lower string) typeScores {
	scores := newTypeScores()
	if enrichment == nil {
		return scores
	}
	qctx := enrichment.Context

	if containsAny(lower, listingTerms) {
		scores[core.QueryTypeMetadata] += 0.8
	}
	if containsAny(lower, comparisonTerms) {
		scores[core.QueryTypeSemantic] += 0.5
		scores[core.QueryTypeEntity] += 0.4
	}
	if qctx.IsBroadRequest {
		scores[core.QueryTypeMetadata] += 0.5
		scores[core.QueryTypeSemantic] += 0.4
	}

	// Both very complex and very simple queries default toward semantic
	// search; only mid-complexity queries stay neutral here.
	if qctx.Complexity >= ComplexityHigh || qctx.Complexity < ComplexityLow {
		scores[core.QueryTypeSemantic] += 0.3
	}

	if qctx.HasSpecificClient {
		scores[core.QueryTypeSemantic] += 0.4
		scores[core.QueryTypeEntity] += 0.2
	}
	if len(qctx.TechnicalTerms) > 0 {
		scores[core.QueryTypeSemantic] += 0.4
		scores[core.QueryTypeContent] += 0.2
	}
	if len(enrichment.Entities[core.EntityTemporal]) > 0 {
		scores[core.QueryTypeTemporal] += 0.5
	}
	return scores
}

// combineScores merges the three evidence sources, applies priority
// multipliers, then the intent boosters that keep high-specificity patterns
// ahead of the semantic fallback.
func combineScores(pattern, entity, context typeScores) typeScores {
	combined := newTypeScores()
	for _, t := range core.QueryTypes() {
		combined[t] = pattern[t]*patternWeight + entity[t]*entityWeight + context[t]*contextWeight
	}

	for t, score := range combined {
		if score > 0.1 {
			combined[t] = score * priorityMultipliers[t]
		}
	}

	if pattern[core.QueryTypeContent] > 0.3 {
		combined[core.QueryTypeContent] += 1.0
	}
	if pattern[core.QueryTypeMetadata] > 0.3 {
		combined[core.QueryTypeMetadata] += 0.8
	}
	if pattern[core.QueryTypeTemporal] > 0.3 {
		combined[core.QueryTypeTemporal] += 0.8
	}

	semanticPattern := pattern[core.QueryTypeSemantic]
	entityPattern := pattern[core.QueryTypeEntity]
	switch {
	case semanticPattern > 0.3:
		combined[core.QueryTypeSemantic] += 0.8
	case entityPattern > 0.5 && semanticPattern < 0.2:
		combined[core.QueryTypeEntity] += 0.4
	case semanticPattern > 0.1:
		combined[core.QueryTypeSemantic] += 0.5
	}
	return combined
}

// primaryClassification picks the winner and derives a calibrated confidence:
// the raw score scaled up, a bonus for clear separation from the runner-up, a
// type-specific bonus, then tier flooring and the final [0.3, 0.95] clamp.
func primaryClassification(scores typeScores) (core.QueryType, float64) {
	if scores.allZero() {
		return core.QueryTypeSemantic, 0.3
	}

	primary, primaryScore := scores.top()

	confidence := primaryScore * 1.4

	runnerUp := 0.0
	for _, t := range core.QueryTypes() {
		if t != primary && scores[t] > runnerUp {
			runnerUp = scores[t]
		}
	}
	confidence += minFloat(0.2, (primaryScore-runnerUp)*0.5)

	confidence += typeConfidenceBonus(primary, scores)

	switch {
	case confidence >= 0.65:
		confidence = maxFloat(0.8, confidence)
	case confidence >= 0.45:
		confidence = maxFloat(0.7, confidence)
	case confidence >= 0.25:
		confidence = maxFloat(0.6, confidence)
	default:
		confidence = maxFloat(0.3, confidence)
	}

	return primary, maxFloat(0.3, minFloat(0.95, confidence))
}

func typeConfidenceBonus(primary core.QueryType, scores typeScores) float64 {
	switch primary {
	case core.QueryTypeMetadata:
		if scores[primary] > 0.5 {
			return 0.15
		}
	case core.QueryTypeEntity:
		if scores[primary] > 0.4 {
			return 0.15
		}
	case core.QueryTypeTemporal, core.QueryTypeContent:
		if scores[primary] > 0.5 {
			return 0.2
		}
	case core.QueryTypeSemantic:
		signals := 0
		for _, score := range scores {
			if score > 0.1 {
				signals++
			}
		}
		if signals >= 2 {
			return 0.1
		}
	}
	return 0
}

// fallbackTypes lists up to two secondary types with real evidence, for
// hybrid retrieval. The primary type is excluded.
func fallbackTypes(scores typeScores, primary core.QueryType) []core.QueryType {
	var fallbacks []core.QueryType
	remaining := make(typeScores, len(scores))
	for t, score := range scores {
		if t != primary {
			remaining[t] = score
		}
	}
	for len(fallbacks) < 2 {
		best := core.QueryType(0)
		bestScore := 0.3
		for _, t := range core.QueryTypes() {
			if score, ok := remaining[t]; ok && score > bestScore {
				best = t
				bestScore = score
			}
		}
		if !best.Valid() {
			break
		}
		fallbacks = append(fallbacks, best)
		delete(remaining, best)
	}
	return fallbacks
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
