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


package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// Confidence constants. Base covers any query that survives cleaning; each
// detected entity category adds categoryConfidence, capped at 1.0. Queries
// that fail validation after cleaning never exceed unusableConfidence.
const (
	baseConfidence       = 0.2
	categoryConfidence   = 0.2
	unusableConfidence   = 0.05
	expansionsPerTerm    = 2
	complexityScoreScale = 8.0
)

// Enricher normalizes queries and extracts the entities and context hints the
// rest of the pipeline runs on. Detection is vocabulary and regex driven, so
// Enrich never fails; a query with nothing to extract still produces a usable
// low-confidence result.
type Enricher struct {
	logger    *slog.Logger
	fallback  *core.EnrichmentResult
	minLength int
}

// Option configures the Enricher.
type Option func(*Enricher)

// WithLogger sets the logger used by the Enricher.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFallbackResult sets the result returned for queries that are unusable
// after cleaning (empty, too short). The fallback is returned with
// OriginalQuery, CleanedQuery and ProcessingTime filled in.
func WithFallbackResult(result *core.EnrichmentResult) Option {
	return func(e *Enricher) {
		e.fallback = result
	}
}

// WithMinQueryLength raises the minimum cleaned-query length. Values below
// core.MinQueryLength are ignored.
func WithMinQueryLength(n int) Option {
	return func(e *Enricher) {
		if n > e.minLength {
			e.minLength = n
		}
	}
}

// NewEnricher creates an Enricher.
func NewEnricher(opts ...Option) *Enricher {
	e := &Enricher{
		logger:    slog.Default().With("component", "enricher"),
		minLength: core.MinQueryLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich cleans the query, detects entities, builds the query context and
// assembles the expanded query used for embedding search. It never returns an
// error: unusable input yields the fallback result when one was configured,
// otherwise an empty result with confidence at most 0.05.
func (e *Enricher) Enrich(ctx context.Context, query string) *core.EnrichmentResult {
	start := time.Now()

	cleaned := CleanQuery(query)
	if err := core.ValidateQuery(cleaned, e.minLength); err != nil {
		e.logger.Warn("query unusable after cleaning", "error", err)
		return e.unusableResult(query, cleaned, start)
	}

	entities := detectEntities(query, cleaned)
	qctx := buildContext(cleaned, entities)
	enriched := buildEnrichedQuery(cleaned, entities, qctx)

	confidence := baseConfidence + categoryConfidence*float64(len(entities))
	if confidence > 1.0 {
		confidence = 1.0
	}

	result := &core.EnrichmentResult{
		OriginalQuery:  query,
		CleanedQuery:   cleaned,
		EnrichedQuery:  enriched,
		Entities:       entities,
		Context:        qctx,
		Confidence:     confidence,
		ProcessingTime: time.Since(start),
	}

	e.logger.Debug("query enriched",
		"categories", len(entities),
		"confidence", fmt.Sprintf("%.2f", confidence),
		"words", qctx.WordCount,
		"elapsed", result.ProcessingTime)
	return result
}

func (e *Enricher) unusableResult(query, cleaned string, start time.Time) *core.EnrichmentResult {
	if e.fallback != nil {
		out := *e.fallback
		out.OriginalQuery = query
		out.CleanedQuery = cleaned
		if out.Entities == nil {
			out.Entities = map[string][]string{}
		}
		out.ProcessingTime = time.Since(start)
		return &out
	}
	return &core.EnrichmentResult{
		OriginalQuery: query,
		CleanedQuery:  cleaned,
		EnrichedQuery: cleaned,
		Entities:      map[string][]string{},
		Context: core.QueryContext{
			WordCount: len(strings.Fields(cleaned)),
		},
		Confidence:     unusableConfidence,
		ProcessingTime: time.Since(start),
	}
}

// detectEntities extracts all vocabulary-driven entities. Transactions and
// participants run on the raw query because they depend on casing; everything
// else runs on the cleaned query.
func detectEntities(raw, cleaned string) map[string][]string {
	entities := make(map[string][]string)

	if clients := detectClients(cleaned); len(clients) > 0 {
		entities[core.EntityClients] = clients
	}
	if transactions := detectTransactions(raw); len(transactions) > 0 {
		entities[core.EntityTransactions] = transactions
	}
	if modules := detectModules(cleaned); len(modules) > 0 {
		entities[core.EntityModules] = modules
	}
	if participants := detectParticipants(raw, cleaned); len(participants) > 0 {
		entities[core.EntityParticipants] = participants
	}
	if temporal := detectTemporal(cleaned); len(temporal) > 0 {
		entities[core.EntityTemporal] = temporal
	}
	return entities
}

func detectClients(cleaned string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range clientPattern.FindAllString(cleaned, -1) {
		canonical := normalizeClientName(match)
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	return out
}

func detectTransactions(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range transactionPattern.FindAllString(raw, -1) {
		if !seen[match] {
			seen[match] = true
			out = append(out, match)
		}
	}
	return out
}

func detectModules(cleaned string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range modulePattern.FindAllString(cleaned, -1) {
		module := strings.ToUpper(match)
		if !seen[module] {
			seen[module] = true
			out = append(out, module)
		}
	}
	return out
}

func detectParticipants(raw, cleaned string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, groups := range participantPattern.FindAllStringSubmatch(raw, -1) {
		word := groups[1]
		lower := strings.ToLower(word)
		if participantStopwords[lower] {
			continue
		}
		if _, isClient := clientNormalization[lower]; isClient {
			continue
		}
		add(word)
	}

	for _, name := range commonParticipantNames {
		if containsWord(cleaned, strings.ToLower(name)) {
			add(name)
		}
	}
	return out
}

func detectTemporal(cleaned string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(expr string) {
		if !seen[expr] {
			seen[expr] = true
			out = append(out, expr)
		}
	}

	for _, groups := range temporalRangePattern.FindAllStringSubmatch(cleaned, -1) {
		add(fmt.Sprintf("recent_%s_%s", groups[1], groups[2]))
	}
	for _, groups := range temporalMonthPattern.FindAllStringSubmatch(cleaned, -1) {
		add(fmt.Sprintf("specific_%s_%s", groups[1], groups[2]))
	}
	for _, groups := range temporalRelativePattern.FindAllStringSubmatch(cleaned, -1) {
		add(groups[1])
	}
	return out
}

// detectClientCandidates captures names mentioned after "cliente" that are
// not in the curated vocabulary. These drive the unknown-entity early exit.
func detectClientCandidates(cleaned string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, groups := range clientCandidatePattern.FindAllStringSubmatch(cleaned, -1) {
		word := strings.ToLower(groups[1])
		if candidateStopwords[word] {
			continue
		}
		if _, known := clientNormalization[word]; known {
			continue
		}
		candidate := strings.ToUpper(word)
		if !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	return out
}

var candidateStopwords = map[string]bool{
	"que": true, "não": true, "nao": true, "novo": true, "atual": true,
	"existe": true, "específico": true, "especifico": true,
}

func buildContext(cleaned string, entities map[string][]string) core.QueryContext {
	clients := entities[core.EntityClients]
	candidates := detectClientCandidates(cleaned)

	technical := make([]string, 0, len(entities[core.EntityTransactions])+len(entities[core.EntityModules]))
	technical = append(technical, entities[core.EntityTransactions]...)
	technical = append(technical, entities[core.EntityModules]...)

	return core.QueryContext{
		HasSpecificClient:  len(clients) > 0 || len(candidates) > 0,
		ClientCandidates:   candidates,
		TechnicalTerms:     technical,
		IsBroadRequest:     containsAny(cleaned, broadIndicators),
		IsSpecificAnalysis: !containsAny(cleaned, genericListingIndicators) && containsAny(cleaned, analysisIndicators),
		WordCount:          len(strings.Fields(cleaned)),
		Complexity:         computeComplexity(cleaned, entities),
	}
}

// computeComplexity scores query complexity into [0, 1]. Length, word count
// and entity variety all contribute. Selection treats >= 0.6 as complex and
// < 0.25 as simple when sizing candidate sets.
func computeComplexity(cleaned string, entities map[string][]string) float64 {
	score := 0.0

	switch runes := len([]rune(cleaned)); {
	case runes > 100:
		score += 2
	case runes > 50:
		score += 1
	}

	score += float64(len(entities))

	switch words := len(strings.Fields(cleaned)); {
	case words > 10:
		score += 2
	case words > 5:
		score += 1
	}

	complexity := score / complexityScoreScale
	if complexity > 1.0 {
		complexity = 1.0
	}
	return complexity
}

// buildEnrichedQuery expands the cleaned query with semantic synonyms, client
// spelling variations, detected codes and domain vocabulary. The result feeds
// embedding generation only; it is never shown to users.
func buildEnrichedQuery(cleaned string, entities map[string][]string, qctx core.QueryContext) string {
	parts := []string{cleaned}
	seen := make(map[string]bool)

	add := func(terms ...string) {
		for _, term := range terms {
			if seen[term] {
				continue
			}
			seen[term] = true
			parts = append(parts, term)
		}
	}

	for _, word := range strings.Fields(cleaned) {
		expansions, ok := semanticExpansions[word]
		if !ok {
			continue
		}
		if len(expansions) > expansionsPerTerm {
			expansions = expansions[:expansionsPerTerm]
		}
		add(expansions...)
	}

	for _, client := range entities[core.EntityClients] {
		if variations, ok := clientVariations[client]; ok {
			add(variations...)
		} else {
			add(client)
		}
	}

	add(entities[core.EntityTransactions]...)
	add(entities[core.EntityModules]...)
	add(domainTerms...)

	if len(qctx.TechnicalTerms) > 0 {
		add(technicalDomainTerms...)
	}
	if len(entities[core.EntityTemporal]) > 0 {
		add(temporalDomainTerms...)
	}
	if containsAny(cleaned, listingIndicators) {
		add("listagem", "informações")
	}
	if isComparisonQuery(cleaned, entities) {
		add("comparação", "análise")
	}

	return strings.Join(parts, " ")
}

// isComparisonQuery reports whether the query compares things: either an
// explicit comparison word, or two clients joined by "e".
func isComparisonQuery(cleaned string, entities map[string][]string) bool {
	if containsAny(cleaned, comparisonIndicators) {
		return true
	}
	return len(entities[core.EntityClients]) >= 2 && strings.Contains(cleaned, " e ")
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for _, field := range strings.Fields(s) {
		if strings.Trim(field, ".,?!\"()[]") == word {
			return true
		}
	}
	return false
}
