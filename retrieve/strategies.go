package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
	"github.com/poiesic/ktsearch/storage"
)

// neutralScore is assigned to matches found by listing rather than by
// similarity, so downstream selection treats them evenly.
const neutralScore = 0.5

// semanticSearch embeds the enriched query and scans by vector
// similarity. Client scoping is applied as a post-filter over the client
// name variations; when the filter would empty the result set the
// unfiltered matches are kept so a misattributed client name does not
// zero out an otherwise good search.
func (e *Executor) semanticSearch(ctx context.Context, strategy core.RetrievalStrategy, in input) ([]*core.ChunkMatch, error) {
	text := in.enrichment.EnrichedQuery
	if text == "" {
		text = in.query
	}
	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := scaledLimit(strategy.TopKModifier, e.topK) * 2
	matches, err := e.chunks.QueryByVector(ctx, vector, e.minSim, limit)
	if err != nil {
		return nil, err
	}
	labelMatches(matches, StrategySemantic)

	clients := in.enrichment.Entities[core.EntityClients]
	if len(clients) == 0 {
		return matches, nil
	}
	filtered := filterByClients(matches, clients)
	if len(filtered) == 0 {
		e.logger.Debug("client filter emptied semantic results, keeping unfiltered set",
			"clients", clients)
		return matches, nil
	}
	return filtered, nil
}

// metadataSearch lists chunks with a collection-scaled limit so catalog
// queries see every meeting, then scopes by client when one was named.
// The store returns chunks newest meeting first.
func (e *Executor) metadataSearch(ctx context.Context, strategy core.RetrievalStrategy, in input) ([]*core.ChunkMatch, error) {
	clients := in.enrichment.Entities[core.EntityClients]
	limit := e.adaptiveListLimit(ctx, len(clients) > 0)

	chunks, err := e.chunks.Query(ctx, storage.Filter{}, limit)
	if err != nil {
		return nil, err
	}
	matches := asMatches(chunks, StrategyMetadata)
	if len(clients) == 0 {
		return matches, nil
	}
	return filterByClients(matches, clients), nil
}

// entitySearch scopes chunks to the named client and, when the question
// asks about people, to the detected participant names.
func (e *Executor) entitySearch(ctx context.Context, strategy core.RetrievalStrategy, in input) ([]*core.ChunkMatch, error) {
	limit := scaledLimit(strategy.TopKModifier, e.topK)
	scanLimit := e.adaptiveListLimit(ctx, true)

	chunks, err := e.chunks.Query(ctx, storage.Filter{}, scanLimit)
	if err != nil {
		return nil, err
	}
	matches := asMatches(chunks, StrategyEntity)

	if clients := in.enrichment.Entities[core.EntityClients]; len(clients) > 0 {
		matches = filterByClients(matches, clients)
	}
	participants := in.enrichment.Entities[core.EntityParticipants]
	if speakerFocused(strategy) && len(participants) > 0 {
		matches = filterBySpeakers(matches, participants)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// temporalSearch queries a meeting-date window derived from the temporal
// markers. A window that matches nothing is widened once by thirty days,
// but only for queries aimed at the current or previous year; asking for
// a long-gone period should come back empty rather than padded.
func (e *Executor) temporalSearch(ctx context.Context, strategy core.RetrievalStrategy, in input) ([]*core.ChunkMatch, error) {
	limit := scaledLimit(strategy.TopKModifier, e.topK) * 2
	from, to := temporalWindow(in.enrichment.Entities[core.EntityTemporal], e.now())

	chunks, err := e.chunks.Query(ctx, storage.Filter{DateFrom: from, DateTo: to}, limit)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 && !from.IsZero() && relaxableWindow(from, e.now()) {
		relaxed := from.AddDate(0, 0, -30)
		e.logger.Debug("temporal window empty, widening",
			"from", from.Format(core.MeetingDateLayout),
			"relaxed", relaxed.Format(core.MeetingDateLayout))
		chunks, err = e.chunks.Query(ctx, storage.Filter{DateFrom: relaxed, DateTo: to}, limit)
		if err != nil {
			return nil, err
		}
	}

	matches := asMatches(chunks, StrategyTemporal)
	if clients := in.enrichment.Entities[core.EntityClients]; len(clients) > 0 {
		matches = filterByClients(matches, clients)
	}
	return matches, nil
}

// contentSearch finds literal mentions. Exact terms drive per-term store
// scans; every candidate is then fuzzy-scored against the full term set
// and weak or conversational fragments are damped below the floor.
func (e *Executor) contentSearch(ctx context.Context, strategy core.RetrievalStrategy, in input) ([]*core.ChunkMatch, error) {
	terms := extractSearchTerms(in.enrichment)
	limit := scaledLimit(strategy.TopKModifier, e.topK)

	var candidates []*core.Chunk
	if len(terms.exact) > 0 {
		seen := make(map[string]struct{})
		for _, term := range terms.exact {
			found, err := e.chunks.Query(ctx, storage.Filter{Terms: []string{term}}, limit*2)
			if err != nil {
				return nil, err
			}
			for _, chunk := range found {
				if _, ok := seen[chunk.ID]; ok {
					continue
				}
				seen[chunk.ID] = struct{}{}
				candidates = append(candidates, chunk)
			}
		}
	} else {
		scanLimit := e.adaptiveListLimit(ctx, true)
		var err error
		candidates, err = e.chunks.Query(ctx, storage.Filter{}, scanLimit)
		if err != nil {
			return nil, err
		}
	}

	var matches []*core.ChunkMatch
	for _, chunk := range candidates {
		score := fuzzyContentScore(chunk, terms)
		if score < contentScoreFloor {
			continue
		}
		matches = append(matches, &core.ChunkMatch{
			Chunk:    chunk,
			Score:    float32(score),
			Strategy: StrategyContent,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// adaptiveListLimit sizes a listing scan from the collection count so
// small stores are read whole and large ones stay bounded. Scoped scans
// cap at a thousand chunks; catalog scans read at least two hundred.
func (e *Executor) adaptiveListLimit(ctx context.Context, scoped bool) int {
	count, err := e.chunks.CountChunks(ctx)
	if err != nil {
		e.logger.Warn("collection count unavailable, using static limit", "error", err)
		if scoped {
			return 1000
		}
		return 500
	}
	if scoped {
		if count > 1000 {
			return 1000
		}
		if count < 1 {
			return 1
		}
		return count
	}
	if count < 200 {
		return 200
	}
	return count
}

// filterByClients keeps matches whose client metadata is one of the
// detected clients. Comparison goes through the variation set on both
// sides so the store's raw spellings match normalized detections.
func filterByClients(matches []*core.ChunkMatch, clients []string) []*core.ChunkMatch {
	wanted := make(map[string]struct{})
	for _, client := range clients {
		for _, variation := range discover.Variations(client) {
			wanted[strings.ToUpper(variation)] = struct{}{}
		}
	}

	var out []*core.ChunkMatch
	for _, match := range matches {
		name := strings.ToUpper(strings.TrimSpace(match.Chunk.Meta(core.MetaClientName)))
		if name == "" {
			continue
		}
		if _, ok := wanted[name]; ok {
			out = append(out, match)
		}
	}
	return out
}

// filterBySpeakers keeps matches whose speaker contains one of the
// detected participant names, case-insensitively.
func filterBySpeakers(matches []*core.ChunkMatch, participants []string) []*core.ChunkMatch {
	var out []*core.ChunkMatch
	for _, match := range matches {
		speaker := strings.ToLower(match.Chunk.Meta(core.MetaSpeaker))
		if speaker == "" {
			continue
		}
		for _, participant := range participants {
			if strings.Contains(speaker, strings.ToLower(participant)) {
				out = append(out, match)
				break
			}
		}
	}
	return out
}

func speakerFocused(strategy core.RetrievalStrategy) bool {
	return len(strategy.PrimaryFields) == 1 && strategy.PrimaryFields[0] == core.MetaSpeaker
}

func scaledLimit(modifier float64, topK int) int {
	if modifier <= 0 {
		modifier = 1
	}
	limit := int(modifier * float64(topK))
	if limit < 1 {
		limit = 1
	}
	return limit
}

func asMatches(chunks []*core.Chunk, strategy string) []*core.ChunkMatch {
	matches := make([]*core.ChunkMatch, 0, len(chunks))
	for _, chunk := range chunks {
		matches = append(matches, &core.ChunkMatch{
			Chunk:    chunk,
			Score:    neutralScore,
			Strategy: strategy,
		})
	}
	return matches
}

func labelMatches(matches []*core.ChunkMatch, strategy string) {
	for _, match := range matches {
		if match.Strategy == "" {
			match.Strategy = strategy
		}
	}
}
