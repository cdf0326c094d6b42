package selection

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// DefaultQualityThreshold is the floor a candidate must clear to enter
// greedy selection. If nothing clears it the single best candidate is
// kept so a weak result set still produces an answer.
const DefaultQualityThreshold = 0.3

// thresholdMetRatio is the share of selected chunks that must clear the
// quality threshold for QualityThresholdMet.
const thresholdMetRatio = 0.8

// Diversity penalties applied against the already-selected set.
const (
	diversitySameSegment = 0.4
	diversitySameSpeaker = 0.2
	diversitySamePhase   = 0.15
	diversityNearDup     = 0.3
	nearDupOverlap       = 0.6
)

// Selection strategy names recorded on results.
const (
	StrategyNoCandidates     = "no_candidates"
	StrategyMetadata         = "metadata_completeness"
	StrategySemantic         = "quality_similarity_diversity"
	StrategyEntity           = "entity_focused"
	StrategyTemporal         = "temporal_ordered"
	StrategyContent          = "content_relevance"
	StrategyGeneralDiversity = "general_quality_diversity"
)

// typeWeights returns the quality/diversity combination weights for a
// query type. Listing queries trust quality; verbatim-content queries
// spread across sources.
func typeWeights(queryType core.QueryType) (quality, diversity float64) {
	switch queryType {
	case core.QueryTypeMetadata:
		return 0.8, 0.2
	case core.QueryTypeContent:
		return 0.5, 0.5
	default:
		return 0.6, 0.4
	}
}

// Selector scores retrieval candidates and greedily picks the top K.
type Selector struct {
	logger    *slog.Logger
	threshold float64
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger used for selection diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQualityThreshold overrides the minimum quality a candidate needs to
// enter selection.
func WithQualityThreshold(threshold float64) Option {
	return func(s *Selector) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

// NewSelector creates a Selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		logger:    slog.Default().With("component", "selector"),
		threshold: DefaultQualityThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select scores the candidates and greedily picks up to desiredCount
// chunks, re-scoring diversity against the growing selected set after
// every pick. Never returns nil and never selects more chunks than
// min(desiredCount, len(candidates)).
func (s *Selector) Select(ctx context.Context, candidates []*core.ChunkMatch, queryType core.QueryType, desiredCount int, enrichment *core.EnrichmentResult) *core.SelectionResult {
	start := time.Now()

	if len(candidates) == 0 {
		return &core.SelectionResult{
			SelectedChunks:    []*core.ChunkMatch{},
			ChunkScores:       []core.ChunkScore{},
			SelectionStrategy: StrategyNoCandidates,
			ProcessingTime:    time.Since(start),
		}
	}
	if desiredCount < 1 {
		desiredCount = 1
	}

	in := buildQueryInput(enrichment)
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, match := range candidates {
		if match == nil || match.Chunk == nil {
			continue
		}
		quality := qualityScore(match, in)
		if queryType == core.QueryTypeSemantic {
			// Semantic retrieval carries a real similarity; blend it in.
			quality = 0.7*quality + 0.3*float64(match.Score)
		}
		scored = append(scored, scoredCandidate{match: match, quality: quality})
	}
	total := len(scored)

	pool := s.applyThreshold(scored)
	selected, scores := s.pickGreedy(ctx, pool, queryType, desiredCount)

	if queryType == core.QueryTypeTemporal {
		sortByMeetingDate(selected, scores)
	}

	result := &core.SelectionResult{
		SelectedChunks:      selected,
		ChunkScores:         scores,
		TotalCandidates:     total,
		SelectionStrategy:   strategyName(queryType),
		ProcessingTime:      time.Since(start),
		QualityThresholdMet: s.thresholdMet(scores),
	}
	s.logger.Debug("selection complete",
		"candidates", total,
		"selected", len(selected),
		"strategy", result.SelectionStrategy,
		"threshold_met", result.QualityThresholdMet)
	return result
}

type scoredCandidate struct {
	match   *core.ChunkMatch
	quality float64
}

// applyThreshold drops candidates below the quality floor. When every
// candidate is below it, the single best one survives.
func (s *Selector) applyThreshold(scored []scoredCandidate) []scoredCandidate {
	pool := make([]scoredCandidate, 0, len(scored))
	for _, candidate := range scored {
		if candidate.quality >= s.threshold {
			pool = append(pool, candidate)
		}
	}
	if len(pool) > 0 {
		return pool
	}

	best := scored[0]
	for _, candidate := range scored[1:] {
		if candidate.quality > best.quality {
			best = candidate
		}
	}
	s.logger.Debug("no candidate cleared the quality threshold, keeping best",
		"quality", fmt.Sprintf("%.2f", best.quality))
	return []scoredCandidate{best}
}

// pickGreedy repeatedly takes the candidate with the best combined score,
// recomputing the remaining candidates' diversity against the updated
// selected set after each pick.
func (s *Selector) pickGreedy(ctx context.Context, pool []scoredCandidate, queryType core.QueryType, desiredCount int) ([]*core.ChunkMatch, []core.ChunkScore) {
	wq, wd := typeWeights(queryType)
	tracker := newDiversityTracker()

	selected := make([]*core.ChunkMatch, 0, desiredCount)
	scores := make([]core.ChunkScore, 0, desiredCount)
	remaining := append([]scoredCandidate(nil), pool...)

	for len(selected) < desiredCount && len(remaining) > 0 {
		if ctx.Err() != nil {
			break
		}

		bestIdx := 0
		bestCombined := -1.0
		bestDiversity := 0.0
		for i, candidate := range remaining {
			diversity := tracker.score(candidate.match.Chunk)
			combined := wq*candidate.quality + wd*diversity
			if combined > bestCombined {
				bestIdx, bestCombined, bestDiversity = i, combined, diversity
			}
		}

		winner := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		tracker.add(winner.match.Chunk)

		selected = append(selected, winner.match)
		scores = append(scores, core.ChunkScore{
			ChunkID:         winner.match.Chunk.ID,
			QualityScore:    winner.quality,
			DiversityScore:  bestDiversity,
			CombinedScore:   bestCombined,
			SelectionReason: fmt.Sprintf("quality %.2f, diversity %.2f, position %d", winner.quality, bestDiversity, len(selected)),
		})
	}
	return selected, scores
}

func (s *Selector) thresholdMet(scores []core.ChunkScore) bool {
	if len(scores) == 0 {
		return false
	}
	cleared := 0
	for _, score := range scores {
		if score.QualityScore >= s.threshold {
			cleared++
		}
	}
	return float64(cleared)/float64(len(scores)) >= thresholdMetRatio
}

func strategyName(queryType core.QueryType) string {
	switch queryType {
	case core.QueryTypeMetadata:
		return StrategyMetadata
	case core.QueryTypeSemantic:
		return StrategySemantic
	case core.QueryTypeEntity:
		return StrategyEntity
	case core.QueryTypeTemporal:
		return StrategyTemporal
	case core.QueryTypeContent:
		return StrategyContent
	default:
		return StrategyGeneralDiversity
	}
}

// diversityTracker remembers which segments, speakers and phases are
// already represented, and the word sets of selected chunks for
// near-duplicate detection.
type diversityTracker struct {
	segments map[string]struct{}
	speakers map[string]struct{}
	phases   map[string]struct{}
	wordSets []map[string]struct{}
}

func newDiversityTracker() *diversityTracker {
	return &diversityTracker{
		segments: make(map[string]struct{}),
		speakers: make(map[string]struct{}),
		phases:   make(map[string]struct{}),
	}
}

var segmentPattern = regexp.MustCompile(`segments_(\d+)`)

// segmentKey identifies the transcript segment a chunk came from. Chunk
// ids embed a segment ordinal; the video name disambiguates ordinals
// across meetings.
func segmentKey(chunk *core.Chunk) string {
	groups := segmentPattern.FindStringSubmatch(chunk.ID)
	if groups == nil {
		return ""
	}
	return chunk.Meta(core.MetaVideoName) + "#" + groups[1]
}

func (d *diversityTracker) score(chunk *core.Chunk) float64 {
	score := 1.0
	if key := segmentKey(chunk); key != "" {
		if _, ok := d.segments[key]; ok {
			score -= diversitySameSegment
		}
	}
	if speaker := strings.ToLower(chunk.Meta(core.MetaSpeaker)); speaker != "" {
		if _, ok := d.speakers[speaker]; ok {
			score -= diversitySameSpeaker
		}
	}
	if phase := strings.ToLower(chunk.Meta(core.MetaMeetingPhase)); phase != "" {
		if _, ok := d.phases[phase]; ok {
			score -= diversitySamePhase
		}
	}

	words := wordSet(chunk.Text)
	for _, selected := range d.wordSets {
		if jaccard(words, selected) > nearDupOverlap {
			score -= diversityNearDup
			break
		}
	}
	return clamp01(score)
}

func (d *diversityTracker) add(chunk *core.Chunk) {
	if key := segmentKey(chunk); key != "" {
		d.segments[key] = struct{}{}
	}
	if speaker := strings.ToLower(chunk.Meta(core.MetaSpeaker)); speaker != "" {
		d.speakers[speaker] = struct{}{}
	}
	if phase := strings.ToLower(chunk.Meta(core.MetaMeetingPhase)); phase != "" {
		d.phases[phase] = struct{}{}
	}
	d.wordSets = append(d.wordSets, wordSet(chunk.Text))
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,?!\"()")
		if len([]rune(word)) > 3 {
			set[word] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// sortByMeetingDate orders selected chunks newest meeting first, moving
// the per-chunk scores with them.
func sortByMeetingDate(selected []*core.ChunkMatch, scores []core.ChunkScore) {
	order := make([]int, len(selected))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return selected[order[i]].Chunk.Meta(core.MetaMeetingDate) > selected[order[j]].Chunk.Meta(core.MetaMeetingDate)
	})

	sortedMatches := make([]*core.ChunkMatch, len(selected))
	sortedScores := make([]core.ChunkScore, len(scores))
	for to, from := range order {
		sortedMatches[to] = selected[from]
		sortedScores[to] = scores[from]
	}
	copy(selected, sortedMatches)
	copy(scores, sortedScores)
}
