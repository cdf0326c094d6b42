package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier derived from content hashing.
// Chunk ingestion uses it to build stable, deterministic chunk ids.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// QueryType is the closed classification of a search query.
// Exactly one primary type is assigned per query.
type QueryType int

const (
	// QueryTypeSemantic is free-form analytical language answered by
	// dense similarity search.
	QueryTypeSemantic QueryType = iota + 1
	// QueryTypeMetadata is a listing/counting query answered by
	// structured metadata filtering.
	QueryTypeMetadata
	// QueryTypeEntity is a query scoped to a named client or participant.
	QueryTypeEntity
	// QueryTypeTemporal is a query bounded by dates or relative time ranges.
	QueryTypeTemporal
	// QueryTypeContent is a request for verbatim/literal content.
	QueryTypeContent
)

var queryTypeNames = map[QueryType]string{
	QueryTypeSemantic: "SEMANTIC",
	QueryTypeMetadata: "METADATA",
	QueryTypeEntity:   "ENTITY",
	QueryTypeTemporal: "TEMPORAL",
	QueryTypeContent:  "CONTENT",
}

// QueryTypes lists all valid query types in tie-break priority order
// (highest priority first).
func QueryTypes() []QueryType {
	return []QueryType{QueryTypeEntity, QueryTypeMetadata, QueryTypeTemporal, QueryTypeContent, QueryTypeSemantic}
}

// String returns the canonical upper-case name of the query type.
func (t QueryType) String() string {
	if name, ok := queryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("QueryType(%d)", int(t))
}

// Valid reports whether t is one of the five defined query types.
func (t QueryType) Valid() bool {
	_, ok := queryTypeNames[t]
	return ok
}

// ParseQueryType converts a canonical name back into a QueryType.
func ParseQueryType(name string) (QueryType, error) {
	for t, n := range queryTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQueryType, name)
}

// MarshalJSON encodes the query type as its canonical name.
func (t QueryType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueryType, int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a query type from its canonical name.
func (t *QueryType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseQueryType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Entity categories produced by enrichment.
const (
	EntityClients      = "clients"
	EntityTransactions = "transactions"
	EntityModules      = "modules"
	EntityParticipants = "participants"
	EntityTemporal     = "temporal"
)

// QueryContext carries signals extracted during enrichment that downstream
// components use for classification and adaptive sizing.
type QueryContext struct {
	HasSpecificClient  bool     `json:"has_specific_client"`
	ClientCandidates   []string `json:"client_candidates,omitempty"`
	TechnicalTerms     []string `json:"technical_terms,omitempty"`
	IsBroadRequest     bool     `json:"is_broad_request"`
	IsSpecificAnalysis bool     `json:"is_specific_analysis"`
	WordCount          int      `json:"word_count"`
	Complexity         float64  `json:"complexity"`
}

// EnrichmentResult is the output of the entity enrichment stage.
// Built once per query; never mutated after creation.
type EnrichmentResult struct {
	OriginalQuery  string              `json:"original_query"`
	CleanedQuery   string              `json:"cleaned_query"`
	EnrichedQuery  string              `json:"enriched_query"`
	Entities       map[string][]string `json:"entities"`
	Context        QueryContext        `json:"context"`
	Confidence     float64             `json:"confidence"`
	ProcessingTime time.Duration       `json:"processing_time"`
}

// HasEntities reports whether any entity category matched.
func (e *EnrichmentResult) HasEntities() bool {
	for _, values := range e.Entities {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

// RetrievalStrategy describes how the retrieval executor should serve a
// classified query.
type RetrievalStrategy struct {
	UseEmbedding  bool     `json:"use_embedding"`
	PrimaryFields []string `json:"primary_fields,omitempty"`
	TopKModifier  float64  `json:"top_k_modifier"`
	Aggregation   string   `json:"aggregation,omitempty"`
	SortBy        string   `json:"sort_by,omitempty"`
	SearchMethod  string   `json:"search_method,omitempty"`
}

// ClassificationResult is the output of the query classification stage.
type ClassificationResult struct {
	QueryType      QueryType         `json:"query_type"`
	Confidence     float64           `json:"confidence"`
	Strategy       RetrievalStrategy `json:"strategy"`
	Reasoning      string            `json:"reasoning"`
	FallbackTypes  []QueryType       `json:"fallback_types"`
	ProcessingTime time.Duration     `json:"processing_time"`
}

// Metadata keys for transcript chunks. Absent fields are omitted from the
// map entirely; the store never holds empty-valued entries.
const (
	MetaClientName     = "client_name"
	MetaVideoName      = "video_name"
	MetaSpeaker        = "speaker"
	MetaContentType    = "content_type"
	MetaMeetingPhase   = "meeting_phase"
	MetaImpactLevel    = "impact_level"
	MetaSearchableTags = "searchable_tags"
	MetaHighlights     = "highlights"
	MetaDecisions      = "decisions"
	MetaMeetingDate    = "meeting_date"
	MetaTimestampStart = "timestamp_start"
	MetaTimestampEnd   = "timestamp_end"
	MetaOriginalURL    = "original_url"
	MetaSegment        = "segment"
)

// MeetingDateLayout is the time layout of meeting_date metadata values.
// Lexicographic order on values in this layout is chronological order.
const MeetingDateLayout = "2006-01-02"

// Chunk is a bounded fragment of a meeting transcript, the unit of
// retrieval and citation.
type Chunk struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float32         `json:"vector,omitempty"`
	InsertedAt time.Time         `json:"inserted_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Meta returns the metadata value for key, or "" when absent.
func (c *Chunk) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// ChunkMatch is a chunk produced by a retrieval strategy together with its
// relevance score and the strategy that found it.
type ChunkMatch struct {
	Chunk    *Chunk  `json:"chunk"`
	Score    float32 `json:"score"`
	Strategy string  `json:"strategy,omitempty"`
}

// ChunkScore holds the selection-time scores for one chunk. Derived,
// recomputed per selection call, never persisted on its own.
type ChunkScore struct {
	ChunkID         string  `json:"chunk_id"`
	QualityScore    float64 `json:"quality_score"`
	DiversityScore  float64 `json:"diversity_score"`
	CombinedScore   float64 `json:"combined_score"`
	SelectionReason string  `json:"selection_reason"`
}

// SelectionResult is the output of the chunk selection stage.
type SelectionResult struct {
	SelectedChunks      []*ChunkMatch `json:"selected_chunks"`
	ChunkScores         []ChunkScore  `json:"chunk_scores"`
	TotalCandidates     int           `json:"total_candidates"`
	SelectionStrategy   string        `json:"selection_strategy"`
	ProcessingTime      time.Duration `json:"processing_time"`
	QualityThresholdMet bool          `json:"quality_threshold_met"`
}

// InsightResult is the output of the insight synthesis stage.
type InsightResult struct {
	Insight        string        `json:"insight"`
	Confidence     float64       `json:"confidence"`
	SourcesUsed    []string      `json:"sources_used"`
	ProcessingTime time.Duration `json:"processing_time"`
	FallbackUsed   bool          `json:"fallback_used"`
}

// ResponseContext is one sourced context in a SearchResponse.
type ResponseContext struct {
	Rank            int     `json:"rank"`
	Content         string  `json:"content"`
	Client          string  `json:"client,omitempty"`
	VideoName       string  `json:"video_name,omitempty"`
	Speaker         string  `json:"speaker,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"`
	QualityScore    float64 `json:"quality_score"`
	RelevanceReason string  `json:"relevance_reason,omitempty"`
	OriginalURL     string  `json:"original_url,omitempty"`
}

// SummaryStats summarizes a search for diagnostics and display.
type SummaryStats struct {
	TotalChunksFound    int      `json:"total_chunks_found"`
	ChunksSelected      int      `json:"chunks_selected"`
	ClientsInvolved     []string `json:"clients_involved,omitempty"`
	QueryType           string   `json:"query_type"`
	SelectionStrategy   string   `json:"selection_strategy,omitempty"`
	QualityThresholdMet bool     `json:"quality_threshold_met"`
}

// Display markers used in SearchResponse.QueryType for terminal outcomes
// that are not classifications.
const (
	ResponseTypeEarlyExit = "EARLY_EXIT"
	ResponseTypeError     = "ERROR"
)

// SearchResponse is the terminal, externally visible result of a search.
// A response with Success=false always carries a non-empty ErrorMessage.
type SearchResponse struct {
	Answer         string            `json:"answer"`
	Contexts       []ResponseContext `json:"contexts"`
	QueryType      string            `json:"query_type"`
	ProcessingTime time.Duration     `json:"processing_time"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Details        string            `json:"details,omitempty"`
	Stats          SummaryStats      `json:"stats"`
}

// EntityInfo describes one known client/entity discovered from the store.
type EntityInfo struct {
	Name              string    `json:"name"`
	Normalized        string    `json:"normalized"`
	Variations        []string  `json:"variations"`
	ChunkCount        int       `json:"chunk_count"`
	LatestMeetingDate string    `json:"latest_meeting_date,omitempty"`
	Modules           []string  `json:"modules,omitempty"`
	Phases            []string  `json:"phases,omitempty"`
	FirstDiscovered   time.Time `json:"first_discovered"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Checkpoint records resumable progress for long-running maintenance jobs.
type Checkpoint struct {
	// ProcessorType identifies the job that owns this checkpoint.
	ProcessorType string

	// LastChunkID is the ID of the last chunk the job finished processing.
	LastChunkID string

	// Processed is the running count of chunks handled so far.
	Processed int

	// UpdatedAt is when the checkpoint was last saved.
	UpdatedAt time.Time
}
