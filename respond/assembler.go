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


// Package respond assembles the terminal SearchResponse a caller sees.
//
// The assembler is stateless: it shapes the insight, the selected chunks
// and the bookkeeping of earlier stages into display form. It also builds
// the two special responses — the unknown-entity answer, which is a
// successful response listing what the base does know, and the error
// response, the single place a pipeline failure becomes caller-visible.
package respond

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// contentPreviewLimit caps the context content shown in a response.
const contentPreviewLimit = 300

// Assemble builds the success response from the stage outputs.
func Assemble(insight *core.InsightResult, selection *core.SelectionResult, classification *core.ClassificationResult, query string, startedAt time.Time) *core.SearchResponse {
	contexts := buildContexts(selection)
	clients := uniqueClients(selection)

	return &core.SearchResponse{
		Answer:         insight.Insight,
		Contexts:       contexts,
		QueryType:      classification.QueryType.String(),
		ProcessingTime: time.Since(startedAt),
		Success:        true,
		Details:        detailsLine(selection, clients),
		Stats: core.SummaryStats{
			TotalChunksFound:    selection.TotalCandidates,
			ChunksSelected:      len(selection.SelectedChunks),
			ClientsInvolved:     clients,
			QueryType:           classification.QueryType.String(),
			SelectionStrategy:   selection.SelectionStrategy,
			QualityThresholdMet: selection.QualityThresholdMet,
		},
	}
}

// UnknownEntityResponse answers a query about a client the base does not
// know. This is a successful outcome: the caller learns what IS known
// instead of getting an error.
func UnknownEntityResponse(query string, discovered map[string]*core.EntityInfo, startedAt time.Time) *core.SearchResponse {
	var builder strings.Builder
	builder.WriteString("**Cliente não encontrado na base de conhecimento.**\n\n")

	names := make([]string, 0, len(discovered))
	for _, info := range discovered {
		names = append(names, info.Name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		builder.WriteString("Clientes disponíveis:\n")
		for _, name := range names {
			builder.WriteString("- " + name + "\n")
		}
		builder.WriteString("\nReformule a consulta usando um dos clientes acima.")
	} else {
		builder.WriteString("A base de conhecimento ainda não possui KTs indexados.")
	}

	return &core.SearchResponse{
		Answer:         builder.String(),
		Contexts:       []core.ResponseContext{},
		QueryType:      core.ResponseTypeEarlyExit,
		ProcessingTime: time.Since(startedAt),
		Success:        true,
		Stats: core.SummaryStats{
			QueryType:       core.ResponseTypeEarlyExit,
			ClientsInvolved: names,
		},
	}
}

// ErrorResponse converts a pipeline failure into the terminal response
// shape. The message is client-safe; internal detail stays in the logs.
func ErrorResponse(query string, startedAt time.Time, err error) *core.SearchResponse {
	message := "erro interno ao processar a consulta"
	if err != nil {
		message = err.Error()
	}
	return &core.SearchResponse{
		Answer:         "Não foi possível processar a consulta no momento. Tente novamente em instantes.",
		Contexts:       []core.ResponseContext{},
		QueryType:      core.ResponseTypeError,
		ProcessingTime: time.Since(startedAt),
		Success:        false,
		ErrorMessage:   message,
		Stats:          core.SummaryStats{QueryType: core.ResponseTypeError},
	}
}

func buildContexts(selection *core.SelectionResult) []core.ResponseContext {
	scoreByID := make(map[string]core.ChunkScore, len(selection.ChunkScores))
	for _, score := range selection.ChunkScores {
		scoreByID[score.ChunkID] = score
	}

	contexts := make([]core.ResponseContext, 0, len(selection.SelectedChunks))
	for i, match := range selection.SelectedChunks {
		chunk := match.Chunk
		score := scoreByID[chunk.ID]

		contexts = append(contexts, core.ResponseContext{
			Rank:            i + 1,
			Content:         preview(chunk.Text),
			Client:          chunk.Meta(core.MetaClientName),
			VideoName:       chunk.Meta(core.MetaVideoName),
			Speaker:         chunk.Meta(core.MetaSpeaker),
			Timestamp:       timestampLabel(chunk),
			QualityScore:    score.QualityScore,
			RelevanceReason: score.SelectionReason,
			OriginalURL:     chunk.Meta(core.MetaOriginalURL),
		})
	}
	return contexts
}

// detailsLine summarizes the grounding: context count, distinct meetings
// and distinct clients when there is more than one of either.
func detailsLine(selection *core.SelectionResult, clients []string) string {
	if len(selection.SelectedChunks) == 0 {
		return ""
	}

	videos := make(map[string]struct{})
	for _, match := range selection.SelectedChunks {
		if video := match.Chunk.Meta(core.MetaVideoName); video != "" {
			videos[video] = struct{}{}
		}
	}

	line := fmt.Sprintf("Informações baseadas em %d contexto(s)", len(selection.SelectedChunks))
	if len(videos) > 1 {
		line += fmt.Sprintf(" de %d reuniões diferentes", len(videos))
	}
	if len(clients) > 1 {
		line += fmt.Sprintf(" envolvendo %d clientes", len(clients))
	}
	return line
}

func uniqueClients(selection *core.SelectionResult) []string {
	seen := make(map[string]struct{})
	var clients []string
	for _, match := range selection.SelectedChunks {
		client := match.Chunk.Meta(core.MetaClientName)
		if client == "" {
			continue
		}
		if _, ok := seen[client]; ok {
			continue
		}
		seen[client] = struct{}{}
		clients = append(clients, client)
	}
	sort.Strings(clients)
	return clients
}

func timestampLabel(chunk *core.Chunk) string {
	from := chunk.Meta(core.MetaTimestampStart)
	to := chunk.Meta(core.MetaTimestampEnd)
	switch {
	case from != "" && to != "":
		return from + "-" + to
	case from != "":
		return from
	default:
		return ""
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= contentPreviewLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:contentPreviewLimit])) + "..."
}

// AnalyzeComplexity produces the diagnostics map logged alongside a
// search. It never influences control flow.
func AnalyzeComplexity(enrichment *core.EnrichmentResult, classification *core.ClassificationResult) map[string]any {
	analysis := map[string]any{}
	if enrichment != nil {
		analysis["word_count"] = enrichment.Context.WordCount
		analysis["complexity"] = enrichment.Context.Complexity
		analysis["has_specific_client"] = enrichment.Context.HasSpecificClient
		analysis["is_broad_request"] = enrichment.Context.IsBroadRequest
		analysis["entity_categories"] = len(enrichment.Entities)
		analysis["enrichment_confidence"] = enrichment.Confidence
	}
	if classification != nil {
		analysis["query_type"] = classification.QueryType.String()
		analysis["classification_confidence"] = classification.Confidence
		analysis["fallback_types"] = len(classification.FallbackTypes)
	}
	return analysis
}
