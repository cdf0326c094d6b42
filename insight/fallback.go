package insight

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
)

// noResultsAnswer is the canned answer for an empty context set.
const noResultsAnswer = "Não foram encontrados contextos relevantes na base de conhecimento para responder a esta pergunta. Tente reformular a consulta ou verifique se o assunto foi coberto em algum KT."

// fallbackContextLimit caps how many chunks the templated summary cites.
const fallbackContextLimit = 3

func noResultsResult(start time.Time) *core.InsightResult {
	return &core.InsightResult{
		Insight:        noResultsAnswer,
		Confidence:     0,
		SourcesUsed:    []string{},
		ProcessingTime: time.Since(start),
		FallbackUsed:   true,
	}
}

// fallbackResult builds the templated, non-LLM summary used when the
// model is unavailable or keeps failing: a header, one line per top
// chunk, and a closing line shaped by the query's verb.
func fallbackResult(contexts []*core.ChunkMatch, query string, start time.Time) *core.InsightResult {
	limit := fallbackContextLimit
	if limit > len(contexts) {
		limit = len(contexts)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "**Insights baseados em %d resultado(s) da base de conhecimento:**\n\n", len(contexts))

	used := make([]string, 0, limit)
	for _, match := range contexts[:limit] {
		chunk := match.Chunk
		used = append(used, chunk.ID)

		speaker := chunk.Meta(core.MetaSpeaker)
		if speaker == "" {
			speaker = "Participante"
		}
		builder.WriteString("- " + speaker)
		if stamp := timestampLabel(chunk); stamp != "" {
			builder.WriteString(" (" + stamp + ")")
		}
		builder.WriteString(": " + preview(chunk.Text, 160) + "\n")
	}

	builder.WriteString("\n" + conclusionLine(query))

	confidence := confidenceFallbackFew
	if len(contexts) == 1 {
		confidence = confidenceFallbackOne
	}
	return &core.InsightResult{
		Insight:        builder.String(),
		Confidence:     confidence,
		SourcesUsed:    used,
		ProcessingTime: time.Since(start),
		FallbackUsed:   true,
	}
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

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

// conclusionLine closes the fallback summary according to what the query
// asked for.
func conclusionLine(query string) string {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, problemWords):
		return "Conclusão: os trechos acima relatam os problemas encontrados; consulte as reuniões de origem para o detalhamento completo."
	case containsAny(lower, decisionWords):
		return "Conclusão: as decisões mencionadas acima constam das reuniões citadas; confirme o contexto completo nas gravações."
	case containsAny(lower, participantWords):
		return "Conclusão: os participantes identificados nos trechos estão listados acima."
	default:
		return "Conclusão: os trechos acima são os mais relevantes encontrados para a consulta."
	}
}
