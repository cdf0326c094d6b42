package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/ktsearch/core"
)

// Context formatting limits. Listing intents include more chunks because
// each contributes one catalog line, not a passage.
const (
	maxPromptContexts        = 4
	maxPromptContextsListing = 8
	defaultTokenBudget       = 3000
)

// contextAnalysis summarizes where the selected chunks come from.
type contextAnalysis struct {
	dominantVideo  string
	dominantClient string
	videos         map[string]int
	clients        map[string]int

	// confidence is the share of chunks belonging to the dominant video.
	// High values mean the answer is grounded in one meeting.
	confidence float64
}

func analyzeContexts(matches []*core.ChunkMatch) contextAnalysis {
	analysis := contextAnalysis{
		videos:  make(map[string]int),
		clients: make(map[string]int),
	}
	for _, match := range matches {
		if video := match.Chunk.Meta(core.MetaVideoName); video != "" {
			analysis.videos[video]++
			if analysis.videos[video] > analysis.videos[analysis.dominantVideo] {
				analysis.dominantVideo = video
			}
		}
		if client := match.Chunk.Meta(core.MetaClientName); client != "" {
			analysis.clients[client]++
			if analysis.clients[client] > analysis.clients[analysis.dominantClient] {
				analysis.dominantClient = client
			}
		}
	}
	if len(matches) > 0 && analysis.dominantVideo != "" {
		analysis.confidence = float64(analysis.videos[analysis.dominantVideo]) / float64(len(matches))
	}
	return analysis
}

// ptStopwords excludes function words from keyword extraction.
var ptStopwords = map[string]bool{
	"sobre": true, "para": true, "com": true, "dos": true, "das": true,
	"uma": true, "umas": true, "uns": true, "que": true, "qual": true,
	"quais": true, "onde": true, "quando": true, "como": true, "quem": true,
	"foi": true, "foram": true, "ser": true, "tem": true, "temos": true,
	"está": true, "estão": true, "pelo": true, "pela": true, "nos": true,
	"nas": true, "esse": true, "essa": true, "este": true, "esta": true,
}

// extractKeywords returns the significant words of a query, lowercased.
func extractKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,?!\"'()")
		if len([]rune(word)) < 3 || ptStopwords[word] {
			continue
		}
		if !seen[word] {
			seen[word] = true
			keywords = append(keywords, word)
		}
	}
	return keywords
}

// formatContexts renders the top chunks into the prompt's context block,
// respecting the per-intent count cap and the token budget. Returns the
// block and the ids of the chunks that made it in.
func formatContexts(matches []*core.ChunkMatch, intent string, tokenModel string) (string, []string) {
	limit := maxPromptContexts
	if intent == intentListing {
		limit = maxPromptContextsListing
	}

	var builder strings.Builder
	var used []string
	budget := defaultTokenBudget

	for i, match := range matches {
		if i >= limit {
			break
		}
		entry := formatContextEntry(i+1, match.Chunk)
		cost := llms.CountTokens(tokenModel, entry)
		if cost > budget && len(used) > 0 {
			break
		}
		budget -= cost
		builder.WriteString(entry)
		used = append(used, match.Chunk.ID)
	}
	return builder.String(), used
}

func formatContextEntry(rank int, chunk *core.Chunk) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "[%d]", rank)
	if video := chunk.Meta(core.MetaVideoName); video != "" {
		fmt.Fprintf(&builder, " Reunião: %s", video)
	}
	if client := chunk.Meta(core.MetaClientName); client != "" {
		fmt.Fprintf(&builder, " | Cliente: %s", client)
	}
	if speaker := chunk.Meta(core.MetaSpeaker); speaker != "" {
		fmt.Fprintf(&builder, " | Falante: %s", speaker)
	}
	if date := chunk.Meta(core.MetaMeetingDate); date != "" {
		fmt.Fprintf(&builder, " | Data: %s", date)
	}
	builder.WriteString("\n")
	builder.WriteString(strings.TrimSpace(chunk.Text))
	builder.WriteString("\n\n")
	return builder.String()
}

// listingEntry is one meeting in the metadata fast-track catalog.
type listingEntry struct {
	video string
	date  string
	url   string
}

// formatListing answers a listing query without the model: unique
// meetings grouped by client, each with its link and date when known,
// closed by a summary line.
func formatListing(matches []*core.ChunkMatch) (string, []string) {
	byClient := make(map[string]map[string]listingEntry)
	var used []string
	seenVideos := make(map[string]bool)

	for _, match := range matches {
		chunk := match.Chunk
		video := chunk.Meta(core.MetaVideoName)
		if video == "" {
			continue
		}
		client := chunk.Meta(core.MetaClientName)
		if client == "" {
			client = "Sem cliente identificado"
		}
		if byClient[client] == nil {
			byClient[client] = make(map[string]listingEntry)
		}
		if _, ok := byClient[client][video]; !ok {
			byClient[client][video] = listingEntry{
				video: video,
				date:  chunk.Meta(core.MetaMeetingDate),
				url:   chunk.Meta(core.MetaOriginalURL),
			}
		}
		if !seenVideos[video] {
			seenVideos[video] = true
			used = append(used, chunk.ID)
		}
	}

	clients := make([]string, 0, len(byClient))
	for client := range byClient {
		clients = append(clients, client)
	}
	sort.Strings(clients)

	var builder strings.Builder
	totalVideos := 0
	for _, client := range clients {
		fmt.Fprintf(&builder, "**%s**\n", client)

		videos := make([]string, 0, len(byClient[client]))
		for video := range byClient[client] {
			videos = append(videos, video)
		}
		sort.Strings(videos)

		for _, video := range videos {
			entry := byClient[client][video]
			fmt.Fprintf(&builder, "- %s", entry.video)
			if entry.date != "" {
				fmt.Fprintf(&builder, " (Data: %s)", entry.date)
			}
			builder.WriteString("\n")
			if entry.url != "" {
				fmt.Fprintf(&builder, "  Link: %s\n", entry.url)
			}
			totalVideos++
		}
		builder.WriteString("\n")
	}
	fmt.Fprintf(&builder, "**Resumo:** %d KTs de %d cliente(s) na base de conhecimento.", totalVideos, len(clients))
	return builder.String(), used
}
