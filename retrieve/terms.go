package retrieve

import (
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
)

// contentScoreFloor is the minimum fuzzy score a chunk must reach to count
// as a content match. Matches below it are noise.
const contentScoreFloor = 0.3

// searchTerms groups the literal matching terms extracted from a query by
// how strictly they must match.
type searchTerms struct {
	// exact terms must appear verbatim: quoted phrases and transaction codes.
	exact []string

	// fuzzy terms are client name variations; any spelling counts.
	fuzzy []string

	// partial terms are the significant query words; each hit adds a little.
	partial []string
}

var quotedPhrasePattern = regexp.MustCompile(`["']([^"']{2,})["']`)

var partialTermStopwords = map[string]bool{
	"sobre": true, "para": true, "com": true, "dos": true, "das": true,
	"que": true, "qual": true, "quais": true, "onde": true, "quando": true,
	"como": true, "foram": true, "foi": true, "tem": true, "temos": true,
	"liste": true, "listar": true, "mostre": true, "todos": true, "todas": true,
	"mencionaram": true, "mencionado": true, "mencionada": true,
}

// extractSearchTerms builds the literal term set for content search from the
// enrichment output. Quoted phrases come from the original query so casing
// and accents survive cleaning.
func extractSearchTerms(enrichment *core.EnrichmentResult) searchTerms {
	var terms searchTerms

	for _, groups := range quotedPhrasePattern.FindAllStringSubmatch(enrichment.OriginalQuery, -1) {
		terms.exact = append(terms.exact, groups[1])
	}
	terms.exact = append(terms.exact, enrichment.Entities[core.EntityTransactions]...)

	for _, client := range enrichment.Entities[core.EntityClients] {
		terms.fuzzy = append(terms.fuzzy, discover.Variations(client)...)
	}

	for _, word := range strings.Fields(enrichment.CleanedQuery) {
		word = strings.Trim(word, ".,?!\"()")
		if len([]rune(word)) <= 3 || partialTermStopwords[word] {
			continue
		}
		terms.partial = append(terms.partial, word)
	}
	return terms
}

// conversationalPattern matches filler fragments ("Beleza?", "Ok.", "Tá.")
// that carry no content and should never win a literal search.
var conversationalPattern = regexp.MustCompile(`(?i)^\s*(beleza|ok|okay|tá|ta|certo|perfeito|legal|show|isso|sim|não|nao|uhum|aham)\s*[.?!]*\s*$`)

// fuzzyContentScore rates how well a chunk answers a literal content query.
// Exact terms weigh most, client spellings next, plain word hits least.
// Short or conversational fragments are damped hard so a stray code mention
// in filler talk does not outrank real content.
func fuzzyContentScore(chunk *core.Chunk, terms searchTerms) float64 {
	text := strings.ToLower(chunk.Text)
	score := 0.0

	for _, term := range terms.exact {
		lower := strings.ToLower(term)
		if strings.Contains(text, lower) || metadataContains(chunk, lower) {
			score += 0.4
		}
	}

	client := strings.ToLower(chunk.Meta(core.MetaClientName))
	for _, variation := range terms.fuzzy {
		lower := strings.ToLower(variation)
		if client == lower {
			score += 0.3
			break
		}
		if client != "" && strings.Contains(client, lower) {
			score += 0.2
			break
		}
	}

	for _, term := range terms.partial {
		if strings.Contains(text, term) {
			score += 0.1
		}
	}

	switch runes := len([]rune(chunk.Text)); {
	case runes < 20:
		score *= 0.1
	case runes < 50:
		score *= 0.4
	}
	if conversationalPattern.MatchString(chunk.Text) {
		score *= 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func metadataContains(chunk *core.Chunk, lowerTerm string) bool {
	for _, value := range chunk.Metadata {
		if strings.Contains(strings.ToLower(value), lowerTerm) {
			return true
		}
	}
	return false
}

// Month names as enrichment emits them in specific_<month>_<year> markers.
var monthNumbers = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "março": time.March,
	"abril": time.April, "maio": time.May, "junho": time.June,
	"julho": time.July, "agosto": time.August, "setembro": time.September,
	"outubro": time.October, "novembro": time.November, "dezembro": time.December,
}

// temporalWindow converts the enrichment temporal markers into a meeting
// date range. A specific month beats relative markers; among relative
// markers the narrowest window wins. Unparseable markers leave the bounds
// open rather than guessing.
func temporalWindow(markers []string, now time.Time) (from, to time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, marker := range markers {
		if !strings.HasPrefix(marker, "specific_") {
			continue
		}
		parts := strings.SplitN(marker, "_", 3)
		if len(parts) != 3 {
			continue
		}
		month, ok := monthNumbers[parts[1]]
		if !ok {
			continue
		}
		year, err := time.Parse("2006", parts[2])
		if err != nil {
			continue
		}
		from = time.Date(year.Year(), month, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	}

	for _, marker := range markers {
		if !strings.HasPrefix(marker, "recent_") {
			continue
		}
		parts := strings.SplitN(marker, "_", 3)
		if len(parts) != 3 {
			continue
		}
		n := 0
		for _, r := range parts[1] {
			if r < '0' || r > '9' {
				n = 0
				break
			}
			n = n*10 + int(r-'0')
		}
		if n <= 0 {
			continue
		}
		switch {
		case strings.HasPrefix(parts[2], "dia"):
			return today.AddDate(0, 0, -n), time.Time{}
		case strings.HasPrefix(parts[2], "semana"):
			return today.AddDate(0, 0, -7*n), time.Time{}
		case strings.HasPrefix(parts[2], "mes"), strings.HasPrefix(parts[2], "mês"):
			return today.AddDate(0, -n, 0), time.Time{}
		}
	}

	for _, marker := range markers {
		switch marker {
		case "hoje":
			return today, time.Time{}
		case "ontem":
			return today.AddDate(0, 0, -1), today
		case "semana passada":
			return today.AddDate(0, 0, -14), today.AddDate(0, 0, -7)
		case "semana":
			return today.AddDate(0, 0, -7), time.Time{}
		case "mês passado":
			first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			return first.AddDate(0, -1, 0), first
		case "mês":
			return today.AddDate(0, -1, 0), time.Time{}
		case "recente", "recentes":
			return today.AddDate(0, 0, -30), time.Time{}
		}
	}
	return time.Time{}, time.Time{}
}

// relaxableWindow reports whether an empty temporal window may be widened.
// Only windows aimed at the current or previous year qualify; a query about
// a long-gone period should stay empty.
func relaxableWindow(from, now time.Time) bool {
	diff := now.Year() - from.Year()
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}
