package discover

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/ktsearch/core"
)

// accentFolder maps accented characters to their ASCII base so entity names
// match regardless of how carefully the transcript spelled them.
var accentFolder = strings.NewReplacer(
	"À", "A", "Á", "A", "Â", "A", "Ã", "A", "Ä", "A",
	"È", "E", "É", "E", "Ê", "E", "Ë", "E",
	"Ì", "I", "Í", "I", "Î", "I", "Ï", "I",
	"Ò", "O", "Ó", "O", "Ô", "O", "Õ", "O", "Ö", "O",
	"Ù", "U", "Ú", "U", "Û", "U", "Ü", "U",
	"Ç", "C", "Ñ", "N",
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ò", "o", "ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

func foldAccents(text string) string {
	return accentFolder.Replace(text)
}

// normalizeEntity produces the canonical cache key for an entity name.
func normalizeEntity(name string) string {
	return strings.ToUpper(foldAccents(name))
}

// knownAliases carries spellings seen in real transcripts that the
// mechanical case and accent variants would not produce.
var knownAliases = map[string][]string{
	"VÍSSIMO":        {"VISSIMO", "Víssimo", "víssimo", "vissimo", "Vissimo"},
	"ARCO":           {"Arco", "arco"},
	"DEXCO":          {"Dexco", "dexco"},
	"KT_SUSTENTACAO": {"KT SUSTENTAÇÃO", "SUSTENTACAO", "SUSTENTAÇÃO"},
}

// Variations returns every spelling of an entity name worth matching
// against: the name itself, its accent-folded form, case variants of both,
// a specials-stripped form and any known aliases. The result is sorted so
// repeated calls agree.
func Variations(name string) []string {
	if name == "" || strings.EqualFold(name, "UNKNOWN") {
		return nil
	}

	set := make(map[string]struct{})
	add := func(v string) {
		if v != "" {
			set[v] = struct{}{}
		}
	}

	folded := foldAccents(name)
	for _, base := range []string{name, folded} {
		add(base)
		add(strings.ToUpper(base))
		add(strings.ToLower(base))
		add(capitalize(base))
	}

	stripped := stripSpecials(name)
	add(stripped)
	add(strings.ToUpper(stripped))
	add(strings.ToLower(stripped))

	// Space and underscore trade places freely in transcript client names.
	if strings.Contains(name, " ") {
		swapped := strings.ReplaceAll(name, " ", "_")
		add(swapped)
		add(strings.ToUpper(swapped))
		add(strings.ToLower(swapped))
	}
	if strings.Contains(name, "_") {
		swapped := strings.ReplaceAll(name, "_", " ")
		add(swapped)
		add(strings.ToUpper(swapped))
		add(strings.ToLower(swapped))
	}

	upperName := strings.ToUpper(name)
	for standard, aliases := range knownAliases {
		if !aliasGroupMatches(standard, aliases, upperName) {
			continue
		}
		add(standard)
		for _, alias := range aliases {
			add(alias)
		}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func aliasGroupMatches(standard string, aliases []string, upperName string) bool {
	if upperName == standard {
		return true
	}
	for _, alias := range aliases {
		if strings.ToUpper(alias) == upperName {
			return true
		}
	}
	return false
}

// capitalize uppercases the first rune and lowercases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// stripSpecials drops everything but letters, digits and underscores.
func stripSpecials(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match is one discovered entity that matched a query term.
type Match struct {
	// Name is the normalized entity name.
	Name string `json:"name"`

	// Score is the match confidence. Exact matches score 1.0, normalized
	// and variation matches slightly less, fuzzy matches by length ratio.
	Score float64 `json:"score"`
}

// Match score tiers. Exact beats normalized beats variation beats fuzzy.
const (
	scoreExactName       = 1.0
	scoreExactNormalized = 0.95
	scoreExactVariation  = 0.9
	fuzzyFloor           = 0.3
)

// FindMatches returns the discovered entities matching term, best first.
// Ties sort by name so the order is stable.
func (d *Discovery) FindMatches(ctx context.Context, term string) ([]Match, error) {
	discovered, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, info := range discovered {
		if score := exactMatchScore(term, info); score > 0 {
			matches = append(matches, Match{Name: info.Normalized, Score: score})
			continue
		}
		if score := fuzzyMatchScore(term, info); score > fuzzyFloor {
			matches = append(matches, Match{Name: info.Normalized, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})

	if len(matches) > 0 {
		d.logger.Debug("entity matches",
			"term", term, "matches", len(matches), "best", matches[0].Name)
	}
	return matches, nil
}

func exactMatchScore(term string, info *core.EntityInfo) float64 {
	upper := strings.ToUpper(term)

	if upper == strings.ToUpper(info.Name) {
		return scoreExactName
	}
	if upper == info.Normalized {
		return scoreExactNormalized
	}
	for _, variation := range info.Variations {
		if upper == strings.ToUpper(variation) {
			return scoreExactVariation
		}
	}
	return 0
}

// fuzzyMatchScore scores partial matches by rune-length ratio. A direct
// substring hit weighs more than an accent-folded one, which weighs more
// than the reverse containment.
func fuzzyMatchScore(term string, info *core.EntityInfo) float64 {
	lower := strings.ToLower(term)
	folded := strings.ToLower(foldAccents(term))

	best := 0.0
	for _, variation := range info.Variations {
		varLower := strings.ToLower(variation)
		varFolded := strings.ToLower(foldAccents(variation))

		if strings.Contains(varLower, lower) {
			if score := ratio(lower, varLower) * 0.8; score > best {
				best = score
			}
		}
		if strings.Contains(varFolded, folded) {
			if score := ratio(folded, varFolded) * 0.7; score > best {
				best = score
			}
		}
		if strings.Contains(lower, varLower) {
			if score := ratio(varLower, lower) * 0.6; score > best {
				best = score
			}
		}
	}
	return best
}

// ratio is the rune-length proportion of part to whole.
func ratio(part, whole string) float64 {
	if whole == "" {
		return 0
	}
	return float64(utf8.RuneCountInString(part)) / float64(utf8.RuneCountInString(whole))
}

// clientBoost is added to the retrieval score of a chunk whose client is
// one the query asked about.
const clientBoost = 0.1

// EnrichMatches boosts the retrieval score of chunks belonging to a client
// the query names. Scores stay capped at 1. The matches slice is modified
// in place and returned.
func (d *Discovery) EnrichMatches(ctx context.Context, matches []*core.ChunkMatch, queryClients []string) []*core.ChunkMatch {
	if len(matches) == 0 || len(queryClients) == 0 {
		return matches
	}

	discovered, err := d.Discover(ctx)
	if err != nil {
		d.logger.Warn("skipping match enrichment", "error", err)
		return matches
	}

	wanted := make(map[string]struct{}, len(queryClients))
	for _, client := range queryClients {
		wanted[strings.ToUpper(client)] = struct{}{}
	}

	boosted := 0
	for _, match := range matches {
		raw := match.Chunk.Meta(core.MetaClientName)
		if raw == "" {
			continue
		}
		info := entityForName(discovered, raw)
		if info == nil {
			continue
		}
		if variationsIntersect(info.Variations, wanted) {
			match.Score += clientBoost
			if match.Score > 1 {
				match.Score = 1
			}
			boosted++
		}
	}

	if boosted > 0 {
		d.logger.Debug("boosted client-relevant chunks",
			"boosted", boosted, "total", len(matches))
	}
	return matches
}

func variationsIntersect(variations []string, wanted map[string]struct{}) bool {
	for _, v := range variations {
		if _, ok := wanted[strings.ToUpper(v)]; ok {
			return true
		}
	}
	return false
}

// entityForName resolves a raw client value to its discovered entity, first
// by normalized key, then by variation scan.
func entityForName(discovered map[string]*core.EntityInfo, name string) *core.EntityInfo {
	if info, ok := discovered[normalizeEntity(name)]; ok {
		return info
	}
	upper := strings.ToUpper(name)
	for _, info := range discovered {
		for _, variation := range info.Variations {
			if strings.ToUpper(variation) == upper {
				return info
			}
		}
	}
	return nil
}

// FilterByEntity narrows a mixed-client result set to the entity the query
// is actually about. When the results already belong to a single entity, or
// the query names none of the entities present, the input is returned
// unchanged.
func FilterByEntity(matches []*core.ChunkMatch, discovered map[string]*core.EntityInfo, query string) []*core.ChunkMatch {
	if len(matches) == 0 || len(discovered) == 0 {
		return matches
	}

	present := make(map[string]struct{})
	for _, match := range matches {
		raw := match.Chunk.Meta(core.MetaClientName)
		if raw == "" {
			continue
		}
		if info := entityForName(discovered, raw); info != nil {
			present[info.Normalized] = struct{}{}
		}
	}
	if len(present) < 2 {
		return matches
	}

	winner := bestQueryEntity(query, discovered, present)
	if winner == "" {
		return matches
	}

	filtered := make([]*core.ChunkMatch, 0, len(matches))
	for _, match := range matches {
		info := entityForName(discovered, match.Chunk.Meta(core.MetaClientName))
		if info != nil && info.Normalized == winner {
			filtered = append(filtered, match)
		}
	}
	return filtered
}

// bestQueryEntity picks the present entity whose longest variation appears
// in the query. Equal lengths resolve to the lexicographically smaller key.
func bestQueryEntity(query string, discovered map[string]*core.EntityInfo, present map[string]struct{}) string {
	queryUpper := strings.ToUpper(foldAccents(query))

	winner := ""
	bestLen := 0
	for key := range present {
		info := discovered[key]
		if info == nil {
			continue
		}
		for _, variation := range info.Variations {
			varUpper := strings.ToUpper(foldAccents(variation))
			if !strings.Contains(queryUpper, varUpper) {
				continue
			}
			length := utf8.RuneCountInString(varUpper)
			if length > bestLen || (length == bestLen && key < winner) {
				winner = key
				bestLen = length
			}
		}
	}
	return winner
}
