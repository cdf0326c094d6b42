package enrich

import "regexp"

// Curated client vocabulary. Matching is case-insensitive; detected names are
// normalized through clientNormalization before they reach the result.
var clientPattern = regexp.MustCompile(`(?i)\b(víssimo|vissimo|arco|dexco|gran cru|pc\s*factory|pc_factory)\b`)

// clientCandidatePattern captures org names mentioned right after "cliente",
// catching clients that are not in the curated vocabulary yet.
var clientCandidatePattern = regexp.MustCompile(`(?i)cliente\s+([\p{L}][\p{L}\d_-]+)`)

var clientNormalization = map[string]string{
	"víssimo":    "VÍSSIMO",
	"vissimo":    "VÍSSIMO",
	"arco":       "ARCO",
	"dexco":      "DEXCO",
	"gran cru":   "GRAN CRU",
	"pc factory": "PC_FACTORY",
	"pcfactory":  "PC_FACTORY",
	"pc_factory": "PC_FACTORY",
}

// clientVariations feeds the enriched query so embedding search matches every
// spelling a transcript is likely to use.
var clientVariations = map[string][]string{
	"VÍSSIMO":    {"VÍSSIMO", "VISSIMO", "Víssimo", "víssimo", "vissimo", "Vissimo"},
	"ARCO":       {"ARCO", "Arco", "arco"},
	"DEXCO":      {"DEXCO", "Dexco", "dexco"},
	"GRAN CRU":   {"GRAN CRU", "Gran Cru", "gran cru", "GranCru", "grancru"},
	"PC_FACTORY": {"PC_FACTORY", "PC Factory", "pc factory", "pc_factory", "pcfactory"},
}

// transactionPattern matches SAP transaction codes. Codes are uppercase by
// convention, so this runs case-sensitively on the raw query.
var transactionPattern = regexp.MustCompile(`\b([A-Z]{1,2}\d{2,3}|ZEWM\d{4})\b`)

// modulePattern matches SAP module abbreviations as standalone words.
var modulePattern = regexp.MustCompile(`(?i)\b(sd|mm|fi|co|pp|hr|ewm|btp)\b`)

// participantPattern is a capitalized-word heuristic run on the raw query.
// Sentence-leading words and client-name fragments are filtered afterwards.
// No trailing \b: Go word boundaries are ASCII-only and would clip names
// ending in accented letters.
var participantPattern = regexp.MustCompile(`\b([A-Z]\p{Ll}+)`)

var participantStopwords = map[string]bool{
	"que": true, "para": true, "como": true, "onde": true, "qual": true,
	"quais": true, "quando": true, "quem": true, "quantos": true,
	"liste": true, "listar": true, "mostre": true, "exiba": true,
	"resuma": true, "resumo": true, "analise": true, "explique": true,
	"factory": true, "gran": true, "cru": true, "informações": true,
	"temos": true, "todos": true, "todas": true,
}

// Recurring consultant names seen across KT transcripts.
var commonParticipantNames = []string{"Sebas", "Frampton", "Thiago", "Bernard"}

// Temporal expressions. Ranges are converted to structured markers
// (recent_<n>_<period>, specific_<month>_<year>) for downstream parsing.
var (
	temporalRangePattern    = regexp.MustCompile(`últim[oa]s?\s+(\d+)\s+(dias?|semanas?|meses?)`)
	temporalMonthPattern    = regexp.MustCompile(`(janeiro|fevereiro|março|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+(?:de\s+)?(\d{4})`)
	temporalRelativePattern = regexp.MustCompile(`\b(recentes?|ontem|hoje|semana passada|semana|mês passado|mês)\b`)
)

// semanticExpansions broadens query terms for embedding search. Only the
// first two expansions per term are used to keep the enriched query bounded.
var semanticExpansions = map[string][]string{
	"principais":    {"importantes", "relevantes", "críticos", "decisivos"},
	"informação":    {"dados", "detalhes", "conteúdo", "pontos"},
	"informações":   {"dados", "detalhes", "conteúdo", "pontos"},
	"integrações":   {"integração", "RFC", "EDI", "API", "interface"},
	"integração":    {"integrações", "RFC", "EDI", "API", "interface"},
	"problemas":     {"erro", "falha", "issue", "bug", "dificuldade"},
	"problema":      {"erro", "falha", "issue", "bug", "dificuldade"},
	"processo":      {"procedimento", "fluxo", "workflow", "etapa"},
	"transação":     {"código", "tcode", "transaction"},
	"módulo":        {"component", "área", "funcionalidade"},
	"sistema":       {"SAP", "ERP", "aplicação"},
	"reunião":       {"meeting", "encontro", "sessão"},
	"participantes": {"pessoas", "attendees", "presentes"},
	"decisão":       {"resolução", "definição", "acordo"},
	"recente":       {"último", "atual", "novo"},
	"antigo":        {"anterior", "passado", "histórico"},
	"dados":         {"informação", "detalhes", "conteúdo"},
	"gerais":        {"amplo", "abrangente", "geral", "completo"},
	"todos":         {"completo", "total", "abrangente"},
	"tudo":          {"completo", "total", "abrangente"},
}

var listingIndicators = []string{
	"liste", "quais", "quantos", "temos", "disponíveis", "mostre", "exiba", "apresente",
}

var comparisonIndicators = []string{
	"diferença", "comparar", "compare", "versus", "vs", "melhor", "pior",
	"maior", "menor", "contra",
}

var broadIndicators = []string{
	"tudo", "todas", "todos", "geral", "gerais", "completo", "abrangente",
	"overview", "visão geral", "dados gerais", "amplo", "total", "global",
}

// analysisIndicators mark queries that ask for analysis of specific content
// rather than a listing. Checked after the generic-listing indicators.
var analysisIndicators = []string{
	"temas relevantes", "principais pontos", "pontos discutidos",
	"foram discutidos", "o que foi abordado", "que foi explicado",
	"resuma", "resumir", "resumo", "analise", "analisar",
	"explique", "explicar", "no kt", "neste kt", "deste kt",
}

var genericListingIndicators = []string{
	"liste todos", "quantos kts", "kts disponíveis", "kts que temos",
	"todos os kts", "quais kts temos",
}

// Domain vocabulary appended to every enriched query, plus the technical and
// temporal extensions added when the query touches those areas.
var (
	domainTerms          = []string{"KT", "reunião", "consultoria"}
	technicalDomainTerms = []string{"SAP", "transação", "módulo", "sistema"}
	temporalDomainTerms  = []string{"período", "data", "histórico"}
)
