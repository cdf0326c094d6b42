package classify

import (
	"regexp"

	"github.com/poiesic/ktsearch/core"
)

// typePatterns is the substring vocabulary per query type. Matching runs on
// the lowercased cleaned query; every hit adds its pattern weight.
var typePatterns = map[core.QueryType][]string{
	core.QueryTypeSemantic: {
		"o que temos", "principais pontos", "informações sobre", "como funciona",
		"qual o objetivo", "resumo", "resuma", "me traga", "principais",
		"informação", "processo", "como foram", "o que sabemos", "sabemos sobre",
		"temos de informação", "discutidos", "pontos discutidos", "foram discutidos",
	},
	core.QueryTypeMetadata: {
		"liste", "quais", "quantos", "disponíveis", "base de conhecimento",
		"vídeos", "kts", "reuniões", "clientes", "projetos", "mostre", "exiba",
	},
	core.QueryTypeEntity: {
		"quem participou", "participantes", "de qual cliente",
		"informações do cliente", "pessoas envolvidas", "quem estava", "equipe",
	},
	core.QueryTypeTemporal: {
		"últimos", "dias", "mês", "ano", "recentes", "setembro", "outubro",
		"2024", "2025", "ontem", "semana",
	},
	core.QueryTypeContent: {
		"onde mencionaram", "menção", "literal", "exata", "procurar", "chunk:",
		"busca literal", "encontre", "texto", "transação", "tcode", "código",
		"zewm", "f110", "específica sobre",
	},
}

// patternWeights rates pattern specificity. Anything absent scores
// defaultPatternWeight.
var patternWeights = map[string]float64{
	"onde mencionaram": 0.98,
	"chunk:":           0.99,
	"literal":          0.95,
	"exata":            0.95,

	"liste":       0.9,
	"quais":       0.8,
	"quantos":     0.8,
	"disponíveis": 0.7,

	"últimos":  0.9,
	"recentes": 0.85,
	"setembro": 0.9,
	"2024":     0.7,

	"quem participou": 0.95,
	"de qual cliente": 0.9,
	"participantes":   0.8,

	"o que temos":         0.95,
	"principais pontos":   0.9,
	"informações sobre":   0.85,
	"como funciona":       0.9,
	"como foram":          0.85,
	"o que sabemos":       0.9,
	"sabemos sobre":       0.9,
	"temos de informação": 0.95,
	"me traga":            0.85,

	"principais": 0.6,
	"informação": 0.5,
	"processo":   0.6,
}

const defaultPatternWeight = 0.4

// quaisSemanticTerms flip a "quais ..." query from listing to semantic when
// it asks about discussion outcomes instead of catalog entries.
var quaisSemanticTerms = []string{
	"decisões", "problemas", "riscos", "valores", "custos", "questões",
	"foram tomadas", "importantes", "identificados", "mencionados", "discutidos",
}

// specificKTPatterns recognize references to one particular KT recording, as
// opposed to the KT base in general.
var specificKTPatterns = []*regexp.Regexp{
	regexp.MustCompile(`kt\s*[-\s]*([a-záéíóúãõç\s]+)[-\s]*\d{8}_\d{6}`),
	regexp.MustCompile(`kt\s+(sustentação|iflow|correção|estratégia|estorno|integração|mm|fi|sd|ewm)`),
	regexp.MustCompile(`(no|do|sobre)\s+kt\s*[-\s]*([a-záéíóúãõç\s]+)`),
	regexp.MustCompile(`(temas|pontos|informações|transações|problemas|principais)\s.*kt`),
	regexp.MustCompile(`discutidos?\s+no\s+kt`),
}

// ktAnalysisIndicators weigh toward the specific-KT detection itself.
var ktAnalysisIndicators = []string{
	"temas relevantes", "principais pontos", "resumo", "resuma",
	"principais ponto", "o que motivou", "transações explicadas",
	"foram discutidos", "pontos discutidos", "informações sobre", "detalhes",
	"conteúdo", "explicadas no", "abordados no",
}

// analysisRequestTerms pick the semantic branch once a specific KT was
// detected: the user wants the KT analyzed, not literally searched.
var analysisRequestTerms = []string{
	"resuma", "resumo", "principais pontos", "pontos discutidos",
	"foram discutidos", "informações sobre", "o que foi", "como foram",
	"quais foram", "detalhes", "decisões", "problemas", "riscos", "valores",
	"custos", "questões técnicas", "foram tomadas", "importantes",
	"identificados", "mencionados", "discutidos",
}

// realTemporalPatterns mark queries about a time period rather than a
// specific KT.
var realTemporalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`últim[oa]s?\s+\d+\s+(dias?|semanas?|meses?|anos?)`),
	regexp.MustCompile(`(janeiro|fevereiro|março|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+\d{4}`),
	regexp.MustCompile(`kts?\s+dos?\s+últimos?`),
	regexp.MustCompile(`reuniões\s+de\s+\w+`),
	regexp.MustCompile(`problemas\s+recentes?`),
	regexp.MustCompile(`nos?\s+últimos?`),
}

// participantQuestionTerms distinguish asking about participants from merely
// mentioning a person.
var participantQuestionTerms = []string{
	"quem participou", "quem estava", "participantes", "pessoas envolvidas",
	"quem esteve", "equipe", "participaram", "membros", "pessoas presentes",
	"quem", "que pessoas", "quantas pessoas",
}

// listingTerms and comparisonTerms feed context scoring.
var (
	listingTerms    = []string{"liste", "quais", "quantos", "temos", "disponíveis", "mostre", "exiba", "apresente"}
	comparisonTerms = []string{"diferença", "comparar", "compare", "versus", "vs", "melhor", "pior", "maior", "menor", "contra"}
)
