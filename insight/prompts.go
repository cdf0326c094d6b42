package insight

import (
	"strings"

	"github.com/poiesic/ktsearch/core"
)

// Template intents, chosen from the query wording and classification.
const (
	intentBase         = "base"
	intentDecision     = "decision"
	intentProblem      = "problem"
	intentParticipants = "participants"
	intentListing      = "listing"
	intentHighlights   = "highlights"
	intentGeneral      = "general"
)

// promptPreamble reminds the model of the base's shape: one video per KT
// session, one client per video, so it does not conflate clients when the
// contexts span more than one.
const promptPreamble = `Você é um assistente que responde perguntas sobre reuniões de KT (transferência de conhecimento) de projetos SAP.
Cada vídeo corresponde a uma sessão de KT de um único cliente; não misture informações de clientes diferentes.
Responda em português, baseando cada afirmação apenas nos trechos fornecidos. Se os trechos não respondem a pergunta, diga isso claramente.`

// promptTemplates keys the instruction block by intent. {query} and
// {contexts} are replaced at build time.
var promptTemplates = map[string]string{
	intentBase: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Produza uma resposta consolidada e acionável em até três parágrafos, citando de qual reunião vem cada informação.`,

	intentDecision: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Liste as decisões tomadas nas reuniões acima: o que foi decidido, por quem e em qual reunião. Se algo ficou pendente, destaque como pendência.`,

	intentProblem: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Descreva os problemas relatados nos trechos acima: sintoma, causa quando mencionada e encaminhamento dado. Indique a reunião de origem de cada problema.`,

	intentParticipants: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Liste quem participou e o papel de cada pessoa conforme os trechos. Não invente nomes que não aparecem nos trechos.`,

	intentHighlights: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Resuma os pontos altos das reuniões acima em uma lista curta, do mais relevante para o menos relevante.`,

	intentGeneral: promptPreamble + `

Pergunta: {query}

Trechos das reuniões:
{contexts}

Responda a pergunta de forma direta e objetiva usando apenas os trechos acima.`,
}

// performanceConfig bounds one completion call per intent. Temperatures
// stay at zero everywhere; only the budget varies.
type performanceConfig struct {
	maxTokens int
}

var performanceConfigs = map[string]performanceConfig{
	intentListing:      {maxTokens: 400},
	intentGeneral:      {maxTokens: 600},
	intentParticipants: {maxTokens: 600},
	intentHighlights:   {maxTokens: 600},
	intentDecision:     {maxTokens: 800},
	intentProblem:      {maxTokens: 800},
	intentBase:         {maxTokens: 800},
}

var (
	decisionWords     = []string{"decisão", "decisões", "decidido", "decidiram", "definido", "acordado"}
	problemWords      = []string{"problema", "problemas", "erro", "erros", "falha", "falhas", "dificuldade", "issue"}
	participantWords  = []string{"quem participou", "participantes", "quem estava", "quem falou", "quem apresentou"}
	highlightWords    = []string{"pontos altos", "destaques", "highlights", "principais pontos", "resumo"}
	listingIndicators = []string{"liste", "listar", "quais kts", "quantos kts", "kts disponíveis", "que temos", "listar reuniões", "quais reuniões"}
)

// detectIntent picks the prompt template for a query. Listing intent also
// routes the fast track that skips the model.
func detectIntent(query string, classification *core.ClassificationResult) string {
	lower := strings.ToLower(query)

	if containsAny(lower, listingIndicators) {
		return intentListing
	}
	if containsAny(lower, participantWords) {
		return intentParticipants
	}
	if containsAny(lower, decisionWords) {
		return intentDecision
	}
	if containsAny(lower, problemWords) {
		return intentProblem
	}
	if containsAny(lower, highlightWords) {
		return intentHighlights
	}
	if classification != nil {
		switch classification.QueryType {
		case core.QueryTypeMetadata:
			return intentListing
		case core.QueryTypeSemantic:
			return intentBase
		}
	}
	return intentGeneral
}

// buildPrompt fills the intent's template.
func buildPrompt(intent, query, contexts string) string {
	template, ok := promptTemplates[intent]
	if !ok {
		template = promptTemplates[intentGeneral]
	}
	prompt := strings.ReplaceAll(template, "{query}", query)
	return strings.ReplaceAll(prompt, "{contexts}", contexts)
}

func performanceFor(intent string) performanceConfig {
	if config, ok := performanceConfigs[intent]; ok {
		return config
	}
	return performanceConfigs[intentGeneral]
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
