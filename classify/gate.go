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


package classify

import (
	"regexp"
	"strings"
)

// Generic listing requests. Checked before the analysis patterns: a listing
// phrasing wins even when analysis words appear later in the query.
var genericListingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`liste.*kts`),
	regexp.MustCompile(`quantos.*kts`),
	regexp.MustCompile(`quais.*kts.*temos`),
	regexp.MustCompile(`kts.*disponíveis`),
	regexp.MustCompile(`kts.*que.*temos`),
	regexp.MustCompile(`todos.*os.*kts`),
}

var specificAnalysisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`temas.*discutidos`),
	regexp.MustCompile(`pontos.*discutidos`),
	regexp.MustCompile(`principais.*pontos`),
	regexp.MustCompile(`o que foi.*abordado`),
	regexp.MustCompile(`que foi.*explicado`),
	regexp.MustCompile(`resuma.*pontos`),
	regexp.MustCompile(`resumo.*do kt`),
	regexp.MustCompile(`conteúdo.*do kt`),
	regexp.MustCompile(`assuntos.*tratados`),
	regexp.MustCompile(`no kt`),
	regexp.MustCompile(`kt.*específico`),
	regexp.MustCompile(`neste kt`),
	regexp.MustCompile(`deste kt`),
	regexp.MustCompile(`resuma`),
	regexp.MustCompile(`resumir`),
	regexp.MustCompile(`analise`),
	regexp.MustCompile(`analisar`),
	regexp.MustCompile(`explique`),
	regexp.MustCompile(`explicar`),
}

// KT topic words that were recorded as individual sessions. A query naming
// one of these together with "kt" targets that session's content.
var ktTopicTerms = []string{"iflow", "estorno", "sustentação", "correção", "pc"}

// DetectSpecificAnalysis reports whether the query asks for analysis of a
// specific KT's content rather than a generic catalog listing. Listing-style
// metadata answers must not be fast-tracked for these queries: "resuma os
// pontos do KT iflow" needs the KT's content, while "liste todos os KTs"
// does not.
func DetectSpecificAnalysis(query string) bool {
	lower := strings.ToLower(query)

	for _, pattern := range genericListingPatterns {
		if pattern.MatchString(lower) {
			return false
		}
	}
	for _, pattern := range specificAnalysisPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	if strings.Contains(lower, "kt") && containsAny(lower, ktTopicTerms) {
		return true
	}
	return false
}
