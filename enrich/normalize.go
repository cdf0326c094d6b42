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


package enrich

import (
	"strings"
	"unicode"

	"github.com/poiesic/ktsearch/core"
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// CleanQuery normalizes a raw query for the pipeline: curly quotes become
// straight quotes, characters outside the allowed set are dropped, whitespace
// runs collapse to single spaces, the result is lowercased and truncated to
// core.MaxQueryLength runes. CleanQuery is idempotent.
func CleanQuery(query string) string {
	cleaned := quoteReplacer.Replace(query)

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if allowedRune(r) {
			b.WriteRune(r)
		}
	}

	cleaned = strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.ToLower(cleaned)

	if runes := []rune(cleaned); len(runes) > core.MaxQueryLength {
		cleaned = strings.TrimSpace(string(runes[:core.MaxQueryLength]))
	}
	return cleaned
}

// allowedRune reports whether r may appear in a cleaned query. Letters,
// digits and whitespace pass, plus the punctuation that carries meaning in
// queries (chunk:id references, transaction codes, quoted literals).
func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '_', '.', '?', '!', '"', '\'', '/', ':', '(', ')', '[', ']':
		return true
	}
	return false
}

// normalizeClientName maps a detected client mention to its canonical form.
// Known spellings go through the normalization table; anything else is
// uppercased as-is.
func normalizeClientName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), " ")
	if canonical, ok := clientNormalization[key]; ok {
		return canonical
	}
	return strings.ToUpper(key)
}
