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


package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/poiesic/ktsearch/core"
)

// Record is one transcript segment handed to the ingestion pipeline.
type Record struct {
	// VideoName identifies the meeting recording the segment came from.
	VideoName string

	// Segment is the ordinal position of the segment within the recording.
	Segment int

	// Text is the transcript fragment.
	Text string

	// Metadata carries the descriptive fields (client, speaker, dates,
	// tags). Empty values are dropped before storage.
	Metadata map[string]string
}

// ChunkID derives the stable chunk id for the record:
// "<video-slug>_segments_<n>", or a content hash when the record has no
// video name to slug.
func (r Record) ChunkID() string {
	slug := slugify(r.VideoName)
	if slug == "" {
		return fmt.Sprintf("chunk_%d", core.IDFromContent(r.Text))
	}
	return fmt.Sprintf("%s_segments_%d", slug, r.Segment)
}

// slugify lowercases the name, folds whitespace runs to single hyphens
// and drops everything that is not a letter, digit or hyphen.
func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	lastHyphen := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastHyphen && b.Len() > 0 {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
