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


package respond

import (
	"context"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/discover"
)

// KnownEntityScore is the match score a discovered entity must reach for
// a queried client to count as known.
const KnownEntityScore = 0.9

// EntityMatcher scores a client name against the discovered entity set.
// *discover.Discovery satisfies it.
type EntityMatcher interface {
	FindMatches(ctx context.Context, term string) ([]discover.Match, error)
}

// UnknownEntity returns the first client name the enrichment carries when
// none of the named clients resolve against the discovered entity set.
// Queries naming no client never gate, and a discovery failure disables
// the gate rather than block the search.
func UnknownEntity(ctx context.Context, matcher EntityMatcher, enrichment *core.EnrichmentResult) (string, bool) {
	names := make([]string, 0, 2)
	names = append(names, enrichment.Entities[core.EntityClients]...)
	names = append(names, enrichment.Context.ClientCandidates...)
	if len(names) == 0 {
		return "", false
	}

	for _, name := range names {
		matches, err := matcher.FindMatches(ctx, name)
		if err != nil {
			return "", false
		}
		if len(matches) > 0 && matches[0].Score >= KnownEntityScore {
			return "", false
		}
	}
	return names[0], true
}

// IsUnknownEntity reports whether the query names clients and none of
// them are known to the base. A true result means the caller should
// answer with UnknownEntityResponse instead of running retrieval.
func IsUnknownEntity(ctx context.Context, matcher EntityMatcher, enrichment *core.EnrichmentResult) bool {
	_, unknown := UnknownEntity(ctx, matcher, enrichment)
	return unknown
}
