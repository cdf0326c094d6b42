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


// Package selection picks the chunks worth sending to synthesis.
//
// Every retrieval candidate gets a quality score (content richness,
// metadata completeness, client and query relevance) and, during greedy
// selection, a diversity score against the chunks already picked. The two
// combine with query-type-dependent weights: listing queries favor quality,
// verbatim-content queries favor diversity so the answer is not built from
// overlapping fragments of one passage.
//
// The number of chunks to select is itself adaptive: a narrow factual
// query wants a handful of sharp chunks, a catalog query wants broad
// coverage. AdaptiveCount derives the target from the query type and the
// enrichment evidence.
package selection
