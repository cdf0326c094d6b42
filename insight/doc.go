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


// Package insight turns selected transcript chunks into one consolidated
// answer.
//
// The synthesizer grounds a language model on the selected chunks and asks
// for a single actionable answer, not per-chunk summaries. Listing queries
// skip the model entirely: a formatted catalog of the meetings in the
// context set answers them faster and more reliably than a completion.
//
// This is the last stage before the user sees output, so it is the only
// component allowed to degrade to a canned response: when the model fails
// or returns nothing usable after the bounded retries, Synthesize builds a
// templated summary from the top chunks and flags it with FallbackUsed.
package insight
