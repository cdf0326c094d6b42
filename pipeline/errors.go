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


package pipeline

import "errors"

var (
	// ErrServiceUnavailable indicates a pipeline dependency (store, model
	// endpoint, session store) could not serve the request.
	ErrServiceUnavailable = errors.New("search service unavailable")

	// ErrStageDataMissing indicates a stage handler could not find the
	// upstream output it depends on in the session store.
	ErrStageDataMissing = errors.New("stage data missing")

	// ErrLowEnrichmentConfidence indicates the query survived validation
	// but enrichment could not extract anything usable from it.
	ErrLowEnrichmentConfidence = errors.New("enrichment confidence too low")

	// ErrInvalidTransition indicates a session state change that the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrStageTimeout indicates a dispatched stage did not finish within
	// the coordinator's per-stage timeout.
	ErrStageTimeout = errors.New("stage timed out")
)
