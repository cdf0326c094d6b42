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

import "time"

// State is the lifecycle position of a staged search session.
type State string

const (
	StateCreated     State = "CREATED"
	StateEnriched    State = "ENRICHED"
	StateClassified  State = "CLASSIFIED"
	StateRetrieved   State = "RETRIEVED"
	StateDiscovered  State = "DISCOVERED"
	StateSelected    State = "SELECTED"
	StateSynthesized State = "SYNTHESIZED"
	StateFinalized   State = "FINALIZED"
	StateEarlyExited State = "EARLY_EXITED"
	StateFailed      State = "FAILED"
)

// transitions is the forward edge set of the session state machine.
// Discovery is optional, so SELECTED is reachable from both RETRIEVED
// and DISCOVERED. Any non-terminal state may fail.
var transitions = map[State][]State{
	StateCreated:     {StateEnriched},
	StateEnriched:    {StateClassified},
	StateClassified:  {StateRetrieved},
	StateRetrieved:   {StateDiscovered, StateSelected, StateEarlyExited},
	StateDiscovered:  {StateSelected},
	StateSelected:    {StateSynthesized},
	StateSynthesized: {StateFinalized},
}

// Terminal reports whether the session will never leave this state.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateEarlyExited || s == StateFailed
}

// CanTransition reports whether the state machine allows moving from one
// state to another.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SessionMeta is the coordinator-owned bookkeeping record for a staged
// session. Stage handlers read it for the query but never write it.
type SessionMeta struct {
	Query           string    `json:"query"`
	CreatedAt       time.Time `json:"created_at"`
	State           State     `json:"state"`
	StagesCompleted []string  `json:"stages_completed,omitempty"`
}
