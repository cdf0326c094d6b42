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

import (
	"time"

	"github.com/poiesic/ktsearch/core"
)

// Monitor provides hooks to observe pipeline execution.
// Implement this interface to track stage progress during a search.
type Monitor interface {
	StageStarted(stage string)
	StageCompleted(stage string, elapsed time.Duration)
	StageFailed(stage string, err error)
	EarlyExit(entity string)
	Finished(response *core.SearchResponse)
}

// noopMonitor is a no-op implementation of Monitor.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) StageStarted(_ string)                  {}
func (n *noopMonitor) StageCompleted(_ string, _ time.Duration) {}
func (n *noopMonitor) StageFailed(_ string, _ error)          {}
func (n *noopMonitor) EarlyExit(_ string)                     {}
func (n *noopMonitor) Finished(_ *core.SearchResponse)        {}
