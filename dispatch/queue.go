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


// Package dispatch moves staged-search work between the coordinator and
// the stage workers. The coordinator enqueues one job per pipeline stage
// and polls its status; a Worker pulls pending jobs, runs the registered
// stage handler on a bounded pool and records the outcome.
//
// Delivery is at-least-once. Stage handlers are expected to be
// idempotent, so a redelivered job overwrites its own output in place.
package dispatch

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a dispatched stage job.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is the dispatch record for one stage of one session.
type Job struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	SessionID  string    `json:"session_id"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Handler executes one pipeline stage for a session. The returned payload
// is the job result the coordinator can inspect; the stage's real output
// goes to the session store, not through the queue.
type Handler func(ctx context.Context, sessionID string) ([]byte, error)

// Queue is the coordinator-facing side of job dispatch.
type Queue interface {
	// Enqueue submits a stage job for the session and returns its job id.
	Enqueue(ctx context.Context, stage, sessionID string) (string, error)

	// Status reports the job's current lifecycle state.
	// Returns ErrJobNotFound for unknown or expired job ids.
	Status(ctx context.Context, jobID string) (JobStatus, error)

	// Result returns the payload of a completed job.
	// Returns ErrJobNotFinished while the job is pending or running and
	// ErrJobFailed (wrapping the recorded message) for failed jobs.
	Result(ctx context.Context, jobID string) ([]byte, error)
}
