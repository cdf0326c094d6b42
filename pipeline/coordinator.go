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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/dispatch"
	"github.com/poiesic/ktsearch/respond"
	"github.com/poiesic/ktsearch/storage"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultStageTimeout = 5 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
)

// Coordinator drives a staged search session: it creates the session,
// enqueues one job per stage strictly after the previous stage completed,
// and owns the session state machine. Stage work itself happens in
// dispatch workers.
type Coordinator struct {
	queue    dispatch.Queue
	sessions storage.SessionRepository

	logger         *slog.Logger
	monitor        Monitor
	stageTimeout   time.Duration
	pollInterval   time.Duration
	minQueryLength int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger used for session diagnostics.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCoordinatorMonitor sets the stage observation hooks.
func WithCoordinatorMonitor(monitor Monitor) CoordinatorOption {
	return func(c *Coordinator) {
		if monitor != nil {
			c.monitor = monitor
		}
	}
}

// WithStageTimeout bounds how long the coordinator waits for one stage.
func WithStageTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.stageTimeout = timeout
		}
	}
}

// WithPollInterval sets how often job status is polled.
func WithPollInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithCoordinatorMinQueryLength raises the minimum accepted query length.
func WithCoordinatorMinQueryLength(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > c.minQueryLength {
			c.minQueryLength = n
		}
	}
}

// NewCoordinator creates a Coordinator over a job queue and session store.
func NewCoordinator(queue dispatch.Queue, sessions storage.SessionRepository, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		queue:          queue,
		sessions:       sessions,
		logger:         slog.Default().With("component", "coordinator"),
		monitor:        &noopMonitor{},
		stageTimeout:   DefaultStageTimeout,
		pollInterval:   DefaultPollInterval,
		minQueryLength: core.MinQueryLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one staged search end to end and returns the session id
// with the terminal response. Only query validation returns an error;
// every stage failure is converted into a Success=false response after
// the session is marked failed.
func (c *Coordinator) Run(ctx context.Context, query string) (string, *core.SearchResponse, error) {
	if err := core.ValidateQuery(query, c.minQueryLength); err != nil {
		return "", nil, err
	}

	sessionID := uuid.NewString()
	meta := &SessionMeta{
		Query:     query,
		CreatedAt: time.Now().UTC(),
		State:     StateCreated,
	}
	if err := c.putMeta(ctx, sessionID, meta); err != nil {
		return sessionID, c.failSession(ctx, sessionID, meta, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)), nil
	}

	logger := c.logger.With("session_id", sessionID)
	logger.Info("session created", "query_length", len(query))

	for _, stage := range StageOrder() {
		payload, err := c.runStage(ctx, sessionID, stage)
		if err != nil {
			logger.Error("stage failed, stopping session", "stage", stage, "error", err)
			c.monitor.StageFailed(stage, err)
			return sessionID, c.failSession(ctx, sessionID, meta, err), nil
		}

		if stage == StageRetrieve && payload.EarlyExit {
			c.monitor.EarlyExit(query)
			if err := c.advance(ctx, sessionID, meta, StateRetrieved, stage); err != nil {
				return sessionID, c.failSession(ctx, sessionID, meta, err), nil
			}
			if err := c.advance(ctx, sessionID, meta, StateEarlyExited, ""); err != nil {
				return sessionID, c.failSession(ctx, sessionID, meta, err), nil
			}
			response, err := c.final(ctx, sessionID)
			if err != nil {
				return sessionID, c.failSession(ctx, sessionID, meta, err), nil
			}
			logger.Info("session exited early")
			c.monitor.Finished(response)
			return sessionID, response, nil
		}

		next, advances := stateAfter(stage, payload)
		if advances {
			if err := c.advance(ctx, sessionID, meta, next, stage); err != nil {
				return sessionID, c.failSession(ctx, sessionID, meta, err), nil
			}
		}
	}

	response, err := c.final(ctx, sessionID)
	if err != nil {
		return sessionID, c.failSession(ctx, sessionID, meta, err), nil
	}
	if err := c.advance(ctx, sessionID, meta, StateFinalized, "final"); err != nil {
		return sessionID, c.failSession(ctx, sessionID, meta, err), nil
	}

	logger.Info("session finalized", "elapsed", time.Since(meta.CreatedAt))
	c.monitor.Finished(response)
	return sessionID, response, nil
}

// Response fetches the terminal response of a session, if it finalized.
func (c *Coordinator) Response(ctx context.Context, sessionID string) (*core.SearchResponse, error) {
	return c.final(ctx, sessionID)
}

// runStage enqueues one stage job and waits for its terminal status.
func (c *Coordinator) runStage(ctx context.Context, sessionID, stage string) (StagePayload, error) {
	c.monitor.StageStarted(stage)
	start := time.Now()

	jobID, err := c.queue.Enqueue(ctx, stage, sessionID)
	if err != nil {
		return StagePayload{}, fmt.Errorf("%w: enqueue %s: %w", ErrServiceUnavailable, stage, err)
	}

	data, err := c.awaitJob(ctx, jobID)
	if err != nil {
		return StagePayload{}, fmt.Errorf("stage %s: %w", stage, err)
	}

	var payload StagePayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return StagePayload{}, fmt.Errorf("stage %s: corrupt payload: %w", stage, err)
		}
	}

	c.monitor.StageCompleted(stage, time.Since(start))
	c.logger.Debug("stage complete",
		"session_id", sessionID,
		"stage", stage,
		"elapsed", time.Since(start))
	return payload, nil
}

// awaitJob polls the job until it finishes, bounded by the stage timeout.
func (c *Coordinator) awaitJob(ctx context.Context, jobID string) ([]byte, error) {
	deadline := time.NewTimer(c.stageTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.queue.Status(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
		if status.Terminal() {
			return c.queue.Result(ctx, jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrStageTimeout
		case <-ticker.C:
		}
	}
}

// stateAfter maps a completed stage to the session state it establishes.
// A skipped discover stage leaves the state at RETRIEVED.
func stateAfter(stage string, payload StagePayload) (State, bool) {
	switch stage {
	case StageEnrich:
		return StateEnriched, true
	case StageClassify:
		return StateClassified, true
	case StageRetrieve:
		return StateRetrieved, true
	case StageDiscover:
		return StateDiscovered, !payload.Skipped
	case StageSelect:
		return StateSelected, true
	case StageInsights:
		return StateSynthesized, true
	default:
		return "", false
	}
}

// advance validates and persists one state transition.
func (c *Coordinator) advance(ctx context.Context, sessionID string, meta *SessionMeta, to State, stage string) error {
	if !CanTransition(meta.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, meta.State, to)
	}
	meta.State = to
	if stage != "" && stage != "final" {
		meta.StagesCompleted = append(meta.StagesCompleted, stage)
	}
	return c.putMeta(ctx, sessionID, meta)
}

// failSession marks the session failed and returns the terminal failure
// response, persisting it when the store still cooperates.
func (c *Coordinator) failSession(ctx context.Context, sessionID string, meta *SessionMeta, cause error) *core.SearchResponse {
	if !meta.State.Terminal() {
		meta.State = StateFailed
		if err := c.putMeta(ctx, sessionID, meta); err != nil {
			c.logger.Error("failed to persist session failure",
				"session_id", sessionID,
				"error", err)
		}
	}

	response := respond.ErrorResponse(meta.Query, meta.CreatedAt, cause)
	if data, err := json.Marshal(response); err == nil {
		if err := c.sessions.PutFinal(ctx, sessionID, data); err != nil {
			c.logger.Error("failed to persist failure response",
				"session_id", sessionID,
				"error", err)
		}
	}
	return response
}

func (c *Coordinator) putMeta(ctx context.Context, sessionID string, meta *SessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.sessions.PutMeta(ctx, sessionID, data)
}

func (c *Coordinator) final(ctx context.Context, sessionID string) (*core.SearchResponse, error) {
	data, err := c.sessions.GetFinal(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: final response: %w", ErrServiceUnavailable, err)
	}

	var response core.SearchResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("corrupt final response for session %s: %w", sessionID, err)
	}
	return &response, nil
}
