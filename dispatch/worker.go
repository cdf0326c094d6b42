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


package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultMaxJobs    = 2
	DefaultJobTimeout = 2 * time.Hour
)

// Worker pulls pending jobs off a RedisQueue and runs the handler
// registered for each job's stage on a bounded pool.
type Worker struct {
	queue      *RedisQueue
	pool       *ants.Pool
	handlers   map[string]Handler
	logger     *slog.Logger
	jobTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger used for job diagnostics.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithJobTimeout bounds how long a single job may run.
func WithJobTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.jobTimeout = timeout
		}
	}
}

// NewWorker creates a Worker over the queue with a pool of maxJobs
// concurrent jobs. Pass 0 for the default pool size.
func NewWorker(queue *RedisQueue, maxJobs int, opts ...WorkerOption) (*Worker, error) {
	if maxJobs < 1 {
		maxJobs = DefaultMaxJobs
	}
	pool, err := ants.NewPool(maxJobs)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		queue:      queue,
		pool:       pool,
		handlers:   make(map[string]Handler),
		logger:     slog.Default().With("component", "dispatch-worker"),
		jobTimeout: DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Register binds a stage name to its handler. Registration must finish
// before Run starts; the handler map is not guarded during the run loop.
func (w *Worker) Register(stage string, handler Handler) {
	w.handlers[stage] = handler
}

// Run pulls and executes jobs until the context is canceled. It returns
// nil on cancellation after in-flight jobs were waited for.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWorkerClosed
	}
	w.mu.Unlock()

	w.logger.Info("worker started",
		"pool_size", w.pool.Cap(),
		"stages", len(w.handlers))

	var wg sync.WaitGroup
	for {
		if ctx.Err() != nil {
			break
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		wg.Add(1)
		submitErr := w.pool.Submit(func() {
			defer wg.Done()
			w.process(job)
		})
		if submitErr != nil {
			wg.Done()
			w.failJob(job, submitErr)
		}
	}

	wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// process runs one job under the job timeout and records the outcome.
// Panics in a handler fail the job instead of killing the worker.
func (w *Worker) process(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	logger := w.logger.With(
		"job_id", job.ID,
		"stage", job.Stage,
		"session_id", job.SessionID)

	handler, ok := w.handlers[job.Stage]
	if !ok {
		logger.Error("no handler registered")
		w.failJob(job, fmt.Errorf("%w: %s", ErrUnknownStage, job.Stage))
		return
	}

	if err := w.queue.MarkRunning(ctx, job.ID); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	start := time.Now()
	payload, err := func() (payload []byte, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage handler panic: %v", r)
			}
		}()
		return handler(ctx, job.SessionID)
	}()
	if err != nil {
		logger.Warn("job failed", "error", err, "elapsed", time.Since(start))
		w.failJob(job, err)
		return
	}

	if err := w.queue.MarkComplete(ctx, job.ID, payload); err != nil {
		logger.Error("failed to mark job complete", "error", err)
		return
	}
	logger.Debug("job complete", "elapsed", time.Since(start))
}

// failJob records the failure on a fresh context so the outcome survives
// job-timeout cancellation.
func (w *Worker) failJob(job *Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := w.queue.MarkFailed(ctx, job.ID, cause); err != nil {
		w.logger.Error("failed to mark job failed",
			"job_id", job.ID,
			"error", err)
	}
}

// Close releases the worker pool. The worker must not Run again.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.pool.Release()
}
