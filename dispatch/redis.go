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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the startup connection probe.
const connectTimeout = 5 * time.Second

// popTimeout is how long a single blocking dequeue waits before the
// worker loop re-checks its context.
const popTimeout = time.Second

// Config holds Redis connection and retention settings for the queue.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password authenticates against the Redis server. Empty means no auth.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces every key written by the queue.
	KeyPrefix string

	// KeepResult is how long job records and results live after their
	// last write.
	KeepResult time.Duration
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// WithAddr sets the Redis server address.
func WithAddr(addr string) ConfigOption {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) ConfigOption {
	return func(c *Config) {
		c.Password = password
	}
}

// WithDB selects the Redis logical database.
func WithDB(db int) ConfigOption {
	return func(c *Config) {
		c.DB = db
	}
}

// WithKeyPrefix sets the key namespace prefix.
func WithKeyPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithKeepResult sets how long finished jobs stay readable.
func WithKeepResult(keep time.Duration) ConfigOption {
	return func(c *Config) {
		c.KeepResult = keep
	}
}

// DefaultConfig returns a Config with sensible local defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:       "localhost:6379",
		KeyPrefix:  "ktsearch:",
		KeepResult: time.Hour,
	}
}

// NewConfig creates a Config starting from defaults and applying options.
func NewConfig(opts ...ConfigOption) *Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("dispatch config: Addr is required")
	}
	if c.KeepResult <= 0 {
		return errors.New("dispatch config: KeepResult must be positive")
	}
	return nil
}

// RedisQueue implements Queue on Redis: one JSON record per job plus a
// pending list the workers block on. Records expire after KeepResult, so
// abandoned jobs disappear without a sweeper.
type RedisQueue struct {
	client    *redis.Client
	keyPrefix string
	keep      time.Duration
	logger    *slog.Logger
}

var _ Queue = (*RedisQueue)(nil)

// QueueOption configures a RedisQueue.
type QueueOption func(*RedisQueue)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *RedisQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewRedisQueue connects to Redis and returns a job queue. The
// connection is probed before the queue is handed out.
func NewRedisQueue(config *Config, opts ...QueueOption) (*RedisQueue, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Addr, err)
	}

	queue := &RedisQueue{
		client:    client,
		keyPrefix: config.KeyPrefix,
		keep:      config.KeepResult,
		logger:    slog.Default().With("component", "dispatch-queue"),
	}
	for _, opt := range opts {
		opt(queue)
	}
	return queue, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) jobKey(jobID string) string {
	return q.keyPrefix + "job:" + jobID
}

func (q *RedisQueue) resultKey(jobID string) string {
	return q.keyPrefix + "job:" + jobID + ":result"
}

func (q *RedisQueue) pendingKey() string {
	return q.keyPrefix + "jobs:pending"
}

// Enqueue submits a stage job and pushes it onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, stage, sessionID string) (string, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Stage:      stage,
		SessionID:  sessionID,
		Status:     StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.putJob(ctx, job); err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.pendingKey(), job.ID).Err(); err != nil {
		return "", err
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"stage", stage,
		"session_id", sessionID)
	return job.ID, nil
}

// Status reports the job's current lifecycle state.
func (q *RedisQueue) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Result returns the payload of a completed job.
func (q *RedisQueue) Result(ctx context.Context, jobID string) ([]byte, error) {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusComplete:
		data, err := q.client.Get(ctx, q.resultKey(jobID)).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		return data, err
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
	default:
		return nil, fmt.Errorf("%w: status %s", ErrJobNotFinished, job.Status)
	}
}

// Dequeue blocks briefly for the next pending job. It returns nil, nil
// when nothing arrived within the pop timeout, so the worker loop can
// check its context between attempts.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	values, err := q.client.BRPop(ctx, popTimeout, q.pendingKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	jobID := values[1]
	job, err := q.getJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		// The record expired while the id sat in the pending list.
		q.logger.Warn("dropping expired pending job", "job_id", jobID)
		return nil, nil
	}
	return job, err
}

// MarkRunning records that a worker picked the job up.
func (q *RedisQueue) MarkRunning(ctx context.Context, jobID string) error {
	return q.updateJob(ctx, jobID, func(job *Job) {
		job.Status = StatusRunning
		job.StartedAt = time.Now().UTC()
	})
}

// MarkComplete records the job's success and retains its payload.
func (q *RedisQueue) MarkComplete(ctx context.Context, jobID string, payload []byte) error {
	if len(payload) > 0 {
		if err := q.client.Set(ctx, q.resultKey(jobID), payload, q.keep).Err(); err != nil {
			return err
		}
	}
	return q.updateJob(ctx, jobID, func(job *Job) {
		job.Status = StatusComplete
		job.FinishedAt = time.Now().UTC()
	})
}

// MarkFailed records the job's failure message.
func (q *RedisQueue) MarkFailed(ctx context.Context, jobID string, cause error) error {
	return q.updateJob(ctx, jobID, func(job *Job) {
		job.Status = StatusFailed
		job.Error = cause.Error()
		job.FinishedAt = time.Now().UTC()
	})
}

func (q *RedisQueue) putJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.jobKey(job.ID), data, q.keep).Err()
}

func (q *RedisQueue) getJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

func (q *RedisQueue) updateJob(ctx context.Context, jobID string, mutate func(*Job)) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	mutate(job)
	return q.putJob(ctx, job)
}
