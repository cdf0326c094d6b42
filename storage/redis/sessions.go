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


package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poiesic/ktsearch/storage"
)

// connectTimeout bounds the startup connection probe.
const connectTimeout = 5 * time.Second

// SessionRepository implements storage.SessionRepository on Redis.
// Every key carries the configured TTL, so abandoned sessions expire
// without a sweeper.
type SessionRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

var _ storage.SessionRepository = (*SessionRepository)(nil)

// Option configures a SessionRepository.
type Option func(*SessionRepository)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionRepository) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSessionRepository connects to Redis and returns a session store.
// The connection is probed before the store is handed out, so a bad
// address fails here rather than on the first stage write.
func NewSessionRepository(config *Config, opts ...Option) (*SessionRepository, error) {
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

	store := &SessionRepository{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.SessionTTL,
		logger:    slog.Default().With("component", "session-store"),
	}
	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Close closes the Redis connection.
func (s *SessionRepository) Close() error {
	return s.client.Close()
}

// Ping checks whether the store is reachable.
func (s *SessionRepository) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// metaKey returns the key for the session bookkeeping record.
func (s *SessionRepository) metaKey(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID + ":meta"
}

// stageKey returns the key for one stage's output.
func (s *SessionRepository) stageKey(sessionID, stage string) string {
	return s.keyPrefix + "session:" + sessionID + ":stage:" + stage
}

// finalKey returns the key for the assembled response.
func (s *SessionRepository) finalKey(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID + ":final"
}

// sessionPattern matches every key belonging to a session.
func (s *SessionRepository) sessionPattern(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID + ":*"
}

// PutMeta stores the session bookkeeping record.
func (s *SessionRepository) PutMeta(ctx context.Context, sessionID string, data []byte) error {
	return s.put(ctx, s.metaKey(sessionID), data)
}

// GetMeta retrieves the session bookkeeping record.
func (s *SessionRepository) GetMeta(ctx context.Context, sessionID string) ([]byte, error) {
	return s.get(ctx, s.metaKey(sessionID))
}

// PutStage stores one stage's output for the session.
func (s *SessionRepository) PutStage(ctx context.Context, sessionID, stage string, data []byte) error {
	return s.put(ctx, s.stageKey(sessionID, stage), data)
}

// GetStage retrieves one stage's output for the session.
func (s *SessionRepository) GetStage(ctx context.Context, sessionID, stage string) ([]byte, error) {
	return s.get(ctx, s.stageKey(sessionID, stage))
}

// PutFinal stores the assembled search response for the session.
func (s *SessionRepository) PutFinal(ctx context.Context, sessionID string, data []byte) error {
	return s.put(ctx, s.finalKey(sessionID), data)
}

// GetFinal retrieves the assembled search response for the session.
func (s *SessionRepository) GetFinal(ctx context.Context, sessionID string) ([]byte, error) {
	return s.get(ctx, s.finalKey(sessionID))
}

// DeleteSession removes all keys belonging to the session.
func (s *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	keys, err := s.client.Keys(ctx, s.sessionPattern(sessionID)).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	s.logger.Debug("deleting session keys",
		"session_id", sessionID,
		"keys", len(keys))

	return s.client.Del(ctx, keys...).Err()
}

// put writes a value with the session TTL.
func (s *SessionRepository) put(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

// get reads a value, mapping absent keys to storage.ErrNotFound.
func (s *SessionRepository) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
