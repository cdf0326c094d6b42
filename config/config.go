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


// Package config loads service configuration from an optional YAML file
// with KTSEARCH_* environment overrides.
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "KTSEARCH_"

// Config is the full service configuration.
type Config struct {
	// LogLevel is the minimum level emitted: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// DataDir is where the chunk store keeps its files. Empty selects an
	// in-memory store.
	DataDir string `yaml:"data_dir"`

	AI     AIConfig     `yaml:"ai"`
	Redis  RedisConfig  `yaml:"redis"`
	Search SearchConfig `yaml:"search"`
	Worker WorkerConfig `yaml:"worker"`
}

// AIConfig configures the embedding and completion endpoints.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embedding_host"`
	CompletionHost  string `yaml:"completion_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	CompletionModel string `yaml:"completion_model"`
	MaxRetries      int    `yaml:"max_retries"`
}

// RedisConfig configures the session store and job queue.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	KeyPrefix  string        `yaml:"key_prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// SearchConfig tunes the query pipeline.
type SearchConfig struct {
	MinQueryLength int           `yaml:"min_query_length"`
	TopK           int           `yaml:"top_k"`
	MinSimilarity  float32       `yaml:"min_similarity"`
	StageTimeout   time.Duration `yaml:"stage_timeout"`
}

// WorkerConfig tunes the staged-mode worker.
type WorkerConfig struct {
	MaxJobs     int           `yaml:"max_jobs"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		AI: AIConfig{
			EmbeddingHost:   "http://localhost:11434/v1",
			CompletionHost:  "http://localhost:11434/v1",
			EmbeddingModel:  "embeddinggemma",
			CompletionModel: "qwen2.5:3b",
			MaxRetries:      3,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			KeyPrefix:  "ktsearch:",
			SessionTTL: time.Hour,
		},
		Search: SearchConfig{
			MinQueryLength: 3,
			TopK:           10,
			MinSimilarity:  0.2,
			StageTimeout:   5 * time.Minute,
		},
		Worker: WorkerConfig{
			MaxJobs:    2,
			JobTimeout: 2 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty; missing files are an error), then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from KTSEARCH_* variables.
func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DataDir, "DATA_DIR")

	setString(&cfg.AI.EmbeddingHost, "AI_EMBEDDING_HOST")
	setString(&cfg.AI.CompletionHost, "AI_COMPLETION_HOST")
	setString(&cfg.AI.EmbeddingModel, "AI_EMBEDDING_MODEL")
	setString(&cfg.AI.CompletionModel, "AI_COMPLETION_MODEL")
	if err := setInt(&cfg.AI.MaxRetries, "AI_MAX_RETRIES"); err != nil {
		return err
	}

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Redis.SessionTTL, "REDIS_SESSION_TTL"); err != nil {
		return err
	}

	if err := setInt(&cfg.Search.MinQueryLength, "SEARCH_MIN_QUERY_LENGTH"); err != nil {
		return err
	}
	if err := setInt(&cfg.Search.TopK, "SEARCH_TOP_K"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Search.StageTimeout, "SEARCH_STAGE_TIMEOUT"); err != nil {
		return err
	}

	if err := setInt(&cfg.Worker.MaxJobs, "WORKER_MAX_JOBS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Worker.JobTimeout, "WORKER_JOB_TIMEOUT"); err != nil {
		return err
	}
	setString(&cfg.Worker.MetricsAddr, "WORKER_METRICS_ADDR")
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required")
	}
	if c.Redis.SessionTTL <= 0 {
		return errors.New("config: redis.session_ttl must be positive")
	}
	if c.Search.MinQueryLength < 1 {
		return errors.New("config: search.min_query_length must be at least 1")
	}
	if c.Search.TopK < 1 {
		return errors.New("config: search.top_k must be at least 1")
	}
	if c.Worker.MaxJobs < 1 {
		return errors.New("config: worker.max_jobs must be at least 1")
	}
	return nil
}

func setString(target *string, name string) {
	if value, ok := os.LookupEnv(EnvPrefix + name); ok {
		*target = value
	}
}

func setInt(target *int, name string) error {
	value, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
	}
	*target = parsed
	return nil
}

func setDuration(target *time.Duration, name string) error {
	value, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
	}
	*target = parsed
	return nil
}
