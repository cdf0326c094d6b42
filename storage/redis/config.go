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
	"errors"
	"time"
)

// Config holds Redis connection and session expiry settings.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password authenticates against the Redis server. Empty means no auth.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces every key written by this store.
	KeyPrefix string

	// SessionTTL is how long session keys live after their last write.
	SessionTTL time.Duration
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

// WithSessionTTL sets the session key lifetime.
func WithSessionTTL(ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.SessionTTL = ttl
	}
}

// DefaultConfig returns a Config with sensible local defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:       "localhost:6379",
		KeyPrefix:  "ktsearch:",
		SessionTTL: time.Hour,
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
		return errors.New("redis config: Addr is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("redis config: SessionTTL must be positive")
	}
	return nil
}
