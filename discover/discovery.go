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


// Package discover enumerates the client entities present in the chunk
// store and answers entity lookups against that live set. The entity set is
// a read-through cache with a TTL: the store is scanned only when the cache
// has expired, and a failed scan falls back to the stale cache so query
// traffic survives store hiccups.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/storage"
)

const (
	// DefaultTTL is how long a discovered entity set stays fresh.
	DefaultTTL = time.Hour

	// DefaultMinChunks is the minimum chunk count an entity needs before it
	// is considered real. Single stray chunks with a misparsed client name
	// must not pollute the entity set.
	DefaultMinChunks = 5
)

// entityIgnorePatterns mark placeholder client values that must never
// surface as discovered entities. Matched as substrings of the uppercased
// name, so "TESTE_INTERNO" is dropped too.
var entityIgnorePatterns = []string{
	"UNKNOWN", "CLIENTE_DESCONHECIDO", "NULL", "NONE", "TEST", "TESTE", "DEBUG",
}

// moduleNames are the SAP module abbreviations recognized inside a chunk's
// searchable tags when aggregating per-entity module coverage.
var moduleNames = map[string]bool{
	"SD": true, "MM": true, "FI": true, "CO": true,
	"PP": true, "HR": true, "EWM": true, "BTP": true,
}

// Discovery maintains the set of entities currently known to the store.
type Discovery struct {
	chunks    storage.ChunkRepository
	logger    *slog.Logger
	ttl       time.Duration
	minChunks int

	mu       sync.RWMutex
	cache    map[string]*core.EntityInfo
	cachedAt time.Time
}

// Option configures a Discovery.
type Option func(*Discovery)

// WithLogger sets the logger used by the Discovery.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Discovery) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTTL sets how long a discovered entity set stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(d *Discovery) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithMinChunks sets the minimum chunk count for an entity to be kept.
// Zero keeps every entity.
func WithMinChunks(n int) Option {
	return func(d *Discovery) {
		if n >= 0 {
			d.minChunks = n
		}
	}
}

// NewDiscovery creates a Discovery over the given chunk repository.
func NewDiscovery(chunks storage.ChunkRepository, opts ...Option) *Discovery {
	d := &Discovery{
		chunks:    chunks,
		logger:    slog.Default().With("component", "discovery"),
		ttl:       DefaultTTL,
		minChunks: DefaultMinChunks,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns the entities currently known to the store, keyed by
// normalized name. While the cache is fresh no store access happens. On a
// store failure the previous set is served when one exists; the error
// surfaces only when there is nothing to fall back to. An empty store is
// not an error and yields an empty map.
//
// The returned map is the caller's to keep; the EntityInfo values are
// shared and must be treated as read-only.
func (d *Discovery) Discover(ctx context.Context) (map[string]*core.EntityInfo, error) {
	d.mu.RLock()
	if d.cacheValidLocked() {
		cached := d.snapshotLocked()
		d.mu.RUnlock()
		return cached, nil
	}
	d.mu.RUnlock()

	return d.refresh(ctx)
}

// ForceRefresh rebuilds the entity set from the store regardless of cache
// age.
func (d *Discovery) ForceRefresh(ctx context.Context) (map[string]*core.EntityInfo, error) {
	return d.refresh(ctx)
}

// Invalidate expires the cache so the next Discover hits the store. The
// cached data itself is kept as the stale fallback until a refresh
// succeeds.
func (d *Discovery) Invalidate() {
	d.mu.Lock()
	d.cachedAt = time.Time{}
	d.mu.Unlock()
	d.logger.Info("entity cache invalidated")
}

// KnownEntities returns the sorted normalized names of all discovered
// entities.
func (d *Discovery) KnownEntities(ctx context.Context) ([]string, error) {
	discovered, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(discovered))
	for name := range discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CacheStats describes the state of the discovery cache.
type CacheStats struct {
	Size     int           `json:"size"`
	CachedAt time.Time     `json:"cached_at"`
	Valid    bool          `json:"valid"`
	TTL      time.Duration `json:"ttl"`
	Entities []string      `json:"entities,omitempty"`
}

// Stats reports the cache state for diagnostics. It never touches the
// store.
func (d *Discovery) Stats() CacheStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entities := make([]string, 0, len(d.cache))
	for name := range d.cache {
		entities = append(entities, name)
	}
	sort.Strings(entities)

	return CacheStats{
		Size:     len(d.cache),
		CachedAt: d.cachedAt,
		Valid:    d.cacheValidLocked(),
		TTL:      d.ttl,
		Entities: entities,
	}
}

func (d *Discovery) refresh(ctx context.Context) (map[string]*core.EntityInfo, error) {
	start := time.Now()

	counts, err := d.chunks.CountBy(ctx, core.MetaClientName)
	if err != nil {
		return d.staleFallback(err)
	}

	// Deterministic aggregation order; raw spellings that normalize to the
	// same entity merge their counts, the dominant spelling names the
	// entity.
	rawNames := make([]string, 0, len(counts))
	for name := range counts {
		rawNames = append(rawNames, name)
	}
	sort.Strings(rawNames)

	now := time.Now()
	discovered := make(map[string]*core.EntityInfo)
	for _, raw := range rawNames {
		if shouldIgnoreEntity(raw) {
			continue
		}
		key := normalizeEntity(raw)
		info := discovered[key]
		if info == nil {
			info = &core.EntityInfo{
				Name:            raw,
				Normalized:      key,
				Variations:      Variations(raw),
				FirstDiscovered: now,
				LastUpdated:     now,
			}
			discovered[key] = info
		}
		info.ChunkCount += counts[raw]
		if counts[raw] > counts[info.Name] {
			info.Name = raw
			info.Variations = Variations(raw)
		}
	}

	for key, info := range discovered {
		if info.ChunkCount < d.minChunks {
			d.logger.Debug("entity below chunk threshold",
				"entity", info.Name, "chunks", info.ChunkCount)
			delete(discovered, key)
		}
	}

	if len(discovered) > 0 {
		if err := d.aggregateDetails(ctx, discovered); err != nil {
			return d.staleFallback(err)
		}
	}

	d.mu.Lock()
	for key, info := range discovered {
		if prev, ok := d.cache[key]; ok {
			info.FirstDiscovered = prev.FirstDiscovered
		}
	}
	d.cache = discovered
	d.cachedAt = now
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.logger.Info("entities discovered",
		"entities", len(discovered),
		"elapsed", time.Since(start))
	return snapshot, nil
}

// aggregateDetails fills module, phase and latest-meeting information with
// one pass over the store.
func (d *Discovery) aggregateDetails(ctx context.Context, discovered map[string]*core.EntityInfo) error {
	modules := make(map[string]map[string]struct{})
	phases := make(map[string]map[string]struct{})

	err := d.chunks.IterateChunks(ctx, func(chunk *core.Chunk) error {
		raw := chunk.Meta(core.MetaClientName)
		if raw == "" {
			return nil
		}
		key := normalizeEntity(raw)
		info, ok := discovered[key]
		if !ok {
			return nil
		}

		// Meeting dates are ISO formatted, so string order is date order.
		if date := chunk.Meta(core.MetaMeetingDate); date > info.LatestMeetingDate {
			info.LatestMeetingDate = date
		}
		if phase := chunk.Meta(core.MetaMeetingPhase); phase != "" {
			setAdd(phases, key, phase)
		}
		for _, tag := range strings.Split(chunk.Meta(core.MetaSearchableTags), ",") {
			tag = strings.ToUpper(strings.TrimSpace(tag))
			if moduleNames[tag] {
				setAdd(modules, key, tag)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for key, info := range discovered {
		info.Modules = sortedKeys(modules[key])
		info.Phases = sortedKeys(phases[key])
	}
	return nil
}

// staleFallback serves the previous entity set after a store failure, or
// surfaces the error when no set was ever built.
func (d *Discovery) staleFallback(err error) (map[string]*core.EntityInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.cache != nil {
		d.logger.Warn("entity discovery failed, serving stale cache",
			"error", err, "entities", len(d.cache))
		return d.snapshotLocked(), nil
	}
	return nil, fmt.Errorf("discovering entities: %w", err)
}

// cacheValidLocked reports whether the cache is fresh. Callers hold at
// least a read lock.
func (d *Discovery) cacheValidLocked() bool {
	return d.cache != nil && !d.cachedAt.IsZero() && time.Since(d.cachedAt) < d.ttl
}

// snapshotLocked copies the cache map so callers cannot disturb it. Callers
// hold at least a read lock.
func (d *Discovery) snapshotLocked() map[string]*core.EntityInfo {
	out := make(map[string]*core.EntityInfo, len(d.cache))
	for key, info := range d.cache {
		out[key] = info
	}
	return out
}

// shouldIgnoreEntity reports whether a client value is a placeholder rather
// than a real entity.
func shouldIgnoreEntity(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	upper := strings.ToUpper(name)
	for _, pattern := range entityIgnorePatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

func setAdd(sets map[string]map[string]struct{}, key, value string) {
	set := sets[key]
	if set == nil {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[value] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
