// Package cache provides an in-memory, tag-aware, TTL-bound LRU store and the
// three policy façades (analysis, dashboard, report) built on top of it.
package cache

import (
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/biaserr"
)

// entryOverhead approximates the bookkeeping bytes of one entry.
const entryOverhead = 160

// StoreConfig is fixed at construction.
type StoreConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Validate checks the config eagerly. A zero CleanupInterval disables the sweeper.
func (c StoreConfig) Validate(name string) error {
	if c.MaxEntries <= 0 {
		return biaserr.Configuration("cache."+name+".max_entries", "must be positive, got %d", c.MaxEntries)
	}
	if c.DefaultTTL <= 0 {
		return biaserr.Configuration("cache."+name+".default_ttl", "must be positive, got %s", c.DefaultTTL)
	}
	if c.CleanupInterval < 0 {
		return biaserr.Configuration("cache."+name+".cleanup_interval", "must not be negative, got %s", c.CleanupInterval)
	}
	return nil
}

// SetOptions override the per-entry TTL and attach tags.
type SetOptions struct {
	TTL  time.Duration
	Tags []string
}

// Stats is a point-in-time snapshot of a store.
type Stats struct {
	Entries     int       `json:"entries"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	HitRatio    float64   `json:"hit_ratio"`
	Evictions   int64     `json:"evictions"`
	Expirations int64     `json:"expirations"`
	OldestEntry time.Time `json:"oldest_entry,omitempty"`
	NewestEntry time.Time `json:"newest_entry,omitempty"`
	MemoryBytes int64     `json:"memory_bytes"`
}

type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	expiresAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
	tags           map[string]struct{}
	size           int64
}

func (e *entry[V]) expired(now time.Time) bool { return !now.Before(e.expiresAt) }

// StoreOption customizes a Store.
type StoreOption[V any] func(*Store[V])

// WithClock replaces time.Now.
func WithClock[V any](now func() time.Time) StoreOption[V] {
	return func(s *Store[V]) { s.now = now }
}

// WithLogger sets the logger used for eviction and sweep events.
func WithLogger[V any](l *zap.Logger) StoreOption[V] {
	return func(s *Store[V]) { s.logger = l }
}

// WithSizer sets the function used to estimate the memory footprint of a value.
func WithSizer[V any](fn func(V) int64) StoreOption[V] {
	return func(s *Store[V]) { s.sizeOf = fn }
}

// Store is a generic key/value store with per-entry expiration, tag membership
// and single-entry LRU eviction at insertion time.
//
// All access to the entry table happens under mu. Get takes the write lock
// because a hit refreshes lastAccessedAt, so the eviction scan in Set always
// sees a consistent snapshot of access times.
type Store[V any] struct {
	name   string
	cfg    StoreConfig
	now    func() time.Time
	logger *zap.Logger
	sizeOf func(V) int64

	mu      sync.RWMutex
	entries map[string]*entry[V]

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewStore creates a Store. The background sweeper is started by Start.
func NewStore[V any](name string, cfg StoreConfig, opts ...StoreOption[V]) (*Store[V], error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	s := &Store[V]{
		name:    name,
		cfg:     cfg,
		now:     time.Now,
		logger:  zap.NewNop(),
		entries: make(map[string]*entry[V]),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("cache", name))
	return s, nil
}

// Name returns the store name used in logs and metrics.
func (s *Store[V]) Name() string { return s.name }

// Set inserts or overwrites key. When the store is full and key is new,
// exactly one entry, the least recently used, is evicted first.
func (s *Store[V]) Set(key string, value V, opts SetOptions) {
	now := s.now()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	e := &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
		tags:           make(map[string]struct{}, len(opts.Tags)),
	}
	e.size = int64(entryOverhead + len(key))
	for _, t := range opts.Tags {
		e.tags[t] = struct{}{}
		e.size += int64(len(t))
	}
	if s.sizeOf != nil {
		e.size += s.sizeOf(value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.cfg.MaxEntries {
		s.evictOneLocked()
	}
	s.entries[key] = e
	cacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
}

// evictOneLocked removes the entry with the oldest lastAccessedAt. Ties are
// broken by creation time and then key so the choice is deterministic.
func (s *Store[V]) evictOneLocked() {
	var victim *entry[V]
	for _, e := range s.entries {
		if victim == nil || lessRecentlyUsed(e, victim) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(s.entries, victim.key)
	s.evictions.Add(1)
	cacheEvictions.WithLabelValues(s.name).Inc()
	s.logger.Debug("evicted least recently used entry", zap.String("key", victim.key))
}

func lessRecentlyUsed[V any](a, b *entry[V]) bool {
	if !a.lastAccessedAt.Equal(b.lastAccessedAt) {
		return a.lastAccessedAt.Before(b.lastAccessedAt)
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.key < b.key
}

// Get returns the value for key. Missing and expired entries are absent;
// expired entries are removed on the way out. A hit refreshes the entry's
// access time, exempting it from the next eviction.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.recordMiss()
		return zero, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		s.expirations.Add(1)
		cacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
		s.recordMiss()
		return zero, false
	}
	e.accessCount++
	e.lastAccessedAt = now
	s.hits.Add(1)
	cacheHits.WithLabelValues(s.name).Inc()
	return e.value, true
}

func (s *Store[V]) recordMiss() {
	s.misses.Add(1)
	cacheMisses.WithLabelValues(s.name).Inc()
}

// Has reports whether key is present and unexpired without touching access
// metadata or hit counters.
func (s *Store[V]) Has(key string) bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return ok && !e.expired(now)
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	cacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return true
}

// InvalidateByTags removes every entry carrying at least one of tags and
// returns how many were removed.
func (s *Store[V]) InvalidateByTags(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}
	return s.removeWhere(func(e *entry[V]) bool {
		for _, t := range tags {
			if _, ok := e.tags[t]; ok {
				return true
			}
		}
		return false
	})
}

// removeTagged removes every entry for which match returns true on any of its tags.
func (s *Store[V]) removeTagged(match func(tag string) bool) int {
	return s.removeWhere(func(e *entry[V]) bool {
		for t := range e.tags {
			if match(t) {
				return true
			}
		}
		return false
	})
}

func (s *Store[V]) removeWhere(match func(*entry[V]) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if match(e) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		cacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	}
	return removed
}

// Clear removes every entry.
func (s *Store[V]) Clear() int {
	return s.removeWhere(func(*entry[V]) bool { return true })
}

// Cleanup removes every expired entry and returns how many were removed.
func (s *Store[V]) Cleanup() int {
	now := s.now()
	n := s.removeWhere(func(e *entry[V]) bool { return e.expired(now) })
	if n > 0 {
		s.expirations.Add(int64(n))
		s.logger.Debug("swept expired entries", zap.Int("removed", n))
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns cumulative counters and a snapshot of the entry table.
func (s *Store[V]) Stats() Stats {
	s.mu.RLock()
	st := Stats{Entries: len(s.entries)}
	for _, e := range s.entries {
		st.MemoryBytes += e.size
		if st.OldestEntry.IsZero() || e.createdAt.Before(st.OldestEntry) {
			st.OldestEntry = e.createdAt
		}
		if e.createdAt.After(st.NewestEntry) {
			st.NewestEntry = e.createdAt
		}
	}
	s.mu.RUnlock()

	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	st.Evictions = s.evictions.Load()
	st.Expirations = s.expirations.Load()
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	return st
}

// Keys returns all stored keys in sorted order. Diagnostics only.
func (s *Store[V]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// KeysByPattern returns the sorted keys matching a path.Match glob. Diagnostics only.
func (s *Store[V]) KeysByPattern(pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("keys by pattern %q: %w", pattern, err)
	}
	var out []string
	for _, k := range s.Keys() {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// Start launches the periodic expiry sweep. It is a no-op when the cleanup
// interval is zero or the store was already started.
func (s *Store[V]) Start() {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.cleanupLoop()
	})
}

// Close stops the sweeper and waits for it to exit. Safe to call more than once.
func (s *Store[V]) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Store[V]) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
