// Package cache is a bounded, tag addressable, expiring store for read
// responses. It is a performance optimisation only: any entry may be dropped
// at any time and every value must be reconstructible from the network.
//
// Eviction under entry or memory pressure removes entries in insertion order
// (oldest write first). Reads do not refresh an entry's position; a re-Set
// does.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Entry is one cached value. Entries are replaced, never mutated, once stored.
type Entry[V any] struct {
	Key       string
	Value     V
	Timestamp time.Time
	ExpiresAt time.Time
	Tags      []string
	Size      int64
}

func (e *Entry[V]) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Config bounds the store. A zero MaxEntries or MaxMemoryBytes means unbounded.
type Config struct {
	DefaultTTL      time.Duration
	MaxEntries      int
	MaxMemoryBytes  int64
	CleanupInterval time.Duration
}

type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Entries     int
	MemoryBytes int64
	HitRate     float64
}

type Option[V any] func(*Store[V])

// WithSizer overrides how the approximate size of a value is computed.
func WithSizer[V any](sizer Sizer[V]) Option[V] {
	return func(s *Store[V]) {
		s.sizer = sizer
	}
}

func WithNowFunc[V any](now func() time.Time) Option[V] {
	return func(s *Store[V]) {
		s.now = now
	}
}

func WithLogger[V any](logger zerolog.Logger) Option[V] {
	return func(s *Store[V]) {
		s.logger = logger
	}
}

// Store is safe for concurrent use.
type Store[V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*list.Element
	order   *list.List // front is the oldest write
	tags    map[string]map[string]struct{}
	memory  int64
	sizer   Sizer[V]
	now     func() time.Time
	logger  zerolog.Logger
	sweeper *sweeper
	sweepMu sync.Mutex

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func New[V any](cfg Config, options ...Option[V]) *Store[V] {
	s := &Store[V]{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		tags:    make(map[string]map[string]struct{}),
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.cfg.DefaultTTL <= 0 {
		s.cfg.DefaultTTL = 5 * time.Minute
	}
	if s.sizer == nil {
		s.sizer = DefaultSizer[V]
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Get returns the value stored under key when it has not expired. Expired
// entries are removed on access and count as a miss.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	el, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return zero, false
	}
	entry := el.Value.(*Entry[V])
	if entry.expired(s.now()) {
		s.removeElement(el)
		s.misses.Add(1)
		return zero, false
	}
	s.hits.Add(1)
	return entry.Value, true
}

// Peek returns the live entry for key without touching the statistics.
func (s *Store[V]) Peek(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	entry := el.Value.(*Entry[V])
	if entry.expired(s.now()) {
		return Entry[V]{}, false
	}
	return *entry, true
}

// Set stores value under key, replacing any previous entry. A non-positive
// ttl uses the configured default. Bounds are enforced before Set returns.
func (s *Store[V]) Set(key string, value V, ttl time.Duration, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if el, ok := s.entries[key]; ok {
		s.removeElement(el)
	}

	now := s.now()
	entry := &Entry[V]{
		Key:       key,
		Value:     value,
		Timestamp: now,
		ExpiresAt: now.Add(ttl),
		Tags:      uniqueTags(tags),
		Size:      int64(len(key)) + s.sizer(value),
	}
	s.entries[key] = s.order.PushBack(entry)
	s.memory += entry.Size
	for _, tag := range entry.Tags {
		keys, ok := s.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}

	s.enforceBounds()
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeElement(el)
	return true
}

func (s *Store[V]) InvalidateByTag(tag string) int {
	return s.InvalidateByTags(tag)
}

// InvalidateByTags removes every entry carrying at least one of tags and
// returns the number removed.
func (s *Store[V]) InvalidateByTags(tags ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		for key := range s.tags[tag] {
			if el, ok := s.entries[key]; ok {
				s.removeElement(el)
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Debug().Strs("tags", tags).Int("removed", removed).Msg("cache: invalidated by tag")
	}
	return removed
}

// EvictLRU removes the n entries with the oldest write timestamp and returns
// how many were removed.
func (s *Store[V]) EvictLRU(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictOldest(n)
}

// Cleanup removes every expired entry and returns the number removed.
func (s *Store[V]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry[V]).expired(now) {
			s.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops every entry. Statistics are kept.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*list.Element)
	s.order.Init()
	s.tags = make(map[string]map[string]struct{})
	s.memory = 0
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Configure replaces the bounds and evicts immediately if the store now exceeds them.
func (s *Store[V]) Configure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = s.cfg.DefaultTTL
	}
	s.cfg = cfg
	s.enforceBounds()
}

func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	entries, memory := len(s.entries), s.memory
	s.mu.Unlock()

	hits, misses := s.hits.Load(), s.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   s.evictions.Load(),
		Entries:     entries,
		MemoryBytes: memory,
		HitRate:     rate,
	}
}

// enforceBounds must be called with mu held.
func (s *Store[V]) enforceBounds() {
	for s.order.Len() > 0 && s.overBounds() {
		s.evictOldest(1)
	}
}

func (s *Store[V]) overBounds() bool {
	if s.cfg.MaxEntries > 0 && len(s.entries) > s.cfg.MaxEntries {
		return true
	}
	return s.cfg.MaxMemoryBytes > 0 && s.memory > s.cfg.MaxMemoryBytes
}

func (s *Store[V]) evictOldest(n int) int {
	evicted := 0
	for evicted < n {
		el := s.order.Front()
		if el == nil {
			break
		}
		s.removeElement(el)
		evicted++
	}
	s.evictions.Add(uint64(evicted))
	return evicted
}

func (s *Store[V]) removeElement(el *list.Element) {
	entry := s.order.Remove(el).(*Entry[V])
	delete(s.entries, entry.Key)
	s.memory -= entry.Size
	for _, tag := range entry.Tags {
		if keys, ok := s.tags[tag]; ok {
			delete(keys, entry.Key)
			if len(keys) == 0 {
				delete(s.tags, tag)
			}
		}
	}
}

func uniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
