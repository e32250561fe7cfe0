// Package cache implements the per-site response store: an LRU bounded by
// total bytes, with a TTL on every entry, pattern-based deletion, and
// monotonic statistics.
package cache

import (
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/wpmcp/wpmcp/internal/clock"
)

// Entry is one cached response.
type Entry struct {
	Key          string
	Body         []byte
	Headers      map[string]string
	StatusCode   int
	ETag         string
	LastModified string

	StoredAt time.Time
	TTL      time.Duration

	// Grace extends retention past the TTL so an expired entry can still
	// serve as a revalidation candidate. Within the grace window Get
	// reports a miss but leaves the entry in place.
	Grace time.Duration

	// Pinned entries are never evicted under LRU pressure, only by TTL or
	// explicit deletion.
	Pinned bool
}

// Size returns the accounted byte cost of the entry.
func (e *Entry) Size() int64 {
	n := int64(len(e.Key)) + int64(len(e.Body)) + int64(len(e.ETag)) + int64(len(e.LastModified))
	for k, v := range e.Headers {
		n += int64(len(k)) + int64(len(v))
	}
	return n
}

// expiresAt is the instant the entry goes stale.
func (e *Entry) expiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// retainUntil is the instant the entry stops being worth keeping at all.
func (e *Entry) retainUntil() time.Time {
	return e.StoredAt.Add(e.TTL + e.Grace)
}

// Stats holds monotonic store counters plus current occupancy.
type Stats struct {
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Sets              int64 `json:"sets"`
	TTLEvictions      int64 `json:"ttl_evictions"`
	LRUEvictions      int64 `json:"lru_evictions"`
	ExplicitEvictions int64 `json:"explicit_evictions"`
	Bytes             int64 `json:"bytes"`
	Entries           int   `json:"entries"`
}

// Store is the TTL+LRU byte-bounded map. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *Entry]
	bytes    int64
	maxBytes int64
	clk      clock.Clock

	hits, misses, sets            int64
	ttlEvict, lruEvict, explEvict int64
}

// maxEntries bounds the underlying LRU's entry count; the real limit is
// maxBytes.
const maxEntries = 1 << 17

// New creates a store bounded at maxBytes total entry cost.
func New(maxBytes int64, clk clock.Clock) *Store {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Store{maxBytes: maxBytes, clk: clk}
	lru, err := simplelru.NewLRU[string, *Entry](maxEntries, func(_ string, e *Entry) {
		s.bytes -= e.Size()
	})
	if err != nil {
		panic(err) // only fails on size <= 0
	}
	s.lru = lru
	return s
}

// Get returns the live entry for key. An expired entry is evicted and
// reported as a miss.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		s.misses++
		return nil, false
	}
	now := s.clk.Now()
	if !now.Before(e.expiresAt()) {
		// Past the grace window the entry is dropped outright; inside it
		// the entry stays as a revalidation candidate for Peek.
		if !now.Before(e.retainUntil()) {
			s.lru.Remove(key)
			s.ttlEvict++
		}
		s.misses++
		return nil, false
	}
	s.hits++
	return e, true
}

// Peek returns the entry without recency update or TTL eviction. The bool
// result reports whether the entry is still fresh. Used by the HTTP cache
// wrapper to find stale-but-validatable entries.
func (s *Store) Peek(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	if !ok {
		return nil, false
	}
	return e, s.clk.Now().Before(e.expiresAt())
}

// Set stores an entry under key with the given TTL, evicting under LRU
// pressure until total bytes fit the bound again.
func (s *Store) Set(key string, e *Entry, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Key = key
	e.StoredAt = s.clk.Now()
	e.TTL = ttl

	// Replacing a value does not fire the eviction callback, so the old
	// entry's cost is released here.
	if old, ok := s.lru.Peek(key); ok {
		s.bytes -= old.Size()
	}
	s.lru.Add(key, e)
	s.bytes += e.Size()
	s.sets++
	s.evictOverBytes()
}

// Touch refreshes an entry's TTL and validators in place after a 304.
func (s *Store) Touch(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		return false
	}
	e.StoredAt = s.clk.Now()
	e.TTL = ttl
	return true
}

// evictOverBytes removes least-recently-used unpinned entries until the
// store fits maxBytes. Caller holds mu.
func (s *Store) evictOverBytes() {
	if s.bytes <= s.maxBytes {
		return
	}
	// Keys are ordered oldest to newest.
	for _, key := range s.lru.Keys() {
		if s.bytes <= s.maxBytes {
			return
		}
		e, ok := s.lru.Peek(key)
		if !ok || e.Pinned {
			continue
		}
		s.lru.Remove(key)
		s.lruEvict++
	}
}

// Delete removes a single key.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lru.Remove(key) {
		s.explEvict++
		return true
	}
	return false
}

// DeletePattern removes every key matching re and returns the count. Linear
// over keys; only the invalidation engine calls it.
func (s *Store) DeletePattern(re *regexp.Regexp) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, key := range s.lru.Keys() {
		if re.MatchString(key) {
			s.lru.Remove(key)
			s.explEvict++
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.explEvict += int64(s.lru.Len())
	s.lru.Purge()
	s.bytes = 0
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:              s.hits,
		Misses:            s.misses,
		Sets:              s.sets,
		TTLEvictions:      s.ttlEvict,
		LRUEvictions:      s.lruEvict,
		ExplicitEvictions: s.explEvict,
		Bytes:             s.bytes,
		Entries:           s.lru.Len(),
	}
}
