// Package cache implements the in-memory chunk cache for the DriftFS data
// path.
//
// The cache stores fetched byte ranges keyed by (object generation, chunk
// index) under a fixed byte budget. It is also the synchronization point
// for in-flight deduplication: Reserve hands out at most one fetch ticket
// per chunk, and every later caller for the same chunk attaches to the
// existing ticket as a waiter instead of issuing a duplicate fetch.
//
// A chunk is in exactly one of three states:
//   - absent: not in the cache, no ticket outstanding
//   - in-flight: a ticket exists; the reserving caller is fetching
//   - resident: bytes available, tracked for LRU eviction
//
// Eviction only considers resident chunks with no active pins. When every
// resident chunk is pinned the cache transiently exceeds its budget rather
// than blocking; the fetch concurrency cap bounds the overshoot.
package cache

import (
	"sync"

	"github.com/marmos91/driftfs/pkg/object"
)

// ChunkID identifies a chunk of a specific object generation. Two handles
// open on the same unchanged object share cache entries; a handle open on a
// newer generation does not, because the ETag differs.
type ChunkID struct {
	Key   object.Key
	ETag  object.ETag
	Index uint32
}

// slot is a resident cache entry.
type slot struct {
	data    []byte
	pins    int
	lastUse uint64 // logical clock value of the most recent access
}

// Cache is the chunk cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	resident map[ChunkID]*slot
	inflight map[ChunkID]*Ticket

	maxBytes uint64
	curBytes uint64
	clock    uint64 // logical access clock, monotonic under mu

	hits      uint64
	misses    uint64
	evictions uint64

	metrics Metrics
	closed  bool
}

// Config holds cache configuration.
type Config struct {
	// MaxBytes is the resident-set byte budget. Zero means no limit.
	MaxBytes uint64

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	return &Cache{
		resident: make(map[ChunkID]*slot),
		inflight: make(map[ChunkID]*Ticket),
		maxBytes: cfg.MaxBytes,
		metrics:  cfg.Metrics,
	}
}

// Get returns a pinned reference to a resident chunk, or nil if the chunk
// is not resident. The caller must Release the pin after copying out the
// bytes it needs; a pinned chunk is never evicted.
func (c *Cache) Get(id ChunkID) *Pin {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	s, ok := c.resident[id]
	if !ok {
		c.misses++
		c.recordMiss()
		return nil
	}

	c.clock++
	s.lastUse = c.clock
	s.pins++
	c.hits++
	c.recordHit()

	return &Pin{cache: c, id: id, Data: s.data}
}

// Contains reports whether a chunk is resident, without pinning it or
// refreshing its LRU position. Used by the prefetcher to skip chunks that
// are already in.
func (c *Cache) Contains(id ChunkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resident[id]
	return ok
}

// Reserve returns the fetch ticket for a chunk. If created is true the
// caller owns the fetch: it must call exactly one of Complete or Fail on
// the ticket. If created is false another fetch is already in flight and
// the caller should Wait on the returned ticket.
//
// If the chunk is already resident, Reserve returns a pre-completed ticket
// whose Wait returns immediately; created is false.
func (c *Cache) Reserve(id ChunkID) (t *Ticket, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		t = newTicket(c, id)
		t.fail(ErrCacheClosed)
		return t, false
	}

	// Already resident: hand back a completed ticket so callers have a
	// single wait path.
	if s, ok := c.resident[id]; ok {
		c.clock++
		s.lastUse = c.clock
		t = newTicket(c, id)
		t.complete(s.data)
		return t, false
	}

	if existing, ok := c.inflight[id]; ok {
		return existing, false
	}

	t = newTicket(c, id)
	c.inflight[id] = t
	return t, true
}

// settleInsert removes the ticket from the in-flight table and makes the
// chunk resident in one critical section, so a concurrent Reserve always
// sees the chunk either in flight or resident and never issues a
// redundant fetch in between. Called from Ticket.Complete.
func (c *Cache) settleInsert(id ChunkID, t *Ticket, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[id] == t {
		delete(c.inflight, id)
	}

	if c.closed {
		return
	}
	if _, ok := c.resident[id]; ok {
		return
	}

	c.clock++
	c.resident[id] = &slot{data: data, lastUse: c.clock}
	c.curBytes += uint64(len(data))
	c.evictToFitLocked(id)
	c.recordResident(c.curBytes, len(c.resident))
}

// removeInflight drops a ticket from the in-flight table. Called by the
// ticket itself on failure.
func (c *Cache) removeInflight(id ChunkID, t *Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[id] == t {
		delete(c.inflight, id)
	}
}

// release drops one pin from a resident chunk.
func (c *Cache) release(id ChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.resident[id]
	if !ok {
		return
	}
	if s.pins > 0 {
		s.pins--
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	ResidentBytes  uint64
	ResidentChunks int
	InflightChunks int
	Hits           uint64
	Misses         uint64
	Evictions      uint64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ResidentBytes:  c.curBytes,
		ResidentChunks: len(c.resident),
		InflightChunks: len(c.inflight),
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
	}
}

// MaxBytes returns the configured byte budget, zero meaning unlimited.
func (c *Cache) MaxBytes() uint64 {
	return c.maxBytes
}

// Close empties the cache. Outstanding tickets fail with ErrCacheClosed
// when their owner completes them; pinned data stays valid for holders
// since slices are immutable once inserted.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.resident = make(map[ChunkID]*slot)
	c.curBytes = 0
	c.recordResident(0, 0)
}
