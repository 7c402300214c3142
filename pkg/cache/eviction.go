package cache

// evictToFitLocked evicts least-recently-used unpinned chunks until the
// resident set fits the byte budget. The chunk being inserted and pinned
// chunks are exempt, so when nothing else is evictable the cache
// transiently exceeds the budget instead of blocking the inserter or
// throwing away the bytes it just fetched. Caller must hold c.mu.
func (c *Cache) evictToFitLocked(keep ChunkID) {
	if c.maxBytes == 0 {
		return
	}

	for c.curBytes > c.maxBytes {
		victim, ok := c.lruVictimLocked(keep)
		if !ok {
			// Everything evictable is pinned or just arrived. Accept the
			// overshoot; the next insert retries after pins drain.
			return
		}
		s := c.resident[victim]
		delete(c.resident, victim)
		c.curBytes -= uint64(len(s.data))
		c.evictions++
		c.recordEviction(uint64(len(s.data)))
	}
}

// lruVictimLocked returns the unpinned resident chunk with the oldest
// access time, never the keep chunk. Caller must hold c.mu.
func (c *Cache) lruVictimLocked(keep ChunkID) (ChunkID, bool) {
	var (
		victim ChunkID
		oldest uint64
		found  bool
	)
	for id, s := range c.resident {
		if id == keep || s.pins > 0 {
			continue
		}
		if !found || s.lastUse < oldest {
			victim = id
			oldest = s.lastUse
			found = true
		}
	}
	return victim, found
}
