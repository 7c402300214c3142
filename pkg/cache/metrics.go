package cache

// Metrics is implemented by metric collectors interested in cache
// behavior. All methods must be safe for concurrent use. A nil Metrics is
// valid and disables collection.
type Metrics interface {
	// RecordHit is called when Get finds a resident chunk.
	RecordHit()

	// RecordMiss is called when Get misses.
	RecordMiss()

	// RecordEviction is called per evicted chunk with its size in bytes.
	RecordEviction(bytes uint64)

	// RecordResident is called after inserts and on Close with the current
	// resident byte total and chunk count.
	RecordResident(bytes uint64, chunks int)
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordHit()
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordMiss()
	}
}

func (c *Cache) recordEviction(bytes uint64) {
	if c.metrics != nil {
		c.metrics.RecordEviction(bytes)
	}
}

func (c *Cache) recordResident(bytes uint64, chunks int) {
	if c.metrics != nil {
		c.metrics.RecordResident(bytes, chunks)
	}
}
