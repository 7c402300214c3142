package stream

// Metrics is implemented by metric collectors interested in stream-level
// read behavior. All methods must be safe for concurrent use. A nil
// Metrics is valid and disables collection.
type Metrics interface {
	// RecordRead is called per completed read with the bytes returned.
	RecordRead(bytes uint64)

	// RecordPattern is called when a stream's classification changes.
	RecordPattern(p Pattern)

	// RecordPrefetchIssued is called with the number of chunks a read
	// queued for read-ahead.
	RecordPrefetchIssued(chunks uint32)

	// RecordObjectChanged is called when a stream latches a generation
	// mismatch.
	RecordObjectChanged()
}

func (s *Stream) recordRead(bytes uint64) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordRead(bytes)
	}
}

func (s *Stream) recordPattern(p Pattern) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordPattern(p)
	}
}

func (s *Stream) recordPrefetchIssued(chunks uint32) {
	if s.cfg.Metrics != nil && chunks > 0 {
		s.cfg.Metrics.RecordPrefetchIssued(chunks)
	}
}

func (s *Stream) recordObjectChanged() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordObjectChanged()
	}
}
