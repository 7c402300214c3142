package fetcher

import "time"

// Priority labels a fetch by what drove it.
type Priority string

const (
	// PriorityBlocking marks fetches a reader is waiting on.
	PriorityBlocking Priority = "blocking"

	// PriorityPrefetch marks speculative read-ahead fetches.
	PriorityPrefetch Priority = "prefetch"
)

// Metrics is implemented by metric collectors interested in fetch
// scheduling. All methods must be safe for concurrent use. A nil Metrics
// is valid and disables collection.
type Metrics interface {
	// RecordFetch is called after each successful backend request with
	// the number of chunks it carried, the bytes transferred, and the
	// request duration.
	RecordFetch(priority Priority, chunks int, bytes uint64, duration time.Duration)

	// RecordFetchError is called after a failed backend request.
	RecordFetchError(priority Priority)

	// RecordCoalesced is called when adjacent chunks were merged into one
	// request, with the merged chunk count.
	RecordCoalesced(chunks int)

	// RecordDiskHit is called when the disk tier served a chunk.
	RecordDiskHit()

	// RecordPrefetchDropped is called when the prefetch queue was full
	// and a run was discarded.
	RecordPrefetchDropped()
}

func (f *Fetcher) recordFetch(priority Priority, chunks int, bytes uint64, d time.Duration) {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.RecordFetch(priority, chunks, bytes, d)
	}
}

func (f *Fetcher) recordFetchError(priority Priority) {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.RecordFetchError(priority)
	}
}

func (f *Fetcher) recordCoalesced(chunks int) {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.RecordCoalesced(chunks)
	}
}

func (f *Fetcher) recordDiskHit() {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.RecordDiskHit()
	}
}

func (f *Fetcher) recordPrefetchDropped() {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.RecordPrefetchDropped()
	}
}
