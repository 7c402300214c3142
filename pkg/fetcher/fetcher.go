// Package fetcher schedules chunk fetches against the remote object store.
//
// All reads funnel through a fixed worker pool, which is the global
// concurrency cap towards the backend. Two queues feed the pool:
//
//  1. Blocking - a reader is waiting on this chunk right now
//  2. Prefetch - speculative read-ahead issued by streams
//
// Workers drain the blocking queue first using a two-phase select, so a
// burst of prefetch can never starve a demand read. Prefetch is best
// effort end to end: enqueueing drops silently when the queue is full and
// fetch errors are swallowed, because a later demand read retries the
// chunk anyway.
//
// Adjacent prefetch chunks are coalesced into a single ranged request,
// bounded by CoalesceMax, trading request count for transfer granularity.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// ErrStopped is returned to demand readers whose fetch was still queued
// when the fetcher shut down.
var ErrStopped = errors.New("fetcher: stopped")

// DiskTier is an optional second-level chunk store consulted before the
// remote backend and written through after a successful remote fetch.
// DropObject purges one generation's chunks when a fetch observes that
// the object changed upstream. Implemented by disk.Store.
type DiskTier interface {
	Get(ctx context.Context, id cache.ChunkID) ([]byte, bool, error)
	Put(ctx context.Context, id cache.ChunkID, data []byte) error
	DropObject(ctx context.Context, key, etag string) error
}

// Config holds fetcher configuration.
type Config struct {
	// Workers is the number of fetch workers, which caps concurrent
	// backend requests. Defaults to 8.
	Workers int

	// QueueSize is the capacity of each priority queue. Defaults to 256.
	QueueSize int

	// CoalesceMax is the maximum number of adjacent chunks merged into a
	// single ranged request. Defaults to 4.
	CoalesceMax uint32

	// FetchTimeout bounds a single backend request, independently of any
	// reader's context. Defaults to 2 minutes.
	FetchTimeout time.Duration

	// DiskTier is the optional on-disk chunk store. Nil disables it.
	DiskTier DiskTier

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

func (cfg *Config) applyDefaults() {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.CoalesceMax == 0 {
		cfg.CoalesceMax = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
}

// request is one unit of queued work: a single demand chunk, or a run of
// adjacent prefetch chunks.
type request struct {
	id     object.ID
	layout chunk.Layout

	// start is the first chunk index; count is the run length. Demand
	// requests always have count 1.
	start uint32
	count uint32

	// ticket is the reserved fetch ticket for a demand request. Prefetch
	// requests reserve at processing time instead, so a dropped prefetch
	// leaves no dangling ticket.
	ticket *cache.Ticket

	// done, when set, is called once with the run length after the
	// request is processed. Streams use it to bound in-flight prefetch.
	done func(chunks uint32)
}

// Fetcher is the chunk fetch scheduler. Safe for concurrent use.
type Fetcher struct {
	client storeobject.Client
	cache  *cache.Cache
	cfg    Config

	blocking chan request
	prefetch chan request

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
}

// New creates a fetcher. Call Start before use.
func New(client storeobject.Client, chunkCache *cache.Cache, cfg Config) *Fetcher {
	cfg.applyDefaults()

	return &Fetcher{
		client:    client,
		cache:     chunkCache,
		cfg:       cfg,
		blocking:  make(chan request, cfg.QueueSize),
		prefetch:  make(chan request, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the worker pool. Idempotent.
func (f *Fetcher) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	logger.Info("Starting fetcher", "workers", f.cfg.Workers, "coalesceMax", f.cfg.CoalesceMax)

	for i := 0; i < f.cfg.Workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}

	go func() {
		f.wg.Wait()
		close(f.stoppedCh)
	}()
}

// Stop shuts the pool down. Queued demand requests fail with ErrStopped;
// queued prefetch is discarded. Waits up to timeout for in-progress
// fetches to finish.
func (f *Fetcher) Stop(timeout time.Duration) {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	close(f.stopCh)

	select {
	case <-f.stoppedCh:
		// Requests enqueued while shutdown raced the workers are settled
		// here so no waiter hangs.
		f.drain()
		logger.Info("Fetcher stopped")
	case <-time.After(timeout):
		logger.Warn("Fetcher stop timed out")
	}
}

// FetchChunk returns the bytes of one chunk, going through the cache. The
// common paths, in order: cache hit, attach to an in-flight fetch, own the
// fetch via the blocking queue. The returned slice is shared and must not
// be mutated.
//
// Cancelling ctx detaches this caller only; a fetch in progress completes
// for the benefit of other waiters and the cache.
func (f *Fetcher) FetchChunk(ctx context.Context, id object.ID, layout chunk.Layout, index uint32) ([]byte, error) {
	cid := cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: index}

	if pin := f.cache.Get(cid); pin != nil {
		defer pin.Release()
		return pin.Data, nil
	}

	return f.StartFetch(ctx, id, layout, index).Wait(ctx)
}

// StartFetch begins a demand fetch of one chunk without waiting for it.
// Reads spanning several chunks start them all, then wait in offset
// order, so the chunks download in parallel. The returned ticket may
// already be settled when the chunk was resident or in flight.
func (f *Fetcher) StartFetch(ctx context.Context, id object.ID, layout chunk.Layout, index uint32) *cache.Ticket {
	cid := cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: index}

	ticket, created := f.cache.Reserve(cid)
	if !created {
		return ticket
	}

	select {
	case <-f.stopCh:
		ticket.Fail(ErrStopped)
		return ticket
	default:
	}

	req := request{id: id, layout: layout, start: index, count: 1, ticket: ticket}
	select {
	case f.blocking <- req:
	case <-f.stopCh:
		ticket.Fail(ErrStopped)
	case <-ctx.Done():
		// Nobody will process the ticket we own; settle it so other
		// waiters retry instead of hanging.
		ticket.Fail(ctx.Err())
	}

	return ticket
}

// Prefetch enqueues a best-effort read-ahead of count chunks starting at
// start, clipped to the object size. Adjacent chunks are split into runs
// of at most CoalesceMax and each run becomes one queue entry. Runs that
// do not fit the queue are dropped.
//
// Returns the number of chunks actually enqueued. onDone, when non-nil,
// is called once per processed run with the run length.
func (f *Fetcher) Prefetch(id object.ID, layout chunk.Layout, start, count uint32, onDone func(chunks uint32)) uint32 {
	total := layout.Count(id.Size)
	if start >= total {
		return 0
	}
	if start+count > total {
		count = total - start
	}

	var enqueued uint32
	for count > 0 {
		run := min(count, f.cfg.CoalesceMax)

		// Skip runs that are fully resident already; partial residency is
		// resolved at processing time.
		if f.runResident(id, start, run) {
			start += run
			count -= run
			continue
		}

		req := request{id: id, layout: layout, start: start, count: run, done: onDone}
		select {
		case f.prefetch <- req:
			enqueued += run
		default:
			f.recordPrefetchDropped()
			return enqueued
		}

		start += run
		count -= run
	}

	return enqueued
}

func (f *Fetcher) runResident(id object.ID, start, count uint32) bool {
	for i := start; i < start+count; i++ {
		if !f.cache.Contains(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: i}) {
			return false
		}
	}
	return true
}

// QueueDepths returns the current lengths of the blocking and prefetch
// queues.
func (f *Fetcher) QueueDepths() (blocking, prefetch int) {
	return len(f.blocking), len(f.prefetch)
}
