package fetcher

import (
	"context"
	"time"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// worker processes fetch requests with priority ordering: blocking reads
// always win over prefetch.
//
// The two-phase select gives blocking requests strict priority without
// busy-waiting: phase 1 polls the blocking queue, phase 2 parks on both.
//
// Workers exit only when stopCh is closed. Each request runs under a
// fresh timeout context, so a reader cancelling mid-fetch does not abort
// work that other waiters and the cache still benefit from.
func (f *Fetcher) worker(id int) {
	defer f.wg.Done()

	logger.Debug("Fetch worker started", "workerID", id)

	for {
		select {
		case req := <-f.blocking:
			f.process(req, PriorityBlocking)
			continue
		default:
		}

		select {
		case req := <-f.blocking:
			f.process(req, PriorityBlocking)
		case req := <-f.prefetch:
			f.process(req, PriorityPrefetch)
		case <-f.stopCh:
			f.drain()
			logger.Debug("Fetch worker stopped", "workerID", id)
			return
		}
	}
}

// drain settles queued demand tickets during shutdown so their waiters
// unblock. Queued prefetch is discarded, reporting completion to keep
// stream counters balanced.
func (f *Fetcher) drain() {
	for {
		select {
		case req := <-f.blocking:
			req.ticket.Fail(ErrStopped)
		case req := <-f.prefetch:
			if req.done != nil {
				req.done(req.count)
			}
		default:
			return
		}
	}
}

func (f *Fetcher) process(req request, priority Priority) {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.FetchTimeout)
	defer cancel()

	if priority == PriorityBlocking {
		f.processDemand(ctx, req)
	} else {
		f.processPrefetchRun(ctx, req)
	}

	if req.done != nil {
		req.done(req.count)
	}
}

// processDemand fetches a single chunk and settles the reserved ticket.
func (f *Fetcher) processDemand(ctx context.Context, req request) {
	cid := req.ticket.ID()

	if data, ok := f.diskGet(ctx, cid); ok {
		req.ticket.Complete(data)
		f.recordDiskHit()
		return
	}

	start := time.Now()
	data, err := f.fetchRange(ctx, req, req.start, 1)
	if err != nil {
		f.recordFetchError(PriorityBlocking)
		f.dropStaleGeneration(ctx, req.id, err)
		req.ticket.Fail(err)
		return
	}

	f.recordFetch(PriorityBlocking, 1, uint64(len(data)), time.Since(start))
	req.ticket.Complete(data)
	f.diskPut(ctx, cid, data)
}

// processPrefetchRun resolves a run of adjacent chunks. Chunks already
// resident or in flight are skipped; the rest are reserved here and
// fetched in as few ranged requests as contiguity allows. Errors settle
// the affected tickets and are otherwise ignored.
func (f *Fetcher) processPrefetchRun(ctx context.Context, req request) {
	var (
		runStart uint32
		run      []*cache.Ticket
	)
	flush := func() {
		if len(run) == 0 {
			return
		}
		f.fetchSpan(ctx, req, runStart, run)
		run = run[:0]
	}

	for i := req.start; i < req.start+req.count; i++ {
		cid := cache.ChunkID{Key: req.id.Key, ETag: req.id.ETag, Index: i}

		if data, ok := f.diskGet(ctx, cid); ok {
			flush()
			if t, created := f.cache.Reserve(cid); created {
				t.Complete(data)
				f.recordDiskHit()
			}
			continue
		}

		t, created := f.cache.Reserve(cid)
		if !created {
			// Resident or being fetched by someone else; close the run.
			flush()
			continue
		}
		if len(run) == 0 {
			runStart = i
		}
		run = append(run, t)
	}
	flush()
}

// fetchSpan issues one ranged request covering contiguous chunks starting
// at first and distributes the bytes across the owned tickets.
func (f *Fetcher) fetchSpan(ctx context.Context, req request, first uint32, owned []*cache.Ticket) {
	offset, _ := req.layout.Bounds(first)

	var length uint64
	for i := range owned {
		length += req.layout.ChunkLength(first+uint32(i), req.id.Size)
	}
	if length == 0 {
		for _, t := range owned {
			t.Complete(nil)
		}
		return
	}

	start := time.Now()
	data, err := f.client.FetchRange(ctx, req.id, offset, length)
	if err != nil {
		f.recordFetchError(PriorityPrefetch)
		f.dropStaleGeneration(ctx, req.id, err)
		for _, t := range owned {
			t.Fail(err)
		}
		return
	}

	f.recordFetch(PriorityPrefetch, len(owned), uint64(len(data)), time.Since(start))
	if len(owned) > 1 {
		f.recordCoalesced(len(owned))
	}

	var consumed uint64
	for i, t := range owned {
		n := req.layout.ChunkLength(first+uint32(i), req.id.Size)
		part := data[consumed : consumed+n]
		t.Complete(part)
		f.diskPut(ctx, t.ID(), part)
		consumed += n
	}
}

// fetchRange fetches the byte range of count chunks starting at first.
func (f *Fetcher) fetchRange(ctx context.Context, req request, first, count uint32) ([]byte, error) {
	offset, _ := req.layout.Bounds(first)

	var length uint64
	for i := uint32(0); i < count; i++ {
		length += req.layout.ChunkLength(first+i, req.id.Size)
	}

	return f.client.FetchRange(ctx, req.id, offset, length)
}

// dropStaleGeneration purges one generation's chunks from the disk tier
// once a fetch observed that the object changed upstream. That ETag can
// never be served again, so the space is reclaimed now instead of
// waiting out the TTL.
func (f *Fetcher) dropStaleGeneration(ctx context.Context, id object.ID, fetchErr error) {
	if f.cfg.DiskTier == nil || !storeobject.IsObjectChanged(fetchErr) {
		return
	}
	if err := f.cfg.DiskTier.DropObject(ctx, string(id.Key), string(id.ETag)); err != nil {
		logger.Warn("Disk tier purge failed", "key", id.Key, "error", err)
	}
}

func (f *Fetcher) diskGet(ctx context.Context, id cache.ChunkID) ([]byte, bool) {
	if f.cfg.DiskTier == nil {
		return nil, false
	}
	data, ok, err := f.cfg.DiskTier.Get(ctx, id)
	if err != nil {
		logger.Warn("Disk tier read failed", "key", id.Key, "chunk", id.Index, "error", err)
		return nil, false
	}
	return data, ok
}

func (f *Fetcher) diskPut(ctx context.Context, id cache.ChunkID, data []byte) {
	if f.cfg.DiskTier == nil {
		return
	}
	if err := f.cfg.DiskTier.Put(ctx, id, data); err != nil {
		logger.Warn("Disk tier write failed", "key", id.Key, "chunk", id.Index, "error", err)
	}
}
