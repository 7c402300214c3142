// Package stream implements per-handle read state on top of the fetcher.
//
// A Stream corresponds to one open file handle. It decomposes reads into
// chunk slices, resolves each against the cache/fetcher, reassembles the
// bytes in request order, and drives read-ahead: it watches the handle's
// access pattern and, while the pattern is sequential, keeps a growing
// window of upcoming chunks in flight at prefetch priority.
//
// Each handle detects its own pattern. Two processes reading the same
// file, one sequentially and one randomly, get independent read-ahead
// decisions while still sharing cached chunks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/fetcher"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// ErrClosed is returned by reads on a stream whose handle was closed.
var ErrClosed = errors.New("stream: closed")

// Config holds per-stream tuning. The zero value selects the defaults.
type Config struct {
	// WindowMin is the read-ahead window when the stream first turns
	// sequential, in chunks. Defaults to 2.
	WindowMin uint32

	// WindowStep is the additive window growth per sequential read, in
	// chunks. Defaults to 2.
	WindowStep uint32

	// WindowMax caps the window, in chunks. Defaults to 32.
	WindowMax uint32

	// SequentialThreshold is how many contiguous reads in a row classify
	// the stream sequential. Defaults to 2.
	SequentialThreshold int

	// PrefetchInflightMax bounds this stream's outstanding prefetched
	// chunks. New read-ahead is skipped while the stream is at the bound.
	// Defaults to 64.
	PrefetchInflightMax int64

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

func (cfg *Config) applyDefaults() {
	if cfg.WindowMin == 0 {
		cfg.WindowMin = 2
	}
	if cfg.WindowStep == 0 {
		cfg.WindowStep = 2
	}
	if cfg.WindowMax == 0 {
		cfg.WindowMax = 32
	}
	if cfg.SequentialThreshold == 0 {
		cfg.SequentialThreshold = 2
	}
	if cfg.PrefetchInflightMax == 0 {
		cfg.PrefetchInflightMax = 64
	}
}

// Stream is the read state of one open handle. ReadAt is safe for
// concurrent use; pattern detection serializes internally.
type Stream struct {
	id      object.ID
	layout  chunk.Layout
	fetcher *fetcher.Fetcher
	cfg     Config

	mu  sync.Mutex
	det detector
	win window

	// inflight counts chunks this stream has queued for prefetch that
	// have not been processed yet.
	inflight atomic.Int64

	// changed latches the first generation mismatch observed on this
	// stream. Once set every read fails until the handle is reopened.
	changed atomic.Pointer[storeobject.Error]

	closed atomic.Bool
}

func newStream(id object.ID, layout chunk.Layout, f *fetcher.Fetcher, cfg Config) *Stream {
	cfg.applyDefaults()

	return &Stream{
		id:      id,
		layout:  layout,
		fetcher: f,
		cfg:     cfg,
		det:     newDetector(cfg.SequentialThreshold),
		win:     newWindow(cfg.WindowMin, cfg.WindowStep, cfg.WindowMax),
	}
}

// Object returns the object generation this stream reads.
func (s *Stream) Object() object.ID {
	return s.id
}

// ReadAt fills p with bytes starting at off. Short reads happen only at
// end of object; a read starting at or past the end returns (0, io.EOF).
//
// Chunks spanning the range are requested concurrently at blocking
// priority and reassembled in offset order. The first chunk error wins:
// ReadAt returns the bytes copied before the failing chunk together with
// the error.
func (s *Stream) ReadAt(ctx context.Context, p []byte, off uint64) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := s.failedErr(); err != nil {
		return 0, err
	}

	length := chunk.ClampToObject(off, uint64(len(p)), s.id.Size)
	if length == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	s.observe(off, length)

	// Start every chunk fetch before waiting on any, so a boundary read
	// downloads its chunks in parallel.
	type pending struct {
		slice  chunk.Slice
		ticket *cache.Ticket
	}
	var waits []pending
	for sl := range s.layout.Slices(off, length) {
		waits = append(waits, pending{
			slice:  sl,
			ticket: s.fetcher.StartFetch(ctx, s.id, s.layout, sl.Index),
		})
	}

	var n int
	for _, w := range waits {
		data, err := w.ticket.Wait(ctx)
		if err != nil {
			if storeobject.IsObjectChanged(err) {
				s.latchChanged(err)
			}
			return n, err
		}
		if uint64(len(data)) < w.slice.Offset+w.slice.Length {
			return n, fmt.Errorf("chunk %d of %s: got %d bytes, need %d",
				w.slice.Index, s.id.Key, len(data), w.slice.Offset+w.slice.Length)
		}
		n += copy(p[w.slice.BufOffset:], data[w.slice.Offset:w.slice.Offset+w.slice.Length])
	}

	s.recordRead(uint64(n))

	if off+length == s.id.Size && uint64(len(p)) > length {
		return n, io.EOF
	}
	return n, nil
}

// observe updates pattern state for one read and issues read-ahead when
// the stream is sequential.
func (s *Stream) observe(off, length uint64) {
	s.mu.Lock()

	prev := s.det.pattern
	pattern := s.det.observe(off, length)
	if pattern != prev {
		s.recordPattern(pattern)
		logger.Debug("Stream pattern changed",
			"key", s.id.Key, "from", prev.String(), "to", pattern.String())
	}

	var (
		start uint32
		count uint32
	)
	switch pattern {
	case PatternSequential:
		count = s.win.size
		s.win.grow()
		start = s.layout.IndexForOffset(off+length-1) + 1
	case PatternRandom:
		s.win.reset()
	}
	s.mu.Unlock()

	if count == 0 {
		return
	}

	// Per-stream backpressure: skip read-ahead while too many of this
	// stream's chunks are still queued.
	budget := s.cfg.PrefetchInflightMax - s.inflight.Load()
	if budget <= 0 {
		return
	}
	if int64(count) > budget {
		count = uint32(budget)
	}

	enqueued := s.fetcher.Prefetch(s.id, s.layout, start, count, func(chunks uint32) {
		s.inflight.Add(-int64(chunks))
	})
	s.inflight.Add(int64(enqueued))
	s.recordPrefetchIssued(enqueued)
}

// Pattern returns the stream's current classification.
func (s *Stream) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det.pattern
}

// WindowSize returns the current read-ahead window in chunks.
func (s *Stream) WindowSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win.size
}

// InflightPrefetch returns the number of this stream's chunks currently
// queued for prefetch.
func (s *Stream) InflightPrefetch() int64 {
	return s.inflight.Load()
}

func (s *Stream) latchChanged(err error) {
	var oerr *storeobject.Error
	if !errors.As(err, &oerr) {
		oerr = storeobject.NewError(storeobject.KindObjectChanged, s.id.Key, err)
	}
	if s.changed.CompareAndSwap(nil, oerr) {
		logger.Warn("Object changed under open stream",
			"key", s.id.Key, "etag", s.id.ETag)
		s.recordObjectChanged()
	}
}

func (s *Stream) failedErr() error {
	if err := s.changed.Load(); err != nil {
		return err
	}
	return nil
}
