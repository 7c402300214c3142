package stream

import (
	"sync"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/fetcher"
	"github.com/marmos91/driftfs/pkg/object"
)

// Manager tracks the open streams of a mount. Every open handle gets its
// own Stream, so pattern detection and read-ahead are per handle even
// when several handles read the same object.
type Manager struct {
	layout  chunk.Layout
	fetcher *fetcher.Fetcher
	cfg     Config

	mu      sync.Mutex
	next    uint64
	streams map[uint64]*Stream
}

// NewManager creates a stream manager. cfg applies to every stream it
// opens.
func NewManager(layout chunk.Layout, f *fetcher.Fetcher, cfg Config) *Manager {
	return &Manager{
		layout:  layout,
		fetcher: f,
		cfg:     cfg,
		streams: make(map[uint64]*Stream),
	}
}

// Open creates a stream reading the given object generation and returns
// its handle.
func (m *Manager) Open(id object.ID) (uint64, *Stream) {
	s := newStream(id, m.layout, m.fetcher, m.cfg)

	m.mu.Lock()
	m.next++
	handle := m.next
	m.streams[handle] = s
	open := len(m.streams)
	m.mu.Unlock()

	logger.Debug("Stream opened", "handle", handle, "key", id.Key, "open", open)
	return handle, s
}

// Get returns the stream for a handle.
func (m *Manager) Get(handle uint64) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[handle]
	return s, ok
}

// Close releases a handle. Closing an unknown handle is a no-op.
func (m *Manager) Close(handle uint64) {
	m.mu.Lock()
	s, ok := m.streams[handle]
	delete(m.streams, handle)
	open := len(m.streams)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.closed.Store(true)
	logger.Debug("Stream closed", "handle", handle, "key", s.id.Key, "open", open)
}

// OpenCount returns the number of open streams.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
