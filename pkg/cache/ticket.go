package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrCacheClosed is returned by Wait when the cache was closed before the
// fetch completed.
var ErrCacheClosed = errors.New("cache: closed")

// Ticket represents a single in-flight fetch of one chunk. The caller that
// created the ticket performs the fetch and settles it exactly once with
// Complete or Fail; every other caller for the same chunk blocks in Wait.
//
// Completion is broadcast by closing a channel, so any number of waiters
// observe it at once. A waiter whose context is cancelled detaches without
// affecting the fetch or the other waiters.
type Ticket struct {
	cache *Cache
	id    ChunkID

	done chan struct{}
	once sync.Once

	// data and err are written once before done is closed, then read-only.
	data []byte
	err  error
}

func newTicket(c *Cache, id ChunkID) *Ticket {
	return &Ticket{cache: c, id: id, done: make(chan struct{})}
}

// ID returns the chunk this ticket fetches.
func (t *Ticket) ID() ChunkID {
	return t.id
}

// Complete settles the ticket with the fetched bytes, inserts the chunk
// into the cache, and wakes all waiters. Only the caller that created the
// ticket may call Complete, and only once; later calls to Complete or Fail
// are no-ops.
//
// The ticket takes ownership of data; the caller must not mutate it after
// the call.
func (t *Ticket) Complete(data []byte) {
	t.once.Do(func() {
		t.cache.settleInsert(t.id, t, data)
		t.data = data
		close(t.done)
	})
}

// Fail settles the ticket with a fetch error and wakes all waiters. The
// chunk stays absent, so a later read retries the fetch from scratch.
func (t *Ticket) Fail(err error) {
	t.once.Do(func() {
		t.cache.removeInflight(t.id, t)
		t.err = err
		close(t.done)
	})
}

// complete settles a pre-resolved ticket without touching the cache maps.
// Used by Reserve when the chunk is already resident.
func (t *Ticket) complete(data []byte) {
	t.once.Do(func() {
		t.data = data
		close(t.done)
	})
}

func (t *Ticket) fail(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Wait blocks until the ticket settles or ctx is cancelled. On success it
// returns the chunk bytes; the slice is shared and must not be mutated. A
// cancelled waiter returns ctx.Err() and leaves the fetch running for the
// remaining waiters.
func (t *Ticket) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// Done returns a channel closed when the ticket settles. Callers that only
// need a non-blocking check can select on it.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Pin is a reference to a resident chunk. While at least one pin is held
// the chunk is exempt from eviction. Release is idempotent.
type Pin struct {
	cache *Cache
	id    ChunkID
	once  sync.Once

	// Data is the chunk's bytes. Read-only, valid until Release.
	Data []byte
}

// Release drops the pin, making the chunk evictable again once no other
// pins remain.
func (p *Pin) Release() {
	p.once.Do(func() {
		p.cache.release(p.id)
	})
}
