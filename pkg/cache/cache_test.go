package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/object"
)

func testChunkID(index uint32) ChunkID {
	return ChunkID{Key: "data/file.bin", ETag: "etag-1", Index: index}
}

func TestCacheGetMiss(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	assert.Nil(t, c.Get(testChunkID(0)))

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheReserveCompleteGet(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(0)
	ticket, created := c.Reserve(id)
	require.True(t, created)

	data := []byte("chunk-zero")
	ticket.Complete(data)

	got, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	pin := c.Get(id)
	require.NotNil(t, pin)
	assert.Equal(t, data, pin.Data)
	pin.Release()

	stats := c.Stats()
	assert.Equal(t, 1, stats.ResidentChunks)
	assert.Equal(t, uint64(len(data)), stats.ResidentBytes)
	assert.Equal(t, 0, stats.InflightChunks)
}

func TestCacheReserveDeduplicates(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(3)
	first, created := c.Reserve(id)
	require.True(t, created)

	second, created := c.Reserve(id)
	require.False(t, created)
	assert.Same(t, first, second)
}

func TestCacheReserveResidentReturnsCompletedTicket(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(1)
	ticket, created := c.Reserve(id)
	require.True(t, created)
	ticket.Complete([]byte("resident"))

	again, created := c.Reserve(id)
	require.False(t, created)

	got, err := again.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("resident"), got)
}

func TestCacheFailLeavesChunkAbsent(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(2)
	ticket, created := c.Reserve(id)
	require.True(t, created)

	fetchErr := errors.New("backend unavailable")
	ticket.Fail(fetchErr)

	_, err := ticket.Wait(context.Background())
	assert.ErrorIs(t, err, fetchErr)

	// The failure is not sticky: a fresh reserve owns a new fetch.
	retry, created := c.Reserve(id)
	require.True(t, created)
	retry.Complete([]byte("second-try"))

	pin := c.Get(id)
	require.NotNil(t, pin)
	assert.Equal(t, []byte("second-try"), pin.Data)
	pin.Release()
}

func TestCacheManyWaitersSingleFetch(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(7)
	data := []byte("shared-chunk")

	var fetches atomic.Int32
	var wg sync.WaitGroup

	start := make(chan struct{})
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			ticket, created := c.Reserve(id)
			if created {
				fetches.Add(1)
				time.Sleep(5 * time.Millisecond) // simulate fetch latency
				ticket.Complete(data)
			}

			got, err := ticket.Wait(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, data, got)
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
}

func TestCacheWaiterCancellation(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	id := testChunkID(9)
	ticket, created := c.Reserve(id)
	require.True(t, created)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ticket.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The fetch is unaffected; a patient waiter still gets the data.
	ticket.Complete([]byte("late"))
	got, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), got)
}

func TestCacheEvictsLRUWithinBudget(t *testing.T) {
	// Budget fits three 10-byte chunks.
	c := New(Config{MaxBytes: 30})
	defer c.Close()

	insert := func(index uint32) {
		ticket, created := c.Reserve(testChunkID(index))
		require.True(t, created)
		ticket.Complete(make([]byte, 10))
	}

	insert(0)
	insert(1)
	insert(2)

	// Touch chunk 0 so chunk 1 becomes the LRU victim.
	pin := c.Get(testChunkID(0))
	require.NotNil(t, pin)
	pin.Release()

	insert(3)

	assert.True(t, c.Contains(testChunkID(0)))
	assert.False(t, c.Contains(testChunkID(1)))
	assert.True(t, c.Contains(testChunkID(2)))
	assert.True(t, c.Contains(testChunkID(3)))

	stats := c.Stats()
	assert.Equal(t, uint64(30), stats.ResidentBytes)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestCachePinnedChunksSurviveEviction(t *testing.T) {
	c := New(Config{MaxBytes: 20})
	defer c.Close()

	insert := func(index uint32) {
		ticket, created := c.Reserve(testChunkID(index))
		require.True(t, created)
		ticket.Complete(make([]byte, 10))
	}

	insert(0)
	insert(1)

	// Pin both: the next insert has no victim and the budget is exceeded
	// transiently instead of blocking.
	pin0 := c.Get(testChunkID(0))
	pin1 := c.Get(testChunkID(1))
	require.NotNil(t, pin0)
	require.NotNil(t, pin1)

	insert(2)

	assert.Equal(t, uint64(30), c.Stats().ResidentBytes)
	assert.True(t, c.Contains(testChunkID(0)))
	assert.True(t, c.Contains(testChunkID(1)))

	// Releasing the pins makes them evictable again on the next insert.
	pin0.Release()
	pin1.Release()
	insert(3)

	assert.LessOrEqual(t, c.Stats().ResidentBytes, uint64(20))
}

func TestCachePinReleaseIdempotent(t *testing.T) {
	c := New(Config{MaxBytes: 20})
	defer c.Close()

	ticket, _ := c.Reserve(testChunkID(0))
	ticket.Complete(make([]byte, 10))

	pin := c.Get(testChunkID(0))
	require.NotNil(t, pin)
	pin.Release()
	pin.Release() // double release must not underflow the pin count

	// A second pin-release cycle still behaves.
	pin2 := c.Get(testChunkID(0))
	require.NotNil(t, pin2)
	pin2.Release()
}

func TestCacheGenerationsDoNotCollide(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})
	defer c.Close()

	old := ChunkID{Key: "file", ETag: "v1", Index: 0}
	cur := ChunkID{Key: "file", ETag: "v2", Index: 0}

	ticket, _ := c.Reserve(old)
	ticket.Complete([]byte("old-bytes"))

	assert.True(t, c.Contains(old))
	assert.False(t, c.Contains(cur))
}

func TestCacheUnlimitedBudget(t *testing.T) {
	c := New(Config{MaxBytes: 0})
	defer c.Close()

	for i := range uint32(100) {
		ticket, created := c.Reserve(testChunkID(i))
		require.True(t, created)
		ticket.Complete(make([]byte, 1024))
	}

	stats := c.Stats()
	assert.Equal(t, 100, stats.ResidentChunks)
	assert.Equal(t, uint64(0), stats.Evictions)
}

func TestCacheCloseFailsReserve(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20})

	ticket, _ := c.Reserve(testChunkID(0))
	ticket.Complete([]byte("data"))

	c.Close()

	assert.Nil(t, c.Get(testChunkID(0)))

	closed, created := c.Reserve(testChunkID(1))
	assert.False(t, created)
	_, err := closed.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCacheClosed)
}

func TestCacheStatsConcurrent(t *testing.T) {
	c := New(Config{MaxBytes: 256 * 1024})
	defer c.Close()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range uint32(64) {
				id := ChunkID{
					Key:   object.Key(fmt.Sprintf("obj-%d", w%4)),
					ETag:  "e",
					Index: i,
				}
				if pin := c.Get(id); pin != nil {
					pin.Release()
					continue
				}
				ticket, created := c.Reserve(id)
				if created {
					ticket.Complete(make([]byte, 512))
				}
				_, _ = ticket.Wait(context.Background())
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.LessOrEqual(t, stats.ResidentBytes, uint64(256*1024))
	assert.Zero(t, stats.InflightChunks)
}

func TestCacheInsertKeepsIncomingChunk(t *testing.T) {
	c := New(Config{MaxBytes: 15})
	defer c.Close()

	ticket, created := c.Reserve(testChunkID(0))
	require.True(t, created)
	ticket.Complete(make([]byte, 10))

	pin := c.Get(testChunkID(0))
	require.NotNil(t, pin)
	defer pin.Release()

	// The only eviction candidate would be the chunk being inserted. It
	// must survive its own insert; the budget overshoots until the pin
	// drains.
	ticket, created = c.Reserve(testChunkID(1))
	require.True(t, created)
	ticket.Complete(make([]byte, 10))

	assert.True(t, c.Contains(testChunkID(1)))
	assert.Equal(t, uint64(20), c.Stats().ResidentBytes)
}

func TestCacheReserveNeverRefetchesDuringComplete(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	for i := range uint32(200) {
		id := testChunkID(i)

		owner, created := c.Reserve(id)
		require.True(t, created)

		var redundant atomic.Int32
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticket, created := c.Reserve(id)
				if created {
					redundant.Add(1)
					ticket.Fail(errors.New("redundant fetch"))
					return
				}
				_, _ = ticket.Wait(context.Background())
			}()
		}

		owner.Complete([]byte("x"))
		wg.Wait()

		// A settling chunk is in flight or resident, never neither, so no
		// racing Reserve may win a second fetch.
		assert.Zero(t, redundant.Load(), "chunk %d handed out a second fetch during Complete", i)
	}
}
