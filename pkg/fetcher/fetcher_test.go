package fetcher

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/chunk"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
	"github.com/marmos91/driftfs/pkg/store/object/memory"
)

// patterned returns n bytes where b[i] = i. Slicing it anywhere gives a
// recognizable sequence, so misaligned chunk math shows up in asserts.
func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func newTestFetcher(t *testing.T, store *memory.Store, cfg Config) (*Fetcher, *cache.Cache) {
	t.Helper()

	c := cache.New(cache.Config{MaxBytes: 64 << 20})
	f := New(store, c, cfg)
	f.Start()
	t.Cleanup(func() {
		f.Stop(time.Second)
		c.Close()
	})
	return f, c
}

func TestFetchChunkDemand(t *testing.T) {
	store := memory.NewStore()
	data := patterned(300)
	id := store.Put("data/file.bin", data)

	layout := chunk.NewLayout(100)
	f, c := newTestFetcher(t, store, Config{})

	got, err := f.FetchChunk(context.Background(), id, layout, 1)
	require.NoError(t, err)
	assert.Equal(t, data[100:200], got)

	assert.True(t, c.Contains(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: 1}))
	assert.Equal(t, 1, store.FetchCount())

	// Second read is served from cache without touching the store.
	got, err = f.FetchChunk(context.Background(), id, layout, 1)
	require.NoError(t, err)
	assert.Equal(t, data[100:200], got)
	assert.Equal(t, 1, store.FetchCount())
}

func TestFetchChunkTail(t *testing.T) {
	store := memory.NewStore()
	data := patterned(250)
	id := store.Put("data/file.bin", data)

	layout := chunk.NewLayout(100)
	f, _ := newTestFetcher(t, store, Config{})

	got, err := f.FetchChunk(context.Background(), id, layout, 2)
	require.NoError(t, err)
	assert.Equal(t, data[200:250], got)
	assert.Len(t, got, 50)
}

func TestFetchChunkConcurrentSingleFlight(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(100))
	store.SetFetchDelay(10 * time.Millisecond)

	layout := chunk.NewLayout(100)
	f, _ := newTestFetcher(t, store, Config{Workers: 4})

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.FetchChunk(context.Background(), id, layout, 0)
			assert.NoError(t, err)
			assert.Len(t, got, 100)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.FetchCount())
}

func TestFetchChunkErrorPropagates(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(100))
	store.FailNextFetches(10, memory.ErrTransient)

	layout := chunk.NewLayout(100)
	f, c := newTestFetcher(t, store, Config{})

	_, err := f.FetchChunk(context.Background(), id, layout, 0)
	require.Error(t, err)
	assert.True(t, storeobject.IsUnavailable(err))

	// The failure leaves the chunk absent so a later read can succeed.
	assert.False(t, c.Contains(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: 0}))
}

func TestPrefetchCoalescesAdjacentChunks(t *testing.T) {
	store := memory.NewStore()
	data := patterned(800)
	id := store.Put("data/file.bin", data)

	layout := chunk.NewLayout(100)
	f, c := newTestFetcher(t, store, Config{Workers: 1, CoalesceMax: 4})

	var mu sync.Mutex
	var processed uint32
	done := make(chan struct{})

	enqueued := f.Prefetch(id, layout, 0, 8, func(chunks uint32) {
		mu.Lock()
		defer mu.Unlock()
		processed += chunks
		if processed == 8 {
			close(done)
		}
	})
	assert.Equal(t, uint32(8), enqueued)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch did not complete")
	}

	// 8 adjacent chunks with CoalesceMax 4 means exactly 2 ranged requests.
	assert.Equal(t, 2, store.FetchCount())

	for i := range uint32(8) {
		pin := c.Get(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: i})
		require.NotNil(t, pin, "chunk %d should be resident", i)
		lo := int(i) * 100
		assert.True(t, bytes.Equal(data[lo:lo+100], pin.Data), "chunk %d bytes", i)
		pin.Release()
	}
}

func TestPrefetchClipsToObjectSize(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(250))

	layout := chunk.NewLayout(100)
	f, _ := newTestFetcher(t, store, Config{})

	// Object has 3 chunks; asking for 10 starting at 1 clips to 2.
	enqueued := f.Prefetch(id, layout, 1, 10, nil)
	assert.Equal(t, uint32(2), enqueued)

	// Entirely past the end enqueues nothing.
	assert.Zero(t, f.Prefetch(id, layout, 5, 4, nil))
}

func TestPrefetchSkipsResidentChunks(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(400))

	layout := chunk.NewLayout(100)
	f, _ := newTestFetcher(t, store, Config{Workers: 1, CoalesceMax: 4})

	// Make chunks 0..3 resident.
	for i := range uint32(4) {
		_, err := f.FetchChunk(context.Background(), id, layout, i)
		require.NoError(t, err)
	}
	before := store.FetchCount()

	// A fully resident run enqueues nothing.
	assert.Zero(t, f.Prefetch(id, layout, 0, 4, nil))
	assert.Equal(t, before, store.FetchCount())
}

func TestPrefetchDropsWhenQueueFull(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(6400))
	store.SetFetchDelay(50 * time.Millisecond)

	layout := chunk.NewLayout(100)

	c := cache.New(cache.Config{MaxBytes: 64 << 20})
	defer c.Close()

	f := New(store, c, Config{Workers: 1, QueueSize: 1, CoalesceMax: 1})
	f.Start()
	defer f.Stop(5 * time.Second)

	// One worker, queue of one: enqueueing a long run must drop the tail
	// rather than block.
	enqueued := f.Prefetch(id, layout, 0, 64, nil)
	assert.Less(t, enqueued, uint32(64))
}

func TestFetchChunkBlockingBeatsPrefetch(t *testing.T) {
	store := memory.NewStore()
	data := patterned(6400)
	id := store.Put("data/file.bin", data)
	store.SetFetchDelay(5 * time.Millisecond)

	layout := chunk.NewLayout(100)
	f, _ := newTestFetcher(t, store, Config{Workers: 2, CoalesceMax: 1})

	// Saturate the prefetch queue, then issue a demand read; it must
	// complete well before the backlog drains.
	f.Prefetch(id, layout, 1, 60, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := f.FetchChunk(ctx, id, layout, 0)
	require.NoError(t, err)
	assert.Equal(t, data[:100], got)
}

func TestFetcherUsesDiskTier(t *testing.T) {
	store := memory.NewStore()
	data := patterned(200)
	id := store.Put("data/file.bin", data)

	layout := chunk.NewLayout(100)
	tier := newFakeDiskTier()
	f, c := newTestFetcher(t, store, Config{DiskTier: tier})

	// First read populates the disk tier through write-through.
	_, err := f.FetchChunk(context.Background(), id, layout, 0)
	require.NoError(t, err)
	require.Equal(t, 1, store.FetchCount())

	cid := cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: 0}
	tierData, ok, err := tier.Get(context.Background(), cid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data[:100], tierData)

	// Drop the memory copy; the next read is served from disk, not the
	// backend.
	c.Close()
	c2 := cache.New(cache.Config{MaxBytes: 64 << 20})
	defer c2.Close()
	f2 := New(store, c2, Config{DiskTier: tier})
	f2.Start()
	defer f2.Stop(time.Second)

	got, err := f2.FetchChunk(context.Background(), id, layout, 0)
	require.NoError(t, err)
	assert.Equal(t, data[:100], got)
	assert.Equal(t, 1, store.FetchCount())
}

func TestFetcherStopFailsQueuedDemand(t *testing.T) {
	store := memory.NewStore()
	id := store.Put("data/file.bin", patterned(100))

	layout := chunk.NewLayout(100)
	c := cache.New(cache.Config{})
	defer c.Close()

	f := New(store, c, Config{Workers: 1})
	f.Start()
	f.Stop(time.Second)

	_, err := f.FetchChunk(context.Background(), id, layout, 0)
	assert.ErrorIs(t, err, ErrStopped)
}

// fakeDiskTier is an in-memory DiskTier for tests.
type fakeDiskTier struct {
	mu   sync.Mutex
	data map[cache.ChunkID][]byte
}

func newFakeDiskTier() *fakeDiskTier {
	return &fakeDiskTier{data: make(map[cache.ChunkID][]byte)}
}

func (ft *fakeDiskTier) Get(_ context.Context, id cache.ChunkID) ([]byte, bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	d, ok := ft.data[id]
	return d, ok, nil
}

func (ft *fakeDiskTier) Put(_ context.Context, id cache.ChunkID, data []byte) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.data[id] = data
	return nil
}

func (ft *fakeDiskTier) DropObject(_ context.Context, key, etag string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for id := range ft.data {
		if string(id.Key) == key && string(id.ETag) == etag {
			delete(ft.data, id)
		}
	}
	return nil
}

func (ft *fakeDiskTier) contains(id cache.ChunkID) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	_, ok := ft.data[id]
	return ok
}

func TestObjectChangedPurgesDiskTier(t *testing.T) {
	store := memory.NewStore()
	data := patterned(200)
	stale := store.Put("data/file.bin", data)

	layout := chunk.NewLayout(100)
	tier := newFakeDiskTier()
	f, _ := newTestFetcher(t, store, Config{DiskTier: tier})

	// Chunk 0 lands in the disk tier under the stale generation.
	_, err := f.FetchChunk(context.Background(), stale, layout, 0)
	require.NoError(t, err)
	cid := cache.ChunkID{Key: stale.Key, ETag: stale.ETag, Index: 0}
	require.True(t, tier.contains(cid))

	// Overwrite upstream. Fetching a chunk the tier does not hold goes
	// remote, observes the generation mismatch, and purges every chunk
	// of the stale generation from the tier.
	store.Put("data/file.bin", patterned(300))

	_, err = f.FetchChunk(context.Background(), stale, layout, 1)
	require.Error(t, err)
	assert.True(t, storeobject.IsObjectChanged(err))
	assert.False(t, tier.contains(cid), "stale generation chunks must be purged")
}
