package stream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/fetcher"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
	"github.com/marmos91/driftfs/pkg/store/object/memory"
)

func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

type fixture struct {
	store   *memory.Store
	cache   *cache.Cache
	fetcher *fetcher.Fetcher
	manager *Manager
	layout  chunk.Layout
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	layout := chunk.NewLayout(100)
	store := memory.NewStore()
	c := cache.New(cache.Config{MaxBytes: 64 << 20})
	f := fetcher.New(store, c, fetcher.Config{Workers: 4})
	f.Start()
	t.Cleanup(func() {
		f.Stop(time.Second)
		c.Close()
	})

	return &fixture{
		store:   store,
		cache:   c,
		fetcher: f,
		manager: NewManager(layout, f, cfg),
		layout:  layout,
	}
}

func TestReadAtWithinChunk(t *testing.T) {
	fx := newFixture(t, Config{})
	data := patterned(300)
	id := fx.store.Put("data/file.bin", data)

	_, s := fx.manager.Open(id)

	buf := make([]byte, 50)
	n, err := s.ReadAt(context.Background(), buf, 25)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[25:75], buf)
}

func TestReadAtSpansChunkBoundary(t *testing.T) {
	fx := newFixture(t, Config{})
	data := patterned(300)
	id := fx.store.Put("data/file.bin", data)

	_, s := fx.manager.Open(id)

	// 80..220 touches chunks 0, 1 and 2.
	buf := make([]byte, 140)
	n, err := s.ReadAt(context.Background(), buf, 80)
	require.NoError(t, err)
	assert.Equal(t, 140, n)
	assert.Equal(t, data[80:220], buf)
}

func TestReadAtPastEnd(t *testing.T) {
	fx := newFixture(t, Config{})
	id := fx.store.Put("data/file.bin", patterned(100))

	_, s := fx.manager.Open(id)

	buf := make([]byte, 10)
	n, err := s.ReadAt(context.Background(), buf, 100)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = s.ReadAt(context.Background(), buf, 5000)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadAtShortReadAtTail(t *testing.T) {
	fx := newFixture(t, Config{})
	data := patterned(250)
	id := fx.store.Put("data/file.bin", data)

	_, s := fx.manager.Open(id)

	buf := make([]byte, 100)
	n, err := s.ReadAt(context.Background(), buf, 200)
	assert.Equal(t, 50, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data[200:250], buf[:50])
}

func TestReadAtEmptyBuffer(t *testing.T) {
	fx := newFixture(t, Config{})
	id := fx.store.Put("data/file.bin", patterned(100))

	_, s := fx.manager.Open(id)

	n, err := s.ReadAt(context.Background(), nil, 0)
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestSequentialReadsTriggerPrefetch(t *testing.T) {
	fx := newFixture(t, Config{WindowMin: 2, SequentialThreshold: 2})
	data := patterned(2000)
	id := fx.store.Put("data/file.bin", data)

	_, s := fx.manager.Open(id)
	ctx := context.Background()

	buf := make([]byte, 100)

	// First read: still initial, no read-ahead.
	_, err := s.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, PatternInitial, s.Pattern())

	// Second contiguous read flips the stream sequential and issues the
	// initial window starting after the read.
	_, err = s.ReadAt(ctx, buf, 100)
	require.NoError(t, err)
	assert.Equal(t, PatternSequential, s.Pattern())

	require.Eventually(t, func() bool {
		return fx.cache.Contains(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: 2}) &&
			fx.cache.Contains(cache.ChunkID{Key: id.Key, ETag: id.ETag, Index: 3})
	}, 5*time.Second, 5*time.Millisecond, "window chunks should be prefetched")

	// The prefetched chunks serve the next reads without new backend
	// requests.
	before := fx.store.FetchesFor(id.Key, 200)
	_, err = s.ReadAt(ctx, buf, 200)
	require.NoError(t, err)
	assert.Equal(t, data[200:300], buf)
	assert.Equal(t, before, fx.store.FetchesFor(id.Key, 200), "chunk 2 must come from cache")
}

func TestWindowGrowsWhileSequential(t *testing.T) {
	fx := newFixture(t, Config{WindowMin: 2, WindowStep: 2, WindowMax: 8})
	id := fx.store.Put("data/file.bin", patterned(10000))

	_, s := fx.manager.Open(id)
	ctx := context.Background()

	buf := make([]byte, 100)
	require.Equal(t, uint32(2), s.WindowSize())

	for i := range uint64(4) {
		_, err := s.ReadAt(ctx, buf, i*100)
		require.NoError(t, err)
	}

	// Reads 2, 3 and 4 were sequential, growing the window each time.
	assert.Equal(t, uint32(8), s.WindowSize())
}

func TestRandomReadResetsWindow(t *testing.T) {
	fx := newFixture(t, Config{WindowMin: 2, WindowStep: 2, WindowMax: 32})
	id := fx.store.Put("data/file.bin", patterned(10000))

	_, s := fx.manager.Open(id)
	ctx := context.Background()

	buf := make([]byte, 100)
	for i := range uint64(4) {
		_, err := s.ReadAt(ctx, buf, i*100)
		require.NoError(t, err)
	}
	require.Greater(t, s.WindowSize(), uint32(2))

	// Seek: classification flips to random and the window snaps back.
	_, err := s.ReadAt(ctx, buf, 9000)
	require.NoError(t, err)
	assert.Equal(t, PatternRandom, s.Pattern())
	assert.Equal(t, uint32(2), s.WindowSize())
}

func TestObjectChangedLatches(t *testing.T) {
	fx := newFixture(t, Config{})
	stale := fx.store.Put("data/file.bin", patterned(100))

	// Overwrite after resolve: the open stream holds a stale generation.
	fx.store.Put("data/file.bin", patterned(200))

	_, s := fx.manager.Open(stale)
	ctx := context.Background()

	buf := make([]byte, 50)
	_, err := s.ReadAt(ctx, buf, 0)
	require.Error(t, err)
	assert.True(t, storeobject.IsObjectChanged(err))

	// The stream stays failed even for ranges that were never fetched.
	_, err = s.ReadAt(ctx, buf, 50)
	require.Error(t, err)
	assert.True(t, storeobject.IsObjectChanged(err))
}

func TestStreamsDetectPatternsIndependently(t *testing.T) {
	fx := newFixture(t, Config{})
	id := fx.store.Put("data/file.bin", patterned(10000))

	_, seq := fx.manager.Open(id)
	_, rnd := fx.manager.Open(id)
	ctx := context.Background()

	buf := make([]byte, 100)
	for i := range uint64(3) {
		_, err := seq.ReadAt(ctx, buf, i*100)
		require.NoError(t, err)
	}
	for _, off := range []uint64{5000, 200, 8000} {
		_, err := rnd.ReadAt(ctx, buf, off)
		require.NoError(t, err)
	}

	assert.Equal(t, PatternSequential, seq.Pattern())
	assert.Equal(t, PatternRandom, rnd.Pattern())
}

func TestManagerOpenClose(t *testing.T) {
	fx := newFixture(t, Config{})
	id := fx.store.Put("data/file.bin", patterned(100))

	h1, s1 := fx.manager.Open(id)
	h2, _ := fx.manager.Open(id)
	require.NotEqual(t, h1, h2)
	assert.Equal(t, 2, fx.manager.OpenCount())

	got, ok := fx.manager.Get(h1)
	require.True(t, ok)
	assert.Same(t, s1, got)

	fx.manager.Close(h1)
	assert.Equal(t, 1, fx.manager.OpenCount())
	_, ok = fx.manager.Get(h1)
	assert.False(t, ok)

	// Closing twice is a no-op.
	fx.manager.Close(h1)
	assert.Equal(t, 1, fx.manager.OpenCount())
}

func TestPrefetchBackpressure(t *testing.T) {
	fx := newFixture(t, Config{WindowMin: 8, PrefetchInflightMax: 4})
	fx.store.SetFetchDelay(20 * time.Millisecond)
	id := fx.store.Put("data/file.bin", patterned(100000))

	_, s := fx.manager.Open(id)
	ctx := context.Background()

	buf := make([]byte, 100)
	for i := range uint64(3) {
		_, err := s.ReadAt(ctx, buf, i*100)
		require.NoError(t, err)
	}

	// The per-stream bound clips outstanding read-ahead regardless of the
	// window size.
	assert.LessOrEqual(t, s.InflightPrefetch(), int64(4))
}

func TestTransientFailuresRetriedToSuccess(t *testing.T) {
	fx := newFixture(t, Config{})
	data := patterned(100)
	id := fx.store.Put("data/file.bin", data)

	fx.store.SetMaxAttempts(3)
	fx.store.FailNextFetches(2, memory.ErrTransient)

	_, s := fx.manager.Open(id)

	// Two failed attempts burn into the budget; the third succeeds and
	// the reader never sees the failures.
	buf := make([]byte, 100)
	n, err := s.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data, buf)
	assert.Equal(t, 3, fx.store.FetchCount())
}

func TestTransientFailuresExhaustAttemptBudget(t *testing.T) {
	fx := newFixture(t, Config{})
	id := fx.store.Put("data/file.bin", patterned(100))

	fx.store.SetMaxAttempts(2)
	fx.store.FailNextFetches(2, memory.ErrTransient)

	_, s := fx.manager.Open(id)

	buf := make([]byte, 100)
	_, err := s.ReadAt(context.Background(), buf, 0)
	require.Error(t, err)
	assert.True(t, storeobject.IsUnavailable(err))
	assert.Equal(t, 2, fx.store.FetchCount())
}
