package disk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/cache"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestDiskStorePutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := cache.ChunkID{Key: "data/a.bin", ETag: "e1", Index: 4}
	data := []byte("disk-chunk")

	require.NoError(t, s.Put(ctx, id, data))

	got, ok, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestDiskStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get(context.Background(), cache.ChunkID{Key: "missing", ETag: "e", Index: 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskStoreDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := cache.ChunkID{Key: "data/a.bin", ETag: "e1", Index: 0}
	require.NoError(t, s.Put(ctx, id, []byte("x")))
	require.NoError(t, s.Delete(ctx, id))

	_, ok, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, id))
}

func TestDiskStoreGenerationsAreDistinct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := cache.ChunkID{Key: "file", ETag: "v1", Index: 0}
	cur := cache.ChunkID{Key: "file", ETag: "v2", Index: 0}

	require.NoError(t, s.Put(ctx, old, []byte("old")))
	require.NoError(t, s.Put(ctx, cur, []byte("new")))

	got, ok, err := s.Get(ctx, old)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("old"), got)

	got, ok, err = s.Get(ctx, cur)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestDiskStoreDropObject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := range uint32(4) {
		id := cache.ChunkID{Key: "file", ETag: "v1", Index: i}
		require.NoError(t, s.Put(ctx, id, []byte{byte(i)}))
	}
	other := cache.ChunkID{Key: "file", ETag: "v2", Index: 0}
	require.NoError(t, s.Put(ctx, other, []byte("keep")))

	require.NoError(t, s.DropObject(ctx, "file", "v1"))

	for i := range uint32(4) {
		_, ok, err := s.Get(ctx, cache.ChunkID{Key: "file", ETag: "v1", Index: i})
		require.NoError(t, err)
		assert.False(t, ok, "chunk %d should be dropped", i)
	}

	_, ok, err := s.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDiskStoreContextCancelled(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := cache.ChunkID{Key: "file", ETag: "v1", Index: 0}
	assert.ErrorIs(t, s.Put(ctx, id, []byte("x")), context.Canceled)

	_, _, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
}
