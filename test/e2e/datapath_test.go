//go:build e2e

package e2e

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/cache/disk"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/fetcher"
	"github.com/marmos91/driftfs/pkg/object"
	"github.com/marmos91/driftfs/pkg/resolver"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
	s3store "github.com/marmos91/driftfs/pkg/store/object/s3"
	"github.com/marmos91/driftfs/pkg/stream"
)

const testChunkSize = 256 * 1024

// stack is a fully wired read path against a real bucket.
type stack struct {
	client  *s3store.Client
	cache   *cache.Cache
	fetcher *fetcher.Fetcher
	streams *stream.Manager
	res     *resolver.Resolver
	layout  chunk.Layout
}

func newStack(t *testing.T, helper *LocalstackHelper, bucket string, diskTier fetcher.DiskTier) *stack {
	t.Helper()
	ctx := context.Background()

	client, err := s3store.New(ctx, s3store.Config{
		Client: helper.Client,
		Bucket: bucket,
	})
	require.NoError(t, err)

	chunkCache := cache.New(cache.Config{MaxBytes: 64 * 1024 * 1024})
	t.Cleanup(chunkCache.Close)

	f := fetcher.New(client, chunkCache, fetcher.Config{
		Workers:     4,
		CoalesceMax: 4,
		DiskTier:    diskTier,
	})
	f.Start()
	t.Cleanup(func() { f.Stop(10 * time.Second) })

	layout := chunk.NewLayout(testChunkSize)
	streams := stream.NewManager(layout, f, stream.Config{})
	res := resolver.New(client, resolver.Config{TTL: 100 * time.Millisecond})

	return &stack{
		client:  client,
		cache:   chunkCache,
		fetcher: f,
		streams: streams,
		res:     res,
		layout:  layout,
	}
}

// readAll reads an object through a stream in sequential page-sized
// requests, the way the kernel drives reads.
func (s *stack) readAll(t *testing.T, ctx context.Context, id object.ID) []byte {
	t.Helper()

	handle, st := s.streams.Open(id)
	defer s.streams.Close(handle)

	got := make([]byte, 0, id.Size)
	buf := make([]byte, 128*1024)
	var off uint64
	for {
		n, err := st.ReadAt(ctx, buf, off)
		got = append(got, buf[:n]...)
		off += uint64(n)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return got
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestDataPathAgainstS3(t *testing.T) {
	helper := NewLocalstackHelper(t)
	ctx := context.Background()

	bucket := "driftfs-e2e-datapath"
	require.NoError(t, helper.CreateBucket(ctx, bucket))
	t.Cleanup(helper.Cleanup)

	// An object spanning several chunks plus a partial tail.
	large := randomBytes(t, 3*testChunkSize+777)
	require.NoError(t, helper.PutObject(ctx, bucket, "datasets/train.bin", large))

	small := []byte("hello driftfs")
	require.NoError(t, helper.PutObject(ctx, bucket, "readme.txt", small))
	require.NoError(t, helper.PutObject(ctx, bucket, "datasets/nested/labels.csv", []byte("a,b,c\n")))

	s := newStack(t, helper, bucket, nil)

	t.Run("resolve and stat", func(t *testing.T) {
		node, err := s.res.Stat(ctx, "datasets/train.bin")
		require.NoError(t, err)
		assert.Equal(t, resolver.KindFile, node.Kind)
		assert.Equal(t, uint64(len(large)), node.ID.Size)
		assert.NotEmpty(t, node.ID.ETag)
	})

	t.Run("directory listing", func(t *testing.T) {
		entries, err := s.res.ReadDir(ctx, "")
		require.NoError(t, err)

		names := map[string]resolver.Kind{}
		for _, e := range entries {
			names[e.Name] = e.Kind
		}
		assert.Equal(t, resolver.KindDir, names["datasets"])
		assert.Equal(t, resolver.KindFile, names["readme.txt"])

		nested, err := s.res.ReadDir(ctx, "datasets")
		require.NoError(t, err)
		require.Len(t, nested, 2)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.res.Stat(ctx, "no/such/object")
		require.Error(t, err)
		assert.True(t, storeobject.IsNotFound(err))
	})

	t.Run("sequential read returns exact bytes", func(t *testing.T) {
		node, err := s.res.Stat(ctx, "datasets/train.bin")
		require.NoError(t, err)

		got := s.readAll(t, ctx, node.ID)
		require.Equal(t, len(large), len(got))
		assert.Equal(t, large, got)
	})

	t.Run("second pass is served from cache", func(t *testing.T) {
		node, err := s.res.Stat(ctx, "datasets/train.bin")
		require.NoError(t, err)

		before := s.cache.Stats()
		got := s.readAll(t, ctx, node.ID)
		assert.Equal(t, large, got)

		after := s.cache.Stats()
		assert.Greater(t, after.Hits, before.Hits)
	})

	t.Run("random reads", func(t *testing.T) {
		node, err := s.res.Stat(ctx, "datasets/train.bin")
		require.NoError(t, err)

		handle, st := s.streams.Open(node.ID)
		defer s.streams.Close(handle)

		offsets := []uint64{
			uint64(len(large)) - 100,
			0,
			testChunkSize + 17,
			2*testChunkSize - 5,
		}
		buf := make([]byte, 100)
		for _, off := range offsets {
			n, err := st.ReadAt(ctx, buf, off)
			if err != nil {
				require.Equal(t, io.EOF, err)
			}
			want := large[off:min(int(off)+100, len(large))]
			assert.Equal(t, want, buf[:n], "offset %d", off)
		}
		assert.Equal(t, stream.PatternRandom, st.Pattern())
	})

	t.Run("small file", func(t *testing.T) {
		node, err := s.res.Stat(ctx, "readme.txt")
		require.NoError(t, err)
		got := s.readAll(t, ctx, node.ID)
		assert.Equal(t, small, got)
	})
}

func TestObjectOverwriteDetected(t *testing.T) {
	helper := NewLocalstackHelper(t)
	ctx := context.Background()

	bucket := "driftfs-e2e-overwrite"
	require.NoError(t, helper.CreateBucket(ctx, bucket))
	t.Cleanup(helper.Cleanup)

	original := randomBytes(t, 2*testChunkSize)
	require.NoError(t, helper.PutObject(ctx, bucket, "model.bin", original))

	s := newStack(t, helper, bucket, nil)

	node, err := s.res.Stat(ctx, "model.bin")
	require.NoError(t, err)

	handle, st := s.streams.Open(node.ID)
	defer s.streams.Close(handle)

	// First chunk reads fine.
	buf := make([]byte, 1024)
	n, err := st.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, original[:n], buf[:n])

	// Overwrite the object, then read an uncached range: the
	// conditional fetch must fail instead of mixing generations.
	require.NoError(t, helper.PutObject(ctx, bucket, "model.bin", randomBytes(t, 2*testChunkSize)))

	_, err = st.ReadAt(ctx, buf, testChunkSize)
	require.Error(t, err)
	assert.True(t, storeobject.IsObjectChanged(err))

	// The error latches: every later read on this handle fails the same
	// way, even for ranges already cached.
	_, err = st.ReadAt(ctx, buf, 0)
	require.Error(t, err)
	assert.True(t, storeobject.IsObjectChanged(err))

	// A fresh open resolves the new generation and reads cleanly.
	s.res.Invalidate("model.bin")
	node2, err := s.res.Stat(ctx, "model.bin")
	require.NoError(t, err)
	assert.NotEqual(t, node.ID.ETag, node2.ID.ETag)

	got := s.readAll(t, ctx, node2.ID)
	assert.Len(t, got, 2*testChunkSize)
}

func TestDiskTierSurvivesProcessRestart(t *testing.T) {
	helper := NewLocalstackHelper(t)
	ctx := context.Background()

	bucket := "driftfs-e2e-disktier"
	require.NoError(t, helper.CreateBucket(ctx, bucket))
	t.Cleanup(helper.Cleanup)

	data := randomBytes(t, 2*testChunkSize+99)
	require.NoError(t, helper.PutObject(ctx, bucket, "cached.bin", data))

	dir := t.TempDir()

	// First "process": read through, populating the disk tier.
	store1, err := disk.Open(disk.Config{Path: dir})
	require.NoError(t, err)

	s1 := newStack(t, helper, bucket, store1)
	node, err := s1.res.Stat(ctx, "cached.bin")
	require.NoError(t, err)
	got := s1.readAll(t, ctx, node.ID)
	require.Equal(t, data, got)
	require.NoError(t, store1.Close())

	// Second "process": fresh memory cache, same disk tier. The read
	// must come back byte-identical without depending on cache warmth.
	store2, err := disk.Open(disk.Config{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store2.Close() })

	s2 := newStack(t, helper, bucket, store2)
	node2, err := s2.res.Stat(ctx, "cached.bin")
	require.NoError(t, err)
	got2 := s2.readAll(t, ctx, node2.ID)
	assert.Equal(t, data, got2)

	// The chunks are on disk under the resolved generation.
	id := cache.ChunkID{Key: node2.ID.Key, ETag: node2.ID.ETag, Index: 0}
	_, ok, err := store2.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}
