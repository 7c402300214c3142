package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, config.TelemetryConfig{Enabled: false}, "dev")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	tracer = nil
	enabled = false

	tr := Tracer()
	require.NotNil(t, tr)

	ctx, span := tr.Start(context.Background(), "fs.read")
	require.NotNil(t, ctx)
	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("fetch failed"))
	})
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(config.ProfilingConfig{Enabled: false}, "dev")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(config.ProfilingConfig{
		Enabled:      true,
		Endpoint:     "http://localhost:4040",
		ProfileTypes: []string{"cpu", "heap_voodoo"},
	}, "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap_voodoo")
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("Path", func(t *testing.T) {
		attr := Path("models/llama/weights.bin")
		assert.Equal(t, AttrPath, string(attr.Key))
		assert.Equal(t, "models/llama/weights.bin", attr.Value.AsString())
	})

	t.Run("Handle", func(t *testing.T) {
		attr := Handle(42)
		assert.Equal(t, AttrHandle, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("Offset", func(t *testing.T) {
		attr := Offset(1024)
		assert.Equal(t, AttrOffset, string(attr.Key))
		assert.Equal(t, int64(1024), attr.Value.AsInt64())
	})

	t.Run("Count", func(t *testing.T) {
		attr := Count(4096)
		assert.Equal(t, AttrCount, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("EOF", func(t *testing.T) {
		attr := EOF(true)
		assert.Equal(t, AttrEOF, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("ReadPattern", func(t *testing.T) {
		attr := ReadPattern("sequential")
		assert.Equal(t, AttrPattern, string(attr.Key))
		assert.Equal(t, "sequential", attr.Value.AsString())
	})

	t.Run("CacheHit", func(t *testing.T) {
		attr := CacheHit(true)
		assert.Equal(t, AttrCacheHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("CacheSource", func(t *testing.T) {
		attr := CacheSource("disk")
		assert.Equal(t, AttrCacheSource, string(attr.Key))
		assert.Equal(t, "disk", attr.Value.AsString())
	})

	t.Run("FetchPriority", func(t *testing.T) {
		attr := FetchPriority("blocking")
		assert.Equal(t, AttrFetchPriority, string(attr.Key))
		assert.Equal(t, "blocking", attr.Value.AsString())
	})

	t.Run("ChunkIndex", func(t *testing.T) {
		attr := ChunkIndex(7)
		assert.Equal(t, AttrChunkIndex, string(attr.Key))
		assert.Equal(t, int64(7), attr.Value.AsInt64())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("ETag", func(t *testing.T) {
		attr := ETag("\"abc123\"")
		assert.Equal(t, AttrETag, string(attr.Key))
		assert.Equal(t, "\"abc123\"", attr.Value.AsString())
	})
}

func TestStartFSSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartFSSpan(ctx, SpanFSRead, "datasets/train.bin", Offset(0), Count(4096))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartFetchSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartFetchSpan(ctx, SpanFetchDemand, "datasets/train.bin", ChunkIndex(3))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartStoreSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStoreSpan(ctx, SpanStoreGet, "bucket", "key", Region("us-east-1"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
