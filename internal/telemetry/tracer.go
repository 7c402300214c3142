package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. Filesystem-facing keys use the "fs." prefix,
// data-path keys their own component prefix.
const (
	// Filesystem attributes
	AttrPath    = "fs.path"
	AttrHandle  = "fs.handle"
	AttrOffset  = "fs.offset"
	AttrCount   = "fs.count"
	AttrSize    = "fs.size"
	AttrEOF     = "fs.eof"
	AttrErrno   = "fs.errno"
	AttrPattern = "fs.read_pattern"

	// Cache attributes
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"
	AttrCacheBytes  = "cache.bytes"

	// Fetch attributes
	AttrFetchPriority = "fetch.priority"
	AttrFetchChunks   = "fetch.chunks"
	AttrChunkIndex    = "fetch.chunk_index"

	// Storage backend attributes
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrETag   = "storage.etag"
	AttrRegion = "storage.region"
)

// Span names.
// Format: <component>.<operation>.
const (
	SpanFSLookup  = "fs.lookup"
	SpanFSOpen    = "fs.open"
	SpanFSRead    = "fs.read"
	SpanFSReaddir = "fs.readdir"
	SpanFSGetattr = "fs.getattr"
	SpanFSRelease = "fs.release"

	SpanFetchDemand   = "fetch.demand"
	SpanFetchPrefetch = "fetch.prefetch"
	SpanStoreGet      = "store.get_range"
	SpanStoreHead     = "store.head"
	SpanStoreList     = "store.list"
)

// Path returns an attribute for a filesystem path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Handle returns an attribute for an open file handle
func Handle(handle uint64) attribute.KeyValue {
	return attribute.Int64(AttrHandle, int64(handle))
}

// Offset returns an attribute for a read offset
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Count returns an attribute for a requested byte count
func Count(count int) attribute.KeyValue {
	return attribute.Int(AttrCount, count)
}

// Size returns an attribute for an object size
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// EOF returns an attribute for an end-of-file indicator
func EOF(eof bool) attribute.KeyValue {
	return attribute.Bool(AttrEOF, eof)
}

// Errno returns an attribute for a FUSE errno result
func Errno(errno int) attribute.KeyValue {
	return attribute.Int(AttrErrno, errno)
}

// ReadPattern returns an attribute for a handle's detected read pattern
func ReadPattern(pattern string) attribute.KeyValue {
	return attribute.String(AttrPattern, pattern)
}

// CacheHit returns an attribute for a cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for where a chunk was served from
// (memory, disk, remote)
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheBytes returns an attribute for cached byte counts
func CacheBytes(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheBytes, int64(n))
}

// FetchPriority returns an attribute for a fetch priority class
func FetchPriority(priority string) attribute.KeyValue {
	return attribute.String(AttrFetchPriority, priority)
}

// FetchChunks returns an attribute for the chunk count in a fetch
func FetchChunks(n int) attribute.KeyValue {
	return attribute.Int(AttrFetchChunks, n)
}

// ChunkIndex returns an attribute for a chunk index within an object
func ChunkIndex(index uint32) attribute.KeyValue {
	return attribute.Int64(AttrChunkIndex, int64(index))
}

// Bucket returns an attribute for a bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// ETag returns an attribute for an object generation tag
func ETag(etag string) attribute.KeyValue {
	return attribute.String(AttrETag, etag)
}

// Region returns an attribute for a cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartFSSpan starts a span for a filesystem operation against a path.
func StartFSSpan(ctx context.Context, name string, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Path(path),
	}
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartFetchSpan starts a span for a backend fetch.
func StartFetchSpan(ctx context.Context, name string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StorageKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for an object store request.
func StartStoreSpan(ctx context.Context, name string, bucket, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Bucket(bucket),
		StorageKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, name, trace.WithAttributes(allAttrs...))
}
