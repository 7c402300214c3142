// Package chunk provides the geometry of chunked objects.
//
// The data path divides every object into fixed-size chunks; the chunk is
// the unit of caching and of remote fetching. A read(offset, length) call
// decomposes into the covering set of chunks, each of which is resolved
// against the cache independently. Chunks at the tail of an object are
// shorter than the configured size.
package chunk

import "fmt"

// DefaultSize is the default chunk size (8MB). Large enough that a
// sequential reader amortizes per-request overhead, small enough that a
// random reader does not pay megabytes of transfer for a 4KB read.
const DefaultSize = 8 * 1024 * 1024

// Layout describes the chunk geometry for a mount. The zero value is not
// usable; construct with NewLayout.
type Layout struct {
	size uint64
}

// NewLayout creates a Layout with the given chunk size. A zero size selects
// DefaultSize.
func NewLayout(size uint64) Layout {
	if size == 0 {
		size = DefaultSize
	}
	return Layout{size: size}
}

// Size returns the chunk size in bytes.
func (l Layout) Size() uint64 {
	return l.size
}

// IndexForOffset returns the chunk index containing the given object offset.
func (l Layout) IndexForOffset(offset uint64) uint32 {
	return uint32(offset / l.size)
}

// Count returns the number of chunks covering an object of the given size.
// An empty object has zero chunks.
func (l Layout) Count(objectSize uint64) uint32 {
	return uint32((objectSize + l.size - 1) / l.size)
}

// Bounds returns the object-level byte range [start, end) for a chunk index,
// ignoring the object size. Use ChunkLength for the tail-aware length.
func (l Layout) Bounds(index uint32) (start, end uint64) {
	start = uint64(index) * l.size
	return start, start + l.size
}

// ChunkLength returns the actual length of a chunk given the object size.
// Returns 0 for chunks entirely past the end of the object.
func (l Layout) ChunkLength(index uint32, objectSize uint64) uint64 {
	start, end := l.Bounds(index)
	if start >= objectSize {
		return 0
	}
	if end > objectSize {
		return objectSize - start
	}
	return l.size
}

// Range returns the inclusive chunk index range spanned by [offset,
// offset+length).
func (l Layout) Range(offset, length uint64) (startChunk, endChunk uint32) {
	if length == 0 {
		idx := l.IndexForOffset(offset)
		return idx, idx
	}
	return l.IndexForOffset(offset), l.IndexForOffset(offset + length - 1)
}

// Slice is the portion of a byte range that falls within a single chunk.
type Slice struct {
	// Index is the chunk this slice belongs to.
	Index uint32

	// Offset is the byte offset within the chunk.
	Offset uint64

	// Length is the slice length in bytes.
	Length uint64

	// BufOffset is the offset into the caller's buffer where this slice's
	// bytes belong, preserving requested order across chunks.
	BufOffset uint64
}

// Slices iterates over the per-chunk slices of an object-level byte range,
// in ascending chunk order:
//
//	for s := range layout.Slices(offset, length) {
//	    data := resolve(s.Index)
//	    copy(buf[s.BufOffset:], data[s.Offset:s.Offset+s.Length])
//	}
func (l Layout) Slices(offset, length uint64) func(yield func(Slice) bool) {
	return func(yield func(Slice) bool) {
		if length == 0 {
			return
		}

		var consumed uint64
		startChunk, endChunk := l.Range(offset, length)
		for index := startChunk; index <= endChunk; index++ {
			chunkStart, chunkEnd := l.Bounds(index)

			sliceStart := max(offset+consumed, chunkStart)
			sliceEnd := min(offset+length, chunkEnd)
			if sliceEnd <= sliceStart {
				continue
			}

			s := Slice{
				Index:     index,
				Offset:    sliceStart - chunkStart,
				Length:    sliceEnd - sliceStart,
				BufOffset: consumed,
			}
			if !yield(s) {
				return
			}
			consumed += s.Length
		}
	}
}

// ClampToObject clips a requested range to the object size. Returns the
// usable length; 0 means the read starts at or past end of object.
func ClampToObject(offset, length, objectSize uint64) uint64 {
	if offset >= objectSize {
		return 0
	}
	if offset+length > objectSize {
		return objectSize - offset
	}
	return length
}

// String renders the layout for logs.
func (l Layout) String() string {
	return fmt.Sprintf("chunks of %d bytes", l.size)
}
