package stream

// Pattern classifies the access behavior observed on a stream.
type Pattern int

const (
	// PatternInitial is the state before enough reads have arrived to
	// classify the stream. No read-ahead is issued yet.
	PatternInitial Pattern = iota

	// PatternSequential means consecutive reads continue where the
	// previous one ended. Read-ahead is active and growing.
	PatternSequential

	// PatternRandom means reads jump around. Read-ahead is suspended
	// until the stream turns sequential again.
	PatternRandom
)

func (p Pattern) String() string {
	switch p {
	case PatternInitial:
		return "initial"
	case PatternSequential:
		return "sequential"
	case PatternRandom:
		return "random"
	default:
		return "unknown"
	}
}

// detector classifies a stream's access pattern from the sequence of
// (offset, length) reads. Not safe for concurrent use; the stream
// serializes calls under its own lock.
type detector struct {
	threshold int // consecutive contiguous reads to call it sequential

	nextOffset uint64 // where a contiguous read would start
	run        int    // current contiguous run length, including the first read
	observed   bool
	pattern    Pattern
}

func newDetector(threshold int) detector {
	return detector{threshold: threshold}
}

// observe feeds one read into the detector and returns the updated
// pattern.
//
// A read is contiguous when it starts exactly where the previous one
// ended. A stream is classified sequential after `threshold` contiguous
// reads in a row. Any discontiguous read reclassifies it random
// immediately and zeroes the run, so a full fresh run of `threshold`
// contiguous reads is required before the stream counts as sequential
// again.
func (d *detector) observe(offset, length uint64) Pattern {
	switch {
	case !d.observed:
		d.observed = true
		d.run = 1
	case offset == d.nextOffset:
		d.run++
		if d.run >= d.threshold {
			d.pattern = PatternSequential
		}
	default:
		d.run = 0
		d.pattern = PatternRandom
	}

	d.nextOffset = offset + length
	return d.pattern
}

// window sizes the read-ahead in chunks. It grows additively while the
// stream stays sequential and snaps back to the minimum when it goes
// random, so one seek forfeits the built-up read-ahead instead of
// carrying it into a random phase.
type window struct {
	size uint32
	min  uint32
	step uint32
	max  uint32
}

func newWindow(minSize, step, maxSize uint32) window {
	return window{size: minSize, min: minSize, step: step, max: maxSize}
}

func (w *window) grow() uint32 {
	w.size = min(w.size+w.step, w.max)
	return w.size
}

func (w *window) reset() uint32 {
	w.size = w.min
	return w.size
}
