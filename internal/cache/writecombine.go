package cache

// writeCombineBuffer holds up to size pending write addresses, coalescing
// repeat writes to the same block, per SPEC_FULL.md §4.4. It flushes on
// overflow, after timeout accesses with no flush-worthy activity, or when
// asked to flush a specific address (a read hitting a pending write).
//
// Per SPEC_FULL.md §9, the timeout is expressed in "accesses processed
// since last buffer activity", not wall-clock, and the buffer is owned and
// flushed entirely by the cache that holds it — no separate timer
// goroutine.
type writeCombineBuffer struct {
	size    int
	timeout int

	order       []uint64
	pending     map[uint64]int // blockAddr -> index into order, for O(1) coalescing
	sinceActive int
}

func newWriteCombineBuffer(size, timeout int) *writeCombineBuffer {
	return &writeCombineBuffer{
		size:    size,
		timeout: timeout,
		pending: make(map[uint64]int),
	}
}

// add records a pending write to blockAddr, coalescing with any existing
// pending write to the same block. It returns the addresses flushed if the
// buffer overflowed as a result.
func (b *writeCombineBuffer) add(blockAddr uint64) []uint64 {
	b.sinceActive = 0

	if _, ok := b.pending[blockAddr]; ok {
		return nil // coalesced with an existing pending write
	}

	b.order = append(b.order, blockAddr)
	b.pending[blockAddr] = len(b.order) - 1

	if len(b.order) > b.size {
		return b.flushAll()
	}
	return nil
}

// flushIfPresent flushes the whole buffer if blockAddr currently has a
// pending write, per the "any read to an address currently in the buffer"
// flush trigger. It reports whether blockAddr was pending.
func (b *writeCombineBuffer) flushIfPresent(blockAddr uint64) (flushed []uint64, wasPresent bool) {
	if _, ok := b.pending[blockAddr]; !ok {
		return nil, false
	}
	return b.flushAll(), true
}

// tick advances the idle counter by one processed access and flushes the
// buffer if the timeout has elapsed with no write activity.
func (b *writeCombineBuffer) tick() []uint64 {
	if len(b.order) == 0 {
		return nil
	}
	b.sinceActive++
	if b.sinceActive >= b.timeout {
		return b.flushAll()
	}
	return nil
}

func (b *writeCombineBuffer) flushAll() []uint64 {
	if len(b.order) == 0 {
		return nil
	}
	flushed := b.order
	b.order = nil
	b.pending = make(map[uint64]int)
	b.sinceActive = 0
	return flushed
}
