// Package prefetch implements the three prefetching mechanisms named in
// SPEC_FULL.md §4.6–§4.8: a sequential StreamBuffer, a per-address
// StridePredictor, and an AdaptivePrefetcher that combines both and tunes
// its stream distance by observed effectiveness.
//
// None of these hold a reference to a Cache: MemoryHierarchy (internal/
// hierarchy) drives them from the outside, exactly as it drives
// internal/victimcache. They are concrete types; this package defines no
// shared prefetcher interface.
package prefetch

// StreamBuffer holds up to D consecutive block addresses prefetched ahead
// of a detected sequential access pattern, per SPEC_FULL.md §4.6.
type StreamBuffer struct {
	distance int
	valid    bool
	base     uint64
	entries  []uint64
	lastIdx  int

	accesses uint64
	hits     uint64
}

// NewStreamBuffer constructs an empty, invalid StreamBuffer of the given
// distance.
func NewStreamBuffer(distance int) *StreamBuffer {
	return &StreamBuffer{distance: distance, lastIdx: -1}
}

// Distance returns D.
func (s *StreamBuffer) Distance() int { return s.distance }

// SetDistance resizes the buffer's target distance. A subsequent Prefetch
// call picks up the new distance; the currently buffered entries are left
// untouched until then.
func (s *StreamBuffer) SetDistance(distance int) { s.distance = distance }

// Prefetch fills the buffer with [base, base+1, ..., base+D-1] (block
// addresses) and marks it valid.
func (s *StreamBuffer) Prefetch(base uint64) []uint64 {
	s.entries = make([]uint64, s.distance)
	for i := range s.entries {
		s.entries[i] = base + uint64(i)
	}
	s.base = base
	s.valid = true
	s.lastIdx = 0
	return append([]uint64(nil), s.entries...)
}

// Access reports whether blockAddr matches any buffered entry, marking the
// match as the new last-accessed position.
func (s *StreamBuffer) Access(blockAddr uint64) bool {
	s.accesses++
	if !s.valid {
		return false
	}
	for i, e := range s.entries {
		if e == blockAddr {
			s.lastIdx = i
			s.hits++
			return true
		}
	}
	return false
}

// Shift drops every entry up to and including the last-accessed position,
// shifting the remainder forward and resetting the last-accessed index.
// Capacity is preserved: callers refill the freed slots via Prefetch.
func (s *StreamBuffer) Shift() {
	if s.lastIdx < 0 {
		return
	}
	s.entries = append([]uint64(nil), s.entries[s.lastIdx+1:]...)
	s.lastIdx = -1
}

// HitRate returns hits / accesses, or 0 if there have been no accesses.
func (s *StreamBuffer) HitRate() float64 {
	if s.accesses == 0 {
		return 0
	}
	return float64(s.hits) / float64(s.accesses)
}

// strideEntry is one StridePredictor table row.
type strideEntry struct {
	valid      bool
	last       uint64
	stride     int64
	confidence int
}

const (
	strideConfidenceMax = 3
	strideConfidenceHit = 2
)

// StridePredictor detects constant-stride access patterns, keyed by up to
// T independent streams, per SPEC_FULL.md §4.7.
type StridePredictor struct {
	table []strideEntry

	// pending maps a predicted address to the table slot that issued it, so
	// Confirm can credit the right entry when that address is later seen.
	pending map[uint64]int

	predictionsIssued    uint64
	predictionsConfirmed uint64
}

// NewStridePredictor constructs a table of T entries.
func NewStridePredictor(tableSize int) *StridePredictor {
	return &StridePredictor{
		table:   make([]strideEntry, tableSize),
		pending: make(map[uint64]int),
	}
}

// key maps an identifier (e.g. a core/PC id) to a table slot. Callers
// without a true per-instruction identifier pass the last-accessed address,
// per the spec's "else last-accessed address mod T" fallback.
func (p *StridePredictor) key(id uint64) int {
	return int(id % uint64(len(p.table)))
}

// Observe feeds address addr against the stream identified by id. It
// returns the predicted next address and whether a prediction was issued
// (confidence reached the threshold).
func (p *StridePredictor) Observe(id, addr uint64) (predicted uint64, ok bool) {
	slot := p.key(id)
	e := &p.table[slot]

	if e.valid {
		stride := int64(addr) - int64(e.last)
		if stride == e.stride && stride != 0 {
			if e.confidence < strideConfidenceMax {
				e.confidence++
			}
		} else {
			e.stride = stride
			e.confidence = 0
		}
	} else {
		e.valid = true
		e.stride = 0
		e.confidence = 0
	}
	e.last = addr

	if e.confidence >= strideConfidenceHit && e.stride != 0 {
		predicted = uint64(int64(addr) + e.stride)
		p.predictionsIssued++
		p.pending[predicted] = slot
		return predicted, true
	}
	return 0, false
}

// Confirm reports that addr was referenced; if it matches a still-pending
// prediction, the prediction is credited as confirmed and consumed. It
// returns whether addr matched a pending prediction.
func (p *StridePredictor) Confirm(addr uint64) bool {
	if _, ok := p.pending[addr]; ok {
		p.predictionsConfirmed++
		delete(p.pending, addr)
		return true
	}
	return false
}

// Accuracy returns confirmed / issued predictions, or 0 if none issued.
func (p *StridePredictor) Accuracy() float64 {
	if p.predictionsIssued == 0 {
		return 0
	}
	return float64(p.predictionsConfirmed) / float64(p.predictionsIssued)
}

// AdaptivePrefetcher combines a StreamBuffer and a StridePredictor and
// adjusts the stream's distance by a sliding-window effectiveness score,
// per SPEC_FULL.md §4.8.
type AdaptivePrefetcher struct {
	stream *StreamBuffer
	stride *StridePredictor

	dMin, dMax int
	highThresh, lowThresh float64
	window     int

	windowIssued, windowConfirmed int
	sinceAdjust                   int
}

// AdaptivePrefetcherConfig bundles AdaptivePrefetcher's tuning knobs.
type AdaptivePrefetcherConfig struct {
	InitialDistance int
	MinDistance     int
	MaxDistance     int
	TableSize       int
	// WindowSize is the number of accesses between distance adjustments.
	// SPEC_FULL.md §9 resolves the Open Question over its value to 1024.
	WindowSize    int
	HighThreshold float64
	LowThreshold  float64
}

// NewAdaptivePrefetcher constructs an AdaptivePrefetcher from cfg.
func NewAdaptivePrefetcher(cfg AdaptivePrefetcherConfig) *AdaptivePrefetcher {
	return &AdaptivePrefetcher{
		stream:     NewStreamBuffer(cfg.InitialDistance),
		stride:     NewStridePredictor(cfg.TableSize),
		dMin:       cfg.MinDistance,
		dMax:       cfg.MaxDistance,
		highThresh: cfg.HighThreshold,
		lowThresh:  cfg.LowThreshold,
		window:     cfg.WindowSize,
	}
}

// Distance returns the stream buffer's current distance D.
func (a *AdaptivePrefetcher) Distance() int { return a.stream.Distance() }

// Stream exposes the underlying StreamBuffer (used by tests and by callers
// that want to query hit rate independently of the stride side).
func (a *AdaptivePrefetcher) Stream() *StreamBuffer { return a.stream }

// Stride exposes the underlying StridePredictor.
func (a *AdaptivePrefetcher) Stride() *StridePredictor { return a.stride }

// OnMiss triggers a fresh stream prefetch from the missed block's address
// when the stream buffer does not already cover it, returning the block
// addresses newly buffered (the caller installs each with Cache.
// InstallPrefetch).
func (a *AdaptivePrefetcher) OnMiss(blockAddr uint64) []uint64 {
	if a.stream.Access(blockAddr) {
		return nil
	}
	return a.stream.Prefetch(blockAddr + 1)
}

// OnAccess feeds the stride predictor for stream id (typically the core or
// PC identifier; the hierarchy passes the block address itself when no
// richer identifier is available) and confirms any prediction addr
// satisfies. It also advances the adaptation window and adjusts D at its
// boundary.
func (a *AdaptivePrefetcher) OnAccess(id, blockAddr uint64) (predicted uint64, ok bool) {
	if a.stride.Confirm(blockAddr) {
		a.windowConfirmed++
	}
	predicted, ok = a.stride.Observe(id, blockAddr)
	if ok {
		a.windowIssued++
	}

	a.sinceAdjust++
	if a.sinceAdjust >= a.window {
		a.adjust()
		a.sinceAdjust = 0
	}
	return predicted, ok
}

// OnInstall is a no-op. The prefetched flag is set by Cache.InstallPrefetch
// itself, and confirmed stride predictions are credited through OnAccess's
// Confirm call, so the adaptive window needs nothing from this hook.
func (a *AdaptivePrefetcher) OnInstall(blockAddr uint64) {}

func (a *AdaptivePrefetcher) adjust() {
	effectiveness := 0.0
	if a.windowIssued > 0 {
		effectiveness = float64(a.windowConfirmed) / float64(a.windowIssued)
	}

	d := a.stream.Distance()
	switch {
	case effectiveness >= a.highThresh && d < a.dMax:
		next := d * 2
		if next > a.dMax {
			next = d + 1
			if next > a.dMax {
				next = a.dMax
			}
		}
		a.stream.SetDistance(next)
	case effectiveness < a.lowThresh && d > a.dMin:
		next := d / 2
		if next < a.dMin {
			next = d - 1
			if next < a.dMin {
				next = a.dMin
			}
		}
		a.stream.SetDistance(next)
	}

	a.windowIssued = 0
	a.windowConfirmed = 0
}
