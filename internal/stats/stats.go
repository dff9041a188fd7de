// Package stats provides the monotone counters every cache level, core and
// interconnect in this simulator reports through, plus the derived-metric
// helpers the reporting layer (internal/report) renders.
//
// Every Counters field is an atomic.Uint64, in single-core and multi-core
// runs alike, so a counter shared across goroutines (a shared L2/L3 in a
// multi-core run) needs no separate code path.
package stats

import "sync/atomic"

// Counters holds the hit/miss/traffic counters for one cache level.
type Counters struct {
	Reads      atomic.Uint64
	Writes     atomic.Uint64
	Hits       atomic.Uint64
	Misses     atomic.Uint64
	Evictions  atomic.Uint64
	Writebacks atomic.Uint64

	// PrefetchInstalls counts blocks installed by a prefetcher rather than
	// a demand access. Per the resolved Open Question in SPEC_FULL.md §9,
	// these never touch Reads/Writes/Hits/Misses.
	PrefetchInstalls atomic.Uint64
	PrefetchHits     atomic.Uint64
}

// Snapshot is a point-in-time, non-atomic copy of Counters suitable for
// printing or CSV export. Per SPEC_FULL.md §9, snapshots are taken without
// a lock and may observe a mildly inconsistent cross-counter state.
type Snapshot struct {
	Reads            uint64
	Writes           uint64
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	Writebacks       uint64
	PrefetchInstalls uint64
	PrefetchHits     uint64
}

// Snapshot reads every counter into a plain struct.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Reads:            c.Reads.Load(),
		Writes:           c.Writes.Load(),
		Hits:             c.Hits.Load(),
		Misses:           c.Misses.Load(),
		Evictions:        c.Evictions.Load(),
		Writebacks:       c.Writebacks.Load(),
		PrefetchInstalls: c.PrefetchInstalls.Load(),
		PrefetchHits:     c.PrefetchHits.Load(),
	}
}

// Reset clears every counter.
func (c *Counters) Reset() {
	c.Reads.Store(0)
	c.Writes.Store(0)
	c.Hits.Store(0)
	c.Misses.Store(0)
	c.Evictions.Store(0)
	c.Writebacks.Store(0)
	c.PrefetchInstalls.Store(0)
	c.PrefetchHits.Store(0)
}

// Accesses returns reads + writes.
func (s Snapshot) Accesses() uint64 {
	return s.Reads + s.Writes
}

// HitRate returns hits / (hits + misses), or 0 if there were no accesses.
func (s Snapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MissRate returns misses / (hits + misses), or 0 if there were no accesses.
func (s Snapshot) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

// PrefetchAccuracy returns prefetch hits / prefetch installs, or 0 if no
// prefetches were ever installed.
func (s Snapshot) PrefetchAccuracy() float64 {
	if s.PrefetchInstalls == 0 {
		return 0
	}
	return float64(s.PrefetchHits) / float64(s.PrefetchInstalls)
}

// Add accumulates another snapshot's counters into this one, producing the
// roll-up a MemoryHierarchy or MultiProcessorSystem reports across levels
// or cores.
func (s Snapshot) Add(other Snapshot) Snapshot {
	return Snapshot{
		Reads:            s.Reads + other.Reads,
		Writes:           s.Writes + other.Writes,
		Hits:             s.Hits + other.Hits,
		Misses:           s.Misses + other.Misses,
		Evictions:        s.Evictions + other.Evictions,
		Writebacks:       s.Writebacks + other.Writebacks,
		PrefetchInstalls: s.PrefetchInstalls + other.PrefetchInstalls,
		PrefetchHits:     s.PrefetchHits + other.PrefetchHits,
	}
}
