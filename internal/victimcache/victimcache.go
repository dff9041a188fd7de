// Package victimcache implements the small fully-associative FIFO buffer
// that catches blocks evicted from L1, per SPEC_FULL.md §4.5.
//
// It keeps its entries in a flat insertion-order slice rather than a
// linked list, since a victim cache is
// nothing more than a fully-associative, FIFO-only cache of evicted lines.
package victimcache

import "github.com/sarchlab/cachesim/internal/cacheline"

// Entry is one block held in the victim cache.
type Entry struct {
	Address uint64 // block-aligned address
	Dirty   bool
	State   cacheline.CoherenceState
}

// VictimCache holds up to Capacity recently evicted blocks, oldest first.
type VictimCache struct {
	capacity int
	entries  []Entry

	lookups   uint64
	hits      uint64
	evictions uint64
}

// New constructs a VictimCache of the given capacity. Capacity must be at
// least 1; internal/config rejects a victimCache.enabled=true, size=0
// configuration rather than constructing a degenerate VictimCache — a
// disabled victim cache is represented by a nil *VictimCache instead.
func New(capacity int) *VictimCache {
	return &VictimCache{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Capacity returns N.
func (v *VictimCache) Capacity() int { return v.capacity }

// Len returns the number of entries currently held.
func (v *VictimCache) Len() int { return len(v.entries) }

// Lookup removes and returns the entry for blockAddr, if present.
func (v *VictimCache) Lookup(blockAddr uint64) (Entry, bool) {
	v.lookups++
	for i, e := range v.entries {
		if e.Address == blockAddr {
			v.hits++
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// Insert appends entry. If the buffer is over capacity as a result, the
// oldest entry is dropped and counted as an eviction; it is returned so the
// caller can propagate it (e.g. to L2) if it was dirty.
func (v *VictimCache) Insert(entry Entry) (evicted Entry, didEvict bool) {
	v.entries = append(v.entries, entry)
	if len(v.entries) > v.capacity {
		evicted = v.entries[0]
		v.entries = v.entries[1:]
		v.evictions++
		didEvict = true
	}
	return evicted, didEvict
}

// InvalidateRange drops every entry whose address lies in [lo, hi].
func (v *VictimCache) InvalidateRange(lo, hi uint64) {
	kept := v.entries[:0]
	for _, e := range v.entries {
		if e.Address >= lo && e.Address <= hi {
			continue
		}
		kept = append(kept, e)
	}
	v.entries = kept
}

// Stats exposes lookup/hit/eviction counters. Unlike internal/stats.Counters
// these are plain uint64s: a victim cache is always owned by exactly one
// L1, never shared across goroutines, per the per-core-private resource
// list in SPEC_FULL.md §5.
type Stats struct {
	Lookups   uint64
	Hits      uint64
	Evictions uint64
}

// Stats returns a snapshot of the victim cache's counters.
func (v *VictimCache) Stats() Stats {
	return Stats{Lookups: v.lookups, Hits: v.hits, Evictions: v.evictions}
}

// HitRate returns hits / lookups, or 0 if there have been no lookups.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}
