// Package cache implements one level of a set-associative cache:
// lookup, installation, eviction, write policy and write-combining, and
// per-level statistics, per SPEC_FULL.md §4.3–§4.4.
//
// The package follows the teacher's own cache shape (timing/cache.Cache in
// the source this module grew from): a Config value describing geometry,
// a flat per-way metadata layout (here internal/cacheline.Set, rather than
// the teacher's [][]byte dataStore, since this simulator tracks line state
// and not byte values), and a Statistics-style counters block queried
// read-only by callers. Unlike the teacher, this Cache never touches real
// data bytes — the simulator only needs hit/miss/eviction decisions, not
// load/store values — so there is no backing-store read/write call inside
// Access itself; MemoryHierarchy (internal/hierarchy) drives the multi-level
// flow and decides what an eviction or a forwarded write means to the next
// level.
package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/internal/addrdecoder"
	"github.com/sarchlab/cachesim/internal/cacheline"
	"github.com/sarchlab/cachesim/internal/replacement"
	"github.com/sarchlab/cachesim/internal/stats"
)

// Config describes one cache level's geometry and policies. Every field
// here is assumed pre-validated by internal/config — Cache itself only
// checks the structural invariants (powers of two, W·B·S == Size) that
// must hold regardless of where the Config came from.
type Config struct {
	Size          int
	Associativity int
	BlockSize     int

	Policy         replacement.Kind
	ReplacementSeed int64

	// WriteBack selects write-back (true) or write-through (false).
	WriteBack bool
	// WriteAllocate selects write-allocate (true) or no-write-allocate
	// (false) on a write miss. The teacher's implicit-allocate rule from
	// SPEC_FULL.md §6 (back⇒allocate, through⇒no-allocate unless
	// overridden) is applied by internal/config before Cache ever sees
	// this value.
	WriteAllocate bool

	// WriteCombineSize, if > 0, enables a write-combining buffer of this
	// many pending block addresses. WriteCombineTimeout is the number of
	// processed accesses after which an idle buffer is flushed.
	WriteCombineSize    int
	WriteCombineTimeout int
}

// numSets returns the derived set count, W·B·S == Size.
func (c Config) numSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Validate checks the structural invariants every Cache geometry must
// satisfy (§3): S, W, B are powers of two and size = W·B·S.
func (c Config) Validate() error {
	if c.BlockSize <= 0 || !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("cache: block size %d must be a positive power of two", c.BlockSize)
	}
	if c.Associativity <= 0 || !isPowerOfTwo(c.Associativity) {
		return fmt.Errorf("cache: associativity %d must be a positive power of two", c.Associativity)
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("cache: size %d is not a multiple of associativity*blockSize (%d*%d)", c.Size, c.Associativity, c.BlockSize)
	}
	sets := c.numSets()
	if !isPowerOfTwo(sets) {
		return fmt.Errorf("cache: derived set count %d is not a power of two", sets)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// EvictedBlock describes a block just displaced from a cache level.
type EvictedBlock struct {
	Address uint64 // block-aligned address
	Dirty   bool
	State   cacheline.CoherenceState
}

// AccessResult is the outcome of a Cache.Access call.
type AccessResult struct {
	Hit     bool
	SetIndex int
	Way     int

	Evicted      bool
	EvictedBlock EvictedBlock

	// Installed is true if a miss resulted in the block being installed
	// at this level (always true for write-allocate misses and all read
	// misses; false for a no-write-allocate write miss).
	Installed bool

	// ForwardWrite is true if this access must propagate a write to the
	// next level immediately (write-through hit, or a no-write-allocate
	// write miss), and no write-combining buffer is absorbing it.
	ForwardWrite bool

	// FlushedWrites lists block addresses the write-combining buffer
	// flushed to the next level as a side effect of this access
	// (overflow, timeout, or a read hitting a pending address).
	FlushedWrites []uint64
}

// Cache is one level of a set-associative cache.
type Cache struct {
	cfg     Config
	decoder *addrdecoder.Decoder
	sets    []*cacheline.Set
	policy  replacement.Policy
	wcb     *writeCombineBuffer

	clock uint64
	stats stats.Counters
}

// New constructs a Cache from cfg, which must already satisfy Validate.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	numSets := cfg.numSets()
	policy, err := replacement.New(cfg.Policy, numSets, cfg.Associativity, cfg.ReplacementSeed)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	sets := make([]*cacheline.Set, numSets)
	for i := range sets {
		sets[i] = cacheline.NewSet(i, cfg.Associativity)
	}

	c := &Cache{
		cfg:     cfg,
		decoder: addrdecoder.New(cfg.BlockSize, numSets),
		sets:    sets,
		policy:  policy,
	}
	if cfg.WriteCombineSize > 0 {
		c.wcb = newWriteCombineBuffer(cfg.WriteCombineSize, cfg.WriteCombineTimeout)
	}
	return c, nil
}

// Config returns the cache's configuration.
func (c *Cache) Config() Config { return c.cfg }

// Decoder returns the address decoder this cache uses, so callers (e.g.
// MemoryHierarchy) can compute block addresses consistently.
func (c *Cache) Decoder() *addrdecoder.Decoder { return c.decoder }

// Stats returns a read-only snapshot of this level's counters.
func (c *Cache) Stats() stats.Snapshot { return c.stats.Snapshot() }

// ResetStats clears every counter.
func (c *Cache) ResetStats() { c.stats.Reset() }

// Reset invalidates every line (without writeback) and clears all policy
// history and statistics.
func (c *Cache) Reset() {
	for _, set := range c.sets {
		for _, b := range set.Blocks {
			b.Invalidate()
		}
	}
	c.policy.Reset()
	c.stats.Reset()
	c.clock = 0
	if c.wcb != nil {
		c.wcb.flushAll()
	}
}

// Peek looks up addr without recording a hit/miss or updating replacement
// state. Used by coherence permission checks, which must not perturb LRU
// order just to answer "do I have this line".
func (c *Cache) Peek(addr uint64) (*cacheline.Block, bool) {
	tag, setIndex, _ := c.decoder.Decode(addr)
	way := c.sets[setIndex].Lookup(tag)
	if way < 0 {
		return nil, false
	}
	return c.sets[setIndex].Blocks[way], true
}

// Access performs one demand read or write, per the algorithm in
// SPEC_FULL.md §4.3.
func (c *Cache) Access(addr uint64, isWrite bool) AccessResult {
	if isWrite {
		c.stats.Writes.Add(1)
	} else {
		c.stats.Reads.Add(1)
	}

	tag, setIndex, _ := c.decoder.Decode(addr)
	blockAddr := c.decoder.BlockAddress(addr)
	set := c.sets[setIndex]

	var flushed []uint64
	if c.wcb != nil {
		if f := c.wcb.tick(); f != nil {
			flushed = append(flushed, f...)
		}
		if !isWrite {
			if f, _ := c.wcb.flushIfPresent(blockAddr); f != nil {
				flushed = append(flushed, f...)
			}
		}
	}

	if way := set.Lookup(tag); way >= 0 {
		c.stats.Hits.Add(1)
		c.policy.OnAccess(setIndex, way)
		c.clock++
		block := set.Blocks[way]
		block.Touch(c.clock)
		if block.Prefetched {
			c.stats.PrefetchHits.Add(1)
			block.Prefetched = false
		}

		result := AccessResult{Hit: true, SetIndex: setIndex, Way: way, FlushedWrites: flushed}
		if isWrite {
			if c.cfg.WriteBack {
				block.Dirty = true
			} else {
				block.Dirty = false
				result.ForwardWrite = true
				if c.wcb != nil {
					if f := c.wcb.add(blockAddr); f != nil {
						result.FlushedWrites = append(result.FlushedWrites, f...)
					}
					result.ForwardWrite = false
				}
			}
		}
		return result
	}

	c.stats.Misses.Add(1)

	if isWrite && !c.cfg.WriteAllocate {
		result := AccessResult{Hit: false, SetIndex: setIndex, ForwardWrite: true, FlushedWrites: flushed}
		if c.wcb != nil {
			if f := c.wcb.add(blockAddr); f != nil {
				result.FlushedWrites = append(result.FlushedWrites, f...)
			}
			result.ForwardWrite = false
		}
		return result
	}

	way := c.policy.SelectVictim(setIndex, set.ValidMask())
	block := set.Blocks[way]

	result := AccessResult{Hit: false, SetIndex: setIndex, Way: way, Installed: true, FlushedWrites: flushed}
	if block.Valid {
		result.Evicted = true
		result.EvictedBlock = EvictedBlock{
			Address: c.decoder.EncodeBlock(block.Tag, setIndex),
			Dirty:   block.Dirty,
			State:   block.State,
		}
		c.stats.Evictions.Add(1)
		if block.Dirty {
			c.stats.Writebacks.Add(1)
		}
	}

	c.clock++
	block.Install(tag, isWrite, cacheline.Invalid, c.clock)
	c.policy.OnInstall(setIndex, way)

	return result
}

// Install directly places a block at addr's home set, bypassing Access's
// hit/miss bookkeeping. Used by MemoryHierarchy to swap a victim-cache
// entry back into L1, or to install a line just fetched from L2, with a
// caller-chosen dirty bit and coherence state.
func (c *Cache) Install(addr uint64, dirty bool, state cacheline.CoherenceState) (evicted *EvictedBlock) {
	tag, setIndex, _ := c.decoder.Decode(addr)
	set := c.sets[setIndex]

	way := set.Lookup(tag)
	if way < 0 {
		way = c.policy.SelectVictim(setIndex, set.ValidMask())
	}
	block := set.Blocks[way]

	if block.Valid && block.Tag != tag {
		c.stats.Evictions.Add(1)
		if block.Dirty {
			c.stats.Writebacks.Add(1)
		}
		evicted = &EvictedBlock{
			Address: c.decoder.EncodeBlock(block.Tag, setIndex),
			Dirty:   block.Dirty,
			State:   block.State,
		}
	}

	c.clock++
	block.Install(tag, dirty, state, c.clock)
	c.policy.OnInstall(setIndex, way)
	return evicted
}

// InstallPrefetch is Install, but counts against PrefetchInstalls instead
// of participating in demand hit/miss bookkeeping, per the resolved Open
// Question in SPEC_FULL.md §9.
func (c *Cache) InstallPrefetch(addr uint64, state cacheline.CoherenceState) (evicted *EvictedBlock) {
	evicted = c.Install(addr, false, state)
	c.stats.PrefetchInstalls.Add(1)
	block, _ := c.Peek(addr)
	if block != nil {
		block.Prefetched = true
	}
	return evicted
}

// Invalidate marks the line holding addr invalid, if present, without
// writeback. Returns whether a (possibly dirty) line was invalidated and
// whether it was dirty.
func (c *Cache) Invalidate(addr uint64) (invalidated, wasDirty bool) {
	block, ok := c.Peek(addr)
	if !ok {
		return false, false
	}
	wasDirty = block.Dirty
	block.Invalidate()
	return true, wasDirty
}

// SetCoherenceState overwrites the coherence state of the line holding
// addr, if present. Used by the MESI/CoherenceDirectory integration; it is
// a no-op in single-core configurations, which never call it.
func (c *Cache) SetCoherenceState(addr uint64, state cacheline.CoherenceState) {
	if block, ok := c.Peek(addr); ok {
		block.State = state
	}
}

// MarkDirty sets or clears the dirty bit of the line holding addr, if
// present.
func (c *Cache) MarkDirty(addr uint64, dirty bool) {
	if block, ok := c.Peek(addr); ok {
		block.Dirty = dirty
	}
}

// BlockView is a read-only snapshot of one resident block, for external
// inspection (visualization, CSV export, tests).
type BlockView struct {
	SetIndex    int
	Way         int
	Tag         uint64
	Address     uint64
	Dirty       bool
	State       cacheline.CoherenceState
	AccessCount uint64
	Prefetched  bool
}

// Blocks returns a view of every currently valid block.
func (c *Cache) Blocks() []BlockView {
	var views []BlockView
	for setIndex, set := range c.sets {
		for way, b := range set.Blocks {
			if !b.Valid {
				continue
			}
			views = append(views, BlockView{
				SetIndex:    setIndex,
				Way:         way,
				Tag:         b.Tag,
				Address:     c.decoder.EncodeBlock(b.Tag, setIndex),
				Dirty:       b.Dirty,
				State:       b.State,
				AccessCount: b.AccessCount,
				Prefetched:  b.Prefetched,
			})
		}
	}
	return views
}

// NumSets returns the number of sets.
func (c *Cache) NumSets() int { return len(c.sets) }

// FlushWriteBuffer forces any pending write-combining entries to flush
// immediately, returning the addresses forwarded. It is a no-op returning
// nil if write-combining is disabled. Used by ProcessorCore.MemoryBarrier's
// release semantics (SPEC_FULL.md §4.13).
func (c *Cache) FlushWriteBuffer() []uint64 {
	if c.wcb == nil {
		return nil
	}
	return c.wcb.flushAll()
}
