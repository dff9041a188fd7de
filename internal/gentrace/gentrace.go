// Package gentrace synthesizes memory traces in internal/tracefile's format,
// for the `cachesim gen` subcommand and for seed-scenario-style tests that
// need a reproducible access pattern without a hand-written trace file.
//
// Each named pattern mirrors one of the teacher's microbenchmarks.GetMicro
// benchmarks entries: a small, named generator producing a fixed, well
// understood access shape rather than a configurable DSL.
package gentrace

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/sarchlab/cachesim/internal/tracefile"
)

// Pattern names one access-generation strategy.
type Pattern string

const (
	// Sequential visits consecutive blocks: base, base+blockSize, ...
	Sequential Pattern = "sequential"
	// Strided visits base, base+stride, base+2*stride, ...
	Strided Pattern = "strided"
	// Random visits uniformly-chosen blocks within an address window.
	Random Pattern = "random"
	// Hotset mostly revisits a small set of "hot" blocks, occasionally
	// reaching into a much larger "cold" region — a simple working-set
	// skew, the pattern real cache benchmarks are shorthand for.
	Hotset Pattern = "hotset"
)

// Config parameterizes Generate. BlockSize defaults to 64 when zero.
type Config struct {
	Pattern   Pattern
	Count     int
	BlockSize int
	BaseAddr  uint64

	// Stride is the byte distance between consecutive Strided accesses.
	// Defaults to BlockSize when zero.
	Stride int

	// AddrSpace bounds a Random pattern's address window, in bytes,
	// starting at BaseAddr. Defaults to Count*BlockSize when zero.
	AddrSpace uint64

	// HotsetBlocks is the number of distinct blocks in a Hotset pattern's
	// hot region. Defaults to 4 when zero.
	HotsetBlocks int
	// HotsetRatio is the probability (0..1) that a Hotset access lands in
	// the hot region rather than the cold region. Defaults to 0.9 when zero.
	HotsetRatio float64
	// HotsetColdBlocks is the number of distinct blocks in the cold region.
	// Defaults to 64 when zero.
	HotsetColdBlocks int

	// Write marks every generated record a write instead of a read.
	Write bool

	Seed int64
}

// Generate produces cfg.Count records in order. Random and Hotset draw from
// a rand.Rand seeded with cfg.Seed, so the same Config always reproduces the
// same trace.
func Generate(cfg Config) []tracefile.Record {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = 64
	}
	op := tracefile.Read
	if cfg.Write {
		op = tracefile.Write
	}

	records := make([]tracefile.Record, cfg.Count)
	switch cfg.Pattern {
	case Strided:
		stride := cfg.Stride
		if stride == 0 {
			stride = blockSize
		}
		for i := range records {
			records[i] = tracefile.Record{Op: op, Addr: cfg.BaseAddr + uint64(i*stride)}
		}

	case Random:
		space := cfg.AddrSpace
		if space == 0 {
			space = uint64(cfg.Count) * uint64(blockSize)
		}
		numBlocks := int64(space / uint64(blockSize))
		if numBlocks < 1 {
			numBlocks = 1
		}
		rng := rand.New(rand.NewSource(cfg.Seed))
		for i := range records {
			block := rng.Int63n(numBlocks)
			records[i] = tracefile.Record{Op: op, Addr: cfg.BaseAddr + uint64(block)*uint64(blockSize)}
		}

	case Hotset:
		hot := cfg.HotsetBlocks
		if hot == 0 {
			hot = 4
		}
		cold := cfg.HotsetColdBlocks
		if cold == 0 {
			cold = 64
		}
		ratio := cfg.HotsetRatio
		if ratio == 0 {
			ratio = 0.9
		}
		rng := rand.New(rand.NewSource(cfg.Seed))
		for i := range records {
			var block int64
			if rng.Float64() < ratio {
				block = rng.Int63n(int64(hot))
			} else {
				block = int64(hot) + rng.Int63n(int64(cold))
			}
			records[i] = tracefile.Record{Op: op, Addr: cfg.BaseAddr + uint64(block)*uint64(blockSize)}
		}

	default: // Sequential
		for i := range records {
			records[i] = tracefile.Record{Op: op, Addr: cfg.BaseAddr + uint64(i*blockSize)}
		}
	}
	return records
}

// Write renders records in internal/tracefile's line format, so a generated
// trace can be written to a file and later read back by tracefile.Reader.
func Write(w io.Writer, records []tracefile.Record) error {
	for _, r := range records {
		op := "r"
		if r.Op == tracefile.Write {
			op = "w"
		}
		if _, err := fmt.Fprintf(w, "%s 0x%x\n", op, r.Addr); err != nil {
			return fmt.Errorf("gentrace: failed to write record: %w", err)
		}
	}
	return nil
}
