// Package addrdecoder splits a byte address into the (tag, set index,
// block offset) triple a set-associative cache uses to locate a line.
package addrdecoder

import (
	"fmt"
	"math/bits"
)

// Decoder decodes addresses for a cache geometry of a fixed block size and
// set count, both of which must be powers of two.
type Decoder struct {
	blockSize  uint64
	numSets    uint64
	offsetBits uint
	indexBits  uint
}

// New returns a Decoder for the given block size (bytes) and number of
// sets. Both must be powers of two and at least 1; otherwise New panics,
// since a non-power-of-two geometry is a configuration bug that should
// have been rejected by internal/config before a Decoder is ever built.
func New(blockSize, numSets int) *Decoder {
	if !isPowerOfTwo(blockSize) {
		panic(fmt.Sprintf("addrdecoder: block size %d is not a power of two", blockSize))
	}
	if !isPowerOfTwo(numSets) {
		panic(fmt.Sprintf("addrdecoder: set count %d is not a power of two", numSets))
	}

	return &Decoder{
		blockSize:  uint64(blockSize),
		numSets:    uint64(numSets),
		offsetBits: uint(bits.TrailingZeros64(uint64(blockSize))),
		indexBits:  uint(bits.TrailingZeros64(uint64(numSets))),
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// BlockSize returns the configured block size in bytes.
func (d *Decoder) BlockSize() int {
	return int(d.blockSize)
}

// NumSets returns the configured number of sets.
func (d *Decoder) NumSets() int {
	return int(d.numSets)
}

// Decode splits addr into (tag, setIndex, offset).
func (d *Decoder) Decode(addr uint64) (tag uint64, setIndex int, offset int) {
	offset = int(addr & (d.blockSize - 1))
	setIndex = int((addr >> d.offsetBits) & (d.numSets - 1))
	tag = addr >> (d.offsetBits + d.indexBits)
	return tag, setIndex, offset
}

// BlockAddress returns addr with its block-offset bits cleared, i.e. the
// address of the first byte of the block containing addr.
func (d *Decoder) BlockAddress(addr uint64) uint64 {
	return addr &^ (d.blockSize - 1)
}

// Encode is the inverse of Decode: it reconstructs the original address
// from a (tag, setIndex, offset) triple.
func (d *Decoder) Encode(tag uint64, setIndex int, offset int) uint64 {
	return (tag << (d.offsetBits + d.indexBits)) | (uint64(setIndex) << d.offsetBits) | uint64(offset)
}

// EncodeBlock reconstructs the block-aligned address for (tag, setIndex).
func (d *Decoder) EncodeBlock(tag uint64, setIndex int) uint64 {
	return d.Encode(tag, setIndex, 0)
}
