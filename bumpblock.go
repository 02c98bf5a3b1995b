// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "unsafe"

// BumpBlock is a Block plus the bump-pointer state (cursor, limit)
// used to hand out Small and Medium allocations from it. cursor is
// the next free byte, exclusive, counting down; limit is the floor of
// the current hole. The invariant 0 <= limit <= cursor <= DataCapacity
// always holds.
type BumpBlock struct {
	block  *Block
	cursor int
	limit  int
}

// NewBumpBlock wraps a freshly allocated, entirely free Block: the
// whole arena is one hole, so cursor/limit start at DataCapacity/0
// without needing a hole search.
func NewBumpBlock(block *Block) *BumpBlock {
	return &BumpBlock{block: block, cursor: DataCapacity, limit: 0}
}

// Block returns the underlying Block.
func (bb *BumpBlock) Block() *Block { return bb.block }

// CurrentHoleSize is the number of bytes left in the hole currently
// claimed by cursor/limit.
func (bb *BumpBlock) CurrentHoleSize() int { return bb.cursor - bb.limit }

// IsMarked reports whether the underlying block's own mark equals
// markValue.
func (bb *BumpBlock) IsMarked(markValue byte) bool { return bb.block.BlockMark() == markValue }

// findHole asks the block for the next available hole able to fit
// size bytes, starting the search at the floor of the hole just
// exhausted, and adopts it as the new cursor/limit.
func (bb *BumpBlock) findHole(size int) bool {
	cursor, limit, ok := bb.block.FindNextAvailableHole(bb.limit, size)
	if !ok {
		return false
	}
	bb.cursor, bb.limit = cursor, limit
	return true
}

// InnerAlloc bump-allocates layout.Size bytes aligned to layout.Align
// from the block. Alignment is applied in the block's local
// coordinate system by rounding the candidate offset down, which is
// sound because the block's own base address is BlockSize-aligned;
// layout.Align must not exceed BlockSize (the caller is responsible
// for rejecting that case with AllocOverflow before calling in).
//
// On a miss in the current hole, InnerAlloc itself searches for
// further holes lower in the block (via findHole) and keeps trying;
// it only reports failure once the block has no remaining hole big
// enough anywhere below the current position.
func (bb *BumpBlock) InnerAlloc(layout Layout) (ptr unsafe.Pointer, offset uint32, ok bool) {
	for {
		next := bb.cursor - int(layout.Size)
		next &= ^(int(layout.Align) - 1)
		if next >= 0 && bb.limit <= next {
			bb.cursor = next
			return bb.block.Pointer(uint32(next)), uint32(next), true
		}
		if !bb.findHole(int(layout.Size)) {
			return nil, 0, false
		}
	}
}

// ResetHole runs at sweep time for a BumpBlock that survived in the
// recycle or rest pool:
//
//  1. The block's own FreeUnmarked is applied for markValue.
//  2. If the block came back entirely free, cursor/limit reset to
//     DataCapacity/0 -- the whole arena is one hole again -- and
//     ResetHole reports the block as no longer marked.
//  3. Otherwise the first usable hole starting at DataCapacity, able
//     to fit at least SmallObjectMin byte, is adopted; if none exists
//     the block is left exhausted (cursor == limit == 0) to be
//     classified into rest.
func (bb *BumpBlock) ResetHole(markValue byte) (stillMarked bool) {
	if !bb.block.FreeUnmarked(markValue) {
		bb.cursor, bb.limit = DataCapacity, 0
		return false
	}
	if cursor, limit, ok := bb.block.FindNextAvailableHole(DataCapacity, SmallObjectMin); ok {
		bb.cursor, bb.limit = cursor, limit
	} else {
		bb.cursor, bb.limit = 0, 0
	}
	return true
}
