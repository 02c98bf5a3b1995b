// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"fmt"
	"sync/atomic"
)

// BlockStore owns every Block and LargeBlock the heap has ever
// created and arbitrates them across four pools, mirroring
// block_store.rs in the retrieved Rust sources:
//
//   - free:    Blocks with no live content, ready to become a fresh
//     BumpBlock.
//   - recycle: Blocks with a hole of at least RecycleHoleMin bytes.
//   - rest:    Blocks with only small fragments, of no use to a
//     Medium request.
//   - large:   Standalone LargeBlock allocations.
//
// Pools are lock-free stacks (see lockFreeStack) so many concurrent
// Allocator handles can pull from and return to them without a
// mutex -- the only shared mutable state is blockCount/largeBytes,
// both plain atomics.
type BlockStore struct {
	opts HeapOptions

	free    lockFreeStack[*Block]
	recycle lockFreeStack[*BumpBlock]
	rest    lockFreeStack[*BumpBlock]
	large   lockFreeStack[*LargeBlock]

	blockCount atomic.Int64
	largeBytes atomic.Int64
}

// NewBlockStore returns an empty BlockStore. opts is normalized in
// place.
func NewBlockStore(opts *HeapOptions) *BlockStore {
	opts.normalize()
	return &BlockStore{opts: *opts}
}

// Size is the total number of bytes currently attributed to the
// heap: every Block's full BlockSize plus the padded size
// (LargeBlock.Size) of every live LargeBlock.
func (bs *BlockStore) Size() uint64 {
	return uint64(bs.blockCount.Load())*BlockSize + uint64(bs.largeBytes.Load())
}

func (bs *BlockStore) newBlock() (*BumpBlock, error) {
	blk, err := NewBlock()
	if err != nil {
		return nil, err
	}
	bs.blockCount.Add(1)
	return NewBumpBlock(blk), nil
}

// GetOverflow returns a BumpBlock with a fully empty arena: a Medium
// request needs room for a large contiguous hole, so overflow only
// ever draws an untouched block -- one already sitting in free, or a
// brand new one.
func (bs *BlockStore) GetOverflow() (*BumpBlock, error) {
	if blk, ok := bs.free.Pop(); ok {
		return NewBumpBlock(blk), nil
	}
	return bs.newBlock()
}

// GetHead returns a BumpBlock for a Small request: any hole will do,
// so head prefers a partially-used recycle block before falling back
// to GetOverflow's empty-block path.
func (bs *BlockStore) GetHead() (*BumpBlock, error) {
	if bb, ok := bs.recycle.Pop(); ok {
		return bb, nil
	}
	return bs.GetOverflow()
}

// Recycle returns bb to recycle if its remaining hole is at least
// RecycleHoleMin, or to rest otherwise.
func (bs *BlockStore) Recycle(bb *BumpBlock) {
	if bb.CurrentHoleSize() >= bs.opts.RecycleHoleMin {
		bs.recycle.Push(bb)
		return
	}
	bs.rest.Push(bb)
}

// Rest unconditionally returns bb to the rest pool.
func (bs *BlockStore) Rest(bb *BumpBlock) {
	bs.rest.Push(bb)
}

// CreateLarge allocates and registers a standalone LargeBlock for a
// Large-class request. layout.Size must be at least LargeObjectMin.
func (bs *BlockStore) CreateLarge(layout Layout) (*LargeBlock, error) {
	if layout.Size < LargeObjectMin {
		return nil, errOverflow("create_large precondition violated: size below LargeObjectMin", uint64(layout.Size))
	}
	lb, err := NewLargeBlock(layout)
	if err != nil {
		return nil, err
	}
	bs.large.Push(lb)
	bs.largeBytes.Add(int64(lb.Size()))
	return lb, nil
}

// Sweep reclassifies every block this store owns against currentMark,
// the generation that has just finished marking:
//
//  1. Drain large. Keep a LargeBlock iff its mark equals currentMark;
//     otherwise it is dropped and its memory reclaimed once
//     unreferenced.
//  2. Drain recycle. Each BumpBlock gets ResetHole(currentMark); if
//     still marked it returns to recycle (recycle blocks always have
//     a hole, by invariant); otherwise its Block goes to new_free.
//  3. Drain rest the same way, but a still-marked block only returns
//     to recycle if its post-reset hole is big enough; otherwise it
//     returns to rest.
//  4. Up to MaxFreeBlocks total blocks end up in free; any further
//     new_free blocks are dropped and blockCount decremented.
//
// Sweep assumes every Allocator's head/overflow window has already
// been returned via Recycle/Rest (Heap.Sweep's onQuiesce hook is the
// seam the caller uses to guarantee that), so nothing is "missing"
// from the pools mid-sweep.
func (bs *BlockStore) Sweep(currentMark byte) {
	var largeBytes int64
	for _, lb := range bs.large.Drain() {
		if !lb.Sweep(currentMark) {
			bs.large.Push(lb)
			largeBytes += int64(lb.Size())
		}
	}
	bs.largeBytes.Store(largeBytes)

	var newFree []*Block

	for _, bb := range bs.recycle.Drain() {
		if bb.ResetHole(currentMark) {
			bs.recycle.Push(bb)
		} else {
			newFree = append(newFree, bb.Block())
		}
	}

	for _, bb := range bs.rest.Drain() {
		switch marked := bb.ResetHole(currentMark); {
		case !marked:
			newFree = append(newFree, bb.Block())
		case bb.CurrentHoleSize() >= bs.opts.RecycleHoleMin:
			bs.recycle.Push(bb)
		default:
			bs.rest.Push(bb)
		}
	}

	room := bs.opts.MaxFreeBlocks - bs.free.Len()
	for _, blk := range newFree {
		if room <= 0 {
			bs.blockCount.Add(-1)
			continue
		}
		bs.free.Push(blk)
		room--
	}
}

// Verify is a read-only consistency check over all four pools,
// generalized from lldb.Allocator.Verify: it confirms the free pool
// never exceeds MaxFreeBlocks and holds only genuinely free blocks,
// and that every recycle-pool block still carries a hole at least
// RecycleHoleMin in size. It returns every violation found rather
// than stopping at the first, mirroring the teacher's accumulate-
// then-report style. Verify drains and re-pushes each pool's
// contents, so it must not run concurrently with allocation.
func (bs *BlockStore) Verify() []error {
	var errs []error

	freeBlocks := bs.free.Drain()
	if n := len(freeBlocks); n > bs.opts.MaxFreeBlocks {
		errs = append(errs, fmt.Errorf("free pool holds %d blocks, over MaxFreeBlocks %d", n, bs.opts.MaxFreeBlocks))
	}
	for _, blk := range freeBlocks {
		if blk.BlockMark() != FreeMark {
			errs = append(errs, fmt.Errorf("block %#x in free pool has a live block mark", blk.Base()))
		}
		bs.free.Push(blk)
	}

	for _, bb := range bs.recycle.Drain() {
		if bb.CurrentHoleSize() < bs.opts.RecycleHoleMin {
			errs = append(errs, fmt.Errorf("block %#x in recycle pool has a hole below RecycleHoleMin", bb.Block().Base()))
		}
		bs.recycle.Push(bb)
	}

	for _, bb := range bs.rest.Drain() {
		bs.rest.Push(bb)
	}

	return errs
}
