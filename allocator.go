// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "unsafe"

// Allocator is a single mutator's handle onto a Heap. It is not safe
// for concurrent use by multiple goroutines -- each mutator thread
// should own one, the same single-producer discipline spec calls for
// -- but many Allocators share one BlockStore and trade blocks
// through its lock-free pools.
//
// An Allocator holds at most two blocks at a time: head, which serves
// Small requests, and overflow, which serves Medium ones. Both are
// modeled as an "owned, possibly absent" window (head/overflow are
// nil until first needed) rather than the Option<BumpBlock> of the
// Rust original -- a nil *BumpBlock is Go's natural equivalent.
type Allocator struct {
	store    *BlockStore
	head     *BumpBlock
	overflow *BumpBlock
}

// NewAllocator returns an Allocator drawing blocks from store.
func NewAllocator(store *BlockStore) *Allocator {
	return &Allocator{store: store}
}

// Alloc returns a pointer to layout.Size freshly allocated bytes
// aligned to layout.Align, dispatching to the head window, the
// overflow window, or a standalone LargeBlock depending on size
// class. The returned memory is uninitialized; this core never zeroes
// or otherwise touches bytes once they are handed to the caller.
//
// Classification and bump-allocation both work from the caller's raw,
// unpadded layout -- exactly as SizeClass::get_for_size(layout.size())
// and BumpBlock::inner_alloc do in the Rust original. Alignment is
// handled purely by rounding the bump cursor down (InnerAlloc), never
// by inflating the request up to a multiple of Align first; doing the
// latter would silently grow every allocation by up to Align-1 bytes
// and could flip a request's size class for high-alignment, low-size
// requests. Only the Large path pads, and only to place its own
// trailing mark byte (NewLargeBlock, via CreateLarge).
//
// A request whose alignment exceeds BlockSize can never be satisfied
// by a bump pointer living inside a BlockSize-aligned block (rounding
// the cursor down to such an alignment could walk it below offset
// zero, or past the payload arena's own base alignment guarantee), so
// it fails with AllocOverflow regardless of size class.
func (a *Allocator) Alloc(layout Layout) (unsafe.Pointer, error) {
	if layout.Align > BlockSize {
		return nil, errOverflow("requested alignment exceeds BlockSize", uint64(layout.Align))
	}
	class, err := Classify(uint64(layout.Size))
	if err != nil {
		return nil, err
	}
	switch class {
	case Small:
		return a.allocSmall(layout)
	case Medium:
		return a.allocMedium(layout)
	default:
		lb, err := a.store.CreateLarge(layout)
		if err != nil {
			return nil, err
		}
		return lb.Pointer(), nil
	}
}

// allocSmall implements the head-window refill protocol. On a miss it
// first tries to promote the overflow window into head -- an overflow
// block, being either freshly allocated or only lightly used, is a
// perfectly good head -- and only falls back to the BlockStore's
// GetHead when there is no overflow to promote. A head block displaced
// by a refill is retired unconditionally to rest: it already failed a
// Small request, the easiest size class to satisfy, so it is not worth
// recycle's bookkeeping.
func (a *Allocator) allocSmall(layout Layout) (unsafe.Pointer, error) {
	for {
		if a.head != nil {
			if ptr, _, ok := a.head.InnerAlloc(layout); ok {
				return ptr, nil
			}
		}

		old := a.head
		if a.overflow != nil {
			a.head, a.overflow = a.overflow, nil
		} else {
			bb, err := a.store.GetHead()
			if err != nil {
				return nil, err
			}
			a.head = bb
		}
		if old != nil {
			a.store.Rest(old)
		}
	}
}

// allocMedium implements the overflow-window refill protocol: on a
// miss it always draws a fresh window from the BlockStore's
// GetOverflow, and a displaced overflow block is retired through
// Recycle, which keeps it available to a future Small request if its
// remaining hole is worthwhile.
func (a *Allocator) allocMedium(layout Layout) (unsafe.Pointer, error) {
	for {
		if a.overflow != nil {
			if ptr, _, ok := a.overflow.InnerAlloc(layout); ok {
				return ptr, nil
			}
		}

		old := a.overflow
		bb, err := a.store.GetOverflow()
		if err != nil {
			return nil, err
		}
		a.overflow = bb
		if old != nil {
			a.store.Recycle(old)
		}
	}
}

// Flush returns both of this Allocator's windows to the BlockStore
// through Recycle, which classifies each by its remaining hole size --
// unlike a mid-stream refill, a flushed window was not necessarily
// just proven too small for anything, so letting the store reclassify
// it by hole size (rather than assuming rest, as a displaced head is
// mid-stream) gives each block its best remaining home. It must be
// called -- directly, or via the onQuiesce hook passed to Heap.Sweep
// -- before a sweep, so every block an Allocator is holding is visible
// to the BlockStore's pools; otherwise a sweep would never see it and
// could never reclaim or reclassify it. After Flush the Allocator can
// keep being used: the next Alloc call simply acquires a fresh window.
func (a *Allocator) Flush() {
	if a.head != nil {
		a.store.Recycle(a.head)
		a.head = nil
	}
	if a.overflow != nil {
		a.store.Recycle(a.overflow)
		a.overflow = nil
	}
}
