// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"sync"
	"unsafe"
)

// Heap is the top-level entry point: it owns a BlockStore and hands
// out Allocator handles to mutator threads, and drives Sweep between
// generations.
type Heap struct {
	store *BlockStore

	mu       sync.Mutex
	lastMark byte
	haveMark bool
}

// NewHeap returns an empty Heap. A zero HeapOptions reproduces spec's
// fixed-constant behavior exactly (MaxFreeBlocks, RecycleHoleMin).
func NewHeap(opts HeapOptions) *Heap {
	return &Heap{store: NewBlockStore(&opts)}
}

// Size is the total number of bytes currently committed to the heap:
// every Block's full BlockSize plus every live LargeBlock's padded
// size (LargeBlock.Size).
func (h *Heap) Size() uint64 { return h.store.Size() }

// NewAllocator returns a fresh Allocator handle onto this Heap.
func (h *Heap) NewAllocator() *Allocator { return NewAllocator(h.store) }

// Sweep ends the current generation: it reclassifies every block by
// the marks left behind by a just-finished mark phase, keeping what is
// marked with markValue and freeing everything else, records
// markValue as the last mark used, and blocks other sweeps while doing
// so.
//
// markValue must not be FreeMark, and must differ from the mark used
// by the previous Sweep call -- generations are not allowed to repeat
// consecutively, since a repeat would make a block's leftover marks
// from two sweeps ago look like they belong to the current one. Both
// are caller bugs, not recoverable runtime conditions, so Sweep
// panics rather than returning an error for them, the same
// debug_assert-style contract the Rust original documents for
// NonZero<u8> mark values.
//
// onQuiesce, if non-nil, is invoked after the sweep mutex is taken
// and before any pool is touched, the hook point at which the
// owning runtime must guarantee that every Allocator's window has
// been Flushed and that no mutator is concurrently allocating or
// marking. This generalizes block_store.rs's sweep(mark,
// sweep_callback) without hard-coding how the caller achieves
// quiescence (stop-the-world, a handshake, or per-thread safepoints
// are all valid).
func (h *Heap) Sweep(markValue byte, onQuiesce func()) {
	if markValue == FreeMark {
		panic("immix: Sweep called with FreeMark")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.haveMark && h.lastMark == markValue {
		panic("immix: Sweep called twice in a row with the same generation mark")
	}
	h.lastMark, h.haveMark = markValue, true

	if onQuiesce != nil {
		onQuiesce()
	}
	h.store.Sweep(markValue)
}

// Verify runs BlockStore.Verify over this heap's pools.
func (h *Heap) Verify() []error { return h.store.Verify() }

// Mark records that the object at ptr, allocated with the given
// layout, is live for markValue. It is a free function rather than a
// Heap or Allocator method because marking never needs to consult any
// pool: the block (or LargeBlock) backing ptr is recovered from the
// pointer and its original Layout alone.
//
// layout must be the exact, raw (unpadded) Layout passed to the Alloc
// call that produced ptr; Large-class objects carry their mark byte at
// an offset computed from it, and that offset must match between the
// allocating and marking call or the wrong byte is written.
func Mark(ptr unsafe.Pointer, layout Layout, markValue byte) {
	if markValue == FreeMark {
		panic("immix: Mark called with FreeMark")
	}
	class, err := Classify(uint64(layout.Size))
	if err != nil {
		panic(err)
	}
	addr := uintptr(ptr)
	if class == Large {
		_, markOff, err := layout.Extend(markLayout)
		if err != nil {
			panic(err)
		}
		storeByte(addr+uintptr(markOff), markValue)
		return
	}
	base := addr &^ (BlockSize - 1)
	markBlockRegion(base, uint32(addr-base), layout.Size, markValue)
}
