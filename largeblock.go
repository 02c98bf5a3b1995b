// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"fmt"
	"unsafe"
)

// markLayout is the Layout of the single trailing mark byte every
// LargeBlock carries, extended onto the caller's own Layout exactly
// the way large_block.rs computes its own trailing marker.
var markLayout = Layout{Size: 1, Align: 1}

// LargeBlock is a standalone allocation for a single object too big
// for any BumpBlock hole (size > MediumObjectMax). Unlike a Block, a
// LargeBlock's memory holds exactly one object plus its own mark
// byte -- there is no hole search and no reuse of partially-freed
// space; a LargeBlock is either entirely live or entirely collected.
type LargeBlock struct {
	owner   []byte
	mem     []byte
	size    uint32
	markOff uint32
}

// NewLargeBlock allocates a LargeBlock able to hold layout.Size bytes
// at layout.Align, plus its trailing mark byte.
func NewLargeBlock(layout Layout) (lb *LargeBlock, err error) {
	combined, markOff, err := layout.Extend(markLayout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			lb, err = nil, errOOM(fmt.Sprintf("large block allocation failed: %v", r), uint64(layout.Size))
		}
	}()
	owner, mem := newAlignedBuffer(int(combined.Size), layout.Align)
	return &LargeBlock{owner: owner, mem: mem, size: combined.Size, markOff: markOff}, nil
}

// Pointer is the address of the object's payload.
func (lb *LargeBlock) Pointer() unsafe.Pointer { return unsafe.Pointer(&lb.mem[0]) }

// Size is the padded size of the block's entire backing allocation --
// the caller's requested payload, plus the trailing mark byte and any
// alignment padding Layout.Extend introduces -- matching
// large_block.rs's own get_size(), which reports block_layout.size()
// rather than the unpadded request. This is the figure BlockStore
// accounts against Heap.Size().
func (lb *LargeBlock) Size() uint32 { return lb.size }

func (lb *LargeBlock) addr() uintptr { return uintptr(unsafe.Pointer(&lb.mem[0])) + uintptr(lb.markOff) }

// Mark records that this object is live for the given generation.
func (lb *LargeBlock) Mark(markValue byte) {
	if markValue == FreeMark {
		panic("immix: Mark called with FreeMark")
	}
	storeByte(lb.addr(), markValue)
}

// MarkValue returns the object's current mark byte.
func (lb *LargeBlock) MarkValue() byte { return loadByte(lb.addr()) }

// Sweep resets the mark to FreeMark if it does not match
// currentMark and reports whether the object is now dead and its
// memory can be released.
func (lb *LargeBlock) Sweep(currentMark byte) (dead bool) {
	m := lb.MarkValue()
	if m == currentMark {
		return false
	}
	storeByte(lb.addr(), FreeMark)
	return true
}
