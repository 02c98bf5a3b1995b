// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "github.com/cznic/mathutil"

// Layout describes the size and alignment of an allocation request, the
// same pair Rust's core::alloc::Layout carries (see layout usage in
// large_block.rs/block.rs in the retrieved Rust sources). Align must be
// a nonzero power of two.
type Layout struct {
	Size  uint32
	Align uintptr
}

// NewLayout validates size and align and returns the corresponding
// Layout. It fails with LayoutError if align is zero or not a power of
// two, and with AllocOverflow if size is zero or exceeds MaxAllocSize.
func NewLayout(size uint64, align uintptr) (Layout, error) {
	if align == 0 || align&(align-1) != 0 {
		return Layout{}, errLayout("align must be a nonzero power of two", size, align)
	}
	if size < SmallObjectMin || size > MaxAllocSize {
		return Layout{}, errOverflow("size out of range", size)
	}
	return Layout{Size: uint32(size), Align: align}, nil
}

// PadToAlign returns the smallest Layout with the same Align whose Size
// is a multiple of Align, mirroring Rust's Layout::pad_to_align. It
// fails with LayoutError if rounding up overflows a uint32.
func (l Layout) PadToAlign() (Layout, error) {
	rem := uint64(l.Size) % uint64(l.Align)
	if rem == 0 {
		return l, nil
	}
	padded := uint64(l.Size) + (uint64(l.Align) - rem)
	if padded > MaxAllocSize {
		return Layout{}, errLayout("padding to align overflows", padded, l.Align)
	}
	return Layout{Size: uint32(padded), Align: l.Align}, nil
}

// Extend lays next out after l and returns the combined Layout (whose
// Align is the larger of the two, per Rust's Layout::extend) together
// with the byte offset at which next begins. That offset is l.Size
// padded up to a multiple of l.Align and then up to a multiple of
// next.Align, so next starts right after l's last byte only when
// l.Size is already a multiple of l.Align; the combined Size is that
// offset plus next.Size and is not padded further. Used by LargeBlock
// to place its trailing mark byte after the caller's payload. It fails
// with LayoutError if the combined size overflows a uint32.
func (l Layout) Extend(next Layout) (combined Layout, offset uint32, err error) {
	align := l.Align
	if next.Align > align {
		align = next.Align
	}
	padded, err := l.PadToAlign()
	if err != nil {
		return Layout{}, 0, err
	}
	base := uint64(padded.Size)
	rem := base % uint64(next.Align)
	if rem != 0 {
		base += uint64(next.Align) - rem
	}
	total := base + uint64(next.Size)
	if total > MaxAllocSize {
		return Layout{}, 0, errLayout("extending layout overflows", total, align)
	}
	return Layout{Size: uint32(total), Align: align}, uint32(base), nil
}

// ceilDivLine returns the number of LineSize-sized lines needed to
// hold size bytes, clamped the way the teacher clamps run lengths in
// falloc.go with mathutil.MinInt64/MaxInt64 rather than hand-rolled
// bounds checks.
func ceilDivLine(size uint32) int {
	lines := (int64(size) + LineSize - 1) / LineSize
	return int(mathutil.MaxInt64(1, lines))
}
