// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"errors"
	"fmt"
)

// Kind discriminates the ways an allocation request or a layout
// computation can fail. These mirror the three variants of the Rust
// original's AllocError enum (see error.rs in the retrieved sources):
// the heap is out of memory, the request is out of range, or a Layout
// is invalid or its arithmetic overflowed.
type Kind int

const (
	// OOM means allocating the backing memory for a new Block or
	// LargeBlock failed.
	OOM Kind = iota

	// AllocOverflow means the request does not fit the range this core
	// reasons about (size 0, size > MaxAllocSize, or an alignment
	// above BlockSize).
	AllocOverflow

	// LayoutError means a Layout is invalid or arithmetic over it
	// overflowed: Align is zero or not a power of two, or
	// Layout.Extend/PadToAlign overflows.
	LayoutError
)

func (k Kind) String() string {
	switch k {
	case OOM:
		return "OOM"
	case AllocOverflow:
		return "alloc overflow"
	case LayoutError:
		return "layout error"
	default:
		return "unknown"
	}
}

// Error is the single error type this core ever returns. Like
// lldb.ErrINVAL/ErrILSEQ in the teacher package, it carries a Kind plus
// whatever numeric context produced it instead of relying on a
// sentinel value or a bare string, so a caller can recover the
// offending size/align without parsing a message.
type Error struct {
	Kind  Kind
	Msg   string
	Size  uint64
	Align uintptr
}

func (e *Error) Error() string {
	switch {
	case e.Align != 0:
		return fmt.Sprintf("immix: %s: %s (size=%d align=%d)", e.Kind, e.Msg, e.Size, e.Align)
	case e.Size != 0:
		return fmt.Sprintf("immix: %s: %s (size=%d)", e.Kind, e.Msg, e.Size)
	default:
		return fmt.Sprintf("immix: %s: %s", e.Kind, e.Msg)
	}
}

// Is reports whether err is an *Error of the given Kind. Callers
// discriminate failures the way the teacher switches on a tag byte,
// just spelled with errors.As instead of a type switch on a raw int.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func errOOM(msg string, size uint64) error {
	return &Error{Kind: OOM, Msg: msg, Size: size}
}

func errOverflow(msg string, size uint64) error {
	return &Error{Kind: AllocOverflow, Msg: msg, Size: size}
}

func errLayout(msg string, size uint64, align uintptr) error {
	return &Error{Kind: LayoutError, Msg: msg, Size: size, Align: align}
}
