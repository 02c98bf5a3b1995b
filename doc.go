// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package immix implements a mark-region heap in the style of Immix[1]: a
non-moving, concurrent allocator meant to sit underneath a garbage-collected
language runtime rather than be one itself. This package never scans roots,
never decides what is reachable, and never relocates an object once handed
out -- it only answers "give me N bytes" and "here is which generation is
still alive", leaving reachability analysis and synchronization to its
caller.

Blocks, lines and holes

Memory is carved into fixed BlockSize blocks, each further divided into
LineCount lines of LineSize bytes. A block tracks one mark byte per line plus
one mark byte for itself, all stored in-band in the block's own memory so
that any interior pointer can be mapped back to its containing block with a
single mask: ptr &^ (BlockSize-1). A run of consecutive unmarked lines is a
hole; allocation is a bump pointer moving down through the current hole until
it is exhausted, at which point the next hole is found by re-scanning line
marks.

Size classes

	Small  (<= LineSize bytes):        served from an Allocator's head window
	Medium (<= DataCapacity bytes):    served from an Allocator's overflow window
	Large  (> DataCapacity bytes):     a standalone allocation, one per object

Concurrency model

A BlockStore holds four pools -- free, recycle, rest and large -- shared by
every Allocator drawing from the same Heap. The pools are lock-free stacks,
so many Allocators can trade blocks without a mutex, but each individual
Allocator is a single-producer handle: it is not itself safe for concurrent
use by more than one goroutine, the same way a single mutator thread would
own one in the runtime this package is meant to sit underneath.

Marking a line or block is a relaxed, unsynchronized byte write; this package
promises nothing about memory visibility beyond that write being
atomic and free of torn reads. The owning runtime is responsible for
establishing a happens-before relationship between the end of a mark phase
and the start of Heap.Sweep -- an acquire/release fence, a stop-the-world
pause, or a handshake are all valid, and Heap.Sweep's onQuiesce hook exists
precisely to let the runtime install one.

Sweeping

Heap.Sweep takes the mark byte that identified the generation just finished
and reclassifies every block accordingly: fully free blocks return to the
free pool (capped at MaxFreeBlocks, beyond which they are simply dropped and
left to the Go runtime to reclaim), partially-occupied blocks taken from
recycle go back to recycle, and partially-occupied blocks taken from rest
move to recycle if their hole is worthwhile and otherwise stay in rest. Mark
values are expected not to repeat between consecutive sweeps; repeating one
is a caller bug and Sweep panics rather than silently producing wrong
results.

[1] Blackburn and McKinley, "Immix: A Mark-Region Garbage Collector with
Space Efficiency, Fast Collection, and Mutator Performance", PLDI 2008.

*/
package immix
