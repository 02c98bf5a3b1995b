// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import (
	"sort"

	"github.com/cznic/sortutil"
)

// HoleHistogram returns, in ascending order, the size in bytes of the
// current hole in every block presently sitting in the recycle and
// rest pools. It is a read-only diagnostic, generalized from the
// AllocStats reporting in the teacher's falloc.go, meant for
// introspection and deterministic test assertions, not for making
// allocation decisions.
//
// Like Verify, it drains and re-pushes both pools, so it must not be
// called concurrently with allocation.
func (bs *BlockStore) HoleHistogram() []int64 {
	var sizes []int64

	for _, bb := range bs.recycle.Drain() {
		sizes = append(sizes, int64(bb.CurrentHoleSize()))
		bs.recycle.Push(bb)
	}
	for _, bb := range bs.rest.Drain() {
		sizes = append(sizes, int64(bb.CurrentHoleSize()))
		bs.rest.Push(bb)
	}

	sort.Sort(sortutil.Int64Slice(sizes))
	return sizes
}
