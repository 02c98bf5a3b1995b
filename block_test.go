// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package immix

import "testing"

func TestNewBlockAlignedAndFree(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	if blk.Base()%BlockSize != 0 {
		t.Errorf("base %#x is not BlockSize-aligned", blk.Base())
	}
	if blk.BlockMark() != FreeMark {
		t.Errorf("fresh block mark = %d, want FreeMark", blk.BlockMark())
	}
	for i := 0; i < LineCount; i++ {
		if m := blk.LineMark(i); m != FreeMark {
			t.Fatalf("fresh line %d mark = %d, want FreeMark", i, m)
		}
	}
}

// find_next_available_hole's search starts at
// DataCapacity/LineSize - 1, one line below the topmost line touching
// the payload arena; DataCapacity is not itself a multiple of
// LineSize, so that topmost (partial) line is never reachable through
// a search, only through a BumpBlock's direct cursor=DataCapacity
// construction (see bumpblock_test.go). searchTopLine names that
// search-reachable boundary for the rest of these tests.
const searchTopLine = DataCapacity/LineSize - 1

func TestFindNextAvailableHoleFreshBlock(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	cursor, limit, ok := blk.FindNextAvailableHole(DataCapacity, 1)
	if !ok {
		t.Fatal("expected a hole in a fresh block")
	}
	wantCursor := (searchTopLine + 1) * LineSize
	if cursor != wantCursor || limit != 0 {
		t.Errorf("got (cursor=%d, limit=%d), want (%d, 0)", cursor, limit, wantCursor)
	}
}

// A single marked line below searchTopLine splits the block into two
// holes, with the conservative rule sacrificing the line immediately
// below the mark stop (the "+2" in (line+2)*LineSize) -- and that
// sacrificed line then stays unusable even on a later search, since by
// itself it can never satisfy freeCount > linesRequired.
func TestFindNextAvailableHoleConservativeRule(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	const markedLine = 100
	blk.setLineMark(markedLine, 7)
	blk.setBlockMark(7)

	cursor, limit, ok := blk.FindNextAvailableHole(DataCapacity, 1)
	if !ok {
		t.Fatal("expected a hole above the marked line")
	}
	wantCursor := (searchTopLine + 1) * LineSize
	if cursor != wantCursor {
		t.Errorf("cursor = %d, want %d", cursor, wantCursor)
	}
	wantLimit := (markedLine + 2) * LineSize
	if limit != wantLimit {
		t.Errorf("limit = %d, want %d (mark stop at line %d)", limit, wantLimit, markedLine)
	}

	// Searching again starting at the floor of the hole just granted
	// must reach all the way to line 0: the sacrificed line (markedLine+1)
	// cannot stand alone, so the next hole starts below markedLine itself.
	cursor2, limit2, ok2 := blk.FindNextAvailableHole(limit, 1)
	if !ok2 {
		t.Fatal("expected a second hole reaching line 0")
	}
	if limit2 != 0 {
		t.Errorf("limit2 = %d, want 0 (run reaches the left edge)", limit2)
	}
	if cursor2 != markedLine*LineSize {
		t.Errorf("cursor2 = %d, want %d", cursor2, markedLine*LineSize)
	}
}

// A run that reaches line 0 needs only free_line_count >= lines_required,
// not the strict '>' the conservative rule demands elsewhere.
func TestFindNextAvailableHoleLeftEdgeExactFit(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	// Mark everything from line 2 upward, leaving exactly lines 0-1 free.
	for i := 2; i < LineCount; i++ {
		blk.setLineMark(i, 3)
	}
	blk.setBlockMark(3)

	_, limit, ok := blk.FindNextAvailableHole(DataCapacity, 2*LineSize)
	if !ok {
		t.Fatal("expected an exact-fit hole at the left edge")
	}
	if limit != 0 {
		t.Errorf("limit = %d, want 0", limit)
	}

	// One byte more than the two free lines provide must fail outright.
	if _, _, ok := blk.FindNextAvailableHole(DataCapacity, 2*LineSize+1); ok {
		t.Error("expected no hole big enough")
	}
}

func TestFindNextAvailableHoleNoneWhenFull(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < LineCount; i++ {
		blk.setLineMark(i, 9)
	}
	blk.setBlockMark(9)
	if _, _, ok := blk.FindNextAvailableHole(DataCapacity, 1); ok {
		t.Error("expected no hole in a fully marked block")
	}
}

func TestMarkSetsLinesAndBlock(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	blk.Mark(LineSize*4-10, 20, 5)
	if blk.LineMark(3) != 5 || blk.LineMark(4) != 5 {
		t.Fatalf("lines 3,4 = %d,%d, want 5,5", blk.LineMark(3), blk.LineMark(4))
	}
	if blk.LineMark(2) != FreeMark || blk.LineMark(5) != FreeMark {
		t.Error("adjacent lines should remain FREE")
	}
	if blk.BlockMark() != 5 {
		t.Errorf("block mark = %d, want 5", blk.BlockMark())
	}
}

func TestMarkPanicsOnFreeMark(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic marking with FreeMark")
		}
	}()
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	blk.Mark(0, 1, FreeMark)
}

func TestFreeUnmarkedClearsStaleLinesOnly(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	blk.Mark(0, 1, 1)      // generation 1, line 0
	blk.setLineMark(5, 2)  // stray generation-2 line with no block mark bump
	blk.setBlockMark(1)    // block mark reflects the live generation

	if stillMarked := blk.FreeUnmarked(1); !stillMarked {
		t.Fatal("block marked with the current generation must report stillMarked")
	}
	if blk.LineMark(0) != 1 {
		t.Error("line matching the current generation must survive")
	}
	if blk.LineMark(5) != FreeMark {
		t.Error("line from a stale generation must be freed")
	}
	if blk.BlockMark() != 1 {
		t.Error("block mark matching the current generation must survive")
	}
}

func TestFreeUnmarkedWholeBlockStale(t *testing.T) {
	blk, err := NewBlock()
	if err != nil {
		t.Fatal(err)
	}
	blk.Mark(0, 1, 1)
	if stillMarked := blk.FreeUnmarked(2); stillMarked {
		t.Fatal("block marked with a stale generation must report !stillMarked")
	}
	if blk.BlockMark() != FreeMark {
		t.Error("stale block mark must be cleared")
	}
	if blk.LineMark(0) != FreeMark {
		t.Error("stale line mark must be cleared")
	}
}
