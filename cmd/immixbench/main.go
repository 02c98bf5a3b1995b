// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command immixbench drives a Heap through repeated alloc/mark/sweep
// rounds across concurrent goroutines, the same flag-driven knob style
// as the teacher's own randomized allocator exercise
// (falloc_test.go's TestAllocatorRnd, with its lim/hlim/N flags): here
// -fuzzrounds and -fuzzthreads size the run, and a summary line after
// every sweep reports the heap's size before and after, the same
// AllocStats-style reporting falloc.go's Verify machinery leans on.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/cznic/immix"
)

func unsafeSlice(ptr unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}

func unsafePointerOf(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

type liveObject struct {
	buf    []byte
	layout immix.Layout
}

func main() {
	var (
		fuzzRounds    = flag.Int("fuzzrounds", 10, "number of alloc/mark/sweep rounds to run")
		fuzzThreads   = flag.Int("fuzzthreads", 8, "number of concurrent allocator goroutines per round")
		objects       = flag.Int("objects", 200, "objects allocated by each goroutine per round")
		maxObjectSize = flag.Int("maxsize", 4096, "largest random object size, in bytes")
		survivalRate  = flag.Float64("survival", 0.1, "fraction of each round's objects marked live into the next round")
		seed          = flag.Int64("seed", 1, "PRNG seed")
	)
	flag.Parse()

	if *fuzzThreads <= 0 || *fuzzRounds <= 0 || *objects <= 0 {
		log.Fatal("fuzzrounds, fuzzthreads and objects must all be positive")
	}

	h := immix.NewHeap(immix.HeapOptions{})
	allocators := make([]*immix.Allocator, *fuzzThreads)
	for i := range allocators {
		allocators[i] = h.NewAllocator()
	}

	rng := rand.New(rand.NewSource(*seed))
	live := make([][]liveObject, *fuzzThreads)

	start := time.Now()
	var totalAllocs int64

	for round := 0; round < *fuzzRounds; round++ {
		var wg sync.WaitGroup
		results := make([][]liveObject, *fuzzThreads)
		for g := 0; g < *fuzzThreads; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				a := allocators[g]
				r := rand.New(rand.NewSource(int64(round**fuzzThreads + g)))
				objs := make([]liveObject, 0, *objects)
				for i := 0; i < *objects; i++ {
					size := uint64(r.Intn(*maxObjectSize) + 1)
					layout, err := immix.NewLayout(size, 1)
					if err != nil {
						continue
					}
					ptr, err := a.Alloc(layout)
					if err != nil {
						continue
					}
					objs = append(objs, liveObject{buf: unsafeSlice(ptr, int(size)), layout: layout})
				}
				results[g] = objs
			}(g)
		}
		wg.Wait()

		// Verify every surviving object from the previous round still
		// holds its written pattern before this round overwrites live.
		for g := 0; g < *fuzzThreads; g++ {
			for _, obj := range live[g] {
				pattern := obj.buf[0]
				for _, b := range obj.buf {
					if b != pattern {
						log.Fatalf("round %d goroutine %d: surviving object corrupted", round, g)
					}
				}
			}
		}

		markValue := byte(round%255 + 1)
		marked := 0
		for g := 0; g < *fuzzThreads; g++ {
			live[g] = nil
			for _, obj := range results[g] {
				totalAllocs++
				for i := range obj.buf {
					obj.buf[i] = byte(g + 1)
				}
				if rng.Float64() < *survivalRate {
					immix.Mark(unsafePointerOf(obj.buf), obj.layout, markValue)
					marked++
					live[g] = append(live[g], obj)
				}
			}
		}

		before := h.Size()
		var flushWg sync.WaitGroup
		h.Sweep(markValue, func() {
			for _, a := range allocators {
				flushWg.Add(1)
				go func(a *immix.Allocator) {
					defer flushWg.Done()
					a.Flush()
				}(a)
			}
			flushWg.Wait()
		})
		after := h.Size()

		fmt.Printf("round %d: marked %d/%d objects live, heap %d -> %d bytes\n",
			round, marked, totalAllocs, before, after)
	}

	if errs := h.Verify(); len(errs) > 0 {
		for _, err := range errs {
			log.Println("verify:", err)
		}
		os.Exit(1)
	}

	fmt.Printf("completed %d rounds, %d threads, %d total allocs in %s\n",
		*fuzzRounds, *fuzzThreads, totalAllocs, time.Since(start))
}
