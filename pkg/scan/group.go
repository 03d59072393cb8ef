// Copyright 2021 - 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scan

import (
	"sync"
)

// Barrier blocks callers until all parties have arrived, then
// releases them together.  It is reusable: the generation counter
// distinguishes consecutive phases, so a fast lane re-entering the
// barrier cannot slip past slow lanes of the previous phase.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
}

func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic("barrier needs at least one party")
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties of the current phase arrived.
func (b *Barrier) Await() {
	b.mu.Lock()
	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// Group is a fixed set of lanes that synchronize through a shared
// barrier and exchange partial sums through shared scratch storage.
// Collective calls (StairlikeAdd, reserve0) must be entered by every
// lane of the group the same number of times; lanes holding no row
// participate with a zero value.
type Group struct {
	size    int
	bar     *Barrier
	scratch []uint32

	// reservation broadcast slots, written by lane 0 only
	bcastBase uint32
	bcastOK   bool
}

func NewGroup(size int) *Group {
	return &Group{
		size:    size,
		bar:     NewBarrier(size),
		scratch: make([]uint32, size),
	}
}

func (g *Group) Size() int {
	return g.size
}

// StairlikeAdd computes the exclusive prefix sum of value across the
// group and the group total, by tree scan with repeated doubling.
// The barrier between the read and the write half of every round is a
// correctness requirement: each round reads partial sums the previous
// round produced, and those must be visible to all lanes first.
func (g *Group) StairlikeAdd(lane int, value uint32) (offset, total uint32) {
	g.scratch[lane] = value
	g.bar.Await()
	for d := 1; d < g.size; d <<= 1 {
		var add uint32
		if lane >= d {
			add = g.scratch[lane-d]
		}
		g.bar.Await()
		g.scratch[lane] += add
		g.bar.Await()
	}
	total = g.scratch[g.size-1]
	offset = g.scratch[lane] - value
	// scratch must not be reused until every lane finished reading
	g.bar.Await()
	return offset, total
}

// reserve0 runs fn on lane 0 only, typically a single atomic
// reservation against a shared counter, and broadcasts the result to
// every lane.  The trailing barrier keeps the broadcast slots stable
// until all lanes have read them.
func (g *Group) reserve0(lane int, fn func() (uint32, bool)) (uint32, bool) {
	if lane == 0 {
		g.bcastBase, g.bcastOK = fn()
	}
	g.bar.Await()
	base, ok := g.bcastBase, g.bcastOK
	g.bar.Await()
	return base, ok
}
