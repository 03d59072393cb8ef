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

import "sync/atomic"

// Arena is a pre-sized byte region allocated from both ends: the
// tuple offset index grows from the low end, serialized tuple bytes
// from the high end.  Both cursors live in one atomic word so a
// reservation from either end is a single CAS that can never let the
// cursors cross: front + back <= len holds at every instant.
type Arena struct {
	buf []byte
	cur atomic.Uint64 // high 32 bits front, low 32 bits back
}

func newArena(buf []byte) *Arena {
	return &Arena{buf: buf}
}

func (a *Arena) Len() uint32 {
	return uint32(len(a.buf))
}

func (a *Arena) Bytes() []byte {
	return a.buf
}

// Front returns the bytes consumed from the low end.
func (a *Arena) Front() uint32 {
	return uint32(a.cur.Load() >> 32)
}

// Back returns the bytes consumed from the high end.
func (a *Arena) Back() uint32 {
	return uint32(a.cur.Load())
}

// ReserveFront claims n bytes at the low end and returns the offset
// of the claimed block.  The reservation is denied as a whole if the
// front would pass limit or collide with the high end usage.  Both
// checks ride the same CAS, so a claimed block is always entirely
// inside [0, limit) and disjoint from every other claim.
func (a *Arena) ReserveFront(n, limit uint32) (uint32, bool) {
	for {
		cur := a.cur.Load()
		front, back := uint32(cur>>32), uint32(cur)
		if front+n > limit || front+n+back > a.Len() {
			return front, false
		}
		if a.cur.CompareAndSwap(cur, uint64(front+n)<<32|uint64(back)) {
			return front, true
		}
	}
}

// ReserveBack claims n bytes at the high end and returns the usage
// before the claim; the claimed block spans
// [len - prior - n, len - prior).
func (a *Arena) ReserveBack(n uint32) (uint32, bool) {
	for {
		cur := a.cur.Load()
		front, back := uint32(cur>>32), uint32(cur)
		if front+back+n > a.Len() {
			return back, false
		}
		if a.cur.CompareAndSwap(cur, uint64(front)<<32|uint64(back+n)) {
			return back, true
		}
	}
}
