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
	"context"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/matrixorigin/parscan/pkg/common/moerr"
)

// ResultBuffer records which rows survived the predicate.  Indices
// are signed and 1 based: a positive entry is a clean pass, a
// negative entry passed a relaxed evaluation and must be rechecked by
// the host.  The buffer also carries the invocation's shared error
// cell, inspected by the caller after the invocation returns.
type ResultBuffer struct {
	nrels   uint32 // always 1
	nitems  atomic.Uint32
	nrooms  uint32
	errcode atomic.Uint32

	// Index[0:ItemCount()] are the recorded rows.
	Index []int32
}

// NewResultBuffer allocates a zeroed buffer with room for rooms rows.
func NewResultBuffer(rooms uint32) *ResultBuffer {
	return &ResultBuffer{
		nrels: 1,
		// rooms entries, all zero; zero is "no row recorded"
		nrooms: rooms,
		Index:  make([]int32, rooms),
	}
}

func (rb *ResultBuffer) RelationCount() uint32 {
	return rb.nrels
}

func (rb *ResultBuffer) ItemCount() uint32 {
	return rb.nitems.Load()
}

func (rb *ResultBuffer) RoomCapacity() uint32 {
	return rb.nrooms
}

func (rb *ResultBuffer) ErrCode() uint16 {
	return uint16(rb.errcode.Load())
}

// Err converts the error cell into a *moerr.Error, nil on success.
func (rb *ResultBuffer) Err(ctx context.Context) error {
	code := rb.ErrCode()
	if code == moerr.Ok {
		return nil
	}
	return moerr.NewWithCode(ctx, code)
}

// Rows returns the recorded signed indices.
func (rb *ResultBuffer) Rows() []int32 {
	return rb.Index[:rb.ItemCount()]
}

// Passed returns the set of 0 based rows that passed cleanly.
func (rb *ResultBuffer) Passed() *roaring64.Bitmap {
	bm := roaring64.NewBitmap()
	for _, ri := range rb.Rows() {
		if ri > 0 {
			bm.Add(uint64(ri - 1))
		}
	}
	return bm
}

// Rechecks returns the set of 0 based rows the host must re-verify.
func (rb *ResultBuffer) Rechecks() *roaring64.Bitmap {
	bm := roaring64.NewBitmap()
	for _, ri := range rb.Rows() {
		if ri < 0 {
			bm.Add(uint64(-ri - 1))
		}
	}
	return bm
}

func (rb *ResultBuffer) mergeErrCode(code uint16) {
	writebackErrorStatus(&rb.errcode, code)
}

// writeBack records one lane's predicate outcome.  Collective: every
// lane of the group must call it exactly once per invocation; lanes
// whose row was rejected (or that carry no row) contribute a zero to
// the scan so the group's shape stays valid.
//
// One lane performs a single bounded atomic add for the whole group.
// If the group's block does not fit, the reservation is denied as a
// whole: nitems is untouched, the overflow is recorded, and the
// group's rows are simply absent from this buffer.  The host retries
// with a larger capacity or a smaller batch slice.
func (rb *ResultBuffer) writeBack(kcxt *KernelContext, g *Group, lane int, row uint32, status QualStatus) {
	var binary uint32
	if status != QualReject {
		binary = 1
	}
	offset, count := g.StairlikeAdd(lane, binary)
	base, ok := g.reserve0(lane, func() (uint32, bool) {
		if count == 0 {
			return 0, true
		}
		return boundedFetchAdd(&rb.nitems, count, rb.nrooms)
	})
	if !ok {
		kcxt.SetError(moerr.ErrDataStoreNoSpace)
		return
	}

	// row indices are written back 1 based; negative marks a row
	// that needs a recheck on the host side
	if status == QualPass {
		rb.Index[base+offset] = int32(row + 1)
	} else if status == QualRecheck {
		rb.Index[base+offset] = -int32(row + 1)
	}
}
