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
	"encoding/binary"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/container/types"
)

// projectRow materializes one surviving row into a row format
// destination.  If the destination layout is compatible with the
// source the tupitem is copied verbatim; otherwise the configured
// projection builds a fresh tuple.
//
// Collective: entered by every lane, surviving row or not.  Two
// reservations run in sequence, each one scan plus one group wide
// atomic: first index slots, then tuple bytes carved from the high
// end of the arena.  Either one overflowing records a no-space error
// and aborts the writes of this group only; groups already committed
// or not yet run are unaffected.
func projectRow(ctx context.Context, kcxt *KernelContext, g *Group, lane int,
	src *DataStore, row uint32, hasRow bool, proj *Projection, dst *DataStore) {

	var (
		item     []byte
		vals     []types.Value
		nulls    []bool
		tupleLen uint32
	)

	// step 1: compute the exact serialized length of this lane's
	// output tuple
	if hasRow {
		item = src.tupItem(row)
		if item == nil {
			hasRow = false
		}
	}
	if hasRow && proj != nil {
		vals = make([]types.Value, len(proj.Cols))
		nulls = make([]bool, len(proj.Cols))
		if err := proj.evalRow(ctx, src, row, vals, nulls); err != nil {
			kcxt.SetError(moerr.CodeOf(err))
			hasRow = false
		} else {
			tupleLen = uint32(types.TupleSize(proj.Cols, vals, nulls))
		}
	} else if hasRow {
		tupleLen = uint32(len(item)) - tupItemHeaderSize
	}

	var required uint32
	if hasRow {
		required = maxAlign(tupItemHeaderSize + tupleLen)
	}

	// step 2: reserve index slots for the group.  The slot base is the
	// front reservation itself, not the item counter: the single CAS
	// bounds both the room capacity and the arena space, so a denied
	// group leaves every cursor untouched and a successful group can
	// only ever write index entries inside the block it was granted.
	var has uint32
	if hasRow {
		has = 1
	}
	itemOff, itemCount := g.StairlikeAdd(lane, has)
	itemBase, ok := g.reserve0(lane, func() (uint32, bool) {
		if itemCount == 0 {
			return 0, true
		}
		front, ok := dst.arena.ReserveFront(
			tupItemHeaderSize*itemCount, tupItemHeaderSize*dst.nrooms)
		if !ok {
			return 0, false
		}
		dst.nitems.Add(itemCount)
		return front / tupItemHeaderSize, true
	})
	if !ok {
		kcxt.SetError(moerr.ErrDataStoreNoSpace)
		return
	}

	// step 3: reserve tuple bytes for the group
	byteOff, byteSum := g.StairlikeAdd(lane, required)
	usagePrev, ok := g.reserve0(lane, func() (uint32, bool) {
		if byteSum == 0 {
			return 0, true
		}
		return dst.arena.ReserveBack(byteSum)
	})
	if !ok {
		kcxt.SetError(moerr.ErrDataStoreNoSpace)
		return
	}

	// step 4: construct the result tuple in the reserved range
	if !hasRow {
		return
	}
	htupOff := dst.arena.Len() - (usagePrev + byteOff + required)
	buf := dst.arena.buf
	if proj != nil {
		binary.LittleEndian.PutUint32(buf[htupOff:], tupleLen)
		types.EncodeTuple(proj.Cols, vals, nulls, buf[htupOff+tupItemHeaderSize:])
	} else {
		copy(buf[htupOff:], item)
	}
	binary.LittleEndian.PutUint32(buf[(itemBase+itemOff)*tupItemHeaderSize:], htupOff)
}
