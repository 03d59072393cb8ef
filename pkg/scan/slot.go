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

// projectSlot materializes one surviving row into a slot format
// destination: a single-phase slot reservation, then a column wise
// write at the slot's stride offset.  Variable length values take a
// nested sub-allocation from the store's extra arena, following the
// same scan-then-reserve pattern one level deeper.
func projectSlot(ctx context.Context, kcxt *KernelContext, g *Group, lane int,
	src *DataStore, row uint32, hasRow bool, proj *Projection, dst *DataStore) {

	cols := dst.cols
	var (
		vals  []types.Value
		nulls []bool
	)

	// the source tuple may be absent even for a surviving row if an
	// earlier group overflowed while building it; guard before any
	// dereference, exactly as the row path does
	if hasRow && src.tupItem(row) == nil {
		hasRow = false
	}

	// step 1: reserve destination slots for the group
	var has uint32
	if hasRow {
		has = 1
	}
	offset, count := g.StairlikeAdd(lane, has)
	base, ok := g.reserve0(lane, func() (uint32, bool) {
		if count == 0 {
			return 0, true
		}
		return boundedFetchAdd(&dst.nitems, count, dst.nrooms)
	})
	if !ok {
		kcxt.SetError(moerr.ErrDataStoreNoSpace)
		return
	}

	// step 2: decompose the source row, either through the
	// configured projection or by direct deform
	if hasRow {
		vals = make([]types.Value, len(cols))
		nulls = make([]bool, len(cols))
		var err error
		if proj != nil {
			err = proj.evalRow(ctx, src, row, vals, nulls)
		} else {
			err = types.DecodeTuple(ctx, cols, src.Tuple(row), vals, nulls)
		}
		if err != nil {
			kcxt.SetError(moerr.CodeOf(err))
			hasRow = false
		}
	}

	// step 3: nested reservation for variable length values.  All
	// lanes participate, rows without varlena output contribute zero.
	var vlLen uint32
	if hasRow {
		for i, t := range cols {
			if t.IsVarlen() && !nulls[i] {
				vlLen += 4 + uint32(len(vals[i].Bytes))
			}
		}
	}
	vlOff, vlSum := g.StairlikeAdd(lane, vlLen)
	extraPrev, ok := g.reserve0(lane, func() (uint32, bool) {
		if vlSum == 0 {
			return 0, true
		}
		return dst.reserveExtra(vlSum)
	})
	if !ok {
		kcxt.SetError(moerr.ErrDataStoreNoSpace)
		return
	}

	// step 4: write the slot
	slot := int(base+offset) * len(cols)
	if has == 1 && !hasRow {
		// the slot was reserved before the deform failed; it must not
		// be left reading as zeros
		for i := range cols {
			dst.isnull[slot+i] = true
		}
		return
	}
	if !hasRow {
		return
	}
	cursor := extraPrev + vlOff
	for i, t := range cols {
		dst.isnull[slot+i] = nulls[i]
		if nulls[i] {
			continue
		}
		if t.IsVarlen() {
			binary.LittleEndian.PutUint32(dst.extra[cursor:], uint32(len(vals[i].Bytes)))
			copy(dst.extra[cursor+4:], vals[i].Bytes)
			dst.values[slot+i] = types.Datum(cursor)
			cursor += 4 + uint32(len(vals[i].Bytes))
			continue
		}
		dst.values[slot+i] = vals[i].Fixed
	}
}
