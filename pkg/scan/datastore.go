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
	"sync/atomic"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/container/types"
)

// DataStore is the two-variant batch container used for both the
// source and the destination of an invocation.
//
// Row format packs everything into one arena.  Offsets of serialized
// tuples (4 bytes each, one per row) grow from the low end, tupitems
// from the high end:
//
//	+--------------------------------------+
//	| offset[0] offset[1] ...  ->          |
//	|                                      |
//	|              <- ... tupitem tupitem  |
//	+--------------------------------------+
//
// A tupitem is a uint32 payload length followed by the serialized
// tuple, padded to 8 byte alignment.  Offset 0 marks a row that was
// reserved but never committed; a real tupitem can never live at
// offset 0 because the low end belongs to the index.
//
// Slot format holds one (datum, isnull) pair per retained column per
// row at a fixed stride.  Variable length datums are offsets into the
// extra arena.
//
// Stores are sized before the invocation and never grow during it.
type DataStore struct {
	format Format
	cols   []types.Type
	nrooms uint32
	nitems atomic.Uint32

	// row format
	arena *Arena

	// slot format
	values    []types.Datum
	isnull    []bool
	extra     []byte
	extraUsed atomic.Uint32

	mp *mpool.MPool
}

// NewRowStore allocates a zeroed row format store with room for
// rooms tuples and an arena of length bytes.
func NewRowStore(mp *mpool.MPool, cols []types.Type, rooms, length uint32) (*DataStore, error) {
	if rooms == 0 || length == 0 {
		return nil, moerr.NewEmptyRange(nil, "row store")
	}
	if tupItemHeaderSize*rooms > length {
		return nil, moerr.NewInvalidArg(nil, "row store length", length)
	}
	buf, err := mp.Alloc(int(length))
	if err != nil {
		return nil, err
	}
	return &DataStore{
		format: FormatRow,
		cols:   cols,
		nrooms: rooms,
		arena:  newArena(buf),
		mp:     mp,
	}, nil
}

// NewSlotStore allocates a zeroed slot format store with room for
// rooms rows.  extraLen sizes the arena backing variable length
// datums; it may be zero when all retained columns are fixed width.
func NewSlotStore(mp *mpool.MPool, cols []types.Type, rooms, extraLen uint32) (*DataStore, error) {
	if rooms == 0 {
		return nil, moerr.NewEmptyRange(nil, "slot store")
	}
	var extra []byte
	if extraLen > 0 {
		var err error
		if extra, err = mp.Alloc(int(extraLen)); err != nil {
			return nil, err
		}
	}
	n := int(rooms) * len(cols)
	return &DataStore{
		format: FormatSlot,
		cols:   cols,
		nrooms: rooms,
		values: make([]types.Datum, n),
		isnull: make([]bool, n),
		extra:  extra,
		mp:     mp,
	}, nil
}

// Free returns pooled buffers.  The store must not be used afterwards.
func (ds *DataStore) Free() {
	if ds.arena != nil {
		ds.mp.Free(ds.arena.buf)
		ds.arena = nil
	}
	if ds.extra != nil {
		ds.mp.Free(ds.extra)
		ds.extra = nil
	}
	ds.values = nil
	ds.isnull = nil
}

// Reset zeroes the store so the caller can re-invoke into it, e.g.
// after growing a sibling buffer on overflow.
func (ds *DataStore) Reset() {
	ds.nitems.Store(0)
	ds.extraUsed.Store(0)
	if ds.arena != nil {
		ds.arena.cur.Store(0)
		for i := range ds.arena.buf {
			ds.arena.buf[i] = 0
		}
	}
	for i := range ds.values {
		ds.values[i] = 0
		ds.isnull[i] = false
	}
	for i := range ds.extra {
		ds.extra[i] = 0
	}
}

func (ds *DataStore) Format() Format {
	return ds.format
}

func (ds *DataStore) Columns() []types.Type {
	return ds.cols
}

func (ds *DataStore) ColumnCount() int {
	return len(ds.cols)
}

func (ds *DataStore) ItemCount() uint32 {
	return ds.nitems.Load()
}

func (ds *DataStore) RoomCapacity() uint32 {
	return ds.nrooms
}

// TotalLength of the row format arena.
func (ds *DataStore) TotalLength() uint32 {
	if ds.arena == nil {
		return 0
	}
	return ds.arena.Len()
}

// BytesUsed by tupitems, counted from the arena's high end.
func (ds *DataStore) BytesUsed() uint32 {
	if ds.arena == nil {
		return 0
	}
	return ds.arena.Back()
}

// IndexBytes consumed by the offset index at the arena's low end.
func (ds *DataStore) IndexBytes() uint32 {
	if ds.arena == nil {
		return 0
	}
	return ds.arena.Front()
}

// Append serializes one row into a row format store.  It is the host
// side fill path for building source batches; it shares the
// reserve-then-write discipline with the projectors but runs without
// a group.
func (ds *DataStore) Append(ctx context.Context, vals []types.Value, nulls []bool) error {
	if ds.format != FormatRow {
		return moerr.NewInvalidState(ctx, "append to %s store", ds.format)
	}
	payload := uint32(types.TupleSize(ds.cols, vals, nulls))
	required := maxAlign(tupItemHeaderSize + payload)

	item, ok := boundedFetchAdd(&ds.nitems, 1, ds.nrooms)
	if !ok {
		return moerr.NewDataStoreNoSpace(ctx)
	}
	if _, ok = ds.arena.ReserveFront(tupItemHeaderSize, tupItemHeaderSize*ds.nrooms); !ok {
		ds.nitems.Add(^uint32(0))
		return moerr.NewDataStoreNoSpace(ctx)
	}
	prior, ok := ds.arena.ReserveBack(required)
	if !ok {
		ds.nitems.Add(^uint32(0))
		return moerr.NewDataStoreNoSpace(ctx)
	}

	off := ds.arena.Len() - prior - required
	buf := ds.arena.buf
	binary.LittleEndian.PutUint32(buf[off:], payload)
	types.EncodeTuple(ds.cols, vals, nulls, buf[off+tupItemHeaderSize:])
	binary.LittleEndian.PutUint32(buf[item*tupItemHeaderSize:], off)
	return nil
}

// tupItem returns the header plus payload bytes of one committed
// tuple, or nil when the row was never committed.
func (ds *DataStore) tupItem(row uint32) []byte {
	if ds.format != FormatRow || row >= ds.nitems.Load() {
		return nil
	}
	buf := ds.arena.buf
	off := binary.LittleEndian.Uint32(buf[row*tupItemHeaderSize:])
	if off == 0 {
		return nil
	}
	n := binary.LittleEndian.Uint32(buf[off:])
	return buf[off : off+tupItemHeaderSize+n : off+tupItemHeaderSize+n]
}

// Tuple returns the serialized payload of one row, or nil.
func (ds *DataStore) Tuple(row uint32) []byte {
	item := ds.tupItem(row)
	if item == nil {
		return nil
	}
	return item[tupItemHeaderSize:]
}

// RowValues decodes one row of a row format store.  vals and nulls
// must hold ColumnCount entries.
func (ds *DataStore) RowValues(ctx context.Context, row uint32, vals []types.Value, nulls []bool) error {
	tup := ds.Tuple(row)
	if tup == nil {
		return moerr.NewInvalidArg(ctx, "row index", row)
	}
	return types.DecodeTuple(ctx, ds.cols, tup, vals, nulls)
}

// ColumnValue extracts one column of one row of a row format store.
func (ds *DataStore) ColumnValue(ctx context.Context, row uint32, col int) (types.Value, bool, error) {
	tup := ds.Tuple(row)
	if tup == nil {
		return types.Value{}, false, moerr.NewInvalidArg(ctx, "row index", row)
	}
	return types.DecodeTupleColumn(ctx, ds.cols, tup, col)
}

// SlotValue reads one slot of a slot format store, reconstructing
// variable length values from the extra arena.
func (ds *DataStore) SlotValue(ctx context.Context, row uint32, col int) (types.Value, bool, error) {
	if ds.format != FormatSlot {
		return types.Value{}, false, moerr.NewInvalidState(ctx, "slot read from %s store", ds.format)
	}
	if row >= ds.nitems.Load() || col < 0 || col >= len(ds.cols) {
		return types.Value{}, false, moerr.NewInvalidArg(ctx, "slot index", row)
	}
	i := int(row)*len(ds.cols) + col
	if ds.isnull[i] {
		return types.Value{}, true, nil
	}
	if ds.cols[col].IsVarlen() {
		off := uint32(ds.values[i])
		if off+4 > uint32(len(ds.extra)) {
			return types.Value{}, false, moerr.NewInvalidState(ctx, "varlena offset %d", off)
		}
		n := binary.LittleEndian.Uint32(ds.extra[off:])
		body := ds.extra[off+4 : off+4+n : off+4+n]
		return types.Value{Bytes: body}, false, nil
	}
	return types.Value{Fixed: ds.values[i]}, false, nil
}

// reserveExtra claims n bytes of the varlena arena.
func (ds *DataStore) reserveExtra(n uint32) (uint32, bool) {
	return boundedFetchAdd(&ds.extraUsed, n, uint32(len(ds.extra)))
}
