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
	"fmt"
	"testing"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/stretchr/testify/require"
)

func storeSchema() []types.Type {
	return []types.Type{
		types.New(types.T_int64),
		types.New(types.T_varchar),
		types.New(types.T_float64),
	}
}

// fillRowStore appends n rows of a deterministic pattern: (i, "row-i",
// i/2), with the varchar NULL every 5th row.
func fillRowStore(t *testing.T, mp *mpool.MPool, n uint32) *DataStore {
	t.Helper()
	cols := storeSchema()
	ds, err := NewRowStore(mp, cols, n, 1<<16)
	require.NoError(t, err)
	for i := uint32(0); i < n; i++ {
		vals := []types.Value{
			types.NewInt64Value(int64(i)),
			types.NewStringValue(fmt.Sprintf("row-%d", i)),
			types.NewFloat64Value(float64(i) / 2),
		}
		nulls := []bool{false, i%5 == 4, false}
		require.NoError(t, ds.Append(context.TODO(), vals, nulls))
	}
	return ds
}

func TestRowStoreAppendAndRead(t *testing.T) {
	mp := mpool.MustNewZero("test-row-store")
	ds := fillRowStore(t, mp, 10)
	defer ds.Free()

	require.Equal(t, FormatRow, ds.Format())
	require.Equal(t, uint32(10), ds.ItemCount())
	require.Equal(t, uint32(40), ds.IndexBytes())

	vals := make([]types.Value, 3)
	nulls := make([]bool, 3)
	require.NoError(t, ds.RowValues(context.TODO(), 7, vals, nulls))
	require.Equal(t, int64(7), vals[0].Int64())
	require.Equal(t, "row-7", vals[1].String())
	require.Equal(t, 3.5, vals[2].Float64())

	v, isnull, err := ds.ColumnValue(context.TODO(), 4, 1)
	require.NoError(t, err)
	require.True(t, isnull)
	_ = v

	require.Nil(t, ds.Tuple(10))
	require.Error(t, ds.RowValues(context.TODO(), 10, vals, nulls))
}

func TestRowStoreAppendOverflow(t *testing.T) {
	mp := mpool.MustNewZero("test-row-overflow")
	cols := []types.Type{types.New(types.T_int64)}
	ds, err := NewRowStore(mp, cols, 2, 128)
	require.NoError(t, err)
	defer ds.Free()

	vals := []types.Value{types.NewInt64Value(1)}
	nulls := []bool{false}
	require.NoError(t, ds.Append(context.TODO(), vals, nulls))
	require.NoError(t, ds.Append(context.TODO(), vals, nulls))

	err = ds.Append(context.TODO(), vals, nulls)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDataStoreNoSpace))
	require.Equal(t, uint32(2), ds.ItemCount())
}

func TestRowStoreValidation(t *testing.T) {
	mp := mpool.MustNewZero("test-row-validation")
	cols := storeSchema()

	_, err := NewRowStore(mp, cols, 0, 1024)
	require.Error(t, err)

	// the index alone would not fit
	_, err = NewRowStore(mp, cols, 100, 128)
	require.Error(t, err)
}

func TestSlotStoreReadWrite(t *testing.T) {
	mp := mpool.MustNewZero("test-slot-store")
	cols := storeSchema()
	ds, err := NewSlotStore(mp, cols, 4, 256)
	require.NoError(t, err)
	defer ds.Free()

	require.Equal(t, FormatSlot, ds.Format())

	// simulate one committed row the way the slot projector writes it
	ds.nitems.Store(1)
	base, ok := ds.reserveExtra(4 + 3)
	require.True(t, ok)
	ds.extra[base] = 3
	copy(ds.extra[base+4:], "abc")
	ds.values[0] = types.NewInt64Value(-9).Fixed
	ds.values[1] = types.Datum(base)
	ds.isnull[2] = true

	v, isnull, err := ds.SlotValue(context.TODO(), 0, 0)
	require.NoError(t, err)
	require.False(t, isnull)
	require.Equal(t, int64(-9), v.Int64())

	v, isnull, err = ds.SlotValue(context.TODO(), 0, 1)
	require.NoError(t, err)
	require.False(t, isnull)
	require.Equal(t, "abc", v.String())

	_, isnull, err = ds.SlotValue(context.TODO(), 0, 2)
	require.NoError(t, err)
	require.True(t, isnull)

	_, _, err = ds.SlotValue(context.TODO(), 1, 0)
	require.Error(t, err)
	_, _, err = ds.SlotValue(context.TODO(), 0, 3)
	require.Error(t, err)
}

func TestDataStoreReset(t *testing.T) {
	mp := mpool.MustNewZero("test-reset")
	ds := fillRowStore(t, mp, 6)
	defer ds.Free()

	ds.Reset()
	require.Equal(t, uint32(0), ds.ItemCount())
	require.Equal(t, uint32(0), ds.BytesUsed())
	require.Equal(t, uint32(0), ds.IndexBytes())

	vals := []types.Value{
		types.NewInt64Value(99),
		types.NewStringValue("fresh"),
		types.NewFloat64Value(1),
	}
	require.NoError(t, ds.Append(context.TODO(), vals, make([]bool, 3)))
	require.Equal(t, uint32(1), ds.ItemCount())

	got := make([]types.Value, 3)
	nulls := make([]bool, 3)
	require.NoError(t, ds.RowValues(context.TODO(), 0, got, nulls))
	require.Equal(t, "fresh", got[1].String())
}
