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
	"testing"

	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/stretchr/testify/require"
)

func TestResultBufferTransfer(t *testing.T) {
	for _, compress := range []bool{false, true} {
		rb := NewResultBuffer(16)
		rb.nitems.Store(3)
		rb.Index[0], rb.Index[1], rb.Index[2] = 4, -7, 12
		rb.mergeErrCode(0)

		blob, err := EncodeResultBuffer(rb, compress)
		require.NoError(t, err)

		got, err := DecodeResultBuffer(context.TODO(), blob)
		require.NoError(t, err)
		require.Equal(t, uint32(1), got.RelationCount())
		require.Equal(t, uint32(3), got.ItemCount())
		require.Equal(t, uint32(16), got.RoomCapacity())
		require.Equal(t, []int32{4, -7, 12}, got.Rows())
		require.Equal(t, []uint64{3, 11}, got.Passed().ToArray())
		require.Equal(t, []uint64{6}, got.Rechecks().ToArray())
	}
}

func TestRowStoreTransfer(t *testing.T) {
	mp := mpool.MustNewZero("test-transfer-row")
	src := fillRowStore(t, mp, 12)
	defer src.Free()

	for _, compress := range []bool{false, true} {
		blob, err := EncodeDataStore(src, compress)
		require.NoError(t, err)

		got, err := DecodeDataStore(context.TODO(), mp, blob)
		require.NoError(t, err)
		require.Equal(t, FormatRow, got.Format())
		require.Equal(t, src.ItemCount(), got.ItemCount())
		require.Equal(t, src.IndexBytes(), got.IndexBytes())
		require.Equal(t, src.BytesUsed(), got.BytesUsed())

		vals := make([]types.Value, 3)
		nulls := make([]bool, 3)
		for i := uint32(0); i < got.ItemCount(); i++ {
			require.Equal(t, src.Tuple(i), got.Tuple(i))
			require.NoError(t, got.RowValues(context.TODO(), i, vals, nulls))
			require.Equal(t, int64(i), vals[0].Int64())
		}
		got.Free()
	}
}

func TestSlotStoreTransfer(t *testing.T) {
	mp := mpool.MustNewZero("test-transfer-slot")
	src := fillRowStore(t, mp, 8)
	defer src.Free()

	dst, err := NewSlotStore(mp, src.Columns(), 8, 1<<10)
	require.NoError(t, err)
	defer dst.Free()

	s := newTestScanner(t, nil, nil, 4)
	res := NewResultBuffer(8)
	require.NoError(t, s.Run(context.TODO(), src, dst, res))

	blob, err := EncodeDataStore(dst, true)
	require.NoError(t, err)
	got, err := DecodeDataStore(context.TODO(), mp, blob)
	require.NoError(t, err)
	defer got.Free()

	require.Equal(t, FormatSlot, got.Format())
	require.Equal(t, dst.ItemCount(), got.ItemCount())
	for i := uint32(0); i < got.ItemCount(); i++ {
		for c := 0; c < got.ColumnCount(); c++ {
			want, wantNull, err := dst.SlotValue(context.TODO(), i, c)
			require.NoError(t, err)
			have, haveNull, err := got.SlotValue(context.TODO(), i, c)
			require.NoError(t, err)
			require.Equal(t, wantNull, haveNull)
			if !wantNull {
				require.Equal(t, want.Fixed, have.Fixed)
				require.Equal(t, want.Bytes, have.Bytes)
			}
		}
	}
}

func TestTransferRejectsGarbage(t *testing.T) {
	_, err := DecodeResultBuffer(context.TODO(), []byte{1, 2, 3})
	require.Error(t, err)

	rb := NewResultBuffer(4)
	blob, err := EncodeResultBuffer(rb, false)
	require.NoError(t, err)

	// wrong kind
	_, err = DecodeDataStore(context.TODO(), mpool.MustNewZero("test-garbage"), blob)
	require.Error(t, err)

	// corrupted magic
	blob[0] ^= 0xff
	_, err = DecodeResultBuffer(context.TODO(), blob)
	require.Error(t, err)
}
