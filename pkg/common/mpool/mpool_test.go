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

package mpool

import (
	"testing"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/stretchr/testify/require"
)

func TestMPoolAllocFree(t *testing.T) {
	m := MustNewZero("test")
	for _, size := range []int{1, 63, 64, 65, 4096, kMaxClassSize, kMaxClassSize + 1} {
		buf, err := m.Alloc(size)
		require.NoError(t, err)
		require.Equal(t, size, len(buf))
		for i := range buf {
			require.Equal(t, byte(0), buf[i])
			buf[i] = 0xab
		}
		m.Free(buf)
	}
	require.Equal(t, int64(0), m.CurrNB())

	// recycled buffers come back zeroed
	buf, err := m.Alloc(128)
	require.NoError(t, err)
	for i := range buf {
		require.Equal(t, byte(0), buf[i])
	}
	m.Free(buf)

	allocs, frees, hw := m.Stats()
	require.Equal(t, allocs, frees)
	require.Greater(t, hw, int64(0))
}

func TestMPoolCap(t *testing.T) {
	m, err := NewMPool("capped", 1024)
	require.NoError(t, err)

	buf, err := m.Alloc(1000)
	require.NoError(t, err)

	_, err = m.Alloc(100)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))

	m.Free(buf)
	buf, err = m.Alloc(100)
	require.NoError(t, err)
	m.Free(buf)
}

func TestMPoolEdgeCases(t *testing.T) {
	m := MustNewZero("edges")

	buf, err := m.Alloc(0)
	require.NoError(t, err)
	require.Nil(t, buf)
	m.Free(nil)

	_, err = m.Alloc(-1)
	require.Error(t, err)

	_, err = NewMPool("bad", -1)
	require.Error(t, err)
}

func TestMPoolGrow(t *testing.T) {
	m := MustNewZero("grow")
	buf, err := m.Alloc(16)
	require.NoError(t, err)
	copy(buf, "0123456789abcdef")

	buf, err = m.Grow(buf, 256)
	require.NoError(t, err)
	require.Equal(t, 256, len(buf))
	require.Equal(t, "0123456789abcdef", string(buf[:16]))

	same, err := m.Grow(buf, 8)
	require.NoError(t, err)
	require.Equal(t, 256, len(same))
	m.Free(same)
	require.Equal(t, int64(0), m.CurrNB())
}
