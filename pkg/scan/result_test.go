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
	"sort"
	"sync"
	"testing"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/stretchr/testify/require"
)

// writeBackBatch drives writeBack over n rows with groups of w lanes,
// the way the scanner does, and returns the per lane kernel contexts.
func writeBackBatch(rb *ResultBuffer, w int, status []QualStatus) []*KernelContext {
	n := len(status)
	ngroups := (n + w - 1) / w
	kcxts := make([]*KernelContext, ngroups*w)
	var outer sync.WaitGroup
	for gi := 0; gi < ngroups; gi++ {
		gi := gi
		outer.Add(1)
		go func() {
			defer outer.Done()
			g := NewGroup(w)
			var wg sync.WaitGroup
			for lane := 0; lane < w; lane++ {
				lane := lane
				wg.Add(1)
				go func() {
					defer wg.Done()
					row := uint32(gi*w + lane)
					st := QualReject
					if int(row) < n {
						st = status[row]
					}
					kcxt := &KernelContext{}
					kcxts[row] = kcxt
					rb.writeBack(kcxt, g, lane, row, st)
					rb.mergeErrCode(kcxt.ErrCode())
				}()
			}
			wg.Wait()
		}()
	}
	outer.Wait()
	return kcxts
}

func TestWriteBackRecordsSurvivors(t *testing.T) {
	// 8 candidate rows in two groups of 4; rows 1, 3, 4 and 7 pass
	status := []QualStatus{
		QualReject, QualPass, QualReject, QualPass,
		QualPass, QualReject, QualReject, QualPass,
	}
	rb := NewResultBuffer(8)
	writeBackBatch(rb, 4, status)

	require.Equal(t, uint32(1), rb.RelationCount())
	require.Equal(t, uint32(4), rb.ItemCount())
	require.Equal(t, uint16(moerr.Ok), rb.ErrCode())
	require.NoError(t, rb.Err(context.TODO()))

	got := append([]int32(nil), rb.Rows()...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []int32{2, 4, 5, 8}, got)
}

func TestWriteBackRecheckIsNegative(t *testing.T) {
	status := []QualStatus{QualPass, QualRecheck, QualReject, QualRecheck}
	rb := NewResultBuffer(4)
	writeBackBatch(rb, 4, status)

	require.Equal(t, uint32(3), rb.ItemCount())
	require.Equal(t, []uint64{0}, rb.Passed().ToArray())
	require.Equal(t, []uint64{1, 3}, rb.Rechecks().ToArray())
}

func TestWriteBackOverflowDeniesWholeGroup(t *testing.T) {
	// two groups of 4, every row passes, but only 5 rooms: one group
	// commits, the other is denied as a whole
	status := make([]QualStatus, 8)
	for i := range status {
		status[i] = QualPass
	}
	rb := NewResultBuffer(5)
	kcxts := writeBackBatch(rb, 4, status)

	require.Equal(t, uint32(4), rb.ItemCount())
	require.Equal(t, uint16(moerr.ErrDataStoreNoSpace), rb.ErrCode())
	require.True(t, moerr.IsMoErrCode(rb.Err(context.TODO()), moerr.ErrDataStoreNoSpace))

	// the committed group is intact: its 4 indices are one whole group
	rows := rb.Passed().ToArray()
	require.Len(t, rows, 4)
	require.Equal(t, rows[0]/4, rows[3]/4)

	// every lane of the denied group saw the error
	var denied int
	for _, kcxt := range kcxts {
		if !kcxt.Ok() {
			denied++
		}
	}
	require.Equal(t, 4, denied)
}

func TestWriteBackAllRejected(t *testing.T) {
	status := make([]QualStatus, 16)
	rb := NewResultBuffer(4)
	writeBackBatch(rb, 8, status)

	// zero survivors never trip the capacity check
	require.Equal(t, uint32(0), rb.ItemCount())
	require.Equal(t, uint16(moerr.Ok), rb.ErrCode())
	require.Empty(t, rb.Rows())
}
