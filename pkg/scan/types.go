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

// Package scan implements a data parallel filter and project pass over
// record batches.  A batch of N candidate rows is handed to N lanes,
// partitioned into fixed size cooperating groups.  Lanes never lock:
// each group agrees on its output placement through a barrier
// synchronized prefix scan plus a single bounded atomic reservation,
// then every lane writes only the slots it reserved.
package scan

import (
	"context"
	"sync/atomic"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
)

// Format of a data store.
type Format uint8

const (
	// FormatRow stores serialized tuples in a dual direction arena:
	// an index of tuple offsets grows from the low end, tuple bytes
	// from the high end.
	FormatRow Format = iota + 1
	// FormatSlot stores one fixed stride (datum, isnull) pair per
	// retained column per row.
	FormatSlot
)

func (f Format) String() string {
	switch f {
	case FormatRow:
		return "ROW"
	case FormatSlot:
		return "SLOT"
	}
	return "UNKNOWN"
}

// QualStatus is the outcome of evaluating the predicate on one row.
type QualStatus int8

const (
	// QualReject drops the row.
	QualReject QualStatus = 0
	// QualPass keeps the row.
	QualPass QualStatus = 1
	// QualRecheck keeps the row provisionally; the host must
	// re-verify it because the parallel evaluation took an
	// approximation.
	QualRecheck QualStatus = -1
)

// Qualifier evaluates the predicate for one row of the source store.
// It is generated from a query plan ahead of the invocation and is
// opaque to this package.
type Qualifier func(ctx context.Context, src *DataStore, row uint32) (QualStatus, error)

// KernelContext is the per lane transient state of one invocation.
// The first error a lane observes sticks; it is merged into the
// result buffer's shared error cell when the lane finishes.
type KernelContext struct {
	errcode uint16
}

// SetError records code unless an earlier error is already recorded.
func (k *KernelContext) SetError(code uint16) {
	if k.errcode == moerr.Ok {
		k.errcode = code
	}
}

func (k *KernelContext) ErrCode() uint16 {
	return k.errcode
}

func (k *KernelContext) Ok() bool {
	return k.errcode == moerr.Ok
}

const tupItemHeaderSize = 4

const maxAlignSize = 8

func maxAlign(n uint32) uint32 {
	return (n + maxAlignSize - 1) &^ (maxAlignSize - 1)
}

// boundedFetchAdd adds delta to c unless the result would exceed
// limit.  It returns the value before the add.  Unlike a plain
// fetch-add it never overshoots, so `count <= limit` stays true at
// every instant and a denied group leaves the counter untouched.
func boundedFetchAdd(c *atomic.Uint32, delta, limit uint32) (uint32, bool) {
	for {
		cur := c.Load()
		if cur+delta > limit {
			return cur, false
		}
		if c.CompareAndSwap(cur, cur+delta) {
			return cur, true
		}
	}
}

// writebackErrorStatus merges a lane's error code into the shared
// error cell.  Success never overwrites an error, and between two
// errors the numerically larger (worse) one wins.
func writebackErrorStatus(cell *atomic.Uint32, code uint16) {
	if code == moerr.Ok {
		return
	}
	for {
		cur := cell.Load()
		if uint32(code) <= cur && cur != uint32(moerr.Ok) {
			return
		}
		if cell.CompareAndSwap(cur, uint32(code)) {
			return
		}
	}
}
