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
	"sync"
	"sync/atomic"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
)

const (
	kMinClassSize = 64
	kMaxClassSize = 1 << 20
	// NoFixed disables the fixed size classes, every Alloc goes
	// straight to the go allocator.
	NoFixed = -1
)

// MPool is a sized memory pool with a hard cap.  Buffers up to
// kMaxClassSize are recycled through per-class free lists; larger
// ones are handed to the go allocator directly.  All byte buffers
// used by data stores and result buffers are accounted here, so a
// runaway invocation fails with ErrOOM instead of taking the host
// down.
type MPool struct {
	name    string
	cap     int64
	classes []class

	currBytes atomic.Int64
	highWater atomic.Int64
	numAllocs atomic.Int64
	numFrees  atomic.Int64
}

type class struct {
	size int
	pool sync.Pool
}

// GB is a reasonable default cap for a pool.
const GB = 1 << 30

// NewMPool creates a pool.  cap <= 0 means no limit.
func NewMPool(name string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidArg(nil, "mpool cap", cap)
	}
	m := &MPool{name: name, cap: cap}
	for sz := kMinClassSize; sz <= kMaxClassSize; sz *= 2 {
		sz := sz
		m.classes = append(m.classes, class{
			size: sz,
			pool: sync.Pool{New: func() any {
				b := make([]byte, sz)
				return &b
			}},
		})
	}
	return m, nil
}

// MustNewZero is a pool without cap, for tests and tools.
func MustNewZero(name string) *MPool {
	m, err := NewMPool(name, 0)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *MPool) Name() string {
	return m.name
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the currently accounted bytes.
func (m *MPool) CurrNB() int64 {
	return m.currBytes.Load()
}

func (m *MPool) Stats() (allocs, frees, highWater int64) {
	return m.numAllocs.Load(), m.numFrees.Load(), m.highWater.Load()
}

func (m *MPool) classOf(size int) *class {
	for i := range m.classes {
		if m.classes[i].size >= size {
			return &m.classes[i]
		}
	}
	return nil
}

// Alloc returns a zeroed buffer of exactly size bytes.
func (m *MPool) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, moerr.NewInvalidArg(nil, "alloc size", size)
	}
	if size == 0 {
		return nil, nil
	}
	if m.cap > 0 && m.currBytes.Load()+int64(size) > m.cap {
		return nil, moerr.NewOOM(nil)
	}

	m.numAllocs.Add(1)
	nb := m.currBytes.Add(int64(size))
	for {
		hw := m.highWater.Load()
		if nb <= hw || m.highWater.CompareAndSwap(hw, nb) {
			break
		}
	}

	if c := m.classOf(size); c != nil {
		bp := c.pool.Get().(*[]byte)
		buf := (*bp)[:size]
		for i := range buf {
			buf[i] = 0
		}
		return buf, nil
	}
	return make([]byte, size), nil
}

// Free returns a buffer obtained from Alloc.  Free of nil is a noop.
func (m *MPool) Free(buf []byte) {
	if buf == nil {
		return
	}
	m.numFrees.Add(1)
	m.currBytes.Add(-int64(len(buf)))
	if c := m.classOf(cap(buf)); c != nil && c.size == cap(buf) {
		full := buf[:cap(buf)]
		c.pool.Put(&full)
	}
}

// Grow reallocates buf to at least size bytes, copying the old
// content.  The old buffer is freed.
func (m *MPool) Grow(buf []byte, size int) ([]byte, error) {
	if size <= len(buf) {
		return buf, nil
	}
	nb, err := m.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(nb, buf)
	m.Free(buf)
	return nb, nil
}
