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
	"runtime"
	"sync"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/config"
	"github.com/matrixorigin/parscan/pkg/logutil"
	"github.com/panjf2000/ants/v2"
)

// Options sizes one Scanner.
type Options struct {
	// GroupSize is the number of cooperating lanes per group.
	GroupSize int
	// MaxConcurrentGroups bounds how many groups run at once.
	MaxConcurrentGroups int
}

func (o *Options) fillDefaults() {
	if o.GroupSize <= 0 {
		o.GroupSize = 64
	}
	if o.MaxConcurrentGroups <= 0 {
		o.MaxConcurrentGroups = runtime.GOMAXPROCS(0)
	}
}

// OptionsFromConfig maps the kernel section of a configuration file
// onto scanner options.
func OptionsFromConfig(kp *config.KernelParameters) Options {
	return Options{
		GroupSize:           int(kp.GroupSize),
		MaxConcurrentGroups: int(kp.MaxConcurrentGroups),
	}
}

// Scanner runs the filter and project pass.  It is built once per
// query plan, carries the compiled qualifier and projection, and may
// be invoked any number of times on different batches.  A Scanner is
// safe for concurrent invocations; they share the group pool.
type Scanner struct {
	qual Qualifier
	proj *Projection
	opts Options
	pool *ants.Pool
}

// NewScanner compiles a scanner from a qualifier and an optional
// projection.  A nil qualifier keeps every row.  A nil projection
// copies (row destination) or deforms (slot destination) source rows
// unchanged.
func NewScanner(qual Qualifier, proj *Projection, opts Options) (*Scanner, error) {
	opts.fillDefaults()
	pool, err := ants.NewPool(opts.MaxConcurrentGroups)
	if err != nil {
		return nil, moerr.ConvertGoError(nil, err)
	}
	return &Scanner{
		qual: qual,
		proj: proj,
		opts: opts,
		pool: pool,
	}, nil
}

// Close releases the group pool.
func (s *Scanner) Close() {
	s.pool.Release()
}

// Run evaluates the qualifier over every row of src, records survivors
// in res and, when dst is non nil, materializes them into dst.  src
// must be a row format store; dst may use either format.  On any lane
// error Run still drains the whole batch, then reports the worst code
// recorded in res's error cell.
//
// Destination contents are only meaningful when Run returns nil.  The
// set of recorded rows is deterministic; their order is not.
func (s *Scanner) Run(ctx context.Context, src, dst *DataStore, res *ResultBuffer) error {
	if src == nil || res == nil {
		return moerr.NewInvalidInput(ctx, "scan needs a source and a result buffer")
	}
	if src.Format() != FormatRow {
		return moerr.NewNotSupported(ctx, "scan source in %s format", src.Format())
	}

	// resolve the projector once; an unrecognized destination format
	// is a caller bug, not a data error
	var projector func(context.Context, *KernelContext, *Group, int, *DataStore, uint32, bool, *Projection, *DataStore)
	if dst != nil {
		switch dst.Format() {
		case FormatRow:
			projector = projectRow
		case FormatSlot:
			projector = projectSlot
		default:
			panic(fmt.Sprintf("unknown data store format %d", dst.Format()))
		}
	}

	n := src.ItemCount()
	w := s.opts.GroupSize
	ngroups := (int(n) + w - 1) / w
	logutil.Debugf("scan: %d rows in %d groups of %d lanes", n, ngroups, w)

	var wg sync.WaitGroup
	for gi := 0; gi < ngroups; gi++ {
		gi := gi
		wg.Add(1)
		task := func() {
			defer wg.Done()
			s.runGroup(ctx, gi, n, src, dst, res, projector)
		}
		if s.pool.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()

	return res.Err(ctx)
}

// runGroup spawns the group's lanes and waits for them.  Lanes of one
// group must run simultaneously: they rendezvous at barriers, so they
// are spawned directly rather than submitted to the pool where a full
// queue could hold back part of the group forever.
func (s *Scanner) runGroup(ctx context.Context, gi int, n uint32,
	src, dst *DataStore, res *ResultBuffer,
	projector func(context.Context, *KernelContext, *Group, int, *DataStore, uint32, bool, *Projection, *DataStore)) {

	g := NewGroup(s.opts.GroupSize)
	var wg sync.WaitGroup
	for lane := 0; lane < s.opts.GroupSize; lane++ {
		lane := lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLane(ctx, g, lane, uint32(gi*s.opts.GroupSize)+uint32(lane), n, src, dst, res, projector)
		}()
	}
	wg.Wait()
}

// runLane is the per lane body: qualify, write back, project.  Every
// step is collective, so the lane runs all of them even after an
// error; it just stops contributing rows.
func (s *Scanner) runLane(ctx context.Context, g *Group, lane int, row, n uint32,
	src, dst *DataStore, res *ResultBuffer,
	projector func(context.Context, *KernelContext, *Group, int, *DataStore, uint32, bool, *Projection, *DataStore)) {

	kcxt := &KernelContext{}
	status := QualReject
	if row < n {
		if ctx.Err() != nil {
			kcxt.SetError(moerr.ErrQueryInterrupted)
		} else {
			var err error
			if status, err = s.qualify(ctx, src, row); err != nil {
				kcxt.SetError(moerr.CodeOf(err))
				status = QualReject
			}
		}
	}

	res.writeBack(kcxt, g, lane, row, status)

	if projector != nil {
		hasRow := status != QualReject && kcxt.Ok()
		projector(ctx, kcxt, g, lane, src, row, hasRow, s.proj, dst)
	}

	res.mergeErrCode(kcxt.ErrCode())
}

// qualify shields the barriers from panics inside plan generated
// predicate code; a panicking lane would otherwise strand its group.
func (s *Scanner) qualify(ctx context.Context, src *DataStore, row uint32) (status QualStatus, err error) {
	if s.qual == nil {
		return QualPass, nil
	}
	defer func() {
		if e := recover(); e != nil {
			status, err = QualReject, moerr.ConvertPanicError(ctx, e)
		}
	}()
	return s.qual(ctx, src, row)
}
