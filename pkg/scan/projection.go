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

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/container/types"
)

// ProjExpr materializes one output column from a source row.
type ProjExpr func(ctx context.Context, src *DataStore, row uint32) (types.Value, bool, error)

// Projection is the per query plan column transform configuration,
// resolved once before the invocation.  A nil *Projection means the
// destination layout is compatible with the source and rows are
// copied (row format) or deformed (slot format) verbatim.
type Projection struct {
	Cols  []types.Type
	Exprs []ProjExpr
}

// evalRow runs every expression for one row.  Expressions come from
// plan generated code; a panic there is demoted to an error so the
// lane keeps participating in its group's collective calls.
func (p *Projection) evalRow(ctx context.Context, src *DataStore, row uint32, vals []types.Value, nulls []bool) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = moerr.ConvertPanicError(ctx, e)
		}
	}()
	for i, expr := range p.Exprs {
		v, isnull, err := expr(ctx, src, row)
		if err != nil {
			return err
		}
		vals[i], nulls[i] = v, isnull
	}
	return nil
}

// NewColumnProjection builds the common projection that retains a
// subset of source columns in the given order.
func NewColumnProjection(srcCols []types.Type, pick []int) *Projection {
	p := &Projection{
		Cols:  make([]types.Type, len(pick)),
		Exprs: make([]ProjExpr, len(pick)),
	}
	for i, c := range pick {
		c := c
		p.Cols[i] = srcCols[c]
		p.Exprs[i] = func(ctx context.Context, src *DataStore, row uint32) (types.Value, bool, error) {
			return src.ColumnValue(ctx, row, c)
		}
	}
	return p
}
