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

package main

import (
	"context"
	"os"
	"strconv"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/matrixorigin/parscan/pkg/scan"
	"github.com/matrixorigin/simdcsv"
)

// loadCSV parses fname into a freshly sized row store.  Empty fields
// and a literal \N load as NULL.
func loadCSV(ctx context.Context, mp *mpool.MPool, fname string,
	cols []types.Type) (*scan.DataStore, error) {

	f, err := os.Open(fname)
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	defer f.Close()

	reader := simdcsv.NewReaderWithOptions(f, ',', '#', true, true)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	if len(records) == 0 {
		return nil, moerr.NewEmptyRange(ctx, fname)
	}

	ds, err := scan.NewRowStore(mp, cols, uint32(len(records)), storeLength(records, cols))
	if err != nil {
		return nil, err
	}
	vals := make([]types.Value, len(cols))
	nulls := make([]bool, len(cols))
	for ln, record := range records {
		if len(record) != len(cols) {
			ds.Free()
			return nil, moerr.NewInvalidInput(ctx, "line %d has %d fields, schema has %d columns",
				ln+1, len(record), len(cols))
		}
		for c, field := range record {
			if vals[c], nulls[c], err = parseField(ctx, cols[c], field); err != nil {
				ds.Free()
				return nil, moerr.NewInvalidInput(ctx, "line %d column %d: %v", ln+1, c, err)
			}
		}
		if err = ds.Append(ctx, vals, nulls); err != nil {
			ds.Free()
			return nil, err
		}
	}
	return ds, nil
}

// storeLength sizes the arena for the exact row count: offset index
// plus the aligned tupitem of every record.
func storeLength(records [][]string, cols []types.Type) uint32 {
	length := uint32(4 * len(records))
	for _, record := range records {
		rowLen := uint32(4 + (len(cols)+7)/8)
		for c, t := range cols {
			if t.IsVarlen() {
				rowLen += 4 + uint32(len(record[c]))
			} else {
				rowLen += uint32(t.Size)
			}
		}
		// tupitem header plus 8 byte alignment
		length += (4 + rowLen + 7) &^ 7
	}
	return length
}

func parseField(ctx context.Context, t types.Type, field string) (types.Value, bool, error) {
	if field == "" || field == "\\N" {
		return types.Value{}, true, nil
	}
	switch t.Oid {
	case types.T_bool:
		v, err := strconv.ParseBool(field)
		if err != nil {
			return types.Value{}, false, moerr.ConvertGoError(ctx, err)
		}
		return types.NewBoolValue(v), false, nil
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64:
		v, err := strconv.ParseInt(field, 10, 8*int(t.Size))
		if err != nil {
			return types.Value{}, false, moerr.ConvertGoError(ctx, err)
		}
		return types.NewInt64Value(v), false, nil
	case types.T_uint8, types.T_uint16, types.T_uint32, types.T_uint64:
		v, err := strconv.ParseUint(field, 10, 8*int(t.Size))
		if err != nil {
			return types.Value{}, false, moerr.ConvertGoError(ctx, err)
		}
		return types.NewUint64Value(v), false, nil
	case types.T_float32:
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return types.Value{}, false, moerr.ConvertGoError(ctx, err)
		}
		return types.NewFloat32Value(float32(v)), false, nil
	case types.T_float64:
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return types.Value{}, false, moerr.ConvertGoError(ctx, err)
		}
		return types.NewFloat64Value(v), false, nil
	case types.T_char, types.T_varchar:
		return types.NewStringValue(field), false, nil
	}
	return types.Value{}, false, moerr.NewNotSupported(ctx, "column type %s", t)
}
