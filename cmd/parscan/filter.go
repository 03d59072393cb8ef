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
	"strconv"
	"strings"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/matrixorigin/parscan/pkg/scan"
	"golang.org/x/exp/constraints"
)

// parseFilter compiles "<column> <op> <literal>" into a qualifier.
// NULL never compares true, matching SQL three valued logic.
func parseFilter(ctx context.Context, cols []types.Type, expr string) (scan.Qualifier, error) {
	fields := strings.SplitN(strings.TrimSpace(expr), " ", 3)
	if len(fields) != 3 {
		return nil, moerr.NewInvalidInput(ctx, "filter %q is not \"column op literal\"", expr)
	}
	col, err := strconv.Atoi(fields[0])
	if err != nil || col < 0 || col >= len(cols) {
		return nil, moerr.NewInvalidInput(ctx, "bad filter column %q", fields[0])
	}
	cmp, err := compareFunc(ctx, cols[col], strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, err
	}
	accept, err := acceptFunc(ctx, fields[1])
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, src *scan.DataStore, row uint32) (scan.QualStatus, error) {
		v, isnull, err := src.ColumnValue(ctx, row, col)
		if err != nil {
			return scan.QualReject, err
		}
		if isnull {
			return scan.QualReject, nil
		}
		if accept(cmp(v)) {
			return scan.QualPass, nil
		}
		return scan.QualReject, nil
	}, nil
}

// acceptFunc maps an operator to a predicate over the three way
// comparison result.
func acceptFunc(ctx context.Context, op string) (func(int) bool, error) {
	switch op {
	case "=", "==":
		return func(c int) bool { return c == 0 }, nil
	case "!=", "<>":
		return func(c int) bool { return c != 0 }, nil
	case "<":
		return func(c int) bool { return c < 0 }, nil
	case "<=":
		return func(c int) bool { return c <= 0 }, nil
	case ">":
		return func(c int) bool { return c > 0 }, nil
	case ">=":
		return func(c int) bool { return c >= 0 }, nil
	}
	return nil, moerr.NewInvalidInput(ctx, "unknown filter operator %q", op)
}

// compareFunc parses the literal once and returns the typed three way
// comparison of a column value against it.
func compareFunc(ctx context.Context, t types.Type, literal string) (func(types.Value) int, error) {
	switch t.Oid {
	case types.T_bool:
		want, err := strconv.ParseBool(literal)
		if err != nil {
			return nil, moerr.NewInvalidInput(ctx, "bad bool literal %q", literal)
		}
		return func(v types.Value) int {
			return boolCompare(v.Bool(), want)
		}, nil
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64:
		want, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, moerr.NewInvalidInput(ctx, "bad integer literal %q", literal)
		}
		return func(v types.Value) int {
			return orderedCompare(v.Int64(), want)
		}, nil
	case types.T_uint8, types.T_uint16, types.T_uint32, types.T_uint64:
		want, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return nil, moerr.NewInvalidInput(ctx, "bad unsigned literal %q", literal)
		}
		return func(v types.Value) int {
			return orderedCompare(v.Uint64(), want)
		}, nil
	case types.T_float32, types.T_float64:
		want, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, moerr.NewInvalidInput(ctx, "bad float literal %q", literal)
		}
		if t.Oid == types.T_float32 {
			return func(v types.Value) int {
				return orderedCompare(float64(v.Float32()), want)
			}, nil
		}
		return func(v types.Value) int {
			return orderedCompare(v.Float64(), want)
		}, nil
	case types.T_char, types.T_varchar:
		return func(v types.Value) int {
			return strings.Compare(v.String(), literal)
		}, nil
	}
	return nil, moerr.NewNotSupported(ctx, "filter on column type %s", t)
}

func orderedCompare[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}
