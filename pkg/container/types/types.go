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

package types

import (
	"fmt"
	"math"
)

type T uint8

const (
	T_any T = iota
	T_bool
	T_int8
	T_int16
	T_int32
	T_int64
	T_uint8
	T_uint16
	T_uint32
	T_uint64
	T_float32
	T_float64
	T_char
	T_varchar
)

// Type describes one column.  Size is the fixed byte width of the
// column's values, or -1 for variable length types.
type Type struct {
	Oid   T
	Size  int32
	Width int32
}

// Datum is the 8 byte fixed representation held in slot format
// stores.  For variable length columns it is an offset into the
// store's extra arena.
type Datum uint64

// Value carries one column value through predicate and projection
// evaluation.  Fixed types live in Fixed; variable length types in
// Bytes with Fixed unused.
type Value struct {
	Fixed Datum
	Bytes []byte
}

func New(oid T) Type {
	return Type{Oid: oid, Size: oid.FixedLength()}
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_uint8:
		return "TINYINT UNSIGNED"
	case T_uint16:
		return "SMALLINT UNSIGNED"
	case T_uint32:
		return "INT UNSIGNED"
	case T_uint64:
		return "BIGINT UNSIGNED"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	case T_char:
		return "CHAR"
	case T_varchar:
		return "VARCHAR"
	}
	return fmt.Sprintf("unexpected type tag %d", t)
}

// FixedLength returns the byte width of the type, -1 for varlena.
func (t T) FixedLength() int32 {
	switch t {
	case T_bool, T_int8, T_uint8:
		return 1
	case T_int16, T_uint16:
		return 2
	case T_int32, T_uint32, T_float32:
		return 4
	case T_int64, T_uint64, T_float64:
		return 8
	case T_char, T_varchar:
		return -1
	}
	panic(fmt.Sprintf("unknown type tag %d", t))
}

func (t Type) IsVarlen() bool {
	return t.Size < 0
}

func (t Type) String() string {
	return t.Oid.String()
}

func NewBoolValue(v bool) Value {
	if v {
		return Value{Fixed: 1}
	}
	return Value{Fixed: 0}
}

func NewInt64Value(v int64) Value {
	return Value{Fixed: Datum(uint64(v))}
}

func NewUint64Value(v uint64) Value {
	return Value{Fixed: Datum(v)}
}

func NewFloat64Value(v float64) Value {
	return Value{Fixed: Datum(math.Float64bits(v))}
}

func NewFloat32Value(v float32) Value {
	return Value{Fixed: Datum(math.Float32bits(v))}
}

func NewBytesValue(v []byte) Value {
	return Value{Bytes: v}
}

func NewStringValue(v string) Value {
	return Value{Bytes: []byte(v)}
}

func (v Value) Bool() bool {
	return v.Fixed != 0
}

func (v Value) Int64() int64 {
	return int64(uint64(v.Fixed))
}

func (v Value) Uint64() uint64 {
	return uint64(v.Fixed)
}

func (v Value) Float64() float64 {
	return math.Float64frombits(uint64(v.Fixed))
}

func (v Value) Float32() float32 {
	return math.Float32frombits(uint32(v.Fixed))
}

func (v Value) String() string {
	return string(v.Bytes)
}
