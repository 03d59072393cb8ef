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
	"context"
	"encoding/binary"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
)

// Serialized tuple layout.  The layout is byte exact: encoding the
// values decoded from a tuple reproduces the identical bytes, which
// the verbatim copy path of the row projector relies on.
//
//	+---------------------+
//	| ncols      uint16   |
//	| flags      uint16   |
//	| null bitmap         |  ceil(ncols/8) bytes, bit i set = column i is NULL
//	+---------------------+
//	| column 0            |  fixed width types: Type.Size bytes, little endian
//	| column 1            |  varlena types: uint32 length + raw bytes
//	|    :                |  NULL columns take no space
//	+---------------------+
const tupleHeaderSize = 4

// TupleSize returns the exact number of bytes EncodeTuple will write.
func TupleSize(cols []Type, vals []Value, nulls []bool) int {
	size := tupleHeaderSize + (len(cols)+7)/8
	for i, t := range cols {
		if nulls[i] {
			continue
		}
		if t.IsVarlen() {
			size += 4 + len(vals[i].Bytes)
		} else {
			size += int(t.Size)
		}
	}
	return size
}

// EncodeTuple serializes one row into dst and returns the bytes
// written.  dst must have at least TupleSize bytes of room.
func EncodeTuple(cols []Type, vals []Value, nulls []bool, dst []byte) int {
	binary.LittleEndian.PutUint16(dst, uint16(len(cols)))
	binary.LittleEndian.PutUint16(dst[2:], 0)
	bmLen := (len(cols) + 7) / 8
	bm := dst[tupleHeaderSize : tupleHeaderSize+bmLen]
	for i := range bm {
		bm[i] = 0
	}
	off := tupleHeaderSize + bmLen
	for i, t := range cols {
		if nulls[i] {
			bm[i/8] |= 1 << (i % 8)
			continue
		}
		if t.IsVarlen() {
			binary.LittleEndian.PutUint32(dst[off:], uint32(len(vals[i].Bytes)))
			off += 4
			off += copy(dst[off:], vals[i].Bytes)
			continue
		}
		v := uint64(vals[i].Fixed)
		for b := int32(0); b < t.Size; b++ {
			dst[off] = byte(v >> (8 * b))
			off++
		}
	}
	return off
}

// DecodeTuple deserializes a tuple payload into vals and nulls, which
// must each hold len(cols) entries.  Byte slices of varlena values
// alias the source buffer.
func DecodeTuple(ctx context.Context, cols []Type, src []byte, vals []Value, nulls []bool) error {
	if len(src) < tupleHeaderSize {
		return moerr.NewShortBuffer(ctx, "tuple header")
	}
	ncols := int(binary.LittleEndian.Uint16(src))
	if ncols != len(cols) {
		return moerr.NewInvalidInput(ctx, "tuple has %d columns, schema has %d", ncols, len(cols))
	}
	bmLen := (ncols + 7) / 8
	if len(src) < tupleHeaderSize+bmLen {
		return moerr.NewShortBuffer(ctx, "tuple null bitmap")
	}
	bm := src[tupleHeaderSize : tupleHeaderSize+bmLen]
	off := tupleHeaderSize + bmLen
	for i, t := range cols {
		if bm[i/8]&(1<<(i%8)) != 0 {
			nulls[i] = true
			vals[i] = Value{}
			continue
		}
		nulls[i] = false
		if t.IsVarlen() {
			if len(src) < off+4 {
				return moerr.NewShortBuffer(ctx, "tuple varlena length")
			}
			n := int(binary.LittleEndian.Uint32(src[off:]))
			off += 4
			if len(src) < off+n {
				return moerr.NewShortBuffer(ctx, "tuple varlena body")
			}
			vals[i] = Value{Bytes: src[off : off+n : off+n]}
			off += n
			continue
		}
		if len(src) < off+int(t.Size) {
			return moerr.NewShortBuffer(ctx, "tuple fixed column")
		}
		var v uint64
		for b := int32(0); b < t.Size; b++ {
			v |= uint64(src[off]) << (8 * b)
			off++
		}
		vals[i] = Value{Fixed: Datum(signExtend(t.Oid, v))}
	}
	return nil
}

// DecodeTupleColumn extracts a single column without materializing
// the whole row.
func DecodeTupleColumn(ctx context.Context, cols []Type, src []byte, col int) (Value, bool, error) {
	if col < 0 || col >= len(cols) {
		return Value{}, false, moerr.NewInvalidArg(ctx, "column index", col)
	}
	if len(src) < tupleHeaderSize {
		return Value{}, false, moerr.NewShortBuffer(ctx, "tuple header")
	}
	ncols := int(binary.LittleEndian.Uint16(src))
	if ncols != len(cols) {
		return Value{}, false, moerr.NewInvalidInput(ctx, "tuple has %d columns, schema has %d", ncols, len(cols))
	}
	bmLen := (ncols + 7) / 8
	bm := src[tupleHeaderSize : tupleHeaderSize+bmLen]
	off := tupleHeaderSize + bmLen
	for i := 0; i < col; i++ {
		if bm[i/8]&(1<<(i%8)) != 0 {
			continue
		}
		if cols[i].IsVarlen() {
			n := int(binary.LittleEndian.Uint32(src[off:]))
			off += 4 + n
		} else {
			off += int(cols[i].Size)
		}
	}
	if bm[col/8]&(1<<(col%8)) != 0 {
		return Value{}, true, nil
	}
	t := cols[col]
	if t.IsVarlen() {
		if len(src) < off+4 {
			return Value{}, false, moerr.NewShortBuffer(ctx, "tuple varlena length")
		}
		n := int(binary.LittleEndian.Uint32(src[off:]))
		off += 4
		if len(src) < off+n {
			return Value{}, false, moerr.NewShortBuffer(ctx, "tuple varlena body")
		}
		return Value{Bytes: src[off : off+n : off+n]}, false, nil
	}
	if len(src) < off+int(t.Size) {
		return Value{}, false, moerr.NewShortBuffer(ctx, "tuple fixed column")
	}
	var v uint64
	for b := int32(0); b < t.Size; b++ {
		v |= uint64(src[off]) << (8 * b)
		off++
	}
	return Value{Fixed: Datum(signExtend(t.Oid, v))}, false, nil
}

func signExtend(oid T, v uint64) uint64 {
	switch oid {
	case T_int8:
		return uint64(int64(int8(v)))
	case T_int16:
		return uint64(int64(int16(v)))
	case T_int32:
		return uint64(int64(int32(v)))
	}
	return v
}
