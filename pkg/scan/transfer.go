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
	"encoding/binary"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/pierrec/lz4"
)

// Transfer blobs move result buffers and data stores between
// processes, mirroring the DMA copies of the original device design.
// Layout is a fixed header followed by a payload that may be lz4
// block compressed:
//
//	magic   u32  "PSCN"
//	version u16
//	kind    u8   result buffer or data store
//	flags   u8   bit 0: payload is compressed
//	rawlen  u32  uncompressed payload length
const (
	transferMagic   uint32 = 0x4e435350
	transferVersion uint16 = 1

	blobKindResult uint8 = 1
	blobKindStore  uint8 = 2

	blobFlagLZ4 uint8 = 1 << 0

	transferHeaderSize = 12
)

func sealBlob(kind uint8, payload []byte, compress bool) ([]byte, error) {
	flags := uint8(0)
	body := payload
	if compress && len(payload) > 0 {
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, moerr.ConvertGoError(nil, err)
		}
		// an incompressible payload is shipped raw
		if n > 0 && n < len(payload) {
			body = dst[:n]
			flags |= blobFlagLZ4
		}
	}
	blob := make([]byte, transferHeaderSize+len(body))
	binary.LittleEndian.PutUint32(blob[0:], transferMagic)
	binary.LittleEndian.PutUint16(blob[4:], transferVersion)
	blob[6] = kind
	blob[7] = flags
	binary.LittleEndian.PutUint32(blob[8:], uint32(len(payload)))
	copy(blob[transferHeaderSize:], body)
	return blob, nil
}

func openBlob(ctx context.Context, kind uint8, blob []byte) ([]byte, error) {
	if len(blob) < transferHeaderSize {
		return nil, moerr.NewShortBuffer(ctx, "transfer header")
	}
	if binary.LittleEndian.Uint32(blob[0:]) != transferMagic {
		return nil, moerr.NewBadFormat(ctx, int(binary.LittleEndian.Uint32(blob[0:])))
	}
	if v := binary.LittleEndian.Uint16(blob[4:]); v != transferVersion {
		return nil, moerr.NewNotSupported(ctx, "transfer version %d", v)
	}
	if blob[6] != kind {
		return nil, moerr.NewBadFormat(ctx, int(blob[6]))
	}
	rawLen := binary.LittleEndian.Uint32(blob[8:])
	body := blob[transferHeaderSize:]
	if blob[7]&blobFlagLZ4 == 0 {
		if uint32(len(body)) != rawLen {
			return nil, moerr.NewUnexpectedEOF(ctx, "transfer payload")
		}
		return body, nil
	}
	raw := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, raw)
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	if uint32(n) != rawLen {
		return nil, moerr.NewUnexpectedEOF(ctx, "transfer payload")
	}
	return raw, nil
}

// EncodeResultBuffer serializes a result buffer.
func EncodeResultBuffer(rb *ResultBuffer, compress bool) ([]byte, error) {
	nitems := rb.ItemCount()
	payload := make([]byte, 16+4*nitems)
	binary.LittleEndian.PutUint32(payload[0:], rb.nrels)
	binary.LittleEndian.PutUint32(payload[4:], nitems)
	binary.LittleEndian.PutUint32(payload[8:], rb.nrooms)
	binary.LittleEndian.PutUint32(payload[12:], rb.errcode.Load())
	for i, ri := range rb.Index[:nitems] {
		binary.LittleEndian.PutUint32(payload[16+4*i:], uint32(ri))
	}
	return sealBlob(blobKindResult, payload, compress)
}

// DecodeResultBuffer rebuilds a result buffer from a transfer blob.
func DecodeResultBuffer(ctx context.Context, blob []byte) (*ResultBuffer, error) {
	payload, err := openBlob(ctx, blobKindResult, blob)
	if err != nil {
		return nil, err
	}
	if len(payload) < 16 {
		return nil, moerr.NewShortBuffer(ctx, "result buffer header")
	}
	nitems := binary.LittleEndian.Uint32(payload[4:])
	nrooms := binary.LittleEndian.Uint32(payload[8:])
	if nitems > nrooms || uint32(len(payload)) < 16+4*nitems {
		return nil, moerr.NewUnexpectedEOF(ctx, "result buffer index")
	}
	rb := NewResultBuffer(nrooms)
	rb.nrels = binary.LittleEndian.Uint32(payload[0:])
	rb.nitems.Store(nitems)
	rb.errcode.Store(binary.LittleEndian.Uint32(payload[12:]))
	for i := uint32(0); i < nitems; i++ {
		rb.Index[i] = int32(binary.LittleEndian.Uint32(payload[16+4*i:]))
	}
	return rb, nil
}

// EncodeDataStore serializes a data store of either format.
func EncodeDataStore(ds *DataStore, compress bool) ([]byte, error) {
	ncols := len(ds.cols)
	head := make([]byte, 12+5*ncols)
	head[0] = uint8(ds.format)
	binary.LittleEndian.PutUint16(head[2:], uint16(ncols))
	binary.LittleEndian.PutUint32(head[4:], ds.nrooms)
	binary.LittleEndian.PutUint32(head[8:], ds.nitems.Load())
	for i, t := range ds.cols {
		head[12+5*i] = uint8(t.Oid)
		binary.LittleEndian.PutUint32(head[12+5*i+1:], uint32(t.Width))
	}

	var payload []byte
	switch ds.format {
	case FormatRow:
		a := ds.arena
		payload = make([]byte, len(head)+12+len(a.buf))
		n := copy(payload, head)
		binary.LittleEndian.PutUint32(payload[n:], a.Len())
		binary.LittleEndian.PutUint32(payload[n+4:], a.Front())
		binary.LittleEndian.PutUint32(payload[n+8:], a.Back())
		copy(payload[n+12:], a.buf)
	case FormatSlot:
		n := len(ds.values)
		payload = make([]byte, len(head)+8+8*n+n+len(ds.extra))
		off := copy(payload, head)
		binary.LittleEndian.PutUint32(payload[off:], uint32(len(ds.extra)))
		binary.LittleEndian.PutUint32(payload[off+4:], ds.extraUsed.Load())
		off += 8
		for _, v := range ds.values {
			binary.LittleEndian.PutUint64(payload[off:], uint64(v))
			off += 8
		}
		for _, b := range ds.isnull {
			if b {
				payload[off] = 1
			}
			off++
		}
		copy(payload[off:], ds.extra)
	default:
		return nil, moerr.NewBadFormat(nil, int(ds.format))
	}
	return sealBlob(blobKindStore, payload, compress)
}

// DecodeDataStore rebuilds a data store from a transfer blob,
// allocating its buffers from mp.
func DecodeDataStore(ctx context.Context, mp *mpool.MPool, blob []byte) (*DataStore, error) {
	payload, err := openBlob(ctx, blobKindStore, blob)
	if err != nil {
		return nil, err
	}
	if len(payload) < 12 {
		return nil, moerr.NewShortBuffer(ctx, "data store header")
	}
	format := Format(payload[0])
	ncols := int(binary.LittleEndian.Uint16(payload[2:]))
	nrooms := binary.LittleEndian.Uint32(payload[4:])
	nitems := binary.LittleEndian.Uint32(payload[8:])
	if len(payload) < 12+5*ncols {
		return nil, moerr.NewShortBuffer(ctx, "data store columns")
	}
	cols := make([]types.Type, ncols)
	for i := range cols {
		cols[i] = types.New(types.T(payload[12+5*i]))
		cols[i].Width = int32(binary.LittleEndian.Uint32(payload[12+5*i+1:]))
	}
	body := payload[12+5*ncols:]

	switch format {
	case FormatRow:
		if len(body) < 12 {
			return nil, moerr.NewShortBuffer(ctx, "row store header")
		}
		length := binary.LittleEndian.Uint32(body[0:])
		front := binary.LittleEndian.Uint32(body[4:])
		back := binary.LittleEndian.Uint32(body[8:])
		if uint32(len(body)) < 12+length || front+back > length {
			return nil, moerr.NewUnexpectedEOF(ctx, "row store arena")
		}
		ds, err := NewRowStore(mp, cols, nrooms, length)
		if err != nil {
			return nil, err
		}
		copy(ds.arena.buf, body[12:12+length])
		ds.arena.cur.Store(uint64(front)<<32 | uint64(back))
		ds.nitems.Store(nitems)
		return ds, nil
	case FormatSlot:
		n := int(nrooms) * ncols
		if len(body) < 8 {
			return nil, moerr.NewShortBuffer(ctx, "slot store header")
		}
		extraLen := binary.LittleEndian.Uint32(body[0:])
		extraUsed := binary.LittleEndian.Uint32(body[4:])
		if len(body) < 8+9*n+int(extraLen) || extraUsed > extraLen {
			return nil, moerr.NewUnexpectedEOF(ctx, "slot store body")
		}
		ds, err := NewSlotStore(mp, cols, nrooms, extraLen)
		if err != nil {
			return nil, err
		}
		off := 8
		for i := range ds.values {
			ds.values[i] = types.Datum(binary.LittleEndian.Uint64(body[off:]))
			off += 8
		}
		for i := range ds.isnull {
			ds.isnull[i] = body[off] == 1
			off++
		}
		copy(ds.extra, body[off:off+int(extraLen)])
		ds.extraUsed.Store(extraUsed)
		ds.nitems.Store(nitems)
		return ds, nil
	}
	return nil, moerr.NewBadFormat(ctx, int(format))
}
