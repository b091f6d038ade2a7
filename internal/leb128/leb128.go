// Package leb128 implements the variable-length integer encoding used by the
// WebAssembly binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when an encoded integer does not fit the target type.
var ErrOverflow = errors.New("leb128: integer overflow")

// EncodeUint32 appends v encoded as unsigned LEB128.
func EncodeUint32(dst []byte, v uint32) []byte {
	return EncodeUint64(dst, uint64(v))
}

// EncodeUint64 appends v encoded as unsigned LEB128.
func EncodeUint64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// EncodeInt32 appends v encoded as signed LEB128.
func EncodeInt32(dst []byte, v int32) []byte {
	return EncodeInt64(dst, int64(v))
}

// EncodeInt64 appends v encoded as signed LEB128.
func EncodeInt64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// DecodeUint32 reads an unsigned 32-bit integer, returning how many bytes were consumed.
func DecodeUint32(r io.ByteReader) (ret uint32, num uint64, err error) {
	for shift := 0; shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 28 && b&0xf0 != 0 {
			return 0, 0, ErrOverflow
		}
		ret |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return
}

// DecodeUint64 reads an unsigned 64-bit integer, returning how many bytes were consumed.
func DecodeUint64(r io.ByteReader) (ret uint64, num uint64, err error) {
	for shift := 0; shift < 70; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 63 && b&0xfe != 0 {
			return 0, 0, ErrOverflow
		}
		ret |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return
}

// DecodeInt32 reads a signed 32-bit integer, returning how many bytes were consumed.
func DecodeInt32(r io.ByteReader) (ret int32, num uint64, err error) {
	var shift int
	var b byte
	for shift < 35 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		ret |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 32 && b&0x40 != 0 {
		ret |= ^0 << shift
	}
	return
}

// DecodeInt33AsInt64 reads a signed 33-bit integer used for block types, returning
// how many bytes were consumed.
func DecodeInt33AsInt64(r io.ByteReader) (ret int64, num uint64, err error) {
	var shift int
	var b byte
	for shift < 35 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 33 && b&0x40 != 0 {
		ret |= ^0 << shift
	}
	return
}

// DecodeInt64 reads a signed 64-bit integer, returning how many bytes were consumed.
func DecodeInt64(r io.ByteReader) (ret int64, num uint64, err error) {
	var shift int
	var b byte
	for shift < 70 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		ret |= ^0 << shift
	}
	return
}
