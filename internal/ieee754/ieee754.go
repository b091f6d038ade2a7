// Package ieee754 reads and writes the little-endian floating point
// representation used by the WebAssembly binary format.
package ieee754

import (
	"encoding/binary"
	"io"
	"math"
)

// DecodeFloat32 reads a float32 in IEEE 754 binary32 little-endian format.
func DecodeFloat32(r io.Reader) (float32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// DecodeFloat64 reads a float64 in IEEE 754 binary64 little-endian format.
func DecodeFloat64(r io.Reader) (float64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// EncodeFloat32 appends v in IEEE 754 binary32 little-endian format.
func EncodeFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

// EncodeFloat64 appends v in IEEE 754 binary64 little-endian format.
func EncodeFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}
