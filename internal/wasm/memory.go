package wasm

import (
	"encoding/binary"
	"math"
)

// MemoryInstance represents a memory instance in a store.
//
// The buffer never moves retroactively out from under a granted view: Grow
// replaces Buffer, and concurrent access during a grow is the host's
// synchronization responsibility unless the type is declared shared.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	// Max is the declared maximum in pages, defaulting to MemoryLimitPages when
	// the type had none.
	Max    uint32
	Shared bool

	store *Store
}

// NewMemoryInstance allocates the backing buffer for a MemoryType.
func NewMemoryInstance(memType *MemoryType) *MemoryInstance {
	max := MemoryLimitPages
	if memType.Max != nil {
		max = *memType.Max
	}
	return &MemoryInstance{
		Buffer: make([]byte, MemoryPagesToBytesNum(memType.Min)),
		Min:    memType.Min,
		Max:    max,
		Shared: memType.Shared,
	}
}

// MemoryPagesToBytesNum converts the given pages into the number of bytes contained in the pages.
func MemoryPagesToBytesNum(pages uint32) uint64 {
	return uint64(pages) << MemoryPageSizeInBits
}

// memoryBytesNumToPages converts the given number of bytes into the number of pages.
func memoryBytesNumToPages(bytesNum uint64) uint32 {
	return uint32(bytesNum >> MemoryPageSizeInBits)
}

// Size returns the size in bytes of the backing buffer, always a multiple of MemoryPageSize.
func (m *MemoryInstance) Size() uint32 {
	return uint32(len(m.Buffer))
}

// Pages returns the current size in pages.
func (m *MemoryInstance) Pages() uint32 {
	return memoryBytesNumToPages(uint64(len(m.Buffer)))
}

// Grow extends the buffer by delta pages, returning the previous size in
// pages. Exceeding the declared maximum fails with *BoundsError and leaves the
// current size unchanged.
func (m *MemoryInstance) Grow(delta uint32) (uint32, error) {
	currentPages := m.Pages()
	if delta == 0 {
		return currentPages, nil
	}
	if newPages := uint64(currentPages) + uint64(delta); newPages > uint64(m.Max) {
		return 0, &BoundsError{Kind: ExternTypeMemory, Current: currentPages, Delta: delta, Max: m.Max}
	}
	m.Buffer = append(m.Buffer, make([]byte, MemoryPagesToBytesNum(delta))...)
	return currentPages, nil
}

// hasSize returns true if the buffer is large enough for sizeInBytes at the given offset.
func (m *MemoryInstance) hasSize(offset uint32, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= uint64(len(m.Buffer)) // uint64 prevents overflow on add
}

// ReadByte reads a single byte, returning false on an out-of-range offset.
func (m *MemoryInstance) ReadByte(offset uint32) (byte, bool) {
	if !m.hasSize(offset, 1) {
		return 0, false
	}
	return m.Buffer[offset], true
}

// ReadUint16Le reads a uint16 in little-endian encoding.
func (m *MemoryInstance) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.hasSize(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.Buffer[offset : offset+2]), true
}

// ReadUint32Le reads a uint32 in little-endian encoding.
func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasSize(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset : offset+4]), true
}

// ReadUint64Le reads a uint64 in little-endian encoding.
func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasSize(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset : offset+8]), true
}

// ReadFloat32Le reads a float32 in IEEE 754 little-endian encoding.
func (m *MemoryInstance) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

// ReadFloat64Le reads a float64 in IEEE 754 little-endian encoding.
func (m *MemoryInstance) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

// Read returns a view over the buffer or false if the range is out of bounds.
// The returned slice aliases the buffer until the next Grow.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.hasSize(offset, byteCount) {
		return nil, false
	}
	return m.Buffer[offset : offset+byteCount : offset+byteCount], true
}

// WriteByte writes a single byte, returning false on an out-of-range offset.
func (m *MemoryInstance) WriteByte(offset uint32, v byte) bool {
	if !m.hasSize(offset, 1) {
		return false
	}
	m.Buffer[offset] = v
	return true
}

// WriteUint16Le writes a uint16 in little-endian encoding.
func (m *MemoryInstance) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.hasSize(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.Buffer[offset:], v)
	return true
}

// WriteUint32Le writes a uint32 in little-endian encoding.
func (m *MemoryInstance) WriteUint32Le(offset uint32, v uint32) bool {
	if !m.hasSize(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

// WriteUint64Le writes a uint64 in little-endian encoding.
func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasSize(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// WriteFloat32Le writes a float32 in IEEE 754 little-endian encoding.
func (m *MemoryInstance) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

// WriteFloat64Le writes a float64 in IEEE 754 little-endian encoding.
func (m *MemoryInstance) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

// Write copies data into the buffer, returning false if the range is out of bounds.
func (m *MemoryInstance) Write(offset uint32, data []byte) bool {
	if !m.hasSize(offset, uint32(len(data))) {
		return false
	}
	copy(m.Buffer[offset:], data)
	return true
}

// satisfies returns true if this memory's bounds are at least as permissive as
// the required import type.
func (m *MemoryInstance) satisfies(required *MemoryType) bool {
	if m.Pages() < required.Min {
		return false
	}
	if required.Max != nil && m.Max > *required.Max {
		return false
	}
	if required.Shared != m.Shared {
		return false
	}
	return true
}
