package wasmer2

import (
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Memory is a handle to a growable linear memory. Its backing buffer may be
// replaced by a grow; do not read through a stale view concurrently with a
// grow unless the memory was declared shared.
type Memory struct {
	store *Store
	m     *wasm.MemoryInstance
}

// Size returns the current size in bytes, always a multiple of MemoryPageSize.
func (m *Memory) Size() uint32 {
	return m.m.Size()
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return m.m.Pages()
}

// Grow extends the memory by delta pages, returning the previous size in
// pages. Exceeding the declared maximum fails with *BoundsError and leaves the
// current size unchanged; after a successful grow, accesses up to the new size
// succeed.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	return m.m.Grow(delta)
}

// Read returns a copy of byteCount bytes at offset, or false if the range is
// out of bounds.
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	view, ok := m.m.Read(offset, byteCount)
	if !ok {
		return nil, false
	}
	ret := make([]byte, len(view))
	copy(ret, view)
	return ret, true
}

// Write copies data into the memory at offset, returning false if the range is
// out of bounds.
func (m *Memory) Write(offset uint32, data []byte) bool {
	return m.m.Write(offset, data)
}

// ReadUint32Le reads a uint32 in little-endian encoding, or false if out of bounds.
func (m *Memory) ReadUint32Le(offset uint32) (uint32, bool) {
	return m.m.ReadUint32Le(offset)
}

// WriteUint32Le writes a uint32 in little-endian encoding, or false if out of bounds.
func (m *Memory) WriteUint32Le(offset uint32, v uint32) bool {
	return m.m.WriteUint32Le(offset, v)
}
