package wasmer2

import (
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Table is a handle to a growable array of function references.
type Table struct {
	store *Store
	t     *wasm.TableInstance
}

// Size returns the current number of element slots.
func (t *Table) Size() uint32 {
	return t.t.Size()
}

// Grow extends the table by delta uninitialized slots, returning the previous
// size. Exceeding the declared maximum fails with *BoundsError and leaves the
// current size unchanged.
func (t *Table) Grow(delta uint32) (uint32, error) {
	return t.t.Grow(delta, wasm.TableElement{})
}

// Get returns the function at idx, nil for an uninitialized slot, or false
// when idx is out of range.
func (t *Table) Get(idx uint32) (*Function, bool) {
	elem, ok := t.t.Get(idx)
	if !ok {
		return nil, false
	}
	if elem.Func == nil {
		return nil, true
	}
	return &Function{store: t.store, f: elem.Func}, true
}

// Set writes the function at idx, returning false when idx is out of range.
// A nil function clears the slot.
func (t *Table) Set(idx uint32, f *Function) bool {
	var elem wasm.TableElement
	if f != nil {
		elem.Func = f.f
	}
	return t.t.Set(idx, elem)
}
