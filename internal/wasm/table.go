package wasm

// TableInstance represents a table of reference elements in a store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	// Elements are the element slots. For a funcref table, an element with a
	// nil Func is uninitialized and traps on call_indirect.
	Elements []TableElement

	// ElemType is ValueTypeFuncref or ValueTypeExternref.
	ElemType ValueType
	Min      uint32
	Max      *uint32

	store *Store
}

// TableElement is one slot of a table.
type TableElement struct {
	// Func is the target function when the table's element type is funcref.
	Func *FunctionInstance
	// Ref is an opaque host reference when the element type is externref.
	Ref uint64
}

// NewTableInstance allocates the element slots for a TableType.
func NewTableInstance(tableType *TableType) *TableInstance {
	return &TableInstance{
		Elements: make([]TableElement, tableType.Min),
		ElemType: tableType.ElemType,
		Min:      tableType.Min,
		Max:      tableType.Max,
	}
}

// Size returns the current number of element slots.
func (t *TableInstance) Size() uint32 {
	return uint32(len(t.Elements))
}

// Grow extends the table by delta slots initialized to init, returning the
// previous size. Exceeding the declared maximum fails with *BoundsError and
// leaves the current size unchanged.
func (t *TableInstance) Grow(delta uint32, init TableElement) (uint32, error) {
	currentLen := t.Size()
	if delta == 0 {
		return currentLen, nil
	}
	if t.Max != nil {
		if newLen := uint64(currentLen) + uint64(delta); newLen > uint64(*t.Max) {
			return 0, &BoundsError{Kind: ExternTypeTable, Current: currentLen, Delta: delta, Max: *t.Max}
		}
	}
	for i := uint32(0); i < delta; i++ {
		t.Elements = append(t.Elements, init)
	}
	return currentLen, nil
}

// Get returns the element at idx, or false when idx is out of range.
func (t *TableInstance) Get(idx uint32) (TableElement, bool) {
	if idx >= t.Size() {
		return TableElement{}, false
	}
	return t.Elements[idx], true
}

// Set writes the element at idx, or returns false when idx is out of range.
func (t *TableInstance) Set(idx uint32, elem TableElement) bool {
	if idx >= t.Size() {
		return false
	}
	t.Elements[idx] = elem
	return true
}

// satisfies returns true if this table's element type matches and its bounds
// are at least as permissive as the required import type.
func (t *TableInstance) satisfies(required *TableType) bool {
	if t.ElemType != required.ElemType {
		return false
	}
	if t.Size() < required.Min {
		return false
	}
	if required.Max != nil && (t.Max == nil || *t.Max > *required.Max) {
		return false
	}
	return true
}
