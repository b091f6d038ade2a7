package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableInstance_getSet(t *testing.T) {
	tbl := NewTableInstance(&TableType{ElemType: ValueTypeFuncref, Min: 2})
	require.Equal(t, uint32(2), tbl.Size())

	f := &FunctionInstance{}
	require.True(t, tbl.Set(1, TableElement{Func: f}))
	elem, ok := tbl.Get(1)
	require.True(t, ok)
	require.Same(t, f, elem.Func)

	// Slot 0 is uninitialized.
	elem, ok = tbl.Get(0)
	require.True(t, ok)
	require.Nil(t, elem.Func)

	_, ok = tbl.Get(2)
	require.False(t, ok)
	require.False(t, tbl.Set(2, TableElement{}))
}

func TestTableInstance_Grow(t *testing.T) {
	max := uint32(4)
	tbl := NewTableInstance(&TableType{ElemType: ValueTypeFuncref, Min: 1, Max: &max})

	f := &FunctionInstance{}
	prev, err := tbl.Grow(2, TableElement{Func: f})
	require.NoError(t, err)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(3), tbl.Size())
	elem, _ := tbl.Get(2)
	require.Same(t, f, elem.Func)

	_, err = tbl.Grow(2, TableElement{})
	var be *BoundsError
	require.ErrorAs(t, err, &be)
	require.Equal(t, ExternTypeTable, be.Kind)
	require.Equal(t, uint32(3), tbl.Size()) // unchanged
}

func TestTableInstance_satisfies(t *testing.T) {
	max := uint32(4)
	tbl := NewTableInstance(&TableType{ElemType: ValueTypeFuncref, Min: 2, Max: &max})

	require.True(t, tbl.satisfies(&TableType{ElemType: ValueTypeFuncref, Min: 1, Max: &max}))
	require.True(t, tbl.satisfies(&TableType{ElemType: ValueTypeFuncref, Min: 2}))

	require.False(t, tbl.satisfies(&TableType{ElemType: ValueTypeExternref, Min: 1}))
	require.False(t, tbl.satisfies(&TableType{ElemType: ValueTypeFuncref, Min: 3}))
	smaller := uint32(3)
	require.False(t, tbl.satisfies(&TableType{ElemType: ValueTypeFuncref, Min: 1, Max: &smaller}))

	unbounded := NewTableInstance(&TableType{ElemType: ValueTypeFuncref, Min: 2})
	require.False(t, unbounded.satisfies(&TableType{ElemType: ValueTypeFuncref, Min: 1, Max: &max}))
}
