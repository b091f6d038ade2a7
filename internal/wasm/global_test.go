package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalInstance_SetVal(t *testing.T) {
	g := &GlobalInstance{Type: &GlobalType{ValType: ValueTypeI64, Mutable: true}, Val: 1}
	require.NoError(t, g.SetVal(2))
	require.Equal(t, uint64(2), g.Val)
}

func TestGlobalInstance_SetVal_immutable(t *testing.T) {
	g := &GlobalInstance{Type: &GlobalType{ValType: ValueTypeF32}, Val: EncodeF32(1.0)}

	err := g.SetVal(EncodeF32(2.0))
	var ie *ImmutabilityError
	require.ErrorAs(t, err, &ie)
	require.EqualError(t, err, "attempted to set an immutable global of type const f32")

	// The stored value is unchanged.
	require.Equal(t, float32(1.0), DecodeF32(g.Val))
}
