package wasmer2

import (
	"fmt"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Global is a handle to a global value cell.
type Global struct {
	store *Store
	g     *wasm.GlobalInstance
}

// Type returns the global's value kind and mutability.
func (g *Global) Type() *GlobalType {
	return &GlobalType{Kind: valueTypeToKind(g.g.Type.ValType), Mutable: g.g.Type.Mutable}
}

// Get reads the current value.
func (g *Global) Get() Value {
	return boxValue(g.g.Type.ValType, g.g.Val)
}

// Set writes the value. Writing to an immutable global fails with
// *ImmutabilityError and leaves the stored value unchanged; a successful
// write is immediately visible to a subsequent Get.
func (g *Global) Set(v Value) error {
	if kindToValueType(v.Kind()) != g.g.Type.ValType {
		return fmt.Errorf("value is %s, expected %s", v.Kind(), valueTypeToKind(g.g.Type.ValType))
	}
	return g.g.SetVal(v.raw)
}
