package wasm

import "fmt"

// GlobalInstance represents a global instance in a store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Type *GlobalType
	// Val holds the 64-bit representation of the current value.
	Val uint64

	store *Store
}

// SetVal applies a write after checking mutability. A write to a const global
// fails with *ImmutabilityError and leaves the value unchanged.
func (g *GlobalInstance) SetVal(v uint64) error {
	if !g.Type.Mutable {
		return &ImmutabilityError{Type: g.Type}
	}
	g.Val = v
	return nil
}

// String implements fmt.Stringer.
func (g *GlobalInstance) String() string {
	switch g.Type.ValType {
	case ValueTypeI32, ValueTypeI64:
		return fmt.Sprintf("global(%d)", g.Val)
	case ValueTypeF32:
		return fmt.Sprintf("global(%f)", DecodeF32(g.Val))
	case ValueTypeF64:
		return fmt.Sprintf("global(%f)", DecodeF64(g.Val))
	default:
		return fmt.Sprintf("global(%#x)", g.Val)
	}
}
