package wasmer2

import (
	"fmt"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// ValueKind classifies a Value or a typed slot (parameter, result, global or
// table element).
type ValueKind byte

const (
	// I32 is a 32-bit integer.
	I32 ValueKind = iota
	// I64 is a 64-bit integer.
	I64
	// F32 is a 32-bit floating point number.
	F32
	// F64 is a 64-bit floating point number.
	F64
	// FuncRef is an opaque reference to a function.
	FuncRef
	// ExternRef is an opaque reference to a host value.
	ExternRef
)

// String implements fmt.Stringer.
func (k ValueKind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	}
	return "unknown"
}

// Value is a typed WebAssembly scalar. The zero value is an i32 zero.
type Value struct {
	kind ValueKind
	// raw is the 64-bit ABI representation.
	raw uint64
}

// NewI32 boxes a 32-bit integer.
func NewI32(v int32) Value {
	return Value{kind: I32, raw: wasm.EncodeI32(v)}
}

// NewI64 boxes a 64-bit integer.
func NewI64(v int64) Value {
	return Value{kind: I64, raw: wasm.EncodeI64(v)}
}

// NewF32 boxes a 32-bit float.
func NewF32(v float32) Value {
	return Value{kind: F32, raw: wasm.EncodeF32(v)}
}

// NewF64 boxes a 64-bit float.
func NewF64(v float64) Value {
	return Value{kind: F64, raw: wasm.EncodeF64(v)}
}

// Kind returns the value's type.
func (v Value) Kind() ValueKind {
	return v.kind
}

// I32 returns the boxed 32-bit integer. The kind must be I32.
func (v Value) I32() int32 {
	return int32(uint32(v.raw))
}

// I64 returns the boxed 64-bit integer. The kind must be I64.
func (v Value) I64() int64 {
	return int64(v.raw)
}

// F32 returns the boxed 32-bit float. The kind must be F32.
func (v Value) F32() float32 {
	return wasm.DecodeF32(v.raw)
}

// F64 returns the boxed 64-bit float. The kind must be F64.
func (v Value) F64() float64 {
	return wasm.DecodeF64(v.raw)
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case I32:
		return fmt.Sprintf("%d", v.I32())
	case I64:
		return fmt.Sprintf("%d", v.I64())
	case F32:
		return fmt.Sprintf("%g", v.F32())
	case F64:
		return fmt.Sprintf("%g", v.F64())
	}
	return fmt.Sprintf("%s(%#x)", v.kind, v.raw)
}

// kindToValueType maps the public kind onto the binary-format value type.
func kindToValueType(k ValueKind) wasm.ValueType {
	switch k {
	case I32:
		return wasm.ValueTypeI32
	case I64:
		return wasm.ValueTypeI64
	case F32:
		return wasm.ValueTypeF32
	case F64:
		return wasm.ValueTypeF64
	case FuncRef:
		return wasm.ValueTypeFuncref
	default:
		return wasm.ValueTypeExternref
	}
}

func valueTypeToKind(vt wasm.ValueType) ValueKind {
	switch vt {
	case wasm.ValueTypeI32:
		return I32
	case wasm.ValueTypeI64:
		return I64
	case wasm.ValueTypeF32:
		return F32
	case wasm.ValueTypeF64:
		return F64
	case wasm.ValueTypeFuncref:
		return FuncRef
	default:
		return ExternRef
	}
}

func kindsToValueTypes(kinds []ValueKind) []wasm.ValueType {
	if len(kinds) == 0 {
		return nil
	}
	ret := make([]wasm.ValueType, len(kinds))
	for i, k := range kinds {
		ret[i] = kindToValueType(k)
	}
	return ret
}

func valueTypesToKinds(vts []wasm.ValueType) []ValueKind {
	if len(vts) == 0 {
		return nil
	}
	ret := make([]ValueKind, len(vts))
	for i, vt := range vts {
		ret[i] = valueTypeToKind(vt)
	}
	return ret
}

// boxValue wraps an ABI-encoded result with its declared type.
func boxValue(vt wasm.ValueType, raw uint64) Value {
	return Value{kind: valueTypeToKind(vt), raw: raw}
}
