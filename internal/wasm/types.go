package wasm

import (
	"fmt"
	"math"
	"strings"
)

// Index is a pointer into one of a module's index namespaces (types, functions,
// globals, memories or tables), disambiguated by usage context.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-index
type Index = uint32

// ValueType describes a parameter, result, local or storage cell type.
//
// Note: This is a type alias as it is easier to encode and decode in the binary format.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeV128 is a 128-bit vector.
	ValueTypeV128 ValueType = 0x7b
	// ValueTypeFuncref is an opaque reference to a function.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is an opaque reference to a host value.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the text format name of the given ValueType, or
// "unknown" for an undefined value.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// ExternType classifies imports and exports with their respective types.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the text format field name of the given ExternType.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// FunctionType is a possibly empty function signature.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	Results []ValueType

	// string is cached as it is used both for String and key
	string string
}

// EqualsSignature returns true if the function type has the same parameters and results.
// Two signatures are equal iff both sequences match element-wise.
func (t *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return valueTypesEqual(t.Params, params) && valueTypesEqual(t.Results, results)
}

func valueTypesEqual(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// key gets or generates the key for Store.typeIDs. Ex. "i32_v" for one i32 parameter and no results.
func (t *FunctionType) key() string {
	if t.string != "" {
		return t.string
	}
	var sb strings.Builder
	if len(t.Params) == 0 {
		sb.WriteByte('v')
	}
	for _, p := range t.Params {
		sb.WriteString(ValueTypeName(p))
	}
	sb.WriteByte('_')
	if len(t.Results) == 0 {
		sb.WriteByte('v')
	}
	for _, r := range t.Results {
		sb.WriteString(ValueTypeName(r))
	}
	t.string = sb.String()
	return t.string
}

// String implements fmt.Stringer.
func (t *FunctionType) String() string {
	return t.key()
}

// Mutability determines whether a global accepts writes after initialization.
type Mutability = byte

const (
	// MutabilityConst rejects all post-initialization writes.
	MutabilityConst Mutability = 0x00
	// MutabilityVar permits writes through GlobalInstance.SetVal.
	MutabilityVar Mutability = 0x01
)

// GlobalType is a ValueType paired with its mutability.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-types%E2%91%A0
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// String implements fmt.Stringer.
func (g *GlobalType) String() string {
	if g.Mutable {
		return "var " + ValueTypeName(g.ValType)
	}
	return "const " + ValueTypeName(g.ValType)
}

// Equals returns true if the value type and mutability both match.
func (g *GlobalType) Equals(other *GlobalType) bool {
	return g.ValType == other.ValType && g.Mutable == other.Mutable
}

const (
	// MemoryPageSize is the unit of memory length in WebAssembly, defined as 2^16 = 65536.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
	MemoryPageSize = uint32(65536)
	// MemoryLimitPages is the maximum in any memory's limits, defined as 2^16 pages (4GiB).
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
	MemoryLimitPages = uint32(65536)
	// MemoryPageSizeInBits satisfies the relation: "1 << MemoryPageSizeInBits == MemoryPageSize".
	MemoryPageSizeInBits = 16
)

// MemoryType describes the limits of a memory in pages, plus the shared flag of
// the threads proposal.
//
// Invariant: Min <= Max when Max is present; both never exceed MemoryLimitPages.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-types%E2%91%A0
type MemoryType struct {
	Min    uint32
	Max    *uint32
	Shared bool
}

// Validate ensures the limits fall inside the addressable range.
func (m *MemoryType) Validate() error {
	if m.Min > MemoryLimitPages {
		return fmt.Errorf("memory min must be at most 65536 pages (4GiB)")
	}
	if m.Max != nil {
		if *m.Max > MemoryLimitPages {
			return fmt.Errorf("memory max must be at most 65536 pages (4GiB)")
		}
		if m.Min > *m.Max {
			return fmt.Errorf("memory size minimum must not be greater than maximum")
		}
	}
	if m.Shared && m.Max == nil {
		return fmt.Errorf("shared memory requires a maximum size")
	}
	return nil
}

// String implements fmt.Stringer.
func (m *MemoryType) String() string {
	if m.Max == nil {
		return fmt.Sprintf("memory(min=%d)", m.Min)
	}
	return fmt.Sprintf("memory(min=%d,max=%d)", m.Min, *m.Max)
}

// TableType describes the limits and element type of a table.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-types%E2%91%A0
type TableType struct {
	// ElemType is ValueTypeFuncref or ValueTypeExternref.
	ElemType ValueType
	Min      uint32
	Max      *uint32
}

// Validate ensures the element type is a reference type and the bounds are ordered.
func (t *TableType) Validate() error {
	if t.ElemType != ValueTypeFuncref && t.ElemType != ValueTypeExternref {
		return fmt.Errorf("table element type must be funcref or externref")
	}
	if t.Max != nil && t.Min > *t.Max {
		return fmt.Errorf("table size minimum must not be greater than maximum")
	}
	return nil
}

// String implements fmt.Stringer.
func (t *TableType) String() string {
	if t.Max == nil {
		return fmt.Sprintf("table(%s,min=%d)", ValueTypeName(t.ElemType), t.Min)
	}
	return fmt.Sprintf("table(%s,min=%d,max=%d)", ValueTypeName(t.ElemType), t.Min, *t.Max)
}

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 {
	return uint64(uint32(input))
}

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 {
	return uint64(input)
}

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes the input as a float32.
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes the input as a float64.
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}
