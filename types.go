package wasmer2

import (
	"strings"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// FuncType describes a function signature. Two signatures match iff both
// sequences are equal element-wise.
type FuncType struct {
	Params  []ValueKind
	Results []ValueKind
}

// String implements fmt.Stringer, e.g. "(i32,i32)->(i32)".
func (t *FuncType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")->(")
	for i, r := range t.Results {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (t *FuncType) toWasm() *wasm.FunctionType {
	return &wasm.FunctionType{
		Params:  kindsToValueTypes(t.Params),
		Results: kindsToValueTypes(t.Results),
	}
}

func funcTypeFromWasm(ft *wasm.FunctionType) *FuncType {
	return &FuncType{
		Params:  valueTypesToKinds(ft.Params),
		Results: valueTypesToKinds(ft.Results),
	}
}

// GlobalType pairs a value kind with its mutability. Immutable globals reject
// all post-initialization writes.
type GlobalType struct {
	Kind    ValueKind
	Mutable bool
}

// String implements fmt.Stringer, e.g. "var f32".
func (t *GlobalType) String() string {
	if t.Mutable {
		return "var " + t.Kind.String()
	}
	return "const " + t.Kind.String()
}

func (t *GlobalType) toWasm() *wasm.GlobalType {
	return &wasm.GlobalType{ValType: kindToValueType(t.Kind), Mutable: t.Mutable}
}

// Limits bound a memory (in pages of 65536 bytes) or a table (in elements).
// A nil Max means unbounded up to the engine's addressable range.
type Limits struct {
	Min uint32
	Max *uint32
}

// MemoryPageSize is the unit of memory length in WebAssembly, 65536 bytes.
const MemoryPageSize = wasm.MemoryPageSize
