package wasmer2

import (
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// ExternKind discriminates an Extern's variant.
type ExternKind byte

const (
	ExternFunc ExternKind = iota
	ExternGlobal
	ExternMemory
	ExternTable
)

// String implements fmt.Stringer.
func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternGlobal:
		return "global"
	case ExternMemory:
		return "memory"
	case ExternTable:
		return "table"
	}
	return "unknown"
}

// Extern is a typed handle to a runtime object, usable both to satisfy an
// import and to hand back an export. Exactly one of the As accessors returns
// non-nil, per Kind.
type Extern struct {
	store *Store
	ev    *wasm.ExternValue
}

// AsExtern converts any runtime object into an import-satisfying value.
func (f *Function) AsExtern() *Extern {
	return &Extern{store: f.store, ev: &wasm.ExternValue{Type: wasm.ExternTypeFunc, Function: f.f}}
}

// AsExtern converts any runtime object into an import-satisfying value.
func (g *Global) AsExtern() *Extern {
	return &Extern{store: g.store, ev: &wasm.ExternValue{Type: wasm.ExternTypeGlobal, Global: g.g}}
}

// AsExtern converts any runtime object into an import-satisfying value.
func (m *Memory) AsExtern() *Extern {
	return &Extern{store: m.store, ev: &wasm.ExternValue{Type: wasm.ExternTypeMemory, Memory: m.m}}
}

// AsExtern converts any runtime object into an import-satisfying value.
func (t *Table) AsExtern() *Extern {
	return &Extern{store: t.store, ev: &wasm.ExternValue{Type: wasm.ExternTypeTable, Table: t.t}}
}

// Kind returns the extern's variant.
func (e *Extern) Kind() ExternKind {
	switch e.ev.Type {
	case wasm.ExternTypeFunc:
		return ExternFunc
	case wasm.ExternTypeGlobal:
		return ExternGlobal
	case wasm.ExternTypeMemory:
		return ExternMemory
	default:
		return ExternTable
	}
}

// AsFunction returns the function handle, or nil when the kind differs.
func (e *Extern) AsFunction() *Function {
	if e.ev.Type != wasm.ExternTypeFunc {
		return nil
	}
	return &Function{store: e.store, f: e.ev.Function}
}

// AsGlobal returns the global handle, or nil when the kind differs.
func (e *Extern) AsGlobal() *Global {
	if e.ev.Type != wasm.ExternTypeGlobal {
		return nil
	}
	return &Global{store: e.store, g: e.ev.Global}
}

// AsMemory returns the memory handle, or nil when the kind differs.
func (e *Extern) AsMemory() *Memory {
	if e.ev.Type != wasm.ExternTypeMemory {
		return nil
	}
	return &Memory{store: e.store, m: e.ev.Memory}
}

// AsTable returns the table handle, or nil when the kind differs.
func (e *Extern) AsTable() *Table {
	if e.ev.Type != wasm.ExternTypeTable {
		return nil
	}
	return &Table{store: e.store, t: e.ev.Table}
}
