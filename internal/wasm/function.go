package wasm

import "context"

// FunctionKind identifies how a function instance is invoked.
type FunctionKind byte

const (
	// FunctionKindWasm is implemented by compiled guest code in an Artifact.
	FunctionKindWasm FunctionKind = iota
	// FunctionKindGo is a host-provided callback.
	FunctionKindGo
)

// GoFunction is the host side of the calling convention: params arrive in the
// 64-bit ABI representation already verified against the declared
// FunctionType, and results are verified on return. Returning an error aborts
// the in-flight guest call and surfaces at the call boundary.
type GoFunction func(ctx context.Context, params []uint64) ([]uint64, error)

// FunctionInstance represents a function instance in a store: either compiled
// guest code or a host callback. Both are invoked through the same trampoline
// contract.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-instances%E2%91%A0
type FunctionInstance struct {
	// Module is the instance that owns this function, nil for host functions.
	Module *ModuleInstance

	// Type couples the signature with its store-scoped TypeID.
	Type *TypeInstance

	Kind FunctionKind

	// GoFunc is set when Kind is FunctionKindGo.
	GoFunc GoFunction

	// Idx is this function's position in its owning module's function index
	// namespace, used by the artifact to locate compiled code and by traps to
	// report a location. Zero for host functions.
	Idx Index

	store *Store
}

// TypeInstance couples a FunctionType with the identifier a store assigned to
// it, used for O(1) signature checks on indirect calls.
type TypeInstance struct {
	Type *FunctionType
	// TypeID is store-scoped: equal IDs imply equal signatures within one store.
	TypeID FunctionTypeID
}

// FunctionTypeID is a store-unique identifier of a FunctionType.
type FunctionTypeID uint32
