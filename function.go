package wasmer2

import (
	"context"
	"fmt"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Function is a callable handle: compiled guest code or a host callback, both
// invoked through the same trampoline contract.
type Function struct {
	store *Store
	f     *wasm.FunctionInstance
}

// Type returns the function's signature.
func (f *Function) Type() *FuncType {
	return funcTypeFromWasm(f.f.Type.Type)
}

// Call verifies the arguments' arity and kinds against the declared signature,
// marshals them into the ABI, invokes the function, and unmarshals the
// results. A mismatch is rejected before any guest instruction executes.
//
// Guest faults surface as a *Trap carrying the trap kind, the faulting
// function index and the source byte offset; the instance remains usable
// afterwards. An error returned by a host callback propagates unchanged.
func (f *Function) Call(ctx context.Context, args ...Value) ([]Value, error) {
	ft := f.f.Type.Type
	if len(args) != len(ft.Params) {
		return nil, fmt.Errorf("expected %d arguments, but %d were supplied", len(ft.Params), len(args))
	}
	params := make([]uint64, len(args))
	for i, arg := range args {
		if kindToValueType(arg.Kind()) != ft.Params[i] {
			return nil, fmt.Errorf("argument[%d] is %s, expected %s",
				i, arg.Kind(), valueTypeToKind(ft.Params[i]))
		}
		params[i] = arg.raw
	}

	raw, err := f.store.store.CallFunction(ctx, f.f, params...)
	if err != nil {
		return nil, err
	}

	results := make([]Value, len(ft.Results))
	for i := range results {
		results[i] = boxValue(ft.Results[i], raw[i])
	}
	return results, nil
}
