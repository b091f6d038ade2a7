package backend

import (
	"context"
	"runtime"

	"github.com/utnet-org/wasmer2/internal/ir"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// artifact is the compiled form of one (module, backend) pair: the lowered
// code of every module-defined function. It holds no instance state, so many
// instances can execute it concurrently from different stores.
type artifact struct {
	backendName string
	// importCount is subtracted from a function's index-space position to
	// locate its code, which covers defined functions only.
	importCount uint32
	codes       []*ir.Code
}

// BackendName implements wasm.Artifact.
func (a *artifact) BackendName() string { return a.backendName }

// FunctionCount implements wasm.Artifact.
func (a *artifact) FunctionCount() uint32 { return uint32(len(a.codes)) }

// trapError carries a runtime fault up the execution stack until the Call
// boundary shapes it into a *wasm.Trap. Using panic here keeps the hot
// execution loop free of error plumbing.
type trapError struct {
	cause         error
	functionIndex wasm.Index
	offset        uint32
}

// Call implements wasm.Artifact.
func (a *artifact) Call(ctx context.Context, mod *wasm.ModuleInstance, f *wasm.FunctionInstance, params []uint64) (results []uint64, err error) {
	defer func() {
		switch v := recover().(type) {
		case nil:
		case trapError:
			err = &wasm.Trap{
				Cause:         v.cause,
				FunctionIndex: v.functionIndex,
				Offset:        uint64(v.offset),
			}
		case runtime.Error:
			panic(v)
		case error:
			// A host callback error or a trap already shaped by a nested
			// artifact; propagate unchanged.
			err = v
		default:
			panic(v)
		}
	}()

	ce := &callEngine{artifact: a, depth: callDepth(ctx)}
	results = ce.invoke(ctx, f, params)
	return
}
