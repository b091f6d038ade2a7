package wasm

import "context"

// Backend is the capability every compiler implementation must satisfy: given
// a validated module, produce a loadable Artifact or fail with a
// *CompilationError. Implementations must be deterministic for a given module
// and configuration, and must reject shapes they cannot lower rather than
// generate unsafe code.
//
// Backends are interchangeable: the engine and all downstream components
// depend only on this contract, and swapping backends never changes a
// program's observable semantics.
type Backend interface {
	// Name identifies the backend in errors and logs.
	Name() string

	// Compile lowers every function body in the module. The inputs must have
	// passed Module.Validate.
	Compile(m *Module, enabledFeatures Features) (Artifact, error)
}

// Artifact is the compiled form of one (module, backend) pair. It is immutable
// once built and may be shared by any number of instances; the engine keeps it
// resident for as long as any instance references it.
type Artifact interface {
	// BackendName returns the name of the backend that produced this artifact.
	BackendName() string

	// FunctionCount returns how many module-defined functions were compiled.
	FunctionCount() uint32

	// Call invokes the function instance f, which must belong to mod, with
	// params in the 64-bit ABI representation. Guest faults surface as *Trap;
	// the instance remains usable afterwards.
	Call(ctx context.Context, mod *ModuleInstance, f *FunctionInstance, params []uint64) ([]uint64, error)
}
