package wasmer2

import (
	"github.com/utnet-org/wasmer2/internal/wasm"
	"github.com/utnet-org/wasmer2/internal/wasm/binary"
)

// Module is a compiled WebAssembly program: decoded, structurally validated
// and lowered by the engine's backend. It is immutable and may be instantiated
// any number of times.
type Module struct {
	engine   *Engine
	module   *wasm.Module
	artifact wasm.Artifact
}

// CompileModule decodes and compiles a WebAssembly 1.0 (20191205) binary.
// Malformed bytes fail with a *ModuleError, an unsupported body with a
// *CompilationError.
func CompileModule(engine *Engine, wasmBytes []byte) (*Module, error) {
	m, err := binary.DecodeModule(wasmBytes)
	if err != nil {
		return nil, err
	}
	if err = m.Validate(engine.features); err != nil {
		return nil, err
	}
	artifact, err := engine.compile(m, wasmBytes)
	if err != nil {
		return nil, err
	}
	return &Module{engine: engine, module: m, artifact: artifact}, nil
}

// ImportTypes returns the module's declared imports in declaration order, as
// "module.name: type" strings, for diagnostics.
func (m *Module) ImportTypes() []string {
	ret := make([]string, len(m.module.ImportSection))
	for i, imp := range m.module.ImportSection {
		ret[i] = imp.Module + "." + imp.Name + ": " + imp.TypeName(m.module)
	}
	return ret
}

// ExportNames returns the module's export names in declaration order.
func (m *Module) ExportNames() []string {
	ret := make([]string, len(m.module.ExportSection))
	for i, exp := range m.module.ExportSection {
		ret[i] = exp.Name
	}
	return ret
}
