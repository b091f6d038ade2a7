// Package backend provides the compiler implementations selectable on an
// engine. All of them lower function bodies through the ir package and share
// one execution core, differing only in the optimizations applied during
// lowering, so swapping backends never changes observable results.
package backend

import (
	"github.com/utnet-org/wasmer2/internal/ir"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

const (
	// NameBaseline identifies the backend that lowers bodies as-is,
	// favoring compilation speed.
	NameBaseline = "baseline"
	// NameOptimizingA identifies the backend that additionally folds
	// constant expressions at compile time.
	NameOptimizingA = "optimizing-a"
	// NameOptimizingB identifies the backend that folds constants and
	// strength-reduces multiplication, division and remainder by constant
	// powers of two.
	NameOptimizingB = "optimizing-b"
)

type compiler struct {
	name string
	opts ir.Options
}

// NewBaseline returns the fastest-compiling backend.
func NewBaseline() wasm.Backend {
	return &compiler{name: NameBaseline}
}

// NewOptimizingA returns the constant-folding backend.
func NewOptimizingA() wasm.Backend {
	return &compiler{name: NameOptimizingA, opts: ir.Options{FoldConstants: true}}
}

// NewOptimizingB returns the most aggressive backend.
func NewOptimizingB() wasm.Backend {
	return &compiler{name: NameOptimizingB, opts: ir.Options{FoldConstants: true, StrengthReduce: true}}
}

// Name implements wasm.Backend.
func (c *compiler) Name() string { return c.name }

// Compile implements wasm.Backend.
func (c *compiler) Compile(m *wasm.Module, enabledFeatures wasm.Features) (wasm.Artifact, error) {
	importCount := m.ImportFuncCount()
	codes := make([]*ir.Code, len(m.CodeSection))
	for i := range m.CodeSection {
		code, err := ir.Lower(m, i, enabledFeatures, c.opts)
		if err != nil {
			return nil, &wasm.CompilationError{
				Backend:       c.name,
				FunctionIndex: int(importCount) + i,
				Message:       err.Error(),
			}
		}
		codes[i] = code
	}
	return &artifact{backendName: c.name, importCount: importCount, codes: codes}, nil
}
