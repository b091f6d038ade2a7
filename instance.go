package wasmer2

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Instance is the live, linked realization of a Module bound to concrete
// imports. Instantiation is all-or-nothing: on any *LinkError no instance
// exists and the store is unchanged.
type Instance struct {
	store    *Store
	instance *wasm.ModuleInstance
}

// NewInstance links the module's declared imports against the supplied externs
// one-to-one by position, allocates its defined objects in the store, applies
// segment initializers and runs the start function if one is declared.
//
// Count, kind or type mismatches fail with a *LinkError identifying the
// offending import index and the expected vs. actual type.
func NewInstance(store *Store, module *Module, imports []*Extern) (*Instance, error) {
	return NewInstanceWithContext(context.Background(), store, module, imports)
}

// NewInstanceWithContext is NewInstance with the context passed to the start
// function, if any.
func NewInstanceWithContext(ctx context.Context, store *Store, module *Module, imports []*Extern) (*Instance, error) {
	if module.engine != store.engine {
		return nil, fmt.Errorf("module was compiled by a different engine")
	}
	evs := make([]*wasm.ExternValue, len(imports))
	for i, imp := range imports {
		if imp != nil {
			evs[i] = imp.ev
		}
	}
	mi, err := store.store.Instantiate(ctx, module.module, module.artifact, evs)
	if err != nil {
		return nil, err
	}
	store.engine.logger.Debug("instantiated module",
		zap.String("backend", module.artifact.BackendName()),
		zap.Int("functions", len(mi.Functions)))
	return &Instance{store: store, instance: mi}, nil
}

// Exports returns the name-indexed export surface. Names are matched exactly,
// case-sensitive.
func (i *Instance) Exports() []string {
	names := make([]string, 0, len(i.instance.Exports))
	for name := range i.instance.Exports {
		names = append(names, name)
	}
	return names
}

// GetExport returns the export of the given name regardless of kind, or an
// error when the name is unknown.
func (i *Instance) GetExport(name string) (*Extern, error) {
	ev, ok := i.instance.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported", name)
	}
	return &Extern{store: i.store, ev: ev}, nil
}

// GetFunction returns the exported function of the given name, or an error on
// an unknown name or a kind mismatch.
func (i *Instance) GetFunction(name string) (*Function, error) {
	ev, err := i.instance.GetExport(name, wasm.ExternTypeFunc)
	if err != nil {
		return nil, err
	}
	return &Function{store: i.store, f: ev.Function}, nil
}

// GetGlobal returns the exported global of the given name, or an error on an
// unknown name or a kind mismatch.
func (i *Instance) GetGlobal(name string) (*Global, error) {
	ev, err := i.instance.GetExport(name, wasm.ExternTypeGlobal)
	if err != nil {
		return nil, err
	}
	return &Global{store: i.store, g: ev.Global}, nil
}

// GetMemory returns the exported memory of the given name, or an error on an
// unknown name or a kind mismatch.
func (i *Instance) GetMemory(name string) (*Memory, error) {
	ev, err := i.instance.GetExport(name, wasm.ExternTypeMemory)
	if err != nil {
		return nil, err
	}
	return &Memory{store: i.store, m: ev.Memory}, nil
}

// GetTable returns the exported table of the given name, or an error on an
// unknown name or a kind mismatch.
func (i *Instance) GetTable(name string) (*Table, error) {
	ev, err := i.instance.GetExport(name, wasm.ExternTypeTable)
	if err != nil {
		return nil, err
	}
	return &Table{store: i.store, t: ev.Table}, nil
}
