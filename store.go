package wasmer2

import (
	"context"
	"fmt"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// Store is the allocation arena and identity domain for runtime objects:
// functions, globals, memories and tables, whether created by instantiation
// or by the host constructors below. Handles are scoped to one store and are
// rejected by any other.
//
// A Store is not safe for concurrent use: give each goroutine its own store,
// or synchronize at the host level.
type Store struct {
	engine *Engine
	store  *wasm.Store
}

// NewStore returns an empty store bound to the engine's feature set.
func NewStore(engine *Engine) *Store {
	return &Store{engine: engine, store: wasm.NewStore(engine.features)}
}

// NewFunction creates a host function usable as an import. The callback
// receives arguments already verified against funcType, and its results are
// verified on return. Returning an error aborts the in-flight guest call and
// surfaces at the call boundary unchanged, not as a trap.
func NewFunction(store *Store, funcType *FuncType, fn func(ctx context.Context, args []Value) ([]Value, error)) (*Function, error) {
	if fn == nil {
		return nil, fmt.Errorf("host callback is nil")
	}
	ft := funcType.toWasm()
	f, err := store.store.NewHostFunction(ft, func(ctx context.Context, params []uint64) ([]uint64, error) {
		args := make([]Value, len(params))
		for i, p := range params {
			args[i] = boxValue(ft.Params[i], p)
		}
		results, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		if len(results) != len(ft.Results) {
			return nil, fmt.Errorf("host function returned %d results, expected %d", len(results), len(ft.Results))
		}
		raw := make([]uint64, len(results))
		for i, r := range results {
			if kindToValueType(r.Kind()) != ft.Results[i] {
				return nil, fmt.Errorf("host function result[%d] is %s, expected %s",
					i, r.Kind(), wasm.ValueTypeName(ft.Results[i]))
			}
			raw[i] = r.raw
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return &Function{store: store, f: f}, nil
}

// NewGlobal creates a host global usable as an import, initialized to val.
// The value's kind must match the declared type.
func NewGlobal(store *Store, globalType *GlobalType, val Value) (*Global, error) {
	if val.Kind() != globalType.Kind {
		return nil, fmt.Errorf("initial value is %s, expected %s", val.Kind(), globalType.Kind)
	}
	g := store.store.NewGlobal(globalType.toWasm(), val.raw)
	return &Global{store: store, g: g}, nil
}

// NewMemory creates a host memory usable as an import, sized to limits.Min pages.
func NewMemory(store *Store, limits Limits) (*Memory, error) {
	m, err := store.store.NewMemory(&wasm.MemoryType{Min: limits.Min, Max: limits.Max})
	if err != nil {
		return nil, err
	}
	return &Memory{store: store, m: m}, nil
}

// NewTable creates a host funcref table usable as an import, with limits.Min
// uninitialized slots.
func NewTable(store *Store, limits Limits) (*Table, error) {
	t, err := store.store.NewTable(&wasm.TableType{ElemType: wasm.ValueTypeFuncref, Min: limits.Min, Max: limits.Max})
	if err != nil {
		return nil, err
	}
	return &Table{store: store, t: t}, nil
}
