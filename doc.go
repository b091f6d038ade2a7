// Package wasmer2 is a WebAssembly execution engine: it compiles WebAssembly
// 1.0 (20191205) binary modules through a swappable compiler backend, links
// them against host-supplied imports, and runs them with full trap isolation.
//
// The shortest path from bytes to a result:
//
//	engine, _ := wasmer2.NewEngine(wasmer2.NewConfig())
//	module, _ := wasmer2.CompileModule(engine, wasmBytes)
//	store := wasmer2.NewStore(engine)
//	instance, _ := wasmer2.NewInstance(store, module, nil)
//	sum, _ := instance.GetFunction("sum")
//	results, _ := sum.Call(ctx, wasmer2.NewI32(1), wasmer2.NewI32(2))
//
// Modules are immutable once compiled and may be instantiated any number of
// times, in any store of the same engine. Stores are not safe for concurrent
// use; give each goroutine its own store or synchronize at the host level.
package wasmer2
