package wasm

import (
	"context"
	"fmt"
)

type (
	// Store is the allocation arena and identity domain for all runtime
	// objects across potentially many instances. Objects never move once
	// allocated and are destroyed only when the Store itself is torn down.
	//
	// A Store is not safe for concurrent use: multiple goroutines must each
	// hold their own Store, or guard access with host-level synchronization.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#store%E2%91%A0
	Store struct {
		// EnabledFeatures are read-only to allow optimizations.
		EnabledFeatures Features

		// typeIDs maps each FunctionType.key() to a unique FunctionTypeID, used
		// at runtime for type checks on indirect calls.
		typeIDs map[string]FunctionTypeID

		// maximumFunctionTypes is fixed to 2^27 but is a field for testability.
		maximumFunctionTypes int

		// The following hold every runtime object in this store, in allocation
		// order. The slice index is the object's address, stable for the
		// lifetime of the store.
		functions []*FunctionInstance
		globals   []*GlobalInstance
		memories  []*MemoryInstance
		tables    []*TableInstance

		instances []*ModuleInstance
	}

	// ModuleInstance is the result of linking a module's imports against
	// caller-supplied values and allocating its defined objects in a Store.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
	ModuleInstance struct {
		Module   *Module
		Exports  map[string]*ExternValue
		Functions []*FunctionInstance
		Globals   []*GlobalInstance
		// Memory is set when the module defined or imported a memory.
		Memory *MemoryInstance
		Table  *TableInstance
		Types  []*TypeInstance

		// Artifact is the compiled code this instance executes. Shared with
		// every other instance of the same (module, backend) pair.
		Artifact Artifact

		store *Store
	}

	// ExternValue is a typed handle to a runtime object, used both to satisfy an
	// import and to hand back an export. The discriminant is Type; exactly one
	// of the object fields is set.
	ExternValue struct {
		Type     ExternType
		Function *FunctionInstance
		Global   *GlobalInstance
		Memory   *MemoryInstance
		Table    *TableInstance
	}
)

// The addressable space limit, fixed by convention.
const maximumFunctionTypes = 1 << 27

// NewStore returns an empty store using the given feature set for modules
// instantiated into it.
func NewStore(enabledFeatures Features) *Store {
	return &Store{
		EnabledFeatures:      enabledFeatures,
		typeIDs:              map[string]FunctionTypeID{},
		maximumFunctionTypes: maximumFunctionTypes,
	}
}

// Owner returns the store an extern value belongs to, or nil if it holds no
// object. Handles are not transferable across stores.
func (ev *ExternValue) Owner() *Store {
	switch ev.Type {
	case ExternTypeFunc:
		if ev.Function != nil {
			return ev.Function.store
		}
	case ExternTypeGlobal:
		if ev.Global != nil {
			return ev.Global.store
		}
	case ExternTypeMemory:
		if ev.Memory != nil {
			return ev.Memory.store
		}
	case ExternTypeTable:
		if ev.Table != nil {
			return ev.Table.store
		}
	}
	return nil
}

// TypeName returns the extern's concrete type in text format, for error messages.
func (ev *ExternValue) TypeName() string {
	switch ev.Type {
	case ExternTypeFunc:
		if ev.Function != nil {
			return "func" + ev.Function.Type.Type.String()
		}
	case ExternTypeGlobal:
		if ev.Global != nil {
			return ev.Global.Type.String()
		}
	case ExternTypeMemory:
		if ev.Memory != nil {
			return ev.Memory.typeString()
		}
	case ExternTypeTable:
		if ev.Table != nil {
			return ev.Table.typeString()
		}
	}
	return ExternTypeName(ev.Type)
}

func (m *MemoryInstance) typeString() string {
	return fmt.Sprintf("memory(min=%d,max=%d)", m.Pages(), m.Max)
}

func (t *TableInstance) typeString() string {
	if t.Max == nil {
		return fmt.Sprintf("table(%s,min=%d)", ValueTypeName(t.ElemType), t.Size())
	}
	return fmt.Sprintf("table(%s,min=%d,max=%d)", ValueTypeName(t.ElemType), t.Size(), *t.Max)
}

// Instantiate links the module's imports against the supplied extern values in
// declaration order, allocates its defined objects, applies segment
// initializers, builds the export table, and runs the start function if one is
// declared. artifact must have been produced from the same module.
//
// Any failure returns a *LinkError (or the start function's *Trap) and leaves
// the store as it was: no partially-usable instance is ever returned.
func (s *Store) Instantiate(ctx context.Context, module *Module, artifact Artifact, imports []*ExternValue) (*ModuleInstance, error) {
	importedFunctions, importedGlobals, importedTable, importedMemory, err := s.resolveImports(module, imports)
	if err != nil {
		return nil, err
	}

	types, err := s.getTypeInstances(module.TypeSection)
	if err != nil {
		return nil, err
	}

	instance := &ModuleInstance{Module: module, Types: types, Artifact: artifact, store: s}

	globals, err := buildGlobalInstances(module, importedGlobals)
	if err != nil {
		return nil, err
	}
	functions := instance.buildFunctionInstances(module, types)
	table, memory := buildTableInstance(module, importedTable), buildMemoryInstance(module, importedMemory)

	instance.Functions = append(append([]*FunctionInstance{}, importedFunctions...), functions...)
	instance.Globals = append(append([]*GlobalInstance{}, importedGlobals...), globals...)
	instance.Table, instance.Memory = table, memory

	// Validate before mutating anything observable. An out-of-bounds segment
	// initializer is a link-time failure, not a runtime trap.
	if err = instance.validateElements(module.ElementSection); err != nil {
		return nil, err
	}
	if err = instance.validateData(module.DataSection); err != nil {
		return nil, err
	}

	// All checks passed: persist the new objects and apply the initializers,
	// which may write to imported tables and memories.
	mark := s.mark()
	s.addFunctionInstances(functions...)
	s.addGlobalInstances(globals...)
	if module.ImportTableCount() == 0 {
		s.addTableInstance(table)
	}
	if module.ImportMemoryCount() == 0 {
		s.addMemoryInstance(memory)
	}
	instance.applyElements(module.ElementSection)
	instance.applyData(module.DataSection)
	instance.buildExports(module.ExportSection)
	s.instances = append(s.instances, instance)

	if module.StartSection != nil {
		start := instance.Functions[*module.StartSection]
		if _, err = s.CallFunction(ctx, start); err != nil {
			s.rollback(mark)
			s.instances = s.instances[:len(s.instances)-1]
			return nil, fmt.Errorf("start function failed: %w", err)
		}
	}
	return instance, nil
}

// storeMark records arena lengths so a failed instantiation can release the
// objects it had begun allocating.
type storeMark struct {
	functions, globals, memories, tables int
}

func (s *Store) mark() storeMark {
	return storeMark{len(s.functions), len(s.globals), len(s.memories), len(s.tables)}
}

func (s *Store) rollback(m storeMark) {
	s.functions = s.functions[:m.functions]
	s.globals = s.globals[:m.globals]
	s.memories = s.memories[:m.memories]
	s.tables = s.tables[:m.tables]
}

// resolveImports walks the module's declared imports in declaration order,
// taking the next supplied value and verifying its runtime type matches. On
// mismatch it fails with a *LinkError identifying the offending import index
// and the expected vs. actual type.
func (s *Store) resolveImports(module *Module, imports []*ExternValue) (
	functions []*FunctionInstance, globals []*GlobalInstance,
	table *TableInstance, memory *MemoryInstance, err error,
) {
	if declared, supplied := len(module.ImportSection), len(imports); declared != supplied {
		return nil, nil, nil, nil, &LinkError{
			ImportIndex: -1,
			Message:     fmt.Sprintf("expected %d imports, but %d were supplied", declared, supplied),
		}
	}

	for i, is := range module.ImportSection {
		ev := imports[i]
		if ev == nil {
			return nil, nil, nil, nil, &LinkError{ImportIndex: i, Message: "nil extern supplied"}
		}
		if owner := ev.Owner(); owner != s {
			return nil, nil, nil, nil, &LinkError{ImportIndex: i, Message: "extern belongs to a different store"}
		}
		if ev.Type != is.Type {
			return nil, nil, nil, nil, &LinkError{
				ImportIndex: i,
				Expected:    ExternTypeName(is.Type),
				Actual:      ExternTypeName(ev.Type),
				Message:     "extern kind mismatch",
			}
		}

		switch is.Type {
		case ExternTypeFunc:
			expectedType := module.TypeSection[is.DescFunc]
			f := ev.Function
			if !f.Type.Type.EqualsSignature(expectedType.Params, expectedType.Results) {
				err = &LinkError{
					ImportIndex: i,
					Expected:    "func" + expectedType.String(),
					Actual:      "func" + f.Type.Type.String(),
					Message:     "signature mismatch",
				}
				return
			}
			functions = append(functions, f)
		case ExternTypeGlobal:
			expectedType := is.DescGlobal
			g := ev.Global
			if !g.Type.Equals(expectedType) {
				err = &LinkError{
					ImportIndex: i,
					Expected:    expectedType.String(),
					Actual:      g.Type.String(),
					Message:     "global type mismatch",
				}
				return
			}
			globals = append(globals, g)
		case ExternTypeMemory:
			if !ev.Memory.satisfies(is.DescMem) {
				err = &LinkError{
					ImportIndex: i,
					Expected:    is.DescMem.String(),
					Actual:      ev.Memory.typeString(),
					Message:     "incompatible memory import",
				}
				return
			}
			memory = ev.Memory
		case ExternTypeTable:
			if !ev.Table.satisfies(is.DescTable) {
				err = &LinkError{
					ImportIndex: i,
					Expected:    is.DescTable.String(),
					Actual:      ev.Table.typeString(),
					Message:     "incompatible table import",
				}
				return
			}
			table = ev.Table
		}
	}
	return
}

// buildGlobalInstances evaluates each defined global's initializer, which may
// reference imported or previously-defined globals, never forward references.
func buildGlobalInstances(module *Module, importedGlobals []*GlobalInstance) ([]*GlobalInstance, error) {
	visible := append([]*GlobalInstance{}, importedGlobals...)
	globals := make([]*GlobalInstance, 0, len(module.GlobalSection))
	for i, g := range module.GlobalSection {
		val, valType, err := evaluateConstExpression(visible, g.Init)
		if err != nil {
			return nil, &LinkError{ImportIndex: -1, Message: fmt.Sprintf("global[%d]: %v", i, err)}
		}
		if valType != g.Type.ValType {
			return nil, &LinkError{ImportIndex: -1, Message: fmt.Sprintf(
				"global[%d]: initializer has type %s, expected %s",
				i, ValueTypeName(valType), ValueTypeName(g.Type.ValType))}
		}
		instance := &GlobalInstance{Type: g.Type, Val: val}
		globals = append(globals, instance)
		visible = append(visible, instance)
	}
	return globals, nil
}

func (m *ModuleInstance) buildFunctionInstances(module *Module, types []*TypeInstance) []*FunctionInstance {
	importCount := module.ImportFuncCount()
	functions := make([]*FunctionInstance, 0, len(module.FunctionSection))
	for i, typeIdx := range module.FunctionSection {
		functions = append(functions, &FunctionInstance{
			Module: m,
			Type:   types[typeIdx],
			Kind:   FunctionKindWasm,
			Idx:    importCount + uint32(i),
		})
	}
	return functions
}

func buildTableInstance(module *Module, imported *TableInstance) *TableInstance {
	if imported != nil {
		return imported
	}
	if len(module.TableSection) == 0 {
		return nil
	}
	return NewTableInstance(module.TableSection[0])
}

func buildMemoryInstance(module *Module, imported *MemoryInstance) *MemoryInstance {
	if imported != nil {
		return imported
	}
	if len(module.MemorySection) == 0 {
		return nil
	}
	return NewMemoryInstance(module.MemorySection[0])
}

func (m *ModuleInstance) validateElements(elements []*ElementSegment) error {
	for i, elem := range elements {
		offset, offsetType, err := evaluateConstExpression(m.Globals, elem.OffsetExpr)
		if err != nil {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("element[%d]: %v", i, err)}
		}
		if offsetType != ValueTypeI32 {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("element[%d]: offset must be i32", i)}
		}
		ceil := uint64(uint32(offset)) + uint64(len(elem.Init))
		if m.Table == nil || ceil > uint64(m.Table.Size()) {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("element[%d]: out of bounds table access", i)}
		}
		for _, init := range elem.Init {
			if int(init) >= len(m.Functions) {
				return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("element[%d]: unknown function %d", i, init)}
			}
		}
	}
	return nil
}

func (m *ModuleInstance) applyElements(elements []*ElementSegment) {
	for _, elem := range elements {
		offset, _, _ := evaluateConstExpression(m.Globals, elem.OffsetExpr)
		for i, init := range elem.Init {
			m.Table.Elements[uint32(offset)+uint32(i)] = TableElement{Func: m.Functions[init]}
		}
	}
}

func (m *ModuleInstance) validateData(data []*DataSegment) error {
	for i, d := range data {
		offset, offsetType, err := evaluateConstExpression(m.Globals, d.OffsetExpr)
		if err != nil {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("data[%d]: %v", i, err)}
		}
		if offsetType != ValueTypeI32 {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("data[%d]: offset must be i32", i)}
		}
		ceil := uint64(uint32(offset)) + uint64(len(d.Init))
		if m.Memory == nil || ceil > uint64(m.Memory.Size()) {
			return &LinkError{ImportIndex: -1, Message: fmt.Sprintf("data[%d]: out of bounds memory access", i)}
		}
	}
	return nil
}

func (m *ModuleInstance) applyData(data []*DataSegment) {
	for _, d := range data {
		offset, _, _ := evaluateConstExpression(m.Globals, d.OffsetExpr)
		copy(m.Memory.Buffer[uint32(offset):], d.Init)
	}
}

func (m *ModuleInstance) buildExports(exports []*Export) {
	m.Exports = make(map[string]*ExternValue, len(exports))
	for _, exp := range exports {
		var ev *ExternValue
		switch exp.Type {
		case ExternTypeFunc:
			ev = &ExternValue{Type: exp.Type, Function: m.Functions[exp.Index]}
		case ExternTypeGlobal:
			ev = &ExternValue{Type: exp.Type, Global: m.Globals[exp.Index]}
		case ExternTypeMemory:
			ev = &ExternValue{Type: exp.Type, Memory: m.Memory}
		case ExternTypeTable:
			ev = &ExternValue{Type: exp.Type, Table: m.Table}
		}
		// Duplicates were rejected during validation.
		m.Exports[exp.Name] = ev
	}
}

// GetExport returns the export of the given name and kind, or an error naming
// the mismatch.
func (m *ModuleInstance) GetExport(name string, et ExternType) (*ExternValue, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported", name)
	}
	if exp.Type != et {
		return nil, fmt.Errorf("export %q is a %s, not a %s", name, ExternTypeName(exp.Type), ExternTypeName(et))
	}
	return exp, nil
}

// CallFunction invokes a function instance through the trampoline contract,
// dispatching to the owning artifact or to the host callback. params and
// results use the 64-bit ABI representation; type verification against
// host-typed arguments happens in the public layer before this point.
func (s *Store) CallFunction(ctx context.Context, f *FunctionInstance, params ...uint64) ([]uint64, error) {
	if f.store != s {
		return nil, fmt.Errorf("function belongs to a different store")
	}
	switch f.Kind {
	case FunctionKindGo:
		return f.GoFunc(ctx, params)
	default:
		return f.Module.Artifact.Call(ctx, f.Module, f, params)
	}
}

func (s *Store) addFunctionInstances(fs ...*FunctionInstance) {
	for _, f := range fs {
		f.store = s
		s.functions = append(s.functions, f)
	}
}

func (s *Store) addGlobalInstances(gs ...*GlobalInstance) {
	for _, g := range gs {
		g.store = s
		s.globals = append(s.globals, g)
	}
}

func (s *Store) addTableInstance(t *TableInstance) {
	if t == nil {
		return
	}
	t.store = s
	s.tables = append(s.tables, t)
}

func (s *Store) addMemoryInstance(m *MemoryInstance) {
	if m == nil {
		return
	}
	m.store = s
	s.memories = append(s.memories, m)
}

// NewHostFunction allocates a host-provided callback as a function instance in
// this store, usable as an import value.
func (s *Store) NewHostFunction(funcType *FunctionType, fn GoFunction) (*FunctionInstance, error) {
	if fn == nil {
		return nil, fmt.Errorf("host function is nil")
	}
	typeInstance, err := s.getTypeInstance(funcType)
	if err != nil {
		return nil, err
	}
	f := &FunctionInstance{Type: typeInstance, Kind: FunctionKindGo, GoFunc: fn}
	s.addFunctionInstances(f)
	return f, nil
}

// NewGlobal allocates a host-defined global in this store.
func (s *Store) NewGlobal(globalType *GlobalType, val uint64) *GlobalInstance {
	g := &GlobalInstance{Type: globalType, Val: val}
	s.addGlobalInstances(g)
	return g
}

// NewMemory allocates a host-defined memory in this store.
func (s *Store) NewMemory(memType *MemoryType) (*MemoryInstance, error) {
	if err := memType.Validate(); err != nil {
		return nil, err
	}
	m := NewMemoryInstance(memType)
	s.addMemoryInstance(m)
	return m, nil
}

// NewTable allocates a host-defined table in this store.
func (s *Store) NewTable(tableType *TableType) (*TableInstance, error) {
	if err := tableType.Validate(); err != nil {
		return nil, err
	}
	t := NewTableInstance(tableType)
	s.addTableInstance(t)
	return t, nil
}

func (s *Store) getTypeInstances(ts []*FunctionType) ([]*TypeInstance, error) {
	ret := make([]*TypeInstance, len(ts))
	for i, t := range ts {
		inst, err := s.getTypeInstance(t)
		if err != nil {
			return nil, err
		}
		ret[i] = inst
	}
	return ret, nil
}

func (s *Store) getTypeInstance(t *FunctionType) (*TypeInstance, error) {
	key := t.key()
	id, ok := s.typeIDs[key]
	if !ok {
		if len(s.typeIDs) >= s.maximumFunctionTypes {
			return nil, fmt.Errorf("too many function types in a store")
		}
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return &TypeInstance{Type: t, TypeID: id}, nil
}
