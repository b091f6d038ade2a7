package wasm

import (
	"fmt"
)

// Module is a WebAssembly binary representation, immutable after validation.
// It may be compiled multiple times against different backends and shared
// read-only across many instances.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#modules%E2%91%A8
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	TypeSection []*FunctionType

	// ImportSection contains imported functions, tables, memories or globals
	// required for instantiation, in declaration order.
	ImportSection []*Import

	// FunctionSection contains the index in TypeSection of each function defined in this module.
	//
	// Note: The function index namespace begins with imported functions and ends
	// with those defined in this module. FunctionSection is index-correlated
	// with CodeSection.
	FunctionSection []Index

	// TableSection contains each table defined in this module. WebAssembly 1.0
	// allows at most one, and only when there is no table import.
	TableSection []*TableType

	// MemorySection contains each memory defined in this module, with the same
	// cardinality rule as TableSection.
	MemorySection []*MemoryType

	// GlobalSection contains each global defined in this module. The global
	// index namespace begins with imports.
	GlobalSection []*Global

	// ExportSection maps exported names to the index of the object in the
	// corresponding index namespace. Names are unique and case-sensitive.
	ExportSection []*Export

	// StartSection is the index of a function to call during instantiation, if any.
	StartSection *Index

	// ElementSection are initializers for tables.
	ElementSection []*ElementSegment

	// CodeSection holds the locals and body of each function defined in this
	// module, index-correlated with FunctionSection.
	CodeSection []*Code

	// DataSection are initializers for memories.
	DataSection []*DataSegment
}

// Import describes one (name, expected type) pair required for instantiation.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#import-section%E2%91%A0
type Import struct {
	// Module and Name are the two-level namespace of this import.
	Module, Name string
	// Type is the extern kind this import must be satisfied with.
	Type ExternType
	// DescFunc is the index in TypeSection when Type is ExternTypeFunc.
	DescFunc Index
	// DescTable is set when Type is ExternTypeTable.
	DescTable *TableType
	// DescMem is set when Type is ExternTypeMemory.
	DescMem *MemoryType
	// DescGlobal is set when Type is ExternTypeGlobal.
	DescGlobal *GlobalType
}

// TypeName returns the imported type in text format, for error messages.
func (i *Import) TypeName(m *Module) string {
	switch i.Type {
	case ExternTypeFunc:
		if int(i.DescFunc) < len(m.TypeSection) {
			return "func" + m.TypeSection[i.DescFunc].String()
		}
		return "func"
	case ExternTypeTable:
		return i.DescTable.String()
	case ExternTypeMemory:
		return i.DescMem.String()
	case ExternTypeGlobal:
		return i.DescGlobal.String()
	}
	return ExternTypeName(i.Type)
}

// Export maps a name to an object in the corresponding index namespace.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#export-section%E2%91%A0
type Export struct {
	Type ExternType
	Name string
	// Index is relative to the index namespace of Type, which begins with imports.
	Index Index
}

// Global is a declared global with its initializer.
type Global struct {
	Type *GlobalType
	Init *ConstantExpression
}

// Code is the locals and body of a function defined in this module.
type Code struct {
	// LocalTypes are the types of locals declared in addition to parameters.
	LocalTypes []ValueType
	// Body is the function body in WebAssembly binary format, ending in OpcodeEnd.
	Body []byte
}

// ConstantExpression is an initializer for a global, or an offset for an
// element or data segment. It may reference only imported globals by index.
type ConstantExpression struct {
	Opcode byte
	Data   []byte
}

// ElementSegment initializes a range of a table with function indices.
type ElementSegment struct {
	// OffsetExpr yields the table offset to apply to Init indices.
	OffsetExpr *ConstantExpression
	// Init are positions in the function index namespace.
	Init []Index
}

// DataSegment initializes a range of a memory.
type DataSegment struct {
	OffsetExpr *ConstantExpression
	Init       []byte
}

// ImportFuncCount returns how many imported functions are in this module's function index namespace.
func (m *Module) ImportFuncCount() uint32 {
	return m.importCount(ExternTypeFunc)
}

// ImportGlobalCount returns how many imported globals are in this module's global index namespace.
func (m *Module) ImportGlobalCount() uint32 {
	return m.importCount(ExternTypeGlobal)
}

// ImportMemoryCount returns 1 if this module imports a memory.
func (m *Module) ImportMemoryCount() uint32 {
	return m.importCount(ExternTypeMemory)
}

// ImportTableCount returns 1 if this module imports a table.
func (m *Module) ImportTableCount() uint32 {
	return m.importCount(ExternTypeTable)
}

func (m *Module) importCount(et ExternType) (count uint32) {
	for _, im := range m.ImportSection {
		if im.Type == et {
			count++
		}
	}
	return
}

// TypeOfFunction returns the function type of the function at the given
// position in the function index namespace, or nil for an invalid index.
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	typeSectionLength := uint32(len(m.TypeSection))
	if typeSectionLength == 0 {
		return nil
	}
	funcImportCount := Index(0)
	for _, im := range m.ImportSection {
		if im.Type == ExternTypeFunc {
			if funcIdx == funcImportCount {
				if im.DescFunc >= typeSectionLength {
					return nil
				}
				return m.TypeSection[im.DescFunc]
			}
			funcImportCount++
		}
	}
	funcSectionIdx := funcIdx - funcImportCount
	if funcSectionIdx >= uint32(len(m.FunctionSection)) {
		return nil
	}
	typeIdx := m.FunctionSection[funcSectionIdx]
	if typeIdx >= typeSectionLength {
		return nil
	}
	return m.TypeSection[typeIdx]
}

// Validate performs the structural checks the core relies on: index bounds,
// section cardinality and count correlation, returning a *ModuleError naming
// the first violated rule. Deep bytecode validation is a collaborator's
// concern, but nothing downstream tolerates a module that fails these checks.
func (m *Module) Validate(enabledFeatures Features) error {
	if err := m.validateImports(enabledFeatures); err != nil {
		return err
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return &ModuleError{Message: fmt.Sprintf("function and code section have inconsistent lengths: %d and %d",
			len(m.FunctionSection), len(m.CodeSection))}
	}
	for i, typeIdx := range m.FunctionSection {
		if int(typeIdx) >= len(m.TypeSection) {
			return &ModuleError{Message: fmt.Sprintf("function[%d]: unknown type index %d", i, typeIdx)}
		}
	}

	for _, t := range m.TypeSection {
		if len(t.Results) > 1 && !enabledFeatures.Get(FeatureMultiValue) {
			return &ModuleError{Message: fmt.Sprintf("multiple result types invalid as feature %q is disabled",
				featureName(FeatureMultiValue))}
		}
	}

	if len(m.MemorySection)+int(m.ImportMemoryCount()) > 1 {
		return &ModuleError{Message: "multiple memories are not supported"}
	}
	for _, mem := range m.MemorySection {
		if err := mem.Validate(); err != nil {
			return &ModuleError{Message: err.Error()}
		}
	}

	if len(m.TableSection)+int(m.ImportTableCount()) > 1 {
		return &ModuleError{Message: "multiple tables are not supported"}
	}
	for _, tbl := range m.TableSection {
		if err := tbl.Validate(); err != nil {
			return &ModuleError{Message: err.Error()}
		}
	}

	if err := m.validateGlobals(enabledFeatures); err != nil {
		return err
	}
	if err := m.validateExports(enabledFeatures); err != nil {
		return err
	}

	if m.StartSection != nil {
		ft := m.TypeOfFunction(*m.StartSection)
		if ft == nil {
			return &ModuleError{Message: fmt.Sprintf("start function index %d out of range", *m.StartSection)}
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return &ModuleError{Message: "start function must have an empty signature"}
		}
	}

	for i, elem := range m.ElementSection {
		if m.TableSection == nil && m.ImportTableCount() == 0 {
			return &ModuleError{Message: fmt.Sprintf("element[%d]: no table to initialize", i)}
		}
		funcCount := m.ImportFuncCount() + uint32(len(m.FunctionSection))
		for _, init := range elem.Init {
			if init >= funcCount {
				return &ModuleError{Message: fmt.Sprintf("element[%d]: unknown function index %d", i, init)}
			}
		}
	}

	for i := range m.DataSection {
		if m.MemorySection == nil && m.ImportMemoryCount() == 0 {
			return &ModuleError{Message: fmt.Sprintf("data[%d]: no memory to initialize", i)}
		}
	}
	return nil
}

func (m *Module) validateImports(enabledFeatures Features) error {
	for i, im := range m.ImportSection {
		switch im.Type {
		case ExternTypeFunc:
			if int(im.DescFunc) >= len(m.TypeSection) {
				return &ModuleError{Message: fmt.Sprintf("import[%d] %q.%q: unknown type index %d",
					i, im.Module, im.Name, im.DescFunc)}
			}
		case ExternTypeTable:
			if err := im.DescTable.Validate(); err != nil {
				return &ModuleError{Message: fmt.Sprintf("import[%d] %q.%q: %v", i, im.Module, im.Name, err)}
			}
		case ExternTypeMemory:
			if err := im.DescMem.Validate(); err != nil {
				return &ModuleError{Message: fmt.Sprintf("import[%d] %q.%q: %v", i, im.Module, im.Name, err)}
			}
		case ExternTypeGlobal:
			if im.DescGlobal.Mutable {
				if err := enabledFeatures.Require(FeatureMutableGlobal); err != nil {
					return &ModuleError{Message: fmt.Sprintf("import[%d] %q.%q: %v", i, im.Module, im.Name, err)}
				}
			}
		default:
			return &ModuleError{Message: fmt.Sprintf("import[%d] %q.%q: invalid extern type %#x",
				i, im.Module, im.Name, im.Type)}
		}
	}
	return nil
}

func (m *Module) validateGlobals(enabledFeatures Features) error {
	importedGlobals := m.ImportGlobalCount()
	for i, g := range m.GlobalSection {
		if g.Type.Mutable {
			if err := enabledFeatures.Require(FeatureMutableGlobal); err != nil {
				return &ModuleError{Message: fmt.Sprintf("global[%d]: %v", i, err)}
			}
		}
		if g.Init == nil {
			return &ModuleError{Message: fmt.Sprintf("global[%d]: missing initializer", i)}
		}
		// Initializers may reference only imported globals, never forward references.
		if g.Init.Opcode == OpcodeGlobalGet {
			idx, err := constExprGlobalIndex(g.Init)
			if err != nil {
				return &ModuleError{Message: fmt.Sprintf("global[%d]: %v", i, err)}
			}
			if idx >= importedGlobals {
				return &ModuleError{Message: fmt.Sprintf("global[%d]: initializer refers to non-imported global %d", i, idx)}
			}
		}
	}
	return nil
}

func (m *Module) validateExports(enabledFeatures Features) error {
	seen := make(map[string]struct{}, len(m.ExportSection))
	funcCount := m.ImportFuncCount() + uint32(len(m.FunctionSection))
	globalCount := m.ImportGlobalCount() + uint32(len(m.GlobalSection))
	memCount := m.ImportMemoryCount() + uint32(len(m.MemorySection))
	tableCount := m.ImportTableCount() + uint32(len(m.TableSection))
	for _, exp := range m.ExportSection {
		if _, ok := seen[exp.Name]; ok {
			return &ModuleError{Message: fmt.Sprintf("export name %q already declared", exp.Name)}
		}
		seen[exp.Name] = struct{}{}
		switch exp.Type {
		case ExternTypeFunc:
			if exp.Index >= funcCount {
				return &ModuleError{Message: fmt.Sprintf("export %q: unknown function index %d", exp.Name, exp.Index)}
			}
		case ExternTypeGlobal:
			if exp.Index >= globalCount {
				return &ModuleError{Message: fmt.Sprintf("export %q: unknown global index %d", exp.Name, exp.Index)}
			}
			if gt := m.TypeOfGlobal(exp.Index); gt != nil && gt.Mutable {
				if err := enabledFeatures.Require(FeatureMutableGlobal); err != nil {
					return &ModuleError{Message: fmt.Sprintf("export %q: %v", exp.Name, err)}
				}
			}
		case ExternTypeMemory:
			if exp.Index >= memCount {
				return &ModuleError{Message: fmt.Sprintf("export %q: unknown memory index %d", exp.Name, exp.Index)}
			}
		case ExternTypeTable:
			if exp.Index >= tableCount {
				return &ModuleError{Message: fmt.Sprintf("export %q: unknown table index %d", exp.Name, exp.Index)}
			}
		default:
			return &ModuleError{Message: fmt.Sprintf("export %q: invalid extern type %#x", exp.Name, exp.Type)}
		}
	}
	return nil
}

// TypeOfGlobal returns the type of the global at the given position in the
// global index namespace, or nil for an invalid index.
func (m *Module) TypeOfGlobal(idx Index) *GlobalType {
	imported := Index(0)
	for _, im := range m.ImportSection {
		if im.Type == ExternTypeGlobal {
			if idx == imported {
				return im.DescGlobal
			}
			imported++
		}
	}
	definedIdx := idx - imported
	if definedIdx >= uint32(len(m.GlobalSection)) {
		return nil
	}
	return m.GlobalSection[definedIdx].Type
}
