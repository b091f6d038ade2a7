package wasm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var testCtx = context.Background()

// fakeArtifact satisfies Artifact for linking tests that never execute guest
// code, or execute it through the supplied callback.
type fakeArtifact struct {
	name string
	call func(ctx context.Context, mod *ModuleInstance, f *FunctionInstance, params []uint64) ([]uint64, error)
}

func (a *fakeArtifact) BackendName() string    { return a.name }
func (a *fakeArtifact) FunctionCount() uint32  { return 0 }
func (a *fakeArtifact) Call(ctx context.Context, mod *ModuleInstance, f *FunctionInstance, params []uint64) ([]uint64, error) {
	if a.call == nil {
		return nil, nil
	}
	return a.call(ctx, mod, f, params)
}

func noopArtifact() Artifact { return &fakeArtifact{name: "fake"} }

func TestStore_Instantiate_importCountMismatch(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection:   []*FunctionType{{}},
		ImportSection: []*Import{{Module: "env", Name: "f", Type: ExternTypeFunc, DescFunc: 0}},
	}
	_, err := s.Instantiate(testCtx, m, noopArtifact(), nil)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, -1, le.ImportIndex)
	require.Contains(t, le.Error(), "expected 1 imports, but 0 were supplied")
}

func TestStore_Instantiate_signatureMismatchAtIndexZero(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection: []*FunctionType{{
			Params:  []ValueType{ValueTypeI32, ValueTypeI32},
			Results: []ValueType{ValueTypeI32},
		}},
		ImportSection: []*Import{{Module: "env", Name: "host_sum", Type: ExternTypeFunc, DescFunc: 0}},
	}

	// The supplied function takes i64s instead of i32s.
	host, err := s.NewHostFunction(&FunctionType{
		Params:  []ValueType{ValueTypeI64, ValueTypeI64},
		Results: []ValueType{ValueTypeI64},
	}, func(ctx context.Context, params []uint64) ([]uint64, error) { return []uint64{0}, nil })
	require.NoError(t, err)

	_, err = s.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeFunc, Function: host}})
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, 0, le.ImportIndex)
	require.Equal(t, "funci32i32_i32", le.Expected)
	require.Equal(t, "funci64i64_i64", le.Actual)
}

func TestStore_Instantiate_kindMismatch(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection:   []*FunctionType{{}},
		ImportSection: []*Import{{Module: "env", Name: "f", Type: ExternTypeFunc, DescFunc: 0}},
	}
	g := s.NewGlobal(&GlobalType{ValType: ValueTypeI32}, 0)
	_, err := s.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeGlobal, Global: g}})
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, 0, le.ImportIndex)
	require.Equal(t, "func", le.Expected)
	require.Equal(t, "global", le.Actual)
}

func TestStore_Instantiate_externFromAnotherStore(t *testing.T) {
	s1, s2 := NewStore(Features20191205), NewStore(Features20191205)
	g := s2.NewGlobal(&GlobalType{ValType: ValueTypeI32}, 0)

	m := &Module{
		ImportSection: []*Import{{Module: "env", Name: "g", Type: ExternTypeGlobal,
			DescGlobal: &GlobalType{ValType: ValueTypeI32}}},
	}
	_, err := s1.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeGlobal, Global: g}})
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Contains(t, le.Error(), "different store")
}

func TestStore_Instantiate_globalTypeMismatch(t *testing.T) {
	s := NewStore(Features20191205)
	g := s.NewGlobal(&GlobalType{ValType: ValueTypeF32, Mutable: true}, 0)

	m := &Module{
		ImportSection: []*Import{{Module: "env", Name: "g", Type: ExternTypeGlobal,
			DescGlobal: &GlobalType{ValType: ValueTypeF32}}},
	}
	_, err := s.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeGlobal, Global: g}})
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "const f32", le.Expected)
	require.Equal(t, "var f32", le.Actual)
}

func TestStore_Instantiate_memoryImportPermissive(t *testing.T) {
	s := NewStore(Features20191205)
	max := uint32(4)
	mem, err := s.NewMemory(&MemoryType{Min: 2, Max: &max})
	require.NoError(t, err)

	// A larger actual memory satisfies a smaller declared minimum.
	m := &Module{
		ImportSection: []*Import{{Module: "env", Name: "mem", Type: ExternTypeMemory,
			DescMem: &MemoryType{Min: 1, Max: &max}}},
	}
	mi, err := s.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeMemory, Memory: mem}})
	require.NoError(t, err)
	require.Same(t, mem, mi.Memory)

	// A smaller actual minimum does not.
	m2 := &Module{
		ImportSection: []*Import{{Module: "env", Name: "mem", Type: ExternTypeMemory,
			DescMem: &MemoryType{Min: 3, Max: &max}}},
	}
	_, err = s.Instantiate(testCtx, m2, noopArtifact(), []*ExternValue{{Type: ExternTypeMemory, Memory: mem}})
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Contains(t, le.Error(), "incompatible memory import")
}

func TestStore_Instantiate_sequentialGlobalInit(t *testing.T) {
	s := NewStore(Features20191205)
	imported := s.NewGlobal(&GlobalType{ValType: ValueTypeI32}, 5)

	m := &Module{
		ImportSection: []*Import{{Module: "env", Name: "base", Type: ExternTypeGlobal,
			DescGlobal: &GlobalType{ValType: ValueTypeI32}}},
		GlobalSection: []*Global{
			// global[1] copies the imported global's value.
			{Type: &GlobalType{ValType: ValueTypeI32}, Init: &ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0}}},
			// global[2] copies global[1], proving sequential visibility.
			{Type: &GlobalType{ValType: ValueTypeI32}, Init: &ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{1}}},
		},
	}
	mi, err := s.Instantiate(testCtx, m, noopArtifact(), []*ExternValue{{Type: ExternTypeGlobal, Global: imported}})
	require.NoError(t, err)
	require.Equal(t, uint64(5), mi.Globals[1].Val)
	require.Equal(t, uint64(5), mi.Globals[2].Val)
}

func TestStore_Instantiate_dataOutOfBoundsIsLinkError(t *testing.T) {
	s := NewStore(Features20191205)
	mark := s.mark()
	m := &Module{
		MemorySection: []*MemoryType{{Min: 1}},
		DataSection: []*DataSegment{{
			// One page is 65536 bytes; writing 8 bytes at 65532 overflows.
			OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0xfc, 0xff, 0x03}},
			Init:       []byte("deadbeef"),
		}},
	}
	_, err := s.Instantiate(testCtx, m, noopArtifact(), nil)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, -1, le.ImportIndex)
	require.Contains(t, le.Error(), "out of bounds memory access")
	require.Equal(t, mark, s.mark()) // nothing was allocated
}

func TestStore_Instantiate_elementOutOfBoundsIsLinkError(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
		TableSection:    []*TableType{{ElemType: ValueTypeFuncref, Min: 1}},
		ElementSection: []*ElementSegment{{
			OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{1}},
			Init:       []Index{0},
		}},
	}
	_, err := s.Instantiate(testCtx, m, noopArtifact(), nil)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Contains(t, le.Error(), "out of bounds table access")
}

func TestStore_Instantiate_appliesSegments(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
		TableSection:    []*TableType{{ElemType: ValueTypeFuncref, Min: 2}},
		MemorySection:   []*MemoryType{{Min: 1}},
		ElementSection: []*ElementSegment{{
			OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{1}},
			Init:       []Index{0},
		}},
		DataSection: []*DataSegment{{
			OffsetExpr: &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{8}},
			Init:       []byte("hi"),
		}},
	}
	mi, err := s.Instantiate(testCtx, m, noopArtifact(), nil)
	require.NoError(t, err)

	elem, ok := mi.Table.Get(1)
	require.True(t, ok)
	require.Same(t, mi.Functions[0], elem.Func)

	data, ok := mi.Memory.Read(8, 2)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), data)
}

func TestStore_Instantiate_startFunctionRuns(t *testing.T) {
	s := NewStore(Features20191205)
	var ran bool
	art := &fakeArtifact{name: "fake", call: func(ctx context.Context, mod *ModuleInstance, f *FunctionInstance, params []uint64) ([]uint64, error) {
		ran = true
		return nil, nil
	}}
	start := Index(0)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
		StartSection:    &start,
	}
	_, err := s.Instantiate(testCtx, m, art, nil)
	require.NoError(t, err)
	require.True(t, ran)
}

func TestStore_Instantiate_startFailureRollsBack(t *testing.T) {
	s := NewStore(Features20191205)
	boom := errors.New("start failed")
	art := &fakeArtifact{name: "fake", call: func(ctx context.Context, mod *ModuleInstance, f *FunctionInstance, params []uint64) ([]uint64, error) {
		return nil, boom
	}}
	start := Index(0)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
		MemorySection:   []*MemoryType{{Min: 1}},
		StartSection:    &start,
	}
	mark := s.mark()
	instancesBefore := len(s.instances)

	_, err := s.Instantiate(testCtx, m, art, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, mark, s.mark())
	require.Equal(t, instancesBefore, len(s.instances))
}

func TestModuleInstance_GetExport(t *testing.T) {
	s := NewStore(Features20191205)
	m := &Module{
		TypeSection:     []*FunctionType{{}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
		ExportSection:   []*Export{{Type: ExternTypeFunc, Name: "run", Index: 0}},
	}
	mi, err := s.Instantiate(testCtx, m, noopArtifact(), nil)
	require.NoError(t, err)

	ev, err := mi.GetExport("run", ExternTypeFunc)
	require.NoError(t, err)
	require.NotNil(t, ev.Function)

	_, err = mi.GetExport("missing", ExternTypeFunc)
	require.EqualError(t, err, `"missing" is not exported`)

	_, err = mi.GetExport("run", ExternTypeMemory)
	require.EqualError(t, err, `export "run" is a func, not a memory`)
}

func TestStore_CallFunction_dispatch(t *testing.T) {
	s := NewStore(Features20191205)

	host, err := s.NewHostFunction(&FunctionType{Results: []ValueType{ValueTypeI32}},
		func(ctx context.Context, params []uint64) ([]uint64, error) { return []uint64{42}, nil })
	require.NoError(t, err)

	results, err := s.CallFunction(testCtx, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)

	other := NewStore(Features20191205)
	_, err = other.CallFunction(testCtx, host)
	require.EqualError(t, err, "function belongs to a different store")
}

func TestStore_typeIDs_sharedAcrossModules(t *testing.T) {
	s := NewStore(Features20191205)
	ft := &FunctionType{Params: []ValueType{ValueTypeI32}}

	t1, err := s.getTypeInstance(ft)
	require.NoError(t, err)
	t2, err := s.getTypeInstance(&FunctionType{Params: []ValueType{ValueTypeI32}})
	require.NoError(t, err)
	require.Equal(t, t1.TypeID, t2.TypeID)

	t3, err := s.getTypeInstance(&FunctionType{Params: []ValueType{ValueTypeI64}})
	require.NoError(t, err)
	require.NotEqual(t, t1.TypeID, t3.TypeID)
}
