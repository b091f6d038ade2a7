package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// singleFunctionModule builds a module with one function of the given type and
// body, enough for driving Lower directly.
func singleFunctionModule(ft *wasm.FunctionType, body []byte, localTypes ...wasm.ValueType) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{LocalTypes: localTypes, Body: body}},
	}
}

func requireKinds(t *testing.T, code *Code, kinds ...OperationKind) {
	t.Helper()
	actual := make([]OperationKind, len(code.Ops))
	for i, op := range code.Ops {
		actual[i] = op.Kind
	}
	require.Equal(t, kinds, actual)
}

func TestLower_sum(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		},
		[]byte{
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeLocalGet, 1,
			wasm.OpcodeI32Add,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code,
		OperationKindLocalGet, OperationKindLocalGet, OperationKindBinary, OperationKindReturn)
	require.Equal(t, uint64(0), code.Ops[0].U1)
	require.Equal(t, uint64(1), code.Ops[1].U1)
	require.Equal(t, wasm.OpcodeI32Add, code.Ops[2].B1)
}

func TestLower_blockBranchResolvesForward(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{},
		[]byte{
			wasm.OpcodeBlock, 0x40,
			wasm.OpcodeBr, 0,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code, OperationKindBr, OperationKindReturn)
	// The branch goes past the block's end, which is the function return.
	require.Equal(t, uint64(1), code.Ops[0].U1)
}

func TestLower_loopBranchResolvesBackward(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{},
		[]byte{
			wasm.OpcodeLoop, 0x40,
			wasm.OpcodeBr, 0,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code, OperationKindBr, OperationKindReturn)
	require.Equal(t, uint64(0), code.Ops[0].U1)
}

func TestLower_ifElse(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		},
		[]byte{
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeIf, 0x7f,
			wasm.OpcodeI32Const, 1,
			wasm.OpcodeElse,
			wasm.OpcodeI32Const, 2,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code,
		OperationKindLocalGet, OperationKindBrIfZero, OperationKindConst,
		OperationKindBr, OperationKindConst, OperationKindReturn)
	// False path jumps to the else arm, true path jumps over it.
	require.Equal(t, uint64(4), code.Ops[1].U1)
	require.Equal(t, uint64(5), code.Ops[3].U1)
	require.Equal(t, byte(1), code.Ops[3].B1)
}

func TestLower_brIfDropCount(t *testing.T) {
	// An extra value sits beneath the result when the conditional branch
	// fires, so the branch keeps one value and drops one.
	m := singleFunctionModule(
		&wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		},
		[]byte{
			wasm.OpcodeBlock, 0x7f,
			wasm.OpcodeI32Const, 7,
			wasm.OpcodeI32Const, 9,
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeBrIf, 0,
			wasm.OpcodeDrop,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	var brIf *Op
	for i := range code.Ops {
		if code.Ops[i].Kind == OperationKindBrIf {
			brIf = &code.Ops[i]
		}
	}
	require.NotNil(t, brIf)
	require.Equal(t, byte(1), brIf.B1)
	require.Equal(t, uint64(1), brIf.U2)
}

func TestLower_brTable(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{
			wasm.OpcodeBlock, 0x40,
			wasm.OpcodeBlock, 0x40,
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeBrTable, 1, 0, 1, // targets: inner, default outer
			wasm.OpcodeEnd,
			wasm.OpcodeNop,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code, OperationKindLocalGet, OperationKindBrTable, OperationKindReturn)
	bt := code.Ops[1]
	require.Len(t, bt.Us, 4)
	require.Equal(t, uint64(2), bt.Us[0]) // inner end, right after br_table
	require.Equal(t, uint64(2), bt.Us[2]) // outer end: nop emits nothing, so same pc
}

func TestLower_deadCodeAfterBranch(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{
			wasm.OpcodeI32Const, 1,
			wasm.OpcodeReturn,
			wasm.OpcodeI32Const, 2, // dead
			wasm.OpcodeI32Add, // dead
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code, OperationKindConst, OperationKindReturn, OperationKindReturn)
}

func TestLower_unreachableSkipsNestedBlocks(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{},
		[]byte{
			wasm.OpcodeUnreachable,
			wasm.OpcodeBlock, 0x40,
			wasm.OpcodeNop,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		},
	)
	code, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, code, OperationKindUnreachable, OperationKindReturn)
}

func TestLower_errors(t *testing.T) {
	tests := []struct {
		name        string
		module      *wasm.Module
		expectedErr string
	}{
		{
			name: "unknown local",
			module: singleFunctionModule(&wasm.FunctionType{}, []byte{
				wasm.OpcodeLocalGet, 5, wasm.OpcodeDrop, wasm.OpcodeEnd,
			}),
			expectedErr: "local.get of unknown local index 5",
		},
		{
			name: "unknown global",
			module: singleFunctionModule(&wasm.FunctionType{}, []byte{
				wasm.OpcodeGlobalGet, 0, wasm.OpcodeDrop, wasm.OpcodeEnd,
			}),
			expectedErr: "global.get of unknown global index 0",
		},
		{
			name: "set immutable global",
			module: &wasm.Module{
				TypeSection:     []*wasm.FunctionType{{}},
				FunctionSection: []wasm.Index{0},
				GlobalSection: []*wasm.Global{{
					Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32},
					Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0}},
				}},
				CodeSection: []*wasm.Code{{Body: []byte{
					wasm.OpcodeI32Const, 1, wasm.OpcodeGlobalSet, 0, wasm.OpcodeEnd,
				}}},
			},
			expectedErr: "global.set of immutable global index 0",
		},
		{
			name: "memory op without memory",
			module: singleFunctionModule(&wasm.FunctionType{}, []byte{
				wasm.OpcodeI32Const, 0, wasm.OpcodeI32Load, 2, 0, wasm.OpcodeDrop, wasm.OpcodeEnd,
			}),
			expectedErr: "requires a memory",
		},
		{
			name: "call_indirect without table",
			module: singleFunctionModule(&wasm.FunctionType{}, []byte{
				wasm.OpcodeI32Const, 0, wasm.OpcodeCallIndirect, 0, 0, wasm.OpcodeEnd,
			}),
			expectedErr: "call_indirect requires a table",
		},
		{
			name: "unknown opcode",
			module: singleFunctionModule(&wasm.FunctionType{}, []byte{
				0xd0, wasm.OpcodeEnd,
			}),
			expectedErr: "unsupported opcode 0xd0",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lower(tc.module, 0, wasm.Features20191205, Options{})
			require.ErrorContains(t, err, tc.expectedErr)
		})
	}
}

func TestLower_featureGates(t *testing.T) {
	signExt := singleFunctionModule(
		&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Extend8S, wasm.OpcodeEnd},
	)
	_, err := Lower(signExt, 0, wasm.Features20191205, Options{})
	require.ErrorContains(t, err, "sign-extension-ops")

	_, err = Lower(signExt, 0, wasm.Features20191205|wasm.FeatureSignExtensionOps, Options{})
	require.NoError(t, err)

	satTrunc := singleFunctionModule(
		&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeF64}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeMiscPrefix, wasm.OpcodeMiscI32TruncSatF64S, wasm.OpcodeEnd},
	)
	_, err = Lower(satTrunc, 0, wasm.Features20191205, Options{})
	require.ErrorContains(t, err, "nontrapping-float-to-int-conversion")
}

func TestLower_foldConstants(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{
			wasm.OpcodeI32Const, 2,
			wasm.OpcodeI32Const, 3,
			wasm.OpcodeI32Add,
			wasm.OpcodeEnd,
		},
	)
	plain, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.NoError(t, err)
	requireKinds(t, plain, OperationKindConst, OperationKindConst, OperationKindBinary, OperationKindReturn)

	folded, err := Lower(m, 0, wasm.Features20191205, Options{FoldConstants: true})
	require.NoError(t, err)
	requireKinds(t, folded, OperationKindConst, OperationKindReturn)
	require.Equal(t, uint64(5), folded.Ops[0].U1)
}

func TestLower_foldNeverRemovesTraps(t *testing.T) {
	m := singleFunctionModule(
		&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{
			wasm.OpcodeI32Const, 1,
			wasm.OpcodeI32Const, 0,
			wasm.OpcodeI32DivU, // traps at runtime, must survive folding
			wasm.OpcodeEnd,
		},
	)
	folded, err := Lower(m, 0, wasm.Features20191205, Options{FoldConstants: true})
	require.NoError(t, err)
	requireKinds(t, folded, OperationKindConst, OperationKindConst, OperationKindBinary, OperationKindReturn)
}

func TestLower_foldStopsAtBranchTargets(t *testing.T) {
	// The i32.add's left operand constant sits before a loop header some
	// branch could target, so the fold must not cross it.
	m := singleFunctionModule(
		&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		[]byte{
			wasm.OpcodeI32Const, 2,
			wasm.OpcodeLoop, 0x7f,
			wasm.OpcodeI32Const, 3,
			wasm.OpcodeEnd,
			wasm.OpcodeI32Add,
			wasm.OpcodeEnd,
		},
	)
	folded, err := Lower(m, 0, wasm.Features20191205, Options{FoldConstants: true})
	require.NoError(t, err)
	requireKinds(t, folded, OperationKindConst, OperationKindConst, OperationKindBinary, OperationKindReturn)
}

func TestLower_strengthReduce(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected []OperationKind
		// checks on the final stream when a rewrite happened
		lastBinary wasm.Opcode
		constVal   uint64
	}{
		{
			name: "mul by 8 becomes shl 3",
			body: []byte{
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeI32Const, 8,
				wasm.OpcodeI32Mul,
				wasm.OpcodeEnd,
			},
			expected:   []OperationKind{OperationKindLocalGet, OperationKindConst, OperationKindBinary, OperationKindReturn},
			lastBinary: wasm.OpcodeI32Shl,
			constVal:   3,
		},
		{
			name: "div_u by 4 becomes shr_u 2",
			body: []byte{
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeI32Const, 4,
				wasm.OpcodeI32DivU,
				wasm.OpcodeEnd,
			},
			expected:   []OperationKind{OperationKindLocalGet, OperationKindConst, OperationKindBinary, OperationKindReturn},
			lastBinary: wasm.OpcodeI32ShrU,
			constVal:   2,
		},
		{
			name: "rem_u by 16 becomes and 15",
			body: []byte{
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeI32Const, 16,
				wasm.OpcodeI32RemU,
				wasm.OpcodeEnd,
			},
			expected:   []OperationKind{OperationKindLocalGet, OperationKindConst, OperationKindBinary, OperationKindReturn},
			lastBinary: wasm.OpcodeI32And,
			constVal:   15,
		},
		{
			name: "add zero elided",
			body: []byte{
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeI32Const, 0,
				wasm.OpcodeI32Add,
				wasm.OpcodeEnd,
			},
			expected: []OperationKind{OperationKindLocalGet, OperationKindReturn},
		},
		{
			name: "mul by 3 untouched",
			body: []byte{
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeI32Const, 3,
				wasm.OpcodeI32Mul,
				wasm.OpcodeEnd,
			},
			expected:   []OperationKind{OperationKindLocalGet, OperationKindConst, OperationKindBinary, OperationKindReturn},
			lastBinary: wasm.OpcodeI32Mul,
			constVal:   3,
		},
	}
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m := singleFunctionModule(ft, tc.body)
			code, err := Lower(m, 0, wasm.Features20191205, Options{StrengthReduce: true})
			require.NoError(t, err)
			requireKinds(t, code, tc.expected...)
			if tc.lastBinary != 0 {
				require.Equal(t, tc.lastBinary, code.Ops[2].B1)
				require.Equal(t, tc.constVal, code.Ops[1].U1)
			}
		})
	}
}

func TestLower_multiValueBlockRequiresFeature(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{},
			{Results: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []byte{
			wasm.OpcodeBlock, 1, // block type referencing the two-result type
			wasm.OpcodeI32Const, 1,
			wasm.OpcodeI32Const, 2,
			wasm.OpcodeEnd,
			wasm.OpcodeDrop,
			wasm.OpcodeDrop,
			wasm.OpcodeEnd,
		}}},
	}
	_, err := Lower(m, 0, wasm.Features20191205, Options{})
	require.ErrorContains(t, err, "multi-value")

	_, err = Lower(m, 0, wasm.Features20191205|wasm.FeatureMultiValue, Options{})
	require.NoError(t, err)
}
