package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

// sumWasm is the canonical hand-assembled module exporting
// (func (export "sum") (param i32 i32) (result i32)).
var sumWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 's', 'u', 'm', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func TestDecodeModule_sum(t *testing.T) {
	m, err := DecodeModule(sumWasm)
	require.NoError(t, err)

	require.Equal(t, []*wasm.FunctionType{{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}}, m.TypeSection)
	require.Equal(t, []wasm.Index{0}, m.FunctionSection)
	require.Equal(t, []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "sum", Index: 0}}, m.ExportSection)
	require.Equal(t, []*wasm.Code{{Body: []byte{
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}}}, m.CodeSection)
}

func TestDecodeModule_errors(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedErr string
	}{
		{
			name:        "empty",
			input:       nil,
			expectedErr: "invalid module: invalid magic number",
		},
		{
			name:        "wrong magic",
			input:       []byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00},
			expectedErr: "invalid module: invalid magic number",
		},
		{
			name:        "wrong version",
			input:       []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00},
			expectedErr: "invalid module: invalid version header",
		},
		{
			name: "section size beyond input",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x01, 0x7f,
			},
			expectedErr: "exceeds remaining input",
		},
		{
			// A count this large can never fit in the bytes that follow, so
			// decoding must fail before sizing any allocation by it.
			name: "item count beyond input",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x01, 0x05, 0xff, 0xff, 0xff, 0xff, 0x0f, // type section claiming 2^32-1 entries
			},
			expectedErr: "items exceed the 0 remaining input bytes",
		},
		{
			name: "unknown section id",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x0c, 0x00,
			},
			expectedErr: "unknown section id 12",
		},
		{
			name: "out of order sections",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x03, 0x01, 0x00, // function section first
				0x01, 0x01, 0x00, // then type section
			},
			expectedErr: "out of order",
		},
		{
			name: "function without code",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
				0x03, 0x02, 0x01, 0x00,
			},
			expectedErr: "function and code section length mismatch",
		},
		{
			name: "invalid value type",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x01, 0x05, 0x01, 0x60, 0x01, 0x79, 0x00,
			},
			expectedErr: "invalid value type 0x79",
		},
		{
			name: "two memories",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x05, 0x05, 0x02, 0x00, 0x01, 0x00, 0x01,
			},
			expectedErr: "at most one memory allowed",
		},
		{
			name: "invalid limits flag",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x05, 0x03, 0x01, 0x02, 0x01,
			},
			expectedErr: "invalid limits flag 0x2",
		},
		{
			name: "duplicate export name",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x07, 0x09, 0x02,
				0x01, 'a', 0x00, 0x00,
				0x01, 'a', 0x00, 0x00,
			},
			expectedErr: `duplicate name "a"`,
		},
		{
			name: "body without end",
			input: []byte{
				0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
				0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
				0x03, 0x02, 0x01, 0x00,
				0x0a, 0x04, 0x01, 0x02, 0x00, 0x01,
			},
			expectedErr: "body must end with the end opcode",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeModule(tc.input)
			require.Error(t, err)
			var me *wasm.ModuleError
			require.ErrorAs(t, err, &me)
			require.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestDecodeModule_customSectionsSkipped(t *testing.T) {
	input := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x05, 0x04, 'n', 'a', 'm', 'e', // custom section, skipped whole
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	}
	m, err := DecodeModule(input)
	require.NoError(t, err)
	require.Len(t, m.TypeSection, 1)
}

func TestEncodeModule_roundTrip(t *testing.T) {
	maxPages := uint32(4)
	maxElems := uint32(20)
	start := wasm.Index(1)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{},
		},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "tick", Type: wasm.ExternTypeFunc, DescFunc: 1},
			{Module: "env", Name: "g", Type: wasm.ExternTypeGlobal,
				DescGlobal: &wasm.GlobalType{ValType: wasm.ValueTypeF32}},
		},
		FunctionSection: []wasm.Index{0, 1},
		TableSection:    []*wasm.TableType{{ElemType: wasm.ValueTypeFuncref, Min: 2, Max: &maxElems}},
		MemorySection:   []*wasm.MemoryType{{Min: 1, Max: &maxPages}},
		GlobalSection: []*wasm.Global{{
			Type: &wasm.GlobalType{ValType: wasm.ValueTypeI64, Mutable: true},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI64Const, Data: []byte{0x2a}},
		}},
		ExportSection: []*wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: "sum", Index: 1},
			{Type: wasm.ExternTypeMemory, Name: "mem", Index: 0},
		},
		StartSection: &start,
		ElementSection: []*wasm.ElementSegment{{
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
			Init:       []wasm.Index{1, 2},
		}},
		CodeSection: []*wasm.Code{
			{
				LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeF64},
				Body: []byte{
					wasm.OpcodeLocalGet, 0x00,
					wasm.OpcodeLocalGet, 0x01,
					wasm.OpcodeI32Add,
					wasm.OpcodeEnd,
				},
			},
			{Body: []byte{wasm.OpcodeEnd}},
		},
		DataSection: []*wasm.DataSegment{{
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x08}},
			Init:       []byte("hello"),
		}},
	}

	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}
