package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateConstExpression(t *testing.T) {
	globals := []*GlobalInstance{
		{Type: &GlobalType{ValType: ValueTypeF64}, Val: EncodeF64(1.5)},
	}
	tests := []struct {
		name     string
		expr     *ConstantExpression
		expected uint64
		expType  ValueType
	}{
		{
			name:     "i32.const",
			expr:     &ConstantExpression{Opcode: OpcodeI32Const, Data: []byte{0x7f}}, // -1
			expected: EncodeI32(-1),
			expType:  ValueTypeI32,
		},
		{
			name:     "i64.const",
			expr:     &ConstantExpression{Opcode: OpcodeI64Const, Data: []byte{0x2a}},
			expected: 42,
			expType:  ValueTypeI64,
		},
		{
			name:     "f32.const",
			expr:     &ConstantExpression{Opcode: OpcodeF32Const, Data: []byte{0x00, 0x00, 0x80, 0x3f}},
			expected: EncodeF32(1.0),
			expType:  ValueTypeF32,
		},
		{
			name:     "f64.const",
			expr:     &ConstantExpression{Opcode: OpcodeF64Const, Data: []byte{0, 0, 0, 0, 0, 0, 0xf8, 0x3f}},
			expected: EncodeF64(1.5),
			expType:  ValueTypeF64,
		},
		{
			name:     "global.get",
			expr:     &ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0x00}},
			expected: EncodeF64(1.5),
			expType:  ValueTypeF64,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			val, valType, err := evaluateConstExpression(globals, tc.expr)
			require.NoError(t, err)
			require.Equal(t, tc.expected, val)
			require.Equal(t, tc.expType, valType)
		})
	}
}

func TestEvaluateConstExpression_errors(t *testing.T) {
	_, _, err := evaluateConstExpression(nil, &ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0x03}})
	require.EqualError(t, err, "global.get initializer refers to unknown global 3")

	_, _, err = evaluateConstExpression(nil, &ConstantExpression{Opcode: OpcodeUnreachable})
	require.EqualError(t, err, "invalid initializer opcode 0x0")
}
