package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

func TestEvalBinary_i32(t *testing.T) {
	tests := []struct {
		name   string
		op     wasm.Opcode
		v1, v2 uint64
		exp    uint64
	}{
		{name: "add", op: wasm.OpcodeI32Add, v1: 1, v2: 2, exp: 3},
		{name: "add wraps", op: wasm.OpcodeI32Add, v1: math.MaxUint32, v2: 1, exp: 0},
		{name: "sub wraps", op: wasm.OpcodeI32Sub, v1: 0, v2: 1, exp: math.MaxUint32},
		{name: "mul", op: wasm.OpcodeI32Mul, v1: 6, v2: 7, exp: 42},
		{name: "div_s", op: wasm.OpcodeI32DivS, v1: uint64(uint32(math.MaxUint32)), v2: 1, exp: math.MaxUint32},
		{name: "div_u", op: wasm.OpcodeI32DivU, v1: math.MaxUint32, v2: 2, exp: math.MaxUint32 / 2},
		{name: "rem_s negative", op: wasm.OpcodeI32RemS, v1: uint64(uint32(0xfffffffb)), v2: 3, exp: uint64(uint32(0xfffffffe))}, // -5 % 3 == -2
		{name: "shl masks count", op: wasm.OpcodeI32Shl, v1: 1, v2: 33, exp: 2},
		{name: "shr_s", op: wasm.OpcodeI32ShrS, v1: uint64(uint32(0x80000000)), v2: 31, exp: math.MaxUint32},
		{name: "rotl", op: wasm.OpcodeI32Rotl, v1: 0x80000001, v2: 1, exp: 3},
		{name: "lt_s", op: wasm.OpcodeI32LtS, v1: uint64(uint32(0xffffffff)), v2: 0, exp: 1},
		{name: "lt_u", op: wasm.OpcodeI32LtU, v1: uint64(uint32(0xffffffff)), v2: 0, exp: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			actual, err := EvalBinary(tc.op, tc.v1, tc.v2)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual)
		})
	}
}

func TestEvalBinary_traps(t *testing.T) {
	var minI32 int32 = math.MinInt32
	var minI64 int64 = math.MinInt64
	tests := []struct {
		name     string
		op       wasm.Opcode
		v1, v2   uint64
		expected error
	}{
		{name: "i32.div_s by zero", op: wasm.OpcodeI32DivS, v1: 1, v2: 0, expected: wasm.ErrRuntimeIntegerDivideByZero},
		{name: "i32.div_s overflow", op: wasm.OpcodeI32DivS, v1: uint64(uint32(minI32)), v2: uint64(uint32(0xffffffff)), expected: wasm.ErrRuntimeIntegerOverflow},
		{name: "i32.rem_u by zero", op: wasm.OpcodeI32RemU, v1: 1, v2: 0, expected: wasm.ErrRuntimeIntegerDivideByZero},
		{name: "i64.div_u by zero", op: wasm.OpcodeI64DivU, v1: 1, v2: 0, expected: wasm.ErrRuntimeIntegerDivideByZero},
		{name: "i64.div_s overflow", op: wasm.OpcodeI64DivS, v1: uint64(minI64), v2: math.MaxUint64, expected: wasm.ErrRuntimeIntegerOverflow},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := EvalBinary(tc.op, tc.v1, tc.v2)
			require.Equal(t, tc.expected, err)
		})
	}
}

func TestEvalBinary_i32RemS_minIntByMinusOne(t *testing.T) {
	// Unlike division, remainder of MinInt32 by -1 is defined as zero.
	var minI32 int32 = math.MinInt32
	actual, err := EvalBinary(wasm.OpcodeI32RemS, uint64(uint32(minI32)), uint64(uint32(0xffffffff)))
	require.NoError(t, err)
	require.Zero(t, actual)
}

func TestEvalBinary_floatMinMax(t *testing.T) {
	nan := wasm.EncodeF64(math.NaN())
	negZero := wasm.EncodeF64(math.Copysign(0, -1))
	posZero := wasm.EncodeF64(0)

	v, err := EvalBinary(wasm.OpcodeF64Min, nan, wasm.EncodeF64(1))
	require.NoError(t, err)
	require.True(t, math.IsNaN(wasm.DecodeF64(v)))

	v, err = EvalBinary(wasm.OpcodeF64Min, posZero, negZero)
	require.NoError(t, err)
	require.True(t, math.Signbit(wasm.DecodeF64(v)))

	v, err = EvalBinary(wasm.OpcodeF64Max, posZero, negZero)
	require.NoError(t, err)
	require.False(t, math.Signbit(wasm.DecodeF64(v)))
}

func TestEvalBinary_f32Precision(t *testing.T) {
	// The sum must round in float32 precision, not float64.
	v1 := wasm.EncodeF32(16777216) // 2**24
	v2 := wasm.EncodeF32(1)
	v, err := EvalBinary(wasm.OpcodeF32Add, v1, v2)
	require.NoError(t, err)
	require.Equal(t, float32(16777216), wasm.DecodeF32(v))
}

func TestEvalUnary(t *testing.T) {
	tests := []struct {
		name string
		op   wasm.Opcode
		v    uint64
		exp  uint64
	}{
		{name: "i32.eqz true", op: wasm.OpcodeI32Eqz, v: 0, exp: 1},
		{name: "i32.eqz false", op: wasm.OpcodeI32Eqz, v: 3, exp: 0},
		{name: "i32.clz", op: wasm.OpcodeI32Clz, v: 1, exp: 31},
		{name: "i32.ctz", op: wasm.OpcodeI32Ctz, v: 8, exp: 3},
		{name: "i64.popcnt", op: wasm.OpcodeI64Popcnt, v: 0xf0f0, exp: 8},
		{name: "i32.wrap_i64", op: wasm.OpcodeI32WrapI64, v: 0x1_0000_0001, exp: 1},
		{name: "i64.extend_i32_s", op: wasm.OpcodeI64ExtendI32S, v: uint64(uint32(0xffffffff)), exp: math.MaxUint64},
		{name: "i64.extend_i32_u", op: wasm.OpcodeI64ExtendI32U, v: uint64(uint32(0xffffffff)), exp: math.MaxUint32},
		{name: "i32.extend8_s", op: wasm.OpcodeI32Extend8S, v: 0x80, exp: uint64(uint32(0xffffff80))},
		{name: "i64.extend32_s", op: wasm.OpcodeI64Extend32S, v: 0x80000000, exp: 0xffffffff80000000},
		{name: "f64.sqrt", op: wasm.OpcodeF64Sqrt, v: wasm.EncodeF64(9), exp: wasm.EncodeF64(3)},
		{name: "f32.neg", op: wasm.OpcodeF32Neg, v: wasm.EncodeF32(1.5), exp: wasm.EncodeF32(-1.5)},
		{name: "f64.nearest ties to even", op: wasm.OpcodeF64Nearest, v: wasm.EncodeF64(2.5), exp: wasm.EncodeF64(2)},
		{name: "i32.trunc_f64_s", op: wasm.OpcodeI32TruncF64S, v: wasm.EncodeF64(-3.9), exp: uint64(uint32(0xfffffffd))},
		{name: "f32.convert_i32_s", op: wasm.OpcodeF32ConvertI32S, v: uint64(uint32(0xffffffff)), exp: wasm.EncodeF32(-1)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			actual, err := EvalUnary(tc.op, tc.v)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual)
		})
	}
}

func TestEvalUnary_truncTraps(t *testing.T) {
	tests := []struct {
		name     string
		op       wasm.Opcode
		v        uint64
		expected error
	}{
		{name: "nan", op: wasm.OpcodeI32TruncF64S, v: wasm.EncodeF64(math.NaN()), expected: wasm.ErrRuntimeInvalidConversionToInteger},
		{name: "too large", op: wasm.OpcodeI32TruncF64S, v: wasm.EncodeF64(math.MaxInt32 + 1), expected: wasm.ErrRuntimeIntegerOverflow},
		{name: "negative unsigned", op: wasm.OpcodeI32TruncF64U, v: wasm.EncodeF64(-1), expected: wasm.ErrRuntimeIntegerOverflow},
		{name: "inf", op: wasm.OpcodeI64TruncF32S, v: wasm.EncodeF32(float32(math.Inf(1))), expected: wasm.ErrRuntimeIntegerOverflow},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := EvalUnary(tc.op, tc.v)
			require.Equal(t, tc.expected, err)
		})
	}
}

func TestEvalUnaryMisc_saturates(t *testing.T) {
	tests := []struct {
		name string
		op   wasm.Opcode
		v    uint64
		exp  uint64
	}{
		{name: "i32_s nan", op: wasm.OpcodeMiscI32TruncSatF64S, v: wasm.EncodeF64(math.NaN()), exp: 0},
		{name: "i32_s clamps high", op: wasm.OpcodeMiscI32TruncSatF64S, v: wasm.EncodeF64(1e18), exp: uint64(uint32(math.MaxInt32))},
		{name: "i32_s clamps low", op: wasm.OpcodeMiscI32TruncSatF64S, v: wasm.EncodeF64(-1e18), exp: 0x8000_0000},
		{name: "i32_s clamps far low", op: wasm.OpcodeMiscI32TruncSatF64S, v: wasm.EncodeF64(-1e30), exp: 0x8000_0000},
		{name: "i32_u negative", op: wasm.OpcodeMiscI32TruncSatF64U, v: wasm.EncodeF64(-5), exp: 0},
		{name: "i32_u clamps high", op: wasm.OpcodeMiscI32TruncSatF64U, v: wasm.EncodeF64(1e30), exp: 0xffff_ffff},
		{name: "i64_s clamps low", op: wasm.OpcodeMiscI64TruncSatF64S, v: wasm.EncodeF64(-1e300), exp: 0x8000_0000_0000_0000},
		{name: "i64_u clamps high", op: wasm.OpcodeMiscI64TruncSatF64U, v: wasm.EncodeF64(1e30), exp: math.MaxUint64},
		{name: "i64_s in range", op: wasm.OpcodeMiscI64TruncSatF64S, v: wasm.EncodeF64(-42.9), exp: 0xffff_ffff_ffff_ffd6},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			actual, err := EvalUnaryMisc(tc.op, tc.v)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual)
		})
	}
}
