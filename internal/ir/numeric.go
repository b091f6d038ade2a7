package ir

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/utnet-org/wasmer2/internal/wasm"
)

func errUnsupportedOpcode(oc wasm.Opcode) error {
	return fmt.Errorf("unsupported opcode 0x%x", oc)
}

// IsBinaryOp returns true if the opcode pops two operands and pushes one.
func IsBinaryOp(oc wasm.Opcode) bool {
	switch {
	case oc >= wasm.OpcodeI32Eq && oc <= wasm.OpcodeF64Ge && oc != wasm.OpcodeI64Eqz:
		return true
	case oc >= wasm.OpcodeI32Add && oc <= wasm.OpcodeI32Rotr:
		return true
	case oc >= wasm.OpcodeI64Add && oc <= wasm.OpcodeI64Rotr:
		return true
	case oc >= wasm.OpcodeF32Add && oc <= wasm.OpcodeF32Copysign:
		return true
	case oc >= wasm.OpcodeF64Add && oc <= wasm.OpcodeF64Copysign:
		return true
	}
	return false
}

// IsUnaryOp returns true if the opcode pops one operand and pushes one,
// including the test and conversion instructions.
func IsUnaryOp(oc wasm.Opcode) bool {
	switch {
	case oc == wasm.OpcodeI32Eqz || oc == wasm.OpcodeI64Eqz:
		return true
	case oc >= wasm.OpcodeI32Clz && oc <= wasm.OpcodeI32Popcnt:
		return true
	case oc >= wasm.OpcodeI64Clz && oc <= wasm.OpcodeI64Popcnt:
		return true
	case oc >= wasm.OpcodeF32Abs && oc <= wasm.OpcodeF32Sqrt:
		return true
	case oc >= wasm.OpcodeF64Abs && oc <= wasm.OpcodeF64Sqrt:
		return true
	case oc >= wasm.OpcodeI32WrapI64 && oc <= wasm.OpcodeF64ReinterpretI64:
		return true
	case oc >= wasm.OpcodeI32Extend8S && oc <= wasm.OpcodeI64Extend32S:
		return true
	}
	return false
}

// canTrap returns true for binary opcodes whose evaluation can trap, which the
// constant folder must leave to runtime.
func canTrap(oc wasm.Opcode) bool {
	switch oc {
	case wasm.OpcodeI32DivS, wasm.OpcodeI32DivU, wasm.OpcodeI32RemS, wasm.OpcodeI32RemU,
		wasm.OpcodeI64DivS, wasm.OpcodeI64DivU, wasm.OpcodeI64RemS, wasm.OpcodeI64RemU:
		return true
	}
	switch oc {
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U,
		wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U:
		return true
	}
	return false
}

// EvalBinary applies a binary numeric or comparison opcode to two operands in
// the 64-bit ABI representation. The returned error is one of the ErrRuntime
// sentinels when the operation traps.
func EvalBinary(oc wasm.Opcode, v1, v2 uint64) (uint64, error) {
	switch oc {
	// i32 comparisons
	case wasm.OpcodeI32Eq:
		return b2i(uint32(v1) == uint32(v2)), nil
	case wasm.OpcodeI32Ne:
		return b2i(uint32(v1) != uint32(v2)), nil
	case wasm.OpcodeI32LtS:
		return b2i(int32(v1) < int32(v2)), nil
	case wasm.OpcodeI32LtU:
		return b2i(uint32(v1) < uint32(v2)), nil
	case wasm.OpcodeI32GtS:
		return b2i(int32(v1) > int32(v2)), nil
	case wasm.OpcodeI32GtU:
		return b2i(uint32(v1) > uint32(v2)), nil
	case wasm.OpcodeI32LeS:
		return b2i(int32(v1) <= int32(v2)), nil
	case wasm.OpcodeI32LeU:
		return b2i(uint32(v1) <= uint32(v2)), nil
	case wasm.OpcodeI32GeS:
		return b2i(int32(v1) >= int32(v2)), nil
	case wasm.OpcodeI32GeU:
		return b2i(uint32(v1) >= uint32(v2)), nil

	// i64 comparisons
	case wasm.OpcodeI64Eq:
		return b2i(v1 == v2), nil
	case wasm.OpcodeI64Ne:
		return b2i(v1 != v2), nil
	case wasm.OpcodeI64LtS:
		return b2i(int64(v1) < int64(v2)), nil
	case wasm.OpcodeI64LtU:
		return b2i(v1 < v2), nil
	case wasm.OpcodeI64GtS:
		return b2i(int64(v1) > int64(v2)), nil
	case wasm.OpcodeI64GtU:
		return b2i(v1 > v2), nil
	case wasm.OpcodeI64LeS:
		return b2i(int64(v1) <= int64(v2)), nil
	case wasm.OpcodeI64LeU:
		return b2i(v1 <= v2), nil
	case wasm.OpcodeI64GeS:
		return b2i(int64(v1) >= int64(v2)), nil
	case wasm.OpcodeI64GeU:
		return b2i(v1 >= v2), nil

	// f32 comparisons
	case wasm.OpcodeF32Eq:
		return b2i(wasm.DecodeF32(v1) == wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Ne:
		return b2i(wasm.DecodeF32(v1) != wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Lt:
		return b2i(wasm.DecodeF32(v1) < wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Gt:
		return b2i(wasm.DecodeF32(v1) > wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Le:
		return b2i(wasm.DecodeF32(v1) <= wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Ge:
		return b2i(wasm.DecodeF32(v1) >= wasm.DecodeF32(v2)), nil

	// f64 comparisons
	case wasm.OpcodeF64Eq:
		return b2i(wasm.DecodeF64(v1) == wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Ne:
		return b2i(wasm.DecodeF64(v1) != wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Lt:
		return b2i(wasm.DecodeF64(v1) < wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Gt:
		return b2i(wasm.DecodeF64(v1) > wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Le:
		return b2i(wasm.DecodeF64(v1) <= wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Ge:
		return b2i(wasm.DecodeF64(v1) >= wasm.DecodeF64(v2)), nil

	// i32 arithmetic
	case wasm.OpcodeI32Add:
		return uint64(uint32(v1) + uint32(v2)), nil
	case wasm.OpcodeI32Sub:
		return uint64(uint32(v1) - uint32(v2)), nil
	case wasm.OpcodeI32Mul:
		return uint64(uint32(v1) * uint32(v2)), nil
	case wasm.OpcodeI32DivS:
		if uint32(v2) == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		if int32(v1) == math.MinInt32 && int32(v2) == -1 {
			return 0, wasm.ErrRuntimeIntegerOverflow
		}
		return uint64(uint32(int32(v1) / int32(v2))), nil
	case wasm.OpcodeI32DivU:
		if uint32(v2) == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return uint64(uint32(v1) / uint32(v2)), nil
	case wasm.OpcodeI32RemS:
		if uint32(v2) == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return uint64(uint32(int32(v1) % int32(v2))), nil
	case wasm.OpcodeI32RemU:
		if uint32(v2) == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return uint64(uint32(v1) % uint32(v2)), nil
	case wasm.OpcodeI32And:
		return uint64(uint32(v1) & uint32(v2)), nil
	case wasm.OpcodeI32Or:
		return uint64(uint32(v1) | uint32(v2)), nil
	case wasm.OpcodeI32Xor:
		return uint64(uint32(v1) ^ uint32(v2)), nil
	case wasm.OpcodeI32Shl:
		return uint64(uint32(v1) << (uint32(v2) % 32)), nil
	case wasm.OpcodeI32ShrS:
		return uint64(uint32(int32(v1) >> (uint32(v2) % 32))), nil
	case wasm.OpcodeI32ShrU:
		return uint64(uint32(v1) >> (uint32(v2) % 32)), nil
	case wasm.OpcodeI32Rotl:
		return uint64(bits.RotateLeft32(uint32(v1), int(uint32(v2)%32))), nil
	case wasm.OpcodeI32Rotr:
		return uint64(bits.RotateLeft32(uint32(v1), -int(uint32(v2)%32))), nil

	// i64 arithmetic
	case wasm.OpcodeI64Add:
		return v1 + v2, nil
	case wasm.OpcodeI64Sub:
		return v1 - v2, nil
	case wasm.OpcodeI64Mul:
		return v1 * v2, nil
	case wasm.OpcodeI64DivS:
		if v2 == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		if int64(v1) == math.MinInt64 && int64(v2) == -1 {
			return 0, wasm.ErrRuntimeIntegerOverflow
		}
		return uint64(int64(v1) / int64(v2)), nil
	case wasm.OpcodeI64DivU:
		if v2 == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return v1 / v2, nil
	case wasm.OpcodeI64RemS:
		if v2 == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return uint64(int64(v1) % int64(v2)), nil
	case wasm.OpcodeI64RemU:
		if v2 == 0 {
			return 0, wasm.ErrRuntimeIntegerDivideByZero
		}
		return v1 % v2, nil
	case wasm.OpcodeI64And:
		return v1 & v2, nil
	case wasm.OpcodeI64Or:
		return v1 | v2, nil
	case wasm.OpcodeI64Xor:
		return v1 ^ v2, nil
	case wasm.OpcodeI64Shl:
		return v1 << (v2 % 64), nil
	case wasm.OpcodeI64ShrS:
		return uint64(int64(v1) >> (v2 % 64)), nil
	case wasm.OpcodeI64ShrU:
		return v1 >> (v2 % 64), nil
	case wasm.OpcodeI64Rotl:
		return bits.RotateLeft64(v1, int(v2%64)), nil
	case wasm.OpcodeI64Rotr:
		return bits.RotateLeft64(v1, -int(v2%64)), nil

	// f32 arithmetic
	case wasm.OpcodeF32Add:
		return wasm.EncodeF32(wasm.DecodeF32(v1) + wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Sub:
		return wasm.EncodeF32(wasm.DecodeF32(v1) - wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Mul:
		return wasm.EncodeF32(wasm.DecodeF32(v1) * wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Div:
		return wasm.EncodeF32(wasm.DecodeF32(v1) / wasm.DecodeF32(v2)), nil
	case wasm.OpcodeF32Min:
		return wasm.EncodeF32(float32(wasmCompatMin(float64(wasm.DecodeF32(v1)), float64(wasm.DecodeF32(v2))))), nil
	case wasm.OpcodeF32Max:
		return wasm.EncodeF32(float32(wasmCompatMax(float64(wasm.DecodeF32(v1)), float64(wasm.DecodeF32(v2))))), nil
	case wasm.OpcodeF32Copysign:
		return wasm.EncodeF32(float32(math.Copysign(float64(wasm.DecodeF32(v1)), float64(wasm.DecodeF32(v2))))), nil

	// f64 arithmetic
	case wasm.OpcodeF64Add:
		return wasm.EncodeF64(wasm.DecodeF64(v1) + wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Sub:
		return wasm.EncodeF64(wasm.DecodeF64(v1) - wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Mul:
		return wasm.EncodeF64(wasm.DecodeF64(v1) * wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Div:
		return wasm.EncodeF64(wasm.DecodeF64(v1) / wasm.DecodeF64(v2)), nil
	case wasm.OpcodeF64Min:
		return wasm.EncodeF64(wasmCompatMin(wasm.DecodeF64(v1), wasm.DecodeF64(v2))), nil
	case wasm.OpcodeF64Max:
		return wasm.EncodeF64(wasmCompatMax(wasm.DecodeF64(v1), wasm.DecodeF64(v2))), nil
	case wasm.OpcodeF64Copysign:
		return wasm.EncodeF64(math.Copysign(wasm.DecodeF64(v1), wasm.DecodeF64(v2))), nil
	}
	return 0, errUnsupportedOpcode(oc)
}

// EvalUnary applies a unary, test or conversion opcode to one operand in the
// 64-bit ABI representation.
func EvalUnary(oc wasm.Opcode, v uint64) (uint64, error) {
	switch oc {
	case wasm.OpcodeI32Eqz:
		return b2i(uint32(v) == 0), nil
	case wasm.OpcodeI64Eqz:
		return b2i(v == 0), nil
	case wasm.OpcodeI32Clz:
		return uint64(bits.LeadingZeros32(uint32(v))), nil
	case wasm.OpcodeI32Ctz:
		return uint64(bits.TrailingZeros32(uint32(v))), nil
	case wasm.OpcodeI32Popcnt:
		return uint64(bits.OnesCount32(uint32(v))), nil
	case wasm.OpcodeI64Clz:
		return uint64(bits.LeadingZeros64(v)), nil
	case wasm.OpcodeI64Ctz:
		return uint64(bits.TrailingZeros64(v)), nil
	case wasm.OpcodeI64Popcnt:
		return uint64(bits.OnesCount64(v)), nil

	case wasm.OpcodeF32Abs:
		return wasm.EncodeF32(float32(math.Abs(float64(wasm.DecodeF32(v))))), nil
	case wasm.OpcodeF32Neg:
		return wasm.EncodeF32(-wasm.DecodeF32(v)), nil
	case wasm.OpcodeF32Ceil:
		return wasm.EncodeF32(float32(math.Ceil(float64(wasm.DecodeF32(v))))), nil
	case wasm.OpcodeF32Floor:
		return wasm.EncodeF32(float32(math.Floor(float64(wasm.DecodeF32(v))))), nil
	case wasm.OpcodeF32Trunc:
		return wasm.EncodeF32(float32(math.Trunc(float64(wasm.DecodeF32(v))))), nil
	case wasm.OpcodeF32Nearest:
		return wasm.EncodeF32(wasmCompatNearestF32(wasm.DecodeF32(v))), nil
	case wasm.OpcodeF32Sqrt:
		return wasm.EncodeF32(float32(math.Sqrt(float64(wasm.DecodeF32(v))))), nil

	case wasm.OpcodeF64Abs:
		return wasm.EncodeF64(math.Abs(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64Neg:
		return wasm.EncodeF64(-wasm.DecodeF64(v)), nil
	case wasm.OpcodeF64Ceil:
		return wasm.EncodeF64(math.Ceil(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64Floor:
		return wasm.EncodeF64(math.Floor(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64Trunc:
		return wasm.EncodeF64(math.Trunc(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64Nearest:
		return wasm.EncodeF64(math.RoundToEven(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64Sqrt:
		return wasm.EncodeF64(math.Sqrt(wasm.DecodeF64(v))), nil

	case wasm.OpcodeI32WrapI64:
		return uint64(uint32(v)), nil
	case wasm.OpcodeI32TruncF32S:
		return truncI32S(float64(wasm.DecodeF32(v)))
	case wasm.OpcodeI32TruncF32U:
		return truncI32U(float64(wasm.DecodeF32(v)))
	case wasm.OpcodeI32TruncF64S:
		return truncI32S(wasm.DecodeF64(v))
	case wasm.OpcodeI32TruncF64U:
		return truncI32U(wasm.DecodeF64(v))
	case wasm.OpcodeI64ExtendI32S:
		return uint64(int64(int32(v))), nil
	case wasm.OpcodeI64ExtendI32U:
		return uint64(uint32(v)), nil
	case wasm.OpcodeI64TruncF32S:
		return truncI64S(float64(wasm.DecodeF32(v)))
	case wasm.OpcodeI64TruncF32U:
		return truncI64U(float64(wasm.DecodeF32(v)))
	case wasm.OpcodeI64TruncF64S:
		return truncI64S(wasm.DecodeF64(v))
	case wasm.OpcodeI64TruncF64U:
		return truncI64U(wasm.DecodeF64(v))
	case wasm.OpcodeF32ConvertI32S:
		return wasm.EncodeF32(float32(int32(v))), nil
	case wasm.OpcodeF32ConvertI32U:
		return wasm.EncodeF32(float32(uint32(v))), nil
	case wasm.OpcodeF32ConvertI64S:
		return wasm.EncodeF32(float32(int64(v))), nil
	case wasm.OpcodeF32ConvertI64U:
		return wasm.EncodeF32(float32(v)), nil
	case wasm.OpcodeF32DemoteF64:
		return wasm.EncodeF32(float32(wasm.DecodeF64(v))), nil
	case wasm.OpcodeF64ConvertI32S:
		return wasm.EncodeF64(float64(int32(v))), nil
	case wasm.OpcodeF64ConvertI32U:
		return wasm.EncodeF64(float64(uint32(v))), nil
	case wasm.OpcodeF64ConvertI64S:
		return wasm.EncodeF64(float64(int64(v))), nil
	case wasm.OpcodeF64ConvertI64U:
		return wasm.EncodeF64(float64(v)), nil
	case wasm.OpcodeF64PromoteF32:
		return wasm.EncodeF64(float64(wasm.DecodeF32(v))), nil
	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeF32ReinterpretI32:
		return uint64(uint32(v)), nil
	case wasm.OpcodeI64ReinterpretF64, wasm.OpcodeF64ReinterpretI64:
		return v, nil

	case wasm.OpcodeI32Extend8S:
		return uint64(uint32(int32(int8(v)))), nil
	case wasm.OpcodeI32Extend16S:
		return uint64(uint32(int32(int16(v)))), nil
	case wasm.OpcodeI64Extend8S:
		return uint64(int64(int8(v))), nil
	case wasm.OpcodeI64Extend16S:
		return uint64(int64(int16(v))), nil
	case wasm.OpcodeI64Extend32S:
		return uint64(int64(int32(v))), nil
	}
	return 0, errUnsupportedOpcode(oc)
}

// EvalUnaryMisc applies a 0xfc-prefixed opcode, currently the saturating
// truncations, which clamp instead of trapping.
func EvalUnaryMisc(oc wasm.Opcode, v uint64) (uint64, error) {
	switch oc {
	case wasm.OpcodeMiscI32TruncSatF32S:
		return truncSatI32S(float64(wasm.DecodeF32(v))), nil
	case wasm.OpcodeMiscI32TruncSatF32U:
		return truncSatI32U(float64(wasm.DecodeF32(v))), nil
	case wasm.OpcodeMiscI32TruncSatF64S:
		return truncSatI32S(wasm.DecodeF64(v)), nil
	case wasm.OpcodeMiscI32TruncSatF64U:
		return truncSatI32U(wasm.DecodeF64(v)), nil
	case wasm.OpcodeMiscI64TruncSatF32S:
		return truncSatI64S(float64(wasm.DecodeF32(v))), nil
	case wasm.OpcodeMiscI64TruncSatF32U:
		return truncSatI64U(float64(wasm.DecodeF32(v))), nil
	case wasm.OpcodeMiscI64TruncSatF64S:
		return truncSatI64S(wasm.DecodeF64(v)), nil
	case wasm.OpcodeMiscI64TruncSatF64U:
		return truncSatI64U(wasm.DecodeF64(v)), nil
	}
	return 0, errUnsupportedOpcode(oc)
}

func b2i(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// wasmCompatMin implements the spec-compatible min: NaN wins, and -0 < +0.
func wasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// wasmCompatMax implements the spec-compatible max: NaN wins, and +0 > -0.
func wasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// wasmCompatNearestF32 rounds to nearest, ties to even, in float32 precision.
func wasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}

func truncI32S(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, wasm.ErrRuntimeInvalidConversionToInteger
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, wasm.ErrRuntimeIntegerOverflow
	}
	return uint64(uint32(int32(t))), nil
}

func truncI32U(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, wasm.ErrRuntimeInvalidConversionToInteger
	}
	t := math.Trunc(f)
	if t < 0 || t > math.MaxUint32 {
		return 0, wasm.ErrRuntimeIntegerOverflow
	}
	return uint64(uint32(t)), nil
}

func truncI64S(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, wasm.ErrRuntimeInvalidConversionToInteger
	}
	t := math.Trunc(f)
	// Boundary values are not representable exactly in float64, so compare
	// against the limits it can encode.
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, wasm.ErrRuntimeIntegerOverflow
	}
	return uint64(int64(t)), nil
}

func truncI64U(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, wasm.ErrRuntimeInvalidConversionToInteger
	}
	t := math.Trunc(f)
	if t < 0 || t >= math.MaxUint64 {
		return 0, wasm.ErrRuntimeIntegerOverflow
	}
	return uint64(t), nil
}

func truncSatI32S(f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt32 {
		return 0x8000_0000 // int32 minimum
	}
	if t > math.MaxInt32 {
		return uint64(uint32(int32(math.MaxInt32)))
	}
	return uint64(uint32(int32(t)))
}

func truncSatI32U(f float64) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	if t > math.MaxUint32 {
		return uint64(uint32(math.MaxUint32))
	}
	return uint64(uint32(t))
}

func truncSatI64S(f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt64 {
		return 0x8000_0000_0000_0000 // int64 minimum
	}
	if t >= math.MaxInt64 {
		return uint64(math.MaxInt64)
	}
	return uint64(int64(t))
}

func truncSatI64U(f float64) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	if t >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(t)
}
