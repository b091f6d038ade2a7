package ir

import (
	"io"
	"math/bits"

	"github.com/utnet-org/wasmer2/internal/ieee754"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// emitUnary emits a unary or conversion operation, folding it into a preceding
// constant when the backend enabled constant folding. Trapping conversions are
// left for runtime so traps keep their location.
func (c *compiler) emitUnary(op byte, offset uint32) {
	if c.opts.FoldConstants && !canTrapUnary(op) {
		if n := len(c.ops); n >= 1 && n > c.barrier && c.ops[n-1].Kind == OperationKindConst {
			if v, err := EvalUnary(op, c.ops[n-1].U1); err == nil {
				c.ops[n-1].U1 = v
				return
			}
		}
	}
	c.emit(Op{Kind: OperationKindUnary, B1: op, Offset: offset})
}

// emitUnaryMisc emits a saturating conversion. These never trap, so they are
// always foldable.
func (c *compiler) emitUnaryMisc(op byte, offset uint32) {
	if c.opts.FoldConstants {
		if n := len(c.ops); n >= 1 && n > c.barrier && c.ops[n-1].Kind == OperationKindConst {
			if v, err := EvalUnaryMisc(op, c.ops[n-1].U1); err == nil {
				c.ops[n-1].U1 = v
				return
			}
		}
	}
	c.emit(Op{Kind: OperationKindUnaryMisc, B1: op, Offset: offset})
}

// emitBinary emits a binary numeric or comparison operation, applying constant
// folding and strength reduction when the backend enabled them.
func (c *compiler) emitBinary(op byte, offset uint32) {
	c.height--

	if c.opts.FoldConstants && !canTrap(op) {
		if n := len(c.ops); n >= 2 && n-1 > c.barrier &&
			c.ops[n-1].Kind == OperationKindConst && c.ops[n-2].Kind == OperationKindConst {
			if v, err := EvalBinary(op, c.ops[n-2].U1, c.ops[n-1].U1); err == nil {
				c.ops[n-2].U1 = v
				c.ops = c.ops[:n-1]
				return
			}
		}
	}

	if c.opts.StrengthReduce && c.reduceBinary(op) {
		return
	}

	c.emit(Op{Kind: OperationKindBinary, B1: op, Offset: offset})
}

// reduceBinary rewrites a binary operation whose right operand is a constant
// into a cheaper equivalent, returning true when the operation was absorbed.
// Only rewrites with identical results for every left operand are applied.
func (c *compiler) reduceBinary(op byte) bool {
	n := len(c.ops)
	if n < 1 || n <= c.barrier || c.ops[n-1].Kind != OperationKindConst {
		return false
	}
	rhs := &c.ops[n-1]

	switch op {
	case wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU,
		wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr:
		if uint32(rhs.U1) == 0 {
			c.ops = c.ops[:n-1]
			return true
		}
	case wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU,
		wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr:
		if rhs.U1 == 0 {
			c.ops = c.ops[:n-1]
			return true
		}
	}

	switch op {
	case wasm.OpcodeI32Mul:
		v := uint32(rhs.U1)
		if v == 1 {
			c.ops = c.ops[:n-1]
			return true
		}
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = uint64(bits.TrailingZeros32(v))
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI32Shl, Offset: rhs.Offset})
			return true
		}
	case wasm.OpcodeI64Mul:
		v := rhs.U1
		if v == 1 {
			c.ops = c.ops[:n-1]
			return true
		}
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = uint64(bits.TrailingZeros64(v))
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI64Shl, Offset: rhs.Offset})
			return true
		}
	case wasm.OpcodeI32DivU:
		v := uint32(rhs.U1)
		if v == 1 {
			c.ops = c.ops[:n-1]
			return true
		}
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = uint64(bits.TrailingZeros32(v))
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI32ShrU, Offset: rhs.Offset})
			return true
		}
	case wasm.OpcodeI64DivU:
		v := rhs.U1
		if v == 1 {
			c.ops = c.ops[:n-1]
			return true
		}
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = uint64(bits.TrailingZeros64(v))
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI64ShrU, Offset: rhs.Offset})
			return true
		}
	case wasm.OpcodeI32RemU:
		v := uint32(rhs.U1)
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = uint64(v - 1)
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI32And, Offset: rhs.Offset})
			return true
		}
	case wasm.OpcodeI64RemU:
		v := rhs.U1
		if v != 0 && v&(v-1) == 0 {
			rhs.U1 = v - 1
			c.emit(Op{Kind: OperationKindBinary, B1: wasm.OpcodeI64And, Offset: rhs.Offset})
			return true
		}
	}
	return false
}

// canTrapUnary reports whether a unary conversion can trap at runtime.
func canTrapUnary(op byte) bool {
	switch op {
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U,
		wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U:
		return true
	}
	return false
}

func ieee754DecodeF32(r io.Reader) (uint64, error) {
	f, err := ieee754.DecodeFloat32(r)
	if err != nil {
		return 0, err
	}
	return wasm.EncodeF32(f), nil
}

func ieee754DecodeF64(r io.Reader) (uint64, error) {
	f, err := ieee754.DecodeFloat64(r)
	if err != nil {
		return 0, err
	}
	return wasm.EncodeF64(f), nil
}
