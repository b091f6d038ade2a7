package wasm

import (
	"bytes"
	"fmt"

	"github.com/utnet-org/wasmer2/internal/ieee754"
	"github.com/utnet-org/wasmer2/internal/leb128"
)

// evaluateConstExpression executes an initializer against the globals visible
// at its position: imported globals plus any previously-defined ones. The
// result is returned in the 64-bit ABI representation alongside its type.
func evaluateConstExpression(globals []*GlobalInstance, expr *ConstantExpression) (val uint64, valType ValueType, err error) {
	r := bytes.NewReader(expr.Data)
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, decodeErr := leb128.DecodeInt32(r)
		if decodeErr != nil {
			return 0, 0, fmt.Errorf("i32.const initializer: %w", decodeErr)
		}
		val, valType = EncodeI32(v), ValueTypeI32
	case OpcodeI64Const:
		v, _, decodeErr := leb128.DecodeInt64(r)
		if decodeErr != nil {
			return 0, 0, fmt.Errorf("i64.const initializer: %w", decodeErr)
		}
		val, valType = EncodeI64(v), ValueTypeI64
	case OpcodeF32Const:
		v, decodeErr := ieee754.DecodeFloat32(r)
		if decodeErr != nil {
			return 0, 0, fmt.Errorf("f32.const initializer: %w", decodeErr)
		}
		val, valType = EncodeF32(v), ValueTypeF32
	case OpcodeF64Const:
		v, decodeErr := ieee754.DecodeFloat64(r)
		if decodeErr != nil {
			return 0, 0, fmt.Errorf("f64.const initializer: %w", decodeErr)
		}
		val, valType = EncodeF64(v), ValueTypeF64
	case OpcodeGlobalGet:
		id, _, decodeErr := leb128.DecodeUint32(r)
		if decodeErr != nil {
			return 0, 0, fmt.Errorf("global.get initializer: %w", decodeErr)
		}
		if int(id) >= len(globals) {
			return 0, 0, fmt.Errorf("global.get initializer refers to unknown global %d", id)
		}
		g := globals[id]
		val, valType = g.Val, g.Type.ValType
	default:
		return 0, 0, fmt.Errorf("invalid initializer opcode %#x", expr.Opcode)
	}
	return
}

// constExprGlobalIndex returns the global index a global.get initializer refers to.
func constExprGlobalIndex(expr *ConstantExpression) (Index, error) {
	id, _, err := leb128.DecodeUint32(bytes.NewReader(expr.Data))
	if err != nil {
		return 0, fmt.Errorf("global.get initializer: %w", err)
	}
	return id, nil
}
