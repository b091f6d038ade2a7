package backend

import (
	"context"
	"encoding/binary"

	"github.com/utnet-org/wasmer2/internal/ir"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// callStackCeiling bounds guest recursion depth. Exceeding it raises
// wasm.ErrRuntimeCallStackOverflow rather than exhausting the Go stack.
const callStackCeiling = 2048

// callDepthKey carries the accumulated guest call depth through the context
// whenever execution leaves a callEngine: into another artifact's Call or into
// a host function. The receiving side seeds its own engine from it, so
// recursion that bounces between artifacts (or re-enters through a host
// callback) shares one ceiling instead of restarting at zero.
type callDepthKey struct{}

// callDepth extracts the depth accumulated by enclosing invocations, if any.
func callDepth(ctx context.Context) int {
	depth, _ := ctx.Value(callDepthKey{}).(int)
	return depth
}

// callEngine executes lowered code for one artifact invocation. Guest calls
// within the same artifact recurse directly; calls that leave the artifact go
// back through the owning artifact's Call so mixed-backend linking works.
type callEngine struct {
	artifact *artifact
	depth    int
}

// invoke dispatches one function call, host or guest.
func (ce *callEngine) invoke(ctx context.Context, f *wasm.FunctionInstance, params []uint64) []uint64 {
	if f.Kind == wasm.FunctionKindGo {
		results, err := f.GoFunc(context.WithValue(ctx, callDepthKey{}, ce.depth), params)
		if err != nil {
			panic(err)
		}
		return results
	}

	owner, ok := f.Module.Artifact.(*artifact)
	if !ok || owner != ce.artifact {
		ctx = context.WithValue(ctx, callDepthKey{}, ce.depth)
		results, err := f.Module.Artifact.Call(ctx, f.Module, f, params)
		if err != nil {
			panic(err)
		}
		return results
	}
	return ce.exec(ctx, f, params)
}

// exec runs one lowered function body to completion.
func (ce *callEngine) exec(ctx context.Context, f *wasm.FunctionInstance, params []uint64) []uint64 {
	ce.depth++
	defer func() { ce.depth-- }()
	if ce.depth > callStackCeiling {
		panic(trapError{cause: wasm.ErrRuntimeCallStackOverflow, functionIndex: f.Idx})
	}

	mod := f.Module
	code := ce.artifact.codes[f.Idx-ce.artifact.importCount]

	locals := make([]uint64, len(params)+int(code.LocalCount))
	copy(locals, params)
	var stack []uint64
	ops := code.Ops

	trap := func(op *ir.Op, cause error) {
		panic(trapError{cause: cause, functionIndex: f.Idx, offset: op.Offset})
	}

	pc := 0
	for pc < len(ops) {
		op := &ops[pc]
		switch op.Kind {
		case ir.OperationKindUnreachable:
			trap(op, wasm.ErrRuntimeUnreachable)
		case ir.OperationKindBr:
			stack = branchAdjust(stack, int(op.B1), int(op.U2))
			pc = int(op.U1)
			continue
		case ir.OperationKindBrIf:
			cond := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cond != 0 {
				stack = branchAdjust(stack, int(op.B1), int(op.U2))
				pc = int(op.U1)
				continue
			}
		case ir.OperationKindBrIfZero:
			cond := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cond == 0 {
				pc = int(op.U1)
				continue
			}
		case ir.OperationKindBrTable:
			idx := int(uint32(stack[len(stack)-1]))
			stack = stack[:len(stack)-1]
			pairs := len(op.Us) / 2
			if idx >= pairs-1 {
				idx = pairs - 1 // default target
			}
			stack = branchAdjust(stack, int(op.B1), int(op.Us[idx*2+1]))
			pc = int(op.Us[idx*2])
			continue
		case ir.OperationKindReturn:
			n := len(f.Type.Type.Results)
			return stack[len(stack)-n:]
		case ir.OperationKindCall:
			target := mod.Functions[op.U1]
			np := len(target.Type.Type.Params)
			args := stack[len(stack)-np:]
			results := ce.invoke(ctx, target, args)
			stack = append(stack[:len(stack)-np], results...)
		case ir.OperationKindCallIndirect:
			elemIdx := uint32(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			elem, ok := mod.Table.Get(elemIdx)
			if !ok || elem.Func == nil {
				trap(op, wasm.ErrRuntimeInvalidTableAccess)
			}
			expected := mod.Types[op.U1]
			if elem.Func.Type.TypeID != expected.TypeID {
				trap(op, wasm.ErrRuntimeIndirectCallTypeMismatch)
			}
			np := len(elem.Func.Type.Type.Params)
			args := stack[len(stack)-np:]
			results := ce.invoke(ctx, elem.Func, args)
			stack = append(stack[:len(stack)-np], results...)
		case ir.OperationKindDrop:
			stack = stack[:len(stack)-1]
		case ir.OperationKindSelect:
			cond := stack[len(stack)-1]
			if cond == 0 {
				stack[len(stack)-3] = stack[len(stack)-2]
			}
			stack = stack[:len(stack)-2]
		case ir.OperationKindLocalGet:
			stack = append(stack, locals[op.U1])
		case ir.OperationKindLocalSet:
			locals[op.U1] = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case ir.OperationKindLocalTee:
			locals[op.U1] = stack[len(stack)-1]
		case ir.OperationKindGlobalGet:
			stack = append(stack, mod.Globals[op.U1].Val)
		case ir.OperationKindGlobalSet:
			mod.Globals[op.U1].Val = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case ir.OperationKindLoad:
			base := uint32(stack[len(stack)-1])
			v, ok := loadFromMemory(mod.Memory, op.B1, uint64(base)+op.U1)
			if !ok {
				trap(op, wasm.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			stack[len(stack)-1] = v
		case ir.OperationKindStore:
			v := stack[len(stack)-1]
			base := uint32(stack[len(stack)-2])
			stack = stack[:len(stack)-2]
			if !storeToMemory(mod.Memory, op.B1, uint64(base)+op.U1, v) {
				trap(op, wasm.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case ir.OperationKindMemorySize:
			stack = append(stack, uint64(mod.Memory.Pages()))
		case ir.OperationKindMemoryGrow:
			delta := uint32(stack[len(stack)-1])
			prev, err := mod.Memory.Grow(delta)
			if err != nil {
				// The guest-visible contract is a -1 result, not a fault.
				stack[len(stack)-1] = uint64(uint32(0xffffffff))
			} else {
				stack[len(stack)-1] = uint64(prev)
			}
		case ir.OperationKindConst:
			stack = append(stack, op.U1)
		case ir.OperationKindUnary:
			v, err := ir.EvalUnary(op.B1, stack[len(stack)-1])
			if err != nil {
				trap(op, err)
			}
			stack[len(stack)-1] = v
		case ir.OperationKindBinary:
			v, err := ir.EvalBinary(op.B1, stack[len(stack)-2], stack[len(stack)-1])
			if err != nil {
				trap(op, err)
			}
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = v
		case ir.OperationKindUnaryMisc:
			v, err := ir.EvalUnaryMisc(op.B1, stack[len(stack)-1])
			if err != nil {
				trap(op, err)
			}
			stack[len(stack)-1] = v
		}
		pc++
	}
	// Lowering always terminates bodies with a return.
	return nil
}

// branchAdjust keeps the top `keep` values, removes `drop` values beneath
// them, and returns the shortened stack.
func branchAdjust(stack []uint64, keep, drop int) []uint64 {
	if drop == 0 {
		return stack
	}
	n := len(stack)
	copy(stack[n-keep-drop:], stack[n-keep:])
	return stack[:n-drop]
}

// loadFromMemory performs one linear memory read at an effective address
// already widened to 64 bits so offset arithmetic cannot wrap.
func loadFromMemory(mem *wasm.MemoryInstance, opcode byte, addr uint64) (uint64, bool) {
	buf := mem.Buffer
	end := addr + loadStoreWidth(opcode)
	if end > uint64(len(buf)) {
		return 0, false
	}
	switch opcode {
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load:
		return uint64(binary.LittleEndian.Uint32(buf[addr:])), true
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load:
		return binary.LittleEndian.Uint64(buf[addr:]), true
	case wasm.OpcodeI32Load8S:
		return uint64(uint32(int32(int8(buf[addr])))), true
	case wasm.OpcodeI32Load8U:
		return uint64(buf[addr]), true
	case wasm.OpcodeI32Load16S:
		return uint64(uint32(int32(int16(binary.LittleEndian.Uint16(buf[addr:]))))), true
	case wasm.OpcodeI32Load16U:
		return uint64(binary.LittleEndian.Uint16(buf[addr:])), true
	case wasm.OpcodeI64Load8S:
		return uint64(int64(int8(buf[addr]))), true
	case wasm.OpcodeI64Load8U:
		return uint64(buf[addr]), true
	case wasm.OpcodeI64Load16S:
		return uint64(int64(int16(binary.LittleEndian.Uint16(buf[addr:])))), true
	case wasm.OpcodeI64Load16U:
		return uint64(binary.LittleEndian.Uint16(buf[addr:])), true
	case wasm.OpcodeI64Load32S:
		return uint64(int64(int32(binary.LittleEndian.Uint32(buf[addr:])))), true
	case wasm.OpcodeI64Load32U:
		return uint64(binary.LittleEndian.Uint32(buf[addr:])), true
	}
	return 0, false
}

// storeToMemory performs one linear memory write.
func storeToMemory(mem *wasm.MemoryInstance, opcode byte, addr uint64, v uint64) bool {
	buf := mem.Buffer
	end := addr + loadStoreWidth(opcode)
	if end > uint64(len(buf)) {
		return false
	}
	switch opcode {
	case wasm.OpcodeI32Store, wasm.OpcodeF32Store:
		binary.LittleEndian.PutUint32(buf[addr:], uint32(v))
	case wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		binary.LittleEndian.PutUint64(buf[addr:], v)
	case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		buf[addr] = byte(v)
	case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		binary.LittleEndian.PutUint16(buf[addr:], uint16(v))
	case wasm.OpcodeI64Store32:
		binary.LittleEndian.PutUint32(buf[addr:], uint32(v))
	default:
		return false
	}
	return true
}

// loadStoreWidth returns the access width in bytes for a load or store opcode.
func loadStoreWidth(opcode byte) uint64 {
	switch opcode {
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U,
		wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return 1
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return 2
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load, wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		return 8
	default:
		return 4
	}
}

