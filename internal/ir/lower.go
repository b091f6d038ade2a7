package ir

import (
	"bytes"
	"fmt"

	"github.com/utnet-org/wasmer2/internal/leb128"
	"github.com/utnet-org/wasmer2/internal/wasm"
)

type controlFrameKind byte

const (
	controlFrameKindBlock controlFrameKind = iota
	controlFrameKindLoop
	controlFrameKindIf
	controlFrameKindElse
)

// controlFrame tracks one structured control construct while lowering. Branches
// to a block or if resolve forward, so they are collected in pending and
// patched when the frame's end is reached; branches to a loop resolve
// immediately to loopStart.
type controlFrame struct {
	kind controlFrameKind
	// blockType gives the frame's parameter and result arity.
	blockType *wasm.FunctionType
	// baseHeight is the operand stack height at frame entry, not counting
	// the frame's parameters.
	baseHeight uint32
	// loopStart is the operation index branches to a loop jump to.
	loopStart int
	// pending are forward branch targets to patch at end.
	pending []patchRef
	// elseOp is the index of the BrIfZero emitted for an if, patched at
	// else or end.
	elseOp int
}

// patchRef locates one unresolved branch target: Op us in c.ops[op].Us,
// or the Op's U1 when us is negative.
type patchRef struct {
	op, us int
}

// branchArity returns how many values a branch to this frame carries.
func (f *controlFrame) branchArity() int {
	if f.kind == controlFrameKindLoop {
		return len(f.blockType.Params)
	}
	return len(f.blockType.Results)
}

type compiler struct {
	module  *wasm.Module
	enabled wasm.Features
	opts    Options

	sig        *wasm.FunctionType
	localTypes []wasm.ValueType
	body       []byte
	r          *bytes.Reader

	ops    []Op
	frames []*controlFrame
	// height is the current operand stack height.
	height uint32
	// barrier is the lowest operation index emit-time rewrites may touch.
	// It advances past every branch target and emitted control transfer so
	// folding never moves an operation another operation jumps to.
	barrier int
	// unreachable is set after an unconditional control transfer; the
	// remaining instructions of the enclosing frame are decoded but not
	// emitted. unreachableDepth counts nested blocks entered meanwhile.
	unreachable      bool
	unreachableDepth int
}

// Lower compiles the code-section entry at codeIdx into a flat operation
// stream. Branch targets are fully resolved, so the result can be executed
// without any further control flow analysis.
func Lower(m *wasm.Module, codeIdx int, enabled wasm.Features, opts Options) (*Code, error) {
	code := m.CodeSection[codeIdx]
	sig := m.TypeSection[m.FunctionSection[codeIdx]]

	c := &compiler{
		module:  m,
		enabled: enabled,
		opts:    opts,
		sig:     sig,
		body:    code.Body,
		r:       bytes.NewReader(code.Body),
	}
	c.localTypes = append(c.localTypes, sig.Params...)
	c.localTypes = append(c.localTypes, code.LocalTypes...)

	// The function body is an implicit block yielding the results.
	c.frames = append(c.frames, &controlFrame{
		kind:      controlFrameKindBlock,
		blockType: &wasm.FunctionType{Results: sig.Results},
	})

	for len(c.frames) > 0 {
		if err := c.lowerInstruction(); err != nil {
			return nil, err
		}
	}
	if c.r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after function end", c.r.Len())
	}
	return &Code{Ops: c.ops, LocalCount: uint32(len(code.LocalTypes))}, nil
}

func (c *compiler) pc() uint32 {
	return uint32(len(c.body) - c.r.Len())
}

func (c *compiler) emit(op Op) {
	c.ops = append(c.ops, op)
}

// fence marks the next operation index as a potential branch target, stopping
// the peephole from rewriting anything emitted before it.
func (c *compiler) fence() {
	c.barrier = len(c.ops)
}

func (c *compiler) lowerInstruction() error {
	offset := c.pc()
	op, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("read opcode: %w", err)
	}

	if c.unreachable {
		return c.skipUnreachable(op)
	}

	switch op {
	case wasm.OpcodeUnreachable:
		c.emit(Op{Kind: OperationKindUnreachable, Offset: offset})
		c.markUnreachable()
	case wasm.OpcodeNop:
	case wasm.OpcodeBlock:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.frames = append(c.frames, &controlFrame{
			kind:       controlFrameKindBlock,
			blockType:  bt,
			baseHeight: c.height - uint32(len(bt.Params)),
		})
		c.fence()
	case wasm.OpcodeLoop:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.frames = append(c.frames, &controlFrame{
			kind:       controlFrameKindLoop,
			blockType:  bt,
			baseHeight: c.height - uint32(len(bt.Params)),
			loopStart:  len(c.ops),
		})
		c.fence()
	case wasm.OpcodeIf:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.height-- // condition
		frame := &controlFrame{
			kind:       controlFrameKindIf,
			blockType:  bt,
			baseHeight: c.height - uint32(len(bt.Params)),
			elseOp:     len(c.ops),
		}
		c.frames = append(c.frames, frame)
		c.emit(Op{Kind: OperationKindBrIfZero, Offset: offset})
		c.fence()
	case wasm.OpcodeElse:
		frame := c.frames[len(c.frames)-1]
		if frame.kind != controlFrameKindIf {
			return fmt.Errorf("else outside of if at offset %d", offset)
		}
		// The true arm falls here only via this jump to end.
		br := len(c.ops)
		c.emit(Op{
			Kind:   OperationKindBr,
			U2:     uint64(c.height - uint32(frame.branchArity()) - frame.baseHeight),
			B1:     byte(frame.branchArity()),
			Offset: offset,
		})
		frame.pending = append(frame.pending, patchRef{op: br, us: -1})
		c.ops[frame.elseOp].U1 = uint64(len(c.ops))
		frame.kind = controlFrameKindElse
		c.height = frame.baseHeight + uint32(len(frame.blockType.Params))
		c.fence()
	case wasm.OpcodeEnd:
		c.endFrame()
	case wasm.OpcodeBr:
		target, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read br label: %w", err)
		}
		if err := c.emitBr(target, offset); err != nil {
			return err
		}
		c.markUnreachable()
	case wasm.OpcodeBrIf:
		target, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read br_if label: %w", err)
		}
		c.height-- // condition
		frame, err := c.frameAt(target)
		if err != nil {
			return err
		}
		keep := frame.branchArity()
		idx := len(c.ops)
		c.emit(Op{
			Kind:   OperationKindBrIf,
			U2:     uint64(c.height - uint32(keep) - frame.baseHeight),
			B1:     byte(keep),
			Offset: offset,
		})
		c.patchOrResolve(frame, patchRef{op: idx, us: -1})
		c.fence()
	case wasm.OpcodeBrTable:
		count, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read br_table count: %w", err)
		}
		c.height-- // index
		o := Op{Kind: OperationKindBrTable, Offset: offset, Us: make([]uint64, (count+1)*2)}
		idx := len(c.ops)
		c.emit(Op{}) // reserved; filled below so patchRefs can point at it
		var keep int
		for i := uint32(0); i <= count; i++ {
			target, _, err := leb128.DecodeUint32(c.r)
			if err != nil {
				return fmt.Errorf("read br_table label: %w", err)
			}
			frame, err := c.frameAt(target)
			if err != nil {
				return err
			}
			keep = frame.branchArity()
			o.Us[i*2+1] = uint64(c.height - uint32(keep) - frame.baseHeight)
			c.patchOrResolveTable(frame, idx, int(i*2), &o)
		}
		o.B1 = byte(keep)
		c.ops[idx] = o
		c.markUnreachable()
	case wasm.OpcodeReturn:
		c.emit(Op{Kind: OperationKindReturn, Offset: offset})
		c.markUnreachable()
	case wasm.OpcodeCall:
		fn, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read call index: %w", err)
		}
		ft := c.module.TypeOfFunction(fn)
		if ft == nil {
			return fmt.Errorf("call to unknown function index %d", fn)
		}
		c.height = c.height - uint32(len(ft.Params)) + uint32(len(ft.Results))
		c.emit(Op{Kind: OperationKindCall, U1: uint64(fn), Offset: offset})
		c.fence()
	case wasm.OpcodeCallIndirect:
		typeIdx, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read call_indirect type: %w", err)
		}
		if int(typeIdx) >= len(c.module.TypeSection) {
			return fmt.Errorf("call_indirect to unknown type index %d", typeIdx)
		}
		if tbl, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read call_indirect table: %w", err)
		} else if tbl != 0 {
			return fmt.Errorf("call_indirect table index must be zero, but was %d", tbl)
		}
		if c.module.ImportTableCount()+uint32(len(c.module.TableSection)) == 0 {
			return fmt.Errorf("call_indirect requires a table")
		}
		ft := c.module.TypeSection[typeIdx]
		c.height = c.height - 1 - uint32(len(ft.Params)) + uint32(len(ft.Results))
		c.emit(Op{Kind: OperationKindCallIndirect, U1: uint64(typeIdx), Offset: offset})
		c.fence()
	case wasm.OpcodeDrop:
		c.height--
		c.emit(Op{Kind: OperationKindDrop, Offset: offset})
	case wasm.OpcodeSelect:
		c.height -= 2
		c.emit(Op{Kind: OperationKindSelect, Offset: offset})
	case wasm.OpcodeLocalGet:
		idx, err := c.readLocalIndex("local.get")
		if err != nil {
			return err
		}
		c.height++
		c.emit(Op{Kind: OperationKindLocalGet, U1: uint64(idx), Offset: offset})
	case wasm.OpcodeLocalSet:
		idx, err := c.readLocalIndex("local.set")
		if err != nil {
			return err
		}
		c.height--
		c.emit(Op{Kind: OperationKindLocalSet, U1: uint64(idx), Offset: offset})
	case wasm.OpcodeLocalTee:
		idx, err := c.readLocalIndex("local.tee")
		if err != nil {
			return err
		}
		c.emit(Op{Kind: OperationKindLocalTee, U1: uint64(idx), Offset: offset})
	case wasm.OpcodeGlobalGet:
		idx, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read global.get index: %w", err)
		}
		if c.module.TypeOfGlobal(idx) == nil {
			return fmt.Errorf("global.get of unknown global index %d", idx)
		}
		c.height++
		c.emit(Op{Kind: OperationKindGlobalGet, U1: uint64(idx), Offset: offset})
	case wasm.OpcodeGlobalSet:
		idx, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read global.set index: %w", err)
		}
		gt := c.module.TypeOfGlobal(idx)
		if gt == nil {
			return fmt.Errorf("global.set of unknown global index %d", idx)
		}
		if !gt.Mutable {
			return fmt.Errorf("global.set of immutable global index %d", idx)
		}
		c.height--
		c.emit(Op{Kind: OperationKindGlobalSet, U1: uint64(idx), Offset: offset})
	case wasm.OpcodeMemorySize:
		if err := c.requireMemory(op); err != nil {
			return err
		}
		if zero, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read memory.size reserved byte: %w", err)
		} else if zero != 0 {
			return fmt.Errorf("memory.size reserved byte must be zero, but was %d", zero)
		}
		c.height++
		c.emit(Op{Kind: OperationKindMemorySize, Offset: offset})
	case wasm.OpcodeMemoryGrow:
		if err := c.requireMemory(op); err != nil {
			return err
		}
		if zero, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read memory.grow reserved byte: %w", err)
		} else if zero != 0 {
			return fmt.Errorf("memory.grow reserved byte must be zero, but was %d", zero)
		}
		c.emit(Op{Kind: OperationKindMemoryGrow, Offset: offset})
	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(c.r)
		if err != nil {
			return fmt.Errorf("read i32.const value: %w", err)
		}
		c.height++
		c.emit(Op{Kind: OperationKindConst, U1: uint64(uint32(v)), Offset: offset})
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(c.r)
		if err != nil {
			return fmt.Errorf("read i64.const value: %w", err)
		}
		c.height++
		c.emit(Op{Kind: OperationKindConst, U1: uint64(v), Offset: offset})
	case wasm.OpcodeF32Const:
		v, err := ieee754DecodeF32(c.r)
		if err != nil {
			return fmt.Errorf("read f32.const value: %w", err)
		}
		c.height++
		c.emit(Op{Kind: OperationKindConst, U1: v, Offset: offset})
	case wasm.OpcodeF64Const:
		v, err := ieee754DecodeF64(c.r)
		if err != nil {
			return fmt.Errorf("read f64.const value: %w", err)
		}
		c.height++
		c.emit(Op{Kind: OperationKindConst, U1: v, Offset: offset})
	case wasm.OpcodeMiscPrefix:
		misc, err := c.r.ReadByte()
		if err != nil {
			return fmt.Errorf("read misc opcode: %w", err)
		}
		if misc > wasm.OpcodeMiscI64TruncSatF64U {
			return fmt.Errorf("unsupported opcode 0xfc 0x%x", misc)
		}
		if err := c.enabled.Require(wasm.FeatureNonTrappingFloatToIntConversion); err != nil {
			return err
		}
		c.emitUnaryMisc(misc, offset)
	default:
		switch {
		case op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Load32U:
			if err := c.requireMemory(op); err != nil {
				return err
			}
			off, err := c.readMemArg(op)
			if err != nil {
				return err
			}
			c.emit(Op{Kind: OperationKindLoad, B1: op, U1: uint64(off), Offset: offset})
		case op >= wasm.OpcodeI32Store && op <= wasm.OpcodeI64Store32:
			if err := c.requireMemory(op); err != nil {
				return err
			}
			off, err := c.readMemArg(op)
			if err != nil {
				return err
			}
			c.height -= 2
			c.emit(Op{Kind: OperationKindStore, B1: op, U1: uint64(off), Offset: offset})
		case op >= wasm.OpcodeI32Extend8S && op <= wasm.OpcodeI64Extend32S:
			if err := c.enabled.Require(wasm.FeatureSignExtensionOps); err != nil {
				return err
			}
			c.emitUnary(op, offset)
		case IsUnaryOp(op):
			c.emitUnary(op, offset)
		case IsBinaryOp(op):
			c.emitBinary(op, offset)
		default:
			return fmt.Errorf("unsupported opcode 0x%x", op)
		}
	}
	return nil
}

// skipUnreachable decodes the instruction's immediates without emitting
// anything, tracking block nesting until the enclosing frame's else or end.
func (c *compiler) skipUnreachable(op byte) error {
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		if _, _, err := leb128.DecodeInt33AsInt64(c.r); err != nil {
			return fmt.Errorf("read block type: %w", err)
		}
		c.unreachableDepth++
	case wasm.OpcodeElse:
		if c.unreachableDepth > 0 {
			return nil
		}
		frame := c.frames[len(c.frames)-1]
		if frame.kind != controlFrameKindIf {
			return fmt.Errorf("else outside of if")
		}
		// No fallthrough from the dead true arm; just resolve the false
		// jump here and resume.
		c.ops[frame.elseOp].U1 = uint64(len(c.ops))
		frame.kind = controlFrameKindElse
		c.height = frame.baseHeight + uint32(len(frame.blockType.Params))
		c.unreachable = false
		c.fence()
	case wasm.OpcodeEnd:
		if c.unreachableDepth > 0 {
			c.unreachableDepth--
			return nil
		}
		c.unreachable = false
		c.endFrame()
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
		wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		if _, _, err := leb128.DecodeUint32(c.r); err != nil {
			return fmt.Errorf("read index: %w", err)
		}
	case wasm.OpcodeBrTable:
		count, _, err := leb128.DecodeUint32(c.r)
		if err != nil {
			return fmt.Errorf("read br_table count: %w", err)
		}
		for i := uint32(0); i <= count; i++ {
			if _, _, err := leb128.DecodeUint32(c.r); err != nil {
				return fmt.Errorf("read br_table label: %w", err)
			}
		}
	case wasm.OpcodeCallIndirect:
		if _, _, err := leb128.DecodeUint32(c.r); err != nil {
			return fmt.Errorf("read call_indirect type: %w", err)
		}
		if _, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read call_indirect table: %w", err)
		}
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		if _, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read reserved byte: %w", err)
		}
	case wasm.OpcodeI32Const:
		if _, _, err := leb128.DecodeInt32(c.r); err != nil {
			return fmt.Errorf("read i32.const value: %w", err)
		}
	case wasm.OpcodeI64Const:
		if _, _, err := leb128.DecodeInt64(c.r); err != nil {
			return fmt.Errorf("read i64.const value: %w", err)
		}
	case wasm.OpcodeF32Const:
		if _, err := ieee754DecodeF32(c.r); err != nil {
			return fmt.Errorf("read f32.const value: %w", err)
		}
	case wasm.OpcodeF64Const:
		if _, err := ieee754DecodeF64(c.r); err != nil {
			return fmt.Errorf("read f64.const value: %w", err)
		}
	case wasm.OpcodeMiscPrefix:
		if _, err := c.r.ReadByte(); err != nil {
			return fmt.Errorf("read misc opcode: %w", err)
		}
	default:
		if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
			if _, err := c.readMemArg(op); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) markUnreachable() {
	c.unreachable = true
	c.unreachableDepth = 0
	c.fence()
}

// endFrame resolves forward branches into the frame being closed and restores
// the stack height the frame yields.
func (c *compiler) endFrame() {
	frame := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]

	if frame.kind == controlFrameKindIf {
		// No else arm: the false path jumps straight to the end.
		c.ops[frame.elseOp].U1 = uint64(len(c.ops))
	}
	for _, ref := range frame.pending {
		if ref.us < 0 {
			c.ops[ref.op].U1 = uint64(len(c.ops))
		} else {
			c.ops[ref.op].Us[ref.us] = uint64(len(c.ops))
		}
	}
	c.height = frame.baseHeight + uint32(len(frame.blockType.Results))
	c.fence()

	// The outermost end closes the function body.
	if len(c.frames) == 0 {
		c.emit(Op{Kind: OperationKindReturn, Offset: c.pc()})
	}
}

func (c *compiler) frameAt(label uint32) (*controlFrame, error) {
	if int(label) >= len(c.frames) {
		return nil, fmt.Errorf("branch to unknown label %d", label)
	}
	return c.frames[len(c.frames)-1-int(label)], nil
}

func (c *compiler) emitBr(label uint32, offset uint32) error {
	frame, err := c.frameAt(label)
	if err != nil {
		return err
	}
	keep := frame.branchArity()
	idx := len(c.ops)
	c.emit(Op{
		Kind:   OperationKindBr,
		U2:     uint64(c.height - uint32(keep) - frame.baseHeight),
		B1:     byte(keep),
		Offset: offset,
	})
	c.patchOrResolve(frame, patchRef{op: idx, us: -1})
	return nil
}

func (c *compiler) patchOrResolve(frame *controlFrame, ref patchRef) {
	if frame.kind == controlFrameKindLoop {
		c.ops[ref.op].U1 = uint64(frame.loopStart)
	} else {
		frame.pending = append(frame.pending, ref)
	}
}

func (c *compiler) patchOrResolveTable(frame *controlFrame, opIdx, usIdx int, o *Op) {
	if frame.kind == controlFrameKindLoop {
		o.Us[usIdx] = uint64(frame.loopStart)
	} else {
		frame.pending = append(frame.pending, patchRef{op: opIdx, us: usIdx})
	}
}

// readBlockType decodes a structured instruction's block type. A negative
// value encodes no result or a single value type; a non-negative value indexes
// the type section, which requires the multi-value feature.
func (c *compiler) readBlockType() (*wasm.FunctionType, error) {
	raw, _, err := leb128.DecodeInt33AsInt64(c.r)
	if err != nil {
		return nil, fmt.Errorf("read block type: %w", err)
	}
	switch raw {
	case -64: // 0x40 in signed 7-bit
		return &wasm.FunctionType{}, nil
	case -1:
		return &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}, nil
	case -2:
		return &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI64}}, nil
	case -3:
		return &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF32}}, nil
	case -4:
		return &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF64}}, nil
	default:
		if raw < 0 || raw >= int64(len(c.module.TypeSection)) {
			return nil, fmt.Errorf("invalid block type %d", raw)
		}
		if err := c.enabled.Require(wasm.FeatureMultiValue); err != nil {
			return nil, err
		}
		return c.module.TypeSection[raw], nil
	}
}

func (c *compiler) readLocalIndex(instr string) (uint32, error) {
	idx, _, err := leb128.DecodeUint32(c.r)
	if err != nil {
		return 0, fmt.Errorf("read %s index: %w", instr, err)
	}
	if int(idx) >= len(c.localTypes) {
		return 0, fmt.Errorf("%s of unknown local index %d", instr, idx)
	}
	return idx, nil
}

func (c *compiler) readMemArg(op byte) (uint32, error) {
	align, _, err := leb128.DecodeUint32(c.r)
	if err != nil {
		return 0, fmt.Errorf("read memory alignment: %w", err)
	}
	if align > naturalAlignment(op) {
		return 0, fmt.Errorf("invalid memory alignment %d for opcode 0x%x", align, op)
	}
	offset, _, err := leb128.DecodeUint32(c.r)
	if err != nil {
		return 0, fmt.Errorf("read memory offset: %w", err)
	}
	return offset, nil
}

// naturalAlignment returns log2 of the access width, the largest alignment
// hint the instruction admits.
func naturalAlignment(op byte) uint32 {
	switch op {
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U,
		wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return 0
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return 1
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load, wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		return 3
	default:
		return 2
	}
}

func (c *compiler) requireMemory(op byte) error {
	if c.module.ImportMemoryCount()+uint32(len(c.module.MemorySection)) == 0 {
		return fmt.Errorf("opcode 0x%x requires a memory", op)
	}
	return nil
}
