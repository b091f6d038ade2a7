// Package ir lowers validated WebAssembly function bodies into a flat
// instruction stream with resolved branch targets. Backends compile modules by
// driving the lowering with different optimization options; the resulting Code
// is what an artifact executes.
package ir

import "fmt"

// OperationKind determines how the executor interprets an Op's operands.
type OperationKind byte

const (
	// OperationKindUnreachable raises an unreachable trap.
	OperationKindUnreachable OperationKind = iota
	// OperationKindBr jumps to U1 after dropping U2 values beneath the top B1.
	OperationKindBr
	// OperationKindBrIf pops a condition; when non-zero it jumps to U1 after
	// dropping U2 values beneath the top B1, otherwise falls through.
	OperationKindBrIf
	// OperationKindBrIfZero pops a condition and jumps to U1 when it is zero.
	// Emitted for the structured "if" instruction; never adjusts the stack.
	OperationKindBrIfZero
	// OperationKindBrTable pops an index selecting a (pc, drop) pair from Us,
	// the last pair being the default; B1 is the kept value count.
	OperationKindBrTable
	// OperationKindReturn returns the function's declared results from the top
	// of the stack.
	OperationKindReturn
	// OperationKindCall invokes the function at index-space position U1.
	OperationKindCall
	// OperationKindCallIndirect pops a table element index and invokes the
	// element after checking it against type index U1.
	OperationKindCallIndirect
	// OperationKindDrop discards the top value.
	OperationKindDrop
	// OperationKindSelect pops a condition and two values, pushing the first
	// when the condition is non-zero.
	OperationKindSelect
	// OperationKindLocalGet pushes local U1.
	OperationKindLocalGet
	// OperationKindLocalSet pops into local U1.
	OperationKindLocalSet
	// OperationKindLocalTee copies the top of the stack into local U1.
	OperationKindLocalTee
	// OperationKindGlobalGet pushes module global U1.
	OperationKindGlobalGet
	// OperationKindGlobalSet pops into module global U1.
	OperationKindGlobalSet
	// OperationKindLoad pops a base address and pushes a loaded value; B1 is
	// the originating opcode and U1 the static offset.
	OperationKindLoad
	// OperationKindStore pops a value and base address; B1 is the originating
	// opcode and U1 the static offset.
	OperationKindStore
	// OperationKindMemorySize pushes the current memory size in pages.
	OperationKindMemorySize
	// OperationKindMemoryGrow pops a page delta and pushes the previous size,
	// or an out-of-bounds marker when the maximum would be exceeded.
	OperationKindMemoryGrow
	// OperationKindConst pushes the constant U1.
	OperationKindConst
	// OperationKindUnary applies the unary or conversion opcode B1 to the top value.
	OperationKindUnary
	// OperationKindBinary pops two values and applies the binary opcode B1.
	OperationKindBinary
	// OperationKindUnaryMisc applies the 0xfc-prefixed opcode B1 to the top value.
	OperationKindUnaryMisc
)

// String implements fmt.Stringer.
func (k OperationKind) String() string {
	switch k {
	case OperationKindUnreachable:
		return "unreachable"
	case OperationKindBr:
		return "br"
	case OperationKindBrIf:
		return "br_if"
	case OperationKindBrIfZero:
		return "br_if_zero"
	case OperationKindBrTable:
		return "br_table"
	case OperationKindReturn:
		return "return"
	case OperationKindCall:
		return "call"
	case OperationKindCallIndirect:
		return "call_indirect"
	case OperationKindDrop:
		return "drop"
	case OperationKindSelect:
		return "select"
	case OperationKindLocalGet:
		return "local.get"
	case OperationKindLocalSet:
		return "local.set"
	case OperationKindLocalTee:
		return "local.tee"
	case OperationKindGlobalGet:
		return "global.get"
	case OperationKindGlobalSet:
		return "global.set"
	case OperationKindLoad:
		return "load"
	case OperationKindStore:
		return "store"
	case OperationKindMemorySize:
		return "memory.size"
	case OperationKindMemoryGrow:
		return "memory.grow"
	case OperationKindConst:
		return "const"
	case OperationKindUnary:
		return "unary"
	case OperationKindBinary:
		return "binary"
	case OperationKindUnaryMisc:
		return "unary.misc"
	}
	return fmt.Sprintf("OperationKind(%d)", k)
}

// Op is the non-interface union of all lowered operations.
type Op struct {
	Kind OperationKind
	// B1 and B2 are small operands: the originating opcode for numeric,
	// load and store kinds, and kept value counts for branches.
	B1, B2 byte
	// U1 and U2 are large operands: constants, branch targets, indexes and
	// drop counts.
	U1, U2 uint64
	// Us holds br_table targets as (pc, drop) pairs, the default pair last.
	Us []uint64
	// Offset is the byte offset of the originating instruction inside the
	// function body, recorded for trap metadata.
	Offset uint32
}

// Code is one function body lowered to an executable operation stream.
type Code struct {
	Ops []Op
	// LocalCount is how many zero-initialized locals follow the parameters.
	LocalCount uint32
}

// Options toggle the emit-time optimizations a backend applies during
// lowering. All options preserve observable semantics.
type Options struct {
	// FoldConstants evaluates constant operand chains at compile time.
	// Operations that can trap are never folded.
	FoldConstants bool
	// StrengthReduce rewrites multiplication, unsigned division and unsigned
	// remainder by a constant power of two into shifts and masks.
	StrengthReduce bool
}
