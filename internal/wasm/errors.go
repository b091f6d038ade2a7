package wasm

import (
	"errors"
	"fmt"
)

// The below are raised by generated code or the executor during a guest call,
// and surface to the caller wrapped in a *Trap.
var (
	// ErrRuntimeCallStackOverflow indicates too many nested function calls.
	ErrRuntimeCallStackOverflow = errors.New("call stack exhausted")
	// ErrRuntimeInvalidConversionToInteger indicates a trunc instruction was
	// applied to NaN.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeIntegerOverflow indicates integer arithmetic overflowed, for
	// example a float truncation that doesn't fit the target integer.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeIntegerDivideByZero indicates an integer div or rem with a zero divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeUnreachable means the "unreachable" instruction was executed.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates an access beyond the linear memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeInvalidTableAccess means the table offset was out of bounds, or
	// the element was uninitialized during call_indirect.
	ErrRuntimeInvalidTableAccess = errors.New("invalid table access")
	// ErrRuntimeIndirectCallTypeMismatch indicates the type check failed during call_indirect.
	ErrRuntimeIndirectCallTypeMismatch = errors.New("indirect call type mismatch")
)

// Trap is a guest-code fault surfaced as a recoverable error at the call
// boundary. The instance that trapped remains usable.
type Trap struct {
	// Cause is one of the ErrRuntime sentinels above, or an error returned by a
	// host function.
	Cause error
	// FunctionIndex is the function index-space position where the trap originated.
	FunctionIndex Index
	// Offset is the byte offset of the faulting instruction inside the original
	// function body, for correlating with the module binary.
	Offset uint64
}

// Error implements error.
func (t *Trap) Error() string {
	return fmt.Sprintf("wasm error: %v (function[%d] at offset %#x)", t.Cause, t.FunctionIndex, t.Offset)
}

// Unwrap allows errors.Is against the ErrRuntime sentinels.
func (t *Trap) Unwrap() error {
	return t.Cause
}

// ModuleError reports malformed or invalid module bytes. The message describes
// the first violated rule encountered.
type ModuleError struct {
	Message string
}

// Error implements error.
func (e *ModuleError) Error() string {
	return "invalid module: " + e.Message
}

// CompilationError reports that a backend could not produce an artifact, for
// example due to an unsupported opcode or an internal limit.
type CompilationError struct {
	Backend string
	// FunctionIndex is the code-section position of the function that failed, or
	// -1 when the failure was not function-scoped.
	FunctionIndex int
	Message       string
}

// Error implements error.
func (e *CompilationError) Error() string {
	if e.FunctionIndex < 0 {
		return fmt.Sprintf("compilation failed (%s): %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("compilation failed (%s): function[%d]: %s", e.Backend, e.FunctionIndex, e.Message)
}

// LinkError reports an import arity, kind or type mismatch, or an out-of-bounds
// segment initializer, during instantiation. Instantiation is all-or-nothing:
// when a LinkError is returned no instance exists and the store is unchanged.
type LinkError struct {
	// ImportIndex identifies the offending import in declaration order, or -1
	// when the failure was not tied to one import (ex. a segment initializer).
	ImportIndex int
	// Expected and Actual describe the mismatched types in text format.
	Expected, Actual string
	Message          string
}

// Error implements error.
func (e *LinkError) Error() string {
	if e.ImportIndex < 0 {
		return "link error: " + e.Message
	}
	if e.Expected != "" || e.Actual != "" {
		return fmt.Sprintf("link error: import[%d]: %s: expected %s, but was %s",
			e.ImportIndex, e.Message, e.Expected, e.Actual)
	}
	return fmt.Sprintf("link error: import[%d]: %s", e.ImportIndex, e.Message)
}

// ImmutabilityError reports a write attempted on a const global. The stored
// value is unchanged.
type ImmutabilityError struct {
	Type *GlobalType
}

// Error implements error.
func (e *ImmutabilityError) Error() string {
	return fmt.Sprintf("attempted to set an immutable global of type %s", e.Type)
}

// BoundsError reports a Memory or Table grow operation that would exceed the
// declared maximum. The current size is unchanged.
type BoundsError struct {
	// Kind is ExternTypeMemory or ExternTypeTable.
	Kind ExternType
	// Current and Delta are in pages for memory, elements for tables.
	Current, Delta uint32
	Max            uint32
}

// Error implements error.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("cannot grow %s from %d by %d: exceeds maximum %d",
		ExternTypeName(e.Kind), e.Current, e.Delta, e.Max)
}
