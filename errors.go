package wasmer2

import (
	"github.com/utnet-org/wasmer2/internal/wasm"
)

// The error taxonomy. All of these are returned as inspectable values, never
// panics: guest-triggered conditions are recoverable at the call boundary.
type (
	// ModuleError reports malformed or invalid module bytes, naming the first
	// violated rule encountered.
	ModuleError = wasm.ModuleError

	// CompilationError reports that the backend could not produce an artifact,
	// for example an unsupported opcode or a disabled feature.
	CompilationError = wasm.CompilationError

	// LinkError reports an import count, kind or type mismatch, or an
	// out-of-bounds segment initializer, during instantiation. Instantiation
	// is all-or-nothing: no partial instance is ever observable.
	LinkError = wasm.LinkError

	// Trap is a guest-code fault (division by zero, out-of-bounds access,
	// unreachable, stack exhaustion, ...) carrying the trap cause, the
	// faulting function index and the source byte offset. The instance
	// remains usable after a trap.
	Trap = wasm.Trap

	// ImmutabilityError reports a write attempted on an immutable global. The
	// stored value is unchanged.
	ImmutabilityError = wasm.ImmutabilityError

	// BoundsError reports a Memory or Table grow past the declared maximum.
	// The current size is unchanged.
	BoundsError = wasm.BoundsError
)

// Trap causes, for errors.Is against Trap.Cause.
var (
	ErrUnreachable              = wasm.ErrRuntimeUnreachable
	ErrIntegerDivideByZero      = wasm.ErrRuntimeIntegerDivideByZero
	ErrIntegerOverflow          = wasm.ErrRuntimeIntegerOverflow
	ErrInvalidConversion        = wasm.ErrRuntimeInvalidConversionToInteger
	ErrOutOfBoundsMemoryAccess  = wasm.ErrRuntimeOutOfBoundsMemoryAccess
	ErrInvalidTableAccess       = wasm.ErrRuntimeInvalidTableAccess
	ErrIndirectCallTypeMismatch = wasm.ErrRuntimeIndirectCallTypeMismatch
	ErrCallStackOverflow        = wasm.ErrRuntimeCallStackOverflow
)
