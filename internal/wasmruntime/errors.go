// Package wasmruntime contains the errors raised while executing Wasm functions.
package wasmruntime

import "errors"

// Traps are expected runtime conditions of guest programs. A host can catch them per invocation, and the engine
// remains usable afterwards.
var (
	// ErrRuntimeCallStackOverflow indicates that there are too many nested function calls.
	ErrRuntimeCallStackOverflow = errors.New("callstack overflow")
	// ErrRuntimeInvalidConversionToInteger indicates the Wasm function tried to convert NaN to an integer with a
	// trapping trunc instruction.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeIntegerOverflow indicates that an integer arithmetic resulted in an overflow value. For example,
	// signed division of the minimum value by -1, or truncating a float which doesn't fit the target integer.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeIntegerDivideByZero indicates that an integer div or rem instruction was executed with 0 as the
	// divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeUnreachable means "unreachable" instruction was executed by the program.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates that the program tried to access the region beyond the linear
	// memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
)

// The following errors mean the module is malformed or ill-typed. Validation would have rejected such a module, so
// they are fatal to the invocation rather than a guest-visible trap.
var (
	// ErrRuntimeInvalidIndex is raised for a function, type, local, global or label index out of range.
	ErrRuntimeInvalidIndex = errors.New("index out of range")
	// ErrRuntimeStackUnderflow is raised when popping from an empty operand stack.
	ErrRuntimeStackUnderflow = errors.New("operand stack underflow")
	// ErrRuntimeUnsupportedOpcode is raised for an instruction the engine doesn't implement.
	ErrRuntimeUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrRuntimeMalformedBlock is raised when a block has no matching end or its immediates are truncated.
	ErrRuntimeMalformedBlock = errors.New("malformed instruction stream")
	// ErrRuntimeImmutableGlobal is raised by global.set on a global declared immutable.
	ErrRuntimeImmutableGlobal = errors.New("write to immutable global")
)

var traps = []error{
	ErrRuntimeCallStackOverflow,
	ErrRuntimeInvalidConversionToInteger,
	ErrRuntimeIntegerOverflow,
	ErrRuntimeIntegerDivideByZero,
	ErrRuntimeUnreachable,
	ErrRuntimeOutOfBoundsMemoryAccess,
}

// IsTrap returns true if err wraps one of the trap errors, as opposed to a malformed module or host error.
func IsTrap(err error) bool {
	for _, trap := range traps {
		if errors.Is(err, trap) {
			return true
		}
	}
	return false
}
