package ir

import "errors"

// Sentinel errors of the ir package: Emitter.ResolveCalls wraps
// ErrUnknownFunction and Asm wraps ErrBadAddress for an out-of-range jump
// index. Callers match them with errors.Is; the wrapped text carries the
// offending name/address.
var (
	ErrUnknownFunction = errors.New("ir: unknown function")
	ErrOverlongSlot    = errors.New("ir: function exceeds 65535 slots")
	ErrBadAddress      = errors.New("ir: address out of bytecode bounds")
)
