package compiler

import "errors"

// Sentinel compile-time errors (spec §7 CompileTime/GenerateTime kinds).
var (
	ErrUndefinedVariable = errors.New("compiler: undefined variable")
	ErrUnknownStruct     = errors.New("compiler: unknown struct or member")
	ErrTypeMismatch      = errors.New("compiler: type mismatch")
	ErrBadLValue         = errors.New("compiler: expression is not an l-value")
	ErrOverlongSlot      = errors.New("compiler: function exceeds 65535 slots")
)
