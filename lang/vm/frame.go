package vm

// CallFrame is pushed by CALL and popped by RET: {return_ip, stack_base}
// (spec §3). stack_base indexes into the coroutine's operand stack and marks
// where the current function's locals begin.
type CallFrame struct {
	ReturnIP  uint32
	StackBase int

	// NumFixedParams/NumArgsPassed support PUSH_VARARGS: the difference is how
	// many extra slots beyond the callee's declared parameters this particular
	// call site passed (NumArgsPassed is CALL/SPAWN's num_args operand with
	// its high variadic bit cleared).
	NumFixedParams int
	NumArgsPassed  int
}
