package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dariomnz/etherc/lang/ir"
)

// VM holds every piece of mutable state a running program touches: the
// global slots, the heap, the string-buffer table, the live coroutine set and
// the syscall bridge. One VM runs exactly one Program to completion.
type VM struct {
	Prog *ir.Program

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	globals OperandStack
	heap    *heap
	strs    stringBuffers

	coros       map[uint32]*Coroutine
	order       []uint32
	cursor      int
	nextCoroID  uint32
	finished    map[uint32][]Value
	funcsByAddr map[uint32]*ir.FuncInfo

	bridge *syscallBridge

	CollectStats bool
	stats        map[ir.Opcode]*OpStat

	// MaxSteps caps total dispatched instructions across every coroutine; 0
	// means unbounded. Guards a runaway program (an infinite loop with no
	// syscalls) from never returning control to the host.
	MaxSteps int
	steps    uint64
}

// New returns a VM ready to run prog. ioWorkers bounds the goroutine pool
// backing asynchronous syscalls (spec §4.H's "submits the request" bounce).
func New(prog *ir.Program, ioWorkers int, stdout, stderr io.Writer, stdin io.Reader) *VM {
	if ioWorkers <= 0 {
		ioWorkers = 4
	}
	vm := &VM{
		Prog:     prog,
		Stdout:   stdout,
		Stderr:   stderr,
		Stdin:    stdin,
		heap:     newHeap(),
		coros:    make(map[uint32]*Coroutine),
		finished: make(map[uint32][]Value),
		stats:    make(map[ir.Opcode]*OpStat),
	}
	vm.bridge = newSyscallBridge(vm, ioWorkers)
	return vm
}

// OpStat is one opcode's dispatch counters (spec §4.G "Stats (optional)").
type OpStat struct {
	Count      uint64
	TotalNanos int64
}

// Stats returns a snapshot of the per-opcode dispatch counters as a map (no
// ordering; WriteStats prints them sorted). Empty unless CollectStats was set
// before Run.
func (vm *VM) Stats() map[ir.Opcode]OpStat {
	out := make(map[ir.Opcode]OpStat, len(vm.stats))
	for op, s := range vm.stats {
		out[op] = *s
	}
	return out
}

func (vm *VM) spawnCoroutine(entryIP uint32, args []Value) uint32 {
	id := vm.nextCoroID
	vm.nextCoroID++
	c := newCoroutine(id, entryIP, args)
	vm.coros[id] = c
	vm.order = append(vm.order, id)
	return id
}

// derefLoad reads the slot addr names (derefStore writes it), re-resolving
// the address space and index against the live backing slice on every call (see
// ptr.go) since a coroutine's stack may have reallocated since the Ptr was
// materialized.
func (vm *VM) derefLoad(addr Addr) Value {
	switch addr.space() {
	case spaceHeap:
		return vm.heap.at(addr.index())
	case spaceGlobal:
		vm.ensureGlobalSlot(addr.index())
		return vm.globals.At(int(addr.index()))
	default: // spaceStack
		c := vm.coros[addr.coroID()]
		return c.Stack.At(int(addr.index()))
	}
}

func (vm *VM) derefStore(addr Addr, v Value) {
	switch addr.space() {
	case spaceHeap:
		vm.heap.set(addr.index(), v)
	case spaceGlobal:
		vm.ensureGlobalSlot(addr.index())
		vm.globals.Set(int(addr.index()), v)
	default: // spaceStack
		c := vm.coros[addr.coroID()]
		c.Stack.Set(int(addr.index()), v)
	}
}

func (vm *VM) ensureGlobalSlot(index uint32) {
	if int(index) >= vm.globals.Len() {
		vm.globals.Extend(int(index) + 1 - vm.globals.Len())
	}
}

// --- bytecode operand decoding ---

func (vm *VM) u8(addr uint32) uint8 { return vm.Prog.Bytecode[addr] }

func (vm *VM) u16(addr uint32) uint16 {
	return binary.LittleEndian.Uint16(vm.Prog.Bytecode[addr : addr+2])
}

func (vm *VM) u32(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(vm.Prog.Bytecode[addr : addr+4])
}

func (vm *VM) u64(addr uint32) uint64 {
	return binary.LittleEndian.Uint64(vm.Prog.Bytecode[addr : addr+8])
}

// intResult builds an integer Value of tag's width holding x (sign-truncated
// as appropriate), used by binary/unary integer arithmetic so the result
// keeps the left operand's tag (spec doesn't prescribe widening rules beyond
// "coerce to the tag required by the opcode" — the opcode here is
// tag-parametric only through its operands, so the left operand's width
// wins, matching C's usual-arithmetic-conversions-free toy semantics).
func intResult(tag Tag, x int64) Value {
	switch tag {
	case TagI8:
		return I8(int8(x))
	case TagI16:
		return I16(int16(x))
	case TagI64:
		return I64(x)
	default:
		return I32(int32(x))
	}
}

func floatResult(tag Tag, x float64) Value {
	if tag == TagF32 {
		return F32(float32(x))
	}
	return F64(x)
}

func boolValue(b bool) Value {
	if b {
		return I32(1)
	}
	return I32(0)
}

// stepResult tells the scheduler what happened after executing one opcode.
type stepResult int

const (
	stepContinue stepResult = iota
	stepYield
	stepAwait
	stepIOWait
	stepFinished
)

// step executes exactly one instruction for c and reports what the scheduler
// must do next (spec §4.G: "executes one opcode at a time for the currently
// selected coroutine").
func (vm *VM) step(c *Coroutine) (stepResult, error) {
	if vm.MaxSteps > 0 && vm.steps >= uint64(vm.MaxSteps) {
		return stepContinue, ErrStepBudget
	}
	vm.steps++

	op := ir.Opcode(vm.u8(c.IP))

	var t0 time.Time
	if vm.CollectStats {
		t0 = time.Now()
	}
	res, err := vm.dispatch(c, op)
	if err != nil {
		return stepContinue, err
	}
	if vm.CollectStats {
		st := vm.stats[op]
		if st == nil {
			st = &OpStat{}
			vm.stats[op] = st
		}
		st.Count++
		st.TotalNanos += time.Since(t0).Nanoseconds()
	}
	return res, nil
}

func (vm *VM) dispatch(c *Coroutine, op ir.Opcode) (stepResult, error) {
	ip := c.IP
	switch op {
	case ir.NOP:
		c.IP = ip + 1

	case ir.PUSH_I8:
		c.Stack.Push(I8(int8(vm.u8(ip + 1))))
		c.IP = ip + 2
	case ir.PUSH_I16:
		c.Stack.Push(I16(int16(vm.u16(ip + 1))))
		c.IP = ip + 3
	case ir.PUSH_I32:
		c.Stack.Push(I32(int32(vm.u32(ip + 1))))
		c.IP = ip + 5
	case ir.PUSH_I64:
		c.Stack.Push(I64(int64(vm.u64(ip + 1))))
		c.IP = ip + 9
	case ir.PUSH_F32:
		c.Stack.Push(F32(math.Float32frombits(vm.u32(ip + 1))))
		c.IP = ip + 5
	case ir.PUSH_F64:
		c.Stack.Push(F64(math.Float64frombits(vm.u64(ip + 1))))
		c.IP = ip + 9
	case ir.PUSH_STR:
		id := vm.u32(ip + 1)
		ref := vm.strs.intern(vm.Prog.String(id))
		c.Stack.Push(Value{Tag: TagString, Str: ref})
		c.IP = ip + 5

	case ir.STR_GET:
		idx, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		s, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		buf := vm.strs.get(s.Str)
		c.Stack.Push(I8(int8(buf[idx.AsInt()])))
		c.IP = ip + 1
	case ir.STR_SET:
		val, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		idx, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		s, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		buf := vm.strs.get(s.Str)
		buf[idx.AsInt()] = byte(val.AsInt())
		c.IP = ip + 1

	case ir.ARR_ALLOC:
		slots := vm.u32(ip + 1)
		base := vm.heap.alloc(slots)
		c.Stack.Push(Ptr(makeAddr(spaceHeap, 0, base)))
		c.IP = ip + 5

	case ir.LOAD_VAR, ir.STORE_VAR, ir.LOAD_GLOBAL, ir.STORE_GLOBAL:
		return vm.dispatchSlotOp(c, op, ip)

	case ir.LEA_STACK:
		slot := vm.u16(ip + 1)
		c.Stack.Push(Ptr(makeAddr(spaceStack, c.ID, uint32(c.currentFrame().StackBase)+uint32(slot))))
		c.IP = ip + 3
	case ir.LEA_GLOBAL:
		slot := vm.u16(ip + 1)
		c.Stack.Push(Ptr(makeAddr(spaceGlobal, 0, uint32(slot))))
		c.IP = ip + 3

	case ir.LOAD_PTR_OFFSET, ir.STORE_PTR_OFFSET:
		return vm.dispatchPtrOp(c, op, ip)

	case ir.ADD, ir.SUB, ir.MUL, ir.DIV:
		return stepContinue, vm.intBinary(c, op, ip)
	case ir.ADD_F, ir.SUB_F, ir.MUL_F, ir.DIV_F:
		return stepContinue, vm.floatBinary(c, op, ip)
	case ir.EQ, ir.LE, ir.LT, ir.GT, ir.GE:
		return stepContinue, vm.intCompare(c, op, ip)
	case ir.EQ_F, ir.LE_F, ir.LT_F, ir.GT_F, ir.GE_F:
		return stepContinue, vm.floatCompare(c, op, ip)

	case ir.JMP:
		c.IP = vm.u32(ip + 1)
	case ir.JZ:
		v, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		if v.AsInt() == 0 {
			c.IP = vm.u32(ip + 1)
		} else {
			c.IP = ip + 5
		}

	case ir.CALL:
		return stepContinue, vm.execCall(c, ip)
	case ir.SPAWN:
		return stepContinue, vm.execSpawn(c, ip)
	case ir.SYSCALL:
		return vm.bridge.exec(c, ip)
	case ir.RET:
		return vm.execRet(c, ip)

	case ir.YIELD:
		c.IP = ip + 1
		return stepYield, nil
	case ir.AWAIT:
		return vm.execAwait(c, ip)

	case ir.PUSH_VARARGS:
		f := c.currentFrame()
		c.Stack.Push(I32(int32(f.NumArgsPassed - f.NumFixedParams)))
		c.IP = ip + 1

	case ir.POP:
		if _, err := c.Stack.Pop(); err != nil {
			return stepContinue, err
		}
		c.IP = ip + 1

	case ir.HALT:
		c.State = Finished
		return stepFinished, nil

	default:
		return stepContinue, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	return stepContinue, nil
}

func (vm *VM) dispatchSlotOp(c *Coroutine, op ir.Opcode, ip uint32) (stepResult, error) {
	slot := int(vm.u16(ip + 1))
	size := int(vm.u8(ip + 3))
	switch op {
	case ir.LOAD_VAR:
		base := c.currentFrame().StackBase
		for i := 0; i < size; i++ {
			c.Stack.Push(c.Stack.At(base + slot + i))
		}
	case ir.STORE_VAR:
		base := c.currentFrame().StackBase
		for i := size - 1; i >= 0; i-- {
			v, err := c.Stack.Pop()
			if err != nil {
				return stepContinue, err
			}
			c.Stack.Set(base+slot+i, v)
		}
	case ir.LOAD_GLOBAL:
		if slot+size > vm.globals.Len() {
			vm.globals.Extend(slot + size - vm.globals.Len())
		}
		for i := 0; i < size; i++ {
			c.Stack.Push(vm.globals.At(slot + i))
		}
	case ir.STORE_GLOBAL:
		for i := size - 1; i >= 0; i-- {
			v, err := c.Stack.Pop()
			if err != nil {
				return stepContinue, err
			}
			if slot+i >= vm.globals.Len() {
				vm.globals.Extend(slot + i + 1 - vm.globals.Len())
			}
			vm.globals.Set(slot+i, v)
		}
	}
	c.IP = ip + 4
	return stepContinue, nil
}

func (vm *VM) dispatchPtrOp(c *Coroutine, op ir.Opcode, ip uint32) (stepResult, error) {
	offset := vm.u32(ip + 1)
	size := int(vm.u8(ip + 5))
	slots := int32(offset / SlotBytesVM)

	switch op {
	case ir.LOAD_PTR_OFFSET:
		p, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		base := p.AsAddr().offset(slots)
		for i := 0; i < size; i++ {
			c.Stack.Push(vm.derefLoad(base.offset(int32(i))))
		}
	case ir.STORE_PTR_OFFSET:
		vals := make([]Value, size)
		for i := size - 1; i >= 0; i-- {
			v, err := c.Stack.Pop()
			if err != nil {
				return stepContinue, err
			}
			vals[i] = v
		}
		p, err := c.Stack.Pop()
		if err != nil {
			return stepContinue, err
		}
		base := p.AsAddr().offset(slots)
		for i := 0; i < size; i++ {
			vm.derefStore(base.offset(int32(i)), vals[i])
		}
	}
	c.IP = ip + 6
	return stepContinue, nil
}

// SlotBytesVM mirrors lang/compiler.SlotBytes: the byte width LOAD_PTR_OFFSET
// and STORE_PTR_OFFSET's static offsets are expressed in, independent of the
// generator package so lang/vm never imports lang/compiler.
const SlotBytesVM = 16

func (vm *VM) intBinary(c *Coroutine, op ir.Opcode, ip uint32) error {
	b, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := c.Stack.Pop()
	if err != nil {
		return err
	}

	// Ptr + integer byte offset: the l-value resolver's Index/member-address
	// lowering materializes a base Ptr then emits ADD against a
	// runtime-computed byte offset (spec §4.D: "multiply by element_size ×
	// slot_bytes, add to base"), so ADD must stay tag-polymorphic over one
	// Ptr operand rather than treating it as a mismatch. The offset is in
	// bytes, like LOAD_PTR_OFFSET/STORE_PTR_OFFSET's static operand, so it is
	// converted to a slot count the same way dispatchPtrOp does.
	if op == ir.ADD && (a.Tag == TagPtr) != (b.Tag == TagPtr) {
		ptr, off := a, b
		if b.Tag == TagPtr {
			ptr, off = b, a
		}
		if !off.Tag.isInteger() {
			return fmt.Errorf("%w: ptr ADD offset must be integer, got %s", ErrInvalidTag, off.Tag)
		}
		c.Stack.Push(Ptr(ptr.AsAddr().offset(int32(off.AsInt() / SlotBytesVM))))
		c.IP = ip + 1
		return nil
	}

	if !a.Tag.isInteger() || !b.Tag.isInteger() {
		return fmt.Errorf("%w: %s %s %s", ErrInvalidTag, a.Tag, op, b.Tag)
	}

	x, y := a.AsInt(), b.AsInt()
	var r int64
	switch op {
	case ir.ADD:
		r = x + y
	case ir.SUB:
		r = x - y
	case ir.MUL:
		r = x * y
	case ir.DIV:
		if y == 0 {
			return ErrDivideByZero
		}
		r = x / y
	}
	c.Stack.Push(intResult(a.Tag, r))
	c.IP = ip + 1
	return nil
}

func (vm *VM) floatBinary(c *Coroutine, op ir.Opcode, ip uint32) error {
	b, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	if !a.IsFloat() || !b.IsFloat() {
		return fmt.Errorf("%w: %s %s %s", ErrInvalidTag, a.Tag, op, b.Tag)
	}
	x, y := a.AsFloat(), b.AsFloat()
	var r float64
	switch op {
	case ir.ADD_F:
		r = x + y
	case ir.SUB_F:
		r = x - y
	case ir.MUL_F:
		r = x * y
	case ir.DIV_F:
		r = x / y
	}
	c.Stack.Push(floatResult(a.Tag, r))
	c.IP = ip + 1
	return nil
}

func (vm *VM) intCompare(c *Coroutine, op ir.Opcode, ip uint32) error {
	b, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	if !a.Tag.isInteger() || !b.Tag.isInteger() {
		return fmt.Errorf("%w: %s %s %s", ErrInvalidTag, a.Tag, op, b.Tag)
	}
	x, y := a.AsInt(), b.AsInt()
	var r bool
	switch op {
	case ir.EQ:
		r = x == y
	case ir.LE:
		r = x <= y
	case ir.LT:
		r = x < y
	case ir.GT:
		r = x > y
	case ir.GE:
		r = x >= y
	}
	c.Stack.Push(boolValue(r))
	c.IP = ip + 1
	return nil
}

func (vm *VM) floatCompare(c *Coroutine, op ir.Opcode, ip uint32) error {
	b, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := c.Stack.Pop()
	if err != nil {
		return err
	}
	if !a.IsFloat() || !b.IsFloat() {
		return fmt.Errorf("%w: %s %s %s", ErrInvalidTag, a.Tag, op, b.Tag)
	}
	x, y := a.AsFloat(), b.AsFloat()
	var r bool
	switch op {
	case ir.EQ_F:
		r = x == y
	case ir.LE_F:
		r = x <= y
	case ir.LT_F:
		r = x < y
	case ir.GT_F:
		r = x > y
	case ir.GE_F:
		r = x >= y
	}
	c.Stack.Push(boolValue(r))
	c.IP = ip + 1
	return nil
}

func unpackNumArgs(b uint8) (n int, variadic bool) {
	return int(b &^ ir.VarargsFlag), b&ir.VarargsFlag != 0
}

// execCall implements spec §4.G's call protocol: the top num_args slots
// already on the stack become the callee's frame in place, extended with
// zeroed slots up to its declared NumSlots.
func (vm *VM) execCall(c *Coroutine, ip uint32) error {
	target := vm.u32(ip + 1)
	numArgs, _ := unpackNumArgs(vm.u8(ip + 5))

	fi := vm.funcByAddr(target)
	frame := CallFrame{
		ReturnIP:       ip + 6,
		StackBase:      c.Stack.Len() - numArgs,
		NumFixedParams: fi.NumParams,
		NumArgsPassed:  numArgs,
	}
	c.Calls = append(c.Calls, frame)
	if extra := fi.NumSlots - numArgs; extra > 0 {
		c.Stack.Extend(extra)
	}
	c.IP = target
	return nil
}

func (vm *VM) funcByAddr(addr uint32) *ir.FuncInfo {
	if vm.funcsByAddr == nil {
		vm.funcsByAddr = make(map[uint32]*ir.FuncInfo, len(vm.Prog.Functions))
		for _, fi := range vm.Prog.Functions {
			vm.funcsByAddr[fi.EntryAddr] = fi
		}
	}
	if fi, ok := vm.funcsByAddr[addr]; ok {
		return fi
	}
	return &ir.FuncInfo{EntryAddr: addr, NumParams: 0, NumSlots: 0}
}

// execSpawn creates a new coroutine with the popped argument slots as its
// base frame and pushes the new coroutine's id (an I32 handle) on the
// spawning coroutine — no state change for the spawner (spec §4.I).
func (vm *VM) execSpawn(c *Coroutine, ip uint32) error {
	target := vm.u32(ip + 1)
	numArgs, _ := unpackNumArgs(vm.u8(ip + 5))
	args, err := c.Stack.PopN(numArgs)
	if err != nil {
		return err
	}
	c.IP = ip + 6

	if target == ir.SpawnSyscallTarget {
		id := vm.spawnSyscallCoroutine(args)
		c.Stack.Push(I32(int32(id)))
		return nil
	}

	fi := vm.funcByAddr(target)
	newID := vm.spawnCoroutine(target, args)
	nc := vm.coros[newID]
	nc.Calls[0].NumFixedParams = fi.NumParams
	nc.Calls[0].NumArgsPassed = numArgs
	if extra := fi.NumSlots - numArgs; extra > 0 {
		nc.Stack.Extend(extra)
	}
	c.Stack.Push(I32(int32(newID)))
	return nil
}

// spawnSyscallCoroutine creates a coroutine whose entire body is a single
// async syscall submission (the `spawn syscall(...)` sentinel form, spec §9
// supplemented feature); its args are [syscall_id, ...syscall_args].
func (vm *VM) spawnSyscallCoroutine(args []Value) uint32 {
	id := vm.nextCoroID
	vm.nextCoroID++
	c := &Coroutine{ID: id, State: WaitingForIO, syscallSpawn: true}
	c.Calls = append(c.Calls, CallFrame{ReturnIP: haltSentinel})
	vm.coros[id] = c
	vm.order = append(vm.order, id)
	vm.bridge.submitAsync(id, args)
	return id
}

// execRet implements spec §4.G's RET: pop the return slots, truncate to the
// frame's stack_base, restore ip, push the return values back. If this was
// the coroutine's base frame, it finishes.
func (vm *VM) execRet(c *Coroutine, ip uint32) (stepResult, error) {
	size := int(vm.u8(ip + 1))
	vals, err := c.Stack.PopN(size)
	if err != nil {
		return stepContinue, err
	}
	frame := c.Calls[len(c.Calls)-1]
	c.Stack.TruncateTo(frame.StackBase)
	c.Calls = c.Calls[:len(c.Calls)-1]
	for _, v := range vals {
		c.Stack.Push(v)
	}

	if frame.ReturnIP == haltSentinel {
		c.State = Finished
		c.Result = vals
		vm.finished[c.ID] = vals
		return stepFinished, nil
	}
	c.IP = frame.ReturnIP
	return stepContinue, nil
}

// execAwait implements spec §4.I's AWAIT rule: consume a finished target's
// result immediately, or park WaitingForCoro.
func (vm *VM) execAwait(c *Coroutine, ip uint32) (stepResult, error) {
	idVal, err := c.Stack.Pop()
	if err != nil {
		return stepContinue, err
	}
	id := uint32(idVal.AsInt())

	target, ok := vm.coros[id]
	if ok && target.State == Finished && !target.Consumed {
		target.Consumed = true
		for _, v := range target.Result {
			c.Stack.Push(v)
		}
		c.IP = ip + 1
		return stepContinue, nil
	}
	c.AwaitingID = id
	c.State = WaitingForCoro
	c.IP = ip + 1
	return stepAwait, nil
}
