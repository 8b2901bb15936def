package vm

import (
	"context"
	"fmt"
)

// Run locates main, creates coroutine 0 at its entry point, and drives the
// scheduler to completion (spec §4.G/§4.I). It returns main's first return
// slot (I32 0 if main returns nothing or finishes some other way) as the
// program's exit value. ctx is checked between scheduler ticks and while
// blocked waiting for an I/O completion — the only two points a long-running
// program can be cancelled from outside, mirroring how the teacher threads a
// context through its own blocking file-scanning calls.
func (vm *VM) Run(ctx context.Context) (Value, error) {
	fi, ok := vm.Prog.Func("main")
	if !ok {
		return Value{}, ErrNoMainFunction
	}
	mainID := vm.spawnCoroutine(fi.EntryAddr, nil)
	main := vm.coros[mainID]
	main.Calls[0].NumFixedParams = fi.NumParams
	main.Calls[0].NumArgsPassed = 0
	if fi.NumSlots > 0 {
		main.Stack.Extend(fi.NumSlots)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Value{}, err
		}

		c, idx, ok := vm.nextRunnable()
		if !ok {
			if vm.anyPending() {
				select {
				case comp := <-vm.bridge.completions:
					if err := vm.applyCompletion(comp); err != nil {
						return Value{}, err
					}
				case <-ctx.Done():
					return Value{}, ctx.Err()
				}
				continue
			}
			if main.State == Finished {
				return resultValue(main.Result), nil
			}
			return Value{}, ErrDeadlock
		}

		// Run the selected coroutine until a suspension point (spec §4.I: "the
		// dispatcher runs the currently selected one until a suspension point"),
		// not one opcode per scheduler tick.
		for {
			res, err := vm.step(c)
			if err != nil {
				return Value{}, err
			}
			if res != stepContinue {
				if res == stepFinished {
					vm.wakeAwaiters(c.ID)
				}
				break
			}
		}
		vm.cursor = idx + 1
		if err := vm.drainCompletionsNonBlocking(); err != nil {
			return Value{}, err
		}
	}
}

// nextRunnable scans vm.order starting at vm.cursor (round robin) for the
// next coroutine in state Runnable.
func (vm *VM) nextRunnable() (*Coroutine, int, bool) {
	n := len(vm.order)
	for i := 0; i < n; i++ {
		idx := (vm.cursor + i) % n
		c := vm.coros[vm.order[idx]]
		if c.State == Runnable {
			return c, idx, true
		}
	}
	return nil, 0, false
}

// anyPending reports whether some coroutine is parked on an in-flight async
// syscall — the condition under which the scheduler should block waiting for
// a completion rather than declaring deadlock.
func (vm *VM) anyPending() bool {
	for _, c := range vm.coros {
		if c.State == WaitingForIO {
			return true
		}
	}
	return false
}

// applyCompletion delivers one async syscall's result to the coroutine that
// submitted it (spec §4.H: "the result is pushed onto that coroutine's
// operand stack and its state returns to Runnable"). A completion tagged
// with a coroutine id the scheduler no longer knows about is fatal
// (ErrOrphanCompletion, spec §5/§7) rather than silently dropped.
func (vm *VM) applyCompletion(comp ioCompletion) error {
	c, ok := vm.coros[comp.coroID]
	if !ok {
		return fmt.Errorf("%w: coroutine %d", ErrOrphanCompletion, comp.coroID)
	}
	if c.syscallSpawn {
		c.State = Finished
		c.Result = []Value{comp.result}
		vm.finished[c.ID] = c.Result
		vm.wakeAwaiters(c.ID)
		return nil
	}
	c.Stack.Push(comp.result)
	c.State = Runnable
	return nil
}

// drainCompletionsNonBlocking applies every completion already queued,
// without blocking, after each scheduler tick.
func (vm *VM) drainCompletionsNonBlocking() error {
	for {
		select {
		case comp := <-vm.bridge.completions:
			if err := vm.applyCompletion(comp); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// wakeAwaiters resumes every coroutine parked on AWAIT of finishedID,
// pushing the finished coroutine's return values onto its stack (spec §4.I:
// "wake any coroutine whose WaitingForCoro matches").
func (vm *VM) wakeAwaiters(finishedID uint32) {
	target, ok := vm.coros[finishedID]
	if !ok {
		return
	}
	for _, w := range vm.coros {
		if w.State == WaitingForCoro && w.AwaitingID == finishedID {
			for _, v := range target.Result {
				w.Stack.Push(v)
			}
			target.Consumed = true
			w.State = Runnable
		}
	}
}

func resultValue(vals []Value) Value {
	if len(vals) == 0 {
		return I32(0)
	}
	return vals[0]
}
