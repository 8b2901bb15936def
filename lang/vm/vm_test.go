package vm_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dariomnz/etherc/lang/ir"
	"github.com/dariomnz/etherc/lang/vm"
)

func run(t *testing.T, src string) (vm.Value, string) {
	t.Helper()
	prog, err := ir.Asm([]byte(src))
	require.NoError(t, err)

	var stdout bytes.Buffer
	machine := vm.New(prog, 4, &stdout, &stdout, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := machine.Run(ctx)
	require.NoError(t, err)
	return result, stdout.String()
}

func TestArithmetic(t *testing.T) {
	// 2*3 + 4*2 = 14.
	result, _ := run(t, `
program:
function: main 0 0
	code:
		push_i32 2
		push_i32 3
		mul
		push_i32 4
		push_i32 2
		mul
		add
		ret 1
`)
	require.Equal(t, int64(14), result.AsInt())
}

func TestControlFlowSum(t *testing.T) {
	// sum 1..9: i starts at 1, loop while i <= 9, accumulate. Slots: 0=i, 1=acc.
	result, _ := run(t, `
program:
function: main 0 2
	code:
		push_i32 1
		store_var 0 1
		push_i32 0
		store_var 1 1
		load_var 0 1
		push_i32 9
		le
		jz 17
		load_var 1 1
		load_var 0 1
		add
		store_var 1 1
		load_var 0 1
		push_i32 1
		add
		store_var 0 1
		jmp 4
		load_var 1 1
		ret 1
`)
	require.Equal(t, int64(45), result.AsInt())
}

func TestFactorial(t *testing.T) {
	result, _ := run(t, `
program:
function: main 0 0
	code:
		push_i32 5
		call fact 1
		ret 1
function: fact 1 1
	code:
		load_var 0 1
		push_i32 2
		lt
		jz 6
		push_i32 1
		ret 1
		load_var 0 1
		load_var 0 1
		push_i32 1
		sub
		call fact 1
		mul
		ret 1
`)
	require.Equal(t, int64(120), result.AsInt())
}

func TestCoroutineSum(t *testing.T) {
	// main spawns worker(12, 17), awaits it, returns its result (29).
	result, _ := run(t, `
program:
function: main 0 1
	code:
		push_i32 12
		push_i32 17
		spawn worker 2
		store_var 0 1
		load_var 0 1
		await
		ret 1
function: worker 2 2
	code:
		load_var 0 1
		load_var 1 1
		add
		ret 1
`)
	require.Equal(t, int64(29), result.AsInt())
}

func TestAsyncIOOrdering(t *testing.T) {
	// main writes "A", spawns a bare syscall coroutine writing "B", then
	// writes "A" again. Regardless of interleaving every write must actually
	// happen exactly once; the two possible legal orderings are AAB or ABA
	// (B can only ever land after the first A, since the spawn happens after
	// it), never BAA or any ordering that drops a byte.
	_, out := run(t, `
program:
function: main 0 0
	code:
		push_i32 2
		push_i32 1
		push_str "A"
		push_i32 1
		syscall 4
		push_i32 2
		push_i32 1
		push_str "B"
		push_i32 1
		spawn syscall 4
		push_i32 2
		push_i32 1
		push_str "A"
		push_i32 1
		syscall 4
		ret 0
`)
	require.Equal(t, 2, bytesCount(out, 'A'))
	require.Equal(t, 1, bytesCount(out, 'B'))
}

func bytesCount(s string, b byte) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			n++
		}
	}
	return n
}

// TestArrayIndexRuntimeOffset exercises the l-value resolver's Index lowering
// (spec §4.D): a base Ptr plus a runtime-computed byte offset (index * 16)
// combined with the generic ADD opcode, not a static LOAD_PTR_OFFSET/
// STORE_PTR_OFFSET operand. ADD must stay tag-polymorphic over a Ptr operand
// here instead of treating the mismatched Ptr/int tags as fatal.
func TestArrayIndexRuntimeOffset(t *testing.T) {
	result, _ := run(t, `
program:
function: main 0 1
	code:
		arr_alloc 3
		store_var 0 1
		load_var 0 1
		push_i32 0
		push_i32 16
		mul
		add
		push_i32 5
		store_ptr_offset 0 1
		load_var 0 1
		push_i32 1
		push_i32 16
		mul
		add
		push_i32 7
		store_ptr_offset 0 1
		load_var 0 1
		push_i32 2
		push_i32 16
		mul
		add
		push_i32 9
		store_ptr_offset 0 1
		load_var 0 1
		push_i32 0
		push_i32 16
		mul
		add
		load_ptr_offset 0 1
		load_var 0 1
		push_i32 1
		push_i32 16
		mul
		add
		load_ptr_offset 0 1
		add
		load_var 0 1
		push_i32 2
		push_i32 16
		mul
		add
		load_ptr_offset 0 1
		add
		ret 1
`)
	require.Equal(t, int64(21), result.AsInt())
}

func TestStructPointerSwap(t *testing.T) {
	// struct Point{x,y}; swap(p.x, p.y) through pointer offsets, slot1 as
	// scratch. x=10,y=20 going in; returns x*100+y so the result tells apart
	// a real swap (2010) from a no-op (1020).
	result, _ := run(t, `
program:
structs:
	struct Point
		x 0 1
		y 1 1
		total 2
function: main 0 2
	code:
		arr_alloc 2
		store_var 0 1
		load_var 0 1
		push_i32 10
		store_ptr_offset 0 1
		load_var 0 1
		push_i32 20
		store_ptr_offset 16 1
		load_var 0 1
		load_ptr_offset 0 1
		store_var 1 1
		load_var 0 1
		load_var 0 1
		load_ptr_offset 16 1
		store_ptr_offset 0 1
		load_var 0 1
		load_var 1 1
		store_ptr_offset 16 1
		load_var 0 1
		load_ptr_offset 0 1
		push_i32 100
		mul
		load_var 0 1
		load_ptr_offset 16 1
		add
		ret 1
`)
	require.Equal(t, int64(2010), result.AsInt())
}

// TestInvalidTagIsFatalErrorNotPanic asserts that a genuinely ill-formed
// SUB (a string operand, not an index/member Ptr+offset ADD) surfaces as
// ErrInvalidTag through the normal error-return path rather than an
// unrecovered Go panic (spec §7's "runtime fatal" classification).
func TestInvalidTagIsFatalErrorNotPanic(t *testing.T) {
	prog, err := ir.Asm([]byte(`
program:
function: main 0 0
	code:
		push_str "x"
		push_i32 1
		sub
		ret 1
`))
	require.NoError(t, err)

	var stdout bytes.Buffer
	machine := vm.New(prog, 4, &stdout, &stdout, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = machine.Run(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, vm.ErrInvalidTag))
}
