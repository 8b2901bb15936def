package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dariomnz/etherc/lang/ir"
)

func TestAsmRoundTrip(t *testing.T) {
	prog, err := ir.Asm([]byte(`
program:
strings:
	"hi"
structs:
	struct Pair
		a 0 1
		b 1 1
		total 2
function: add 2 2
	code:
		load_var 0 1
		load_var 1 1
		add
		ret 1
function: main 0 1
	code:
		push_i32 3
		push_i32 4
		call add 2
		store_var 0 1
		load_var 0 1
		ret 1
`))
	require.NoError(t, err)

	_, ok := prog.Func("main")
	require.True(t, ok)
	addFn, ok := prog.Func("add")
	require.True(t, ok)
	require.Equal(t, 2, addFn.NumParams)
	require.Equal(t, 2, addFn.NumSlots)

	layout, ok := prog.StructLayouts["Pair"]
	require.True(t, ok)
	require.Equal(t, 2, layout.TotalSlots)

	out := ir.Dasm(prog)
	require.Contains(t, out, "function: add")
	require.Contains(t, out, "function: main")
	require.Contains(t, out, "call")
}

func TestAsmMissingMainIsError(t *testing.T) {
	_, err := ir.Asm([]byte(`
program:
function: helper 0 0
	code:
		ret 0
`))
	require.Error(t, err)
}

func TestAsmUnknownCallTargetIsError(t *testing.T) {
	_, err := ir.Asm([]byte(`
program:
function: main 0 0
	code:
		call nonexistent 0
		ret 0
`))
	require.Error(t, err)
}
