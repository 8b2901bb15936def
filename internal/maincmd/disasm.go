package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/dariomnz/etherc/lang/ir"
)

// Disasm assembles the .eab file named in args[0] and prints its
// disassembly.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := assembleFile(stdio, args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(stdio.Stdout, ir.Dasm(prog))
	return nil
}
