package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/dariomnz/etherc/internal/config"
	"github.com/dariomnz/etherc/lang/ir"
	"github.com/dariomnz/etherc/lang/vm"
)

// Run assembles the .eab file named in args[0] and executes it on the VM.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := assembleFile(stdio, args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}

	machine := vm.New(prog, cfg.IOWorkers, stdio.Stdout, stdio.Stderr, stdio.Stdin)
	machine.CollectStats = cfg.Stats || c.Stats
	machine.MaxSteps = cfg.MaxSteps

	result, err := machine.Run(ctx)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}

	fmt.Fprintf(stdio.Stdout, "exit: %s\n", formatResult(result))
	if machine.CollectStats {
		machine.WriteStats(stdio.Stdout)
	}
	return nil
}

func formatResult(v vm.Value) string {
	switch v.Tag {
	case vm.TagF32, vm.TagF64:
		return fmt.Sprintf("%g", v.AsFloat())
	case vm.TagString:
		return "<string>"
	case vm.TagPtr:
		return "<ptr>"
	default:
		return fmt.Sprintf("%d", v.AsInt())
	}
}

func assembleFile(stdio mainer.Stdio, path string) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return nil, err
	}
	prog, err := ir.Asm(data)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "assemble %s: %s\n", path, err)
		return nil, err
	}
	return prog, nil
}
