package maincmd

import (
	"context"

	"github.com/mna/mainer"

	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/machine"
	"github.com/toi-lang/toi/lang/module"
	"github.com/toi-lang/toi/lang/token"
)

// Run compiles and executes each file in turn, stopping at the first one
// that fails to compile or raises an uncaught exception (§6 "run" command,
// the default when toi is invoked with a bare path).
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunFiles(ctx, stdio, c.libRoots(), args...)
}

func RunFiles(ctx context.Context, stdio mainer.Stdio, libRoots []string, files ...string) error {
	fs := token.NewFileSet()
	loader := module.NewLoader(libRoots...)

	for _, name := range files {
		src, err := readSource(name)
		if err != nil {
			return printError(stdio, err)
		}
		fn, err := compiler.Compile(fs, name, src, false)
		if err != nil {
			return printError(stdio, err)
		}

		th := machine.NewThread()
		th.Stdout, th.Stderr, th.Stdin = stdio.Stdout, stdio.Stderr, stdio.Stdin
		th.Load = loader.Load
		th.Init(ctx)

		top := &machine.Closure{Fn: fn}
		if _, err := th.RunModule(top, name, name, true); err != nil {
			return printError(stdio, err)
		}
	}
	return nil
}
