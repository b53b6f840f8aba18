package maincmd

import (
	"context"
	"io"

	"github.com/mna/mainer"

	"github.com/toi-lang/toi/internal/replline"
	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/machine"
	"github.com/toi-lang/toi/lang/module"
	"github.com/toi-lang/toi/lang/token"
)

// Repl starts the interactive read-eval-print loop (§6 "CLI surface"): one
// Thread and global table persist across statements, each compiled
// independently in REPL mode so top-level assignments bind as globals
// instead of locals. Ctrl-D at a fresh prompt ends the session cleanly;
// Ctrl-C is left to the process's normal SIGINT handling, which cancels ctx
// and is observed by the running VM at its next safe point.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, _ []string) error {
	fs := token.NewFileSet()
	th := machine.NewThread()
	th.Stdout, th.Stderr, th.Stdin = stdio.Stdout, stdio.Stderr, stdio.Stdin
	th.Load = module.NewLoader(c.libRoots()...).Load
	th.Init(ctx)

	ed := replline.New(stdio.Stdin, stdio.Stdout)
	for {
		src, err := ed.ReadStatement()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return printError(stdio, err)
		}
		if src == "" {
			continue
		}

		fn, err := compiler.CompileExpr(fs, []byte(src))
		if err != nil {
			printError(stdio, err)
			continue
		}

		top := &machine.Closure{Fn: fn}
		result, err := th.RunModule(top, "<stdin>", "<stdin>", true)
		if err != nil {
			printError(stdio, err)
			continue
		}
		if result != nil && result != machine.Nil {
			io.WriteString(stdio.Stdout, result.String()+"\n")
		}
	}
}
