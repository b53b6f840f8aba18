package maincmd

import (
	"context"

	"github.com/mna/mainer"

	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/token"
)

// Compile runs the compiler phase alone over each file and prints the
// resulting function's disassembled bytecode, without executing it (§6
// "compile" command, the offline counterpart to "run").
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return CompileFiles(stdio, args...)
}

func CompileFiles(stdio mainer.Stdio, files ...string) error {
	fs := token.NewFileSet()
	var lastErr error
	for _, name := range files {
		src, err := readSource(name)
		if err != nil {
			printError(stdio, err)
			lastErr = err
			continue
		}
		fn, err := compiler.Compile(fs, name, src, false)
		if err != nil {
			printError(stdio, err)
			lastErr = err
			continue
		}
		fn.Chunk.Disassemble(stdio.Stdout, name)
	}
	return lastErr
}
