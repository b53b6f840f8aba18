package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/toi-lang/toi/lang/scanner"
	"github.com/toi-lang/toi/lang/token"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return TokenizeFiles(stdio, token.PosLong, args...)
}

// TokenizeFiles runs the scanner phase alone over each file and prints every
// token it produces, one per line (§6 "tokenize" subcommand).
func TokenizeFiles(stdio mainer.Stdio, posMode token.PosMode, files ...string) error {
	fs := token.NewFileSet()
	var lastErr error
	for _, name := range files {
		toks, file, err := scanner.ScanFile(fs, name)
		for _, tok := range toks {
			fmt.Fprintf(stdio.Stdout, "%s: %s", token.FormatPos(posMode, file, tok.Value.Pos, true), tok.Token)
			if lit := tok.Token.Literal(tok.Value); lit != "" {
				fmt.Fprintf(stdio.Stdout, " %s", lit)
			}
			fmt.Fprintln(stdio.Stdout)
		}
		if err != nil {
			printError(stdio, err)
			lastErr = err
		}
	}
	return lastErr
}
