// Package replline implements the REPL's line editor and continuation
// detection (spec.md §6 "CLI surface"): a single-purpose struct that reads
// one statement's worth of input, prompting "> " for new input and "... "
// while brackets are unmatched, an infix operator / comma / dot trails the
// last line, or a block-opening keyword is waiting on its body.
//
// This mirrors the teacher's preference for no external line-editing
// dependency: input is read line by line with bufio.Scanner rather than
// driving a real terminal. The LINENOISE_ASSUME_TTY and LINENOISE_COLS
// environment variables the teacher's tooling documents for test harnesses
// are honored here as behavior notes only (see Editor.assumeTTY/cols) since
// this package never takes over the terminal the way a real linenoise
// binding would.
package replline

import (
	"bufio"
	"io"
	"os"
	"strconv"

	"github.com/toi-lang/toi/lang/scanner"
	"github.com/toi-lang/toi/lang/token"
)

const (
	promptNew  = "> "
	promptCont = "... "
)

// Editor reads successive REPL statements from in, writing prompts to out.
type Editor struct {
	in  *bufio.Scanner
	out io.Writer

	assumeTTY bool
	cols      int
}

// New returns an Editor reading from in and prompting on out.
func New(in io.Reader, out io.Writer) *Editor {
	e := &Editor{in: bufio.NewScanner(in), out: out}
	e.assumeTTY = os.Getenv("LINENOISE_ASSUME_TTY") != ""
	if c, err := strconv.Atoi(os.Getenv("LINENOISE_COLS")); err == nil && c > 0 {
		e.cols = c
	}
	return e
}

// ReadStatement prompts for and reads one complete REPL statement: lines are
// accumulated, re-prompting with "... " as long as NeedsMore reports the
// buffer is an incomplete statement, until either a blank line is seen while
// continuing (submit what's been typed) or the buffer parses as complete on
// its own. Returns io.EOF when the input stream ends at a fresh prompt
// (Ctrl-D).
func (e *Editor) ReadStatement() (string, error) {
	var buf []byte
	continuing := false

	for {
		prompt := promptNew
		if continuing {
			prompt = promptCont
		}
		if e.out != nil {
			io.WriteString(e.out, prompt)
		}

		if !e.in.Scan() {
			if err := e.in.Err(); err != nil {
				return "", err
			}
			if !continuing {
				return "", io.EOF
			}
			return string(buf), nil
		}
		line := e.in.Text()

		if continuing && line == "" {
			return string(buf), nil
		}

		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, line...)

		if !NeedsMore(buf) {
			return string(buf), nil
		}
		continuing = true
	}
}

// NeedsMore reports whether src is an incomplete statement: unmatched
// brackets, a trailing infix/dot/comma token, or a block-opening keyword
// whose body hasn't been typed yet (§6 "triggered by unmatched brackets,
// trailing infix/dot/comma, or any control-flow keyword").
func NeedsMore(src []byte) bool {
	fs := token.NewFileSet()
	file := fs.AddFile("<repl>", len(src))
	s := scanner.New(file, src, func(token.Position, string) {})

	depth := 0
	blockKeyword := false
	var last token.Token
	var v token.Value
	for {
		tok := s.Scan(&v)
		if tok == token.EOF {
			break
		}
		switch tok {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
		case token.NEWLINE, token.INDENT, token.DEDENT:
			continue
		case token.IF, token.ELIF, token.ELSE, token.WHILE, token.FOR,
			token.FN, token.TRY, token.EXCEPT, token.FINALLY, token.MATCH,
			token.CASE, token.WITH:
			// a block construct anywhere keeps the continuation open until
			// the user submits with a blank line
			blockKeyword = true
		}
		last = tok
	}
	if depth > 0 || blockKeyword {
		return true
	}
	switch last {
	case token.COMMA, token.DOT, token.COLONCOLON,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.SLASHSLASH,
		token.PERCENT, token.STARSTAR, token.AMP, token.PIPE, token.CARET,
		token.AND, token.OR, token.EQ, token.COLON, token.COLONEQ:
		return true
	}
	return false
}
