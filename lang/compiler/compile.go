package compiler

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toi-lang/toi/lang/chunk"
	"github.com/toi-lang/toi/lang/token"
)

// Compile scans and compiles one source file's worth of toi into a top-level
// Function ready to be wrapped in a closure and run (§4.3, §7). On any
// lexical or syntactic error it returns a non-nil error (accumulated across
// the whole file, per §7's "keep going until EOF") and a nil Function.
func Compile(fset *token.FileSet, filename string, src []byte, replMode bool) (*Function, error) {
	file := fset.AddFile(filename, len(src))
	sess := newSession(file, src, replMode)

	top := newFnCompiler(nil, "<script>", replMode)
	sess.fc = top

	sess.advance()
	for !sess.check(token.EOF) {
		sess.skipNewlines()
		if sess.check(token.EOF) {
			break
		}
		sess.statement()
	}

	sess.emit(chunk.NIL)
	sess.emit(chunk.RETURN)

	if sess.hadError {
		err := sess.errs.ErrorOrNil()
		logrus.Debugln(err)
		return nil, err
	}

	optimize(top.fn)
	var dis strings.Builder
	top.fn.Chunk.Disassemble(&dis, filename)
	logrus.Debugln(dis.String())
	return top.fn, nil
}

// CompileExpr compiles a single REPL-mode expression or statement typed at
// the "> " prompt, reusing Compile's machinery with replMode forced on so
// top-level bindings are visible across successive REPL evaluations (§9
// Open Question: REPL-mode is a per-Session field, not a package global).
func CompileExpr(fset *token.FileSet, src []byte) (*Function, error) {
	return Compile(fset, "<stdin>", src, true)
}
