package compiler

import (
	"github.com/hashicorp/go-multierror"

	"github.com/toi-lang/toi/lang/scanner"
	"github.com/toi-lang/toi/lang/token"
)

// Session is the process-wide (well, process-wide per the teacher; here
// scoped to one compile() call, per §9's "lift to a Session value threaded
// through compilation") mutable state of the scanner+parser+compiler
// pipeline. No public state survives across Compile calls: a fresh Session
// is created per file.
type Session struct {
	scan *scanner.Scanner
	file *token.File

	previous token.Value
	prevTok  token.Token
	current  token.Value
	curTok   token.Token

	hadError  bool
	panicMode bool
	errs      *multierror.Error

	// §3 Parser state context flags. The table-literal context lives in the
	// scanner's own insideTable depth counter, and for-range headers are
	// detected structurally off the emitted bytecode, so only the REPL knob,
	// the assignment marker (REPL echo suppression) and the type-hint stack
	// remain here.
	replMode       bool
	assignHappened bool
	typeStack      []TypeHint

	fc *fnCompiler // current function compiler (top of the stack)
}

func newSession(file *token.File, src []byte, replMode bool) *Session {
	sess := &Session{file: file, replMode: replMode, errs: newErrorList()}
	sess.scan = scanner.New(file, src, sess.reportLexError)
	return sess
}

func (s *Session) reportLexError(pos token.Position, msg string) {
	s.hadError = true
	s.errs = multierror.Append(s.errs, &CompileError{Pos: pos, Message: msg})
}

func (s *Session) pushType(t TypeHint) {
	s.typeStack = append(s.typeStack, t)
}

func (s *Session) popType() TypeHint {
	if len(s.typeStack) == 0 {
		return TypeUnknown
	}
	t := s.typeStack[len(s.typeStack)-1]
	s.typeStack = s.typeStack[:len(s.typeStack)-1]
	return t
}

func (s *Session) peekType2() (TypeHint, TypeHint) {
	n := len(s.typeStack)
	if n < 2 {
		return TypeUnknown, TypeUnknown
	}
	return s.typeStack[n-2], s.typeStack[n-1]
}
