package compiler

import (
	"github.com/hashicorp/go-multierror"

	"github.com/toi-lang/toi/lang/token"
)

func (s *Session) advance() {
	s.previous, s.prevTok = s.current, s.curTok
	for {
		s.curTok = s.scan.Scan(&s.current)
		if s.curTok != token.ERROR {
			break
		}
		s.errorAtCurrent(s.current.String)
	}
}

func (s *Session) check(t token.Token) bool { return s.curTok == t }

func (s *Session) match(t token.Token) bool {
	if !s.check(t) {
		return false
	}
	s.advance()
	return true
}

func (s *Session) consume(t token.Token, msg string) {
	if s.curTok == t {
		s.advance()
		return
	}
	s.errorAtCurrent(msg)
}

// skipNewlines consumes zero or more NEWLINE tokens, used where the grammar
// tolerates blank logical lines without requiring an INDENT/DEDENT pair.
func (s *Session) skipNewlines() {
	for s.check(token.NEWLINE) {
		s.advance()
	}
}

func (s *Session) errorAtCurrent(msg string) { s.errorAt(s.current, s.curTok, msg) }
func (s *Session) errorAtPrevious(msg string) { s.errorAt(s.previous, s.prevTok, msg) }

func (s *Session) errorAt(val token.Value, tok token.Token, msg string) {
	if s.panicMode {
		return
	}
	s.panicMode = true
	s.hadError = true

	line, _ := val.Pos.LineCol()
	pos := token.Position{Filename: s.file.Name(), Line: line}

	at := tok.Literal(val)
	if at == "" {
		at = tok.String()
	}
	if tok == token.EOF {
		at = ""
	}
	s.errs = multierror.Append(s.errs, &CompileError{Pos: pos, AtToken: at, Message: msg})
}

// synchronize recovers from panic mode by discarding tokens until a likely
// statement boundary (§7: "EOF, DEDENT, statement starters").
func (s *Session) synchronize() {
	s.panicMode = false
	for s.curTok != token.EOF {
		if s.prevTok == token.NEWLINE || s.prevTok == token.DEDENT {
			return
		}
		switch s.curTok {
		case token.IF, token.WHILE, token.FOR, token.FN, token.LOCAL,
			token.GLOBAL, token.RETURN, token.TRY, token.IMPORT, token.FROM,
			token.THROW, token.MATCH, token.BREAK, token.CONTINUE:
			return
		}
		s.advance()
	}
}
