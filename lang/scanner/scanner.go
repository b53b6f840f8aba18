// Package scanner tokenizes toi source files for the compiler to consume.
// It combines the lexer and the indentation scanner described in spec §4.1
// and §4.2 into a single pass: INDENT/DEDENT/NEWLINE are synthesized at
// logical-line boundaries alongside the ordinary token stream, the same way
// a hand-rolled Python-like lexer does it.
package scanner

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/josharian/intern"

	"github.com/toi-lang/toi/lang/token"
)

// Scanner tokenizes a single source file. Its scanning state — excluding
// the immutable src/file — is exactly the triple (atLineStart,
// pendingDedents, indent) called out in §4.1 as needing to be serializable
// for incremental reparsing by the editor's parser adjunct.
type Scanner struct {
	file *token.File
	src  []byte
	err  func(token.Position, string)

	sb strings.Builder

	cur  rune
	off  int // byte offset of cur
	roff int // byte offset just past cur
	line int
	col  int

	// §4.1 indentation state
	indent         []int
	pendingDedents int
	atLineStart    bool
	insideTable    int // depth counter; indentation tokens suppressed while > 0
}

// State is the serializable subset of Scanner's mutable state (§4.1).
type State struct {
	AtLineStart    bool
	PendingDedents int
	Indent         []int
}

// New creates a Scanner over src, reporting file positions against file.
// errHandler is called for every lexical error encountered; scanning does
// not stop on error: the offending lexeme still yields its ordinary token
// (ILLEGAL for an unrecognized character) and scanning continues. The
// scanner never produces an ERROR token.
func New(file *token.File, src []byte, errHandler func(token.Position, string)) *Scanner {
	s := &Scanner{file: file, src: src, err: errHandler}
	s.indent = []int{0}
	s.atLineStart = true
	s.line, s.col = 1, 0
	s.cur = ' '
	s.advance()
	return s
}

// Snapshot returns the current serializable indentation state (§4.1).
func (s *Scanner) Snapshot() State {
	return State{
		AtLineStart:    s.atLineStart,
		PendingDedents: s.pendingDedents,
		Indent:         append([]int(nil), s.indent...),
	}
}

// Restore resets the scanner's indentation state from a prior Snapshot,
// supporting incremental reparsing.
func (s *Scanner) Restore(st State) {
	s.atLineStart = st.AtLineStart
	s.pendingDedents = st.PendingDedents
	s.indent = append([]int(nil), st.Indent...)
}

// Mark captures every mutable field of Scanner, including raw cursor
// position, so the parser can scan arbitrarily far ahead to disambiguate a
// grammar construct (e.g. "a, b =" vs a plain expression) and then rewind
// exactly to this point. Unlike Snapshot/Restore, which cover only the
// indentation subset meant for incremental reparsing, Mark/Rewind restores
// byte-for-byte scanner identity.
type Mark struct {
	off, roff int
	line, col int
	cur       rune
	inTable   int
	state     State
}

func (s *Scanner) Mark() Mark {
	return Mark{
		off: s.off, roff: s.roff,
		line: s.line, col: s.col,
		cur:     s.cur,
		inTable: s.insideTable,
		state:   s.Snapshot(),
	}
}

func (s *Scanner) Rewind(m Mark) {
	s.off, s.roff = m.off, m.roff
	s.line, s.col = m.line, m.col
	s.cur = m.cur
	s.insideTable = m.inTable
	s.Restore(m.state)
}

func (s *Scanner) pos() token.Pos { return token.MakePos(s.line, s.col) }

func (s *Scanner) error(msg string) {
	if s.err != nil {
		s.err(s.file.Position(s.pos()), msg)
	}
}

func (s *Scanner) errorf(format string, args ...any) {
	s.error(fmt.Sprintf(format, args...))
}

func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

func (s *Scanner) advance() {
	if s.cur == '\n' {
		s.line++
		s.col = 0
	}
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		s.cur = -1
		return
	}
	s.off = s.roff
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
	}
	s.roff += w
	s.col++
	s.cur = r
}

func (s *Scanner) advanceIf(b byte) bool {
	if s.cur == rune(b) {
		s.advance()
		return true
	}
	return false
}

// Scan returns the next token in the source, writing its payload into val.
func (s *Scanner) Scan(val *token.Value) token.Token {
	if s.pendingDedents > 0 {
		s.pendingDedents--
		*val = token.Value{Pos: s.pos()}
		return token.DEDENT
	}

	if s.atLineStart && s.insideTable == 0 {
		if tok, ok := s.scanIndent(val); ok {
			return tok
		}
	}
	s.atLineStart = false

	s.skipBlanks()

	pos := s.pos()
	start := s.off

	switch cur := s.cur; {
	case cur == -1:
		// drain any open indentation levels so INDENT/DEDENT balance even
		// when the file does not end with a newline at column 0.
		if len(s.indent) > 1 {
			s.indent = s.indent[:len(s.indent)-1]
			*val = token.Value{Pos: pos}
			return token.DEDENT
		}
		*val = token.Value{Pos: pos}
		return token.EOF

	case cur == '\n':
		s.advance()
		s.atLineStart = true
		*val = token.Value{Pos: pos}
		return token.NEWLINE

	case isLetter(cur):
		lit := s.ident()
		tok := token.IDENT
		if lit == "f" && (s.cur == '"' || s.cur == '\'' || (s.cur == '[' && s.peek() == '[')) {
			return s.fstring(val, pos)
		}
		if len(lit) > 1 {
			tok = token.LookupKeyword(lit)
		}
		*val = token.Value{Raw: intern.String(lit), Pos: pos}
		return tok

	case isDigit(cur) || (cur == '.' && isDigit(rune(s.peek()))):
		return s.number(val, pos, start)

	case cur == '"' || cur == '\'':
		s.advance()
		lit, dec := s.shortString(byte(cur))
		*val = token.Value{Raw: lit, String: dec, Pos: pos}
		return token.STRING

	case cur == '[' && (s.peek() == '[' || s.peek() == '='):
		s.advance()
		lit, dec := s.longString()
		*val = token.Value{Raw: lit, String: dec, Pos: pos}
		return token.STRING

	default:
		return s.operator(val, pos, start)
	}
}

// scanIndent handles the column-counting / INDENT-DEDENT-NEWLINE logic of
// §4.1 for the start of a logical line. It returns ok=false when the line
// turned out to be blank/comment-only and the caller should keep scanning
// (the scanner already consumed the NEWLINE in that case and stays "at line
// start").
func (s *Scanner) scanIndent(val *token.Value) (token.Token, bool) {
	col := 0
	for {
		switch s.cur {
		case ' ':
			col++
			s.advance()
			continue
		case '\t':
			col += 4
			s.advance()
			continue
		}
		break
	}

	if s.cur == -1 {
		if len(s.indent) > 1 {
			s.pendingDedents = len(s.indent) - 2
			s.indent = s.indent[:1]
			*val = token.Value{Pos: s.pos()}
			return token.DEDENT, true
		}
		*val = token.Value{Pos: s.pos()}
		return token.EOF, true
	}
	if s.cur == '\n' || (s.cur == '-' && s.peek() == '-') {
		// blank or comment-only line: consume through the newline and stay at
		// line start, emitting a single NEWLINE.
		for s.cur != '\n' && s.cur != -1 {
			s.advance()
		}
		pos := s.pos()
		if s.cur == '\n' {
			s.advance()
		}
		*val = token.Value{Pos: pos}
		return token.NEWLINE, true
	}

	top := s.indent[len(s.indent)-1]
	switch {
	case col > top:
		s.indent = append(s.indent, col)
		s.atLineStart = false
		*val = token.Value{Pos: s.pos()}
		return token.INDENT, true
	case col < top:
		n := 0
		for len(s.indent) > 0 && s.indent[len(s.indent)-1] > col {
			s.indent = s.indent[:len(s.indent)-1]
			n++
		}
		if s.indent[len(s.indent)-1] != col {
			s.error("inconsistent indentation")
		}
		s.pendingDedents = n - 1
		s.atLineStart = false
		*val = token.Value{Pos: s.pos()}
		return token.DEDENT, true
	default:
		return 0, false
	}
}

// skipBlanks consumes spaces/tabs and "--" comments that are not at the
// start of a logical line (those were already handled by scanIndent).
func (s *Scanner) skipBlanks() {
	for {
		switch {
		case s.cur == ' ' || s.cur == '\t' || s.cur == '\r':
			s.advance()
		case s.cur == '-' && s.peek() == '-':
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		default:
			return
		}
	}
}

func (s *Scanner) ident() string {
	start := s.off
	for isLetter(s.cur) || isDigit(s.cur) {
		s.advance()
	}
	return string(s.src[start:s.off])
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func lower(r rune) rune { return r | 0x20 }
