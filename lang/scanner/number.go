package scanner

import (
	"strconv"
	"strings"

	"github.com/toi-lang/toi/lang/token"
)

// number scans an INT or FLOAT literal, accepting '_' as a digit separator
// between digits (§4.2).
func (s *Scanner) number(val *token.Value, pos token.Pos, start int) token.Token {
	tok := token.INT

	if s.cur != '.' {
		s.digits()
	}
	// a second '.' means the dot belongs to a ".." range operator, not to
	// this number ("1..3" is INT DOTDOT INT, never FLOAT FLOAT).
	if s.cur == '.' && s.peek() != '.' {
		tok = token.FLOAT
		s.advance()
		s.digits()
	}
	if lower(s.cur) == 'e' {
		s.advance()
		tok = token.FLOAT
		if s.cur == '+' || s.cur == '-' {
			s.advance()
		}
		s.digits()
	}

	lit := string(s.src[start:s.off])
	clean := strings.ReplaceAll(lit, "_", "")

	*val = token.Value{Raw: lit, Pos: pos}
	switch tok {
	case token.INT:
		n, err := strconv.ParseInt(clean, 10, 64)
		if err != nil {
			s.errorf("invalid integer literal %q: %s", lit, err)
		}
		val.Int = n
	case token.FLOAT:
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			s.errorf("invalid float literal %q: %s", lit, err)
		}
		val.Float = f
	}
	return tok
}

// digits consumes a run of decimal digits and/or '_' separators. A
// separator may not be the first or last character of the run, nor appear
// twice in a row; violations are reported but do not stop scanning.
func (s *Scanner) digits() {
	sawDigit, sawSep, lastWasSep := false, false, false
	for isDigit(s.cur) || s.cur == '_' {
		if s.cur == '_' {
			if !sawDigit || lastWasSep {
				s.error("invalid digit separator placement")
			}
			sawSep, lastWasSep = true, true
		} else {
			sawDigit, lastWasSep = true, false
		}
		s.advance()
	}
	if sawSep && lastWasSep {
		s.error("invalid digit separator placement")
	}
}
