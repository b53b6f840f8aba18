package scanner

import "github.com/toi-lang/toi/lang/token"

// fstring scans an f"…", f'…' or f[[…]] literal as a single FSTRING token
// (§4.2); the compiler is responsible for parsing the {expr[|spec]}
// substitutions out of its raw text (§4.3.4). The scanner's only job here
// is to find the matching terminator while respecting brace nesting so
// that a '}' inside a substitution expression's own string literal doesn't
// prematurely end things -- nested strings inside substitutions are rare
// enough that we require authors to escape a literal brace with \{ \}
// instead of fully re-entering the lexer.
func (s *Scanner) fstring(val *token.Value, pos token.Pos) token.Token {
	start := s.off - 1 // the 'f' itself

	var closeLong bool
	var opening byte
	if s.cur == '[' {
		s.advance() // second '['
		closeLong = true
	} else {
		opening = byte(s.cur)
		s.advance()
	}

	bodyStart := s.off
	depth := 0
	for {
		switch {
		case s.cur == -1:
			s.error("unterminated f-string literal")
			*val = token.Value{Raw: string(s.src[start:s.off]), Pos: pos}
			return token.FSTRING
		case s.cur == '\\':
			s.advance()
			if s.cur != -1 {
				s.advance()
			}
		case s.cur == '{':
			depth++
			s.advance()
		case s.cur == '}':
			if depth > 0 {
				depth--
			}
			s.advance()
		case closeLong && s.cur == ']' && s.peek() == ']' && depth == 0:
			bodyEnd := s.off
			s.advance()
			s.advance()
			*val = token.Value{
				Raw:    string(s.src[start:s.off]),
				String: string(s.src[bodyStart:bodyEnd]),
				Pos:    pos,
			}
			return token.FSTRING
		case !closeLong && byte(s.cur) == opening && depth == 0:
			bodyEnd := s.off
			s.advance()
			*val = token.Value{
				Raw:    string(s.src[start:s.off]),
				String: string(s.src[bodyStart:bodyEnd]),
				Pos:    pos,
			}
			return token.FSTRING
		case !closeLong && s.cur == '\n':
			s.error("unterminated f-string literal")
			*val = token.Value{Raw: string(s.src[start:s.off]), Pos: pos}
			return token.FSTRING
		default:
			s.advance()
		}
	}
}
