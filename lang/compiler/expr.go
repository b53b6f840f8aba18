package compiler

import (
	"github.com/toi-lang/toi/lang/chunk"
	"github.com/toi-lang/toi/lang/scanner"
	"github.com/toi-lang/toi/lang/token"
)

// grouping handles a parenthesized expression, or — when the body is
// followed by a top-level "for" before the closing ")" — a generator
// comprehension "( expr for x[,y] in iter [if cond] )" (§4.3.5).
func grouping(s *Session, canAssign bool) {
	bodyMark := s.markParser()
	if forMark, ok := s.findComprehensionFor(token.RPAREN); ok {
		s.generatorComprehension(bodyMark, forMark)
		s.consume(token.RPAREN, "expected ')' after generator comprehension")
		return
	}
	s.expression()
	s.consume(token.RPAREN, "expected ')' after expression")
}

func number(s *Session, canAssign bool) {
	if s.prevTok == token.INT {
		s.emitConstant(s.previous.Int)
		s.pushType(TypeInt)
		return
	}
	s.emitConstant(s.previous.Float)
	s.pushType(TypeFloat)
}

func str(s *Session, canAssign bool) {
	s.emitConstant(s.previous.String)
	s.pushType(TypeOther)
}

func literal(s *Session, canAssign bool) {
	switch s.prevTok {
	case token.TRUE:
		s.emit(chunk.TRUE)
	case token.FALSE:
		s.emit(chunk.FALSE)
	case token.NIL:
		s.emit(chunk.NIL)
	}
	s.pushType(TypeOther)
}

// unary handles MINUS, NOT, BANG, POUND (length), TILDE (bitwise not) and,
// in argument/parameter position, STAR as the vararg-expand marker (§4.3.3
// handles the call-site expand separately via CALL_EXPAND; this prefix slot
// only covers the unary-arithmetic forms).
func unary(s *Session, canAssign bool) {
	op := s.prevTok
	s.parsePrecedence(PrecUnary)
	t := s.popType()
	switch op {
	case token.MINUS:
		s.emit(chunk.NEGATE)
	case token.NOT, token.BANG:
		s.emit(chunk.NOT)
	case token.POUND:
		s.emit(chunk.LENGTH)
	case token.TILDE:
		s.emit(chunk.BNOT)
	case token.STAR:
		// expand marker parsed as a bare expression outside call/param
		// position; nothing to emit beyond the operand itself.
	}
	s.pushType(t)
}

func emitArith(s *Session, op token.Token, left, right TypeHint) {
	numeric := func(t TypeHint) bool { return t == TypeInt || t == TypeFloat }
	bothNum := numeric(left) && numeric(right)
	bothInt := left == TypeInt && right == TypeInt
	bothFloat := bothNum && (left == TypeFloat || right == TypeFloat)
	switch op {
	case token.PLUS:
		switch {
		case bothInt:
			s.emit(chunk.IADD)
		case bothFloat:
			s.emit(chunk.FADD)
		default:
			s.emit(chunk.ADD)
		}
	case token.MINUS:
		switch {
		case bothInt:
			s.emit(chunk.ISUB)
		case bothFloat:
			s.emit(chunk.FSUB)
		default:
			s.emit(chunk.SUB)
		}
	case token.STAR:
		switch {
		case bothInt:
			s.emit(chunk.IMUL)
		case bothFloat:
			s.emit(chunk.FMUL)
		default:
			s.emit(chunk.MUL)
		}
	case token.SLASH:
		switch {
		case bothFloat:
			s.emit(chunk.FDIV)
		default:
			s.emit(chunk.DIV)
		}
	case token.SLASHSLASH:
		s.emit(chunk.INT_DIV)
	case token.PERCENT:
		if bothInt {
			s.emit(chunk.IMOD)
		} else {
			s.emit(chunk.MODULO)
		}
	case token.STARSTAR:
		s.emit(chunk.POWER)
	}
	// "/" and "**" always produce a float for numeric operands; everything
	// else preserves int-ness.
	switch {
	case bothNum && (op == token.SLASH || op == token.STARSTAR):
		s.pushType(TypeFloat)
	case bothInt:
		s.pushType(TypeInt)
	case bothFloat:
		s.pushType(TypeFloat)
	default:
		s.pushType(TypeOther)
	}
}

func binary(s *Session, canAssign bool) {
	op := s.prevTok
	rule := getRule(op)
	leftType := s.popType()
	next := rule.precedence + 1
	if op == token.STARSTAR {
		next = rule.precedence // "**" right-associates
	}
	s.parsePrecedence(next)
	rightType := s.popType()

	switch op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.SLASHSLASH, token.PERCENT, token.STARSTAR:
		emitArith(s, op, leftType, rightType)
	case token.AMP:
		s.emit(chunk.BAND)
		s.pushType(TypeOther)
	case token.PIPE:
		s.emit(chunk.BOR)
		s.pushType(TypeOther)
	case token.CARET:
		s.emit(chunk.BXOR)
		s.pushType(TypeOther)
	case token.LTLT:
		s.emit(chunk.SHL)
		s.pushType(TypeOther)
	case token.GTGT:
		s.emit(chunk.SHR)
		s.pushType(TypeOther)
	case token.EQEQ:
		s.emit(chunk.EQUAL)
		s.pushType(TypeOther)
	case token.BANGEQ:
		s.emit(chunk.EQUAL)
		s.emit(chunk.NOT)
		s.pushType(TypeOther)
	case token.LT:
		s.emit(chunk.LESS)
		s.pushType(TypeOther)
	case token.GT:
		s.emit(chunk.GREATER)
		s.pushType(TypeOther)
	case token.LE:
		s.emit(chunk.GREATER)
		s.emit(chunk.NOT)
		s.pushType(TypeOther)
	case token.GE:
		s.emit(chunk.LESS)
		s.emit(chunk.NOT)
		s.pushType(TypeOther)
	}
}

// rangeOp implements ".." (§4.3.2): it produces a RANGE value the machine
// knows how to iterate; a for header whose expression ends in RANGE fuses it
// into the numeric FOR_PREP loop form instead (forStatement).
func rangeOp(s *Session, canAssign bool) {
	s.popType()
	s.parsePrecedence(PrecRange + 1)
	s.popType()
	s.emit(chunk.RANGE)
	s.pushType(TypeOther)
}

func inOp(s *Session, canAssign bool) {
	s.popType()
	s.parsePrecedence(PrecComparison + 1)
	s.popType()
	s.emit(chunk.IN)
	s.pushType(TypeOther)
}

// notIn handles "a not in b" (§4.3.2): NOT in infix position consumes the
// following "in" and negates the containment test.
func notIn(s *Session, canAssign bool) {
	s.consume(token.IN, "expected 'in' after 'not'")
	s.popType()
	s.parsePrecedence(PrecComparison + 1)
	s.popType()
	s.emit(chunk.IN)
	s.emit(chunk.NOT)
	s.pushType(TypeOther)
}

func and_(s *Session, canAssign bool) {
	s.popType()
	endJump := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.POP)
	s.parsePrecedence(PrecAnd)
	s.popType()
	s.patchJump(endJump)
	s.pushType(TypeOther)
}

func or_(s *Session, canAssign bool) {
	s.popType()
	elseJump := s.emitJump(chunk.JUMP_IF_TRUE)
	s.emit(chunk.POP)
	s.parsePrecedence(PrecOr)
	s.popType()
	s.patchJump(elseJump)
	s.pushType(TypeOther)
}

// ternary implements "cond ? then : else" as a JUMP_IF_FALSE/JUMP pair,
// mirroring how if/else lowers at statement level (§4.3.2).
func ternary(s *Session, canAssign bool) {
	s.popType()
	thenJump := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.POP)
	s.parsePrecedence(PrecTernary)
	s.popType()
	elseJump := s.emitJump(chunk.JUMP)
	s.patchJump(thenJump)
	s.emit(chunk.POP)
	s.consume(token.COLON, "expected ':' in ternary expression")
	s.parsePrecedence(PrecTernary)
	s.popType()
	s.patchJump(elseJump)
	s.pushType(TypeOther)
}

func variable(s *Session, canAssign bool) {
	name := s.previous.Raw

	var getOp, setOp chunk.Opcode
	var arg uint16
	isGlobal := false

	if slot, hint, ok := resolveLocal(s.fc, name); ok {
		getOp, setOp, arg = chunk.GET_LOCAL, chunk.SET_LOCAL, uint16(slot)
		s.pushType(hint)
	} else if idx, ok := s.resolveUpvalueUnlessGlobal(name); ok {
		getOp, setOp, arg = chunk.GET_UPVALUE, chunk.SET_UPVALUE, uint16(idx)
		s.pushType(TypeUnknown)
	} else {
		isGlobal = true
		idx, err := s.fc.fn.Chunk.AddConstant(name)
		if err != nil {
			s.errorAtPrevious(err.Error())
			return
		}
		getOp, setOp, arg = chunk.GET_GLOBAL, chunk.SET_GLOBAL, uint16(idx)
		s.pushType(TypeUnknown)
	}

	switch {
	case canAssign && s.check(token.EQ):
		s.popType()
		s.advance()
		s.expression()
		s.popType()
		s.emitOperand(setOp, arg)
		s.pushType(TypeOther)
		s.assignHappened = true
	case canAssign && s.curTok.IsAssignOp():
		leftHint := s.popType()
		if isGlobal && s.fc.enclosing != nil && !s.fc.explicitGlobals[name] {
			s.errorAt(s.current, s.curTok, "compound assignment to undeclared name '"+name+"' inside function")
		}
		binOp := s.curTok.BinaryOpFor()
		s.advance()
		s.emitOperand(getOp, arg)
		s.pushType(leftHint)
		s.expression()
		rt := s.popType()
		s.popType()
		emitArith(s, binOp, leftHint, rt)
		s.popType()
		s.emitOperand(setOp, arg)
		s.pushType(TypeOther)
		s.assignHappened = true
	default:
		s.emitOperand(getOp, arg)
	}
}

// argumentList parses a parenthesized call argument list already past '(',
// returning the argument count and whether a trailing "*expr" expand form
// was used (§4.3.3 call forms).
// argumentList parses positional arguments, then at most one trailing
// "*expr" spread or a run of "name=expr" pairs (§4.3.3). Named args open a
// fresh table the first time one is seen and accumulate into it with
// SET_TABLE, so CALL_NAMED's operand is the positional count alone: the
// kwargs table always rides just above those on the stack. Positional
// arguments after a named one, and mixing named with "*expr", are compile
// errors per the same section ("named and spread cannot mix").
func (s *Session) argumentList() (count int, named bool, expand bool) {
	if s.check(token.RPAREN) {
		s.advance()
		return 0, false, false
	}

	// "f(expr for x in iter)": a sole positional argument whose parse
	// reveals a top-level "for" is a generator comprehension passed
	// without its own wrapping parens (§4.3.3).
	bodyMark := s.markParser()
	if forMark, ok := s.findComprehensionFor(token.RPAREN); ok {
		s.generatorComprehension(bodyMark, forMark)
		s.consume(token.RPAREN, "expected ')' after generator comprehension")
		return 1, false, false
	}

	for {
		if s.check(token.STAR) {
			if named {
				s.errorAtCurrent("named and spread arguments cannot mix")
			}
			s.advance()
			s.expression()
			s.popType()
			expand = true
			break
		}
		if s.check(token.IDENT) && s.peekIsNamedArg() {
			if !named {
				s.emitOperand(chunk.NEW_TABLE, 0)
				named = true
			}
			s.advance()
			nameIdx, err := s.fc.fn.Chunk.AddConstant(s.previous.Raw)
			if err != nil {
				s.errorAtPrevious(err.Error())
			}
			s.advance() // consume '='
			s.emitOperand(chunk.CONSTANT, uint16(nameIdx))
			s.expression()
			s.popType()
			s.emit(chunk.SET_TABLE)
			if !s.match(token.COMMA) {
				break
			}
			continue
		}
		if named {
			s.errorAtCurrent("positional argument follows named argument")
		}
		s.expression()
		s.popType()
		count++
		if !s.match(token.COMMA) {
			break
		}
	}
	s.consume(token.RPAREN, "expected ')' after arguments")
	if count > 255 {
		s.errorAtPrevious("too many arguments in call")
	}
	return count, named, expand
}

// peekIsNamedArg reports whether the upcoming IDENT is followed directly by
// '=' (not '=='), i.e. a named-argument form "name = expr" (§4.3.3).
func (s *Session) peekIsNamedArg() bool {
	mark := s.scan.Mark()
	savedCur, savedCurTok := s.current, s.curTok
	var v token.Value
	next := s.scan.Scan(&v)
	isEq := next == token.EQ
	s.scan.Rewind(mark)
	s.current, s.curTok = savedCur, savedCurTok
	return isEq
}

func call(s *Session, canAssign bool) {
	count, named, expand := s.argumentList()
	switch {
	case expand:
		s.emitOperand(chunk.CALL_EXPAND, uint16(count))
	case named:
		s.emitOperand(chunk.CALL_NAMED, uint16(count))
	case count == 0:
		s.emit(chunk.CALL0)
	case count == 1:
		s.emit(chunk.CALL1)
	case count == 2:
		s.emit(chunk.CALL2)
	default:
		s.emitOperand(chunk.CALL, uint16(count))
	}
	s.pushType(TypeOther)
}

// dot handles "." postfix field access; "a.name" reads via GET_FIELD with a
// constant key, "a.name = v" writes via SET_FIELD (§4.3.2).
func dot(s *Session, canAssign bool) {
	s.popType()
	s.consume(token.IDENT, "expected field name after '.'")
	idx, err := s.fc.fn.Chunk.AddConstant(s.previous.Raw)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	if canAssign && s.check(token.EQ) {
		s.advance()
		s.expression()
		s.popType()
		s.emitOperand(chunk.SET_FIELD, uint16(idx))
		s.pushType(TypeOther)
		s.assignHappened = true
		return
	}
	if canAssign && s.curTok.IsAssignOp() {
		op := s.curTok.BinaryOpFor()
		s.advance()
		s.emit(chunk.DUP)
		s.emitOperand(chunk.GET_FIELD, uint16(idx))
		s.pushType(TypeUnknown)
		s.expression()
		rt := s.popType()
		s.popType()
		emitArith(s, op, TypeUnknown, rt)
		s.popType()
		s.emitOperand(chunk.SET_FIELD, uint16(idx))
		s.pushType(TypeOther)
		s.assignHappened = true
		return
	}
	s.emitOperand(chunk.GET_FIELD, uint16(idx))
	s.pushType(TypeUnknown)
}

// metaDot handles "::" postfix access (§4.3.2): "a::name" looks name up in
// a's metatable via GET_META_TABLE. Assigning through "::" is a compile
// error.
func metaDot(s *Session, canAssign bool) {
	s.popType()
	s.consume(token.IDENT, "expected name after '::'")
	idx, err := s.fc.fn.Chunk.AddConstant(s.previous.Raw)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	if canAssign && (s.check(token.EQ) || s.curTok.IsAssignOp()) {
		s.errorAtCurrent("cannot assign through '::'")
	}
	s.emitOperand(chunk.GET_META_TABLE, uint16(idx))
	s.pushType(TypeUnknown)
}

// index handles "[" in postfix position: plain indexing, or a slice
// "a[i..j]" / "a[i..j:step]" (§4.3.2). A top-level ".." before the closing
// "]" selects the slice form, whose bounds parse above range precedence so
// the ".." belongs to the slice rather than building a range value.
func index(s *Session, canAssign bool) {
	s.popType()
	if s.sliceAhead() {
		if s.check(token.DOTDOT) {
			s.emit(chunk.NIL)
		} else {
			s.parsePrecedence(PrecRange + 1)
			s.popType()
		}
		s.consume(token.DOTDOT, "expected '..' in slice")
		if s.check(token.RBRACK) || s.check(token.COLON) {
			s.emit(chunk.NIL)
		} else {
			s.parsePrecedence(PrecRange + 1)
			s.popType()
		}
		if s.match(token.COLON) {
			s.expression()
			s.popType()
		} else {
			s.emit(chunk.NIL)
		}
		s.consume(token.RBRACK, "expected ']' after slice")
		s.emit(chunk.SLICE)
		s.pushType(TypeOther)
		return
	}
	s.expression()
	s.popType()
	s.consume(token.RBRACK, "expected ']' after index")

	if canAssign && s.check(token.EQ) {
		s.advance()
		s.expression()
		s.popType()
		s.emit(chunk.SET_TABLE)
		s.pushType(TypeOther)
		s.assignHappened = true
		return
	}
	if canAssign && s.curTok.IsAssignOp() {
		op := s.curTok.BinaryOpFor()
		s.advance()
		s.emit(chunk.DUP2)
		s.emit(chunk.GET_TABLE)
		s.pushType(TypeUnknown)
		s.expression()
		rt := s.popType()
		s.popType()
		emitArith(s, op, TypeUnknown, rt)
		s.popType()
		s.emit(chunk.SET_TABLE)
		s.pushType(TypeOther)
		s.assignHappened = true
		return
	}
	s.emit(chunk.GET_TABLE)
	s.pushType(TypeUnknown)
}

// tableArrayLiteral handles a bracketed literal list "[a, b, c]", sugar for
// an array-shaped table (§3 Table).
func tableArrayLiteral(s *Session, canAssign bool) {
	s.emitOperand(chunk.NEW_TABLE, 0)
	n := 0
	if !s.check(token.RBRACK) {
		for {
			if s.check(token.RBRACK) {
				break
			}
			s.expression()
			s.popType()
			s.emit(chunk.APPEND)
			n++
			if !s.match(token.COMMA) {
				break
			}
		}
	}
	s.consume(token.RBRACK, "expected ']' after table literal")
	s.pushType(TypeOther)
}

// tableLiteral handles "{ ... }" table construction with array entries,
// "key=value" entries, and a single "expr for x in expr [if cond]"
// comprehension clause (§4.3.5).
func tableLiteral(s *Session, canAssign bool) {
	s.emitOperand(chunk.NEW_TABLE, 0)
	s.skipNewlines()
	if s.check(token.RBRACE) {
		s.advance()
		s.pushType(TypeOther)
		return
	}

	bodyMark := s.markParser()
	if forMark, ok := s.findComprehensionFor(token.RBRACE); ok {
		s.tableComprehension(bodyMark, forMark)
		s.skipNewlines()
		s.consume(token.RBRACE, "expected '}' after comprehension")
		s.pushType(TypeOther)
		return
	}

	// entries separated by "," or by an implicit line break (§4.3.5)
	for {
		s.skipNewlines()
		if s.check(token.RBRACE) {
			break
		}
		s.tableEntry()
		sawSep := false
		if s.check(token.NEWLINE) {
			s.skipNewlines()
			sawSep = true
		}
		if s.match(token.COMMA) {
			sawSep = true
		}
		if !sawSep {
			break
		}
	}
	s.skipNewlines()
	s.consume(token.RBRACE, "expected '}' after table literal")
	s.pushType(TypeOther)
}

// metatableApply handles the table-literal infix application "<expr> { … }"
// (§4.3.5): the new table's metatable becomes the preceding value, and the
// whole expression evaluates to the new table.
func metatableApply(s *Session, canAssign bool) {
	s.popType()
	tableLiteral(s, false)
	s.popType()
	s.emit(chunk.SET_METATABLE)
	s.pushType(TypeOther)
}

// tableEntry parses one "{...}" table literal entry: "[expr]=v", "name=v",
// "\"str\"=v", or a bare array item, per spec.md §3/§4.3.5's "{ k=v,
// [expr]=v, v, … }" (ground truth: compiler.c's parse_table_entries uses
// TOKEN_EQUALS for both bracketed and bare-identifier keys).
func (s *Session) tableEntry() {
	if s.check(token.LBRACK) {
		s.advance()
		s.expression()
		s.popType()
		s.consume(token.RBRACK, "expected ']' after computed key")
		s.consume(token.EQ, "expected '=' after computed key")
		s.expression()
		s.popType()
		s.emit(chunk.SET_TABLE)
		return
	}
	if s.check(token.IDENT) && s.peekIsKeyEq() {
		s.advance()
		idx, err := s.fc.fn.Chunk.AddConstant(s.previous.Raw)
		if err != nil {
			s.errorAtPrevious(err.Error())
		}
		s.advance() // '='
		s.expression()
		s.popType()
		s.emitOperand(chunk.SET_FIELD, uint16(idx))
		return
	}
	if s.check(token.STRING) && s.peekIsKeyEq() {
		s.advance()
		idx, err := s.fc.fn.Chunk.AddConstant(s.previous.String)
		if err != nil {
			s.errorAtPrevious(err.Error())
		}
		s.advance() // '='
		s.expression()
		s.popType()
		s.emitOperand(chunk.SET_FIELD, uint16(idx))
		return
	}
	s.expression()
	s.popType()
	s.emit(chunk.APPEND)
}

// sliceAhead reports whether the bracketed expression the parser is inside
// contains a top-level ".." before its closing "]", i.e. whether "a[...]"
// is a slice rather than a plain index. Purely a scanner lookahead; nothing
// is consumed.
func (s *Session) sliceAhead() bool {
	if s.curTok == token.DOTDOT {
		return true
	}
	mark := s.scan.Mark()
	defer s.scan.Rewind(mark)

	paren, bracket, brace := 0, 0, 0
	switch s.curTok {
	case token.LPAREN:
		paren = 1
	case token.LBRACK:
		bracket = 1
	case token.LBRACE:
		brace = 1
	}
	var v token.Value
	for {
		switch s.scan.Scan(&v) {
		case token.LPAREN:
			paren++
		case token.RPAREN:
			if paren > 0 {
				paren--
			}
		case token.LBRACK:
			bracket++
		case token.RBRACK:
			if bracket > 0 {
				bracket--
			} else {
				return false
			}
		case token.LBRACE:
			brace++
		case token.RBRACE:
			if brace > 0 {
				brace--
			}
		case token.DOTDOT:
			if paren == 0 && bracket == 0 && brace == 0 {
				return true
			}
		case token.NEWLINE, token.EOF:
			return false
		}
	}
}

func (s *Session) peekIsKeyEq() bool {
	mark := s.scan.Mark()
	savedCur, savedCurTok := s.current, s.curTok
	var v token.Value
	next := s.scan.Scan(&v)
	isEq := next == token.EQ
	s.scan.Rewind(mark)
	s.current, s.curTok = savedCur, savedCurTok
	return isEq
}

// parserMark snapshots the scanner's cursor together with the parser's
// one-token lookahead pair, so the parser can jump elsewhere in the token
// stream to compile something out of source order and later resume exactly
// where it left off. Used by comprehensions, whose body expression is
// written before the "for" header that must be compiled first (§4.3.5) — the
// token-stream equivalent of the ground truth's compile_expression_from_string
// re-lexing a saved source substring.
type parserMark struct {
	scan              scanner.Mark
	previous, current token.Value
	prevTok, curTok   token.Token
}

func (s *Session) markParser() parserMark {
	return parserMark{
		scan:     s.scan.Mark(),
		previous: s.previous, current: s.current,
		prevTok: s.prevTok, curTok: s.curTok,
	}
}

func (s *Session) gotoParserMark(m parserMark) {
	s.scan.Rewind(m.scan)
	s.previous, s.current = m.previous, m.current
	s.prevTok, s.curTok = m.prevTok, m.curTok
}

// gotoFor rewinds to a "for" token located by findComprehensionFor and loads
// it as the current token, so comprehensionLoop (which expects "for" to
// already be current) can take over.
func (s *Session) gotoFor(forMark scanner.Mark) {
	s.scan.Rewind(forMark)
	s.advance()
}

// findComprehensionFor scans ahead from the current token — the start of a
// "{...}"/"(...)" body that may turn out to be a comprehension — for a
// top-level "for" before a top-level term (token.RBRACE for table literals,
// token.RPAREN for parenthesized expressions), tracking paren/bracket/brace
// nesting and bailing at a top-level NEWLINE the same way the ground truth's
// find_comprehension_for_until (compiler.c) bails at a raw line change: both
// refuse to treat a construct spanning a whole extra logical line as a
// comprehension header. The scanner is left exactly where it started either
// way; only a disposable lookahead runs ahead of it.
func (s *Session) findComprehensionFor(term token.Token) (scanner.Mark, bool) {
	if s.curTok == term {
		return scanner.Mark{}, false
	}
	start := s.scan.Mark()
	paren, bracket, brace := 0, 0, 0
	var v token.Value
	for {
		pre := s.scan.Mark()
		tok := s.scan.Scan(&v)
		switch tok {
		case token.LPAREN:
			paren++
		case token.RPAREN:
			if paren > 0 {
				paren--
			} else if term == token.RPAREN && bracket == 0 && brace == 0 {
				s.scan.Rewind(start)
				return scanner.Mark{}, false
			}
		case token.LBRACK:
			bracket++
		case token.RBRACK:
			if bracket > 0 {
				bracket--
			}
		case token.LBRACE:
			brace++
		case token.RBRACE:
			if brace > 0 {
				brace--
			} else if term == token.RBRACE && paren == 0 && bracket == 0 {
				s.scan.Rewind(start)
				return scanner.Mark{}, false
			}
		case token.FOR:
			if paren == 0 && bracket == 0 && brace == 0 {
				s.scan.Rewind(start)
				return pre, true
			}
		case token.NEWLINE, token.EOF:
			if paren == 0 && bracket == 0 && brace == 0 {
				s.scan.Rewind(start)
				return scanner.Mark{}, false
			}
		}
	}
}

// comprehensionHasAssign reports whether the body span starting at bodyMark
// contains a top-level "=" before its closing "for", splitting a table
// comprehension entry into "key=val" form (§4.3.5). The ground truth's
// find_comprehension_assign (compiler.c) does this scan over raw characters
// with its own quote/escape tracking; scanning at the token level gets that
// for free, since an "=" inside a string literal is already folded into a
// single STRING token by the time this sees it.
func (s *Session) comprehensionHasAssign(bodyMark parserMark) bool {
	mark := s.scan.Mark()
	s.scan.Rewind(bodyMark.scan)
	paren, bracket, brace := 0, 0, 0
	found := false
	var v token.Value
loop:
	for {
		tok := s.scan.Scan(&v)
		switch tok {
		case token.LPAREN:
			paren++
		case token.RPAREN:
			if paren > 0 {
				paren--
			}
		case token.LBRACK:
			bracket++
		case token.RBRACK:
			if bracket > 0 {
				bracket--
			}
		case token.LBRACE:
			brace++
		case token.RBRACE:
			if brace > 0 {
				brace--
			}
		case token.FOR:
			if paren == 0 && bracket == 0 && brace == 0 {
				break loop
			}
		case token.EQ:
			if paren == 0 && bracket == 0 && brace == 0 {
				found = true
				break loop
			}
		case token.EOF:
			break loop
		}
	}
	s.scan.Rewind(mark)
	return found
}

// tableComprehension lowers "{ expr for x[, y] in iter [if cond] }" (§4.3.5)
// into a loop that appends (or, for a "key=val" entry, assigns) each produced
// value into the table under construction. The header is compiled first so
// the loop locals it declares exist before the body runs; the body — which
// lexically precedes "for" in the source — is then replayed from bodyMark.
func (s *Session) tableComprehension(bodyMark parserMark, forMark scanner.Mark) {
	s.gotoFor(forMark)
	hasAssign := s.comprehensionHasAssign(bodyMark)
	s.comprehensionLoop(bodyMark, func(holderSlot int) {
		if hasAssign {
			s.emitOperand(chunk.GET_LOCAL, uint16(holderSlot))
			s.parsePrecedence(PrecTernary)
			s.popType()
			s.consume(token.EQ, "expected '=' in comprehension entry")
			s.expression()
			s.popType()
			s.emit(chunk.SET_TABLE)
			s.emit(chunk.POP)
			return
		}
		s.emitOperand(chunk.GET_LOCAL, uint16(holderSlot))
		s.expression()
		s.popType()
		s.emit(chunk.APPEND)
		s.emit(chunk.POP)
	})
}

// comprehensionLoop compiles the shared "for x[, y] in iter [if cond]" header
// both table and generator comprehensions open with. Stack layout, bottom to
// top: the held value the caller already pushed (the table under
// construction, or a placeholder for a generator body) in a nameless local,
// one reserved slot per loop variable, then the iterator cursor in a hidden
// slot of its own — the same shape forStatement uses. Once the header's
// locals are live it jumps the parser to bodyMark to compile the
// comprehension's body — lexically written before "for" — calling body with
// the held value's slot, then resumes parsing right where the header left
// off.
func (s *Session) comprehensionLoop(bodyMark parserMark, body func(holderSlot int)) {
	s.advance() // FOR
	s.beginScope()
	holderSlot := len(s.fc.locals)
	s.fc.locals = append(s.fc.locals, local{name: "", depth: s.fc.scopeDepth})

	var names []string
	s.consume(token.IDENT, "expected loop variable")
	names = append(names, s.previous.Raw)
	for s.match(token.COMMA) {
		s.consume(token.IDENT, "expected loop variable")
		names = append(names, s.previous.Raw)
	}

	// reserve the loop-variable slots before the iterable is evaluated, so
	// the iterable expression still resolves names in the enclosing scope
	for range names {
		s.emit(chunk.NIL)
	}
	s.consume(token.IN, "expected 'in' in comprehension")
	s.expression()
	s.popType()
	for _, n := range names {
		s.declareLocal(n, TypeUnknown)
	}
	if len(names) > 1 {
		s.emit(chunk.ITER_PREP_IPAIRS)
	} else {
		s.emit(chunk.ITER_PREP)
	}
	// hidden slot for the iterator cursor
	s.fc.locals = append(s.fc.locals, local{name: "", depth: s.fc.scopeDepth})

	loopStart := len(s.fc.fn.Chunk.Code)
	exitJump := s.emitJump(chunk.FOR_LOOP)
	if len(names) == 1 {
		slot, _, _ := resolveLocal(s.fc, names[0])
		s.emitOperand(chunk.SET_LOCAL, uint16(slot))
		s.emit(chunk.POP)
	} else {
		s.emitOperand(chunk.UNPACK, uint16(len(names)))
		for i := len(names) - 1; i >= 0; i-- {
			slot, _, _ := resolveLocal(s.fc, names[i])
			s.emitOperand(chunk.SET_LOCAL, uint16(slot))
			s.emit(chunk.POP)
		}
	}

	hasFilter := s.match(token.IF)
	var skipJump int
	if hasFilter {
		s.expression()
		s.popType()
		skipJump = s.emitJump(chunk.JUMP_IF_FALSE)
		s.emit(chunk.POP)
	}

	resume := s.markParser()
	s.gotoParserMark(bodyMark)
	body(holderSlot)
	s.gotoParserMark(resume)

	if hasFilter {
		skipToNext := s.emitJump(chunk.JUMP)
		s.patchJump(skipJump)
		s.emit(chunk.POP)
		s.patchJump(skipToNext)
	}

	s.emitLoop(loopStart)
	s.patchJump(exitJump)
	// the VM popped the cursor; drop its bookkeeping, then the holder's —
	// without popping the held value — and let endScope pop the loop vars.
	s.fc.locals = s.fc.locals[:len(s.fc.locals)-1]
	s.fc.locals = append(s.fc.locals[:holderSlot], s.fc.locals[holderSlot+1:]...)
	s.endScope()
}

// generatorComprehension lowers "( expr for x[, y] in iter [if cond] )" into
// an anonymous generator function, compiled and called immediately with no
// arguments so the surrounding expression evaluates to the Generator it
// produces (§4.3.5, "synthesizes an anonymous function marked is_generator
// ... called with zero arguments"). Shares comprehensionLoop's header
// parsing with tableComprehension; where that lowering appends, this one
// yields.
func (s *Session) generatorComprehension(bodyMark parserMark, forMark scanner.Mark) {
	enclosing := s.fc
	s.fc = newFnCompiler(enclosing, "", false)
	s.fc.fn.IsGenerator = true

	// placeholder stack slot so comprehensionLoop's reserved nameless local
	// lines up with a real value, the same way a table literal's NEW_TABLE
	// does for tableComprehension.
	s.emit(chunk.NIL)
	s.gotoFor(forMark)
	s.comprehensionLoop(bodyMark, func(holderSlot int) {
		s.expression()
		s.popType()
		s.emitOperand(chunk.YIELD, 1)
		s.emit(chunk.POP)
	})

	s.emit(chunk.NIL)
	s.emit(chunk.RETURN)

	fn := s.fc.fn
	fn.UpvalueInfo = s.fc.upvalues
	upvalues := s.fc.upvalues
	s.fc = enclosing

	idx, err := s.fc.fn.Chunk.AddConstant(fn)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.CLOSURE, uint16(idx))
	s.fc.fn.Chunk.WriteUint16(uint16(len(upvalues)), s.line())
	for _, uv := range upvalues {
		if uv.IsLocal {
			s.emitByte(1)
		} else {
			s.emitByte(0)
		}
		s.fc.fn.Chunk.WriteUint16(uint16(uv.Index), s.line())
	}
	s.emit(chunk.CALL0)
	s.pushType(TypeOther)
}

// importExpr lets "import" appear inline as a prefix expression evaluating
// directly to a module's value ("import string" as opposed to the
// "import string" statement form, which additionally binds a name). Used by
// f-string format-specifier lowering to compile
// "(import string).format(...)" (§4.3.4).
func importExpr(s *Session, canAssign bool) {
	path := s.dottedPath()
	idx, err := s.fc.fn.Chunk.AddConstant(path)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.IMPORT, uint16(idx))
	s.pushType(TypeOther)
}

func funcLiteral(s *Session, canAssign bool) {
	s.function("", false)
	s.pushType(TypeOther)
}

// yieldExpr compiles "yield [v1[, v2...]]" (§4.3.6): it suspends the
// enclosing function — marking it a generator — handing one value (or a
// tuple of several) to the resumer, and evaluates to whatever the next
// resume supplies.
func yieldExpr(s *Session, canAssign bool) {
	s.fc.fn.IsGenerator = true
	if s.check(token.NEWLINE) || s.check(token.RPAREN) || s.check(token.DEDENT) || s.check(token.EOF) {
		s.emit(chunk.NIL)
		s.emitOperand(chunk.YIELD, 1)
		s.pushType(TypeOther)
		return
	}
	n := 0
	for {
		s.expression()
		s.popType()
		n++
		if !s.match(token.COMMA) {
			break
		}
	}
	s.emitOperand(chunk.YIELD, uint16(n))
	s.pushType(TypeOther)
}

func fstringExpr(s *Session, canAssign bool) {
	s.compileFString(s.previous.String, s.previous.Pos)
	s.pushType(TypeOther)
}
