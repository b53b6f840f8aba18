package compiler

import (
	"github.com/toi-lang/toi/lang/chunk"
	"github.com/toi-lang/toi/lang/token"
)

// statement parses and compiles one statement, recovering to the next
// statement boundary if it left the parser in panic mode (§7).
func (s *Session) statement() {
	s.skipNewlines()
	if s.check(token.EOF) || s.check(token.DEDENT) {
		return
	}
	switch s.curTok {
	case token.IF:
		s.advance()
		s.ifStatement()
	case token.WHILE:
		s.advance()
		s.whileStatement()
	case token.FOR:
		s.advance()
		s.forStatement()
	case token.FN:
		s.advance()
		s.fnDeclStatement()
	case token.AT:
		s.decoratedFnStatement()
	case token.LOCAL:
		s.advance()
		s.localDecl()
	case token.GLOBAL:
		s.advance()
		s.globalDecl()
	case token.RETURN:
		s.advance()
		s.returnStatement()
	case token.BREAK:
		s.advance()
		s.breakStatement()
	case token.CONTINUE:
		s.advance()
		s.continueStatement()
	case token.MATCH:
		s.advance()
		s.matchStatement()
	case token.TRY:
		s.advance()
		s.tryStatement()
	case token.WITH:
		s.advance()
		s.withStatement()
	case token.THROW:
		s.advance()
		s.throwStatement()
	case token.ASSERT:
		s.advance()
		s.assertStatement()
	case token.IMPORT:
		s.advance()
		s.importStatement()
	case token.FROM:
		s.advance()
		s.fromImportStatement()
	default:
		switch {
		case s.looksLikeMultiAssign():
			s.multiAssignStatement()
		case s.curTok == token.IDENT && s.peekNext() == token.EQ:
			s.simpleAssignStatement()
		default:
			s.expressionStatement()
		}
	}
	s.endStatement()
}

// endStatement consumes the statement's terminating NEWLINE, if present,
// and recovers from panic mode (§7 "accumulate, resynchronize at the next
// statement boundary").
func (s *Session) endStatement() {
	if s.panicMode {
		s.synchronize()
	}
	if s.check(token.NEWLINE) {
		s.advance()
	}
}

func (s *Session) expressionStatement() {
	s.assignHappened = false
	s.expression()
	s.popType()
	if s.replMode && s.fc.enclosing == nil && s.fc.scopeDepth == 0 && !s.assignHappened {
		s.emit(chunk.PRINT) // REPL echo; the machine skips nil results
	} else {
		s.emit(chunk.POP)
	}
}

// peekNext returns the token that follows the current one, without consuming
// anything.
func (s *Session) peekNext() token.Token {
	mark := s.scan.Mark()
	var v token.Value
	next := s.scan.Scan(&v)
	s.scan.Rewind(mark)
	return next
}

// bindsGlobal reports whether an assignment/declaration of name in the
// current function binds a global: explicitly declared with "global", or at
// the REPL's top level, whose scope depth is 0 precisely so that bindings
// survive across separately compiled lines (§4.3.1).
func (s *Session) bindsGlobal(name string) bool {
	if s.fc.explicitGlobals[name] {
		return true
	}
	return s.fc.enclosing == nil && s.fc.scopeDepth == 0
}

func (s *Session) emitDefineGlobal(name string) {
	idx, err := s.fc.fn.Chunk.AddConstant(name)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.DEFINE_GLOBAL, uint16(idx))
}

// defineBinding binds name to the value on top of the stack: a global define
// at the REPL top level (or under an explicit "global"), otherwise a new
// local whose slot the value already occupies (§4.3.1 local-by-default).
func (s *Session) defineBinding(name string) {
	if s.bindsGlobal(name) {
		s.emitDefineGlobal(name)
	} else {
		s.declareLocal(name, TypeUnknown)
	}
}

// looksLikeMultiAssign peeks past the current IDENT for a "(, IDENT)+ ="
// shape without consuming anything, to distinguish "a, b = b, a" from a
// plain expression/assignment statement the Pratt parser already handles.
func (s *Session) looksLikeMultiAssign() bool {
	if s.curTok != token.IDENT {
		return false
	}
	mark := s.scan.Mark()
	defer s.scan.Rewind(mark)

	var v token.Value
	expectIdent := false
	sawComma := false
	for {
		t := s.scan.Scan(&v)
		if expectIdent {
			if t != token.IDENT {
				return false
			}
			expectIdent = false
			continue
		}
		if t == token.COMMA {
			sawComma = true
			expectIdent = true
			continue
		}
		return t == token.EQ && sawComma
	}
}

// multiAssignStatement compiles "a, b, c = rhs" (§4.3.8): missing targets
// are pre-declared as locals, the stack is normalized over them, the RHS is
// evaluated (a single expression spreads via UNPACK, several pad with nil),
// and the targets are assigned right to left.
func (s *Session) multiAssignStatement() {
	var targets []string
	s.consume(token.IDENT, "expected assignment target")
	targets = append(targets, s.previous.Raw)
	for s.match(token.COMMA) {
		s.consume(token.IDENT, "expected assignment target")
		targets = append(targets, s.previous.Raw)
	}
	s.consume(token.EQ, "expected '=' in multiple assignment")

	for _, name := range targets {
		if s.bindsGlobal(name) {
			continue
		}
		if _, _, ok := resolveLocal(s.fc, name); ok {
			continue
		}
		if _, ok := s.resolveUpvalueUnlessGlobal(name); ok {
			continue
		}
		s.declareLocal(name, TypeUnknown)
	}
	s.emitOperand(chunk.ADJUST_STACK, uint16(len(s.fc.locals)))

	n := 0
	for {
		s.expression()
		s.popType()
		n++
		if !s.match(token.COMMA) {
			break
		}
	}
	switch {
	case n == 1 && len(targets) > 1:
		s.emitOperand(chunk.UNPACK, uint16(len(targets)))
	case n < len(targets):
		for i := n; i < len(targets); i++ {
			s.emit(chunk.NIL)
		}
	case n > len(targets):
		s.errorAtPrevious("too many values in multiple assignment")
	}
	for i := len(targets) - 1; i >= 0; i-- {
		s.assignTargetName(targets[i])
	}
}

func (s *Session) assignTargetName(name string) {
	if slot, _, ok := resolveLocal(s.fc, name); ok {
		s.emitOperand(chunk.SET_LOCAL, uint16(slot))
	} else if idx, ok := s.resolveUpvalueUnlessGlobal(name); ok {
		s.emitOperand(chunk.SET_UPVALUE, uint16(idx))
	} else {
		idx, err := s.fc.fn.Chunk.AddConstant(name)
		if err != nil {
			s.errorAtPrevious(err.Error())
			return
		}
		s.emitOperand(chunk.SET_GLOBAL, uint16(idx))
	}
	s.emit(chunk.POP)
}

// resolveUpvalueUnlessGlobal is the upvalue step of §4.3.1's resolution
// order, skipped entirely for names declared "global" in this function.
// Exceeding 256 captured variables surfaces here as a compile error.
func (s *Session) resolveUpvalueUnlessGlobal(name string) (int, bool) {
	if s.fc.explicitGlobals[name] {
		return 0, false
	}
	idx, ok := resolveUpvalue(s.fc, name)
	if s.fc.upvalueOverflow {
		s.fc.upvalueOverflow = false
		s.errorAtPrevious("too many captured variables in function")
	}
	return idx, ok
}

// simpleAssignStatement compiles a statement-level "name = rhs". A fresh
// name becomes a new local (local-by-default, §4.3.1) holding the value in
// place; a comma-separated RHS builds an array literal for the single target
// (§4.3.2 "comma-separated RHS on a line with a single target").
func (s *Session) simpleAssignStatement() {
	s.advance() // IDENT
	name := s.previous.Raw
	s.advance() // '='

	startPC := len(s.fc.fn.Chunk.Code)
	mark := s.markParser()
	s.expression()
	hint := s.popType()
	if s.check(token.COMMA) {
		// re-emit the RHS as an array literal containing every element
		s.fc.fn.Chunk.TruncateTo(startPC)
		s.gotoParserMark(mark)
		s.emitOperand(chunk.NEW_TABLE, 0)
		for {
			s.expression()
			s.popType()
			s.emit(chunk.APPEND)
			if !s.match(token.COMMA) {
				break
			}
		}
		hint = TypeOther
	}

	if slot, _, ok := resolveLocal(s.fc, name); ok {
		s.emitOperand(chunk.SET_LOCAL, uint16(slot))
		s.emit(chunk.POP)
		return
	}
	if idx, ok := s.resolveUpvalueUnlessGlobal(name); ok {
		s.emitOperand(chunk.SET_UPVALUE, uint16(idx))
		s.emit(chunk.POP)
		return
	}
	if s.bindsGlobal(name) {
		s.emitDefineGlobal(name)
		return
	}
	s.declareLocal(name, hint) // the value already sits in its slot
}

func (s *Session) fnDeclStatement() {
	s.consume(token.IDENT, "expected function name")
	name := s.previous.Raw
	if s.bindsGlobal(name) {
		s.function(name, false)
		s.emitDefineGlobal(name)
		return
	}
	// bind the name before compiling the body so the function can recurse
	s.declareLocal(name, TypeOther)
	s.function(name, false)
}

// decoratedFnStatement compiles "@e1 @e2 fn name(...):" (§4.3.7): each
// decorator expression is evaluated up front into a hidden local, the
// function is declared, then the decorators apply in reverse order, each
// call result re-binding the function.
func (s *Session) decoratedFnStatement() {
	firstDeco := len(s.fc.locals)
	n := s.decoratorList()
	s.consume(token.FN, "expected function declaration after decorator")
	s.consume(token.IDENT, "expected function name")
	name := s.previous.Raw

	global := s.bindsGlobal(name)
	if global {
		s.declareLocal("", TypeOther)
	} else {
		s.declareLocal(name, TypeOther)
	}
	fnSlot := len(s.fc.locals) - 1
	s.function(name, false)

	for i := n - 1; i >= 0; i-- {
		s.emitOperand(chunk.GET_LOCAL, uint16(firstDeco+i))
		s.emitOperand(chunk.GET_LOCAL, uint16(fnSlot))
		s.emit(chunk.CALL1)
		s.emitOperand(chunk.SET_LOCAL, uint16(fnSlot))
		s.emit(chunk.POP)
	}
	if global {
		s.emitOperand(chunk.GET_LOCAL, uint16(fnSlot))
		s.emitDefineGlobal(name)
	}
}

func (s *Session) decoratorList() int {
	n := 0
	for s.check(token.AT) {
		s.advance()
		s.expression()
		s.popType()
		s.declareLocal("", TypeOther) // park the decorator value
		n++
		s.consume(token.NEWLINE, "expected newline after decorator")
		s.skipNewlines()
	}
	return n
}

func (s *Session) ifStatement() {
	s.expression()
	s.popType()
	s.consume(token.COLON, "expected ':' after if condition")

	thenJump := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.POP)
	s.beginScope()
	s.consumeBlock(s.statement)
	s.endScope()

	var endJumps []int
	endJumps = append(endJumps, s.emitJump(chunk.JUMP))
	s.patchJump(thenJump)
	s.emit(chunk.POP)

	for s.check(token.ELIF) {
		s.advance()
		s.expression()
		s.popType()
		s.consume(token.COLON, "expected ':' after elif condition")
		nextJump := s.emitJump(chunk.JUMP_IF_FALSE)
		s.emit(chunk.POP)
		s.beginScope()
		s.consumeBlock(s.statement)
		s.endScope()
		endJumps = append(endJumps, s.emitJump(chunk.JUMP))
		s.patchJump(nextJump)
		s.emit(chunk.POP)
	}

	if s.check(token.ELSE) {
		s.advance()
		s.consume(token.COLON, "expected ':' after else")
		s.beginScope()
		s.consumeBlock(s.statement)
		s.endScope()
	}

	for _, j := range endJumps {
		s.patchJump(j)
	}
}

func (s *Session) whileStatement() {
	lc := &LoopContext{
		start:      len(s.fc.fn.Chunk.Code),
		scopeDepth: s.fc.scopeDepth,
		tryDepth:   len(s.fc.tryCtxs),
	}
	s.fc.pushLoop(lc)

	s.expression()
	s.popType()
	s.consume(token.COLON, "expected ':' after while condition")

	exitJump := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.POP)
	s.beginScope()
	s.consumeBlock(s.statement)
	s.endScope()
	s.emitLoop(lc.start)

	s.patchJump(exitJump)
	s.emit(chunk.POP)
	for _, bj := range lc.breakJumps {
		s.patchJump(bj)
	}
	s.fc.popLoop()
}

// forStatement compiles both loop shapes of §4.3.6. Stack layout inside the
// loop, bottom to top: one slot per loop variable (reserved with nil before
// the iterable is evaluated, so the iterable expression still resolves
// names in the enclosing scope), then the iterator cursor in a hidden slot
// of its own. FOR_LOOP pushes each iteration's value above the cursor and
// pops the cursor when the iterator runs dry.
func (s *Session) forStatement() {
	s.beginScope()

	var names []string
	s.consume(token.IDENT, "expected loop variable")
	names = append(names, s.previous.Raw)
	usePairs := false
	if s.match(token.POUND) {
		usePairs = true // "for v# in t": index-value pairs (§4.3.6)
	}
	for s.match(token.COMMA) {
		s.consume(token.IDENT, "expected loop variable")
		names = append(names, s.previous.Raw)
	}
	s.consume(token.IN, "expected 'in' in for statement")

	for range names {
		s.emit(chunk.NIL)
	}
	startPC := len(s.fc.fn.Chunk.Code)
	s.expression()
	s.popType()
	isRange := lastOpcodeIs(s.fc.fn.Chunk.Code, startPC, chunk.RANGE)
	s.consume(token.COLON, "expected ':' after for header")

	for _, n := range names {
		s.declareLocal(n, TypeUnknown)
	}

	switch {
	case isRange:
		s.emit(chunk.FOR_PREP)
	case len(names) > 1 || usePairs:
		s.emit(chunk.ITER_PREP_IPAIRS)
	default:
		s.emit(chunk.ITER_PREP)
	}
	// the iterator cursor occupies its own hidden slot above the loop vars
	s.fc.locals = append(s.fc.locals, local{name: "", depth: s.fc.scopeDepth})

	lc := &LoopContext{
		scopeDepth: s.fc.scopeDepth,
		isForLoop:  true,
		tryDepth:   len(s.fc.tryCtxs),
	}
	s.fc.pushLoop(lc)
	lc.start = len(s.fc.fn.Chunk.Code)
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

	s.beginScope()
	s.consumeBlock(s.statement)
	s.endScope()
	s.emitLoop(lc.start)
	s.patchJump(exitJump)

	// the VM popped the cursor when the iterator ran dry
	s.fc.locals = s.fc.locals[:len(s.fc.locals)-1]
	s.endScope() // pops the loop variables
	for _, bj := range lc.breakJumps {
		s.patchJump(bj)
	}
	s.fc.popLoop()
}

// lastOpcodeIs reports whether the final instruction emitted since startPC
// is op, walking instruction widths so operand bytes are never mistaken for
// opcodes. Used to recognize a "a..b" range header (§4.3.2).
func lastOpcodeIs(code []byte, startPC int, op chunk.Opcode) bool {
	last := -1
	for i := startPC; i < len(code); i += instrWidth(code, i) {
		last = i
	}
	return last >= 0 && chunk.Opcode(code[last]) == op
}

func (s *Session) popLocalsTo(depth int) {
	for i := len(s.fc.locals) - 1; i >= 0 && s.fc.locals[i].depth > depth; i-- {
		if s.fc.locals[i].captured {
			s.emit(chunk.CLOSE_UPVALUE)
		} else {
			s.emit(chunk.POP)
		}
	}
}

// closeTryRecords emits END_TRY for every TryRecord opened by a try or with
// statement at or above fromDepth, so a jump out of their bodies does not
// leave stale handlers on the frame.
func (s *Session) closeTryRecords(fromDepth int) {
	for _, ctx := range s.fc.tryCtxs[fromDepth:] {
		for i := 0; i < ctx.records; i++ {
			s.emit(chunk.END_TRY)
		}
	}
}

func (s *Session) breakStatement() {
	lc := s.fc.currentLoop()
	if lc == nil {
		s.errorAtPrevious("'break' outside loop")
		return
	}
	s.closeTryRecords(lc.tryDepth)
	if lc.isForLoop {
		// also pop the loop variables and the iterator cursor
		s.popLocalsTo(lc.scopeDepth - 1)
	} else {
		s.popLocalsTo(lc.scopeDepth)
	}
	lc.breakJumps = append(lc.breakJumps, s.emitJump(chunk.JUMP))
}

func (s *Session) continueStatement() {
	lc := s.fc.currentLoop()
	if lc == nil {
		s.errorAtPrevious("'continue' outside loop")
		return
	}
	s.closeTryRecords(lc.tryDepth)
	s.popLocalsTo(lc.scopeDepth)
	s.emitLoop(lc.start)
}

// returnStatement compiles "return [v1[, v2...]]" anywhere, including a
// module's top level (the module's exported value, §4.7). A single-value
// return inside a try statement routes through the enclosing finally block
// with a pending-return tag (§4.6) instead of returning directly.
func (s *Session) returnStatement() {
	n := 0
	if s.check(token.NEWLINE) || s.check(token.EOF) || s.check(token.DEDENT) {
		s.emit(chunk.NIL)
		n = 1
	} else {
		for {
			s.expression()
			s.popType()
			n++
			if !s.match(token.COMMA) {
				break
			}
		}
	}

	if n == 1 && len(s.fc.tryCtxs) > 0 {
		ctx := s.fc.tryCtxs[len(s.fc.tryCtxs)-1]
		s.emitOperand(chunk.SET_LOCAL, uint16(ctx.retSlot))
		s.emit(chunk.POP)
		for i := len(s.fc.locals) - 1; i > ctx.retSlot; i-- {
			if s.fc.locals[i].captured {
				s.emit(chunk.CLOSE_UPVALUE)
			} else {
				s.emit(chunk.POP)
			}
		}
		for i := 0; i < ctx.records; i++ {
			s.emit(chunk.END_TRY)
		}
		s.emitOperand(chunk.GET_LOCAL, uint16(ctx.retSlot))
		s.emitConstant(int64(chunk.PendReturn))
		ctx.returnJumps = append(ctx.returnJumps, s.emitJump(chunk.JUMP))
		return
	}

	if n == 1 {
		s.emit(chunk.RETURN)
	} else {
		s.emitOperand(chunk.RETURN_N, uint16(n))
	}
}

func (s *Session) localDecl() {
	if s.check(token.FN) {
		s.advance()
		s.consume(token.IDENT, "expected function name")
		name := s.previous.Raw
		s.declareLocal(name, TypeOther)
		s.function(name, false)
		return
	}
	for {
		s.consume(token.IDENT, "expected name after 'local'")
		name := s.previous.Raw
		hint := TypeUnknown
		if s.match(token.EQ) {
			s.expression()
			hint = s.popType()
		} else {
			s.emit(chunk.NIL)
		}
		s.declareLocal(name, hint)
		if !s.match(token.COMMA) {
			break
		}
	}
}

// globalDecl records an explicit "global" intent for the named variables
// inside the current function (§4.3.1; a pure binding-intent declaration
// when no '=' follows), and "global fn name(...)" declares a function bound
// globally regardless of nesting.
func (s *Session) globalDecl() {
	if s.check(token.FN) {
		s.advance()
		s.consume(token.IDENT, "expected function name")
		name := s.previous.Raw
		s.fc.explicitGlobals[name] = true
		s.function(name, false)
		s.emitDefineGlobal(name)
		return
	}
	for {
		s.consume(token.IDENT, "expected name after 'global'")
		name := s.previous.Raw
		s.fc.explicitGlobals[name] = true
		if s.match(token.EQ) {
			s.expression()
			s.popType()
			s.emitDefineGlobal(name)
		}
		if !s.match(token.COMMA) {
			break
		}
	}
}

// matchStatement lowers "match expr: case pattern: ... case _: ..." into a
// chain of equality tests against a hidden subject local (§4.3.6).
func (s *Session) matchStatement() {
	s.expression()
	s.popType()
	s.consume(token.COLON, "expected ':' after match subject")
	s.consume(token.NEWLINE, "expected newline before match body")
	s.consume(token.INDENT, "expected indented match body")

	s.beginScope()
	s.declareLocal("", TypeUnknown) // the subject value, already in place
	subjSlot := len(s.fc.locals) - 1

	var endJumps []int
	sawElse := false
	for s.check(token.CASE) {
		s.advance()
		if sawElse {
			s.errorAtCurrent("case after the wildcard case is unreachable")
		}
		wildcard := s.check(token.IDENT) && s.current.Raw == "_"
		if wildcard {
			sawElse = true
			s.advance()
			s.consume(token.COLON, "expected ':' after case pattern")
			s.beginScope()
			s.consumeBlock(s.statement)
			s.endScope()
			endJumps = append(endJumps, s.emitJump(chunk.JUMP))
			s.skipNewlines()
			continue
		}

		s.emitOperand(chunk.GET_LOCAL, uint16(subjSlot))
		s.expression()
		s.popType()
		s.emit(chunk.EQUAL)
		nextJump := s.emitJump(chunk.JUMP_IF_FALSE)
		s.emit(chunk.POP)
		s.consume(token.COLON, "expected ':' after case pattern")
		s.beginScope()
		s.consumeBlock(s.statement)
		s.endScope()
		endJumps = append(endJumps, s.emitJump(chunk.JUMP))
		s.patchJump(nextJump)
		s.emit(chunk.POP)
		s.skipNewlines()
	}

	for _, j := range endJumps {
		s.patchJump(j)
	}
	s.endScope()
	s.consume(token.DEDENT, "expected dedent to close match")
}

// tryStatement lowers try/except/finally (§4.6) onto two nested TryRecords:
// the inner one lands on the except handler (or a re-raise stub when no
// handler exists), the outer one lands on a pad that tags the thrown value
// as pending before falling into the finally join. Every path into the join
// leaves a (pending, tag) pair in two hidden slots, so the finally code runs
// with a consistent stack whether it was reached normally, by an uncaught
// throw, by a throw out of the handler itself, or by an early return.
func (s *Session) tryStatement() {
	s.emit(chunk.NIL)
	s.declareLocal("", TypeOther) // hidden slot for an early return's value
	ctx := &tryCtx{retSlot: len(s.fc.locals) - 1}
	s.fc.tryCtxs = append(s.fc.tryCtxs, ctx)

	outerTry := s.emitJump(chunk.TRY)
	innerTry := s.emitJump(chunk.TRY)
	ctx.records = 2

	s.consume(token.COLON, "expected ':' after try")
	s.beginScope()
	s.consumeBlock(s.statement)
	s.endScope()
	s.emit(chunk.END_TRY)
	ctx.records = 1
	normJump := s.emitJump(chunk.JUMP)

	s.patchJump(innerTry) // thrown value on the stack
	if s.check(token.EXCEPT) {
		s.advance()
		s.beginScope()
		bindSlot := -1
		if s.check(token.IDENT) {
			s.advance()
			s.declareLocal(s.previous.Raw, TypeOther) // thrown value in place
			bindSlot = len(s.fc.locals) - 1
		}
		guardJump := -1
		if s.check(token.IF) {
			if bindSlot < 0 {
				s.errorAtCurrent("except filter requires a bound name")
			}
			s.advance()
			s.expression()
			s.popType()
			guardJump = s.emitJump(chunk.JUMP_IF_FALSE)
			s.emit(chunk.POP)
		}
		s.consume(token.COLON, "expected ':' after except")
		if bindSlot < 0 {
			s.emit(chunk.POP) // unnamed handler discards the thrown value
		}
		s.consumeBlock(s.statement)
		s.endScope()
		if guardJump >= 0 {
			doneJump := s.emitJump(chunk.JUMP)
			s.patchJump(guardJump)
			s.emit(chunk.POP)   // the filter condition
			s.emit(chunk.THROW) // filter declined: re-raise toward finally
			s.patchJump(doneJump)
		}
	} else {
		s.emit(chunk.THROW) // no handler: forward the throw to the outer pad
	}

	s.patchJump(normJump)
	s.emit(chunk.END_TRY)
	ctx.records = 0

	pendingSlot := s.beginFinallyJoin(ctx, outerTry)
	if s.check(token.FINALLY) {
		s.advance()
		s.consume(token.COLON, "expected ':' after finally")
		s.beginScope()
		s.consumeBlock(s.statement)
		s.endScope()
	}
	s.endFinallyJoin(pendingSlot)
}

// beginFinallyJoin closes the normal path with a (nil, PendNone) pair,
// patches the outer TryRecord's pad to tag an in-flight throw with
// PendThrow, lands every early-return jump, and reserves the two hidden
// slots the pair occupies while the finally code runs. Returns the pending
// value's slot.
func (s *Session) beginFinallyJoin(ctx *tryCtx, outerTry int) int {
	s.emit(chunk.NIL)
	s.emitConstant(int64(chunk.PendNone))
	toFinally := s.emitJump(chunk.JUMP)
	s.patchJump(outerTry) // thrown value already on the stack
	s.emitConstant(int64(chunk.PendThrow))
	s.patchJump(toFinally)
	for _, j := range ctx.returnJumps {
		s.patchJump(j)
	}
	s.fc.tryCtxs = s.fc.tryCtxs[:len(s.fc.tryCtxs)-1]

	s.declareLocal("", TypeOther) // pending value
	pendingSlot := len(s.fc.locals) - 1
	s.declareLocal("", TypeOther) // pending tag
	return pendingSlot
}

// endFinallyJoin emits END_FINALLY, which consumes the (pending, tag) pair,
// then discards the hidden return slot beneath it.
func (s *Session) endFinallyJoin(pendingSlot int) {
	s.emitOperand(chunk.END_FINALLY, uint16(pendingSlot))
	s.fc.locals = s.fc.locals[:len(s.fc.locals)-2]
	s.emit(chunk.POP) // the hidden return slot
	s.fc.locals = s.fc.locals[:len(s.fc.locals)-1]
}

func (s *Session) throwStatement() {
	if s.check(token.NEWLINE) || s.check(token.EOF) || s.check(token.DEDENT) {
		s.emit(chunk.NIL)
	} else {
		s.expression()
		s.popType()
	}
	s.emit(chunk.THROW)
}

func (s *Session) assertStatement() {
	s.expression()
	s.popType()
	okJump := s.emitJump(chunk.JUMP_IF_TRUE)
	s.emit(chunk.POP)
	if s.match(token.COMMA) {
		s.expression()
		s.popType()
	} else {
		idx, err := s.fc.fn.Chunk.AddConstant("assert failed")
		if err != nil {
			s.errorAtPrevious(err.Error())
		}
		s.emitOperand(chunk.CONSTANT, uint16(idx))
	}
	s.emit(chunk.THROW)
	s.patchJump(okJump)
	s.emit(chunk.POP)
}

// withStatement lowers "with ctx [as x]: body" (§4.3.6): call ctx.__enter__
// if present (else use ctx itself), bind it, run the body under the same
// protected scaffold tryStatement uses, and on every exit call
// ctx.__exit__(exc_or_nil), rethrowing afterwards if the body threw.
func (s *Session) withStatement() {
	s.beginScope()
	s.expression()
	s.popType()
	s.declareLocal("", TypeOther) // the context-manager value, in place
	cmSlot := len(s.fc.locals) - 1

	enterIdx, err := s.fc.fn.Chunk.AddConstant("__enter__")
	if err != nil {
		s.errorAtPrevious(err.Error())
	}
	s.emitOperand(chunk.GET_LOCAL, uint16(cmSlot))
	s.emitOperand(chunk.GET_FIELD, uint16(enterIdx))
	noEnter := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.CALL0)
	haveValue := s.emitJump(chunk.JUMP)
	s.patchJump(noEnter)
	s.emit(chunk.POP) // the nil __enter__ lookup
	s.emitOperand(chunk.GET_LOCAL, uint16(cmSlot))
	s.patchJump(haveValue)

	if s.match(token.AS) {
		s.consume(token.IDENT, "expected name after 'as'")
		s.declareLocal(s.previous.Raw, TypeOther) // bound value in place
	} else {
		s.emit(chunk.POP)
	}
	s.consume(token.COLON, "expected ':' after with")

	s.emit(chunk.NIL)
	s.declareLocal("", TypeOther)
	ctx := &tryCtx{retSlot: len(s.fc.locals) - 1}
	s.fc.tryCtxs = append(s.fc.tryCtxs, ctx)
	outerTry := s.emitJump(chunk.TRY)
	ctx.records = 1

	s.beginScope()
	s.consumeBlock(s.statement)
	s.endScope()
	s.emit(chunk.END_TRY)
	ctx.records = 0

	pendingSlot := s.beginFinallyJoin(ctx, outerTry)
	exitIdx, err := s.fc.fn.Chunk.AddConstant("__exit__")
	if err != nil {
		s.errorAtPrevious(err.Error())
	}
	s.emitOperand(chunk.GET_LOCAL, uint16(cmSlot))
	s.emitOperand(chunk.GET_FIELD, uint16(exitIdx))
	noExit := s.emitJump(chunk.JUMP_IF_FALSE)
	// __exit__ receives the thrown value when unwinding, nil otherwise
	s.emitOperand(chunk.GET_LOCAL, uint16(pendingSlot+1))
	s.emitConstant(int64(chunk.PendThrow))
	s.emit(chunk.EQUAL)
	notThrow := s.emitJump(chunk.JUMP_IF_FALSE)
	s.emit(chunk.POP)
	s.emitOperand(chunk.GET_LOCAL, uint16(pendingSlot))
	argDone := s.emitJump(chunk.JUMP)
	s.patchJump(notThrow)
	s.emit(chunk.POP)
	s.emit(chunk.NIL)
	s.patchJump(argDone)
	s.emit(chunk.CALL1)
	s.patchJump(noExit)
	s.emit(chunk.POP) // the call result, or the nil __exit__ lookup
	s.endFinallyJoin(pendingSlot)

	s.endScope()
}

func (s *Session) dottedPath() string {
	s.consume(token.IDENT, "expected module path")
	path := s.previous.Raw
	for s.match(token.DOT) {
		s.consume(token.IDENT, "expected module path segment")
		path += "." + s.previous.Raw
	}
	return path
}

func lastDotIndex(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return i
		}
	}
	return -1
}

func (s *Session) importStatement() {
	path := s.dottedPath()
	bindName := path
	if idx := lastDotIndex(path); idx >= 0 {
		bindName = path[idx+1:]
	}
	if s.match(token.AS) {
		s.consume(token.IDENT, "expected name after 'as'")
		bindName = s.previous.Raw
	}
	pidx, err := s.fc.fn.Chunk.AddConstant(path)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.IMPORT, uint16(pidx))
	s.defineBinding(bindName)
}

func (s *Session) fromImportStatement() {
	path := s.dottedPath()
	s.consume(token.IMPORT, "expected 'import' after module path")

	pidx, err := s.fc.fn.Chunk.AddConstant(path)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.IMPORT, uint16(pidx))

	if s.match(token.STAR) {
		s.emit(chunk.IMPORT_STAR)
		return
	}

	// park the module table in a hidden local so each member fetch below it
	// leaves the stack aligned with the locals it declares
	s.declareLocal("", TypeOther)
	modSlot := len(s.fc.locals) - 1
	for {
		s.consume(token.IDENT, "expected imported name")
		member := s.previous.Raw
		bindName := member
		midx, err := s.fc.fn.Chunk.AddConstant(member)
		if err != nil {
			s.errorAtPrevious(err.Error())
			return
		}
		s.emitOperand(chunk.GET_LOCAL, uint16(modSlot))
		s.emitOperand(chunk.GET_FIELD, uint16(midx))
		if s.match(token.AS) {
			s.consume(token.IDENT, "expected name after 'as'")
			bindName = s.previous.Raw
		}
		s.defineBinding(bindName)
		if !s.match(token.COMMA) {
			break
		}
	}
}
