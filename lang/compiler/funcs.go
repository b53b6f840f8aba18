package compiler

import (
	"github.com/toi-lang/toi/lang/chunk"
	"github.com/toi-lang/toi/lang/token"
)

// function compiles a "fn (...): " body (named or anonymous) and leaves a
// CLOSURE instruction emitted into the enclosing chunk, pushing the new
// closure value onto the stack (§3 Function / Closure, §4.3 calls).
func (s *Session) function(name string, isMethod bool) {
	enclosing := s.fc
	s.fc = newFnCompiler(enclosing, name, false)
	s.fc.fn.IsSelf = isMethod
	s.beginScope()

	s.consume(token.LPAREN, "expected '(' after function name")
	if !s.check(token.RPAREN) {
		for {
			if s.match(token.STAR) {
				s.fc.fn.IsVariadic = true
				s.consume(token.IDENT, "expected parameter name after '*'")
				s.declareParam(s.previous.Raw, TypeUnknown)
				break
			}
			s.consume(token.IDENT, "expected parameter name")
			pname := s.previous.Raw
			hint := TypeUnknown
			defaultIdx := -1
			if s.match(token.EQ) {
				// Default values must be constants: the expression is compiled
				// only to land its value in the constants pool, then the
				// instructions that would have pushed it at call time are
				// erased, since the VM binds Defaults[i] straight out of the
				// constants pool rather than running any code for it.
				defaultIdx = s.constantDefault()
			}
			s.declareParam(pname, hint)
			s.fc.fn.Defaults = append(s.fc.fn.Defaults, defaultIdx)
			s.fc.fn.Arity++
			if !s.match(token.COMMA) {
				break
			}
		}
	}
	s.consume(token.RPAREN, "expected ')' after parameters")
	if s.fc.fn.Arity > 255 {
		s.errorAtPrevious("too many parameters")
	}
	// the ':' is optional when the body starts on the next line:
	// "fn f(x)" followed by an indented block reads like a def header
	if !s.match(token.COLON) && !s.check(token.NEWLINE) {
		s.errorAtCurrent("expected ':' or newline after parameters")
	}

	s.consumeBlock(s.statement)

	// implicit "return nil" if control falls off the end.
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
}

// constantDefault compiles a default-parameter expression, verifies it was a
// single constant push, records the constant, and erases the emitted code.
func (s *Session) constantDefault() int {
	startPC := len(s.fc.fn.Chunk.Code)
	s.expression()
	s.popType()
	emitted := s.fc.fn.Chunk.Code[startPC:]
	idx := -1
	switch {
	case len(emitted) == 3 && chunk.Opcode(emitted[0]) == chunk.CONSTANT:
		idx = int(uint16(emitted[1])<<8 | uint16(emitted[2]))
	case len(emitted) == 1 && chunk.Opcode(emitted[0]) == chunk.NIL:
		idx = s.addConstantChecked(nil)
	case len(emitted) == 1 && chunk.Opcode(emitted[0]) == chunk.TRUE:
		idx = s.addConstantChecked(true)
	case len(emitted) == 1 && chunk.Opcode(emitted[0]) == chunk.FALSE:
		idx = s.addConstantChecked(false)
	case len(emitted) == 4 && chunk.Opcode(emitted[0]) == chunk.CONSTANT && chunk.Opcode(emitted[3]) == chunk.NEGATE:
		// a negated numeric literal folds into a negative constant
		ci := int(uint16(emitted[1])<<8 | uint16(emitted[2]))
		switch v := s.fc.fn.Chunk.Constants[ci].(type) {
		case int64:
			idx = s.addConstantChecked(-v)
		case float64:
			idx = s.addConstantChecked(-v)
		default:
			s.errorAtPrevious("default parameter value must be a constant")
		}
	default:
		s.errorAtPrevious("default parameter value must be a constant")
	}
	s.fc.fn.Chunk.TruncateTo(startPC)
	return idx
}

func (s *Session) addConstantChecked(val chunk.Value) int {
	idx, err := s.fc.fn.Chunk.AddConstant(val)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return -1
	}
	return idx
}

func (s *Session) declareParam(name string, hint TypeHint) {
	s.declareLocal(name, hint)
	s.fc.fn.ParamNames = append(s.fc.fn.ParamNames, name)
	s.fc.fn.ParamTypes = append(s.fc.fn.ParamTypes, hint)
}

// consumeBlock parses an indented statement block: NEWLINE INDENT stmt*
// DEDENT, or (for single-line bodies toi allows after ':') a single
// statement on the same logical line.
func (s *Session) consumeBlock(stmtFn func()) {
	if s.match(token.NEWLINE) {
		s.consume(token.INDENT, "expected indented block")
		for !s.check(token.DEDENT) && !s.check(token.EOF) {
			stmtFn()
		}
		s.consume(token.DEDENT, "expected dedent to close block")
		return
	}
	stmtFn()
}
