package compiler

import (
	"github.com/toi-lang/toi/lang/chunk"
)

func (s *Session) line() int {
	l, _ := s.previous.Pos.LineCol()
	if l == 0 {
		l, _ = s.current.Pos.LineCol()
	}
	return l
}

func (s *Session) emit(op chunk.Opcode) int {
	return s.fc.fn.Chunk.WriteOp(op, s.line())
}

func (s *Session) emitByte(b byte) int {
	return s.fc.fn.Chunk.Write(b, s.line())
}

func (s *Session) emitOperand(op chunk.Opcode, arg uint16) int {
	pc := s.emit(op)
	s.fc.fn.Chunk.WriteUint16(arg, s.line())
	return pc
}

func (s *Session) emitConstant(val chunk.Value) {
	idx, err := s.fc.fn.Chunk.AddConstant(val)
	if err != nil {
		s.errorAtPrevious(err.Error())
		return
	}
	s.emitOperand(chunk.CONSTANT, uint16(idx))
}

// emitJump emits a jump opcode with a placeholder operand, returning the
// operand's position so it can be back-patched once the target is known
// (§4.5: jumps are big-endian 16-bit).
func (s *Session) emitJump(op chunk.Opcode) int {
	s.emit(op)
	pos := len(s.fc.fn.Chunk.Code)
	s.fc.fn.Chunk.WriteUint16(0xFFFF, s.line())
	return pos
}

// patchJump backpatches the jump operand at pos to target the current
// bytecode position (§8 invariant 3: "every emitted jump offset resolves to
// a valid chunk position after all patching").
func (s *Session) patchJump(pos int) {
	target := len(s.fc.fn.Chunk.Code)
	s.fc.fn.Chunk.PatchUint16(pos, uint16(target))
}

// emitLoop emits a backward LOOP jump to start.
func (s *Session) emitLoop(start int) {
	s.emit(chunk.LOOP)
	// LOOP's operand is the absolute target, like JUMP; the VM simply sets
	// pc = operand rather than pc += operand, so backward jumps need no
	// special encoding here.
	s.fc.fn.Chunk.WriteUint16(uint16(start), s.line())
}

// beginScope/endScope bracket a lexical block (§4.3.1 scoping, §4.3.6
// break/continue popping locals back to the loop's scope depth).
func (s *Session) beginScope() { s.fc.scopeDepth++ }

func (s *Session) endScope() {
	s.fc.scopeDepth--
	for len(s.fc.locals) > 0 && s.fc.locals[len(s.fc.locals)-1].depth > s.fc.scopeDepth {
		if s.fc.locals[len(s.fc.locals)-1].captured {
			s.emit(chunk.CLOSE_UPVALUE)
		} else {
			s.emit(chunk.POP)
		}
		s.fc.locals = s.fc.locals[:len(s.fc.locals)-1]
	}
}

// declareLocal adds name as a new local in the current scope (§4.3.1
// "local x" / implicit local-by-default assignment inside functions).
// Exceeding 256 locals is a compile error (§8 boundary).
func (s *Session) declareLocal(name string, hint TypeHint) {
	if len(s.fc.locals) >= 256 {
		s.errorAtPrevious("too many local variables in function")
		return
	}
	// shadowing within the same scope is an error in most Pratt compilers,
	// but toi permits re-binding (e.g. "local x = x + 1" inside a
	// comprehension-lowered closure), so no redeclaration check here.
	s.fc.locals = append(s.fc.locals, local{name: name, depth: s.fc.scopeDepth, typeHint: hint})
}

// resolveLocal looks up name in fc's locals, innermost scope first.
func resolveLocal(fc *fnCompiler, name string) (slot int, hint TypeHint, ok bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return i, fc.locals[i].typeHint, true
		}
	}
	return 0, TypeUnknown, false
}

// resolveUpvalue looks up name as a free variable captured from an
// enclosing function, recursively, adding upvalue entries as needed and
// marking the captured local (§3 Closure, §9 upvalue graph).
func resolveUpvalue(fc *fnCompiler, name string) (idx int, ok bool) {
	if fc.enclosing == nil {
		return 0, false
	}
	if slot, _, found := resolveLocal(fc.enclosing, name); found {
		fc.enclosing.locals[slot].captured = true
		return addUpvalue(fc, slot, true, name), true
	}
	if outerIdx, found := resolveUpvalue(fc.enclosing, name); found {
		return addUpvalue(fc, outerIdx, false, name), true
	}
	return 0, false
}

func addUpvalue(fc *fnCompiler, index int, isLocal bool, name string) int {
	for i, uv := range fc.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= 256 {
		// reported by the Session once the resolution that got here returns
		fc.upvalueOverflow = true
		return len(fc.upvalues) - 1
	}
	fc.upvalues = append(fc.upvalues, UpvalueRef{Index: index, IsLocal: isLocal, Name: name})
	return len(fc.upvalues) - 1
}
