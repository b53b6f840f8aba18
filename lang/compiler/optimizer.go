package compiler

import "github.com/toi-lang/toi/lang/chunk"

// optimize runs a peephole pass over fn's chunk and, recursively, over every
// nested Function constant it holds (§4.8), then sizes the chunk's
// inline-cache banks to the finished code (§6). Fusions never change the
// total byte length of a chunk: the bytes an erased instruction occupied are
// turned into NOPs, not removed, so every jump offset already patched
// during compilation stays valid.
func optimize(fn *Function) {
	optimizeChunk(fn.Chunk)
	fn.Chunk.EnsureCaches()
	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.(*Function); ok {
			optimize(nested)
		}
	}
}

// instrWidth returns the byte length of the instruction at i: 1 or 3 per
// HasOperand, except CLOSURE, whose trailing upvalue descriptors (a 16-bit
// count at i+3, then 3 bytes each) ride after its constant-index operand.
func instrWidth(code []byte, i int) int {
	op := chunk.Opcode(code[i])
	if op == chunk.CLOSURE {
		if i+5 > len(code) {
			return 3
		}
		n := int(code[i+3])<<8 | int(code[i+4])
		return 3 + 2 + n*3
	}
	if op.HasOperand() {
		return 3
	}
	return 1
}

func operandAt(code []byte, i int) uint16 {
	return uint16(code[i+1])<<8 | uint16(code[i+2])
}

func fillNop(code []byte, from, to int) {
	for i := from; i < to; i++ {
		code[i] = byte(chunk.NOP)
	}
}

func optimizeChunk(ch *chunk.Chunk) {
	code := ch.Code

	// pass 1: CONSTANT k, <ADD|SUB|MUL|DIV> -> <*_CONST> k
	i := 0
	for i < len(code) {
		w1 := instrWidth(code, i)
		if chunk.Opcode(code[i]) == chunk.CONSTANT && i+w1 < len(code) {
			next := chunk.Opcode(code[i+w1])
			var fused chunk.Opcode
			switch next {
			case chunk.ADD:
				fused = chunk.ADD_CONST
			case chunk.SUB:
				fused = chunk.SUB_CONST
			case chunk.MUL:
				fused = chunk.MUL_CONST
			case chunk.DIV:
				fused = chunk.DIV_CONST
			}
			if fused != 0 {
				k := operandAt(code, i)
				code[i] = byte(fused)
				code[i+1] = byte(k >> 8)
				code[i+2] = byte(k)
				fillNop(code, i+w1, i+w1+1)
				i += w1 + 1
				continue
			}
		}
		i += w1
	}

	// pass 2: GET_LOCAL n, CONSTANT(1), IADD, SET_LOCAL n -> INC_LOCAL n.
	// Only this exact shape collapses: "+1" is the one case where the
	// addend needs no runtime operand at all, so the whole four-instruction
	// span can become a single self-contained instruction. A non-literal
	// addend ("x += y") still needs its producing instruction executed, so
	// ADD_SET_LOCAL is never emitted by this pass; the opcode stays defined
	// for a future version of this pass that fuses only the trailing
	// ADD+SET_LOCAL pair without touching the addend's own bytecode.
	i = 0
	for i < len(code) {
		w1 := instrWidth(code, i)
		if chunk.Opcode(code[i]) != chunk.GET_LOCAL {
			i += w1
			continue
		}
		slot := operandAt(code, i)
		mid := i + w1
		if mid >= len(code) {
			i += w1
			continue
		}
		wMid := instrWidth(code, mid)
		addPos := mid + wMid
		if addPos >= len(code) {
			i += w1
			continue
		}
		addOp := chunk.Opcode(code[addPos])
		if addOp != chunk.IADD {
			i += w1
			continue
		}
		setPos := addPos + instrWidth(code, addPos)
		if setPos >= len(code) || chunk.Opcode(code[setPos]) != chunk.SET_LOCAL || operandAt(code, setPos) != slot {
			i += w1
			continue
		}
		if chunk.Opcode(code[mid]) != chunk.CONSTANT || !constIsIntOne(ch, operandAt(code, mid)) {
			i += w1
			continue
		}
		total := (setPos + 3) - i
		code[i] = byte(chunk.INC_LOCAL)
		code[i+1] = byte(slot >> 8)
		code[i+2] = byte(slot)
		fillNop(code, i+3, i+total)
		i += total
	}
}

func constIsIntOne(ch *chunk.Chunk, idx uint16) bool {
	if int(idx) >= len(ch.Constants) {
		return false
	}
	v, ok := ch.Constants[idx].(int64)
	return ok && v == 1
}
