package chunk

import (
	"fmt"
	"io"
)

// Disassemble writes a pseudo-assembly rendering of c to w, one instruction
// per line, prefixed with the source line number. This mirrors the
// teacher's asm.go textual form closely enough to eyeball a compiled
// function without a debugger.
func (c *Chunk) Disassemble(w io.Writer, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for pc := 0; pc < len(c.Code); {
		pc = c.disassembleInstruction(w, pc)
	}
}

func (c *Chunk) disassembleInstruction(w io.Writer, pc int) int {
	line := c.Line(pc)
	op := Opcode(c.Code[pc])
	fmt.Fprintf(w, "%04d %4d %s", pc, line, op)

	if op == CLOSURE {
		idx := c.ReadUint16(pc + 1)
		nUp := 0
		if pc+5 <= len(c.Code) {
			nUp = int(c.ReadUint16(pc + 3))
		}
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(w, " %d (%v) upvalues=%d\n", idx, c.Constants[idx], nUp)
		} else {
			fmt.Fprintf(w, " %d upvalues=%d\n", idx, nUp)
		}
		return pc + 3 + 2 + nUp*3
	}

	if !op.HasOperand() {
		fmt.Fprintln(w)
		return pc + 1
	}

	arg := c.ReadUint16(pc + 1)
	if op.IsJump() {
		fmt.Fprintf(w, " -> %d\n", arg)
	} else if (op == CONSTANT || op == GET_FIELD || op == SET_FIELD) && int(arg) < len(c.Constants) {
		fmt.Fprintf(w, " %d (%v)\n", arg, c.Constants[arg])
	} else {
		fmt.Fprintf(w, " %d\n", arg)
	}
	return pc + 3
}
