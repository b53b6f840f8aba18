// Package chunk defines the compiled representation of a toi function: its
// bytecode, constants pool, line table and inline-cache banks. It has no
// dependency on the compiler or the machine so that both can share the same
// on-the-wire opcode vocabulary.
package chunk

// Opcode identifies a single bytecode instruction. Opcodes are one byte,
// optionally followed by a big-endian 16-bit operand (a jump target, count,
// slot index or constant index alike).
type Opcode uint8

//nolint:revive
const (
	NOP Opcode = iota

	// stack shuffling
	CONSTANT // CONSTANT k         - push constants[k]
	NIL
	TRUE
	FALSE
	POP
	DUP
	DUP2         // DUP2               [...,a,b] -> [...,a,b,a,b], used to re-read a table+key pair for "a[i] op= v"
	ADJUST_STACK // ADJUST_STACK n     pad/trim top of stack to exactly n values

	// globals
	GET_GLOBAL
	SET_GLOBAL
	DEFINE_GLOBAL
	DELETE_GLOBAL

	// locals / upvalues
	GET_LOCAL
	SET_LOCAL
	GET_UPVALUE
	SET_UPVALUE
	CLOSE_UPVALUE

	// tables
	GET_TABLE // GET_TABLE          [...,table,key]   -> [...,value]   (dynamic key on stack)
	SET_TABLE // SET_TABLE          [...,table,key,v] -> [...,table]   (dynamic key on stack)
	GET_FIELD // GET_FIELD k        [...,table]       -> [...,value]   (key is constants[k])
	SET_FIELD // SET_FIELD k        [...,table,v]     -> [...,table]   (key is constants[k])
	DELETE_TABLE
	GET_META_TABLE
	NEW_TABLE
	SET_METATABLE
	SLICE
	APPEND

	// numeric / logical ops
	ADD
	SUB
	MUL
	DIV
	IADD
	ISUB
	IMUL
	IDIV
	IMOD
	FADD
	FSUB
	FMUL
	FDIV
	POWER
	INT_DIV
	MODULO
	NEGATE
	NOT
	LENGTH
	EQUAL
	LESS
	GREATER
	HAS
	IN
	RANGE
	BAND
	BOR
	BXOR
	BNOT
	SHL
	SHR

	// control flow
	JUMP
	JUMP_IF_FALSE
	JUMP_IF_TRUE
	LOOP

	// calls / closures
	CALL
	CALL0
	CALL1
	CALL2
	CALL_NAMED
	CALL_EXPAND
	CLOSURE
	RETURN
	RETURN_N

	// exceptions
	TRY
	END_TRY
	END_FINALLY
	THROW

	// modules
	IMPORT
	IMPORT_STAR

	// misc
	BUILD_STRING
	ITER_PREP
	ITER_PREP_IPAIRS
	FOR_PREP
	FOR_LOOP
	UNPACK
	PRINT
	GC
	YIELD // YIELD n   [...,v1..vn] -> [...,resumeValue]  suspends the running generator with the n values (tupled when n > 1), resuming with whatever coroutine.resume(...) is next called with

	// peephole-fused opcodes (emitted only by the optimizer, §4.8; the
	// optimizer currently never emits ADD_SET_LOCAL)
	ADD_CONST
	SUB_CONST
	MUL_CONST
	DIV_CONST
	INC_LOCAL
	ADD_SET_LOCAL

	opcodeMax
)

// HasOperand reports whether op is followed by a big-endian 16-bit operand
// (CLOSURE additionally carries upvalue descriptors after it). Keeping this
// as a single source of truth lets the
// disassembler, the VM fetch loop and the peephole optimizer agree on
// instruction width.
func (op Opcode) HasOperand() bool {
	switch op {
	case NOP, NIL, TRUE, FALSE, POP, DUP, DUP2, ADD, SUB, MUL, DIV, IADD, ISUB,
		IMUL, IDIV, IMOD, FADD, FSUB, FMUL, FDIV, POWER, INT_DIV, MODULO,
		NEGATE, NOT, LENGTH, EQUAL, LESS, GREATER, HAS, IN, RANGE,
		BAND, BOR, BXOR, BNOT, SHL, SHR,
		CLOSE_UPVALUE, GET_TABLE, SET_TABLE, SLICE, APPEND, RETURN, END_TRY, THROW,
		IMPORT_STAR, PRINT, GC, FOR_PREP, ITER_PREP, ITER_PREP_IPAIRS,
		CALL0, CALL1, CALL2, SET_METATABLE:
		return false
	}
	return true
}

// IsJump reports whether op's operand is a bytecode offset (as opposed to a
// count, slot index or constant index).
func (op Opcode) IsJump() bool {
	switch op {
	case JUMP, JUMP_IF_FALSE, JUMP_IF_TRUE, LOOP, FOR_LOOP, TRY:
		return true
	}
	return false
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "unknown"
}

var opcodeNames = [...]string{
	NOP: "nop", CONSTANT: "constant", NIL: "nil", TRUE: "true", FALSE: "false",
	POP: "pop", DUP: "dup", DUP2: "dup2", ADJUST_STACK: "adjust_stack",
	GET_GLOBAL: "get_global", SET_GLOBAL: "set_global",
	DEFINE_GLOBAL: "define_global", DELETE_GLOBAL: "delete_global",
	GET_LOCAL: "get_local", SET_LOCAL: "set_local",
	GET_UPVALUE: "get_upvalue", SET_UPVALUE: "set_upvalue",
	CLOSE_UPVALUE: "close_upvalue",
	GET_TABLE:      "get_table", SET_TABLE: "set_table", DELETE_TABLE: "delete_table",
	GET_FIELD:      "get_field", SET_FIELD: "set_field",
	GET_META_TABLE: "get_meta_table", NEW_TABLE: "new_table",
	SET_METATABLE: "set_metatable", SLICE: "slice", APPEND: "append",
	ADD: "add", SUB: "sub", MUL: "mul", DIV: "div",
	IADD: "iadd", ISUB: "isub", IMUL: "imul", IDIV: "idiv", IMOD: "imod",
	FADD: "fadd", FSUB: "fsub", FMUL: "fmul", FDIV: "fdiv",
	POWER: "power", INT_DIV: "int_div", MODULO: "modulo",
	NEGATE: "negate", NOT: "not", LENGTH: "length",
	EQUAL: "equal", LESS: "less", GREATER: "greater", HAS: "has", IN: "in",
	RANGE: "range",
	BAND:  "band", BOR: "bor", BXOR: "bxor", BNOT: "bnot", SHL: "shl", SHR: "shr",
	JUMP: "jump", JUMP_IF_FALSE: "jump_if_false", JUMP_IF_TRUE: "jump_if_true", LOOP: "loop",
	CALL: "call", CALL0: "call0", CALL1: "call1", CALL2: "call2",
	CALL_NAMED: "call_named", CALL_EXPAND: "call_expand",
	CLOSURE: "closure", RETURN: "return", RETURN_N: "return_n",
	TRY: "try", END_TRY: "end_try", END_FINALLY: "end_finally", THROW: "throw",
	IMPORT: "import", IMPORT_STAR: "import_star",
	BUILD_STRING: "build_string", ITER_PREP: "iter_prep",
	ITER_PREP_IPAIRS: "iter_prep_ipairs", FOR_PREP: "for_prep", FOR_LOOP: "for_loop",
	UNPACK: "unpack", PRINT: "print", GC: "gc", YIELD: "yield",
	ADD_CONST: "add_const", SUB_CONST: "sub_const", MUL_CONST: "mul_const",
	DIV_CONST: "div_const", INC_LOCAL: "inc_local", ADD_SET_LOCAL: "add_set_local",
}
