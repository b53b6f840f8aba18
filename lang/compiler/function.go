// Package compiler implements the single-pass Pratt-style parser and
// bytecode emitter described in spec §4.3: lexer tokens flow straight into
// a chunk.Chunk, with no intervening AST. Scope resolution, type-hint
// propagation, f-string expansion and comprehension lowering all happen
// inline as the parser descends the grammar.
package compiler

import "github.com/toi-lang/toi/lang/chunk"

// TypeHint is the compile-time type tag tracked on Session.typeStack for
// numeric-op specialization (§3 Compiler state, §4.3.2).
type TypeHint uint8

const (
	TypeUnknown TypeHint = iota
	TypeInt
	TypeFloat
	TypeOther
)

// Function is the compiled, immutable artifact produced for one function
// body or the top-level chunk (§3 Function (compiled)).
type Function struct {
	Name        string
	Arity       int
	IsVariadic  bool
	IsGenerator bool
	IsSelf      bool
	UpvalueInfo []UpvalueRef

	Chunk *chunk.Chunk

	ParamNames []string
	ParamTypes []TypeHint
	Defaults   []int // index into Chunk.Constants, or -1 if no default

	Docstring string
}

// UpvalueRef records how a closure's upvalue slot is populated when the
// function is created: either captured from a local slot in the enclosing
// function (IsLocal true, Index is a local slot) or forwarded from one of
// the enclosing function's own upvalues (IsLocal false, Index is an
// upvalue index), per §3 Closure / §9 upvalue graph.
type UpvalueRef struct {
	Index   int
	IsLocal bool
	Name    string
}

// local is a compile-time local variable binding (§3 Compiler state).
type local struct {
	name     string
	depth    int
	captured bool
	typeHint TypeHint
}

// LoopContext is one entry of the loop stack used to resolve break/continue
// (§4.4). tryDepth records how many try statements were lexically open when
// the loop started, so break/continue can close the TryRecords of any try
// opened inside the loop body before jumping out of it.
type LoopContext struct {
	start      int
	scopeDepth int
	breakJumps []int
	isForLoop  bool
	tryDepth   int
}

// tryCtx tracks one lexically-open try (or with) statement during
// compilation. retSlot is the hidden local an early return parks its value
// in on the way to the finally block; records counts the TryRecords active
// on the runtime handler stack for the code currently being compiled (2 in
// the protected body, 1 in the except handler, 0 past the normal join);
// returnJumps are forward jumps from early returns to the finally entry.
type tryCtx struct {
	retSlot     int
	records     int
	returnJumps []int
}

// fnCompiler holds the compile-time state for one function body being
// compiled (§3 Compiler state). fnCompilers form a stack mirroring the
// lexical nesting of function literals, with enclosing pointing to the
// parent.
type fnCompiler struct {
	enclosing *fnCompiler

	fn *Function

	locals          []local
	explicitGlobals map[string]bool
	upvalues        []UpvalueRef
	upvalueOverflow bool
	scopeDepth      int
	loopStack       []*LoopContext
	tryCtxs         []*tryCtx
}

func newFnCompiler(enclosing *fnCompiler, name string, replMode bool) *fnCompiler {
	fc := &fnCompiler{
		enclosing: enclosing,
		fn: &Function{
			Name:  name,
			Chunk: chunk.New(),
		},
		explicitGlobals: make(map[string]bool),
	}
	if replMode && enclosing == nil {
		fc.scopeDepth = 0
	} else {
		fc.scopeDepth = 1
	}
	// slot 0 is reserved (§3 Compiler state: "Slot 0 is reserved").
	fc.locals = append(fc.locals, local{name: "", depth: 0})
	return fc
}

func (fc *fnCompiler) currentLoop() *LoopContext {
	if len(fc.loopStack) == 0 {
		return nil
	}
	return fc.loopStack[len(fc.loopStack)-1]
}

func (fc *fnCompiler) pushLoop(lc *LoopContext) { fc.loopStack = append(fc.loopStack, lc) }
func (fc *fnCompiler) popLoop()                 { fc.loopStack = fc.loopStack[:len(fc.loopStack)-1] }
