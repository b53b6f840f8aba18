package machine

import "fmt"

// NativeFunction wraps a Go function as a Callable toi value, the same
// pattern the teacher uses for built-ins (a thin Value wrapper around a Go
// closure, CallInternal forwarding straight into it). Used both for
// user-visible built-ins (print, len, coroutine.*) and internally for the
// iterator-protocol functions ITER_PREP/ITER_PREP_IPAIRS push onto the stack.
type NativeFunction struct {
	name string
	fn   func(th *Thread, args *Tuple, named *Table) (Value, error)
}

var (
	_ Value    = (*NativeFunction)(nil)
	_ Callable = (*NativeFunction)(nil)
)

func NewNative(name string, fn func(th *Thread, args *Tuple, named *Table) (Value, error)) *NativeFunction {
	return &NativeFunction{name: name, fn: fn}
}

func (n *NativeFunction) String() string { return fmt.Sprintf("builtin(%s)", n.name) }
func (n *NativeFunction) Type() string   { return "builtin" }
func (n *NativeFunction) Name() string   { return n.name }

func (n *NativeFunction) CallInternal(th *Thread, args *Tuple, named *Table) (Value, error) {
	return n.fn(th, args, named)
}

// indexValueIterator backs ITER_PREP (single loop variable) over anything
// Indexable: it yields bare values, dropping the index, so "for v in arr:"
// never has to unpack a (index, value) pair the way ITER_PREP_IPAIRS does.
type indexValueIterator struct {
	seq Indexable
	i   int
}

func (it *indexValueIterator) Next(p *Value) bool {
	if it.i >= it.seq.Len() {
		return false
	}
	*p = it.seq.Index(it.i)
	it.i++
	return true
}

func (it *indexValueIterator) Done() {}

// iteratorFor builds the Iterator FOR_LOOP drives for a single loop variable
// (ITER_PREP): a table yields its keys (§4.3.6 "single v without # asks for
// key iteration"), other Indexable values iterate by bare value, anything
// else falls back to its own Iterate().
func iteratorFor(v Value) (Iterator, error) {
	if t, ok := v.(*Table); ok {
		return t.IterateKeys(), nil
	}
	if seq, ok := v.(Indexable); ok {
		return &indexValueIterator{seq: seq}, nil
	}
	if it, ok := v.(Iterable); ok {
		return it.Iterate(), nil
	}
	return nil, fmt.Errorf("attempt to iterate a %s value", v.Type())
}

// pairIteratorFor builds the Iterator FOR_LOOP drives for two loop variables
// (ITER_PREP_IPAIRS): Table.Iterate yields (key, value) tuples; any other
// Iterable (a Range, a generator) yields its own values, which the UNPACK
// that follows spreads: a tuple fills the variables in order, any other
// value fills the first variable and the rest get nil.
func pairIteratorFor(v Value) (Iterator, error) {
	it, ok := v.(Iterable)
	if !ok {
		return nil, fmt.Errorf("attempt to iterate a %s value", v.Type())
	}
	return it.Iterate(), nil
}

// iterCursor is a Value wrapper around a live Go Iterator so it can ride on
// the operand stack as the "state" slot of the (iter_fn, state, control)
// triple the VM's FOR_LOOP calls each iteration.
type iterCursor struct{ it Iterator }

var _ Value = (*iterCursor)(nil)

func (c *iterCursor) String() string { return "iterator" }
func (c *iterCursor) Type() string   { return "iterator" }

// builtinPrint implements the PRINT opcode's fallback library form (used by
// a bare "print(...)" call as opposed to the PRINT opcode emitted for
// top-level expression statements in REPL mode).
func builtinPrint(th *Thread, args *Tuple, _ *Table) (Value, error) {
	for i := 0; i < args.Len(); i++ {
		if i > 0 {
			fmt.Fprint(th.stdout, " ")
		}
		fmt.Fprint(th.stdout, args.Index(i).String())
	}
	fmt.Fprintln(th.stdout)
	return Nil, nil
}

// builtinLen implements "len(x)" for values not reached via the "#" unary
// operator directly (kept for parity with the language's builtins table;
// "#" itself is handled inline by LENGTH in exec.go).
func builtinLen(th *Thread, args *Tuple, _ *Table) (Value, error) {
	if args.Len() != 1 {
		return nil, fmt.Errorf("len() takes exactly 1 argument (%d given)", args.Len())
	}
	n, err := lengthOf(args.Index(0))
	if err != nil {
		return nil, err
	}
	return Int(n), nil
}

func lengthOf(v Value) (int, error) {
	switch v := v.(type) {
	case String:
		return v.Len(), nil
	case *Table:
		return v.Len(), nil
	case *Tuple:
		return v.Len(), nil
	case Sequence:
		return v.Len(), nil
	default:
		return 0, fmt.Errorf("attempt to get length of a %s value", v.Type())
	}
}
