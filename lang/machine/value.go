// Package machine implements the stack-based virtual machine that executes
// toi bytecode, and the runtime representation of every value the language
// manipulates. The capability-interface hierarchy below (Callable, Ordered,
// HasEqual, Iterable, Indexable, Mapping, HasBinary, HasUnary, HasAttrs, ...)
// mirrors the teacher's lang/machine/value.go split of "core Value plus
// opt-in capabilities", adapted to toi's concrete value set (nil, bool, int,
// float, string, table, closure, userdata, upvalue-cell) per §3.
package machine

import "github.com/toi-lang/toi/lang/token"

// Value is the interface implemented by every value the machine manipulates.
type Value interface {
	String() string
	Type() string
}

// Callable is implemented by any value that may be the operand of a call
// expression. Callers should use Call, never CallInternal directly, so that
// frame bookkeeping and step accounting stay centralized.
type Callable interface {
	Value
	Name() string
	CallInternal(th *Thread, args *Tuple, named *Table) (Value, error)
}

// Ordered is implemented by values whose instances of the same type are
// totally ordered.
type Ordered interface {
	Value
	// Cmp returns negative/zero/positive as the receiver is less/equal/greater
	// than y, which is guaranteed to be of the receiver's concrete type.
	Cmp(y Value) (int, error)
}

// HasEqual is implemented by types needing custom equality logic (instead of
// Go ==, which identity-compares pointers for reference types).
type HasEqual interface {
	Value
	Equals(y Value) (bool, error)
}

// Iterable abstracts a sequence of unknown length that can be iterated.
type Iterable interface {
	Value
	Iterate() Iterator
}

// Sequence is an Iterable of statically known length.
type Sequence interface {
	Iterable
	Len() int
}

// Indexable is a value of known length that supports random access by
// 0-based index.
type Indexable interface {
	Value
	Index(i int) Value
	Len() int
}

// HasSetIndex is an Indexable whose elements may be assigned, x[i] = y.
type HasSetIndex interface {
	Indexable
	SetIndex(i int, v Value) error
}

// Iterator hands out successive elements of an Iterable. Done must always be
// called once the caller is finished, to release any held lock (tables
// refuse mutation while they have live iterators).
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// Mapping is a mapping from keys to values, such as a Table used as a dict.
type Mapping interface {
	Value
	Get(k Value) (v Value, found bool, err error)
}

// HasSetKey supports map-style update, x[k] = v.
type HasSetKey interface {
	Mapping
	SetKey(k, v Value) error
}

// Side indicates which operand of a binary operator the receiver is, so a
// HasBinary implementation can special-case the right-operand position
// (e.g. a table on the right of a string "+").
type Side bool

const (
	Left  Side = false
	Right Side = true
)

// HasBinary lets a value opt into handling a binary operator it is one of the
// operands of. Returning (nil, nil) declines, letting the other operand (or
// the generic fallback in ops.go) try.
type HasBinary interface {
	Value
	Binary(op token.Token, y Value, side Side) (Value, error)
}

// HasUnary lets a value opt into handling a unary operator.
type HasUnary interface {
	Value
	Unary(op token.Token) (Value, error)
}

// HasMetamap is implemented by values that carry a metatable (§3 Table).
type HasMetamap interface {
	Value
	Metamap() *Table
	SetMetamap(*Table)
}

// HasAttrs is implemented by values whose fields/methods are readable via a
// dot expression, y = x.f.
type HasAttrs interface {
	Value
	// Attr returns (nil, nil) to mean "no such attribute", letting the caller
	// produce a NoSuchAttrError with full context.
	Attr(name string) (Value, error)
	AttrNames() []string
}

// HasSetField is a HasAttrs whose fields may also be written, x.f = y.
type HasSetField interface {
	HasAttrs
	SetField(name string, v Value) error
}

// NoSuchAttrError is returned by HasAttrs.Attr/HasSetField.SetField to
// signal a missing attribute; the VM augments it with a "did you mean"
// suggestion when a close match exists among AttrNames.
type NoSuchAttrError string

func (e NoSuchAttrError) Error() string { return string(e) }

// Truth reports the language's truthiness rule: nil and false are false,
// everything else (including 0, 0.0 and "") is true.
func Truth(v Value) bool {
	switch v := v.(type) {
	case NilType:
		return false
	case Bool:
		return bool(v)
	default:
		return true
	}
}
