package machine

import "fmt"

// Tuple is an immutable ordered list of values, used for multiple return
// values, call arguments, multi-value yields and the (key, value) pairs
// produced by table iteration.
// Only the list itself is immutable; the elements are not.
type Tuple struct {
	elems []Value
}

// NilaryTuple is the shared zero-element tuple, used for calls with no
// positional arguments to avoid an allocation per call.
var NilaryTuple = NewTuple(nil)

var (
	_ Value     = (*Tuple)(nil)
	_ Indexable = (*Tuple)(nil)
	_ Iterable  = (*Tuple)(nil)
	_ HasEqual  = (*Tuple)(nil)
	_ Sequence  = (*Tuple)(nil)
)

// NewTuple returns a tuple containing elems. Callers must not modify elems
// afterwards.
func NewTuple(elems []Value) *Tuple { return &Tuple{elems: elems} }

func (t *Tuple) String() string    { return fmt.Sprintf("tuple(%p)", t) }
func (t *Tuple) Type() string      { return "tuple" }
func (t *Tuple) Len() int          { return len(t.elems) }
func (t *Tuple) Index(i int) Value { return t.elems[i] }
func (t *Tuple) Iterate() Iterator { return &tupleIterator{elems: t.elems} }

func (t *Tuple) Equals(y Value) (bool, error) {
	yt, ok := y.(*Tuple)
	if !ok || len(t.elems) != len(yt.elems) {
		return false, nil
	}
	for i, xv := range t.elems {
		eq, err := Equal(xv, yt.elems[i])
		if !eq || err != nil {
			return eq, err
		}
	}
	return true, nil
}

type tupleIterator struct{ elems []Value }

func (it *tupleIterator) Next(p *Value) bool {
	if len(it.elems) == 0 {
		return false
	}
	*p = it.elems[0]
	it.elems = it.elems[1:]
	return true
}

func (it *tupleIterator) Done() {}
