package machine

import (
	"strings"

	"github.com/toi-lang/toi/lang/token"
)

// String is the type of a toi string value: an immutable sequence of bytes.
// Indexing and slicing operate byte-wise, matching the teacher's no-nonsense
// approach to strings (no implicit rune decoding beyond what f-strings and
// source text already guarantee is valid UTF-8).
type String string

var (
	_ Value     = String("")
	_ Ordered   = String("")
	_ HasEqual  = String("")
	_ Indexable = String("")
	_ Sequence  = String("")
	_ HasBinary = String("")
)

func (s String) String() string { return string(s) }
func (s String) Type() string   { return "string" }

func (s String) Cmp(y Value) (int, error) {
	return strings.Compare(string(s), string(y.(String))), nil
}

func (s String) Equals(y Value) (bool, error) {
	yy, ok := y.(String)
	return ok && s == yy, nil
}

func (s String) Len() int { return len(s) }

func (s String) Index(i int) Value {
	return String(s[i : i+1])
}

func (s String) Iterate() Iterator {
	return &stringIterator{s: string(s)}
}

// Binary implements "+" as concatenation (the teacher's HasBinary opt-in
// pattern, generalized from the ".."-free toi grammar where "+" is the only
// string combinator, §4.3.2).
func (s String) Binary(op token.Token, y Value, side Side) (Value, error) {
	if op != token.PLUS {
		return nil, nil
	}
	yy, ok := y.(String)
	if !ok {
		return nil, nil
	}
	if side == Right {
		return yy + s, nil
	}
	return s + yy, nil
}

type stringIterator struct{ s string }

func (it *stringIterator) Next(p *Value) bool {
	if len(it.s) == 0 {
		return false
	}
	*p = String(it.s[:1])
	it.s = it.s[1:]
	return true
}

func (it *stringIterator) Done() {}
