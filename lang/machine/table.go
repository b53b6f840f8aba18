package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// Table is toi's single compound data type: a hybrid array+hash mapping with
// an optional metatable (§3 Table). Contiguous integer keys starting at 1
// live in the dense array part; everything else lives in the hash part,
// grounded on the teacher's dolthub/swiss-backed Map plus a dense prefix in
// the shape of the teacher's lang/types/array.go.
//
// Version is bumped by every mutating operation and is what the compiler's
// IndexCacheSlot (§4.5) compares against to decide whether a cached
// GET_TABLE/SET_TABLE result is still valid.
type Table struct {
	array   []Value
	hash    *swiss.Map[Value, Value]
	meta    *Table
	Version uint32
	iters   int // active-iterator count; mutation is refused while > 0
}

var (
	_ Value       = (*Table)(nil)
	_ Mapping     = (*Table)(nil)
	_ HasSetKey   = (*Table)(nil)
	_ HasMetamap  = (*Table)(nil)
	_ Iterable    = (*Table)(nil)
	_ Sequence    = (*Table)(nil)
	_ HasSetIndex = (*Table)(nil)
)

// NewTable returns an empty table with initial hash capacity for at least
// size entries.
func NewTable(size int) *Table {
	return &Table{hash: swiss.NewMap[Value, Value](uint32(size))}
}

func (t *Table) String() string { return fmt.Sprintf("table(%p)", t) }
func (t *Table) Type() string   { return "table" }

// Len returns the length of the array part, matching "#" on a table per §3
// (tables used as arrays have integer keys 1..n in the dense prefix).
func (t *Table) Len() int { return len(t.array) }

// Index implements the 0-based Indexable contract over the array part, used
// by SLICE, UNPACK and "*expr" argument spreading.
func (t *Table) Index(i int) Value { return t.array[i] }

func (t *Table) SetIndex(i int, v Value) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.array[i] = v
	t.Version++
	return nil
}

// Append pushes v onto the array part (table-literal array sugar and table
// comprehensions without a "key=" form, §4.3.5).
func (t *Table) Append(v Value) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.array = append(t.array, v)
	t.Version++
	return nil
}

// Get implements the language-level lookup used by GET_TABLE/HAS/IN: an Int
// key within the array's 1..n range reads the array part, everything else
// reads the hash part.
func (t *Table) Get(k Value) (Value, bool, error) {
	if ik, ok := asArrayIndex(k); ok && ik >= 1 && ik <= len(t.array) {
		return t.array[ik-1], true, nil
	}
	if t.hash == nil {
		return Nil, false, nil
	}
	v, ok := t.hash.Get(normalizeKey(k))
	return v, ok, nil
}

// SetKey implements SET_TABLE: an Int key equal to len(array)+1 grows the
// array part (preserving the hybrid's array-promotion property); an Int key
// already inside 1..n overwrites in place; anything else goes to the hash
// part.
func (t *Table) SetKey(k, v Value) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if ik, ok := asArrayIndex(k); ok {
		switch {
		case ik >= 1 && ik <= len(t.array):
			t.array[ik-1] = v
			t.Version++
			return nil
		case ik == len(t.array)+1:
			t.array = append(t.array, v)
			t.Version++
			return nil
		}
	}
	if t.hash == nil {
		t.hash = swiss.NewMap[Value, Value](4)
	}
	t.hash.Put(normalizeKey(k), v)
	t.Version++
	return nil
}

// Delete removes k, shifting the array part down when k falls inside it
// (DELETE_TABLE, §4.5).
func (t *Table) Delete(k Value) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if ik, ok := asArrayIndex(k); ok && ik >= 1 && ik <= len(t.array) {
		t.array = slices.Delete(t.array, ik-1, ik)
		t.Version++
		return nil
	}
	if t.hash != nil {
		t.hash.Delete(normalizeKey(k))
		t.Version++
	}
	return nil
}

func (t *Table) Metamap() *Table     { return t.meta }
func (t *Table) SetMetamap(m *Table) { t.meta = m; t.Version++ }

func (t *Table) checkMutable() error {
	if t.iters > 0 {
		return fmt.Errorf("table mutated while an iterator is active")
	}
	return nil
}

// Iterate yields array entries as (index, value) tuples first (1-based),
// then hash entries as (key, value) tuples, matching the "for k, v in t"
// keyed-iteration contract of §4.3.6. Single-variable "for k in t" goes
// through IterateKeys instead, which drops the value half of each tuple.
//
// dolthub/swiss exposes only a callback-shaped Iter, not a resumable cursor,
// so the hash part is snapshotted into a pair slice up front; mutating the
// table mid-iteration is refused anyway via the iters guard.
func (t *Table) Iterate() Iterator {
	t.iters++
	var pairs []Value
	if t.hash != nil {
		pairs = make([]Value, 0, t.hash.Count()*2)
		t.hash.Iter(func(k, v Value) bool {
			pairs = append(pairs, k, v)
			return false
		})
	}
	return &tableIterator{t: t, hashPairs: pairs}
}

// IterateKeys yields the table's keys alone: array indices 1..n first, then
// hash keys, backing the single-variable "for k in t" key-iteration form
// (§4.3.6).
func (t *Table) IterateKeys() Iterator {
	return &tableKeyIterator{pairs: t.Iterate().(*tableIterator)}
}

type tableKeyIterator struct {
	pairs *tableIterator
}

func (it *tableKeyIterator) Next(p *Value) bool {
	var kv Value
	if !it.pairs.Next(&kv) {
		return false
	}
	*p = kv.(*Tuple).Index(0)
	return true
}

func (it *tableKeyIterator) Done() { it.pairs.Done() }

type tableIterator struct {
	t         *Table
	arrayI    int
	hashI     int
	hashPairs []Value
}

func (it *tableIterator) Next(p *Value) bool {
	if it.arrayI < len(it.t.array) {
		idx := it.arrayI + 1
		*p = NewTuple([]Value{Int(idx), it.t.array[it.arrayI]})
		it.arrayI++
		return true
	}
	if it.hashI < len(it.hashPairs) {
		*p = NewTuple([]Value{it.hashPairs[it.hashI], it.hashPairs[it.hashI+1]})
		it.hashI += 2
		return true
	}
	return false
}

func (it *tableIterator) Done() {
	it.t.iters--
}

// asArrayIndex reports whether k denotes a candidate array-part index.
func asArrayIndex(k Value) (int, bool) {
	i, ok := k.(Int)
	if !ok {
		return 0, false
	}
	return int(i), true
}

// normalizeKey canonicalizes value-type keys stored in the swiss map so that
// equal keys of the machine's comparable value types (Int, Float holding an
// integral value, String, Bool) hash and compare identically regardless of
// which concrete numeric type produced them.
func normalizeKey(k Value) Value {
	if f, ok := k.(Float); ok {
		if i := Int(f); Float(i) == f {
			return i
		}
	}
	return k
}
