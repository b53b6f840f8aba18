package machine

// TryRecord is one entry of a frame's try-handler stack, pushed by TRY and
// consulted by THROW's unwind algorithm (§3 TryRecord, §4.6). TargetPC is
// the except-or-finally landing pad; StackDepth is the operand-stack height
// at the moment TRY executed, which the unwind restores before pushing the
// thrown value.
type TryRecord struct {
	TargetPC   int
	StackDepth int
}

// Frame records one call to a Closure: its instruction pointer, the base
// offset of its locals within the thread's shared value stack, and its own
// try-handler stack (§3 CallFrame). Module frames additionally save the
// caller's __name__/__file__/__main__ globals so they can be restored on
// return (§4.7).
type Frame struct {
	closure *Closure
	pc      int
	base    int // index into Thread.stack where this frame's locals begin
	tryPat  []TryRecord

	isModule  bool
	savedName Value
	savedFile Value
	savedMain Value
}

func (fr *Frame) pushTry(rec TryRecord) { fr.tryPat = append(fr.tryPat, rec) }

func (fr *Frame) popTry() (TryRecord, bool) {
	if len(fr.tryPat) == 0 {
		return TryRecord{}, false
	}
	rec := fr.tryPat[len(fr.tryPat)-1]
	fr.tryPat = fr.tryPat[:len(fr.tryPat)-1]
	return rec, true
}
