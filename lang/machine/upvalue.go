package machine

// Upvalue is a variable a closure captured from an enclosing function (§3
// Closure). While the captured local is still live on the owning frame's
// slice of the thread's shared value stack, the upvalue is "open": reads and
// writes go straight through to that stack slot, so every closure sharing
// the same local observes the same mutations, matching how CLOSURE wires
// sibling closures over the same loop variable. CLOSE_UPVALUE closes it by
// copying the slot's current value into a private Cell, so the local's
// stack slot can be popped without disturbing any closure still holding it.
type Upvalue struct {
	th   *Thread
	slot int // index into th.stack; only meaningful while open
	cell *Cell
}

func (u *Upvalue) Get() Value {
	if u.cell != nil {
		return u.cell.V
	}
	return u.th.stack[u.slot]
}

func (u *Upvalue) Set(v Value) {
	if u.cell != nil {
		u.cell.V = v
		return
	}
	u.th.stack[u.slot] = v
}

func (u *Upvalue) close() {
	if u.cell != nil {
		return
	}
	u.cell = &Cell{V: u.th.stack[u.slot]}
	u.th = nil
}

// findOrCreateUpvalue returns the thread's open Upvalue tracking slot,
// creating one if no closure has captured that local yet. Multiple nested
// closures created while the same local is in scope must share one Upvalue
// so writes made through any of them are visible to all of them.
func (th *Thread) findOrCreateUpvalue(slot int) *Upvalue {
	for _, uv := range th.openUpvalues {
		if uv.slot == slot {
			return uv
		}
	}
	uv := &Upvalue{th: th, slot: slot}
	th.openUpvalues = append(th.openUpvalues, uv)
	return uv
}

// closeUpvaluesFrom closes every still-open upvalue at or above slot and
// drops it from the thread's open list. Used both by CLOSE_UPVALUE (one
// local at a time, top of stack) and when a frame returns (its whole
// remaining tail of locals at once).
func (th *Thread) closeUpvaluesFrom(slot int) {
	if len(th.openUpvalues) == 0 {
		return
	}
	kept := th.openUpvalues[:0]
	for _, uv := range th.openUpvalues {
		if uv.slot >= slot {
			uv.close()
		} else {
			kept = append(kept, uv)
		}
	}
	th.openUpvalues = kept
}
