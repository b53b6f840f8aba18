package machine

import "fmt"

// Range is the value produced by the RANGE opcode ("a..b" or "a..b:step"),
// a lazy arithmetic sequence consumed by a numeric "for" loop (§3 Range,
// §4.3.2). Iterating it directly (e.g. "for x in (1..3)..5" nonsense aside)
// falls back to the generic Iterable path rather than FOR_PREP's fused one.
type Range struct {
	Start, Stop, Step Int
}

var (
	_ Value    = Range{}
	_ Iterable = Range{}
)

func (r Range) String() string {
	if r.Step == 1 {
		return fmt.Sprintf("range(%d..%d)", r.Start, r.Stop)
	}
	return fmt.Sprintf("range(%d..%d:%d)", r.Start, r.Stop, r.Step)
}

func (r Range) Type() string { return "range" }

// Iterate yields every value this range covers; the end is inclusive and a
// zero step is treated as 1, matching rangeCursor's FOR_LOOP-driven fast
// path (§3 Range "inclusive end").
func (r Range) Iterate() Iterator {
	step := r.Step
	if step == 0 {
		step = 1
	}
	return &rangeCursor{cur: r.Start, stop: r.Stop, step: step, started: false}
}

// rangeCursor is the Iterator FOR_PREP installs for the numeric-range loop
// form; FOR_LOOP drives it exactly like any other Iterator so both loop
// shapes share one opcode.
type rangeCursor struct {
	cur, stop, step Int
	started         bool
}

func (c *rangeCursor) Next(p *Value) bool {
	if c.started {
		c.cur += c.step
	}
	c.started = true
	if c.step > 0 && c.cur > c.stop {
		return false
	}
	if c.step < 0 && c.cur < c.stop {
		return false
	}
	*p = c.cur
	return true
}

func (c *rangeCursor) Done() {}
