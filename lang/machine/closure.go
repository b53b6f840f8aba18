package machine

import (
	"fmt"

	"github.com/toi-lang/toi/lang/compiler"
)

// Closure is the runtime value produced by a CLOSURE instruction: an
// immutable compiler.Function paired with the upvalue cells it closed over
// (§3 Closure). While a captured local is still live on the operand stack,
// the corresponding upvalue entry points directly into that stack slot
// instead of a Cell; CLOSE_UPVALUE promotes it to a Cell when the local
// leaves scope.
type Closure struct {
	Fn       *compiler.Function
	Upvalues []*Upvalue
}

var (
	_ Value    = (*Closure)(nil)
	_ Callable = (*Closure)(nil)
)

func (c *Closure) String() string { return fmt.Sprintf("function(%s)", c.Name()) }
func (c *Closure) Type() string   { return "closure" }

func (c *Closure) Name() string {
	if c.Fn.Name == "" {
		return "<anonymous>"
	}
	return c.Fn.Name
}

func (c *Closure) CallInternal(th *Thread, args *Tuple, named *Table) (Value, error) {
	if c.Fn.IsGenerator {
		return newGenerator(th, c, args, named), nil
	}
	return th.runClosure(c, args, named)
}
