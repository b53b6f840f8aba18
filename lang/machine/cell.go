package machine

// Cell is a heap box holding one Value, used as the storage for an upvalue
// once CLOSE_UPVALUE promotes a captured local off the stack (§3 Closure).
// While the local is still live on the operand stack, the closure's upvalue
// slot points directly at the stack cell instead; Cell only comes into play
// once the local leaves scope (CLOSE_UPVALUE) or its owning frame returns.
type Cell struct{ V Value }

var _ Value = (*Cell)(nil)

func (c *Cell) String() string { return "cell" }
func (c *Cell) Type() string   { return "cell" }
