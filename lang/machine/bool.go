package machine

// Bool is the type of a boolean value.
type Bool bool

const (
	False = Bool(false)
	True  = Bool(true)
)

var (
	_ Value    = False
	_ HasEqual = False
)

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (b Bool) Type() string { return "bool" }

func (b Bool) Equals(y Value) (bool, error) {
	yb, ok := y.(Bool)
	return ok && b == yb, nil
}
