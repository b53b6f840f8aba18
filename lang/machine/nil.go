package machine

// NilType is the type of Nil, the one value denoting the absence of a
// result. Represented as a named byte rather than struct{} so Nil itself can
// be declared a untyped constant-like package value.
type NilType byte

// Nil is the only value of type NilType.
const Nil = NilType(0)

var _ Value = Nil

func (NilType) String() string { return "nil" }
func (NilType) Type() string   { return "nil" }
