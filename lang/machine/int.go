package machine

import "strconv"

// Int is the type of an integer number. toi integers are fixed-width int64;
// there is no arbitrary-precision fallback (§3 Value: "number" is a single
// tagged case split at the machine level into Int/Float for opcode
// specialization, §4.3.2).
type Int int64

var (
	_ Value   = Int(0)
	_ Ordered = Int(0)
)

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (i Int) Type() string   { return "int" }

func (i Int) Cmp(y Value) (int, error) {
	j := y.(Int)
	switch {
	case i < j:
		return -1, nil
	case i > j:
		return +1, nil
	default:
		return 0, nil
	}
}
