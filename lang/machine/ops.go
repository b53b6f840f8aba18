package machine

import (
	"fmt"
	"math"

	"github.com/toi-lang/toi/lang/token"
)

// Equal implements the EQUAL opcode: identity-equal for reference types,
// HasEqual for types with custom equality, Ordered as a cmp==0 fallback,
// otherwise values of differing concrete type (or types with neither
// capability) are simply not equal rather than an error, matching dynamic-
// language "==" semantics.
func Equal(x, y Value) (bool, error) {
	if x == y {
		return true, nil
	}
	// mixed int/float pairs compare numerically, so 1 == 1.0
	if xf, xok := toFloat(x); xok {
		if yf, yok := toFloat(y); yok {
			return xf == yf, nil
		}
	}
	if hx, ok := x.(HasEqual); ok {
		if sameConcreteType(x, y) {
			return hx.Equals(y)
		}
		return false, nil
	}
	if ox, ok := x.(Ordered); ok {
		if sameConcreteType(x, y) {
			c, err := ox.Cmp(y)
			return c == 0, err
		}
		return false, nil
	}
	return false, nil
}

// Compare implements LESS/GREATER (GE/LE are compiled as LESS/NOT and
// GREATER/NOT per §4.3.2, so the VM itself never needs a three-way dispatch
// beyond these two).
func Compare(x, y Value) (int, error) {
	if xf, xok := toFloat(x); xok {
		if yf, yok := toFloat(y); yok {
			return floatCmp(Float(xf), Float(yf)), nil
		}
	}
	ox, ok := x.(Ordered)
	if !ok || !sameConcreteType(x, y) {
		return 0, fmt.Errorf("attempt to compare %s with %s", x.Type(), y.Type())
	}
	return ox.Cmp(y)
}

func sameConcreteType(x, y Value) bool {
	return fmt.Sprintf("%T", x) == fmt.Sprintf("%T", y)
}

// Binary implements the generic (type-unspecialized) ADD/SUB/MUL/DIV family
// opcodes the compiler falls back to when the type_stack could not prove
// both operands int or both float at compile time (§4.3.2). Numeric mixed
// int/float pairs promote to float; HasBinary lets non-numeric types (only
// String today) opt in.
func Binary(op token.Token, x, y Value) (Value, error) {
	if hx, ok := x.(HasBinary); ok {
		if v, err := hx.Binary(op, y, Left); v != nil || err != nil {
			return v, err
		}
	}
	if hy, ok := y.(HasBinary); ok {
		if v, err := hy.Binary(op, x, Right); v != nil || err != nil {
			return v, err
		}
	}
	xf, xIsNum := toFloat(x)
	yf, yIsNum := toFloat(y)
	if xIsNum && yIsNum {
		xi, xInt := x.(Int)
		yi, yInt := y.(Int)
		if xInt && yInt {
			return intArith(op, xi, yi)
		}
		return floatArith(op, Float(xf), Float(yf))
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, x.Type(), y.Type())
}

func toFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Int:
		return float64(v), true
	case Float:
		return float64(v), true
	default:
		return 0, false
	}
}

func intArith(op token.Token, x, y Int) (Value, error) {
	switch op {
	case token.PLUS:
		return x + y, nil
	case token.MINUS:
		return x - y, nil
	case token.STAR:
		return x * y, nil
	case token.SLASH:
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(x) / Float(y), nil
	case token.SLASHSLASH:
		if y == 0 {
			return nil, fmt.Errorf("integer division by zero")
		}
		return floorDivInt(x, y), nil
	case token.PERCENT:
		if y == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return floorModInt(x, y), nil
	case token.STARSTAR:
		return Float(powFloat(float64(x), float64(y))), nil
	}
	return nil, fmt.Errorf("unsupported integer operator %s", op)
}

func floatArith(op token.Token, x, y Float) (Value, error) {
	switch op {
	case token.PLUS:
		return x + y, nil
	case token.MINUS:
		return x - y, nil
	case token.STAR:
		return x * y, nil
	case token.SLASH:
		return x / y, nil
	case token.SLASHSLASH:
		return Float(floorDivFloat(float64(x), float64(y))), nil
	case token.PERCENT:
		return Float(floorModFloat(float64(x), float64(y))), nil
	case token.STARSTAR:
		return Float(powFloat(float64(x), float64(y))), nil
	}
	return nil, fmt.Errorf("unsupported float operator %s", op)
}

func floorDivInt(x, y Int) Int {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func floorModInt(x, y Int) Int {
	m := x % y
	if m != 0 && ((x < 0) != (y < 0)) {
		m += y
	}
	return m
}

func floorDivFloat(x, y float64) float64 {
	q := x / y
	return floorFloat(q)
}

func floorModFloat(x, y float64) float64 {
	return x - floorFloat(x/y)*y
}

func floorFloat(x float64) float64 {
	i := float64(int64(x))
	if i > x {
		i--
	}
	return i
}

func powFloat(x, y float64) float64 { return math.Pow(x, y) }

// Unary implements NEGATE/NOT/BNOT/LENGTH for generic operands (types may
// also opt in via HasUnary, e.g. a userdata wrapping a native resource).
func Unary(op token.Token, x Value) (Value, error) {
	if hx, ok := x.(HasUnary); ok {
		if v, err := hx.Unary(op); v != nil || err != nil {
			return v, err
		}
	}
	switch op {
	case token.MINUS:
		switch x := x.(type) {
		case Int:
			return -x, nil
		case Float:
			return -x, nil
		}
	case token.NOT:
		return Bool(!Truth(x)), nil
	case token.TILDE:
		if xi, ok := x.(Int); ok {
			return ^xi, nil
		}
	case token.POUND:
		n, err := lengthOf(x)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	}
	return nil, fmt.Errorf("unsupported operand type for unary %s: %s", op, x.Type())
}
