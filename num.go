package dnc

// num.go implements the extended real numbers that curve values live in:
// the finite doubles, +inf, -inf, and a distinguished undefined value that
// results from combining the two infinities.

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type numKind uint8

const (
	finiteNum numKind = iota
	posInfNum
	negInfNum
	undefinedNum
)

// Num is an extended real. The zero value is the finite number 0.
// Num is an immutable value type; every operation returns a new Num.
type Num struct {
	kind numKind
	v    float64
}

// Finite returns the Num holding v. An infinite v maps to the matching
// infinity and NaN maps to Undefined.
func Finite(v float64) Num {
	switch {
	case math.IsNaN(v):
		return Undefined()
	case math.IsInf(v, 1):
		return PosInf()
	case math.IsInf(v, -1):
		return NegInf()
	}
	return Num{v: v}
}

// PosInf returns +inf.
func PosInf() Num { return Num{kind: posInfNum} }

// NegInf returns -inf.
func NegInf() Num { return Num{kind: negInfNum} }

// Undefined returns the undefined Num.
func Undefined() Num { return Num{kind: undefinedNum} }

func (a Num) IsFinite() bool    { return a.kind == finiteNum }
func (a Num) IsPosInf() bool    { return a.kind == posInfNum }
func (a Num) IsNegInf() bool    { return a.kind == negInfNum }
func (a Num) IsInf() bool       { return a.kind == posInfNum || a.kind == negInfNum }
func (a Num) IsUndefined() bool { return a.kind == undefinedNum }

// Float returns the float64 form of a: +Inf and -Inf for the infinities
// and NaN for Undefined.
func (a Num) Float() float64 {
	switch a.kind {
	case posInfNum:
		return math.Inf(1)
	case negInfNum:
		return math.Inf(-1)
	case undefinedNum:
		return math.NaN()
	}
	return a.v
}

// Err returns ErrUndefinedArithmetic if a is undefined, nil otherwise.
func (a Num) Err() error {
	if a.kind == undefinedNum {
		return ErrUndefinedArithmetic
	}
	return nil
}

// Add returns a+b. Adding +inf and -inf is undefined.
func (a Num) Add(b Num) Num {
	if a.kind == undefinedNum || b.kind == undefinedNum {
		return Undefined()
	}
	if a.kind == finiteNum && b.kind == finiteNum {
		return Finite(a.v + b.v)
	}
	if a.kind == finiteNum {
		return b
	}
	if b.kind == finiteNum || a.kind == b.kind {
		return a
	}
	return Undefined()
}

// Neg returns -a.
func (a Num) Neg() Num {
	switch a.kind {
	case posInfNum:
		return NegInf()
	case negInfNum:
		return PosInf()
	case undefinedNum:
		return a
	}
	return Num{v: -a.v}
}

// Sub returns a-b. +inf minus +inf (and -inf minus -inf) is undefined.
func (a Num) Sub(b Num) Num {
	return a.Add(b.Neg())
}

// Scale multiplies a by the non-negative scalar c. A zero c gives 0 even
// for the infinities, the usual convention for zero rates. A negative or
// NaN scalar gives Undefined.
func (a Num) Scale(c float64) Num {
	if a.kind == undefinedNum || c < 0 || math.IsNaN(c) {
		return Undefined()
	}
	if c == 0 {
		return Num{}
	}
	if a.kind == finiteNum {
		if a.v == 0 {
			return Num{}
		}
		return Finite(a.v * c)
	}
	return a
}

// Compare returns -1, 0 or +1 as a is less than, equal to or greater than b.
// Undefined takes part in no ordering, so comparing it fails.
func (a Num) Compare(b Num) (int, error) {
	if a.kind == undefinedNum || b.kind == undefinedNum {
		return 0, fmt.Errorf("%w: comparing %s with %s", ErrUndefinedArithmetic, a, b)
	}
	return a.cmp(b), nil
}

// cmp orders two defined values.
func (a Num) cmp(b Num) int {
	af, bf := a.Float(), b.Float()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// Min returns the smaller of a and b, Undefined if either is.
func (a Num) Min(b Num) Num {
	if a.kind == undefinedNum || b.kind == undefinedNum {
		return Undefined()
	}
	if b.cmp(a) < 0 {
		return b
	}
	return a
}

// Max returns the larger of a and b, Undefined if either is.
func (a Num) Max(b Num) Num {
	if a.kind == undefinedNum || b.kind == undefinedNum {
		return Undefined()
	}
	if b.cmp(a) > 0 {
		return b
	}
	return a
}

// Equal reports exact equality of two defined values.
func (a Num) Equal(b Num) bool {
	if a.kind != b.kind || a.kind == undefinedNum {
		return false
	}
	return a.kind != finiteNum || a.v == b.v
}

// ApproxEqual is Equal with a relative tolerance on finite values.
func (a Num) ApproxEqual(b Num) bool {
	if a.kind == finiteNum && b.kind == finiteNum {
		return approxEq(a.v, b.v)
	}
	return a.Equal(b)
}

func (a Num) String() string {
	switch a.kind {
	case posInfNum:
		return "+inf"
	case negInfNum:
		return "-inf"
	case undefinedNum:
		return "undefined"
	}
	return strconv.FormatFloat(a.v, 'g', -1, 64)
}

// ParseNum reads a Num written either as a float or as one of the
// infinity spellings "+inf", "inf", ".inf", "-inf", "-.inf".
func ParseNum(s string) (Num, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+inf", "inf", ".inf", "+.inf", "infinity", "+infinity":
		return PosInf(), nil
	case "-inf", "-.inf", "-infinity":
		return NegInf(), nil
	case "undefined", "nan", ".nan":
		return Undefined(), fmt.Errorf("%w: parsing %q", ErrUndefinedArithmetic, s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Num{}, err
	}
	return Finite(v), nil
}

// MarshalYAML writes a as a float; yaml spells the infinities .inf and -.inf.
func (a Num) MarshalYAML() (interface{}, error) {
	if err := a.Err(); err != nil {
		return nil, err
	}
	return a.Float(), nil
}

// UnmarshalYAML reads what MarshalYAML writes, plus the ParseNum spellings.
func (a *Num) UnmarshalYAML(node *yaml.Node) error {
	n, err := ParseNum(node.Value)
	if err != nil {
		return err
	}
	*a = n
	return nil
}

// MarshalJSON writes finite values as numbers and infinities as the
// strings "+inf" and "-inf", since JSON has no infinite numbers.
func (a Num) MarshalJSON() ([]byte, error) {
	if err := a.Err(); err != nil {
		return nil, err
	}
	if a.IsInf() {
		return []byte(strconv.Quote(a.String())), nil
	}
	return []byte(a.String()), nil
}

// UnmarshalJSON reads what MarshalJSON writes.
func (a *Num) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	n, err := ParseNum(s)
	if err != nil {
		return err
	}
	*a = n
	return nil
}

// rdigits is the decimal precision that computed breakpoints are rounded to,
// so that float noise from intersections does not create spurious segments.
var rdigits uint = 9

// tolerance is the relative slack used when comparing computed values.
const tolerance = 1e-9

// roundFloat rounds val to the given number of decimal places.
func roundFloat(val float64, precision uint) float64 {
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return val
	}
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// approxEq compares a and b with the relative tolerance. Infinities are
// only equal to themselves.
func approxEq(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tolerance*scale
}
