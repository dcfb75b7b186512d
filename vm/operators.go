package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a condition. false, 0, NaN,
// null, undefined and the empty string are falsy.
func Truthy(v Value) bool {
	switch x := Unwrap(v).(type) {
	case Undefined, Null:
		return false
	case Bool:
		return bool(x)
	case Number:
		f := float64(x)
		return f != 0 && !math.IsNaN(f)
	case String:
		return x != ""
	}
	return true
}

// ToNumber coerces v for arithmetic: numeric strings parse, other strings
// give NaN, true is 1, false and null are 0, undefined is NaN.
func ToNumber(v Value) float64 {
	switch x := Unwrap(v).(type) {
	case Number:
		return float64(x)
	case Bool:
		if x {
			return 1
		}
		return 0
	case Null:
		return 0
	case String:
		return parseNumber(string(x))
	case *Array:
		// [] is 0 and [n] is n, as with a string conversion.
		switch len(x.Elements) {
		case 0:
			return 0
		case 1:
			return ToNumber(x.Elements[0])
		}
	}
	return math.NaN()
}

// parseNumber converts a trimmed decimal string. The empty string is 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	body := s
	if body[0] == '+' || body[0] == '-' {
		body = body[1:]
	}
	if body == "Infinity" {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	if !isDecimal(body) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range literals still parse to ±Inf.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// isDecimal matches digits [. digits] [e [+-] digits], with at least one
// digit in the mantissa.
func isDecimal(s string) bool {
	i, digits := 0, 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ToString converts v to its string form, as used by concatenation and
// console rendering.
func ToString(v Value) string {
	switch x := Unwrap(v).(type) {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case Number:
		return FormatNumber(float64(x))
	case String:
		return string(x)
	case *Object:
		return "[object Object]"
	case *Array:
		return joinArray(x, ",", nil)
	case *Function:
		return "f " + x.Name + "(){ [code] }"
	case *Builtin:
		return "f " + x.Name + "(){ [native code] }"
	case Ref:
		return "[object Object]"
	}
	return ""
}

// joinArray renders the elements of a separated by sep. undefined, null
// and arrays already being joined render as empty strings.
func joinArray(a *Array, sep string, active map[*Array]bool) string {
	if active == nil {
		active = make(map[*Array]bool)
	}
	active[a] = true
	defer delete(active, a)

	parts := make([]string, len(a.Elements))
	for i, el := range a.Elements {
		switch x := Unwrap(el).(type) {
		case Undefined, Null:
		case *Array:
			if !active[x] {
				parts[i] = joinArray(x, ",", active)
			}
		default:
			parts[i] = ToString(x)
		}
	}
	return strings.Join(parts, sep)
}

// FormatNumber renders f the way the console prints numbers: shortest
// round-trip digits, exponent form outside [1e-6, 1e21).
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		if exp == "" {
			exp = "0"
		}
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toInt32 implements the wrap-around integer conversion of bitwise ops.
func toInt32(v Value) int32 {
	return int32(toUint32(v))
}

func toUint32(v Value) uint32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// concatenates reports whether + on a and b is string concatenation.
func concatenates(a, b Value) bool {
	return stringish(a) || stringish(b)
}

func stringish(v Value) bool {
	switch v.(type) {
	case String, *Object, *Array, *Function, *Builtin:
		return true
	}
	return false
}

// Add implements +.
func Add(a, b Value) Value {
	a, b = Unwrap(a), Unwrap(b)
	if concatenates(a, b) {
		return String(ToString(a) + ToString(b))
	}
	return Number(ToNumber(a) + ToNumber(b))
}

// Arith applies a numeric binary opcode to a and b.
func Arith(op Opcode, a, b Value) (Value, bool) {
	switch op {
	case OpAdd:
		return Add(a, b), true
	case OpSub:
		return Number(ToNumber(a) - ToNumber(b)), true
	case OpMul:
		return Number(ToNumber(a) * ToNumber(b)), true
	case OpDiv:
		// IEEE division: n/0 is ±Inf and 0/0 is NaN.
		return Number(ToNumber(a) / ToNumber(b)), true
	case OpMod:
		return Number(math.Mod(ToNumber(a), ToNumber(b))), true
	case OpBitAnd:
		return Number(toInt32(a) & toInt32(b)), true
	case OpBitOr:
		return Number(toInt32(a) | toInt32(b)), true
	case OpBitXor:
		return Number(toInt32(a) ^ toInt32(b)), true
	case OpShiftLeft:
		return Number(toInt32(a) << (toUint32(b) & 31)), true
	case OpShiftRight:
		return Number(toInt32(a) >> (toUint32(b) & 31)), true
	case OpUShiftRight:
		return Number(toUint32(a) >> (toUint32(b) & 31)), true
	}
	return nil, false
}

// Compare applies a relational opcode. Two strings compare by code
// point; anything else compares numerically and is false on NaN.
func Compare(op Opcode, a, b Value) bool {
	a, b = Unwrap(a), Unwrap(b)
	if sa, ok := a.(String); ok {
		if sb, ok := b.(String); ok {
			switch op {
			case OpLess:
				return sa < sb
			case OpGreater:
				return sa > sb
			case OpLessEq:
				return sa <= sb
			case OpGreaterEq:
				return sa >= sb
			}
			return false
		}
	}
	x, y := ToNumber(a), ToNumber(b)
	switch op {
	case OpLess:
		return x < y
	case OpGreater:
		return x > y
	case OpLessEq:
		return x <= y
	case OpGreaterEq:
		return x >= y
	}
	return false
}

// StrictEquals implements ===. Reference values compare by identity.
func StrictEquals(a, b Value) bool {
	a, b = Unwrap(a), Unwrap(b)
	switch x := a.(type) {
	case Undefined:
		_, ok := b.(Undefined)
		return ok
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	case *Array:
		y, ok := b.(*Array)
		return ok && x == y
	case *Function:
		y, ok := b.(*Function)
		return ok && x == y
	case *Builtin:
		y, ok := b.(*Builtin)
		return ok && x == y
	case Ref:
		y, ok := b.(Ref)
		return ok && x == y
	}
	return false
}

// LooseEquals implements ==.
func LooseEquals(a, b Value) bool {
	a, b = Unwrap(a), Unwrap(b)
	if a.Kind() == b.Kind() {
		return StrictEquals(a, b)
	}
	nullish := func(v Value) bool {
		k := v.Kind()
		return k == KindUndefined || k == KindNull
	}
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b)
	}
	if isPrimitive(a) && isPrimitive(b) {
		return ToNumber(a) == ToNumber(b)
	}
	// One side is a reference value: compare through its string form.
	if isPrimitive(a) {
		a, b = b, a
	}
	if _, ok := b.(String); ok {
		return ToString(a) == string(b.(String))
	}
	return ToNumber(a) == ToNumber(b)
}

func isPrimitive(v Value) bool {
	switch v.Kind() {
	case KindUndefined, KindNull, KindBool, KindNumber, KindString:
		return true
	}
	return false
}

// sameValueZero is === except that NaN equals NaN.
func sameValueZero(a, b Value) bool {
	x, ok1 := Unwrap(a).(Number)
	y, ok2 := Unwrap(b).(Number)
	if ok1 && ok2 && math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
		return true
	}
	return StrictEquals(a, b)
}
