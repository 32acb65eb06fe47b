// Package value implements AeroJS's tagged Value representation: the
// engine's 64-bit-ish immutable datum (spec §3 "Value"). The variant shape
// is modeled on the teacher's internal/ir.Type lattice (IntType/BoolType/
// AddressType/...), generalized from "EVM value types" to ECMAScript kinds.
//
// This is a tag-boxed rather than NaN-boxed representation: Go gives no
// portable, GC-safe way to alias a float64's bit pattern into a pointer
// slot (the runtime's moving/precise GC must be able to find every live
// pointer), so the "NaN-boxed or tag-boxed" invariant from spec §3 is
// satisfied on the tag-boxed side. See DESIGN.md.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the active Value variant.
type Kind uint8

const (
	Undefined Kind = iota
	Null
	Boolean
	Integer // SMI fast path: a Number that fits in int32
	Number
	String
	Symbol
	BigInt
	Object
	Array
	Function
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Integer, Number:
		return "number"
	case String:
		return "string"
	case Symbol:
		return "symbol"
	case BigInt:
		return "bigint"
	case Object, Array:
		return "object"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// Handle is a stable identifier into the heap arena (spec §3 "Handles are
// stable identifiers into the heap"). Zero is never a valid handle.
type Handle uint32

// Value is the engine's tagged datum. Only the field matching Kind is
// meaningful; callers must not read the others.
type Value struct {
	kind   Kind
	b      bool
	i32    int32
	num    float64
	str    string
	handle Handle
}

func Undef() Value       { return Value{kind: Undefined} }
func Nul() Value         { return Value{kind: Null} }
func Bool(b bool) Value  { return Value{kind: Boolean, b: b} }
func Int(i int32) Value  { return Value{kind: Integer, i32: i} }
func Num(f float64) Value { return Value{kind: Number, num: f} }
func Str(s string) Value { return Value{kind: String, str: s} }

func Sym(h Handle) Value      { return Value{kind: Symbol, handle: h} }
func Big(h Handle) Value      { return Value{kind: BigInt, handle: h} }
func Obj(h Handle) Value      { return Value{kind: Object, handle: h} }
func Arr(h Handle) Value      { return Value{kind: Array, handle: h} }
func Fn(h Handle) Value       { return Value{kind: Function, handle: h} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) AsBool() bool   { return v.b }
func (v Value) AsInt32() int32 { return v.i32 }
func (v Value) AsFloat() float64 {
	if v.kind == Integer {
		return float64(v.i32)
	}
	return v.num
}
func (v Value) AsString() string { return v.str }
func (v Value) Handle() Handle   { return v.handle }

func (v Value) IsNumber() bool  { return v.kind == Integer || v.kind == Number }
func (v Value) IsNullish() bool { return v.kind == Undefined || v.kind == Null }

// TypeOf implements the ECMAScript `typeof` operator (spec §4.1 "type_of").
func (v Value) TypeOf() string {
	if v.kind == Null {
		// Historical ECMAScript wart, preserved deliberately: typeof null === "object".
		return "object"
	}
	return v.kind.String()
}

// IsTruthy implements ToBoolean (spec §4.1 "is_truthy").
func (v Value) IsTruthy() bool {
	switch v.kind {
	case Undefined, Null:
		return false
	case Boolean:
		return v.b
	case Integer:
		return v.i32 != 0
	case Number:
		return v.num != 0 && !math.IsNaN(v.num)
	case String:
		return len(v.str) > 0
	default:
		return true // objects, arrays, functions, symbols, bigints are always truthy
	}
}

// ToNumber implements ToNumber (spec §4.1). String conversion uses the same
// trim-then-parse grammar as ECMAScript ToNumber, including an optional 0x
// integer prefix; invalid input yields NaN, never an error (spec §3).
func (v Value) ToNumber() float64 {
	switch v.kind {
	case Undefined:
		return math.NaN()
	case Null:
		return 0
	case Boolean:
		if v.b {
			return 1
		}
		return 0
	case Integer:
		return float64(v.i32)
	case Number:
		return v.num
	case String:
		return stringToNumber(v.str)
	default:
		return math.NaN()
	}
}

// stringToNumber implements the ECMAScript StringToNumber grammar on the
// trimmed string body: empty -> 0, an optionally signed 0x/0X hexadecimal
// integer literal, otherwise a standard decimal float; anything else is
// NaN. 0o and 0b prefixes are not recognized and yield NaN.
func stringToNumber(s string) float64 {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0
	}
	neg := false
	body := t
	if len(body) > 0 && (body[0] == '+' || body[0] == '-') {
		neg = body[0] == '-'
		body = body[1:]
	}
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		n, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		f := float64(n)
		if neg {
			f = -f
		}
		return f
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToInt32 implements ToInt32 (spec §4.1), wrapping via ECMAScript's modular
// reduction over the double representation of ToNumber.
func (v Value) ToInt32() int32 {
	if v.kind == Integer {
		return v.i32
	}
	f := v.ToNumber()
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	const twoPow32 = 4294967296
	m := math.Mod(math.Trunc(f), twoPow32)
	if m < 0 {
		m += twoPow32
	}
	if m >= 2147483648 {
		m -= twoPow32
	}
	return int32(m)
}

// ToBooleanValue implements ToBoolean, returning a Value rather than bool.
func (v Value) ToBooleanValue() Value { return Bool(v.IsTruthy()) }

// ToString implements ToString (spec §4.1), formatting numbers the
// ECMAScript way (no trailing ".0", shortest round-trippable form).
func (v Value) ToString() string {
	switch v.kind {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		if v.b {
			return "true"
		}
		return "false"
	case Integer:
		return strconv.FormatInt(int64(v.i32), 10)
	case Number:
		if math.IsNaN(v.num) {
			return "NaN"
		}
		if math.IsInf(v.num, 1) {
			return "Infinity"
		}
		if math.IsInf(v.num, -1) {
			return "-Infinity"
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case String:
		return v.str
	default:
		return "[object]"
	}
}

// StrictEquals implements === (spec §4.1 "strict_equals"). NaN !== NaN even
// though NaN sameValue NaN is true (SameValue differs, see below).
func (v Value) StrictEquals(other Value) bool {
	if v.kind != other.kind {
		// Integer and Number compare equal under == when numerically equal
		// (spec §3: "Integer(n) and Number(n as f64) are distinct identities
		// but equal under == and ordered identically").
		if v.IsNumber() && other.IsNumber() {
			return v.ToNumber() == other.ToNumber()
		}
		return false
	}
	switch v.kind {
	case Undefined, Null:
		return true
	case Boolean:
		return v.b == other.b
	case Integer:
		return v.i32 == other.i32
	case Number:
		return v.num == other.num // NaN !== NaN falls out of IEEE-754 ==
	case String:
		return v.str == other.str
	default:
		return v.handle == other.handle
	}
}

// LooseEquals implements == (spec §4.1 "loose_equals"). It implements the
// null/undefined equivalence, number/string comparison via ToNumber, and
// boolean-to-number coercion; object ToPrimitive coercions are out of scope for the engine core's tagged
// value model (there is no host-object abstract-equality table to drive
// them without the full builtin library, an explicit Non-goal).
func (v Value) LooseEquals(other Value) bool {
	if v.IsNullish() && other.IsNullish() {
		return true
	}
	if v.IsNullish() != other.IsNullish() {
		return false
	}
	if v.IsNumber() && other.kind == String {
		return v.ToNumber() == other.ToNumber()
	}
	if v.kind == String && other.IsNumber() {
		return v.ToNumber() == other.ToNumber()
	}
	if v.kind == Boolean {
		return Num(v.ToNumber()).LooseEquals(other)
	}
	if other.kind == Boolean {
		return v.LooseEquals(Num(other.ToNumber()))
	}
	return v.StrictEquals(other)
}

// SameValue implements SameValue (spec §4.1): like StrictEquals except
// NaN sameValue NaN is true and +0 sameValue -0 is false.
func (v Value) SameValue(other Value) bool {
	if v.kind != other.kind {
		if v.IsNumber() && other.IsNumber() {
			a, b := v.ToNumber(), other.ToNumber()
			if math.IsNaN(a) && math.IsNaN(b) {
				return true
			}
			return a == b && math.Signbit(a) == math.Signbit(b)
		}
		return false
	}
	if v.IsNumber() {
		a, b := v.ToNumber(), other.ToNumber()
		if math.IsNaN(a) && math.IsNaN(b) {
			return true
		}
		return a == b && math.Signbit(a) == math.Signbit(b)
	}
	return v.StrictEquals(other)
}

// Compare provides the total order used by sort/relational operators over
// numeric values; NaN compares as "unordered" and is reported via ok=false.
func (v Value) Compare(other Value) (less bool, ok bool) {
	if !v.IsNumber() || !other.IsNumber() {
		if v.kind == String && other.kind == String {
			return v.str < other.str, true
		}
		return false, false
	}
	a, b := v.ToNumber(), other.ToNumber()
	if math.IsNaN(a) || math.IsNaN(b) {
		return false, false
	}
	return a < b, true
}

// Hash produces a hash consistent with StrictEquals: equal values (outside
// the NaN edge case named in spec §8) always hash equal. +0 and -0 are
// StrictEquals (IEEE 0.0 == -0.0) despite differing bit patterns, so both
// canonicalize to the same bits before mixing. NaN intentionally is not
// special-cased — two distinct NaN values are !StrictEquals but would
// otherwise collide harmlessly in a hash bucket, which is fine: Hash only
// needs to avoid false negatives, not provide a bijection.
func (v Value) Hash() uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime64
	}
	mixKind := func(k Kind) {
		for _, b := range []byte{byte(k)} {
			mix(b)
		}
	}
	switch v.kind {
	case Integer:
		mixKind(Number)
		f := float64(v.i32)
		bits := math.Float64bits(f)
		if f == 0 {
			bits = 0
		}
		for i := 0; i < 8; i++ {
			mix(byte(bits >> (8 * i)))
		}
	case Number:
		mixKind(Number)
		bits := math.Float64bits(v.num)
		if v.num == 0 {
			bits = 0
		}
		for i := 0; i < 8; i++ {
			mix(byte(bits >> (8 * i)))
		}
	case Boolean:
		mixKind(v.kind)
		if v.b {
			mix(1)
		} else {
			mix(0)
		}
	case String:
		mixKind(v.kind)
		for i := 0; i < len(v.str); i++ {
			mix(v.str[i])
		}
	case Undefined, Null:
		mixKind(v.kind)
	default:
		mixKind(v.kind)
		bits := uint64(v.handle)
		for i := 0; i < 4; i++ {
			mix(byte(bits >> (8 * i)))
		}
	}
	return h
}

// Clone returns a value equal (by StrictEquals) to v. Primitive values are
// immutable and copy trivially; handles are copied by value (the referent
// is shared, matching JS reference semantics for objects/arrays/functions).
func (v Value) Clone() Value { return v }
