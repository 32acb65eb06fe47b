package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNumberStringGrammar(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"  42 ", 42},
		{"", 0},
		{"   ", 0},
		{"0x1F", 31},
		{"-0x10", -16},
		{"3.14", 3.14},
		{"not a number", math.NaN()},
	}
	for _, c := range cases {
		got := Str(c.in).ToNumber()
		if math.IsNaN(c.want) {
			assert.True(t, math.IsNaN(got), "ToNumber(%q)", c.in)
			continue
		}
		assert.Equal(t, c.want, got, "ToNumber(%q)", c.in)
	}
}

func TestStrictEqualsNaN(t *testing.T) {
	nan := Num(math.NaN())
	assert.False(t, nan.StrictEquals(nan), "NaN !== NaN")
	assert.True(t, nan.SameValue(nan), "NaN sameValue NaN")
}

func TestSignedZero(t *testing.T) {
	pos := Num(0)
	neg := Num(math.Copysign(0, -1))
	assert.True(t, pos.StrictEquals(neg), "+0 === -0")
	assert.False(t, pos.SameValue(neg), "+0 sameValue -0 is false")
}

func TestNullUndefinedLooseEquals(t *testing.T) {
	assert.True(t, Nul().LooseEquals(Undef()))
	assert.True(t, Undef().LooseEquals(Nul()))
	assert.False(t, Nul().StrictEquals(Undef()))
}

func TestIntegerNumberIdentity(t *testing.T) {
	i := Int(5)
	n := Num(5)
	require.NotEqual(t, i.Kind(), n.Kind(), "Integer and Number are distinct identities")
	assert.True(t, i.StrictEquals(n), "but equal under ==/=== per spec")
	less, ok := Num(1).Compare(Num(2))
	assert.True(t, ok)
	assert.True(t, less)
}

func TestHashConsistentWithStrictEquals(t *testing.T) {
	a := Str("hello")
	b := Str("hello")
	require.True(t, a.StrictEquals(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashSignedZero(t *testing.T) {
	pos := Num(0)
	neg := Num(math.Copysign(0, -1))
	require.True(t, pos.StrictEquals(neg), "+0 === -0")
	assert.Equal(t, pos.Hash(), neg.Hash(), "+0 and -0 are StrictEquals so must hash equal")

	intZero := Int(0)
	require.True(t, intZero.StrictEquals(neg), "Integer(0) === Number(-0)")
	assert.Equal(t, intZero.Hash(), neg.Hash())
}

func TestCloneRoundTrip(t *testing.T) {
	for _, v := range []Value{Undef(), Nul(), Bool(true), Int(7), Num(3.5), Str("x")} {
		assert.True(t, v.Clone().StrictEquals(v))
	}
}

func TestToInt32Overflow(t *testing.T) {
	assert.Equal(t, int32(0), Num(math.NaN()).ToInt32())
	assert.Equal(t, int32(-1), Num(4294967295).ToInt32())
	assert.Equal(t, int32(1), Num(4294967297).ToInt32())
}

func TestTypeOfNullIsObject(t *testing.T) {
	assert.Equal(t, "object", Nul().TypeOf())
	assert.Equal(t, "undefined", Undef().TypeOf())
	assert.Equal(t, "number", Int(1).TypeOf())
}
