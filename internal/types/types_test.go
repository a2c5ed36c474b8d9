package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegerKey(t *testing.T) {
	cases := []struct {
		typ  Type
		bits int
		ok   bool
	}{
		{Uint(8), 8, true},
		{Int(256), 256, true},
		{Uint(7), 0, false},
		{Uint(257), 0, false},
		{Bool(), 0, false},
		{Address(), 0, false},
	}
	for _, c := range cases {
		bits, ok := IntegerKey(c.typ)
		assert.Equal(t, c.ok, ok, c.typ.String())
		assert.Equal(t, c.bits, bits, c.typ.String())
	}
}

func TestStringForms(t *testing.T) {
	assert.Equal(t, "uint32", Uint(32).String())
	assert.Equal(t, "int8", Int(8).String())
	assert.Equal(t, "mapping(uint8 => bool)", Mapping(Uint(8), Bool()).String())
	assert.Equal(t, "uint16[]", Array(Uint(16)).String())
	assert.Equal(t, "string", String().String())
	assert.Equal(t, "tuple(uint8,TvmCell)", Tuple(Uint(8), Cell()).String())
}

func TestCanonicalName(t *testing.T) {
	s := Struct("S", Member{"a", Uint(32)}, Member{"b", Mapping(Uint(8), Bool())})
	assert.Equal(t, "(uint32,map(uint8,bool))", CanonicalName(s))
	assert.Equal(t, "bytes", CanonicalName(String()))
	assert.Equal(t, "cell", CanonicalName(Cell()))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Uint(8), Uint(8)))
	assert.False(t, Equal(Uint(8), Int(8)))
	assert.True(t, Equal(Array(Uint(8)), Array(Uint(8))))
	assert.False(t, Equal(Array(Uint(8)), Bytes()))
	assert.True(t, Equal(Bytes(), String()))
	assert.True(t, Equal(Struct("S"), Struct("S", Member{"x", Bool()})))
	assert.False(t, Equal(Tuple(Uint(8)), Tuple(Uint(8), Bool())))
}
