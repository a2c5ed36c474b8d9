package codegen

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvmc/internal/types"
)

func smallTarget(bits, refs int) *Target {
	t := DefaultTarget()
	t.CellBits = bits
	t.CellRefs = refs
	return t
}

func placeAll(pos *EncodePosition) []bool {
	var breaks []bool
	for !pos.Done() {
		breaks = append(breaks, pos.Next())
	}
	return breaks
}

func TestLeafSizes(t *testing.T) {
	target := DefaultTarget()
	tests := []struct {
		typ        types.Type
		bits, refs int
	}{
		{types.Uint(8), 8, 0},
		{types.Int(256), 256, 0},
		{types.Bool(), 1, 0},
		{types.Mapping(types.Uint(8), types.Bool()), 1, 1},
		{types.Bytes(), 0, 1},
		{types.Array(types.Uint(8)), 33, 1},
		{types.Cell(), 0, 1},
		{types.Address(), 267, 0},
	}
	for _, tt := range tests {
		bits, refs, ok := leafSize(target, tt.typ)
		require.True(t, ok, tt.typ.String())
		assert.Equal(t, tt.bits, bits, tt.typ.String())
		assert.Equal(t, tt.refs, refs, tt.typ.String())
	}
	_, _, ok := leafSize(target, &types.OtherType{Name: "function"})
	assert.False(t, ok)
}

func TestEncodePositionBreaksOnBits(t *testing.T) {
	pos := NewEncodePosition(smallTarget(64, 4), 0, []types.Type{types.Uint(32), types.Uint(32), types.Uint(8)})
	assert.Equal(t, []bool{false, false, true}, placeAll(pos))
	assert.Equal(t, 2, pos.Cells())
	bits, refs := pos.Used()
	assert.Equal(t, 8, bits)
	assert.Equal(t, 0, refs)
}

func TestEncodePositionOffset(t *testing.T) {
	pos := NewEncodePosition(smallTarget(64, 4), 40, []types.Type{types.Uint(32)})
	assert.Equal(t, []bool{true}, placeAll(pos))

	pos = NewEncodePosition(smallTarget(64, 4), 32, []types.Type{types.Uint(32)})
	assert.Equal(t, []bool{false}, placeAll(pos))
	assert.Equal(t, 1, pos.Cells())
}

func TestEncodePositionKeepsLinkReference(t *testing.T) {
	pos := NewEncodePosition(smallTarget(1023, 2), 0, []types.Type{types.Cell(), types.Cell(), types.Uint(8)})
	assert.Equal(t, []bool{false, true, false}, placeAll(pos))

	// the last leaf needs no link
	pos = NewEncodePosition(smallTarget(1023, 2), 0, []types.Type{types.Cell(), types.Cell()})
	assert.Equal(t, []bool{false, false}, placeAll(pos))
	assert.Equal(t, 1, pos.Cells())
}

func TestEncodePositionFlattensStructs(t *testing.T) {
	inner := types.Struct("Inner",
		types.Member{Name: "x", Type: types.Uint(256)},
		types.Member{Name: "y", Type: types.Uint(256)},
		types.Member{Name: "z", Type: types.Uint(256)},
	)
	pos := NewEncodePosition(DefaultTarget(), 0, []types.Type{types.Uint(256), inner, types.Uint(256)})
	assert.Equal(t, []bool{false, false, false, true, false}, placeAll(pos))
	assert.Equal(t, 2, pos.Cells())
}

func TestConsumeReportsNewCell(t *testing.T) {
	pos := NewEncodePosition(smallTarget(16, 4), 0, nil)
	assert.True(t, pos.CanFit(16, 4))
	assert.False(t, pos.Consume(10, 1))
	assert.False(t, pos.CanFit(7, 0))
	assert.True(t, pos.Consume(7, 0))
	assert.Equal(t, 2, pos.Cells())

	expectInternalError(t, func() { pos.Consume(17, 0) })
}

func TestNextPastEndIsInternal(t *testing.T) {
	pos := NewEncodePosition(DefaultTarget(), 0, []types.Type{types.Bool()})
	pos.Next()
	expectInternalError(t, func() { pos.Next() })
}

func TestLayout(t *testing.T) {
	members := []types.Member{
		{Name: "a", Type: types.Uint(8)},
		{Name: "b", Type: types.Struct("P",
			types.Member{Name: "x", Type: types.Uint(16)},
			types.Member{Name: "y", Type: types.Bool()},
		)},
		{Name: "c", Type: types.Address()},
	}
	got := Layout(members, 32, DefaultTarget())
	type row struct {
		Path                        string
		Cell, BitOffset, Bits, Refs int
	}
	rows := make([]row, len(got))
	for i, e := range got {
		rows[i] = row{e.Path, e.Cell, e.BitOffset, e.Bits, e.Refs}
	}
	want := []row{
		{"a", 0, 32, 8, 0},
		{"b.x", 0, 40, 16, 0},
		{"b.y", 0, 56, 1, 0},
		{"c", 0, 57, 267, 0},
	}
	if diff := pretty.Compare(want, rows); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestLayoutIsDeterministic(t *testing.T) {
	var members []types.Member
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		members = append(members, types.Member{Name: name, Type: types.Uint(200)})
		members = append(members, types.Member{Name: name + "_m", Type: types.Mapping(types.Uint(32), types.Bool())})
	}
	first := Layout(members, 0, DefaultTarget())
	second := Layout(members, 0, DefaultTarget())
	if diff := pretty.Compare(first, second); diff != "" {
		t.Errorf("layouts differ:\n%s", diff)
	}
	assert.Greater(t, first[len(first)-1].Cell, 0)
}

func TestIsCompatibleWithSDK(t *testing.T) {
	target := DefaultTarget()
	twoWords := types.Struct("TwoWords",
		types.Member{Name: "a", Type: types.Uint(256)},
		types.Member{Name: "b", Type: types.Uint(256)},
	)
	assert.False(t, IsCompatibleWithSDK(32, twoWords, target))
	assert.True(t, IsCompatibleWithSDK(0, twoWords, target))

	nested := types.Struct("Nested",
		types.Member{Name: "x", Type: types.Uint(8)},
		types.Member{Name: "inner", Type: types.Struct("Small", types.Member{Name: "y", Type: types.Uint(8)})},
	)
	assert.False(t, IsCompatibleWithSDK(0, nested, target))

	withMapping := types.Struct("WithMapping",
		types.Member{Name: "m", Type: types.Mapping(types.Uint(8), types.Bool())},
		types.Member{Name: "c", Type: types.Cell()},
	)
	assert.True(t, IsCompatibleWithSDK(256, withMapping, target))

	withOther := types.Struct("WithOther", types.Member{Name: "f", Type: &types.OtherType{Name: "function"}})
	assert.False(t, IsCompatibleWithSDK(0, withOther, target))
}

func TestFindUnencodable(t *testing.T) {
	slice := &types.OtherType{Name: "TvmSlice"}
	inner := types.Struct("Inner", types.Member{Name: "ok", Type: types.Bool()}, types.Member{Name: "s", Type: slice})
	tests := []struct {
		typ  types.Type
		want types.Type
	}{
		{types.Uint(8), nil},
		{types.Address(), nil},
		{types.Mapping(types.Uint(8), slice), nil},
		{types.Array(slice), nil},
		{slice, slice},
		{inner, slice},
		{types.Tuple(types.Cell(), inner), slice},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, FindUnencodable(tt.typ))
		})
	}
}
