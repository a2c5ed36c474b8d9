package loader

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvmc/internal/types"
)

func TestParseType(t *testing.T) {
	point := types.Struct("Point", types.Member{Name: "x", Type: types.Int(32)})
	lookup := func(name string) *types.StructType {
		if name == "Point" {
			return point
		}
		return nil
	}

	tests := []struct {
		src  string
		want types.Type
	}{
		{"uint8", types.Uint(8)},
		{"int", types.Int(256)},
		{"uint", types.Uint(256)},
		{"bool", types.Bool()},
		{"address", types.Address()},
		{"TvmCell", types.Cell()},
		{"cell", types.Cell()},
		{"bytes", types.Bytes()},
		{"string", types.String()},
		{"Point", point},
		{"struct Point", point},
		{"uint64[]", types.Array(types.Uint(64))},
		{"Point[][]", types.Array(types.Array(point))},
		{"mapping(uint256 => Point)", types.Mapping(types.Uint(256), point)},
		{"mapping( int8=>mapping(uint16 => bool[]) )", types.Mapping(types.Int(8), types.Mapping(types.Uint(16), types.Array(types.Bool())))},
		{"tuple(bool,address)", types.Tuple(types.Bool(), types.Address())},
		{"tuple()", types.Tuple()},
		{"TvmSlice", &types.OtherType{Name: "TvmSlice"}},
		{"function", &types.OtherType{Name: "function"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseType(tt.src, lookup)
			require.NoError(t, err)
			assert.True(t, types.Equal(tt.want, got), "got %s", got)
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for src, msg := range map[string]string{
		"":                     "expected a type",
		"uint0":                "out of range",
		"int300":               "out of range",
		"Unknown":              `unknown type "Unknown"`,
		"mapping(uint8 bool)":  `expected "=>"`,
		"mapping(uint8 => bool": `expected ")"`,
		"uint8[":               `expected "]"`,
		"tuple(bool;address)":  `expected ","`,
		"bool extra":           "unexpected",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseType(src, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), msg)
			assert.NotNil(t, errors.GetReportableStackTrace(err), "error carries no stack trace")
		})
	}
}
