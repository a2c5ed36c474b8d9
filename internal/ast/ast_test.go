package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tvmc/internal/types"
)

func TestSignature(t *testing.T) {
	fn := &FunctionDefinition{
		Name:    "transfer",
		Params:  []*VariableDeclaration{{Name: "to", Type: types.Address()}, {Name: "v", Type: types.Uint(128)}},
		Returns: []*VariableDeclaration{{Name: "ok", Type: types.Bool()}},
	}
	assert.Equal(t, "transfer(address,uint128)(bool)", fn.Signature())
}

func TestIsPublic(t *testing.T) {
	for v, want := range map[Visibility]bool{Private: false, Internal: false, Public: true, External: true} {
		fn := &FunctionDefinition{Visibility: v}
		assert.Equal(t, want, fn.IsPublic(), v.String())
	}
}

func TestDebugString(t *testing.T) {
	base := &ContractDefinition{Name: "Base"}
	base.LinearizedBases = []*ContractDefinition{base}
	baseFn := &FunctionDefinition{Name: "f", Contract: base, Visibility: Public}
	base.Functions = []*FunctionDefinition{baseFn}

	c := &ContractDefinition{
		Name:           "Wallet",
		StateVariables: []*VariableDeclaration{{Name: "owner", Type: types.Uint(256)}},
		Structs:        []*types.StructType{types.Struct("S", types.Member{Name: "x", Type: types.Uint(8)})},
		Pos:            Position{File: "w.yaml", Line: 3, Column: 1},
	}
	c.LinearizedBases = []*ContractDefinition{c, base}
	c.Functions = []*FunctionDefinition{{
		Name: "f", Contract: c, Visibility: Public, FunctionID: 7,
		BaseFunctions: []*FunctionDefinition{baseFn},
	}}
	unit := &SourceUnit{
		Pragmas:   []*PragmaDirective{{Tokens: []string{"AbiHeader", "expire"}}},
		Contracts: []*ContractDefinition{base, c},
	}

	out := DebugString(unit)
	assert.Contains(t, out, "pragma AbiHeader expire")
	assert.Contains(t, out, "contract Wallet (linearized: Wallet -> Base) @ w.yaml:3:1")
	assert.Contains(t, out, "var owner uint256")
	assert.Contains(t, out, "id=0x00000007")
	assert.Contains(t, out, "overrides=[Base.f]")
	assert.True(t, strings.Contains(out, "  (*types.StructType)"), out)
	assert.Contains(t, out, `Name: (string) (len=1) "S"`)
	assert.Contains(t, out, `Name: (string) (len=1) "x"`)
	assert.Contains(t, out, "Bits: (int) 8")
}
