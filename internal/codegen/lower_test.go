package codegen_test

import (
	"os"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvmc/internal/ast"
	"tvmc/internal/codegen"
	"tvmc/internal/tvm"
	"tvmc/internal/types"
)

func param(name string, t types.Type) *ast.VariableDeclaration {
	return &ast.VariableDeclaration{Name: name, Type: t}
}

var pointType = types.Struct("Point", member("x", types.Int(32)), member("y", types.Int(32)))

func walletContract() *ast.ContractDefinition {
	base := &ast.ContractDefinition{
		Name:           "Owned",
		StateVariables: []*ast.VariableDeclaration{param("owner", types.Address())},
	}
	base.LinearizedBases = []*ast.ContractDefinition{base}

	c := &ast.ContractDefinition{
		Name: "Wallet",
		StateVariables: []*ast.VariableDeclaration{
			param("balances", types.Mapping(types.Uint(256), types.Uint(128))),
			param("origin", pointType),
			param("counter", types.Uint(64)),
		},
		Structs: []*types.StructType{pointType},
	}
	c.LinearizedBases = []*ast.ContractDefinition{c, base}
	c.Functions = []*ast.FunctionDefinition{
		{
			Name: "constructor", Kind: ast.KindConstructor, Visibility: ast.Public,
			FunctionID: 0x68b55f3f, Contract: c,
		},
		{
			Name:       "move",
			Params:     []*ast.VariableDeclaration{param("p", pointType), param("steps", types.Uint(8))},
			Returns:    []*ast.VariableDeclaration{param("", pointType), param("ok", types.Bool())},
			Visibility: ast.External,
			FunctionID: 0x1234,
			Contract:   c,
		},
		{
			Name:       "helper",
			Params:     []*ast.VariableDeclaration{param("f", &types.OtherType{Name: "function"})},
			Visibility: ast.Private,
			Contract:   c,
		},
	}
	return c
}

func fragmentNames(prog *codegen.Program) []string {
	out := make([]string, len(prog.Functions))
	for i, f := range prog.Functions {
		out[i] = f.Name
	}
	return out
}

func TestLowerFragments(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Wallet", prog.Contract)
	assert.Equal(t, []string{
		"constructor_decode",
		"move_decode", "move_encode",
		"c4_to_c7", "c7_to_c4",
		"Point_default", "Point_to_builder", "Point_from_slice",
	}, fragmentNames(prog))

	move := prog.Function("move_decode")
	require.NotNil(t, move)
	assert.Equal(t, uint32(0x1234), move.ID)
	assert.Equal(t, 1, move.Args)
	assert.Equal(t, 2, move.Rets)

	answer := prog.Function("move_encode")
	assert.Equal(t, uint32(0x80001234), answer.ID)
	assert.Equal(t, 2, answer.Args)

	load := prog.Function("c4_to_c7")
	assert.Equal(t, len(codegen.StateHeader)+4, load.Rets)
	assert.Nil(t, prog.Function("helper_decode"))
}

func TestLowerDecodeParams(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)

	body := tvm.NewBuilder()
	body.StoreUint(uint256.NewInt(0x1234), 32)
	body.StoreUint(tvm.Int(-3), 32)
	body.StoreUint(uint256.NewInt(4), 32)
	body.StoreUint(uint256.NewInt(9), 8)

	m := run(t, prog.Function("move_decode").Code, body.End().Slice())
	require.Equal(t, 2, m.Depth())
	assert.True(t, tvm.Equal(tvm.Tuple{tvm.Int(-3), tvm.Int(4)}, m.Stack()[0]))
	assert.True(t, tvm.Equal(tvm.Int(9), m.Stack()[1]))
}

func TestLowerEncodeReturns(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)

	m := run(t, prog.Function("move_encode").Code, tvm.Tuple{tvm.Int(1), tvm.Int(-1)}, tvm.Int(-1))
	require.Equal(t, 1, m.Depth())
	cell := m.Top().(*tvm.Cell)
	bits := cell.BitString()
	require.Len(t, bits, 32+64+1)
	assert.Equal(t, "10000000000000000001001000110100", bits[:32])
	assert.Equal(t, strings.Repeat("0", 31)+"1", bits[32:64])
	assert.Equal(t, strings.Repeat("1", 33), bits[64:])
}

func TestLowerStateRoundTrip(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)

	state := []tvm.Value{
		word(0), tvm.Int(1700000000), tvm.Int(-1),
		stdAddress(42),
		dataCell(5),
		tvm.Tuple{tvm.Int(10), tvm.Int(-20)},
		tvm.Int(77),
	}
	m := run(t, prog.Function("c7_to_c4").Code, state...)
	assert.Equal(t, 0, m.Depth())
	root := m.Root
	assert.GreaterOrEqual(t, root.Depth(), 1)

	m2 := tvm.New(nil)
	m2.Root = root
	require.NoError(t, m2.Run(prog.Function("c4_to_c7").Code))
	require.Equal(t, len(state), m2.Depth())
	for i, want := range state {
		assert.True(t, tvm.Equal(want, m2.Stack()[i]), "field %d: got %v", i, m2.Stack()[i])
	}
}

func TestLowerStructHelpers(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)

	m := run(t, prog.Function("Point_default").Code)
	assert.True(t, tvm.Equal(tvm.Tuple{tvm.Int(0), tvm.Int(0)}, m.Top()))

	value := tvm.Tuple{tvm.Int(5), tvm.Int(-6)}
	m = run(t, prog.Function("Point_to_builder").Code, value)
	b, ok := m.Top().(*tvm.Builder)
	require.True(t, ok)
	assert.Equal(t, uint(64), b.Bits())

	m = run(t, prog.Function("Point_from_slice").Code, b.End().Slice())
	assert.True(t, tvm.Equal(value, m.Top()))
}

func TestLowerRejectsUnencodableParameter(t *testing.T) {
	c := walletContract()
	c.Functions[2].Visibility = ast.Public
	_, err := codegen.Lower(c, nil, nil)
	require.Error(t, err)
	assert.True(t, codegen.IsInternalError(err))
	assert.Contains(t, err.Error(), "function")
}

func TestLowerSkipsHelpersForUnencodableStruct(t *testing.T) {
	c := walletContract()
	callback := types.Struct("Callback", member("f", &types.OtherType{Name: "function"}))
	c.Structs = append(c.Structs, callback)
	c.Functions[2].Params = []*ast.VariableDeclaration{param("cb", callback)}

	prog, err := codegen.Lower(c, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, prog.Function("Point_to_builder"))
	assert.Nil(t, prog.Function("Callback_default"))
	assert.Nil(t, prog.Function("Callback_to_builder"))
}

func TestEmitListing(t *testing.T) {
	prog, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)
	listing := codegen.Emit(prog)

	assert.True(t, strings.HasPrefix(listing, "; contract Wallet\n"))
	assert.Contains(t, listing, ".fragment move_decode, decode\n; id 0x00001234, 1 -> 2\nmove_decode:\n\tLDU 32\n\tNIP\n")
	assert.Contains(t, listing, "Point_to_builder:\n\tCALLREF {\n\t\tUNTUPLE 2\n\t\tREVERSE 2, 0\n\t\tNEWC\n")
	assert.Contains(t, listing, "\tPOPROOT\n")

	again, err := codegen.Lower(walletContract(), nil, nil)
	require.NoError(t, err)
	if diff := pretty.Compare(listing, codegen.Emit(again)); diff != "" {
		t.Errorf("listing is not deterministic:\n%s", diff)
	}
}

func TestGenerateWritesCodeFile(t *testing.T) {
	dir := t.TempDir()
	res, err := codegen.Generate(walletContract(), &codegen.Options{BuildDir: dir, OutputName: "my.wallet"})
	require.NoError(t, err)
	assert.Equal(t, dir+"/my_wallet.code", res.CodeFile)

	data, err := os.ReadFile(res.CodeFile)
	require.NoError(t, err)
	assert.Equal(t, res.Listing, string(data))
}

func TestGenerateSkipWrite(t *testing.T) {
	res, err := codegen.Generate(walletContract(), &codegen.Options{SkipWrite: true})
	require.NoError(t, err)
	assert.Empty(t, res.CodeFile)
	assert.NotEmpty(t, res.Listing)
	assert.Len(t, res.Program.Functions, 8)
}
