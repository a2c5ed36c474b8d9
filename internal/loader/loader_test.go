package loader

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvmc/internal/ast"
	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func expectLoadErrors(t *testing.T, err error, substrs ...string) LoadErrors {
	t.Helper()
	require.Error(t, err)
	var errs LoadErrors
	require.True(t, errors.As(err, &errs), "expected LoadErrors, got %v", err)
	for _, s := range substrs {
		if !strings.Contains(errs.Error(), s) {
			t.Errorf("expected a load error containing %q, got:\n%s", s, errs.Error())
		}
	}
	return errs
}

const baseYAML = `contracts:
  - name: Owned
    state:
      - {name: owner, type: uint256}
    functions:
      - name: value
        visibility: public
        id: 0x11
        returns:
          - {name: "", type: uint64}
`

const walletYAML = `imports:
  - lib/base.yaml
pragmas:
  - AbiHeader v2
  - AbiHeader expire
contracts:
  - name: Wallet
    is: [Owned]
    structs:
      - name: Point
        members:
          - {name: x, type: int32}
          - {name: y, type: int32}
    state:
      - {name: balances, type: "mapping(uint256 => uint128)"}
      - {name: origin, type: Point}
    functions:
      - name: constructor
        visibility: public
      - name: value
        visibility: public
        override: true
        id: 0x11
        returns:
          - {name: "", type: uint64}
      - name: move
        visibility: external
        mutability: pure
        params:
          - {name: p, type: Point}
          - {name: steps, type: uint8}
        returns:
          - {name: "", type: Point}
`

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoadWallet(t *testing.T) {
	dir := writeFiles(t, map[string]string{"wallet.yaml": walletYAML, "lib/base.yaml": baseYAML})
	root := filepath.Join(dir, "wallet.yaml")
	unit, err := Load(root, nil)
	require.NoError(t, err)

	require.Len(t, unit.Contracts, 2)
	owned, wallet := unit.Contracts[0], unit.Contracts[1]
	assert.Equal(t, "Owned", owned.Name)
	assert.Equal(t, "Wallet", wallet.Name)
	assert.Same(t, wallet, unit.Contract("Wallet"))

	require.Len(t, unit.Pragmas, 2)
	assert.Equal(t, []string{"AbiHeader", "expire"}, unit.Pragmas[1].Tokens)
	assert.Equal(t, ast.Position{File: root, Line: 5, Column: 5}, unit.Pragmas[1].Pos)

	require.Len(t, wallet.LinearizedBases, 2)
	assert.Same(t, wallet, wallet.LinearizedBases[0])
	assert.Same(t, owned, wallet.LinearizedBases[1])

	require.Len(t, wallet.Structs, 1)
	point := wallet.Structs[0]
	assert.Equal(t, "Point", point.Name)
	assert.True(t, types.Equal(types.Int(32), point.Members[1].Type))

	assert.True(t, types.Equal(types.Mapping(types.Uint(256), types.Uint(128)), wallet.StateVariables[0].Type))
	assert.Same(t, point, wallet.StateVariables[1].Type)

	require.Len(t, wallet.Functions, 3)
	ctor, value, move := wallet.Functions[0], wallet.Functions[1], wallet.Functions[2]
	assert.Equal(t, ast.KindConstructor, ctor.Kind)
	assert.Equal(t, FunctionID(ctor, 2), ctor.FunctionID)
	assert.Equal(t, ast.Position{File: root, Line: 18, Column: 9}, ctor.Pos)

	assert.Equal(t, uint32(0x11), value.FunctionID)
	require.Len(t, value.BaseFunctions, 1)
	assert.Same(t, owned.Functions[0], value.BaseFunctions[0])
	assert.Same(t, wallet, value.Contract)

	assert.Equal(t, ast.External, move.Visibility)
	assert.Equal(t, ast.Pure, move.Mutability)
	assert.Same(t, point, move.Params[0].Type)
	assert.Equal(t, "move((int32,int32),uint8)((int32,int32))", move.Signature())
}

func TestLoadImportsOnce(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.yaml":    "imports: [base.yaml]\ncontracts:\n  - name: A\n    is: [Owned]\n",
		"b.yaml":    "imports: [base.yaml]\ncontracts:\n  - name: B\n    is: [Owned]\n",
		"root.yaml": "imports: [a.yaml, b.yaml]\ncontracts:\n  - name: C\n    is: [A, B]\n",
		"base.yaml": baseYAML,
	})
	unit, err := Load(filepath.Join(dir, "root.yaml"), nil)
	require.NoError(t, err)

	var names []string
	for _, c := range unit.Contracts {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Owned", "A", "B", "C"}, names)

	c := unit.Contract("C")
	var lin []string
	for _, b := range c.LinearizedBases {
		lin = append(lin, b.Name)
	}
	assert.Equal(t, []string{"C", "B", "A", "Owned"}, lin)
}

func TestLoadCircularImport(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.yaml": "imports: [b.yaml]\n",
		"b.yaml": "imports: [a.yaml]\n",
	})
	_, err := Load(filepath.Join(dir, "a.yaml"), nil)
	errs := expectLoadErrors(t, err, "circular import detected")
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Pos.Line)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	var errs LoadErrors
	assert.False(t, errors.As(err, &errs))
	assert.True(t, os.IsNotExist(errors.Cause(err)))
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestLoadSyntaxError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bad.yaml": "contracts: [\n"})
	_, err := Load(filepath.Join(dir, "bad.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding contract description")
}

func TestLoadCollectsDescriptionErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"c.yaml": `contracts:
  - name: C
    state:
      - {name: x, type: uint512}
      - {name: y, type: Missing}
    functions:
      - name: f
        visibility: protected
        mutability: constant
  - name: C
`})
	_, err := Load(filepath.Join(dir, "c.yaml"), nil)
	errs := expectLoadErrors(t, err,
		"integer width 512 out of range",
		`unknown type "Missing"`,
		`unknown visibility "protected"`,
		`unknown state mutability "constant"`,
		`contract "C" already declared`,
	)
	assert.Len(t, errs, 5)
}

func TestLoadInheritanceErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"c.yaml": `contracts:
  - name: A
    is: [B]
  - name: B
    is: [A]
  - name: D
    is: [Nowhere]
`})
	_, err := Load(filepath.Join(dir, "c.yaml"), nil)
	expectLoadErrors(t, err, "cyclic inheritance", `unknown contract "Nowhere"`)
}

func TestLoadOverrideWithoutBase(t *testing.T) {
	dir := writeFiles(t, map[string]string{"c.yaml": `contracts:
  - name: C
    functions:
      - name: f
        override: true
`})
	_, err := Load(filepath.Join(dir, "c.yaml"), nil)
	expectLoadErrors(t, err, `function "f" is marked override but overrides nothing`)
}

func TestLoadStructErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"c.yaml": `contracts:
  - name: C
    structs:
      - name: Loop
        members:
          - {name: next, type: "tuple(uint8,Loop)"}
      - name: Twice
        members:
          - {name: a, type: bool}
          - {name: a, type: bool}
`})
	_, err := Load(filepath.Join(dir, "c.yaml"), nil)
	expectLoadErrors(t, err, "struct Loop contains itself", `duplicate member "a" in struct Twice`)
}

func TestLoadEmptyFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"empty.yaml": "\n"})
	unit, err := Load(filepath.Join(dir, "empty.yaml"), nil)
	require.NoError(t, err)
	assert.Empty(t, unit.Contracts)
}

// ---------------------------------------------------------------------------
// Function identifiers
// ---------------------------------------------------------------------------

func TestFunctionID(t *testing.T) {
	f := &ast.FunctionDefinition{
		Name:   "transfer",
		Params: []*ast.VariableDeclaration{{Name: "to", Type: types.Address()}, {Name: "v", Type: types.Uint(128)}},
	}
	sum := sha256.Sum256([]byte("transfer(address,uint128)()v2"))
	want := binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff

	assert.Equal(t, want, FunctionID(f, 2))
	assert.Zero(t, FunctionID(f, 2)&(1<<31))
	assert.NotEqual(t, FunctionID(f, 1), FunctionID(f, 2))
}

// ---------------------------------------------------------------------------
// Linearization
// ---------------------------------------------------------------------------

func linearizeAll(t *testing.T, graph map[string][]string, name string) ([]string, error) {
	t.Helper()
	l := newLinearizer(func(n string) ([]string, bool) {
		bases, ok := graph[n]
		return bases, ok
	})
	return l.linearize(name)
}

func TestLinearizeDiamond(t *testing.T) {
	graph := map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
		"D": {"B", "C"},
	}
	got, err := linearizeAll(t, graph, "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "B", "A"}, got)
}

func TestLinearizeImpossible(t *testing.T) {
	graph := map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"B", "A"},
	}
	_, err := linearizeAll(t, graph, "C")
	require.Error(t, err)
	assert.Equal(t, "contract C: linearization of inheritance graph impossible", err.Error())
	assert.NotNil(t, errors.GetReportableStackTrace(err))
}

func TestLinearizeCycle(t *testing.T) {
	_, err := linearizeAll(t, map[string][]string{"A": {"B"}, "B": {"A"}}, "A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic inheritance: A -> B -> A")
}
