package semantic

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/exp/slog"

	"tvmc/internal/ast"
	"tvmc/internal/codegen"
	"tvmc/internal/config"
	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// Diagnostic severity
// ---------------------------------------------------------------------------

// Severity indicates whether a diagnostic is an error or a warning.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Diagnostic
// ---------------------------------------------------------------------------

// Diagnostic represents a single message produced by the validator.
type Diagnostic struct {
	Message  string
	Pos      ast.Position
	Severity Severity
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// HasErrors returns true if any diagnostic in the slice is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

// Tables are the fixed name tables the intrinsic checks consult.
type Tables struct {
	Prefix            string
	Deprecated        map[string]string // intrinsic => replacement API
	Internal          mapset.Set[string]
	StorageMutating   mapset.Set[string]
	DeployContract    string
	StdlibContract    string
	DefaultABIVersion int
}

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	return TablesFromConfig(config.Default())
}

// TablesFromConfig builds the tables from a loaded configuration.
func TablesFromConfig(cfg *config.Config) *Tables {
	in := cfg.Intrinsics
	return &Tables{
		Prefix:            in.Prefix,
		Deprecated:        in.Deprecated,
		Internal:          mapset.NewThreadUnsafeSet(in.Internal...),
		StorageMutating:   mapset.NewThreadUnsafeSet(in.StorageMutating...),
		DeployContract:    in.DeployContract,
		StdlibContract:    cfg.ABI.StdlibContract,
		DefaultABIVersion: cfg.ABI.DefaultVersion,
	}
}

// IsIntrinsic reports whether name denotes a low-level intrinsic.
func (t *Tables) IsIntrinsic(name string) bool {
	return strings.HasPrefix(name, t.Prefix)
}

// Options configure a validation run. Nil fields take their defaults.
type Options struct {
	Tables *Tables
	Target *codegen.Target
	Logger *slog.Logger
}

// ---------------------------------------------------------------------------
// Diagnostic texts
// ---------------------------------------------------------------------------

const (
	msgInlineSuffix      = "Suffix is deprecated it will be removed from compiler soon."
	msgInlineVisibility  = "Inline function should have private or internal visibility"
	msgNoEncoding        = "Type %s has no ABI encoding."
	msgMappingKey        = "Key type must be any of int<M>/uint<M> types with M from 8 to 256"
	msgStructSDK         = "Struct is not compatible with SDK. Struct must have no nested structs and all members of the struct must fit in one cell."
	msgDuplicateVariable = "Duplicate member variable"
	msgOverloading       = "Function overloading is not supported."
	msgIntrinsicPrivate  = "Intrinsic should have private visibility"
	msgIntrinsicInternal = "Function is internal, use at your own risk."
	msgNonPayable        = `Should have "NonPayable" state mutability`
	msgPure              = `Should have "pure" state mutability`
	msgConstructorID     = "Constructor id argument should be of type uint32."
	msgOnCodeUpgrade     = "Should have follow format: function onCodeUpgrade(...) (internal|private) { /*...*/ }"
	msgAfterSignature    = "Should have follow format: function afterSignatureCheck(TvmSlice restOfMessageBody, TvmCell message) private inline returns (TvmSlice) { /*...*/ }"
	msgAbiHeaderV1       = `"pragma AbiHeader v1" are not compatible with "pragma AbiHeader expire", "pragma AbiHeader time" and "pragma AbiHeader pubkey"`
)

const (
	inlineSuffix          = "_inline"
	onCodeUpgrade         = "onCodeUpgrade"
	afterSignatureCheck   = "afterSignatureCheck"
	sdkCacheSize          = 128
	deployConstructorSlot = 3
)

// ---------------------------------------------------------------------------
// Analyser
// ---------------------------------------------------------------------------

type sdkKey struct {
	keyLength int
	st        *types.StructType
}

// Analyzer holds the state for a single validation pass over one contract.
type Analyzer struct {
	contract    *ast.ContractDefinition
	pragmas     []*ast.PragmaDirective
	tables      *Tables
	target      *codegen.Target
	logger      *slog.Logger
	sdk         *lru.Cache
	diagnostics []Diagnostic
}

// Check validates one contract and returns every diagnostic found. Checks
// report and continue, so a single run surfaces the full set. A non-nil
// error means a broken invariant in the resolved input, not a user error.
func Check(contract *ast.ContractDefinition, pragmas []*ast.PragmaDirective, opts *Options) (diags []Diagnostic, err error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &Analyzer{
		contract: contract,
		pragmas:  pragmas,
		tables:   opts.Tables,
		target:   opts.Target,
		logger:   opts.Logger,
	}
	if a.tables == nil {
		a.tables = DefaultTables()
	}
	if a.target == nil {
		a.target = codegen.DefaultTarget()
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.sdk, err = lru.New(sdkCacheSize); err != nil {
		return nil, errors.Wrap(err, "creating struct compatibility cache")
	}

	err = codegen.Catch(a.run)
	return a.diagnostics, err
}

func (a *Analyzer) run() {
	a.logger.Debug("Validating contract", "contract", a.contract.Name, "functions", len(a.contract.Functions))
	a.checkInlineFunctions()
	a.checkEncodeDecodeParams()
	a.checkIntrinsics()
	a.checkStateVariables()
	a.checkOverrideAndOverload()
	if a.contract.Name != a.tables.StdlibContract {
		a.checkPragma()
	}
	a.checkOnCodeUpgrade()
	a.logger.Debug("Validated contract", "contract", a.contract.Name, "diagnostics", len(a.diagnostics))
}

// ---- helpers ----

func (a *Analyzer) error(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Message:  msg,
		Pos:      pos,
		Severity: Error,
	})
}

func (a *Analyzer) warn(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Message:  msg,
		Pos:      pos,
		Severity: Warning,
	})
}

// ---------------------------------------------------------------------------
// Inline functions
// ---------------------------------------------------------------------------

func (a *Analyzer) checkInlineFunctions() {
	for _, f := range a.contract.Functions {
		suffixed := strings.HasSuffix(f.Name, inlineSuffix)
		if suffixed {
			a.warn(f.Pos, msgInlineSuffix)
		}
		if (suffixed || f.Inline) && f.IsPublic() {
			a.error(f.Pos, msgInlineVisibility)
		}
	}
}

// ---------------------------------------------------------------------------
// Parameter encoding
// ---------------------------------------------------------------------------

func (a *Analyzer) checkEncodeDecodeParams() {
	for _, f := range a.contract.Functions {
		if !f.IsPublic() {
			continue
		}
		for _, p := range f.Params {
			a.checkEncodable(p)
			a.checkParam(p.Type, p, 0)
		}
		for _, r := range f.Returns {
			a.checkEncodable(r)
			a.checkParam(r.Type, r, 0)
		}
	}
}

// checkEncodable reports a value the chain data codec cannot lay out.
func (a *Analyzer) checkEncodable(v *ast.VariableDeclaration) {
	if u := codegen.FindUnencodable(v.Type); u != nil {
		a.error(v.Pos, fmt.Sprintf(msgNoEncoding, u))
	}
}

func (a *Analyzer) checkParam(t types.Type, node ast.Node, keyLength int) {
	switch tt := t.(type) {
	case *types.MappingType:
		bits, ok := types.IntegerKey(tt.Key)
		if !ok {
			a.error(node.GetPos(), msgMappingKey)
		}
		a.checkParam(tt.Value, node, bits)
	case *types.ArrayType:
		if !tt.IsByteArray {
			a.checkParam(tt.Elem, node, a.target.ArrayKeyLength)
		}
	case *types.StructType:
		if keyLength > 0 && !a.compatibleWithSDK(keyLength, tt) {
			a.error(node.GetPos(), msgStructSDK)
		}
	}
}

func (a *Analyzer) compatibleWithSDK(keyLength int, st *types.StructType) bool {
	key := sdkKey{keyLength, st}
	if v, ok := a.sdk.Get(key); ok {
		return v.(bool)
	}
	ok := codegen.IsCompatibleWithSDK(keyLength, st, a.target)
	a.sdk.Add(key, ok)
	return ok
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

func (a *Analyzer) checkIntrinsics() {
	for _, f := range a.contract.Functions {
		if a.tables.IsIntrinsic(f.Name) {
			a.checkIntrinsic(f)
		}
	}
}

func (a *Analyzer) checkIntrinsic(f *ast.FunctionDefinition) {
	if f.Visibility != ast.Private {
		a.error(f.Pos, msgIntrinsicPrivate)
	}
	if repl, ok := a.tables.Deprecated[f.Name]; ok {
		a.warn(f.Pos, "Function is deprecated it will be removed from compiler soon. Use "+repl+" instead.")
	}
	if a.contract.Name != a.tables.StdlibContract && a.tables.Internal.Contains(f.Name) {
		a.warn(f.Pos, msgIntrinsicInternal)
	}

	if a.tables.StorageMutating.Contains(f.Name) {
		if f.Mutability != ast.NonPayable {
			a.error(f.Pos, msgNonPayable)
		}
	} else if f.Mutability != ast.Pure {
		a.error(f.Pos, msgPure)
	}

	if f.Name == a.tables.DeployContract {
		if len(f.Params) <= deployConstructorSlot {
			codegen.Abortf(f.Name, "expected at least %d parameters, got %d", deployConstructorSlot+1, len(f.Params))
		}
		p := f.Params[deployConstructorSlot]
		if _, isCell := p.Type.(*types.CellType); !isCell && !types.IsUint32(p.Type) {
			a.error(p.Pos, msgConstructorID)
		}
	}
}

// ---------------------------------------------------------------------------
// State variables
// ---------------------------------------------------------------------------

// basesBaseFirst walks the linearized chain from the most basic contract to
// the contract itself.
func (a *Analyzer) basesBaseFirst(fn func(c *ast.ContractDefinition)) {
	bases := a.contract.LinearizedBases
	if len(bases) == 0 {
		fn(a.contract)
		return
	}
	for i := len(bases) - 1; i >= 0; i-- {
		fn(bases[i])
	}
}

func (a *Analyzer) checkStateVariables() {
	used := mapset.NewThreadUnsafeSet[string]()
	a.basesBaseFirst(func(c *ast.ContractDefinition) {
		for _, v := range c.StateVariables {
			if used.Contains(v.Name) {
				a.error(v.Pos, msgDuplicateVariable)
			}
			used.Add(v.Name)
			a.checkEncodable(v)
		}
	})
}

// ---------------------------------------------------------------------------
// Override and overload
// ---------------------------------------------------------------------------

func (a *Analyzer) checkOverrideAndOverload() {
	overridden := mapset.NewThreadUnsafeSet[*ast.FunctionDefinition]()
	var functions []*ast.FunctionDefinition

	a.basesBaseFirst(func(c *ast.ContractDefinition) {
		for _, f := range c.Functions {
			if f.Kind != ast.KindFunction || a.tables.IsIntrinsic(f.Name) {
				continue
			}
			if len(f.BaseFunctions) > 0 {
				overridden.Add(f)
				for _, base := range f.BaseFunctions {
					overridden.Add(base)
					if f.FunctionID != base.FunctionID {
						a.error(f.Pos, "Override function should have functionID = "+strconv.FormatUint(uint64(base.FunctionID), 10)+".")
					}
				}
			}
			functions = append(functions, f)
		}
	})

	for j, f := range functions {
		if overridden.Contains(f) {
			continue
		}
		for _, ff := range functions[:j] {
			if !overridden.Contains(ff) && ff.Name == f.Name {
				a.error(f.Pos, msgOverloading)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Pragmas
// ---------------------------------------------------------------------------

// abiVersion returns the version named by "pragma AbiHeader vN", or the
// configured default.
func (a *Analyzer) abiVersion() int {
	for _, p := range a.pragmas {
		if len(p.Tokens) == 2 && p.Tokens[0] == "AbiHeader" && strings.HasPrefix(p.Tokens[1], "v") {
			if v, err := strconv.Atoi(p.Tokens[1][1:]); err == nil {
				return v
			}
		}
	}
	return a.tables.DefaultABIVersion
}

func (a *Analyzer) abiHeader(name string) *ast.PragmaDirective {
	for _, p := range a.pragmas {
		if len(p.Tokens) == 2 && p.Tokens[0] == "AbiHeader" && p.Tokens[1] == name {
			return p
		}
	}
	return nil
}

func (a *Analyzer) checkPragma() {
	if a.abiVersion() == 1 {
		for _, header := range []string{"expire", "time", "pubkey"} {
			if p := a.abiHeader(header); p != nil {
				a.error(p.Pos, msgAbiHeaderV1)
			}
		}
	}

	for _, f := range a.contract.Functions {
		if f.Name != afterSignatureCheck {
			continue
		}
		if len(f.Params) != 2 {
			a.error(f.Pos, msgAfterSignature)
		}
		if len(f.Returns) != 1 {
			a.error(f.Pos, msgAfterSignature)
		}
		if f.IsPublic() {
			a.error(f.Pos, msgAfterSignature)
		}
		if !f.Inline {
			a.error(f.Pos, msgAfterSignature)
		}
	}
}

// ---------------------------------------------------------------------------
// Code upgrade hook
// ---------------------------------------------------------------------------

func (a *Analyzer) checkOnCodeUpgrade() {
	for _, f := range a.contract.Functions {
		if f.Name != onCodeUpgrade {
			continue
		}
		if len(f.Returns) > 0 {
			a.error(f.Returns[0].Pos, msgOnCodeUpgrade)
		}
		if f.IsPublic() {
			a.error(f.Pos, msgOnCodeUpgrade)
		}
	}
}
