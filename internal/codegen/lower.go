package codegen

import (
	"io"
	"strconv"

	"golang.org/x/exp/slog"

	"tvmc/internal/ast"
	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// Program: the lowered form of one contract
// ---------------------------------------------------------------------------

// FragmentKind says what a lowered fragment does.
type FragmentKind int

const (
	FragDecodeParams FragmentKind = iota // message body slice -> parameters
	FragEncodeReturns                    // return values -> answer cell
	FragLoadState                        // c4 -> header and state variables
	FragStoreState                       // header and state variables -> c4
	FragStructDefault                    // -> default struct tuple
	FragStructToBuilder                  // struct tuple -> builder
	FragStructFromSlice                  // slice -> struct tuple
)

func (k FragmentKind) String() string {
	switch k {
	case FragDecodeParams:
		return "decode"
	case FragEncodeReturns:
		return "encode"
	case FragLoadState:
		return "load_state"
	case FragStoreState:
		return "store_state"
	case FragStructDefault:
		return "default"
	case FragStructToBuilder:
		return "to_builder"
	case FragStructFromSlice:
		return "from_slice"
	default:
		return "unknown"
	}
}

// Function is one independently callable code fragment. Args entries are
// consumed from the stack and Rets entries left on it.
type Function struct {
	Name string
	Kind FragmentKind
	ID   uint32 // function identifier for decode/encode fragments
	Args int
	Rets int
	Code []Instr
}

// Program is the lowered contract.
type Program struct {
	Contract  string
	Functions []*Function
}

// Function returns the fragment with the given name, or nil.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// StateHeader is the fixed prefix of persistent data: the owner public key,
// the replay-protection timestamp and the constructor-called flag.
var StateHeader = []types.Member{
	{Name: "_pubkey", Type: types.Uint(256)},
	{Name: "_timestamp", Type: types.Uint(64)},
	{Name: "_constructorFlag", Type: types.Bool()},
}

// functionIDBits is the width of the function identifier prefix of a
// message body.
const functionIDBits = 32

// answerIDMask marks the identifier of an answer message.
const answerIDMask = uint32(1) << 31

// ---------------------------------------------------------------------------
// Lowerer
// ---------------------------------------------------------------------------

// Lowerer turns a validated contract into fragments.
type Lowerer struct {
	target  *Target
	logger  *slog.Logger
	prog    *Program
	structs []*types.StructType
	seen    map[string]bool
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Lower lowers contract. Broken invariants are returned as an
// *InternalError; the contract must have passed validation.
func Lower(contract *ast.ContractDefinition, target *Target, logger *slog.Logger) (prog *Program, err error) {
	if target == nil {
		target = DefaultTarget()
	}
	if logger == nil {
		logger = discardLogger()
	}
	l := &Lowerer{
		target: target,
		logger: logger.With("contract", contract.Name),
		prog:   &Program{Contract: contract.Name},
		seen:   map[string]bool{},
	}
	err = Catch(func() { l.lowerContract(contract) })
	if err != nil {
		return nil, err
	}
	return l.prog, nil
}

func (l *Lowerer) lowerContract(c *ast.ContractDefinition) {
	for _, st := range c.Structs {
		l.collect(st)
	}

	for _, fn := range c.Functions {
		if !fn.IsPublic() {
			continue
		}
		for _, p := range fn.Params {
			l.collect(p.Type)
		}
		for _, r := range fn.Returns {
			l.collect(r.Type)
		}
		l.lowerDecode(fn)
		if fn.Kind == ast.KindFunction {
			l.lowerEncode(fn)
		}
	}

	vars := StateMembers(c)
	for _, m := range vars {
		l.collect(m.Type)
	}
	l.lowerLoadState(vars)
	l.lowerStoreState(vars)

	for _, st := range l.structs {
		if u := FindUnencodable(st); u != nil {
			l.logger.Debug("Skipping struct helpers", "struct", st.Name, "unencodable", u.String())
			continue
		}
		l.lowerStruct(st)
	}
	l.logger.Debug("Lowered contract", "fragments", len(l.prog.Functions), "structs", len(l.structs))
}

// collect records every struct reachable from t, nested ones first.
func (l *Lowerer) collect(t types.Type) {
	switch x := t.(type) {
	case *types.StructType:
		if l.seen[x.Name] {
			return
		}
		l.seen[x.Name] = true
		for _, m := range x.Members {
			l.collect(m.Type)
		}
		l.structs = append(l.structs, x)
	case *types.TupleType:
		for _, c := range x.Components {
			l.collect(c)
		}
	case *types.MappingType:
		l.collect(x.Value)
	case *types.ArrayType:
		if !x.IsByteArray {
			l.collect(x.Elem)
		}
	}
}

func (l *Lowerer) add(f *Function) {
	l.logger.Debug("Lowered fragment", "name", f.Name, "kind", f.Kind, "instrs", len(f.Code))
	l.prog.Functions = append(l.prog.Functions, f)
}

func fragmentName(fn *ast.FunctionDefinition) string {
	if fn.Kind == ast.KindFunction {
		return fn.Name
	}
	return fn.Kind.String()
}

func paramTypes(vs []*ast.VariableDeclaration) ([]types.Type, []string) {
	ts := make([]types.Type, len(vs))
	names := make([]string, len(vs))
	for i, v := range vs {
		ts[i] = v.Type
		names[i] = v.Name
		if names[i] == "" {
			names[i] = "_" + strconv.Itoa(i)
		}
	}
	return ts, names
}

// lowerDecode emits (body -- p1 .. pn). The body starts with the function
// identifier, which is skipped.
func (l *Lowerer) lowerDecode(fn *ast.FunctionDefinition) {
	ts, names := paramTypes(fn.Params)
	p := NewStackPusher(l.target, 1)
	p.op(OpLdU, functionIDBits)
	p.Nip()
	pos := newPosition(l.target, functionIDBits, ts, names, l.target.CellCapacity())
	NewChainDataDecoder(p).DecodeParameters(ts, pos)
	p.EndSlice()
	p.EnsureDepth(len(ts), fragmentName(fn)+" decode")
	l.add(&Function{
		Name: fragmentName(fn) + "_decode",
		Kind: FragDecodeParams,
		ID:   fn.FunctionID,
		Args: 1,
		Rets: len(ts),
		Code: p.Code(),
	})
}

// lowerEncode emits (r1 .. rn -- answer) where answer is a cell carrying
// the answer identifier followed by the return values.
func (l *Lowerer) lowerEncode(fn *ast.FunctionDefinition) {
	ts, names := paramTypes(fn.Returns)
	n := len(ts)
	id := fn.FunctionID | answerIDMask
	p := NewStackPusher(l.target, n)
	if n >= 2 {
		p.Reverse(n, 0)
	}
	p.NewBuilder()
	p.PushSmallInt(int64(id))
	p.Swap()
	p.op(OpStU, functionIDBits)
	pos := newPosition(l.target, functionIDBits, ts, names, l.target.CellCapacity())
	NewChainDataEncoder(p).EncodeParameters(ts, pos)
	p.EndBuilder()
	p.EnsureDepth(1, fn.Name+" encode")
	l.add(&Function{
		Name: fragmentName(fn) + "_encode",
		Kind: FragEncodeReturns,
		ID:   id,
		Args: n,
		Rets: 1,
		Code: p.Code(),
	})
}

// StateMembers lists the persistent fields: the header, then the state
// variables of every base, most basic contract first.
func StateMembers(c *ast.ContractDefinition) []types.Member {
	out := append([]types.Member(nil), StateHeader...)
	bases := c.LinearizedBases
	if len(bases) == 0 {
		bases = []*ast.ContractDefinition{c}
	}
	for i := len(bases) - 1; i >= 0; i-- {
		for _, v := range bases[i].StateVariables {
			out = append(out, types.Member{Name: v.Name, Type: v.Type})
		}
	}
	return out
}

func splitMembers(ms []types.Member) ([]types.Type, []string) {
	ts := make([]types.Type, len(ms))
	names := make([]string, len(ms))
	for i, m := range ms {
		ts[i] = m.Type
		names[i] = m.Name
	}
	return ts, names
}

// lowerLoadState emits ( -- header... vars...).
func (l *Lowerer) lowerLoadState(vars []types.Member) {
	ts, names := splitMembers(vars)
	p := NewStackPusher(l.target, 0)
	p.PushRoot()
	p.ToSlice()
	pos := newPosition(l.target, 0, ts, names, l.target.CellCapacity())
	NewChainDataDecoder(p).DecodeParameters(ts, pos)
	p.EndSlice()
	p.EnsureDepth(len(ts), "c4_to_c7")
	l.logger.Debug("Laid out persistent data", "fields", len(ts), "cells", pos.Cells())
	l.add(&Function{Name: "c4_to_c7", Kind: FragLoadState, Args: 0, Rets: len(ts), Code: p.Code()})
}

// lowerStoreState emits (header... vars... -- ).
func (l *Lowerer) lowerStoreState(vars []types.Member) {
	ts, names := splitMembers(vars)
	n := len(ts)
	p := NewStackPusher(l.target, n)
	if n >= 2 {
		p.Reverse(n, 0)
	}
	p.NewBuilder()
	pos := newPosition(l.target, 0, ts, names, l.target.CellCapacity())
	NewChainDataEncoder(p).EncodeParameters(ts, pos)
	p.EndBuilder()
	p.PopRoot()
	p.EnsureDepth(0, "c7_to_c4")
	l.add(&Function{Name: "c7_to_c4", Kind: FragStoreState, Args: n, Rets: 0, Code: p.Code()})
}

func (l *Lowerer) lowerStruct(st *types.StructType) {
	p := NewStackPusher(l.target, 0)
	NewStructCompiler(p, st).CreateDefaultStruct(false)
	l.add(&Function{Name: st.Name + "_default", Kind: FragStructDefault, Args: 0, Rets: 1, Code: p.Code()})

	p = NewStackPusher(l.target, 1)
	NewStructCompiler(p, st).TupleToBuilder()
	l.add(&Function{Name: st.Name + "_to_builder", Kind: FragStructToBuilder, Args: 1, Rets: 1, Code: p.Code()})

	p = NewStackPusher(l.target, 1)
	NewStructCompiler(p, st).ConvertSliceToTuple()
	l.add(&Function{Name: st.Name + "_from_slice", Kind: FragStructFromSlice, Args: 1, Rets: 1, Code: p.Code()})
}
