package ast

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// Source position
// ---------------------------------------------------------------------------

// Position represents a file/line/column triple in source code (1-based).
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is implemented by every AST node.
type Node interface {
	GetPos() Position
}

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Visibility of a function or state variable.
type Visibility int

const (
	Private Visibility = iota
	Internal
	Public
	External
)

func (v Visibility) String() string {
	switch v {
	case Private:
		return "private"
	case Internal:
		return "internal"
	case Public:
		return "public"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// StateMutability of a function.
type StateMutability int

const (
	NonPayable StateMutability = iota
	Pure
	View
	Payable
)

func (m StateMutability) String() string {
	switch m {
	case NonPayable:
		return "nonpayable"
	case Pure:
		return "pure"
	case View:
		return "view"
	case Payable:
		return "payable"
	default:
		return "unknown"
	}
}

// FunctionKind distinguishes ordinary functions from the special entry points.
type FunctionKind int

const (
	KindFunction FunctionKind = iota
	KindConstructor
	KindReceive
	KindFallback
)

func (k FunctionKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindConstructor:
		return "constructor"
	case KindReceive:
		return "receive"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Source unit (root)
// ---------------------------------------------------------------------------

// SourceUnit is everything the front end resolved for one compilation.
type SourceUnit struct {
	Pragmas   []*PragmaDirective
	Contracts []*ContractDefinition
	Pos       Position
}

func (n *SourceUnit) GetPos() Position { return n.Pos }

// Contract returns the contract with the given name, or nil.
func (n *SourceUnit) Contract(name string) *ContractDefinition {
	for _, c := range n.Contracts {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PragmaDirective is a pragma split into tokens, e.g. ["AbiHeader", "v1"].
type PragmaDirective struct {
	Tokens []string
	Pos    Position
}

func (n *PragmaDirective) GetPos() Position { return n.Pos }

func (n *PragmaDirective) String() string {
	return "pragma " + strings.Join(n.Tokens, " ")
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// ContractDefinition is a contract with its inheritance already linearized.
type ContractDefinition struct {
	Name           string
	StateVariables []*VariableDeclaration
	Functions      []*FunctionDefinition
	Structs        []*types.StructType

	// LinearizedBases lists this contract first and its most basic ancestor
	// last, as produced by C3 linearization.
	LinearizedBases []*ContractDefinition

	Pos Position
}

func (n *ContractDefinition) GetPos() Position { return n.Pos }

// VariableDeclaration is a state variable, parameter or return parameter.
type VariableDeclaration struct {
	Name string
	Type types.Type
	Pos  Position
}

func (n *VariableDeclaration) GetPos() Position { return n.Pos }

// FunctionDefinition is a function defined directly in a contract.
type FunctionDefinition struct {
	Name       string
	Kind       FunctionKind
	Params     []*VariableDeclaration
	Returns    []*VariableDeclaration
	Visibility Visibility
	Mutability StateMutability
	Inline     bool
	FunctionID uint32

	// BaseFunctions holds the functions this one overrides, filled in by
	// the front end when the function is declared with override.
	BaseFunctions []*FunctionDefinition

	Contract *ContractDefinition
	Pos      Position
}

func (n *FunctionDefinition) GetPos() Position { return n.Pos }

// IsPublic reports whether the function is callable from outside the
// contract.
func (n *FunctionDefinition) IsPublic() bool {
	return n.Visibility == Public || n.Visibility == External
}

// Signature returns the ABI signature string name(params)(returns).
func (n *FunctionDefinition) Signature() string {
	params := make([]string, len(n.Params))
	for i, p := range n.Params {
		params[i] = types.CanonicalName(p.Type)
	}
	rets := make([]string, len(n.Returns))
	for i, r := range n.Returns {
		rets[i] = types.CanonicalName(r.Type)
	}
	return fmt.Sprintf("%s(%s)(%s)", n.Name, strings.Join(params, ","), strings.Join(rets, ","))
}

// ---------------------------------------------------------------------------
// Debug helpers
// ---------------------------------------------------------------------------

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
	SortKeys:                true,
	MaxDepth:                6,
}

// DebugString returns a multi-line dump of the source unit. Back-pointers
// (Contract, LinearizedBases, BaseFunctions) are summarized by name so the
// dump stays acyclic.
func DebugString(unit *SourceUnit) string {
	var sb strings.Builder
	for _, p := range unit.Pragmas {
		sb.WriteString(p.String())
		sb.WriteByte('\n')
	}
	for _, c := range unit.Contracts {
		bases := make([]string, len(c.LinearizedBases))
		for i, b := range c.LinearizedBases {
			bases[i] = b.Name
		}
		fmt.Fprintf(&sb, "contract %s (linearized: %s) @ %s\n", c.Name, strings.Join(bases, " -> "), c.Pos)
		for _, v := range c.StateVariables {
			fmt.Fprintf(&sb, "  var %s %s\n", v.Name, v.Type)
		}
		for _, s := range c.Structs {
			dump := strings.TrimRight(dumpConfig.Sdump(s), "\n")
			for _, line := range strings.Split(dump, "\n") {
				sb.WriteString("  ")
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
		}
		for _, f := range c.Functions {
			overrides := make([]string, len(f.BaseFunctions))
			for i, b := range f.BaseFunctions {
				overrides[i] = b.Name
				if b.Contract != nil {
					overrides[i] = b.Contract.Name + "." + b.Name
				}
			}
			fmt.Fprintf(&sb, "  %s %s id=0x%08x %s %s inline=%t overrides=[%s]\n",
				f.Kind, f.Signature(), f.FunctionID, f.Visibility, f.Mutability, f.Inline,
				strings.Join(overrides, ","))
		}
	}
	return sb.String()
}
