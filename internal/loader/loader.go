package loader

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"

	"tvmc/internal/ast"
	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// LoadError represents a problem in a contract description.
// ---------------------------------------------------------------------------

type LoadError struct {
	Message string
	Pos     ast.Position
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// LoadErrors is every problem found in one load.
type LoadErrors []*LoadError

func (es LoadErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// ---------------------------------------------------------------------------
// Loader reads YAML contract descriptions, handling:
//   - Imports relative to the importing file's directory
//   - Circular import detection
//   - Files imported more than once (loaded once)
//   - Duplicate contract and struct names across all files
//   - C3 linearization, override bases and function identifiers
// ---------------------------------------------------------------------------

type Loader struct {
	logger *slog.Logger

	// resolved tracks which absolute paths have already been read.
	resolved map[string]bool

	// importStack tracks the current chain of imports for circular detection.
	importStack []string

	// files is every loaded file, imports before importers.
	files []*loadedFile

	errors LoadErrors
}

type loadedFile struct {
	path string
	desc *fileDesc
}

// New creates a loader. A nil logger discards.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{logger: logger, resolved: make(map[string]bool)}
}

// Load reads the description at path and everything it imports. I/O and
// YAML syntax errors are returned wrapped; description problems are
// collected and returned together as LoadErrors.
func Load(path string, logger *slog.Logger) (*ast.SourceUnit, error) {
	return New(logger).Load(path)
}

// Load reads the description at path and everything it imports.
func (l *Loader) Load(path string) (*ast.SourceUnit, error) {
	if err := l.readFile(path, ast.Position{}); err != nil {
		return nil, err
	}
	if len(l.errors) > 0 {
		return nil, l.errors
	}
	unit := l.build()
	if len(l.errors) > 0 {
		return nil, l.errors
	}
	return unit, nil
}

// readFile loads one file and, depth-first, its imports.
func (l *Loader) readFile(path string, from ast.Position) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", path)
	}

	for _, p := range l.importStack {
		if p == abs {
			chain := append(append([]string(nil), l.importStack...), abs)
			l.addError(from, fmt.Sprintf("circular import detected: %s", strings.Join(chain, " -> ")))
			return nil
		}
	}
	if l.resolved[abs] {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading contract description %s", path)
	}
	desc := new(fileDesc)
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, desc); err != nil {
			return errors.Wrapf(err, "decoding contract description %s", path)
		}
	}
	l.resolved[abs] = true
	l.logger.Debug("Read contract description", "file", path, "contracts", len(desc.Contracts), "imports", len(desc.Imports))

	l.importStack = append(l.importStack, abs)
	for _, imp := range desc.Imports {
		next := filepath.Join(filepath.Dir(path), filepath.FromSlash(imp.Path))
		if err := l.readFile(next, position(path, imp.at)); err != nil {
			return err
		}
	}
	l.importStack = l.importStack[:len(l.importStack)-1]

	l.files = append(l.files, &loadedFile{path: path, desc: desc})
	return nil
}

func (l *Loader) addError(pos ast.Position, msg string) {
	l.errors = append(l.errors, &LoadError{Message: msg, Pos: pos})
}

func position(file string, m mark) ast.Position {
	return ast.Position{File: file, Line: m.line, Column: m.column}
}

// ---------------------------------------------------------------------------
// Building the source unit
// ---------------------------------------------------------------------------

type contractEntry struct {
	file string
	desc *contractDesc
	def  *ast.ContractDefinition
	fns  []*functionDesc
}

type structEntry struct {
	file string
	desc *structDesc
	typ  *types.StructType
}

func (l *Loader) build() *ast.SourceUnit {
	root := l.files[len(l.files)-1]
	unit := &ast.SourceUnit{Pos: ast.Position{File: root.path, Line: 1, Column: 1}}
	for _, pd := range root.desc.Pragmas {
		unit.Pragmas = append(unit.Pragmas, &ast.PragmaDirective{
			Tokens: strings.Fields(pd.Text),
			Pos:    position(root.path, pd.at),
		})
	}
	abiVersion := abiVersionOf(unit.Pragmas)

	// Declare every contract and struct first so that types and bases can
	// refer to names from any file.
	contracts := make(map[string]*contractEntry)
	var order []*contractEntry
	structs := make(map[string]*structEntry)
	var structOrder []*structEntry
	for _, f := range l.files {
		for i := range f.desc.Contracts {
			cd := &f.desc.Contracts[i]
			pos := position(f.path, cd.at)
			if cd.Name == "" {
				l.addError(pos, "contract without a name")
				continue
			}
			if prev, ok := contracts[cd.Name]; ok {
				l.addError(pos, fmt.Sprintf("contract %q already declared at %s", cd.Name, prev.def.Pos))
				continue
			}
			e := &contractEntry{file: f.path, desc: cd, def: &ast.ContractDefinition{Name: cd.Name, Pos: pos}}
			contracts[cd.Name] = e
			order = append(order, e)

			for j := range cd.Structs {
				sd := &cd.Structs[j]
				spos := position(f.path, sd.at)
				if prev, ok := structs[sd.Name]; ok {
					l.addError(spos, fmt.Sprintf("struct %q already declared at %s", sd.Name, position(prev.file, prev.desc.at)))
					continue
				}
				se := &structEntry{file: f.path, desc: sd, typ: &types.StructType{Name: sd.Name}}
				structs[sd.Name] = se
				structOrder = append(structOrder, se)
				e.def.Structs = append(e.def.Structs, se.typ)
			}
		}
	}

	lookup := func(name string) *types.StructType {
		if se, ok := structs[name]; ok {
			return se.typ
		}
		return nil
	}
	for _, se := range structOrder {
		l.buildStruct(se, lookup)
	}
	l.checkRecursiveStructs(structOrder)

	for _, e := range order {
		l.buildMembers(e, lookup, abiVersion)
	}

	lin := newLinearizer(func(name string) ([]string, bool) {
		e, ok := contracts[name]
		if !ok {
			return nil, false
		}
		return e.desc.Is, true
	})
	for _, e := range order {
		names, err := lin.linearize(e.def.Name)
		if err != nil {
			l.addError(e.def.Pos, err.Error())
			continue
		}
		for _, n := range names {
			e.def.LinearizedBases = append(e.def.LinearizedBases, contracts[n].def)
		}
	}
	for _, e := range order {
		if len(e.def.LinearizedBases) > 0 {
			l.resolveOverrides(e, contracts)
		}
		unit.Contracts = append(unit.Contracts, e.def)
	}
	return unit
}

func (l *Loader) parseType(file string, v *varDesc, lookup StructLookup) types.Type {
	t, err := ParseType(v.Type, lookup)
	if err != nil {
		l.addError(position(file, v.at), err.Error())
		return &types.OtherType{Name: v.Type}
	}
	return t
}

func (l *Loader) buildStruct(se *structEntry, lookup StructLookup) {
	seen := make(map[string]bool)
	for i := range se.desc.Members {
		m := &se.desc.Members[i]
		if seen[m.Name] {
			l.addError(position(se.file, m.at), fmt.Sprintf("duplicate member %q in struct %s", m.Name, se.desc.Name))
			continue
		}
		seen[m.Name] = true
		se.typ.Members = append(se.typ.Members, types.Member{Name: m.Name, Type: l.parseType(se.file, m, lookup)})
	}
}

// checkRecursiveStructs rejects structs that contain themselves by value.
func (l *Loader) checkRecursiveStructs(all []*structEntry) {
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[*types.StructType]int)
	var visit func(t types.Type) bool
	visit = func(t types.Type) bool {
		switch x := t.(type) {
		case *types.StructType:
			switch state[x] {
			case active:
				return false
			case finished:
				return true
			}
			state[x] = active
			for _, m := range x.Members {
				if !visit(m.Type) {
					return false
				}
			}
			state[x] = finished
		case *types.TupleType:
			for _, c := range x.Components {
				if !visit(c) {
					return false
				}
			}
		}
		return true
	}
	for _, se := range all {
		if state[se.typ] == unvisited && !visit(se.typ) {
			l.addError(position(se.file, se.desc.at), fmt.Sprintf("struct %s contains itself", se.desc.Name))
			return
		}
	}
}

func (l *Loader) buildMembers(e *contractEntry, lookup StructLookup, abiVersion int) {
	for i := range e.desc.State {
		v := &e.desc.State[i]
		e.def.StateVariables = append(e.def.StateVariables, &ast.VariableDeclaration{
			Name: v.Name,
			Type: l.parseType(e.file, v, lookup),
			Pos:  position(e.file, v.at),
		})
	}
	for i := range e.desc.Functions {
		fd := &e.desc.Functions[i]
		f := l.buildFunction(e.file, fd, lookup)
		f.Contract = e.def
		if fd.ID != nil {
			f.FunctionID = *fd.ID
		} else {
			f.FunctionID = FunctionID(f, abiVersion)
		}
		e.def.Functions = append(e.def.Functions, f)
		e.fns = append(e.fns, fd)
	}
}

func (l *Loader) buildFunction(file string, fd *functionDesc, lookup StructLookup) *ast.FunctionDefinition {
	pos := position(file, fd.at)
	f := &ast.FunctionDefinition{Name: fd.Name, Inline: fd.Inline, Pos: pos}

	var ok bool
	kind := fd.Kind
	if kind == "" {
		kind = fd.Name
	}
	if f.Kind, ok = functionKinds[kind]; !ok {
		if fd.Kind != "" {
			l.addError(pos, fmt.Sprintf("unknown function kind %q", fd.Kind))
		}
		f.Kind = ast.KindFunction
	}
	if f.Visibility, ok = visibilities[fd.Visibility]; !ok {
		l.addError(pos, fmt.Sprintf("unknown visibility %q", fd.Visibility))
	}
	if f.Mutability, ok = mutabilities[fd.Mutability]; !ok {
		l.addError(pos, fmt.Sprintf("unknown state mutability %q", fd.Mutability))
	}
	for i := range fd.Params {
		p := &fd.Params[i]
		f.Params = append(f.Params, &ast.VariableDeclaration{Name: p.Name, Type: l.parseType(file, p, lookup), Pos: position(file, p.at)})
	}
	for i := range fd.Returns {
		r := &fd.Returns[i]
		f.Returns = append(f.Returns, &ast.VariableDeclaration{Name: r.Name, Type: l.parseType(file, r, lookup), Pos: position(file, r.at)})
	}
	return f
}

var functionKinds = map[string]ast.FunctionKind{
	"function":    ast.KindFunction,
	"constructor": ast.KindConstructor,
	"receive":     ast.KindReceive,
	"fallback":    ast.KindFallback,
}

var visibilities = map[string]ast.Visibility{
	"":         ast.Public,
	"private":  ast.Private,
	"internal": ast.Internal,
	"public":   ast.Public,
	"external": ast.External,
}

var mutabilities = map[string]ast.StateMutability{
	"":           ast.NonPayable,
	"nonpayable": ast.NonPayable,
	"pure":       ast.Pure,
	"view":       ast.View,
	"payable":    ast.Payable,
}

// resolveOverrides links each function marked override to the nearest
// function of the same name in every direct base's linearization.
func (l *Loader) resolveOverrides(e *contractEntry, contracts map[string]*contractEntry) {
	for i, fd := range e.fns {
		f := e.def.Functions[i]
		if !fd.Override {
			continue
		}
		seen := make(map[*ast.FunctionDefinition]bool)
		for _, baseName := range e.desc.Is {
			base, ok := contracts[baseName]
			if !ok {
				continue
			}
			if bf := nearestFunction(base.def, f.Name); bf != nil && !seen[bf] {
				seen[bf] = true
				f.BaseFunctions = append(f.BaseFunctions, bf)
			}
		}
		if len(f.BaseFunctions) == 0 {
			l.addError(f.Pos, fmt.Sprintf("function %q is marked override but overrides nothing", f.Name))
		}
	}
}

func nearestFunction(c *ast.ContractDefinition, name string) *ast.FunctionDefinition {
	for _, b := range c.LinearizedBases {
		for _, f := range b.Functions {
			if f.Name == name && f.Kind == ast.KindFunction {
				return f
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Function identifiers
// ---------------------------------------------------------------------------

// FunctionID derives the identifier of a function that declares none: the
// first four bytes of SHA-256 over its signature and ABI version, with the
// top bit cleared for answer identifiers.
func FunctionID(f *ast.FunctionDefinition, abiVersion int) uint32 {
	sum := sha256.Sum256([]byte(f.Signature() + "v" + strconv.Itoa(abiVersion)))
	return binary.BigEndian.Uint32(sum[:4]) &^ (1 << 31)
}

const defaultABIVersion = 2

func abiVersionOf(pragmas []*ast.PragmaDirective) int {
	for _, p := range pragmas {
		if len(p.Tokens) == 2 && p.Tokens[0] == "AbiHeader" && strings.HasPrefix(p.Tokens[1], "v") {
			if v, err := strconv.Atoi(p.Tokens[1][1:]); err == nil {
				return v
			}
		}
	}
	return defaultABIVersion
}
