package codegen

import (
	"strconv"

	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// StructCompiler
//
// A struct or tuple lives on the stack as one tuple whose slots follow
// declaration order. The compiler converts between that tuple, a builder
// and a slice, and builds it from constructor arguments.
// ---------------------------------------------------------------------------

// StructCompiler emits struct operations through a StackPusher.
type StructCompiler struct {
	p     *StackPusher
	name  string
	names []string
	types []types.Type
}

// NewStructCompiler compiles operations on a declared struct.
func NewStructCompiler(p *StackPusher, st *types.StructType) *StructCompiler {
	names := make([]string, len(st.Members))
	ts := make([]types.Type, len(st.Members))
	for i, m := range st.Members {
		names[i] = m.Name
		ts[i] = m.Type
	}
	return NewMemberCompiler(p, st.String(), names, ts)
}

// NewTupleCompiler compiles operations on a tuple. Components are named by
// their 0-based index.
func NewTupleCompiler(p *StackPusher, tt *types.TupleType) *StructCompiler {
	names := make([]string, len(tt.Components))
	for i := range tt.Components {
		names[i] = strconv.Itoa(i)
	}
	return NewMemberCompiler(p, tt.String(), names, tt.Components)
}

// NewMemberCompiler compiles operations on an explicit member list.
func NewMemberCompiler(p *StackPusher, name string, names []string, ts []types.Type) *StructCompiler {
	invariant(len(names) == len(ts), name, "%d member names for %d member types", len(names), len(ts))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		invariant(!seen[n], name, "duplicate member %q", n)
		seen[n] = true
	}
	return &StructCompiler{p: p, name: name, names: names, types: ts}
}

// Len returns the number of members.
func (c *StructCompiler) Len() int { return len(c.names) }

func (c *StructCompiler) index(name string) int {
	for i, n := range c.names {
		if n == name {
			return i
		}
	}
	Abortf(c.name, "no member named %q", name)
	return -1
}

// CreateDefaultStruct pushes a struct with every member at its default.
// With resultIsBuilder the struct is pushed as a builder instead.
func (c *StructCompiler) CreateDefaultStruct(resultIsBuilder bool) {
	ss := c.p.Depth()
	for _, t := range c.types {
		c.p.PushDefaultValue(t)
	}
	c.p.Tuple(len(c.types))
	if resultIsBuilder {
		c.TupleToBuilder()
	}
	c.p.EnsureDepth(ss+1, c.name+" default")
}

// StructConstructor builds the struct tuple from constructor arguments.
// pushParam(i, t) must push the i-th provided argument converted to t.
//
// Without names, arguments are positional and mapping members are skipped:
// they always start empty. With names, every non-mapping member must be
// named exactly once and mapping members must not be named.
func (c *StructCompiler) StructConstructor(names []string, pushParam func(arg int, t types.Type)) {
	ss := c.p.Depth()
	arg := 0
	for i, t := range c.types {
		_, isMapping := t.(*types.MappingType)
		if names == nil {
			if isMapping {
				c.p.PushDefaultValue(t)
				continue
			}
			c.pushArg(arg, t, pushParam)
			arg++
			continue
		}
		at := -1
		for j, n := range names {
			if n == c.names[i] {
				at = j
				break
			}
		}
		if isMapping {
			invariant(at < 0, c.name, "mapping member %q given by name", c.names[i])
			c.p.PushDefaultValue(t)
			continue
		}
		invariant(at >= 0, c.name, "member %q not given by name", c.names[i])
		c.pushArg(at, t, pushParam)
	}
	c.p.Tuple(len(c.types))
	c.p.EnsureDepth(ss+1, c.name+" constructor")
}

func (c *StructCompiler) pushArg(arg int, t types.Type, pushParam func(int, types.Type)) {
	ss := c.p.Depth()
	pushParam(arg, t)
	c.p.EnsureDepth(ss+1, c.name+" constructor argument "+strconv.Itoa(arg))
}

// PushMember replaces the struct tuple on top with the named member.
func (c *StructCompiler) PushMember(name string) {
	c.p.Index(c.index(name))
}

// SetMember pops a value and the struct tuple under it and pushes a copy of
// the tuple with the named member replaced.
func (c *StructCompiler) SetMember(name string) {
	c.p.SetIndex(c.index(name))
}

// TupleToBuilder turns the struct tuple on top into a builder holding its
// encoding. The conversion runs as a separate continuation.
func (c *StructCompiler) TupleToBuilder() {
	ss := c.p.Depth()
	n := len(c.types)
	c.p.StartContinuation()
	c.p.Untuple(n)
	if n >= 2 {
		c.p.Reverse(n, 0)
	}
	c.p.NewBuilder()
	pos := newPosition(c.p.target, 0, c.types, c.names, c.p.target.CellCapacity())
	NewChainDataEncoder(c.p).EncodeParameters(c.types, pos)
	c.p.CallRef(1, 1)
	c.p.EnsureDepth(ss, c.name+" to builder")
}

// ConvertSliceToTuple reads the struct off the slice on top, checks the
// slice is exhausted and pushes the struct tuple.
func (c *StructCompiler) ConvertSliceToTuple() {
	ss := c.p.Depth()
	pos := newPosition(c.p.target, 0, c.types, c.names, c.p.target.CellCapacity())
	NewChainDataDecoder(c.p).DecodeParameters(c.types, pos)
	c.p.EndSlice()
	c.p.Tuple(len(c.types))
	c.p.EnsureDepth(ss, c.name+" from slice")
}

// IsCompatibleWithSDK reports whether st can be a mapping value under a
// keyLength-bit key: no member is itself a struct and all members fit in
// the dictionary leaf after the key.
func IsCompatibleWithSDK(keyLength int, st *types.StructType, target *Target) bool {
	ts := make([]types.Type, len(st.Members))
	for i, m := range st.Members {
		switch m.Type.(type) {
		case *types.StructType, *types.TupleType:
			return false
		}
		ts[i] = m.Type
	}
	return fitsOneCell(target, keyLength, ts, target.DictValueCapacity())
}
