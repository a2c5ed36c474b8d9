package codegen

import (
	"strconv"

	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// EncodePosition: cell-capacity tracking for chained encoding
//
// Structs and tuples are flattened into their leaf members up front, so the
// position knows whether more leaves follow and can keep one reference free
// for the link to the next cell. Encoder and decoder walk the same leaves in
// the same order, which makes cell boundaries a pure function of the type
// list and the starting offset.
// ---------------------------------------------------------------------------

// arrayLengthBits is the width of the element count stored ahead of an
// array's dictionary.
const arrayLengthBits = 32

type leaf struct {
	path string
	typ  types.Type
	bits int
	refs int
}

// EncodePosition tracks how much of the current output cell is used.
type EncodePosition struct {
	capacity Capacity
	bits     int
	refs     int
	cells    int
	leaves   []leaf
	next     int
}

// NewEncodePosition starts a position offset bits into the first cell of
// an ordinary cell chain carrying ts.
func NewEncodePosition(target *Target, offset int, ts []types.Type) *EncodePosition {
	return newPosition(target, offset, ts, nil, target.CellCapacity())
}

func newPosition(target *Target, offset int, ts []types.Type, names []string, capacity Capacity) *EncodePosition {
	pos := &EncodePosition{capacity: capacity, bits: offset, cells: 1}
	invariant(offset >= 0 && offset <= capacity.Bits, "encode position", "offset %d outside a cell of %d bits", offset, capacity.Bits)
	for i, t := range ts {
		name := strconv.Itoa(i)
		if names != nil {
			name = names[i]
		}
		pos.leaves = flattenLeaves(target, name, t, pos.leaves)
	}
	return pos
}

// flattenLeaves appends the wire leaves of t in encoding order.
func flattenLeaves(target *Target, path string, t types.Type, out []leaf) []leaf {
	switch x := t.(type) {
	case *types.StructType:
		for _, m := range x.Members {
			out = flattenLeaves(target, path+"."+m.Name, m.Type, out)
		}
		return out
	case *types.TupleType:
		for i, c := range x.Components {
			out = flattenLeaves(target, path+"."+strconv.Itoa(i), c, out)
		}
		return out
	}
	bits, refs, ok := leafSize(target, t)
	invariant(ok, t.String(), "type has no wire encoding")
	return append(out, leaf{path: path, typ: t, bits: bits, refs: refs})
}

// FindUnencodable returns the first leaf of t, in encoding order, that has
// no wire encoding, or nil when t can be encoded. Mapping values and array
// elements live behind dictionary roots and are not inspected.
func FindUnencodable(t types.Type) types.Type {
	switch x := t.(type) {
	case *types.StructType:
		for _, m := range x.Members {
			if u := FindUnencodable(m.Type); u != nil {
				return u
			}
		}
		return nil
	case *types.TupleType:
		for _, c := range x.Components {
			if u := FindUnencodable(c); u != nil {
				return u
			}
		}
		return nil
	}
	if _, _, ok := leafSize(DefaultTarget(), t); !ok {
		return t
	}
	return nil
}

// leafSize returns the bits and references one value of a non-aggregate
// type occupies in a cell.
func leafSize(target *Target, t types.Type) (bits, refs int, ok bool) {
	switch x := t.(type) {
	case *types.IntegerType:
		return x.Bits, 0, true
	case *types.BoolType:
		return 1, 0, true
	case *types.MappingType:
		return 1, 1, true
	case *types.ArrayType:
		if x.IsByteArray {
			return 0, 1, true
		}
		return arrayLengthBits + 1, 1, true
	case *types.CellType:
		return 0, 1, true
	case *types.AddressType:
		return target.AddressBits, 0, true
	}
	return 0, 0, false
}

// CanFit reports whether bits and refs still fit in the current cell.
func (p *EncodePosition) CanFit(bits, refs int) bool {
	return p.bits+bits <= p.capacity.Bits && p.refs+refs <= p.capacity.Refs
}

// Consume accounts bits and refs against the current cell. When they do not
// fit, a new linked cell is opened first and Consume returns true.
func (p *EncodePosition) Consume(bits, refs int) bool {
	if p.CanFit(bits, refs) {
		p.bits += bits
		p.refs += refs
		return false
	}
	p.cells++
	p.bits, p.refs = 0, 0
	invariant(p.CanFit(bits, refs), "encode position", "%d bits and %d refs exceed an empty cell", bits, refs)
	p.bits, p.refs = bits, refs
	return true
}

// Next places the next leaf and reports whether a new cell was opened for
// it. While leaves remain after it, one reference stays free for the link.
func (p *EncodePosition) Next() bool {
	invariant(p.next < len(p.leaves), "encode position", "no leaf left to place")
	l := p.leaves[p.next]
	p.next++
	reserve := 0
	if p.next < len(p.leaves) {
		reserve = 1
	}
	broke := p.Consume(l.bits, l.refs+reserve)
	p.refs -= reserve
	return broke
}

// peek returns the leaf Next will place.
func (p *EncodePosition) peek() leaf {
	invariant(p.next < len(p.leaves), "encode position", "no leaf left to place")
	return p.leaves[p.next]
}

// Done reports whether every leaf has been placed.
func (p *EncodePosition) Done() bool { return p.next == len(p.leaves) }

// Cells returns the number of cells opened so far, including the first.
func (p *EncodePosition) Cells() int { return p.cells }

// Used returns the bits and refs consumed in the current cell.
func (p *EncodePosition) Used() (bits, refs int) { return p.bits, p.refs }

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// LayoutEntry is where one leaf member lands on the wire.
type LayoutEntry struct {
	Path      string
	Type      types.Type
	Cell      int // 0-based index in the chain
	BitOffset int
	Bits      int
	Refs      int
}

// Layout computes the cell placement of members encoded starting offset
// bits into the first cell.
func Layout(members []types.Member, offset int, target *Target) []LayoutEntry {
	ts := make([]types.Type, len(members))
	names := make([]string, len(members))
	for i, m := range members {
		ts[i] = m.Type
		names[i] = m.Name
	}
	pos := newPosition(target, offset, ts, names, target.CellCapacity())
	out := make([]LayoutEntry, 0, len(pos.leaves))
	for !pos.Done() {
		l := pos.peek()
		pos.Next()
		bits, _ := pos.Used()
		out = append(out, LayoutEntry{
			Path:      l.path,
			Type:      l.typ,
			Cell:      pos.Cells() - 1,
			BitOffset: bits - l.bits,
			Bits:      l.bits,
			Refs:      l.refs,
		})
	}
	return out
}

// fitsOneCell reports whether ts, encoded offset bits into a cell of the
// given capacity, stay within that single cell.
func fitsOneCell(target *Target, offset int, ts []types.Type, capacity Capacity) bool {
	if offset > capacity.Bits {
		return false
	}
	var leaves []leaf
	for _, t := range ts {
		if !encodable(target, t) {
			return false
		}
		leaves = flattenLeaves(target, "", t, leaves)
	}
	bits, refs := offset, 0
	for _, l := range leaves {
		bits += l.bits
		refs += l.refs
	}
	return bits <= capacity.Bits && refs <= capacity.Refs
}

func encodable(target *Target, t types.Type) bool {
	switch x := t.(type) {
	case *types.StructType:
		for _, m := range x.Members {
			if !encodable(target, m.Type) {
				return false
			}
		}
		return true
	case *types.TupleType:
		for _, c := range x.Components {
			if !encodable(target, c) {
				return false
			}
		}
		return true
	}
	_, _, ok := leafSize(target, t)
	return ok
}
