package tvm

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/willf/bitset"
)

// Value is one entry of the VM stack: *uint256.Int, Null, Tuple, *Cell,
// *Builder or *Slice.
type Value interface{}

// Null is the VM null, also the empty dictionary.
type Null struct{}

// Tuple is an immutable VM tuple.
type Tuple []Value

// Cell is a finalized cell: up to CellBits data bits and CellRefs references.
type Cell struct {
	data *bitset.BitSet
	bits uint
	refs []*Cell
}

// Builder accumulates a cell under construction.
type Builder struct {
	data *bitset.BitSet
	bits uint
	refs []*Cell
}

// Slice is a read cursor over a cell.
type Slice struct {
	cell   *Cell
	bitPos uint
	refPos int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{data: bitset.New(0)}
}

// EmptyCell returns a cell with no bits and no references.
func EmptyCell() *Cell {
	return NewBuilder().End()
}

func (b *Builder) storeBit(bit bool) {
	if bit {
		b.data.Set(b.bits)
	}
	b.bits++
}

// StoreUint appends the low n bits of x, most significant first.
func (b *Builder) StoreUint(x *uint256.Int, n uint) {
	raw := x.Bytes32()
	for i := int(n) - 1; i >= 0; i-- {
		b.storeBit(raw[31-i/8]>>(uint(i)%8)&1 == 1)
	}
}

// StoreRef appends a reference.
func (b *Builder) StoreRef(c *Cell) {
	b.refs = append(b.refs, c)
}

// StoreSlice appends the unread bits and references of s.
func (b *Builder) StoreSlice(s *Slice) {
	for i := s.bitPos; i < s.cell.bits; i++ {
		b.storeBit(s.cell.data.Test(i))
	}
	b.refs = append(b.refs, s.cell.refs[s.refPos:]...)
}

// Bits returns the number of data bits stored so far.
func (b *Builder) Bits() uint { return b.bits }

// Refs returns the number of references stored so far.
func (b *Builder) Refs() int { return len(b.refs) }

// End finalizes a copy of the builder into a cell.
func (b *Builder) End() *Cell {
	return &Cell{data: b.data.Clone(), bits: b.bits, refs: append([]*Cell(nil), b.refs...)}
}

// Bits returns the number of data bits in c.
func (c *Cell) Bits() uint { return c.bits }

// Refs returns the references of c.
func (c *Cell) Refs() []*Cell { return c.refs }

// Slice opens c for reading.
func (c *Cell) Slice() *Slice { return &Slice{cell: c} }

// BitString renders the data bits as 0/1 characters.
func (c *Cell) BitString() string {
	var sb strings.Builder
	for i := uint(0); i < c.bits; i++ {
		if c.data.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (c *Cell) String() string {
	return fmt.Sprintf("cell{%d bits, %d refs}", c.bits, len(c.refs))
}

// Depth returns the length of the longest reference path below c.
func (c *Cell) Depth() int {
	d := 0
	for _, r := range c.refs {
		if rd := r.Depth() + 1; rd > d {
			d = rd
		}
	}
	return d
}

// RemainingBits returns the number of unread bits.
func (s *Slice) RemainingBits() uint { return s.cell.bits - s.bitPos }

// RemainingRefs returns the number of unread references.
func (s *Slice) RemainingRefs() int { return len(s.cell.refs) - s.refPos }

// Empty reports whether every bit and reference has been read.
func (s *Slice) Empty() bool { return s.RemainingBits() == 0 && s.RemainingRefs() == 0 }

func (s *Slice) loadUint(n uint) (*uint256.Int, bool) {
	if s.RemainingBits() < n {
		return nil, false
	}
	z := new(uint256.Int)
	for i := uint(0); i < n; i++ {
		z.Lsh(z, 1)
		if s.cell.data.Test(s.bitPos + i) {
			z.AddUint64(z, 1)
		}
	}
	s.bitPos += n
	return z, true
}

func (s *Slice) loadRef() (*Cell, bool) {
	if s.RemainingRefs() == 0 {
		return nil, false
	}
	c := s.cell.refs[s.refPos]
	s.refPos++
	return c, true
}

// loadBits cuts the next n bits off s into a slice of their own.
func (s *Slice) loadBits(n uint) (*Slice, bool) {
	if s.RemainingBits() < n {
		return nil, false
	}
	b := NewBuilder()
	for i := uint(0); i < n; i++ {
		b.storeBit(s.cell.data.Test(s.bitPos + i))
	}
	s.bitPos += n
	return b.End().Slice(), true
}

func (s *Slice) clone() *Slice {
	c := *s
	return &c
}

// Rest materializes the unread part of s as a cell.
func (s *Slice) Rest() *Cell {
	b := NewBuilder()
	b.StoreSlice(s)
	return b.End()
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal compares two stack values by content. Slices compare by their unread
// part, builders by what they hold.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case *uint256.Int:
		y, ok := b.(*uint256.Int)
		return ok && x.Eq(y)
	case Null:
		_, ok := b.(Null)
		return ok
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Cell:
		y, ok := b.(*Cell)
		return ok && cellsEqual(x, y)
	case *Slice:
		y, ok := b.(*Slice)
		return ok && cellsEqual(x.Rest(), y.Rest())
	case *Builder:
		y, ok := b.(*Builder)
		return ok && cellsEqual(x.End(), y.End())
	}
	return false
}

func cellsEqual(a, b *Cell) bool {
	if a.bits != b.bits || len(a.refs) != len(b.refs) {
		return false
	}
	for i := uint(0); i < a.bits; i++ {
		if a.data.Test(i) != b.data.Test(i) {
			return false
		}
	}
	for i := range a.refs {
		if !cellsEqual(a.refs[i], b.refs[i]) {
			return false
		}
	}
	return true
}

// WithMember returns a copy of t with slot i set to v. t is not modified.
func WithMember(t Tuple, i int, v Value) (Tuple, error) {
	if i < 0 || i >= len(t) {
		return nil, &Exception{Code: ExcRangeCheck, Op: fmt.Sprintf("SETINDEX %d", i)}
	}
	out := make(Tuple, len(t))
	copy(out, t)
	out[i] = v
	return out, nil
}

// Int is shorthand for a small signed stack integer.
func Int(v int64) *uint256.Int {
	if v < 0 {
		return new(uint256.Int).Neg(uint256.NewInt(uint64(-v)))
	}
	return uint256.NewInt(uint64(v))
}
