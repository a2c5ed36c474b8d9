// Package tvm is a reference interpreter for the instruction subset the
// backend emits. It models cells, builders and slices with the configured
// capacity limits, so encoders and decoders can be checked by executing
// them.
package tvm

import (
	"fmt"

	"github.com/holiman/uint256"

	"tvmc/internal/codegen"
)

// VM exception codes.
const (
	ExcStackUnderflow = 2
	ExcRangeCheck     = 5
	ExcInvalidOpcode  = 6
	ExcTypeCheck      = 7
	ExcCellOverflow   = 8
	ExcCellUnderflow  = 9
)

var excNames = map[int]string{
	ExcStackUnderflow: "stack underflow",
	ExcRangeCheck:     "range check error",
	ExcInvalidOpcode:  "invalid opcode",
	ExcTypeCheck:      "type check error",
	ExcCellOverflow:   "cell overflow",
	ExcCellUnderflow:  "cell underflow",
}

// Exception is a VM exception raised while running code.
type Exception struct {
	Code int
	Op   string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("vm exception %d (%s) at %s", e.Code, excNames[e.Code], e.Op)
}

// Machine holds the stack and the persistent data root (c4).
type Machine struct {
	stack    []Value
	Root     *Cell
	cellBits uint
	cellRefs int
	steps    int
}

// New returns a machine enforcing the cell limits of target.
func New(target *codegen.Target) *Machine {
	if target == nil {
		target = codegen.DefaultTarget()
	}
	return &Machine{
		Root:     EmptyCell(),
		cellBits: uint(target.CellBits),
		cellRefs: target.CellRefs,
	}
}

// Push puts v on top of the stack.
func (m *Machine) Push(v Value) { m.stack = append(m.stack, v) }

// Depth returns the number of stack entries.
func (m *Machine) Depth() int { return len(m.stack) }

// Stack returns the stack, bottom first.
func (m *Machine) Stack() []Value { return m.stack }

// Top returns the top entry, or nil on an empty stack.
func (m *Machine) Top() Value {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// Steps returns the number of instructions executed.
func (m *Machine) Steps() int { return m.steps }

// Run executes code on the current stack.
func (m *Machine) Run(code []codegen.Instr) error {
	for _, in := range code {
		m.steps++
		h := handlers[in.Op]
		if h == nil {
			return &Exception{Code: ExcTypeCheck, Op: in.String()}
		}
		if err := h(m, in); err != nil {
			if exc, ok := err.(*Exception); ok && exc.Op == "" {
				exc.Op = in.String()
			}
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stack access
// ---------------------------------------------------------------------------

func throw(code int) error { return &Exception{Code: code} }

func (m *Machine) need(n int) error {
	if n < 0 || len(m.stack) < n {
		return throw(ExcStackUnderflow)
	}
	return nil
}

func (m *Machine) pop() (Value, error) {
	if err := m.need(1); err != nil {
		return nil, err
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) popInt() (*uint256.Int, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	x, ok := v.(*uint256.Int)
	if !ok {
		return nil, throw(ExcTypeCheck)
	}
	return x, nil
}

func (m *Machine) popTuple() (Tuple, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	t, ok := v.(Tuple)
	if !ok {
		return nil, throw(ExcTypeCheck)
	}
	return t, nil
}

func (m *Machine) popCell() (*Cell, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	c, ok := v.(*Cell)
	if !ok {
		return nil, throw(ExcTypeCheck)
	}
	return c, nil
}

func (m *Machine) popBuilder() (*Builder, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	b, ok := v.(*Builder)
	if !ok {
		return nil, throw(ExcTypeCheck)
	}
	return b, nil
}

func (m *Machine) popSlice() (*Slice, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	s, ok := v.(*Slice)
	if !ok {
		return nil, throw(ExcTypeCheck)
	}
	return s.clone(), nil
}

// reverse reverses stack entries s(i+n-1)..s(i).
func (m *Machine) reverse(n, i int) error {
	if err := m.need(n + i); err != nil {
		return err
	}
	hi := len(m.stack) - 1 - i
	lo := hi - n + 1
	for lo < hi {
		m.stack[lo], m.stack[hi] = m.stack[hi], m.stack[lo]
		lo++
		hi--
	}
	return nil
}

// checkBuilder raises a cell overflow when b exceeds the cell limits.
func (m *Machine) checkBuilder(b *Builder) error {
	if b.bits > m.cellBits || len(b.refs) > m.cellRefs {
		return throw(ExcCellOverflow)
	}
	return nil
}

// copyBuilder returns a builder value that can be extended without
// affecting other references to b.
func copyBuilder(b *Builder) *Builder {
	return &Builder{data: b.data.Clone(), bits: b.bits, refs: append([]*Cell(nil), b.refs...)}
}
