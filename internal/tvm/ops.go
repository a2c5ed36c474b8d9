package tvm

import (
	"github.com/holiman/uint256"

	"tvmc/internal/codegen"
)

var handlers = map[codegen.Opcode]func(*Machine, codegen.Instr) error{}

func init() {
	handlers[codegen.OpPushInt] = opPushInt
	handlers[codegen.OpNull] = opNull
	handlers[codegen.OpNewDict] = opNull
	handlers[codegen.OpDrop] = opDrop
	handlers[codegen.OpNip] = opNip
	handlers[codegen.OpSwap] = opSwap
	handlers[codegen.OpRot] = opRot
	handlers[codegen.OpRotRev] = opRotRev
	handlers[codegen.OpReverse] = opReverse
	handlers[codegen.OpBlkSwap] = opBlkSwap
	handlers[codegen.OpRevX] = opRevX
	handlers[codegen.OpBlkSwX] = opBlkSwX
	handlers[codegen.OpTuple] = opTuple
	handlers[codegen.OpUntuple] = opUntuple
	handlers[codegen.OpIndex] = opIndex
	handlers[codegen.OpSetIndex] = opSetIndex
	handlers[codegen.OpPair] = opPair
	handlers[codegen.OpUnpair] = opUnpair
	handlers[codegen.OpTupleVar] = opTupleVar
	handlers[codegen.OpUntupleVar] = opUntupleVar
	handlers[codegen.OpIndexVar] = opIndexVar
	handlers[codegen.OpSetIndexVar] = opSetIndexVar
	handlers[codegen.OpNewC] = opNewC
	handlers[codegen.OpEndC] = opEndC
	handlers[codegen.OpStU] = opStU
	handlers[codegen.OpStI] = opStI
	handlers[codegen.OpStDict] = opStDict
	handlers[codegen.OpStRef] = opStRef
	handlers[codegen.OpStSlice] = opStSlice
	handlers[codegen.OpStBRefR] = opStBRefR
	handlers[codegen.OpCtoS] = opCtoS
	handlers[codegen.OpEndS] = opEndS
	handlers[codegen.OpLdU] = opLdU
	handlers[codegen.OpLdI] = opLdI
	handlers[codegen.OpLdDict] = opLdDict
	handlers[codegen.OpLdRef] = opLdRef
	handlers[codegen.OpLdSlice] = opLdSlice
	handlers[codegen.OpLdRefRtoS] = opLdRefRtoS
	handlers[codegen.OpPushRoot] = opPushRoot
	handlers[codegen.OpPopRoot] = opPopRoot
	handlers[codegen.OpCallRef] = opCallRef
}

func arg(in codegen.Instr, k int) int {
	if k < len(in.Args) {
		return in.Args[k]
	}
	return 0
}

// immediate returns operand k, raising an invalid opcode when it falls
// outside [lo, hi], the range the instruction encoding can hold.
func immediate(in codegen.Instr, k, lo, hi int) (int, error) {
	v := arg(in, k)
	if v < lo || v > hi {
		return 0, throw(ExcInvalidOpcode)
	}
	return v, nil
}

// popOperand pops a stack operand of a *VAR, REVX or BLKSWX instruction.
func (m *Machine) popOperand(hi int) (int, error) {
	x, err := m.popInt()
	if err != nil {
		return 0, err
	}
	if x.Sign() < 0 || !x.IsUint64() || x.Uint64() > uint64(hi) {
		return 0, throw(ExcRangeCheck)
	}
	return int(x.Uint64()), nil
}

// ---- constants and stack ----

func opPushInt(m *Machine, in codegen.Instr) error {
	x := new(uint256.Int)
	if in.Int != nil {
		x.Set(in.Int)
	}
	m.Push(x)
	return nil
}

func opNull(m *Machine, in codegen.Instr) error {
	m.Push(Null{})
	return nil
}

func opDrop(m *Machine, in codegen.Instr) error {
	_, err := m.pop()
	return err
}

func opNip(m *Machine, in codegen.Instr) error {
	if err := m.need(2); err != nil {
		return err
	}
	top, _ := m.pop()
	m.stack[len(m.stack)-1] = top
	return nil
}

func opSwap(m *Machine, in codegen.Instr) error {
	return m.reverse(2, 0)
}

// ROT: a b c -> b c a
func opRot(m *Machine, in codegen.Instr) error {
	if err := m.need(3); err != nil {
		return err
	}
	n := len(m.stack)
	a := m.stack[n-3]
	copy(m.stack[n-3:], m.stack[n-2:])
	m.stack[n-1] = a
	return nil
}

// ROTREV: a b c -> c a b
func opRotRev(m *Machine, in codegen.Instr) error {
	if err := m.need(3); err != nil {
		return err
	}
	n := len(m.stack)
	c := m.stack[n-1]
	copy(m.stack[n-2:], m.stack[n-3:n-1])
	m.stack[n-3] = c
	return nil
}

func opReverse(m *Machine, in codegen.Instr) error {
	n, err := immediate(in, 0, 2, 17)
	if err != nil {
		return err
	}
	i, err := immediate(in, 1, 0, 15)
	if err != nil {
		return err
	}
	return m.reverse(n, i)
}

func opRevX(m *Machine, in codegen.Instr) error {
	i, err := m.popOperand(255)
	if err != nil {
		return err
	}
	n, err := m.popOperand(255)
	if err != nil {
		return err
	}
	return m.reverse(n, i)
}

// BLKSWAP i, j: ... A(i) B(j) -> ... B(j) A(i)
func opBlkSwap(m *Machine, in codegen.Instr) error {
	i, err := immediate(in, 0, 1, 16)
	if err != nil {
		return err
	}
	j, err := immediate(in, 1, 1, 16)
	if err != nil {
		return err
	}
	return m.blkSwap(i, j)
}

func opBlkSwX(m *Machine, in codegen.Instr) error {
	j, err := m.popOperand(255)
	if err != nil {
		return err
	}
	i, err := m.popOperand(255)
	if err != nil {
		return err
	}
	return m.blkSwap(i, j)
}

func (m *Machine) blkSwap(i, j int) error {
	if err := m.need(i + j); err != nil {
		return err
	}
	// reversing both blocks and then the whole range swaps them
	if err := m.reverse(j, 0); err != nil {
		return err
	}
	if err := m.reverse(i, j); err != nil {
		return err
	}
	return m.reverse(i+j, 0)
}

// ---- tuples ----

func opTuple(m *Machine, in codegen.Instr) error {
	n, err := immediate(in, 0, 0, 15)
	if err != nil {
		return err
	}
	return m.tuple(n)
}

func opTupleVar(m *Machine, in codegen.Instr) error {
	n, err := m.popOperand(255)
	if err != nil {
		return err
	}
	return m.tuple(n)
}

func (m *Machine) tuple(n int) error {
	if err := m.need(n); err != nil {
		return err
	}
	t := make(Tuple, n)
	copy(t, m.stack[len(m.stack)-n:])
	m.stack = m.stack[:len(m.stack)-n]
	m.Push(t)
	return nil
}

func opPair(m *Machine, in codegen.Instr) error {
	return m.tuple(2)
}

func opUntuple(m *Machine, in codegen.Instr) error {
	n, err := immediate(in, 0, 0, 15)
	if err != nil {
		return err
	}
	return m.untuple(n)
}

func opUntupleVar(m *Machine, in codegen.Instr) error {
	n, err := m.popOperand(255)
	if err != nil {
		return err
	}
	return m.untuple(n)
}

func (m *Machine) untuple(n int) error {
	t, err := m.popTuple()
	if err != nil {
		return err
	}
	if len(t) != n {
		return throw(ExcTypeCheck)
	}
	m.stack = append(m.stack, t...)
	return nil
}

func opUnpair(m *Machine, in codegen.Instr) error {
	return m.untuple(2)
}

func opIndex(m *Machine, in codegen.Instr) error {
	k, err := immediate(in, 0, 0, 15)
	if err != nil {
		return err
	}
	return m.index(k)
}

func opIndexVar(m *Machine, in codegen.Instr) error {
	k, err := m.popOperand(254)
	if err != nil {
		return err
	}
	return m.index(k)
}

func (m *Machine) index(k int) error {
	t, err := m.popTuple()
	if err != nil {
		return err
	}
	if k >= len(t) {
		return throw(ExcRangeCheck)
	}
	m.Push(t[k])
	return nil
}

func opSetIndex(m *Machine, in codegen.Instr) error {
	k, err := immediate(in, 0, 0, 15)
	if err != nil {
		return err
	}
	return m.setIndex(k)
}

func opSetIndexVar(m *Machine, in codegen.Instr) error {
	k, err := m.popOperand(254)
	if err != nil {
		return err
	}
	return m.setIndex(k)
}

func (m *Machine) setIndex(k int) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	t, err := m.popTuple()
	if err != nil {
		return err
	}
	out, err := WithMember(t, k, v)
	if err != nil {
		return err
	}
	m.Push(out)
	return nil
}

// ---- builders ----

func opNewC(m *Machine, in codegen.Instr) error {
	m.Push(NewBuilder())
	return nil
}

func opEndC(m *Machine, in codegen.Instr) error {
	b, err := m.popBuilder()
	if err != nil {
		return err
	}
	m.Push(b.End())
	return nil
}

// store pops a builder, lets fn extend a copy of it and pushes the result.
func (m *Machine) store(fn func(b *Builder) error) error {
	b, err := m.popBuilder()
	if err != nil {
		return err
	}
	b = copyBuilder(b)
	if err := fn(b); err != nil {
		return err
	}
	if err := m.checkBuilder(b); err != nil {
		return err
	}
	m.Push(b)
	return nil
}

func opStU(m *Machine, in codegen.Instr) error {
	n := arg(in, 0)
	return m.store(func(b *Builder) error {
		x, err := m.popInt()
		if err != nil {
			return err
		}
		if !fitsUnsigned(x, n) {
			return throw(ExcRangeCheck)
		}
		b.StoreUint(x, uint(n))
		return nil
	})
}

func opStI(m *Machine, in codegen.Instr) error {
	n := arg(in, 0)
	return m.store(func(b *Builder) error {
		x, err := m.popInt()
		if err != nil {
			return err
		}
		if !fitsSigned(x, n) {
			return throw(ExcRangeCheck)
		}
		b.StoreUint(x, uint(n))
		return nil
	})
}

// STDICT stores a Maybe ^Cell: one bit, then the root when present.
func opStDict(m *Machine, in codegen.Instr) error {
	return m.store(func(b *Builder) error {
		v, err := m.pop()
		if err != nil {
			return err
		}
		switch d := v.(type) {
		case Null:
			b.storeBit(false)
		case *Cell:
			b.storeBit(true)
			b.StoreRef(d)
		default:
			return throw(ExcTypeCheck)
		}
		return nil
	})
}

func opStRef(m *Machine, in codegen.Instr) error {
	return m.store(func(b *Builder) error {
		c, err := m.popCell()
		if err != nil {
			return err
		}
		b.StoreRef(c)
		return nil
	})
}

func opStSlice(m *Machine, in codegen.Instr) error {
	return m.store(func(b *Builder) error {
		s, err := m.popSlice()
		if err != nil {
			return err
		}
		b.StoreSlice(s)
		return nil
	})
}

// STBREFR: b b' -> b'' with b' stored as a reference of b
func opStBRefR(m *Machine, in codegen.Instr) error {
	inner, err := m.popBuilder()
	if err != nil {
		return err
	}
	return m.store(func(b *Builder) error {
		b.StoreRef(inner.End())
		return nil
	})
}

// ---- slices ----

func opCtoS(m *Machine, in codegen.Instr) error {
	c, err := m.popCell()
	if err != nil {
		return err
	}
	m.Push(c.Slice())
	return nil
}

func opEndS(m *Machine, in codegen.Instr) error {
	s, err := m.popSlice()
	if err != nil {
		return err
	}
	if !s.Empty() {
		return throw(ExcCellUnderflow)
	}
	return nil
}

// load pops a slice, lets fn read from a copy of it and pushes the read
// value under the advanced slice.
func (m *Machine) load(fn func(s *Slice) (Value, error)) error {
	s, err := m.popSlice()
	if err != nil {
		return err
	}
	v, err := fn(s)
	if err != nil {
		return err
	}
	m.Push(v)
	m.Push(s)
	return nil
}

func opLdU(m *Machine, in codegen.Instr) error {
	n := uint(arg(in, 0))
	return m.load(func(s *Slice) (Value, error) {
		x, ok := s.loadUint(n)
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		return x, nil
	})
}

func opLdI(m *Machine, in codegen.Instr) error {
	n := uint(arg(in, 0))
	return m.load(func(s *Slice) (Value, error) {
		x, ok := s.loadUint(n)
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		return signExtend(x, n), nil
	})
}

func opLdDict(m *Machine, in codegen.Instr) error {
	return m.load(func(s *Slice) (Value, error) {
		flag, ok := s.loadUint(1)
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		if flag.IsZero() {
			return Null{}, nil
		}
		c, ok := s.loadRef()
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		return c, nil
	})
}

func opLdRef(m *Machine, in codegen.Instr) error {
	return m.load(func(s *Slice) (Value, error) {
		c, ok := s.loadRef()
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		return c, nil
	})
}

func opLdSlice(m *Machine, in codegen.Instr) error {
	n := uint(arg(in, 0))
	return m.load(func(s *Slice) (Value, error) {
		sub, ok := s.loadBits(n)
		if !ok {
			return nil, throw(ExcCellUnderflow)
		}
		return sub, nil
	})
}

// LDREFRTOS: s -> s' s'' with s'' the first unread reference as a slice
func opLdRefRtoS(m *Machine, in codegen.Instr) error {
	s, err := m.popSlice()
	if err != nil {
		return err
	}
	c, ok := s.loadRef()
	if !ok {
		return throw(ExcCellUnderflow)
	}
	m.Push(s)
	m.Push(c.Slice())
	return nil
}

// ---- control ----

func opPushRoot(m *Machine, in codegen.Instr) error {
	m.Push(m.Root)
	return nil
}

func opPopRoot(m *Machine, in codegen.Instr) error {
	c, err := m.popCell()
	if err != nil {
		return err
	}
	m.Root = c
	return nil
}

func opCallRef(m *Machine, in codegen.Instr) error {
	return m.Run(in.Body)
}

// ---------------------------------------------------------------------------
// Integer ranges
// ---------------------------------------------------------------------------

// fitsUnsigned reports whether x is in [0, 2^n). Every bit pattern fits 256.
func fitsUnsigned(x *uint256.Int, n int) bool {
	if n >= 256 {
		return true
	}
	return x.BitLen() <= n
}

// fitsSigned reports whether x, read as two's complement, is in
// [-2^(n-1), 2^(n-1)).
func fitsSigned(x *uint256.Int, n int) bool {
	if n >= 256 {
		return true
	}
	if n <= 0 {
		return false
	}
	if x.Sign() >= 0 {
		return x.BitLen() <= n-1
	}
	neg := new(uint256.Int).Neg(x)
	limit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(n-1))
	return !neg.Gt(limit)
}

// signExtend reads the low n bits of x as a two's complement value.
func signExtend(x *uint256.Int, n uint) *uint256.Int {
	if n == 0 || n >= 256 || x.BitLen() < int(n) {
		return x
	}
	return new(uint256.Int).Sub(x, new(uint256.Int).Lsh(uint256.NewInt(1), n))
}
