package codegen

import (
	"github.com/holiman/uint256"

	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// StackPusher: compile-time model of the VM evaluation stack
//
// depth counts the logical values on the stack. Every emission goes through
// emit, which applies the instruction's declared (pops, pushes) so the model
// cannot drift from the code. A depth mismatch is an internal error.
// ---------------------------------------------------------------------------

// StackPusher emits instructions and tracks the stack depth they produce.
type StackPusher struct {
	target *Target
	depth  int
	frames []*frame // frames[0] is the top-level code
}

type frame struct {
	code       []Instr
	entryDepth int
}

// NewStackPusher starts a code block with depth values already on the stack.
func NewStackPusher(target *Target, depth int) *StackPusher {
	if target == nil {
		target = DefaultTarget()
	}
	return &StackPusher{
		target: target,
		depth:  depth,
		frames: []*frame{{entryDepth: depth}},
	}
}

// Target returns the VM limits this pusher lays data out against.
func (p *StackPusher) Target() *Target { return p.target }

// Depth returns the number of values currently modelled on the stack.
func (p *StackPusher) Depth() int { return p.depth }

// Code returns the top-level instruction stream. Open continuations are an
// internal error.
func (p *StackPusher) Code() []Instr {
	invariant(len(p.frames) == 1, "stack pusher", "%d continuation(s) left open", len(p.frames)-1)
	return p.frames[0].code
}

// EnsureDepth aborts when the depth differs from want.
func (p *StackPusher) EnsureDepth(want int, construct string) {
	invariant(p.depth == want, construct, "stack depth %d, expected %d", p.depth, want)
}

func (p *StackPusher) emit(instr Instr) {
	pops, pushes := stackEffect(instr)
	invariant(p.depth >= pops, instr.String(), "stack underflow: depth %d, instruction pops %d", p.depth, pops)
	p.depth += pushes - pops
	f := p.frames[len(p.frames)-1]
	f.code = append(f.code, instr)
}

func (p *StackPusher) op(op Opcode, args ...int) {
	p.emit(Instr{Op: op, Args: args})
}

// ---- constants ----

// PushInt pushes an integer literal (two's complement).
func (p *StackPusher) PushInt(x *uint256.Int) {
	p.emit(Instr{Op: OpPushInt, Int: new(uint256.Int).Set(x)})
}

// PushSmallInt pushes a small signed literal.
func (p *StackPusher) PushSmallInt(v int64) {
	x := uint256.NewInt(0)
	if v < 0 {
		x.SetUint64(uint64(-v))
		x.Neg(x)
	} else {
		x.SetUint64(uint64(v))
	}
	p.PushInt(x)
}

// PushNull pushes null.
func (p *StackPusher) PushNull() { p.op(OpNull) }

// PushDefaultValue pushes the VM default of t: zero, empty dictionary,
// empty array, empty cell, the zero address, or a tuple of member defaults.
func (p *StackPusher) PushDefaultValue(t types.Type) {
	ss := p.depth
	switch x := t.(type) {
	case *types.IntegerType, *types.BoolType:
		p.PushSmallInt(0)
	case *types.MappingType:
		p.op(OpNewDict)
	case *types.ArrayType:
		if x.IsByteArray {
			p.op(OpNewC)
			p.op(OpEndC)
		} else {
			p.PushSmallInt(0)
			p.op(OpNewDict)
			p.op(OpPair)
		}
	case *types.CellType:
		p.op(OpNewC)
		p.op(OpEndC)
	case *types.AddressType:
		// addr_std$10 anycast:0 workchain:int8=0 address:bits256=0
		p.PushSmallInt(0b100 << 8)
		p.op(OpNewC)
		p.op(OpStU, 11)
		p.PushSmallInt(0)
		p.op(OpSwap)
		p.op(OpStU, p.target.AddressBits-11)
		p.op(OpEndC)
		p.op(OpCtoS)
	case *types.StructType:
		for _, m := range x.Members {
			p.PushDefaultValue(m.Type)
		}
		p.Tuple(len(x.Members))
	case *types.TupleType:
		for _, c := range x.Components {
			p.PushDefaultValue(c)
		}
		p.Tuple(len(x.Components))
	case *types.OtherType:
		Abortf(t.String(), "type has no default value")
	default:
		Abortf(t.String(), "unhandled type category %s", t.Category())
	}
	p.EnsureDepth(ss+1, "default value of "+t.String())
}

// ---- stack manipulation ----

func (p *StackPusher) Drop()   { p.op(OpDrop) }
func (p *StackPusher) Nip()    { p.op(OpNip) }
func (p *StackPusher) Swap()   { p.op(OpSwap) }
func (p *StackPusher) Rot()    { p.op(OpRot) }
func (p *StackPusher) RotRev() { p.op(OpRotRev) }

// Immediate operand limits of the VM encodings. Larger operands go through
// the stack-operand forms.
const (
	maxReverseCount  = 17
	maxReverseOffset = 15
	maxBlkSwap       = 16
	maxTupleImm      = 15
	maxTupleSize     = 255
)

// Reverse reverses the n entries s(i+n-1)..s(i).
func (p *StackPusher) Reverse(n, i int) {
	invariant(n >= 2, "reverse", "reversing %d entries", n)
	if n <= maxReverseCount && i <= maxReverseOffset {
		p.op(OpReverse, n, i)
		return
	}
	p.PushSmallInt(int64(n))
	p.PushSmallInt(int64(i))
	p.op(OpRevX, n, i)
}

// BlockSwap moves the top j entries below the i entries under them.
func (p *StackPusher) BlockSwap(i, j int) {
	switch {
	case i == 0 || j == 0:
		return
	case i == 1 && j == 1:
		p.Swap()
	case i <= maxBlkSwap && j <= maxBlkSwap:
		p.op(OpBlkSwap, i, j)
	default:
		p.PushSmallInt(int64(i))
		p.PushSmallInt(int64(j))
		p.op(OpBlkSwX, i, j)
	}
}

// ---- tuples ----

// tupleOp emits op with the immediate k, or PUSHINT k and the stack-operand
// form when k does not fit the immediate encoding.
func (p *StackPusher) tupleOp(op, varOp Opcode, k int) {
	invariant(k >= 0 && k <= maxTupleSize, op.String(), "tuple operand %d out of range", k)
	if k <= maxTupleImm {
		p.op(op, k)
		return
	}
	p.PushSmallInt(int64(k))
	p.op(varOp, k)
}

// Tuple groups the top n values into one tuple.
func (p *StackPusher) Tuple(n int) { p.tupleOp(OpTuple, OpTupleVar, n) }

// Untuple spreads a tuple of n values onto the stack.
func (p *StackPusher) Untuple(n int) { p.tupleOp(OpUntuple, OpUntupleVar, n) }

// Index replaces a tuple with its k-th component.
func (p *StackPusher) Index(k int) { p.tupleOp(OpIndex, OpIndexVar, k) }

// SetIndex pops a value and a tuple and pushes the tuple with slot k
// replaced. The original tuple is not modified.
func (p *StackPusher) SetIndex(k int) { p.tupleOp(OpSetIndex, OpSetIndexVar, k) }

func (p *StackPusher) Pair()   { p.op(OpPair) }
func (p *StackPusher) Unpair() { p.op(OpUnpair) }

// ---- builders and slices ----

// NewBuilder opens an empty builder.
func (p *StackPusher) NewBuilder() { p.op(OpNewC) }

// EndBuilder finalizes a builder into a cell.
func (p *StackPusher) EndBuilder() { p.op(OpEndC) }

// ToSlice opens a cell for reading.
func (p *StackPusher) ToSlice() { p.op(OpCtoS) }

// EndSlice checks that a slice is fully consumed and drops it.
func (p *StackPusher) EndSlice() { p.op(OpEndS) }

func (p *StackPusher) PushRoot() { p.op(OpPushRoot) }
func (p *StackPusher) PopRoot()  { p.op(OpPopRoot) }

// ---- continuations ----

// StartContinuation opens a nested code block. Instructions emitted until
// the matching CallRef form its body.
func (p *StackPusher) StartContinuation() {
	p.frames = append(p.frames, &frame{entryDepth: p.depth})
}

// CallRef closes the innermost continuation and emits a call to it. The body
// must consume exactly argc values and leave exactly retc.
func (p *StackPusher) CallRef(argc, retc int) {
	invariant(len(p.frames) > 1, "CALLREF", "no open continuation")
	f := p.frames[len(p.frames)-1]
	p.frames = p.frames[:len(p.frames)-1]
	invariant(f.entryDepth >= argc, "CALLREF", "continuation takes %d argument(s), only %d on the stack", argc, f.entryDepth)
	p.EnsureDepth(f.entryDepth-argc+retc, "CALLREF")
	parent := p.frames[len(p.frames)-1]
	parent.code = append(parent.code, Instr{Op: OpCallRef, Args: []int{argc, retc}, Body: f.code})
}
