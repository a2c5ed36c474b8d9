package codegen

import (
	"tvmc/internal/types"
)

// ---------------------------------------------------------------------------
// ChainDataEncoder
//
// Stack on entry:  ... vn .. v2 v1 b     (v1 directly under the builder)
// Stack on exit:   ... b'
//
// Values are stored in declaration order. When the next leaf does not fit,
// the builder is moved under the values still waiting to be stored and a
// fresh builder is opened; at the end the builders are folded back into one
// chain, each cell keeping the link to its successor as its last reference.
// ---------------------------------------------------------------------------

// ChainDataEncoder serializes stack values into a builder chain.
type ChainDataEncoder struct {
	p *StackPusher
}

// NewChainDataEncoder returns an encoder emitting through p.
func NewChainDataEncoder(p *StackPusher) *ChainDataEncoder {
	return &ChainDataEncoder{p: p}
}

type encodeState struct {
	pending  int // value slots on the stack not yet stored
	builders int // open builders, the outermost deepest
}

// EncodeParameters stores len(ts) values lying under the top builder.
func (e *ChainDataEncoder) EncodeParameters(ts []types.Type, pos *EncodePosition) {
	ss := e.p.Depth()
	invariant(ss >= len(ts)+1, "encode parameters", "%d value(s) and a builder expected, depth %d", len(ts), ss)
	st := &encodeState{pending: len(ts), builders: 1}
	for _, t := range ts {
		e.encode(t, pos, st)
	}
	invariant(pos.Done(), "encode parameters", "leaves left unplaced")
	invariant(st.pending == 0, "encode parameters", "%d value(s) left unstored", st.pending)
	for i := 1; i < st.builders; i++ {
		e.p.op(OpStBRefR)
	}
	e.p.EnsureDepth(ss-len(ts), "encode parameters")
}

func (e *ChainDataEncoder) encode(t types.Type, pos *EncodePosition, st *encodeState) {
	switch x := t.(type) {
	case *types.StructType:
		e.expand(len(x.Members), st)
		for _, m := range x.Members {
			e.encode(m.Type, pos, st)
		}
	case *types.TupleType:
		e.expand(len(x.Components), st)
		for _, c := range x.Components {
			e.encode(c, pos, st)
		}
	default:
		if pos.Next() {
			e.p.BlockSwap(st.pending, 1)
			e.p.NewBuilder()
			st.builders++
		}
		e.storeLeaf(t)
		st.pending--
	}
}

// expand replaces the aggregate under the builder by its k members, first
// member directly under the builder.
func (e *ChainDataEncoder) expand(k int, st *encodeState) {
	e.p.Swap()
	e.p.Untuple(k)
	if k+1 >= 2 {
		e.p.Reverse(k+1, 0)
	}
	st.pending += k - 1
}

// storeLeaf emits (x b -- b').
func (e *ChainDataEncoder) storeLeaf(t types.Type) {
	switch x := t.(type) {
	case *types.IntegerType:
		if x.Signed {
			e.p.op(OpStI, x.Bits)
		} else {
			e.p.op(OpStU, x.Bits)
		}
	case *types.BoolType:
		e.p.op(OpStI, 1)
	case *types.MappingType:
		e.p.op(OpStDict)
	case *types.ArrayType:
		if x.IsByteArray {
			e.p.op(OpStRef)
			return
		}
		// [len, dict] b -> b [len, dict] -> b len dict -> dict b len
		e.p.Swap()
		e.p.Unpair()
		e.p.RotRev()
		e.p.Swap()
		e.p.op(OpStU, arrayLengthBits)
		e.p.op(OpStDict)
	case *types.CellType:
		e.p.op(OpStRef)
	case *types.AddressType:
		e.p.op(OpStSlice)
	default:
		Abortf(t.String(), "cannot encode %s value", t.Category())
	}
}

// EncodeMappingValue stores the value under the top builder as a dictionary
// leaf whose key takes keyLength bits. The value must fit in that one cell.
func (e *ChainDataEncoder) EncodeMappingValue(valueType types.Type, keyLength int) {
	checkMappingValue(e.p.target, valueType, keyLength)
	pos := newPosition(e.p.target, keyLength, []types.Type{valueType}, nil, e.p.target.DictValueCapacity())
	e.EncodeParameters([]types.Type{valueType}, pos)
	invariant(pos.Cells() == 1, valueType.String(), "mapping value spilled into %d cells", pos.Cells())
}

func checkMappingValue(target *Target, valueType types.Type, keyLength int) {
	if st, ok := valueType.(*types.StructType); ok {
		invariant(IsCompatibleWithSDK(keyLength, st, target), st.String(),
			"struct is not one-cell compatible under a %d-bit key", keyLength)
	}
}

// ---------------------------------------------------------------------------
// ChainDataDecoder
//
// Stack on entry:  ... s
// Stack on exit:   ... v1 v2 .. vn s'
// ---------------------------------------------------------------------------

// ChainDataDecoder deserializes values from a slice chain.
type ChainDataDecoder struct {
	p *StackPusher
}

// NewChainDataDecoder returns a decoder emitting through p.
func NewChainDataDecoder(p *StackPusher) *ChainDataDecoder {
	return &ChainDataDecoder{p: p}
}

// DecodeParameters loads len(ts) values from the slice on top of the stack.
// The remaining slice stays on top.
func (d *ChainDataDecoder) DecodeParameters(ts []types.Type, pos *EncodePosition) {
	ss := d.p.Depth()
	invariant(ss >= 1, "decode parameters", "no slice on the stack")
	for _, t := range ts {
		d.decode(t, pos)
	}
	invariant(pos.Done(), "decode parameters", "leaves left unread")
	d.p.EnsureDepth(ss+len(ts), "decode parameters")
}

func (d *ChainDataDecoder) decode(t types.Type, pos *EncodePosition) {
	switch x := t.(type) {
	case *types.StructType:
		for _, m := range x.Members {
			d.decode(m.Type, pos)
		}
		d.group(len(x.Members))
	case *types.TupleType:
		for _, c := range x.Components {
			d.decode(c, pos)
		}
		d.group(len(x.Components))
	default:
		if pos.Next() {
			d.p.op(OpLdRefRtoS)
			d.p.Nip()
		}
		d.loadLeaf(t)
	}
}

// group packs the k values under the slice into one tuple.
func (d *ChainDataDecoder) group(k int) {
	d.p.BlockSwap(k, 1)
	d.p.Tuple(k)
	d.p.Swap()
}

// loadLeaf emits (s -- x s').
func (d *ChainDataDecoder) loadLeaf(t types.Type) {
	switch x := t.(type) {
	case *types.IntegerType:
		if x.Signed {
			d.p.op(OpLdI, x.Bits)
		} else {
			d.p.op(OpLdU, x.Bits)
		}
	case *types.BoolType:
		d.p.op(OpLdI, 1)
	case *types.MappingType:
		d.p.op(OpLdDict)
	case *types.ArrayType:
		if x.IsByteArray {
			d.p.op(OpLdRef)
			return
		}
		// s -> len s -> len dict s -> s len dict -> s [len, dict]
		d.p.op(OpLdU, arrayLengthBits)
		d.p.op(OpLdDict)
		d.p.RotRev()
		d.p.Pair()
		d.p.Swap()
	case *types.CellType:
		d.p.op(OpLdRef)
	case *types.AddressType:
		d.p.op(OpLdSlice, d.p.target.AddressBits)
	default:
		Abortf(t.String(), "cannot decode %s value", t.Category())
	}
}

// DecodeMappingValue loads a dictionary leaf value whose key took keyLength
// bits.
func (d *ChainDataDecoder) DecodeMappingValue(valueType types.Type, keyLength int) {
	checkMappingValue(d.p.target, valueType, keyLength)
	pos := newPosition(d.p.target, keyLength, []types.Type{valueType}, nil, d.p.target.DictValueCapacity())
	d.DecodeParameters([]types.Type{valueType}, pos)
	invariant(pos.Cells() == 1, valueType.String(), "mapping value spilled into %d cells", pos.Cells())
}
