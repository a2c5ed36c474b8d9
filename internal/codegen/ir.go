package codegen

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ---------------------------------------------------------------------------
// Instructions: the subset of the VM instruction set the struct/ABI
// backend emits. Every opcode has a declared stack effect; StackPusher
// applies it to the modelled depth as the instruction is appended.
// ---------------------------------------------------------------------------

// Opcode is a VM instruction mnemonic.
type Opcode int

const (
	// Constants
	OpPushInt Opcode = iota // PUSHINT x             ( -- x)
	OpNull                  // NULL                  ( -- null)
	OpNewDict               // NEWDICT               ( -- D)

	// Stack manipulation
	OpDrop    // DROP                  (x -- )
	OpNip     // NIP                   (x y -- y)
	OpSwap    // SWAP                  (x y -- y x)
	OpRot     // ROT                   (a b c -- b c a)
	OpRotRev  // ROTREV                (a b c -- c a b)
	OpReverse // REVERSE n, i          reverses s(i+n-1)..s(i)
	OpBlkSwap // BLKSWAP i, j          moves the top j entries below the next i
	OpRevX    // REVX                  (... n i -- ...) REVERSE with operands on the stack
	OpBlkSwX  // BLKSWX                (... i j -- ...) BLKSWAP with operands on the stack

	// Tuples
	OpTuple    // TUPLE n               (x1..xn -- t)
	OpUntuple  // UNTUPLE n             (t -- x1..xn)
	OpIndex    // INDEX k               (t -- t[k])
	OpSetIndex // SETINDEX k            (t x -- t')
	OpPair     // PAIR                  (a b -- t)
	OpUnpair   // UNPAIR                (t -- a b)

	OpTupleVar    // TUPLEVAR              (x1..xn n -- t)
	OpUntupleVar  // UNTUPLEVAR            (t n -- x1..xn)
	OpIndexVar    // INDEXVAR              (t k -- t[k])
	OpSetIndexVar // SETINDEXVAR           (t x k -- t')

	// Builders
	OpNewC    // NEWC                  ( -- b)
	OpEndC    // ENDC                  (b -- c)
	OpStU     // STU n                 (x b -- b')
	OpStI     // STI n                 (x b -- b')
	OpStDict  // STDICT                (D b -- b')
	OpStRef   // STREF                 (c b -- b')
	OpStSlice // STSLICE               (s b -- b')
	OpStBRefR // STBREFR               (b b' -- b'')

	// Slices
	OpCtoS      // CTOS                  (c -- s)
	OpEndS      // ENDS                  (s -- )
	OpLdU       // LDU n                 (s -- x s')
	OpLdI       // LDI n                 (s -- x s')
	OpLdDict    // LDDICT                (s -- D s')
	OpLdRef     // LDREF                 (s -- c s')
	OpLdSlice   // LDSLICE n             (s -- s'' s')
	OpLdRefRtoS // LDREFRTOS             (s -- s' s'')

	// Control registers and continuations
	OpPushRoot // PUSHROOT              ( -- c)
	OpPopRoot  // POPROOT               (c -- )
	OpCallRef  // CALLREF { ... }       declared (argc -- retc)
)

var opNames = map[Opcode]string{
	OpPushInt: "PUSHINT", OpNull: "NULL", OpNewDict: "NEWDICT",
	OpDrop: "DROP", OpNip: "NIP", OpSwap: "SWAP", OpRot: "ROT", OpRotRev: "ROTREV",
	OpReverse: "REVERSE", OpBlkSwap: "BLKSWAP", OpRevX: "REVX", OpBlkSwX: "BLKSWX",
	OpTuple: "TUPLE", OpUntuple: "UNTUPLE", OpIndex: "INDEX", OpSetIndex: "SETINDEX",
	OpPair: "PAIR", OpUnpair: "UNPAIR",
	OpTupleVar: "TUPLEVAR", OpUntupleVar: "UNTUPLEVAR", OpIndexVar: "INDEXVAR", OpSetIndexVar: "SETINDEXVAR",
	OpNewC: "NEWC", OpEndC: "ENDC", OpStU: "STU", OpStI: "STI", OpStDict: "STDICT",
	OpStRef: "STREF", OpStSlice: "STSLICE", OpStBRefR: "STBREFR",
	OpCtoS: "CTOS", OpEndS: "ENDS", OpLdU: "LDU", OpLdI: "LDI", OpLdDict: "LDDICT",
	OpLdRef: "LDREF", OpLdSlice: "LDSLICE", OpLdRefRtoS: "LDREFRTOS",
	OpPushRoot: "PUSHROOT", OpPopRoot: "POPROOT", OpCallRef: "CALLREF",
}

func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op_%d", int(op))
}

// ---------------------------------------------------------------------------
// Instr
// ---------------------------------------------------------------------------

// Instr is a single emitted instruction. For the *VAR, REVX and BLKSWX
// forms Args repeats the operands already pushed by the preceding PUSHINTs;
// they size the stack effect and are not printed.
type Instr struct {
	Op   Opcode
	Args []int
	Int  *uint256.Int // PUSHINT operand, two's complement
	Body []Instr      // CALLREF continuation
}

func (i Instr) String() string {
	switch i.Op {
	case OpPushInt:
		return "PUSHINT " + FormatInt(i.Int)
	case OpCallRef:
		return fmt.Sprintf("CALLREF { %d instrs }", len(i.Body))
	}
	if len(i.Args) == 0 || i.Op.stackOperands() {
		return i.Op.String()
	}
	args := make([]string, len(i.Args))
	for k, a := range i.Args {
		args[k] = fmt.Sprint(a)
	}
	return i.Op.String() + " " + strings.Join(args, ", ")
}

// FormatInt prints a two's complement 256-bit value as a signed decimal.
func FormatInt(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	if x.Sign() < 0 {
		return "-" + new(uint256.Int).Neg(x).ToBig().String()
	}
	return x.ToBig().String()
}

// stackOperands reports whether op takes its operands from the stack.
func (op Opcode) stackOperands() bool {
	switch op {
	case OpRevX, OpBlkSwX, OpTupleVar, OpUntupleVar, OpIndexVar, OpSetIndexVar:
		return true
	}
	return false
}

// stackEffect returns how many entries instr pops and pushes. CALLREF is
// declared by the caller and never passes through here.
func stackEffect(instr Instr) (pops, pushes int) {
	arg := func(k int) int {
		if k < len(instr.Args) {
			return instr.Args[k]
		}
		return 0
	}
	switch instr.Op {
	case OpPushInt, OpNull, OpNewDict, OpNewC, OpPushRoot:
		return 0, 1
	case OpDrop, OpEndS, OpPopRoot:
		return 1, 0
	case OpNip, OpStU, OpStI, OpStDict, OpStRef, OpStSlice, OpStBRefR, OpPair, OpSetIndex:
		return 2, 1
	case OpSwap:
		return 2, 2
	case OpRot, OpRotRev:
		return 3, 3
	case OpReverse:
		return arg(0) + arg(1), arg(0) + arg(1)
	case OpBlkSwap:
		return arg(0) + arg(1), arg(0) + arg(1)
	case OpRevX, OpBlkSwX:
		return arg(0) + arg(1) + 2, arg(0) + arg(1)
	case OpTuple:
		return arg(0), 1
	case OpUntuple:
		return 1, arg(0)
	case OpTupleVar:
		return arg(0) + 1, 1
	case OpUntupleVar:
		return 2, arg(0)
	case OpIndexVar:
		return 2, 1
	case OpSetIndexVar:
		return 3, 1
	case OpIndex, OpEndC, OpCtoS:
		return 1, 1
	case OpUnpair, OpLdU, OpLdI, OpLdDict, OpLdRef, OpLdSlice, OpLdRefRtoS:
		return 1, 2
	}
	Abortf(instr.Op.String(), "no declared stack effect")
	return 0, 0
}
