package bytecode

// Instruction is a single 32-bit virtual machine instruction.
//
// Three layouts share the low 6 opcode bits:
//
//	iABC:  C(9) B(9) A(8) Op(6)
//	iABx:  Bx(18)    A(8) Op(6)
//	iAsBx: sBx(18)   A(8) Op(6)   (sBx is Bx biased by MaxArgSBx)
type Instruction uint32

// OpCode identifies the operation of an instruction.
type OpCode int

const (
	OpMove OpCode = iota
	OpLoadK
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetGlobal
	OpGetTable
	OpSetGlobal
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForLoop
	OpSetList
	OpClose
	OpClosure
	OpVararg

	NumOpCodes = int(OpVararg) + 1
)

// Field sizes and limits.
const (
	SizeOp = 6
	SizeA  = 8
	SizeB  = 9
	SizeC  = 9
	SizeBx = SizeB + SizeC

	PosOp = 0
	PosA  = PosOp + SizeOp
	PosC  = PosA + SizeA
	PosB  = PosC + SizeC
	PosBx = PosC

	MaxArgA   = 1<<SizeA - 1
	MaxArgB   = 1<<SizeB - 1
	MaxArgC   = 1<<SizeC - 1
	MaxArgBx  = 1<<SizeBx - 1
	MaxArgSBx = MaxArgBx >> 1
)

// BitRK marks a B/C operand as a constant-pool index instead of a register.
const BitRK = 1 << (SizeB - 1)

// MaxIndexRK is the largest constant index that fits in an RK operand.
const MaxIndexRK = BitRK - 1

// IsK reports whether an RK-encoded operand refers to a constant.
func IsK(arg int) bool { return arg&BitRK != 0 }

// IndexK extracts the constant index from an RK-encoded operand.
func IndexK(arg int) int { return arg &^ BitRK }

// RKAsK encodes a constant index as an RK operand.
func RKAsK(index int) int { return index | BitRK }

// MultRet marks an open argument or result count in CALL/RETURN/VARARG.
const MultRet = -1

// FieldsPerFlush is the number of array items SETLIST stores per flush.
const FieldsPerFlush = 50

// OpMode is the instruction layout of an opcode.
type OpMode int

const (
	ModeABC OpMode = iota
	ModeABx
	ModeAsBx
)

// OpArgMode describes how a B or C operand is used.
type OpArgMode int

const (
	OpArgN OpArgMode = iota // unused
	OpArgU                  // used as-is
	OpArgR                  // register or jump offset
	OpArgK                  // constant or RK operand
)

type opProps struct {
	name string
	mode OpMode
	bArg OpArgMode
	cArg OpArgMode
	setA bool // instruction writes register A
	test bool // next instruction must be a jump
}

var opInfo = [NumOpCodes]opProps{
	OpMove:      {"MOVE", ModeABC, OpArgR, OpArgN, true, false},
	OpLoadK:     {"LOADK", ModeABx, OpArgK, OpArgN, true, false},
	OpLoadBool:  {"LOADBOOL", ModeABC, OpArgU, OpArgU, true, false},
	OpLoadNil:   {"LOADNIL", ModeABC, OpArgR, OpArgN, true, false},
	OpGetUpval:  {"GETUPVAL", ModeABC, OpArgU, OpArgN, true, false},
	OpGetGlobal: {"GETGLOBAL", ModeABx, OpArgK, OpArgN, true, false},
	OpGetTable:  {"GETTABLE", ModeABC, OpArgR, OpArgK, true, false},
	OpSetGlobal: {"SETGLOBAL", ModeABx, OpArgK, OpArgN, false, false},
	OpSetUpval:  {"SETUPVAL", ModeABC, OpArgU, OpArgN, false, false},
	OpSetTable:  {"SETTABLE", ModeABC, OpArgK, OpArgK, false, false},
	OpNewTable:  {"NEWTABLE", ModeABC, OpArgU, OpArgU, true, false},
	OpSelf:      {"SELF", ModeABC, OpArgR, OpArgK, true, false},
	OpAdd:       {"ADD", ModeABC, OpArgK, OpArgK, true, false},
	OpSub:       {"SUB", ModeABC, OpArgK, OpArgK, true, false},
	OpMul:       {"MUL", ModeABC, OpArgK, OpArgK, true, false},
	OpDiv:       {"DIV", ModeABC, OpArgK, OpArgK, true, false},
	OpMod:       {"MOD", ModeABC, OpArgK, OpArgK, true, false},
	OpPow:       {"POW", ModeABC, OpArgK, OpArgK, true, false},
	OpUnm:       {"UNM", ModeABC, OpArgR, OpArgN, true, false},
	OpNot:       {"NOT", ModeABC, OpArgR, OpArgN, true, false},
	OpLen:       {"LEN", ModeABC, OpArgR, OpArgN, true, false},
	OpConcat:    {"CONCAT", ModeABC, OpArgR, OpArgR, true, false},
	OpJmp:       {"JMP", ModeAsBx, OpArgR, OpArgN, false, false},
	OpEq:        {"EQ", ModeABC, OpArgK, OpArgK, false, true},
	OpLt:        {"LT", ModeABC, OpArgK, OpArgK, false, true},
	OpLe:        {"LE", ModeABC, OpArgK, OpArgK, false, true},
	OpTest:      {"TEST", ModeABC, OpArgR, OpArgU, false, true},
	OpTestSet:   {"TESTSET", ModeABC, OpArgR, OpArgU, true, true},
	OpCall:      {"CALL", ModeABC, OpArgU, OpArgU, true, false},
	OpTailCall:  {"TAILCALL", ModeABC, OpArgU, OpArgU, true, false},
	OpReturn:    {"RETURN", ModeABC, OpArgU, OpArgN, false, false},
	OpForLoop:   {"FORLOOP", ModeAsBx, OpArgR, OpArgN, true, false},
	OpForPrep:   {"FORPREP", ModeAsBx, OpArgR, OpArgN, true, false},
	OpTForLoop:  {"TFORLOOP", ModeABC, OpArgN, OpArgU, true, true},
	OpSetList:   {"SETLIST", ModeABC, OpArgU, OpArgU, false, false},
	OpClose:     {"CLOSE", ModeABC, OpArgN, OpArgN, false, false},
	OpClosure:   {"CLOSURE", ModeABx, OpArgU, OpArgN, true, false},
	OpVararg:    {"VARARG", ModeABC, OpArgU, OpArgN, true, false},
}

// String returns the assembler name for the opcode.
func (op OpCode) String() string {
	if int(op) < 0 || int(op) >= NumOpCodes {
		return "INVALID"
	}
	return opInfo[op].name
}

// Mode reports the instruction layout used by the opcode.
func (op OpCode) Mode() OpMode { return opInfo[op].mode }

// BMode reports how the opcode uses its B operand.
func (op OpCode) BMode() OpArgMode { return opInfo[op].bArg }

// CMode reports how the opcode uses its C operand.
func (op OpCode) CMode() OpArgMode { return opInfo[op].cArg }

// SetsA reports whether the opcode writes to register A.
func (op OpCode) SetsA() bool { return opInfo[op].setA }

// IsTest reports whether the opcode is a test that must be followed by a jump.
func (op OpCode) IsTest() bool { return opInfo[op].test }

// CreateABC builds an iABC instruction.
func CreateABC(op OpCode, a, b, c int) Instruction {
	return Instruction(op)<<PosOp |
		Instruction(a)<<PosA |
		Instruction(b)<<PosB |
		Instruction(c)<<PosC
}

// CreateABx builds an iABx instruction.
func CreateABx(op OpCode, a, bx int) Instruction {
	return Instruction(op)<<PosOp |
		Instruction(a)<<PosA |
		Instruction(bx)<<PosBx
}

// CreateAsBx builds an iAsBx instruction with a signed offset.
func CreateAsBx(op OpCode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+MaxArgSBx)
}

// OpCode extracts the operation.
func (i Instruction) OpCode() OpCode { return OpCode(i >> PosOp & (1<<SizeOp - 1)) }

// A extracts the A operand.
func (i Instruction) A() int { return int(i >> PosA & MaxArgA) }

// B extracts the B operand.
func (i Instruction) B() int { return int(i >> PosB & MaxArgB) }

// C extracts the C operand.
func (i Instruction) C() int { return int(i >> PosC & MaxArgC) }

// Bx extracts the unsigned 18-bit operand.
func (i Instruction) Bx() int { return int(i >> PosBx & MaxArgBx) }

// SBx extracts the signed 18-bit operand.
func (i Instruction) SBx() int { return i.Bx() - MaxArgSBx }

// SetOpCode replaces the operation in place.
func (i *Instruction) SetOpCode(op OpCode) { i.setField(int(op), PosOp, SizeOp) }

// SetA replaces the A operand in place.
func (i *Instruction) SetA(a int) { i.setField(a, PosA, SizeA) }

// SetB replaces the B operand in place.
func (i *Instruction) SetB(b int) { i.setField(b, PosB, SizeB) }

// SetC replaces the C operand in place.
func (i *Instruction) SetC(c int) { i.setField(c, PosC, SizeC) }

// SetBx replaces the unsigned 18-bit operand in place.
func (i *Instruction) SetBx(bx int) { i.setField(bx, PosBx, SizeBx) }

// SetSBx replaces the signed 18-bit operand in place.
func (i *Instruction) SetSBx(sbx int) { i.SetBx(sbx + MaxArgSBx) }

func (i *Instruction) setField(v, pos, size int) {
	mask := Instruction(1<<size-1) << pos
	*i = *i&^mask | Instruction(v)<<pos&mask
}
