package compiler

import "github.com/xirelogy/go-lune/bytecode"

// exprKind tags the state of an expression descriptor.
type exprKind int

const (
	kindVoid     exprKind = iota // no value
	kindNil                      // literal nil
	kindTrue                     // literal true
	kindFalse                    // literal false
	kindConst                    // info = constant pool index
	kindNumber                   // num = literal value, not yet pooled
	kindLocal                    // info = local register
	kindUpvalue                  // info = upvalue index
	kindGlobal                   // info = constant index of the global's name
	kindIndexed                  // tableReg = base register, key = RK operand
	kindJump                     // info = pending-jump handle
	kindReloc                    // info = pc of instruction with open destination
	kindNonReloc                 // info = fixed result register
	kindCall                     // info = pc of the CALL instruction
	kindVararg                   // info = pc of the VARARG instruction
)

// exprDesc describes an expression during code generation. Descriptors are
// transient: they are produced and consumed within a single statement.
type exprDesc struct {
	kind     exprKind
	info     int
	num      float64   // payload for kindNumber
	tableReg int       // payload for kindIndexed
	key      rkOperand // payload for kindIndexed
	t, f     jumpList  // pending jumps taken when the value is true / false
}

func makeExpr(kind exprKind, info int) exprDesc {
	return exprDesc{kind: kind, info: info, t: noJump, f: noJump}
}

func numberExpr(n float64) exprDesc {
	e := makeExpr(kindNumber, 0)
	e.num = n
	return e
}

// hasJumps reports whether any short-circuit jump is still pending on the
// expression, forcing materialization through a register.
func (e exprDesc) hasJumps() bool { return e.t != noJump || e.f != noJump }

// isNumeral reports whether the expression is a plain numeric literal,
// eligible for constant folding.
func (e exprDesc) isNumeral() bool { return e.kind == kindNumber && !e.hasJumps() }

func (e exprDesc) hasMultipleReturns() bool { return e.kind == kindCall || e.kind == kindVararg }

// rkOperand is a register-or-constant operand in unpacked form. It is
// packed into the RK bit encoding only at the moment an instruction is
// emitted.
type rkOperand struct {
	isConstant bool
	index      int
}

func rkRegister(reg int) rkOperand   { return rkOperand{index: reg} }
func rkConstant(index int) rkOperand { return rkOperand{isConstant: true, index: index} }

// pack produces the bit-level RK encoding.
func (rk rkOperand) pack() int {
	if rk.isConstant {
		return bytecode.RKAsK(rk.index)
	}
	return rk.index
}

// unary and binary operator identifiers, indexing the priority tables.
type unaryOp int

const (
	oprMinus unaryOp = iota
	oprNot
	oprLen
	oprNoUnary
)

type binaryOp int

const (
	oprAdd binaryOp = iota
	oprSub
	oprMul
	oprDiv
	oprMod
	oprPow
	oprConcat
	oprNE
	oprEq
	oprLT
	oprLE
	oprGT
	oprGE
	oprAnd
	oprOr
	oprNoBinary
)

// binaryPriority holds left/right binding priorities; left > right marks a
// right-associative operator. unaryPriority is the single fixed priority
// for all unary operators.
var binaryPriority = [oprNoBinary]struct{ left, right int }{
	oprAdd:    {6, 6},
	oprSub:    {6, 6},
	oprMul:    {7, 7},
	oprDiv:    {7, 7},
	oprMod:    {7, 7},
	oprPow:    {10, 9}, // right associative
	oprConcat: {5, 4},  // right associative
	oprNE:     {3, 3},
	oprEq:     {3, 3},
	oprLT:     {3, 3},
	oprLE:     {3, 3},
	oprGT:     {3, 3},
	oprGE:     {3, 3},
	oprAnd:    {2, 2},
	oprOr:     {1, 1},
}

const unaryPriority = 8
