package compiler

import (
	"math"

	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/lerrors"
)

// noRegister marks "no destination register" when patching TESTSET chains.
const noRegister = bytecode.MaxArgA

func not(b int) int {
	if b == 0 {
		return 1
	}
	return 0
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// ---- instruction emission ----

// code appends one instruction, flushing any jumps pending to this
// position first, and returns its pc.
func (fs *FuncState) code(i bytecode.Instruction) int {
	fs.dischargePendingJumps()
	fs.proto.Code = append(fs.proto.Code, i)
	fs.proto.Lines = append(fs.proto.Lines, int32(fs.p.lastLine))
	fs.pc++
	return fs.pc - 1
}

func (fs *FuncState) codeABC(op bytecode.OpCode, a, b, c int) int {
	fs.assert(op.Mode() == bytecode.ModeABC, "ABC layout expected")
	fs.assert(op.BMode() != bytecode.OpArgN || b == 0, "unused B operand set")
	fs.assert(op.CMode() != bytecode.OpArgN || c == 0, "unused C operand set")
	return fs.code(bytecode.CreateABC(op, a, b, c))
}

func (fs *FuncState) codeABx(op bytecode.OpCode, a, bx int) int {
	fs.assert(op.Mode() == bytecode.ModeABx, "ABx layout expected")
	return fs.code(bytecode.CreateABx(op, a, bx))
}

func (fs *FuncState) codeAsBx(op bytecode.OpCode, a, sbx int) int {
	fs.assert(op.Mode() == bytecode.ModeAsBx, "AsBx layout expected")
	return fs.code(bytecode.CreateAsBx(op, a, sbx))
}

// instructionOf returns the instruction an expression descriptor refers to.
func (fs *FuncState) instructionOf(e exprDesc) *bytecode.Instruction {
	return &fs.proto.Code[e.info]
}

// fixLine retargets the line attribution of the last emitted instruction;
// used when an operator's code is emitted after its operands' lines.
func (fs *FuncState) fixLine(line int) {
	fs.proto.Lines[fs.pc-1] = int32(line)
}

// ---- register allocation (LIFO) ----

// checkStack verifies that n more registers fit under the register file
// limit and grows the recorded stack requirement.
func (fs *FuncState) checkStack(n int) {
	if n += fs.freeReg; n >= maxRegisters {
		lerrors.Raise(&lerrors.Error{
			Kind:    lerrors.Limit,
			Source:  fs.proto.Source,
			Line:    fs.p.lastLine,
			Message: "function or expression too complex",
		})
	} else if n > fs.proto.MaxStackSize {
		fs.proto.MaxStackSize = n
	}
}

func (fs *FuncState) reserveRegs(n int) {
	fs.checkStack(n)
	fs.freeReg += n
}

// freeRegister releases a scratch register. Only the most recently
// reserved non-local register may be released.
func (fs *FuncState) freeRegister(reg int) {
	if reg >= fs.numActive {
		fs.freeReg--
		fs.assert(reg == fs.freeReg, "register freed out of order")
	}
}

func (fs *FuncState) freeRK(rk rkOperand) {
	if !rk.isConstant {
		fs.freeRegister(rk.index)
	}
}

func (fs *FuncState) freeExpr(e exprDesc) {
	if e.kind == kindNonReloc {
		fs.freeRegister(e.info)
	}
}

// ---- constant pool ----

// addConstant interns a value in the pool, reusing an existing slot for an
// equal value. key may differ from v to keep problematic map keys (minus
// zero) distinct.
func (fs *FuncState) addConstant(key, v bytecode.Value) int {
	if idx, ok := fs.constants[key]; ok {
		return idx
	}
	fs.checkLimit(len(fs.proto.Constants)+1, bytecode.MaxArgBx, "constants")
	idx := len(fs.proto.Constants)
	fs.constants[key] = idx
	fs.proto.Constants = append(fs.proto.Constants, v)
	return idx
}

func (fs *FuncState) stringK(s string) int {
	v := bytecode.String(s)
	return fs.addConstant(v, v)
}

func (fs *FuncState) numberK(n float64) int {
	// minus zero compares equal to zero as a map key; give it its own slot
	// under a key no other constant can produce
	if n == 0 && math.Signbit(n) {
		key := bytecode.Value{Kind: bytecode.KindNumber, Str: "-0"}
		return fs.addConstant(key, bytecode.Number(n))
	}
	v := bytecode.Number(n)
	return fs.addConstant(v, v)
}

func (fs *FuncState) boolK(b bool) int {
	v := bytecode.Bool(b)
	return fs.addConstant(v, v)
}

func (fs *FuncState) nilK() int {
	return fs.addConstant(bytecode.Nil(), bytecode.Nil())
}

// ---- jump lists ----

// newJump allocates an arena record for a pending jump at pc.
func (fs *FuncState) newJump(pc int) jumpList {
	fs.jumps = append(fs.jumps, jumpNode{pc: pc, next: noJump})
	return len(fs.jumps) - 1
}

// concat appends list l2 to l1 and returns the combined list.
func (fs *FuncState) concat(l1, l2 jumpList) jumpList {
	switch {
	case l2 == noJump:
		return l1
	case l1 == noJump:
		return l2
	}
	end := l1
	for fs.jumps[end].next != noJump {
		end = fs.jumps[end].next
	}
	fs.jumps[end].next = l2
	return l1
}

// fixJump finalizes one pending jump, writing the real offset into its
// instruction. This is the only place a jump offset is written.
func (fs *FuncState) fixJump(j jumpList, target int) {
	node := &fs.jumps[j]
	offset := target - (node.pc + 1)
	if abs(offset) > bytecode.MaxArgSBx {
		lerrors.Raise(&lerrors.Error{
			Kind:    lerrors.Limit,
			Source:  fs.proto.Source,
			Line:    fs.p.lastLine,
			Message: "control structure too long",
		})
	}
	fs.proto.Code[node.pc].SetSBx(offset)
	node.patched = true
}

// label marks the current position as a jump target, blocking peephole
// merges across it.
func (fs *FuncState) label() int {
	fs.lastTarget = fs.pc
	return fs.pc
}

// emitJump emits an unconditional jump and returns its pending list,
// folded together with any jumps that were pending to this position (they
// now jump wherever the new jump ends up going).
func (fs *FuncState) emitJump() jumpList {
	here := fs.pendingHere
	fs.pendingHere = noJump
	pc := fs.codeAsBx(bytecode.OpJmp, 0, 0)
	return fs.concat(fs.newJump(pc), here)
}

func (fs *FuncState) jumpTo(target int) {
	fs.patchList(fs.emitJump(), target)
}

// jumpControl returns the instruction controlling the jump at pc: the
// preceding test instruction when there is one, else the jump itself.
func (fs *FuncState) jumpControl(pc int) *bytecode.Instruction {
	if pc >= 1 && fs.proto.Code[pc-1].OpCode().IsTest() {
		return &fs.proto.Code[pc-1]
	}
	return &fs.proto.Code[pc]
}

// needValue reports whether some jump in the list requires the expression
// value to be materialized in a register.
func (fs *FuncState) needValue(list jumpList) bool {
	for j := list; j != noJump; j = fs.jumps[j].next {
		if fs.jumpControl(fs.jumps[j].pc).OpCode() != bytecode.OpTestSet {
			return true
		}
	}
	return false
}

// patchTestRegister rewrites the value-producing half of a TESTSET jump:
// either redirecting its destination register, or degrading it to a plain
// TEST when no consumer needs the value.
func (fs *FuncState) patchTestRegister(j jumpList, reg int) bool {
	i := fs.jumpControl(fs.jumps[j].pc)
	if i.OpCode() != bytecode.OpTestSet {
		return false
	}
	if reg != noRegister && reg != i.B() {
		i.SetA(reg)
	} else {
		*i = bytecode.CreateABC(bytecode.OpTest, i.B(), 0, i.C())
	}
	return true
}

func (fs *FuncState) removeValues(list jumpList) {
	for j := list; j != noJump; j = fs.jumps[j].next {
		fs.patchTestRegister(j, noRegister)
	}
}

func (fs *FuncState) patchListAux(list jumpList, valueTarget, reg, defaultTarget int) {
	for j := list; j != noJump; {
		next := fs.jumps[j].next
		if fs.patchTestRegister(j, reg) {
			fs.fixJump(j, valueTarget)
		} else {
			fs.fixJump(j, defaultTarget)
		}
		j = next
	}
}

func (fs *FuncState) dischargePendingJumps() {
	fs.patchListAux(fs.pendingHere, fs.pc, noRegister, fs.pc)
	fs.pendingHere = noJump
}

// patchList points every jump in the list at an already emitted target.
func (fs *FuncState) patchList(list jumpList, target int) {
	if target == fs.pc {
		fs.patchToHere(list)
		return
	}
	fs.assert(target < fs.pc, "jump target not yet emitted")
	fs.patchListAux(list, target, noRegister, target)
}

// patchToHere defers the list into the pending accumulator, to be flushed
// to whatever instruction is emitted next.
func (fs *FuncState) patchToHere(list jumpList) {
	fs.label()
	fs.pendingHere = fs.concat(fs.pendingHere, list)
}

// ---- returns and calls ----

func (fs *FuncState) returnNone() {
	fs.codeABC(bytecode.OpReturn, 0, 1, 0)
}

// setReturns fixes the number of results an open call or vararg produces.
func (fs *FuncState) setReturns(e exprDesc, resultCount int) {
	if e.kind == kindCall {
		fs.instructionOf(e).SetC(resultCount + 1)
	} else if e.kind == kindVararg {
		// B holds the value count plus one; zero means all remaining values
		fs.instructionOf(e).SetB(resultCount + 1)
		fs.instructionOf(e).SetA(fs.freeReg)
		fs.reserveRegs(1)
	}
}

// setOneReturn closes an open call or vararg down to a single result.
func (fs *FuncState) setOneReturn(e exprDesc) exprDesc {
	if e.kind == kindCall {
		e.kind, e.info = kindNonReloc, fs.instructionOf(e).A()
	} else if e.kind == kindVararg {
		fs.instructionOf(e).SetB(2)
		e.kind = kindReloc
	}
	return e
}

// ---- expression discharge ----

// dischargeVars turns a variable reference into a readable expression,
// emitting the access instruction where one is needed.
func (fs *FuncState) dischargeVars(e exprDesc) exprDesc {
	switch e.kind {
	case kindLocal:
		e.kind = kindNonReloc
	case kindUpvalue:
		e.kind, e.info = kindReloc, fs.codeABC(bytecode.OpGetUpval, 0, e.info, 0)
	case kindGlobal:
		e.kind, e.info = kindReloc, fs.codeABx(bytecode.OpGetGlobal, 0, e.info)
	case kindIndexed:
		fs.freeRK(e.key)
		fs.freeRegister(e.tableReg)
		e.kind, e.info = kindReloc, fs.codeABC(bytecode.OpGetTable, 0, e.tableReg, e.key.pack())
	case kindCall, kindVararg:
		e = fs.setOneReturn(e)
	}
	return e
}

// loadNil emits LOADNIL for n registers starting at from, merging into a
// directly preceding LOADNIL when no jump target intervenes.
func (fs *FuncState) loadNil(from, n int) {
	if fs.pc > fs.lastTarget { // no jumps to current position
		if fs.pc == 0 {
			if from >= fs.numActive {
				return // registers are nil on function entry
			}
		} else if previous := &fs.proto.Code[fs.pc-1]; previous.OpCode() == bytecode.OpLoadNil {
			pfrom, pto := previous.A(), previous.B()
			if pfrom <= from && from <= pto+1 { // ranges connect
				if from+n-1 > pto {
					previous.SetB(from + n - 1)
				}
				return
			}
		}
	}
	fs.codeABC(bytecode.OpLoadNil, from, from+n-1, 0)
}

func (fs *FuncState) dischargeToRegister(e exprDesc, reg int) exprDesc {
	e = fs.dischargeVars(e)
	switch e.kind {
	case kindNil:
		fs.loadNil(reg, 1)
	case kindFalse:
		fs.codeABC(bytecode.OpLoadBool, reg, 0, 0)
	case kindTrue:
		fs.codeABC(bytecode.OpLoadBool, reg, 1, 0)
	case kindConst:
		fs.codeABx(bytecode.OpLoadK, reg, e.info)
	case kindNumber:
		fs.codeABx(bytecode.OpLoadK, reg, fs.numberK(e.num))
	case kindReloc:
		fs.instructionOf(e).SetA(reg)
	case kindNonReloc:
		if reg != e.info {
			fs.codeABC(bytecode.OpMove, reg, e.info, 0)
		}
	default:
		fs.assert(e.kind == kindVoid || e.kind == kindJump, "expression cannot be discharged")
		return e // nothing to do
	}
	e.kind, e.info = kindNonReloc, reg
	return e
}

func (fs *FuncState) dischargeToAnyRegister(e exprDesc) exprDesc {
	if e.kind != kindNonReloc {
		fs.reserveRegs(1)
		e = fs.dischargeToRegister(e, fs.freeReg-1)
	}
	return e
}

// codeLabel emits a LOADBOOL landing pad used to materialize the value of
// a short-circuit expression.
func (fs *FuncState) codeLabel(reg, b, jump int) int {
	fs.label()
	return fs.codeABC(bytecode.OpLoadBool, reg, b, jump)
}

// expToRegister materializes the expression, including any pending
// short-circuit jumps, into a specific register.
func (fs *FuncState) expToRegister(e exprDesc, reg int) exprDesc {
	e = fs.dischargeToRegister(e, reg)
	if e.kind == kindJump {
		e.t = fs.concat(e.t, e.info)
	}
	if e.hasJumps() {
		loadFalse, loadTrue := noJump, noJump
		if fs.needValue(e.t) || fs.needValue(e.f) {
			skip := noJump
			if e.kind != kindJump {
				skip = fs.emitJump()
			}
			loadFalse = fs.codeLabel(reg, 0, 1)
			loadTrue = fs.codeLabel(reg, 1, 0)
			fs.patchToHere(skip)
		}
		end := fs.label()
		fs.patchListAux(e.f, end, reg, loadFalse)
		fs.patchListAux(e.t, end, reg, loadTrue)
	}
	e.f, e.t = noJump, noJump
	e.kind, e.info = kindNonReloc, reg
	return e
}

// expToNextRegister materializes the expression into a fresh register at
// the top of the frame.
func (fs *FuncState) expToNextRegister(e exprDesc) exprDesc {
	e = fs.dischargeVars(e)
	fs.freeExpr(e)
	fs.reserveRegs(1)
	return fs.expToRegister(e, fs.freeReg-1)
}

// expToAnyRegister materializes the expression into some register,
// reusing the one it already occupies when possible.
func (fs *FuncState) expToAnyRegister(e exprDesc) exprDesc {
	e = fs.dischargeVars(e)
	if e.kind == kindNonReloc {
		if !e.hasJumps() {
			return e
		}
		if e.info >= fs.numActive { // register is not a local; reuse it
			return fs.expToRegister(e, e.info)
		}
	}
	return fs.expToNextRegister(e)
}

// expToValue resolves the expression to a value anywhere (register or
// constant), forcing a register only when jumps are pending.
func (fs *FuncState) expToValue(e exprDesc) exprDesc {
	if e.hasJumps() {
		return fs.expToAnyRegister(e)
	}
	return fs.dischargeVars(e)
}

// expToRK resolves the expression into an unpacked register-or-constant
// operand, preferring the constant pool while indices still fit the RK
// encoding.
func (fs *FuncState) expToRK(e exprDesc) (exprDesc, rkOperand) {
	e = fs.expToValue(e)
	switch e.kind {
	case kindNumber, kindTrue, kindFalse, kindNil:
		if len(fs.proto.Constants) <= bytecode.MaxIndexRK {
			switch e.kind {
			case kindNumber:
				e.info = fs.numberK(e.num)
			case kindNil:
				e.info = fs.nilK()
			default:
				e.info = fs.boolK(e.kind == kindTrue)
			}
			e.kind = kindConst
			return e, rkConstant(e.info)
		}
	case kindConst:
		if e.info <= bytecode.MaxIndexRK {
			return e, rkConstant(e.info)
		}
	}
	e = fs.expToAnyRegister(e)
	return e, rkRegister(e.info)
}

// storeVar assigns the value of e to the variable described by v.
func (fs *FuncState) storeVar(v, e exprDesc) {
	switch v.kind {
	case kindLocal:
		fs.freeExpr(e)
		fs.expToRegister(e, v.info)
		return
	case kindUpvalue:
		e = fs.expToAnyRegister(e)
		fs.codeABC(bytecode.OpSetUpval, e.info, v.info, 0)
	case kindGlobal:
		e = fs.expToAnyRegister(e)
		fs.codeABx(bytecode.OpSetGlobal, e.info, v.info)
	case kindIndexed:
		var rk rkOperand
		e, rk = fs.expToRK(e)
		fs.codeABC(bytecode.OpSetTable, v.tableReg, v.key.pack(), rk.pack())
	default:
		fs.assert(false, "invalid store target")
	}
	fs.freeExpr(e)
}

// self emits the method-call prologue: SELF copies the receiver and looks
// up the method in one instruction.
func (fs *FuncState) self(e, key exprDesc) exprDesc {
	e = fs.expToAnyRegister(e)
	fs.freeExpr(e)
	base := fs.freeReg
	fs.reserveRegs(2) // function and receiver
	key, rk := fs.expToRK(key)
	fs.codeABC(bytecode.OpSelf, base, e.info, rk.pack())
	fs.freeExpr(key)
	return makeExpr(kindNonReloc, base)
}

// indexed forms a table-access descriptor from a table already in a
// register and an arbitrary key expression.
func (fs *FuncState) indexed(t, k exprDesc) exprDesc {
	fs.assert(!t.hasJumps(), "table operand with pending jumps")
	r := makeExpr(kindIndexed, 0)
	r.tableReg = t.info
	_, r.key = fs.expToRK(k)
	return r
}

// ---- boolean structure ----

func (fs *FuncState) invertJump(e exprDesc) {
	i := fs.jumpControl(fs.jumps[e.info].pc)
	op := i.OpCode()
	fs.assert(op.IsTest() && op != bytecode.OpTestSet && op != bytecode.OpTest, "cannot invert jump")
	i.SetA(not(i.A()))
}

func (fs *FuncState) conditionalJump(op bytecode.OpCode, a, b, c int) jumpList {
	fs.codeABC(op, a, b, c)
	return fs.emitJump()
}

// jumpOnCondition emits a conditional jump on the truth of e, collapsing a
// directly preceding NOT into an inverted TEST.
func (fs *FuncState) jumpOnCondition(e exprDesc, cond int) jumpList {
	if e.kind == kindReloc {
		if i := fs.instructionOf(e); i.OpCode() == bytecode.OpNot {
			// remove the NOT and test its operand with inverted sense
			fs.pc--
			fs.proto.Code = fs.proto.Code[:fs.pc]
			fs.proto.Lines = fs.proto.Lines[:fs.pc]
			return fs.conditionalJump(bytecode.OpTest, i.B(), 0, not(cond))
		}
	}
	e = fs.dischargeToAnyRegister(e)
	fs.freeExpr(e)
	return fs.conditionalJump(bytecode.OpTestSet, noRegister, e.info, cond)
}

// goIfTrue arranges for control to continue when e is true, adding the
// false exit to e's false list.
func (fs *FuncState) goIfTrue(e exprDesc) exprDesc {
	pc := noJump // jump taken when e is false
	e = fs.dischargeVars(e)
	switch e.kind {
	case kindConst, kindNumber, kindTrue:
		// always true; no jump
	case kindJump:
		fs.invertJump(e)
		pc = e.info
	default:
		pc = fs.jumpOnCondition(e, 0)
	}
	e.f = fs.concat(e.f, pc)
	fs.patchToHere(e.t)
	e.t = noJump
	return e
}

// goIfFalse mirrors goIfTrue for the false branch.
func (fs *FuncState) goIfFalse(e exprDesc) exprDesc {
	pc := noJump // jump taken when e is true
	e = fs.dischargeVars(e)
	switch e.kind {
	case kindNil, kindFalse:
		// always false; no jump
	case kindJump:
		pc = e.info
	default:
		pc = fs.jumpOnCondition(e, 1)
	}
	e.t = fs.concat(e.t, pc)
	fs.patchToHere(e.f)
	e.f = noJump
	return e
}

// codeNot negates e, inverting a pending jump in place when possible.
func (fs *FuncState) codeNot(e exprDesc) exprDesc {
	e = fs.dischargeVars(e)
	switch e.kind {
	case kindNil, kindFalse:
		e.kind = kindTrue
	case kindConst, kindNumber, kindTrue:
		e.kind = kindFalse
	case kindJump:
		fs.invertJump(e)
	case kindReloc, kindNonReloc:
		e = fs.dischargeToAnyRegister(e)
		fs.freeExpr(e)
		e.info, e.kind = fs.codeABC(bytecode.OpNot, 0, e.info, 0), kindReloc
	default:
		fs.assert(false, "cannot negate expression")
	}
	// interchange true and false lists; values no longer matter
	e.t, e.f = e.f, e.t
	fs.removeValues(e.f)
	fs.removeValues(e.t)
	return e
}

// ---- operators ----

// foldArith evaluates a numeric operation at compile time. Division and
// modulo by a literal zero are never folded, nor is a NaN result, so the
// runtime (including metamethod dispatch) keeps its semantics.
func foldArith(op bytecode.OpCode, e1, e2 exprDesc) (exprDesc, bool) {
	if !e1.isNumeral() || !e2.isNumeral() {
		return e1, false
	}
	if (op == bytecode.OpDiv || op == bytecode.OpMod) && e2.num == 0 {
		return e1, false
	}
	var r float64
	v1, v2 := e1.num, e2.num
	switch op {
	case bytecode.OpAdd:
		r = v1 + v2
	case bytecode.OpSub:
		r = v1 - v2
	case bytecode.OpMul:
		r = v1 * v2
	case bytecode.OpDiv:
		r = v1 / v2
	case bytecode.OpMod:
		r = v1 - math.Floor(v1/v2)*v2
	case bytecode.OpPow:
		r = math.Pow(v1, v2)
	case bytecode.OpUnm:
		r = -v1
	default:
		return e1, false // LEN and friends never fold
	}
	if math.IsNaN(r) {
		return e1, false
	}
	e1.num = r
	return e1, true
}

func (fs *FuncState) codeArith(op bytecode.OpCode, e1, e2 exprDesc, line int) exprDesc {
	if folded, ok := foldArith(op, e1, e2); ok {
		return folded
	}
	var o2 rkOperand
	if op != bytecode.OpUnm && op != bytecode.OpLen {
		e2, o2 = fs.expToRK(e2)
	}
	var o1 rkOperand
	e1, o1 = fs.expToRK(e1)
	if o1.pack() > o2.pack() {
		fs.freeExpr(e1)
		fs.freeExpr(e2)
	} else {
		fs.freeExpr(e2)
		fs.freeExpr(e1)
	}
	e1.info, e1.kind = fs.codeABC(op, 0, o1.pack(), o2.pack()), kindReloc
	fs.fixLine(line)
	return e1
}

func (fs *FuncState) codeComparison(op bytecode.OpCode, cond int, e1, e2 exprDesc) exprDesc {
	e1, o1 := fs.expToRK(e1)
	e2, o2 := fs.expToRK(e2)
	fs.freeExpr(e2)
	fs.freeExpr(e1)
	if cond == 0 && op != bytecode.OpEq {
		o1, o2 = o2, o1 // turn > into <, >= into <=
		cond = 1
	}
	return makeExpr(kindJump, fs.conditionalJump(op, cond, o1.pack(), o2.pack()))
}

// prefix applies a unary operator to e.
func (fs *FuncState) prefix(op unaryOp, e exprDesc, line int) exprDesc {
	switch op {
	case oprMinus:
		if !e.isNumeral() { // never operate on non-numeric constants
			e = fs.expToAnyRegister(e)
		}
		return fs.codeArith(bytecode.OpUnm, e, numberExpr(0), line)
	case oprNot:
		return fs.codeNot(e)
	case oprLen:
		e = fs.expToAnyRegister(e)
		return fs.codeArith(bytecode.OpLen, e, numberExpr(0), line)
	}
	fs.assert(false, "bad unary operator")
	return e
}

// infix fixes the left operand before the right operand is parsed.
func (fs *FuncState) infix(op binaryOp, e exprDesc) exprDesc {
	switch op {
	case oprAnd:
		e = fs.goIfTrue(e)
	case oprOr:
		e = fs.goIfFalse(e)
	case oprConcat:
		e = fs.expToNextRegister(e)
	case oprAdd, oprSub, oprMul, oprDiv, oprMod, oprPow:
		if !e.isNumeral() {
			e, _ = fs.expToRK(e)
		}
	default:
		e, _ = fs.expToRK(e)
	}
	return e
}

// posfix combines both operands once the right one has been parsed.
func (fs *FuncState) posfix(op binaryOp, e1, e2 exprDesc, line int) exprDesc {
	switch op {
	case oprAnd:
		fs.assert(e1.t == noJump, "true list not closed by infix")
		e2 = fs.dischargeVars(e2)
		e2.f = fs.concat(e2.f, e1.f)
		return e2
	case oprOr:
		fs.assert(e1.f == noJump, "false list not closed by infix")
		e2 = fs.dischargeVars(e2)
		e2.t = fs.concat(e2.t, e1.t)
		return e2
	case oprConcat:
		e2 = fs.expToValue(e2)
		if e2.kind == kindReloc && fs.instructionOf(e2).OpCode() == bytecode.OpConcat {
			// fold chained concatenations into one instruction
			fs.assert(e1.info == fs.instructionOf(e2).B()-1, "concat operands not adjacent")
			fs.freeExpr(e1)
			fs.instructionOf(e2).SetB(e1.info)
			e1.kind, e1.info = kindReloc, e2.info
			return e1
		}
		e2 = fs.expToNextRegister(e2) // operands must form a register run
		fs.freeExpr(e2)
		fs.freeExpr(e1)
		e1.info, e1.kind = fs.codeABC(bytecode.OpConcat, 0, e1.info, e2.info), kindReloc
		fs.fixLine(line)
		return e1
	case oprAdd, oprSub, oprMul, oprDiv, oprMod, oprPow:
		return fs.codeArith(arithOp(op), e1, e2, line)
	case oprEq:
		return fs.codeComparison(bytecode.OpEq, 1, e1, e2)
	case oprNE:
		return fs.codeComparison(bytecode.OpEq, 0, e1, e2)
	case oprLT:
		return fs.codeComparison(bytecode.OpLt, 1, e1, e2)
	case oprLE:
		return fs.codeComparison(bytecode.OpLe, 1, e1, e2)
	case oprGT:
		return fs.codeComparison(bytecode.OpLt, 0, e1, e2)
	case oprGE:
		return fs.codeComparison(bytecode.OpLe, 0, e1, e2)
	}
	fs.assert(false, "bad binary operator")
	return e1
}

func arithOp(op binaryOp) bytecode.OpCode {
	switch op {
	case oprAdd:
		return bytecode.OpAdd
	case oprSub:
		return bytecode.OpSub
	case oprMul:
		return bytecode.OpMul
	case oprDiv:
		return bytecode.OpDiv
	case oprMod:
		return bytecode.OpMod
	default:
		return bytecode.OpPow
	}
}

// ---- table constructors ----

// setList flushes pending array items of a constructor. A count that does
// not fit operand C is carried by a trailing raw word.
func (fs *FuncState) setList(base, elementCount, storeCount int) {
	fs.assert(storeCount != 0, "empty SETLIST flush")
	if storeCount == bytecode.MultRet {
		storeCount = 0
	}
	if c := (elementCount-1)/bytecode.FieldsPerFlush + 1; c <= bytecode.MaxArgC {
		fs.codeABC(bytecode.OpSetList, base, storeCount, c)
	} else {
		fs.codeABC(bytecode.OpSetList, base, storeCount, 0)
		fs.code(bytecode.Instruction(c))
	}
	fs.freeReg = base + 1 // free registers with list values
}
