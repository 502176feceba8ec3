package compiler

import (
	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/token"
)

func unaryOperator(t token.Type) unaryOp {
	switch t {
	case token.Minus:
		return oprMinus
	case token.Not:
		return oprNot
	case token.Hash:
		return oprLen
	}
	return oprNoUnary
}

func binaryOperator(t token.Type) binaryOp {
	switch t {
	case token.Plus:
		return oprAdd
	case token.Minus:
		return oprSub
	case token.Star:
		return oprMul
	case token.Slash:
		return oprDiv
	case token.Percent:
		return oprMod
	case token.Caret:
		return oprPow
	case token.Concat:
		return oprConcat
	case token.Equal:
		return oprEq
	case token.NotEqual:
		return oprNE
	case token.Less:
		return oprLT
	case token.LessEqual:
		return oprLE
	case token.Greater:
		return oprGT
	case token.GreaterEqual:
		return oprGE
	case token.And:
		return oprAnd
	case token.Or:
		return oprOr
	}
	return oprNoBinary
}

func (p *Parser) expression() exprDesc {
	e, _ := p.subExpression(0)
	return e
}

// subExpression climbs operator precedence: operators binding tighter
// than limit are consumed here, looser ones are returned to the caller.
func (p *Parser) subExpression(limit int) (exprDesc, binaryOp) {
	p.enterLevel()
	var e exprDesc
	if uop := unaryOperator(p.tok.Type); uop != oprNoUnary {
		line := p.tok.Line
		p.next()
		operand, _ := p.subExpression(unaryPriority)
		e = p.fs.prefix(uop, operand, line)
	} else {
		e = p.simpleExpression()
	}
	op := binaryOperator(p.tok.Type)
	for op != oprNoBinary && binaryPriority[op].left > limit {
		line := p.tok.Line
		p.next()
		e = p.fs.infix(op, e)
		right, nextOp := p.subExpression(binaryPriority[op].right)
		e = p.fs.posfix(op, e, right, line)
		op = nextOp
	}
	p.leaveLevel()
	return e, op
}

func (p *Parser) simpleExpression() exprDesc {
	var e exprDesc
	switch p.tok.Type {
	case token.Number:
		e = numberExpr(p.tok.Num)
	case token.String:
		e = makeExpr(kindConst, p.fs.stringK(p.tok.Literal))
	case token.Nil:
		e = makeExpr(kindNil, 0)
	case token.True:
		e = makeExpr(kindTrue, 0)
	case token.False:
		e = makeExpr(kindFalse, 0)
	case token.Ellipsis:
		p.checkCondition(p.fs.proto.IsVararg,
			"cannot use '...' outside a vararg function")
		e = makeExpr(kindVararg, p.fs.codeABC(bytecode.OpVararg, 0, 1, 0))
	case token.LBrace:
		return p.constructor()
	case token.Function:
		line := p.tok.Line
		p.next()
		return p.body(false, line)
	default:
		return p.primaryExpression()
	}
	p.next()
	return e
}

// prefixExpression parses a name or a parenthesized expression. The
// parentheses truncate a multi-value expression to one value.
func (p *Parser) prefixExpression() exprDesc {
	switch p.tok.Type {
	case token.LParen:
		line := p.tok.Line
		p.next()
		e := p.expression()
		p.expectMatch(token.RParen, token.LParen, line)
		return p.fs.dischargeVars(e)
	case token.Name:
		return p.singleVar()
	}
	p.syntaxError("unexpected symbol")
	return exprDesc{}
}

// fieldSelect consumes '.' NAME or ':' NAME and indexes v by the name.
func (p *Parser) fieldSelect(v exprDesc) exprDesc {
	fs := p.fs
	v = fs.expToAnyRegister(v)
	p.next() // skip the dot or colon
	key := makeExpr(kindConst, fs.stringK(p.checkName()))
	return fs.indexed(v, key)
}

// index parses '[' expr ']' as a table key.
func (p *Parser) index() exprDesc {
	p.next() // skip '['
	e := p.fs.expToValue(p.expression())
	p.expect(token.RBracket)
	return e
}

func (p *Parser) primaryExpression() exprDesc {
	fs := p.fs
	v := p.prefixExpression()
	for {
		switch p.tok.Type {
		case token.Dot:
			v = p.fieldSelect(v)
		case token.LBracket:
			v = fs.expToAnyRegister(v)
			v = fs.indexed(v, p.index())
		case token.Colon:
			p.next()
			key := makeExpr(kindConst, fs.stringK(p.checkName()))
			v = fs.self(v, key)
			v = p.functionArguments(v)
		case token.LParen, token.String, token.LBrace:
			v = fs.expToNextRegister(v)
			v = p.functionArguments(v)
		default:
			return v
		}
	}
}

func (p *Parser) functionArguments(f exprDesc) exprDesc {
	fs := p.fs
	var args exprDesc
	line := p.tok.Line
	switch p.tok.Type {
	case token.LParen:
		if line != p.lastLine {
			p.syntaxError("ambiguous syntax (function call x new statement)")
		}
		p.next()
		if p.tok.Type == token.RParen {
			args = makeExpr(kindVoid, 0)
		} else {
			args, _ = p.expressionList()
			fs.setReturns(args, bytecode.MultRet)
		}
		p.expectMatch(token.RParen, token.LParen, line)
	case token.LBrace:
		args = p.constructor()
	case token.String:
		args = makeExpr(kindConst, fs.stringK(p.tok.Literal))
		p.next()
	default:
		p.syntaxError("function arguments expected")
	}
	fs.assert(f.kind == kindNonReloc, "callee not in a register")
	base := f.info
	numArgs := bytecode.MultRet
	if !args.hasMultipleReturns() {
		if args.kind != kindVoid {
			fs.expToNextRegister(args)
		}
		numArgs = fs.freeReg - (base + 1)
	}
	e := makeExpr(kindCall, fs.codeABC(bytecode.OpCall, base, numArgs+1, 2))
	fs.fixLine(line)
	// the call removes the function and arguments, leaving one result
	fs.freeReg = base + 1
	return e
}

// expressionList parses one or more comma-separated expressions, leaving
// all but the last closed into consecutive registers.
func (p *Parser) expressionList() (exprDesc, int) {
	e := p.expression()
	n := 1
	for p.testNext(token.Comma) {
		p.fs.expToNextRegister(e)
		e = p.expression()
		n++
	}
	return e, n
}

// ---- table constructors ----

// constructorState tracks a table constructor in progress: the pending
// array item, counts of array and hash parts, and the unflushed run.
type constructorState struct {
	value    exprDesc
	table    *exprDesc
	numHash  int
	numArray int
	toStore  int
}

// intToFloatingByte converts a count to the "floating byte" encoding
// (eeeeexxx, value xxx*2^(eeeee-1)) used for NEWTABLE size hints.
func intToFloatingByte(x int) int {
	e := 0
	for x >= 16 {
		x = (x + 1) >> 1
		e++
	}
	if x < 8 {
		return x
	}
	return ((e + 1) << 3) | (x - 8)
}

// recordField parses NAME = expr or [expr] = expr inside a constructor.
func (p *Parser) recordField(cs *constructorState) {
	fs := p.fs
	reg := fs.freeReg
	var key exprDesc
	if p.tok.Type == token.Name {
		key = makeExpr(kindConst, fs.stringK(p.checkName()))
	} else { // '['
		key = p.index()
	}
	cs.numHash++
	p.expect(token.Assign)
	_, keyRK := fs.expToRK(key)
	_, valueRK := fs.expToRK(p.expression())
	fs.codeABC(bytecode.OpSetTable, cs.table.info, keyRK.pack(), valueRK.pack())
	fs.freeReg = reg // key and value registers are scratch
}

func (p *Parser) listField(cs *constructorState) {
	cs.value = p.expression()
	cs.numArray++
	cs.toStore++
}

// closeListField settles the previous array item into its register and
// flushes a full run.
func (p *Parser) closeListField(cs *constructorState) {
	fs := p.fs
	if cs.value.kind == kindVoid {
		return // no pending item
	}
	fs.expToNextRegister(cs.value)
	cs.value = makeExpr(kindVoid, 0)
	if cs.toStore == bytecode.FieldsPerFlush {
		fs.setList(cs.table.info, cs.numArray, cs.toStore)
		cs.toStore = 0
	}
}

// lastListField flushes the final run; a trailing multi-value expression
// is left open so the table takes all its results.
func (p *Parser) lastListField(cs *constructorState) {
	fs := p.fs
	if cs.toStore == 0 {
		return
	}
	if cs.value.hasMultipleReturns() {
		fs.setReturns(cs.value, bytecode.MultRet)
		fs.setList(cs.table.info, cs.numArray, bytecode.MultRet)
		cs.numArray-- // unknown element count; not part of the size hint
	} else {
		if cs.value.kind != kindVoid {
			fs.expToNextRegister(cs.value)
		}
		fs.setList(cs.table.info, cs.numArray, cs.toStore)
	}
}

func (p *Parser) constructor() exprDesc {
	fs := p.fs
	line := p.tok.Line
	pc := fs.codeABC(bytecode.OpNewTable, 0, 0, 0)
	t := makeExpr(kindReloc, pc)
	t = fs.expToNextRegister(t) // anchor the table at the stack top
	cs := constructorState{value: makeExpr(kindVoid, 0), table: &t}
	p.expect(token.LBrace)
	for {
		fs.assert(cs.value.kind == kindVoid || cs.toStore > 0, "dangling constructor item")
		if p.tok.Type == token.RBrace {
			break
		}
		p.closeListField(&cs)
		switch p.tok.Type {
		case token.Name:
			if p.lx.Lookahead().Type == token.Assign {
				p.recordField(&cs)
			} else {
				p.listField(&cs)
			}
		case token.LBracket:
			p.recordField(&cs)
		default:
			p.listField(&cs)
		}
		if !p.testNext(token.Comma) && !p.testNext(token.Semicolon) {
			break
		}
	}
	p.expectMatch(token.RBrace, token.LBrace, line)
	p.lastListField(&cs)
	i := &fs.proto.Code[pc]
	i.SetB(intToFloatingByte(cs.numArray)) // initial array size
	i.SetC(intToFloatingByte(cs.numHash))  // initial hash size
	return t
}
