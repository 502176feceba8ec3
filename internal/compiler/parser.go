// Package compiler translates Lua source directly into register-machine
// bytecode. The parser is a single-pass recursive descent over the token
// stream; there is no syntax tree, each production emits code as it is
// recognized.
package compiler

import (
	"fmt"
	"io"

	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/lerrors"
	"github.com/xirelogy/go-lune/internal/lexer"
	"github.com/xirelogy/go-lune/internal/token"
)

// DefaultMaxDepth bounds the nesting of syntactic constructs; each nested
// expression, block or statement consumes one level.
const DefaultMaxDepth = 200

// Parser drives the lexer and owns the stack of function states, one per
// lexically enclosing function body.
type Parser struct {
	lx       *lexer.Lexer
	tok      token.Token
	lastLine int // line of the last consumed token
	fs       *FuncState
	frames   []*FuncState
	depth    int
	maxDepth int
}

// Compile reads a chunk from r and compiles it to a function prototype.
// Failures are reported by panicking with *lerrors.Error; the public API
// recovers them.
func Compile(r io.Reader, source string, decPoint byte, maxDepth int) *bytecode.Proto {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	p := &Parser{lx: lexer.New(r, source, decPoint), maxDepth: maxDepth}
	fs := p.openFunc(0)
	fs.proto.IsVararg = true // main chunk receives arguments as ...
	p.tok = p.lx.Next()
	p.lastLine = p.tok.Line
	p.chunk()
	if p.tok.Type != token.EOF {
		p.errorExpected(token.EOF)
	}
	return p.closeFunc()
}

// ---- token plumbing ----

func (p *Parser) next() {
	p.lastLine = p.tok.Line
	p.tok = p.lx.Next()
}

func (p *Parser) testNext(t token.Type) bool {
	if p.tok.Type != t {
		return false
	}
	p.next()
	return true
}

func (p *Parser) expect(t token.Type) {
	if p.tok.Type != t {
		p.errorExpected(t)
	}
	p.next()
}

// expectMatch consumes the closing token of a delimited construct,
// pointing the error at the opening line when they differ.
func (p *Parser) expectMatch(what, who token.Type, line int) {
	if p.testNext(what) {
		return
	}
	if p.tok.Line == line {
		p.errorExpected(what)
		return
	}
	p.syntaxError(fmt.Sprintf("'%s' expected (to close '%s' at line %d)",
		token.TypeText(what), token.TypeText(who), line))
}

func (p *Parser) checkName() string {
	if p.tok.Type != token.Name {
		p.errorExpected(token.Name)
	}
	name := p.tok.Literal
	p.next()
	return name
}

func (p *Parser) syntaxError(msg string) {
	lerrors.Raise(&lerrors.Error{
		Kind:    lerrors.Syntax,
		Source:  p.lx.Source(),
		Line:    p.tok.Line,
		Message: msg,
		Near:    p.tok.Text(),
	})
}

func (p *Parser) errorExpected(t token.Type) {
	p.syntaxError(fmt.Sprintf("'%s' expected", token.TypeText(t)))
}

func (p *Parser) checkCondition(cond bool, msg string) {
	if !cond {
		p.syntaxError(msg)
	}
}

func (p *Parser) enterLevel() {
	p.depth++
	if p.depth > p.maxDepth {
		lerrors.Raise(&lerrors.Error{
			Kind:    lerrors.Limit,
			Source:  p.lx.Source(),
			Line:    p.tok.Line,
			Message: "chunk has too many syntax levels",
		})
	}
}

func (p *Parser) leaveLevel() { p.depth-- }

// ---- function state stack ----

func (p *Parser) openFunc(line int) *FuncState {
	fs := newFuncState(p, p.lx.Source(), line)
	p.frames = append(p.frames, fs)
	p.fs = fs
	return fs
}

func (p *Parser) closeFunc() *bytecode.Proto {
	proto := p.fs.finish()
	p.frames = p.frames[:len(p.frames)-1]
	if len(p.frames) > 0 {
		p.fs = p.frames[len(p.frames)-1]
	} else {
		p.fs = nil
	}
	return proto
}

// singleVar resolves a name to a local, an upvalue captured through any
// number of enclosing functions, or a global.
func (p *Parser) singleVar() exprDesc {
	name := p.checkName()
	e := p.resolveVar(len(p.frames)-1, name, true)
	if e.kind == kindGlobal {
		e.info = p.fs.stringK(name)
	}
	return e
}

func (p *Parser) resolveVar(level int, name string, base bool) exprDesc {
	if level < 0 { // not found anywhere; it is a global
		return makeExpr(kindGlobal, noRegister)
	}
	fs := p.frames[level]
	if idx, ok := fs.findLocal(name); ok {
		if !base {
			fs.markUpvalue(idx)
		}
		return makeExpr(kindLocal, idx)
	}
	outer := p.resolveVar(level-1, name, false)
	if outer.kind == kindGlobal {
		return outer
	}
	kind := bytecode.UpvalueOuter
	if outer.kind == kindLocal {
		kind = bytecode.UpvalueLocal
	}
	if idx, ok := fs.findUpvalue(kind, outer.info); ok {
		return makeExpr(kindUpvalue, idx)
	}
	return makeExpr(kindUpvalue, fs.addUpvalue(name, kind, outer.info))
}

// ---- function bodies ----

func (p *Parser) parameterList() {
	fs := p.fs
	numParams := 0
	if p.tok.Type != token.RParen {
		for {
			switch p.tok.Type {
			case token.Name:
				fs.registerLocal(p.checkName())
				numParams++
			case token.Ellipsis:
				p.next()
				fs.proto.IsVararg = true
			default:
				p.syntaxError("<name> or '...' expected")
			}
			if fs.proto.IsVararg || !p.testNext(token.Comma) {
				break
			}
		}
	}
	fs.adjustLocals(numParams)
	fs.proto.NumParams = fs.numActive
	fs.reserveRegs(fs.numActive)
}

// body parses '(' params ')' chunk 'end' in a fresh function state and
// leaves a closure expression for the enclosing function.
func (p *Parser) body(needSelf bool, line int) exprDesc {
	p.openFunc(line)
	p.expect(token.LParen)
	if needSelf {
		p.fs.registerLocal("self")
		p.fs.adjustLocals(1)
	}
	p.parameterList()
	p.expect(token.RParen)
	p.chunk()
	p.expectMatch(token.End, token.Function, line)
	return p.pushClosure(p.closeFunc())
}

// pushClosure emits CLOSURE followed by one capture pseudo-instruction per
// upvalue; the loader consumes those to bind the closure.
func (p *Parser) pushClosure(proto *bytecode.Proto) exprDesc {
	fs := p.fs
	fs.checkLimit(len(fs.proto.Protos)+1, bytecode.MaxArgBx, "functions")
	fs.proto.Protos = append(fs.proto.Protos, proto)
	e := makeExpr(kindReloc, fs.codeABx(bytecode.OpClosure, 0, len(fs.proto.Protos)-1))
	for _, uv := range proto.Upvalues {
		if uv.Kind == bytecode.UpvalueLocal {
			fs.codeABC(bytecode.OpMove, 0, uv.Index, 0)
		} else {
			fs.codeABC(bytecode.OpGetUpval, 0, uv.Index, 0)
		}
	}
	return e
}

// ---- statements ----

func blockFollow(t token.Type) bool {
	switch t {
	case token.Else, token.ElseIf, token.End, token.Until, token.EOF:
		return true
	}
	return false
}

// chunk parses a statement sequence until a block terminator.
func (p *Parser) chunk() {
	p.enterLevel()
	last := false
	for !last && !blockFollow(p.tok.Type) {
		last = p.statement()
		p.testNext(token.Semicolon)
		p.fs.assert(p.fs.freeReg >= p.fs.numActive, "registers below locals")
		p.fs.freeReg = p.fs.numActive // discard statement temporaries
	}
	p.leaveLevel()
}

func (p *Parser) block() {
	p.fs.enterBlock(false)
	p.chunk()
	p.fs.leaveBlock()
}

// statement reports whether it parsed a statement that must close the
// block (return or break).
func (p *Parser) statement() bool {
	line := p.tok.Line
	switch p.tok.Type {
	case token.If:
		p.ifStatement(line)
	case token.While:
		p.whileStatement(line)
	case token.Do:
		p.next()
		p.block()
		p.expectMatch(token.End, token.Do, line)
	case token.For:
		p.forStatement(line)
	case token.Repeat:
		p.repeatStatement(line)
	case token.Function:
		p.functionStatement(line)
	case token.Local:
		p.next()
		if p.testNext(token.Function) {
			p.localFunction()
		} else {
			p.localStatement()
		}
	case token.Return:
		p.returnStatement()
		return true
	case token.Break:
		p.next()
		p.breakStatement()
		return true
	default:
		p.expressionStatement()
	}
	return false
}

// condition parses an expression as a branch condition and returns the
// jump list taken when it is false.
func (p *Parser) condition() jumpList {
	e := p.expression()
	if e.kind == kindNil {
		e.kind = kindFalse // nil and false branch alike
	}
	e = p.fs.goIfTrue(e)
	return e.f
}

func (p *Parser) whileStatement(line int) {
	fs := p.fs
	p.next() // skip 'while'
	top := fs.label()
	exit := p.condition()
	fs.enterBlock(true)
	p.expect(token.Do)
	p.block()
	fs.jumpTo(top)
	p.expectMatch(token.End, token.While, line)
	fs.leaveBlock()
	fs.patchToHere(exit)
}

func (p *Parser) repeatStatement(line int) {
	fs := p.fs
	top := fs.label()
	fs.enterBlock(true)  // loop block
	fs.enterBlock(false) // scope block; body locals are visible in the condition
	p.next()             // skip 'repeat'
	p.chunk()
	p.expectMatch(token.Until, token.Repeat, line)
	exit := p.condition()
	if scope := fs.currentBlock(); !scope.hasUpvalue {
		fs.leaveBlock()
		fs.patchList(exit, top)
	} else {
		// captured locals must be closed before re-entering the body
		p.breakStatement()
		fs.patchToHere(exit)
		fs.leaveBlock()
		fs.jumpTo(top)
	}
	fs.leaveBlock()
}

func (p *Parser) breakStatement() {
	fs := p.fs
	upvalue := false
	target := -1
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isBreakable {
			target = i
			break
		}
		upvalue = upvalue || fs.blocks[i].hasUpvalue
	}
	if target < 0 {
		p.syntaxError("no loop to break")
	}
	if upvalue {
		fs.codeABC(bytecode.OpClose, fs.blocks[target].numActive, 0, 0)
	}
	fs.blocks[target].breakList = fs.concat(fs.blocks[target].breakList, fs.emitJump())
}

// expressionToNextRegister parses one expression closed into a fresh
// register; used for the numeric for control values.
func (p *Parser) expressionToNextRegister() {
	e := p.expression()
	p.fs.expToNextRegister(e)
}

func (p *Parser) forBody(base, line, numVars int, isNumeric bool) {
	fs := p.fs
	fs.adjustLocals(3) // control variables
	p.expect(token.Do)
	var prep jumpList
	if isNumeric {
		prep = fs.newJump(fs.codeAsBx(bytecode.OpForPrep, base, 0))
	} else {
		prep = fs.emitJump()
	}
	fs.enterBlock(false) // scope for declared variables
	fs.adjustLocals(numVars)
	fs.reserveRegs(numVars)
	p.block()
	fs.leaveBlock()
	fs.patchToHere(prep)
	var end jumpList
	if isNumeric {
		end = fs.newJump(fs.codeAsBx(bytecode.OpForLoop, base, 0))
		fs.fixLine(line) // attribute the loop back-edge to the 'for' line
	} else {
		fs.codeABC(bytecode.OpTForLoop, base, 0, numVars)
		fs.fixLine(line)
		end = fs.emitJump()
	}
	fs.patchList(end, fs.jumps[prep].pc+1)
}

func (p *Parser) numericFor(name string, line int) {
	fs := p.fs
	base := fs.freeReg
	fs.registerLocal("(for index)")
	fs.registerLocal("(for limit)")
	fs.registerLocal("(for step)")
	fs.registerLocal(name)
	p.expect(token.Assign)
	p.expressionToNextRegister() // initial value
	p.expect(token.Comma)
	p.expressionToNextRegister() // limit
	if p.testNext(token.Comma) {
		p.expressionToNextRegister() // step
	} else {
		fs.codeABx(bytecode.OpLoadK, fs.freeReg, fs.numberK(1))
		fs.reserveRegs(1)
	}
	p.forBody(base, line, 1, true)
}

func (p *Parser) genericFor(name string) {
	fs := p.fs
	base := fs.freeReg
	fs.registerLocal("(for generator)")
	fs.registerLocal("(for state)")
	fs.registerLocal("(for control)")
	fs.registerLocal(name)
	numVars := 1
	for p.testNext(token.Comma) {
		fs.registerLocal(p.checkName())
		numVars++
	}
	p.expect(token.In)
	line := p.tok.Line
	e, n := p.expressionList()
	p.adjustAssign(3, n, e)
	fs.checkStack(3) // room to call the generator
	p.forBody(base, line, numVars, false)
}

func (p *Parser) forStatement(line int) {
	fs := p.fs
	fs.enterBlock(true) // loop and control variable scope
	p.next()            // skip 'for'
	name := p.checkName()
	switch p.tok.Type {
	case token.Assign:
		p.numericFor(name, line)
	case token.Comma, token.In:
		p.genericFor(name)
	default:
		p.syntaxError("'=' or 'in' expected")
	}
	p.expectMatch(token.End, token.For, line)
	fs.leaveBlock()
}

// testThenBlock parses 'cond then block' and returns the false exit.
func (p *Parser) testThenBlock() jumpList {
	p.next() // skip 'if' or 'elseif'
	exit := p.condition()
	p.expect(token.Then)
	p.block()
	return exit
}

func (p *Parser) ifStatement(line int) {
	fs := p.fs
	falseList := p.testThenBlock()
	escapes := noJump
	for p.tok.Type == token.ElseIf {
		escapes = fs.concat(escapes, fs.emitJump())
		fs.patchToHere(falseList)
		falseList = p.testThenBlock()
	}
	if p.tok.Type == token.Else {
		escapes = fs.concat(escapes, fs.emitJump())
		fs.patchToHere(falseList)
		p.next()
		p.block()
	} else {
		escapes = fs.concat(escapes, falseList)
	}
	fs.patchToHere(escapes)
	p.expectMatch(token.End, token.If, line)
}

func (p *Parser) localFunction() {
	fs := p.fs
	fs.registerLocal(p.checkName())
	v := makeExpr(kindLocal, fs.freeReg)
	fs.reserveRegs(1)
	fs.adjustLocals(1) // the function can refer to itself
	b := p.body(false, p.tok.Line)
	fs.storeVar(v, b)
	// debug range starts after the closure is stored
	fs.localVar(fs.numActive - 1).StartPC = fs.pc
}

func (p *Parser) localStatement() {
	fs := p.fs
	numVars := 0
	for {
		fs.registerLocal(p.checkName())
		numVars++
		if !p.testNext(token.Comma) {
			break
		}
	}
	var e exprDesc
	n := 0
	if p.testNext(token.Assign) {
		e, n = p.expressionList()
	} else {
		e = makeExpr(kindVoid, 0)
	}
	p.adjustAssign(numVars, n, e)
	fs.adjustLocals(numVars)
}

// functionName parses NAME {'.' NAME} [':' NAME], reporting whether the
// method form (implicit self) was used.
func (p *Parser) functionName() (exprDesc, bool) {
	v := p.singleVar()
	for p.tok.Type == token.Dot {
		v = p.fieldSelect(v)
	}
	if p.tok.Type == token.Colon {
		return p.fieldSelect(v), true
	}
	return v, false
}

func (p *Parser) functionStatement(line int) {
	p.next() // skip 'function'
	v, needSelf := p.functionName()
	b := p.body(needSelf, line)
	p.fs.storeVar(v, b)
	p.fs.fixLine(line) // definition happens in the first line
}

func (p *Parser) returnStatement() {
	fs := p.fs
	p.next() // skip 'return'
	first, numResults := 0, 0
	if !blockFollow(p.tok.Type) && p.tok.Type != token.Semicolon {
		e, n := p.expressionList()
		numResults = n
		if e.hasMultipleReturns() {
			fs.setReturns(e, bytecode.MultRet)
			if e.kind == kindCall && numResults == 1 {
				i := fs.instructionOf(e)
				i.SetOpCode(bytecode.OpTailCall)
				fs.assert(i.A() == fs.numActive, "tail call clobbers locals")
			}
			first, numResults = fs.numActive, bytecode.MultRet
		} else if numResults == 1 {
			e = fs.expToAnyRegister(e)
			first = e.info
		} else {
			fs.expToNextRegister(e)
			first = fs.numActive
			fs.assert(numResults == fs.freeReg-first, "return values not contiguous")
		}
	}
	fs.codeABC(bytecode.OpReturn, first, numResults+1, 0)
}

// adjustAssign balances numVars assignment targets against n parsed
// expressions, padding with nils or spreading a trailing multi-value
// expression.
func (p *Parser) adjustAssign(numVars, n int, e exprDesc) {
	fs := p.fs
	extra := numVars - n
	if e.hasMultipleReturns() {
		extra++ // the open expression itself provides one
		if extra < 0 {
			extra = 0
		}
		fs.setReturns(e, extra)
		if extra > 1 {
			fs.reserveRegs(extra - 1)
		}
		return
	}
	if e.kind != kindVoid {
		fs.expToNextRegister(e)
	}
	if extra > 0 {
		reg := fs.freeReg
		fs.reserveRegs(extra)
		fs.loadNil(reg, extra)
	}
}

// checkConflict guards a multiple assignment against a later target
// reading a local that an earlier target assigns: the local is copied to
// a safe register and prior targets are redirected to the copy.
func (p *Parser) checkConflict(targets []exprDesc, v exprDesc) {
	fs := p.fs
	safe := fs.freeReg
	conflict := false
	for i := range targets {
		t := &targets[i]
		if t.kind != kindIndexed {
			continue
		}
		if t.tableReg == v.info {
			conflict = true
			t.tableReg = safe
		}
		if !t.key.isConstant && t.key.index == v.info {
			conflict = true
			t.key.index = safe
		}
	}
	if conflict {
		fs.codeABC(bytecode.OpMove, safe, v.info, 0)
		fs.reserveRegs(1)
	}
}

func (p *Parser) assignment(targets []exprDesc) {
	fs := p.fs
	v := targets[len(targets)-1]
	p.checkCondition(v.kind == kindLocal || v.kind == kindUpvalue ||
		v.kind == kindGlobal || v.kind == kindIndexed, "syntax error")
	if p.testNext(token.Comma) {
		nv := p.primaryExpression()
		if nv.kind == kindLocal {
			p.checkConflict(targets, nv)
		}
		fs.checkLimit(len(targets)+1, p.maxDepth-p.depth, "variables in assignment")
		p.assignment(append(targets, nv))
		return
	}
	p.expect(token.Assign)
	e, n := p.expressionList()
	if n == len(targets) {
		e = fs.setOneReturn(e)
		fs.storeVar(v, e)
	} else {
		p.adjustAssign(len(targets), n, e)
		if n > len(targets) {
			fs.freeReg -= n - len(targets) // drop extra values
		}
		fs.storeVar(v, makeExpr(kindNonReloc, fs.freeReg-1))
	}
	// remaining targets are stored right to left from the value registers
	for i := len(targets) - 2; i >= 0; i-- {
		fs.storeVar(targets[i], makeExpr(kindNonReloc, fs.freeReg-1))
	}
}

func (p *Parser) expressionStatement() {
	v := p.primaryExpression()
	if v.kind == kindCall {
		p.fs.instructionOf(v).SetC(1) // statement call discards results
		return
	}
	p.assignment([]exprDesc{v})
}
