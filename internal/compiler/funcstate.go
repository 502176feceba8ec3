package compiler

import (
	"fmt"

	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/lerrors"
)

const (
	// maxRegisters is the virtual machine register file limit per function.
	maxRegisters = 250
	// maxLocalVars is the limit on active local variables per function.
	maxLocalVars = 200
	// maxUpvalues is the limit on captured variables per function.
	maxUpvalues = 60
)

// noJump is the empty jump list.
const noJump = -1

// jumpList is a handle into the pending-jump arena (noJump when empty).
type jumpList = int

// jumpNode is one pending jump: the pc of its JMP instruction and the next
// node of its list. The instruction's offset field is written only when the
// node is patched; it is never used to store list links.
type jumpNode struct {
	pc      int
	next    jumpList
	patched bool
}

// blockScope is a lexical block record. Blocks are pushed and popped in
// strict nesting order on the owning FuncState.
type blockScope struct {
	breakList   jumpList // jumps out of this loop
	numActive   int      // active locals outside this block
	hasUpvalue  bool     // some local in this block is captured
	isBreakable bool     // target of break statements
}

// FuncState carries the compile-time bookkeeping for one function body.
type FuncState struct {
	proto *bytecode.Proto
	p     *Parser

	constants map[bytecode.Value]int // pool index by value

	pc          int // == len(proto.Code)
	lastTarget  int // pc of the most recent jump target
	pendingHere jumpList
	jumps       []jumpNode

	freeReg    int
	numActive  int   // active local variables
	activeVars []int // indexes into proto.Locals, one per active variable
	blocks     []blockScope
}

func newFuncState(p *Parser, source string, line int) *FuncState {
	return &FuncState{
		proto: &bytecode.Proto{
			Source:       source,
			LineDefined:  line,
			MaxStackSize: 2, // registers 0 and 1 are always valid
		},
		p:           p,
		constants:   make(map[bytecode.Value]int),
		pendingHere: noJump,
		lastTarget:  noJump,
	}
}

func (fs *FuncState) assert(cond bool, what string) {
	if !cond {
		lerrors.Raise(&lerrors.Error{
			Kind:    lerrors.Internal,
			Source:  fs.proto.Source,
			Line:    fs.p.lastLine,
			Message: "inconsistency: " + what,
		})
	}
}

// checkLimit raises a LimitError when a per-function count exceeds limit.
func (fs *FuncState) checkLimit(count, limit int, what string) {
	if count <= limit {
		return
	}
	where := "main function"
	if fs.proto.LineDefined > 0 {
		where = fmt.Sprintf("function at line %d", fs.proto.LineDefined)
	}
	lerrors.Raise(&lerrors.Error{
		Kind:    lerrors.Limit,
		Source:  fs.proto.Source,
		Line:    fs.p.lastLine,
		Message: fmt.Sprintf("%s has more than %d %s", where, limit, what),
	})
}

// enterBlock pushes a lexical block.
func (fs *FuncState) enterBlock(isBreakable bool) {
	fs.blocks = append(fs.blocks, blockScope{
		breakList:   noJump,
		numActive:   fs.numActive,
		isBreakable: isBreakable,
	})
	fs.assert(fs.freeReg == fs.numActive, "registers leaked entering block")
}

// leaveBlock pops the innermost block, retiring its locals, closing any
// captured ones and resolving pending breaks.
func (fs *FuncState) leaveBlock() {
	bl := fs.blocks[len(fs.blocks)-1]
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.removeVars(bl.numActive)
	if bl.hasUpvalue {
		fs.codeABC(bytecode.OpClose, bl.numActive, 0, 0)
	}
	fs.assert(!bl.isBreakable || !bl.hasUpvalue, "breakable block with upvalues")
	fs.assert(bl.numActive == fs.numActive, "locals leaked leaving block")
	fs.freeReg = fs.numActive
	fs.patchToHere(bl.breakList)
}

// currentBlock returns the innermost block, or nil at function level.
func (fs *FuncState) currentBlock() *blockScope {
	if len(fs.blocks) == 0 {
		return nil
	}
	return &fs.blocks[len(fs.blocks)-1]
}

// markUpvalue flags the innermost block containing the local at the given
// level, so that leaving it (or breaking across it) closes the upvalue.
func (fs *FuncState) markUpvalue(level int) {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].numActive <= level {
			fs.blocks[i].hasUpvalue = true
			return
		}
	}
}

// registerLocal appends a named local to the prototype's debug table. The
// variable is not active until adjustLocals.
func (fs *FuncState) registerLocal(name string) {
	fs.checkLimit(len(fs.activeVars)+1, maxLocalVars, "local variables")
	fs.proto.Locals = append(fs.proto.Locals, bytecode.LocalVar{Name: name})
	fs.activeVars = append(fs.activeVars, len(fs.proto.Locals)-1)
}

// adjustLocals activates the n most recently registered locals, opening
// their live ranges at the current pc.
func (fs *FuncState) adjustLocals(n int) {
	fs.numActive += n
	for ; n > 0; n-- {
		fs.localVar(fs.numActive - n).StartPC = fs.pc
	}
}

// removeVars deactivates locals down to level, closing their live ranges.
func (fs *FuncState) removeVars(level int) {
	for fs.numActive > level {
		fs.numActive--
		fs.localVar(fs.numActive).EndPC = fs.pc
		fs.activeVars = fs.activeVars[:len(fs.activeVars)-1]
	}
}

// localVar returns the debug record of the i-th active variable.
func (fs *FuncState) localVar(i int) *bytecode.LocalVar {
	return &fs.proto.Locals[fs.activeVars[i]]
}

// findLocal searches active variables innermost-first for a name.
func (fs *FuncState) findLocal(name string) (int, bool) {
	for i := fs.numActive - 1; i >= 0; i-- {
		if fs.localVar(i).Name == name {
			return i, true
		}
	}
	return 0, false
}

// findUpvalue searches the already captured upvalues for one referring to
// the same enclosing slot. Matching by name alone would alias distinct
// shadowed variables.
func (fs *FuncState) findUpvalue(kind bytecode.UpvalueKind, index int) (int, bool) {
	for i, uv := range fs.proto.Upvalues {
		if uv.Kind == kind && uv.Index == index {
			return i, true
		}
	}
	return 0, false
}

// addUpvalue records a new captured variable. Each variable yields at most
// one entry per function; callers must search with findUpvalue first.
func (fs *FuncState) addUpvalue(name string, kind bytecode.UpvalueKind, index int) int {
	fs.checkLimit(len(fs.proto.Upvalues)+1, maxUpvalues, "upvalues")
	fs.proto.Upvalues = append(fs.proto.Upvalues, bytecode.Upvalue{
		Name:  name,
		Kind:  kind,
		Index: index,
	})
	return len(fs.proto.Upvalues) - 1
}

// finish seals the function body: emits the implicit return, resolves the
// remaining scope and verifies that no pending jump escaped unpatched.
func (fs *FuncState) finish() *bytecode.Proto {
	fs.returnNone()
	fs.removeVars(0)
	fs.assert(len(fs.blocks) == 0, "unclosed block")
	for i := range fs.jumps {
		fs.assert(fs.jumps[i].patched, "unpatched jump")
	}
	fs.proto.LastLineDefined = fs.p.lastLine
	return fs.proto
}
