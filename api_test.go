package lune

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xirelogy/go-lune/bytecode"
)

func compile(t *testing.T, src string) *bytecode.Proto {
	t.Helper()
	proto, err := CompileString(src, "test")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := bytecode.Verify(proto); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return proto
}

func compileError(t *testing.T, src string) *Error {
	t.Helper()
	_, err := CompileString(src, "test")
	if err == nil {
		t.Fatalf("expected a compile error for %q", src)
	}
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *lune.Error, got %T", err)
	}
	return ce
}

func numberConstants(p *bytecode.Proto) []float64 {
	var nums []float64
	for _, k := range p.Constants {
		if k.IsNumber() {
			nums = append(nums, k.Num)
		}
	}
	return nums
}

func opcodes(p *bytecode.Proto) []bytecode.OpCode {
	ops := make([]bytecode.OpCode, len(p.Code))
	for i, inst := range p.Code {
		ops[i] = inst.OpCode()
	}
	return ops
}

func countOp(p *bytecode.Proto, op bytecode.OpCode) int {
	n := 0
	for _, inst := range p.Code {
		if inst.OpCode() == op {
			n++
		}
	}
	return n
}

func TestCompileEmptyChunk(t *testing.T) {
	proto := compile(t, "")
	be.Equal(t, proto.NumParams, 0)
	be.True(t, proto.IsVararg)
	be.Equal(t, len(proto.Code), 1) // the implicit return
	be.Equal(t, proto.Code[0].OpCode(), bytecode.OpReturn)
}

func TestMainChunkMetadata(t *testing.T) {
	proto := compile(t, "local x = 1\nreturn x")
	be.Equal(t, proto.Source, "test")
	be.Equal(t, proto.LineDefined, 0)
	be.True(t, proto.MaxStackSize >= 2)
}

func TestArithmeticFolding(t *testing.T) {
	// folded expressions leave only the result in the pool
	be.Equal(t, numberConstants(compile(t, "return 1 + 2")), []float64{3})
	be.Equal(t, numberConstants(compile(t, "return 2 + 3 * 4")), []float64{14})
	be.Equal(t, numberConstants(compile(t, "return 2 ^ 2 ^ 3")), []float64{256}) // right associative
	be.Equal(t, numberConstants(compile(t, "return -(7)")), []float64{-7})
	be.Equal(t, numberConstants(compile(t, "return 7 % 3")), []float64{1})
}

func TestFoldingKeepsRuntimeErrors(t *testing.T) {
	// dividing by a literal zero must stay a runtime operation
	proto := compile(t, "return 1 / 0")
	be.Equal(t, countOp(proto, bytecode.OpDiv), 1)
	proto = compile(t, "return 1 % 0")
	be.Equal(t, countOp(proto, bytecode.OpMod), 1)
	// length of a string is never folded
	proto = compile(t, `return #"abc"`)
	be.Equal(t, countOp(proto, bytecode.OpLen), 1)
}

func TestConstantDeduplication(t *testing.T) {
	proto := compile(t, `local a, b = "s", "s" local c, d = 7, 7`)
	be.Equal(t, len(proto.Constants), 2)
}

func TestMinusZeroConstantIsDistinct(t *testing.T) {
	proto := compile(t, "return 0, -(0)")
	// -(0) folds to minus zero, which must not reuse the 0 slot
	nums := numberConstants(proto)
	be.Equal(t, len(nums), 2)
}

func TestShortCircuitShape(t *testing.T) {
	proto := compile(t, "local a = x and y")
	ops := opcodes(proto)
	// the first operand is tested and conditionally skipped
	hasTest := false
	for i, op := range ops {
		if op == bytecode.OpTestSet || op == bytecode.OpTest {
			hasTest = true
			be.Equal(t, ops[i+1], bytecode.OpJmp)
		}
	}
	be.True(t, hasTest)
	// no LOADBOOL materialization is needed for a plain assignment
	be.Equal(t, countOp(proto, bytecode.OpLoadBool), 0)
}

func TestComparisonMaterialization(t *testing.T) {
	// storing a comparison result needs the LOADBOOL landing pads
	proto := compile(t, "local a = x < y")
	be.Equal(t, countOp(proto, bytecode.OpLt), 1)
	be.Equal(t, countOp(proto, bytecode.OpLoadBool), 2)
}

func TestBlockScopeReusesRegisters(t *testing.T) {
	proto := compile(t, "do local x = 1 end local y = 2")
	// both locals occupy register 0, one after the other
	be.Equal(t, len(proto.Locals), 2)
	loadks := 0
	for _, inst := range proto.Code {
		if inst.OpCode() == bytecode.OpLoadK {
			be.Equal(t, inst.A(), 0)
			loadks++
		}
	}
	be.Equal(t, loadks, 2)
}

func TestUpvalueCapture(t *testing.T) {
	proto := compile(t, `
local x = 1
local f = function() return x end
`)
	be.Equal(t, len(proto.Protos), 1)
	child := proto.Protos[0]
	be.Equal(t, len(child.Upvalues), 1)
	be.Equal(t, child.Upvalues[0].Name, "x")
	be.Equal(t, child.Upvalues[0].Kind, bytecode.UpvalueLocal)
	// CLOSURE is followed by the MOVE capture pseudo-instruction
	for pc, inst := range proto.Code {
		if inst.OpCode() == bytecode.OpClosure {
			be.Equal(t, proto.Code[pc+1].OpCode(), bytecode.OpMove)
		}
	}
}

func TestSharedUpvalueEntry(t *testing.T) {
	proto := compile(t, `
local x = 1
local f = function() return x + x end
`)
	be.Equal(t, len(proto.Protos[0].Upvalues), 1)
}

func TestUpvalueThroughIntermediateFunction(t *testing.T) {
	proto := compile(t, `
local x = 1
local outer = function()
  return function() return x end
end
`)
	outer := proto.Protos[0]
	be.Equal(t, len(outer.Upvalues), 1)
	be.Equal(t, outer.Upvalues[0].Kind, bytecode.UpvalueLocal)
	inner := outer.Protos[0]
	be.Equal(t, len(inner.Upvalues), 1)
	// the inner function reaches x through outer's upvalue
	be.Equal(t, inner.Upvalues[0].Kind, bytecode.UpvalueOuter)
}

func TestCloseEmittedForCapturedBlockLocal(t *testing.T) {
	proto := compile(t, `
local f
do
  local x = 1
  f = function() return x end
end
`)
	be.True(t, countOp(proto, bytecode.OpClose) >= 1)
}

func TestTailCall(t *testing.T) {
	proto := compile(t, "local function f() return g() end")
	be.Equal(t, countOp(proto.Protos[0], bytecode.OpTailCall), 1)
	// a non-tail return keeps a plain call
	proto = compile(t, "local function f() return (g()) end")
	be.Equal(t, countOp(proto.Protos[0], bytecode.OpTailCall), 0)
}

func findOp(t *testing.T, p *bytecode.Proto, op bytecode.OpCode) bytecode.Instruction {
	t.Helper()
	for _, inst := range p.Code {
		if inst.OpCode() == op {
			return inst
		}
	}
	t.Fatalf("no %s instruction emitted", op)
	return 0
}

func TestVarargReturnForwardsAll(t *testing.T) {
	proto := compile(t, "return ...")
	// B == 0 leaves the value count open; the RETURN takes them all
	inst := findOp(t, proto, bytecode.OpVararg)
	be.Equal(t, inst.B(), 0)
	ret := findOp(t, proto, bytecode.OpReturn)
	be.Equal(t, ret.B(), 0)
}

func TestVarargAssignmentWindow(t *testing.T) {
	proto := compile(t, "local a, b = ...")
	// B is the value count plus one: two locals want two values
	inst := findOp(t, proto, bytecode.OpVararg)
	be.Equal(t, inst.B(), 3)

	proto = compile(t, "local a = ...")
	be.Equal(t, findOp(t, proto, bytecode.OpVararg).B(), 2)
}

func TestMethodDefinitionHasImplicitSelf(t *testing.T) {
	proto := compile(t, "function obj:m(a) return self, a end")
	child := proto.Protos[0]
	be.Equal(t, child.NumParams, 2)
	be.Equal(t, child.Locals[0].Name, "self")
}

func TestAssignConflictMakesSafeCopy(t *testing.T) {
	safe := compile(t, "local t, i = {}, 1\nt[i], i = 2, 3")
	plain := compile(t, "local t, i = {}, 1\nt[i], x = 2, 3")
	// the conflicting form needs one extra MOVE for the safe copy
	be.Equal(t, countOp(safe, bytecode.OpMove), countOp(plain, bytecode.OpMove)+1)
}

func TestLocalVariableLimit(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 201; i++ {
		sb.WriteString("local x local y -- padding\n")
	}
	// a single scope cannot hold more than 200 active locals
	ce := compileError(t, sb.String())
	be.Equal(t, ce.Kind, LimitError)
	be.True(t, strings.Contains(ce.Message, "local variables"))
	be.True(t, strings.Contains(ce.Message, "main function"))
}

func TestNestingDepthLimit(t *testing.T) {
	src := "return " + strings.Repeat("(", 300) + "1" + strings.Repeat(")", 300)
	ce := compileError(t, src)
	be.Equal(t, ce.Kind, LimitError)
	be.True(t, strings.Contains(ce.Message, "too many syntax levels"))
}

func TestNestingDepthOption(t *testing.T) {
	src := "return " + strings.Repeat("(", 50) + "1" + strings.Repeat(")", 50)
	_, err := CompileStringWithOptions(src, "test", CompileOptions{MaxDepth: 10})
	if err == nil {
		t.Fatal("expected a depth error")
	}
	// the default depth accepts the same chunk
	_, err = CompileString(src, "test")
	be.Err(t, err, nil)
}

func TestErrorRendering(t *testing.T) {
	ce := compileError(t, "local x =")
	be.Equal(t, ce.Kind, SyntaxError)
	be.Equal(t, ce.Source, "test")
	be.Equal(t, ce.Line, 1)
	be.True(t, strings.Contains(ce.Error(), "test:1:"))
	be.True(t, strings.Contains(ce.Error(), "near '<eof>'"))
}

func TestUnclosedConstructReportsOpeningLine(t *testing.T) {
	ce := compileError(t, "if x then\nf()\n")
	be.True(t, strings.Contains(ce.Message, "'end' expected"))
	be.True(t, strings.Contains(ce.Message, "at line 1"))
}

func TestLexicalErrorKind(t *testing.T) {
	ce := compileError(t, `local s = "unfinished`)
	be.Equal(t, ce.Kind, LexicalError)
}

func TestStripDebug(t *testing.T) {
	proto, err := CompileStringWithOptions("local x = 1\nreturn x", "test", CompileOptions{StripDebug: true})
	be.Err(t, err, nil)
	be.Equal(t, len(proto.Lines), 0)
	be.Equal(t, len(proto.Locals), 0)
	// stripped output still verifies
	be.Err(t, bytecode.Verify(proto), nil)
}

func TestDecimalPointOption(t *testing.T) {
	proto, err := CompileStringWithOptions("return 1,5", "test", CompileOptions{DecimalPoint: ','})
	be.Err(t, err, nil)
	be.Equal(t, numberConstants(proto), []float64{1.5})
}

func TestCompileReaderMatchesString(t *testing.T) {
	src := "local a = 1 return a + 2"
	fromString, err := CompileString(src, "test")
	be.Err(t, err, nil)
	fromReader, err := Compile(strings.NewReader(src), "test")
	be.Err(t, err, nil)
	be.Equal(t, fromReader.Code, fromString.Code)
	be.Equal(t, fromReader.Constants, fromString.Constants)
}
