package bytecode

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func validProto() *Proto {
	return &Proto{
		Source:       "test",
		MaxStackSize: 2,
		Code: []Instruction{
			CreateABC(OpLoadNil, 0, 0, 0),
			CreateABC(OpReturn, 0, 1, 0),
		},
	}
}

func verifyFails(t *testing.T, p *Proto, want string) {
	t.Helper()
	err := Verify(p)
	be.Err(t, err)
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
}

func TestVerifyAcceptsMinimalProto(t *testing.T) {
	be.Err(t, Verify(validProto()), nil)
}

func TestVerifyNilProto(t *testing.T) {
	verifyFails(t, nil, "nil prototype")
}

func TestVerifyEmptyCode(t *testing.T) {
	p := validProto()
	p.Code = nil
	verifyFails(t, p, "empty code")
}

func TestVerifyStackSizeBounds(t *testing.T) {
	p := validProto()
	p.MaxStackSize = 1
	verifyFails(t, p, "max stack size")

	p = validProto()
	p.MaxStackSize = MaxArgA + 1
	verifyFails(t, p, "max stack size")
}

func TestVerifyParamsWithinStack(t *testing.T) {
	p := validProto()
	p.NumParams = 3
	verifyFails(t, p, "parameters exceed stack size")
}

func TestVerifyLineTableLength(t *testing.T) {
	p := validProto()
	p.Lines = []int32{1}
	verifyFails(t, p, "line table length")
}

func TestVerifyMissingReturn(t *testing.T) {
	p := validProto()
	p.Code = []Instruction{CreateABC(OpLoadNil, 0, 0, 0)}
	verifyFails(t, p, "does not end with RETURN")
}

func TestVerifyDestinationRegister(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABC(OpMove, 2, 0, 0)
	verifyFails(t, p, "destination register")
}

func TestVerifySourceRegister(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABC(OpMove, 0, 5, 0)
	verifyFails(t, p, "register 5 exceeds")
}

func TestVerifyJumpRange(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateAsBx(OpJmp, 0, 5)
	verifyFails(t, p, "jump target")

	p = validProto()
	p.Code[0] = CreateAsBx(OpJmp, 0, -3)
	verifyFails(t, p, "jump target")

	// jumping exactly past the last instruction is allowed
	p = validProto()
	p.Code[0] = CreateAsBx(OpJmp, 0, 1)
	be.Err(t, Verify(p), nil)
}

func TestVerifyConstantIndex(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABx(OpLoadK, 0, 0)
	verifyFails(t, p, "constant index")

	p.Constants = []Value{Number(1)}
	be.Err(t, Verify(p), nil)
}

func TestVerifyRKConstantIndex(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABC(OpAdd, 0, RKAsK(0), RKAsK(1))
	p.Constants = []Value{Number(1)}
	verifyFails(t, p, "operand C")
}

func TestVerifyTestFollowedByJump(t *testing.T) {
	p := validProto()
	p.Code = []Instruction{
		CreateABC(OpEq, 0, 0, 1),
		CreateABC(OpReturn, 0, 1, 0),
	}
	verifyFails(t, p, "not followed by JMP")

	p.Code = []Instruction{
		CreateABC(OpEq, 0, 0, 1),
		CreateAsBx(OpJmp, 0, 0),
		CreateABC(OpReturn, 0, 1, 0),
	}
	be.Err(t, Verify(p), nil)
}

func TestVerifySetListRawCount(t *testing.T) {
	// C == 0 means the next code word is a raw element count, not an
	// instruction; it must be present and must be skipped unchecked
	p := validProto()
	p.MaxStackSize = 3
	p.Code = []Instruction{
		CreateABC(OpNewTable, 0, 0, 0),
		CreateABC(OpSetList, 0, 1, 0),
		Instruction(1000),
		CreateABC(OpReturn, 0, 1, 0),
	}
	be.Err(t, Verify(p), nil)

	p.Code = p.Code[:2]
	verifyFails(t, p, "does not end with RETURN")
}

func TestVerifyUpvalueIndex(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABC(OpGetUpval, 0, 0, 0)
	verifyFails(t, p, "upvalue index")

	p.Upvalues = []Upvalue{{Name: "x", Kind: UpvalueLocal, Index: 0}}
	be.Err(t, Verify(p), nil)
}

func TestVerifyClosureCaptures(t *testing.T) {
	child := validProto()
	child.Upvalues = []Upvalue{{Name: "x", Kind: UpvalueLocal, Index: 0}}

	p := validProto()
	p.Protos = []*Proto{child}
	p.Code = []Instruction{
		CreateABx(OpClosure, 0, 0),
		CreateABC(OpMove, 0, 0, 0),
		CreateABC(OpReturn, 0, 1, 0),
	}
	be.Err(t, Verify(p), nil)

	// capture pseudo-instruction missing
	p.Code = []Instruction{
		CreateABx(OpClosure, 0, 0),
		CreateABC(OpReturn, 0, 1, 0),
	}
	verifyFails(t, p, "capture instruction")

	// prototype index out of range
	p.Code = []Instruction{
		CreateABx(OpClosure, 0, 1),
		CreateABC(OpReturn, 0, 1, 0),
	}
	verifyFails(t, p, "prototype index")
}

func TestVerifyLoadNilRange(t *testing.T) {
	p := validProto()
	p.Code[0] = CreateABC(OpLoadNil, 1, 0, 0) // B before A
	verifyFails(t, p, "nil range")

	p.Code[0] = CreateABC(OpLoadNil, 0, 2, 0) // past the stack
	verifyFails(t, p, "nil range")
}

func TestVerifyRecursesIntoChildren(t *testing.T) {
	child := validProto()
	child.Code = nil
	p := validProto()
	p.Protos = []*Proto{child}
	verifyFails(t, p, "proto 0")
}
