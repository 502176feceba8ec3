package bytecode

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestCreateABCRoundTrip(t *testing.T) {
	i := CreateABC(OpGetTable, MaxArgA, MaxArgB, MaxArgC)
	be.Equal(t, i.OpCode(), OpGetTable)
	be.Equal(t, i.A(), MaxArgA)
	be.Equal(t, i.B(), MaxArgB)
	be.Equal(t, i.C(), MaxArgC)
}

func TestCreateABxRoundTrip(t *testing.T) {
	i := CreateABx(OpLoadK, 7, MaxArgBx)
	be.Equal(t, i.OpCode(), OpLoadK)
	be.Equal(t, i.A(), 7)
	be.Equal(t, i.Bx(), MaxArgBx)
}

func TestCreateAsBxRoundTrip(t *testing.T) {
	for _, sbx := range []int{-MaxArgSBx, -1, 0, 1, MaxArgSBx} {
		i := CreateAsBx(OpJmp, 0, sbx)
		be.Equal(t, i.SBx(), sbx)
	}
}

func TestSettersPreserveOtherFields(t *testing.T) {
	i := CreateABC(OpAdd, 1, 2, 3)
	i.SetA(9)
	be.Equal(t, i.A(), 9)
	be.Equal(t, i.B(), 2)
	be.Equal(t, i.C(), 3)
	i.SetB(MaxArgB)
	i.SetC(0)
	be.Equal(t, i.OpCode(), OpAdd)
	be.Equal(t, i.B(), MaxArgB)
	be.Equal(t, i.C(), 0)

	j := CreateAsBx(OpJmp, 0, 5)
	j.SetSBx(-5)
	be.Equal(t, j.SBx(), -5)
	be.Equal(t, j.OpCode(), OpJmp)
}

func TestRKEncoding(t *testing.T) {
	be.True(t, !IsK(0))
	be.True(t, !IsK(MaxIndexRK))
	be.True(t, IsK(RKAsK(0)))
	be.Equal(t, IndexK(RKAsK(0)), 0)
	be.Equal(t, IndexK(RKAsK(MaxIndexRK)), MaxIndexRK)
}

func TestOpcodeTableIsComplete(t *testing.T) {
	for op := 0; op < NumOpCodes; op++ {
		name := OpCode(op).String()
		be.True(t, name != "" && name != "INVALID")
	}
	be.Equal(t, OpCode(NumOpCodes).String(), "INVALID")
}

func TestTestInstructionFlags(t *testing.T) {
	for _, op := range []OpCode{OpEq, OpLt, OpLe, OpTest, OpTestSet, OpTForLoop} {
		be.True(t, op.IsTest())
	}
	for _, op := range []OpCode{OpMove, OpJmp, OpCall, OpReturn, OpForLoop} {
		be.True(t, !op.IsTest())
	}
}

func TestSetsAFlags(t *testing.T) {
	for _, op := range []OpCode{OpMove, OpLoadK, OpGetGlobal, OpNewTable, OpClosure} {
		be.True(t, op.SetsA())
	}
	for _, op := range []OpCode{OpSetGlobal, OpSetUpval, OpSetTable, OpJmp, OpReturn} {
		be.True(t, !op.SetsA())
	}
}
