package bytecode

import "fmt"

// Verify checks a compiled prototype (and every nested one) for structural
// consistency: register references within the declared stack size, jump
// targets within the code range, constant/upvalue/prototype indices in
// bounds, and a terminating RETURN. It is deliberately independent of the
// compiler so it can act as a cross-check on its output.
func Verify(p *Proto) error {
	if p == nil {
		return fmt.Errorf("nil prototype")
	}
	v := &verifier{p: p}
	if err := v.run(); err != nil {
		return err
	}
	for i, child := range p.Protos {
		if err := Verify(child); err != nil {
			return fmt.Errorf("proto %d: %w", i, err)
		}
	}
	return nil
}

type verifier struct {
	p *Proto
}

func (v *verifier) run() error {
	p := v.p
	if len(p.Code) == 0 {
		return fmt.Errorf("empty code")
	}
	if p.MaxStackSize < 2 || p.MaxStackSize > MaxArgA {
		return fmt.Errorf("implausible max stack size %d", p.MaxStackSize)
	}
	if p.NumParams > p.MaxStackSize {
		return fmt.Errorf("%d parameters exceed stack size %d", p.NumParams, p.MaxStackSize)
	}
	if len(p.Lines) != 0 && len(p.Lines) != len(p.Code) {
		return fmt.Errorf("line table length %d does not match code length %d", len(p.Lines), len(p.Code))
	}
	if last := p.Code[len(p.Code)-1].OpCode(); last != OpReturn {
		return fmt.Errorf("code does not end with RETURN (got %s)", last)
	}
	skipNext := false
	for pc, inst := range p.Code {
		if skipNext { // raw element count following SETLIST
			skipNext = false
			continue
		}
		if inst.OpCode() == OpSetList && inst.C() == 0 {
			if pc+1 >= len(p.Code) {
				return fmt.Errorf("pc %d: SETLIST with extended count at end of code", pc)
			}
			skipNext = true
		}
		if err := v.checkInstruction(pc, inst); err != nil {
			return fmt.Errorf("pc %d (%s): %w", pc, inst.OpCode(), err)
		}
	}
	return nil
}

func (v *verifier) checkInstruction(pc int, inst Instruction) error {
	p := v.p
	op := inst.OpCode()
	if int(op) >= NumOpCodes {
		return fmt.Errorf("invalid opcode %d", int(op))
	}
	if op.SetsA() && inst.A() >= p.MaxStackSize {
		return fmt.Errorf("destination register %d exceeds stack size %d", inst.A(), p.MaxStackSize)
	}

	// opcode-specific shape checks run first so their messages win over
	// the generic operand checks below
	switch op {
	case OpGetUpval, OpSetUpval:
		if inst.B() >= len(p.Upvalues) {
			return fmt.Errorf("upvalue index %d out of range %d", inst.B(), len(p.Upvalues))
		}
	case OpClosure:
		if inst.Bx() >= len(p.Protos) {
			return fmt.Errorf("prototype index %d out of range %d", inst.Bx(), len(p.Protos))
		}
		// the capture pseudo-instructions that follow must match the child
		child := p.Protos[inst.Bx()]
		for i := range child.Upvalues {
			at := pc + 1 + i
			if at >= len(p.Code) {
				return fmt.Errorf("missing capture instruction %d for closure", i)
			}
			capture := p.Code[at].OpCode()
			if capture != OpMove && capture != OpGetUpval {
				return fmt.Errorf("capture instruction %d is %s, want MOVE or GETUPVAL", i, capture)
			}
		}
	case OpLoadNil:
		// B is the last register of the range, inclusive
		if inst.B() < inst.A() || inst.B() >= p.MaxStackSize {
			return fmt.Errorf("nil range %d..%d exceeds stack size %d", inst.A(), inst.B(), p.MaxStackSize)
		}
	case OpForLoop, OpForPrep:
		if inst.A()+3 >= p.MaxStackSize {
			return fmt.Errorf("for-loop control registers %d..%d exceed stack size %d", inst.A(), inst.A()+3, p.MaxStackSize)
		}
	case OpTForLoop:
		if inst.A()+2+inst.C() >= p.MaxStackSize {
			return fmt.Errorf("generic-for registers exceed stack size %d", p.MaxStackSize)
		}
	case OpCall, OpTailCall:
		if b := inst.B(); b != 0 && inst.A()+b-1 >= p.MaxStackSize {
			return fmt.Errorf("argument window exceeds stack size %d", p.MaxStackSize)
		}
	case OpReturn:
		if b := inst.B(); b > 1 && inst.A()+b-2 >= p.MaxStackSize {
			return fmt.Errorf("return window exceeds stack size %d", p.MaxStackSize)
		}
	case OpSelf:
		if inst.A()+1 >= p.MaxStackSize {
			return fmt.Errorf("SELF needs registers %d and %d within stack size %d", inst.A(), inst.A()+1, p.MaxStackSize)
		}
	}

	switch op.Mode() {
	case ModeABC:
		if err := v.checkRK(inst.B(), op.BMode()); err != nil {
			return fmt.Errorf("operand B: %w", err)
		}
		if err := v.checkRK(inst.C(), op.CMode()); err != nil {
			return fmt.Errorf("operand C: %w", err)
		}
	case ModeABx:
		if op.BMode() == OpArgK && inst.Bx() >= len(p.Constants) {
			return fmt.Errorf("constant index %d out of range %d", inst.Bx(), len(p.Constants))
		}
	case ModeAsBx:
		if target := pc + 1 + inst.SBx(); target < 0 || target > len(p.Code) {
			return fmt.Errorf("jump target %d outside code range %d", target, len(p.Code))
		}
	}

	if op.IsTest() {
		if pc+1 >= len(p.Code) || p.Code[pc+1].OpCode() != OpJmp {
			return fmt.Errorf("test instruction not followed by JMP")
		}
	}
	return nil
}

func (v *verifier) checkRK(arg int, mode OpArgMode) error {
	switch mode {
	case OpArgR:
		if arg >= v.p.MaxStackSize {
			return fmt.Errorf("register %d exceeds stack size %d", arg, v.p.MaxStackSize)
		}
	case OpArgK:
		if IsK(arg) {
			if idx := IndexK(arg); idx >= len(v.p.Constants) {
				return fmt.Errorf("constant index %d out of range %d", idx, len(v.p.Constants))
			}
		} else if arg >= v.p.MaxStackSize {
			return fmt.Errorf("register %d exceeds stack size %d", arg, v.p.MaxStackSize)
		}
	}
	return nil
}
