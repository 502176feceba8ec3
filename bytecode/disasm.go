package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats compiled prototypes as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Proto]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Proto]bool),
	}
}

// Disassemble emits a readable dump for a prototype and all nested prototypes.
func (d *Disassembler) Disassemble(label string, proto *Proto) error {
	if proto == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = "<anon>"
	}
	source := proto.Source
	if source == "" {
		source = "<unknown>"
	}
	vararg := ""
	if proto.IsVararg {
		vararg = "+"
	}
	fmt.Fprintf(d.w, "func %s (params=%d%s, stack=%d, upvalues=%d, consts=%d) source=%s:%d\n",
		name, proto.NumParams, vararg, proto.MaxStackSize, len(proto.Upvalues), len(proto.Constants), source, proto.LineDefined)
	for pc, inst := range proto.Code {
		lineStr := "-"
		if line := proto.LineAt(pc); line > 0 {
			lineStr = strconv.Itoa(line)
		}
		fmt.Fprintf(d.w, "%04d %4s %-10s %s\n", pc, lineStr, inst.OpCode(), d.operands(proto, pc, inst))
	}
	for idx, child := range proto.Protos {
		childName := fmt.Sprintf("%s:<proto %d>", name, idx)
		if err := d.Disassemble(childName, child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) operands(p *Proto, pc int, inst Instruction) string {
	op := inst.OpCode()
	var fields []string
	var notes []string

	switch op.Mode() {
	case ModeABC:
		fields = append(fields, strconv.Itoa(inst.A()))
		if op.BMode() != OpArgN {
			fields = append(fields, strconv.Itoa(rkSigned(inst.B(), op.BMode())))
			if note := rkNote(p, inst.B(), op.BMode()); note != "" {
				notes = append(notes, note)
			}
		}
		if op.CMode() != OpArgN {
			fields = append(fields, strconv.Itoa(rkSigned(inst.C(), op.CMode())))
			if note := rkNote(p, inst.C(), op.CMode()); note != "" {
				notes = append(notes, note)
			}
		}
	case ModeABx:
		fields = append(fields, strconv.Itoa(inst.A()), strconv.Itoa(inst.Bx()))
		if op.BMode() == OpArgK && inst.Bx() < len(p.Constants) {
			notes = append(notes, p.Constants[inst.Bx()].String())
		}
	case ModeAsBx:
		fields = append(fields, strconv.Itoa(inst.A()), strconv.Itoa(inst.SBx()))
		notes = append(notes, fmt.Sprintf("to %04d", pc+1+inst.SBx()))
	}

	out := strings.Join(fields, " ")
	if len(notes) > 0 {
		out += " ; " + strings.Join(notes, " ")
	}
	return out
}

// rkSigned renders constant RK operands as negative indices the way luac does.
func rkSigned(arg int, mode OpArgMode) int {
	if mode == OpArgK && IsK(arg) {
		return -1 - IndexK(arg)
	}
	return arg
}

func rkNote(p *Proto, arg int, mode OpArgMode) string {
	if mode != OpArgK || !IsK(arg) {
		return ""
	}
	idx := IndexK(arg)
	if idx >= len(p.Constants) {
		return fmt.Sprintf("<bad const %d>", idx)
	}
	return p.Constants[idx].String()
}
