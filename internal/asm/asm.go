// Package asm holds the architecture independent part of the assembler: the statement model produced by the syntax
// front-ends, the Encoder contract implemented per architecture, and the layout driver that turns statements into
// machine code.
package asm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// StatementKind classifies a Statement.
type StatementKind byte

const (
	// KindInstruction is a machine instruction handled by the Encoder.
	KindInstruction StatementKind = iota
	// KindLabel defines Statement.Name at the current address.
	KindLabel
	// KindEquate assigns Statement.Value to Statement.Name (.equ, .set, =, equ).
	KindEquate
	// KindData emits each operand as an integer of Statement.Width bytes, or the raw bytes of string operands.
	KindData
	// KindSpace emits Statement.Value bytes (times Width) of Statement.Fill.
	KindSpace
	// KindAlign pads to a multiple of Statement.Align bytes.
	KindAlign
	// KindOption toggles an assembler option such as MIPS instruction reordering. Name holds the option.
	KindOption
)

func (k StatementKind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindLabel:
		return "label"
	case KindEquate:
		return "equate"
	case KindData:
		return "data"
	case KindSpace:
		return "space"
	case KindAlign:
		return "align"
	case KindOption:
		return "option"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Options toggled by KindOption statements.
const (
	OptionReorder   = "reorder"
	OptionNoReorder = "noreorder"
)

// Statement is one parsed instruction or directive. Instructions are always in the canonical (destination first)
// operand order regardless of the source dialect.
type Statement struct {
	Kind StatementKind
	// Line is the 1-based source line, or the line of the macro invocation which produced this statement.
	Line int

	// Mnemonic is the lower-cased instruction name.
	Mnemonic string
	// Prefixes holds lower-cased instruction prefixes in source order, e.g. "lock" or "rep".
	Prefixes []string
	Operands []Operand

	// Name is the label, equate or option name.
	Name string
	// Value is the equate value, or the repeat count of KindSpace.
	Value *Expr
	// Width is the element size in bytes of KindData and KindSpace.
	Width int
	// Fill is the KindSpace and KindAlign fill value. Nil for KindAlign means the Encoder's NOP.
	Fill *Expr
	// Align is the KindAlign boundary in bytes.
	Align uint64
	// MaxSkip limits KindAlign padding when non-zero.
	MaxSkip uint64
	// ZeroTerminated appends a zero byte after each string of KindData.
	ZeroTerminated bool

	// EndOfPacket is set for the last (or only) instruction of a Hexagon packet.
	EndOfPacket bool
}

// String implements fmt.Stringer.
func (s *Statement) String() string {
	switch s.Kind {
	case KindInstruction:
		var b strings.Builder
		for _, p := range s.Prefixes {
			b.WriteString(p)
			b.WriteByte(' ')
		}
		b.WriteString(s.Mnemonic)
		for i := range s.Operands {
			if i == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteString(", ")
			}
			b.WriteString(s.Operands[i].String())
		}
		return b.String()
	case KindLabel:
		return s.Name + ":"
	case KindEquate:
		return fmt.Sprintf("%s = %s", s.Name, s.Value)
	}
	return fmt.Sprintf("<%s>", s.Kind)
}

// Emits returns true if the statement counts towards the number of assembled statements.
func (s *Statement) Emits() bool {
	switch s.Kind {
	case KindInstruction, KindData, KindSpace:
		return true
	}
	return false
}

// OperandKind classifies an Operand.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandImmediate
	OperandMemory
	OperandString
	OperandRegisterList
	// OperandShift is an ARM style shift (lsl #2, asr r3) modifying the previous operand.
	OperandShift
)

// Operand is one instruction operand.
type Operand struct {
	Kind OperandKind
	// Reg is the lower-cased register name without any dialect prefix.
	Reg string
	// Expr is the value of an OperandImmediate and the amount of an OperandShift.
	Expr *Expr
	Mem  *Memory
	Str  string
	// Regs holds the registers of an OperandRegisterList in ascending source order.
	Regs []string
	// Shift is the shift operator of an OperandShift (lsl, lsr, asr, ror, rrx, msl, uxtw...).
	Shift string

	// Size is the explicit operand size in bytes (Intel "dword ptr", AT&T suffix), zero when implied.
	Size int
	// Writeback is the ARM "!" suffix on a base register or memory operand.
	Writeback bool
	// Indirect is the AT&T "*" prefix on branch targets.
	Indirect bool
	// Far is set for Intel "far" branch targets.
	Far bool
	// Literal is the ARM "=value" operand of ldr.
	Literal bool
}

// Reg returns a register operand.
func Reg(name string) Operand { return Operand{Kind: OperandRegister, Reg: name} }

// Imm returns an immediate operand.
func Imm(e *Expr) Operand { return Operand{Kind: OperandImmediate, Expr: e} }

// IsReg returns true if the operand is a register.
func (o *Operand) IsReg() bool { return o.Kind == OperandRegister }

// IsImm returns true if the operand is an immediate.
func (o *Operand) IsImm() bool { return o.Kind == OperandImmediate }

// IsMem returns true if the operand is a memory reference.
func (o *Operand) IsMem() bool { return o.Kind == OperandMemory }

// String implements fmt.Stringer.
func (o *Operand) String() string {
	switch o.Kind {
	case OperandRegister:
		if o.Writeback {
			return o.Reg + "!"
		}
		return o.Reg
	case OperandImmediate:
		if o.Literal {
			return "=" + o.Expr.String()
		}
		return o.Expr.String()
	case OperandMemory:
		return o.Mem.String()
	case OperandString:
		return fmt.Sprintf("%q", o.Str)
	case OperandRegisterList:
		return "{" + strings.Join(o.Regs, ", ") + "}"
	case OperandShift:
		if o.Reg != "" {
			return o.Shift + " " + o.Reg
		}
		if o.Expr == nil {
			return o.Shift
		}
		return o.Shift + " " + o.Expr.String()
	}
	return "<none>"
}

// Memory is a memory reference. Disp is nil when absent.
type Memory struct {
	Segment string
	Base    string
	Index   string
	// Scale is the x86 index scale, zero when there is no index.
	Scale int
	Disp  *Expr
	// IndexNeg is the ARM "-rm" index form.
	IndexNeg bool
	// IndexShift and IndexShiftAmount are the ARM/ARM64 scaled index (lsl #2, uxtw #3, sxtw).
	IndexShift       string
	IndexShiftAmount int64
	// PreIndex is the ARM "[...]!" write-back form.
	PreIndex bool
	// Bare is set when the reference is written without brackets: an x86 absolute address or a SPARC jump target.
	Bare bool
}

// String implements fmt.Stringer.
func (m *Memory) String() string {
	var parts []string
	if m.Base != "" {
		parts = append(parts, m.Base)
	}
	if m.Index != "" {
		idx := m.Index
		if m.IndexNeg {
			idx = "-" + idx
		}
		if m.Scale > 1 {
			idx = fmt.Sprintf("%s*%d", idx, m.Scale)
		}
		if m.IndexShift != "" {
			idx = fmt.Sprintf("%s %s #%d", idx, m.IndexShift, m.IndexShiftAmount)
		}
		parts = append(parts, idx)
	}
	if m.Disp != nil {
		parts = append(parts, m.Disp.String())
	}
	ret := "[" + strings.Join(parts, " + ") + "]"
	if m.Segment != "" {
		ret = m.Segment + ":" + ret
	}
	if m.PreIndex {
		ret += "!"
	}
	return ret
}

// Encoder is implemented once per architecture. Implementations must be deterministic and hold no state mutated by
// Encode, so that one Encoder can be shared by any number of assemble calls.
type Encoder interface {
	// Encode appends the machine code of the KindInstruction statement to buf.
	//
	// Errors are created via Errorf with one of api.ErrAsmInvalidOperand, api.ErrAsmMissingFeature or
	// api.ErrAsmMnemonicFail. ErrRelax asks the driver to encode the statement again with Context.Long set.
	Encode(ctx *Context, st *Statement, buf *Buffer) error

	// IsRegister returns true if the lower-cased name is a register of the current mode.
	IsRegister(name string) bool

	// IsMnemonic returns true if the lower-cased name is an instruction known to this encoder.
	IsMnemonic(name string) bool

	// ByteOrder is the order of multi-byte data directives.
	ByteOrder() binary.ByteOrder

	// Nop returns the filler used to align code.
	Nop() []byte
}
