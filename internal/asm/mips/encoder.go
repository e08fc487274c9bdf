// Package mips implements asm.Encoder for MIPS32, MIPS64 and MIPS III, including release 6.
//
// Registers are written "$n" or by their O32 names ("$t0", "$sp"). In 64-bit modes $a4-$a7 and $t0-$t3 follow the
// N64 convention. While ".set reorder" is in effect, which is the default, a nop is appended to every branch and
// jump to fill its delay slot.
package mips

import (
	"encoding/binary"
	"strconv"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct {
	order binary.ByteOrder
	// is64 enables the doubleword instructions of MIPS64 and MIPS III.
	is64 bool
	// r2 enables the release 2 bit manipulation instructions, missing in MIPS III.
	r2 bool
	r6 bool
}

// New returns an Encoder for the mode, which must already be valid for api.ArchMIPS.
func New(mode api.Mode) *Encoder {
	e := &Encoder{
		order: binary.LittleEndian,
		is64:  mode.Has(api.ModeMIPS64) || mode.Has(api.ModeMIPS3),
		r2:    !mode.Has(api.ModeMIPS3),
		r6:    mode.Has(api.ModeMIPS32R6),
	}
	if mode.Has(api.ModeBigEndian) {
		e.order = binary.BigEndian
	}
	return e
}

var registers = map[string]uint32{
	"zero": 0, "at": 1, "v0": 2, "v1": 3, "a0": 4, "a1": 5, "a2": 6, "a3": 7,
	"t0": 8, "t1": 9, "t2": 10, "t3": 11, "t4": 12, "t5": 13, "t6": 14, "t7": 15,
	"s0": 16, "s1": 17, "s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"t8": 24, "t9": 25, "k0": 26, "k1": 27, "gp": 28, "sp": 29, "fp": 30, "s8": 30, "ra": 31,
}

// n64Registers override registers in 64-bit modes.
var n64Registers = map[string]uint32{
	"a4": 8, "a5": 9, "a6": 10, "a7": 11, "t0": 12, "t1": 13, "t2": 14, "t3": 15,
}

var fpRegisters = map[string]uint32{}

func init() {
	for i := 0; i < 32; i++ {
		registers[strconv.Itoa(i)] = uint32(i)
		fpRegisters["f"+strconv.Itoa(i)] = uint32(i)
	}
}

func (e *Encoder) gpr(name string) (uint32, bool) {
	if e.is64 {
		if r, ok := n64Registers[name]; ok {
			return r, true
		}
	}
	r, ok := registers[name]
	return r, ok
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	if _, ok := e.gpr(name); ok {
		return true
	}
	_, ok := fpRegisters[name]
	return ok
}

// IsMnemonic implements asm.Encoder.IsMnemonic.
func (e *Encoder) IsMnemonic(name string) bool {
	_, ok := handlers[name]
	return ok
}

// ByteOrder implements asm.Encoder.ByteOrder.
func (e *Encoder) ByteOrder() binary.ByteOrder {
	return e.order
}

// Nop implements asm.Encoder.Nop.
func (e *Encoder) Nop() []byte {
	return make([]byte, 4)
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	return h(&inst{Encoder: e, ctx: ctx, st: st, buf: buf})
}

// inst is the instruction being encoded.
type inst struct {
	*Encoder
	ctx *asm.Context
	st  *asm.Statement
	buf *asm.Buffer
}

func (in *inst) operands(n ...int) ([]asm.Operand, error) {
	for _, c := range n {
		if len(in.st.Operands) == c {
			return in.st.Operands, nil
		}
	}
	return nil, asm.ErrorOperands(in.st)
}

func (in *inst) reg(op *asm.Operand) (uint32, error) {
	if !op.IsReg() {
		return 0, asm.ErrorOperands(in.st)
	}
	r, ok := in.gpr(op.Reg)
	if !ok {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, op.Reg)
	}
	return r, nil
}

func (in *inst) regs(ops []asm.Operand) ([]uint32, error) {
	ret := make([]uint32, len(ops))
	for i := range ops {
		r, err := in.reg(&ops[i])
		if err != nil {
			return nil, err
		}
		ret[i] = r
	}
	return ret, nil
}

func (in *inst) fpr(op *asm.Operand) (uint32, error) {
	if !op.IsReg() {
		return 0, asm.ErrorOperands(in.st)
	}
	r, ok := fpRegisters[op.Reg]
	if !ok {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: %s is not a floating point register", in.st, op.Reg)
	}
	return r, nil
}

func (in *inst) imm(op *asm.Operand) (int64, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	return in.ctx.Value(op.Expr)
}

// signed16 evaluates an immediate which must fit the signed 16-bit field.
func (in *inst) signed16(op *asm.Operand) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if !asm.FitsSigned(v, 16) {
		return 0, in.errorRange(v)
	}
	return uint32(v) & 0xffff, nil
}

// unsigned16 evaluates an immediate which must fit the zero-extended 16-bit field.
func (in *inst) unsigned16(op *asm.Operand) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if !asm.FitsUnsigned(v, 16) {
		return 0, in.errorRange(v)
	}
	return uint32(v), nil
}

// immRange evaluates an immediate in [0, max].
func (in *inst) immRange(op *asm.Operand, max int64) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > max {
		return 0, in.errorRange(v)
	}
	return uint32(v), nil
}

func (in *inst) errorRange(v int64) error {
	return asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
}

// mem decodes an "offset(base)" operand. A bare expression is an absolute address reachable from $zero.
func (in *inst) mem(op *asm.Operand) (base, offset uint32, err error) {
	switch {
	case op.IsMem():
		if op.Mem.Index != "" {
			return 0, 0, asm.ErrorOperands(in.st)
		}
		if base, err = in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: op.Mem.Base}); err != nil {
			return
		}
		if op.Mem.Disp == nil {
			return base, 0, nil
		}
		offset, err = in.signed16(&asm.Operand{Kind: asm.OperandImmediate, Expr: op.Mem.Disp})
		return
	case op.IsImm():
		offset, err = in.signed16(op)
		return 0, offset, err
	}
	return 0, 0, asm.ErrorOperands(in.st)
}

func (in *inst) emit(words ...uint32) {
	for _, w := range words {
		in.buf.WriteUint32(w)
	}
}

// delaySlot fills the delay slot of a branch or jump when reordering.
func (in *inst) delaySlot() {
	if in.ctx.Reorder {
		in.emit(0)
	}
}

// require64 fails for doubleword instructions in MIPS32 modes.
func (in *inst) require64() error {
	if !in.is64 {
		return asm.ErrorMissingFeature(in.st, "a 64-bit mode")
	}
	return nil
}

// removedInR6 fails for instructions release 6 dropped.
func (in *inst) removedInR6() error {
	if in.r6 {
		return asm.Errorf(api.ErrAsmMissingFeature, "%s was removed in MIPS32 release 6", in.st)
	}
	return nil
}
