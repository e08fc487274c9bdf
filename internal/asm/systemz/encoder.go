// Package systemz implements asm.Encoder for a subset of z/Architecture.
//
// Operands follow GAS: "%r1" for general registers, "D(X,B)" or "D(B)" for storage operands. Relative branches
// ("j", "brc" and the conditional "jne" family) take their 16-bit form unless the target is out of range, when they
// relax to the 32-bit "brcl" form.
package systemz

import (
	"encoding/binary"
	"strconv"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct{}

// New returns an Encoder. The only valid mode is big-endian.
func New(api.Mode) *Encoder {
	return &Encoder{}
}

var (
	registers   = map[string]uint32{}
	fpRegisters = map[string]uint32{}
)

func init() {
	for i := 0; i < 16; i++ {
		registers["r"+strconv.Itoa(i)] = uint32(i)
		fpRegisters["f"+strconv.Itoa(i)] = uint32(i)
	}
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	if _, ok := registers[name]; ok {
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
	return binary.BigEndian
}

// Nop implements asm.Encoder.Nop. The two byte nopr keeps any even padding possible.
func (e *Encoder) Nop() []byte {
	return []byte{0x07, 0x00}
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	return h(&inst{ctx: ctx, st: st, buf: buf})
}

// inst is the instruction being encoded.
type inst struct {
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

// reg decodes a register from the table, general purpose or floating point.
func (in *inst) reg(op *asm.Operand, table map[string]uint32) (uint32, error) {
	if !op.IsReg() {
		return 0, asm.ErrorOperands(in.st)
	}
	r, ok := table[op.Reg]
	if !ok {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, op.Reg)
	}
	return r, nil
}

func (in *inst) gpr(op *asm.Operand) (uint32, error) {
	return in.reg(op, registers)
}

func (in *inst) errorRange(v int64) error {
	return asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
}

// imm evaluates an immediate of the given width, signed or not.
func (in *inst) imm(op *asm.Operand, bits uint, signed bool) (uint32, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	v, err := in.ctx.Value(op.Expr)
	if err != nil {
		return 0, err
	}
	if signed && !asm.FitsSigned(v, bits) || !signed && !asm.FitsUnsigned(v, bits) {
		return 0, in.errorRange(v)
	}
	return uint32(v) & uint32(1<<bits-1), nil
}

// storage decodes a "D(X,B)" operand. A bare expression is a displacement from no base, as in shift counts.
// long selects the signed 20-bit displacement over the unsigned 12-bit one.
func (in *inst) storage(op *asm.Operand, indexed, long bool) (x, b uint32, d int64, err error) {
	var disp *asm.Expr
	switch {
	case op.IsImm():
		disp = op.Expr
	case op.IsMem():
		m := op.Mem
		if m.Index != "" {
			if !indexed {
				return 0, 0, 0, asm.ErrorOperands(in.st)
			}
			if x, err = in.gpr(&asm.Operand{Kind: asm.OperandRegister, Reg: m.Index}); err != nil {
				return
			}
		}
		if m.Base != "" {
			if b, err = in.gpr(&asm.Operand{Kind: asm.OperandRegister, Reg: m.Base}); err != nil {
				return
			}
		}
		disp = m.Disp
	default:
		return 0, 0, 0, asm.ErrorOperands(in.st)
	}
	if disp != nil {
		if d, err = in.ctx.Value(disp); err != nil {
			return
		}
	}
	if long && !asm.FitsSigned(d, 20) || !long && !asm.FitsUnsigned(d, 12) {
		return 0, 0, 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: displacement %d out of range", in.st, d)
	}
	return
}

// relative returns the halfword offset to a branch target, and whether it is known yet.
func (in *inst) relative(op *asm.Operand) (int64, bool, error) {
	if !op.IsImm() {
		return 0, false, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, false, err
	}
	off := target - int64(in.ctx.Address)
	if off&1 != 0 {
		return 0, false, asm.Errorf(api.ErrAsmInvalidOperand, "%s: odd branch target", in.st)
	}
	return off >> 1, true, nil
}

func (in *inst) emit(halfwords ...uint32) {
	for _, h := range halfwords {
		in.buf.WriteUint16(uint16(h))
	}
}
