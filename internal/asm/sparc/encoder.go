// Package sparc implements asm.Encoder for SPARC V8 and V9. Instructions are always big-endian.
//
// Operands follow GAS: sources first and the destination last ("add %o0, 5, %o1"), memory written as
// "[%rs1 + simm13]" or "[%rs1 + %rs2]".
package sparc

import (
	"encoding/binary"
	"strconv"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct {
	// v9 enables the 64-bit instructions and the predicted branches.
	v9 bool
}

// New returns an Encoder for the mode, which must already be valid for api.ArchSPARC.
func New(mode api.Mode) *Encoder {
	return &Encoder{v9: mode.Has(api.ModeSPARC64) || mode.Has(api.ModeV9)}
}

var registers = map[string]uint32{"sp": 14, "fp": 30}

var fpRegisters = map[string]uint32{}

// conditionCodes name the V9 integer condition codes of the predicted branches.
var conditionCodes = map[string]uint32{"icc": 0, "xcc": 2}

const regY = "y"

func init() {
	for i := 0; i < 8; i++ {
		n := strconv.Itoa(i)
		registers["g"+n] = uint32(i)
		registers["o"+n] = uint32(8 + i)
		registers["l"+n] = uint32(16 + i)
		registers["i"+n] = uint32(24 + i)
	}
	for i := 0; i < 32; i++ {
		registers["r"+strconv.Itoa(i)] = uint32(i)
		fpRegisters["f"+strconv.Itoa(i)] = uint32(i)
	}
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	if _, ok := registers[name]; ok {
		return true
	}
	if _, ok := fpRegisters[name]; ok {
		return true
	}
	if _, ok := conditionCodes[name]; ok {
		return true
	}
	return name == regY
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

// Nop implements asm.Encoder.Nop.
func (e *Encoder) Nop() []byte {
	return []byte{0x01, 0x00, 0x00, 0x00}
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
	r, ok := registers[op.Reg]
	if !ok {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, op.Reg)
	}
	return r, nil
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

func (in *inst) errorRange(v int64) error {
	return asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
}

// simm13 returns the low bits of an instruction with the i bit set.
func (in *inst) simm13(e *asm.Expr) (uint32, error) {
	v, err := in.ctx.Value(e)
	if err != nil {
		return 0, err
	}
	if !asm.FitsSigned(v, 13) {
		return 0, in.errorRange(v)
	}
	return 1<<13 | uint32(v)&0x1fff, nil
}

// source decodes the second source operand, a register or a simm13, into the low bits of a format 3 instruction.
func (in *inst) source(op *asm.Operand) (uint32, error) {
	if op.IsReg() {
		return in.reg(op)
	}
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	return in.simm13(op.Expr)
}

// address decodes "[%rs1 + %rs2]", "[%rs1 + simm13]" and "[simm13]" into rs1 and the low bits of a format 3
// instruction. bare permits the bracket-less form of jmpl.
func (in *inst) address(op *asm.Operand, bare bool) (rs1, low uint32, err error) {
	switch {
	case op.IsMem() && (!op.Mem.Bare || bare):
	case bare && op.IsReg():
		rs1, err = in.reg(op)
		return
	default:
		return 0, 0, asm.ErrorOperands(in.st)
	}
	m := op.Mem
	if m.Base != "" {
		if rs1, err = in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: m.Base}); err != nil {
			return
		}
	}
	switch {
	case m.Index != "":
		low, err = in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: m.Index})
	case m.Disp != nil:
		low, err = in.simm13(m.Disp)
	}
	return
}

func (in *inst) emit(words ...uint32) {
	for _, w := range words {
		in.buf.WriteUint32(w)
	}
}

func (in *inst) requireV9() error {
	if !in.v9 {
		return asm.ErrorMissingFeature(in.st, "SPARC V9")
	}
	return nil
}
