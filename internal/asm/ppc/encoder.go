// Package ppc implements asm.Encoder for 32 and 64-bit PowerPC.
//
// As in GAS, registers may be written as bare numbers ("addi 3, 1, 8"), which is how compilers emit them, or by
// name ("r3", "%r3", "f1", "cr7").
package ppc

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct {
	order binary.ByteOrder
	is64  bool
}

// New returns an Encoder for the mode, which must already be valid for api.ArchPPC.
func New(mode api.Mode) *Encoder {
	e := &Encoder{order: binary.LittleEndian, is64: mode.Has(api.ModePPC64)}
	if mode.Has(api.ModeBigEndian) {
		e.order = binary.BigEndian
	}
	return e
}

// Register name prefixes.
const (
	gpr = "r"
	fpr = "f"
	crf = "cr"
)

// regNumber parses a register name such as "r3" given prefix "r".
func regNumber(name, prefix string) (uint32, bool) {
	num := strings.TrimPrefix(name, prefix)
	if num == name || !isDigits(num) {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	max := 31
	if prefix == crf {
		max = 7
	}
	if err != nil || n > max {
		return 0, false
	}
	return uint32(n), true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	for _, prefix := range []string{gpr, fpr, crf} {
		if _, ok := regNumber(name, prefix); ok {
			return true
		}
	}
	return false
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
	b := make([]byte, 4)
	e.order.PutUint32(b, 0x60000000)
	return b
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	if h.only64 && !e.is64 {
		return asm.ErrorMissingFeature(st, "PPC64")
	}
	word, err := h.fn(&inst{Encoder: e, ctx: ctx, st: st})
	if err != nil {
		return err
	}
	buf.WriteUint32(word)
	return nil
}

// inst is the instruction being encoded.
type inst struct {
	*Encoder
	ctx *asm.Context
	st  *asm.Statement
}

func (in *inst) operands(n ...int) ([]asm.Operand, error) {
	for _, c := range n {
		if len(in.st.Operands) == c {
			return in.st.Operands, nil
		}
	}
	return nil, asm.ErrorOperands(in.st)
}

// field decodes a register of the given kind, written by name or number.
func (in *inst) field(op *asm.Operand, prefix string) (uint32, error) {
	switch {
	case op.IsReg():
		if n, ok := regNumber(op.Reg, prefix); ok {
			return n, nil
		}
	case op.IsImm() && op.Expr.IsConst():
		v, err := in.ctx.Value(op.Expr)
		if err != nil {
			return 0, err
		}
		max := int64(31)
		if prefix == crf {
			max = 7
		}
		if v >= 0 && v <= max {
			return uint32(v), nil
		}
	}
	return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, op.String())
}

// gprs decodes the general purpose registers of ops.
func (in *inst) gprs(ops []asm.Operand) ([]uint32, error) {
	ret := make([]uint32, len(ops))
	for i := range ops {
		r, err := in.field(&ops[i], gpr)
		if err != nil {
			return nil, err
		}
		ret[i] = r
	}
	return ret, nil
}

func (in *inst) imm(op *asm.Operand) (int64, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	return in.ctx.Value(op.Expr)
}

func (in *inst) immRange(op *asm.Operand, min, max int64) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
	}
	return uint32(v), nil
}

// mem decodes "d(ra)". A zero base register reads as the literal zero, so "d(0)" is an absolute address.
func (in *inst) mem(op *asm.Operand, align int64) (ra, d uint32, err error) {
	if !op.IsMem() || op.Mem.Index != "" {
		return 0, 0, asm.ErrorOperands(in.st)
	}
	base := asm.Operand{Kind: asm.OperandRegister, Reg: op.Mem.Base}
	if isDigits(op.Mem.Base) {
		n, _ := strconv.Atoi(op.Mem.Base)
		base = asm.Imm(asm.Const(int64(n)))
	}
	if ra, err = in.field(&base, gpr); err != nil {
		return
	}
	var v int64
	if op.Mem.Disp != nil {
		if v, err = in.ctx.Value(op.Mem.Disp); err != nil {
			return
		}
	}
	if !asm.FitsSigned(v, 16) || v&(align-1) != 0 {
		return 0, 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid displacement %d", in.st, v)
	}
	return ra, uint32(v) & 0xffff, nil
}
