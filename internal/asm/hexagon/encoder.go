// Package hexagon implements asm.Encoder for a subset of the Hexagon V5 scalar instruction set.
//
// The syntax front-end turns the algebraic syntax into mnemonics: "r1 = add(r0, #2)" arrives as "add r1, r0, 2" and
// "r0 = #1" as "transfer r0, 1". Every instruction is one little-endian word whose parse bits (15:14) mark the end
// of its packet. Immediates which do not fit their field take a constant extender word.
package hexagon

import (
	"encoding/binary"
	"strconv"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

const (
	parseNotEnd = 0b01 << 14
	parseEnd    = 0b11 << 14
	parseMask   = 0b11 << 14
)

// Encoder implements asm.Encoder.
type Encoder struct{}

// New returns an Encoder. Hexagon has a single little-endian mode.
func New(api.Mode) *Encoder {
	return &Encoder{}
}

var (
	registers = map[string]uint32{"sp": 29, "fp": 30, "lr": 31}
	// predicates are the predicate registers, the destination of comparisons.
	predicates = map[string]uint32{"p0": 0, "p1": 1, "p2": 2, "p3": 3}
)

func init() {
	for i := 0; i < 32; i++ {
		registers["r"+strconv.Itoa(i)] = uint32(i)
	}
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	if _, ok := registers[name]; ok {
		return true
	}
	_, ok := predicates[name]
	return ok
}

// IsMnemonic implements asm.Encoder.IsMnemonic.
func (e *Encoder) IsMnemonic(name string) bool {
	_, ok := handlers[name]
	return ok
}

// ByteOrder implements asm.Encoder.ByteOrder.
func (e *Encoder) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// Nop implements asm.Encoder.Nop. The padding is a packet of its own.
func (e *Encoder) Nop() []byte {
	return binary.LittleEndian.AppendUint32(nil, 0x7f000000|parseEnd)
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	in := &inst{ctx: ctx, st: st, buf: buf, ops: st.Operands}
	for _, p := range st.Prefixes {
		if p != "if" && p != "if!" {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid prefix %q", st, p)
		}
		if in.predicated || !predicable[st.Mnemonic] {
			return asm.ErrorMissingFeature(st, "predicated "+st.Mnemonic)
		}
		if len(in.ops) == 0 {
			return asm.ErrorOperands(st)
		}
		pr, ok := predicates[in.ops[0].Reg]
		if !in.ops[0].IsReg() || !ok {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid predicate", st)
		}
		in.predicated, in.negated, in.pred = true, p == "if!", pr
		in.ops = in.ops[1:]
	}
	return h(in)
}

// inst is the instruction being encoded. ops excludes the predicate register.
type inst struct {
	ctx *asm.Context
	st  *asm.Statement
	buf *asm.Buffer
	ops []asm.Operand

	predicated, negated bool
	pred                uint32
}

func (in *inst) operands(n int) ([]asm.Operand, error) {
	if len(in.ops) != n {
		return nil, asm.ErrorOperands(in.st)
	}
	return in.ops, nil
}

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

// imm evaluates an immediate which must fit the field without an extender.
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
	return uint32(v) & (1<<bits - 1), nil
}

// extendable evaluates a signed immediate field which takes a constant extender when the value does not fit. The
// extended form holds the low six bits in the field and the rest in the returned extender word.
func (in *inst) extendable(op *asm.Operand, bits uint) (field uint32, ext []uint32, err error) {
	if !op.IsImm() {
		return 0, nil, asm.ErrorOperands(in.st)
	}
	v, _, err := in.ctx.Eval(op.Expr)
	if err != nil {
		return 0, nil, err
	}
	if !asm.FitsSigned(v, 32) && !asm.FitsUnsigned(v, 32) {
		return 0, nil, in.errorRange(v)
	}
	switch {
	case in.ctx.Long:
		return uint32(v) & 0x3f, []uint32{extender(uint32(v))}, nil
	case asm.FitsSigned(v, bits):
		return uint32(v) & (1<<bits - 1), nil, nil
	default:
		return 0, nil, asm.ErrRelax
	}
}

// extender is the immext word carrying bits 31:6 of a constant.
func extender(v uint32) uint32 {
	v >>= 6
	return (v>>14)<<16 | v&0x3fff
}

// offset returns the word offset from the packet to a branch target, zero while the target is unknown.
func (in *inst) offset(op *asm.Operand, bits uint) (uint32, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, err
	}
	off := target - int64(in.ctx.Packet)
	if off&3 != 0 {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: misaligned branch target", in.st)
	}
	if !asm.FitsSigned(off>>2, bits) {
		return 0, in.errorRange(off)
	}
	return uint32(off>>2) & (1<<bits - 1), nil
}

// address decodes "(Rs+#off)" with the offset scaled by the access size.
func (in *inst) address(op *asm.Operand, scale uint) (base, off uint32, err error) {
	if !op.IsMem() {
		return 0, 0, asm.ErrorOperands(in.st)
	}
	if base, err = in.gpr(&asm.Operand{Kind: asm.OperandRegister, Reg: op.Mem.Base}); err != nil {
		return
	}
	var d int64
	if op.Mem.Disp != nil {
		if d, err = in.ctx.Value(op.Mem.Disp); err != nil {
			return
		}
	}
	if d&(1<<scale-1) != 0 {
		return 0, 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset %d is not a multiple of %d", in.st, d, 1<<scale)
	}
	if !asm.FitsSigned(d>>scale, 11) {
		return 0, 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset %d out of range", in.st, d)
	}
	return base, uint32(d>>scale) & 0x7ff, nil
}

// emit writes the words with their parse bits: only the last word of the statement can end the packet.
func (in *inst) emit(words ...uint32) {
	for i, w := range words {
		w &^= parseMask
		if i == len(words)-1 && in.st.EndOfPacket {
			w |= parseEnd
		} else {
			w |= parseNotEnd
		}
		in.buf.WriteUint32(w)
	}
}
