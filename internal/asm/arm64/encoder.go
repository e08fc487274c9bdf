// Package arm64 implements asm.Encoder for AArch64.
//
// Every instruction is a single little-endian 32-bit word. Encodings follow
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions
package arm64

import (
	"encoding/binary"
	"strconv"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct{}

// New returns an Encoder.
func New() *Encoder {
	return &Encoder{}
}

// register is an integer register. num is 31 for both sp and the zero register, which are told apart by the
// instruction using them.
type register struct {
	num  uint32
	is64 bool
	sp   bool
	zero bool
}

var registers = map[string]register{
	"sp": {num: 31, is64: true, sp: true}, "wsp": {num: 31, sp: true},
	"xzr": {num: 31, is64: true, zero: true}, "wzr": {num: 31, zero: true},
	"lr": {num: 30, is64: true}, "fp": {num: 29, is64: true},
	"ip0": {num: 16, is64: true}, "ip1": {num: 17, is64: true},
}

func init() {
	for i := uint32(0); i < 31; i++ {
		registers["x"+strconv.Itoa(int(i))] = register{num: i, is64: true}
		registers["w"+strconv.Itoa(int(i))] = register{num: i}
	}
}

// conditions are the condition codes of b.cond, csel and friends.
// https://developer.arm.com/documentation/den0024/a/CHDEEABE
var conditions = map[string]uint32{
	"eq": 0b0000, "ne": 0b0001, "cs": 0b0010, "hs": 0b0010, "cc": 0b0011, "lo": 0b0011,
	"mi": 0b0100, "pl": 0b0101, "vs": 0b0110, "vc": 0b0111, "hi": 0b1000, "ls": 0b1001,
	"ge": 0b1010, "lt": 0b1011, "gt": 0b1100, "le": 0b1101, "al": 0b1110, "nv": 0b1111,
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	_, ok := registers[name]
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

// Nop implements asm.Encoder.Nop.
func (e *Encoder) Nop() []byte {
	return []byte{0x1f, 0x20, 0x03, 0xd5}
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	in := &inst{ctx: ctx, st: st}
	word, err := h(in)
	if err != nil {
		return err
	}
	buf.WriteUint32(word)
	return nil
}

type inst struct {
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

// reg returns the register of op. allowSP selects whether number 31 may be sp rather than the zero register.
func (in *inst) reg(op *asm.Operand, allowSP bool) (register, error) {
	if !op.IsReg() {
		return register{}, asm.ErrorOperands(in.st)
	}
	r, ok := registers[op.Reg]
	if !ok || (r.sp && !allowSP) || (r.zero && allowSP) {
		return register{}, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, op.Reg)
	}
	return r, nil
}

// sameWidth checks that all registers share the width of the first one.
func (in *inst) sameWidth(regs ...register) error {
	for _, r := range regs[1:] {
		if r.is64 != regs[0].is64 {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: registers differ in width", in.st)
		}
	}
	return nil
}

func sf(r register) uint32 {
	if r.is64 {
		return 1 << 31
	}
	return 0
}

// imm evaluates an immediate operand.
func (in *inst) imm(op *asm.Operand) (v int64, resolved bool, err error) {
	if !op.IsImm() || op.Literal {
		return 0, false, asm.ErrorOperands(in.st)
	}
	return in.ctx.Eval(op.Expr)
}

// pcRelative returns the distance from this instruction to target in units of scale bytes, checked to fit a signed
// field of the given width.
func (in *inst) pcRelative(op *asm.Operand, bits uint, scale int64) (uint32, error) {
	target, resolved, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if !resolved {
		return 0, nil
	}
	offset := target - int64(in.ctx.Address)
	if offset%scale != 0 {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: target %#x is not %d bytes aligned", in.st, target, scale)
	}
	offset /= scale
	if !asm.FitsSigned(offset, bits) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: target %#x out of range", in.st, target)
	}
	return uint32(offset) & (1<<bits - 1), nil
}

// shiftAmount returns the amount of an optional "lsl #n" style operand.
func (in *inst) shiftAmount(op *asm.Operand) (string, int64, error) {
	if op.Kind != asm.OperandShift || op.Reg != "" {
		return "", 0, asm.ErrorOperands(in.st)
	}
	if op.Expr == nil {
		return op.Shift, 0, nil
	}
	v, err := in.ctx.Value(op.Expr)
	return op.Shift, v, err
}

// bitmaskImmediate returns the N:immr:imms fields encoding v as a logical immediate, or false if v has no such
// encoding.
//
// Such an immediate is a 32-bit or 64-bit pattern viewed as a vector of identical elements of size e = 2, 4, 8, 16,
// 32, or 64 bits. Each element contains the same sub-pattern: a single run of 1 to e-1 non-zero bits, rotated by 0
// to e-1 bits. See https://dinfuehr.github.io/blog/encoding-of-immediate-values-on-aarch64/
func bitmaskImmediate(c uint64, is64 bool) (n, immr, imms uint32, ok bool) {
	if !is64 {
		if c>>32 != 0 && c>>32 != 0xffff_ffff {
			return
		}
		c = uint64(uint32(c)) | uint64(uint32(c))<<32
	}
	// All zeros and ones are not "bitmask immediate" by definition.
	if c == 0 || c == 0xffff_ffff_ffff_ffff {
		return
	}

	var size uint32
	switch {
	case c != c>>32|c<<32:
		size = 64
	case c != c>>16|c<<48:
		size = 32
		c = uint64(int32(c))
	case c != c>>8|c<<56:
		size = 16
		c = uint64(int16(c))
	case c != c>>4|c<<60:
		size = 8
		c = uint64(int8(c))
	case c != c>>2|c<<62:
		size = 4
		c = uint64(int64(c<<60) >> 60)
	default:
		size = 2
		c = uint64(int64(c<<62) >> 62)
	}

	neg := false
	if int64(c) < 0 {
		c = ^c
		neg = true
	}
	if !sequenceOfSetbits(c) {
		return
	}

	onesSize, nonZeroPos := getOnesSequenceSize(c)
	if neg {
		nonZeroPos = onesSize + nonZeroPos
		onesSize = size - onesSize
	}

	mode := uint32(32)
	if is64 && size == 64 {
		n = 1
		mode = 64
	}
	immr = (size - nonZeroPos) & (size - 1) & (mode - 1)
	imms = ((onesSize - 1) | 63&^(size<<1-1)) & 0x3f
	return n, immr, imms, true
}

// sequenceOfSetbits returns true if the number's binary representation is the sequence set bit (1).
// For example: 0b1110 -> true, 0b1010 -> false
func sequenceOfSetbits(x uint64) bool {
	y := getLowestBit(x)
	// If x is a sequence of set bit, this should results in the number
	// with only one set bit (i.e. power of two).
	y += x
	return (y-1)&y == 0
}

func getLowestBit(x uint64) uint64 {
	return x & (^x + 1)
}

func getOnesSequenceSize(x uint64) (size, nonZeroPos uint32) {
	// Take 0b00111000 for example:
	y := getLowestBit(x)               // = 0b0000100
	nonZeroPos = setBitPos(y)          // = 2
	size = setBitPos(x+y) - nonZeroPos // = setBitPos(0b0100000) - 2 = 5 - 2 = 3
	return
}

func setBitPos(x uint64) (ret uint32) {
	if x == 0 {
		// The run reaches the top bit.
		return 64
	}
	for ; x != 0b1; ret++ {
		x = x >> 1
	}
	return
}
