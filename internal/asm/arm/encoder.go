// Package arm implements asm.Encoder for 32-bit ARM: the A32 instruction set and Thumb (including the 32-bit
// Thumb-2 encodings).
//
// Mnemonics use the unified syntax: a base name, an optional "s" suffix requesting a flag-setting instruction and an
// optional condition, e.g. "addseq". The divided syntax order "addeqs" is accepted too. A ".w" or ".n" suffix
// requests the 32-bit or 16-bit Thumb encoding.
//
// See https://developer.arm.com/documentation/ddi0406/c for the encodings.
package arm

import (
	"encoding/binary"
	"math/bits"
	"strconv"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct {
	thumb bool
	// v8 enables the ARMv8 additions to AArch32 such as hlt and sevl.
	v8    bool
	order binary.ByteOrder
}

// New returns an Encoder for api.ModeARM or api.ModeThumb, optionally combined with api.ModeV8 and
// api.ModeBigEndian.
func New(mode api.Mode) *Encoder {
	e := &Encoder{thumb: mode.Has(api.ModeThumb), v8: mode.Has(api.ModeV8), order: binary.LittleEndian}
	if mode.Has(api.ModeBigEndian) {
		e.order = binary.BigEndian
	}
	return e
}

const (
	regSP = 13
	regLR = 14
	regPC = 15
)

var registers = map[string]uint32{
	"sp": regSP, "lr": regLR, "pc": regPC,
	"ip": 12, "fp": 11, "sl": 10, "sb": 9,
}

func init() {
	for i := uint32(0); i < 16; i++ {
		registers["r"+strconv.Itoa(int(i))] = i
	}
}

const condAL = 0b1110

var conditions = map[string]uint32{
	"eq": 0b0000, "ne": 0b0001, "cs": 0b0010, "hs": 0b0010, "cc": 0b0011, "lo": 0b0011,
	"mi": 0b0100, "pl": 0b0101, "vs": 0b0110, "vc": 0b0111, "hi": 0b1000, "ls": 0b1001,
	"ge": 0b1010, "lt": 0b1011, "gt": 0b1100, "le": 0b1101, "al": condAL,
}

// flagSetting are the instructions accepting the "s" suffix.
var flagSetting = map[string]struct{}{
	"and": {}, "eor": {}, "sub": {}, "rsb": {}, "add": {}, "adc": {}, "sbc": {}, "rsc": {}, "orr": {}, "orn": {},
	"mov": {}, "bic": {}, "mvn": {}, "neg": {}, "lsl": {}, "lsr": {}, "asr": {}, "ror": {}, "rrx": {},
	"mul": {}, "mla": {}, "umull": {}, "umlal": {}, "smull": {}, "smlal": {},
}

// mnemonic is an instruction name split into its parts.
type mnemonic struct {
	base string
	cond uint32
	// s is the flag-setting suffix.
	s bool
	// wide and narrow are the ".w" and ".n" qualifiers.
	wide, narrow bool
}

func (e *Encoder) known(base string) bool {
	if e.thumb {
		_, ok := thumbHandlers[base]
		return ok
	}
	_, ok := a32Handlers[base]
	return ok
}

func (e *Encoder) flagSetting(base string) bool {
	_, ok := flagSetting[base]
	return ok && e.known(base)
}

// split decomposes name, trying the longest base first so that "bls" is "b" with condition "ls".
func (e *Encoder) split(name string) (m mnemonic, ok bool) {
	m.cond = condAL
	switch {
	case strings.HasSuffix(name, ".w"):
		m.wide, name = true, name[:len(name)-2]
	case strings.HasSuffix(name, ".n"):
		m.narrow, name = true, name[:len(name)-2]
	}
	if e.known(name) {
		m.base = name
		return m, true
	}
	n := len(name)
	if n > 2 {
		if c, ok := conditions[name[n-2:]]; ok && e.known(name[:n-2]) {
			m.base, m.cond = name[:n-2], c
			return m, true
		}
	}
	if n > 1 && name[n-1] == 's' && e.flagSetting(name[:n-1]) {
		m.base, m.s = name[:n-1], true
		return m, true
	}
	if n > 3 {
		// addseq
		if c, ok := conditions[name[n-2:]]; ok && name[n-3] == 's' && e.flagSetting(name[:n-3]) {
			m.base, m.cond, m.s = name[:n-3], c, true
			return m, true
		}
		// addeqs
		if c, ok := conditions[name[n-3:n-1]]; ok && name[n-1] == 's' && e.flagSetting(name[:n-3]) {
			m.base, m.cond, m.s = name[:n-3], c, true
			return m, true
		}
	}
	return m, false
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	_, ok := registers[name]
	return ok
}

// IsMnemonic implements asm.Encoder.IsMnemonic.
func (e *Encoder) IsMnemonic(name string) bool {
	_, ok := e.split(name)
	return ok
}

// ByteOrder implements asm.Encoder.ByteOrder.
func (e *Encoder) ByteOrder() binary.ByteOrder {
	return e.order
}

// Nop implements asm.Encoder.Nop.
func (e *Encoder) Nop() []byte {
	if e.thumb {
		b := make([]byte, 2)
		e.order.PutUint16(b, 0xbf00)
		return b
	}
	b := make([]byte, 4)
	e.order.PutUint32(b, 0xe320f000)
	return b
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	m, ok := e.split(st.Mnemonic)
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	in := &inst{Encoder: e, ctx: ctx, st: st, m: m, buf: buf}
	if e.thumb {
		if m.cond != condAL && m.base != "b" {
			// Only branches carry a condition in Thumb, other instructions are predicated by an IT block.
			return asm.ErrorMissingFeature(st, "IT blocks")
		}
		return thumbHandlers[m.base](in)
	}
	word, err := a32Handlers[m.base](in)
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
	m   mnemonic
	buf *asm.Buffer
}

// c returns the condition field of an A32 instruction.
func (in *inst) c() uint32 {
	return in.m.cond << 28
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
	return in.regName(op.Reg)
}

func (in *inst) regName(name string) (uint32, error) {
	r, ok := registers[name]
	if !ok {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid register %s", in.st, name)
	}
	return r, nil
}

// regs returns the registers of consecutive register operands.
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

// regList returns the bit mask of a register list operand.
func (in *inst) regList(op *asm.Operand) (uint32, error) {
	if op.Kind != asm.OperandRegisterList || len(op.Regs) == 0 {
		return 0, asm.ErrorOperands(in.st)
	}
	var mask uint32
	for _, name := range op.Regs {
		r, err := in.regName(name)
		if err != nil {
			return 0, err
		}
		mask |= 1 << r
	}
	return mask, nil
}

// imm evaluates an immediate operand.
func (in *inst) imm(op *asm.Operand) (int64, error) {
	if !op.IsImm() || op.Literal {
		return 0, asm.ErrorOperands(in.st)
	}
	return in.ctx.Value(op.Expr)
}

// imm32 evaluates an immediate operand which must fit 32 bits, signed or not.
func (in *inst) imm32(op *asm.Operand) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if !asm.FitsSigned(v, 32) && !asm.FitsUnsigned(v, 32) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
	}
	return uint32(v), nil
}

// immRange evaluates an immediate operand in [0, max].
func (in *inst) immRange(op *asm.Operand, max int64) (uint32, error) {
	v, err := in.imm(op)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > max {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
	}
	return uint32(v), nil
}

// target returns the distance from base to a branch or literal target. resolved is false before the target is
// known.
func (in *inst) target(op *asm.Operand, base uint64) (offset int64, resolved bool, err error) {
	if !op.IsImm() || op.Literal {
		return 0, false, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, resolved, err
	}
	return target - int64(base), true, nil
}

func (in *inst) errorRange() error {
	return asm.Errorf(api.ErrAsmInvalidOperand, "%s: target out of range", in.st)
}

// unconditional fails for instructions which cannot take a condition.
func (in *inst) unconditional() error {
	if in.m.cond != condAL {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: instruction is not predicable", in.st)
	}
	return nil
}

func (in *inst) requireV8() error {
	if !in.v8 {
		return asm.ErrorMissingFeature(in.st, "ARMv8")
	}
	return nil
}

// shift is a decoded shift operand.
type shift struct {
	typ    uint32
	amount uint32
	// reg is set when the amount is held in register rs.
	reg bool
	rs  uint32
}

var shiftTypes = map[string]uint32{"lsl": 0b00, "lsr": 0b01, "asr": 0b10, "ror": 0b11, "rrx": 0b11}

// shiftOf decodes an "lsl #n", "asr rs" or "rrx" operand. lsr and asr by 32 are encoded with amount zero.
func (in *inst) shiftOf(op *asm.Operand) (shift, error) {
	if op.Kind != asm.OperandShift {
		return shift{}, asm.ErrorOperands(in.st)
	}
	return in.shiftAmount(op.Shift, op.Reg, op.Expr)
}

func (in *inst) shiftAmount(name, reg string, amount *asm.Expr) (shift, error) {
	typ, ok := shiftTypes[name]
	if !ok {
		return shift{}, asm.ErrorOperands(in.st)
	}
	s := shift{typ: typ}
	switch {
	case name == "rrx":
		if reg != "" || amount != nil {
			return s, asm.ErrorOperands(in.st)
		}
		return s, nil
	case reg != "":
		rs, err := in.regName(reg)
		s.reg, s.rs = true, rs
		return s, err
	case amount == nil:
		return s, asm.ErrorOperands(in.st)
	}
	v, err := in.ctx.Value(amount)
	if err != nil {
		return s, err
	}
	max := int64(31)
	if name == "lsr" || name == "asr" {
		max = 32
	}
	if v < 0 || v > max {
		return s, asm.Errorf(api.ErrAsmInvalidOperand, "%s: shift amount out of range", in.st)
	}
	if v == 0 {
		// A zero rotation or right shift is a plain register.
		return shift{}, nil
	}
	s.amount = uint32(v) & 31
	return s, nil
}

// armImmediate returns the 12-bit rotated immediate encoding v: an 8-bit value rotated right by twice the 4-bit
// rotation field.
func armImmediate(v uint32) (uint32, bool) {
	for rot := 0; rot < 16; rot++ {
		if x := bits.RotateLeft32(v, 2*rot); x <= 0xff {
			return uint32(rot)<<8 | x, true
		}
	}
	return 0, false
}

// thumbImmediate returns the 12-bit i:imm3:imm8 modified immediate encoding v: a byte replicated in one of the
// patterns 0x000000XY, 0x00XY00XY, 0xXY00XY00, 0xXYXYXYXY, or a value 0b1xxxxxxx rotated right by 8 to 31 bits.
func thumbImmediate(v uint32) (uint32, bool) {
	b := v & 0xff
	switch {
	case v <= 0xff:
		return v, true
	case v == b|b<<16:
		return 1<<8 | b, true
	case v == (v>>8&0xff)<<8|(v>>8&0xff)<<24:
		return 2<<8 | v>>8&0xff, true
	case v == b*0x01010101:
		return 3<<8 | b, true
	}
	for rot := 8; rot < 32; rot++ {
		if x := bits.RotateLeft32(v, rot); x >= 0x80 && x <= 0xff {
			return uint32(rot)<<7 | x&0x7f, true
		}
	}
	return 0, false
}

// magnitude returns |v| and the "add" bit U of offset encodings.
func magnitude(v int64) (int64, uint32) {
	if v < 0 {
		return -v, 0
	}
	return v, 1
}
