// Package x86 implements asm.Encoder for 16, 32 and 64-bit x86.
//
// See https://wiki.osdev.org/X86-64_Instruction_Encoding for the instruction format. Statements arrive in Intel
// operand order (destination first) regardless of the source dialect.
package x86

import (
	"encoding/binary"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// Encoder implements asm.Encoder.
type Encoder struct {
	// bits is the default operand and address size: 16, 32 or 64.
	bits int
}

// New returns an Encoder for one of api.Mode16, api.Mode32 or api.Mode64.
func New(mode api.Mode) *Encoder {
	switch {
	case mode.Has(api.Mode64):
		return &Encoder{bits: 64}
	case mode.Has(api.Mode16):
		return &Encoder{bits: 16}
	}
	return &Encoder{bits: 32}
}

// IsRegister implements asm.Encoder.IsRegister.
func (e *Encoder) IsRegister(name string) bool {
	r, ok := registers[name]
	return ok && (e.bits == 64 || !r.only64())
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
	return []byte{0x90}
}

// Encode implements asm.Encoder.Encode.
func (e *Encoder) Encode(ctx *asm.Context, st *asm.Statement, buf *asm.Buffer) error {
	h, ok := handlers[st.Mnemonic]
	if !ok {
		return asm.ErrorMnemonic(st)
	}
	in := &inst{Encoder: e, ctx: ctx, st: st}
	for _, p := range st.Prefixes {
		in.legacy = append(in.legacy, instructionPrefixes[p])
	}
	if err := h(in); err != nil {
		return err
	}
	return in.write(buf)
}

// REX prefix bits, which are independent of each other and combined with OR.
// https://wiki.osdev.org/X86-64_Instruction_Encoding#REX_prefix
const (
	rexDefault byte = 0b0100_0000
	rexW       byte = 0b0000_1000
	rexR       byte = 0b0000_0100
	rexX       byte = 0b0000_0010
	rexB       byte = 0b0000_0001
)

// inst accumulates the parts of one encoded instruction.
type inst struct {
	*Encoder
	ctx *asm.Context
	st  *asm.Statement

	// legacy are the lock and repeat prefixes in source order.
	legacy  []byte
	segment byte
	// opsize and adsize are the 0x66 and 0x67 prefixes.
	opsize, adsize bool
	rex            byte
	// rexByte is set when spl, bpl, sil or dil need an otherwise empty REX prefix.
	rexByte bool
	// highByte is set when ah, bh, ch or dh is used, which excludes any REX prefix.
	highByte bool

	opcode   []byte
	hasModRM bool
	modrm    byte
	hasSIB   bool
	sib      byte

	disp     int64
	dispSize int
	// dispRel makes disp relative to the end of the instruction (RIP-relative addressing).
	dispRel bool

	imm      int64
	immSize  int
	immRel   bool
	resolved bool
	// relaxable is set when a longer form of the relative branch exists.
	relaxable bool
}

func (in *inst) write(buf *asm.Buffer) error {
	if in.rex != 0 || in.rexByte {
		if in.bits != 64 {
			return asm.ErrorMissingFeature(in.st, "64-bit mode")
		}
		if in.highByte {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: ah, bh, ch and dh cannot be used with a REX prefix", in.st)
		}
	}

	code := make([]byte, 0, 16)
	code = append(code, in.legacy...)
	if in.segment != 0 {
		code = append(code, in.segment)
	}
	if in.opsize {
		code = append(code, 0x66)
	}
	if in.adsize {
		code = append(code, 0x67)
	}
	if in.rex != 0 || in.rexByte {
		code = append(code, rexDefault|in.rex)
	}
	code = append(code, in.opcode...)
	if in.hasModRM {
		code = append(code, in.modrm)
	}
	if in.hasSIB {
		code = append(code, in.sib)
	}
	dispAt := len(code)
	code = appendValue(code, in.disp, in.dispSize)
	immAt := len(code)
	code = appendValue(code, in.imm, in.immSize)

	next := int64(in.ctx.Address) + int64(len(code))
	if in.dispRel {
		rel := in.disp - next
		if in.resolved && !asm.FitsSigned(rel, 32) {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: RIP-relative target out of range", in.st)
		}
		appendValue(code[:dispAt], rel, in.dispSize)
	}
	if in.immRel {
		rel := in.imm - next
		if in.resolved && !asm.FitsSigned(rel, uint(8*in.immSize)) {
			if in.relaxable && !in.ctx.Long {
				return asm.ErrRelax
			}
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
		}
		appendValue(code[:immAt], rel, in.immSize)
	}
	_, _ = buf.Write(code)
	return nil
}

// appendValue appends the low size bytes of v in little-endian order.
func appendValue(b []byte, v int64, size int) []byte {
	for i := 0; i < size; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// useRegister records the REX constraints of a byte register.
func (in *inst) useRegister(r register) {
	if r.rex {
		in.rexByte = true
	}
	if r.high {
		in.highByte = true
	}
}

// setSize applies the operand size prefixes for an operation on size bytes. default64 is set for instructions
// which operate on 64 bits in 64-bit mode without REX.W (push, pop and near branches).
func (in *inst) setSize(size int, default64 bool) error {
	switch size {
	case 1:
	case 2:
		in.opsize = in.bits != 16
	case 4:
		if default64 && in.bits == 64 {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: 32-bit operand is not encodable in 64-bit mode", in.st)
		}
		in.opsize = in.bits == 16
	case 8:
		if in.bits != 64 {
			return asm.ErrorMissingFeature(in.st, "64-bit mode")
		}
		if !default64 {
			in.rex |= rexW
		}
	default:
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid operand size %d", in.st, size)
	}
	return nil
}

// stackSize is the default operand size of push, pop and near branches.
func (in *inst) stackSize() int {
	return in.bits / 8
}

// gpr returns the general purpose register of op.
func (in *inst) gpr(op *asm.Operand) (register, bool) {
	if op.Kind != asm.OperandRegister || !in.IsRegister(op.Reg) {
		return register{}, false
	}
	r := registers[op.Reg]
	return r, r.class == classGeneral
}

// segmentRegister returns the segment register of op.
func (in *inst) segmentRegister(op *asm.Operand) (register, bool) {
	if op.Kind != asm.OperandRegister {
		return register{}, false
	}
	r, ok := registers[op.Reg]
	return r, ok && r.class == classSegment
}

// isAccumulator returns true if op is al, ax, eax or rax.
func (in *inst) isAccumulator(op *asm.Operand) bool {
	r, ok := in.gpr(op)
	return ok && r.num == 0 && !r.high
}

// isRM returns true if op can be encoded in the ModRM r/m field.
func (in *inst) isRM(op *asm.Operand) bool {
	if op.IsMem() {
		return true
	}
	_, ok := in.gpr(op)
	return ok
}

// operandSize returns the common size of the register and memory operands, falling back to explicit immediate
// sizes. Mismatching sizes and operands without any size are errors.
func (in *inst) operandSize(ops ...*asm.Operand) (int, error) {
	size := 0
	for _, op := range ops {
		s := 0
		switch op.Kind {
		case asm.OperandRegister:
			if r, ok := in.gpr(op); ok {
				s = r.size
			}
		case asm.OperandMemory:
			s = op.Size
		}
		if s == 0 {
			continue
		}
		if size != 0 && s != size {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: operand size mismatch", in.st)
		}
		size = s
	}
	if size == 0 {
		for _, op := range ops {
			if op.IsImm() && op.Size != 0 {
				size = op.Size
			}
		}
	}
	if size == 0 {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: ambiguous operand size", in.st)
	}
	return size, nil
}

// modrmRegister encodes a register in the r/m field, with reg in the reg field.
func (in *inst) modrmRegister(reg byte, rm register) {
	in.hasModRM = true
	if reg >= 8 {
		in.rex |= rexR
	}
	if rm.isExtended() {
		in.rex |= rexB
	}
	in.useRegister(rm)
	// https://wiki.osdev.org/X86-64_Instruction_Encoding#ModR.2FM
	in.modrm = 0b11_000_000 | (reg&7)<<3 | rm.num&7
}

// modrmOperand encodes op, a register or memory operand, in the r/m field with reg in the reg field.
func (in *inst) modrmOperand(reg byte, op *asm.Operand) error {
	if op.IsMem() {
		return in.modrmMemory(reg, op.Mem)
	}
	r, ok := in.gpr(op)
	if !ok {
		return asm.ErrorOperands(in.st)
	}
	in.modrmRegister(reg, r)
	return nil
}

// regField returns the register of op for the ModRM reg field.
func (in *inst) regField(op *asm.Operand) (byte, error) {
	r, ok := in.gpr(op)
	if !ok {
		return 0, asm.ErrorOperands(in.st)
	}
	in.useRegister(r)
	return r.num, nil
}

// eval evaluates e and records whether the value is final.
func (in *inst) eval(e *asm.Expr) (int64, error) {
	v, resolved, err := in.ctx.Eval(e)
	in.resolved = resolved
	return v, err
}

// addressRegister returns the base or index register of a memory operand.
func (in *inst) addressRegister(name string) (register, error) {
	r, ok := registers[name]
	if !ok || !in.IsRegister(name) || (r.class != classGeneral && r.class != classInstructionPointer) || r.size == 1 {
		return r, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid address register %s", in.st, name)
	}
	return r, nil
}

// modrmMemory encodes the memory operand m in ModRM, SIB and displacement.
func (in *inst) modrmMemory(reg byte, m *asm.Memory) (err error) {
	in.hasModRM = true
	if reg >= 8 {
		in.rex |= rexR
	}
	regBits := (reg & 7) << 3

	var base, index register
	hasBase, hasIndex := m.Base != "", m.Index != ""
	if hasBase {
		if base, err = in.addressRegister(m.Base); err != nil {
			return
		}
	}
	if hasIndex {
		if index, err = in.addressRegister(m.Index); err != nil {
			return
		}
		if index.class != classGeneral {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid index register %s", in.st, m.Index)
		}
	}
	if hasBase && hasIndex && base.size != index.size {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: base and index registers differ in size", in.st)
	}

	addressSize := in.bits
	switch {
	case hasBase:
		addressSize = base.size * 8
	case hasIndex:
		addressSize = index.size * 8
	}
	switch addressSize {
	case 16:
		if in.bits == 64 {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: 16-bit addressing is not available in 64-bit mode", in.st)
		}
		in.adsize = in.bits != 16
	case 32:
		in.adsize = in.bits != 32
	}

	if m.Segment != "" {
		// DS is the default segment unless the base is a stack register.
		stack := hasBase && base.class == classGeneral && (base.num == 4 || base.num == 5)
		if m.Segment != "ds" || stack {
			in.segment = segmentOverride[m.Segment]
		}
	}

	disp, err := in.eval(m.Disp)
	if err != nil {
		return err
	}
	constDisp := m.Disp.IsConst()

	if addressSize == 16 {
		return in.modrmMemory16(regBits, m, base, index, disp, constDisp)
	}

	if hasBase && base.class == classInstructionPointer {
		if hasIndex {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: RIP-relative addressing cannot use an index", in.st)
		}
		in.modrm = regBits | 0b101
		in.disp, in.dispSize = disp, 4
		// Symbolic displacements name the target; constants are the raw displacement.
		in.dispRel = !constDisp
		return nil
	}

	if !hasBase && !hasIndex {
		in.disp, in.dispSize = disp, 4
		if in.bits == 64 {
			// mod=00 r/m=101 is RIP-relative in 64-bit mode, so absolute addresses go through SIB without base.
			in.modrm, in.hasSIB, in.sib = regBits|0b100, true, 0b00_100_101
			if in.resolved && !asm.FitsSigned(disp, 32) {
				return asm.Errorf(api.ErrAsmInvalidOperand, "%s: absolute address out of range", in.st)
			}
		} else {
			in.modrm = regBits | 0b101
			if in.resolved && !fitsSize(disp, 4) {
				return asm.Errorf(api.ErrAsmInvalidOperand, "%s: address out of range", in.st)
			}
		}
		return nil
	}

	var mod byte
	switch {
	case !hasBase:
		// [index*scale + disp32]
		mod, in.dispSize = 0b00, 4
	case constDisp && disp == 0 && base.num&7 != 5:
		mod = 0b00
	case constDisp && asm.FitsSigned(disp, 8):
		mod, in.dispSize = 0b01, 1
	default:
		mod, in.dispSize = 0b10, 4
	}
	in.disp = disp
	if in.dispSize == 4 && in.resolved && !fitsSize(disp, 4) {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: displacement out of range", in.st)
	}

	if !hasIndex && base.num&7 != 4 {
		in.modrm = mod<<6 | regBits | base.num&7
		if base.isExtended() {
			in.rex |= rexB
		}
		return nil
	}

	// SIB: https://wiki.osdev.org/X86-64_Instruction_Encoding#SIB
	in.modrm = mod<<6 | regBits | 0b100
	in.hasSIB = true
	indexBits, baseBits := byte(0b100), byte(0b101)
	if hasIndex {
		if index.num == 4 {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: %s cannot be an index register", in.st, m.Index)
		}
		indexBits = index.num & 7
		if index.isExtended() {
			in.rex |= rexX
		}
	}
	if hasBase {
		baseBits = base.num & 7
		if base.isExtended() {
			in.rex |= rexB
		}
	}
	var scale byte
	switch m.Scale {
	case 0, 1:
	case 2:
		scale = 0b01
	case 4:
		scale = 0b10
	case 8:
		scale = 0b11
	default:
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid scale %d", in.st, m.Scale)
	}
	in.sib = scale<<6 | indexBits<<3 | baseBits
	return nil
}

// memory16Forms maps the registers of a 16-bit address to the r/m field. 0xff means absent.
var memory16Forms = map[[2]byte]byte{
	{3, 6}: 0b000, {3, 7}: 0b001, {5, 6}: 0b010, {5, 7}: 0b011,
	{6, 0xff}: 0b100, {7, 0xff}: 0b101, {5, 0xff}: 0b110, {3, 0xff}: 0b111,
}

func (in *inst) modrmMemory16(regBits byte, m *asm.Memory, base, index register, disp int64, constDisp bool) error {
	if m.Scale > 1 {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: 16-bit addressing cannot scale the index", in.st)
	}
	in.disp = disp
	if m.Base == "" && m.Index == "" {
		in.modrm, in.dispSize = regBits|0b110, 2
		return nil
	}
	key := [2]byte{0xff, 0xff}
	switch {
	case m.Base != "" && m.Index != "":
		key = [2]byte{base.num, index.num}
		if index.num == 3 || index.num == 5 {
			key = [2]byte{index.num, base.num}
		}
	case m.Base != "":
		key[0] = base.num
	default:
		key[0] = index.num
	}
	rm, ok := memory16Forms[key]
	if !ok {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid 16-bit address %s", in.st, m)
	}
	switch {
	case constDisp && disp == 0 && rm != 0b110:
		in.modrm = regBits | rm
	case constDisp && asm.FitsSigned(disp, 8):
		in.modrm, in.dispSize = 0b01_000_000|regBits|rm, 1
	default:
		in.modrm, in.dispSize = 0b10_000_000|regBits|rm, 2
	}
	return nil
}

// signExtend interprets the low size bytes of v as a two's complement integer.
func signExtend(v int64, size int) int64 {
	shift := uint(64 - 8*size)
	return v << shift >> shift
}

// fitsSize returns true if v is representable in size bytes, signed or unsigned.
func fitsSize(v int64, size int) bool {
	return asm.FitsSigned(v, uint(8*size)) || asm.FitsUnsigned(v, uint(8*size))
}

// immediate sets the immediate of an operation on opSize bytes, encoded in immSize bytes and sign-extended by the
// processor when shorter.
func (in *inst) immediate(op *asm.Operand, immSize, opSize int) error {
	v, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil {
		return err
	}
	if resolved && (!fitsSize(v, opSize) || !asm.FitsSigned(signExtend(v, opSize), uint(8*immSize)) && immSize < opSize) {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate %#x out of range", in.st, v)
	}
	in.imm, in.immSize = v, immSize
	return nil
}

// isImm8 returns true if op is a constant which fits the sign-extended 8-bit immediate form of an operation on
// size bytes. Symbolic values always use the full form so that the instruction length is stable across passes.
func (in *inst) isImm8(op *asm.Operand, size int) bool {
	if !op.IsImm() || !op.Expr.IsConst() {
		return false
	}
	v, _, err := op.Expr.Eval(nil)
	return err == nil && fitsSize(v, size) && asm.FitsSigned(signExtend(v, size), 8)
}

// relative encodes a relative branch to target with the short opcode, or the long one when the short is nil or the
// driver asked for relaxation.
func (in *inst) relative(target *asm.Expr, short, long []byte) error {
	v, err := in.eval(target)
	if err != nil {
		return err
	}
	in.imm, in.immRel = v, true
	switch {
	case short != nil && !in.ctx.Long:
		in.opcode, in.immSize = short, 1
		in.relaxable = long != nil
	case long == nil:
		return asm.ErrorOperands(in.st)
	default:
		in.opcode, in.immSize = long, 4
		if in.bits == 16 {
			in.immSize = 2
		}
	}
	return nil
}

// branchTarget returns the target of a relative branch operand: an immediate, or an AT&T bare address.
func branchTarget(op *asm.Operand) (*asm.Expr, bool) {
	switch {
	case op.Far || op.Indirect:
		return nil, false
	case op.IsImm():
		return op.Expr, true
	case op.IsMem() && op.Mem.Bare:
		return op.Mem.Disp, true
	}
	return nil, false
}
