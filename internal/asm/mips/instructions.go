package mips

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

type handler func(in *inst) error

// Major opcodes.
const (
	opSPECIAL  = 0x00 << 26
	opREGIMM   = 0x01 << 26
	opSPECIAL2 = 0x1c << 26
	opSPECIAL3 = 0x1f << 26
)

// feature restricts an instruction to some modes.
type feature byte

const (
	anyMode feature = iota
	only64
	onlyR2
	preR6
	onlyR6
)

func (in *inst) check(f feature) error {
	switch f {
	case only64:
		return in.require64()
	case onlyR2:
		if !in.r2 {
			return asm.ErrorMissingFeature(in.st, "MIPS32 release 2")
		}
	case preR6:
		return in.removedInR6()
	case onlyR6:
		if !in.r6 {
			return asm.ErrorMissingFeature(in.st, "MIPS32 release 6")
		}
	}
	return nil
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"add":   arith(0x20, "addi", false, anyMode),
		"addu":  arith(0x21, "addiu", false, anyMode),
		"sub":   arith(0x22, "addi", true, anyMode),
		"subu":  arith(0x23, "addiu", true, anyMode),
		"and":   arith(0x24, "andi", false, anyMode),
		"or":    arith(0x25, "ori", false, anyMode),
		"xor":   arith(0x26, "xori", false, anyMode),
		"nor":   arith(0x27, "", false, anyMode),
		"slt":   arith(0x2a, "slti", false, anyMode),
		"sltu":  arith(0x2b, "sltiu", false, anyMode),
		"dadd":  arith(0x2c, "daddi", false, only64),
		"daddu": arith(0x2d, "daddiu", false, only64),
		"dsub":  arith(0x2e, "daddi", true, only64),
		"dsubu": arith(0x2f, "daddiu", true, only64),
		"movz":  arith(0x0a, "", false, preR6),
		"movn":  arith(0x0b, "", false, preR6),

		"addi":   immediate(0x08<<26, true, preR6),
		"addiu":  immediate(0x09<<26, true, anyMode),
		"slti":   immediate(0x0a<<26, true, anyMode),
		"sltiu":  immediate(0x0b<<26, true, anyMode),
		"andi":   immediate(0x0c<<26, false, anyMode),
		"ori":    immediate(0x0d<<26, false, anyMode),
		"xori":   immediate(0x0e<<26, false, anyMode),
		"daddi":  immediate(0x18<<26, true, only64),
		"daddiu": immediate(0x19<<26, true, only64),
		"lui":    (*inst).lui,

		"sll":    shiftImmediate(0x00, false),
		"srl":    shiftImmediate(0x02, false),
		"sra":    shiftImmediate(0x03, false),
		"rotr":   shiftImmediate(0x00200002, false),
		"dsll":   shiftImmediate(0x38, true),
		"dsrl":   shiftImmediate(0x3a, true),
		"dsra":   shiftImmediate(0x3b, true),
		"dsll32": shiftImmediate(0x3c, true),
		"dsrl32": shiftImmediate(0x3e, true),
		"dsra32": shiftImmediate(0x3f, true),
		"sllv":   shiftVariable(0x04, anyMode),
		"srlv":   shiftVariable(0x06, anyMode),
		"srav":   shiftVariable(0x07, anyMode),
		"rotrv":  shiftVariable(0x46, onlyR2),
		"dsllv":  shiftVariable(0x14, only64),
		"dsrlv":  shiftVariable(0x16, only64),
		"dsrav":  shiftVariable(0x17, only64),

		"mult":   hiLo(0x18, anyMode),
		"multu":  hiLo(0x19, anyMode),
		"dmult":  hiLo(0x1c, only64),
		"dmultu": hiLo(0x1d, only64),
		"ddiv":   hiLo(0x1e, only64),
		"ddivu":  hiLo(0x1f, only64),
		"div":    divide(0x1a),
		"divu":   divide(0x1b),
		"mod":    threeR6(0x0da),
		"modu":   threeR6(0x0db),
		"muh":    threeR6(0x0d8),
		"mulu":   threeR6(0x099),
		"muhu":   threeR6(0x0d9),
		"mul":    (*inst).mul,
		"mfhi":   moveHiLo(0x10, true),
		"mflo":   moveHiLo(0x12, true),
		"mthi":   moveHiLo(0x11, false),
		"mtlo":   moveHiLo(0x13, false),
		"clz":    (*inst).clz,

		"seb":  signExtend(0x10 << 6),
		"seh":  signExtend(0x18 << 6),
		"wsbh": signExtend(0x02 << 6),
		"ext":  bitField(false),
		"ins":  bitField(true),

		"lb":   loadStore(0x20<<26, anyMode),
		"lh":   loadStore(0x21<<26, anyMode),
		"lwl":  loadStore(0x22<<26, preR6),
		"lw":   loadStore(0x23<<26, anyMode),
		"lbu":  loadStore(0x24<<26, anyMode),
		"lhu":  loadStore(0x25<<26, anyMode),
		"lwr":  loadStore(0x26<<26, preR6),
		"lwu":  loadStore(0x27<<26, only64),
		"sb":   loadStore(0x28<<26, anyMode),
		"sh":   loadStore(0x29<<26, anyMode),
		"swl":  loadStore(0x2a<<26, preR6),
		"sw":   loadStore(0x2b<<26, anyMode),
		"swr":  loadStore(0x2e<<26, preR6),
		"ld":   loadStore(0x37<<26, only64),
		"sd":   loadStore(0x3f<<26, only64),
		"ll":   linked(0x30<<26, 0x36),
		"sc":   linked(0x38<<26, 0x26),
		"lwc1": loadStoreFP(0x31 << 26),
		"swc1": loadStoreFP(0x39 << 26),
		"ldc1": loadStoreFP(0x35 << 26),
		"sdc1": loadStoreFP(0x3d << 26),
		"mfc1": moveFP(0x44000000),
		"mtc1": moveFP(0x44800000),

		"beq":    branch(0x04<<26, 2, 0),
		"bne":    branch(0x05<<26, 2, 0),
		"beqz":   branch(0x04<<26, 1, 0),
		"bnez":   branch(0x05<<26, 1, 0),
		"b":      branch(0x04<<26, 0, 0),
		"blez":   branch(0x06<<26, 1, 0),
		"bgtz":   branch(0x07<<26, 1, 0),
		"bltz":   branch(opREGIMM, 1, 0x00),
		"bgez":   branch(opREGIMM, 1, 0x01),
		"bltzal": branchLink(0x10),
		"bgezal": branchLink(0x11),
		"bal":    branch(opREGIMM, 0, 0x11),
		"j":      jump(0x02 << 26),
		"jal":    jump(0x03 << 26),
		"jr":     (*inst).jr,
		"jalr":   (*inst).jalr,

		"syscall": code(0x0c, 6, 0xfffff),
		"break":   code(0x0d, 16, 0x3ff),
		"sync":    code(0x0f, 6, 0x1f),
		"eret":    fixed(0x42000018),
		"teq":     trap(0x34),
		"tne":     trap(0x36),

		"nop":  fixed(0),
		"move": (*inst).move,
		"not":  (*inst).not,
		"neg":  negate(0x22),
		"negu": negate(0x23),
		"li":   (*inst).li,
		"la":   (*inst).la,
	}
}

// arith encodes the three register R-type instructions "op rd, rs, rt". "op rd, rt" stands for "op rd, rd, rt" and
// an immediate last operand selects the I-type counterpart, negated for subtraction.
func arith(funct uint32, alternate string, negate bool, f feature) handler {
	return func(in *inst) error {
		if err := in.check(f); err != nil {
			return err
		}
		ops, err := in.operands(2, 3)
		if err != nil {
			return err
		}
		if last := &ops[len(ops)-1]; last.IsImm() {
			if alternate == "" || len(ops) != 3 {
				return asm.ErrorOperands(in.st)
			}
			if negate {
				last = &asm.Operand{Kind: asm.OperandImmediate, Expr: asm.Unary(asm.ExprNeg, last.Expr)}
			}
			return handlers[alternate](in.with(ops[0], ops[1], *last))
		}
		if len(ops) == 2 {
			ops = []asm.Operand{ops[0], ops[0], ops[1]}
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL | r[1]<<21 | r[2]<<16 | r[0]<<11 | funct)
		return nil
	}
}

// with returns a copy of in encoding the same mnemonic with other operands.
func (in *inst) with(ops ...asm.Operand) *inst {
	st := *in.st
	st.Operands = ops
	ret := *in
	ret.st = &st
	return &ret
}

// immediate encodes "op rt, rs, imm".
func immediate(op uint32, signed bool, f feature) handler {
	return func(in *inst) error {
		if err := in.check(f); err != nil {
			return err
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r, err := in.regs(ops[:2])
		if err != nil {
			return err
		}
		var v uint32
		if signed {
			v, err = in.signed16(&ops[2])
		} else {
			v, err = in.unsigned16(&ops[2])
		}
		if err != nil {
			return err
		}
		in.emit(op | r[1]<<21 | r[0]<<16 | v)
		return nil
	}
}

func (in *inst) lui() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	v, err := in.unsigned16(&ops[1])
	if err != nil {
		return err
	}
	in.emit(0x0f<<26 | rt<<16 | v)
	return nil
}

// shiftImmediate encodes "op rd, rt, sa". The doubleword shifts by 32 to 63 become their "32" variants.
func shiftImmediate(funct uint32, doubleword bool) handler {
	return func(in *inst) error {
		if doubleword {
			if err := in.require64(); err != nil {
				return err
			}
		}
		if funct&0x00200000 != 0 && !in.r2 {
			return asm.ErrorMissingFeature(in.st, "MIPS32 release 2")
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r, err := in.regs(ops[:2])
		if err != nil {
			return err
		}
		max := int64(31)
		if doubleword && funct&0x04 == 0 {
			max = 63
		}
		sa, err := in.immRange(&ops[2], max)
		if err != nil {
			return err
		}
		f := funct
		if sa >= 32 {
			f, sa = f|0x04, sa-32
		}
		in.emit(opSPECIAL | r[1]<<16 | r[0]<<11 | sa<<6 | f)
		return nil
	}
}

// shiftVariable encodes "op rd, rt, rs".
func shiftVariable(funct uint32, f feature) handler {
	return func(in *inst) error {
		if err := in.check(f); err != nil {
			return err
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL | r[2]<<21 | r[1]<<16 | r[0]<<11 | funct)
		return nil
	}
}

// hiLo encodes the multiplications and divisions writing HI and LO, which release 6 removed.
func hiLo(funct uint32, f feature) handler {
	return func(in *inst) error {
		if err := in.check(f); err != nil {
			return err
		}
		if err := in.removedInR6(); err != nil {
			return err
		}
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL | r[0]<<21 | r[1]<<16 | funct)
		return nil
	}
}

// divide is "div rs, rt" before release 6 and "div rd, rs, rt" since.
func divide(funct uint32) handler {
	legacy := hiLo(funct, anyMode)
	r6 := threeR6(2<<6 | funct)
	return func(in *inst) error {
		if in.r6 {
			if len(in.st.Operands) == 2 {
				return in.removedInR6()
			}
			return r6(in)
		}
		if len(in.st.Operands) == 3 {
			// GAS writes the hardware division "div $zero, rs, rt" to tell it from its trapping macro.
			if rd, err := in.reg(&in.st.Operands[0]); err != nil || rd != 0 {
				return asm.ErrorMissingFeature(in.st, "the division macro")
			}
			return legacy(in.with(in.st.Operands[1:]...))
		}
		return legacy(in)
	}
}

// threeR6 encodes the release 6 "op rd, rs, rt" multiplications and divisions. funct holds the sa field too.
func threeR6(funct uint32) handler {
	return func(in *inst) error {
		if err := in.check(onlyR6); err != nil {
			return err
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL | r[1]<<21 | r[2]<<16 | r[0]<<11 | funct)
		return nil
	}
}

// mul is in SPECIAL2 before release 6.
func (in *inst) mul() error {
	if in.r6 {
		return threeR6(2<<6 | 0x18)(in)
	}
	ops, err := in.operands(3)
	if err != nil {
		return err
	}
	r, err := in.regs(ops)
	if err != nil {
		return err
	}
	in.emit(opSPECIAL2 | r[1]<<21 | r[2]<<16 | r[0]<<11 | 0x02)
	return nil
}

func (in *inst) clz() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	r, err := in.regs(ops)
	if err != nil {
		return err
	}
	if in.r6 {
		in.emit(opSPECIAL | r[1]<<21 | r[0]<<11 | 1<<6 | 0x10)
		return nil
	}
	in.emit(opSPECIAL2 | r[1]<<21 | r[0]<<16 | r[0]<<11 | 0x20)
	return nil
}

// moveHiLo encodes "mfhi rd" when to is set, "mthi rs" otherwise.
func moveHiLo(funct uint32, to bool) handler {
	return func(in *inst) error {
		if err := in.removedInR6(); err != nil {
			return err
		}
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		r, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		if to {
			in.emit(opSPECIAL | r<<11 | funct)
		} else {
			in.emit(opSPECIAL | r<<21 | funct)
		}
		return nil
	}
}

// signExtend encodes the BSHFL group "op rd, rt".
func signExtend(sa uint32) handler {
	return func(in *inst) error {
		if err := in.check(onlyR2); err != nil {
			return err
		}
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL3 | r[1]<<16 | r[0]<<11 | sa | 0x20)
		return nil
	}
}

// bitField encodes "ext rt, rs, pos, size" and "ins rt, rs, pos, size".
func bitField(insert bool) handler {
	return func(in *inst) error {
		if err := in.check(onlyR2); err != nil {
			return err
		}
		ops, err := in.operands(4)
		if err != nil {
			return err
		}
		r, err := in.regs(ops[:2])
		if err != nil {
			return err
		}
		pos, err := in.immRange(&ops[2], 31)
		if err != nil {
			return err
		}
		size, err := in.immRange(&ops[3], 32)
		if err != nil {
			return err
		}
		if size == 0 || pos+size > 32 {
			return in.errorRange(int64(size))
		}
		if insert {
			in.emit(opSPECIAL3 | r[1]<<21 | r[0]<<16 | (pos+size-1)<<11 | pos<<6 | 0x04)
		} else {
			in.emit(opSPECIAL3 | r[1]<<21 | r[0]<<16 | (size-1)<<11 | pos<<6)
		}
		return nil
	}
}

// loadStore encodes "op rt, offset(base)".
func loadStore(op uint32, f feature) handler {
	return func(in *inst) error {
		if err := in.check(f); err != nil {
			return err
		}
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rt, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		base, offset, err := in.mem(&ops[1])
		if err != nil {
			return err
		}
		in.emit(op | base<<21 | rt<<16 | offset)
		return nil
	}
}

// linked encodes ll and sc, moved to SPECIAL3 with a 9-bit offset by release 6.
func linked(op, r6Funct uint32) handler {
	legacy := loadStore(op, anyMode)
	return func(in *inst) error {
		if !in.r6 {
			return legacy(in)
		}
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rt, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		if !ops[1].IsMem() || ops[1].Mem.Index != "" {
			return asm.ErrorOperands(in.st)
		}
		base, err := in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: ops[1].Mem.Base})
		if err != nil {
			return err
		}
		var offset int64
		if ops[1].Mem.Disp != nil {
			if offset, err = in.ctx.Value(ops[1].Mem.Disp); err != nil {
				return err
			}
		}
		if !asm.FitsSigned(offset, 9) {
			return in.errorRange(offset)
		}
		in.emit(opSPECIAL3 | base<<21 | rt<<16 | uint32(offset)&0x1ff<<7 | r6Funct)
		return nil
	}
}

func loadStoreFP(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		ft, err := in.fpr(&ops[0])
		if err != nil {
			return err
		}
		base, offset, err := in.mem(&ops[1])
		if err != nil {
			return err
		}
		in.emit(op | base<<21 | ft<<16 | offset)
		return nil
	}
}

// moveFP encodes "mfc1 rt, fs" and "mtc1 rt, fs".
func moveFP(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rt, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		fs, err := in.fpr(&ops[1])
		if err != nil {
			return err
		}
		in.emit(op | rt<<16 | fs<<11)
		return nil
	}
}

// offset returns the branch displacement field for the target operand. Offsets are counted in words from the
// delay slot.
func (in *inst) offset(op *asm.Operand) (uint32, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, err
	}
	off := target - int64(in.ctx.Address+4)
	if off&3 != 0 || !asm.FitsSigned(off>>2, 16) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
	}
	return uint32(off>>2) & 0xffff, nil
}

// branch encodes the conditional branches comparing nregs registers, rt being fixed for the REGIMM ones.
func branch(op uint32, nregs int, rt uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(nregs + 1)
		if err != nil {
			return err
		}
		r, err := in.regs(ops[:nregs])
		if err != nil {
			return err
		}
		off, err := in.offset(&ops[nregs])
		if err != nil {
			return err
		}
		word := op | rt<<16 | off
		switch nregs {
		case 2:
			word |= r[0]<<21 | r[1]<<16
		case 1:
			word |= r[0] << 21
		}
		in.emit(word)
		in.delaySlot()
		return nil
	}
}

// branchLink encodes bltzal and bgezal. Release 6 only keeps "bgezal $zero", known as bal.
func branchLink(rt uint32) handler {
	h := branch(opREGIMM, 1, rt)
	return func(in *inst) error {
		if err := in.removedInR6(); err != nil {
			return err
		}
		return h(in)
	}
}

// jump encodes j and jal, whose target must lie in the 256MB region of the delay slot.
func jump(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		if !ops[0].IsImm() {
			return asm.ErrorOperands(in.st)
		}
		target, resolved, err := in.ctx.Eval(ops[0].Expr)
		if err != nil {
			return err
		}
		if resolved && (target&3 != 0 || (uint64(target)^(in.ctx.Address+4))>>28 != 0) {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: jump target out of range", in.st)
		}
		in.emit(op | uint32(target>>2)&0x3ffffff)
		in.delaySlot()
		return nil
	}
}

// jr is "jalr $zero, rs" since release 6.
func (in *inst) jr() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	rs, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	if in.r6 {
		in.emit(opSPECIAL | rs<<21 | 0x09)
	} else {
		in.emit(opSPECIAL | rs<<21 | 0x08)
	}
	in.delaySlot()
	return nil
}

// jalr links to $ra unless given "jalr rd, rs".
func (in *inst) jalr() error {
	ops, err := in.operands(1, 2)
	if err != nil {
		return err
	}
	r, err := in.regs(ops)
	if err != nil {
		return err
	}
	rd, rs := uint32(31), r[0]
	if len(r) == 2 {
		rd, rs = r[0], r[1]
	}
	in.emit(opSPECIAL | rs<<21 | rd<<11 | 0x09)
	in.delaySlot()
	return nil
}

// code encodes syscall, break and sync, whose optional code is placed at shift.
func code(funct uint32, shift uint, max int64) handler {
	return func(in *inst) error {
		ops, err := in.operands(0, 1)
		if err != nil {
			return err
		}
		var v uint32
		if len(ops) == 1 {
			if v, err = in.immRange(&ops[0], max); err != nil {
				return err
			}
		}
		in.emit(opSPECIAL | v<<shift | funct)
		return nil
	}
}

func trap(funct uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		in.emit(opSPECIAL | r[0]<<21 | r[1]<<16 | funct)
		return nil
	}
}

func fixed(word uint32) handler {
	return func(in *inst) error {
		if _, err := in.operands(0); err != nil {
			return err
		}
		in.emit(word)
		return nil
	}
}

// move is "or rd, rs, $zero".
func (in *inst) move() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	r, err := in.regs(ops)
	if err != nil {
		return err
	}
	in.emit(opSPECIAL | r[1]<<21 | r[0]<<11 | 0x25)
	return nil
}

// not is "nor rd, rs, $zero".
func (in *inst) not() error {
	ops, err := in.operands(1, 2)
	if err != nil {
		return err
	}
	r, err := in.regs(ops)
	if err != nil {
		return err
	}
	rs := r[len(r)-1]
	in.emit(opSPECIAL | rs<<21 | r[0]<<11 | 0x27)
	return nil
}

// negate encodes neg and negu as "sub rd, $zero, rt".
func negate(funct uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1, 2)
		if err != nil {
			return err
		}
		r, err := in.regs(ops)
		if err != nil {
			return err
		}
		rt := r[len(r)-1]
		in.emit(opSPECIAL | rt<<16 | r[0]<<11 | funct)
		return nil
	}
}

// li loads a 32-bit constant with the shortest of addiu, ori and lui+ori. Values depending on symbols always take
// the two instruction form so that the layout cannot shrink between passes.
func (in *inst) li() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	v, err := in.imm(&ops[1])
	if err != nil {
		return err
	}
	if !asm.FitsSigned(v, 32) && !asm.FitsUnsigned(v, 32) {
		return in.errorRange(v)
	}
	w := uint32(v)
	if !ops[1].Expr.IsConst() {
		in.emit(0x0f<<26|rt<<16|w>>16, 0x0d<<26|rt<<21|rt<<16|w&0xffff)
		return nil
	}
	switch {
	case asm.FitsSigned(int64(int32(w)), 16):
		in.emit(0x09<<26 | rt<<16 | w&0xffff)
	case w <= 0xffff:
		in.emit(0x0d<<26 | rt<<16 | w)
	case w&0xffff == 0:
		in.emit(0x0f<<26 | rt<<16 | w>>16)
	default:
		in.emit(0x0f<<26|rt<<16|w>>16, 0x0d<<26|rt<<21|rt<<16|w&0xffff)
	}
	return nil
}

// la loads an address. Constants are loaded like li, symbols with lui and a sign-adjusted addiu.
func (in *inst) la() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	if !ops[1].IsImm() {
		return asm.ErrorOperands(in.st)
	}
	if ops[1].Expr.IsConst() {
		return in.li()
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	v, err := in.imm(&ops[1])
	if err != nil {
		return err
	}
	w := uint32(v)
	in.emit(0x0f<<26|rt<<16|(w+0x8000)>>16, 0x09<<26|rt<<21|rt<<16|w&0xffff)
	return nil
}
