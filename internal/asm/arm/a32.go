package arm

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// a32Handler returns the instruction word of one A32 mnemonic, including the condition field.
type a32Handler func(in *inst) (uint32, error)

// Data processing opcodes, shared by A32 and the narrow Thumb ALU forms where they coincide.
const (
	opAND uint32 = iota
	opEOR
	opSUB
	opRSB
	opADD
	opADC
	opSBC
	opRSC
	opTST
	opTEQ
	opCMP
	opCMN
	opORR
	opMOV
	opBIC
	opMVN
)

func dataProcessing(op uint32) a32Handler {
	return func(in *inst) (uint32, error) { return in.a32DataProcessing(op) }
}

var a32Handlers = map[string]a32Handler{
	"and": dataProcessing(opAND),
	"eor": dataProcessing(opEOR),
	"sub": dataProcessing(opSUB),
	"rsb": dataProcessing(opRSB),
	"add": dataProcessing(opADD),
	"adc": dataProcessing(opADC),
	"sbc": dataProcessing(opSBC),
	"rsc": dataProcessing(opRSC),
	"tst": dataProcessing(opTST),
	"teq": dataProcessing(opTEQ),
	"cmp": dataProcessing(opCMP),
	"cmn": dataProcessing(opCMN),
	"orr": dataProcessing(opORR),
	"mov": dataProcessing(opMOV),
	"bic": dataProcessing(opBIC),
	"mvn": dataProcessing(opMVN),
	"neg": (*inst).a32Negate,

	"lsl": (*inst).a32ShiftAlias,
	"lsr": (*inst).a32ShiftAlias,
	"asr": (*inst).a32ShiftAlias,
	"ror": (*inst).a32ShiftAlias,
	"rrx": (*inst).a32ShiftAlias,

	"movw": func(in *inst) (uint32, error) { return in.a32MoveWide(0x03000000) },
	"movt": func(in *inst) (uint32, error) { return in.a32MoveWide(0x03400000) },
	"adr":  (*inst).a32Adr,
	"clz":  (*inst).a32Clz,

	"mul":   (*inst).a32Multiply,
	"mla":   func(in *inst) (uint32, error) { return in.a32MultiplyAccumulate(0x00200090) },
	"mls":   func(in *inst) (uint32, error) { return in.a32MultiplyAccumulate(0x00600090) },
	"umull": func(in *inst) (uint32, error) { return in.a32MultiplyLong(0x00800090) },
	"umlal": func(in *inst) (uint32, error) { return in.a32MultiplyLong(0x00a00090) },
	"smull": func(in *inst) (uint32, error) { return in.a32MultiplyLong(0x00c00090) },
	"smlal": func(in *inst) (uint32, error) { return in.a32MultiplyLong(0x00e00090) },

	"ldr":   func(in *inst) (uint32, error) { return in.a32LoadStore(true, false) },
	"str":   func(in *inst) (uint32, error) { return in.a32LoadStore(false, false) },
	"ldrb":  func(in *inst) (uint32, error) { return in.a32LoadStore(true, true) },
	"strb":  func(in *inst) (uint32, error) { return in.a32LoadStore(false, true) },
	"ldrh":  func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(1<<20|0xb0, false) },
	"strh":  func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(0xb0, false) },
	"ldrsb": func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(1<<20|0xd0, false) },
	"ldrsh": func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(1<<20|0xf0, false) },
	"ldrd":  func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(0xd0, true) },
	"strd":  func(in *inst) (uint32, error) { return in.a32LoadStoreExtra(0xf0, true) },

	"push": func(in *inst) (uint32, error) { return in.a32PushPop(true) },
	"pop":  func(in *inst) (uint32, error) { return in.a32PushPop(false) },

	"b":   func(in *inst) (uint32, error) { return in.a32Branch(0x0a000000) },
	"bl":  func(in *inst) (uint32, error) { return in.a32Branch(0x0b000000) },
	"bx":  func(in *inst) (uint32, error) { return in.a32BranchExchange(0x012fff10) },
	"blx": (*inst).a32Blx,

	"svc":  (*inst).a32Svc,
	"swi":  (*inst).a32Svc,
	"bkpt": func(in *inst) (uint32, error) { return in.a32Breakpoint(0xe1200070, false) },
	"hlt":  func(in *inst) (uint32, error) { return in.a32Breakpoint(0xe1000070, true) },

	"nop":   a32Hint(0, false),
	"yield": a32Hint(1, false),
	"wfe":   a32Hint(2, false),
	"wfi":   a32Hint(3, false),
	"sev":   a32Hint(4, false),
	"sevl":  a32Hint(5, true),
}

// blockTransfer holds the P, U and L bits of the ldm and stm addressing modes.
var blockTransfer = map[string]uint32{
	"ldm": 0x08900000, "ldmia": 0x08900000, "ldmfd": 0x08900000,
	"ldmib": 0x09900000, "ldmed": 0x09900000,
	"ldmda": 0x08100000, "ldmfa": 0x08100000,
	"ldmdb": 0x09100000, "ldmea": 0x09100000,
	"stm": 0x08800000, "stmia": 0x08800000, "stmea": 0x08800000,
	"stmib": 0x09800000, "stmfa": 0x09800000,
	"stmda": 0x08000000, "stmed": 0x08000000,
	"stmdb": 0x09000000, "stmfd": 0x09000000,
}

func init() {
	for name, word := range blockTransfer {
		word := word
		a32Handlers[name] = func(in *inst) (uint32, error) { return in.a32BlockTransfer(word) }
	}
}

// immediateAlternates pairs instructions which compute the same result with the immediate inverted or negated,
// e.g. "mov r0, #-1" is "mvn r0, #0".
var immediateAlternates = map[uint32]struct {
	op     uint32
	negate bool
}{
	opMOV: {op: opMVN}, opMVN: {op: opMOV},
	opAND: {op: opBIC}, opBIC: {op: opAND},
	opADC: {op: opSBC}, opSBC: {op: opADC},
	opADD: {op: opSUB, negate: true}, opSUB: {op: opADD, negate: true},
	opCMP: {op: opCMN, negate: true}, opCMN: {op: opCMP, negate: true},
}

// https://developer.arm.com/documentation/ddi0406/c/Application-Level-Architecture/ARM-Instruction-Set-Encoding/Data-processing-and-miscellaneous-instructions
func (in *inst) a32DataProcessing(op uint32) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 {
		return 0, asm.ErrorOperands(in.st)
	}
	first, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	var rd, rn uint32
	s := in.m.s
	rest := ops[1:]
	switch {
	case op >= opTST && op <= opCMN:
		rn, s = first, true
	case op == opMOV || op == opMVN:
		rd = first
	case len(ops) >= 3 && ops[2].Kind != asm.OperandShift:
		rd = first
		if rn, err = in.reg(&ops[1]); err != nil {
			return 0, err
		}
		rest = ops[2:]
	default:
		rd, rn = first, first
	}
	var sbit uint32
	if s {
		sbit = 1 << 20
	}

	if len(rest) == 1 && rest[0].IsImm() {
		v, err := in.imm32(&rest[0])
		if err != nil {
			return 0, err
		}
		enc, ok := armImmediate(v)
		if !ok {
			if alt, found := immediateAlternates[op]; found {
				w := ^v
				if alt.negate {
					w = -v
				}
				if enc, ok = armImmediate(w); ok {
					op = alt.op
				}
			}
		}
		if !ok && op == opMOV && !s && v <= 0xffff {
			return in.c() | 0x03000000 | (v>>12)<<16 | rd<<12 | v&0xfff, nil
		}
		if !ok {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate cannot be encoded", in.st)
		}
		return in.c() | 1<<25 | op<<21 | sbit | rn<<16 | rd<<12 | enc, nil
	}

	op2, err := in.a32ShiftedRegister(rest)
	if err != nil {
		return 0, err
	}
	return in.c() | op<<21 | sbit | rn<<16 | rd<<12 | op2, nil
}

// a32ShiftedRegister encodes "rm", "rm, lsl #n" or "rm, lsl rs" as the register form of operand2.
func (in *inst) a32ShiftedRegister(ops []asm.Operand) (uint32, error) {
	rm, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	switch len(ops) {
	case 1:
		return rm, nil
	case 2:
		s, err := in.shiftOf(&ops[1])
		if err != nil {
			return 0, err
		}
		return s.a32(rm), nil
	}
	return 0, asm.ErrorOperands(in.st)
}

func (s shift) a32(rm uint32) uint32 {
	if s.reg {
		return s.rs<<8 | s.typ<<5 | 1<<4 | rm
	}
	return s.amount<<7 | s.typ<<5 | rm
}

// a32ShiftAlias encodes "lsl rd, rm, #n" and friends, which are mov with a shifted register.
func (in *inst) a32ShiftAlias() (uint32, error) {
	s, rd, rm, err := in.shiftAlias()
	if err != nil {
		return 0, err
	}
	var sbit uint32
	if in.m.s {
		sbit = 1 << 20
	}
	return in.c() | opMOV<<21 | sbit | rd<<12 | s.a32(rm), nil
}

// shiftAlias decodes the operands of lsl, lsr, asr, ror and rrx: "rd, rm, #n", "rd, rm, rs", "rd, #n" (rm is rd)
// or "rd, rm" for rrx.
func (in *inst) shiftAlias() (s shift, rd, rm uint32, err error) {
	ops := in.st.Operands
	name := in.m.base
	if name == "rrx" {
		if len(ops) != 2 {
			return s, 0, 0, asm.ErrorOperands(in.st)
		}
		regs, err := in.regs(ops)
		if err != nil {
			return s, 0, 0, err
		}
		s, err = in.shiftAmount(name, "", nil)
		return s, regs[0], regs[1], err
	}
	if len(ops) == 2 {
		ops = []asm.Operand{ops[0], ops[0], ops[1]}
	}
	if len(ops) != 3 {
		return s, 0, 0, asm.ErrorOperands(in.st)
	}
	regs, err := in.regs(ops[:2])
	if err != nil {
		return s, 0, 0, err
	}
	switch amount := &ops[2]; {
	case amount.IsReg():
		s, err = in.shiftAmount(name, amount.Reg, nil)
	case amount.IsImm() && !amount.Literal:
		s, err = in.shiftAmount(name, "", amount.Expr)
	default:
		err = asm.ErrorOperands(in.st)
	}
	return s, regs[0], regs[1], err
}

func (in *inst) a32Negate() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return 0, err
	}
	var sbit uint32
	if in.m.s {
		sbit = 1 << 20
	}
	return in.c() | 1<<25 | opRSB<<21 | sbit | regs[1]<<16 | regs[0]<<12, nil
}

func (in *inst) a32MoveWide(base uint32) (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	v, err := in.immRange(&ops[1], 0xffff)
	if err != nil {
		return 0, err
	}
	return in.c() | base | (v>>12)<<16 | rd<<12 | v&0xfff, nil
}

// a32Adr encodes "adr rd, label" as an add or sub from pc.
func (in *inst) a32Adr() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	off, _, err := in.target(&ops[1], in.ctx.Address+8)
	if err != nil {
		return 0, err
	}
	op := opADD
	if off < 0 {
		op, off = opSUB, -off
	}
	enc, ok := armImmediate(uint32(off))
	if !ok || off > 0xffffffff {
		return 0, in.errorRange()
	}
	return in.c() | 1<<25 | op<<21 | regPC<<16 | rd<<12 | enc, nil
}

func (in *inst) a32Clz() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return 0, err
	}
	return in.c() | 0x016f0f10 | regs[0]<<12 | regs[1], nil
}

// a32Multiply encodes "mul rd, rn, rm", where a missing rm is rd.
func (in *inst) a32Multiply() (uint32, error) {
	ops, err := in.operands(2, 3)
	if err != nil {
		return 0, err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return 0, err
	}
	if len(regs) == 2 {
		regs = append(regs, regs[0])
	}
	var sbit uint32
	if in.m.s {
		sbit = 1 << 20
	}
	return in.c() | sbit | regs[0]<<16 | regs[2]<<8 | 0x90 | regs[1], nil
}

// a32MultiplyAccumulate encodes "mla rd, rn, rm, ra".
func (in *inst) a32MultiplyAccumulate(base uint32) (uint32, error) {
	ops, err := in.operands(4)
	if err != nil {
		return 0, err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return 0, err
	}
	var sbit uint32
	if in.m.s {
		if base == 0x00600090 {
			return 0, asm.ErrorOperands(in.st)
		}
		sbit = 1 << 20
	}
	return in.c() | base | sbit | regs[0]<<16 | regs[3]<<12 | regs[2]<<8 | regs[1], nil
}

// a32MultiplyLong encodes "umull rdlo, rdhi, rn, rm".
func (in *inst) a32MultiplyLong(base uint32) (uint32, error) {
	ops, err := in.operands(4)
	if err != nil {
		return 0, err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return 0, err
	}
	var sbit uint32
	if in.m.s {
		sbit = 1 << 20
	}
	return in.c() | base | sbit | regs[1]<<16 | regs[0]<<12 | regs[3]<<8 | regs[2], nil
}

// a32LoadStore encodes ldr, str, ldrb and strb.
// https://developer.arm.com/documentation/ddi0406/c/Application-Level-Architecture/ARM-Instruction-Set-Encoding/Load-store-word-and-unsigned-byte
func (in *inst) a32LoadStore(load, byteAccess bool) (uint32, error) {
	ops, err := in.operands(2, 3, 4)
	if err != nil {
		return 0, err
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	word := in.c() | 1<<26 | rt<<12
	if load {
		word |= 1 << 20
	}
	if byteAccess {
		word |= 1 << 22
	}

	mem := &ops[1]
	if !mem.IsMem() {
		if len(ops) != 2 || !load {
			return 0, asm.ErrorOperands(in.st)
		}
		if mem.Literal {
			if byteAccess {
				return 0, asm.ErrorOperands(in.st)
			}
			return in.a32LoadConstant(rt, mem)
		}
		off, _, err := in.target(mem, in.ctx.Address+8)
		if err != nil {
			return 0, err
		}
		mag, u := magnitude(off)
		if mag > 0xfff {
			return 0, in.errorRange()
		}
		return word | 1<<24 | u<<23 | regPC<<16 | uint32(mag), nil
	}

	rn, err := in.regName(mem.Mem.Base)
	if err != nil {
		return 0, err
	}
	word |= rn << 16
	if len(ops) == 2 {
		word |= 1 << 24
		if mem.Mem.PreIndex {
			word |= 1 << 21
		}
		if mem.Mem.Index != "" {
			rm, err := in.regName(mem.Mem.Index)
			if err != nil {
				return 0, err
			}
			if !mem.Mem.IndexNeg {
				word |= 1 << 23
			}
			var s shift
			if mem.Mem.IndexShift != "" {
				if s, err = in.shiftAmount(mem.Mem.IndexShift, "", asm.Const(mem.Mem.IndexShiftAmount)); err != nil {
					return 0, err
				}
			}
			return word | 1<<25 | s.a32(rm), nil
		}
		off, err := in.ctx.Value(mem.Mem.Disp)
		if err != nil {
			return 0, err
		}
		mag, u := magnitude(off)
		if mag > 0xfff {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
		}
		return word | u<<23 | uint32(mag), nil
	}

	// Post-indexed: [rn], #off or [rn], rm{, shift}
	if mem.Mem.PreIndex || mem.Mem.Index != "" || mem.Mem.Disp != nil {
		return 0, asm.ErrorOperands(in.st)
	}
	if ops[2].IsImm() && len(ops) == 3 {
		off, err := in.imm(&ops[2])
		if err != nil {
			return 0, err
		}
		mag, u := magnitude(off)
		if mag > 0xfff {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
		}
		return word | u<<23 | uint32(mag), nil
	}
	op2, err := in.a32ShiftedRegister(ops[2:])
	if err != nil || op2&(1<<4) != 0 {
		return 0, asm.ErrorOperands(in.st)
	}
	return word | 1<<25 | 1<<23 | op2, nil
}

// a32LoadConstant encodes "ldr rt, =value" as a mov or mvn. Other values need a literal pool.
func (in *inst) a32LoadConstant(rt uint32, op *asm.Operand) (uint32, error) {
	v, err := in.ctx.Value(op.Expr)
	if err != nil {
		return 0, err
	}
	if enc, ok := armImmediate(uint32(v)); ok {
		return in.c() | 1<<25 | opMOV<<21 | rt<<12 | enc, nil
	}
	if enc, ok := armImmediate(^uint32(v)); ok {
		return in.c() | 1<<25 | opMVN<<21 | rt<<12 | enc, nil
	}
	return 0, asm.ErrorMissingFeature(in.st, "literal pools")
}

// a32LoadStoreExtra encodes the halfword, signed byte and doubleword transfers.
// https://developer.arm.com/documentation/ddi0406/c/Application-Level-Architecture/ARM-Instruction-Set-Encoding/Data-processing-and-miscellaneous-instructions/Extra-load-store-instructions
func (in *inst) a32LoadStoreExtra(base uint32, dual bool) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 {
		return 0, asm.ErrorOperands(in.st)
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	ops = ops[1:]
	if dual {
		rt2, err := in.reg(&ops[0])
		if err != nil {
			return 0, err
		}
		if rt&1 != 0 || rt2 != rt+1 || rt2 == regPC {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: registers must be an even consecutive pair", in.st)
		}
		ops = ops[1:]
	}
	if len(ops) != 1 && len(ops) != 2 {
		return 0, asm.ErrorOperands(in.st)
	}
	word := in.c() | base | rt<<12
	split := func(mag int64) uint32 {
		return uint32(mag>>4)<<8 | uint32(mag&0xf)
	}

	mem := &ops[0]
	if !mem.IsMem() {
		if len(ops) != 1 || base&(1<<20) == 0 {
			return 0, asm.ErrorOperands(in.st)
		}
		off, _, err := in.target(mem, in.ctx.Address+8)
		if err != nil {
			return 0, err
		}
		mag, u := magnitude(off)
		if mag > 0xff {
			return 0, in.errorRange()
		}
		return word | 1<<24 | u<<23 | 1<<22 | regPC<<16 | split(mag), nil
	}
	rn, err := in.regName(mem.Mem.Base)
	if err != nil {
		return 0, err
	}
	word |= rn << 16

	if len(ops) == 1 {
		word |= 1 << 24
		if mem.Mem.PreIndex {
			word |= 1 << 21
		}
		if mem.Mem.Index != "" {
			rm, err := in.regName(mem.Mem.Index)
			if err != nil || mem.Mem.IndexShift != "" {
				return 0, asm.ErrorOperands(in.st)
			}
			if !mem.Mem.IndexNeg {
				word |= 1 << 23
			}
			return word | rm, nil
		}
		off, err := in.ctx.Value(mem.Mem.Disp)
		if err != nil {
			return 0, err
		}
		mag, u := magnitude(off)
		if mag > 0xff {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
		}
		return word | u<<23 | 1<<22 | split(mag), nil
	}

	if mem.Mem.PreIndex || mem.Mem.Index != "" || mem.Mem.Disp != nil {
		return 0, asm.ErrorOperands(in.st)
	}
	if ops[1].IsReg() {
		rm, err := in.reg(&ops[1])
		if err != nil {
			return 0, err
		}
		return word | 1<<23 | rm, nil
	}
	off, err := in.imm(&ops[1])
	if err != nil {
		return 0, err
	}
	mag, u := magnitude(off)
	if mag > 0xff {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
	}
	return word | u<<23 | 1<<22 | split(mag), nil
}

// a32PushPop encodes push and pop as stmdb sp! and ldmia sp!, or for a single register as str and ldr with a
// writeback of sp.
func (in *inst) a32PushPop(push bool) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	list, err := in.regList(&ops[0])
	if err != nil {
		return 0, err
	}
	if len(ops[0].Regs) == 1 {
		rt := registers[ops[0].Regs[0]]
		if push {
			return in.c() | 0x052d0004 | rt<<12, nil
		}
		return in.c() | 0x049d0004 | rt<<12, nil
	}
	if push {
		return in.c() | 0x092d0000 | list, nil
	}
	return in.c() | 0x08bd0000 | list, nil
}

// a32BlockTransfer encodes "ldm rn{!}, {list}" and its addressing mode variants.
func (in *inst) a32BlockTransfer(base uint32) (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rn, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	list, err := in.regList(&ops[1])
	if err != nil {
		return 0, err
	}
	word := in.c() | base | rn<<16 | list
	if ops[0].Writeback {
		word |= 1 << 21
	}
	return word, nil
}

// a32Branch encodes b and bl. The offset is relative to the address of the instruction plus 8.
func (in *inst) a32Branch(base uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	off, _, err := in.target(&ops[0], in.ctx.Address+8)
	if err != nil {
		return 0, err
	}
	if off&3 != 0 || !asm.FitsSigned(off>>2, 24) {
		return 0, in.errorRange()
	}
	return in.c() | base | uint32(off>>2)&0xffffff, nil
}

func (in *inst) a32BranchExchange(base uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	rm, err := in.reg(&ops[0])
	if err != nil {
		return 0, err
	}
	return in.c() | base | rm, nil
}

// a32Blx encodes "blx rm", or "blx label" which switches to Thumb: the target only needs halfword alignment, its
// bit 1 is held in the H bit.
func (in *inst) a32Blx() (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	if ops[0].IsReg() {
		return in.a32BranchExchange(0x012fff30)
	}
	if err = in.unconditional(); err != nil {
		return 0, err
	}
	off, _, err := in.target(&ops[0], in.ctx.Address+8)
	if err != nil {
		return 0, err
	}
	if off&1 != 0 || !asm.FitsSigned(off>>2, 24) {
		return 0, in.errorRange()
	}
	return 0xfa000000 | uint32(off>>1&1)<<24 | uint32(off>>2)&0xffffff, nil
}

func (in *inst) a32Svc() (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	v, err := in.immRange(&ops[0], 0xffffff)
	if err != nil {
		return 0, err
	}
	return in.c() | 0x0f000000 | v, nil
}

// a32Breakpoint encodes bkpt and hlt, which split a 16-bit immediate around a fixed nibble.
func (in *inst) a32Breakpoint(base uint32, v8 bool) (uint32, error) {
	if v8 {
		if err := in.requireV8(); err != nil {
			return 0, err
		}
	}
	if err := in.unconditional(); err != nil {
		return 0, err
	}
	var v uint32
	switch len(in.st.Operands) {
	case 0:
	case 1:
		var err error
		if v, err = in.immRange(&in.st.Operands[0], 0xffff); err != nil {
			return 0, err
		}
	default:
		return 0, asm.ErrorOperands(in.st)
	}
	return base | (v>>4)<<8 | v&0xf, nil
}

// a32Hint encodes nop and the other hints: yield, wfe, wfi, sev and sevl.
func a32Hint(n uint32, v8 bool) a32Handler {
	return func(in *inst) (uint32, error) {
		if len(in.st.Operands) != 0 {
			return 0, asm.ErrorOperands(in.st)
		}
		if v8 {
			if err := in.requireV8(); err != nil {
				return 0, err
			}
		}
		return in.c() | 0x0320f000 | n, nil
	}
}
