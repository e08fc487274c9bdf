package arm

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// thumbHandler writes the one or two halfwords of a Thumb mnemonic.
//
// The 16-bit encoding is chosen whenever the operands allow it, as the GNU assembler does outside of an IT block:
// 16-bit data processing instructions then always set the flags, so "adds r0, r1, r2" is narrow while
// "add r0, r1, r2" needs the 32-bit encoding.
type thumbHandler func(in *inst) error

// Thumb-2 data processing opcodes, shared by the modified immediate and shifted register forms.
const (
	t2AND uint32 = 0
	t2BIC uint32 = 1
	t2ORR uint32 = 2
	t2ORN uint32 = 3
	t2EOR uint32 = 4
	t2ADD uint32 = 8
	t2ADC uint32 = 10
	t2SBC uint32 = 11
	t2SUB uint32 = 13
	t2RSB uint32 = 14
)

type dpForm byte

const (
	dpNormal dpForm = iota
	// dpMove has no first operand register: rn is pc.
	dpMove
	// dpCompare has no destination: rd is pc and the flags are always set.
	dpCompare
)

func thumbDP(op uint32, form dpForm) thumbHandler {
	return func(in *inst) error { return in.thumbDataProcessing(op, form) }
}

var thumbHandlers = map[string]thumbHandler{
	"and": thumbDP(t2AND, dpNormal),
	"bic": thumbDP(t2BIC, dpNormal),
	"orr": thumbDP(t2ORR, dpNormal),
	"orn": thumbDP(t2ORN, dpNormal),
	"eor": thumbDP(t2EOR, dpNormal),
	"add": thumbDP(t2ADD, dpNormal),
	"adc": thumbDP(t2ADC, dpNormal),
	"sbc": thumbDP(t2SBC, dpNormal),
	"sub": thumbDP(t2SUB, dpNormal),
	"rsb": thumbDP(t2RSB, dpNormal),
	"mov": thumbDP(t2ORR, dpMove),
	"mvn": thumbDP(t2ORN, dpMove),
	"tst": thumbDP(t2AND, dpCompare),
	"teq": thumbDP(t2EOR, dpCompare),
	"cmp": thumbDP(t2SUB, dpCompare),
	"cmn": thumbDP(t2ADD, dpCompare),
	"neg": (*inst).thumbNegate,

	"lsl": (*inst).thumbShiftAlias,
	"lsr": (*inst).thumbShiftAlias,
	"asr": (*inst).thumbShiftAlias,
	"ror": (*inst).thumbShiftAlias,
	"rrx": (*inst).thumbShiftAlias,

	"movw": func(in *inst) error { return in.thumbMoveWide(0xf240) },
	"movt": func(in *inst) error { return in.thumbMoveWide(0xf2c0) },
	"adr":  (*inst).thumbAdr,
	"clz":  (*inst).thumbClz,

	"mul":   (*inst).thumbMultiply,
	"mla":   func(in *inst) error { return in.thumbMultiplyAccumulate(0) },
	"mls":   func(in *inst) error { return in.thumbMultiplyAccumulate(0x10) },
	"umull": func(in *inst) error { return in.thumbMultiplyLong(0xfba0) },
	"umlal": func(in *inst) error { return in.thumbMultiplyLong(0xfbe0) },
	"smull": func(in *inst) error { return in.thumbMultiplyLong(0xfb80) },
	"smlal": func(in *inst) error { return in.thumbMultiplyLong(0xfbc0) },

	"ldr":   func(in *inst) error { return in.thumbLoadStore(thumbLDR) },
	"str":   func(in *inst) error { return in.thumbLoadStore(thumbSTR) },
	"ldrb":  func(in *inst) error { return in.thumbLoadStore(thumbLDRB) },
	"strb":  func(in *inst) error { return in.thumbLoadStore(thumbSTRB) },
	"ldrh":  func(in *inst) error { return in.thumbLoadStore(thumbLDRH) },
	"strh":  func(in *inst) error { return in.thumbLoadStore(thumbSTRH) },
	"ldrsb": func(in *inst) error { return in.thumbLoadStore(thumbLDRSB) },
	"ldrsh": func(in *inst) error { return in.thumbLoadStore(thumbLDRSH) },
	"ldrd":  func(in *inst) error { return in.thumbLoadStoreDual(true) },
	"strd":  func(in *inst) error { return in.thumbLoadStoreDual(false) },

	"push":  func(in *inst) error { return in.thumbPushPop(true) },
	"pop":   func(in *inst) error { return in.thumbPushPop(false) },
	"ldm":   func(in *inst) error { return in.thumbBlockTransfer(0xc800, 0xe890) },
	"ldmia": func(in *inst) error { return in.thumbBlockTransfer(0xc800, 0xe890) },
	"ldmfd": func(in *inst) error { return in.thumbBlockTransfer(0xc800, 0xe890) },
	"stm":   func(in *inst) error { return in.thumbBlockTransfer(0xc000, 0xe880) },
	"stmia": func(in *inst) error { return in.thumbBlockTransfer(0xc000, 0xe880) },
	"stmea": func(in *inst) error { return in.thumbBlockTransfer(0xc000, 0xe880) },
	"ldmdb": func(in *inst) error { return in.thumbBlockTransfer(0, 0xe910) },
	"ldmea": func(in *inst) error { return in.thumbBlockTransfer(0, 0xe910) },
	"stmdb": func(in *inst) error { return in.thumbBlockTransfer(0, 0xe900) },
	"stmfd": func(in *inst) error { return in.thumbBlockTransfer(0, 0xe900) },

	"b":    (*inst).thumbBranch,
	"bl":   func(in *inst) error { return in.thumbBranchLink(false) },
	"blx":  func(in *inst) error { return in.thumbBranchLink(true) },
	"bx":   func(in *inst) error { return in.thumbBranchExchange(0x4700) },
	"cbz":  func(in *inst) error { return in.thumbCompareBranch(0xb100) },
	"cbnz": func(in *inst) error { return in.thumbCompareBranch(0xb900) },

	"svc":  func(in *inst) error { return in.thumbImmediate8(0xdf00, 0xff, false) },
	"swi":  func(in *inst) error { return in.thumbImmediate8(0xdf00, 0xff, false) },
	"bkpt": func(in *inst) error { return in.thumbImmediate8(0xbe00, 0xff, false) },
	"hlt":  func(in *inst) error { return in.thumbImmediate8(0xba80, 0x3f, true) },

	"nop":   thumbHint(0, false),
	"yield": thumbHint(1, false),
	"wfe":   thumbHint(2, false),
	"wfi":   thumbHint(3, false),
	"sev":   thumbHint(4, false),
	"sevl":  thumbHint(5, true),

	"it": (*inst).thumbIfThen, "itt": (*inst).thumbIfThen, "ite": (*inst).thumbIfThen,
	"ittt": (*inst).thumbIfThen, "itte": (*inst).thumbIfThen, "itet": (*inst).thumbIfThen, "itee": (*inst).thumbIfThen,
}

func low(regs ...uint32) bool {
	for _, r := range regs {
		if r > 7 {
			return false
		}
	}
	return true
}

func (in *inst) narrow(h uint32) error {
	in.buf.WriteUint16(uint16(h))
	return nil
}

// wide writes a 32-bit Thumb instruction: the first halfword holds the most significant bits.
func (in *inst) wide(h1, h2 uint32) error {
	in.buf.WriteUint16(uint16(h1))
	in.buf.WriteUint16(uint16(h2))
	return nil
}

// wideOnly fails when ".n" requested a 16-bit encoding which does not exist for the operands.
func (in *inst) wideOnly() error {
	if in.m.narrow {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: no 16-bit encoding for these operands", in.st)
	}
	return nil
}

// alignedPC is the base of Thumb pc-relative loads and adr: the address of the instruction plus 4, rounded down to
// a word.
func (in *inst) alignedPC() uint64 {
	return (in.ctx.Address + 4) &^ 3
}

func (in *inst) sbit() uint32 {
	if in.m.s {
		return 1 << 4
	}
	return 0
}

// imm12 splits a 12-bit value into the i:imm3:imm8 fields of both halfwords.
func imm12(v uint32) (h1, h2 uint32) {
	return (v >> 11 & 1) << 10, (v >> 8 & 7) << 12 | v&0xff
}

// thumbAlternates mirror immediateAlternates for the Thumb-2 opcodes.
var thumbAlternates = map[uint32]struct {
	op     uint32
	negate bool
}{
	t2AND: {op: t2BIC}, t2BIC: {op: t2AND},
	t2ORR: {op: t2ORN}, t2ORN: {op: t2ORR},
	t2ADC: {op: t2SBC}, t2SBC: {op: t2ADC},
	t2ADD: {op: t2SUB, negate: true}, t2SUB: {op: t2ADD, negate: true},
}

// narrowALU are the opcodes of the 16-bit "op rdn, rm" register forms.
var narrowALU = map[uint32]uint32{t2AND: 0, t2EOR: 1, t2ADC: 5, t2SBC: 6, t2ORR: 12, t2BIC: 14}

// https://developer.arm.com/documentation/ddi0406/c/Application-Level-Architecture/Thumb-Instruction-Set-Encoding/32-bit-Thumb-instruction-encoding/Data-processing--modified-immediate-
func (in *inst) thumbDataProcessing(op uint32, form dpForm) error {
	ops := in.st.Operands
	if len(ops) < 2 {
		return asm.ErrorOperands(in.st)
	}
	first, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	rd, rn := first, first
	threeOperands := false
	rest := ops[1:]
	switch {
	case form == dpCompare:
		rd = regPC
		if in.m.s {
			return asm.ErrorOperands(in.st)
		}
	case form == dpMove:
		rn = regPC
	case len(ops) >= 3 && ops[2].Kind != asm.OperandShift:
		if rn, err = in.reg(&ops[1]); err != nil {
			return err
		}
		rest, threeOperands = ops[2:], true
	}
	s := in.m.s || form == dpCompare
	var sbit uint32
	if s {
		sbit = 1 << 4
	}

	if len(rest) == 1 && rest[0].IsImm() {
		v, err := in.imm32(&rest[0])
		if err != nil {
			return err
		}
		if !in.m.wide {
			if h, ok := in.thumbNarrowImmediate(op, form, rd, rn, v, threeOperands); ok {
				return in.narrow(h)
			}
		}
		if err = in.wideOnly(); err != nil {
			return err
		}
		enc, ok := thumbImmediate(v)
		if !ok {
			if alt, found := thumbAlternates[op]; found && (form != dpCompare || alt.negate) {
				w := ^v
				if alt.negate {
					w = -v
				}
				if enc, ok = thumbImmediate(w); ok {
					op = alt.op
				}
			}
		}
		if !ok && !s {
			switch {
			case op == t2ORR && form == dpMove && v <= 0xffff:
				h1, h2 := imm12(v)
				return in.wide(0xf240|h1|v>>12, h2|rd<<8)
			case (op == t2ADD || op == t2SUB) && v <= 0xfff:
				h1, h2 := imm12(v)
				return in.wide(addSubWide[op]|h1|rn, h2|rd<<8)
			case (op == t2ADD || op == t2SUB) && -v <= 0xfff:
				h1, h2 := imm12(-v)
				return in.wide(addSubWide[t2ADD+t2SUB-op]|h1|rn, h2|rd<<8)
			}
		}
		if !ok {
			return asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate cannot be encoded", in.st)
		}
		h1, h2 := imm12(enc)
		return in.wide(0xf000|h1|op<<5|sbit|rn, h2|rd<<8)
	}

	rm, err := in.reg(&rest[0])
	if err != nil {
		return err
	}
	var sh shift
	switch len(rest) {
	case 1:
		if !in.m.wide {
			if h, ok := in.thumbNarrowRegister(op, form, rd, rn, rm, threeOperands); ok {
				return in.narrow(h)
			}
		}
	case 2:
		if sh, err = in.shiftOf(&rest[1]); err != nil {
			return err
		}
		if sh.reg {
			if form != dpMove || op != t2ORR {
				return asm.ErrorOperands(in.st)
			}
			return in.thumbShift(sh, rd, rm)
		}
	default:
		return asm.ErrorOperands(in.st)
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	return in.wide(0xea00|op<<5|sbit|rn, (sh.amount>>2)<<12|rd<<8|(sh.amount&3)<<6|sh.typ<<4|rm)
}

// addSubWide are addw and subw, taking a plain 12-bit immediate.
var addSubWide = map[uint32]uint32{t2ADD: 0xf200, t2SUB: 0xf2a0}

func (in *inst) thumbNarrowImmediate(op uint32, form dpForm, rd, rn, v uint32, threeOperands bool) (uint32, bool) {
	s := in.m.s
	switch {
	case form == dpMove && op == t2ORR:
		return 0x2000 | rd<<8 | v, s && low(rd) && v <= 0xff
	case form == dpCompare && op == t2SUB:
		return 0x2800 | rn<<8 | v, low(rn) && v <= 0xff
	case form != dpNormal:
		return 0, false
	case op == t2RSB:
		return 0x4240 | rn<<3 | rd, s && low(rd, rn) && v == 0
	case op != t2ADD && op != t2SUB:
		return 0, false
	case rn == regSP && !s && v&3 == 0:
		switch {
		case rd == regSP && v <= 508 && op == t2ADD:
			return 0xb000 | v>>2, true
		case rd == regSP && v <= 508:
			return 0xb080 | v>>2, true
		case low(rd) && v <= 1020 && op == t2ADD:
			return 0xa800 | rd<<8 | v>>2, true
		}
		return 0, false
	case !s || !low(rd, rn):
		return 0, false
	case threeOperands && v <= 7:
		if op == t2ADD {
			return 0x1c00 | v<<6 | rn<<3 | rd, true
		}
		return 0x1e00 | v<<6 | rn<<3 | rd, true
	case rd == rn && v <= 0xff:
		if op == t2ADD {
			return 0x3000 | rd<<8 | v, true
		}
		return 0x3800 | rd<<8 | v, true
	}
	return 0, false
}

func (in *inst) thumbNarrowRegister(op uint32, form dpForm, rd, rn, rm uint32, threeOperands bool) (uint32, bool) {
	s := in.m.s
	switch form {
	case dpMove:
		switch {
		case op == t2ORR && !s:
			return 0x4600 | (rd>>3)<<7 | rm<<3 | rd&7, true
		case op == t2ORR:
			return rm<<3 | rd, low(rd, rm)
		}
		return 0x43c0 | rm<<3 | rd, s && low(rd, rm)
	case dpCompare:
		switch {
		case op == t2SUB && low(rn, rm):
			return 0x4280 | rm<<3 | rn, true
		case op == t2SUB:
			return 0x4500 | (rn>>3)<<7 | rm<<3 | rn&7, rn != regPC && rm != regPC
		case op == t2ADD:
			return 0x42c0 | rm<<3 | rn, low(rn, rm)
		case op == t2AND:
			return 0x4200 | rm<<3 | rn, low(rn, rm)
		}
		return 0, false
	}
	switch {
	case op == t2ADD && s:
		return 0x1800 | rm<<6 | rn<<3 | rd, low(rd, rn, rm)
	case op == t2ADD:
		return 0x4400 | (rd>>3)<<7 | rm<<3 | rd&7, rd == rn && rm != regPC
	case op == t2SUB:
		return 0x1a00 | rm<<6 | rn<<3 | rd, s && low(rd, rn, rm)
	}
	if alu, ok := narrowALU[op]; ok && s && rd == rn && low(rd, rm) {
		return 0x4000 | alu<<6 | rm<<3 | rd, true
	}
	return 0, false
}

// thumbShiftAlias encodes lsl, lsr, asr, ror and rrx.
func (in *inst) thumbShiftAlias() error {
	s, rd, rm, err := in.shiftAlias()
	if err != nil {
		return err
	}
	return in.thumbShift(s, rd, rm)
}

// narrowShift are the 16-bit "op rdn, rs" opcodes of register controlled shifts.
var narrowShift = [4]uint32{0b0010, 0b0011, 0b0100, 0b0111}

func (in *inst) thumbShift(s shift, rd, rm uint32) error {
	if s.reg {
		if !in.m.wide && in.m.s && rd == rm && low(rd, s.rs) {
			return in.narrow(0x4000 | narrowShift[s.typ]<<6 | s.rs<<3 | rd)
		}
		if err := in.wideOnly(); err != nil {
			return err
		}
		return in.wide(0xfa00|s.typ<<5|in.sbit()|rm, 0xf000|rd<<8|s.rs)
	}
	if !in.m.wide && in.m.s && low(rd, rm) && s.typ != 0b11 {
		return in.narrow(s.typ<<11 | s.amount<<6 | rm<<3 | rd)
	}
	if err := in.wideOnly(); err != nil {
		return err
	}
	return in.wide(0xea4f|in.sbit(), (s.amount>>2)<<12|rd<<8|(s.amount&3)<<6|s.typ<<4|rm)
}

func (in *inst) thumbNegate() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return err
	}
	rd, rm := regs[0], regs[1]
	if !in.m.wide && in.m.s && low(rd, rm) {
		return in.narrow(0x4240 | rm<<3 | rd)
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	return in.wide(0xf1c0|in.sbit()|rm, rd<<8)
}

func (in *inst) thumbMoveWide(base uint32) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rd, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	v, err := in.immRange(&ops[1], 0xffff)
	if err != nil {
		return err
	}
	h1, h2 := imm12(v)
	return in.wide(base|h1|v>>12, h2|rd<<8)
}

// thumbAdr encodes "adr rd, label", relaxing to addw or subw from pc when the target is out of reach of the
// 16-bit form.
func (in *inst) thumbAdr() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rd, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	off, resolved, err := in.target(&ops[1], in.alignedPC())
	if err != nil {
		return err
	}
	if !in.m.wide && !in.ctx.Long && low(rd) {
		if !resolved || (off >= 0 && off <= 1020 && off&3 == 0) {
			return in.narrow(0xa000 | rd<<8 | uint32(off>>2)&0xff)
		}
		if !in.m.narrow {
			return asm.ErrRelax
		}
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	mag, u := magnitude(off)
	if mag > 0xfff {
		return in.errorRange()
	}
	base := uint32(0xf2af)
	if u == 1 {
		base = 0xf20f
	}
	h1, h2 := imm12(uint32(mag))
	return in.wide(base|h1, h2|rd<<8)
}

func (in *inst) thumbClz() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return err
	}
	return in.wide(0xfab0|regs[1], 0xf080|regs[0]<<8|regs[1])
}

func (in *inst) thumbMultiply() error {
	ops, err := in.operands(2, 3)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return err
	}
	if len(regs) == 2 {
		regs = append(regs, regs[0])
	}
	rd, rn, rm := regs[0], regs[1], regs[2]
	if in.m.s {
		// muls only exists as "muls rdm, rn, rdm".
		if in.m.wide || rd != rm || !low(rd, rn) {
			return asm.ErrorOperands(in.st)
		}
		return in.narrow(0x4340 | rn<<3 | rd)
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	return in.wide(0xfb00|rn, 0xf000|rd<<8|rm)
}

func (in *inst) thumbMultiplyAccumulate(sub uint32) error {
	ops, err := in.operands(4)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return err
	}
	if in.m.s {
		return asm.ErrorOperands(in.st)
	}
	return in.wide(0xfb00|regs[1], regs[3]<<12|regs[0]<<8|sub|regs[2])
}

func (in *inst) thumbMultiplyLong(base uint32) error {
	ops, err := in.operands(4)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops)
	if err != nil {
		return err
	}
	if in.m.s {
		return asm.ErrorOperands(in.st)
	}
	return in.wide(base|regs[2], regs[0]<<12|regs[1]<<8|regs[3])
}

// thumbTransfer describes the encodings of one single register load or store.
type thumbTransfer struct {
	load bool
	// scale is log2 of the access size.
	scale uint32
	// immediate5 and register are the 16-bit forms, immediate5 is zero when there is none.
	immediate5, register uint32
	// immediate12 is the 32-bit positive offset form, immediate8 the negative, pre and post-indexed one which is
	// also the register offset form.
	immediate12, immediate8 uint32
}

var (
	thumbLDR   = thumbTransfer{load: true, scale: 2, immediate5: 0x6800, register: 0x5800, immediate12: 0xf8d0, immediate8: 0xf850}
	thumbSTR   = thumbTransfer{scale: 2, immediate5: 0x6000, register: 0x5000, immediate12: 0xf8c0, immediate8: 0xf840}
	thumbLDRB  = thumbTransfer{load: true, immediate5: 0x7800, register: 0x5c00, immediate12: 0xf890, immediate8: 0xf810}
	thumbSTRB  = thumbTransfer{immediate5: 0x7000, register: 0x5400, immediate12: 0xf880, immediate8: 0xf800}
	thumbLDRH  = thumbTransfer{load: true, scale: 1, immediate5: 0x8800, register: 0x5a00, immediate12: 0xf8b0, immediate8: 0xf830}
	thumbSTRH  = thumbTransfer{scale: 1, immediate5: 0x8000, register: 0x5200, immediate12: 0xf8a0, immediate8: 0xf820}
	thumbLDRSB = thumbTransfer{load: true, register: 0x5600, immediate12: 0xf990, immediate8: 0xf910}
	thumbLDRSH = thumbTransfer{load: true, scale: 1, register: 0x5e00, immediate12: 0xf9b0, immediate8: 0xf930}
)

// https://developer.arm.com/documentation/ddi0406/c/Application-Level-Architecture/Thumb-Instruction-Set-Encoding/32-bit-Thumb-instruction-encoding/Load-word
func (in *inst) thumbLoadStore(t thumbTransfer) error {
	ops, err := in.operands(2, 3)
	if err != nil {
		return err
	}
	rt, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	mem := &ops[1]
	if !mem.IsMem() {
		if len(ops) != 2 || t != thumbLDR {
			return asm.ErrorOperands(in.st)
		}
		if mem.Literal {
			return in.thumbLoadConstant(rt, mem)
		}
		return in.thumbLoadLiteral(rt, mem)
	}
	rn, err := in.regName(mem.Mem.Base)
	if err != nil {
		return err
	}

	if len(ops) == 3 {
		// Post-indexed: [rn], #off
		if mem.Mem.PreIndex || mem.Mem.Index != "" || mem.Mem.Disp != nil {
			return asm.ErrorOperands(in.st)
		}
		off, err := in.imm(&ops[2])
		if err != nil {
			return err
		}
		return in.thumbIndexed(t, rt, rn, off, false)
	}

	if mem.Mem.Index != "" {
		rm, err := in.regName(mem.Mem.Index)
		if err != nil {
			return err
		}
		if mem.Mem.IndexNeg || mem.Mem.PreIndex || (mem.Mem.IndexShift != "" && mem.Mem.IndexShift != "lsl") ||
			mem.Mem.IndexShiftAmount < 0 || mem.Mem.IndexShiftAmount > 3 {
			return asm.ErrorOperands(in.st)
		}
		if !in.m.wide && mem.Mem.IndexShiftAmount == 0 && low(rt, rn, rm) {
			return in.narrow(t.register | rm<<6 | rn<<3 | rt)
		}
		if err = in.wideOnly(); err != nil {
			return err
		}
		return in.wide(t.immediate8|rn, rt<<12|uint32(mem.Mem.IndexShiftAmount)<<4|rm)
	}

	off, err := in.ctx.Value(mem.Mem.Disp)
	if err != nil {
		return err
	}
	if mem.Mem.PreIndex {
		return in.thumbIndexed(t, rt, rn, off, true)
	}
	if !in.m.wide && off >= 0 && off&(1<<t.scale-1) == 0 {
		switch {
		case t.immediate5 != 0 && low(rt, rn) && off>>t.scale < 32:
			return in.narrow(t.immediate5 | uint32(off>>t.scale)<<6 | rn<<3 | rt)
		case rn == regSP && t.scale == 2 && t.immediate5 != 0 && low(rt) && off <= 1020:
			sp := uint32(0x9000)
			if t.load {
				sp = 0x9800
			}
			return in.narrow(sp | rt<<8 | uint32(off>>2))
		}
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	if off >= 0 && off <= 0xfff {
		return in.wide(t.immediate12|rn, rt<<12|uint32(off))
	}
	mag, u := magnitude(off)
	if mag > 0xff {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
	}
	return in.wide(t.immediate8|rn, rt<<12|0x800|1<<10|u<<9|uint32(mag))
}

// thumbIndexed encodes the pre-indexed "[rn, #off]!" and post-indexed "[rn], #off" forms.
func (in *inst) thumbIndexed(t thumbTransfer, rt, rn uint32, off int64, pre bool) error {
	if err := in.wideOnly(); err != nil {
		return err
	}
	mag, u := magnitude(off)
	if mag > 0xff {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
	}
	var p uint32
	if pre {
		p = 1
	}
	return in.wide(t.immediate8|rn, rt<<12|0x800|p<<10|u<<9|1<<8|uint32(mag))
}

// thumbLoadLiteral encodes "ldr rt, label", relaxing to the 32-bit form when the target is behind or too far.
func (in *inst) thumbLoadLiteral(rt uint32, op *asm.Operand) error {
	off, resolved, err := in.target(op, in.alignedPC())
	if err != nil {
		return err
	}
	if !in.m.wide && !in.ctx.Long && low(rt) {
		if !resolved || (off >= 0 && off <= 1020 && off&3 == 0) {
			return in.narrow(0x4800 | rt<<8 | uint32(off>>2)&0xff)
		}
		if !in.m.narrow {
			return asm.ErrRelax
		}
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	mag, u := magnitude(off)
	if mag > 0xfff {
		return in.errorRange()
	}
	return in.wide(0xf85f|u<<7, rt<<12|uint32(mag))
}

// thumbLoadConstant encodes "ldr rt, =value" as mov.w, mvn or movw. Other values need a literal pool.
func (in *inst) thumbLoadConstant(rt uint32, op *asm.Operand) error {
	v, err := in.ctx.Value(op.Expr)
	if err != nil {
		return err
	}
	if enc, ok := thumbImmediate(uint32(v)); ok {
		h1, h2 := imm12(enc)
		return in.wide(0xf04f|h1, h2|rt<<8)
	}
	if enc, ok := thumbImmediate(^uint32(v)); ok {
		h1, h2 := imm12(enc)
		return in.wide(0xf06f|h1, h2|rt<<8)
	}
	if v >= 0 && v <= 0xffff {
		h1, h2 := imm12(uint32(v))
		return in.wide(0xf240|h1|uint32(v)>>12, h2|rt<<8)
	}
	return asm.ErrorMissingFeature(in.st, "literal pools")
}

// thumbLoadStoreDual encodes "ldrd rt, rt2, [rn, #off]" with optional pre or post-indexing.
func (in *inst) thumbLoadStoreDual(load bool) error {
	ops, err := in.operands(3, 4)
	if err != nil {
		return err
	}
	regs, err := in.regs(ops[:2])
	if err != nil {
		return err
	}
	mem := &ops[2]
	if !mem.IsMem() || mem.Mem.Index != "" {
		return asm.ErrorOperands(in.st)
	}
	rn, err := in.regName(mem.Mem.Base)
	if err != nil {
		return err
	}
	var p, w uint32 = 1, 0
	var off int64
	if len(ops) == 4 {
		if mem.Mem.PreIndex || mem.Mem.Disp != nil {
			return asm.ErrorOperands(in.st)
		}
		if off, err = in.imm(&ops[3]); err != nil {
			return err
		}
		p, w = 0, 1
	} else {
		if off, err = in.ctx.Value(mem.Mem.Disp); err != nil {
			return err
		}
		if mem.Mem.PreIndex {
			w = 1
		}
	}
	mag, u := magnitude(off)
	if mag&3 != 0 || mag>>2 > 0xff {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
	}
	var l uint32
	if load {
		l = 1
	}
	return in.wide(0xe840|p<<8|u<<7|w<<5|l<<4|rn, regs[0]<<12|regs[1]<<8|uint32(mag>>2))
}

func (in *inst) thumbPushPop(push bool) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	list, err := in.regList(&ops[0])
	if err != nil {
		return err
	}
	extra, narrow, wide := uint32(regLR), uint32(0xb400), uint32(0xe92d)
	if !push {
		extra, narrow, wide = regPC, 0xbc00, 0xe8bd
	}
	if !in.m.wide && list&^(0xff|1<<extra) == 0 {
		return in.narrow(narrow | (list>>extra&1)<<8 | list&0xff)
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	if len(ops[0].Regs) == 1 {
		// A single high register is a str or ldr with writeback.
		rt := registers[ops[0].Regs[0]]
		if push {
			return in.wide(0xf84d, rt<<12|0xd04)
		}
		return in.wide(0xf85d, rt<<12|0xb04)
	}
	if list&(1<<regSP) != 0 || (push && list&(1<<regPC) != 0) {
		return asm.ErrorOperands(in.st)
	}
	return in.wide(wide, list)
}

// thumbBlockTransfer encodes ldm and stm. narrow is zero for the modes without a 16-bit form.
func (in *inst) thumbBlockTransfer(narrow, wide uint32) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rn, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	list, err := in.regList(&ops[1])
	if err != nil {
		return err
	}
	writeback := ops[0].Writeback
	if narrow != 0 && !in.m.wide && low(rn) && list&^0xff == 0 {
		// The 16-bit ldm writes back unless rn is loaded, stm always writes back.
		inList := list&(1<<rn) != 0
		if (narrow == 0xc800 && writeback != inList) || (narrow == 0xc000 && writeback) {
			return in.narrow(narrow | rn<<8 | list)
		}
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	var w uint32
	if writeback {
		w = 1 << 5
	}
	return in.wide(wide|w|rn, list)
}

// t32Branch encodes the 25-bit offset of the 32-bit b, bl and blx, whose second halfword is given.
func t32Branch(off int64, second uint32) (uint32, uint32) {
	s := uint32(off>>24) & 1
	j1 := (^uint32(off>>23) ^ s) & 1
	j2 := (^uint32(off>>22) ^ s) & 1
	return 0xf000 | s<<10 | uint32(off>>12)&0x3ff, second | j1<<13 | j2<<11 | uint32(off>>1)&0x7ff
}

// thumbBranch encodes b and b<cond>, starting with the 16-bit form and relaxing to the 32-bit one.
func (in *inst) thumbBranch() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	off, resolved, err := in.target(&ops[0], in.ctx.Address+4)
	if err != nil {
		return err
	}
	if off&1 != 0 {
		return in.errorRange()
	}
	cond := in.m.cond
	narrowBits := uint(11)
	if cond != condAL {
		narrowBits = 8
	}
	if !in.m.wide && !in.ctx.Long {
		if !resolved || asm.FitsSigned(off>>1, narrowBits) {
			if cond == condAL {
				return in.narrow(0xe000 | uint32(off>>1)&0x7ff)
			}
			return in.narrow(0xd000 | cond<<8 | uint32(off>>1)&0xff)
		}
		if !in.m.narrow {
			return asm.ErrRelax
		}
	}
	if err = in.wideOnly(); err != nil {
		return err
	}
	if cond == condAL {
		if !asm.FitsSigned(off>>1, 24) {
			return in.errorRange()
		}
		return in.wide(t32Branch(off, 0x9000))
	}
	if !asm.FitsSigned(off>>1, 20) {
		return in.errorRange()
	}
	return in.wide(0xf000|uint32(off>>20&1)<<10|cond<<6|uint32(off>>12)&0x3f,
		0x8000|uint32(off>>18&1)<<13|uint32(off>>19&1)<<11|uint32(off>>1)&0x7ff)
}

// thumbBranchLink encodes bl and blx. blx switches to ARM state: its offset is taken from the word aligned pc and
// the target must be word aligned. "blx rm" is the 16-bit register form.
func (in *inst) thumbBranchLink(exchange bool) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	if exchange && ops[0].IsReg() {
		return in.thumbBranchExchange(0x4780)
	}
	base, second, align := in.ctx.Address+4, uint32(0xd000), int64(1)
	if exchange {
		base, second, align = in.alignedPC(), 0xc000, 3
	}
	off, _, err := in.target(&ops[0], base)
	if err != nil {
		return err
	}
	if off&align != 0 || !asm.FitsSigned(off>>1, 24) {
		return in.errorRange()
	}
	return in.wide(t32Branch(off, second))
}

func (in *inst) thumbBranchExchange(base uint32) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	rm, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	return in.narrow(base | rm<<3)
}

// thumbCompareBranch encodes cbz and cbnz, which only branch forward by up to 126 bytes.
func (in *inst) thumbCompareBranch(base uint32) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rn, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	if !low(rn) {
		return asm.ErrorOperands(in.st)
	}
	off, _, err := in.target(&ops[1], in.ctx.Address+4)
	if err != nil {
		return err
	}
	if off < 0 || off > 126 || off&1 != 0 {
		return in.errorRange()
	}
	return in.narrow(base | uint32(off>>6&1)<<9 | uint32(off>>1&0x1f)<<3 | rn)
}

// thumbImmediate8 encodes svc, bkpt and hlt.
func (in *inst) thumbImmediate8(base, max uint32, v8 bool) error {
	if v8 {
		if err := in.requireV8(); err != nil {
			return err
		}
	}
	var v uint32
	switch len(in.st.Operands) {
	case 0:
	case 1:
		var err error
		if v, err = in.immRange(&in.st.Operands[0], int64(max)); err != nil {
			return err
		}
	default:
		return asm.ErrorOperands(in.st)
	}
	return in.narrow(base | v)
}

func thumbHint(n uint32, v8 bool) thumbHandler {
	return func(in *inst) error {
		if len(in.st.Operands) != 0 {
			return asm.ErrorOperands(in.st)
		}
		if v8 {
			if err := in.requireV8(); err != nil {
				return err
			}
		}
		if in.m.wide {
			return in.wide(0xf3af, 0x8000|n)
		}
		return in.narrow(0xbf00 | n<<4)
	}
}

func (in *inst) thumbIfThen() error {
	return asm.ErrorMissingFeature(in.st, "IT blocks")
}
