package arm64

import (
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// handler returns the instruction word of one mnemonic.
type handler func(in *inst) (uint32, error)

var handlers = map[string]handler{
	"nop":  fixed(0xd503201f),
	"yield": fixed(0xd503203f),
	"wfe":  fixed(0xd503205f),
	"wfi":  fixed(0xd503207f),
	"sev":  fixed(0xd503209f),
	"sevl": fixed(0xd50320bf),
	"eret": fixed(0xd69f03e0),

	"ret": (*inst).ret,
	"br":  func(in *inst) (uint32, error) { return in.branchRegister(0xd61f0000) },
	"blr": func(in *inst) (uint32, error) { return in.branchRegister(0xd63f0000) },
	"svc": func(in *inst) (uint32, error) { return in.exception(0xd4000001) },
	"hvc": func(in *inst) (uint32, error) { return in.exception(0xd4000002) },
	"smc": func(in *inst) (uint32, error) { return in.exception(0xd4000003) },
	"brk": func(in *inst) (uint32, error) { return in.exception(0xd4200000) },
	"hlt": func(in *inst) (uint32, error) { return in.exception(0xd4400000) },

	"b":    func(in *inst) (uint32, error) { return in.branch(0x14000000) },
	"bl":   func(in *inst) (uint32, error) { return in.branch(0x94000000) },
	"cbz":  func(in *inst) (uint32, error) { return in.compareBranch(0x34000000) },
	"cbnz": func(in *inst) (uint32, error) { return in.compareBranch(0x35000000) },
	"tbz":  func(in *inst) (uint32, error) { return in.testBranch(0x36000000) },
	"tbnz": func(in *inst) (uint32, error) { return in.testBranch(0x37000000) },
	"adr":  func(in *inst) (uint32, error) { return in.adr(false) },
	"adrp": func(in *inst) (uint32, error) { return in.adr(true) },

	"add":  func(in *inst) (uint32, error) { return in.addSub(false, false) },
	"adds": func(in *inst) (uint32, error) { return in.addSub(false, true) },
	"sub":  func(in *inst) (uint32, error) { return in.addSub(true, false) },
	"subs": func(in *inst) (uint32, error) { return in.addSub(true, true) },
	"cmp":  func(in *inst) (uint32, error) { return in.compare(true) },
	"cmn":  func(in *inst) (uint32, error) { return in.compare(false) },
	"neg":  func(in *inst) (uint32, error) { return in.negate(false) },
	"negs": func(in *inst) (uint32, error) { return in.negate(true) },

	"mov":  (*inst).mov,
	"movz": func(in *inst) (uint32, error) { return in.moveWide(0b10) },
	"movn": func(in *inst) (uint32, error) { return in.moveWide(0b00) },
	"movk": func(in *inst) (uint32, error) { return in.moveWide(0b11) },

	"and":  func(in *inst) (uint32, error) { return in.logical(0b00, false) },
	"orr":  func(in *inst) (uint32, error) { return in.logical(0b01, false) },
	"eor":  func(in *inst) (uint32, error) { return in.logical(0b10, false) },
	"ands": func(in *inst) (uint32, error) { return in.logical(0b11, false) },
	"bic":  func(in *inst) (uint32, error) { return in.logical(0b00, true) },
	"orn":  func(in *inst) (uint32, error) { return in.logical(0b01, true) },
	"eon":  func(in *inst) (uint32, error) { return in.logical(0b10, true) },
	"bics": func(in *inst) (uint32, error) { return in.logical(0b11, true) },
	"tst":  (*inst).tst,
	"mvn":  (*inst).mvn,

	"madd": func(in *inst) (uint32, error) { return in.multiplyAdd(0, false) },
	"msub": func(in *inst) (uint32, error) { return in.multiplyAdd(1<<15, false) },
	"mul":  func(in *inst) (uint32, error) { return in.multiplyAdd(0, true) },
	"mneg": func(in *inst) (uint32, error) { return in.multiplyAdd(1<<15, true) },
	"sdiv": func(in *inst) (uint32, error) { return in.dataProcessing2(0x1ac00c00) },
	"udiv": func(in *inst) (uint32, error) { return in.dataProcessing2(0x1ac00800) },

	"lsl": func(in *inst) (uint32, error) { return in.shift(0b00) },
	"lsr": func(in *inst) (uint32, error) { return in.shift(0b01) },
	"asr": func(in *inst) (uint32, error) { return in.shift(0b10) },
	"ror": func(in *inst) (uint32, error) { return in.shift(0b11) },

	"csel":  func(in *inst) (uint32, error) { return in.conditionalSelect(0, 0) },
	"csinc": func(in *inst) (uint32, error) { return in.conditionalSelect(0, 1) },
	"csinv": func(in *inst) (uint32, error) { return in.conditionalSelect(1, 0) },
	"csneg": func(in *inst) (uint32, error) { return in.conditionalSelect(1, 1) },
	"cset":  (*inst).cset,

	"ldr":   func(in *inst) (uint32, error) { return in.loadStore(loadStoreX) },
	"str":   func(in *inst) (uint32, error) { return in.loadStore(loadStoreX.store()) },
	"ldrb":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 0, opc: 0b01}) },
	"strb":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 0, opc: 0b00}) },
	"ldrh":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 1, opc: 0b01}) },
	"strh":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 1, opc: 0b00}) },
	"ldrsb": func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 0, signed: true}) },
	"ldrsh": func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 1, signed: true}) },
	"ldrsw": func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: 2, opc: 0b10, only64: true}) },
	"ldur":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: -1, opc: 0b01, unscaled: true}) },
	"stur":  func(in *inst) (uint32, error) { return in.loadStore(loadStoreOp{size: -1, opc: 0b00, unscaled: true}) },
	"ldp":   func(in *inst) (uint32, error) { return in.loadStorePair(true) },
	"stp":   func(in *inst) (uint32, error) { return in.loadStorePair(false) },
}

func init() {
	for name, cond := range conditions {
		cond := cond
		handlers["b."+name] = func(in *inst) (uint32, error) { return in.conditionalBranch(cond) }
		// "beq" is accepted as an alias of "b.eq".
		if _, ok := handlers["b"+name]; !ok {
			handlers["b"+name] = handlers["b."+name]
		}
	}
}

func fixed(word uint32) handler {
	return func(in *inst) (uint32, error) {
		if len(in.st.Operands) != 0 {
			return 0, asm.ErrorOperands(in.st)
		}
		return word, nil
	}
}

func (in *inst) ret() (uint32, error) {
	if len(in.st.Operands) == 0 {
		return 0xd65f0000 | 30<<5, nil
	}
	return in.branchRegister(0xd65f0000)
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/BR--Branch-to-Register-
func (in *inst) branchRegister(base uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	r, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	if !r.is64 {
		return 0, asm.ErrorOperands(in.st)
	}
	return base | r.num<<5, nil
}

func (in *inst) exception(base uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	v, _, err := in.imm(&ops[0])
	if err != nil {
		return 0, err
	}
	if !asm.FitsUnsigned(v, 16) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
	}
	return base | uint32(v)<<5, nil
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/B--Branch-
func (in *inst) branch(base uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	imm26, err := in.pcRelative(&ops[0], 26, 4)
	if err != nil {
		return 0, err
	}
	return base | imm26, nil
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/B-cond--Branch-conditionally-
func (in *inst) conditionalBranch(cond uint32) (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	imm19, err := in.pcRelative(&ops[0], 19, 4)
	if err != nil {
		return 0, err
	}
	return 0x54000000 | imm19<<5 | cond, nil
}

func (in *inst) compareBranch(base uint32) (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rt, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	imm19, err := in.pcRelative(&ops[1], 19, 4)
	if err != nil {
		return 0, err
	}
	return sf(rt) | base | imm19<<5 | rt.num, nil
}

func (in *inst) testBranch(base uint32) (uint32, error) {
	ops, err := in.operands(3)
	if err != nil {
		return 0, err
	}
	rt, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	bit, _, err := in.imm(&ops[1])
	if err != nil {
		return 0, err
	}
	if bit < 0 || bit > 63 || (!rt.is64 && bit > 31) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: bit number out of range", in.st)
	}
	imm14, err := in.pcRelative(&ops[2], 14, 4)
	if err != nil {
		return 0, err
	}
	return uint32(bit>>5)<<31 | base | uint32(bit&0x1f)<<19 | imm14<<5 | rt.num, nil
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/ADR--Form-PC-relative-address-
func (in *inst) adr(page bool) (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	if !rd.is64 {
		return 0, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.imm(&ops[1])
	if err != nil {
		return 0, err
	}
	var offset int64
	base := uint32(0x10000000)
	if resolved {
		offset = target - int64(in.ctx.Address)
		if page {
			offset = (target &^ 0xfff) - (int64(in.ctx.Address) &^ 0xfff)
			offset >>= 12
		}
		if !asm.FitsSigned(offset, 21) {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: target %#x out of range", in.st, target)
		}
	}
	if page {
		base = 0x90000000
	}
	return base | uint32(offset&0b11)<<29 | uint32(offset>>2&0x7ffff)<<5 | rd.num, nil
}

// addSub encodes add, adds, sub and subs in their immediate, shifted and extended register forms.
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/ADD--immediate---Add--immediate--
func (in *inst) addSub(sub, setFlags bool) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 3 || len(ops) > 4 {
		return 0, asm.ErrorOperands(in.st)
	}
	// The destination is sp only for the non flag-setting forms.
	rd, err := in.reg(&ops[0], !setFlags && isSP(&ops[0]))
	if err != nil {
		return 0, err
	}
	rn, err := in.reg(&ops[1], isSP(&ops[1]))
	if err != nil {
		return 0, err
	}
	if err = in.sameWidth(rd, rn); err != nil {
		return 0, err
	}
	return in.addSubOperand(sub, setFlags, rd, rn, ops[2:])
}

func isSP(op *asm.Operand) bool {
	r, ok := registers[op.Reg]
	return op.IsReg() && ok && r.sp
}

func (in *inst) addSubOperand(sub, setFlags bool, rd, rn register, rest []asm.Operand) (uint32, error) {
	var op, s uint32
	if sub {
		op = 1 << 30
	}
	if setFlags {
		s = 1 << 29
	}
	operand := &rest[0]

	if operand.IsImm() {
		v, _, err := in.imm(operand)
		if err != nil {
			return 0, err
		}
		var shift int64
		if len(rest) == 2 {
			name, amount, err := in.shiftAmount(&rest[1])
			if err != nil {
				return 0, err
			}
			if name != "lsl" || (amount != 0 && amount != 12) {
				return 0, asm.ErrorOperands(in.st)
			}
			shift = amount
		}
		if v < 0 && shift == 0 {
			// add #-n is sub #n.
			v, op = -v, op^1<<30
		}
		var sh uint32
		switch {
		case shift == 12:
			sh = 1
		case v > 0xfff && v&0xfff == 0:
			v, sh = v>>12, 1
		}
		if !asm.FitsUnsigned(v, 12) {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
		}
		return sf(rd) | op | s | 0x11000000 | sh<<22 | uint32(v)<<10 | rn.num<<5 | rd.num, nil
	}

	rm, err := in.reg(operand, false)
	if err != nil {
		return 0, err
	}
	var shiftName string
	var amount int64
	if len(rest) == 2 {
		if shiftName, amount, err = in.shiftAmount(&rest[1]); err != nil {
			return 0, err
		}
	}

	if rd.sp || rn.sp || (shiftName != "" && strings.HasPrefix(shiftName[1:], "xt")) {
		// Extended register form, required to name sp.
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/ADD--extended-register---Add--extended-register--
		option := uint32(0b010)
		if rd.is64 {
			option = 0b011
		}
		if shiftName != "" && shiftName != "lsl" {
			var ok bool
			if option, ok = extendOptions[shiftName]; !ok {
				return 0, asm.ErrorOperands(in.st)
			}
		}
		if amount < 0 || amount > 4 {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: shift amount out of range", in.st)
		}
		return sf(rd) | op | s | 0x0b200000 | rm.num<<16 | option<<13 | uint32(amount)<<10 | rn.num<<5 | rd.num, nil
	}

	if err = in.sameWidth(rd, rm); err != nil {
		return 0, err
	}
	shift, imm6, err := in.shiftedRegister(shiftName, amount, rd.is64, false)
	if err != nil {
		return 0, err
	}
	return sf(rd) | op | s | 0x0b000000 | shift<<22 | rm.num<<16 | imm6<<10 | rn.num<<5 | rd.num, nil
}

// extendOptions are the option field values of the extended register forms.
var extendOptions = map[string]uint32{
	"uxtb": 0b000, "uxth": 0b001, "uxtw": 0b010, "uxtx": 0b011,
	"sxtb": 0b100, "sxth": 0b101, "sxtw": 0b110, "sxtx": 0b111,
}

// shiftedRegister returns the shift type and amount fields of a shifted register operand.
func (in *inst) shiftedRegister(name string, amount int64, is64, allowROR bool) (uint32, uint32, error) {
	var shift uint32
	switch name {
	case "", "lsl":
	case "lsr":
		shift = 0b01
	case "asr":
		shift = 0b10
	case "ror":
		if !allowROR {
			return 0, 0, asm.ErrorOperands(in.st)
		}
		shift = 0b11
	default:
		return 0, 0, asm.ErrorOperands(in.st)
	}
	limit := int64(31)
	if is64 {
		limit = 63
	}
	if amount < 0 || amount > limit {
		return 0, 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: shift amount out of range", in.st)
	}
	return shift, uint32(amount), nil
}

func (in *inst) compare(sub bool) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 || len(ops) > 3 {
		return 0, asm.ErrorOperands(in.st)
	}
	rn, err := in.reg(&ops[0], isSP(&ops[0]))
	if err != nil {
		return 0, err
	}
	zero := register{num: 31, is64: rn.is64, zero: true}
	return in.addSubOperand(sub, true, zero, rn, ops[1:])
}

func (in *inst) negate(setFlags bool) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 || len(ops) > 3 || !ops[1].IsReg() {
		return 0, asm.ErrorOperands(in.st)
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	zero := register{num: 31, is64: rd.is64, zero: true}
	return in.addSubOperand(true, setFlags, rd, zero, ops[1:])
}

// mov picks movz, movn, orr (bitmask immediate) or the register moves, like the aliases of the architecture.
func (in *inst) mov() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	dst, src := &ops[0], &ops[1]
	if src.IsReg() {
		if isSP(dst) || isSP(src) {
			// mov to or from sp is add #0.
			rd, err := in.reg(dst, isSP(dst))
			if err != nil {
				return 0, err
			}
			rn, err := in.reg(src, isSP(src))
			if err != nil {
				return 0, err
			}
			if err = in.sameWidth(rd, rn); err != nil {
				return 0, err
			}
			return sf(rd) | 0x11000000 | rn.num<<5 | rd.num, nil
		}
		rd, err := in.reg(dst, false)
		if err != nil {
			return 0, err
		}
		rm, err := in.reg(src, false)
		if err != nil {
			return 0, err
		}
		if err = in.sameWidth(rd, rm); err != nil {
			return 0, err
		}
		// orr rd, zr, rm
		return sf(rd) | 0x2a000000 | rm.num<<16 | 31<<5 | rd.num, nil
	}

	rd, err := in.reg(dst, isSP(dst))
	if err != nil {
		return 0, err
	}
	v, _, err := in.imm(src)
	if err != nil {
		return 0, err
	}
	c := uint64(v)
	width := uint(64)
	if !rd.is64 {
		if !asm.FitsSigned(v, 32) && !asm.FitsUnsigned(v, 32) {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
		}
		c, width = uint64(uint32(v)), 32
	}

	if !rd.sp {
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MOVZ--Move-wide-with-zero-
		for hw := uint(0); hw < width/16; hw++ {
			if c&^(0xffff<<(16*hw)) == 0 {
				return sf(rd) | 0b10<<29 | 0x12800000 | uint32(hw)<<21 | uint32(c>>(16*hw)&0xffff)<<5 | rd.num, nil
			}
		}
		inverted := ^c
		if width == 32 {
			inverted &= 0xffff_ffff
		}
		for hw := uint(0); hw < width/16; hw++ {
			if inverted&^(0xffff<<(16*hw)) == 0 {
				return sf(rd) | 0x12800000 | uint32(hw)<<21 | uint32(inverted>>(16*hw)&0xffff)<<5 | rd.num, nil
			}
		}
	}
	if n, immr, imms, ok := bitmaskImmediate(c, rd.is64); ok {
		// orr rd, zr, #imm
		return sf(rd) | 0b01<<29 | 0x12000000 | n<<22 | immr<<16 | imms<<10 | 31<<5 | rd.num, nil
	}
	return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate cannot be encoded in a single instruction", in.st)
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MOVK--Move-wide-with-keep-
func (in *inst) moveWide(opc uint32) (uint32, error) {
	ops, err := in.operands(2, 3)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	v, _, err := in.imm(&ops[1])
	if err != nil {
		return 0, err
	}
	if !asm.FitsUnsigned(v, 16) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: immediate out of range", in.st)
	}
	var hw uint32
	if len(ops) == 3 {
		name, amount, err := in.shiftAmount(&ops[2])
		if err != nil {
			return 0, err
		}
		limit := int64(16)
		if rd.is64 {
			limit = 48
		}
		if name != "lsl" || amount%16 != 0 || amount < 0 || amount > limit {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid shift", in.st)
		}
		hw = uint32(amount / 16)
	}
	return sf(rd) | opc<<29 | 0x12800000 | hw<<21 | uint32(v)<<5 | rd.num, nil
}

// logical encodes and, orr, eor and ands, plus their inverted register forms bic, orn, eon and bics.
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/AND--immediate---Bitwise-AND--immediate--
func (in *inst) logical(opc uint32, invert bool) (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 3 || len(ops) > 4 {
		return 0, asm.ErrorOperands(in.st)
	}
	// The immediate forms of and, orr and eor may write sp.
	rd, err := in.reg(&ops[0], opc != 0b11 && ops[2].IsImm() && isSP(&ops[0]))
	if err != nil {
		return 0, err
	}
	rn, err := in.reg(&ops[1], false)
	if err != nil {
		return 0, err
	}
	if err = in.sameWidth(rd, rn); err != nil {
		return 0, err
	}
	return in.logicalOperand(opc, invert, rd, rn, ops[2:])
}

func (in *inst) logicalOperand(opc uint32, invert bool, rd, rn register, rest []asm.Operand) (uint32, error) {
	if rest[0].IsImm() {
		if len(rest) != 1 {
			return 0, asm.ErrorOperands(in.st)
		}
		v, _, err := in.imm(&rest[0])
		if err != nil {
			return 0, err
		}
		c := uint64(v)
		if invert {
			c = ^c
		}
		n, immr, imms, ok := bitmaskImmediate(c, rd.is64)
		if !ok {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: %#x is not a bitmask immediate", in.st, v)
		}
		return sf(rd) | opc<<29 | 0x12000000 | n<<22 | immr<<16 | imms<<10 | rn.num<<5 | rd.num, nil
	}

	rm, err := in.reg(&rest[0], false)
	if err != nil {
		return 0, err
	}
	if err = in.sameWidth(rd, rm); err != nil {
		return 0, err
	}
	var name string
	var amount int64
	if len(rest) == 2 {
		if name, amount, err = in.shiftAmount(&rest[1]); err != nil {
			return 0, err
		}
	}
	shift, imm6, err := in.shiftedRegister(name, amount, rd.is64, true)
	if err != nil {
		return 0, err
	}
	var n uint32
	if invert {
		n = 1 << 21
	}
	return sf(rd) | opc<<29 | 0x0a000000 | shift<<22 | n | rm.num<<16 | imm6<<10 | rn.num<<5 | rd.num, nil
}

func (in *inst) tst() (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 || len(ops) > 3 {
		return 0, asm.ErrorOperands(in.st)
	}
	rn, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	return in.logicalOperand(0b11, false, register{num: 31, is64: rn.is64, zero: true}, rn, ops[1:])
}

func (in *inst) mvn() (uint32, error) {
	ops := in.st.Operands
	if len(ops) < 2 || len(ops) > 3 || !ops[1].IsReg() {
		return 0, asm.ErrorOperands(in.st)
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	return in.logicalOperand(0b01, true, rd, register{num: 31, is64: rd.is64, zero: true}, ops[1:])
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MADD--Multiply-Add-
func (in *inst) multiplyAdd(o0 uint32, zeroAddend bool) (uint32, error) {
	n := 4
	if zeroAddend {
		n = 3
	}
	ops, err := in.operands(n)
	if err != nil {
		return 0, err
	}
	regs := make([]register, 0, 4)
	for i := range ops {
		r, err := in.reg(&ops[i], false)
		if err != nil {
			return 0, err
		}
		regs = append(regs, r)
	}
	if zeroAddend {
		regs = append(regs, register{num: 31, is64: regs[0].is64, zero: true})
	}
	if err = in.sameWidth(regs...); err != nil {
		return 0, err
	}
	return sf(regs[0]) | 0x1b000000 | regs[2].num<<16 | o0 | regs[3].num<<10 | regs[1].num<<5 | regs[0].num, nil
}

func (in *inst) dataProcessing2(base uint32) (uint32, error) {
	ops, err := in.operands(3)
	if err != nil {
		return 0, err
	}
	var regs [3]register
	for i := range ops {
		if regs[i], err = in.reg(&ops[i], false); err != nil {
			return 0, err
		}
	}
	if err = in.sameWidth(regs[:]...); err != nil {
		return 0, err
	}
	return sf(regs[0]) | base | regs[2].num<<16 | regs[1].num<<5 | regs[0].num, nil
}

// shift encodes lsl, lsr, asr and ror by register (lslv...) or immediate (ubfm, sbfm and extr aliases).
func (in *inst) shift(kind uint32) (uint32, error) {
	ops, err := in.operands(3)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	rn, err := in.reg(&ops[1], false)
	if err != nil {
		return 0, err
	}
	if err = in.sameWidth(rd, rn); err != nil {
		return 0, err
	}
	if ops[2].IsReg() {
		rm, err := in.reg(&ops[2], false)
		if err != nil {
			return 0, err
		}
		if err = in.sameWidth(rd, rm); err != nil {
			return 0, err
		}
		return sf(rd) | 0x1ac02000 | rm.num<<16 | kind<<10 | rn.num<<5 | rd.num, nil
	}

	amount, _, err := in.imm(&ops[2])
	if err != nil {
		return 0, err
	}
	size := int64(32)
	var n uint32
	if rd.is64 {
		size, n = 64, 1<<22
	}
	if amount < 0 || amount >= size {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: shift amount out of range", in.st)
	}
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/UBFM--Unsigned-Bitfield-Move-
	switch kind {
	case 0b00: // lsl: ubfm rd, rn, #(-amount mod size), #(size-1-amount)
		immr := uint32((size - amount) % size)
		return sf(rd) | 0x53000000 | n | immr<<16 | uint32(size-1-amount)<<10 | rn.num<<5 | rd.num, nil
	case 0b01: // lsr: ubfm rd, rn, #amount, #(size-1)
		return sf(rd) | 0x53000000 | n | uint32(amount)<<16 | uint32(size-1)<<10 | rn.num<<5 | rd.num, nil
	case 0b10: // asr: sbfm rd, rn, #amount, #(size-1)
		return sf(rd) | 0x13000000 | n | uint32(amount)<<16 | uint32(size-1)<<10 | rn.num<<5 | rd.num, nil
	}
	// ror: extr rd, rn, rn, #amount
	return sf(rd) | 0x13800000 | n | rn.num<<16 | uint32(amount)<<10 | rn.num<<5 | rd.num, nil
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CSEL--Conditional-Select-
func (in *inst) conditionalSelect(op, o2 uint32) (uint32, error) {
	ops, err := in.operands(4)
	if err != nil {
		return 0, err
	}
	var regs [3]register
	for i := 0; i < 3; i++ {
		if regs[i], err = in.reg(&ops[i], false); err != nil {
			return 0, err
		}
	}
	if err = in.sameWidth(regs[:]...); err != nil {
		return 0, err
	}
	cond, err := in.condition(&ops[3])
	if err != nil {
		return 0, err
	}
	return sf(regs[0]) | op<<30 | 0x1a800000 | regs[2].num<<16 | cond<<12 | o2<<10 | regs[1].num<<5 | regs[0].num, nil
}

// condition reads a condition code operand, parsed as a symbol.
func (in *inst) condition(op *asm.Operand) (uint32, error) {
	if op.IsImm() && op.Expr.Op == asm.ExprSymbol {
		if cond, ok := conditions[strings.ToLower(op.Expr.Symbol)]; ok {
			return cond, nil
		}
	}
	return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid condition", in.st)
}

// cset rd, cond is csinc rd, zr, zr, invert(cond).
func (in *inst) cset() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rd, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	cond, err := in.condition(&ops[1])
	if err != nil {
		return 0, err
	}
	if cond>>1 == 0b111 {
		return 0, asm.ErrorOperands(in.st)
	}
	return sf(rd) | 0x1a800000 | 31<<16 | (cond^1)<<12 | 1<<10 | 31<<5 | rd.num, nil
}

// loadStoreOp describes one of the single register load and store instructions.
type loadStoreOp struct {
	// size is log2 of the access size, or -1 to take it from the register width.
	size int
	opc  uint32
	// signed loads pick opc from the destination width.
	signed bool
	only64 bool
	// unscaled forces the 9-bit signed offset form (ldur, stur).
	unscaled bool
}

var loadStoreX = loadStoreOp{size: -1, opc: 0b01}

func (o loadStoreOp) store() loadStoreOp {
	o.opc = 0b00
	return o
}

// loadStore encodes ldr, str and the sized variants with an unsigned or unscaled offset, pre and post-index, a
// register offset or a pc-relative literal.
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--immediate---Load-Register--immediate--
func (in *inst) loadStore(o loadStoreOp) (uint32, error) {
	ops, err := in.operands(2, 3)
	if err != nil {
		return 0, err
	}
	rt, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	size, opc := o.size, o.opc
	switch {
	case size < 0 && rt.is64:
		size = 3
	case size < 0:
		size = 2
	case o.signed && rt.is64:
		opc = 0b10
	case o.signed:
		opc = 0b11
	case o.only64 && !rt.is64:
		return 0, asm.ErrorOperands(in.st)
	case !o.signed && !o.only64 && rt.is64:
		// ldrb x0 does not exist, only ldrb w0.
		return 0, asm.ErrorOperands(in.st)
	}

	mem := &ops[1]
	if !mem.IsMem() {
		if mem.Literal {
			return 0, asm.ErrorMissingFeature(in.st, "literal pools")
		}
		// ldr rt, label
		if len(ops) != 2 || opc == 0b00 || (size < 2 && !o.only64) {
			return 0, asm.ErrorOperands(in.st)
		}
		imm19, err := in.pcRelative(mem, 19, 4)
		if err != nil {
			return 0, err
		}
		litOpc := uint32(0b00)
		switch {
		case o.only64:
			litOpc = 0b10
		case rt.is64:
			litOpc = 0b01
		}
		return litOpc<<30 | 0x18000000 | imm19<<5 | rt.num, nil
	}

	base, err := in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: mem.Mem.Base}, true)
	if err != nil || !base.is64 {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid base register", in.st)
	}
	word := uint32(size)<<30 | opc<<22 | base.num<<5 | rt.num

	if mem.Mem.Index != "" {
		return in.registerOffset(word, size, mem.Mem)
	}

	offset, _, err := in.ctx.Eval(mem.Mem.Disp)
	if err != nil {
		return 0, err
	}
	switch {
	case o.unscaled && (len(ops) == 3 || mem.Mem.PreIndex):
		return 0, asm.ErrorOperands(in.st)
	case len(ops) == 3:
		// Post-index: [base], #imm
		if mem.Mem.PreIndex || mem.Mem.Disp != nil {
			return 0, asm.ErrorOperands(in.st)
		}
		if offset, _, err = in.imm(&ops[2]); err != nil {
			return 0, err
		}
		if !asm.FitsSigned(offset, 9) {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
		}
		return word | 0x38000400 | uint32(offset&0x1ff)<<12, nil
	case mem.Mem.PreIndex:
		if !asm.FitsSigned(offset, 9) {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
		}
		return word | 0x38000c00 | uint32(offset&0x1ff)<<12, nil
	case !o.unscaled && offset >= 0 && offset&(1<<size-1) == 0 && offset>>size < 1<<12:
		return word | 0x39000000 | uint32(offset>>size)<<10, nil
	case asm.FitsSigned(offset, 9):
		// ldur/stur
		return word | 0x38000000 | uint32(offset&0x1ff)<<12, nil
	}
	return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--register---Load-Register--register--
func (in *inst) registerOffset(word uint32, size int, m *asm.Memory) (uint32, error) {
	if m.PreIndex || m.Disp != nil {
		return 0, asm.ErrorOperands(in.st)
	}
	rm, ok := registers[m.Index]
	if !ok || rm.sp {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid index register", in.st)
	}
	option := uint32(0b011)
	switch m.IndexShift {
	case "", "lsl":
		if !rm.is64 {
			return 0, asm.ErrorOperands(in.st)
		}
	default:
		var ok bool
		if option, ok = extendOptions[m.IndexShift]; !ok || option&0b010 == 0 {
			return 0, asm.ErrorOperands(in.st)
		}
		if rm.is64 != (option&1 == 1) {
			return 0, asm.ErrorOperands(in.st)
		}
	}
	var s uint32
	switch m.IndexShiftAmount {
	case 0:
	case int64(size):
		s = 1
	default:
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: shift amount must be 0 or %d", in.st, size)
	}
	return word | 0x38200800 | rm.num<<16 | option<<13 | s<<12, nil
}

// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDP--Load-Pair-of-Registers-
func (in *inst) loadStorePair(load bool) (uint32, error) {
	ops, err := in.operands(3, 4)
	if err != nil {
		return 0, err
	}
	rt, err := in.reg(&ops[0], false)
	if err != nil {
		return 0, err
	}
	rt2, err := in.reg(&ops[1], false)
	if err != nil {
		return 0, err
	}
	if err = in.sameWidth(rt, rt2); err != nil {
		return 0, err
	}
	mem := &ops[2]
	if !mem.IsMem() || mem.Mem.Index != "" {
		return 0, asm.ErrorOperands(in.st)
	}
	base, err := in.reg(&asm.Operand{Kind: asm.OperandRegister, Reg: mem.Mem.Base}, true)
	if err != nil || !base.is64 {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: invalid base register", in.st)
	}
	offset, _, err := in.ctx.Eval(mem.Mem.Disp)
	if err != nil {
		return 0, err
	}

	var opc uint32
	scale := int64(4)
	if rt.is64 {
		opc, scale = 0b10, 8
	}
	form := uint32(0x29000000)
	switch {
	case len(ops) == 4:
		if mem.Mem.PreIndex || mem.Mem.Disp != nil {
			return 0, asm.ErrorOperands(in.st)
		}
		if offset, _, err = in.imm(&ops[3]); err != nil {
			return 0, err
		}
		form = 0x28800000
	case mem.Mem.PreIndex:
		form = 0x29800000
	}
	if offset%scale != 0 || !asm.FitsSigned(offset/scale, 7) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: offset out of range", in.st)
	}
	var l uint32
	if load {
		l = 1 << 22
	}
	return opc<<30 | form | l | uint32(offset/scale&0x7f)<<15 | rt2.num<<10 | base.num<<5 | rt.num, nil
}
