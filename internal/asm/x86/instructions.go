package x86

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// handler encodes one mnemonic into inst.
type handler func(in *inst) error

// handlers are keyed by the lower-cased mnemonic.
var handlers = map[string]handler{}

// simpleOpcode is an instruction without operands.
type simpleOpcode struct {
	opcode []byte
	// size is the operand size implied by the mnemonic, zero when the instruction has none.
	size      int
	default64 bool
	not64     bool
}

var simpleInstructions = map[string]simpleOpcode{
	"nop": {opcode: []byte{0x90}}, "hlt": {opcode: []byte{0xf4}}, "leave": {opcode: []byte{0xc9}},
	"int3": {opcode: []byte{0xcc}}, "into": {opcode: []byte{0xce}, not64: true}, "int1": {opcode: []byte{0xf1}},
	"cbw": {opcode: []byte{0x98}, size: 2}, "cwde": {opcode: []byte{0x98}, size: 4}, "cdqe": {opcode: []byte{0x98}, size: 8},
	"cwd": {opcode: []byte{0x99}, size: 2}, "cdq": {opcode: []byte{0x99}, size: 4}, "cqo": {opcode: []byte{0x99}, size: 8},
	"clc": {opcode: []byte{0xf8}}, "stc": {opcode: []byte{0xf9}}, "cmc": {opcode: []byte{0xf5}},
	"cld": {opcode: []byte{0xfc}}, "std": {opcode: []byte{0xfd}}, "cli": {opcode: []byte{0xfa}}, "sti": {opcode: []byte{0xfb}},
	"sahf": {opcode: []byte{0x9e}}, "lahf": {opcode: []byte{0x9f}}, "wait": {opcode: []byte{0x9b}}, "fwait": {opcode: []byte{0x9b}},
	"pause": {opcode: []byte{0xf3, 0x90}}, "xlatb": {opcode: []byte{0xd7}},
	"cpuid": {opcode: []byte{0x0f, 0xa2}}, "rdtsc": {opcode: []byte{0x0f, 0x31}}, "rdtscp": {opcode: []byte{0x0f, 0x01, 0xf9}},
	"syscall": {opcode: []byte{0x0f, 0x05}}, "sysenter": {opcode: []byte{0x0f, 0x34}}, "sysexit": {opcode: []byte{0x0f, 0x35}},
	"sysret": {opcode: []byte{0x0f, 0x07}}, "ud2": {opcode: []byte{0x0f, 0x0b}},
	"lfence": {opcode: []byte{0x0f, 0xae, 0xe8}}, "mfence": {opcode: []byte{0x0f, 0xae, 0xf0}}, "sfence": {opcode: []byte{0x0f, 0xae, 0xf8}},
	"pushf": {opcode: []byte{0x9c}}, "popf": {opcode: []byte{0x9d}},
	"pushfw": {opcode: []byte{0x9c}, size: 2, default64: true}, "popfw": {opcode: []byte{0x9d}, size: 2, default64: true},
	"pushfd": {opcode: []byte{0x9c}, size: 4, default64: true}, "popfd": {opcode: []byte{0x9d}, size: 4, default64: true},
	"pushfq": {opcode: []byte{0x9c}, size: 8, default64: true}, "popfq": {opcode: []byte{0x9d}, size: 8, default64: true},
	"pusha": {opcode: []byte{0x60}, not64: true}, "popa": {opcode: []byte{0x61}, not64: true},
	"pushad": {opcode: []byte{0x60}, size: 4, not64: true}, "popad": {opcode: []byte{0x61}, size: 4, not64: true},
	"iret": {opcode: []byte{0xcf}}, "iretd": {opcode: []byte{0xcf}, size: 4}, "iretq": {opcode: []byte{0xcf}, size: 8},

	// String instructions, operands implied.
	"movsb": {opcode: []byte{0xa4}}, "movsw": {opcode: []byte{0xa5}, size: 2},
	"movsd": {opcode: []byte{0xa5}, size: 4}, "movsl": {opcode: []byte{0xa5}, size: 4}, "movsq": {opcode: []byte{0xa5}, size: 8},
	"cmpsb": {opcode: []byte{0xa6}}, "cmpsw": {opcode: []byte{0xa7}, size: 2},
	"cmpsd": {opcode: []byte{0xa7}, size: 4}, "cmpsl": {opcode: []byte{0xa7}, size: 4}, "cmpsq": {opcode: []byte{0xa7}, size: 8},
	"stosb": {opcode: []byte{0xaa}}, "stosw": {opcode: []byte{0xab}, size: 2},
	"stosd": {opcode: []byte{0xab}, size: 4}, "stosl": {opcode: []byte{0xab}, size: 4}, "stosq": {opcode: []byte{0xab}, size: 8},
	"lodsb": {opcode: []byte{0xac}}, "lodsw": {opcode: []byte{0xad}, size: 2},
	"lodsd": {opcode: []byte{0xad}, size: 4}, "lodsl": {opcode: []byte{0xad}, size: 4}, "lodsq": {opcode: []byte{0xad}, size: 8},
	"scasb": {opcode: []byte{0xae}}, "scasw": {opcode: []byte{0xaf}, size: 2},
	"scasd": {opcode: []byte{0xaf}, size: 4}, "scasl": {opcode: []byte{0xaf}, size: 4}, "scasq": {opcode: []byte{0xaf}, size: 8},

	// Prefixes written alone.
	"lock": {opcode: []byte{0xf0}}, "rep": {opcode: []byte{0xf3}}, "repe": {opcode: []byte{0xf3}},
	"repz": {opcode: []byte{0xf3}}, "repne": {opcode: []byte{0xf2}}, "repnz": {opcode: []byte{0xf2}},
}

// arithmetic are the instructions sharing the classic ALU encoding, by their /digit.
var arithmetic = map[string]byte{"add": 0, "or": 1, "adc": 2, "sbb": 3, "and": 4, "sub": 5, "xor": 6, "cmp": 7}

// unaryGroup are the f6/f7 (and fe/ff) one operand instructions, by their /digit.
var unaryGroup = map[string]struct {
	digit   byte
	incDec  bool
	opcode8 byte
}{
	"inc": {0, true, 0xfe}, "dec": {1, true, 0xfe},
	"not": {2, false, 0xf6}, "neg": {3, false, 0xf6}, "mul": {4, false, 0xf6},
	"div": {6, false, 0xf6}, "idiv": {7, false, 0xf6},
}

// shifts are the c0/c1/d0-d3 group, by their /digit.
var shifts = map[string]byte{"rol": 0, "ror": 1, "rcl": 2, "rcr": 3, "shl": 4, "sal": 4, "shr": 5, "sar": 7}

// conditions are the condition codes of jcc, setcc and cmovcc.
var conditions = map[string]byte{
	"o": 0x0, "no": 0x1, "b": 0x2, "c": 0x2, "nae": 0x2, "ae": 0x3, "nb": 0x3, "nc": 0x3,
	"e": 0x4, "z": 0x4, "ne": 0x5, "nz": 0x5, "be": 0x6, "na": 0x6, "a": 0x7, "nbe": 0x7,
	"s": 0x8, "ns": 0x9, "p": 0xa, "pe": 0xa, "np": 0xb, "po": 0xb,
	"l": 0xc, "nge": 0xc, "ge": 0xd, "nl": 0xd, "le": 0xe, "ng": 0xe, "g": 0xf, "nle": 0xf,
}

func init() {
	for name, op := range simpleInstructions {
		op := op
		handlers[name] = func(in *inst) error { return in.simple(op) }
	}
	for name, digit := range arithmetic {
		digit := digit
		handlers[name] = func(in *inst) error { return in.arithmetic(digit) }
	}
	for name, g := range unaryGroup {
		g := g
		handlers[name] = func(in *inst) error { return in.unary(g.digit, g.opcode8, g.incDec) }
	}
	for name, digit := range shifts {
		digit := digit
		handlers[name] = func(in *inst) error { return in.shift(digit) }
	}
	for name, cc := range conditions {
		cc := cc
		handlers["j"+name] = func(in *inst) error { return in.jcc(cc) }
		handlers["set"+name] = func(in *inst) error { return in.setcc(cc) }
		handlers["cmov"+name] = func(in *inst) error { return in.cmovcc(cc) }
	}
	for name, h := range map[string]handler{
		"mov":     (*inst).mov,
		"movabs":  (*inst).movabs,
		"movzx":   func(in *inst) error { return in.extend(0xb6) },
		"movsx":   func(in *inst) error { return in.extend(0xbe) },
		"movsxd":  (*inst).movsxd,
		"lea":     (*inst).lea,
		"xchg":    (*inst).xchg,
		"test":    (*inst).test,
		"push":    func(in *inst) error { return in.push(false) },
		"pop":     func(in *inst) error { return in.push(true) },
		"imul":    (*inst).imul,
		"jmp":     func(in *inst) error { return in.branch(false) },
		"call":    func(in *inst) error { return in.branch(true) },
		"ret":     func(in *inst) error { return in.ret(0xc3, 0xc2) },
		"retn":    func(in *inst) error { return in.ret(0xc3, 0xc2) },
		"retf":    func(in *inst) error { return in.ret(0xcb, 0xca) },
		"int":     (*inst).interrupt,
		"loop":    func(in *inst) error { return in.loop(0xe2, 0) },
		"loope":   func(in *inst) error { return in.loop(0xe1, 0) },
		"loopz":   func(in *inst) error { return in.loop(0xe1, 0) },
		"loopne":  func(in *inst) error { return in.loop(0xe0, 0) },
		"loopnz":  func(in *inst) error { return in.loop(0xe0, 0) },
		"jcxz":    func(in *inst) error { return in.loop(0xe3, 16) },
		"jecxz":   func(in *inst) error { return in.loop(0xe3, 32) },
		"jrcxz":   func(in *inst) error { return in.loop(0xe3, 64) },
		"bswap":   (*inst).bswap,
		"cmpxchg": func(in *inst) error { return in.exchangeAdd(0xb0) },
		"xadd":    func(in *inst) error { return in.exchangeAdd(0xc0) },
	} {
		handlers[name] = h
	}
	// "nop" also has a r/m form.
	handlers["nop"] = (*inst).nop
}

func (in *inst) operands(n int) ([]asm.Operand, error) {
	if len(in.st.Operands) != n {
		return nil, asm.ErrorOperands(in.st)
	}
	return in.st.Operands, nil
}

func (in *inst) simple(op simpleOpcode) error {
	if len(in.st.Operands) != 0 {
		return asm.ErrorOperands(in.st)
	}
	if op.not64 && in.bits == 64 {
		return asm.ErrorMissingFeature(in.st, "16 or 32-bit mode")
	}
	if op.size != 0 {
		if err := in.setSize(op.size, op.default64); err != nil {
			return err
		}
	}
	in.opcode = op.opcode
	return nil
}

func (in *inst) nop() error {
	switch len(in.st.Operands) {
	case 0:
		return in.simple(simpleInstructions["nop"])
	case 1:
		// https://www.felixcloutier.com/x86/nop: 0f 1f /0
		op := &in.st.Operands[0]
		size, err := in.operandSize(op)
		if err != nil {
			return err
		}
		if size == 1 {
			return asm.ErrorOperands(in.st)
		}
		if err = in.setSize(size, false); err != nil {
			return err
		}
		in.opcode = []byte{0x0f, 0x1f}
		return in.modrmOperand(0, op)
	}
	return asm.ErrorOperands(in.st)
}

// arithmetic encodes add, or, adc, sbb, and, sub, xor and cmp.
// https://www.felixcloutier.com/x86/add
func (in *inst) arithmetic(digit byte) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	wide := byte(1)
	if size == 1 {
		wide = 0
	}
	base := digit * 8

	switch {
	case src.IsImm() && in.isRM(dst):
		switch {
		case size == 1 && in.isAccumulator(dst):
			in.opcode = []byte{base + 0x04}
			return in.immediate(src, 1, 1)
		case size == 1:
			in.opcode = []byte{0x80}
			if err = in.immediate(src, 1, 1); err != nil {
				return err
			}
		case in.isImm8(src, size):
			in.opcode = []byte{0x83}
			if err = in.immediate(src, 1, size); err != nil {
				return err
			}
		case in.isAccumulator(dst):
			in.opcode = []byte{base + 0x05}
			return in.immediate(src, min(size, 4), size)
		default:
			in.opcode = []byte{0x81}
			if err = in.immediate(src, min(size, 4), size); err != nil {
				return err
			}
		}
		return in.modrmOperand(digit, dst)
	case in.isRM(dst) && src.IsReg():
		reg, err := in.regField(src)
		if err != nil {
			return err
		}
		in.opcode = []byte{base + wide}
		return in.modrmOperand(reg, dst)
	case dst.IsReg() && src.IsMem():
		reg, err := in.regField(dst)
		if err != nil {
			return err
		}
		in.opcode = []byte{base + 0x02 + wide}
		return in.modrmOperand(reg, src)
	}
	return asm.ErrorOperands(in.st)
}

// test is commutative between its register and r/m operands.
func (in *inst) test() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	wide := byte(1)
	if size == 1 {
		wide = 0
	}
	switch {
	case src.IsImm() && in.isAccumulator(dst):
		in.opcode = []byte{0xa8 + wide}
		return in.immediate(src, min(size, 4), size)
	case src.IsImm() && in.isRM(dst):
		in.opcode = []byte{0xf6 + wide}
		if err = in.immediate(src, min(size, 4), size); err != nil {
			return err
		}
		return in.modrmOperand(0, dst)
	case src.IsImm():
		return asm.ErrorOperands(in.st)
	}
	rm, reg := dst, src
	if dst.IsReg() && src.IsMem() {
		rm, reg = src, dst
	}
	if !reg.IsReg() || !in.isRM(rm) {
		return asm.ErrorOperands(in.st)
	}
	r, err := in.regField(reg)
	if err != nil {
		return err
	}
	in.opcode = []byte{0x84 + wide}
	return in.modrmOperand(r, rm)
}

// mov picks the shortest of the many mov forms, like other assemblers.
// https://www.felixcloutier.com/x86/mov
func (in *inst) mov() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]

	if sreg, ok := in.segmentRegister(dst); ok {
		if !in.isRM(src) {
			return asm.ErrorOperands(in.st)
		}
		in.opcode = []byte{0x8e}
		return in.modrmOperand(sreg.num, src)
	}
	if sreg, ok := in.segmentRegister(src); ok {
		if r, ok := in.gpr(dst); ok {
			if err = in.setSize(r.size, false); err != nil {
				return err
			}
		} else if !dst.IsMem() {
			return asm.ErrorOperands(in.st)
		}
		in.opcode = []byte{0x8c}
		return in.modrmOperand(sreg.num, dst)
	}

	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	wide := byte(1)
	if size == 1 {
		wide = 0
	}

	switch {
	case src.IsImm():
		if r, ok := in.gpr(dst); ok {
			if size == 8 && (!src.Expr.IsConst() || in.isImm32(src)) {
				in.opcode = []byte{0xc7}
				if err = in.immediate(src, 4, 8); err != nil {
					return err
				}
				in.modrmRegister(0, r)
				return nil
			}
			// b0+r ib, b8+r iw/id/io
			in.opcode = []byte{0xb0 + wide*8 + r.num&7}
			if r.isExtended() {
				in.rex |= rexB
			}
			in.useRegister(r)
			return in.immediate(src, size, size)
		}
		if !dst.IsMem() {
			return asm.ErrorOperands(in.st)
		}
		in.opcode = []byte{0xc6 + wide}
		if err = in.immediate(src, min(size, 4), size); err != nil {
			return err
		}
		return in.modrmOperand(0, dst)
	case in.isAccumulator(dst) && in.isAbsolute(src):
		in.opcode = []byte{0xa0 + wide}
		return in.moffs(src.Mem, in.bits/8)
	case in.isAbsolute(dst) && in.isAccumulator(src):
		in.opcode = []byte{0xa2 + wide}
		return in.moffs(dst.Mem, in.bits/8)
	case in.isRM(dst) && src.IsReg():
		reg, err := in.regField(src)
		if err != nil {
			return err
		}
		in.opcode = []byte{0x88 + wide}
		return in.modrmOperand(reg, dst)
	case dst.IsReg() && src.IsMem():
		reg, err := in.regField(dst)
		if err != nil {
			return err
		}
		in.opcode = []byte{0x8a + wide}
		return in.modrmOperand(reg, src)
	}
	return asm.ErrorOperands(in.st)
}

// isImm32 returns true if the constant op fits a sign-extended 32-bit immediate.
func (in *inst) isImm32(op *asm.Operand) bool {
	v, _, err := op.Expr.Eval(nil)
	return err == nil && asm.FitsSigned(v, 32)
}

// isAbsolute returns true if op is a memory operand usable by the moffs forms of mov outside of 64-bit mode.
func (in *inst) isAbsolute(op *asm.Operand) bool {
	return in.bits != 64 && op.IsMem() && op.Mem.Base == "" && op.Mem.Index == ""
}

// moffs sets the absolute address of the accumulator forms of mov.
func (in *inst) moffs(m *asm.Memory, size int) error {
	if m.Segment != "" && m.Segment != "ds" {
		in.segment = segmentOverride[m.Segment]
	}
	v, err := in.eval(m.Disp)
	if err != nil {
		return err
	}
	if in.resolved && !fitsSize(v, size) {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: address out of range", in.st)
	}
	in.disp, in.dispSize = v, size
	return nil
}

// movabs is the 64-bit immediate and absolute address form of mov.
func (in *inst) movabs() error {
	if in.bits != 64 {
		return asm.ErrorMissingFeature(in.st, "64-bit mode")
	}
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	wide := byte(1)
	if size == 1 {
		wide = 0
	}
	absolute := func(op *asm.Operand) bool { return op.IsMem() && op.Mem.Base == "" && op.Mem.Index == "" }
	switch r, ok := in.gpr(dst); {
	case ok && src.IsImm():
		in.opcode = []byte{0xb0 + wide*8 + r.num&7}
		if r.isExtended() {
			in.rex |= rexB
		}
		in.useRegister(r)
		return in.immediate(src, size, size)
	case in.isAccumulator(dst) && absolute(src):
		in.opcode = []byte{0xa0 + wide}
		return in.moffs(src.Mem, 8)
	case absolute(dst) && in.isAccumulator(src):
		in.opcode = []byte{0xa2 + wide}
		return in.moffs(dst.Mem, 8)
	}
	return asm.ErrorOperands(in.st)
}

// extend encodes movzx (0f b6/b7) and movsx (0f be/bf).
func (in *inst) extend(opcode8 byte) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	r, ok := in.gpr(dst)
	if !ok || r.size == 1 {
		return asm.ErrorOperands(in.st)
	}
	srcSize := src.Size
	if s, ok := in.gpr(src); ok {
		srcSize = s.size
	} else if !src.IsMem() {
		return asm.ErrorOperands(in.st)
	}
	switch srcSize {
	case 1:
		in.opcode = []byte{0x0f, opcode8}
	case 2:
		in.opcode = []byte{0x0f, opcode8 + 1}
	case 0:
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: ambiguous operand size", in.st)
	default:
		return asm.ErrorOperands(in.st)
	}
	if srcSize >= r.size {
		return asm.ErrorOperands(in.st)
	}
	if err = in.setSize(r.size, false); err != nil {
		return err
	}
	in.useRegister(r)
	return in.modrmOperand(r.num, src)
}

// movsxd sign-extends a 32-bit source into a 64-bit register.
func (in *inst) movsxd() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	r, ok := in.gpr(dst)
	if !ok || r.size != 8 {
		return asm.ErrorOperands(in.st)
	}
	if s, ok := in.gpr(src); ok && s.size != 4 || src.IsMem() && src.Size != 0 && src.Size != 4 {
		return asm.ErrorOperands(in.st)
	}
	if err = in.setSize(8, false); err != nil {
		return err
	}
	in.opcode = []byte{0x63}
	return in.modrmOperand(r.num, src)
}

func (in *inst) lea() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	r, ok := in.gpr(&ops[0])
	if !ok || r.size == 1 || !ops[1].IsMem() {
		return asm.ErrorOperands(in.st)
	}
	if err = in.setSize(r.size, false); err != nil {
		return err
	}
	in.opcode = []byte{0x8d}
	return in.modrmOperand(r.num, &ops[1])
}

func (in *inst) xchg() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	if dst.IsMem() {
		dst, src = src, dst
	}
	reg, ok := in.gpr(dst)
	if !ok || !in.isRM(src) {
		return asm.ErrorOperands(in.st)
	}
	if other, ok := in.gpr(src); ok && size != 1 {
		if reg.num == 0 {
			reg, other = other, reg
		}
		// 90+r, except "xchg eax, eax" in 64-bit mode which must clear the upper half.
		if other.num == 0 && !(reg.num == 0 && size == 4 && in.bits == 64) {
			in.opcode = []byte{0x90 + reg.num&7}
			if reg.isExtended() {
				in.rex |= rexB
			}
			return nil
		}
	}
	in.opcode = []byte{0x87}
	if size == 1 {
		in.opcode = []byte{0x86}
	}
	in.useRegister(reg)
	return in.modrmOperand(reg.num, src)
}

// push encodes push and pop.
// https://www.felixcloutier.com/x86/push
func (in *inst) push(pop bool) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	op := &ops[0]

	if sreg, ok := in.segmentRegister(op); ok {
		codes := map[string][2][]byte{
			"es": {{0x06}, {0x07}}, "cs": {{0x0e}, nil}, "ss": {{0x16}, {0x17}}, "ds": {{0x1e}, {0x1f}},
			"fs": {{0x0f, 0xa0}, {0x0f, 0xa1}}, "gs": {{0x0f, 0xa8}, {0x0f, 0xa9}},
		}[op.Reg]
		code := codes[0]
		if pop {
			code = codes[1]
		}
		if code == nil || in.bits == 64 && sreg.num < 4 {
			return asm.ErrorOperands(in.st)
		}
		in.opcode = code
		return nil
	}

	if r, ok := in.gpr(op); ok {
		if err = in.setSize(r.size, true); err != nil {
			return err
		}
		if r.size == 1 {
			return asm.ErrorOperands(in.st)
		}
		opcode := byte(0x50)
		if pop {
			opcode = 0x58
		}
		in.opcode = []byte{opcode + r.num&7}
		if r.isExtended() {
			in.rex |= rexB
		}
		return nil
	}

	size := op.Size
	if size == 0 {
		size = in.stackSize()
	}
	if err = in.setSize(size, true); err != nil {
		return err
	}
	switch {
	case op.IsImm() && !pop:
		if in.isImm8(op, size) {
			in.opcode = []byte{0x6a}
			return in.immediate(op, 1, size)
		}
		in.opcode = []byte{0x68}
		return in.immediate(op, min(size, 4), size)
	case op.IsMem() && pop:
		in.opcode = []byte{0x8f}
		return in.modrmOperand(0, op)
	case op.IsMem():
		in.opcode = []byte{0xff}
		return in.modrmOperand(6, op)
	}
	return asm.ErrorOperands(in.st)
}

// unary encodes the one operand groups: inc, dec, not, neg, mul, div and idiv.
func (in *inst) unary(digit, opcode8 byte, incDec bool) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	op := &ops[0]
	size, err := in.operandSize(op)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	if r, ok := in.gpr(op); ok && incDec && size != 1 && in.bits != 64 {
		// 40+r / 48+r, reused as REX prefixes in 64-bit mode.
		in.opcode = []byte{0x40 + digit*8 + r.num}
		return nil
	}
	in.opcode = []byte{opcode8}
	if size != 1 {
		in.opcode = []byte{opcode8 + 1}
	}
	return in.modrmOperand(digit, op)
}

// imul has one, two and three operand forms.
// https://www.felixcloutier.com/x86/imul
func (in *inst) imul() error {
	ops := in.st.Operands
	switch len(ops) {
	case 1:
		return in.unary(5, 0xf6, false)
	case 2, 3:
	default:
		return asm.ErrorOperands(in.st)
	}
	dst := &ops[0]
	r, ok := in.gpr(dst)
	if !ok || r.size == 1 {
		return asm.ErrorOperands(in.st)
	}
	if err := in.setSize(r.size, false); err != nil {
		return err
	}
	src, imm := &ops[1], (*asm.Operand)(nil)
	switch {
	case len(ops) == 3:
		imm = &ops[2]
	case src.IsImm():
		src, imm = dst, src
	}
	if size, err := in.operandSize(dst, src); err != nil {
		return err
	} else if size != r.size {
		return asm.ErrorOperands(in.st)
	}

	if imm == nil {
		in.opcode = []byte{0x0f, 0xaf}
		return in.modrmOperand(r.num, src)
	}
	if !imm.IsImm() {
		return asm.ErrorOperands(in.st)
	}
	if in.isImm8(imm, r.size) {
		in.opcode = []byte{0x6b}
		if err := in.immediate(imm, 1, r.size); err != nil {
			return err
		}
	} else {
		in.opcode = []byte{0x69}
		if err := in.immediate(imm, min(r.size, 4), r.size); err != nil {
			return err
		}
	}
	return in.modrmOperand(r.num, src)
}

// shift encodes the rotate and shift group.
// https://www.felixcloutier.com/x86/sal:sar:shl:shr
func (in *inst) shift(digit byte) error {
	ops := in.st.Operands
	if len(ops) != 1 && len(ops) != 2 {
		return asm.ErrorOperands(in.st)
	}
	dst := &ops[0]
	size, err := in.operandSize(dst)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	wide := byte(1)
	if size == 1 {
		wide = 0
	}
	if len(ops) == 1 {
		in.opcode = []byte{0xd0 + wide}
		return in.modrmOperand(digit, dst)
	}
	switch count := &ops[1]; {
	case count.IsReg() && count.Reg == "cl":
		in.opcode = []byte{0xd2 + wide}
	case count.IsImm() && count.Expr.IsConst() && count.Expr.Value == 1:
		in.opcode = []byte{0xd0 + wide}
	case count.IsImm():
		in.opcode = []byte{0xc0 + wide}
		if err = in.immediate(count, 1, 1); err != nil {
			return err
		}
	default:
		return asm.ErrorOperands(in.st)
	}
	return in.modrmOperand(digit, dst)
}

// branch encodes jmp and call, relative or indirect.
// https://www.felixcloutier.com/x86/jmp
func (in *inst) branch(call bool) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	op := &ops[0]
	if target, ok := branchTarget(op); ok {
		if call {
			return in.relative(target, nil, []byte{0xe8})
		}
		return in.relative(target, []byte{0xeb}, []byte{0xe9})
	}

	digit := byte(4)
	if call {
		digit = 2
	}
	if op.Far {
		if !op.IsMem() {
			return asm.ErrorMissingFeature(in.st, "direct far branches")
		}
		digit++
		in.opcode = []byte{0xff}
		return in.modrmOperand(digit, op)
	}

	size := op.Size
	if r, ok := in.gpr(op); ok {
		size = r.size
	} else if !op.IsMem() {
		return asm.ErrorOperands(in.st)
	}
	if size == 0 {
		size = in.stackSize()
	}
	if err = in.setSize(size, true); err != nil {
		return err
	}
	in.opcode = []byte{0xff}
	return in.modrmOperand(digit, op)
}

func (in *inst) jcc(cc byte) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	target, ok := branchTarget(&ops[0])
	if !ok {
		return asm.ErrorOperands(in.st)
	}
	return in.relative(target, []byte{0x70 + cc}, []byte{0x0f, 0x80 + cc})
}

// loop encodes loop and jcxz, which only have an 8-bit displacement. addressSize selects the counter register
// of jcxz, jecxz and jrcxz.
func (in *inst) loop(opcode byte, addressSize int) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	target, ok := branchTarget(&ops[0])
	if !ok {
		return asm.ErrorOperands(in.st)
	}
	switch {
	case addressSize == 0 || addressSize == in.bits:
	case addressSize == 64 || in.bits == 64 && addressSize == 16:
		return asm.ErrorMissingFeature(in.st, "a different mode")
	default:
		in.adsize = true
	}
	return in.relative(target, []byte{opcode}, nil)
}

func (in *inst) setcc(cc byte) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	op := &ops[0]
	if r, ok := in.gpr(op); ok && r.size != 1 || op.IsMem() && op.Size > 1 {
		return asm.ErrorOperands(in.st)
	}
	in.opcode = []byte{0x0f, 0x90 + cc}
	return in.modrmOperand(0, op)
}

func (in *inst) cmovcc(cc byte) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	r, ok := in.gpr(&ops[0])
	if !ok || r.size == 1 || !in.isRM(&ops[1]) {
		return asm.ErrorOperands(in.st)
	}
	if _, err = in.operandSize(&ops[0], &ops[1]); err != nil {
		return err
	}
	if err = in.setSize(r.size, false); err != nil {
		return err
	}
	in.opcode = []byte{0x0f, 0x40 + cc}
	return in.modrmOperand(r.num, &ops[1])
}

func (in *inst) ret(plain, withImm byte) error {
	switch len(in.st.Operands) {
	case 0:
		in.opcode = []byte{plain}
		return nil
	case 1:
		op := &in.st.Operands[0]
		if !op.IsImm() {
			return asm.ErrorOperands(in.st)
		}
		in.opcode = []byte{withImm}
		return in.immediate(op, 2, 2)
	}
	return asm.ErrorOperands(in.st)
}

func (in *inst) interrupt() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	if !ops[0].IsImm() {
		return asm.ErrorOperands(in.st)
	}
	in.opcode = []byte{0xcd}
	return in.immediate(&ops[0], 1, 1)
}

func (in *inst) bswap() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	r, ok := in.gpr(&ops[0])
	if !ok || r.size < 4 {
		return asm.ErrorOperands(in.st)
	}
	if err = in.setSize(r.size, false); err != nil {
		return err
	}
	in.opcode = []byte{0x0f, 0xc8 + r.num&7}
	if r.isExtended() {
		in.rex |= rexB
	}
	return nil
}

// exchangeAdd encodes cmpxchg (0f b0/b1) and xadd (0f c0/c1), both "r/m, reg".
func (in *inst) exchangeAdd(opcode8 byte) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	dst, src := &ops[0], &ops[1]
	if !in.isRM(dst) || !src.IsReg() {
		return asm.ErrorOperands(in.st)
	}
	size, err := in.operandSize(dst, src)
	if err != nil {
		return err
	}
	if err = in.setSize(size, false); err != nil {
		return err
	}
	in.opcode = []byte{0x0f, opcode8}
	if size != 1 {
		in.opcode[1]++
	}
	reg, err := in.regField(src)
	if err != nil {
		return err
	}
	return in.modrmOperand(reg, dst)
}
