package sparc

import (
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

type handler func(in *inst) error

// Instruction formats, the op field.
const (
	fmtBranch = 0 << 30
	fmtCall   = 1 << 30
	fmtArith  = 2 << 30
	fmtMemory = 3 << 30
)

// Format 2 op2 values.
const (
	op2BPcc  = 1 << 22
	op2Bicc  = 2 << 22
	op2BPr   = 3 << 22
	op2SETHI = 4 << 22
	op2FBfcc = 6 << 22
)

// Format 3 op3 values with a special meaning to the synthetic instructions.
const (
	op3OR     = 0x02
	op3ORCC   = 0x12
	op3SUB    = 0x04
	op3SUBCC  = 0x14
	op3XNOR   = 0x07
	op3ADD    = 0x00
	op3RDY    = 0x28
	op3WRY    = 0x30
	op3JMPL   = 0x38
	op3TICC   = 0x3a
	op3FPOP1  = 0x34
	op3FPOP2  = 0x35
	op3SAVE   = 0x3c
	op3RESTOR = 0x3d
	op3ST     = 0x04
)

const (
	regG0 = 0
	regO7 = 15
	regI7 = 31
)

var integerConditions = map[string]uint32{
	"n": 0, "e": 1, "z": 1, "le": 2, "l": 3, "leu": 4, "cs": 5, "lu": 5, "neg": 6, "vs": 7,
	"a": 8, "": 8, "ne": 9, "nz": 9, "g": 10, "ge": 11, "gu": 12, "cc": 13, "geu": 13, "pos": 14, "vc": 15,
}

var floatConditions = map[string]uint32{
	"n": 0, "ne": 1, "lg": 2, "ul": 3, "l": 4, "ug": 5, "g": 6, "u": 7,
	"a": 8, "e": 9, "ue": 10, "ge": 11, "uge": 12, "le": 13, "ule": 14, "o": 15,
}

var registerConditions = map[string]uint32{"z": 1, "lez": 2, "lz": 3, "nz": 5, "gz": 6, "gez": 7}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"sethi":   (*inst).sethi,
		"set":     (*inst).set,
		"nop":     fixed(0x01000000),
		"mov":     (*inst).mov,
		"clr":     (*inst).clr,
		"cmp":     (*inst).cmp,
		"tst":     (*inst).tst,
		"neg":     unarySynthetic(op3SUB, true),
		"not":     unarySynthetic(op3XNOR, false),
		"inc":     increment(op3ADD),
		"dec":     increment(op3SUB),
		"save":    window(op3SAVE),
		"restore": window(op3RESTOR),
		"ret":     fixed(fmtArith | op3JMPL<<19 | regI7<<14 | 1<<13 | 8),
		"retl":    fixed(fmtArith | op3JMPL<<19 | regO7<<14 | 1<<13 | 8),
		"jmpl":    (*inst).jmpl,
		"jmp":     jump(regG0),
		"call":    (*inst).call,
		"ta":      (*inst).ta,
		"rd":      (*inst).rd,
		"wr":      (*inst).wr,

		"sll":  shift(0x25, false),
		"srl":  shift(0x26, false),
		"sra":  shift(0x27, false),
		"sllx": shift(0x25, true),
		"srlx": shift(0x26, true),
		"srax": shift(0x27, true),

		"ld":     load(0x00, 0x20, false),
		"lduw":   load(0x00, 0x20, false),
		"ldub":   load(0x01, 0, false),
		"lduh":   load(0x02, 0, false),
		"ldd":    load(0x03, 0x23, false),
		"ldsb":   load(0x09, 0, false),
		"ldsh":   load(0x0a, 0, false),
		"ldstub": load(0x0d, 0, false),
		"swap":   load(0x0f, 0, false),
		"ldsw":   load(0x08, 0, true),
		"ldx":    load(0x0b, 0, true),
		"st":     store(0x04, 0x24, false),
		"stw":    store(0x04, 0x24, false),
		"stb":    store(0x05, 0, false),
		"sth":    store(0x06, 0, false),
		"std":    store(0x07, 0x27, false),
		"stx":    store(0x0e, 0, true),
		"flush":  (*inst).flush,

		"fmovs":  floatUnary(0x01),
		"fnegs":  floatUnary(0x05),
		"fabss":  floatUnary(0x09),
		"fsqrts": floatUnary(0x29),
		"fsqrtd": floatUnary(0x2a),
		"fitos":  floatUnary(0xc4),
		"fitod":  floatUnary(0xc8),
		"fstoi":  floatUnary(0xd1),
		"fdtoi":  floatUnary(0xd2),
		"fstod":  floatUnary(0xc9),
		"fdtos":  floatUnary(0xc6),
		"fadds":  floatBinary(0x41),
		"faddd":  floatBinary(0x42),
		"fsubs":  floatBinary(0x45),
		"fsubd":  floatBinary(0x46),
		"fmuls":  floatBinary(0x49),
		"fmuld":  floatBinary(0x4a),
		"fdivs":  floatBinary(0x4d),
		"fdivd":  floatBinary(0x4e),
		"fcmps":  floatCompare(0x51),
		"fcmpd":  floatCompare(0x52),
	}

	for name, op3 := range map[string]uint32{
		"add": 0x00, "and": 0x01, "or": 0x02, "xor": 0x03, "sub": 0x04, "andn": 0x05, "orn": 0x06, "xnor": 0x07,
		"addx": 0x08, "umul": 0x0a, "smul": 0x0b, "subx": 0x0c, "udiv": 0x0e, "sdiv": 0x0f,
	} {
		handlers[name] = arith(op3, false)
		handlers[name+"cc"] = arith(op3|0x10, false)
	}
	handlers["addc"] = handlers["addx"]
	handlers["addccc"] = handlers["addxcc"]
	handlers["subc"] = handlers["subx"]
	handlers["subccc"] = handlers["subxcc"]
	for name, op3 := range map[string]uint32{"mulx": 0x09, "udivx": 0x0d, "sdivx": 0x2d, "popc": 0x2e} {
		handlers[name] = arith(op3, true)
	}

	for suffix, cond := range integerConditions {
		addBranches("b"+suffix, integerBranch(cond))
	}
	for suffix, cond := range floatConditions {
		addBranches("fb"+suffix, floatBranch(cond))
	}
	for suffix, rcond := range registerConditions {
		addBranches("br"+suffix, registerBranch(rcond))
	}
}

// branchFlags are the mnemonic suffixes of a branch.
type branchFlags struct {
	annul bool
	// predict is cleared by ",pn".
	predict bool
}

// addBranches registers name with every combination of the annul and prediction suffixes.
func addBranches(name string, fn func(in *inst, f branchFlags) error) {
	for _, annul := range []string{"", ",a"} {
		for _, pred := range []string{"", ",pt", ",pn"} {
			f := branchFlags{annul: annul != "", predict: pred != ",pn"}
			handlers[name+annul+pred] = func(in *inst) error {
				return fn(in, f)
			}
		}
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

func format3(op3, rd, rs1, low uint32) uint32 {
	return fmtArith | rd<<25 | op3<<19 | rs1<<14 | low
}

// arith encodes "op %rs1, reg_or_imm, %rd".
func arith(op3 uint32, v9 bool) handler {
	return func(in *inst) error {
		if v9 {
			if err := in.requireV9(); err != nil {
				return err
			}
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		rs1, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		low, err := in.source(&ops[1])
		if err != nil {
			return err
		}
		rd, err := in.reg(&ops[2])
		if err != nil {
			return err
		}
		in.emit(format3(op3, rd, rs1, low))
		return nil
	}
}

// shift encodes the shifts by a register or a constant count. The x forms shift all 64 bits.
func shift(op3 uint32, x bool) handler {
	return func(in *inst) error {
		if x {
			if err := in.requireV9(); err != nil {
				return err
			}
		}
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		rs1, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		rd, err := in.reg(&ops[2])
		if err != nil {
			return err
		}
		var low uint32
		if ops[1].IsReg() {
			if low, err = in.reg(&ops[1]); err != nil {
				return err
			}
		} else {
			max := int64(31)
			if x {
				max = 63
			}
			v, err := in.imm(&ops[1])
			if err != nil {
				return err
			}
			if v < 0 || v > max {
				return in.errorRange(v)
			}
			low = 1<<13 | uint32(v)
		}
		if x {
			low |= 1 << 12
		}
		in.emit(format3(op3, rd, rs1, low))
		return nil
	}
}

func (in *inst) sethiWord(rd, v uint32) uint32 {
	return fmtBranch | rd<<25 | op2SETHI | v&0x3fffff
}

// sethi encodes "sethi imm22, %rd". The immediate is usually written %hi(x).
func (in *inst) sethi() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	v, err := in.imm(&ops[0])
	if err != nil {
		return err
	}
	if !asm.FitsUnsigned(v, 22) {
		return in.errorRange(v)
	}
	rd, err := in.reg(&ops[1])
	if err != nil {
		return err
	}
	in.emit(in.sethiWord(rd, uint32(v)))
	return nil
}

// set loads a 32-bit constant with the shortest of mov, sethi and sethi+or. Values depending on symbols always take
// the two instruction form so that the layout cannot shrink between passes.
func (in *inst) set() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	v, err := in.imm(&ops[0])
	if err != nil {
		return err
	}
	if !asm.FitsSigned(v, 32) && !asm.FitsUnsigned(v, 32) {
		return in.errorRange(v)
	}
	rd, err := in.reg(&ops[1])
	if err != nil {
		return err
	}
	w := uint32(v)
	hi := in.sethiWord(rd, w>>10)
	lo := format3(op3OR, rd, rd, 1<<13|w&0x3ff)
	switch {
	case !ops[0].Expr.IsConst():
		in.emit(hi, lo)
	case asm.FitsSigned(int64(int32(w)), 13):
		in.emit(format3(op3OR, rd, regG0, 1<<13|w&0x1fff))
	case w&0x3ff == 0:
		in.emit(hi)
	default:
		in.emit(hi, lo)
	}
	return nil
}

// mov is "or %g0, reg_or_imm, %rd", or a write to %y.
func (in *inst) mov() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	if ops[1].IsReg() && ops[1].Reg == regY {
		low, err := in.source(&ops[0])
		if err != nil {
			return err
		}
		in.emit(format3(op3WRY, 0, regG0, low))
		return nil
	}
	if ops[0].IsReg() && ops[0].Reg == regY {
		rd, err := in.reg(&ops[1])
		if err != nil {
			return err
		}
		in.emit(format3(op3RDY, rd, 0, 0))
		return nil
	}
	low, err := in.source(&ops[0])
	if err != nil {
		return err
	}
	rd, err := in.reg(&ops[1])
	if err != nil {
		return err
	}
	in.emit(format3(op3OR, rd, regG0, low))
	return nil
}

// clr zeroes a register or a word in memory.
func (in *inst) clr() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	if ops[0].IsMem() {
		rs1, low, err := in.address(&ops[0], false)
		if err != nil {
			return err
		}
		in.emit(fmtMemory | op3ST<<19 | rs1<<14 | low)
		return nil
	}
	rd, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	in.emit(format3(op3OR, rd, regG0, regG0))
	return nil
}

// cmp is "subcc %rs1, reg_or_imm, %g0".
func (in *inst) cmp() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rs1, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	low, err := in.source(&ops[1])
	if err != nil {
		return err
	}
	in.emit(format3(op3SUBCC, regG0, rs1, low))
	return nil
}

// tst is "orcc %g0, %rs, %g0".
func (in *inst) tst() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	rs, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	in.emit(format3(op3ORCC, regG0, regG0, rs))
	return nil
}

// unarySynthetic encodes neg ("sub %g0, %rs, %rd") and not ("xnor %rs, %g0, %rd"), both also written with a
// single register operand.
func unarySynthetic(op3 uint32, fromZero bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(1, 2)
		if err != nil {
			return err
		}
		rs, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		rd, err := in.reg(&ops[len(ops)-1])
		if err != nil {
			return err
		}
		if fromZero {
			in.emit(format3(op3, rd, regG0, rs))
		} else {
			in.emit(format3(op3, rd, rs, regG0))
		}
		return nil
	}
}

// increment encodes "inc [const,] %rd" and dec.
func increment(op3 uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1, 2)
		if err != nil {
			return err
		}
		rd, err := in.reg(&ops[len(ops)-1])
		if err != nil {
			return err
		}
		low := uint32(1<<13 | 1)
		if len(ops) == 2 {
			if !ops[0].IsImm() {
				return asm.ErrorOperands(in.st)
			}
			if low, err = in.simm13(ops[0].Expr); err != nil {
				return err
			}
		}
		in.emit(format3(op3, rd, rd, low))
		return nil
	}
}

// window encodes save and restore, which take the usual three operands or none.
func window(op3 uint32) handler {
	h := arith(op3, false)
	return func(in *inst) error {
		if len(in.st.Operands) == 0 {
			in.emit(format3(op3, regG0, regG0, regG0))
			return nil
		}
		return h(in)
	}
}

// jmpl encodes "jmpl address, %rd".
func (in *inst) jmpl() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	rs1, low, err := in.address(&ops[0], true)
	if err != nil {
		return err
	}
	rd, err := in.reg(&ops[1])
	if err != nil {
		return err
	}
	in.emit(format3(op3JMPL, rd, rs1, low))
	return nil
}

// jump encodes the jmpl synthetics linking into rd.
func jump(rd uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		rs1, low, err := in.address(&ops[0], true)
		if err != nil {
			return err
		}
		in.emit(format3(op3JMPL, rd, rs1, low))
		return nil
	}
}

// call encodes a pc-relative call to a label, or "jmpl address, %o7" for a register target.
func (in *inst) call() error {
	ops, err := in.operands(1, 2)
	if err != nil {
		return err
	}
	if !ops[0].IsImm() {
		return jump(regO7)(in.with(ops[:1]))
	}
	disp, err := in.displacement(&ops[0], 30)
	if err != nil {
		return err
	}
	in.emit(fmtCall | disp)
	return nil
}

// with returns a copy of the instruction with different operands.
func (in *inst) with(ops []asm.Operand) *inst {
	st := *in.st
	st.Operands = ops
	cp := *in
	cp.st = &st
	return &cp
}

// displacement returns the word displacement to target in a field of bits.
func (in *inst) displacement(op *asm.Operand, bits uint) (uint32, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, err
	}
	off := target - int64(in.ctx.Address)
	if off&3 != 0 || !asm.FitsSigned(off>>2, bits) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
	}
	return uint32(off>>2) & (1<<bits - 1), nil
}

func annulBit(f branchFlags) uint32 {
	if f.annul {
		return 1 << 29
	}
	return 0
}

// integerBranch encodes Bicc, or BPcc when a condition code register comes first.
func integerBranch(cond uint32) func(in *inst, f branchFlags) error {
	return func(in *inst, f branchFlags) error {
		ops, err := in.operands(1, 2)
		if err != nil {
			return err
		}
		predicted := strings.Contains(in.st.Mnemonic, ",p")
		if len(ops) == 1 && !predicted {
			disp, err := in.displacement(&ops[0], 22)
			if err != nil {
				return err
			}
			in.emit(fmtBranch | annulBit(f) | cond<<25 | op2Bicc | disp)
			return nil
		}
		if err := in.requireV9(); err != nil {
			return err
		}
		cc := conditionCodes["icc"]
		if len(ops) == 2 {
			var ok bool
			if cc, ok = conditionCodes[ops[0].Reg]; !ops[0].IsReg() || !ok {
				return asm.ErrorOperands(in.st)
			}
		}
		disp, err := in.displacement(&ops[len(ops)-1], 19)
		if err != nil {
			return err
		}
		var p uint32
		if f.predict {
			p = 1 << 19
		}
		in.emit(fmtBranch | annulBit(f) | cond<<25 | op2BPcc | cc<<20 | p | disp)
		return nil
	}
}

// floatBranch encodes FBfcc.
func floatBranch(cond uint32) func(in *inst, f branchFlags) error {
	return func(in *inst, f branchFlags) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		disp, err := in.displacement(&ops[0], 22)
		if err != nil {
			return err
		}
		in.emit(fmtBranch | annulBit(f) | cond<<25 | op2FBfcc | disp)
		return nil
	}
}

// registerBranch encodes the V9 BPr, branching on the contents of a register.
func registerBranch(rcond uint32) func(in *inst, f branchFlags) error {
	return func(in *inst, f branchFlags) error {
		if err := in.requireV9(); err != nil {
			return err
		}
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rs1, err := in.reg(&ops[0])
		if err != nil {
			return err
		}
		disp, err := in.displacement(&ops[1], 16)
		if err != nil {
			return err
		}
		var p uint32
		if f.predict {
			p = 1 << 19
		}
		in.emit(fmtBranch | annulBit(f) | rcond<<25 | op2BPr | disp>>14<<20 | p | rs1<<14 | disp&0x3fff)
		return nil
	}
}

// ta traps always with a software trap number.
func (in *inst) ta() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	low, err := in.source(&ops[0])
	if err != nil {
		return err
	}
	in.emit(format3(op3TICC, integerConditions["a"], regG0, low))
	return nil
}

// rd reads %y.
func (in *inst) rd() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	if !ops[0].IsReg() || ops[0].Reg != regY {
		return asm.ErrorOperands(in.st)
	}
	rd, err := in.reg(&ops[1])
	if err != nil {
		return err
	}
	in.emit(format3(op3RDY, rd, 0, 0))
	return nil
}

// wr writes "%rs1 xor reg_or_imm" to %y.
func (in *inst) wr() error {
	ops, err := in.operands(2, 3)
	if err != nil {
		return err
	}
	if y := ops[len(ops)-1]; !y.IsReg() || y.Reg != regY {
		return asm.ErrorOperands(in.st)
	}
	rs1, err := in.reg(&ops[0])
	if err != nil {
		return err
	}
	var low uint32
	if len(ops) == 3 {
		if low, err = in.source(&ops[1]); err != nil {
			return err
		}
	}
	in.emit(format3(op3WRY, 0, rs1, low))
	return nil
}

// load encodes "op [address], %rd". fop3 is the floating point variant, if any.
func load(op3, fop3 uint32, v9 bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rd, code, err := in.dataRegister(&ops[1], op3, fop3, v9)
		if err != nil {
			return err
		}
		rs1, low, err := in.address(&ops[0], false)
		if err != nil {
			return err
		}
		in.emit(fmtMemory | rd<<25 | code<<19 | rs1<<14 | low)
		return nil
	}
}

// store encodes "op %rd, [address]".
func store(op3, fop3 uint32, v9 bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rd, code, err := in.dataRegister(&ops[0], op3, fop3, v9)
		if err != nil {
			return err
		}
		rs1, low, err := in.address(&ops[1], false)
		if err != nil {
			return err
		}
		in.emit(fmtMemory | rd<<25 | code<<19 | rs1<<14 | low)
		return nil
	}
}

// dataRegister decodes the transfer register of a load or store, switching to the floating point op3 for %f
// registers.
func (in *inst) dataRegister(op *asm.Operand, op3, fop3 uint32, v9 bool) (uint32, uint32, error) {
	if v9 {
		if err := in.requireV9(); err != nil {
			return 0, 0, err
		}
	}
	if op.IsReg() {
		if _, ok := fpRegisters[op.Reg]; ok && fop3 != 0 {
			r, err := in.fpr(op)
			return r, fop3, err
		}
	}
	r, err := in.reg(op)
	return r, op3, err
}

func (in *inst) flush() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	rs1, low, err := in.address(&ops[0], true)
	if err != nil {
		return err
	}
	in.emit(format3(0x3b, 0, rs1, low))
	return nil
}

// floatUnary encodes "op %fs2, %fd".
func floatUnary(opf uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rs2, err := in.fpr(&ops[0])
		if err != nil {
			return err
		}
		rd, err := in.fpr(&ops[1])
		if err != nil {
			return err
		}
		in.emit(format3(op3FPOP1, rd, 0, opf<<5|rs2))
		return nil
	}
}

// floatBinary encodes "op %fs1, %fs2, %fd".
func floatBinary(opf uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		var r [3]uint32
		for i := range r {
			if r[i], err = in.fpr(&ops[i]); err != nil {
				return err
			}
		}
		in.emit(format3(op3FPOP1, r[2], r[0], opf<<5|r[1]))
		return nil
	}
}

// floatCompare encodes "op %fs1, %fs2" into %fcc0.
func floatCompare(opf uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		rs1, err := in.fpr(&ops[0])
		if err != nil {
			return err
		}
		rs2, err := in.fpr(&ops[1])
		if err != nil {
			return err
		}
		in.emit(format3(op3FPOP2, 0, rs1, opf<<5|rs2))
		return nil
	}
}
