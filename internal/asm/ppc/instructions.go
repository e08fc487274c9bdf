package ppc

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

type handler struct {
	fn func(in *inst) (uint32, error)
	// only64 restricts the instruction to PPC64.
	only64 bool
}

// Primary opcodes.
const (
	opMULLI  = 7 << 26
	opSUBFIC = 8 << 26
	opCMPLI  = 10 << 26
	opCMPI   = 11 << 26
	opADDI   = 14 << 26
	opADDIS  = 15 << 26
	opBC     = 16 << 26
	opSC     = 17 << 26
	opB      = 18 << 26
	opXL     = 19 << 26
	opRLWINM = 21 << 26
	opORI    = 24 << 26
	opORIS   = 25 << 26
	opXORI   = 26 << 26
	opXORIS  = 27 << 26
	opANDI   = 28 << 26
	opANDIS  = 29 << 26
	opX      = 31 << 26
	opLD     = 58 << 26
	opSTD    = 62 << 26
)

// Branch conditions as (BO, bit within the CR field).
var conditions = map[string][2]uint32{
	"lt": {12, 0}, "ge": {4, 0}, "nl": {4, 0},
	"gt": {12, 1}, "le": {4, 1}, "ng": {4, 1},
	"eq": {12, 2}, "ne": {4, 2},
	"so": {12, 3}, "ns": {4, 3}, "un": {12, 3}, "nu": {4, 3},
}

// Special purpose registers used by the mtspr/mfspr mnemonics.
const (
	sprXER = 1
	sprLR  = 8
	sprCTR = 9
)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"addi":   {fn: immediate(opADDI, false)},
		"addis":  {fn: immediate(opADDIS, false)},
		"subi":   {fn: immediate(opADDI, true)},
		"subis":  {fn: immediate(opADDIS, true)},
		"mulli":  {fn: immediate(opMULLI, false)},
		"subfic": {fn: immediate(opSUBFIC, false)},
		"li":     {fn: loadImmediate(opADDI)},
		"lis":    {fn: loadImmediate(opADDIS)},
		"la":     {fn: (*inst).la},
		"ori":    {fn: logicalImmediate(opORI)},
		"oris":   {fn: logicalImmediate(opORIS)},
		"xori":   {fn: logicalImmediate(opXORI)},
		"xoris":  {fn: logicalImmediate(opXORIS)},
		"andi.":  {fn: logicalImmediate(opANDI)},
		"andis.": {fn: logicalImmediate(opANDIS)},

		"neg":    {fn: xoForm(104, 2, false)},
		"neg.":   {fn: xoForm(104, 2, true)},
		"mr":     {fn: (*inst).mr},
		"mr.":    {fn: (*inst).mr},
		"not":    {fn: (*inst).not},
		"srawi":  {fn: shiftImmediate(824, false)},
		"srawi.": {fn: shiftImmediate(824, true)},
		"slwi":   {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return n, 0, 31 - n }, false)},
		"slwi.":  {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return n, 0, 31 - n }, true)},
		"srwi":   {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return (32 - n) & 31, n, 31 }, false)},
		"srwi.":  {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return (32 - n) & 31, n, 31 }, true)},
		"rotlwi": {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return n, 0, 31 }, false)},
		"clrlwi": {fn: rotateAlias(func(n uint32) (uint32, uint32, uint32) { return 0, n, 31 }, false)},

		"rlwinm":  {fn: rlwinm(false)},
		"rlwinm.": {fn: rlwinm(true)},

		"lwz":  {fn: loadStore(32<<26, 1)},
		"lwzu": {fn: loadStore(33<<26, 1)},
		"lbz":  {fn: loadStore(34<<26, 1)},
		"lbzu": {fn: loadStore(35<<26, 1)},
		"stw":  {fn: loadStore(36<<26, 1)},
		"stwu": {fn: loadStore(37<<26, 1)},
		"stb":  {fn: loadStore(38<<26, 1)},
		"stbu": {fn: loadStore(39<<26, 1)},
		"lhz":  {fn: loadStore(40<<26, 1)},
		"lhzu": {fn: loadStore(41<<26, 1)},
		"lha":  {fn: loadStore(42<<26, 1)},
		"sth":  {fn: loadStore(44<<26, 1)},
		"sthu": {fn: loadStore(45<<26, 1)},
		"lmw":  {fn: loadStore(46<<26, 1)},
		"stmw": {fn: loadStore(47<<26, 1)},
		"ld":   {fn: loadStore(opLD|0, 4), only64: true},
		"ldu":  {fn: loadStore(opLD|1, 4), only64: true},
		"lwa":  {fn: loadStore(opLD|2, 4), only64: true},
		"std":  {fn: loadStore(opSTD|0, 4), only64: true},
		"stdu": {fn: loadStore(opSTD|1, 4), only64: true},

		"lwzx": {fn: indexed(23)},
		"lbzx": {fn: indexed(87)},
		"lhzx": {fn: indexed(279)},
		"stwx": {fn: indexed(151)},
		"stbx": {fn: indexed(215)},
		"sthx": {fn: indexed(407)},
		"ldx":  {fn: indexed(21), only64: true},
		"stdx": {fn: indexed(149), only64: true},

		"cmpwi":  {fn: compareImmediate(opCMPI, 0)},
		"cmplwi": {fn: compareImmediate(opCMPLI, 0)},
		"cmpdi":  {fn: compareImmediate(opCMPI, 1), only64: true},
		"cmpldi": {fn: compareImmediate(opCMPLI, 1), only64: true},
		"cmpw":   {fn: compare(0, 0)},
		"cmplw":  {fn: compare(32, 0)},
		"cmpd":   {fn: compare(0, 1), only64: true},
		"cmpld":  {fn: compare(32, 1), only64: true},

		"b":     {fn: branch(false, false)},
		"ba":    {fn: branch(true, false)},
		"bl":    {fn: branch(false, true)},
		"bla":   {fn: branch(true, true)},
		"bc":    {fn: (*inst).bc},
		"bdnz":  {fn: decrement(16)},
		"bdz":   {fn: decrement(18)},
		"blr":   {fn: fixed(0x4e800020)},
		"blrl":  {fn: fixed(0x4e800021)},
		"bctr":  {fn: fixed(0x4e800420)},
		"bctrl": {fn: fixed(0x4e800421)},

		"mtlr":  {fn: moveSPR(sprLR, true)},
		"mflr":  {fn: moveSPR(sprLR, false)},
		"mtctr": {fn: moveSPR(sprCTR, true)},
		"mfctr": {fn: moveSPR(sprCTR, false)},
		"mtxer": {fn: moveSPR(sprXER, true)},
		"mfxer": {fn: moveSPR(sprXER, false)},
		"mtspr": {fn: (*inst).mtspr},
		"mfspr": {fn: (*inst).mfspr},
		"mfcr":  {fn: (*inst).mfcr},

		"sc":    {fn: fixed(opSC | 2)},
		"nop":   {fn: fixed(opORI)},
		"trap":  {fn: fixed(0x7fe00008)},
		"sync":  {fn: fixed(0x7c0004ac)},
		"isync": {fn: fixed(0x4c00012c)},
		"eieio": {fn: fixed(0x7c0006ac)},
	}

	// XO-form arithmetic, "op rt, ra, rb", with the record "." and overflow "o" variants.
	for name, xo := range map[string]uint32{
		"add": 266, "addc": 10, "adde": 138, "subf": 40, "subfc": 8, "subfe": 136, "mullw": 235, "mulhw": 75,
		"mulhwu": 11, "divw": 491, "divwu": 459,
	} {
		addXO(name, xo, false)
	}
	for name, xo := range map[string]uint32{"mulld": 233, "mulhd": 73, "mulhdu": 9, "divd": 489, "divdu": 457} {
		addXO(name, xo, true)
	}
	// sub rt, ra, rb is subf rt, rb, ra.
	for _, suffix := range []string{"", ".", "o", "o."} {
		h := handlers["subf"+suffix]
		handlers["sub"+suffix] = handler{fn: func(in *inst) (uint32, error) {
			if len(in.st.Operands) == 3 {
				ops := []asm.Operand{in.st.Operands[0], in.st.Operands[2], in.st.Operands[1]}
				in = in.with(ops)
			}
			return h.fn(in)
		}}
	}

	// X-form logical and shift, "op ra, rs, rb".
	for name, xo := range map[string]uint32{
		"and": 28, "andc": 60, "or": 444, "orc": 412, "xor": 316, "nor": 124, "nand": 476, "eqv": 284,
		"slw": 24, "srw": 536, "sraw": 792,
	} {
		handlers[name] = handler{fn: logical(xo, false)}
		handlers[name+"."] = handler{fn: logical(xo, true)}
	}
	for name, xo := range map[string]uint32{"sld": 27, "srd": 539, "srad": 794} {
		handlers[name] = handler{fn: logical(xo, false), only64: true}
		handlers[name+"."] = handler{fn: logical(xo, true), only64: true}
	}
	// X-form unary, "op ra, rs".
	for name, xo := range map[string]uint32{"extsb": 954, "extsh": 922, "cntlzw": 26} {
		handlers[name] = handler{fn: unary(xo, false)}
		handlers[name+"."] = handler{fn: unary(xo, true)}
	}
	handlers["extsw"] = handler{fn: unary(986, false), only64: true}
	handlers["cntlzd"] = handler{fn: unary(58, false), only64: true}

	// Conditional branches: beq, beql, beqa, beqlr, bnectr...
	for cond, bits := range conditions {
		bo, bit := bits[0], bits[1]
		handlers["b"+cond] = handler{fn: conditional(bo, bit, false, false)}
		handlers["b"+cond+"l"] = handler{fn: conditional(bo, bit, false, true)}
		handlers["b"+cond+"a"] = handler{fn: conditional(bo, bit, true, false)}
		handlers["b"+cond+"lr"] = handler{fn: conditionalRegister(bo, bit, 16)}
		handlers["b"+cond+"ctr"] = handler{fn: conditionalRegister(bo, bit, 528)}
	}
}

func addXO(name string, xo uint32, only64 bool) {
	handlers[name] = handler{fn: xoForm(xo, 3, false), only64: only64}
	handlers[name+"."] = handler{fn: xoForm(xo, 3, true), only64: only64}
	handlers[name+"o"] = handler{fn: overflow(xoForm(xo, 3, false)), only64: only64}
	handlers[name+"o."] = handler{fn: overflow(xoForm(xo, 3, true)), only64: only64}
}

// with returns a copy of the instruction with different operands.
func (in *inst) with(ops []asm.Operand) *inst {
	st := *in.st
	st.Operands = ops
	cp := *in
	cp.st = &st
	return &cp
}

func record(rc bool) uint32 {
	if rc {
		return 1
	}
	return 0
}

func fixed(word uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		if _, err := in.operands(0); err != nil {
			return 0, err
		}
		return word, nil
	}
}

// immediate encodes the D-form "op rt, ra, si". negate implements the subi family.
func immediate(op uint32, negate bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops[:2])
		if err != nil {
			return 0, err
		}
		v, err := in.imm(&ops[2])
		if err != nil {
			return 0, err
		}
		if negate {
			v = -v
		}
		si, err := in.halfword(v, op == opADDIS)
		if err != nil {
			return 0, err
		}
		return op | r[0]<<21 | r[1]<<16 | si, nil
	}
}

// halfword checks a signed 16-bit immediate. Upper immediates (addis, lis) also accept unsigned values.
func (in *inst) halfword(v int64, upper bool) (uint32, error) {
	if !asm.FitsSigned(v, 16) && !(upper && asm.FitsUnsigned(v, 16)) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
	}
	return uint32(v) & 0xffff, nil
}

// loadImmediate encodes li and lis, which are addi and addis from r0 (read as zero).
func loadImmediate(op uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(2)
		if err != nil {
			return 0, err
		}
		rt, err := in.field(&ops[0], gpr)
		if err != nil {
			return 0, err
		}
		v, err := in.imm(&ops[1])
		if err != nil {
			return 0, err
		}
		si, err := in.halfword(v, op == opADDIS)
		if err != nil {
			return 0, err
		}
		return op | rt<<21 | si, nil
	}
}

// la rt, d(ra) is addi rt, ra, d.
func (in *inst) la() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rt, err := in.field(&ops[0], gpr)
	if err != nil {
		return 0, err
	}
	ra, d, err := in.mem(&ops[1], 1)
	if err != nil {
		return 0, err
	}
	return opADDI | rt<<21 | ra<<16 | d, nil
}

// logicalImmediate encodes "op ra, rs, ui" where the immediate is zero-extended.
func logicalImmediate(op uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops[:2])
		if err != nil {
			return 0, err
		}
		ui, err := in.immRange(&ops[2], 0, 0xffff)
		if err != nil {
			return 0, err
		}
		return op | r[1]<<21 | r[0]<<16 | ui, nil
	}
}

// xoForm encodes "op rt, ra[, rb]" with nregs registers.
func xoForm(xo uint32, nregs int, rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(nregs)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops)
		if err != nil {
			return 0, err
		}
		word := opX | r[0]<<21 | r[1]<<16 | xo<<1 | record(rc)
		if nregs == 3 {
			word |= r[2] << 11
		}
		return word, nil
	}
}

// overflow sets the OE bit.
func overflow(fn func(in *inst) (uint32, error)) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		w, err := fn(in)
		return w | 1<<10, err
	}
}

// logical encodes the X-form "op ra, rs, rb".
func logical(xo uint32, rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops)
		if err != nil {
			return 0, err
		}
		return opX | r[1]<<21 | r[0]<<16 | r[2]<<11 | xo<<1 | record(rc), nil
	}
}

// unary encodes the X-form "op ra, rs".
func unary(xo uint32, rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(2)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops)
		if err != nil {
			return 0, err
		}
		return opX | r[1]<<21 | r[0]<<16 | xo<<1 | record(rc), nil
	}
}

// mr ra, rs is or ra, rs, rs.
func (in *inst) mr() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	r, err := in.gprs(ops)
	if err != nil {
		return 0, err
	}
	return opX | r[1]<<21 | r[0]<<16 | r[1]<<11 | 444<<1 | record(in.st.Mnemonic == "mr."), nil
}

// not ra, rs is nor ra, rs, rs.
func (in *inst) not() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	r, err := in.gprs(ops)
	if err != nil {
		return 0, err
	}
	return opX | r[1]<<21 | r[0]<<16 | r[1]<<11 | 124<<1, nil
}

// shiftImmediate encodes srawi ra, rs, sh.
func shiftImmediate(xo uint32, rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops[:2])
		if err != nil {
			return 0, err
		}
		sh, err := in.immRange(&ops[2], 0, 31)
		if err != nil {
			return 0, err
		}
		return opX | r[1]<<21 | r[0]<<16 | sh<<11 | xo<<1 | record(rc), nil
	}
}

func rotateWord(ra, rs, sh, mb, me uint32, rc bool) uint32 {
	return opRLWINM | rs<<21 | ra<<16 | sh<<11 | mb<<6 | me<<1 | record(rc)
}

// rlwinm encodes "rlwinm ra, rs, sh, mb, me".
func rlwinm(rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(5)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops[:2])
		if err != nil {
			return 0, err
		}
		var f [3]uint32
		for i := range f {
			if f[i], err = in.immRange(&ops[2+i], 0, 31); err != nil {
				return 0, err
			}
		}
		return rotateWord(r[0], r[1], f[0], f[1], f[2], rc), nil
	}
}

// rotateAlias encodes the rlwinm based shifts "op ra, rs, n" given the mapping of n to sh, mb and me.
func rotateAlias(fields func(n uint32) (sh, mb, me uint32), rc bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops[:2])
		if err != nil {
			return 0, err
		}
		n, err := in.immRange(&ops[2], 0, 31)
		if err != nil {
			return 0, err
		}
		sh, mb, me := fields(n)
		return rotateWord(r[0], r[1], sh, mb, me, rc), nil
	}
}

// loadStore encodes the D and DS-form "op rt, d(ra)". align is 4 for DS-forms whose low bits hold the extended
// opcode, already part of op.
func loadStore(op uint32, align int64) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(2)
		if err != nil {
			return 0, err
		}
		rt, err := in.field(&ops[0], gpr)
		if err != nil {
			return 0, err
		}
		ra, d, err := in.mem(&ops[1], align)
		if err != nil {
			return 0, err
		}
		return op | rt<<21 | ra<<16 | d, nil
	}
}

// indexed encodes the X-form "op rt, ra, rb" loads and stores.
func indexed(xo uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(3)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops)
		if err != nil {
			return 0, err
		}
		return opX | r[0]<<21 | r[1]<<16 | r[2]<<11 | xo<<1, nil
	}
}

// crField decodes an optional leading condition register field and returns the remaining operands.
func (in *inst) crField(ops []asm.Operand, n int) (uint32, []asm.Operand, error) {
	switch len(ops) {
	case n:
		return 0, ops, nil
	case n + 1:
		bf, err := in.field(&ops[0], crf)
		return bf, ops[1:], err
	}
	return 0, nil, asm.ErrorOperands(in.st)
}

// compareImmediate encodes "cmpwi [bf,] ra, si". l selects doubleword comparison.
func compareImmediate(op, l uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		bf, ops, err := in.crField(in.st.Operands, 2)
		if err != nil {
			return 0, err
		}
		ra, err := in.field(&ops[0], gpr)
		if err != nil {
			return 0, err
		}
		v, err := in.imm(&ops[1])
		if err != nil {
			return 0, err
		}
		var ok bool
		if op == opCMPLI {
			ok = asm.FitsUnsigned(v, 16)
		} else {
			ok = asm.FitsSigned(v, 16)
		}
		if !ok {
			return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: value %d out of range", in.st, v)
		}
		return op | bf<<23 | l<<21 | ra<<16 | uint32(v)&0xffff, nil
	}
}

// compare encodes "cmpw [bf,] ra, rb".
func compare(xo, l uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		bf, ops, err := in.crField(in.st.Operands, 2)
		if err != nil {
			return 0, err
		}
		r, err := in.gprs(ops)
		if err != nil {
			return 0, err
		}
		return opX | bf<<23 | l<<21 | r[0]<<16 | r[1]<<11 | xo<<1, nil
	}
}

// displacement returns the branch field for target: the address itself when absolute, otherwise the offset from
// the instruction. Both must be word aligned and fit bits.
func (in *inst) displacement(op *asm.Operand, bits uint, absolute bool) (uint32, error) {
	if !op.IsImm() {
		return 0, asm.ErrorOperands(in.st)
	}
	target, resolved, err := in.ctx.Eval(op.Expr)
	if err != nil || !resolved {
		return 0, err
	}
	off := target
	if !absolute {
		off -= int64(in.ctx.Address)
	}
	if off&3 != 0 || !asm.FitsSigned(off, bits) {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
	}
	return uint32(off) & (1<<bits - 1), nil
}

func linkBits(absolute, link bool) uint32 {
	var w uint32
	if absolute {
		w |= 2
	}
	if link {
		w |= 1
	}
	return w
}

// branch encodes the I-form b, ba, bl and bla.
func branch(absolute, link bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(1)
		if err != nil {
			return 0, err
		}
		li, err := in.displacement(&ops[0], 26, absolute)
		if err != nil {
			return 0, err
		}
		return opB | li | linkBits(absolute, link), nil
	}
}

// conditional encodes the B-form "bcc [crN,] target".
func conditional(bo, bit uint32, absolute, link bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		cr, ops, err := in.crField(in.st.Operands, 1)
		if err != nil {
			return 0, err
		}
		bd, err := in.displacement(&ops[0], 16, absolute)
		if err != nil {
			return 0, err
		}
		return opBC | bo<<21 | (cr*4+bit)<<16 | bd | linkBits(absolute, link), nil
	}
}

// conditionalRegister encodes the XL-form "bcclr [crN]" and "bccctr [crN]".
func conditionalRegister(bo, bit, xo uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		cr, _, err := in.crField(in.st.Operands, 0)
		if err != nil {
			return 0, err
		}
		return opXL | bo<<21 | (cr*4+bit)<<16 | xo<<1, nil
	}
}

// decrement encodes bdnz and bdz.
func decrement(bo uint32) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(1)
		if err != nil {
			return 0, err
		}
		bd, err := in.displacement(&ops[0], 16, false)
		if err != nil {
			return 0, err
		}
		return opBC | bo<<21 | bd, nil
	}
}

// bc encodes "bc bo, bi, target".
func (in *inst) bc() (uint32, error) {
	ops, err := in.operands(3)
	if err != nil {
		return 0, err
	}
	bo, err := in.immRange(&ops[0], 0, 31)
	if err != nil {
		return 0, err
	}
	bi, err := in.immRange(&ops[1], 0, 31)
	if err != nil {
		return 0, err
	}
	bd, err := in.displacement(&ops[2], 16, false)
	if err != nil {
		return 0, err
	}
	return opBC | bo<<21 | bi<<16 | bd, nil
}

// sprField swaps the halves of a special purpose register number as the instruction expects.
func sprField(spr uint32) uint32 {
	return (spr&0x1f)<<5 | spr>>5
}

func moveSPRWord(rs, spr uint32, to bool) uint32 {
	xo := uint32(339)
	if to {
		xo = 467
	}
	return opX | rs<<21 | sprField(spr)<<11 | xo<<1
}

// moveSPR encodes mtlr, mflr and friends.
func moveSPR(spr uint32, to bool) func(in *inst) (uint32, error) {
	return func(in *inst) (uint32, error) {
		ops, err := in.operands(1)
		if err != nil {
			return 0, err
		}
		r, err := in.field(&ops[0], gpr)
		if err != nil {
			return 0, err
		}
		return moveSPRWord(r, spr, to), nil
	}
}

// mtspr encodes "mtspr spr, rs".
func (in *inst) mtspr() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	spr, err := in.immRange(&ops[0], 0, 1023)
	if err != nil {
		return 0, err
	}
	rs, err := in.field(&ops[1], gpr)
	if err != nil {
		return 0, err
	}
	return moveSPRWord(rs, spr, true), nil
}

// mfspr encodes "mfspr rt, spr".
func (in *inst) mfspr() (uint32, error) {
	ops, err := in.operands(2)
	if err != nil {
		return 0, err
	}
	rt, err := in.field(&ops[0], gpr)
	if err != nil {
		return 0, err
	}
	spr, err := in.immRange(&ops[1], 0, 1023)
	if err != nil {
		return 0, err
	}
	return moveSPRWord(rt, spr, false), nil
}

func (in *inst) mfcr() (uint32, error) {
	ops, err := in.operands(1)
	if err != nil {
		return 0, err
	}
	rt, err := in.field(&ops[0], gpr)
	if err != nil {
		return 0, err
	}
	return opX | rt<<21 | 19<<1, nil
}
