package systemz

import (
	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

type handler func(in *inst) error

// Opcodes of the branches relaxation switches between.
const (
	opBRC  = 0xa74
	opBRCL = 0xc04
	opBCR  = 0x07
	opBC   = 0x47
)

// masks are the condition code masks of the extended branch mnemonics.
var masks = map[string]uint32{
	"": 15, "o": 1, "h": 2, "p": 2, "nle": 3, "l": 4, "m": 4, "nhe": 5, "lh": 6, "ne": 7, "nz": 7,
	"e": 8, "z": 8, "nlh": 9, "he": 10, "nl": 11, "nm": 11, "le": 12, "nh": 13, "np": 13, "no": 14,
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"svc":  (*inst).svc,
		"nopr": fixed(0x0700),
		"nop":  (*inst).nop,
		"bcr":  (*inst).bcr,
		"bc":   (*inst).bc,
		"brc":  (*inst).brc,
		"brcl": (*inst).brcl,
	}

	for name, op := range map[string]uint32{
		"lr": 0x18, "ar": 0x1a, "sr": 0x1b, "nr": 0x14, "or": 0x16, "xr": 0x17, "cr": 0x19, "clr": 0x15,
		"alr": 0x1e, "slr": 0x1f, "mr": 0x1c, "dr": 0x1d, "lpr": 0x10, "lnr": 0x11, "ltr": 0x12, "lcr": 0x13,
		"basr": 0x0d,
	} {
		handlers[name] = rr(op, registers)
	}
	for name, op := range map[string]uint32{"ler": 0x38, "ldr": 0x28} {
		handlers[name] = rr(op, fpRegisters)
	}
	for name, op := range map[string]uint32{
		"lgr": 0xb904, "agr": 0xb908, "sgr": 0xb909, "algr": 0xb90a, "slgr": 0xb90b, "msgr": 0xb90c,
		"dsgr": 0xb90d, "lpgr": 0xb900, "lngr": 0xb901, "ltgr": 0xb902, "lcgr": 0xb903, "lgfr": 0xb914,
		"llgfr": 0xb916, "agfr": 0xb918, "sgfr": 0xb919, "cgr": 0xb920, "clgr": 0xb921, "ngr": 0xb980,
		"ogr": 0xb981, "xgr": 0xb982, "flogr": 0xb983, "msr": 0xb252, "lrvr": 0xb91f, "lrvgr": 0xb90f,
		"lgbr": 0xb906, "lghr": 0xb907, "lbr": 0xb926, "lhr": 0xb927, "llgcr": 0xb984, "llghr": 0xb985,
		"llcr": 0xb994, "llhr": 0xb995,
	} {
		handlers[name] = rre(op, registers)
	}
	for name, op := range map[string]uint32{
		"aebr": 0xb30a, "sebr": 0xb30b, "meebr": 0xb317, "debr": 0xb30d, "cebr": 0xb309,
		"adbr": 0xb31a, "sdbr": 0xb31b, "mdbr": 0xb31c, "ddbr": 0xb31d, "cdbr": 0xb319,
	} {
		handlers[name] = rre(op, fpRegisters)
	}

	for name, op := range map[string]uint32{
		"lhi": 0xa78, "lghi": 0xa79, "ahi": 0xa7a, "aghi": 0xa7b, "mhi": 0xa7c, "mghi": 0xa7d, "chi": 0xa7e,
		"cghi": 0xa7f,
	} {
		handlers[name] = ri(op, true)
	}
	for name, op := range map[string]uint32{
		"tmlh": 0xa70, "tmll": 0xa71, "tmhh": 0xa72, "tmhl": 0xa73,
		"iihh": 0xa50, "iihl": 0xa51, "iilh": 0xa52, "iill": 0xa53, "nihh": 0xa54, "nihl": 0xa55,
		"nilh": 0xa56, "nill": 0xa57, "oihh": 0xa58, "oihl": 0xa59, "oilh": 0xa5a, "oill": 0xa5b,
		"llihh": 0xa5c, "llihl": 0xa5d, "llilh": 0xa5e, "llill": 0xa5f,
	} {
		handlers[name] = ri(op, false)
	}
	for name, op := range map[string]uint32{
		"lgfi": 0xc01, "msgfi": 0xc20, "msfi": 0xc21, "agfi": 0xc28, "afi": 0xc29, "cgfi": 0xc2c, "cfi": 0xc2d,
	} {
		handlers[name] = ril(op, true)
	}
	for name, op := range map[string]uint32{
		"xihf": 0xc06, "xilf": 0xc07, "iihf": 0xc08, "iilf": 0xc09, "nihf": 0xc0a, "nilf": 0xc0b,
		"oihf": 0xc0c, "oilf": 0xc0d, "llihf": 0xc0e, "llilf": 0xc0f, "slgfi": 0xc24, "slfi": 0xc25,
		"algfi": 0xc2a, "alfi": 0xc2b, "clgfi": 0xc2e, "clfi": 0xc2f,
	} {
		handlers[name] = ril(op, false)
	}
	for name, op := range map[string]uint32{
		"larl": 0xc00, "brasl": 0xc05, "lgrl": 0xc48, "lrl": 0xc4d, "stgrl": 0xc4b, "strl": 0xc4f,
	} {
		handlers[name] = rilRelative(op)
	}
	for name, op := range map[string]uint32{"bras": 0xa75, "brct": 0xa76, "brctg": 0xa77} {
		handlers[name] = riRelative(op)
	}

	for name, op := range map[string]uint32{
		"l": 0x58, "st": 0x50, "a": 0x5a, "s": 0x5b, "c": 0x59, "la": 0x41, "lh": 0x48, "sth": 0x40, "stc": 0x42,
		"ic": 0x43, "n": 0x54, "o": 0x56, "x": 0x57, "cl": 0x55, "m": 0x5c, "ms": 0x71, "ah": 0x4a, "sh": 0x4b,
		"ch": 0x49, "mh": 0x4c, "al": 0x5e, "sl": 0x5f, "ex": 0x44, "bal": 0x45, "bas": 0x4d,
	} {
		handlers[name] = rx(op, registers)
	}
	for name, op := range map[string]uint32{"le": 0x78, "ld": 0x68, "ste": 0x70, "std": 0x60} {
		handlers[name] = rx(op, fpRegisters)
	}
	for name, op := range map[string]uint32{
		"lg": 0xe304, "lgf": 0xe314, "lgh": 0xe315, "llgf": 0xe316, "ag": 0xe308, "sg": 0xe309, "alg": 0xe30a,
		"slg": 0xe30b, "msg": 0xe30c, "dsg": 0xe30d, "lrvg": 0xe30f, "lt": 0xe312, "ltg": 0xe302, "lrv": 0xe31e,
		"cg": 0xe320, "clg": 0xe321, "stg": 0xe324, "strv": 0xe33e, "sty": 0xe350, "msy": 0xe351, "ly": 0xe358,
		"cy": 0xe359, "ay": 0xe35a, "sy": 0xe35b, "ny": 0xe354, "cly": 0xe355, "oy": 0xe356, "xy": 0xe357,
		"aly": 0xe35e, "sly": 0xe35f, "sthy": 0xe370, "lay": 0xe371, "stcy": 0xe372, "icy": 0xe373,
		"lb": 0xe376, "lgb": 0xe377, "lhy": 0xe378, "ng": 0xe380, "og": 0xe381, "xg": 0xe382, "llgc": 0xe390,
		"llgh": 0xe391, "llc": 0xe394, "llh": 0xe395,
	} {
		handlers[name] = rxy(op, registers)
	}
	for name, op := range map[string]uint32{"ley": 0xed64, "ldy": 0xed65, "stey": 0xed66, "stdy": 0xed67} {
		handlers[name] = rxy(op, fpRegisters)
	}
	for name, op := range map[string]uint32{"stm": 0x90, "lm": 0x98, "cs": 0xba, "cds": 0xbb} {
		handlers[name] = rs(op)
	}
	for name, op := range map[string]uint32{
		"srl": 0x88, "sll": 0x89, "sra": 0x8a, "sla": 0x8b, "srdl": 0x8c, "sldl": 0x8d, "srda": 0x8e, "slda": 0x8f,
	} {
		handlers[name] = shift(op)
	}
	for name, op := range map[string]uint32{
		"lmg": 0xeb04, "srag": 0xeb0a, "slag": 0xeb0b, "srlg": 0xeb0c, "sllg": 0xeb0d, "rllg": 0xeb1c,
		"rll": 0xeb1d, "stmg": 0xeb24, "csg": 0xeb30, "cdsg": 0xeb3e, "stmy": 0xeb90, "lmy": 0xeb98,
		"srak": 0xebdc, "slak": 0xebdd, "srlk": 0xebde, "sllk": 0xebdf,
	} {
		handlers[name] = rsy(op)
	}
	for name, op := range map[string]uint32{"tm": 0x91, "mvi": 0x92, "ni": 0x94, "cli": 0x95, "oi": 0x96, "xi": 0x97} {
		handlers[name] = si(op)
	}

	for cond, mask := range masks {
		handlers["j"+cond] = conditionalRelative(mask, false)
		handlers["jg"+cond] = conditionalRelative(mask, true)
		handlers["b"+cond+"r"] = conditionalRegister(mask)
		handlers["b"+cond] = conditionalStorage(mask)
	}
}

func fixed(halfwords ...uint32) handler {
	return func(in *inst) error {
		if _, err := in.operands(0); err != nil {
			return err
		}
		in.emit(halfwords...)
		return nil
	}
}

// pair decodes the two registers of the RR and RRE formats.
func (in *inst) pair(table map[string]uint32) (r1, r2 uint32, err error) {
	ops, err := in.operands(2)
	if err != nil {
		return
	}
	if r1, err = in.reg(&ops[0], table); err != nil {
		return
	}
	r2, err = in.reg(&ops[1], table)
	return
}

// rr encodes "op r1, r2" in two bytes.
func rr(op uint32, table map[string]uint32) handler {
	return func(in *inst) error {
		r1, r2, err := in.pair(table)
		if err != nil {
			return err
		}
		in.emit(op<<8 | r1<<4 | r2)
		return nil
	}
}

// rre encodes "op r1, r2" with a 16-bit opcode.
func rre(op uint32, table map[string]uint32) handler {
	return func(in *inst) error {
		r1, r2, err := in.pair(table)
		if err != nil {
			return err
		}
		in.emit(op, r1<<4|r2)
		return nil
	}
}

// head is the first halfword of the RI and RIL formats, whose 12-bit opcode is split around r1.
func head(op, r1 uint32) uint32 {
	return op>>4<<8 | r1<<4 | op&0xf
}

// ri encodes "op r1, i2" with a 16-bit immediate.
func ri(op uint32, signed bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		i2, err := in.imm(&ops[1], 16, signed)
		if err != nil {
			return err
		}
		in.emit(head(op, r1), i2)
		return nil
	}
}

// ril encodes "op r1, i2" with a 32-bit immediate.
func ril(op uint32, signed bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		i2, err := in.imm(&ops[1], 32, signed)
		if err != nil {
			return err
		}
		in.emit(head(op, r1), i2>>16, i2&0xffff)
		return nil
	}
}

// riRelative encodes "op r1, target" with a 16-bit halfword offset.
func riRelative(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		return in.relative16(op, r1, &ops[1], false)
	}
}

// rilRelative encodes "op r1, target" with a 32-bit halfword offset.
func rilRelative(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		return in.relative32(op, r1, &ops[1])
	}
}

// relative16 emits an RI branch. A relaxable branch which does not reach asks the driver for the long form.
func (in *inst) relative16(op, r1 uint32, target *asm.Operand, relaxable bool) error {
	off, resolved, err := in.relative(target)
	if err != nil {
		return err
	}
	if resolved && !asm.FitsSigned(off, 16) {
		if relaxable {
			return asm.ErrRelax
		}
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
	}
	in.emit(head(op, r1), uint32(off)&0xffff)
	return nil
}

func (in *inst) relative32(op, r1 uint32, target *asm.Operand) error {
	off, _, err := in.relative(target)
	if err != nil {
		return err
	}
	if !asm.FitsSigned(off, 32) {
		return asm.Errorf(api.ErrAsmInvalidOperand, "%s: branch target out of range", in.st)
	}
	in.emit(head(op, r1), uint32(off)>>16&0xffff, uint32(off)&0xffff)
	return nil
}

// rx encodes "op r1, D(X,B)".
func rx(op uint32, table map[string]uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.reg(&ops[0], table)
		if err != nil {
			return err
		}
		x, b, d, err := in.storage(&ops[1], true, false)
		if err != nil {
			return err
		}
		in.emit(op<<8|r1<<4|x, b<<12|uint32(d))
		return nil
	}
}

// longDisplacement splits a 20-bit displacement into the RXY and RSY fields.
func longDisplacement(d int64) (dl, dh uint32) {
	return uint32(d) & 0xfff, uint32(d>>12) & 0xff
}

// rxy encodes "op r1, D(X,B)" with a 20-bit displacement and a 16-bit opcode split across both ends.
func rxy(op uint32, table map[string]uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.reg(&ops[0], table)
		if err != nil {
			return err
		}
		x, b, d, err := in.storage(&ops[1], true, true)
		if err != nil {
			return err
		}
		dl, dh := longDisplacement(d)
		in.emit(op>>8<<8|r1<<4|x, b<<12|dl, dh<<8|op&0xff)
		return nil
	}
}

// rs encodes "op r1, r3, D(B)".
func rs(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		r3, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		_, b, d, err := in.storage(&ops[2], false, false)
		if err != nil {
			return err
		}
		in.emit(op<<8|r1<<4|r3, b<<12|uint32(d))
		return nil
	}
}

// shift encodes the RS shifts "op r1, D(B)" whose shift count is the address.
func shift(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		_, b, d, err := in.storage(&ops[1], false, false)
		if err != nil {
			return err
		}
		in.emit(op<<8|r1<<4, b<<12|uint32(d))
		return nil
	}
}

// rsy encodes "op r1, r3, D(B)" with a 20-bit displacement.
func rsy(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		r1, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		r3, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		_, b, d, err := in.storage(&ops[2], false, true)
		if err != nil {
			return err
		}
		dl, dh := longDisplacement(d)
		in.emit(op>>8<<8|r1<<4|r3, b<<12|dl, dh<<8|op&0xff)
		return nil
	}
}

// si encodes "op D(B), i2" with an 8-bit immediate.
func si(op uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		_, b, d, err := in.storage(&ops[0], false, false)
		if err != nil {
			return err
		}
		if !ops[1].IsImm() {
			return asm.ErrorOperands(in.st)
		}
		v, err := in.ctx.Value(ops[1].Expr)
		if err != nil {
			return err
		}
		if !asm.FitsUnsigned(v, 8) && !asm.FitsSigned(v, 8) {
			return in.errorRange(v)
		}
		in.emit(op<<8|uint32(v)&0xff, b<<12|uint32(d))
		return nil
	}
}

func (in *inst) svc() error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	i, err := in.imm(&ops[0], 8, false)
	if err != nil {
		return err
	}
	in.emit(0x0a00 | i)
	return nil
}

// nop is "bc 0, D(X,B)", with a zero address when written alone.
func (in *inst) nop() error {
	if len(in.st.Operands) == 0 {
		in.emit(opBC<<8, 0)
		return nil
	}
	return conditionalStorage(0)(in)
}

// mask decodes the condition mask operand of bc, bcr, brc and brcl.
func (in *inst) mask(op *asm.Operand) (uint32, error) {
	return in.imm(op, 4, false)
}

func (in *inst) bcr() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	m, err := in.mask(&ops[0])
	if err != nil {
		return err
	}
	r2, err := in.gpr(&ops[1])
	if err != nil {
		return err
	}
	in.emit(opBCR<<8 | m<<4 | r2)
	return nil
}

func (in *inst) bc() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	m, err := in.mask(&ops[0])
	if err != nil {
		return err
	}
	return conditionalStorage(m)(in.with(ops[1:]))
}

func (in *inst) brc() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	m, err := in.mask(&ops[0])
	if err != nil {
		return err
	}
	return conditionalRelative(m, false)(in.with(ops[1:]))
}

func (in *inst) brcl() error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	m, err := in.mask(&ops[0])
	if err != nil {
		return err
	}
	return conditionalRelative(m, true)(in.with(ops[1:]))
}

// with returns a copy of the instruction with different operands.
func (in *inst) with(ops []asm.Operand) *inst {
	st := *in.st
	st.Operands = ops
	cp := *in
	cp.st = &st
	return &cp
}

// conditionalRelative encodes "brc mask, target", switching to brcl when long or relaxed.
func conditionalRelative(mask uint32, long bool) handler {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		if long || in.ctx.Long {
			return in.relative32(opBRCL, mask, &ops[0])
		}
		return in.relative16(opBRC, mask, &ops[0], true)
	}
}

// conditionalRegister encodes "bcr mask, r2".
func conditionalRegister(mask uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		r2, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		in.emit(opBCR<<8 | mask<<4 | r2)
		return nil
	}
}

// conditionalStorage encodes "bc mask, D(X,B)".
func conditionalStorage(mask uint32) handler {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		x, b, d, err := in.storage(&ops[0], true, false)
		if err != nil {
			return err
		}
		in.emit(opBC<<8|mask<<4|x, b<<12|uint32(d))
		return nil
	}
}
