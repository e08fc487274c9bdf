package hexagon

import (
	"github.com/tetratelabs/keystone/internal/asm"
)

var handlers map[string]func(in *inst) error

// predicable are the mnemonics accepting an "if (Pu)" predicate.
var predicable = map[string]bool{"jump": true, "call": true, "jumpr": true}

func init() {
	handlers = map[string]func(in *inst) error{
		"nop":            fixed(0x7f000000),
		"deallocframe":   fixed(0x901e001e),
		"dealloc_return": fixed(0x961e001e),
		"transfer":       transfer,
		"transfer.h":     transferHalf(0x72200000),
		"transfer.l":     transferHalf(0x71200000),
		"add":            add,
		"sub":            sub,
		"and":            logical(0xf1000000, 0x76000000),
		"or":             logical(0xf1200000, 0x76800000),
		"xor":            logical(0xf1600000, 0),
		"mpyi":           logical(0xed000000, 0),
		"cmp.eq":         compare(0xf2000000, 0x75000000, true),
		"cmp.gt":         compare(0xf2400000, 0x75400000, true),
		"cmp.gtu":        compare(0xf2600000, 0x75800000, false),
		"memb":           memory(0b000, 0, true),
		"memub":          memory(0b001, 0, false),
		"memh":           memory(0b010, 1, true),
		"memuh":          memory(0b011, 1, false),
		"memw":           memory(0b100, 2, true),
		"memd":           pair,
		"jump":           branch(0x58000000, 0x5c000000),
		"call":           branch(0x5a000000, 0x5d000000),
		"jumpr":          jumpRegister,
		"callr":          callRegister,
		"allocframe":     allocframe,
	}
}

func fixed(w uint32) func(in *inst) error {
	return func(in *inst) error {
		if _, err := in.operands(0); err != nil {
			return err
		}
		in.emit(w)
		return nil
	}
}

// transfer is "Rd = Rs" or "Rd = #s16".
func transfer(in *inst) error {
	ops, err := in.operands(2)
	if err != nil {
		return err
	}
	d, err := in.gpr(&ops[0])
	if err != nil {
		return err
	}
	if ops[1].IsReg() {
		s, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		in.emit(0x70600000 | s<<16 | d)
		return nil
	}
	i, ext, err := in.extendable(&ops[1], 16)
	if err != nil {
		return err
	}
	in.emit(append(ext, 0x78000000|(i>>14)<<22|(i>>9&0x1f)<<16|(i&0x1ff)<<5|d)...)
	return nil
}

// transferHalf is "Rd.h = #u16" and "Rd.l = #u16".
func transferHalf(op uint32) func(in *inst) error {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		d, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		i, err := in.imm(&ops[1], 16, false)
		if err != nil {
			return err
		}
		in.emit(op | (i>>14)<<22 | d<<16 | i&0x3fff)
		return nil
	}
}

// add is "Rd = add(Rs, Rt)" or "Rd = add(Rs, #s16)".
func add(in *inst) error {
	ops, err := in.operands(3)
	if err != nil {
		return err
	}
	d, err := in.gpr(&ops[0])
	if err != nil {
		return err
	}
	s, err := in.gpr(&ops[1])
	if err != nil {
		return err
	}
	if ops[2].IsReg() {
		t, err := in.gpr(&ops[2])
		if err != nil {
			return err
		}
		in.emit(0xf3000000 | s<<16 | t<<8 | d)
		return nil
	}
	i, ext, err := in.extendable(&ops[2], 16)
	if err != nil {
		return err
	}
	in.emit(append(ext, 0xb0000000|(i>>9)<<21|s<<16|(i&0x1ff)<<5|d)...)
	return nil
}

// sub is "Rd = sub(Rt, Rs)" or "Rd = sub(#s10, Rs)". The encoding names the subtrahend s.
func sub(in *inst) error {
	ops, err := in.operands(3)
	if err != nil {
		return err
	}
	d, err := in.gpr(&ops[0])
	if err != nil {
		return err
	}
	s, err := in.gpr(&ops[2])
	if err != nil {
		return err
	}
	if ops[1].IsReg() {
		t, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		in.emit(0xf3200000 | s<<16 | t<<8 | d)
		return nil
	}
	i, err := in.imm(&ops[1], 10, true)
	if err != nil {
		return err
	}
	in.emit(0x76400000 | (i>>9)<<21 | s<<16 | (i&0x1ff)<<5 | d)
	return nil
}

// logical is a three register operation, or with a #s10 immediate when immediate is non-zero.
func logical(register, immediate uint32) func(in *inst) error {
	return func(in *inst) error {
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		d, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		s, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		if ops[2].IsReg() {
			t, err := in.gpr(&ops[2])
			if err != nil {
				return err
			}
			in.emit(register | s<<16 | t<<8 | d)
			return nil
		}
		if immediate == 0 {
			return asm.ErrorOperands(in.st)
		}
		i, err := in.imm(&ops[2], 10, true)
		if err != nil {
			return err
		}
		in.emit(immediate | (i>>9)<<21 | s<<16 | (i&0x1ff)<<5 | d)
		return nil
	}
}

// compare is "Pd = cmp.xx(Rs, Rt)" or "Pd = cmp.xx(Rs, #imm)": ten bits signed, nine unsigned.
func compare(register, immediate uint32, signed bool) func(in *inst) error {
	return func(in *inst) error {
		ops, err := in.operands(3)
		if err != nil {
			return err
		}
		d, err := in.reg(&ops[0], predicates)
		if err != nil {
			return err
		}
		s, err := in.gpr(&ops[1])
		if err != nil {
			return err
		}
		if ops[2].IsReg() {
			t, err := in.gpr(&ops[2])
			if err != nil {
				return err
			}
			in.emit(register | s<<16 | t<<8 | d)
			return nil
		}
		bits := uint(9)
		if signed {
			bits = 10
		}
		i, err := in.imm(&ops[2], bits, signed)
		if err != nil {
			return err
		}
		in.emit(immediate | (i>>9)<<21 | s<<16 | (i&0x1ff)<<5 | d)
		return nil
	}
}

// memory is a load "Rd = memX(Rs+#off)" or a store "memX(Rs+#off) = Rt". Unsigned accesses only load.
func memory(typ uint32, scale uint, store bool) func(in *inst) error {
	return func(in *inst) error {
		ops, err := in.operands(2)
		if err != nil {
			return err
		}
		if ops[0].IsMem() {
			if !store {
				return asm.ErrorOperands(in.st)
			}
			s, i, err := in.address(&ops[0], scale)
			if err != nil {
				return err
			}
			t, err := in.gpr(&ops[1])
			if err != nil {
				return err
			}
			in.emit(0xa1000000 | typ<<21 | (i>>9)<<25 | s<<16 | (i>>8&1)<<13 | t<<8 | i&0xff)
			return nil
		}
		d, err := in.gpr(&ops[0])
		if err != nil {
			return err
		}
		s, i, err := in.address(&ops[1], scale)
		if err != nil {
			return err
		}
		in.emit(0x91000000 | typ<<21 | (i>>9)<<25 | s<<16 | (i&0x1ff)<<5 | d)
		return nil
	}
}

// pair is memd, which moves a register pair.
func pair(in *inst) error {
	return asm.ErrorMissingFeature(in.st, "register pairs")
}

// branch is "jump #r22:2" and "call #r22:2", or the predicated "#r15:2" forms.
func branch(op, predicated uint32) func(in *inst) error {
	return func(in *inst) error {
		ops, err := in.operands(1)
		if err != nil {
			return err
		}
		if !in.predicated {
			i, err := in.offset(&ops[0], 22)
			if err != nil {
				return err
			}
			in.emit(op | (i>>13)<<16 | (i&0x1fff)<<1)
			return nil
		}
		i, err := in.offset(&ops[0], 15)
		if err != nil {
			return err
		}
		in.emit(predicated | (i>>13)<<22 | in.sense() | (i>>8&0x1f)<<16 | (i>>7&1)<<13 | in.pred<<8 | (i&0x7f)<<1)
		return nil
	}
}

// sense is bit 21 of predicated branches, set for "if (!Pu)".
func (in *inst) sense() uint32 {
	if in.negated {
		return 1 << 21
	}
	return 0
}

func jumpRegister(in *inst) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	s, err := in.gpr(&ops[0])
	if err != nil {
		return err
	}
	if in.predicated {
		in.emit(0x53400000 | in.sense() | s<<16 | in.pred<<8)
	} else {
		in.emit(0x52800000 | s<<16)
	}
	return nil
}

func callRegister(in *inst) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	s, err := in.gpr(&ops[0])
	if err != nil {
		return err
	}
	in.emit(0x50a00000 | s<<16)
	return nil
}

// allocframe is "allocframe(#u11:3)", the frame size in bytes.
func allocframe(in *inst) error {
	ops, err := in.operands(1)
	if err != nil {
		return err
	}
	if !ops[0].IsImm() {
		return asm.ErrorOperands(in.st)
	}
	v, err := in.ctx.Value(ops[0].Expr)
	if err != nil {
		return err
	}
	if v&7 != 0 || !asm.FitsUnsigned(v>>3, 11) {
		return in.errorRange(v)
	}
	in.emit(0xa09d0000 | uint32(v>>3))
	return nil
}
