package syntax

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// shiftOperators may start an ARM/ARM64 shift or extend operand.
var shiftOperators = map[string]struct{}{
	"lsl": {}, "lsr": {}, "asr": {}, "ror": {}, "rrx": {}, "msl": {},
	"uxtb": {}, "uxth": {}, "uxtw": {}, "uxtx": {}, "sxtb": {}, "sxth": {}, "sxtw": {}, "sxtx": {},
}

// sparcAnnul are the branch suffixes SPARC writes after a comma.
var sparcAnnul = map[string]struct{}{"a": {}, "pt": {}, "pn": {}}

// riscInstruction parses an instruction of the GAS RISC dialects.
func (p *parser) riscInstruction(toks []token) error {
	st := &asm.Statement{Kind: asm.KindInstruction, Mnemonic: strings.ToLower(toks[0].text)}
	toks = toks[1:]
	if p.opts.Arch == api.ArchSPARC {
		for len(toks) >= 2 && toks[0].is(",") && toks[1].kind == tokIdent {
			suffix := strings.ToLower(toks[1].text)
			if _, ok := sparcAnnul[suffix]; !ok {
				break
			}
			st.Mnemonic += "," + suffix
			toks = toks[2:]
		}
	}

	args, err := splitOperands(toks)
	if err != nil {
		return err
	}
	for _, arg := range args {
		op, err := p.riscOperand(arg)
		if err != nil {
			return err
		}
		st.Operands = append(st.Operands, op)
	}
	p.emit(st)
	return nil
}

// riscRegister recognizes a register at toks[0] and returns its name and the number of tokens used.
func (p *parser) riscRegister(toks []token) (string, int, bool) {
	if len(toks) == 0 {
		return "", 0, false
	}
	if (toks[0].is("%") || toks[0].is("$")) && len(toks) > 1 && (toks[1].kind == tokIdent || toks[1].kind == tokNumber) {
		name := strings.ToLower(toks[1].text)
		if toks[0].is("%") && len(toks) > 2 && toks[2].is("(") {
			// %hi(x) and friends.
			return "", 0, false
		}
		if p.isRegister(name) {
			return name, 2, true
		}
		return "", 0, false
	}
	if toks[0].kind == tokIdent && p.isRegister(toks[0].text) {
		return strings.ToLower(toks[0].text), 1, true
	}
	return "", 0, false
}

func (p *parser) riscOperand(toks []token) (asm.Operand, error) {
	var op asm.Operand
	switch {
	case toks[0].is("{"):
		return p.registerList(toks)
	case toks[0].is("["):
		return p.bracketMemory(toks)
	case toks[0].is("#"):
		e, err := p.exprOf(toks[1:])
		if err != nil {
			return op, err
		}
		return asm.Imm(e), nil
	case toks[0].is("="):
		e, err := p.exprOf(toks[1:])
		if err != nil {
			return op, err
		}
		op = asm.Imm(e)
		op.Literal = true
		return op, nil
	case toks[0].kind == tokIdent:
		if _, ok := shiftOperators[strings.ToLower(toks[0].text)]; ok && !p.isRegister(toks[0].text) {
			return p.shiftOperand(toks)
		}
	}

	if reg, n, ok := p.riscRegister(toks); ok {
		switch {
		case n == len(toks):
			return asm.Reg(reg), nil
		case n+1 == len(toks) && toks[n].is("!"):
			op = asm.Reg(reg)
			op.Writeback = true
			return op, nil
		case p.opts.Arch == api.ArchSPARC && (toks[n].is("+") || toks[n].is("-")):
			// jmpl %o7 + 8, %g0
			mem := &asm.Memory{Bare: true}
			if err := p.sparcAddress(toks, mem); err != nil {
				return op, err
			}
			op.Kind, op.Mem = asm.OperandMemory, mem
			return op, nil
		}
	}

	// disp(base) and disp(index, base).
	if last := toks[len(toks)-1]; last.is(")") {
		depth := 0
		for i := len(toks) - 1; i >= 0; i-- {
			if toks[i].is(")") {
				depth++
				continue
			}
			if !toks[i].is("(") {
				continue
			}
			if depth--; depth != 0 {
				continue
			}
			if mem, ok, err := p.parenMemory(toks[:i], toks[i+1:len(toks)-1]); err != nil {
				return op, err
			} else if ok {
				op.Kind, op.Mem = asm.OperandMemory, mem
				return op, nil
			}
			break
		}
	}

	e, err := p.exprOf(toks)
	if err != nil {
		return op, err
	}
	return asm.Imm(e), nil
}

// parenMemory returns a memory operand if inner names registers, or a number base on PPC.
func (p *parser) parenMemory(disp, inner []token) (*asm.Memory, bool, error) {
	parts, err := splitOperands(inner)
	if err != nil || len(parts) == 0 || len(parts) > 2 {
		return nil, false, nil
	}
	regs := make([]string, len(parts))
	for i, part := range parts {
		reg, n, ok := p.riscRegister(part)
		switch {
		case ok && n == len(part):
			regs[i] = reg
		case p.opts.Arch == api.ArchPPC && len(part) == 1 && part[0].kind == tokNumber && len(disp) > 0:
			regs[i] = part[0].text
		default:
			return nil, false, nil
		}
	}
	mem := &asm.Memory{Base: regs[len(regs)-1]}
	if len(regs) == 2 {
		mem.Index = regs[0]
	}
	if len(disp) > 0 {
		e, err := p.exprOf(disp)
		if err != nil {
			return nil, false, err
		}
		mem.Disp = e
	}
	return mem, true, nil
}

// registerList parses "{r0, r2-r4, lr}".
func (p *parser) registerList(toks []token) (asm.Operand, error) {
	op := asm.Operand{Kind: asm.OperandRegisterList}
	end := len(toks) - 1
	if toks[end].is("^") {
		end--
	}
	if end < 1 || !toks[end].is("}") {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing '}' in register list")
	}
	items, err := splitOperands(toks[1:end])
	if err != nil {
		return op, err
	}
	for _, item := range items {
		first, n, ok := p.riscRegister(item)
		if !ok {
			return op, asm.Errorf(api.ErrAsmInvalidOperand, "invalid register in list")
		}
		if n == len(item) {
			op.Regs = append(op.Regs, first)
			continue
		}
		if !item[n].is("-") {
			return op, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected %q in register list", item[n].text)
		}
		last, m, ok := p.riscRegister(item[n+1:])
		if !ok || n+1+m != len(item) {
			return op, asm.Errorf(api.ErrAsmInvalidOperand, "invalid register range")
		}
		regs, err := registerRange(first, last)
		if err != nil {
			return op, err
		}
		op.Regs = append(op.Regs, regs...)
	}
	return op, nil
}

// registerRange expands "r0-r3" into each register. Both ends must share the same prefix.
func registerRange(first, last string) ([]string, error) {
	split := func(s string) (string, int, bool) {
		i := strings.IndexFunc(s, unicode.IsDigit)
		if i <= 0 {
			return "", 0, false
		}
		n, err := strconv.Atoi(s[i:])
		return s[:i], n, err == nil
	}
	fp, fn, ok1 := split(first)
	lp, ln, ok2 := split(last)
	if !ok1 || !ok2 || fp != lp || ln < fn {
		return nil, asm.Errorf(api.ErrAsmInvalidOperand, "invalid register range %s-%s", first, last)
	}
	var ret []string
	for i := fn; i <= ln; i++ {
		ret = append(ret, fp+strconv.Itoa(i))
	}
	return ret, nil
}

// shiftOperand parses "lsl #2", "asr r3", "rrx" or "uxtw".
func (p *parser) shiftOperand(toks []token) (asm.Operand, error) {
	op := asm.Operand{Kind: asm.OperandShift, Shift: strings.ToLower(toks[0].text)}
	rest := toks[1:]
	if len(rest) == 0 {
		return op, nil
	}
	if reg, n, ok := p.riscRegister(rest); ok && n == len(rest) {
		op.Reg = reg
		return op, nil
	}
	if rest[0].is("#") {
		rest = rest[1:]
	}
	e, err := p.exprOf(rest)
	if err != nil {
		return op, err
	}
	op.Expr = e
	return op, nil
}

// bracketMemory parses ARM "[base, #off]!", "[base, -index, lsl #2]" and SPARC "[%reg + off]".
func (p *parser) bracketMemory(toks []token) (asm.Operand, error) {
	op := asm.Operand{Kind: asm.OperandMemory}
	end := len(toks) - 1
	mem := &asm.Memory{}
	if toks[end].is("!") {
		mem.PreIndex = true
		end--
	}
	if end < 1 || !toks[end].is("]") {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing ']' in memory operand")
	}
	op.Mem = mem
	inner := toks[1:end]
	if len(inner) == 0 {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "empty memory operand")
	}

	if p.opts.Arch == api.ArchSPARC {
		return op, p.sparcAddress(inner, mem)
	}

	parts, err := splitOperands(inner)
	if err != nil {
		return op, err
	}
	base, n, ok := p.riscRegister(parts[0])
	if !ok || n != len(parts[0]) {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "invalid base register in memory operand")
	}
	mem.Base = base
	for _, part := range parts[1:] {
		switch {
		case part[0].is("#"):
			if mem.Disp != nil || mem.Index != "" {
				return op, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected offset in memory operand")
			}
			if mem.Disp, err = p.exprOf(part[1:]); err != nil {
				return op, err
			}
		case part[0].kind == tokIdent && isShiftName(part[0].text) && mem.Index != "":
			shift, err := p.shiftOperand(part)
			if err != nil {
				return op, err
			}
			mem.IndexShift = shift.Shift
			if shift.Expr != nil {
				v, ok, err := shift.Expr.Eval(p.constEnv())
				if err != nil || !ok {
					return op, asm.Errorf(api.ErrAsmInvalidOperand, "shift amount must be constant")
				}
				mem.IndexShiftAmount = v
			}
		default:
			neg := false
			reg := part
			if part[0].is("-") || part[0].is("+") {
				neg, reg = part[0].is("-"), part[1:]
			}
			if name, n, ok := p.riscRegister(reg); ok && n == len(reg) {
				if mem.Index != "" || mem.Disp != nil {
					return op, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected index in memory operand")
				}
				mem.Index, mem.IndexNeg = name, neg
				continue
			}
			// ARM64 allows the '#' to be omitted.
			if mem.Disp, err = p.exprOf(part); err != nil {
				return op, err
			}
		}
	}
	return op, nil
}

func isShiftName(s string) bool {
	_, ok := shiftOperators[strings.ToLower(s)]
	return ok
}

// sparcAddress parses "%rs1", "%rs1 + %rs2", "%rs1 + simm13" and "simm13".
func (p *parser) sparcAddress(toks []token, mem *asm.Memory) error {
	base, n, ok := p.riscRegister(toks)
	if !ok {
		e, err := p.exprOf(toks)
		if err != nil {
			return err
		}
		mem.Disp = e
		return nil
	}
	mem.Base = base
	rest := toks[n:]
	if len(rest) == 0 {
		return nil
	}
	if !rest[0].is("+") && !rest[0].is("-") {
		return asm.Errorf(api.ErrAsmInvalidOperand, "unexpected %q in memory operand", rest[0].text)
	}
	if index, m, ok := p.riscRegister(rest[1:]); ok && m == len(rest)-1 && rest[0].is("+") {
		mem.Index = index
		return nil
	}
	e, err := p.exprOf(rest[1:])
	if err != nil {
		return err
	}
	if rest[0].is("-") {
		e = asm.Unary(asm.ExprNeg, e)
	}
	mem.Disp = e
	return nil
}
