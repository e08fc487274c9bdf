package syntax

import (
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// hexagonMemory are the memory access functions: the mnemonic is the function name.
var hexagonMemory = map[string]struct{}{
	"memb": {}, "memub": {}, "memh": {}, "memuh": {}, "memw": {}, "memd": {},
}

// hexagonPacket strips the packet braces around a statement, tracking the packet state.
func (p *parser) hexagonPacket(toks []token) ([]token, error) {
	if len(toks) > 0 && toks[0].is("{") {
		if p.packet {
			return nil, asm.Errorf(api.ErrAsmStatToken, "nested packet")
		}
		p.packet, p.packetStart = true, len(p.stmts)
		toks = toks[1:]
	}
	for i, t := range toks {
		if !t.is("}") {
			continue
		}
		if !p.packet {
			return nil, asm.Errorf(api.ErrAsmStatToken, "unexpected '}' outside of packet")
		}
		if i+1 != len(toks) {
			// Hardware loop end markers (":endloop0") change the packet parse bits.
			return nil, asm.Errorf(api.ErrAsmUnsupported, "unsupported packet suffix %q", toks[i+1].text)
		}
		p.closing = true
		toks = toks[:i]
		break
	}
	return toks, nil
}

// closePacket ends the packet if its closing brace was on the current statement.
func (p *parser) closePacket() error {
	if !p.closing {
		return nil
	}
	p.closing, p.packet = false, false
	for i := len(p.stmts) - 1; i >= p.packetStart; i-- {
		if st := p.stmts[i]; st.Kind == asm.KindInstruction {
			st.EndOfPacket = true
			return nil
		}
	}
	return asm.Errorf(api.ErrAsmStatToken, "empty packet")
}

// isHalfRegister reports whether name is the high or low half of a Hexagon register, such as "r0.h".
func (p *parser) isHalfRegister(name string) bool {
	if p.opts.Arch != api.ArchHexagon || len(name) < 3 {
		return false
	}
	switch strings.ToLower(name[len(name)-2:]) {
	case ".h", ".l":
		return p.isRegister(name[:len(name)-2])
	}
	return false
}

// hexagonInstruction parses the algebraic Hexagon syntax into mnemonic and operands:
//
//	Rd = #imm           transfer Rd, imm
//	Rd = Rs             transfer Rd, Rs
//	Rd.h = #imm         transfer.h Rd, imm
//	Rd = add(Rs, #imm)  add Rd, Rs, imm
//	Rd = memw(Rs+#off)  memw Rd, [Rs+off]
//	memw(Rs+#off) = Rt  memw [Rs+off], Rt
//	if (!p0) jump l     jump p0, l (prefix "if!")
func (p *parser) hexagonInstruction(toks []token) error {
	st := &asm.Statement{Kind: asm.KindInstruction}
	if toks[0].isIdent("if") {
		n, err := p.hexagonPredicate(toks, st)
		if err != nil {
			return err
		}
		toks = toks[n:]
		if len(toks) == 0 {
			return asm.Errorf(api.ErrAsmStatToken, "missing instruction after predicate")
		}
	}

	eq := -1
	for i, t := range toks {
		if t.is("=") {
			eq = i
			break
		}
	}
	if eq < 0 {
		return p.hexagonCall(toks, st)
	}
	if eq == 0 || eq == len(toks)-1 {
		return asm.Errorf(api.ErrAsmStatToken, "missing operand around '='")
	}
	lhs, rhs := toks[:eq], toks[eq+1:]

	// Store: memw(Rs+#off) = Rt
	if name := strings.ToLower(lhs[0].text); len(lhs) > 1 && lhs[1].is("(") {
		if _, ok := hexagonMemory[name]; !ok {
			return asm.Errorf(api.ErrAsmInvalidOperand, "invalid store %q", lhs[0].text)
		}
		mem, err := p.hexagonAddress(lhs[1:])
		if err != nil {
			return err
		}
		src, err := p.hexagonValue(rhs)
		if err != nil {
			return err
		}
		st.Mnemonic = name
		st.Operands = append(st.Operands, asm.Operand{Kind: asm.OperandMemory, Mem: mem}, src)
		p.emit(st)
		return nil
	}

	if len(lhs) != 1 || lhs[0].kind != tokIdent {
		return asm.Errorf(api.ErrAsmInvalidOperand, "invalid destination")
	}
	dst := strings.ToLower(lhs[0].text)
	st.Mnemonic = "transfer"
	if p.isHalfRegister(dst) {
		half := len(dst) - 2
		st.Mnemonic += dst[half:]
		dst = dst[:half]
	}
	if !p.isRegister(dst) {
		return asm.Errorf(api.ErrAsmInvalidOperand, "invalid destination register %q", lhs[0].text)
	}
	st.Operands = append(st.Operands, asm.Reg(dst))

	// Rd = fn(args)
	if rhs[0].kind == tokIdent && len(rhs) > 2 && rhs[1].is("(") && rhs[len(rhs)-1].is(")") && !p.isRegister(rhs[0].text) {
		if st.Mnemonic != "transfer" {
			return asm.Errorf(api.ErrAsmInvalidOperand, "invalid destination for %s", rhs[0].text)
		}
		st.Mnemonic = strings.ToLower(rhs[0].text)
		if _, ok := hexagonMemory[st.Mnemonic]; ok {
			mem, err := p.hexagonAddress(rhs[1:])
			if err != nil {
				return err
			}
			st.Operands = append(st.Operands, asm.Operand{Kind: asm.OperandMemory, Mem: mem})
			p.emit(st)
			return nil
		}
		args, err := splitOperands(rhs[2 : len(rhs)-1])
		if err != nil {
			return err
		}
		for _, arg := range args {
			op, err := p.hexagonValue(arg)
			if err != nil {
				return err
			}
			st.Operands = append(st.Operands, op)
		}
		p.emit(st)
		return nil
	}

	src, err := p.hexagonValue(rhs)
	if err != nil {
		return err
	}
	st.Operands = append(st.Operands, src)
	p.emit(st)
	return nil
}

// hexagonPredicate parses "if ([!]Pn)" and returns the number of tokens used.
func (p *parser) hexagonPredicate(toks []token, st *asm.Statement) (int, error) {
	i := 1
	if i >= len(toks) || !toks[i].is("(") {
		return 0, asm.Errorf(api.ErrAsmStatToken, "expected '(' after if")
	}
	i++
	prefix := "if"
	if i < len(toks) && toks[i].is("!") {
		prefix = "if!"
		i++
	}
	if i+1 >= len(toks) || toks[i].kind != tokIdent || !p.isRegister(toks[i].text) || !toks[i+1].is(")") {
		return 0, asm.Errorf(api.ErrAsmInvalidOperand, "invalid predicate")
	}
	st.Prefixes = append(st.Prefixes, prefix)
	st.Operands = append(st.Operands, asm.Reg(strings.ToLower(toks[i].text)))
	return i + 2, nil
}

// hexagonCall parses instructions without an assignment: "jump label", "jumpr r31", "allocframe(#8)", "nop".
func (p *parser) hexagonCall(toks []token, st *asm.Statement) error {
	if toks[0].kind != tokIdent {
		return asm.Errorf(api.ErrAsmStatToken, "unexpected %q, expected instruction", toks[0].text)
	}
	st.Mnemonic = strings.ToLower(toks[0].text)
	rest := toks[1:]
	// Branch hints: jump:nt, jump:t.
	if len(rest) >= 2 && rest[0].is(":") && (rest[1].isIdent("t") || rest[1].isIdent("nt")) {
		rest = rest[2:]
	}
	if len(rest) >= 2 && rest[0].is("(") && rest[len(rest)-1].is(")") {
		rest = rest[1 : len(rest)-1]
	}
	args, err := splitOperands(rest)
	if err != nil {
		return err
	}
	for _, arg := range args {
		op, err := p.hexagonValue(arg)
		if err != nil {
			return err
		}
		st.Operands = append(st.Operands, op)
	}
	p.emit(st)
	return nil
}

// hexagonValue parses a register, "#imm" or a bare expression.
func (p *parser) hexagonValue(toks []token) (asm.Operand, error) {
	if len(toks) == 0 {
		return asm.Operand{}, asm.Errorf(api.ErrAsmInvalidOperand, "missing operand")
	}
	if len(toks) == 1 && toks[0].kind == tokIdent && p.isRegister(toks[0].text) {
		return asm.Reg(strings.ToLower(toks[0].text)), nil
	}
	if toks[0].is("#") {
		toks = toks[1:]
		if len(toks) > 0 && toks[0].is("#") {
			// "##imm" forces a constant extender.
			toks = toks[1:]
		}
	}
	e, err := p.exprOf(toks)
	if err != nil {
		return asm.Operand{}, err
	}
	return asm.Imm(e), nil
}

// hexagonAddress parses "(Rs)", "(Rs+#off)" or "(Rs-#off)".
func (p *parser) hexagonAddress(toks []token) (*asm.Memory, error) {
	if len(toks) < 3 || !toks[0].is("(") || !toks[len(toks)-1].is(")") {
		return nil, asm.Errorf(api.ErrAsmInvalidOperand, "invalid memory operand")
	}
	inner := toks[1 : len(toks)-1]
	if inner[0].kind != tokIdent || !p.isRegister(inner[0].text) {
		return nil, asm.Errorf(api.ErrAsmInvalidOperand, "invalid base register in memory operand")
	}
	mem := &asm.Memory{Base: strings.ToLower(inner[0].text)}
	rest := inner[1:]
	if len(rest) == 0 {
		return mem, nil
	}
	neg := rest[0].is("-")
	if !neg && !rest[0].is("+") {
		return nil, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected %q in memory operand", rest[0].text)
	}
	off, err := p.hexagonValue(rest[1:])
	if err != nil {
		return nil, err
	}
	if off.Kind != asm.OperandImmediate {
		return nil, asm.Errorf(api.ErrAsmMissingFeature, "register offsets are not supported")
	}
	mem.Disp = off.Expr
	if neg {
		mem.Disp = asm.Unary(asm.ExprNeg, off.Expr)
	}
	return mem, nil
}
