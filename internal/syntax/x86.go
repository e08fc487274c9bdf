package syntax

import (
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

var x86Prefixes = map[string]struct{}{
	"lock": {}, "rep": {}, "repe": {}, "repz": {}, "repne": {}, "repnz": {}, "xacquire": {}, "xrelease": {},
}

var x86Segments = map[string]struct{}{"es": {}, "cs": {}, "ss": {}, "ds": {}, "fs": {}, "gs": {}}

// intelSizes are the Intel operand size keywords.
var intelSizes = map[string]int{
	"byte": 1, "word": 2, "dword": 4, "fword": 6, "qword": 8, "tbyte": 10, "tword": 10, "xmmword": 16,
	"oword": 16, "ymmword": 32,
}

// attAliases are AT&T mnemonics which differ from their Intel spelling, with the implied source size.
var attAliases = map[string]struct {
	mnemonic string
	srcSize  int
	dstSize  int
}{
	"movzbw": {"movzx", 1, 2}, "movzbl": {"movzx", 1, 4}, "movzbq": {"movzx", 1, 8},
	"movzwl": {"movzx", 2, 4}, "movzwq": {"movzx", 2, 8},
	"movsbw": {"movsx", 1, 2}, "movsbl": {"movsx", 1, 4}, "movsbq": {"movsx", 1, 8},
	"movswl": {"movsx", 2, 4}, "movswq": {"movsx", 2, 8}, "movslq": {"movsxd", 4, 8},
	"cbtw": {"cbw", 0, 0}, "cwtl": {"cwde", 0, 0}, "cltq": {"cdqe", 0, 0},
	"cwtd": {"cwd", 0, 0}, "cltd": {"cdq", 0, 0}, "cqto": {"cqo", 0, 0},
	"movabsq": {"movabs", 0, 8}, "lcall": {"call", 0, 0}, "ljmp": {"jmp", 0, 0},
}

// x86Instruction parses an x86 instruction in the current dialect.
func (p *parser) x86Instruction(toks []token) error {
	st := &asm.Statement{Kind: asm.KindInstruction}
	for len(toks) > 1 && toks[0].kind == tokIdent {
		name := strings.ToLower(toks[0].text)
		if _, ok := x86Prefixes[name]; !ok {
			break
		}
		st.Prefixes = append(st.Prefixes, name)
		toks = toks[1:]
	}
	if toks[0].kind != tokIdent {
		return asm.Errorf(api.ErrAsmStatToken, "unexpected %q, expected instruction", toks[0].text)
	}
	st.Mnemonic = strings.ToLower(toks[0].text)

	args, err := splitOperands(toks[1:])
	if err != nil {
		return err
	}
	for _, arg := range args {
		var op asm.Operand
		if p.dialect == DialectATT {
			op, err = p.attOperand(arg)
		} else {
			op, err = p.intelOperand(arg)
		}
		if err != nil {
			return err
		}
		st.Operands = append(st.Operands, op)
	}

	if p.dialect == DialectATT {
		p.attCanonical(st)
	}
	p.emit(st)
	return nil
}

// splitOperands splits tokens on commas outside of brackets and parentheses. Empty operands are an error.
func splitOperands(toks []token) ([][]token, error) {
	if len(toks) == 0 {
		return nil, nil
	}
	var ret [][]token
	depth, start := 0, 0
	for i, t := range toks {
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
		case t.is(",") && depth == 0:
			if i == start {
				return nil, asm.Errorf(api.ErrAsmStatToken, "missing operand")
			}
			ret = append(ret, toks[start:i])
			start = i + 1
		}
	}
	if start == len(toks) {
		return nil, asm.Errorf(api.ErrAsmStatToken, "missing operand")
	}
	return append(ret, toks[start:]), nil
}

// exprOf parses toks as one complete expression.
func (p *parser) exprOf(toks []token) (*asm.Expr, error) {
	c := &cursor{toks: toks, p: p}
	e, err := c.expr()
	if err != nil {
		return nil, err
	}
	if !c.eof() {
		return nil, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected %q in operand", c.peek().text)
	}
	return e, nil
}

// fpuRegister recognizes "st(n)" and "st".
func fpuRegister(toks []token) (string, bool) {
	if len(toks) == 0 || !toks[0].isIdent("st") {
		return "", false
	}
	if len(toks) == 1 {
		return "st0", true
	}
	if len(toks) == 4 && toks[1].is("(") && toks[2].kind == tokNumber && len(toks[2].text) == 1 && toks[3].is(")") {
		return "st" + toks[2].text, true
	}
	return "", false
}

func (p *parser) intelOperand(toks []token) (asm.Operand, error) {
	var op asm.Operand
	offset := false
keywords:
	for len(toks) > 0 && toks[0].kind == tokIdent {
		word := strings.ToLower(toks[0].text)
		if size, ok := intelSizes[word]; ok && len(toks) > 1 {
			op.Size = size
			toks = toks[1:]
			if len(toks) > 0 && toks[0].isIdent("ptr") {
				toks = toks[1:]
			}
			continue
		}
		switch word {
		case "short", "near":
		case "far":
			op.Far = true
		case "offset":
			offset = true
		default:
			break keywords
		}
		toks = toks[1:]
	}
	if len(toks) == 0 {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing operand after size")
	}
	if reg, ok := fpuRegister(toks); ok {
		op.Kind, op.Reg = asm.OperandRegister, reg
		return op, nil
	}

	var segment string
	if len(toks) > 2 && toks[1].is(":") && p.isSegment(toks[0]) {
		segment = strings.ToLower(toks[0].text)
		toks = toks[2:]
	}

	bracket := -1
	for i, t := range toks {
		if t.is("[") {
			bracket = i
			break
		}
	}
	if bracket < 0 {
		if len(toks) == 1 && toks[0].kind == tokIdent && p.isRegister(toks[0].text) && segment == "" {
			op.Kind, op.Reg = asm.OperandRegister, strings.ToLower(toks[0].text)
			return op, nil
		}
		e, err := p.exprOf(toks)
		if err != nil {
			return op, err
		}
		if segment != "" || op.Size != 0 && !offset && !op.Far {
			op.Kind, op.Mem = asm.OperandMemory, &asm.Memory{Segment: segment, Disp: e}
			return op, nil
		}
		op.Kind, op.Expr = asm.OperandImmediate, e
		return op, nil
	}

	mem := &asm.Memory{Segment: segment}
	if bracket > 0 {
		// MASM "disp[base]".
		e, err := p.exprOf(toks[:bracket])
		if err != nil {
			return op, err
		}
		mem.Disp = e
	}
	if !toks[len(toks)-1].is("]") {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing ']' in memory operand")
	}
	inner := toks[bracket+1 : len(toks)-1]
	if len(inner) > 2 && inner[1].is(":") && p.isSegment(inner[0]) {
		mem.Segment = strings.ToLower(inner[0].text)
		inner = inner[2:]
	}
	if err := p.intelMemory(inner, mem); err != nil {
		return op, err
	}
	op.Kind, op.Mem = asm.OperandMemory, mem
	return op, nil
}

func (p *parser) isSegment(t token) bool {
	if t.kind != tokIdent {
		return false
	}
	_, ok := x86Segments[strings.ToLower(t.text)]
	return ok
}

// intelMemory parses the terms between brackets: base, index*scale and displacement in any order.
func (p *parser) intelMemory(toks []token, mem *asm.Memory) error {
	if len(toks) == 0 {
		return asm.Errorf(api.ErrAsmInvalidOperand, "empty memory operand")
	}
	if toks[0].isIdent("rel") {
		mem.Base = "rip"
		toks = toks[1:]
	} else if toks[0].isIdent("abs") {
		toks = toks[1:]
	}

	// Split on top level + and -, keeping the sign with the term.
	type term struct {
		neg  bool
		toks []token
	}
	var terms []term
	depth, start, neg := 0, 0, false
	for i := 0; i <= len(toks); i++ {
		if i < len(toks) {
			t := toks[i]
			switch {
			case t.is("("):
				depth++
				continue
			case t.is(")"):
				depth--
				continue
			case !(t.is("+") || t.is("-")) || depth != 0 || i == start:
				continue
			}
			// A sign directly after an operator belongs to the next term.
			if prev := toks[i-1]; prev.kind == tokPunct && !prev.is(")") {
				continue
			}
		}
		terms = append(terms, term{neg: neg, toks: toks[start:i]})
		if i < len(toks) {
			neg = toks[i].is("-")
			start = i + 1
		}
	}

	for _, t := range terms {
		tt := t.toks
		if len(tt) == 0 {
			return asm.Errorf(api.ErrAsmInvalidOperand, "missing term in memory operand")
		}
		switch {
		case len(tt) == 1 && tt[0].kind == tokIdent && p.isRegister(tt[0].text):
			if t.neg {
				return asm.Errorf(api.ErrAsmInvalidOperand, "register %s cannot be subtracted", tt[0].text)
			}
			reg := strings.ToLower(tt[0].text)
			if mem.Base == "" {
				mem.Base = reg
			} else if mem.Index == "" {
				mem.Index, mem.Scale = reg, 1
			} else {
				return asm.Errorf(api.ErrAsmInvalidOperand, "too many registers in memory operand")
			}
			continue
		case len(tt) == 3 && tt[1].is("*") && (tt[0].kind == tokIdent && p.isRegister(tt[0].text) ||
			tt[2].kind == tokIdent && p.isRegister(tt[2].text)):
			reg, scaleTok := tt[0], tt[2]
			if !(reg.kind == tokIdent && p.isRegister(reg.text)) {
				reg, scaleTok = tt[2], tt[0]
			}
			scale, err := p.exprOf([]token{scaleTok})
			if err != nil {
				return err
			}
			if t.neg || mem.Index != "" || !scale.IsConst() {
				return asm.Errorf(api.ErrAsmInvalidOperand, "invalid index in memory operand")
			}
			switch scale.Value {
			case 1, 2, 4, 8:
			default:
				return asm.Errorf(api.ErrAsmInvalidOperand, "invalid scale %d", scale.Value)
			}
			mem.Index, mem.Scale = strings.ToLower(reg.text), int(scale.Value)
			continue
		}
		e, err := p.exprOf(tt)
		if err != nil {
			return err
		}
		switch {
		case mem.Disp == nil && t.neg:
			mem.Disp = asm.Unary(asm.ExprNeg, e)
			if e.Op == asm.ExprConst {
				mem.Disp = asm.Const(-e.Value)
			}
		case mem.Disp == nil:
			mem.Disp = e
		case t.neg:
			mem.Disp = asm.Binary(asm.ExprSub, mem.Disp, e)
		default:
			mem.Disp = asm.Binary(asm.ExprAdd, mem.Disp, e)
		}
	}
	return nil
}

func (p *parser) attOperand(toks []token) (asm.Operand, error) {
	var op asm.Operand
	if toks[0].is("*") {
		op.Indirect = true
		toks = toks[1:]
		if len(toks) == 0 {
			return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing operand after '*'")
		}
	}
	if toks[0].is("$") {
		e, err := p.exprOf(toks[1:])
		if err != nil {
			return op, err
		}
		op.Kind, op.Expr = asm.OperandImmediate, e
		return op, nil
	}

	var segment string
	if len(toks) >= 2 && toks[0].is("%") {
		reg, n, err := p.attRegister(toks)
		if err != nil {
			return op, err
		}
		if n == len(toks) {
			op.Kind, op.Reg = asm.OperandRegister, reg
			return op, nil
		}
		if !toks[n].is(":") {
			return op, asm.Errorf(api.ErrAsmInvalidOperand, "unexpected %q after register", toks[n].text)
		}
		segment = reg
		toks = toks[n+1:]
	}

	mem := &asm.Memory{Segment: segment}
	op.Kind, op.Mem = asm.OperandMemory, mem
	dispToks := toks
	if len(toks) > 0 && toks[len(toks)-1].is(")") {
		// Find the parenthesis opening the base and index part.
		depth := 0
		for i := len(toks) - 1; i >= 0; i-- {
			if toks[i].is(")") {
				depth++
			} else if toks[i].is("(") {
				depth--
				if depth == 0 {
					if next := toks[i+1]; next.is("%") || next.is(",") {
						dispToks = toks[:i]
						if err := p.attBaseIndex(toks[i+1:len(toks)-1], mem); err != nil {
							return op, err
						}
					}
					break
				}
			}
		}
	}
	if len(dispToks) > 0 {
		e, err := p.exprOf(dispToks)
		if err != nil {
			return op, err
		}
		mem.Disp = e
	}
	if mem.Base == "" && mem.Index == "" && mem.Segment == "" {
		mem.Bare = true
	}
	if len(dispToks) == 0 && mem.Base == "" && mem.Index == "" {
		return op, asm.Errorf(api.ErrAsmInvalidOperand, "missing operand")
	}
	return op, nil
}

// attRegister parses "%reg" or "%st(n)" at toks[0] and returns the register and the number of tokens used.
func (p *parser) attRegister(toks []token) (string, int, error) {
	if len(toks) < 2 || toks[1].kind != tokIdent {
		return "", 0, asm.Errorf(api.ErrAsmInvalidOperand, "expected register after '%%'")
	}
	for _, n := range []int{5, 2} {
		if len(toks) >= n {
			if reg, ok := fpuRegister(toks[1:n]); ok {
				return reg, n, nil
			}
		}
	}
	name := strings.ToLower(toks[1].text)
	if !p.isRegister(name) {
		return "", 0, asm.Errorf(api.ErrAsmInvalidOperand, "invalid register %%%s", toks[1].text)
	}
	return name, 2, nil
}

// attBaseIndex parses "%base, %index, scale" with each part optional.
func (p *parser) attBaseIndex(toks []token, mem *asm.Memory) error {
	parts := [][]token{nil}
	for _, t := range toks {
		if t.is(",") {
			parts = append(parts, nil)
			continue
		}
		parts[len(parts)-1] = append(parts[len(parts)-1], t)
	}
	if len(parts) > 3 {
		return asm.Errorf(api.ErrAsmInvalidOperand, "too many parts in memory operand")
	}
	if len(parts[0]) > 0 {
		reg, n, err := p.attRegister(parts[0])
		if err != nil {
			return err
		}
		if n != len(parts[0]) {
			return asm.Errorf(api.ErrAsmInvalidOperand, "invalid base register")
		}
		mem.Base = reg
	}
	if len(parts) > 1 && len(parts[1]) > 0 {
		reg, n, err := p.attRegister(parts[1])
		if err != nil {
			return err
		}
		if n != len(parts[1]) {
			return asm.Errorf(api.ErrAsmInvalidOperand, "invalid index register")
		}
		mem.Index, mem.Scale = reg, 1
	}
	if len(parts) == 3 {
		e, err := p.exprOf(parts[2])
		if err != nil {
			return err
		}
		if !e.IsConst() {
			return asm.Errorf(api.ErrAsmInvalidOperand, "scale must be a constant")
		}
		switch e.Value {
		case 1, 2, 4, 8:
		default:
			return asm.Errorf(api.ErrAsmInvalidOperand, "invalid scale %d", e.Value)
		}
		if mem.Index == "" {
			return asm.Errorf(api.ErrAsmInvalidOperand, "scale without index register")
		}
		mem.Scale = int(e.Value)
	}
	return nil
}

// attCanonical rewrites an AT&T statement into the Intel form understood by the encoder: operands are reversed,
// mnemonic size suffixes become operand sizes and AT&T only mnemonics are renamed.
func (p *parser) attCanonical(st *asm.Statement) {
	for i, j := 0, len(st.Operands)-1; i < j; i, j = i+1, j-1 {
		st.Operands[i], st.Operands[j] = st.Operands[j], st.Operands[i]
	}

	if alias, ok := attAliases[st.Mnemonic]; ok {
		st.Mnemonic = alias.mnemonic
		if alias.srcSize != 0 && len(st.Operands) == 2 && st.Operands[1].Kind == asm.OperandMemory {
			st.Operands[1].Size = alias.srcSize
		}
		if alias.mnemonic == "movabs" && len(st.Operands) == 2 {
			st.Operands[0].Size = alias.dstSize
		}
		if alias.mnemonic == "jmp" || alias.mnemonic == "call" {
			for i := range st.Operands {
				st.Operands[i].Far = true
			}
		}
		return
	}
	if p.isMnemonic(st.Mnemonic) || len(st.Mnemonic) < 2 {
		return
	}
	size := map[byte]int{'b': 1, 'w': 2, 'l': 4, 'q': 8}[st.Mnemonic[len(st.Mnemonic)-1]]
	base := st.Mnemonic[:len(st.Mnemonic)-1]
	if size == 0 || !p.isMnemonic(base) {
		return
	}
	st.Mnemonic = base
	for i := range st.Operands {
		if op := &st.Operands[i]; op.Kind != asm.OperandRegister && op.Size == 0 {
			op.Size = size
		}
	}
}
