package syntax

import (
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// ignoredDirectives are accepted and have no effect on the produced code.
var ignoredDirectives = map[string]struct{}{
	".text": {}, ".data": {}, ".bss": {}, ".section": {}, ".globl": {}, ".global": {}, ".local": {}, ".weak": {},
	".type": {}, ".size": {}, ".file": {}, ".ident": {}, ".hidden": {}, ".protected": {}, ".internal": {},
	".arch": {}, ".cpu": {}, ".fpu": {}, ".syntax": {}, ".thumb_func": {}, ".eabi_attribute": {}, ".loc": {},
	".end": {}, ".previous": {}, ".pushsection": {}, ".popsection": {}, ".abiversion": {}, ".machine": {},
	".option": {}, ".register": {}, ".ent": {}, ".frame": {}, ".mask": {}, ".fmask": {}, ".insn": {},
	".model": {}, ".386": {}, ".486": {}, ".586": {}, ".686": {}, ".x64": {}, ".mmx": {}, ".xmm": {},
	".stack": {}, ".const": {}, ".arch_extension": {}, ".object_arch": {}, ".func": {},
	".endfunc": {}, ".sleb128": {}, ".uleb128": {},
}

// dataWidth returns the element size of a GAS data directive.
func (p *parser) dataWidth(name string) (int, bool) {
	switch name {
	case ".byte":
		return 1, true
	case ".short", ".hword", ".2byte", ".half", ".value":
		return 2, true
	case ".word":
		switch p.opts.Arch {
		case api.ArchX86, api.ArchPPC, api.ArchSystemZ:
			return 2, true
		}
		return 4, true
	case ".long", ".int", ".4byte":
		return 4, true
	case ".quad", ".8byte", ".xword", ".dword":
		return 8, true
	}
	return 0, false
}

// directive parses a statement starting with a '.' directive.
func (p *parser) directive(name string, c *cursor) error {
	if strings.HasPrefix(name, ".cfi_") {
		return nil
	}
	if _, ok := ignoredDirectives[name]; ok {
		return nil
	}
	if width, ok := p.dataWidth(name); ok {
		return p.data(c, width, false)
	}

	switch name {
	case ".ascii", ".asciz", ".string":
		return p.asciiData(c, name != ".ascii")
	case ".float", ".single":
		return p.floats(c, 4)
	case ".double":
		return p.floats(c, 8)
	case ".space", ".skip", ".zero":
		return p.space(c, name == ".zero")
	case ".fill":
		return p.fill(c)
	case ".align":
		switch p.opts.Arch {
		case api.ArchX86, api.ArchSPARC, api.ArchHexagon:
			return p.align(c, false)
		}
		return p.align(c, true)
	case ".balign", ".balignw", ".balignl":
		return p.align(c, false)
	case ".p2align", ".p2alignw", ".p2alignl":
		return p.align(c, true)
	case ".equ", ".set":
		if name == ".set" && p.opts.Arch == api.ArchMIPS && c.peek().kind == tokIdent && c.peekAt(1).kind == tokEOF {
			return p.mipsOption(c.next().text)
		}
		return p.assignment(c, false)
	case ".equiv":
		return p.assignment(c, true)
	case ".reloc":
		return p.reloc(c)
	case ".code16", ".code32", ".code64":
		if p.opts.Arch != api.ArchX86 {
			break
		}
		return p.requireMode(name, map[string]api.Mode{".code16": api.Mode16, ".code32": api.Mode32, ".code64": api.Mode64}[name])
	case ".intel_syntax", ".att_syntax":
		if p.opts.Arch != api.ArchX86 {
			break
		}
		if name == ".intel_syntax" {
			p.dialect = DialectIntel
		} else {
			p.dialect = DialectATT
		}
		return nil
	case ".arm", ".thumb", ".code":
		if p.opts.Arch != api.ArchARM {
			if name == ".code" && p.dialect == DialectMASM {
				return nil
			}
			break
		}
		thumb := name == ".thumb"
		if name == ".code" {
			v, err := p.constExpr(c)
			if err != nil {
				return err
			}
			if v != 16 && v != 32 {
				return asm.Errorf(api.ErrAsmDirectiveValueRange, "invalid operand %d for .code", v)
			}
			thumb = v == 16
		}
		if thumb != p.opts.Mode.Has(api.ModeThumb) {
			return asm.Errorf(api.ErrAsmUnsupported, "%s does not match the engine mode %s", name, p.opts.Mode)
		}
		return nil
	}
	return asm.Errorf(api.ErrAsmDirectiveID, "unknown directive %s", name)
}

func (p *parser) requireMode(name string, m api.Mode) error {
	if !p.opts.Mode.Has(m) {
		return asm.Errorf(api.ErrAsmUnsupported, "%s does not match the engine mode %s", name, p.opts.Mode)
	}
	return nil
}

func (p *parser) mipsOption(opt string) error {
	switch strings.ToLower(opt) {
	case asm.OptionReorder, asm.OptionNoReorder:
		p.emit(&asm.Statement{Kind: asm.KindOption, Name: strings.ToLower(opt)})
	}
	// Other .set options (noat, mips32, push...) do not change the encoding.
	return nil
}

// data parses a comma separated list of values, each stored in width bytes.
func (p *parser) data(c *cursor, width int, allowStrings bool) error {
	st := &asm.Statement{Kind: asm.KindData, Width: width}
	for !c.eof() {
		if t := c.peek(); allowStrings && (t.kind == tokString || t.kind == tokChar && len(t.text) != 1) {
			c.next()
			st.Operands = append(st.Operands, asm.Operand{Kind: asm.OperandString, Str: t.text})
		} else {
			e, err := c.expr()
			if err != nil {
				return err
			}
			st.Operands = append(st.Operands, asm.Imm(e))
		}
		if c.eof() {
			break
		}
		if !c.accept(",") {
			return asm.Errorf(api.ErrAsmDirectiveToken, "unexpected %q in data directive", c.peek().text)
		}
	}
	p.emit(st)
	return nil
}

func (p *parser) asciiData(c *cursor, zero bool) error {
	st := &asm.Statement{Kind: asm.KindData, Width: 1, ZeroTerminated: zero}
	for !c.eof() {
		t := c.next()
		if t.kind != tokString {
			return asm.Errorf(api.ErrAsmDirectiveStr, "expected string, got %q", t.text)
		}
		st.Operands = append(st.Operands, asm.Operand{Kind: asm.OperandString, Str: t.text})
		if !c.eof() && !c.accept(",") {
			return asm.Errorf(api.ErrAsmDirectiveToken, "unexpected %q after string", c.peek().text)
		}
	}
	p.emit(st)
	return nil
}

func (p *parser) floats(c *cursor, width int) error {
	st := &asm.Statement{Kind: asm.KindData, Width: width}
	for !c.eof() {
		neg := false
		if c.accept("-") {
			neg = true
		} else {
			c.accept("+")
		}
		t := c.next()
		if t.kind != tokFloat && t.kind != tokNumber && t.kind != tokIdent {
			return asm.Errorf(api.ErrAsmDirectiveFPoint, "invalid floating point value %q", t.text)
		}
		text := t.text
		// 1.5e+3 lexes as a float followed by "+3" when the exponent has a sign after a number without fraction.
		if (t.kind == tokNumber) && (strings.HasSuffix(text, "e") || strings.HasSuffix(text, "E")) {
			if sign := c.peek(); sign.is("+") || sign.is("-") {
				c.next()
				text += sign.text + c.next().text
			}
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return asm.Errorf(api.ErrAsmDirectiveFPoint, "invalid floating point value %q", text)
		}
		if neg {
			f = -f
		}
		var bits uint64
		if width == 4 {
			bits = uint64(math.Float32bits(float32(f)))
		} else {
			bits = math.Float64bits(f)
		}
		st.Operands = append(st.Operands, asm.Imm(asm.Const(int64(bits))))
		if !c.eof() && !c.accept(",") {
			return asm.Errorf(api.ErrAsmDirectiveToken, "unexpected %q in floating point directive", c.peek().text)
		}
	}
	p.emit(st)
	return nil
}

// space parses ".space size[, fill]".
func (p *parser) space(c *cursor, zero bool) error {
	n, err := c.expr()
	if err != nil {
		return err
	}
	st := &asm.Statement{Kind: asm.KindSpace, Value: n, Width: 1}
	if !zero && c.accept(",") {
		if st.Fill, err = c.expr(); err != nil {
			return err
		}
	}
	if !c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveComma, "expected ',' in directive, got %q", c.peek().text)
	}
	p.emit(st)
	return nil
}

// fill parses ".fill repeat[, size[, value]]".
func (p *parser) fill(c *cursor) error {
	n, err := c.expr()
	if err != nil {
		return err
	}
	st := &asm.Statement{Kind: asm.KindSpace, Value: n, Width: 1}
	if c.accept(",") {
		size, err := p.constExpr(c)
		if err != nil {
			return err
		}
		if size < 0 || size > 8 {
			return asm.Errorf(api.ErrAsmDirectiveValueRange, "invalid fill size %d", size)
		}
		st.Width = int(size)
		if c.accept(",") {
			if st.Fill, err = c.expr(); err != nil {
				return err
			}
		}
	}
	if !c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveComma, "expected ',' in directive, got %q", c.peek().text)
	}
	if st.Width == 0 {
		// A zero size emits nothing.
		st.Value = asm.Const(0)
	}
	p.emit(st)
	return nil
}

// align parses "align[, fill[, max]]". pow2 means the first argument is a power of two exponent.
func (p *parser) align(c *cursor, pow2 bool) error {
	v, err := p.constExpr(c)
	if err != nil {
		return err
	}
	st := &asm.Statement{Kind: asm.KindAlign}
	if pow2 {
		if v < 0 || v > 63 {
			return asm.Errorf(api.ErrAsmDirectiveValueRange, "invalid alignment exponent %d", v)
		}
		st.Align = 1 << uint(v)
	} else {
		if v <= 0 || v&(v-1) != 0 {
			return asm.Errorf(api.ErrAsmDirectiveValueRange, "alignment %d is not a power of two", v)
		}
		st.Align = uint64(v)
	}
	if c.accept(",") {
		if !c.peek().is(",") && !c.eof() {
			if st.Fill, err = c.expr(); err != nil {
				return err
			}
		}
		if c.accept(",") {
			max, err := p.constExpr(c)
			if err != nil {
				return err
			}
			if max < 0 {
				return asm.Errorf(api.ErrAsmDirectiveValueRange, "invalid maximum %d", max)
			}
			st.MaxSkip = uint64(max)
		}
	}
	if !c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveComma, "expected ',' in directive, got %q", c.peek().text)
	}
	p.emit(st)
	return nil
}

// constExpr parses an expression which must be constant now.
func (p *parser) constExpr(c *cursor) (int64, error) {
	e, err := c.expr()
	if err != nil {
		return 0, err
	}
	v, ok, err := e.Eval(p.constEnv())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, asm.Errorf(api.ErrAsmDirectiveToken, "expression %s is not constant", e)
	}
	return v, nil
}

// assignment parses "name, value".
func (p *parser) assignment(c *cursor, once bool) error {
	t := c.next()
	if t.kind != tokIdent {
		return asm.Errorf(api.ErrAsmDirectiveToken, "expected symbol name, got %q", t.text)
	}
	if !c.accept(",") {
		return asm.Errorf(api.ErrAsmDirectiveComma, "expected ',' after %s", t.text)
	}
	return p.equate(t.text, c, once)
}

// reloc validates ".reloc offset, name[, expr]". Relocations are not recorded since the output is flat code.
func (p *parser) reloc(c *cursor) error {
	if _, err := c.expr(); err != nil {
		return err
	}
	if !c.accept(",") {
		return asm.Errorf(api.ErrAsmDirectiveComma, "expected ',' after relocation offset")
	}
	t := c.next()
	if t.kind != tokIdent && t.kind != tokNumber {
		return asm.Errorf(api.ErrAsmDirectiveRelocName, "expected relocation name")
	}
	if t.kind == tokIdent && !strings.HasPrefix(t.text, "R_") && !strings.HasPrefix(t.text, "BFD_RELOC_") {
		return asm.Errorf(api.ErrAsmDirectiveRelocName, "unknown relocation name %q", t.text)
	}
	if c.accept(",") {
		if _, err := c.expr(); err != nil {
			return err
		}
	}
	if !c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveRelocToken, "unexpected %q in .reloc", c.peek().text)
	}
	return nil
}

// isNASMData returns true for the NASM and MASM data words which may follow a label without a colon.
func isNASMData(word string) bool {
	switch word {
	case "db", "dw", "dd", "dq", "resb", "resw", "resd", "resq", "byte", "word", "dword", "qword":
		return true
	}
	return false
}

// nasmDirective handles the directives NASM and MASM spell without a leading '.'.
func (p *parser) nasmDirective(name string, c *cursor) (bool, error) {
	if p.gasLike() {
		return false, nil
	}
	switch name {
	case "db", "byte":
		return true, p.data(c, 1, true)
	case "dw", "word":
		return true, p.data(c, 2, true)
	case "dd", "dword":
		return true, p.data(c, 4, true)
	case "dq", "qword":
		return true, p.data(c, 8, true)
	case "resb", "resw", "resd", "resq":
		n, err := c.expr()
		if err != nil {
			return true, err
		}
		width := map[string]int{"resb": 1, "resw": 2, "resd": 4, "resq": 8}[name]
		p.emit(&asm.Statement{Kind: asm.KindSpace, Value: n, Width: width})
		return true, nil
	case "section", "segment", "global", "extern", "default", "cpu", "public", "extrn", "externdef", "assume",
		"end", "title", "subtitle", "page", "option", "absolute":
		return true, nil
	case "bits", "use16", "use32", "use64":
		var bits int64 = 16
		switch name {
		case "bits":
			v, err := p.constExpr(c)
			if err != nil {
				return true, err
			}
			bits = v
		case "use32":
			bits = 32
		case "use64":
			bits = 64
		}
		mode := map[int64]api.Mode{16: api.Mode16, 32: api.Mode32, 64: api.Mode64}[bits]
		if mode == 0 {
			return true, asm.Errorf(api.ErrAsmDirectiveValueRange, "invalid bits %d", bits)
		}
		return true, p.requireMode(name, mode)
	case "align":
		return true, p.align(c, false)
	case "even":
		p.emit(&asm.Statement{Kind: asm.KindAlign, Align: 2})
		return true, nil
	}
	return false, nil
}
