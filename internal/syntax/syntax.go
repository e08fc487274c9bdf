// Package syntax implements the assembly front-ends: it turns source text written in one of the supported dialects
// into asm.Statement values in the canonical operand order expected by the encoders.
package syntax

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// DefaultMaxMacroDepth is the default nesting limit of macro and repeat expansion.
const DefaultMaxMacroDepth = 20

// Dialect is a textual convention for writing assembly.
type Dialect byte

const (
	// DialectGAS is the GNU assembler syntax of RISC architectures.
	DialectGAS Dialect = iota
	// DialectATT is the GNU assembler syntax of x86.
	DialectATT
	DialectIntel
	DialectNASM
	DialectMASM
)

func (d Dialect) String() string {
	switch d {
	case DialectGAS:
		return "gas"
	case DialectATT:
		return "att"
	case DialectIntel:
		return "intel"
	case DialectNASM:
		return "nasm"
	case DialectMASM:
		return "masm"
	}
	return fmt.Sprintf("dialect(%d)", byte(d))
}

// DialectOf returns the dialect used to parse s on arch.
func DialectOf(arch api.Arch, s api.Syntax) Dialect {
	if arch != api.ArchX86 {
		return DialectGAS
	}
	switch s {
	case api.SyntaxATT, api.SyntaxGAS:
		return DialectATT
	case api.SyntaxNASM:
		return DialectNASM
	case api.SyntaxMASM:
		return DialectMASM
	}
	return DialectIntel
}

// Options configures Parse.
type Options struct {
	Arch   api.Arch
	Mode   api.Mode
	Syntax api.Syntax
	// Encoder classifies registers and mnemonics.
	Encoder asm.Encoder
	// MaxMacroDepth bounds macro and repeat nesting. Defaults to DefaultMaxMacroDepth when zero.
	MaxMacroDepth int
}

// Parse parses src into statements. On failure, the statements parsed before the failing line are returned with
// the error, which is an *api.AssembleError carrying the 1-based line.
func Parse(src string, opts Options) ([]*asm.Statement, error) {
	if opts.MaxMacroDepth <= 0 {
		opts.MaxMacroDepth = DefaultMaxMacroDepth
	}
	p := &parser{
		opts:    opts,
		dialect: DialectOf(opts.Arch, opts.Syntax),
		enc:     opts.Encoder,
		macros:  map[string]*macro{},
		equ:     map[string]int64{},
		defined: map[string]bool{},
		locals:  map[string]int{},
	}
	lc := p.lineConfig()
	err := p.run(lc.split(src), 0)
	if err == nil {
		err = p.finish()
	}
	if err != nil {
		return p.stmts, asm.WithLine(err, p.line)
	}
	return p.stmts, nil
}

// parser holds the state of one Parse call.
type parser struct {
	opts    Options
	dialect Dialect
	enc     asm.Encoder
	stmts   []*asm.Statement

	// line is the line being parsed, used for errors.
	line   int
	macros map[string]*macro
	// expansions counts macro invocations for \@.
	expansions int
	// expanded counts the lines produced by repeats and macros, see maxExpansion.
	expanded int
	// equ holds equates with a constant value, for conditional assembly.
	equ map[string]int64
	// defined holds every label and equate seen so far, for .ifdef.
	defined map[string]bool
	// locals counts definitions of GAS numeric local labels.
	locals map[string]int
	// defines holds NASM %define substitutions.
	defines map[string]string
	// packet is set inside a Hexagon { } packet, which started at stmts[packetStart].
	packet      bool
	packetStart int
	// closing is set when the current statement ends the packet.
	closing bool
}

func (p *parser) lineConfig() *lineConfig {
	switch p.opts.Arch {
	case api.ArchX86:
		switch p.dialect {
		case DialectNASM, DialectMASM:
			return &lineConfig{comments: []string{";"}}
		}
		return &lineConfig{comments: []string{"#", "//"}, separator: ';', quoteEscapes: true}
	case api.ArchARM:
		return &lineConfig{comments: []string{"@", "//"}, separator: ';', hashLine: true, quoteEscapes: true}
	case api.ArchARM64, api.ArchHexagon:
		return &lineConfig{comments: []string{"//"}, separator: ';', hashLine: true, quoteEscapes: true}
	case api.ArchSPARC:
		return &lineConfig{comments: []string{"!", "//"}, separator: ';', hashLine: true, quoteEscapes: true}
	}
	// MIPS, PPC, SystemZ
	return &lineConfig{comments: []string{"#", "//"}, separator: ';', quoteEscapes: true}
}

func (p *parser) gasLike() bool {
	return p.dialect == DialectGAS || p.dialect == DialectATT || p.dialect == DialectIntel
}

func (p *parser) intelLike() bool {
	return p.dialect == DialectIntel || p.dialect == DialectNASM || p.dialect == DialectMASM
}

func (p *parser) lexer() lexConfig {
	return lexConfig{escapes: p.gasLike()}
}

func (p *parser) emit(st *asm.Statement) {
	st.Line = p.line
	if st.Kind == asm.KindInstruction && p.opts.Arch == api.ArchHexagon {
		st.EndOfPacket = !p.packet
	}
	p.stmts = append(p.stmts, st)
}

func (p *parser) finish() error {
	if p.packet {
		return asm.Errorf(api.ErrAsmStatToken, "unterminated packet")
	}
	return nil
}

// statement parses one logical statement after preprocessing.
func (p *parser) statement(text string) error {
	toks, err := p.lexer().lex(text)
	if err != nil {
		return err
	}
	if p.opts.Arch == api.ArchHexagon {
		if toks, err = p.hexagonPacket(toks); err != nil {
			return err
		}
	}

	// Labels, possibly followed by a statement on the same line.
	for len(toks) >= 2 && (toks[0].kind == tokIdent || toks[0].kind == tokNumber) && toks[1].is(":") &&
		!(len(toks) > 2 && (toks[2].is("[") || toks[2].is(":"))) {
		if err := p.defineLabel(toks[0]); err != nil {
			return err
		}
		toks = toks[2:]
	}
	if len(toks) == 0 {
		return p.closePacket()
	}

	first := toks[0]
	if first.kind != tokIdent {
		return asm.Errorf(api.ErrAsmStatToken, "unexpected token %q at start of statement", first.text)
	}

	// name = expr
	if len(toks) >= 2 && toks[1].is("=") && !p.isRegister(first.text) && !p.isHalfRegister(first.text) {
		if err := p.equate(first.text, &cursor{toks: toks[2:], p: p}, false); err != nil {
			return err
		}
		return p.closePacket()
	}

	if len(toks) >= 2 && toks[1].kind == tokIdent && !p.gasLike() || len(toks) >= 2 && toks[1].isIdent("equ") {
		second := strings.ToLower(toks[1].text)
		switch {
		case second == "equ":
			return p.equate(first.text, &cursor{toks: toks[2:], p: p}, false)
		case isNASMData(second) && !p.isMnemonic(strings.ToLower(first.text)):
			// NASM/MASM data with a label and no colon: "msg db 'hi'".
			if err := p.defineLabel(first); err != nil {
				return err
			}
			toks = toks[1:]
			first = toks[0]
		}
	}

	name := strings.ToLower(first.text)
	c := &cursor{toks: toks[1:], p: p}
	if strings.HasPrefix(name, ".") && !p.isMnemonic(name) {
		err = p.directive(name, c)
	} else if ok, derr := p.nasmDirective(name, c); ok {
		err = derr
	} else {
		switch p.opts.Arch {
		case api.ArchX86:
			err = p.x86Instruction(toks)
		case api.ArchHexagon:
			err = p.hexagonInstruction(toks)
		default:
			err = p.riscInstruction(toks)
		}
	}
	if err != nil {
		return err
	}
	return p.closePacket()
}

func (p *parser) isRegister(name string) bool {
	return p.enc != nil && p.enc.IsRegister(strings.ToLower(name))
}

func (p *parser) isMnemonic(name string) bool {
	return p.enc != nil && p.enc.IsMnemonic(name)
}

func (p *parser) defineLabel(t token) error {
	name := t.text
	if t.kind == tokNumber {
		if !p.gasLike() {
			return asm.Errorf(api.ErrAsmStatToken, "invalid label %q", t.text)
		}
		for _, c := range t.text {
			if c < '0' || c > '9' {
				return asm.Errorf(api.ErrAsmStatToken, "invalid label %q", t.text)
			}
		}
		p.locals[t.text]++
		name = localLabel(t.text, p.locals[t.text])
	}
	p.defined[name] = true
	p.emit(&asm.Statement{Kind: asm.KindLabel, Name: name})
	return nil
}

// localLabel is the unique name of the n-th definition of a numeric local label.
func localLabel(num string, n int) string {
	return fmt.Sprintf(".L%s\x02%d", num, n)
}

// equate records name = value. Constant values are remembered for conditional assembly.
func (p *parser) equate(name string, c *cursor, once bool) error {
	if c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveToken, "missing value for %q", name)
	}
	e, err := c.expr()
	if err != nil {
		return err
	}
	if !c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveToken, "unexpected %q after value of %q", c.peek().text, name)
	}
	if once && p.defined[name] {
		return asm.Errorf(api.ErrAsmDirectiveValueRange, "symbol %q is already defined", name)
	}
	if v, ok, err := e.Eval(p.constEnv()); err == nil && ok {
		p.equ[name] = v
	} else {
		delete(p.equ, name)
	}
	p.defined[name] = true
	p.emit(&asm.Statement{Kind: asm.KindEquate, Name: name, Value: e})
	return nil
}

// constEnv resolves symbols to the constant equates defined so far.
func (p *parser) constEnv() asm.Env {
	return constEnv(p.equ)
}

type constEnv map[string]int64

func (e constEnv) Lookup(name string) (int64, bool, error) {
	v, ok := e[name]
	return v, ok, nil
}

func (e constEnv) Here() uint64 { return 0 }
