package syntax

import (
	"strconv"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// cursor walks the tokens of one statement.
type cursor struct {
	toks []token
	pos  int
	p    *parser
}

func (c *cursor) eof() bool {
	return c.pos >= len(c.toks)
}

func (c *cursor) peek() token {
	if c.eof() {
		return token{kind: tokEOF}
	}
	return c.toks[c.pos]
}

func (c *cursor) peekAt(n int) token {
	if c.pos+n >= len(c.toks) {
		return token{kind: tokEOF}
	}
	return c.toks[c.pos+n]
}

func (c *cursor) next() token {
	t := c.peek()
	if !c.eof() {
		c.pos++
	}
	return t
}

// accept consumes the punctuation if it is next.
func (c *cursor) accept(punct string) bool {
	if c.peek().is(punct) {
		c.pos++
		return true
	}
	return false
}

// rest returns the remaining tokens.
func (c *cursor) rest() []token {
	if c.eof() {
		return nil
	}
	return c.toks[c.pos:]
}

type binaryLevel struct {
	ops map[string]asm.ExprOp
}

// binaryLevels lists binary operators from the lowest to the highest precedence.
var binaryLevels = []binaryLevel{
	{ops: map[string]asm.ExprOp{"||": asm.ExprLogicalOr}},
	{ops: map[string]asm.ExprOp{"&&": asm.ExprLogicalAnd}},
	{ops: map[string]asm.ExprOp{
		"==": asm.ExprEq, "!=": asm.ExprNe, "<>": asm.ExprNe,
		"<": asm.ExprLt, "<=": asm.ExprLe, ">": asm.ExprGt, ">=": asm.ExprGe,
	}},
	{ops: map[string]asm.ExprOp{"|": asm.ExprOr}},
	{ops: map[string]asm.ExprOp{"^": asm.ExprXor}},
	{ops: map[string]asm.ExprOp{"&": asm.ExprAnd}},
	{ops: map[string]asm.ExprOp{"<<": asm.ExprShl, ">>": asm.ExprShr}},
	{ops: map[string]asm.ExprOp{"+": asm.ExprAdd, "-": asm.ExprSub}},
	{ops: map[string]asm.ExprOp{"*": asm.ExprMul, "/": asm.ExprDiv, "%": asm.ExprMod}},
}

// expr parses an expression.
func (c *cursor) expr() (*asm.Expr, error) {
	return c.binary(0)
}

func (c *cursor) binary(level int) (*asm.Expr, error) {
	if level == len(binaryLevels) {
		return c.unary()
	}
	x, err := c.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := c.peek()
		if t.kind != tokPunct {
			return x, nil
		}
		op, ok := binaryLevels[level].ops[t.text]
		if !ok {
			return x, nil
		}
		// Outside Intel dialects "%name" is a register or relocation operator, never a modulo.
		if t.text == "%" && !c.p.intelLike() && c.peekAt(1).kind == tokIdent {
			return x, nil
		}
		c.pos++
		y, err := c.binary(level + 1)
		if err != nil {
			return nil, err
		}
		x = asm.Binary(op, x, y)
	}
}

func (c *cursor) unary() (*asm.Expr, error) {
	switch t := c.peek(); {
	case t.is("-"):
		c.pos++
		x, err := c.unary()
		if err != nil {
			return nil, err
		}
		if x.Op == asm.ExprConst {
			return asm.Const(-x.Value), nil
		}
		return asm.Unary(asm.ExprNeg, x), nil
	case t.is("+"):
		c.pos++
		return c.unary()
	case t.is("~"):
		c.pos++
		x, err := c.unary()
		if err != nil {
			return nil, err
		}
		return asm.Unary(asm.ExprNot, x), nil
	case t.is("!"):
		c.pos++
		x, err := c.unary()
		if err != nil {
			return nil, err
		}
		return asm.Unary(asm.ExprLogicalNot, x), nil
	}
	return c.atom()
}

func (c *cursor) atom() (*asm.Expr, error) {
	t := c.next()
	switch t.kind {
	case tokEOF:
		return nil, asm.Errorf(api.ErrAsmExprToken, "missing expression")
	case tokNumber:
		return c.p.number(t.text)
	case tokFloat:
		return nil, asm.Errorf(api.ErrAsmDirectiveFPoint, "floating point value %s in integer expression", t.text)
	case tokChar, tokString:
		if t.kind == tokString && c.p.gasLike() {
			return nil, asm.Errorf(api.ErrAsmExprToken, "unexpected string %q in expression", t.text)
		}
		return charConst(t.text)
	case tokIdent:
		if t.text == "." {
			return asm.Here(), nil
		}
		sym := asm.Symbol(t.text)
		if c.peek().is("@") {
			return c.variant(sym)
		}
		return sym, nil
	}

	switch {
	case t.is("("):
		x, err := c.expr()
		if err != nil {
			return nil, err
		}
		if !c.accept(")") {
			return nil, asm.Errorf(api.ErrAsmRParen, "missing ')' in expression")
		}
		return x, nil
	case t.is("["):
		return nil, asm.Errorf(api.ErrAsmExprBracket, "unexpected '[' in expression")
	case t.is("$") && c.p.intelLike():
		return asm.Here(), nil
	case t.is(":"):
		return c.modifier()
	case t.is("%") && c.p.dialect == DialectGAS:
		return c.relocOperator()
	}
	return nil, asm.Errorf(api.ErrAsmExprToken, "unexpected %q in expression", t.text)
}

// charConst packs the bytes of a character literal little-endian.
func charConst(s string) (*asm.Expr, error) {
	if len(s) == 0 || len(s) > 8 {
		return nil, asm.Errorf(api.ErrAsmExprToken, "invalid character constant %q", s)
	}
	var v int64
	for i := len(s) - 1; i >= 0; i-- {
		v = v<<8 | int64(s[i])
	}
	return asm.Const(v), nil
}

// variant parses the PPC "sym@l" family. Only the address halves are computed since there are no relocations.
func (c *cursor) variant(sym *asm.Expr) (*asm.Expr, error) {
	c.pos++ // @
	t := c.next()
	if t.kind != tokIdent {
		return nil, asm.Errorf(api.ErrAsmVariantInvalid, "missing symbol variant after '@'")
	}
	if c.p.opts.Arch != api.ArchPPC {
		return nil, asm.Errorf(api.ErrAsmVariantInvalid, "invalid symbol variant %q", t.text)
	}
	switch strings.ToLower(t.text) {
	case "l", "lo":
		return lo16(sym), nil
	case "h", "hi":
		return asm.Binary(asm.ExprAnd, asm.Binary(asm.ExprShr, sym, asm.Const(16)), asm.Const(0xffff)), nil
	case "ha":
		return hi16Adjusted(sym), nil
	}
	return nil, asm.Errorf(api.ErrAsmVariantInvalid, "invalid symbol variant %q", t.text)
}

// lo16 is the sign-extended low half of x.
func lo16(x *asm.Expr) *asm.Expr {
	low := asm.Binary(asm.ExprAnd, x, asm.Const(0xffff))
	return asm.Binary(asm.ExprSub, asm.Binary(asm.ExprXor, low, asm.Const(0x8000)), asm.Const(0x8000))
}

// hi16Adjusted is the high half of x, adjusted for a sign-extended low half.
func hi16Adjusted(x *asm.Expr) *asm.Expr {
	return asm.Binary(asm.ExprAnd,
		asm.Binary(asm.ExprShr, asm.Binary(asm.ExprAdd, x, asm.Const(0x8000)), asm.Const(16)),
		asm.Const(0xffff))
}

// modifier parses the ARM ":lower16:" family.
func (c *cursor) modifier() (*asm.Expr, error) {
	t := c.next()
	if t.kind != tokIdent || !c.accept(":") {
		return nil, asm.Errorf(api.ErrAsmSymbolModifier, "invalid symbol modifier")
	}
	x, err := c.unary()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(t.text) {
	case "lower16":
		return asm.Binary(asm.ExprAnd, x, asm.Const(0xffff)), nil
	case "upper16":
		return asm.Binary(asm.ExprAnd, asm.Binary(asm.ExprShr, x, asm.Const(16)), asm.Const(0xffff)), nil
	case "lo12":
		return asm.Binary(asm.ExprAnd, x, asm.Const(0xfff)), nil
	}
	return nil, asm.Errorf(api.ErrAsmSymbolModifier, "unknown symbol modifier %q", t.text)
}

// relocOperator parses the MIPS and SPARC "%hi(x)" family.
func (c *cursor) relocOperator() (*asm.Expr, error) {
	t := c.next()
	if t.kind != tokIdent || !c.accept("(") {
		return nil, asm.Errorf(api.ErrAsmExprToken, "unexpected '%%' in expression")
	}
	x, err := c.expr()
	if err != nil {
		return nil, err
	}
	if !c.accept(")") {
		return nil, asm.Errorf(api.ErrAsmRParen, "missing ')' after %%%s", t.text)
	}
	switch strings.ToLower(t.text) {
	case "hi":
		if c.p.opts.Arch == api.ArchSPARC {
			return asm.Binary(asm.ExprAnd, asm.Binary(asm.ExprShr, x, asm.Const(10)), asm.Const(0x3fffff)), nil
		}
		return hi16Adjusted(x), nil
	case "lo":
		if c.p.opts.Arch == api.ArchSPARC {
			return asm.Binary(asm.ExprAnd, x, asm.Const(0x3ff)), nil
		}
		return lo16(x), nil
	}
	return nil, asm.Errorf(api.ErrAsmSymbolModifier, "unknown relocation operator %%%s", t.text)
}

// number parses an integer literal in the dialect's notation. GAS local label references ("1b", "2f") are returned
// as symbols.
func (p *parser) number(s string) (*asm.Expr, error) {
	lower := strings.ToLower(s)
	if p.gasLike() && len(lower) > 1 {
		if last := lower[len(lower)-1]; (last == 'b' || last == 'f') && allDigits(lower[:len(lower)-1]) {
			num := lower[:len(lower)-1]
			n := p.locals[num]
			if last == 'f' {
				n++
			} else if n == 0 {
				return nil, asm.Errorf(api.ErrAsmInvalidOperand, "no previous definition of local label %s", num)
			}
			return asm.Symbol(localLabel(num, n)), nil
		}
	}

	base, digits := 10, lower
	switch {
	case strings.HasPrefix(lower, "0x"):
		base, digits = 16, lower[2:]
	case strings.HasPrefix(lower, "0b") && p.gasLike():
		base, digits = 2, lower[2:]
	case strings.HasPrefix(lower, "0b") && allBinary(lower[2:]):
		base, digits = 2, lower[2:]
	case strings.HasPrefix(lower, "0o") && !p.gasLike():
		base, digits = 8, lower[2:]
	case strings.HasSuffix(lower, "h") && (p.dialect != DialectGAS && p.dialect != DialectATT):
		base, digits = 16, lower[:len(lower)-1]
	case !p.gasLike() && len(lower) > 1 && (strings.HasSuffix(lower, "q") || strings.HasSuffix(lower, "o")):
		base, digits = 8, lower[:len(lower)-1]
	case !p.gasLike() && len(lower) > 1 && (strings.HasSuffix(lower, "b") || strings.HasSuffix(lower, "y")) &&
		allBinary(lower[:len(lower)-1]):
		base, digits = 2, lower[:len(lower)-1]
	case !p.gasLike() && len(lower) > 1 && (strings.HasSuffix(lower, "d") || strings.HasSuffix(lower, "t")):
		digits = lower[:len(lower)-1]
	case p.gasLike() && len(lower) > 1 && lower[0] == '0':
		base, digits = 8, lower[1:]
	}
	if digits == "" {
		return nil, asm.Errorf(api.ErrAsmExprToken, "invalid number %q", s)
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return nil, asm.Errorf(api.ErrAsmDirectiveValueRange, "number %s out of range", s)
		}
		return nil, asm.Errorf(api.ErrAsmExprToken, "invalid number %q", s)
	}
	return asm.Const(int64(v)), nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func allBinary(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}
