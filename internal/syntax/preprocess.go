package syntax

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// maxRepeat bounds the number of statements produced by one repeat block.
const maxRepeat = 1 << 20

// maxExpansion bounds the lines produced by all repeats and macro invocations of one parse, nested ones included.
const maxExpansion = maxRepeat

// macro is a user defined macro.
type macro struct {
	name   string
	params []macroParam
	// nargs is the declared argument count of NASM macros, which use positional parameters.
	nargs int
	// style is the dialect the macro was defined in, which selects the substitution rules.
	style Dialect
	body  []srcLine
}

type macroParam struct {
	name     string
	def      string
	required bool
	vararg   bool
}

// keyword is a preprocessor keyword, normalized across dialects.
type keyword byte

const (
	kwNone keyword = iota
	kwMacro
	kwEndMacro
	kwRept
	kwIrp
	kwIrpc
	kwEndRept
	kwIf
	kwIfEq
	kwIfDef
	kwIfNDef
	kwElse
	kwElseIf
	kwEndIf
	kwExitMacro
	kwPurge
	kwDefine
)

var gasKeywords = map[string]keyword{
	".macro": kwMacro, ".endm": kwEndMacro, ".endmacro": kwEndMacro,
	".rept": kwRept, ".irp": kwIrp, ".irpc": kwIrpc, ".endr": kwEndRept,
	".if": kwIf, ".ifne": kwIf, ".ifeq": kwIfEq, ".ifdef": kwIfDef, ".ifndef": kwIfNDef, ".ifnotdef": kwIfNDef,
	".else": kwElse, ".elseif": kwElseIf, ".endif": kwEndIf,
	".exitm": kwExitMacro, ".purgem": kwPurge,
}

var nasmKeywords = map[string]keyword{
	"%macro": kwMacro, "%imacro": kwMacro, "%endmacro": kwEndMacro, "%endm": kwEndMacro,
	"%rep": kwRept, "%endrep": kwEndRept,
	"%if": kwIf, "%ifdef": kwIfDef, "%ifndef": kwIfNDef,
	"%else": kwElse, "%elif": kwElseIf, "%endif": kwEndIf,
	"%exitmacro": kwExitMacro, "%unmacro": kwPurge,
	"%define": kwDefine, "%idefine": kwDefine,
}

var masmKeywords = map[string]keyword{
	"endm": kwEndMacro, "rept": kwRept, "repeat": kwRept, "irp": kwIrp, "for": kwIrp, "irpc": kwIrpc,
	"forc": kwIrpc, "if": kwIf, "ifdef": kwIfDef, "ifndef": kwIfNDef, "else": kwElse, "elseif": kwElseIf,
	"endif": kwEndIf, "exitm": kwExitMacro,
}

// errExitMacro unwinds the expansion of the current macro.
var errExitMacro = errors.New("exit macro")

// labelPrefix matches a label at the start of a statement.
var labelPrefix = regexp.MustCompile(`^\s*([A-Za-z_.][\w.$]*|\d+)\s*:`)

// macroEquals matches "=" with surrounding blanks in GAS macro parameter lists.
var macroEquals = regexp.MustCompile(`\s*=\s*`)

func (p *parser) keyword(word string) keyword {
	word = strings.ToLower(word)
	switch p.dialect {
	case DialectNASM:
		if kw, ok := nasmKeywords[word]; ok {
			return kw
		}
	case DialectMASM:
		if kw, ok := masmKeywords[word]; ok {
			return kw
		}
	}
	// Intel and MASM sources also accept the GAS spelling.
	if p.gasLike() || p.dialect == DialectMASM {
		return gasKeywords[word]
	}
	return kwNone
}

// cond is one level of conditional assembly.
type cond struct {
	// parent is true if the enclosing level is active.
	parent bool
	// active is true if statements at this level are assembled.
	active bool
	// taken is true once a branch of this level was active.
	taken bool
	seenElse bool
}

// run preprocesses and parses lines. depth is the macro expansion depth of lines.
func (p *parser) run(lines []srcLine, depth int) error {
	var conds []cond
	active := func() bool {
		return len(conds) == 0 || conds[len(conds)-1].active
	}

	for i := 0; i < len(lines); i++ {
		l := lines[i]
		p.line = l.line
		text := l.text
		if w, _ := splitWord(text); p.keyword(w) != kwDefine {
			text = p.substituteDefines(text)
		}

		// Labels preceding a macro invocation or a block keyword.
		rest := text
		var labels []string
		for {
			m := labelPrefix.FindStringIndex(rest)
			if m == nil || m[1] < len(rest) && (rest[m[1]] == ':' || rest[m[1]] == '=') {
				break
			}
			labels = append(labels, rest[:m[1]])
			rest = rest[m[1]:]
		}
		word, args := splitWord(rest)
		kw := p.keyword(word)
		var masmMacro bool
		if kw == kwNone && p.dialect == DialectMASM {
			if second, _ := splitWord(args); strings.EqualFold(second, "macro") {
				kw, masmMacro = kwMacro, true
			}
		}

		switch kw {
		case kwIf, kwIfEq, kwIfDef, kwIfNDef:
			c := cond{parent: active()}
			if c.parent {
				ok, err := p.condition(kw, args)
				if err != nil {
					return err
				}
				c.active, c.taken = ok, ok
			}
			conds = append(conds, c)
			continue
		case kwElse, kwElseIf:
			if len(conds) == 0 {
				return asm.Errorf(api.ErrAsmDirectiveToken, "%s without .if", word)
			}
			c := &conds[len(conds)-1]
			if c.seenElse {
				return asm.Errorf(api.ErrAsmDirectiveToken, "%s after .else", word)
			}
			switch {
			case !c.parent || c.taken:
				c.active = false
			case kw == kwElse:
				c.active, c.taken, c.seenElse = true, true, true
			default:
				ok, err := p.condition(kwIf, args)
				if err != nil {
					return err
				}
				c.active, c.taken = ok, ok
			}
			continue
		case kwEndIf:
			if len(conds) == 0 {
				return asm.Errorf(api.ErrAsmDirectiveToken, "%s without .if", word)
			}
			conds = conds[:len(conds)-1]
			continue
		}
		if !active() {
			continue
		}

		for _, label := range labels {
			if err := p.statement(label); err != nil {
				return err
			}
		}

		switch kw {
		case kwMacro:
			body, end, err := p.block(lines, i, kwMacro)
			if err != nil {
				return err
			}
			var m *macro
			if masmMacro {
				name, _ := splitWord(rest)
				_, params := splitWord(args)
				m, err = p.defineMASMMacro(name, params)
			} else if p.dialect == DialectNASM {
				m, err = p.defineNASMMacro(args)
			} else {
				m, err = p.defineGASMacro(args)
			}
			if err != nil {
				return err
			}
			m.body = body
			p.macros[m.name] = m
			i = end
		case kwEndMacro:
			return asm.Errorf(api.ErrAsmMacroToken, "%s without macro", word)
		case kwRept, kwIrp, kwIrpc:
			body, end, err := p.block(lines, i, kwRept)
			if err != nil {
				return err
			}
			if err = p.repeat(kw, args, body, l.line, depth); err != nil {
				return err
			}
			i = end
		case kwEndRept:
			return asm.Errorf(api.ErrAsmDirectiveToken, "%s without repeat", word)
		case kwExitMacro:
			if depth == 0 {
				return asm.Errorf(api.ErrAsmMacroToken, "%s outside macro", word)
			}
			return errExitMacro
		case kwPurge:
			for _, name := range strings.Split(args, ",") {
				delete(p.macros, strings.ToLower(strings.TrimSpace(name)))
			}
		case kwDefine:
			name, value := splitWord(args)
			if name == "" {
				return asm.Errorf(api.ErrAsmDirectiveToken, "missing name in %s", word)
			}
			if p.defines == nil {
				p.defines = map[string]string{}
			}
			p.defines[name] = value
		default:
			if m, ok := p.macros[strings.ToLower(word)]; ok && word != "" {
				if err := p.invoke(m, args, l.line, depth); err != nil {
					return err
				}
				continue
			}
			if strings.EqualFold(word, "times") && p.dialect == DialectNASM {
				if err := p.times(args, l.line, depth); err != nil {
					return err
				}
				continue
			}
			if len(labels) > 0 {
				text = rest
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			if err := p.statement(text); err != nil {
				return err
			}
		}
	}
	if len(conds) != 0 {
		return asm.Errorf(api.ErrAsmDirectiveToken, "missing .endif")
	}
	return nil
}

// splitWord returns the first whitespace delimited word of s and the trimmed rest.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// block collects the body of the block opened at lines[start], returning the body and the index of the closing line.
func (p *parser) block(lines []srcLine, start int, open keyword) ([]srcLine, int, error) {
	closer := func(kw keyword) keyword {
		// MASM closes every block with ENDM.
		if kw == kwMacro || p.dialect == DialectMASM {
			return kwEndMacro
		}
		return kwEndRept
	}
	var nested []keyword
	for i := start + 1; i < len(lines); i++ {
		word, args := splitWord(lines[i].text)
		kw := p.keyword(word)
		if p.dialect == DialectMASM && kw == kwNone {
			if second, _ := splitWord(args); strings.EqualFold(second, "macro") {
				kw = kwMacro
			}
		}
		switch kw {
		case kwMacro, kwRept, kwIrp, kwIrpc:
			nested = append(nested, closer(kw))
		case kwEndMacro, kwEndRept:
			if len(nested) == 0 {
				if kw == closer(open) {
					return lines[start+1 : i], i, nil
				}
				continue
			}
			nested = nested[:len(nested)-1]
		}
	}
	p.line = lines[start].line
	if open == kwMacro {
		return nil, 0, asm.Errorf(api.ErrAsmMacroToken, "missing end of macro")
	}
	return nil, 0, asm.Errorf(api.ErrAsmDirectiveToken, "missing end of repeat block")
}

// condition evaluates the argument of an .if family keyword.
func (p *parser) condition(kw keyword, args string) (bool, error) {
	switch kw {
	case kwIfDef, kwIfNDef:
		name := strings.TrimSpace(args)
		if name == "" {
			return false, asm.Errorf(api.ErrAsmDirectiveToken, "missing symbol")
		}
		_, isDefine := p.defines[name]
		defined := p.defined[name] || isDefine
		return defined == (kw == kwIfDef), nil
	}
	v, err := p.constant(args)
	if err != nil {
		return false, err
	}
	if kw == kwIfEq {
		return v == 0, nil
	}
	return v != 0, nil
}

// constant evaluates s, which must only reference constant equates defined so far.
func (p *parser) constant(s string) (int64, error) {
	toks, err := p.lexer().lex(s)
	if err != nil {
		return 0, err
	}
	c := &cursor{toks: toks, p: p}
	e, err := c.expr()
	if err != nil {
		return 0, err
	}
	if !c.eof() {
		return 0, asm.Errorf(api.ErrAsmDirectiveToken, "unexpected %q in expression", c.peek().text)
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

// expand runs body once at depth+1 with every line attributed to line.
func (p *parser) expand(body []srcLine, line, depth int, subst func(string) string) error {
	if depth+1 > p.opts.MaxMacroDepth {
		return asm.Errorf(api.ErrAsmMacroLevelsExceed, "macro nesting exceeds %d levels", p.opts.MaxMacroDepth)
	}
	p.expanded += len(body) + 1
	if p.expanded > maxExpansion {
		return asm.Errorf(api.ErrAsmDirectiveValueRange, "expansion exceeds %d lines", maxExpansion)
	}
	lines := make([]srcLine, len(body))
	for i, l := range body {
		lines[i] = srcLine{line: line, text: subst(l.text)}
	}
	err := p.run(lines, depth+1)
	p.line = line
	return err
}

func (p *parser) repeat(kw keyword, args string, body []srcLine, line, depth int) error {
	switch kw {
	case kwRept:
		n, err := p.constant(args)
		if err != nil {
			return err
		}
		if n > maxRepeat/int64(len(body)+1) {
			return asm.Errorf(api.ErrAsmDirectiveValueRange, "repeat count %d too large", n)
		}
		for ; n > 0; n-- {
			if err := p.expand(body, line, depth, identity); err != nil {
				return err
			}
		}
		return nil
	}

	// .irp sym, a, b / .irpc sym, abc
	sep := strings.IndexAny(args, ", \t")
	if sep < 0 {
		return asm.Errorf(api.ErrAsmDirectiveToken, "missing parameter name")
	}
	name := args[:sep]
	values, err := splitArgs(strings.TrimLeft(args[sep:], ", \t"))
	if err != nil {
		return err
	}
	if kw == kwIrpc {
		var chars []string
		for _, v := range values {
			for i := 0; i < len(v); i++ {
				chars = append(chars, v[i:i+1])
			}
		}
		values = chars
	}
	for _, v := range values {
		v := v
		subst := func(s string) string {
			if p.dialect == DialectMASM {
				return replaceWord(s, name, v)
			}
			return replaceParams(s, map[string]string{name: v}, "")
		}
		if err := p.expand(body, line, depth, subst); err != nil {
			return err
		}
	}
	return nil
}

// times implements the NASM "times n statement" prefix.
func (p *parser) times(args string, line, depth int) error {
	toks, err := p.lexer().lex(args)
	if err != nil {
		return err
	}
	c := &cursor{toks: toks, p: p}
	e, err := c.expr()
	if err != nil {
		return err
	}
	v, ok, err := e.Eval(p.constEnv())
	if err != nil {
		return err
	}
	if !ok {
		return asm.Errorf(api.ErrAsmDirectiveToken, "times count %s is not constant", e)
	}
	if c.eof() {
		return asm.Errorf(api.ErrAsmDirectiveToken, "missing statement after times")
	}
	if v > maxRepeat {
		return asm.Errorf(api.ErrAsmDirectiveValueRange, "times count %d too large", v)
	}
	body := []srcLine{{line: line, text: args[c.peek().pos:]}}
	for ; v > 0; v-- {
		if err := p.expand(body, line, depth, identity); err != nil {
			return err
		}
	}
	return nil
}

func identity(s string) string { return s }

// defineGASMacro parses ".macro name p1, p2=default, p3:req, rest:vararg".
func (p *parser) defineGASMacro(args string) (*macro, error) {
	args = strings.TrimSpace(args)
	end := strings.IndexAny(args, " \t,")
	if end < 0 {
		end = len(args)
	}
	name := args[:end]
	if !isName(name) {
		return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid macro name %q", name)
	}
	m := &macro{name: strings.ToLower(name), style: DialectGAS}
	rest := macroEquals.ReplaceAllString(args[end:], "=")
	for _, f := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		var param macroParam
		param.name = f
		if eq := strings.IndexByte(f, '='); eq >= 0 {
			param.name, param.def = f[:eq], f[eq+1:]
			if param.def == "" {
				return nil, asm.Errorf(api.ErrAsmMacroEqu, "missing default value for %q", param.name)
			}
		}
		if colon := strings.IndexByte(param.name, ':'); colon >= 0 {
			switch strings.ToLower(param.name[colon+1:]) {
			case "req":
				param.required = true
			case "vararg":
				param.vararg = true
			default:
				return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid parameter qualifier %q", param.name)
			}
			param.name = param.name[:colon]
		}
		if !isName(param.name) {
			return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid macro parameter %q", param.name)
		}
		m.params = append(m.params, param)
	}
	return m, nil
}

// defineNASMMacro parses "%macro name n".
func (p *parser) defineNASMMacro(args string) (*macro, error) {
	name, rest := splitWord(args)
	if !isName(name) {
		return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid macro name %q", name)
	}
	m := &macro{name: strings.ToLower(name), style: DialectNASM}
	if rest != "" {
		count, _ := splitWord(rest)
		n, err := strconv.Atoi(strings.TrimSuffix(count, "+"))
		if err != nil || n < 0 {
			return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid argument count %q", count)
		}
		m.nargs = n
	}
	return m, nil
}

// defineMASMMacro parses "name MACRO a, b:REQ, c:=<default>".
func (p *parser) defineMASMMacro(name, params string) (*macro, error) {
	if !isName(name) {
		return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid macro name %q", name)
	}
	m := &macro{name: strings.ToLower(name), style: DialectMASM}
	if strings.TrimSpace(params) == "" {
		return m, nil
	}
	for _, f := range strings.Split(params, ",") {
		f = strings.TrimSpace(f)
		var param macroParam
		if eq := strings.Index(f, ":="); eq >= 0 {
			param.name, param.def = strings.TrimSpace(f[:eq]), strings.Trim(strings.TrimSpace(f[eq+2:]), "<>")
			if param.def == "" {
				return nil, asm.Errorf(api.ErrAsmMacroEqu, "missing default value for %q", param.name)
			}
		} else if colon := strings.IndexByte(f, ':'); colon >= 0 {
			param.name = strings.TrimSpace(f[:colon])
			switch strings.ToLower(strings.TrimSpace(f[colon+1:])) {
			case "req":
				param.required = true
			case "vararg":
				param.vararg = true
			default:
				return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid parameter qualifier %q", f)
			}
		} else {
			param.name = f
		}
		if !isName(param.name) {
			return nil, asm.Errorf(api.ErrAsmMacroToken, "invalid macro parameter %q", param.name)
		}
		m.params = append(m.params, param)
	}
	return m, nil
}

func isName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// invoke expands a macro invocation.
func (p *parser) invoke(m *macro, args string, line, depth int) error {
	values, err := splitArgs(args)
	if err != nil {
		return err
	}
	p.expansions++
	id := strconv.Itoa(p.expansions)

	var subst func(string) string
	switch m.style {
	case DialectNASM:
		if m.nargs != len(values) {
			return asm.Errorf(api.ErrAsmMacroArgs, "macro %s takes %d arguments, got %d", m.name, m.nargs, len(values))
		}
		subst = func(s string) string {
			s = strings.ReplaceAll(s, "%%", "..@"+id+".")
			s = strings.ReplaceAll(s, "%0", strconv.Itoa(len(values)))
			for i := len(values); i >= 1; i-- {
				s = strings.ReplaceAll(s, "%"+strconv.Itoa(i), values[i-1])
			}
			return s
		}
	default:
		bound, err := bindArgs(m, values)
		if err != nil {
			return err
		}
		if m.style == DialectMASM {
			subst = func(s string) string {
				for name, v := range bound {
					s = strings.ReplaceAll(s, "&"+name+"&", v)
					s = replaceWord(s, name, v)
				}
				return s
			}
		} else {
			subst = func(s string) string { return replaceParams(s, bound, id) }
		}
	}

	err = p.expand(m.body, line, depth, subst)
	if errors.Is(err, errExitMacro) {
		return nil
	}
	return err
}

// bindArgs matches positional and "name=value" arguments to the parameters of m.
func bindArgs(m *macro, values []string) (map[string]string, error) {
	bound := make(map[string]string, len(m.params))
	set := make(map[string]bool, len(m.params))
	pos := 0
	for i, v := range values {
		if eq := strings.IndexByte(v, '='); eq > 0 && isName(strings.TrimSpace(v[:eq])) {
			name := strings.TrimSpace(v[:eq])
			found := false
			for _, prm := range m.params {
				if prm.name == name {
					found = true
				}
			}
			if !found {
				return nil, asm.Errorf(api.ErrAsmMacroArgs, "macro %s has no parameter %q", m.name, name)
			}
			bound[name], set[name] = strings.TrimSpace(v[eq+1:]), true
			continue
		}
		if pos >= len(m.params) {
			return nil, asm.Errorf(api.ErrAsmMacroArgs, "too many arguments for macro %s", m.name)
		}
		prm := m.params[pos]
		if prm.vararg {
			bound[prm.name], set[prm.name] = strings.Join(values[i:], ", "), true
			break
		}
		bound[prm.name], set[prm.name] = v, v != ""
		pos++
	}
	for _, prm := range m.params {
		if set[prm.name] {
			continue
		}
		if prm.required {
			return nil, asm.Errorf(api.ErrAsmMacroArgs, "missing value for required parameter %q of macro %s", prm.name, m.name)
		}
		bound[prm.name] = prm.def
	}
	return bound, nil
}

// replaceParams performs GAS macro substitution: \name, \@ and \().
func replaceParams(s string, bound map[string]string, id string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	names := make([]string, 0, len(bound))
	for name := range bound {
		names = append(names, name)
	}
	// Longest first so that \ab is not replaced as \a followed by b.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		rest := s[i+1:]
		switch {
		case strings.HasPrefix(rest, "()"):
			i += 2
			continue
		case rest[0] == '@' && id != "":
			b.WriteString(id)
			i++
			continue
		}
		replaced := false
		for _, name := range names {
			if strings.HasPrefix(rest, name) {
				b.WriteString(bound[name])
				i += len(name)
				replaced = true
				break
			}
		}
		if !replaced {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// replaceWord replaces whole identifier occurrences of name in s.
func replaceWord(s, name, value string) string {
	if name == "" {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], name)
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		j += i
		end := j + len(name)
		before := j == 0 || !isIdentChar(s[j-1])
		after := end == len(s) || !isIdentChar(s[end])
		b.WriteString(s[i:j])
		if before && after {
			b.WriteString(value)
		} else {
			b.WriteString(name)
		}
		i = end
	}
	return b.String()
}

// splitArgs splits macro arguments on top-level commas. Parentheses must balance.
func splitArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ret []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '(' || c == '<':
			if c == '(' {
				depth++
			}
		case c == ')':
			depth--
			if depth < 0 {
				return nil, asm.Errorf(api.ErrAsmMacroParen, "unbalanced ')' in macro arguments")
			}
		case c == ',' && depth == 0:
			ret = append(ret, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if depth != 0 {
		return nil, asm.Errorf(api.ErrAsmMacroParen, "missing ')' in macro arguments")
	}
	return append(ret, strings.TrimSpace(s[start:])), nil
}

// substituteDefines applies NASM %define substitutions.
func (p *parser) substituteDefines(s string) string {
	for name, v := range p.defines {
		s = replaceWord(s, name, v)
	}
	return s
}
