package syntax

import (
	"strings"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

type tokenKind byte

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokFloat
	tokString
	tokChar
	tokPunct
)

// token is a lexical token. For tokString and tokChar, text holds the decoded value.
type token struct {
	kind tokenKind
	text string
	// pos is the byte offset of the token in the lexed text.
	pos int
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

// isIdent returns true if the token is an identifier equal to name, ignoring case.
func (t token) isIdent(name string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, name)
}

// lexer settings per dialect.
type lexConfig struct {
	// escapes enables C style escapes in strings and character literals (GAS).
	escapes bool
}

var punct2 = []string{"<<", ">>", "==", "!=", "<=", ">=", "&&", "||", "<>"}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.' || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// lex splits one statement into tokens.
func (c lexConfig) lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\v':
			i++
		case isDigit(ch):
			j := i
			for j < len(s) && (isIdentChar(s[j]) && s[j] != '.' && s[j] != '$') {
				j++
			}
			// Floating point literals: digits '.' digits [e[+-]digits]
			if j < len(s) && s[j] == '.' && j+1 < len(s) && isDigit(s[j+1]) && !strings.ContainsAny(s[i:j], "xXbB") {
				j++
				for j < len(s) && isDigit(s[j]) {
					j++
				}
				if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
					j++
					if j < len(s) && (s[j] == '+' || s[j] == '-') {
						j++
					}
					for j < len(s) && isDigit(s[j]) {
						j++
					}
				}
				toks = append(toks, token{kind: tokFloat, text: s[i:j], pos: i})
			} else {
				toks = append(toks, token{kind: tokNumber, text: s[i:j], pos: i})
			}
			i = j
		case isIdentStart(ch):
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: s[i:j], pos: i})
			i = j
		case ch == '"' || ch == '`':
			str, n, err := c.lexString(s[i:], ch, c.escapes || ch == '`')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: str, pos: i})
			i += n
		case ch == '\'':
			if c.escapes {
				// GAS character literal: 'c, 'c' or '\n'.
				if i+1 >= len(s) {
					return nil, asm.Errorf(api.ErrAsmExprToken, "unterminated character literal")
				}
				var val string
				j := i + 1
				if s[j] == '\\' {
					v, n, err := unescape(s[j:])
					if err != nil {
						return nil, err
					}
					val = string([]byte{v})
					j += n
				} else {
					val = s[j : j+1]
					j++
				}
				if j < len(s) && s[j] == '\'' {
					j++
				}
				toks = append(toks, token{kind: tokChar, text: val, pos: i})
				i = j
				continue
			}
			str, n, err := c.lexString(s[i:], ch, false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokChar, text: str, pos: i})
			i += n
		default:
			if i+1 < len(s) {
				two := s[i : i+2]
				found := false
				for _, p := range punct2 {
					if two == p {
						found = true
						break
					}
				}
				if found {
					toks = append(toks, token{kind: tokPunct, text: two, pos: i})
					i += 2
					continue
				}
			}
			toks = append(toks, token{kind: tokPunct, text: s[i : i+1], pos: i})
			i++
		}
	}
	return toks, nil
}

// lexString decodes a quoted string starting at s[0] and returns the value and number of bytes consumed.
func (c lexConfig) lexString(s string, quote byte, escapes bool) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); {
		ch := s[i]
		switch {
		case ch == quote:
			return b.String(), i + 1, nil
		case ch == '\\' && escapes:
			v, n, err := unescape(s[i:])
			if err != nil {
				return "", 0, err
			}
			b.WriteByte(v)
			i += n
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return "", 0, asm.Errorf(api.ErrAsmDirectiveStr, "unterminated string %s", s)
}

// unescape decodes the escape sequence at s[0] == '\\' and returns the value and number of bytes consumed.
func unescape(s string) (byte, int, error) {
	if len(s) < 2 {
		return 0, 0, asm.Errorf(api.ErrAsmEscBackslash, "backslash at end of string")
	}
	switch c := s[1]; c {
	case 'n':
		return '\n', 2, nil
	case 't':
		return '\t', 2, nil
	case 'r':
		return '\r', 2, nil
	case 'b':
		return '\b', 2, nil
	case 'f':
		return '\f', 2, nil
	case 'v':
		return '\v', 2, nil
	case 'a':
		return '\a', 2, nil
	case 'e':
		return 0x1b, 2, nil
	case '\\', '"', '\'', '`':
		return c, 2, nil
	case 'x', 'X':
		v, n := 0, 2
		for n < len(s) && n < 4 && isHex(s[n]) {
			v = v<<4 | hexValue(s[n])
			n++
		}
		if n == 2 {
			return 0, 0, asm.Errorf(api.ErrAsmEscSequence, "missing hex digits in %q", s[:2])
		}
		return byte(v), n, nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v, n := 0, 1
		for n < len(s) && n < 4 && s[n] >= '0' && s[n] <= '7' {
			v = v<<3 | int(s[n]-'0')
			n++
		}
		if v > 255 {
			return 0, 0, asm.Errorf(api.ErrAsmEscOctal, "octal escape %q out of range", s[:n])
		}
		return byte(v), n, nil
	default:
		return 0, 0, asm.Errorf(api.ErrAsmEscSequence, "unknown escape %q", s[:2])
	}
}

func isHex(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
