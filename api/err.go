package api

import "fmt"

// Err is a numeric error code. It implements error so that codes can be returned and matched directly:
//
//	if errors.Is(err, api.ErrAsmMnemonicFail) { ... }
//
// Note: the assembly bands overlap with their base values, ErrAsm == ErrAsmExprToken and
// ErrAsmArch == ErrAsmInvalidOperand. This is preserved for compatibility.
type Err uint32

const (
	ErrOK         Err = 0
	ErrNoMem      Err = 1
	ErrArch       Err = 2
	ErrHandle     Err = 3
	ErrMode       Err = 4
	ErrVersion    Err = 5
	ErrOptInvalid Err = 6

	// ErrAsm is the base of syntax errors.
	ErrAsm Err = 128
	// ErrAsmArch is the base of architecture specific encoding errors.
	ErrAsmArch Err = 512
)

const (
	ErrAsmExprToken Err = ErrAsm + iota
	ErrAsmDirectiveValueRange
	ErrAsmDirectiveID
	ErrAsmDirectiveToken
	ErrAsmDirectiveStr
	ErrAsmDirectiveComma
	ErrAsmDirectiveRelocName
	ErrAsmDirectiveRelocToken
	ErrAsmDirectiveFPoint
	ErrAsmVariantInvalid
	ErrAsmExprBracket
	ErrAsmSymbolModifier
	ErrAsmRParen
	ErrAsmStatToken
	ErrAsmUnsupported
	ErrAsmMacroToken
	ErrAsmMacroParen
	ErrAsmMacroEqu
	ErrAsmMacroArgs
	ErrAsmMacroLevelsExceed
	ErrAsmEscBackslash
	ErrAsmEscOctal
	ErrAsmEscSequence
)

const (
	ErrAsmInvalidOperand Err = ErrAsmArch + iota
	ErrAsmMissingFeature
	ErrAsmMnemonicFail
)

var errMessages = map[Err]string{
	ErrOK:                     "OK",
	ErrNoMem:                  "no memory available or memory not present",
	ErrArch:                   "invalid or unsupported architecture",
	ErrHandle:                 "invalid handle",
	ErrMode:                   "invalid or unsupported mode",
	ErrVersion:                "different API version between core and binding",
	ErrOptInvalid:             "invalid option",
	ErrAsmExprToken:           "invalid token in expression",
	ErrAsmDirectiveValueRange: "directive value out of range",
	ErrAsmDirectiveID:         "unknown directive",
	ErrAsmDirectiveToken:      "invalid token in directive",
	ErrAsmDirectiveStr:        "expected string in directive",
	ErrAsmDirectiveComma:      "expected comma in directive",
	ErrAsmDirectiveRelocName:  "expected relocation name in directive",
	ErrAsmDirectiveRelocToken: "unexpected token in relocation directive",
	ErrAsmDirectiveFPoint:     "invalid floating point in directive",
	ErrAsmVariantInvalid:      "invalid symbol variant",
	ErrAsmExprBracket:         "brackets expression not supported on this target",
	ErrAsmSymbolModifier:      "unexpected symbol modifier following '@'",
	ErrAsmRParen:              "expected ')' in expression",
	ErrAsmStatToken:           "unexpected token at start of statement",
	ErrAsmUnsupported:         "unsupported token",
	ErrAsmMacroToken:          "unexpected token in macro",
	ErrAsmMacroParen:          "unbalanced parentheses in macro argument",
	ErrAsmMacroEqu:            "expected '=' after formal parameter identifier",
	ErrAsmMacroArgs:           "too many positional arguments in macro",
	ErrAsmMacroLevelsExceed:   "macros cannot be nested more than the configured levels deep",
	ErrAsmEscBackslash:        "unexpected backslash at end of string",
	ErrAsmEscOctal:            "invalid octal escape sequence (out of range)",
	ErrAsmEscSequence:         "invalid escape sequence (unrecognized character)",
	ErrAsmInvalidOperand:      "invalid operand",
	ErrAsmMissingFeature:      "missing CPU feature",
	ErrAsmMnemonicFail:        "invalid mnemonic",
}

// Error implements error.
func (e Err) Error() string {
	if m, ok := errMessages[e]; ok {
		return m
	}
	return fmt.Sprintf("unknown error code %d", uint32(e))
}

// IsSyntax returns true if the code belongs to the syntax band (front-end failures).
func (e Err) IsSyntax() bool {
	return e >= ErrAsmExprToken && e <= ErrAsmEscSequence
}

// IsEncoding returns true if the code belongs to the architecture band (encoder failures).
func (e Err) IsEncoding() bool {
	return e >= ErrAsmInvalidOperand && e <= ErrAsmMnemonicFail
}

// AssembleError is returned when an assemble call fails. Line is the 1-based source line of the first offending
// statement, or zero when no single statement is to blame (e.g. output exceeding the size limit).
type AssembleError struct {
	Code Err
	Line int
	// Err optionally holds details, such as the offending token.
	Err error
}

// Error implements error.
func (e *AssembleError) Error() string {
	msg := e.Code.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s (%d)", e.Line, msg, uint32(e.Code))
	}
	return fmt.Sprintf("%s (%d)", msg, uint32(e.Code))
}

// Unwrap allows errors.Is to match the Code.
func (e *AssembleError) Unwrap() error {
	return e.Code
}
