package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArch_String(t *testing.T) {
	for _, tc := range []struct {
		arch Arch
		exp  string
	}{
		{arch: ArchARM, exp: "arm"},
		{arch: ArchARM64, exp: "arm64"},
		{arch: ArchMIPS, exp: "mips"},
		{arch: ArchX86, exp: "x86"},
		{arch: ArchPPC, exp: "ppc"},
		{arch: ArchSPARC, exp: "sparc"},
		{arch: ArchSystemZ, exp: "systemz"},
		{arch: ArchHexagon, exp: "hexagon"},
		{arch: ArchMax, exp: "arch(9)"},
		{arch: 0, exp: "arch(0)"},
	} {
		tc := tc
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.arch.String())
		})
	}
}

// TestNumericValues pins the values callers persist.
func TestNumericValues(t *testing.T) {
	require.Equal(t, 1, APIMajor)
	require.Equal(t, 0, APIMinor)

	require.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []uint32{
		uint32(ArchARM), uint32(ArchARM64), uint32(ArchMIPS), uint32(ArchX86), uint32(ArchPPC),
		uint32(ArchSPARC), uint32(ArchSystemZ), uint32(ArchHexagon), uint32(ArchMax),
	})

	for _, tc := range []struct {
		mode Mode
		exp  uint32
	}{
		{ModeLittleEndian, 0}, {ModeBigEndian, 1073741824},
		{ModeARM, 1}, {ModeThumb, 16}, {ModeV8, 64},
		{ModeMicro, 16}, {ModeMIPS3, 32}, {ModeMIPS32R6, 64}, {ModeMIPS32, 4}, {ModeMIPS64, 8},
		{Mode16, 2}, {Mode32, 4}, {Mode64, 8},
		{ModePPC32, 4}, {ModePPC64, 8}, {ModeQPX, 16},
		{ModeSPARC32, 4}, {ModeSPARC64, 8}, {ModeV9, 16},
	} {
		require.Equal(t, tc.exp, uint32(tc.mode))
	}

	require.Equal(t, uint32(1), uint32(OptSyntax))
	require.Equal(t, []uint32{1, 2, 4, 8, 16}, []uint32{
		uint32(SyntaxIntel), uint32(SyntaxATT), uint32(SyntaxNASM), uint32(SyntaxMASM), uint32(SyntaxGAS),
	})

	errs := []Err{ErrOK, ErrNoMem, ErrArch, ErrHandle, ErrMode, ErrVersion, ErrOptInvalid}
	for i, e := range errs {
		require.Equal(t, uint32(i), uint32(e))
	}

	syntaxErrs := []Err{
		ErrAsmExprToken, ErrAsmDirectiveValueRange, ErrAsmDirectiveID, ErrAsmDirectiveToken, ErrAsmDirectiveStr,
		ErrAsmDirectiveComma, ErrAsmDirectiveRelocName, ErrAsmDirectiveRelocToken, ErrAsmDirectiveFPoint,
		ErrAsmVariantInvalid, ErrAsmExprBracket, ErrAsmSymbolModifier, ErrAsmRParen, ErrAsmStatToken,
		ErrAsmUnsupported, ErrAsmMacroToken, ErrAsmMacroParen, ErrAsmMacroEqu, ErrAsmMacroArgs,
		ErrAsmMacroLevelsExceed, ErrAsmEscBackslash, ErrAsmEscOctal, ErrAsmEscSequence,
	}
	for i, e := range syntaxErrs {
		require.Equal(t, uint32(128+i), uint32(e), e.Error())
		require.True(t, e.IsSyntax())
		require.False(t, e.IsEncoding())
	}
	require.Equal(t, uint32(150), uint32(ErrAsmEscSequence))

	require.Equal(t, uint32(512), uint32(ErrAsmInvalidOperand))
	require.Equal(t, uint32(513), uint32(ErrAsmMissingFeature))
	require.Equal(t, uint32(514), uint32(ErrAsmMnemonicFail))

	// The bases share values with the first code of their band.
	require.Equal(t, ErrAsm, ErrAsmExprToken)
	require.Equal(t, ErrAsmArch, ErrAsmInvalidOperand)
}

func TestMode_Has(t *testing.T) {
	m := ModeThumb | ModeV8 | ModeBigEndian
	require.True(t, m.Has(ModeThumb))
	require.True(t, m.Has(ModeThumb|ModeBigEndian))
	require.False(t, m.Has(ModeARM))
	require.True(t, m.Has(ModeLittleEndian))
}

func TestSyntax_String(t *testing.T) {
	require.Equal(t, "intel", SyntaxIntel.String())
	require.Equal(t, "att|gas", (SyntaxATT | SyntaxGAS).String())
	require.Equal(t, "syntax(0x0)", Syntax(0).String())
	require.Equal(t, "syntax(0x20)", Syntax(32).String())
}

func TestErr_Error(t *testing.T) {
	require.Equal(t, "invalid mnemonic", ErrAsmMnemonicFail.Error())
	require.Equal(t, "unknown error code 999", Err(999).Error())
}

func TestAssembleError(t *testing.T) {
	err := error(&AssembleError{Code: ErrAsmMnemonicFail, Line: 3, Err: fmt.Errorf("%q", "foo")})
	require.EqualError(t, err, `line 3: invalid mnemonic: "foo" (514)`)
	require.True(t, errors.Is(err, ErrAsmMnemonicFail))
	require.False(t, errors.Is(err, ErrAsmInvalidOperand))

	var ae *AssembleError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ae))
	require.Equal(t, 3, ae.Line)

	require.EqualError(t, &AssembleError{Code: ErrNoMem}, "no memory available or memory not present (1)")
}
