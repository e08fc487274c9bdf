package keystone

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/keystone/api"
)

// validModes has one or more valid modes for every architecture.
var validModes = []struct {
	arch api.Arch
	mode api.Mode
}{
	{api.ArchX86, api.Mode16},
	{api.ArchX86, api.Mode32},
	{api.ArchX86, api.Mode64},
	{api.ArchARM, api.ModeARM},
	{api.ArchARM, api.ModeThumb | api.ModeBigEndian},
	{api.ArchARM, api.ModeARM | api.ModeV8},
	{api.ArchARM64, api.ModeLittleEndian},
	{api.ArchMIPS, api.ModeMIPS32},
	{api.ArchMIPS, api.ModeMIPS64 | api.ModeBigEndian},
	{api.ArchMIPS, api.ModeMIPS32 | api.ModeMIPS32R6},
	{api.ArchMIPS, api.ModeMIPS3},
	{api.ArchPPC, api.ModePPC32 | api.ModeBigEndian},
	{api.ArchPPC, api.ModePPC64},
	{api.ArchPPC, api.ModePPC64 | api.ModeQPX | api.ModeBigEndian},
	{api.ArchSPARC, api.ModeSPARC32 | api.ModeBigEndian},
	{api.ArchSPARC, api.ModeSPARC64 | api.ModeV9 | api.ModeBigEndian},
	{api.ArchSystemZ, api.ModeBigEndian},
	{api.ArchHexagon, api.ModeLittleEndian},
}

func TestOpen_EmptySource(t *testing.T) {
	for _, tt := range validModes {
		tc := tt
		t.Run(tc.arch.String()+"/"+tc.mode.String(), func(t *testing.T) {
			e, err := Open(tc.arch, tc.mode)
			require.NoError(t, err)
			defer e.Close()

			require.Equal(t, tc.arch, e.Arch())
			require.Equal(t, tc.mode, e.Mode())

			enc, err := e.Assemble("", 0x1000)
			require.NoError(t, err)
			require.Empty(t, enc.Bytes)
			require.Zero(t, enc.Statements)
			require.Equal(t, uint64(0x1000), enc.Address)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name   string
		arch   api.Arch
		mode   api.Mode
		config *EngineConfig
		exp    api.Err
	}{
		{name: "arch", arch: api.ArchMax, mode: api.Mode32, config: NewEngineConfig(), exp: api.ErrArch},
		{name: "no arch", arch: 0, mode: api.Mode32, config: NewEngineConfig(), exp: api.ErrArch},
		{name: "mode", arch: api.ArchX86, mode: api.ModeARM, config: NewEngineConfig(), exp: api.ErrMode},
		{name: "big endian x86", arch: api.ArchX86, mode: api.Mode32 | api.ModeBigEndian, config: NewEngineConfig(), exp: api.ErrMode},
		{
			name: "major version", arch: api.ArchX86, mode: api.Mode32,
			config: NewEngineConfig().WithAPIVersion(api.APIMajor+1, api.APIMinor), exp: api.ErrVersion,
		},
		{
			name: "minor version", arch: api.ArchX86, mode: api.Mode32,
			config: NewEngineConfig().WithAPIVersion(api.APIMajor, api.APIMinor+1), exp: api.ErrVersion,
		},
		{
			name: "syntax", arch: api.ArchARM, mode: api.ModeARM,
			config: NewEngineConfig().WithSyntax(api.SyntaxNASM), exp: api.ErrOptInvalid,
		},
		{
			name: "two syntaxes", arch: api.ArchX86, mode: api.Mode32,
			config: NewEngineConfig().WithSyntax(api.SyntaxIntel | api.SyntaxATT), exp: api.ErrOptInvalid,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			e, err := OpenWithConfig(tc.arch, tc.mode, tc.config)
			require.Nil(t, e)
			require.Equal(t, tc.exp, err)
			require.True(t, errors.Is(err, tc.exp))
		})
	}
}

func TestVersion(t *testing.T) {
	major, minor := Version()
	require.Equal(t, api.APIMajor, major)
	require.Equal(t, api.APIMinor, minor)
	require.Equal(t, uint32(major<<8|minor), VersionCombined())

	require.True(t, ArchSupported(api.ArchX86))
	require.True(t, ArchSupported(api.ArchHexagon))
	require.False(t, ArchSupported(0))
	require.False(t, ArchSupported(api.ArchMax))
}

func TestEngine_SetOption(t *testing.T) {
	e, err := Open(api.ArchX86, api.Mode32)
	require.NoError(t, err)
	defer e.Close()
	require.Equal(t, api.SyntaxIntel, e.Syntax())

	intel, err := e.Assemble("mov eax, [ebx+ecx*2+16]\npush 1", 0)
	require.NoError(t, err)

	require.NoError(t, e.SetOption(api.OptSyntax, uint64(api.SyntaxATT)))
	require.Equal(t, api.SyntaxATT, e.Syntax())
	att, err := e.Assemble("movl 16(%ebx,%ecx,2), %eax\npushl $1", 0)
	require.NoError(t, err)
	require.Equal(t, intel.Bytes, att.Bytes)
	require.Equal(t, 2, att.Statements)

	for _, s := range []api.Syntax{api.SyntaxNASM, api.SyntaxMASM, api.SyntaxGAS, api.SyntaxIntel} {
		require.NoError(t, e.SetOption(api.OptSyntax, uint64(s)))
		require.Equal(t, s, e.Syntax())
	}

	for _, tc := range []struct {
		name  string
		opt   api.OptType
		value uint64
	}{
		{name: "unknown option", opt: 2, value: uint64(api.SyntaxATT)},
		{name: "no syntax", opt: api.OptSyntax, value: 0},
		{name: "two syntaxes", opt: api.OptSyntax, value: uint64(api.SyntaxATT | api.SyntaxNASM)},
		{name: "unknown syntax", opt: api.OptSyntax, value: 1 << 5},
		{name: "overflow", opt: api.OptSyntax, value: 1<<32 | uint64(api.SyntaxATT)},
	} {
		require.Equal(t, api.ErrOptInvalid, e.SetOption(tc.opt, tc.value), tc.name)
		// A rejected option leaves the previous one.
		require.Equal(t, api.SyntaxIntel, e.Syntax(), tc.name)
	}
}

func TestEngine_SetOption_NonX86(t *testing.T) {
	e, err := Open(api.ArchARM, api.ModeARM)
	require.NoError(t, err)
	defer e.Close()

	require.Equal(t, api.SyntaxGAS, e.Syntax())
	require.NoError(t, e.SetOption(api.OptSyntax, uint64(api.SyntaxGAS)))
	require.Equal(t, api.ErrOptInvalid, e.SetOption(api.OptSyntax, uint64(api.SyntaxIntel)))
	require.Equal(t, api.SyntaxGAS, e.Syntax())
}

func TestEngine_Close(t *testing.T) {
	e, err := Open(api.ArchX86, api.Mode64)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.Equal(t, api.ErrHandle, e.Close())

	_, err = e.Assemble("nop", 0)
	require.Equal(t, api.ErrHandle, err)
	_, err = e.AssembleLines([]string{"nop"}, 0)
	require.Equal(t, api.ErrHandle, err)
	require.Equal(t, api.ErrHandle, e.SetOption(api.OptSyntax, uint64(api.SyntaxATT)))
}

// TestEngine_Busy calls the engine from inside an assemble, through the symbol resolver.
func TestEngine_Busy(t *testing.T) {
	var e Engine
	var inner []error
	config := NewEngineConfig().WithSymbolResolver(func(name string) (uint64, bool) {
		inner = append(inner, e.SetOption(api.OptSyntax, uint64(api.SyntaxATT)))
		_, err := e.Assemble("nop", 0)
		inner = append(inner, err, e.Close())
		return 0x1000, name == "ext"
	})
	e, err := OpenWithConfig(api.ArchX86, api.Mode32, config)
	require.NoError(t, err)
	defer e.Close()

	enc, err := e.Assemble("call ext", 0x1000)
	require.NoError(t, err)
	require.Equal(t, []byte{0xe8, 0xfb, 0xff, 0xff, 0xff}, enc.Bytes)

	require.NotEmpty(t, inner)
	for _, err := range inner {
		require.Equal(t, api.ErrHandle, err)
	}
	// Neither the option nor the close took effect.
	require.Equal(t, api.SyntaxIntel, e.Syntax())
	_, err = e.Assemble("nop", 0)
	require.NoError(t, err)
}

func TestEngine_Assemble(t *testing.T) {
	e, err := Open(api.ArchX86, api.Mode32)
	require.NoError(t, err)
	defer e.Close()

	const src = "start:\n  mov eax, 1\n  jmp start\n  ret"
	first, err := e.Assemble(src, 0x400000)
	require.NoError(t, err)
	require.Equal(t, []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0xeb, 0xf9, 0xc3}, first.Bytes)
	require.Equal(t, 3, first.Statements)
	require.Equal(t, uint64(0x400000), first.Address)

	// Deterministic.
	second, err := e.Assemble(src, 0x400000)
	require.NoError(t, err)
	require.Equal(t, first, second)

	lines, err := e.AssembleLines([]string{"start:", "mov eax, 1", "jmp start", "ret"}, 0x400000)
	require.NoError(t, err)
	require.Equal(t, first, lines)
}

func TestEngine_Assemble_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config *EngineConfig
		src    string
		code   api.Err
		line   int
	}{
		{name: "missing operand", src: "mov eax,", code: api.ErrAsmStatToken, line: 1},
		{name: "unknown mnemonic", src: "nop\nfoo eax", code: api.ErrAsmMnemonicFail, line: 2},
		{name: "undefined symbol", src: "jmp nowhere", code: api.ErrAsmInvalidOperand, line: 1},
		// The encoding error on the first line precedes the syntax error on the second.
		{name: "encoding before syntax", src: "mov eax, bl\n+", code: api.ErrAsmInvalidOperand, line: 1},
		{name: "syntax after encoding", src: "nop\n+", code: api.ErrAsmStatToken, line: 2},
		{
			name: "macro depth", config: NewEngineConfig().WithMaxMacroDepth(2),
			src: ".macro a\nnop\n.endm\n.macro b\na\n.endm\n.macro c\nb\n.endm\nc", code: api.ErrAsmMacroLevelsExceed, line: 10,
		},
		{name: "output size", config: NewEngineConfig().WithMaxOutputSize(16), src: ".space 17", code: api.ErrNoMem},
		{name: "default output size", src: ".space 0x4000001", code: api.ErrNoMem},
		{name: "alignment output size", src: "nop\n.p2align 40", code: api.ErrNoMem, line: 2},
		{name: "circular equates", src: "a = b\nb = a\nmov eax, a", code: api.ErrAsmInvalidOperand, line: 1},
		{
			name: "nested repeats",
			src:  "nop\n.rept 1000\n.rept 1000\n.rept 1000\nnop\n.endr\n.endr\n.endr", code: api.ErrAsmDirectiveValueRange, line: 2,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			config := tc.config
			if config == nil {
				config = NewEngineConfig()
			}
			e, err := OpenWithConfig(api.ArchX86, api.Mode32, config)
			require.NoError(t, err)
			defer e.Close()

			_, err = e.Assemble(tc.src, 0)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.code), err)
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae), err)
			require.Equal(t, tc.code, ae.Code, err.Error())
			if tc.line != 0 {
				require.Equal(t, tc.line, ae.Line, err.Error())
			}

			// The engine stays usable.
			enc, err := e.Assemble("nop", 0)
			require.NoError(t, err)
			require.Equal(t, []byte{0x90}, enc.Bytes)
		})
	}
}

func TestEngine_MaxOutputSize(t *testing.T) {
	e, err := OpenWithConfig(api.ArchX86, api.Mode32, NewEngineConfig().WithMaxOutputSize(16))
	require.NoError(t, err)
	defer e.Close()

	enc, err := e.Assemble(".space 16", 0)
	require.NoError(t, err)
	require.Equal(t, 16, len(enc.Bytes))
}

func TestEngine_Logger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	e, err := OpenWithConfig(api.ArchX86, api.Mode32, NewEngineConfig().WithLogger(logger))
	require.NoError(t, err)
	require.Equal(t, "opened engine", hook.LastEntry().Message)
	require.Equal(t, api.ArchX86, hook.LastEntry().Data["arch"])

	_, err = e.Assemble("mov eax, 1\nret", 0)
	require.NoError(t, err)
	entry := hook.LastEntry()
	require.Equal(t, "assembled", entry.Message)
	require.Equal(t, logrus.DebugLevel, entry.Level)
	require.Equal(t, 2, entry.Data["statements"])
	require.Equal(t, 6, entry.Data["bytes"])
	require.Equal(t, api.SyntaxIntel, entry.Data["syntax"])

	_, err = e.Assemble("mov eax,", 0)
	require.Error(t, err)
	require.Equal(t, "assemble failed", hook.LastEntry().Message)
	require.Equal(t, err, hook.LastEntry().Data[logrus.ErrorKey])

	require.NoError(t, e.Close())
	require.Equal(t, "closed engine", hook.LastEntry().Message)
}

func TestEngine_Concurrent(t *testing.T) {
	// Independent engines do not share state.
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			e, err := Open(api.ArchX86, api.Mode32)
			if err != nil {
				return err
			}
			defer e.Close()

			exp := []byte{0xb8, byte(i), 0x00, 0x00, 0x00, 0xc3}
			for j := 0; j < 10; j++ {
				enc, err := e.Assemble(fmt.Sprintf("mov eax, %d\nret", i), 0)
				if err != nil {
					return err
				}
				if !bytes.Equal(exp, enc.Bytes) {
					return fmt.Errorf("engine %d: expected %x, but was %x", i, exp, enc.Bytes)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Overlapping calls on one engine either succeed or fail with api.ErrHandle.
	e, err := Open(api.ArchARM64, api.ModeLittleEndian)
	require.NoError(t, err)
	defer e.Close()

	var shared errgroup.Group
	for i := 0; i < 16; i++ {
		shared.Go(func() error {
			for j := 0; j < 10; j++ {
				enc, err := e.Assemble("ret", 0)
				if errors.Is(err, api.ErrHandle) {
					continue
				} else if err != nil {
					return err
				}
				if !bytes.Equal([]byte{0xc0, 0x03, 0x5f, 0xd6}, enc.Bytes) {
					return fmt.Errorf("unexpected encoding %x", enc.Bytes)
				}
			}
			return nil
		})
	}
	require.NoError(t, shared.Wait())
}
