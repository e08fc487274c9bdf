package backend

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/syntax"
)

func TestValidateMode(t *testing.T) {
	tests := []struct {
		name string
		arch api.Arch
		mode api.Mode
		exp  error
	}{
		{name: "arch zero", arch: 0, mode: api.Mode32, exp: api.ErrArch},
		{name: "arch max", arch: api.ArchMax, mode: api.Mode32, exp: api.ErrArch},
		{name: "x86 16", arch: api.ArchX86, mode: api.Mode16},
		{name: "x86 32", arch: api.ArchX86, mode: api.Mode32},
		{name: "x86 64", arch: api.ArchX86, mode: api.Mode64},
		{name: "x86 none", arch: api.ArchX86, mode: api.ModeLittleEndian, exp: api.ErrMode},
		{name: "x86 two", arch: api.ArchX86, mode: api.Mode32 | api.Mode64, exp: api.ErrMode},
		{name: "x86 big endian", arch: api.ArchX86, mode: api.Mode32 | api.ModeBigEndian, exp: api.ErrMode},
		{name: "arm", arch: api.ArchARM, mode: api.ModeARM},
		{name: "arm thumb v8 be", arch: api.ArchARM, mode: api.ModeThumb | api.ModeV8 | api.ModeBigEndian},
		{name: "arm both", arch: api.ArchARM, mode: api.ModeARM | api.ModeThumb, exp: api.ErrMode},
		{name: "arm none", arch: api.ArchARM, mode: api.ModeV8, exp: api.ErrMode},
		{name: "arm64", arch: api.ArchARM64, mode: api.ModeLittleEndian},
		{name: "arm64 be", arch: api.ArchARM64, mode: api.ModeBigEndian, exp: api.ErrMode},
		{name: "mips32", arch: api.ArchMIPS, mode: api.ModeMIPS32},
		{name: "mips64 be", arch: api.ArchMIPS, mode: api.ModeMIPS64 | api.ModeBigEndian},
		{name: "mips32r6", arch: api.ArchMIPS, mode: api.ModeMIPS32 | api.ModeMIPS32R6},
		{name: "mips3", arch: api.ArchMIPS, mode: api.ModeMIPS3},
		{name: "mips3 r6", arch: api.ArchMIPS, mode: api.ModeMIPS3 | api.ModeMIPS32R6, exp: api.ErrMode},
		{name: "micromips", arch: api.ArchMIPS, mode: api.ModeMIPS32 | api.ModeMicro, exp: api.ErrMode},
		{name: "ppc32 be", arch: api.ArchPPC, mode: api.ModePPC32 | api.ModeBigEndian},
		{name: "ppc64", arch: api.ArchPPC, mode: api.ModePPC64},
		{name: "ppc64 qpx", arch: api.ArchPPC, mode: api.ModePPC64 | api.ModeQPX | api.ModeBigEndian},
		{name: "ppc32 qpx", arch: api.ArchPPC, mode: api.ModePPC32 | api.ModeQPX, exp: api.ErrMode},
		{name: "sparc32", arch: api.ArchSPARC, mode: api.ModeSPARC32 | api.ModeBigEndian},
		{name: "sparc64 v9", arch: api.ArchSPARC, mode: api.ModeSPARC64 | api.ModeV9 | api.ModeBigEndian},
		{name: "sparc little endian", arch: api.ArchSPARC, mode: api.ModeSPARC32, exp: api.ErrMode},
		{name: "systemz", arch: api.ArchSystemZ, mode: api.ModeBigEndian},
		{name: "systemz little endian", arch: api.ArchSystemZ, mode: api.ModeLittleEndian, exp: api.ErrMode},
		{name: "hexagon", arch: api.ArchHexagon, mode: api.ModeLittleEndian},
		{name: "hexagon be", arch: api.ArchHexagon, mode: api.ModeBigEndian},
		{name: "hexagon other", arch: api.ArchHexagon, mode: api.Mode32, exp: api.ErrMode},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMode(tc.arch, tc.mode)
			if tc.exp == nil {
				require.NoError(t, err)
			} else {
				require.Equal(t, tc.exp, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		arch  api.Arch
		mode  api.Mode
		order binary.ByteOrder
		nop   []byte
	}{
		{arch: api.ArchX86, mode: api.Mode64, order: binary.LittleEndian, nop: []byte{0x90}},
		{arch: api.ArchARM64, mode: api.ModeLittleEndian, order: binary.LittleEndian},
		{arch: api.ArchPPC, mode: api.ModePPC32 | api.ModeBigEndian, order: binary.BigEndian},
		{arch: api.ArchPPC, mode: api.ModePPC64, order: binary.LittleEndian},
		{arch: api.ArchSPARC, mode: api.ModeSPARC32 | api.ModeBigEndian, order: binary.BigEndian},
		{arch: api.ArchSystemZ, mode: api.ModeBigEndian, order: binary.BigEndian, nop: []byte{0x07, 0x00}},
		{arch: api.ArchHexagon, mode: api.ModeBigEndian, order: binary.LittleEndian},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.arch.String(), func(t *testing.T) {
			enc, err := New(tc.arch, tc.mode)
			require.NoError(t, err)
			require.Equal(t, tc.order, enc.ByteOrder())
			require.NotEmpty(t, enc.Nop())
			if tc.nop != nil {
				require.Equal(t, tc.nop, enc.Nop())
			}
		})
	}

	_, err := New(api.ArchX86, api.ModeBigEndian)
	require.Equal(t, api.ErrMode, err)
	_, err = New(api.ArchMax, api.Mode32)
	require.Equal(t, api.ErrArch, err)
}

func TestSyntax(t *testing.T) {
	require.Equal(t, api.SyntaxIntel, DefaultSyntax(api.ArchX86))
	require.Equal(t, api.SyntaxGAS, DefaultSyntax(api.ArchARM))

	for _, s := range []api.Syntax{api.SyntaxIntel, api.SyntaxATT, api.SyntaxNASM, api.SyntaxMASM, api.SyntaxGAS} {
		require.True(t, SyntaxSupported(api.ArchX86, s), s)
		require.Equal(t, s == api.SyntaxGAS, SyntaxSupported(api.ArchMIPS, s), s)
	}
	require.False(t, SyntaxSupported(api.ArchX86, api.SyntaxIntel|api.SyntaxATT))
	require.False(t, SyntaxSupported(api.ArchX86, 0))

	require.Equal(t, syntax.DialectATT, Dialect(api.ArchX86, api.SyntaxGAS))
	require.Equal(t, syntax.DialectNASM, Dialect(api.ArchX86, api.SyntaxNASM))
	require.Equal(t, syntax.DialectGAS, Dialect(api.ArchPPC, api.SyntaxGAS))
}
