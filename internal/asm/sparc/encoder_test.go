package sparc

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
	"github.com/tetratelabs/keystone/internal/syntax"
)

func assemble(mode api.Mode, src string, address uint64) ([]byte, error) {
	enc := New(mode)
	stmts, err := syntax.Parse(src, syntax.Options{Arch: api.ArchSPARC, Mode: mode, Syntax: api.SyntaxGAS, Encoder: enc})
	if err != nil {
		return nil, err
	}
	res, err := asm.Assemble(enc, stmts, asm.Config{Address: address})
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

func words(ws ...uint32) []byte {
	var ret []byte
	for _, w := range ws {
		ret = binary.BigEndian.AppendUint32(ret, w)
	}
	return ret
}

func TestEncoder_V8(t *testing.T) {
	tests := []struct {
		src string
		exp []uint32
	}{
		{src: "nop", exp: []uint32{0x01000000}},
		{src: "add %o0, %o1, %o2", exp: []uint32{0x94020009}},
		{src: "add %o0, 5, %o1", exp: []uint32{0x92022005}},
		{src: "add %r8, %r9, %r10", exp: []uint32{0x94020009}},
		{src: "sub %o0, %o1, %o2", exp: []uint32{0x94220009}},
		{src: "addcc %o0, %o1, %o2", exp: []uint32{0x94820009}},
		{src: "umul %o0, %o1, %o2", exp: []uint32{0x94520009}},
		{src: "smul %o0, %o1, %o2", exp: []uint32{0x945a0009}},
		{src: "cmp %o0, %o1", exp: []uint32{0x80a20009}},
		{src: "cmp %o0, 5", exp: []uint32{0x80a22005}},
		{src: "tst %o0", exp: []uint32{0x80900008}},
		{src: "mov 5, %o0", exp: []uint32{0x90102005}},
		{src: "mov %o1, %o0", exp: []uint32{0x90100009}},
		{src: "clr %o0", exp: []uint32{0x90100000}},
		{src: "clr [%o0 + 4]", exp: []uint32{0xc0222004}},
		{src: "inc %o0", exp: []uint32{0x90022001}},
		{src: "inc 4, %o0", exp: []uint32{0x90022004}},
		{src: "dec %o0", exp: []uint32{0x90222001}},
		{src: "neg %o0", exp: []uint32{0x90200008}},
		{src: "not %o0", exp: []uint32{0x903a0000}},
		{src: "sll %o0, 2, %o1", exp: []uint32{0x932a2002}},
		{src: "srl %o0, %o1, %o2", exp: []uint32{0x95320009}},
		{src: "sethi %hi(0x12345678), %g1", exp: []uint32{0x03048d15}},
		{src: "or %g1, %lo(0x12345678), %g1", exp: []uint32{0x82106278}},
		{src: "set 0x12345678, %g1", exp: []uint32{0x03048d15, 0x82106278}},
		{src: "set 0x12345400, %g1", exp: []uint32{0x03048d15}},
		{src: "set 5, %g1", exp: []uint32{0x82102005}},
		{src: "set -1, %g1", exp: []uint32{0x82103fff}},
		{src: "ld [%o0 + 8], %g1", exp: []uint32{0xc2022008}},
		{src: "ld [%o0], %g1", exp: []uint32{0xc2020000}},
		{src: "ld [%o0 + %o1], %g1", exp: []uint32{0xc2020009}},
		{src: "ld [%o0 - 4], %g1", exp: []uint32{0xc2023ffc}},
		{src: "ldub [%o0], %g1", exp: []uint32{0xc20a0000}},
		{src: "st %g1, [%o0 + 8]", exp: []uint32{0xc2222008}},
		{src: "stb %g1, [%o0]", exp: []uint32{0xc22a0000}},
		{src: "ld [%o0], %f0", exp: []uint32{0xc1020000}},
		{src: "save %sp, -96, %sp", exp: []uint32{0x9de3bfa0}},
		{src: "restore", exp: []uint32{0x81e80000}},
		{src: "restore %g0, %g0, %g0", exp: []uint32{0x81e80000}},
		{src: "ret", exp: []uint32{0x81c7e008}},
		{src: "retl", exp: []uint32{0x81c3e008}},
		{src: "jmpl %o0 + 4, %o7", exp: []uint32{0x9fc22004}},
		{src: "jmp %o7 + 8", exp: []uint32{0x81c3e008}},
		{src: "call %o0", exp: []uint32{0x9fc20000}},
		{src: "ta 0x10", exp: []uint32{0x91d02010}},
		{src: "ta 3", exp: []uint32{0x91d02003}},
		{src: "rd %y, %o0", exp: []uint32{0x91400000}},
		{src: "mov %o0, %y", exp: []uint32{0x81800008}},
		{src: "wr %o0, 5, %y", exp: []uint32{0x81822005}},
		{src: "fadds %f0, %f1, %f2", exp: []uint32{0x85a00821}},
		{src: "fcmps %f0, %f1", exp: []uint32{0x81a80a21}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModeSPARC32|api.ModeBigEndian, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp...), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_V9(t *testing.T) {
	tests := []struct {
		src string
		exp uint32
	}{
		{src: "ldx [%o0 + 8], %g1", exp: 0xc25a2008},
		{src: "stx %g1, [%sp + 2047]", exp: 0xc273a7ff},
		{src: "mulx %o0, %o1, %o2", exp: 0x944a0009},
		{src: "sdivx %o0, %o1, %o2", exp: 0x956a0009},
		{src: "udivx %o0, %o1, %o2", exp: 0x946a0009},
		{src: "sllx %o0, 2, %o1", exp: 0x932a3002},
		{src: "1: bne,pt %xcc, 1b", exp: 0x12680000},
		{src: "1: ba %icc, 1b", exp: 0x10480000},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModeSPARC64|api.ModeBigEndian, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp), actual, hex.EncodeToString(actual))

			// V9 in 32-bit mode.
			actual, err = assemble(api.ModeSPARC32|api.ModeV9|api.ModeBigEndian, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_Branches(t *testing.T) {
	const src = `
	cmp %o0, 5
	bne 1f
	 nop
	ba,a 1f
1:	retl
	 nop
	call 0
	fbe 2f
2:	brz,pn %o0, 2b
`
	actual, err := assemble(api.ModeSPARC64|api.ModeBigEndian, src, 0)
	require.NoError(t, err)
	require.Equal(t, words(
		0x80a22005, 0x12800003, 0x01000000, 0x30800001, 0x81c3e008, 0x01000000, 0x7ffffffa, 0x13800001,
		0x02c20000,
	), actual, hex.EncodeToString(actual))
}

func TestEncoder_Symbols(t *testing.T) {
	// Symbolic constants always take the long form.
	actual, err := assemble(api.ModeSPARC32|api.ModeBigEndian, "set end, %g1\nend:", 0x1000)
	require.NoError(t, err)
	require.Equal(t, words(0x03000004, 0x82106008), actual)
}

func TestEncoder_Errors(t *testing.T) {
	tests := []struct {
		name string
		mode api.Mode
		src  string
		code api.Err
	}{
		{name: "unknown", mode: api.ModeSPARC32, src: "frob %o0", code: api.ErrAsmMnemonicFail},
		{name: "ldx on v8", mode: api.ModeSPARC32, src: "ldx [%o0], %g1", code: api.ErrAsmMissingFeature},
		{name: "predicted branch on v8", mode: api.ModeSPARC32, src: "1: bne,pt %icc, 1b", code: api.ErrAsmMissingFeature},
		{name: "simm13 range", mode: api.ModeSPARC32, src: "add %o0, 4096, %o1", code: api.ErrAsmInvalidOperand},
		{name: "shift range", mode: api.ModeSPARC32, src: "sll %o0, 32, %o1", code: api.ErrAsmInvalidOperand},
		{name: "branch alignment", mode: api.ModeSPARC32, src: "ba 2", code: api.ErrAsmInvalidOperand},
		{name: "load without address", mode: api.ModeSPARC32, src: "ld %o0, %g1", code: api.ErrAsmInvalidOperand},
		{name: "floating point register", mode: api.ModeSPARC32, src: "fadds %f0, %o1, %f2", code: api.ErrAsmInvalidOperand},
		{name: "operand count", mode: api.ModeSPARC32, src: "add %o0, %o1", code: api.ErrAsmInvalidOperand},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := assemble(tc.mode|api.ModeBigEndian, tc.src, 0)
			require.Error(t, err)
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae), err)
			require.Equal(t, tc.code, ae.Code, err.Error())
		})
	}
}
