package hexagon

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

func assemble(src string, address uint64) ([]byte, error) {
	enc := New(api.ModeLittleEndian)
	stmts, err := syntax.Parse(src, syntax.Options{Arch: api.ArchHexagon, Syntax: api.SyntaxGAS, Encoder: enc})
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
		ret = binary.LittleEndian.AppendUint32(ret, w)
	}
	return ret
}

func TestEncoder_Encode(t *testing.T) {
	tests := []struct {
		src string
		exp uint32
	}{
		{src: "nop", exp: 0x7f00c000},
		{src: "r0 = #1", exp: 0x7800c020},
		{src: "r0 = #-1", exp: 0x78dfffe0},
		{src: "r0 = r1", exp: 0x7061c000},
		{src: "r0.h = #0x1234", exp: 0x7220d234},
		{src: "r3.l = #0xffff", exp: 0x71e3ffff},
		{src: "r1 = add(r0, #2)", exp: 0xb000c041},
		{src: "r1 = add(r0, #-1)", exp: 0xbfe0ffe1},
		{src: "r1 = add(r2, r3)", exp: 0xf302c301},
		{src: "r1 = sub(r2, r3)", exp: 0xf323c201},
		{src: "r2 = and(r1, #-1)", exp: 0x7621ffe2},
		{src: "r1 = or(r2, r3)", exp: 0xf122c301},
		{src: "r1 = xor(r2, r3)", exp: 0xf162c301},
		{src: "p0 = cmp.eq(r1, #5)", exp: 0x7501c0a0},
		{src: "p1 = cmp.gt(r2, r3)", exp: 0xf242c301},
		{src: "r2 = memw(r1+#4)", exp: 0x9181c022},
		{src: "r2 = memb(r1+#3)", exp: 0x9101c062},
		{src: "r0 = memw(r29)", exp: 0x919dc000},
		{src: "memw(r29+#-8) = r2", exp: 0xa79de2fe},
		{src: "memh(sp+#6) = r2", exp: 0xa15dc203},
		{src: "memw(r29+#0) = r0", exp: 0xa19dc000},
		{src: "jumpr r31", exp: 0x529fc000},
		{src: "jumpr lr", exp: 0x529fc000},
		{src: "callr r2", exp: 0x50a2c000},
		{src: "allocframe(#8)", exp: 0xa09dc001},
		{src: "deallocframe", exp: 0x901ec01e},
		{src: "dealloc_return", exp: 0x961ec01e},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_Packets(t *testing.T) {
	const src = `
{ r0 = #1
  r1 = add(r0, #2) }
{ r2 = #0
  jump done }
nop
done:
  jumpr lr
`
	actual, err := assemble(src, 0)
	require.NoError(t, err)
	require.Equal(t, words(
		0x78004020, 0xb000c041,
		// The jump is relative to its packet at 8, not its own address.
		0x78004002, 0x5800c006,
		0x7f00c000,
		0x529fc000,
	), actual, hex.EncodeToString(actual))
}

func TestEncoder_Branches(t *testing.T) {
	const src = `
start:
  nop
  jump start
  call fn
  if (!p0) jump fn
  if (p1) jump start
fn:
  jumpr r31
`
	actual, err := assemble(src, 0x100)
	require.NoError(t, err)
	require.Equal(t, words(0x7f00c000, 0x59fffffe, 0x5a00c006, 0x5c20c004, 0x5cdfe1f8, 0x529fc000),
		actual, hex.EncodeToString(actual))
}

func TestEncoder_Extender(t *testing.T) {
	actual, err := assemble("r0 = #0x12345678", 0)
	require.NoError(t, err)
	require.Equal(t, words(0x01235159, 0x7800c700), actual)

	// A symbol out of range switches to the extended form in a later pass.
	actual, err = assemble("r0 = #end\nend:", 0x10000000)
	require.NoError(t, err)
	require.Equal(t, words(0x01004000, 0x7800c100), actual)
}

func TestEncoder_Errors(t *testing.T) {
	tests := []struct {
		name, src string
		code      api.Err
	}{
		{name: "unknown", src: "frob r0", code: api.ErrAsmMnemonicFail},
		{name: "predicated transfer", src: "if (p0) r0 = r1", code: api.ErrAsmMissingFeature},
		{name: "register pair", src: "r0 = memd(r1+#8)", code: api.ErrAsmMissingFeature},
		{name: "unaligned offset", src: "r0 = memw(r1+#2)", code: api.ErrAsmInvalidOperand},
		{name: "offset range", src: "r0 = memw(r1+#4096)", code: api.ErrAsmInvalidOperand},
		{name: "unsigned store", src: "memub(r1+#0) = r0", code: api.ErrAsmInvalidOperand},
		{name: "logical immediate", src: "r0 = and(r1, #512)", code: api.ErrAsmInvalidOperand},
		{name: "xor immediate", src: "r0 = xor(r1, #1)", code: api.ErrAsmInvalidOperand},
		{name: "compare destination", src: "r0 = cmp.eq(r1, r2)", code: api.ErrAsmInvalidOperand},
		{name: "branch alignment", src: "jump 2", code: api.ErrAsmInvalidOperand},
		{name: "frame size", src: "allocframe(#7)", code: api.ErrAsmInvalidOperand},
		{name: "operand count", src: "r0 = add(r1)", code: api.ErrAsmInvalidOperand},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := assemble(tc.src, 0)
			require.Error(t, err)
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae), err)
			require.Equal(t, tc.code, ae.Code, err.Error())
		})
	}
}
