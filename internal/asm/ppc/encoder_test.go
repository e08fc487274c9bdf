package ppc

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/ppc64/ppc64asm"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
	"github.com/tetratelabs/keystone/internal/syntax"
)

func assemble(mode api.Mode, src string, address uint64) ([]byte, error) {
	enc := New(mode)
	stmts, err := syntax.Parse(src, syntax.Options{Arch: api.ArchPPC, Mode: mode, Syntax: api.SyntaxGAS, Encoder: enc})
	if err != nil {
		return nil, err
	}
	res, err := asm.Assemble(enc, stmts, asm.Config{Address: address})
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

func words(order binary.AppendByteOrder, ws ...uint32) []byte {
	var ret []byte
	for _, w := range ws {
		ret = order.AppendUint32(ret, w)
	}
	return ret
}

func TestEncoder_PPC32(t *testing.T) {
	tests := []struct {
		src string
		exp uint32
	}{
		{src: "nop", exp: 0x60000000},
		{src: "addi 3, 1, 8", exp: 0x38610008},
		{src: "addi r3, r1, 8", exp: 0x38610008},
		{src: "li 3, 1", exp: 0x38600001},
		{src: "li 3, -1", exp: 0x3860ffff},
		{src: "lis 3, 0x1234", exp: 0x3c601234},
		{src: "lis 3, 0x8000", exp: 0x3c608000},
		{src: "addis 3, 3, 1", exp: 0x3c630001},
		{src: "subi 3, 3, 1", exp: 0x3863ffff},
		{src: "la 3, 8(1)", exp: 0x38610008},
		{src: "mulli 3, 4, 10", exp: 0x1c64000a},
		{src: "ori 3, 3, 0x5678", exp: 0x60635678},
		{src: "andi. 3, 4, 1", exp: 0x70830001},
		{src: "add 3, 4, 5", exp: 0x7c642a14},
		{src: "add. 3, 4, 5", exp: 0x7c642a15},
		{src: "addo 3, 4, 5", exp: 0x7c642e14},
		{src: "subf 3, 4, 5", exp: 0x7c642850},
		{src: "sub 3, 5, 4", exp: 0x7c642850},
		{src: "neg 3, 4", exp: 0x7c6400d0},
		{src: "mullw 3, 4, 5", exp: 0x7c6429d6},
		{src: "divw 3, 4, 5", exp: 0x7c642bd6},
		{src: "and 3, 4, 5", exp: 0x7c832838},
		{src: "or 3, 4, 5", exp: 0x7c832b78},
		{src: "xor 3, 4, 5", exp: 0x7c832a78},
		{src: "nor 3, 4, 5", exp: 0x7c8328f8},
		{src: "mr 3, 4", exp: 0x7c832378},
		{src: "slw 3, 4, 5", exp: 0x7c832830},
		{src: "srawi 3, 4, 2", exp: 0x7c831670},
		{src: "slwi 3, 4, 2", exp: 0x5483103a},
		{src: "srwi 3, 4, 2", exp: 0x5483f0be},
		{src: "rlwinm 3, 4, 2, 0, 29", exp: 0x5483103a},
		{src: "extsb 3, 4", exp: 0x7c830774},
		{src: "extsh 3, 4", exp: 0x7c830734},
		{src: "cntlzw 3, 4", exp: 0x7c830034},
		{src: "lwz 3, 8(1)", exp: 0x80610008},
		{src: "stw 3, 8(1)", exp: 0x90610008},
		{src: "stwu 1, -16(1)", exp: 0x9421fff0},
		{src: "stwu r1, -16(r1)", exp: 0x9421fff0},
		{src: "lbz 3, 0(4)", exp: 0x88640000},
		{src: "lwzx 3, 4, 5", exp: 0x7c642a2e},
		{src: "stwx 3, 4, 5", exp: 0x7c64292e},
		{src: "cmpwi 3, 0", exp: 0x2c030000},
		{src: "cmpwi cr7, 3, 0", exp: 0x2f830000},
		{src: "cmplwi 3, 5", exp: 0x28030005},
		{src: "cmpw 3, 4", exp: 0x7c032000},
		{src: "cmplw 3, 4", exp: 0x7c032040},
		{src: "blr", exp: 0x4e800020},
		{src: "blrl", exp: 0x4e800021},
		{src: "bctr", exp: 0x4e800420},
		{src: "bctrl", exp: 0x4e800421},
		{src: "beqlr", exp: 0x4d820020},
		{src: "mtlr 0", exp: 0x7c0803a6},
		{src: "mflr 0", exp: 0x7c0802a6},
		{src: "mtctr 3", exp: 0x7c6903a6},
		{src: "mtspr 9, 3", exp: 0x7c6903a6},
		{src: "mfcr 3", exp: 0x7c600026},
		{src: "sc", exp: 0x44000002},
		{src: "trap", exp: 0x7fe00008},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModePPC32|api.ModeBigEndian, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(binary.BigEndian, tc.exp), actual, hex.EncodeToString(actual))

			actual, err = assemble(api.ModePPC64, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(binary.LittleEndian, tc.exp), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_PPC64(t *testing.T) {
	tests := []struct {
		src string
		exp uint32
	}{
		{src: "ld 3, 8(1)", exp: 0xe8610008},
		{src: "std 3, 8(1)", exp: 0xf8610008},
		{src: "stdu 1, -32(1)", exp: 0xf821ffe1},
		{src: "cmpdi 3, 0", exp: 0x2c230000},
		{src: "cmpd 3, 4", exp: 0x7c232000},
		{src: "extsw 3, 4", exp: 0x7c8307b4},
		{src: "mulld 3, 4, 5", exp: 0x7c6429d2},
		{src: "divd 3, 4, 5", exp: 0x7c642bd2},
		{src: "sld 3, 4, 5", exp: 0x7c832836},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModePPC64|api.ModeBigEndian, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(binary.BigEndian, tc.exp), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_Branches(t *testing.T) {
	const src = `
1:	cmpwi 3, 0
	beq 2f
	addi 3, 3, -1
	b 1b
2:	blr
3:	bdnz 3b
	bne cr7, 4f
4:	bl 0x1000
	ba 0x100
`
	actual, err := assemble(api.ModePPC32|api.ModeBigEndian, src, 0)
	require.NoError(t, err)
	require.Equal(t, words(binary.BigEndian,
		0x2c030000, 0x4182000c, 0x3863ffff, 0x4bfffff4, 0x4e800020, 0x42000000, 0x409e0004, 0x48000fe5,
		0x48000102,
	), actual, hex.EncodeToString(actual))
}

func TestEncoder_Variants(t *testing.T) {
	actual, err := assemble(api.ModePPC32|api.ModeBigEndian, "lis 3, here@ha\naddi 3, 3, here@l\nhere:", 0x12348000)
	require.NoError(t, err)
	require.Equal(t, words(binary.BigEndian, 0x3c601235, 0x38638008), actual, hex.EncodeToString(actual))
}

// TestEncoder_Decode checks the op of every encoding against an independent decoder.
func TestEncoder_Decode(t *testing.T) {
	tests := []struct {
		src, op string
	}{
		{src: "addi 3, 1, 8", op: "addi"},
		{src: "li 3, 1", op: "addi"},
		{src: "lis 3, 1", op: "addis"},
		{src: "ori 3, 3, 1", op: "ori"},
		{src: "add 3, 4, 5", op: "add"},
		{src: "subf 3, 4, 5", op: "subf"},
		{src: "lwz 3, 8(1)", op: "lwz"},
		{src: "stwu 1, -16(1)", op: "stwu"},
		{src: "rlwinm 3, 4, 2, 0, 29", op: "rlwinm"},
		{src: "mr 3, 4", op: "or"},
		{src: "ld 3, 8(1)", op: "ld"},
		{src: "std 3, 8(1)", op: "std"},
		{src: "sc", op: "sc"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModePPC64, tc.src, 0)
			require.NoError(t, err)
			decoded, err := ppc64asm.Decode(actual, binary.LittleEndian)
			require.NoError(t, err)
			require.Equal(t, tc.op, decoded.Op.String())
		})
	}
}

func TestEncoder_Errors(t *testing.T) {
	tests := []struct {
		name string
		mode api.Mode
		src  string
		code api.Err
	}{
		{name: "unknown", mode: api.ModePPC32, src: "frob 3", code: api.ErrAsmMnemonicFail},
		{name: "doubleword in 32-bit", mode: api.ModePPC32, src: "ld 3, 0(1)", code: api.ErrAsmMissingFeature},
		{name: "misaligned ds", mode: api.ModePPC64, src: "ld 3, 2(1)", code: api.ErrAsmInvalidOperand},
		{name: "immediate range", mode: api.ModePPC32, src: "addi 3, 3, 0x8000", code: api.ErrAsmInvalidOperand},
		{name: "logical range", mode: api.ModePPC32, src: "ori 3, 3, -1", code: api.ErrAsmInvalidOperand},
		{name: "shift range", mode: api.ModePPC32, src: "slwi 3, 4, 32", code: api.ErrAsmInvalidOperand},
		{name: "branch range", mode: api.ModePPC32, src: "beq 0x10000", code: api.ErrAsmInvalidOperand},
		{name: "branch alignment", mode: api.ModePPC32, src: "b 6", code: api.ErrAsmInvalidOperand},
		{name: "register", mode: api.ModePPC32, src: "add 3, 4, 32", code: api.ErrAsmInvalidOperand},
		{name: "condition register", mode: api.ModePPC32, src: "cmpwi 9, 3, 0", code: api.ErrAsmInvalidOperand},
		{name: "operand count", mode: api.ModePPC32, src: "add 3, 4", code: api.ErrAsmInvalidOperand},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := assemble(tc.mode, tc.src, 0)
			require.Error(t, err)
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae), err)
			require.Equal(t, tc.code, ae.Code, err.Error())
		})
	}
}
