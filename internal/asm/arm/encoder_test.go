package arm

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm/armasm"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
	"github.com/tetratelabs/keystone/internal/syntax"
)

func assemble(mode api.Mode, src string, address uint64) ([]byte, error) {
	enc := New(mode)
	stmts, err := syntax.Parse(src, syntax.Options{Arch: api.ArchARM, Mode: mode, Syntax: api.SyntaxGAS, Encoder: enc})
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

func halfwords(hs ...uint16) []byte {
	var ret []byte
	for _, h := range hs {
		ret = binary.LittleEndian.AppendUint16(ret, h)
	}
	return ret
}

func TestEncoder_A32(t *testing.T) {
	tests := []struct {
		src string
		exp uint32
	}{
		{src: "mov r0, #1", exp: 0xe3a00001},
		{src: "mov r0, #-1", exp: 0xe3e00000},
		{src: "mov r0, #0x1234", exp: 0xe3010234},
		{src: "mov r0, #0xff000000", exp: 0xe3a004ff},
		{src: "add r0, r1, #-1", exp: 0xe2410001},
		{src: "cmp r0, #-1", exp: 0xe3700001},
		{src: "and r0, r1, #0xffffff00", exp: 0xe3c100ff},
		{src: "add r0, r1, r2, lsl #3", exp: 0xe0810182},
		{src: "add r0, r1, r2, lsl r3", exp: 0xe0810312},
		{src: "movs r0, r1, rrx", exp: 0xe1b00061},
		{src: "addeq r0, r1, r2", exp: 0x00810002},
		{src: "addseq r0, r1, r2", exp: 0x00910002},
		{src: "addeqs r0, r1, r2", exp: 0x00910002},
		{src: "lsl r0, r1, #2", exp: 0xe1a00101},
		{src: "lsr r0, r1, r2", exp: 0xe1a00231},
		{src: "asr r0, r1, #32", exp: 0xe1a00041},
		{src: "teq r0, r1", exp: 0xe1300001},
		{src: "rsb r0, r1, #0", exp: 0xe2610000},
		{src: "mul r0, r1, r2", exp: 0xe0000291},
		{src: "mla r0, r1, r2, r3", exp: 0xe0203291},
		{src: "umull r0, r1, r2, r3", exp: 0xe0810392},
		{src: "ldr r0, [r1]", exp: 0xe5910000},
		{src: "ldr r0, [r1, #-4]", exp: 0xe5110004},
		{src: "ldr r0, [r1, #4]!", exp: 0xe5b10004},
		{src: "ldr r0, [r1], #4", exp: 0xe4910004},
		{src: "ldr r0, [r1, -r2, lsl #2]", exp: 0xe7110102},
		{src: "ldr r0, [r1], r2", exp: 0xe6910002},
		{src: "ldr r0, =0x100", exp: 0xe3a00c01},
		{src: "ldrb r0, [r1, #1]", exp: 0xe5d10001},
		{src: "strh r0, [r1, #2]", exp: 0xe1c100b2},
		{src: "ldrsb r0, [r1, #-2]", exp: 0xe15100d2},
		{src: "ldrsh r0, [r1, r2]", exp: 0xe19100f2},
		{src: "ldrd r0, r1, [r2, #8]", exp: 0xe1c200d8},
		{src: "push {r0}", exp: 0xe52d0004},
		{src: "pop {r0}", exp: 0xe49d0004},
		{src: "push {r4, lr}", exp: 0xe92d4010},
		{src: "pop {r4, pc}", exp: 0xe8bd8010},
		{src: "ldm r0!, {r1, r2}", exp: 0xe8b00006},
		{src: "stmdb sp!, {r0, r1}", exp: 0xe92d0003},
		{src: "ldmfd sp!, {r0, r1}", exp: 0xe8bd0003},
		{src: "bx lr", exp: 0xe12fff1e},
		{src: "blx r3", exp: 0xe12fff33},
		{src: "svc #1", exp: 0xef000001},
		{src: "nop", exp: 0xe320f000},
		{src: "wfi", exp: 0xe320f003},
		{src: "movw r0, #0x1234", exp: 0xe3010234},
		{src: "movt r0, #0x1234", exp: 0xe3410234},
		{src: "bkpt #1", exp: 0xe1200071},
		{src: "clz r0, r1", exp: 0xe16f0f11},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModeARM, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp), actual, hex.EncodeToString(actual))

			// The decoder must agree on the instruction length.
			inst, err := armasm.Decode(actual, armasm.ModeARM)
			require.NoError(t, err)
			require.Equal(t, 4, inst.Len)
		})
	}
}

func TestEncoder_A32Labels(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		address uint64
		exp     []uint32
	}{
		{name: "forward", src: "b 1f\nnop\n1:", exp: []uint32{0xea000000, 0xe320f000}},
		{name: "backward", src: "1: nop\nbl 1b\nbne 1b", exp: []uint32{0xe320f000, 0xebfffffd, 0x1afffffc}},
		{name: "absolute", src: "b 0x1000", address: 0x1000, exp: []uint32{0xeafffffe}},
		{name: "blx to thumb", src: "blx 0x1006", address: 0x1000, exp: []uint32{0xfbffffff}},
		{name: "adr", src: "1: adr r0, 1b", exp: []uint32{0xe24f0008}},
		{name: "ldr literal", src: "1: nop\nldr r1, 1b", exp: []uint32{0xe320f000, 0xe51f100c}},
		{name: "ldrh literal", src: "ldrh r2, 1f\nnop\n1:", exp: []uint32{0xe1df20b0, 0xe320f000}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := assemble(api.ModeARM, tc.src, tc.address)
			require.NoError(t, err)
			require.Equal(t, words(tc.exp...), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_Thumb(t *testing.T) {
	tests := []struct {
		src string
		exp []uint16
	}{
		{src: "mov r0, #1", exp: []uint16{0xf04f, 0x0001}},
		{src: "movs r0, #1", exp: []uint16{0x2001}},
		{src: "mov r0, r1", exp: []uint16{0x4608}},
		{src: "movs r0, r1", exp: []uint16{0x0008}},
		{src: "mov r8, r1", exp: []uint16{0x4688}},
		{src: "mov r0, #-1", exp: []uint16{0xf04f, 0x30ff}},
		{src: "mov r0, #0x1234", exp: []uint16{0xf241, 0x2034}},
		{src: "movs r0, #256", exp: []uint16{0xf45f, 0x7080}},
		{src: "add r0, r1, r2", exp: []uint16{0xeb01, 0x0002}},
		{src: "adds r0, r1, r2", exp: []uint16{0x1888}},
		{src: "adds r0, r0, #1", exp: []uint16{0x1c40}},
		{src: "adds r0, #1", exp: []uint16{0x3001}},
		{src: "adds r0, r1, #200", exp: []uint16{0xf111, 0x00c8}},
		{src: "add r0, r1", exp: []uint16{0x4408}},
		{src: "add r0, r1, #0xfff", exp: []uint16{0xf601, 0x70ff}},
		{src: "add r0, r1, r2, lsl #3", exp: []uint16{0xeb01, 0x00c2}},
		{src: "add sp, #8", exp: []uint16{0xb002}},
		{src: "sub sp, sp, #16", exp: []uint16{0xb084}},
		{src: "add r0, sp, #8", exp: []uint16{0xa802}},
		{src: "sub r0, r1, #1", exp: []uint16{0xf1a1, 0x0001}},
		{src: "and r0, r1", exp: []uint16{0xea00, 0x0001}},
		{src: "ands r0, r1", exp: []uint16{0x4008}},
		{src: "bic r0, r1, #0xff00", exp: []uint16{0xf421, 0x407f}},
		{src: "cmp r0, #1", exp: []uint16{0x2801}},
		{src: "cmp r8, r1", exp: []uint16{0x4588}},
		{src: "cmp r0, #256", exp: []uint16{0xf5b0, 0x7f80}},
		{src: "cmp r0, r1, lsl #3", exp: []uint16{0xebb0, 0x0fc1}},
		{src: "tst r0, #1", exp: []uint16{0xf010, 0x0f01}},
		{src: "mvn r0, r1", exp: []uint16{0xea6f, 0x0001}},
		{src: "mvns r0, r1", exp: []uint16{0x43c8}},
		{src: "rsbs r0, r1, #0", exp: []uint16{0x4248}},
		{src: "rsb r0, r1, #0", exp: []uint16{0xf1c1, 0x0000}},
		{src: "lsls r0, r1, #2", exp: []uint16{0x0088}},
		{src: "lsl r0, r1, #2", exp: []uint16{0xea4f, 0x0081}},
		{src: "lsls r0, r0, r2", exp: []uint16{0x4090}},
		{src: "lsls r0, r1, r2", exp: []uint16{0xfa11, 0xf002}},
		{src: "asrs r0, r1, #32", exp: []uint16{0x1008}},
		{src: "ror r0, r1, #3", exp: []uint16{0xea4f, 0x00f1}},
		{src: "rrx r0, r1", exp: []uint16{0xea4f, 0x0031}},
		{src: "muls r0, r1, r0", exp: []uint16{0x4348}},
		{src: "mul r0, r1, r2", exp: []uint16{0xfb01, 0xf002}},
		{src: "mla r0, r1, r2, r3", exp: []uint16{0xfb01, 0x3002}},
		{src: "umull r0, r1, r2, r3", exp: []uint16{0xfba2, 0x0103}},
		{src: "clz r0, r1", exp: []uint16{0xfab1, 0xf081}},
		{src: "movw r0, #0x1234", exp: []uint16{0xf241, 0x2034}},
		{src: "movt r0, #0x1234", exp: []uint16{0xf2c1, 0x2034}},
		{src: "ldr r0, [r1, #4]", exp: []uint16{0x6848}},
		{src: "ldr r0, [r1, #-4]", exp: []uint16{0xf851, 0x0c04}},
		{src: "ldr r0, [r1, #4]!", exp: []uint16{0xf851, 0x0f04}},
		{src: "ldr r0, [r1], #4", exp: []uint16{0xf851, 0x0b04}},
		{src: "ldr r0, [sp, #8]", exp: []uint16{0x9802}},
		{src: "ldr r8, [r1, #4]", exp: []uint16{0xf8d1, 0x8004}},
		{src: "ldr r0, [r1, #4095]", exp: []uint16{0xf8d1, 0x0fff}},
		{src: "ldr r0, [r1, r2]", exp: []uint16{0x5888}},
		{src: "ldr r0, [r1, r2, lsl #2]", exp: []uint16{0xf851, 0x0022}},
		{src: "ldr r0, =0x100", exp: []uint16{0xf44f, 0x7080}},
		{src: "ldrb r0, [r1, #1]", exp: []uint16{0x7848}},
		{src: "ldrh r0, [r1, #2]", exp: []uint16{0x8848}},
		{src: "ldrsh r0, [r1, #2]", exp: []uint16{0xf9b1, 0x0002}},
		{src: "ldrsh r0, [r1, r2]", exp: []uint16{0x5e88}},
		{src: "strb r0, [r1, r2]", exp: []uint16{0x5488}},
		{src: "ldrd r0, r1, [r2, #8]", exp: []uint16{0xe9d2, 0x0102}},
		{src: "strd r0, r1, [r2, #-8]!", exp: []uint16{0xe962, 0x0102}},
		{src: "push {r0}", exp: []uint16{0xb401}},
		{src: "push {r8}", exp: []uint16{0xf84d, 0x8d04}},
		{src: "pop {r8}", exp: []uint16{0xf85d, 0x8b04}},
		{src: "push {r4, r8}", exp: []uint16{0xe92d, 0x0110}},
		{src: "pop {r4, pc}", exp: []uint16{0xbd10}},
		{src: "pop {r4, r8, pc}", exp: []uint16{0xe8bd, 0x8110}},
		{src: "stmdb sp!, {r0, r1}", exp: []uint16{0xe92d, 0x0003}},
		{src: "ldm r0!, {r1, r2}", exp: []uint16{0xc806}},
		{src: "ldm r0, {r1, r8}", exp: []uint16{0xe890, 0x0102}},
		{src: "stm r0!, {r1, r2}", exp: []uint16{0xc006}},
		{src: "bx lr", exp: []uint16{0x4770}},
		{src: "blx r3", exp: []uint16{0x4798}},
		{src: "svc #1", exp: []uint16{0xdf01}},
		{src: "bkpt #1", exp: []uint16{0xbe01}},
		{src: "nop", exp: []uint16{0xbf00}},
		{src: "nop.w", exp: []uint16{0xf3af, 0x8000}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.src, func(t *testing.T) {
			actual, err := assemble(api.ModeThumb, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, halfwords(tc.exp...), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_ThumbBranches(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		address uint64
		exp     []uint16
	}{
		{
			name: "narrow",
			src:  "b 1f\nnop\n1:\nbeq 2f\nnop\n2:",
			exp:  []uint16{0xe000, 0xbf00, 0xd000, 0xbf00},
		},
		{
			name: "wide",
			src:  "bne.w 1f\n1:\nb.w 2f\n2:\nbl 3f\n3:",
			exp:  []uint16{0xf040, 0x8000, 0xf000, 0xb800, 0xf000, 0xf800},
		},
		{
			name: "relaxed",
			src:  "b far\nbeq far\n.space 4000\nfar:",
			exp:  append([]uint16{0xf000, 0xbfd2, 0xf000, 0x87d0}, make([]uint16, 2000)...),
		},
		{
			name: "pc relative",
			src:  "cbz r0, 1f\nnop\n1:\nadr r0, 2f\nnop\n2:\nldr r1, 3f\nnop\n3:",
			exp:  []uint16{0xb100, 0xbf00, 0xa000, 0xbf00, 0x4900, 0xbf00},
		},
		{
			name:    "blx to arm",
			src:     "blx 0x86535200",
			address: 0x865351d4,
			exp:     []uint16{0xf000, 0xe814},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := assemble(api.ModeThumb, tc.src, tc.address)
			require.NoError(t, err)
			require.Equal(t, halfwords(tc.exp...), actual, hex.EncodeToString(actual))
		})
	}
}

func TestEncoder_Modes(t *testing.T) {
	tests := []struct {
		name string
		mode api.Mode
		src  string
		exp  []byte
	}{
		{name: "arm big endian", mode: api.ModeARM | api.ModeBigEndian, src: "mov r0, #1", exp: []byte{0xe3, 0xa0, 0x00, 0x01}},
		{name: "thumb big endian", mode: api.ModeThumb | api.ModeBigEndian, src: "mov r0, #1", exp: []byte{0xf0, 0x4f, 0x00, 0x01}},
		{name: "arm v8 hlt", mode: api.ModeARM | api.ModeV8, src: "hlt #0", exp: []byte{0x70, 0x00, 0x00, 0xe1}},
		{name: "arm v8 sevl", mode: api.ModeARM | api.ModeV8, src: "sevl", exp: []byte{0x05, 0xf0, 0x20, 0xe3}},
		{name: "thumb v8 hlt", mode: api.ModeThumb | api.ModeV8, src: "hlt #1", exp: []byte{0x81, 0xba}},
		{name: "thumb v8 sevl", mode: api.ModeThumb | api.ModeV8, src: "sevl", exp: []byte{0x50, 0xbf}},
		{name: "arm data", mode: api.ModeARM | api.ModeBigEndian, src: ".word 0x11223344", exp: []byte{0x11, 0x22, 0x33, 0x44}},
		{name: "thumb align", mode: api.ModeThumb, src: "movs r0, #1\n.align 2\n", exp: []byte{0x01, 0x20, 0x00, 0xbf}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := assemble(tc.mode, tc.src, 0)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual, hex.EncodeToString(actual))
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
		{name: "unknown mnemonic", mode: api.ModeARM, src: "frob r0", code: api.ErrAsmMnemonicFail},
		{name: "no flag setting compare", mode: api.ModeARM, src: "cmps r0, r1", code: api.ErrAsmMnemonicFail},
		{name: "immediate", mode: api.ModeARM, src: "add r0, r1, #0x101", code: api.ErrAsmInvalidOperand},
		{name: "offset range", mode: api.ModeARM, src: "ldr r0, [r1, #4096]", code: api.ErrAsmInvalidOperand},
		{name: "unaligned branch", mode: api.ModeARM, src: "b 2", code: api.ErrAsmInvalidOperand},
		{name: "odd ldrd", mode: api.ModeARM, src: "ldrd r1, r2, [r0]", code: api.ErrAsmInvalidOperand},
		{name: "hlt without v8", mode: api.ModeARM, src: "hlt #0", code: api.ErrAsmMissingFeature},
		{name: "sevl without v8", mode: api.ModeThumb, src: "sevl", code: api.ErrAsmMissingFeature},
		{name: "literal pool", mode: api.ModeARM, src: "ldr r0, =0x12345678", code: api.ErrAsmMissingFeature},
		{name: "predicated thumb", mode: api.ModeThumb, src: "addeq r0, r1", code: api.ErrAsmMissingFeature},
		{name: "it block", mode: api.ModeThumb, src: "it eq", code: api.ErrAsmMissingFeature},
		{name: "no narrow form", mode: api.ModeThumb, src: "add.n r0, r1, r2", code: api.ErrAsmInvalidOperand},
		{name: "cbz backwards", mode: api.ModeThumb, src: "1: cbz r0, 1b", code: api.ErrAsmInvalidOperand},
		{name: "blx unaligned", mode: api.ModeThumb, src: "blx 0x1002", code: api.ErrAsmInvalidOperand},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := assemble(tc.mode, tc.src, 0)
			require.Error(t, err)
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae), err)
			require.Equal(t, tc.code, ae.Code, err.Error())
			require.Equal(t, 1, ae.Line)
		})
	}
}

func TestSplit(t *testing.T) {
	arm, thumb := New(api.ModeARM), New(api.ModeThumb)
	tests := []struct {
		enc  *Encoder
		name string
		exp  mnemonic
	}{
		{enc: arm, name: "bls", exp: mnemonic{base: "b", cond: 0b1001}},
		{enc: arm, name: "bleq", exp: mnemonic{base: "bl", cond: 0b0000}},
		{enc: arm, name: "lsls", exp: mnemonic{base: "lsl", cond: condAL, s: true}},
		{enc: arm, name: "mulls", exp: mnemonic{base: "mul", cond: 0b1001}},
		{enc: arm, name: "movseq", exp: mnemonic{base: "mov", cond: 0b0000, s: true}},
		{enc: arm, name: "teq", exp: mnemonic{base: "teq", cond: condAL}},
		{enc: thumb, name: "bne.w", exp: mnemonic{base: "b", cond: 0b0001, wide: true}},
		{enc: thumb, name: "adds.n", exp: mnemonic{base: "add", cond: condAL, s: true, narrow: true}},
	}
	for _, tc := range tests {
		m, ok := tc.enc.split(tc.name)
		require.True(t, ok, tc.name)
		require.Equal(t, tc.exp, m, tc.name)
	}
}

func TestThumbImmediate(t *testing.T) {
	for _, tc := range []struct {
		v   uint32
		exp uint32
		ok  bool
	}{
		{v: 0xab, exp: 0x0ab, ok: true},
		{v: 0x00ab00ab, exp: 0x1ab, ok: true},
		{v: 0xab00ab00, exp: 0x2ab, ok: true},
		{v: 0xabababab, exp: 0x3ab, ok: true},
		{v: 0x100, exp: 0xf80, ok: true},
		{v: 0xff00, exp: 0xc7f, ok: true},
		{v: 0x101},
		{v: 0xfff},
	} {
		enc, ok := thumbImmediate(tc.v)
		require.Equal(t, tc.ok, ok, "%#x", tc.v)
		if ok {
			require.Equal(t, tc.exp, enc, "%#x", tc.v)
		}
	}
}
