package syntax

import (
	"encoding/binary"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
)

// fakeEncoder classifies names for the parser without encoding anything.
type fakeEncoder struct{}

var fakeRegisters = map[string]struct{}{
	"eax": {}, "ebx": {}, "ecx": {}, "edx": {}, "esi": {}, "edi": {}, "ebp": {}, "esp": {}, "al": {}, "rip": {},
	"ds": {}, "es": {}, "fs": {}, "gs": {}, "sp": {}, "lr": {}, "pc": {}, "t0": {}, "p0": {}, "g1": {}, "o0": {},
	"x0": {}, "x1": {}, "w2": {},
}

func init() {
	for i := 0; i < 32; i++ {
		fakeRegisters["r"+strconv.Itoa(i)] = struct{}{}
		fakeRegisters[strconv.Itoa(i)] = struct{}{}
	}
}

var fakeMnemonics = map[string]struct{}{"mov": {}, "movzx": {}, "add": {}, "jmp": {}, "nop": {}, "push": {}}

func (fakeEncoder) Encode(*asm.Context, *asm.Statement, *asm.Buffer) error { return nil }

func (fakeEncoder) IsRegister(name string) bool {
	_, ok := fakeRegisters[name]
	return ok
}

func (fakeEncoder) IsMnemonic(name string) bool {
	_, ok := fakeMnemonics[name]
	return ok
}

func (fakeEncoder) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (fakeEncoder) Nop() []byte { return []byte{0x90} }

func parse(t *testing.T, arch api.Arch, s api.Syntax, src string) []*asm.Statement {
	stmts, err := Parse(src, Options{Arch: arch, Mode: api.Mode32, Syntax: s, Encoder: fakeEncoder{}})
	require.NoError(t, err)
	return stmts
}

func requireParseError(t *testing.T, arch api.Arch, s api.Syntax, src string, code api.Err, line int) {
	_, err := Parse(src, Options{Arch: arch, Mode: api.Mode32, Syntax: s, Encoder: fakeEncoder{}})
	require.Error(t, err)
	var ae *api.AssembleError
	require.True(t, errors.As(err, &ae), err)
	require.Equal(t, code, ae.Code, err.Error())
	require.Equal(t, line, ae.Line, err.Error())
}

func instruction(line int, mnemonic string, ops ...asm.Operand) *asm.Statement {
	return &asm.Statement{Kind: asm.KindInstruction, Line: line, Mnemonic: mnemonic, Operands: ops}
}

func mem(m asm.Memory, size int) asm.Operand {
	return asm.Operand{Kind: asm.OperandMemory, Mem: &m, Size: size}
}

func sized(op asm.Operand, size int) asm.Operand {
	op.Size = size
	return op
}

func TestParse_Intel(t *testing.T) {
	for _, tc := range []struct {
		name, src string
		exp       *asm.Statement
	}{
		{
			name: "segment override",
			src:  "JMP DWORD PTR DS:[100]",
			exp:  instruction(1, "jmp", mem(asm.Memory{Segment: "ds", Disp: asm.Const(100)}, 4)),
		},
		{
			name: "base index scale",
			src:  "mov eax, [ebx+esi*4-8]",
			exp: instruction(1, "mov", asm.Reg("eax"),
				mem(asm.Memory{Base: "ebx", Index: "esi", Scale: 4, Disp: asm.Const(-8)}, 0)),
		},
		{
			name: "scale first",
			src:  "mov eax, [4*esi+ebx]",
			exp: instruction(1, "mov", asm.Reg("eax"),
				mem(asm.Memory{Base: "ebx", Index: "esi", Scale: 4}, 0)),
		},
		{
			name: "bare symbol is immediate",
			src:  "jmp target",
			exp:  instruction(1, "jmp", asm.Imm(asm.Symbol("target"))),
		},
		{
			name: "sized absolute",
			src:  "mov byte ptr 0x10, al",
			exp:  instruction(1, "mov", mem(asm.Memory{Disp: asm.Const(16)}, 1), asm.Reg("al")),
		},
		{
			name: "hex suffix",
			src:  "mov eax, 0ffh",
			exp:  instruction(1, "mov", asm.Reg("eax"), asm.Imm(asm.Const(255))),
		},
		{
			name: "prefix",
			src:  "lock add [eax], ebx",
			exp: &asm.Statement{Kind: asm.KindInstruction, Line: 1, Mnemonic: "add", Prefixes: []string{"lock"},
				Operands: []asm.Operand{mem(asm.Memory{Base: "eax"}, 0), asm.Reg("ebx")}},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			stmts := parse(t, api.ArchX86, api.SyntaxIntel, tc.src)
			require.Equal(t, []*asm.Statement{tc.exp}, stmts)
		})
	}
}

func TestParse_ATT(t *testing.T) {
	for _, tc := range []struct {
		name, src string
		exp       *asm.Statement
	}{
		{
			name: "suffix and reversed operands",
			src:  "movl $1, -4(%ebp)",
			exp: instruction(1, "mov", mem(asm.Memory{Base: "ebp", Disp: asm.Const(-4)}, 4),
				sized(asm.Imm(asm.Const(1)), 4)),
		},
		{
			name: "register to register",
			src:  "movl %eax, %ebx",
			exp:  instruction(1, "mov", asm.Reg("ebx"), asm.Reg("eax")),
		},
		{
			name: "alias with source size",
			src:  "movzbl (%eax), %ecx",
			exp:  instruction(1, "movzx", asm.Reg("ecx"), mem(asm.Memory{Base: "eax"}, 1)),
		},
		{
			name: "index without base",
			src:  "mov 0x10(,%esi,8), %eax",
			exp: instruction(1, "mov", asm.Reg("eax"),
				mem(asm.Memory{Index: "esi", Scale: 8, Disp: asm.Const(16)}, 0)),
		},
		{
			name: "bare branch target",
			src:  "jmp target",
			exp:  instruction(1, "jmp", mem(asm.Memory{Disp: asm.Symbol("target"), Bare: true}, 0)),
		},
		{
			name: "indirect register",
			src:  "jmp *%eax",
			exp:  instruction(1, "jmp", asm.Operand{Kind: asm.OperandRegister, Reg: "eax", Indirect: true}),
		},
		{
			name: "segment",
			src:  "movl %fs:4, %eax",
			exp:  instruction(1, "mov", asm.Reg("eax"), mem(asm.Memory{Segment: "fs", Disp: asm.Const(4)}, 4)),
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			stmts := parse(t, api.ArchX86, api.SyntaxATT, tc.src)
			require.Equal(t, []*asm.Statement{tc.exp}, stmts)
		})
	}
}

func TestParse_SyntaxSwitch(t *testing.T) {
	stmts := parse(t, api.ArchX86, api.SyntaxIntel, "mov eax, ebx\n.att_syntax\nmovl %eax, %ebx\n.intel_syntax noprefix\nmov ebx, eax")
	require.Equal(t, []*asm.Statement{
		instruction(1, "mov", asm.Reg("eax"), asm.Reg("ebx")),
		instruction(3, "mov", asm.Reg("ebx"), asm.Reg("eax")),
		instruction(5, "mov", asm.Reg("ebx"), asm.Reg("eax")),
	}, stmts)
}

func TestParse_NASM(t *testing.T) {
	stmts := parse(t, api.ArchX86, api.SyntaxNASM, "msg db 'hi', 0 ; comment\nmov eax, 101b\nmov eax, 17q\nresb 2")
	require.Equal(t, []*asm.Statement{
		{Kind: asm.KindLabel, Line: 1, Name: "msg"},
		{Kind: asm.KindData, Line: 1, Width: 1, Operands: []asm.Operand{
			{Kind: asm.OperandString, Str: "hi"}, asm.Imm(asm.Const(0)),
		}},
		instruction(2, "mov", asm.Reg("eax"), asm.Imm(asm.Const(5))),
		instruction(3, "mov", asm.Reg("eax"), asm.Imm(asm.Const(15))),
		{Kind: asm.KindSpace, Line: 4, Width: 1, Value: asm.Const(2)},
	}, stmts)
}

func TestParse_NASMMacro(t *testing.T) {
	src := `%macro load 2
mov %1, %2
%endmacro
load eax, 3
times 2 nop`
	stmts := parse(t, api.ArchX86, api.SyntaxNASM, src)
	require.Equal(t, []*asm.Statement{
		instruction(4, "mov", asm.Reg("eax"), asm.Imm(asm.Const(3))),
		instruction(5, "nop"),
		instruction(5, "nop"),
	}, stmts)

	requireParseError(t, api.ArchX86, api.SyntaxNASM, "%macro load 2\nmov %1, %2\n%endmacro\nload eax", api.ErrAsmMacroArgs, 4)
}

func TestParse_MASMMacro(t *testing.T) {
	src := `load MACRO reg, val
mov reg, val
ENDM
load eax, 1`
	stmts := parse(t, api.ArchX86, api.SyntaxMASM, src)
	require.Equal(t, []*asm.Statement{instruction(4, "mov", asm.Reg("eax"), asm.Imm(asm.Const(1)))}, stmts)
}

func TestParse_LocalLabels(t *testing.T) {
	stmts := parse(t, api.ArchARM, api.SyntaxGAS, "1: b 1b\nb 1f\n1:")
	require.Equal(t, []*asm.Statement{
		{Kind: asm.KindLabel, Line: 1, Name: ".L1\x021"},
		instruction(1, "b", asm.Imm(asm.Symbol(".L1\x021"))),
		instruction(2, "b", asm.Imm(asm.Symbol(".L1\x022"))),
		{Kind: asm.KindLabel, Line: 3, Name: ".L1\x022"},
	}, stmts)
}

func TestParse_ARMOperands(t *testing.T) {
	for _, tc := range []struct {
		name, src string
		exp       *asm.Statement
	}{
		{
			name: "pre-indexed",
			src:  "ldr r0, [r1, #4]!",
			exp: instruction(1, "ldr", asm.Reg("r0"),
				mem(asm.Memory{Base: "r1", Disp: asm.Const(4), PreIndex: true}, 0)),
		},
		{
			name: "negative scaled index",
			src:  "ldr r0, [r1, -r2, lsl #2]",
			exp: instruction(1, "ldr", asm.Reg("r0"),
				mem(asm.Memory{Base: "r1", Index: "r2", IndexNeg: true, IndexShift: "lsl", IndexShiftAmount: 2}, 0)),
		},
		{
			name: "register list",
			src:  "push {r4-r6, lr}",
			exp: instruction(1, "push", asm.Operand{Kind: asm.OperandRegisterList,
				Regs: []string{"r4", "r5", "r6", "lr"}}),
		},
		{
			name: "writeback and shift",
			src:  "ldm r0!, {r1}",
			exp: instruction(1, "ldm", asm.Operand{Kind: asm.OperandRegister, Reg: "r0", Writeback: true},
				asm.Operand{Kind: asm.OperandRegisterList, Regs: []string{"r1"}}),
		},
		{
			name: "shifted register",
			src:  "add r0, r1, r2, lsl #3",
			exp: instruction(1, "add", asm.Reg("r0"), asm.Reg("r1"), asm.Reg("r2"),
				asm.Operand{Kind: asm.OperandShift, Shift: "lsl", Expr: asm.Const(3)}),
		},
		{
			name: "literal",
			src:  "ldr r0, =0x12345678",
			exp:  instruction(1, "ldr", asm.Reg("r0"), asm.Operand{Kind: asm.OperandImmediate, Expr: asm.Const(0x12345678), Literal: true}),
		},
		{
			name: "lower16",
			src:  "movw r0, #:lower16:0x12345678",
			exp: instruction(1, "movw", asm.Reg("r0"),
				asm.Imm(asm.Binary(asm.ExprAnd, asm.Const(0x12345678), asm.Const(0xffff)))),
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			stmts := parse(t, api.ArchARM, api.SyntaxGAS, tc.src)
			require.Equal(t, []*asm.Statement{tc.exp}, stmts)
		})
	}
}

func TestParse_MIPS(t *testing.T) {
	stmts := parse(t, api.ArchMIPS, api.SyntaxGAS, ".set noreorder\nlw $t0, 4($sp)\nlui $t0, %hi(0x12348765)\n.set mips32")
	require.Equal(t, 3, len(stmts))
	require.Equal(t, &asm.Statement{Kind: asm.KindOption, Line: 1, Name: asm.OptionNoReorder}, stmts[0])
	require.Equal(t, instruction(2, "lw", asm.Reg("t0"), mem(asm.Memory{Base: "sp", Disp: asm.Const(4)}, 0)), stmts[1])

	hi := stmts[2].Operands[1]
	require.Equal(t, asm.OperandImmediate, hi.Kind)
	v, ok, err := hi.Expr.Eval(nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0x1235), v)
}

func TestParse_SPARC(t *testing.T) {
	stmts := parse(t, api.ArchSPARC, api.SyntaxGAS, "ld [%o0 + 8], %g1\nba,a target ! comment")
	require.Equal(t, []*asm.Statement{
		instruction(1, "ld", mem(asm.Memory{Base: "o0", Disp: asm.Const(8)}, 0), asm.Reg("g1")),
		instruction(2, "ba,a", asm.Imm(asm.Symbol("target"))),
	}, stmts)
}

func TestParse_Hexagon(t *testing.T) {
	src := `{ r0 = #1
  r1 = add(r0, #2) }
r2 = memw(r1+#4)
memw(r29+#-8) = r2
if (!p0) jump target`
	stmts := parse(t, api.ArchHexagon, api.SyntaxGAS, src)
	require.Equal(t, 5, len(stmts))

	var ends []bool
	for _, st := range stmts {
		ends = append(ends, st.EndOfPacket)
	}
	require.Equal(t, []bool{false, true, true, true, true}, ends)

	require.Equal(t, "transfer", stmts[0].Mnemonic)
	require.Equal(t, []asm.Operand{asm.Reg("r1"), asm.Reg("r0"), asm.Imm(asm.Const(2))}, stmts[1].Operands)
	require.Equal(t, "add", stmts[1].Mnemonic)
	require.Equal(t, []asm.Operand{asm.Reg("r2"), mem(asm.Memory{Base: "r1", Disp: asm.Const(4)}, 0)}, stmts[2].Operands)
	require.Equal(t, []asm.Operand{mem(asm.Memory{Base: "r29", Disp: asm.Const(-8)}, 0), asm.Reg("r2")}, stmts[3].Operands)
	require.Equal(t, []string{"if!"}, stmts[4].Prefixes)

	stmts = parse(t, api.ArchHexagon, api.SyntaxGAS, "r0.h = #0x1234\nR3.L = #-1")
	require.Equal(t, "transfer.h", stmts[0].Mnemonic)
	require.Equal(t, []asm.Operand{asm.Reg("r0"), asm.Imm(asm.Const(0x1234))}, stmts[0].Operands)
	require.Equal(t, "transfer.l", stmts[1].Mnemonic)
	require.Equal(t, []asm.Operand{asm.Reg("r3"), asm.Imm(asm.Const(-1))}, stmts[1].Operands)

	requireParseError(t, api.ArchHexagon, api.SyntaxGAS, "{ r0 = #1", api.ErrAsmStatToken, 1)
	requireParseError(t, api.ArchHexagon, api.SyntaxGAS, "r0 = #1 }", api.ErrAsmStatToken, 1)
}

func TestParse_GASMacro(t *testing.T) {
	src := `.macro inc reg, n=1
add \reg, \reg, #\n
.endm
inc r0
inc r1, 4
inc n=2, reg=r2`
	stmts := parse(t, api.ArchARM, api.SyntaxGAS, src)
	require.Equal(t, []*asm.Statement{
		instruction(4, "add", asm.Reg("r0"), asm.Reg("r0"), asm.Imm(asm.Const(1))),
		instruction(5, "add", asm.Reg("r1"), asm.Reg("r1"), asm.Imm(asm.Const(4))),
		instruction(6, "add", asm.Reg("r2"), asm.Reg("r2"), asm.Imm(asm.Const(2))),
	}, stmts)
}

func TestParse_Repeat(t *testing.T) {
	stmts := parse(t, api.ArchARM, api.SyntaxGAS, ".rept 2\nnop\n.endr\n.irp r, r0, r1\npush {\\r}\n.endr\n.irpc c, 12\n.byte \\c\n.endr")
	require.Equal(t, []*asm.Statement{
		instruction(1, "nop"),
		instruction(1, "nop"),
		instruction(4, "push", asm.Operand{Kind: asm.OperandRegisterList, Regs: []string{"r0"}}),
		instruction(4, "push", asm.Operand{Kind: asm.OperandRegisterList, Regs: []string{"r1"}}),
		{Kind: asm.KindData, Line: 7, Width: 1, Operands: []asm.Operand{asm.Imm(asm.Const(1))}},
		{Kind: asm.KindData, Line: 7, Width: 1, Operands: []asm.Operand{asm.Imm(asm.Const(2))}},
	}, stmts)
}

func TestParse_Conditionals(t *testing.T) {
	src := `x = 1
.if x == 2
bkpt
.elseif x
nop
.else
bkpt
.endif
.ifdef undefined
bkpt
.endif`
	stmts := parse(t, api.ArchARM, api.SyntaxGAS, src)
	require.Equal(t, []*asm.Statement{
		{Kind: asm.KindEquate, Line: 1, Name: "x", Value: asm.Const(1)},
		instruction(5, "nop"),
	}, stmts)
}

func TestParse_Directives(t *testing.T) {
	src := `.byte 1, 'a'
.word 2
.asciz "ok\n"
.align 2
.balign 8, 0xff
.p2align 4,,3
.fill 2, 4, 0x11
.float 1.5
.space 3
.equ y, 4
.text
.cfi_startproc`
	stmts := parse(t, api.ArchARM, api.SyntaxGAS, src)
	require.Equal(t, []*asm.Statement{
		{Kind: asm.KindData, Line: 1, Width: 1, Operands: []asm.Operand{asm.Imm(asm.Const(1)), asm.Imm(asm.Const('a'))}},
		{Kind: asm.KindData, Line: 2, Width: 4, Operands: []asm.Operand{asm.Imm(asm.Const(2))}},
		{Kind: asm.KindData, Line: 3, Width: 1, ZeroTerminated: true, Operands: []asm.Operand{{Kind: asm.OperandString, Str: "ok\n"}}},
		{Kind: asm.KindAlign, Line: 4, Align: 4},
		{Kind: asm.KindAlign, Line: 5, Align: 8, Fill: asm.Const(0xff)},
		{Kind: asm.KindAlign, Line: 6, Align: 16, MaxSkip: 3},
		{Kind: asm.KindSpace, Line: 7, Value: asm.Const(2), Width: 4, Fill: asm.Const(0x11)},
		{Kind: asm.KindData, Line: 8, Width: 4, Operands: []asm.Operand{asm.Imm(asm.Const(0x3fc00000))}},
		{Kind: asm.KindSpace, Line: 9, Value: asm.Const(3), Width: 1},
		{Kind: asm.KindEquate, Line: 10, Name: "y", Value: asm.Const(4)},
	}, stmts)
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		arch api.Arch
		src  string
		code api.Err
		line int
	}{
		{name: "unknown directive", arch: api.ArchARM, src: "nop\n.bogus", code: api.ErrAsmDirectiveID, line: 2},
		{name: "string expected", arch: api.ArchARM, src: ".ascii 1", code: api.ErrAsmDirectiveStr, line: 1},
		{name: "unterminated string", arch: api.ArchARM, src: `.ascii "abc`, code: api.ErrAsmDirectiveStr, line: 1},
		{name: "bad escape", arch: api.ArchARM, src: `.ascii "\q"`, code: api.ErrAsmEscSequence, line: 1},
		{name: "octal escape", arch: api.ArchARM, src: `.ascii "\777"`, code: api.ErrAsmEscOctal, line: 1},
		{name: "float", arch: api.ArchARM, src: ".float abc", code: api.ErrAsmDirectiveFPoint, line: 1},
		{name: "float in integer", arch: api.ArchARM, src: ".byte 1.5", code: api.ErrAsmDirectiveFPoint, line: 1},
		{name: "paren", arch: api.ArchARM, src: "mov r0, #(1+2", code: api.ErrAsmRParen, line: 1},
		{name: "expression token", arch: api.ArchARM, src: ".byte )", code: api.ErrAsmExprToken, line: 1},
		{name: "bracket", arch: api.ArchARM, src: ".byte [1]", code: api.ErrAsmExprBracket, line: 1},
		{name: "modifier", arch: api.ArchARM, src: "movw r0, #:bogus:1", code: api.ErrAsmSymbolModifier, line: 1},
		{name: "variant", arch: api.ArchARM64, src: ".long x@l", code: api.ErrAsmVariantInvalid, line: 1},
		{name: "reloc comma", arch: api.ArchARM, src: ".reloc 0 R_ARM_NONE", code: api.ErrAsmDirectiveComma, line: 1},
		{name: "reloc name", arch: api.ArchARM, src: ".reloc 0, FOO", code: api.ErrAsmDirectiveRelocName, line: 1},
		{name: "reloc token", arch: api.ArchARM, src: ".reloc 0, R_ARM_NONE, 1 2", code: api.ErrAsmDirectiveRelocToken, line: 1},
		{name: "mode mismatch", arch: api.ArchARM, src: ".thumb", code: api.ErrAsmUnsupported, line: 1},
		{name: "non power of two", arch: api.ArchARM, src: ".balign 3", code: api.ErrAsmDirectiveValueRange, line: 1},
		{name: "macro unterminated", arch: api.ArchARM, src: "nop\n.macro m\nnop", code: api.ErrAsmMacroToken, line: 2},
		{name: "macro missing default", arch: api.ArchARM, src: ".macro m a=\n.endm", code: api.ErrAsmMacroEqu, line: 1},
		{name: "macro required", arch: api.ArchARM, src: ".macro m a:req\n.endm\nm", code: api.ErrAsmMacroArgs, line: 3},
		{name: "macro too many", arch: api.ArchARM, src: ".macro m a\n.endm\nm 1, 2", code: api.ErrAsmMacroArgs, line: 3},
		{name: "macro paren", arch: api.ArchARM, src: ".macro m a\n.endm\nm (1", code: api.ErrAsmMacroParen, line: 3},
		{name: "macro recursion", arch: api.ArchARM, src: ".macro m\nm\n.endm\nm", code: api.ErrAsmMacroLevelsExceed, line: 4},
		{name: "repeat overflow", arch: api.ArchARM, src: "nop\n.rept 0x4000000000000000\nnop\n.endr", code: api.ErrAsmDirectiveValueRange, line: 2},
		{
			name: "nested repeats", arch: api.ArchARM,
			src:  ".rept 1000\n.rept 1000\n.rept 1000\nnop\n.endr\n.endr\n.endr", code: api.ErrAsmDirectiveValueRange, line: 1,
		},
		{
			name: "macro fan out", arch: api.ArchARM,
			src:  ".macro a\n.rept 1000\nnop\n.endr\n.endm\n.macro b\n.rept 1000\na\n.endr\n.endm\nb", code: api.ErrAsmDirectiveValueRange, line: 11,
		},
		{name: "missing endif", arch: api.ArchARM, src: ".if 1\nnop", code: api.ErrAsmDirectiveToken, line: 2},
		{name: "non constant if", arch: api.ArchARM, src: ".if later\n.endif", code: api.ErrAsmDirectiveToken, line: 1},
		{name: "missing operand", arch: api.ArchX86, src: "mov eax,", code: api.ErrAsmStatToken, line: 1},
		{name: "statement token", arch: api.ArchX86, src: "nop\n+", code: api.ErrAsmStatToken, line: 2},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := api.SyntaxGAS
			if tc.arch == api.ArchX86 {
				s = api.SyntaxIntel
			}
			requireParseError(t, tc.arch, s, tc.src, tc.code, tc.line)
		})
	}
}

func TestParse_MacroDepth(t *testing.T) {
	src := ".macro m n\n.if \\n\nm (\\n-1)\n.endif\n.endm\nm 5"
	_, err := Parse(src, Options{Arch: api.ArchARM, Syntax: api.SyntaxGAS, Encoder: fakeEncoder{}, MaxMacroDepth: 6})
	require.NoError(t, err)
	_, err = Parse(src, Options{Arch: api.ArchARM, Syntax: api.SyntaxGAS, Encoder: fakeEncoder{}, MaxMacroDepth: 5})
	require.True(t, errors.Is(err, api.ErrAsmMacroLevelsExceed), err)
}

func TestParse_PartialStatements(t *testing.T) {
	stmts, err := Parse("nop\nnop\n.bogus\nnop", Options{Arch: api.ArchARM, Syntax: api.SyntaxGAS, Encoder: fakeEncoder{}})
	require.Error(t, err)
	require.Equal(t, 2, len(stmts))
}

func TestDialectOf(t *testing.T) {
	require.Equal(t, DialectIntel, DialectOf(api.ArchX86, api.SyntaxIntel))
	require.Equal(t, DialectATT, DialectOf(api.ArchX86, api.SyntaxATT))
	require.Equal(t, DialectATT, DialectOf(api.ArchX86, api.SyntaxGAS))
	require.Equal(t, DialectNASM, DialectOf(api.ArchX86, api.SyntaxNASM))
	require.Equal(t, DialectMASM, DialectOf(api.ArchX86, api.SyntaxMASM))
	require.Equal(t, DialectGAS, DialectOf(api.ArchARM, api.SyntaxIntel))
	require.Equal(t, "nasm", DialectNASM.String())
}
