package asm

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/keystone/api"
)

// testEncoder is a toy variable-length ISA: "nop" is 0x90, "jmp" is 0xeb rel8 or 0xe9 rel32, "imm" writes its
// operand as 4 bytes.
type testEncoder struct{}

func (testEncoder) Encode(ctx *Context, st *Statement, buf *Buffer) error {
	switch st.Mnemonic {
	case "nop":
		buf.WriteBytes(0x90)
	case "jmp":
		if len(st.Operands) != 1 || !st.Operands[0].IsImm() {
			return ErrorOperands(st)
		}
		target, resolved, err := ctx.Eval(st.Operands[0].Expr)
		if err != nil {
			return err
		}
		if !ctx.Long {
			disp := target - int64(ctx.Address) - 2
			if resolved && !FitsSigned(disp, 8) {
				return ErrRelax
			}
			buf.WriteBytes(0xeb, byte(disp))
			return nil
		}
		buf.WriteBytes(0xe9)
		buf.WriteUint32(uint32(target - int64(ctx.Address) - 5))
	case "imm":
		v, err := ctx.Value(st.Operands[0].Expr)
		if err != nil {
			return err
		}
		buf.WriteUint32(uint32(v))
	case "feature":
		return ErrorMissingFeature(st, "v8")
	default:
		return ErrorMnemonic(st)
	}
	return nil
}

func (testEncoder) IsRegister(string) bool { return false }

func (testEncoder) IsMnemonic(name string) bool {
	return name == "nop" || name == "jmp" || name == "imm"
}

func (testEncoder) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (testEncoder) Nop() []byte { return []byte{0x90} }

func inst(line int, mnemonic string, ops ...Operand) *Statement {
	return &Statement{Kind: KindInstruction, Line: line, Mnemonic: mnemonic, Operands: ops}
}

func label(line int, name string) *Statement {
	return &Statement{Kind: KindLabel, Line: line, Name: name}
}

func TestAssemble(t *testing.T) {
	nops := func(n int) (ret []*Statement) {
		for i := 0; i < n; i++ {
			ret = append(ret, inst(2, "nop"))
		}
		return
	}
	repeat := func(b byte, n int) []byte {
		ret := make([]byte, n)
		for i := range ret {
			ret[i] = b
		}
		return ret
	}

	for _, tc := range []struct {
		name       string
		stmts      []*Statement
		address    uint64
		exp        []byte
		statements int
	}{
		{
			name: "empty",
			exp:  []byte{},
		},
		{
			name:       "backward short",
			stmts:      []*Statement{label(1, "l"), inst(2, "nop"), inst(3, "jmp", Imm(Symbol("l")))},
			exp:        []byte{0x90, 0xeb, 0xfd},
			statements: 2,
		},
		{
			name:       "forward short",
			stmts:      []*Statement{inst(1, "jmp", Imm(Symbol("l"))), inst(2, "nop"), label(3, "l")},
			exp:        []byte{0xeb, 0x01, 0x90},
			statements: 2,
		},
		{
			name: "forward relaxed",
			stmts: append(append([]*Statement{inst(1, "jmp", Imm(Symbol("l")))}, nops(200)...),
				label(3, "l")),
			exp:        append([]byte{0xe9, 200, 0, 0, 0}, repeat(0x90, 200)...),
			statements: 201,
		},
		{
			name:       "absolute address",
			stmts:      []*Statement{label(1, "l"), inst(2, "imm", Imm(Symbol("l")))},
			address:    0x1000,
			exp:        []byte{0x00, 0x10, 0, 0},
			statements: 1,
		},
		{
			name: "equate forward",
			stmts: []*Statement{
				inst(1, "imm", Imm(Symbol("x"))),
				{Kind: KindEquate, Line: 2, Name: "x", Value: Binary(ExprMul, Const(3), Symbol("l"))},
				label(3, "l"),
			},
			address:    2,
			exp:        []byte{18, 0, 0, 0},
			statements: 1,
		},
		{
			name: "data",
			stmts: []*Statement{
				{Kind: KindData, Width: 2, Operands: []Operand{Imm(Const(1)), Imm(Const(-1))}},
				{Kind: KindData, Width: 1, ZeroTerminated: true, Operands: []Operand{{Kind: OperandString, Str: "hi"}}},
			},
			exp:        []byte{1, 0, 0xff, 0xff, 'h', 'i', 0},
			statements: 2,
		},
		{
			name: "space and align",
			stmts: []*Statement{
				{Kind: KindSpace, Width: 1, Value: Const(3), Fill: Const(0xaa)},
				{Kind: KindAlign, Align: 8},
				{Kind: KindAlign, Align: 16, Fill: Const(0)},
			},
			exp:        append(append([]byte{0xaa, 0xaa, 0xaa}, repeat(0x90, 5)...), repeat(0, 8)...),
			statements: 1,
		},
		{
			name: "align max skip",
			stmts: []*Statement{
				inst(1, "nop"),
				{Kind: KindAlign, Align: 16, MaxSkip: 4},
				inst(1, "nop"),
			},
			exp:        []byte{0x90, 0x90},
			statements: 2,
		},
		{
			name: "here",
			stmts: []*Statement{
				inst(1, "nop"),
				{Kind: KindData, Width: 4, Operands: []Operand{Imm(Here()), Imm(Here())}},
			},
			address:    0x10,
			exp:        []byte{0x90, 0x11, 0, 0, 0, 0x15, 0, 0, 0},
			statements: 2,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res, err := Assemble(testEncoder{}, tc.stmts, Config{Address: tc.address})
			require.NoError(t, err)
			require.Equal(t, tc.exp, res.Bytes)
			require.Equal(t, tc.statements, res.Statements)

			// Deterministic.
			again, err := Assemble(testEncoder{}, tc.stmts, Config{Address: tc.address})
			require.NoError(t, err)
			require.Equal(t, res, again)
		})
	}
}

func TestAssemble_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		stmts   []*Statement
		max     int
		expCode api.Err
		expLine int
	}{
		{
			name:    "unknown mnemonic",
			stmts:   []*Statement{inst(1, "nop"), inst(2, "foo")},
			expCode: api.ErrAsmMnemonicFail,
			expLine: 2,
		},
		{
			name:    "missing feature",
			stmts:   []*Statement{inst(3, "feature")},
			expCode: api.ErrAsmMissingFeature,
			expLine: 3,
		},
		{
			name:    "undefined symbol",
			stmts:   []*Statement{inst(1, "nop"), inst(2, "jmp", Imm(Symbol("nowhere"))), inst(3, "foo")},
			expCode: api.ErrAsmInvalidOperand,
			expLine: 2,
		},
		{
			name:    "duplicate label",
			stmts:   []*Statement{label(1, "a"), label(2, "a")},
			expCode: api.ErrAsmInvalidOperand,
			expLine: 2,
		},
		{
			name:    "data range",
			stmts:   []*Statement{{Kind: KindData, Line: 4, Width: 1, Operands: []Operand{Imm(Const(256))}}},
			expCode: api.ErrAsmDirectiveValueRange,
			expLine: 4,
		},
		{
			name:    "output limit",
			stmts:   []*Statement{{Kind: KindSpace, Line: 5, Width: 1, Value: Const(1 << 40)}},
			max:     1024,
			expCode: api.ErrNoMem,
			expLine: 5,
		},
		{
			name:    "alignment beyond output limit",
			stmts:   []*Statement{inst(1, "nop"), {Kind: KindAlign, Line: 2, Align: 1 << 40}},
			max:     1024,
			expCode: api.ErrNoMem,
			expLine: 2,
		},
		{
			name:    "alignment without output limit",
			stmts:   []*Statement{inst(1, "nop"), {Kind: KindAlign, Line: 2, Align: 1 << 40, Fill: Const(0)}},
			expCode: api.ErrNoMem,
			expLine: 2,
		},
		{
			name:    "space without output limit",
			stmts:   []*Statement{{Kind: KindSpace, Line: 3, Width: 8, Value: Const(1 << 60)}},
			expCode: api.ErrNoMem,
			expLine: 3,
		},
		{
			name: "circular equates",
			stmts: []*Statement{
				{Kind: KindEquate, Line: 1, Name: "a", Value: Symbol("b")},
				{Kind: KindEquate, Line: 2, Name: "b", Value: Symbol("a")},
				inst(3, "imm", Imm(Symbol("a"))),
			},
			expCode: api.ErrAsmInvalidOperand,
			expLine: 1,
		},
		{
			name:    "self referencing equate",
			stmts:   []*Statement{{Kind: KindEquate, Line: 1, Name: "x", Value: Binary(ExprAdd, Symbol("x"), Const(1))}},
			expCode: api.ErrAsmInvalidOperand,
			expLine: 1,
		},
		{
			name:    "division by zero",
			stmts:   []*Statement{inst(7, "imm", Imm(Binary(ExprDiv, Const(1), Const(0))))},
			expCode: api.ErrAsmExprToken,
			expLine: 7,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(testEncoder{}, tc.stmts, Config{MaxOutput: tc.max})
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.expCode), err.Error())
			var ae *api.AssembleError
			require.True(t, errors.As(err, &ae))
			require.Equal(t, tc.expLine, ae.Line)
		})
	}
}

func TestAssemble_Resolver(t *testing.T) {
	stmts := []*Statement{inst(1, "imm", Imm(Binary(ExprAdd, Symbol("ext"), Const(1))))}
	res, err := Assemble(testEncoder{}, stmts, Config{Resolver: func(name string) (uint64, bool) {
		return 0x41, name == "ext"
	}})
	require.NoError(t, err)
	require.Equal(t, []byte{0x42, 0, 0, 0}, res.Bytes)
}

func TestCheck(t *testing.T) {
	// Symbols are not required to exist.
	require.NoError(t, Check(testEncoder{}, []*Statement{inst(1, "jmp", Imm(Symbol("later")))}, Config{}))

	err := Check(testEncoder{}, []*Statement{inst(1, "nop"), inst(2, "bad")}, Config{})
	require.True(t, errors.Is(err, api.ErrAsmMnemonicFail))
}

func TestFits(t *testing.T) {
	require.True(t, FitsSigned(127, 8))
	require.False(t, FitsSigned(128, 8))
	require.True(t, FitsSigned(-128, 8))
	require.False(t, FitsSigned(-129, 8))
	require.True(t, FitsSigned(-1, 64))
	require.True(t, FitsUnsigned(255, 8))
	require.False(t, FitsUnsigned(256, 8))
	require.False(t, FitsUnsigned(-1, 8))
}
