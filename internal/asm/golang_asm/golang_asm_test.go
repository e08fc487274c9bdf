package golang_asm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

func TestInstruction(t *testing.T) {
	for _, tc := range []struct {
		name     string
		code     func() ([]byte, error)
		expected []byte
	}{
		{
			name: "arm64",
			code: func() ([]byte, error) {
				return Instruction("arm64", arm64.AMOVD, RegisterOperand(arm64.REG_R1), RegisterOperand(arm64.REG_R0))
			},
			// orr x0, xzr, x1
			expected: []byte{0xe0, 0x03, 0x01, 0xaa},
		},
		{
			name: "amd64",
			code: func() ([]byte, error) {
				return Instruction("amd64", x86.AMOVQ, RegisterOperand(x86.REG_AX), RegisterOperand(x86.REG_BX))
			},
			// mov rbx, rax
			expected: []byte{0x48, 0x89, 0xc3},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			actual, err := tc.code()
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)
		})
	}
}
