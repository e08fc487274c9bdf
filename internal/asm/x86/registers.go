package x86

import "strconv"

type registerClass byte

const (
	classGeneral registerClass = iota
	classSegment
	classInstructionPointer
	classFPU
)

// register is a named x86 register.
type register struct {
	class registerClass
	// num is the encoding in ModRM/SIB/opcode fields, including the REX extension bit (0-15).
	num byte
	// size in bytes.
	size int
	// rex is set for byte registers only reachable with a REX prefix (spl, bpl, sil, dil).
	rex bool
	// high is set for ah, ch, dh and bh, which cannot be encoded together with a REX prefix.
	high bool
}

// isExtended returns true if the register needs a REX extension bit.
func (r register) isExtended() bool {
	return r.num >= 8
}

// only64 returns true if the register only exists in 64-bit mode.
func (r register) only64() bool {
	return r.size == 8 || r.num >= 8 || r.rex || r.class == classInstructionPointer
}

var registers = map[string]register{
	"al": {num: 0, size: 1}, "cl": {num: 1, size: 1}, "dl": {num: 2, size: 1}, "bl": {num: 3, size: 1},
	"ah": {num: 4, size: 1, high: true}, "ch": {num: 5, size: 1, high: true},
	"dh": {num: 6, size: 1, high: true}, "bh": {num: 7, size: 1, high: true},
	"spl": {num: 4, size: 1, rex: true}, "bpl": {num: 5, size: 1, rex: true},
	"sil": {num: 6, size: 1, rex: true}, "dil": {num: 7, size: 1, rex: true},

	"es": {class: classSegment, num: 0, size: 2}, "cs": {class: classSegment, num: 1, size: 2},
	"ss": {class: classSegment, num: 2, size: 2}, "ds": {class: classSegment, num: 3, size: 2},
	"fs": {class: classSegment, num: 4, size: 2}, "gs": {class: classSegment, num: 5, size: 2},

	"rip": {class: classInstructionPointer, size: 8}, "eip": {class: classInstructionPointer, size: 4},
}

func init() {
	for i, names := range [][3]string{
		{"ax", "eax", "rax"}, {"cx", "ecx", "rcx"}, {"dx", "edx", "rdx"}, {"bx", "ebx", "rbx"},
		{"sp", "esp", "rsp"}, {"bp", "ebp", "rbp"}, {"si", "esi", "rsi"}, {"di", "edi", "rdi"},
	} {
		for j, size := range []int{2, 4, 8} {
			registers[names[j]] = register{num: byte(i), size: size}
		}
	}
	for i := 8; i < 16; i++ {
		r := "r" + strconv.Itoa(i)
		registers[r+"b"] = register{num: byte(i), size: 1}
		registers[r+"w"] = register{num: byte(i), size: 2}
		registers[r+"d"] = register{num: byte(i), size: 4}
		registers[r] = register{num: byte(i), size: 8}
	}
	for i := 0; i < 8; i++ {
		registers["st"+strconv.Itoa(i)] = register{class: classFPU, num: byte(i), size: 10}
	}
}

// segmentOverride are the segment override prefixes.
var segmentOverride = map[string]byte{"es": 0x26, "cs": 0x2e, "ss": 0x36, "ds": 0x3e, "fs": 0x64, "gs": 0x65}

// instructionPrefixes are the legacy prefixes written before an instruction.
var instructionPrefixes = map[string]byte{
	"lock": 0xf0, "rep": 0xf3, "repe": 0xf3, "repz": 0xf3, "repne": 0xf2, "repnz": 0xf2,
	"xacquire": 0xf2, "xrelease": 0xf3,
}
