// Package api includes constants and types used by both end-users and internal implementations.
//
// Numeric values of Arch, Mode, OptType, Syntax and Err are a stable public contract: callers persist and compare them,
// so they must never be renumbered.
package api

import (
	"fmt"
	"strings"
)

// APIMajor and APIMinor are the version of the engine API compiled into this module.
const (
	APIMajor = 1
	APIMinor = 0
)

// Arch is an instruction-set architecture family.
type Arch uint32

const (
	ArchARM     Arch = 1
	ArchARM64   Arch = 2
	ArchMIPS    Arch = 3
	ArchX86     Arch = 4
	ArchPPC     Arch = 5
	ArchSPARC   Arch = 6
	ArchSystemZ Arch = 7
	ArchHexagon Arch = 8
	// ArchMax is one past the last valid architecture.
	ArchMax Arch = 9
)

var archNames = [...]string{
	ArchARM:     "arm",
	ArchARM64:   "arm64",
	ArchMIPS:    "mips",
	ArchX86:     "x86",
	ArchPPC:     "ppc",
	ArchSPARC:   "sparc",
	ArchSystemZ: "systemz",
	ArchHexagon: "hexagon",
}

// String implements fmt.Stringer.
func (a Arch) String() string {
	if a > 0 && a < ArchMax {
		return archNames[a]
	}
	return fmt.Sprintf("arch(%d)", uint32(a))
}

// Mode is a bitset modifying how an Arch is assembled. Valid combinations depend on the Arch, and the same bit may
// mean different things for different architectures (e.g. ModeThumb and ModeMicro).
type Mode uint32

const (
	ModeLittleEndian Mode = 0
	ModeBigEndian    Mode = 1 << 30

	// ARM / ARM64
	ModeARM   Mode = 1 << 0
	ModeThumb Mode = 1 << 4
	ModeV8    Mode = 1 << 6

	// MIPS
	ModeMicro    Mode = 1 << 4
	ModeMIPS3    Mode = 1 << 5
	ModeMIPS32R6 Mode = 1 << 6
	ModeMIPS32   Mode = 1 << 2
	ModeMIPS64   Mode = 1 << 3

	// X86
	Mode16 Mode = 1 << 1
	Mode32 Mode = 1 << 2
	Mode64 Mode = 1 << 3

	// PPC
	ModePPC32 Mode = 1 << 2
	ModePPC64 Mode = 1 << 3
	ModeQPX   Mode = 1 << 4

	// SPARC
	ModeSPARC32 Mode = 1 << 2
	ModeSPARC64 Mode = 1 << 3
	ModeV9      Mode = 1 << 4
)

// Has returns true if all bits of m are set.
func (mode Mode) Has(m Mode) bool {
	return mode&m == m
}

// String implements fmt.Stringer.
func (mode Mode) String() string {
	return fmt.Sprintf("%#x", uint32(mode))
}

// OptType is the key of an engine option.
type OptType uint32

const (
	// OptSyntax selects the assembly dialect. The value is a Syntax.
	OptSyntax OptType = 1
)

// Syntax is an assembly dialect. Exactly one bit must be set when passed as an option value.
type Syntax uint32

const (
	SyntaxIntel Syntax = 1 << 0
	SyntaxATT   Syntax = 1 << 1
	SyntaxNASM  Syntax = 1 << 2
	SyntaxMASM  Syntax = 1 << 3
	SyntaxGAS   Syntax = 1 << 4
)

// String implements fmt.Stringer.
func (s Syntax) String() string {
	var names []string
	for _, n := range []struct {
		s    Syntax
		name string
	}{
		{SyntaxIntel, "intel"}, {SyntaxATT, "att"}, {SyntaxNASM, "nasm"}, {SyntaxMASM, "masm"}, {SyntaxGAS, "gas"},
	} {
		if s&n.s != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 || s&^(SyntaxIntel|SyntaxATT|SyntaxNASM|SyntaxMASM|SyntaxGAS) != 0 {
		return fmt.Sprintf("syntax(%#x)", uint32(s))
	}
	return strings.Join(names, "|")
}
