// Package backend maps an architecture and mode to its encoder and dialect.
package backend

import (
	"fmt"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
	"github.com/tetratelabs/keystone/internal/asm/arm"
	"github.com/tetratelabs/keystone/internal/asm/arm64"
	"github.com/tetratelabs/keystone/internal/asm/hexagon"
	"github.com/tetratelabs/keystone/internal/asm/mips"
	"github.com/tetratelabs/keystone/internal/asm/ppc"
	"github.com/tetratelabs/keystone/internal/asm/sparc"
	"github.com/tetratelabs/keystone/internal/asm/systemz"
	"github.com/tetratelabs/keystone/internal/asm/x86"
	"github.com/tetratelabs/keystone/internal/syntax"
)

// Supported returns true if arch has an encoder.
func Supported(arch api.Arch) bool {
	return arch > 0 && arch < api.ArchMax
}

// ValidateMode returns api.ErrArch if arch is not supported, or api.ErrMode if mode is not a valid combination
// for it.
func ValidateMode(arch api.Arch, mode api.Mode) error {
	if !Supported(arch) {
		return api.ErrArch
	}
	var ok bool
	switch arch {
	case api.ArchX86:
		ok = only(mode, api.Mode16|api.Mode32|api.Mode64) && exactlyOne(mode, api.Mode16, api.Mode32, api.Mode64)
	case api.ArchARM:
		ok = only(mode, api.ModeARM|api.ModeThumb|api.ModeV8|api.ModeBigEndian) &&
			exactlyOne(mode, api.ModeARM, api.ModeThumb)
	case api.ArchARM64:
		ok = mode == api.ModeLittleEndian
	case api.ArchMIPS:
		// ModeMicro is rejected: there is no microMIPS encoder.
		ok = only(mode, api.ModeMIPS32|api.ModeMIPS64|api.ModeMIPS3|api.ModeMIPS32R6|api.ModeBigEndian) &&
			exactlyOne(mode, api.ModeMIPS32, api.ModeMIPS64, api.ModeMIPS3) &&
			!(mode.Has(api.ModeMIPS3) && mode.Has(api.ModeMIPS32R6))
	case api.ArchPPC:
		ok = only(mode, api.ModePPC32|api.ModePPC64|api.ModeQPX|api.ModeBigEndian) &&
			exactlyOne(mode, api.ModePPC32, api.ModePPC64) &&
			(!mode.Has(api.ModeQPX) || mode.Has(api.ModePPC64))
	case api.ArchSPARC:
		ok = only(mode, api.ModeSPARC32|api.ModeSPARC64|api.ModeV9|api.ModeBigEndian) &&
			exactlyOne(mode, api.ModeSPARC32, api.ModeSPARC64) && mode.Has(api.ModeBigEndian)
	case api.ArchSystemZ:
		ok = mode == api.ModeBigEndian
	case api.ArchHexagon:
		ok = only(mode, api.ModeBigEndian)
	}
	if !ok {
		return api.ErrMode
	}
	return nil
}

// only returns true if mode has no bits outside allowed.
func only(mode, allowed api.Mode) bool {
	return mode&^allowed == 0
}

func exactlyOne(mode api.Mode, bits ...api.Mode) bool {
	n := 0
	for _, b := range bits {
		if mode.Has(b) {
			n++
		}
	}
	return n == 1
}

// New returns the encoder for arch in mode, after ValidateMode.
func New(arch api.Arch, mode api.Mode) (asm.Encoder, error) {
	if err := ValidateMode(arch, mode); err != nil {
		return nil, err
	}
	switch arch {
	case api.ArchX86:
		return x86.New(mode), nil
	case api.ArchARM:
		return arm.New(mode), nil
	case api.ArchARM64:
		return arm64.New(), nil
	case api.ArchMIPS:
		return mips.New(mode), nil
	case api.ArchPPC:
		return ppc.New(mode), nil
	case api.ArchSPARC:
		return sparc.New(mode), nil
	case api.ArchSystemZ:
		return systemz.New(mode), nil
	case api.ArchHexagon:
		return hexagon.New(mode), nil
	default:
		panic(fmt.Sprintf("BUG: no encoder for supported arch %s", arch))
	}
}

// DefaultSyntax is the dialect a handle starts with: Intel on x86, the GNU assembler elsewhere.
func DefaultSyntax(arch api.Arch) api.Syntax {
	if arch == api.ArchX86 {
		return api.SyntaxIntel
	}
	return api.SyntaxGAS
}

// SyntaxSupported returns true if s is a single dialect accepted on arch. Only x86 has more than one.
func SyntaxSupported(arch api.Arch, s api.Syntax) bool {
	switch s {
	case api.SyntaxGAS:
		return true
	case api.SyntaxIntel, api.SyntaxATT, api.SyntaxNASM, api.SyntaxMASM:
		return arch == api.ArchX86
	}
	return false
}

// Dialect returns the parser dialect for s on arch.
func Dialect(arch api.Arch, s api.Syntax) syntax.Dialect {
	return syntax.DialectOf(arch, s)
}
