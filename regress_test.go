package keystone

import (
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/keystone/api"
)

// regressCase is one [[case]] of a file in testdata/regress.
type regressCase struct {
	Name       string   `toml:"name"`
	Arch       string   `toml:"arch"`
	Mode       []string `toml:"mode"`
	Syntax     string   `toml:"syntax"`
	Address    uint64   `toml:"address"`
	Input      string   `toml:"input"`
	Bytes      string   `toml:"bytes"`
	Statements int      `toml:"statements"`
	Code       uint32   `toml:"code"`
	Line       int      `toml:"line"`
}

var regressModes = map[string]api.Mode{
	"16":       api.Mode16,
	"32":       api.Mode32,
	"64":       api.Mode64,
	"arm":      api.ModeARM,
	"thumb":    api.ModeThumb,
	"v8":       api.ModeV8,
	"big":      api.ModeBigEndian,
	"mips32":   api.ModeMIPS32,
	"mips64":   api.ModeMIPS64,
	"mips3":    api.ModeMIPS3,
	"mips32r6": api.ModeMIPS32R6,
	"ppc32":    api.ModePPC32,
	"ppc64":    api.ModePPC64,
	"qpx":      api.ModeQPX,
	"sparc32":  api.ModeSPARC32,
	"sparc64":  api.ModeSPARC64,
	"v9":       api.ModeV9,
}

var regressSyntaxes = map[string]api.Syntax{
	"intel": api.SyntaxIntel,
	"att":   api.SyntaxATT,
	"nasm":  api.SyntaxNASM,
	"masm":  api.SyntaxMASM,
	"gas":   api.SyntaxGAS,
}

func regressArch(t *testing.T, name string) api.Arch {
	for a := api.ArchARM; a < api.ArchMax; a++ {
		if a.String() == name {
			return a
		}
	}
	t.Fatalf("unknown arch %q", name)
	return 0
}

// TestRegress runs the cases in testdata/regress, which pin encodings and error locations across all architectures.
func TestRegress(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "regress", "*.toml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		var doc struct {
			Case []regressCase `toml:"case"`
		}
		md, err := toml.DecodeFile(file, &doc)
		require.NoError(t, err, file)
		require.Empty(t, md.Undecoded(), file)
		require.NotEmpty(t, doc.Case, file)

		for _, c := range doc.Case {
			tc := c
			t.Run(tc.Name, func(t *testing.T) {
				arch := regressArch(t, tc.Arch)
				var mode api.Mode
				for _, m := range tc.Mode {
					bit, ok := regressModes[m]
					require.True(t, ok, "unknown mode %q", m)
					mode |= bit
				}
				config := NewEngineConfig()
				if tc.Syntax != "" {
					s, ok := regressSyntaxes[tc.Syntax]
					require.True(t, ok, "unknown syntax %q", tc.Syntax)
					config = config.WithSyntax(s)
				}

				e, err := OpenWithConfig(arch, mode, config)
				require.NoError(t, err)
				defer e.Close()

				enc, err := e.Assemble(tc.Input, tc.Address)
				if tc.Code != 0 {
					require.Error(t, err)
					var ae *api.AssembleError
					require.True(t, errors.As(err, &ae), err)
					require.Equal(t, api.Err(tc.Code), ae.Code, err)
					require.Equal(t, tc.Line, ae.Line, err)
					return
				}
				require.NoError(t, err)
				require.Equal(t, tc.Bytes, hex.EncodeToString(enc.Bytes))
				require.Equal(t, tc.Statements, enc.Statements)
				require.Equal(t, tc.Address, enc.Address)
			})
		}
	}
}
