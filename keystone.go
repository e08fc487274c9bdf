// Package keystone assembles source text into machine code for several architectures.
//
// Ex.
//
//	e, _ := keystone.Open(api.ArchX86, api.Mode64)
//	defer e.Close()
//	enc, _ := e.Assemble("mov eax, 1; ret", 0x1000)
//	fmt.Printf("%x\n", enc.Bytes) // b801000000c3
package keystone

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/asm"
	"github.com/tetratelabs/keystone/internal/backend"
	"github.com/tetratelabs/keystone/internal/syntax"
)

// Engine assembles source for one architecture and mode, chosen when it is opened.
//
// Engines are independent and may be used concurrently. A single Engine is not safe for concurrent use: a call
// overlapping an in-flight Assemble fails with api.ErrHandle rather than racing.
type Engine interface {
	// Arch returns the architecture the engine was opened with.
	Arch() api.Arch

	// Mode returns the mode the engine was opened with.
	Mode() api.Mode

	// Syntax returns the current dialect.
	Syntax() api.Syntax

	// SetOption changes an option for subsequent Assemble calls. api.OptSyntax takes a single api.Syntax bit: x86
	// accepts all of them, other architectures only api.SyntaxGAS. Anything else fails with api.ErrOptInvalid.
	SetOption(opt api.OptType, value uint64) error

	// Assemble encodes src as if its first statement was at address.
	//
	// Errors are an *api.AssembleError carrying the 1-based line of the first failing statement, or an api.Err for
	// failures of the handle itself. Either matches errors.Is with its code.
	Assemble(src string, address uint64) (*Encoding, error)

	// AssembleLines is like Assemble, with one statement per line.
	AssembleLines(lines []string, address uint64) (*Encoding, error)

	// Close releases the engine. Any later call fails with api.ErrHandle, including a second Close.
	Close() error
}

// Encoding is the result of Engine.Assemble.
type Encoding struct {
	// Bytes is the machine code, owned by the caller.
	Bytes []byte
	// Address is the address of Bytes[0].
	Address uint64
	// Statements is the number of instructions and data directives encoded.
	Statements int
}

// Version returns the API version compiled into this module.
func Version() (major, minor int) {
	return api.APIMajor, api.APIMinor
}

// VersionCombined returns the API version as one number, major in the high byte.
func VersionCombined() uint32 {
	return api.APIMajor<<8 | api.APIMinor
}

// ArchSupported returns true if Open can succeed for arch.
func ArchSupported(arch api.Arch) bool {
	return backend.Supported(arch)
}

// Open opens an engine with the default configuration.
func Open(arch api.Arch, mode api.Mode) (Engine, error) {
	return OpenWithConfig(arch, mode, NewEngineConfig())
}

// OpenWithConfig opens an engine for arch in mode. It fails with api.ErrVersion if config was built for another
// API version, api.ErrArch or api.ErrMode for an unsupported architecture or mode, and api.ErrOptInvalid if the
// configured syntax is not legal for arch.
func OpenWithConfig(arch api.Arch, mode api.Mode, config *EngineConfig) (Engine, error) {
	if config.apiMajor != api.APIMajor || config.apiMinor != api.APIMinor {
		return nil, api.ErrVersion
	}
	enc, err := backend.New(arch, mode)
	if err != nil {
		return nil, err
	}
	s := config.syntax
	if s == 0 {
		s = backend.DefaultSyntax(arch)
	} else if !backend.SyntaxSupported(arch, s) {
		return nil, api.ErrOptInvalid
	}
	logger := config.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &engine{
		arch:          arch,
		mode:          mode,
		enc:           enc,
		maxMacroDepth: config.maxMacroDepth,
		maxOutputSize: config.maxOutputSize,
		resolver:      config.resolver,
		log:           logger.WithFields(logrus.Fields{"arch": arch, "mode": mode}),
	}
	e.syntax.Store(uint32(s))
	e.state.Store(stateConfigured)
	e.log.WithField("syntax", s).Debug("opened engine")
	return e, nil
}

// Handle states. An engine leaves stateConfigured only for the duration of one call.
const (
	stateConfigured int32 = iota
	stateBusy
	stateClosed
)

// engine implements Engine.
type engine struct {
	arch api.Arch
	mode api.Mode
	enc  asm.Encoder

	maxMacroDepth int
	maxOutputSize int
	resolver      func(name string) (uint64, bool)
	log           logrus.FieldLogger

	state  atomic.Int32
	syntax atomic.Uint32
}

// Arch implements Engine.Arch
func (e *engine) Arch() api.Arch {
	return e.arch
}

// Mode implements Engine.Mode
func (e *engine) Mode() api.Mode {
	return e.mode
}

// Syntax implements Engine.Syntax
func (e *engine) Syntax() api.Syntax {
	return api.Syntax(e.syntax.Load())
}

// acquire moves the engine from stateConfigured to stateBusy, or fails with api.ErrHandle.
func (e *engine) acquire() error {
	if !e.state.CompareAndSwap(stateConfigured, stateBusy) {
		return api.ErrHandle
	}
	return nil
}

func (e *engine) release() {
	e.state.Store(stateConfigured)
}

// SetOption implements Engine.SetOption
func (e *engine) SetOption(opt api.OptType, value uint64) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if opt != api.OptSyntax || value > uint64(^uint32(0)) {
		return api.ErrOptInvalid
	}
	s := api.Syntax(value)
	if !backend.SyntaxSupported(e.arch, s) {
		return api.ErrOptInvalid
	}
	e.syntax.Store(uint32(s))
	e.log.WithField("syntax", s).Debug("changed syntax")
	return nil
}

// Assemble implements Engine.Assemble
func (e *engine) Assemble(src string, address uint64) (*Encoding, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	s := e.Syntax()
	stmts, err := syntax.Parse(src, syntax.Options{
		Arch:          e.arch,
		Mode:          e.mode,
		Syntax:        s,
		Encoder:       e.enc,
		MaxMacroDepth: e.maxMacroDepth,
	})
	cfg := asm.Config{Address: address, MaxOutput: e.maxOutputSize, Resolver: e.resolver}
	if err != nil {
		// The statements before the syntax error may hold an earlier encoding error.
		if cerr := asm.Check(e.enc, stmts, cfg); cerr != nil {
			err = cerr
		}
		e.log.WithField("syntax", s).WithError(err).Debug("assemble failed")
		return nil, err
	}

	res, err := asm.Assemble(e.enc, stmts, cfg)
	if err != nil {
		e.log.WithField("syntax", s).WithError(err).Debug("assemble failed")
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"syntax":     s,
		"statements": res.Statements,
		"bytes":      len(res.Bytes),
		"passes":     res.Passes,
	}).Debug("assembled")
	return &Encoding{Bytes: res.Bytes, Address: address, Statements: res.Statements}, nil
}

// AssembleLines implements Engine.AssembleLines
func (e *engine) AssembleLines(lines []string, address uint64) (*Encoding, error) {
	return e.Assemble(strings.Join(lines, "\n"), address)
}

// Close implements Engine.Close
func (e *engine) Close() error {
	if !e.state.CompareAndSwap(stateConfigured, stateClosed) {
		return api.ErrHandle
	}
	e.log.Debug("closed engine")
	return nil
}
