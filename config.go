package keystone

import (
	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/keystone/api"
	"github.com/tetratelabs/keystone/internal/syntax"
)

// DefaultMaxOutputSize is the default limit of bytes produced by one Engine.Assemble call.
const DefaultMaxOutputSize = 64 << 20

// EngineConfig controls engine behavior, with the default implementation as NewEngineConfig.
//
// Note: EngineConfig is immutable. Each WithXXX function returns a new instance including the corresponding change.
type EngineConfig struct {
	apiMajor, apiMinor int
	syntax             api.Syntax
	maxMacroDepth      int
	maxOutputSize      int
	logger             logrus.FieldLogger
	resolver           func(name string) (uint64, bool)
}

// engineConfig is the default configuration.
var engineConfig = &EngineConfig{
	apiMajor:      api.APIMajor,
	apiMinor:      api.APIMinor,
	maxMacroDepth: syntax.DefaultMaxMacroDepth,
	maxOutputSize: DefaultMaxOutputSize,
}

// NewEngineConfig returns the default configuration: the compiled-in API version, the architecture's default
// syntax and the standard logrus logger.
func NewEngineConfig() *EngineConfig {
	return engineConfig.clone()
}

// clone ensures all fields are copied even if nil.
func (c *EngineConfig) clone() *EngineConfig {
	ret := *c
	return &ret
}

// WithAPIVersion sets the API version the caller was built against. Open fails with api.ErrVersion unless it
// equals Version.
func (c *EngineConfig) WithAPIVersion(major, minor int) *EngineConfig {
	ret := c.clone()
	ret.apiMajor, ret.apiMinor = major, minor
	return ret
}

// WithSyntax sets the initial dialect instead of the architecture default. The value must be legal for
// Engine.SetOption, or Open fails with api.ErrOptInvalid.
func (c *EngineConfig) WithSyntax(s api.Syntax) *EngineConfig {
	ret := c.clone()
	ret.syntax = s
	return ret
}

// WithMaxMacroDepth bounds the nesting of macro and repeat expansion. Deeper nesting fails with
// api.ErrAsmMacroLevelsExceed. Defaults to 20; values below one restore the default.
func (c *EngineConfig) WithMaxMacroDepth(depth int) *EngineConfig {
	ret := c.clone()
	if depth < 1 {
		depth = syntax.DefaultMaxMacroDepth
	}
	ret.maxMacroDepth = depth
	return ret
}

// WithMaxOutputSize bounds the bytes one Assemble call produces. Exceeding it fails with api.ErrNoMem.
// Defaults to DefaultMaxOutputSize; zero means no limit.
func (c *EngineConfig) WithMaxOutputSize(size int) *EngineConfig {
	ret := c.clone()
	ret.maxOutputSize = size
	return ret
}

// WithLogger sets where the engine logs. Entries are at debug level. Defaults to logrus.StandardLogger.
func (c *EngineConfig) WithLogger(logger logrus.FieldLogger) *EngineConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithSymbolResolver resolves symbols the source uses but does not define, such as addresses of external
// functions. Returning false leaves the symbol undefined, failing with api.ErrAsmInvalidOperand.
func (c *EngineConfig) WithSymbolResolver(resolver func(name string) (uint64, bool)) *EngineConfig {
	ret := c.clone()
	ret.resolver = resolver
	return ret
}
