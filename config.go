package naivevm

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmkit/naivevm/internal/buildoptions"
	internalnaivevm "github.com/wasmkit/naivevm/internal/naivevm"
	"github.com/wasmkit/naivevm/internal/wasm"
)

// RuntimeConfig controls engine behavior, with the default implementation as NewRuntimeConfig.
//
// A RuntimeConfig is immutable: each With method returns a modified clone, so one config can be shared by any number
// of goroutines instantiating modules.
type RuntimeConfig struct {
	callStackLimit   int
	memoryLimitPages uint32
	trace            bool
	blockCache       bool
	logLevel         zapcore.Level
	logger           *zap.Logger
}

var defaultConfig = &RuntimeConfig{
	callStackLimit:   buildoptions.CallStackHeightLimit,
	memoryLimitPages: wasm.MemoryMaxPages,
	logLevel:         zapcore.InfoLevel,
}

// NewRuntimeConfig returns the default configuration.
func NewRuntimeConfig() *RuntimeConfig {
	return defaultConfig.clone()
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithCallStackLimit sets the maximum count of nested calls before an invocation traps with "callstack overflow".
// Defaults to 2000.
func (c *RuntimeConfig) WithCallStackLimit(limit int) *RuntimeConfig {
	ret := c.clone()
	ret.callStackLimit = limit
	return ret
}

// WithMemoryLimitPages reduces the maximum number of pages memory can grow to from 65536 pages (4GiB) to a lower
// value.
//
// Notes:
//   - A module whose initial memory is larger than this fails to instantiate.
//   - "memory.grow" past this amount returns -1 as if it reached the maximum declared by the module.
func (c *RuntimeConfig) WithMemoryLimitPages(pages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryLimitPages = pages
	return ret
}

// WithTrace logs every executed instruction at debug level. This is slow and intended for debugging small programs.
func (c *RuntimeConfig) WithTrace(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.trace = enabled
	return ret
}

// WithBlockCache remembers where each block ends, so that loops don't rescan their body on every entry.
func (c *RuntimeConfig) WithBlockCache(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.blockCache = enabled
	return ret
}

// WithLogger sets the logger of instances. Defaults to a no-op logger.
func (c *RuntimeConfig) WithLogger(l *zap.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = l
	return ret
}

// WithLogLevel sets the level a host should log at. Instances use whatever logger WithLogger configured, so this is
// only advisory, for example to the CLI building that logger.
func (c *RuntimeConfig) WithLogLevel(level zapcore.Level) *RuntimeConfig {
	ret := c.clone()
	ret.logLevel = level
	return ret
}

// LogLevel returns the level configured by WithLogLevel, or info by default.
func (c *RuntimeConfig) LogLevel() zapcore.Level {
	return c.logLevel
}

// Trace returns true if WithTrace was enabled.
func (c *RuntimeConfig) Trace() bool {
	return c.trace
}

func (c *RuntimeConfig) engineOptions() []internalnaivevm.Option {
	opts := []internalnaivevm.Option{
		internalnaivevm.WithCallStackLimit(c.callStackLimit),
		internalnaivevm.WithMemoryLimitPages(c.memoryLimitPages),
		internalnaivevm.WithTrace(c.trace),
		internalnaivevm.WithBlockCache(c.blockCache),
	}
	if c.logger != nil {
		opts = append(opts, internalnaivevm.WithLogger(c.logger))
	}
	return opts
}

// configFile is the TOML form of RuntimeConfig. Absent keys keep their defaults.
type configFile struct {
	CallStackLimit   *int    `toml:"call_stack_limit"`
	MemoryLimitPages *uint32 `toml:"memory_limit_pages"`
	Trace            *bool   `toml:"trace"`
	BlockCache       *bool   `toml:"block_cache"`
	LogLevel         string  `toml:"log_level"`
}

// LoadRuntimeConfig reads a TOML file over the defaults of NewRuntimeConfig.
//
// Ex.
//
//	call_stack_limit = 500
//	memory_limit_pages = 16
//	trace = false
//	block_cache = true
//	log_level = "debug"
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseRuntimeConfig(data)
}

// ParseRuntimeConfig is LoadRuntimeConfig for TOML already in memory.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	var f configFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	ret := NewRuntimeConfig()
	if f.CallStackLimit != nil {
		if *f.CallStackLimit <= 0 {
			return nil, fmt.Errorf("call_stack_limit must be positive, but was %d", *f.CallStackLimit)
		}
		ret.callStackLimit = *f.CallStackLimit
	}
	if f.MemoryLimitPages != nil {
		if *f.MemoryLimitPages > wasm.MemoryMaxPages {
			return nil, fmt.Errorf("memory_limit_pages must be at most %d, but was %d", wasm.MemoryMaxPages, *f.MemoryLimitPages)
		}
		ret.memoryLimitPages = *f.MemoryLimitPages
	}
	if f.Trace != nil {
		ret.trace = *f.Trace
	}
	if f.BlockCache != nil {
		ret.blockCache = *f.BlockCache
	}
	if f.LogLevel != "" {
		if ret.logLevel, err = zapcore.ParseLevel(f.LogLevel); err != nil {
			return nil, fmt.Errorf("log_level: %w", err)
		}
	}
	return ret, nil
}
