package naivevm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmkit/naivevm/internal/buildoptions"
	"github.com/wasmkit/naivevm/internal/wasm"
)

func TestRuntimeConfig(t *testing.T) {
	tests := []struct {
		name     string
		with     func(*RuntimeConfig) *RuntimeConfig
		expected *RuntimeConfig
	}{
		{
			name: "WithCallStackLimit",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithCallStackLimit(10)
			},
			expected: &RuntimeConfig{callStackLimit: 10},
		},
		{
			name: "WithMemoryLimitPages",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithMemoryLimitPages(1)
			},
			expected: &RuntimeConfig{memoryLimitPages: 1},
		},
		{
			name: "WithTrace",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithTrace(true)
			},
			expected: &RuntimeConfig{trace: true},
		},
		{
			name: "WithBlockCache",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithBlockCache(true)
			},
			expected: &RuntimeConfig{blockCache: true},
		},
		{
			name: "WithLogLevel",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithLogLevel(zapcore.DebugLevel)
			},
			expected: &RuntimeConfig{logLevel: zapcore.DebugLevel},
		},
	}
	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			input := &RuntimeConfig{}
			rc := tc.with(input)
			require.Equal(t, tc.expected, rc)
			// The source wasn't modified
			require.Equal(t, &RuntimeConfig{}, input)
		})
	}

	t.Run("WithLogger", func(t *testing.T) {
		l := zap.NewNop()
		rc := NewRuntimeConfig().WithLogger(l)
		require.Same(t, l, rc.logger)
		require.Len(t, rc.engineOptions(), 5)
		require.Len(t, NewRuntimeConfig().engineOptions(), 4)
	})
}

func TestNewRuntimeConfig(t *testing.T) {
	c := NewRuntimeConfig()
	require.Equal(t, buildoptions.CallStackHeightLimit, c.callStackLimit)
	require.Equal(t, uint32(wasm.MemoryMaxPages), c.memoryLimitPages)
	require.Equal(t, zapcore.InfoLevel, c.LogLevel())
	require.False(t, c.Trace())

	// Defaults are not shared.
	require.NotSame(t, c, NewRuntimeConfig())
}

func TestParseRuntimeConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *RuntimeConfig
	}{
		{
			name:     "empty",
			input:    "",
			expected: NewRuntimeConfig(),
		},
		{
			name: "all",
			input: `call_stack_limit = 500
memory_limit_pages = 16
trace = true
block_cache = true
log_level = "debug"
`,
			expected: NewRuntimeConfig().WithCallStackLimit(500).WithMemoryLimitPages(16).WithTrace(true).
				WithBlockCache(true).WithLogLevel(zapcore.DebugLevel),
		},
		{
			name:     "partial",
			input:    "block_cache = true",
			expected: NewRuntimeConfig().WithBlockCache(true),
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c, err := ParseRuntimeConfig([]byte(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.expected, c)
		})
	}
}

func TestParseRuntimeConfig_Errors(t *testing.T) {
	tests := []struct {
		name, input, expectedErr string
	}{
		{name: "unknown key", input: "stack = 1", expectedErr: `unknown key "stack"`},
		{name: "negative stack", input: "call_stack_limit = -1", expectedErr: "call_stack_limit must be positive, but was -1"},
		{name: "memory over max", input: "memory_limit_pages = 65537", expectedErr: "memory_limit_pages must be at most 65536, but was 65537"},
		{name: "log level", input: `log_level = "loud"`, expectedErr: `log_level: unrecognized level: "loud"`},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRuntimeConfig([]byte(tc.input))
			require.EqualError(t, err, tc.expectedErr)
		})
	}

	t.Run("syntax", func(t *testing.T) {
		_, err := ParseRuntimeConfig([]byte("trace = "))
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse error: ")
	})
}

func TestLoadRuntimeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "naivevm.toml")
	require.NoError(t, os.WriteFile(path, []byte("call_stack_limit = 7\n"), 0o600))

	c, err := LoadRuntimeConfig(path)
	require.NoError(t, err)
	require.Equal(t, NewRuntimeConfig().WithCallStackLimit(7), c)

	_, err = LoadRuntimeConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot read ")
}
