package naivevm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

// memoryModule returns a single function module of type null_i32 with one page of memory.
func memoryModule(body []byte) *wasm.Module {
	m := singleFunctionModule(typeNullI32, nil, code(body, wasm.OpcodeEnd))
	m.MemoryMinPages = 1
	return m
}

func TestEngine_LoadStore(t *testing.T) {
	tests := []struct {
		name           string
		value          []byte
		store, load    wasm.Opcode
		expected       uint64
		expectedMemory []byte
	}{
		{
			name: "i32", value: i32c(0x01020304), store: wasm.OpcodeI32Store, load: wasm.OpcodeI32Load,
			expected: 0x01020304, expectedMemory: []byte{4, 3, 2, 1, 0},
		},
		{
			name: "i64", value: i64c(0x0102030405060708), store: wasm.OpcodeI64Store, load: wasm.OpcodeI64Load,
			expected: 0x0102030405060708, expectedMemory: []byte{8, 7, 6, 5, 4, 3, 2, 1, 0},
		},
		{
			name: "f32", value: f32c(1), store: wasm.OpcodeF32Store, load: wasm.OpcodeF32Load,
			expected: wasm.EncodeF32(1), expectedMemory: []byte{0, 0, 0x80, 0x3f, 0},
		},
		{
			name: "f64", value: f64c(-2), store: wasm.OpcodeF64Store, load: wasm.OpcodeF64Load,
			expected: wasm.EncodeF64(-2), expectedMemory: []byte{0, 0, 0, 0, 0, 0, 0, 0xc0, 0},
		},
		{
			name: "i32.load8_s", value: i32c(0x1ff), store: wasm.OpcodeI32Store8, load: wasm.OpcodeI32Load8S,
			expected: math.MaxUint32, expectedMemory: []byte{0xff, 0},
		},
		{
			name: "i32.load8_u", value: i32c(0x1ff), store: wasm.OpcodeI32Store8, load: wasm.OpcodeI32Load8U,
			expected: 0xff, expectedMemory: []byte{0xff, 0},
		},
		{
			name: "i32.load16_s", value: i32c(0x8000), store: wasm.OpcodeI32Store16, load: wasm.OpcodeI32Load16S,
			expected: 0xffff8000, expectedMemory: []byte{0, 0x80, 0},
		},
		{
			name: "i32.load16_u", value: i32c(0x18000), store: wasm.OpcodeI32Store16, load: wasm.OpcodeI32Load16U,
			expected: 0x8000, expectedMemory: []byte{0, 0x80, 0},
		},
		{
			name: "i64.load8_s", value: i64c(-2), store: wasm.OpcodeI64Store8, load: wasm.OpcodeI64Load8S,
			expected: wasm.EncodeI64(-2), expectedMemory: []byte{0xfe, 0},
		},
		{
			name: "i64.load8_u", value: i64c(-2), store: wasm.OpcodeI64Store8, load: wasm.OpcodeI64Load8U,
			expected: 0xfe, expectedMemory: []byte{0xfe, 0},
		},
		{
			name: "i64.load16_s", value: i64c(0xffff), store: wasm.OpcodeI64Store16, load: wasm.OpcodeI64Load16S,
			expected: math.MaxUint64, expectedMemory: []byte{0xff, 0xff, 0},
		},
		{
			name: "i64.load16_u", value: i64c(0x12345), store: wasm.OpcodeI64Store16, load: wasm.OpcodeI64Load16U,
			expected: 0x2345, expectedMemory: []byte{0x45, 0x23, 0},
		},
		{
			name: "i64.load32_s", value: i64c(0x180000000), store: wasm.OpcodeI64Store32, load: wasm.OpcodeI64Load32S,
			expected: 0xffffffff80000000, expectedMemory: []byte{0, 0, 0, 0x80, 0},
		},
		{
			name: "i64.load32_u", value: i64c(0x180000000), store: wasm.OpcodeI64Store32, load: wasm.OpcodeI64Load32U,
			expected: 0x80000000, expectedMemory: []byte{0, 0, 0, 0x80, 0},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, memoryModule(code(
				i32c(0), tc.value, tc.store, 0, 0,
				i32c(0), tc.load, 0, 0,
			)))
			results, err := invoke(t, e, 0)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
			require.Equal(t, tc.expectedMemory, e.memory[:len(tc.expectedMemory)])
		})
	}
}

func TestEngine_LoadStore_Offset(t *testing.T) {
	e := newTestEngine(t, memoryModule(code(
		i32c(4), i32c(7), wasm.OpcodeI32Store, 2, 4,
		i32c(0), wasm.OpcodeI32Load, 2, 8,
	)))
	results, err := invoke(t, e, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)

	v, err := e.ReadMemoryI32(8)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)
}

func TestEngine_LoadStore_OutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "load past the end", body: code(i32c(65533), wasm.OpcodeI32Load, 0, 0)},
		{name: "load offset past the end", body: code(i32c(0), wasm.OpcodeI64Load, 0, []byte{0xf9, 0xff, 0x03})},
		{name: "address does not wrap", body: code(i32c(-1), wasm.OpcodeI32Load8U, 0, 1)},
		{name: "store past the end", body: code(i32c(65535), i32c(0), wasm.OpcodeI32Store16, 0, 0, i32c(0))},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, memoryModule(tc.body))
			_, err := invoke(t, e, 0)
			require.ErrorIs(t, err, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			require.True(t, wasmruntime.IsTrap(err))
			require.Zero(t, e.StackHeight())
		})
	}

	t.Run("no memory", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeNullI32, nil, code(i32c(0), wasm.OpcodeI32Load8U, 0, 0, wasm.OpcodeEnd)))
		_, err := invoke(t, e, 0)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	})

	t.Run("last byte", func(t *testing.T) {
		e := newTestEngine(t, memoryModule(code(i32c(65535), i32c(9), wasm.OpcodeI32Store8, 0, 0, i32c(65535), wasm.OpcodeI32Load8U, 0, 0)))
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{9}, results)
	})
}

func TestEngine_MemoryGrow(t *testing.T) {
	sizes := &wasm.FunctionType{Results: []wasm.ValueType{
		wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32,
	}}
	body := code(
		wasm.OpcodeMemorySize, 0,
		i32c(1), wasm.OpcodeMemoryGrow, 0,
		i32c(2), wasm.OpcodeMemoryGrow, 0,
		i32c(0), wasm.OpcodeMemoryGrow, 0,
		wasm.OpcodeMemorySize, 0,
		wasm.OpcodeEnd,
	)

	t.Run("declared max", func(t *testing.T) {
		maxPages := uint32(3)
		m := singleFunctionModule(sizes, nil, body)
		m.MemoryMinPages, m.MemoryMaxPages = 1, &maxPages

		e := newTestEngine(t, m)
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 1, wasm.EncodeI32(-1), 2, 2}, results)
		require.Equal(t, uint32(2), e.MemorySize())
		require.Equal(t, 2*int(wasm.PageSize), len(e.memory))
	})

	t.Run("engine limit", func(t *testing.T) {
		m := singleFunctionModule(sizes, nil, body)
		m.MemoryMinPages = 0

		e := newTestEngine(t, m, WithMemoryLimitPages(2))
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{0, 0, wasm.EncodeI32(-1), 1, 1}, results)
	})

	t.Run("grown memory is zeroed and addressable", func(t *testing.T) {
		m := memoryModule(code(
			i32c(1), wasm.OpcodeMemoryGrow, 0, wasm.OpcodeDrop,
			i32c(int32(wasm.PageSize)), i32c(5), wasm.OpcodeI32Store, 2, 0,
			i32c(int32(wasm.PageSize)+4), wasm.OpcodeI32Load, 2, 0,
		))
		e := newTestEngine(t, m)
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{0}, results)

		v, err := e.ReadMemoryI32(wasm.PageSize)
		require.NoError(t, err)
		require.Equal(t, int32(5), v)
	})

	t.Run("memory index", func(t *testing.T) {
		e := newTestEngine(t, memoryModule(code(wasm.OpcodeMemorySize, 1)))
		_, err := invoke(t, e, 0)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)
	})
}

func TestEngine_ReadMemory(t *testing.T) {
	m := &wasm.Module{
		MemoryMinPages: 1,
		DataSegments: []*wasm.DataSegment{
			{Offset: 0, Init: []byte{0xff, 0xff, 0xff, 0xff}},
			{Offset: 8, Init: []byte{0, 0, 0xc0, 0x3f}},
			{Offset: 16, Init: []byte{0, 0, 0, 0, 0, 0, 0xf8, 0x3f}},
		},
	}
	e := newTestEngine(t, m)

	vI32, err := e.ReadMemoryI32(0)
	require.NoError(t, err)
	require.Equal(t, int32(-1), vI32)

	vI64, err := e.ReadMemoryI64(0)
	require.NoError(t, err)
	require.Equal(t, int64(0xffffffff), vI64)

	vF32, err := e.ReadMemoryF32(8)
	require.NoError(t, err)
	require.Equal(t, float32(1.5), vF32)

	vF64, err := e.ReadMemoryF64(16)
	require.NoError(t, err)
	require.Equal(t, 1.5, vF64)

	require.NoError(t, e.WriteMemory(65534, []byte{1, 2}))
	require.Equal(t, []byte{1, 2}, e.memory[65534:])

	_, err = e.ReadMemoryI32(65533)
	require.EqualError(t, err, "out of bounds memory access: 4 bytes at 0xfffd, but memory size is 65536 bytes")
	_, err = e.ReadMemoryF64(math.MaxUint32)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	require.ErrorIs(t, e.WriteMemory(65535, []byte{1, 2}), wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
}
