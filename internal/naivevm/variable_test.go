package naivevm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

func TestEngine_Select(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected uint64
	}{
		{name: "first", body: code(i32c(1), i32c(2), i32c(3), wasm.OpcodeSelect), expected: 1},
		{name: "second", body: code(i32c(1), i32c(2), i32c(0), wasm.OpcodeSelect), expected: 2},
		{name: "typed", body: code(i64c(1), i64c(2), i32c(0), wasm.OpcodeTypedSelect, 1, wasm.ValueTypeI64), expected: 2},
		{name: "drop", body: code(i32c(1), i32c(2), wasm.OpcodeDrop), expected: 1},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := runI32(t, tc.body)
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)
		})
	}
}

func TestEngine_Locals(t *testing.T) {
	// Declared locals follow the params and start at zero.
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeI32},
	}
	e := newTestEngine(t, singleFunctionModule(ft, []wasm.ValueType{wasm.ValueTypeI64}, code(
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 2,
		wasm.OpcodeLocalGet, 1,
		i32c(10),
		wasm.OpcodeI32Add,
		wasm.OpcodeLocalTee, 1,
		wasm.OpcodeEnd,
	)))

	results, err := invoke(t, e, 0, 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 0, 14}, results)

	t.Run("index out of range", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, nil, code(wasm.OpcodeLocalGet, 1, wasm.OpcodeEnd)))
		_, err := invoke(t, e, 0, 1)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)
		require.Contains(t, err.Error(), "local index 1, but fn (function[0]) has 1 locals")
	})

	t.Run("locals are per call", func(t *testing.T) {
		// The callee overwrites its local 0, which must not change the caller's.
		m := &wasm.Module{
			Types: []*wasm.FunctionType{typeI32I32, typeI32Null},
			Functions: []*wasm.Function{
				{Body: code(wasm.OpcodeLocalGet, 0, wasm.OpcodeCall, 1, wasm.OpcodeLocalGet, 0, wasm.OpcodeEnd)},
				{TypeIndex: 1, Body: code(i32c(99), wasm.OpcodeLocalSet, 0, wasm.OpcodeEnd)},
			},
		}
		results, err := invoke(t, newTestEngine(t, m), 0, 5)
		require.NoError(t, err)
		require.Equal(t, []uint64{5}, results)
	})
}

func TestEngine_Globals(t *testing.T) {
	m := singleFunctionModule(typeNullI32, nil, code(
		wasm.OpcodeGlobalGet, 0,
		i32c(1),
		wasm.OpcodeI32Add,
		wasm.OpcodeGlobalSet, 0,
		wasm.OpcodeGlobalGet, 0,
		wasm.OpcodeGlobalGet, 1,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	))
	m.Globals = []*wasm.Global{
		{Type: wasm.ValueTypeI32, Mutable: true, Init: 5},
		{Type: wasm.ValueTypeI32, Init: 100},
	}
	e := newTestEngine(t, m)

	for _, expected := range []uint64{106, 107} {
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{expected}, results)
	}

	v, err := e.Global(0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	_, err = e.Global(2)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)

	t.Run("immutable", func(t *testing.T) {
		m := singleFunctionModule(typeNullNull, nil, code(i32c(1), wasm.OpcodeGlobalSet, 1, wasm.OpcodeEnd))
		m.Globals = []*wasm.Global{{Type: wasm.ValueTypeI32, Mutable: true}, {Type: wasm.ValueTypeI32, Init: 100}}
		e := newTestEngine(t, m)

		err := e.Invoke(0)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeImmutableGlobal)
		require.False(t, wasmruntime.IsTrap(err))
		require.Contains(t, err.Error(), "write to immutable global: global[1]")

		v, err := e.Global(1)
		require.NoError(t, err)
		require.Equal(t, uint64(100), v)
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := runI32(t, code(wasm.OpcodeGlobalGet, 0))
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)
	})
}

func TestEngine_Const(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected uint64
	}{
		{name: "i32", body: i32c(-1), expected: 0xffffffff},
		{name: "i64", body: i64c(-1), expected: 0xffffffffffffffff},
		{name: "f32", body: f32c(-0.5), expected: wasm.EncodeF32(-0.5)},
		{name: "f32 NaN payload", body: f32bits(0x7fc00123), expected: 0x7fc00123},
		{name: "f64", body: f64c(6.25), expected: wasm.EncodeF64(6.25)},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := runI32(t, tc.body)
			require.NoError(t, err)
			require.Equal(t, tc.expected, actual)
		})
	}
}
