package naivevm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

func TestResolveBlock(t *testing.T) {
	tests := []struct {
		name                    string
		body                    []byte
		expectedElseAt          uint64
		expectedEndAt           uint64
		expectedErr             error
		expectedErrMsgSubstring string
	}{
		{
			name:          "empty",
			body:          code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeEnd),
			expectedEndAt: 3,
		},
		{
			name: "immediate equal to end",
			// i32.const 11 encodes its immediate as 0x0b
			body:          code(wasm.OpcodeBlock, blockTypeEmpty, i32c(11), wasm.OpcodeEnd, wasm.OpcodeEnd),
			expectedEndAt: 5,
		},
		{
			name:           "else",
			body:           code(wasm.OpcodeIf, blockTypeEmpty, wasm.OpcodeNop, wasm.OpcodeElse, wasm.OpcodeNop, wasm.OpcodeEnd),
			expectedElseAt: 4,
			expectedEndAt:  6,
		},
		{
			name:          "nested",
			body:          code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeLoop, blockTypeEmpty, wasm.OpcodeEnd, wasm.OpcodeEnd),
			expectedEndAt: 6,
		},
		{
			name: "nested else belongs to the inner if",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				wasm.OpcodeIf, blockTypeEmpty, wasm.OpcodeElse, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedEndAt: 7,
		},
		{
			name: "br_table labels",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				wasm.OpcodeBrTable, 2, wasm.OpcodeEnd, wasm.OpcodeEnd, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedEndAt: 8,
		},
		{
			name: "memarg",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				wasm.OpcodeI32Load, 2, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedEndAt: 6,
		},
		{
			name: "f64.const",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				wasm.OpcodeF64Const, []byte{0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b},
				wasm.OpcodeEnd),
			expectedEndAt: 12,
		},
		{
			name: "block type index",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				wasm.OpcodeBlock, 0, wasm.OpcodeEnd,
				wasm.OpcodeEnd),
			expectedEndAt: 6,
		},
		{
			name: "misc prefix",
			body: code(wasm.OpcodeBlock, blockTypeEmpty,
				misc(wasm.OpcodeMiscI32TruncSatF32S),
				wasm.OpcodeEnd),
			expectedEndAt: 5,
		},
		{
			name:                    "missing end",
			body:                    code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeNop),
			expectedErr:             wasmruntime.ErrRuntimeMalformedBlock,
			expectedErrMsgSubstring: "block has no matching end",
		},
		{
			name:                    "second else",
			body:                    code(wasm.OpcodeIf, blockTypeEmpty, wasm.OpcodeElse, wasm.OpcodeElse, wasm.OpcodeEnd),
			expectedErr:             wasmruntime.ErrRuntimeMalformedBlock,
			expectedErrMsgSubstring: "second else at offset 0x3",
		},
		{
			name:                    "truncated immediate",
			body:                    code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeF64Const, 0, 0, 0),
			expectedErr:             wasmruntime.ErrRuntimeMalformedBlock,
			expectedErrMsgSubstring: "f64.const immediate at offset 0x3",
		},
		{
			name:        "unknown opcode",
			body:        code(wasm.OpcodeBlock, blockTypeEmpty, 0xff, wasm.OpcodeEnd),
			expectedErr: wasmruntime.ErrRuntimeUnsupportedOpcode,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			elseAt, endAt, err := resolveBlock(tc.body, 2)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				require.Contains(t, err.Error(), tc.expectedErrMsgSubstring)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedElseAt, elseAt)
			require.Equal(t, tc.expectedEndAt, endAt)
		})
	}
}

// sumBody returns the sum of 1 to n, where n is the i32 param and local 1 is the accumulator.
var sumBody = code(
	wasm.OpcodeBlock, blockTypeEmpty,
	wasm.OpcodeLoop, blockTypeEmpty,
	wasm.OpcodeLocalGet, 0,
	wasm.OpcodeI32Eqz,
	wasm.OpcodeBrIf, 1,
	wasm.OpcodeLocalGet, 1,
	wasm.OpcodeLocalGet, 0,
	wasm.OpcodeI32Add,
	wasm.OpcodeLocalSet, 1,
	wasm.OpcodeLocalGet, 0,
	i32c(1),
	wasm.OpcodeI32Sub,
	wasm.OpcodeLocalSet, 0,
	wasm.OpcodeBr, 0,
	wasm.OpcodeEnd,
	wasm.OpcodeEnd,
	wasm.OpcodeLocalGet, 1,
	wasm.OpcodeEnd,
)

func TestEngine_Loop(t *testing.T) {
	for _, cache := range []bool{false, true} {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, []wasm.ValueType{wasm.ValueTypeI32}, sumBody),
			WithBlockCache(cache))
		for _, tc := range []struct{ n, expected uint64 }{{0, 0}, {1, 1}, {10, 55}, {100, 5050}} {
			results, err := invoke(t, e, 0, tc.n)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
		}
		require.Zero(t, e.controls.depth())
		if cache {
			// The outer block and the loop.
			require.Equal(t, 2, len(e.blocks))
		} else {
			require.Nil(t, e.blocks)
		}
	}
}

func TestEngine_If(t *testing.T) {
	t.Run("else arm", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, nil, code(
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeIf, wasm.ValueTypeI32,
			i32c(10),
			wasm.OpcodeElse,
			i32c(20),
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)))
		for _, tc := range []struct{ c, expected uint64 }{{1, 10}, {0, 20}, {0xffffffff, 10}} {
			results, err := invoke(t, e, 0, tc.c)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
			require.Zero(t, e.controls.depth())
		}
	})

	t.Run("no else arm", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, []wasm.ValueType{wasm.ValueTypeI32}, code(
			i32c(1),
			wasm.OpcodeLocalSet, 1,
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeIf, blockTypeEmpty,
			i32c(2),
			wasm.OpcodeLocalSet, 1,
			wasm.OpcodeEnd,
			wasm.OpcodeLocalGet, 1,
			wasm.OpcodeEnd,
		)))
		for _, tc := range []struct{ c, expected uint64 }{{1, 2}, {0, 1}} {
			results, err := invoke(t, e, 0, tc.c)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
		}
	})

	t.Run("branch out of the else arm", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, nil, code(
			wasm.OpcodeBlock, wasm.ValueTypeI32,
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeIf, blockTypeEmpty,
			wasm.OpcodeElse,
			i32c(7),
			wasm.OpcodeBr, 1,
			wasm.OpcodeEnd,
			i32c(8),
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)))
		for _, tc := range []struct{ c, expected uint64 }{{1, 8}, {0, 7}} {
			results, err := invoke(t, e, 0, tc.c)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
			require.Zero(t, e.controls.depth())
		}
	})
}

func TestEngine_Br(t *testing.T) {
	t.Run("out of nested blocks", func(t *testing.T) {
		m := singleFunctionModule(typeNullNull, nil, code(
			wasm.OpcodeBlock, blockTypeEmpty,
			i32c(1),
			wasm.OpcodeIf, blockTypeEmpty,
			wasm.OpcodeBlock, blockTypeEmpty,
			i32c(0), i32c(1), wasm.OpcodeI32Store, 2, 0,
			wasm.OpcodeBr, 2,
			wasm.OpcodeEnd,
			i32c(4), i32c(2), wasm.OpcodeI32Store, 2, 0,
			wasm.OpcodeEnd,
			i32c(8), i32c(3), wasm.OpcodeI32Store, 2, 0,
			wasm.OpcodeEnd,
			i32c(12), i32c(4), wasm.OpcodeI32Store, 2, 0,
			wasm.OpcodeEnd,
		))
		m.MemoryMinPages = 1
		e := newTestEngine(t, m)

		_, err := invoke(t, e, 0)
		require.NoError(t, err)
		for addr, expected := range map[uint32]int32{0: 1, 4: 0, 8: 0, 12: 4} {
			v, err := e.ReadMemoryI32(addr)
			require.NoError(t, err)
			require.Equal(t, expected, v, addr)
		}
		require.Zero(t, e.controls.depth())
		require.Zero(t, e.StackHeight())
	})

	t.Run("carries the label arity", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeNullI32, nil, code(
			wasm.OpcodeBlock, wasm.ValueTypeI32,
			i32c(1), i32c(2),
			wasm.OpcodeBr, 0,
			i32c(3),
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)))
		results, err := invoke(t, e, 0)
		require.NoError(t, err)
		require.Equal(t, []uint64{2}, results)
		require.Zero(t, e.StackHeight())
	})

	t.Run("loop with params", func(t *testing.T) {
		// Counts the param down to zero, carrying the counter as the loop param.
		m := &wasm.Module{
			Types: []*wasm.FunctionType{typeI32I32, typeI32I32},
			Functions: []*wasm.Function{{Body: code(
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeLoop, 1,
				i32c(1), wasm.OpcodeI32Sub,
				wasm.OpcodeLocalTee, 0,
				wasm.OpcodeLocalGet, 0,
				wasm.OpcodeBrIf, 0,
				wasm.OpcodeEnd,
				wasm.OpcodeEnd,
			)}},
		}
		e := newTestEngine(t, m)
		results, err := invoke(t, e, 0, 5)
		require.NoError(t, err)
		require.Equal(t, []uint64{0}, results)
		require.Zero(t, e.StackHeight())
	})

	t.Run("br_table", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeI32I32, nil, code(
			wasm.OpcodeBlock, blockTypeEmpty,
			wasm.OpcodeBlock, blockTypeEmpty,
			wasm.OpcodeBlock, blockTypeEmpty,
			wasm.OpcodeLocalGet, 0,
			wasm.OpcodeBrTable, 2, 0, 1, 2,
			wasm.OpcodeEnd,
			i32c(100), wasm.OpcodeReturn,
			wasm.OpcodeEnd,
			i32c(101), wasm.OpcodeReturn,
			wasm.OpcodeEnd,
			i32c(102),
			wasm.OpcodeEnd,
		)))
		for _, tc := range []struct{ i, expected uint64 }{{0, 100}, {1, 101}, {2, 102}, {5, 102}} {
			results, err := invoke(t, e, 0, tc.i)
			require.NoError(t, err)
			require.Equal(t, []uint64{tc.expected}, results)
			require.Zero(t, e.controls.depth())
		}
	})

	t.Run("label out of range", func(t *testing.T) {
		e := newTestEngine(t, singleFunctionModule(typeNullNull, nil, code(
			wasm.OpcodeBlock, blockTypeEmpty,
			wasm.OpcodeBr, 1,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)))
		err := e.Invoke(0)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)
		require.Contains(t, err.Error(), "label 1, but 1 blocks are open in fn (function[0])")
		require.False(t, wasmruntime.IsTrap(err))
	})

	t.Run("labels of the caller are out of range", func(t *testing.T) {
		m := &wasm.Module{
			Types: []*wasm.FunctionType{typeNullNull},
			Functions: []*wasm.Function{
				{Body: code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeCall, 1, wasm.OpcodeEnd, wasm.OpcodeEnd)},
				{Body: code(wasm.OpcodeBr, 0, wasm.OpcodeEnd)},
			},
		}
		err := newTestEngine(t, m).Invoke(0)
		require.ErrorIs(t, err, wasmruntime.ErrRuntimeInvalidIndex)
	})
}

func TestEngine_Return(t *testing.T) {
	e := newTestEngine(t, singleFunctionModule(typeI32I32, nil, code(
		wasm.OpcodeBlock, blockTypeEmpty,
		wasm.OpcodeLoop, blockTypeEmpty,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeReturn,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeUnreachable,
		wasm.OpcodeEnd,
	)))
	results, err := invoke(t, e, 0, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
	require.Zero(t, e.controls.depth())
}

func TestEngine_Else_OutsideIf(t *testing.T) {
	err := newTestEngine(t, singleFunctionModule(typeNullNull, nil, code(wasm.OpcodeElse, wasm.OpcodeEnd))).Invoke(0)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeMalformedBlock)
}

func TestEngine_MissingEnd(t *testing.T) {
	err := newTestEngine(t, singleFunctionModule(typeNullNull, nil, code(wasm.OpcodeBlock, blockTypeEmpty, wasm.OpcodeNop))).Invoke(0)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeMalformedBlock)
	require.Contains(t, err.Error(), "fn (function[0]): malformed instruction stream: block has no matching end")
}
