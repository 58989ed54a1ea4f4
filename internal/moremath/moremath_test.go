package moremath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWasmCompatMin64(t *testing.T) {
	require.Equal(t, -1.1, WasmCompatMin64(-1.1, 123))
	require.Equal(t, -1.1, WasmCompatMin64(-1.1, math.Inf(1)))
	require.Equal(t, math.Inf(-1), WasmCompatMin64(math.Inf(-1), 123))

	// NaN cannot be compared with themselves, so we have to use IsNaN
	require.True(t, math.IsNaN(WasmCompatMin64(math.NaN(), 1.0)))
	require.True(t, math.IsNaN(WasmCompatMin64(1.0, math.NaN())))
	require.True(t, math.IsNaN(WasmCompatMin64(math.Inf(-1), math.NaN())))

	zero := float64(0)
	require.True(t, math.Signbit(WasmCompatMin64(zero, -zero)))
	require.True(t, math.Signbit(WasmCompatMin64(-zero, zero)))
}

func TestWasmCompatMax64(t *testing.T) {
	require.Equal(t, 123.1, WasmCompatMax64(-1.1, 123.1))
	require.Equal(t, math.Inf(1), WasmCompatMax64(-1.1, math.Inf(1)))

	require.True(t, math.IsNaN(WasmCompatMax64(math.NaN(), 1.0)))
	require.True(t, math.IsNaN(WasmCompatMax64(math.Inf(1), math.NaN())))

	zero := float64(0)
	require.False(t, math.Signbit(WasmCompatMax64(zero, -zero)))
	require.False(t, math.Signbit(WasmCompatMax64(-zero, zero)))
}

func TestWasmCompat32(t *testing.T) {
	require.Equal(t, float32(-1.5), WasmCompatMin32(-1.5, 2))
	require.Equal(t, float32(2), WasmCompatMax32(-1.5, 2))
	nan := float32(math.NaN())
	require.True(t, math.IsNaN(float64(WasmCompatMin32(nan, float32(math.Inf(-1))))))
	require.True(t, math.IsNaN(float64(WasmCompatMax32(float32(math.Inf(1)), nan))))
}

func TestWasmCompatNearest(t *testing.T) {
	for _, tc := range []struct{ in, exp float64 }{
		{in: -1.5, exp: -2},
		{in: -4.5, exp: -4}, // math.Round gives -5
		{in: 2.5, exp: 2},
		{in: 3.5, exp: 4},
		{in: 0.4, exp: 0},
		{in: 1.6, exp: 2},
	} {
		require.Equal(t, tc.exp, WasmCompatNearestF64(tc.in), tc.in)
		require.Equal(t, float32(tc.exp), WasmCompatNearestF32(float32(tc.in)), tc.in)
	}

	// Prevent constant folding by using two variables. -float64(0) is not actually negative.
	// https://github.com/golang/go/issues/2196
	zero := float64(0)
	negZero := -zero
	require.False(t, math.Signbit(WasmCompatNearestF64(zero)))
	require.True(t, math.Signbit(WasmCompatNearestF64(negZero)))
	require.True(t, math.Signbit(float64(WasmCompatNearestF32(float32(negZero)))))
	require.True(t, math.Signbit(WasmCompatNearestF64(-0.3)))
}
