package naivevm

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/wasmkit/naivevm/internal/moremath"
	"github.com/wasmkit/naivevm/internal/wasm"
	"github.com/wasmkit/naivevm/internal/wasmruntime"
)

// valueCodec converts between the raw uint64 representation of an operand and the Go type an instruction computes
// with.
type valueCodec[T any] struct {
	decode func(uint64) T
	encode func(T) uint64
}

var (
	i32 = valueCodec[int32]{decode: wasm.DecodeI32, encode: wasm.EncodeI32}
	u32 = valueCodec[uint32]{
		decode: func(v uint64) uint32 { return uint32(v) },
		encode: func(v uint32) uint64 { return uint64(v) },
	}
	i64 = valueCodec[int64]{decode: func(v uint64) int64 { return int64(v) }, encode: wasm.EncodeI64}
	u64 = valueCodec[uint64]{
		decode: func(v uint64) uint64 { return v },
		encode: func(v uint64) uint64 { return v },
	}
	f32 = valueCodec[float32]{decode: wasm.DecodeF32, encode: wasm.EncodeF32}
	f64 = valueCodec[float64]{decode: wasm.DecodeF64, encode: wasm.EncodeF64}
)

func unop[P, R any](p valueCodec[P], r valueCodec[R], fn func(P) R) instruction {
	return func(e *Engine) {
		e.operands.push(r.encode(fn(p.decode(e.operands.pop()))))
	}
}

func binop[T any](c valueCodec[T], fn func(x1, x2 T) T) instruction {
	return func(e *Engine) {
		x2 := c.decode(e.operands.pop())
		x1 := c.decode(e.operands.pop())
		e.operands.push(c.encode(fn(x1, x2)))
	}
}

func cmpop[T any](c valueCodec[T], fn func(x1, x2 T) bool) instruction {
	return func(e *Engine) {
		x2 := c.decode(e.operands.pop())
		x1 := c.decode(e.operands.pop())
		e.operands.pushBool(fn(x1, x2))
	}
}

func testop[T any](c valueCodec[T], fn func(T) bool) instruction {
	return func(e *Engine) {
		e.operands.pushBool(fn(c.decode(e.operands.pop())))
	}
}

const (
	f32SignBit = uint32(1 << 31)
	f64SignBit = uint64(1 << 63)

	twoTo63 = float64(1 << 63)
	twoTo64 = float64(1 << 64)
)

var numericInstructions = map[wasm.Opcode]instruction{
	wasm.OpcodeI32Eqz: testop(u32, func(v uint32) bool { return v == 0 }),
	wasm.OpcodeI32Eq:  cmpop(u32, func(x1, x2 uint32) bool { return x1 == x2 }),
	wasm.OpcodeI32Ne:  cmpop(u32, func(x1, x2 uint32) bool { return x1 != x2 }),
	wasm.OpcodeI32LtS: cmpop(i32, func(x1, x2 int32) bool { return x1 < x2 }),
	wasm.OpcodeI32LtU: cmpop(u32, func(x1, x2 uint32) bool { return x1 < x2 }),
	wasm.OpcodeI32GtS: cmpop(i32, func(x1, x2 int32) bool { return x1 > x2 }),
	wasm.OpcodeI32GtU: cmpop(u32, func(x1, x2 uint32) bool { return x1 > x2 }),
	wasm.OpcodeI32LeS: cmpop(i32, func(x1, x2 int32) bool { return x1 <= x2 }),
	wasm.OpcodeI32LeU: cmpop(u32, func(x1, x2 uint32) bool { return x1 <= x2 }),
	wasm.OpcodeI32GeS: cmpop(i32, func(x1, x2 int32) bool { return x1 >= x2 }),
	wasm.OpcodeI32GeU: cmpop(u32, func(x1, x2 uint32) bool { return x1 >= x2 }),

	wasm.OpcodeI64Eqz: testop(u64, func(v uint64) bool { return v == 0 }),
	wasm.OpcodeI64Eq:  cmpop(u64, func(x1, x2 uint64) bool { return x1 == x2 }),
	wasm.OpcodeI64Ne:  cmpop(u64, func(x1, x2 uint64) bool { return x1 != x2 }),
	wasm.OpcodeI64LtS: cmpop(i64, func(x1, x2 int64) bool { return x1 < x2 }),
	wasm.OpcodeI64LtU: cmpop(u64, func(x1, x2 uint64) bool { return x1 < x2 }),
	wasm.OpcodeI64GtS: cmpop(i64, func(x1, x2 int64) bool { return x1 > x2 }),
	wasm.OpcodeI64GtU: cmpop(u64, func(x1, x2 uint64) bool { return x1 > x2 }),
	wasm.OpcodeI64LeS: cmpop(i64, func(x1, x2 int64) bool { return x1 <= x2 }),
	wasm.OpcodeI64LeU: cmpop(u64, func(x1, x2 uint64) bool { return x1 <= x2 }),
	wasm.OpcodeI64GeS: cmpop(i64, func(x1, x2 int64) bool { return x1 >= x2 }),
	wasm.OpcodeI64GeU: cmpop(u64, func(x1, x2 uint64) bool { return x1 >= x2 }),

	// Comparisons involving NaN are false, except ne which is true.
	wasm.OpcodeF32Eq: cmpop(f32, func(x1, x2 float32) bool { return x1 == x2 }),
	wasm.OpcodeF32Ne: cmpop(f32, func(x1, x2 float32) bool { return x1 != x2 }),
	wasm.OpcodeF32Lt: cmpop(f32, func(x1, x2 float32) bool { return x1 < x2 }),
	wasm.OpcodeF32Gt: cmpop(f32, func(x1, x2 float32) bool { return x1 > x2 }),
	wasm.OpcodeF32Le: cmpop(f32, func(x1, x2 float32) bool { return x1 <= x2 }),
	wasm.OpcodeF32Ge: cmpop(f32, func(x1, x2 float32) bool { return x1 >= x2 }),

	wasm.OpcodeF64Eq: cmpop(f64, func(x1, x2 float64) bool { return x1 == x2 }),
	wasm.OpcodeF64Ne: cmpop(f64, func(x1, x2 float64) bool { return x1 != x2 }),
	wasm.OpcodeF64Lt: cmpop(f64, func(x1, x2 float64) bool { return x1 < x2 }),
	wasm.OpcodeF64Gt: cmpop(f64, func(x1, x2 float64) bool { return x1 > x2 }),
	wasm.OpcodeF64Le: cmpop(f64, func(x1, x2 float64) bool { return x1 <= x2 }),
	wasm.OpcodeF64Ge: cmpop(f64, func(x1, x2 float64) bool { return x1 >= x2 }),

	wasm.OpcodeI32Clz:    unop(u32, u32, func(v uint32) uint32 { return uint32(bits.LeadingZeros32(v)) }),
	wasm.OpcodeI32Ctz:    unop(u32, u32, func(v uint32) uint32 { return uint32(bits.TrailingZeros32(v)) }),
	wasm.OpcodeI32Popcnt: unop(u32, u32, func(v uint32) uint32 { return uint32(bits.OnesCount32(v)) }),
	wasm.OpcodeI32Add:    binop(u32, func(x1, x2 uint32) uint32 { return x1 + x2 }),
	wasm.OpcodeI32Sub:    binop(u32, func(x1, x2 uint32) uint32 { return x1 - x2 }),
	wasm.OpcodeI32Mul:    binop(u32, func(x1, x2 uint32) uint32 { return x1 * x2 }),
	wasm.OpcodeI32DivS: binop(i32, func(x1, x2 int32) int32 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		} else if x2 == -1 && x1 == math.MinInt32 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		return x1 / x2
	}),
	wasm.OpcodeI32DivU: binop(u32, func(x1, x2 uint32) uint32 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		return x1 / x2
	}),
	wasm.OpcodeI32RemS: binop(i32, func(x1, x2 int32) int32 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		} else if x2 == -1 {
			return 0
		}
		return x1 % x2
	}),
	wasm.OpcodeI32RemU: binop(u32, func(x1, x2 uint32) uint32 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		return x1 % x2
	}),
	wasm.OpcodeI32And:  binop(u32, func(x1, x2 uint32) uint32 { return x1 & x2 }),
	wasm.OpcodeI32Or:   binop(u32, func(x1, x2 uint32) uint32 { return x1 | x2 }),
	wasm.OpcodeI32Xor:  binop(u32, func(x1, x2 uint32) uint32 { return x1 ^ x2 }),
	wasm.OpcodeI32Shl:  binop(u32, func(x1, x2 uint32) uint32 { return x1 << (x2 & 31) }),
	wasm.OpcodeI32ShrS: binop(i32, func(x1, x2 int32) int32 { return x1 >> (x2 & 31) }),
	wasm.OpcodeI32ShrU: binop(u32, func(x1, x2 uint32) uint32 { return x1 >> (x2 & 31) }),
	wasm.OpcodeI32Rotl: binop(u32, func(x1, x2 uint32) uint32 { return bits.RotateLeft32(x1, int(x2&31)) }),
	wasm.OpcodeI32Rotr: binop(u32, func(x1, x2 uint32) uint32 { return bits.RotateLeft32(x1, -int(x2&31)) }),

	wasm.OpcodeI64Clz:    unop(u64, u64, func(v uint64) uint64 { return uint64(bits.LeadingZeros64(v)) }),
	wasm.OpcodeI64Ctz:    unop(u64, u64, func(v uint64) uint64 { return uint64(bits.TrailingZeros64(v)) }),
	wasm.OpcodeI64Popcnt: unop(u64, u64, func(v uint64) uint64 { return uint64(bits.OnesCount64(v)) }),
	wasm.OpcodeI64Add:    binop(u64, func(x1, x2 uint64) uint64 { return x1 + x2 }),
	wasm.OpcodeI64Sub:    binop(u64, func(x1, x2 uint64) uint64 { return x1 - x2 }),
	wasm.OpcodeI64Mul:    binop(u64, func(x1, x2 uint64) uint64 { return x1 * x2 }),
	wasm.OpcodeI64DivS: binop(i64, func(x1, x2 int64) int64 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		} else if x2 == -1 && x1 == math.MinInt64 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		return x1 / x2
	}),
	wasm.OpcodeI64DivU: binop(u64, func(x1, x2 uint64) uint64 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		return x1 / x2
	}),
	wasm.OpcodeI64RemS: binop(i64, func(x1, x2 int64) int64 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		} else if x2 == -1 {
			return 0
		}
		return x1 % x2
	}),
	wasm.OpcodeI64RemU: binop(u64, func(x1, x2 uint64) uint64 {
		if x2 == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		return x1 % x2
	}),
	wasm.OpcodeI64And:  binop(u64, func(x1, x2 uint64) uint64 { return x1 & x2 }),
	wasm.OpcodeI64Or:   binop(u64, func(x1, x2 uint64) uint64 { return x1 | x2 }),
	wasm.OpcodeI64Xor:  binop(u64, func(x1, x2 uint64) uint64 { return x1 ^ x2 }),
	wasm.OpcodeI64Shl:  binop(u64, func(x1, x2 uint64) uint64 { return x1 << (x2 & 63) }),
	wasm.OpcodeI64ShrS: binop(i64, func(x1, x2 int64) int64 { return x1 >> (x2 & 63) }),
	wasm.OpcodeI64ShrU: binop(u64, func(x1, x2 uint64) uint64 { return x1 >> (x2 & 63) }),
	wasm.OpcodeI64Rotl: binop(u64, func(x1, x2 uint64) uint64 { return bits.RotateLeft64(x1, int(x2&63)) }),
	wasm.OpcodeI64Rotr: binop(u64, func(x1, x2 uint64) uint64 { return bits.RotateLeft64(x1, -int(x2&63)) }),

	// Sign manipulation works on the bits, so that NaN payloads pass through unchanged.
	wasm.OpcodeF32Abs:      unop(u32, u32, func(v uint32) uint32 { return v &^ f32SignBit }),
	wasm.OpcodeF32Neg:      unop(u32, u32, func(v uint32) uint32 { return v ^ f32SignBit }),
	wasm.OpcodeF32Ceil:     unop(f32, f32, func(v float32) float32 { return float32(math.Ceil(float64(v))) }),
	wasm.OpcodeF32Floor:    unop(f32, f32, func(v float32) float32 { return float32(math.Floor(float64(v))) }),
	wasm.OpcodeF32Trunc:    unop(f32, f32, func(v float32) float32 { return float32(math.Trunc(float64(v))) }),
	wasm.OpcodeF32Nearest:  unop(f32, f32, moremath.WasmCompatNearestF32),
	wasm.OpcodeF32Sqrt:     unop(f32, f32, func(v float32) float32 { return float32(math.Sqrt(float64(v))) }),
	wasm.OpcodeF32Add:      binop(f32, func(x1, x2 float32) float32 { return x1 + x2 }),
	wasm.OpcodeF32Sub:      binop(f32, func(x1, x2 float32) float32 { return x1 - x2 }),
	wasm.OpcodeF32Mul:      binop(f32, func(x1, x2 float32) float32 { return x1 * x2 }),
	wasm.OpcodeF32Div:      binop(f32, func(x1, x2 float32) float32 { return x1 / x2 }),
	wasm.OpcodeF32Min:      binop(f32, moremath.WasmCompatMin32),
	wasm.OpcodeF32Max:      binop(f32, moremath.WasmCompatMax32),
	wasm.OpcodeF32Copysign: binop(u32, func(x1, x2 uint32) uint32 { return x1&^f32SignBit | x2&f32SignBit }),

	wasm.OpcodeF64Abs:      unop(u64, u64, func(v uint64) uint64 { return v &^ f64SignBit }),
	wasm.OpcodeF64Neg:      unop(u64, u64, func(v uint64) uint64 { return v ^ f64SignBit }),
	wasm.OpcodeF64Ceil:     unop(f64, f64, math.Ceil),
	wasm.OpcodeF64Floor:    unop(f64, f64, math.Floor),
	wasm.OpcodeF64Trunc:    unop(f64, f64, math.Trunc),
	wasm.OpcodeF64Nearest:  unop(f64, f64, moremath.WasmCompatNearestF64),
	wasm.OpcodeF64Sqrt:     unop(f64, f64, math.Sqrt),
	wasm.OpcodeF64Add:      binop(f64, func(x1, x2 float64) float64 { return x1 + x2 }),
	wasm.OpcodeF64Sub:      binop(f64, func(x1, x2 float64) float64 { return x1 - x2 }),
	wasm.OpcodeF64Mul:      binop(f64, func(x1, x2 float64) float64 { return x1 * x2 }),
	wasm.OpcodeF64Div:      binop(f64, func(x1, x2 float64) float64 { return x1 / x2 }),
	wasm.OpcodeF64Min:      binop(f64, moremath.WasmCompatMin64),
	wasm.OpcodeF64Max:      binop(f64, moremath.WasmCompatMax64),
	wasm.OpcodeF64Copysign: binop(u64, func(x1, x2 uint64) uint64 { return x1&^f64SignBit | x2&f64SignBit }),

	wasm.OpcodeI32WrapI64:   unop(u64, u32, func(v uint64) uint32 { return uint32(v) }),
	wasm.OpcodeI32TruncF32S: unop(f32, i32, func(v float32) int32 { return truncI32S(float64(v)) }),
	wasm.OpcodeI32TruncF32U: unop(f32, u32, func(v float32) uint32 { return truncU32(float64(v)) }),
	wasm.OpcodeI32TruncF64S: unop(f64, i32, truncI32S),
	wasm.OpcodeI32TruncF64U: unop(f64, u32, truncU32),

	wasm.OpcodeI64ExtendI32S: unop(i32, i64, func(v int32) int64 { return int64(v) }),
	wasm.OpcodeI64ExtendI32U: unop(u32, u64, func(v uint32) uint64 { return uint64(v) }),
	wasm.OpcodeI64TruncF32S:  unop(f32, i64, func(v float32) int64 { return truncI64S(float64(v)) }),
	wasm.OpcodeI64TruncF32U:  unop(f32, u64, func(v float32) uint64 { return truncU64(float64(v)) }),
	wasm.OpcodeI64TruncF64S:  unop(f64, i64, truncI64S),
	wasm.OpcodeI64TruncF64U:  unop(f64, u64, truncU64),

	wasm.OpcodeF32ConvertI32S: unop(i32, f32, func(v int32) float32 { return float32(v) }),
	wasm.OpcodeF32ConvertI32U: unop(u32, f32, func(v uint32) float32 { return float32(v) }),
	wasm.OpcodeF32ConvertI64S: unop(i64, f32, func(v int64) float32 { return float32(v) }),
	wasm.OpcodeF32ConvertI64U: unop(u64, f32, func(v uint64) float32 { return float32(v) }),
	wasm.OpcodeF32DemoteF64:   unop(f64, f32, func(v float64) float32 { return float32(v) }),

	wasm.OpcodeF64ConvertI32S: unop(i32, f64, func(v int32) float64 { return float64(v) }),
	wasm.OpcodeF64ConvertI32U: unop(u32, f64, func(v uint32) float64 { return float64(v) }),
	wasm.OpcodeF64ConvertI64S: unop(i64, f64, func(v int64) float64 { return float64(v) }),
	wasm.OpcodeF64ConvertI64U: unop(u64, f64, func(v uint64) float64 { return float64(v) }),
	wasm.OpcodeF64PromoteF32:  unop(f32, f64, func(v float32) float64 { return float64(v) }),

	// Values are untyped bits, so reinterpretation changes nothing.
	wasm.OpcodeI32ReinterpretF32: nop,
	wasm.OpcodeI64ReinterpretF64: nop,
	wasm.OpcodeF32ReinterpretI32: nop,
	wasm.OpcodeF64ReinterpretI64: nop,

	wasm.OpcodeI32Extend8S:  unop(i32, i32, func(v int32) int32 { return int32(int8(v)) }),
	wasm.OpcodeI32Extend16S: unop(i32, i32, func(v int32) int32 { return int32(int16(v)) }),
	wasm.OpcodeI64Extend8S:  unop(i64, i64, func(v int64) int64 { return int64(int8(v)) }),
	wasm.OpcodeI64Extend16S: unop(i64, i64, func(v int64) int64 { return int64(int16(v)) }),
	wasm.OpcodeI64Extend32S: unop(i64, i64, func(v int64) int64 { return int64(int32(v)) }),
}

// truncated rounds v towards zero, trapping when v is NaN.
func truncated(v float64) float64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	return math.Trunc(v)
}

func truncI32S(v float64) int32 {
	t := truncated(v)
	if t < math.MinInt32 || t > math.MaxInt32 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int32(t)
}

func truncU32(v float64) uint32 {
	t := truncated(v)
	if t < 0 || t > math.MaxUint32 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint32(t)
}

func truncI64S(v float64) int64 {
	t := truncated(v)
	if t < -twoTo63 || t >= twoTo63 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int64(t)
}

func truncU64(v float64) uint64 {
	t := truncated(v)
	if t < 0 || t >= twoTo64 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}

// The saturating conversions clamp out of range values to the bounds of the target, and convert NaN to zero.

func truncSatI32S(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < math.MinInt32:
		return math.MinInt32
	case v > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(v)
}

func truncSatU32(v float64) uint32 {
	switch {
	case math.IsNaN(v), v <= -1:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}

func truncSatI64S(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -twoTo63:
		return math.MinInt64
	case v >= twoTo63:
		return math.MaxInt64
	}
	return int64(v)
}

func truncSatU64(v float64) uint64 {
	switch {
	case math.IsNaN(v), v <= -1:
		return 0
	case v >= twoTo64:
		return math.MaxUint64
	}
	return uint64(v)
}

var miscInstructions = [...]instruction{
	wasm.OpcodeMiscI32TruncSatF32S: unop(f32, i32, func(v float32) int32 { return truncSatI32S(float64(v)) }),
	wasm.OpcodeMiscI32TruncSatF32U: unop(f32, u32, func(v float32) uint32 { return truncSatU32(float64(v)) }),
	wasm.OpcodeMiscI32TruncSatF64S: unop(f64, i32, truncSatI32S),
	wasm.OpcodeMiscI32TruncSatF64U: unop(f64, u32, truncSatU32),
	wasm.OpcodeMiscI64TruncSatF32S: unop(f32, i64, func(v float32) int64 { return truncSatI64S(float64(v)) }),
	wasm.OpcodeMiscI64TruncSatF32U: unop(f32, u64, func(v float32) uint64 { return truncSatU64(float64(v)) }),
	wasm.OpcodeMiscI64TruncSatF64S: unop(f64, i64, truncSatI64S),
	wasm.OpcodeMiscI64TruncSatF64U: unop(f64, u64, truncSatU64),
}

// miscPrefix dispatches the instructions encoded as 0xfc followed by a u32 sub-opcode.
func miscPrefix(e *Engine) {
	sub := e.fetchUint32()
	if sub >= uint32(len(miscInstructions)) {
		fr := e.activeFrame
		panic(fmt.Errorf("%w: %#x %d in %s", wasmruntime.ErrRuntimeUnsupportedOpcode,
			wasm.OpcodeMiscPrefix, sub, e.functionName(fr.funcIdx)))
	}
	miscInstructions[sub](e)
}
