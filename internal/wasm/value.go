package wasm

import (
	"math"
	"strconv"
)

// Values are carried as raw uint64 bits. The executing instruction decides how to read them: i32 and f32
// occupy the low 32 bits.

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 {
	return uint64(uint32(input))
}

// DecodeI32 decodes the input as a ValueTypeI32.
func DecodeI32(input uint64) int32 {
	return int32(input)
}

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 {
	return uint64(input)
}

// EncodeF32 encodes the input as a ValueTypeF32.
//
// See DecodeF32
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes the input as a ValueTypeF32.
//
// See EncodeF32
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes the input as a ValueTypeF64.
//
// See DecodeF64
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes the input as a ValueTypeF64.
//
// See EncodeF64
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}

// FormatValue renders v according to t, for logs and command output.
func FormatValue(t ValueType, v uint64) string {
	switch t {
	case ValueTypeI32:
		return strconv.FormatInt(int64(DecodeI32(v)), 10)
	case ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case ValueTypeF32:
		return strconv.FormatFloat(float64(DecodeF32(v)), 'g', -1, 32)
	case ValueTypeF64:
		return strconv.FormatFloat(DecodeF64(v), 'g', -1, 64)
	}
	return strconv.FormatUint(v, 10)
}
